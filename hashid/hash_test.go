package hashid

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfIsPureFunctionOfBytes(t *testing.T) {
	a := Of([]byte("MVALPRWFDK"))
	b := Of([]byte("MVALPRWFDK"))
	assert.Equal(t, a, b)

	c := Of([]byte("different"))
	assert.NotEqual(t, a, c)
}

func TestParseRoundTrip(t *testing.T) {
	h := Of([]byte("round trip me"))
	parsed, err := Parse(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("not-hex")
	require.Error(t, err)

	_, err = Parse("abcd")
	require.Error(t, err)
}

func TestEmpty(t *testing.T) {
	var h Hash32
	assert.True(t, h.IsEmpty())
	assert.False(t, Of([]byte("x")).IsEmpty())
}

func TestSortedIsLexicographic(t *testing.T) {
	in := []Hash32{Of([]byte("c")), Of([]byte("a")), Of([]byte("b"))}
	out := Sorted(in)
	require.Len(t, out, 3)
	assert.True(t, sort.IsSorted(Slice(out)))

	// original slice must be untouched
	assert.Equal(t, Of([]byte("c")), in[0])
}
