package secindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talaria-db/sequoia/hashid"
	"github.com/talaria-db/sequoia/kv"
)

func openEngine(t *testing.T) *kv.Engine {
	t.Helper()
	e, err := kv.Open(kv.Config{Path: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestAccessionIndexDoesNotShadowExistingHash(t *testing.T) {
	e := openEngine(t)
	idx := NewAccessionIndex(e)
	h := hashid.Of([]byte("MVALPRWFDK"))

	require.NoError(t, idx.Put("P12345", h, "uniprot"))
	require.NoError(t, idx.Put("P12345", h, "ncbi"))

	gotHash, sources, ok, err := idx.Get("P12345")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, h, gotHash)
	require.ElementsMatch(t, []string{"uniprot", "ncbi"}, sources)
}

func TestTaxonomyIndexIsMultiset(t *testing.T) {
	e := openEngine(t)
	idx := NewTaxonomyIndex(e)
	h1 := hashid.Of([]byte("a"))
	h2 := hashid.Of([]byte("b"))

	require.NoError(t, idx.Add("9606", h1))
	require.NoError(t, idx.Add("9606", h2))
	require.NoError(t, idx.Add("9606", h1))

	hashes, err := idx.Get("9606")
	require.NoError(t, err)
	require.Equal(t, []hashid.Hash32{h1, h2, h1}, hashes)
}

func TestGetMissingAccessionIsNotError(t *testing.T) {
	e := openEngine(t)
	idx := NewAccessionIndex(e)
	_, _, ok, err := idx.Get("nope")
	require.NoError(t, err)
	require.False(t, ok)
}
