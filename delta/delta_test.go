package delta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talaria-db/sequoia/hashid"
)

func TestEncodeChildRoundTrips(t *testing.T) {
	ref := []byte(strings.Repeat("MVALPRWFDKQSTNYGHCEI", 10))
	child := append([]byte(nil), ref...)
	child[50] = 'X'
	child[51] = 'Y'

	cfg := DefaultConfig()
	cfg.MinDeltaSize = 1
	refHash := hashid.Of(ref)
	childHash := hashid.Of(child)

	d := EncodeChild(refHash, ref, childHash, child, 1, cfg)
	require.False(t, d.Classification.Full)
	require.NoError(t, Verify(ref, d, child))
}

func TestEncodeChildFallsBackToFullWhenTooDissimilar(t *testing.T) {
	ref := []byte(strings.Repeat("A", 200))
	child := []byte(strings.Repeat("Z", 200))

	cfg := DefaultConfig()
	cfg.MinDeltaSize = 1
	cfg.MinSimilarityThreshold = 0.5

	d := EncodeChild(hashid.Of(ref), ref, hashid.Of(child), child, 1, cfg)
	require.True(t, d.Classification.Full)
}

func TestEncodeChildRespectsNoDeltas(t *testing.T) {
	ref := []byte(strings.Repeat("A", 200))
	child := append([]byte(nil), ref...)
	cfg := DefaultConfig()
	cfg.NoDeltas = true

	d := EncodeChild(hashid.Of(ref), ref, hashid.Of(child), child, 1, cfg)
	require.True(t, d.Classification.Full)
}

func TestEncodeChildRespectsMaxAlignLength(t *testing.T) {
	ref := []byte(strings.Repeat("ACGT", 100))
	child := append([]byte(nil), ref...)
	cfg := DefaultConfig()
	cfg.MinDeltaSize = 1
	cfg.MaxAlignLength = 10

	d := EncodeChild(hashid.Of(ref), ref, hashid.Of(child), child, 1, cfg)
	require.True(t, d.Classification.Full)
}

func TestEncodeChildSmallChildStaysFull(t *testing.T) {
	ref := []byte(strings.Repeat("ACGT", 1000))
	child := []byte("ACGTACGT")
	cfg := DefaultConfig() // MinDeltaSize = 1024 by default

	d := EncodeChild(hashid.Of(ref), ref, hashid.Of(child), child, 1, cfg)
	require.True(t, d.Classification.Full)
}

func TestApplyReconstructsExactBytes(t *testing.T) {
	ref := []byte(strings.Repeat("MVALPRWFDKQSTNYGHCEI", 20))
	child := append([]byte(nil), ref...)
	child[5] = '!'
	child = append(child[:100], append([]byte("EXTRA-TAIL-DATA-NOT-IN-REF"), child[100:]...)...)

	ops := computeOps(ref, child)
	got := Apply(ref, ops)
	require.Equal(t, child, got)
}

func TestChainDepthAndRootOf(t *testing.T) {
	root := hashid.Of([]byte("root"))
	a := hashid.Of([]byte("a"))
	b := hashid.Of([]byte("b"))
	c := hashid.Of([]byte("c"))

	parentOf := map[hashid.Hash32]hashid.Hash32{
		a: root,
		b: a,
		c: b,
	}
	require.Equal(t, 1, ChainDepth(a, parentOf))
	require.Equal(t, 2, ChainDepth(b, parentOf))
	require.Equal(t, 3, ChainDepth(c, parentOf))
	require.Equal(t, root, RootOf(c, parentOf))
}

func TestCompactDeepChainsFlattensOverDepthChains(t *testing.T) {
	root := []byte(strings.Repeat("MVALPRWFDKQSTNYGHCEI", 20))
	rootHash := hashid.Of(root)

	bytesOf := map[hashid.Hash32][]byte{rootHash: root}
	parentOf := map[hashid.Hash32]hashid.Hash32{}

	prev := rootHash
	var last hashid.Hash32
	for i := 0; i < 4; i++ { // builds a chain of depth 4, exceeding MaxChainDepth=3
		child := append([]byte(nil), root...)
		child[i] = byte('A' + i)
		h := hashid.Of(child)
		bytesOf[h] = child
		parentOf[h] = prev
		prev = h
		last = h
	}
	require.Equal(t, 4, ChainDepth(last, parentOf))

	resolve := func(h hashid.Hash32) ([]byte, error) { return bytesOf[h], nil }
	cfg := DefaultConfig()
	cfg.MinDeltaSize = 1

	compacted, err := CompactDeepChains(parentOf, MaxChainDepth, resolve, cfg)
	require.NoError(t, err)
	require.Contains(t, compacted, last)
	require.Equal(t, 1, ChainDepth(last, parentOf))
	require.Equal(t, rootHash, parentOf[last])

	newDelta := compacted[last]
	require.NoError(t, Verify(root, newDelta, bytesOf[last]))
}
