package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talaria-db/sequoia/hashid"
	"github.com/talaria-db/sequoia/merkle"
)

func sampleChunks() []ChunkMetadata {
	return []ChunkMetadata{
		{Hash: hashid.Of([]byte("chunk-a")), SequenceCount: 3, Size: 120},
		{Hash: hashid.Of([]byte("chunk-b")), SequenceCount: 5, Size: 240},
		{Hash: hashid.Of([]byte("chunk-c")), SequenceCount: 1, Size: 40},
	}
}

func TestSequenceRootMatchesMerklePackage(t *testing.T) {
	chunks := sampleChunks()
	leaves := []hashid.Hash32{chunks[0].Hash, chunks[1].Hash, chunks[2].Hash}
	want := merkle.BuildFromItems(leaves).RootHash()
	got := SequenceRoot(chunks)
	require.Equal(t, want, got)
}

func TestBuildTemporalManifestETagIsDeterministic(t *testing.T) {
	chunks := sampleChunks()
	taxRoot := hashid.Of([]byte("taxonomy-dump-v1"))
	taxManifest := hashid.Of([]byte("taxonomy-manifest"))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m1 := BuildTemporalManifest("v1", "seq-v1", "tax-v1", taxRoot, taxManifest, chunks, nil, now)
	m2 := BuildTemporalManifest("v1", "seq-v1", "tax-v1", taxRoot, taxManifest, chunks, nil, now)

	require.Equal(t, m1.ETag, m2.ETag)
	require.Len(t, m1.ETag, 16)
	require.Equal(t, m1.SequenceRoot, SequenceRoot(chunks))
}

func TestChunkManifestCanonicalBytesIsOrderStableOnTaxa(t *testing.T) {
	base := ChunkManifest{
		SequenceRefs:  []hashid.Hash32{hashid.Of([]byte("s1")), hashid.Of([]byte("s2"))},
		SequenceCount: 2,
		TotalSize:     99,
	}
	a := base
	a.TaxonIDs = []string{"9606", "10090"}
	b := base
	b.TaxonIDs = []string{"10090", "9606"}

	require.Equal(t, a.WithHash().ChunkHash, b.WithHash().ChunkHash,
		"taxon id order must not affect the derived chunk hash")
}

func TestChunkManifestHashChangesWithContent(t *testing.T) {
	a := ChunkManifest{SequenceRefs: []hashid.Hash32{hashid.Of([]byte("s1"))}, SequenceCount: 1, TotalSize: 10}
	b := ChunkManifest{SequenceRefs: []hashid.Hash32{hashid.Of([]byte("s2"))}, SequenceCount: 1, TotalSize: 10}
	require.NotEqual(t, a.WithHash().ChunkHash, b.WithHash().ChunkHash)
}

func TestWriteReadRoundTripTALFrame(t *testing.T) {
	os.Unsetenv(jsonFormatEnv)
	chunks := sampleChunks()
	m := BuildTemporalManifest("v1", "seq-v1", "tax-v1",
		hashid.Of([]byte("tax")), hashid.Of([]byte("taxm")), chunks, nil,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	path := filepath.Join(t.TempDir(), "manifest.tal")
	require.NoError(t, Write(path, &m))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, magic, raw[:len(magic)])

	var got TemporalManifest
	require.NoError(t, Read(path, &got))
	require.Equal(t, m.ETag, got.ETag)
	require.Equal(t, m.SequenceRoot, got.SequenceRoot)
	require.Len(t, got.ChunkIndex, 3)
}

func TestWriteReadRoundTripJSONFallback(t *testing.T) {
	t.Setenv(jsonFormatEnv, "true")
	chunks := sampleChunks()
	m := BuildTemporalManifest("v2", "seq-v2", "tax-v2",
		hashid.Of([]byte("tax2")), hashid.Of([]byte("taxm2")), chunks, nil,
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, Write(path, &m))

	var got TemporalManifest
	require.NoError(t, Read(path, &got))
	require.Equal(t, m.ETag, got.ETag)
}

func TestDiffManifestsDetectsAddedRemovedAndTaxonomyChange(t *testing.T) {
	chunks := sampleChunks()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := BuildTemporalManifest("v1", "seq-v1", "tax-v1",
		hashid.Of([]byte("tax1")), hashid.Of([]byte("taxm1")), chunks[:2], nil, now)

	nextChunks := []ChunkMetadata{chunks[1], chunks[2]}
	prevVersion := prev.Version
	next := BuildTemporalManifest("v2", "seq-v2", "tax-v2",
		hashid.Of([]byte("tax2")), hashid.Of([]byte("taxm2")), nextChunks, &prevVersion, now)

	d := DiffManifests(prev, next)
	require.Equal(t, []hashid.Hash32{chunks[2].Hash}, d.Added)
	require.Equal(t, []hashid.Hash32{chunks[0].Hash}, d.Removed)
	require.Equal(t, []hashid.Hash32{chunks[1].Hash}, d.Unchanged)
	require.True(t, d.TaxonomyChanged)
}

func TestDecodeChunkManifestRoundTripsAndReproducesHash(t *testing.T) {
	cm := ChunkManifest{
		SequenceRefs:  []hashid.Hash32{hashid.Of([]byte("s1")), hashid.Of([]byte("s2"))},
		TaxonIDs:      []string{"9606", "10090"},
		SequenceCount: 2,
		TotalSize:     321,
	}
	canonical := cm.CanonicalBytes()

	decoded, err := DecodeChunkManifest(canonical)
	require.NoError(t, err)
	require.Equal(t, cm.SequenceRefs, decoded.SequenceRefs)
	require.Equal(t, []string{"10090", "9606"}, decoded.TaxonIDs)
	require.Equal(t, cm.SequenceCount, decoded.SequenceCount)
	require.Equal(t, cm.TotalSize, decoded.TotalSize)
	require.Equal(t, hashid.Of(canonical), decoded.ChunkHash)
	require.Equal(t, cm.WithHash().ChunkHash, decoded.ChunkHash)
}

func TestDetectTaxonomyChangesFlagsUnknownTaxa(t *testing.T) {
	m := TemporalManifest{
		ChunkIndex: []ChunkMetadata{
			{Hash: hashid.Of([]byte("a")), TaxonIDs: []string{"9606"}},
			{Hash: hashid.Of([]byte("b")), TaxonIDs: []string{"10090", "0"}},
		},
	}
	known := map[string]bool{"9606": true, "10090": true}
	stale := DetectTaxonomyChanges(m, func(id string) bool { return known[id] })
	require.Equal(t, []string{"0"}, stale)
}
