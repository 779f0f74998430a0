package chunker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talaria-db/sequoia/chunkstore"
	"github.com/talaria-db/sequoia/kv"
	"github.com/talaria-db/sequoia/manifest"
	"github.com/talaria-db/sequoia/seqstore"
)

func newChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	e, err := kv.Open(kv.Config{Path: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	seqs := seqstore.New(e, nil)
	chunks := chunkstore.New(e, nil)
	return New(seqs, chunks, cfg, nil)
}

func TestProcessPartitionsByTaxonAndRespectsSequenceCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSequences = 2
	cfg.TargetBytes = 1 << 30
	c := newChunker(t, cfg)

	inputs := []Input{
		{Sequence: []byte("AAAA"), Header: ">sp|P1|HUMAN OX=9606", Source: "s"},
		{Sequence: []byte("CCCC"), Header: ">sp|P2|HUMAN OX=9606", Source: "s"},
		{Sequence: []byte("GGGG"), Header: ">sp|P3|HUMAN OX=9606", Source: "s"},
		{Sequence: []byte("TTTT"), Header: ">sp|P4|MOUSE OX=10090", Source: "s"},
	}

	chunks, err := c.Process(inputs)
	require.NoError(t, err)

	// human partition (3 seqs, cap 2) splits into two chunks; mouse (1 seq)
	// is its own chunk.
	require.Len(t, chunks, 3)

	var humanTotal, mouseTotal int
	for _, cm := range chunks {
		for _, t := range cm.TaxonIDs {
			if t == "9606" {
				humanTotal += cm.SequenceCount
			}
			if t == "10090" {
				mouseTotal += cm.SequenceCount
			}
		}
	}
	require.Equal(t, 3, humanTotal)
	require.Equal(t, 1, mouseTotal)
}

func TestProcessUnknownTaxonSentinel(t *testing.T) {
	c := newChunker(t, DefaultConfig())
	inputs := []Input{
		{Sequence: []byte("MVALPRWFDK"), Header: ">no taxon info here", Source: "s"},
	}
	chunks, err := c.Process(inputs)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Empty(t, chunks[0].TaxonIDs, "unknown-taxon partition records no taxon id on the manifest")
}

func TestChunkHashIsDeterministicAcrossRuns(t *testing.T) {
	cfg := DefaultConfig()
	inputs := []Input{
		{Sequence: []byte("AAAA"), Header: ">sp|P1|HUMAN OX=9606", Source: "s"},
		{Sequence: []byte("CCCC"), Header: ">sp|P2|HUMAN OX=9606", Source: "s"},
	}

	c1 := newChunker(t, cfg)
	chunks1, err := c1.Process(inputs)
	require.NoError(t, err)

	c2 := newChunker(t, cfg)
	chunks2, err := c2.Process(inputs)
	require.NoError(t, err)

	require.Equal(t, chunks1[0].ChunkHash, chunks2[0].ChunkHash)
}

func TestFinalizedManifestIsRetrievableFromChunkStore(t *testing.T) {
	e, err := kv.Open(kv.Config{Path: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	seqs := seqstore.New(e, nil)
	chunks := chunkstore.New(e, nil)
	c := New(seqs, chunks, DefaultConfig(), nil)

	inputs := []Input{{Sequence: []byte("MVALPRWFDK"), Header: ">sp|P1|HUMAN OX=9606", Source: "s"}}
	result, err := c.Process(inputs)
	require.NoError(t, err)
	require.Len(t, result, 1)

	raw, err := chunks.Get(result[0].ChunkHash)
	require.NoError(t, err)

	decoded, err := manifest.DecodeChunkManifest(raw)
	require.NoError(t, err)
	require.Equal(t, result[0].SequenceRefs, decoded.SequenceRefs)
	require.Equal(t, result[0].ChunkHash, decoded.ChunkHash)
}

func TestProcessRoundRobinIgnoresTaxon(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grouping = GroupRoundRobin
	cfg.MaxSequences = 10
	c := newChunker(t, cfg)

	var inputs []Input
	for i := 0; i < 5; i++ {
		inputs = append(inputs, Input{
			Sequence: []byte(fmt.Sprintf("SEQ%d", i)),
			Header:   fmt.Sprintf(">sp|P%d|X OX=%d", i, i+1),
			Source:   "s",
		})
	}
	chunks, err := c.Process(inputs)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Empty(t, chunks[0].TaxonIDs, "round-robin grouping never records taxon ids")
	require.Equal(t, 5, chunks[0].SequenceCount)
}
