// Package chunker implements the taxonomic chunker (C8): partitions a stream
// of sequences by taxon, greedily packs each partition into byte/count
// bounded chunks, and persists each resulting ChunkManifest as a
// content-addressed chunk. Grounded on the chunk-packaging logic in
// original_source/talaria-sequoia/src/storage/core.rs.
package chunker

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talaria-db/sequoia/bioheader"
	"github.com/talaria-db/sequoia/chunkstore"
	"github.com/talaria-db/sequoia/hashid"
	"github.com/talaria-db/sequoia/manifest"
	"github.com/talaria-db/sequoia/seqstore"
)

// unknownTaxon is the sentinel partition key for sequences with no
// extractable taxon id.
const unknownTaxon = "unknown"

// GroupingMode selects how sequences are bucketed before packing.
type GroupingMode int

const (
	// GroupByTaxon partitions by primary taxon id, falling back to the
	// unknown sentinel (the default per spec §4.5).
	GroupByTaxon GroupingMode = iota
	// GroupRoundRobin ignores taxon entirely and packs sequences in
	// arrival order into one rolling set of accumulators.
	GroupRoundRobin
)

// Config bounds how sequences are packed into chunks.
type Config struct {
	// TargetBytes is the accumulated-size threshold that finalizes a chunk.
	TargetBytes int64 `toml:"target_bytes" default:"67108864"`
	// MaxSequences is the sequence-count cap that finalizes a chunk, whichever
	// of the two bounds fires first.
	MaxSequences int          `toml:"max_sequences" default:"50000"`
	Grouping     GroupingMode `toml:"grouping"`
}

// DefaultConfig mirrors the original's default packaging bounds.
func DefaultConfig() Config {
	return Config{
		TargetBytes:  64 << 20,
		MaxSequences: 50_000,
		Grouping:     GroupByTaxon,
	}
}

// Input is one sequence awaiting canonicalization and packing.
type Input struct {
	Sequence []byte
	Header   string
	Source   string
}

// Chunker packages canonicalized sequences into taxon-partitioned chunks.
type Chunker struct {
	seqs   *seqstore.Store
	chunks *chunkstore.Store
	cfg    Config
	log    *zap.Logger
}

// New constructs a Chunker over seqs (for canonicalization) and chunks (the
// C4 store that persists the resulting ChunkManifests).
func New(seqs *seqstore.Store, chunks *chunkstore.Store, cfg Config, log *zap.Logger) *Chunker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chunker{seqs: seqs, chunks: chunks, cfg: cfg, log: log}
}

type accumulator struct {
	hashes   []hashid.Hash32
	taxa     map[string]bool
	byteSize int64
}

func newAccumulator() *accumulator {
	return &accumulator{taxa: map[string]bool{}}
}

func (a *accumulator) add(h hashid.Hash32, taxon string, size int) {
	a.hashes = append(a.hashes, h)
	if taxon != "" {
		a.taxa[taxon] = true
	}
	a.byteSize += int64(size)
}

func (a *accumulator) full(cfg Config) bool {
	return a.byteSize >= cfg.TargetBytes || (cfg.MaxSequences > 0 && len(a.hashes) >= cfg.MaxSequences)
}

func (a *accumulator) empty() bool {
	return len(a.hashes) == 0
}

func (a *accumulator) sortedTaxa() []string {
	out := make([]string, 0, len(a.taxa))
	for t := range a.taxa {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Process canonicalizes every input via C3, partitions the resulting hashes
// per the configured grouping mode, greedily packs each partition, and
// persists every finalized chunk's manifest to C4. It returns the finalized
// ChunkManifests in the order they were written.
func (c *Chunker) Process(inputs []Input) ([]manifest.ChunkManifest, error) {
	partitionOrder := []string{}
	partitions := map[string]*accumulator{}
	var results []manifest.ChunkManifest

	finalize := func(acc *accumulator) error {
		if acc.empty() {
			return nil
		}
		cm := manifest.ChunkManifest{
			SequenceRefs:  acc.hashes,
			TaxonIDs:      acc.sortedTaxa(),
			SequenceCount: len(acc.hashes),
			TotalSize:     acc.byteSize,
		}
		canonical := cm.CanonicalBytes()
		storedHash, err := c.chunks.Store(canonical, true)
		if err != nil {
			return errors.Wrap(err, "chunker: persist chunk manifest")
		}
		cm.ChunkHash = storedHash
		results = append(results, cm)
		return nil
	}

	for _, in := range inputs {
		h, err := c.seqs.Store(in.Sequence, in.Header, in.Source)
		if err != nil {
			return nil, errors.Wrap(err, "chunker: canonicalize sequence")
		}

		key := ""
		taxon := ""
		if c.cfg.Grouping == GroupByTaxon {
			key = unknownTaxon
			if t, ok := bioheader.ExtractTaxon(in.Header); ok {
				taxon = t
				key = t
			}
		}

		acc, ok := partitions[key]
		if !ok {
			acc = newAccumulator()
			partitions[key] = acc
			partitionOrder = append(partitionOrder, key)
		}
		acc.add(h, taxon, len(in.Sequence))

		if acc.full(c.cfg) {
			if err := finalize(acc); err != nil {
				return nil, err
			}
			partitions[key] = newAccumulator()
		}
	}

	for _, key := range partitionOrder {
		if err := finalize(partitions[key]); err != nil {
			return nil, err
		}
	}

	return results, nil
}
