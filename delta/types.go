// Package delta implements the delta encoder (C10): reference-relative
// Copy/Insert/Substitute encoding of child sequences, with chain-depth
// bounding and compaction. Grounded on the delta op search and chain
// management in original_source/talaria-sequoia/src/storage/core.rs.
package delta

import "github.com/talaria-db/sequoia/hashid"

// OpKind discriminates a DeltaOp's meaning.
type OpKind int

const (
	OpCopy OpKind = iota
	OpInsert
	OpSubstitute
)

// Op is one encoded instruction: Copy replays ref[RefOffset:RefOffset+Len];
// Insert appends Bytes verbatim; Substitute appends Bytes in place of the
// reference's bytes at RefOffset (semantically identical to Insert on
// reconstruction, but records the reference alignment point for callers
// that want to reason about where sequences diverge).
type Op struct {
	Kind      OpKind
	RefOffset int
	Len       int
	Bytes     []byte
}

// Classification marks whether a child was delta-encoded or stored whole.
type Classification struct {
	Full  bool
	Depth int
}

// ChildDelta is the encoded result for one child against one reference.
type ChildDelta struct {
	ChildID        hashid.Hash32
	ReferenceHash  hashid.Hash32
	Ops            []Op
	Classification Classification
	EncodedSize    int
}

// Config mirrors the spec's delta-encoder knobs.
type Config struct {
	MinDeltaSize            int     `toml:"min_delta_size" default:"1024"`
	MaxDeltaSize            int     `toml:"max_delta_size" default:"104857600"`
	CompressionThreshold    float64 `toml:"compression_threshold" default:"0.8"`
	MinSimilarityThreshold  float64 `toml:"min_similarity_threshold" default:"0.5"`
	TargetSequencesPerChunk int     `toml:"target_sequences_per_chunk" default:"1000"`
	MaxDeltaOpsThreshold    int     `toml:"max_delta_ops_threshold" default:"10000"`
	EnableCaching           bool    `toml:"enable_caching" default:"true"`
	NoDeltas                bool    `toml:"no_deltas"`
	MaxAlignLength          int     `toml:"max_align_length"`
}

// DefaultConfig mirrors the original's tuning defaults.
func DefaultConfig() Config {
	return Config{
		MinDeltaSize:            1024,
		MaxDeltaSize:            100 * 1024 * 1024,
		CompressionThreshold:    0.8,
		MinSimilarityThreshold:  0.5,
		TargetSequencesPerChunk: 1000,
		MaxDeltaOpsThreshold:    10_000,
		EnableCaching:           true,
		MaxAlignLength:          0, // 0 = unbounded
	}
}

// MaxChainDepth is the transitive delta-chain bound (spec §4.7).
const MaxChainDepth = 3

// kmerSize is the anchor length the greedy matcher indexes on.
const kmerSize = 12
