// Package manifest implements the manifest data model and the TAL binary
// codec (components C6/C7): ChunkManifest, TemporalManifest,
// ReductionManifest, and their framed on-disk encoding. Grounded on
// original_source/talaria-herald/src/manifest/core.rs.
package manifest

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/talaria-db/sequoia/hashid"
)

// ChunkManifest is the lightweight per-chunk record the taxonomic chunker
// (C8) produces. Its ChunkHash is derived from CanonicalBytes, never stored
// independently of it.
type ChunkManifest struct {
	ChunkHash     hashid.Hash32   `cbor:"chunk_hash"`
	SequenceRefs  []hashid.Hash32 `cbor:"sequence_refs"`
	TaxonIDs      []string        `cbor:"taxon_ids"`
	SequenceCount int             `cbor:"sequence_count"`
	TotalSize     int64           `cbor:"total_size"`
}

// CanonicalBytes returns the deterministic serialization of the manifest's
// content (everything except ChunkHash itself) used to derive ChunkHash.
// The encoding uses a fixed field order, uvarint length prefixes and
// sorted taxon ids so that two runs
// packaging identical sequences in identical order produce byte-identical
// output, and therefore identical hashes (spec §4.5 determinism
// requirement).
func (c ChunkManifest) CanonicalBytes() []byte {
	var buf []byte
	buf = appendUvarint(buf, uint64(len(c.SequenceRefs)))
	for _, ref := range c.SequenceRefs {
		buf = append(buf, ref[:]...)
	}
	taxa := append([]string(nil), c.TaxonIDs...)
	sort.Strings(taxa)
	buf = appendUvarint(buf, uint64(len(taxa)))
	for _, t := range taxa {
		buf = appendUvarint(buf, uint64(len(t)))
		buf = append(buf, t...)
	}
	buf = appendUvarint(buf, uint64(c.SequenceCount))
	buf = appendUvarint(buf, uint64(c.TotalSize))
	return buf
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// WithHash returns c with ChunkHash set to hashid.Of(c.CanonicalBytes()).
func (c ChunkManifest) WithHash() ChunkManifest {
	c.ChunkHash = hashid.Of(c.CanonicalBytes())
	return c
}

// ChunkMetadata is the TemporalManifest's per-chunk index entry.
type ChunkMetadata struct {
	Hash            hashid.Hash32 `cbor:"hash"`
	TaxonIDs        []string      `cbor:"taxon_ids"`
	SequenceCount   int           `cbor:"sequence_count"`
	Size            int64         `cbor:"size"`
	CompressedSize  *int64        `cbor:"compressed_size,omitempty"`
}

// BiTemporalCoord pairs the sequence-data timestamp with the taxonomy
// timestamp it was classified against.
type BiTemporalCoord struct {
	SequenceTime time.Time `cbor:"sequence_time"`
	TaxonomyTime time.Time `cbor:"taxonomy_time"`
}

// TemporalManifest is the database-version root record (C7/C6).
type TemporalManifest struct {
	Version               string            `cbor:"version"`
	CreatedAt             time.Time         `cbor:"created_at"`
	SequenceVersion       string            `cbor:"sequence_version"`
	TaxonomyVersion       string            `cbor:"taxonomy_version"`
	BiTemporalCoord       *BiTemporalCoord  `cbor:"bi_temporal_coord,omitempty"`
	TaxonomyRoot          hashid.Hash32     `cbor:"taxonomy_root"`
	SequenceRoot          hashid.Hash32     `cbor:"sequence_root"`
	TaxonomyManifestHash  hashid.Hash32     `cbor:"taxonomy_manifest_hash"`
	TaxonomyDumpVersion   string            `cbor:"taxonomy_dump_version,omitempty"`
	SourceDatabase        string            `cbor:"source_database,omitempty"`
	ChunkIndex            []ChunkMetadata   `cbor:"chunk_index"`
	Discrepancies         []string          `cbor:"discrepancies,omitempty"`
	ETag                  string            `cbor:"etag"`
	PreviousVersion       *string           `cbor:"previous_version,omitempty"`
}

// ReductionParameters are the selector/delta-encoder knobs a reduction
// profile was built with.
type ReductionParameters struct {
	TargetRatio           float64 `cbor:"target_ratio"`
	TargetAligner         string  `cbor:"target_aligner,omitempty"`
	MinLength             int     `cbor:"min_length"`
	SimilarityThreshold   float64 `cbor:"similarity_threshold"`
	TaxonomyAware         bool    `cbor:"taxonomy_aware"`
	AlignSelect           bool    `cbor:"align_select"`
	MaxAlignLength        int     `cbor:"max_align_length"`
	NoDeltas              bool    `cbor:"no_deltas"`
}

// ReferenceChunk is one chunk selected as a delta-encoding reference.
type ReferenceChunk struct {
	ChunkHash        hashid.Hash32   `cbor:"chunk_hash"`
	SequenceIDs      []hashid.Hash32 `cbor:"sequence_ids"`
	Count            int             `cbor:"count"`
	UncompressedSize int64           `cbor:"uncompressed_size"`
	CompressedSize   int64           `cbor:"compressed_size"`
	TaxonIDs         []string        `cbor:"taxon_ids"`
}

// DeltaChunkRef is one chunk of delta-encoded children against a reference.
type DeltaChunkRef struct {
	ChunkHash          hashid.Hash32   `cbor:"chunk_hash"`
	ReferenceChunkHash hashid.Hash32   `cbor:"reference_chunk_hash"`
	ChildCount         int             `cbor:"child_count"`
	ChildIDs           []hashid.Hash32 `cbor:"child_ids"`
	Size               int64           `cbor:"size"`
	AverageDeltaOps    float64         `cbor:"average_delta_ops"`
}

// ReductionStatistics summarizes one reduction run.
type ReductionStatistics struct {
	OriginalSequenceCount int     `cbor:"original_sequence_count"`
	ReferenceSequenceCount int    `cbor:"reference_sequence_count"`
	ChildSequenceCount    int     `cbor:"child_sequence_count"`
	OriginalSizeBytes     int64   `cbor:"original_size_bytes"`
	ReducedSizeBytes      int64   `cbor:"reduced_size_bytes"`
	ReductionRatio        float64 `cbor:"reduction_ratio"`
	DeduplicationRatio    float64 `cbor:"deduplication_ratio"`
	// DeduplicationRatioIsApproximate marks DeduplicationRatio as not a true
	// ratio. reduce.Driver.Run sets it only when the input set is empty and
	// the ratio is reported as 0.
	DeduplicationRatioIsApproximate bool    `cbor:"deduplication_ratio_is_approximate"`
	ElapsedSeconds                  float64 `cbor:"elapsed_seconds"`
}

// ReductionManifest is a profile attached to a parent TemporalManifest.
type ReductionManifest struct {
	Profile             string               `cbor:"profile"`
	SourceManifest       hashid.Hash32        `cbor:"source_manifest"`
	SourceDatabase       string               `cbor:"source_database,omitempty"`
	Parameters           ReductionParameters  `cbor:"parameters"`
	ReferenceChunks       []ReferenceChunk     `cbor:"reference_chunks"`
	DeltaChunks           []DeltaChunkRef      `cbor:"delta_chunks"`
	Statistics            ReductionStatistics  `cbor:"statistics"`
	ReductionMerkleRoot   hashid.Hash32        `cbor:"reduction_merkle_root"`
	CreatedAt             time.Time            `cbor:"created_at"`
	Version               string               `cbor:"version"`
	PreviousVersion       *string              `cbor:"previous_version,omitempty"`
}
