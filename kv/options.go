package kv

// FamilyOptions tunes one column family, mirroring the per-family knobs the
// original RocksDB backend set (write buffer/cache sizes, compression,
// filter type). bbolt itself has no compression or filter support, so these
// knobs are applied in the Engine layer: Compress controls whether values are
// zstd-framed before being written to the bucket, and FilterBitsPerKey seeds
// an in-memory bloom filter consulted before every point lookup.
type FamilyOptions struct {
	// Compress zstd-compresses values written to this family.
	Compress bool
	// CompressionLevel is the zstd level used when Compress is true.
	CompressionLevel int
	// FilterBitsPerKey sizes the family's in-memory bloom filter. Zero
	// disables the filter for that family.
	FilterBitsPerKey float64
	// Ribbon marks a family as ribbon-style. It is a label only: the Engine
	// does not read it, and the family's filter is the same bloom filter as
	// any other, sized from FilterBitsPerKey alone (see DESIGN.md).
	Ribbon bool
	// BlockCacheMB is a per-family cache hint. The Engine does not read it;
	// the shared LRU read cache is sized from Config.BlockCacheMB only.
	BlockCacheMB int
}

// DefaultFamilyOptions returns the per-family tuning table from the spec:
// sequences gets zstd-3 plus a 15 bits/key bloom filter, manifests gets no
// kv-layer compression and a 15 bits/key bloom filter marked Ribbon (dedup
// is point-lookup heavy), indices gets zstd-3 with a larger cache hint.
func DefaultFamilyOptions() map[string]FamilyOptions {
	return map[string]FamilyOptions{
		Default: {},
		Sequences: {
			Compress:         true,
			CompressionLevel: 3,
			FilterBitsPerKey: 15,
		},
		Representations: {
			Compress:         true,
			CompressionLevel: 3,
		},
		Manifests: {
			// The chunk store (C4) and manifest codec (C7) manage their own
			// compression framing explicitly (the spec's store(data,
			// compress=bool) contract), so the kv layer leaves values in this
			// family untouched and contributes only the filter tier.
			Compress:         false,
			FilterBitsPerKey: 15,
			Ribbon:           true,
		},
		Indices: {
			Compress:         true,
			CompressionLevel: 3,
			BlockCacheMB:     512,
		},
		Merkle:   {},
		Temporal: {},
	}
}

// Config is the engine-wide storage configuration, populated from the
// ambient config.Config (TOML + creasty/defaults) at process wiring time.
type Config struct {
	// Path is the directory holding the bbolt data file.
	Path string `toml:"path"`
	// BlockCacheMB caps the Engine's shared LRU read cache.
	BlockCacheMB int `toml:"block_cache_mb" default:"2048"`
	// BulkImportMode mirrors TALARIA_BULK_IMPORT_MODE: when set, writes
	// skip fsync (bbolt's closest analog to WAL-off/sync-off) until an
	// explicit Flush.
	BulkImportMode bool `toml:"-"`
}
