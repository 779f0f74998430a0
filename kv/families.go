// Package kv implements the engine's embedded LSM-style key-value backend
// (component C2). The underlying storage is go.etcd.io/bbolt, a pure-Go
// ordered B+tree. bbolt has no column families, so each family is modeled as
// its own top-level bucket; it has no built-in compression or bloom/ribbon
// filters, so both are layered on top per FamilyOptions (see options.go) —
// documented deviations from the RocksDB-shaped contract in DESIGN.md.
package kv

// Family names, matching the original backend's column families one for
// one (see DESIGN.md: grounded on rocksdb_backend.rs cf_names).
const (
	Default         = "default"
	Sequences       = "sequences"
	Representations = "representations"
	Manifests       = "manifests"
	Indices         = "indices"
	Merkle          = "merkle"
	Temporal        = "temporal"
)

// AllFamilies lists every bucket the engine creates on open.
var AllFamilies = []string{
	Default,
	Sequences,
	Representations,
	Manifests,
	Indices,
	Merkle,
	Temporal,
}
