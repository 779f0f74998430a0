// Package seqstore implements the canonical sequence store (C3): dedup by
// content hash, append-only per-source representations, and the accession/
// taxon secondary indices. Grounded on
// original_source/talaria-sequoia/src/storage/sequence.rs.
package seqstore

import (
	"time"

	"github.com/talaria-db/sequoia/bioheader"
	"github.com/talaria-db/sequoia/hashid"
)

// CanonicalSequence is the dedup unit: its Hash is a pure function of
// Sequence and must never be influenced by any metadata.
type CanonicalSequence struct {
	Hash      hashid.Hash32        `cbor:"hash"`
	Sequence  []byte                `cbor:"sequence"`
	Length    int                   `cbor:"length"`
	Type      bioheader.SequenceType `cbor:"type"`
	Checksum  uint64                `cbor:"checksum"`
	FirstSeen time.Time             `cbor:"first_seen"`
	LastSeen  time.Time             `cbor:"last_seen"`
}

// Representation is a (source, header) witness that some database observed
// a canonical sequence.
type Representation struct {
	Source      string            `cbor:"source"`
	Header      string            `cbor:"header"`
	Accessions  []string          `cbor:"accessions"`
	Description string            `cbor:"description"`
	TaxonID     string            `cbor:"taxon_id,omitempty"`
	Metadata    map[string]string `cbor:"metadata,omitempty"`
	ObservedAt  time.Time         `cbor:"observed_at"`
}

// Item is one (sequence, header, source) input to Store/StoreBatch.
type Item struct {
	Sequence []byte
	Header   string
	Source   string
}

// StoreResult is StoreBatch's per-item outcome.
type StoreResult struct {
	Hash  hashid.Hash32
	IsNew bool
	Err   error
}
