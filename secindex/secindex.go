// Package secindex implements the secondary indices component (C5):
// accession→hash and taxon→{hash} lookups, persisted in the kv engine's
// "indices" family. Both indices are rebuildable from scratch by scanning
// representations (see seqstore.RebuildIndex), matching the spec's
// "restorable from scratch" requirement.
package secindex

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/hashid"
	"github.com/talaria-db/sequoia/kv"
)

const (
	accessionPrefix = "acc:"
	taxonPrefix     = "tax:"
)

// accessionEntry is the persisted value for one accession key.
type accessionEntry struct {
	Hash    [hashid.Size]byte
	Sources []string
}

// AccessionIndex maps an accession string to the single canonical hash it
// was first observed on, plus the set of sources that have reported it.
// Per spec §4.3, inserting an existing accession must never change the
// hash it points to — only append a newly observed source.
type AccessionIndex struct {
	engine *kv.Engine
}

func NewAccessionIndex(engine *kv.Engine) *AccessionIndex {
	return &AccessionIndex{engine: engine}
}

func accessionKey(accession string) string {
	return accessionPrefix + accession
}

// Put records that accession was observed pointing at hash from source. If
// accession already maps to a different hash, the existing mapping wins
// (same accession across databases is assumed to be the same sequence) and
// only the source is appended.
func (a *AccessionIndex) Put(accession string, hash hashid.Hash32, source string) error {
	key := accessionKey(accession)
	raw, err := a.engine.Get(kv.Indices, key)
	if err != nil && errors.Cause(err) != kv.ErrNotFound {
		return errors.Wrapf(err, "secindex: read accession %q", accession)
	}
	var entry accessionEntry
	if err == nil {
		if decErr := cbor.Unmarshal(raw, &entry); decErr != nil {
			return errors.Wrapf(decErr, "secindex: decode accession %q", accession)
		}
		if !containsString(entry.Sources, source) {
			entry.Sources = append(entry.Sources, source)
		}
	} else {
		entry = accessionEntry{Hash: hash, Sources: []string{source}}
	}
	encoded, err := cbor.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "secindex: encode accession entry")
	}
	return a.engine.Put(kv.Indices, key, encoded)
}

// Get returns the hash and source list recorded for accession.
func (a *AccessionIndex) Get(accession string) (hashid.Hash32, []string, bool, error) {
	raw, err := a.engine.Get(kv.Indices, accessionKey(accession))
	if errors.Cause(err) == kv.ErrNotFound {
		return hashid.Hash32{}, nil, false, nil
	}
	if err != nil {
		return hashid.Hash32{}, nil, false, errors.Wrapf(err, "secindex: read accession %q", accession)
	}
	var entry accessionEntry
	if err := cbor.Unmarshal(raw, &entry); err != nil {
		return hashid.Hash32{}, nil, false, errors.Wrapf(err, "secindex: decode accession %q", accession)
	}
	return entry.Hash, entry.Sources, true, nil
}

// TaxonomyIndex maps a taxon id to the multiset of canonical hashes observed
// with that taxon. Duplicates are allowed; callers dedupe.
type TaxonomyIndex struct {
	engine *kv.Engine
}

func NewTaxonomyIndex(engine *kv.Engine) *TaxonomyIndex {
	return &TaxonomyIndex{engine: engine}
}

func taxonKey(taxon string) string {
	return taxonPrefix + taxon
}

// Add appends hash to the list recorded for taxon.
func (t *TaxonomyIndex) Add(taxon string, hash hashid.Hash32) error {
	key := taxonKey(taxon)
	hashes, err := t.Get(taxon)
	if err != nil {
		return err
	}
	hashes = append(hashes, hash)
	encoded, err := encodeHashList(hashes)
	if err != nil {
		return err
	}
	return t.engine.Put(kv.Indices, key, encoded)
}

// Get returns every hash recorded for taxon, in insertion order.
func (t *TaxonomyIndex) Get(taxon string) ([]hashid.Hash32, error) {
	raw, err := t.engine.Get(kv.Indices, taxonKey(taxon))
	if errors.Cause(err) == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "secindex: read taxon %q", taxon)
	}
	return decodeHashList(raw)
}

func encodeHashList(hashes []hashid.Hash32) ([]byte, error) {
	raw := make([][hashid.Size]byte, len(hashes))
	for i, h := range hashes {
		raw[i] = h
	}
	encoded, err := cbor.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "secindex: encode hash list")
	}
	return encoded, nil
}

func decodeHashList(raw []byte) ([]hashid.Hash32, error) {
	var decoded [][hashid.Size]byte
	if err := cbor.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "secindex: decode hash list")
	}
	out := make([]hashid.Hash32, len(decoded))
	for i, d := range decoded {
		out[i] = d
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Reset clears every accession/taxon key, used before RebuildIndex.
func Reset(engine *kv.Engine) error {
	for _, prefix := range []string{accessionPrefix, taxonPrefix} {
		keys, err := engine.ListKeys(kv.Indices, prefix)
		if err != nil {
			return errors.Wrap(err, "secindex: list keys for reset")
		}
		if err := engine.DeleteBatch(kv.Indices, keys); err != nil {
			return errors.Wrap(err, "secindex: clear keys")
		}
	}
	return nil
}
