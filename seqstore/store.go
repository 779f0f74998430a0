package seqstore

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talaria-db/sequoia/bioheader"
	"github.com/talaria-db/sequoia/hashid"
	"github.com/talaria-db/sequoia/kv"
	"github.com/talaria-db/sequoia/secindex"
)

// ErrNoRepresentation is returned by GetFasta when a hash has no recorded
// representation to render a header from.
var ErrNoRepresentation = errors.New("seqstore: no representation recorded for hash")

// Store is the canonical sequence store (C3).
type Store struct {
	engine *kv.Engine
	acc    *secindex.AccessionIndex
	tax    *secindex.TaxonomyIndex
	log    *zap.Logger
}

// New constructs a Store over engine.
func New(engine *kv.Engine, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		engine: engine,
		acc:    secindex.NewAccessionIndex(engine),
		tax:    secindex.NewTaxonomyIndex(engine),
		log:    log,
	}
}

func representationsKey(h hashid.Hash32) string { return h.String() }

func (s *Store) loadCanonical(h hashid.Hash32) (*CanonicalSequence, error) {
	raw, err := s.engine.Get(kv.Sequences, h.String())
	if err != nil {
		return nil, err
	}
	var cs CanonicalSequence
	if err := cbor.Unmarshal(raw, &cs); err != nil {
		return nil, errors.Wrapf(err, "seqstore: decode canonical %s", h)
	}
	return &cs, nil
}

func (s *Store) loadRepresentations(h hashid.Hash32) ([]Representation, error) {
	raw, err := s.engine.Get(kv.Representations, representationsKey(h))
	if errors.Cause(err) == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "seqstore: load representations %s", h)
	}
	var reps []Representation
	if err := cbor.Unmarshal(raw, &reps); err != nil {
		return nil, errors.Wrapf(err, "seqstore: decode representations %s", h)
	}
	return reps, nil
}

func buildRepresentation(header, source string) Representation {
	return Representation{
		Source:      source,
		Header:      header,
		Accessions:  bioheader.ExtractAccessions(header),
		Description: bioheader.ExtractDescription(header),
		TaxonID:     firstTaxon(header),
		Metadata:    bioheader.ExtractMetadata(header),
		ObservedAt:  time.Now().UTC(),
	}
}

func firstTaxon(header string) string {
	if t, ok := bioheader.ExtractTaxon(header); ok {
		return t
	}
	return ""
}

func hasRepresentation(reps []Representation, source, header string) bool {
	for _, r := range reps {
		if r.Source == source && r.Header == header {
			return true
		}
	}
	return false
}

// Store records one (sequence, header, source) triple, deduplicating by the
// sequence's content hash. It returns hashid.Of(sequence) unconditionally
// (spec invariant 1), regardless of header/source.
func (s *Store) Store(sequence []byte, header, source string) (hashid.Hash32, error) {
	h := hashid.Of(sequence)
	now := time.Now().UTC()

	exists, err := s.engine.Exists(kv.Sequences, h.String())
	if err != nil {
		return h, errors.Wrap(err, "seqstore: check existence")
	}

	if !exists {
		cs := CanonicalSequence{
			Hash:      h,
			Sequence:  sequence,
			Length:    len(sequence),
			Type:      bioheader.DetectSequenceType(sequence),
			Checksum:  xxhash.Sum64(sequence),
			FirstSeen: now,
			LastSeen:  now,
		}
		encoded, err := cbor.Marshal(cs)
		if err != nil {
			return h, errors.Wrap(err, "seqstore: encode canonical")
		}
		if err := s.engine.Put(kv.Sequences, h.String(), encoded); err != nil {
			return h, errors.Wrap(err, "seqstore: store canonical")
		}
	} else {
		if err := s.touchLastSeen(h, now); err != nil {
			return h, err
		}
	}

	if err := s.appendRepresentation(h, header, source); err != nil {
		return h, err
	}
	return h, nil
}

func (s *Store) touchLastSeen(h hashid.Hash32, now time.Time) error {
	cs, err := s.loadCanonical(h)
	if err != nil {
		return errors.Wrap(err, "seqstore: reload canonical to touch last_seen")
	}
	cs.LastSeen = now
	encoded, err := cbor.Marshal(*cs)
	if err != nil {
		return errors.Wrap(err, "seqstore: re-encode canonical")
	}
	return s.engine.Put(kv.Sequences, h.String(), encoded)
}

func (s *Store) appendRepresentation(h hashid.Hash32, header, source string) error {
	reps, err := s.loadRepresentations(h)
	if err != nil {
		return err
	}
	if hasRepresentation(reps, source, header) {
		return nil
	}
	rep := buildRepresentation(header, source)
	reps = append(reps, rep)
	encoded, err := cbor.Marshal(reps)
	if err != nil {
		return errors.Wrap(err, "seqstore: encode representations")
	}
	if err := s.engine.Put(kv.Representations, representationsKey(h), encoded); err != nil {
		return errors.Wrap(err, "seqstore: store representations")
	}

	for _, acc := range rep.Accessions {
		if err := s.acc.Put(acc, h, source); err != nil {
			return errors.Wrap(err, "seqstore: update accession index")
		}
	}
	if rep.TaxonID != "" {
		if err := s.tax.Add(rep.TaxonID, h); err != nil {
			return errors.Wrap(err, "seqstore: update taxonomy index")
		}
	}
	return nil
}

// StoreBatch stores every item, computing hashes in parallel via a bounded
// worker pool before a per-item existence check decides which canonicals
// are novel, and a single write-batch persists them.
func (s *Store) StoreBatch(items []Item) ([]StoreResult, error) {
	results := make([]StoreResult, len(items))
	hashes := make([]hashid.Hash32, len(items))

	g := new(errgroup.Group)
	g.SetLimit(numWorkers())
	for i := range items {
		i := i
		g.Go(func() error {
			hashes[i] = hashid.Of(items[i].Sequence)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "seqstore: parallel hash computation")
	}

	existing := make([]bool, len(items))
	for i, h := range hashes {
		ok, err := s.engine.Exists(kv.Sequences, h.String())
		if err != nil {
			return nil, errors.Wrap(err, "seqstore: batch existence check")
		}
		existing[i] = ok
	}

	now := time.Now().UTC()
	toWrite := map[string][]byte{}
	for i, item := range items {
		if existing[i] {
			continue
		}
		cs := CanonicalSequence{
			Hash:      hashes[i],
			Sequence:  item.Sequence,
			Length:    len(item.Sequence),
			Type:      bioheader.DetectSequenceType(item.Sequence),
			Checksum:  xxhash.Sum64(item.Sequence),
			FirstSeen: now,
			LastSeen:  now,
		}
		encoded, err := cbor.Marshal(cs)
		if err != nil {
			return nil, errors.Wrap(err, "seqstore: encode canonical for batch")
		}
		toWrite[hashes[i].String()] = encoded
	}
	if err := s.engine.BatchPut(kv.Sequences, toWrite); err != nil {
		return nil, errors.Wrap(err, "seqstore: persist batch canonicals")
	}

	// Group items by hash and append their representations one hash at a
	// time; each item is still its own sequential read-modify-write of that
	// hash's representations list.
	perHash := map[hashid.Hash32][]int{}
	for i, h := range hashes {
		perHash[h] = append(perHash[h], i)
	}
	for h, idxs := range perHash {
		for _, i := range idxs {
			if err := s.appendRepresentation(h, items[i].Header, items[i].Source); err != nil {
				return nil, err
			}
		}
	}

	for i, h := range hashes {
		results[i] = StoreResult{Hash: h, IsNew: !existing[i]}
	}
	return results, nil
}

func numWorkers() int {
	return 8
}

// GetFasta renders ">header\nsequence" for hash, preferring a representation
// from preferredSource when present, else the first recorded representation.
func (s *Store) GetFasta(h hashid.Hash32, preferredSource string) (string, error) {
	cs, err := s.loadCanonical(h)
	if err != nil {
		if errors.Cause(err) == kv.ErrNotFound {
			return "", errors.Wrapf(kv.ErrNotFound, "seqstore: no canonical sequence %s", h)
		}
		return "", err
	}
	reps, err := s.loadRepresentations(h)
	if err != nil {
		return "", err
	}
	if len(reps) == 0 {
		return "", errors.Wrapf(ErrNoRepresentation, "hash %s", h)
	}
	chosen := reps[0]
	if preferredSource != "" {
		for _, r := range reps {
			if r.Source == preferredSource {
				chosen = r
				break
			}
		}
	}
	header := strings.TrimPrefix(chosen.Header, ">")
	return ">" + header + "\n" + string(cs.Sequence), nil
}

// FindByAccession resolves an accession string to the canonical hash that
// was first observed carrying it.
func (s *Store) FindByAccession(accession string) (hashid.Hash32, bool, error) {
	h, _, ok, err := s.acc.Get(accession)
	return h, ok, err
}

// FindByTaxon returns every canonical hash observed with taxon (may contain
// duplicates; see secindex.TaxonomyIndex).
func (s *Store) FindByTaxon(taxon string) ([]hashid.Hash32, error) {
	return s.tax.Get(taxon)
}

// RebuildIndex recomputes the accession and taxonomy indices by scanning
// every stored representations record.
func (s *Store) RebuildIndex() error {
	if err := secindex.Reset(s.engine); err != nil {
		return err
	}
	keys, err := s.engine.ListKeys(kv.Representations, "")
	if err != nil {
		return errors.Wrap(err, "seqstore: list representations for rebuild")
	}
	for _, key := range keys {
		h, err := hashid.Parse(key)
		if err != nil {
			return errors.Wrapf(err, "seqstore: malformed representations key %q", key)
		}
		reps, err := s.loadRepresentations(h)
		if err != nil {
			return err
		}
		for _, rep := range reps {
			for _, acc := range rep.Accessions {
				if err := s.acc.Put(acc, h, rep.Source); err != nil {
					return err
				}
			}
			if rep.TaxonID != "" {
				if err := s.tax.Add(rep.TaxonID, h); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
