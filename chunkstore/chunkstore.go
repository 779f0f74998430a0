// Package chunkstore implements the content-addressed chunk store (C4):
// compressed byte payloads keyed by hash, with a three-tier existence check
// (in-memory bloom, kv-layer filter, point lookup) and batch store/remove.
// Grounded on store_chunk/get_chunk/chunk_exists_fast/garbage_collect in
// original_source/talaria-sequoia/src/storage/core.rs.
package chunkstore

import (
	"sync"

	"github.com/dolthub/gozstd"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talaria-db/sequoia/bloom"
	"github.com/talaria-db/sequoia/hashid"
	"github.com/talaria-db/sequoia/kv"
)

const (
	flagRaw        byte = 0
	flagCompressed byte = 1

	// expectedChunks sizes the tier-1 bloom filter once at construction.
	// bloom.Filter has no dynamic resize: past this capacity its false
	// positive rate rises, but correctness is unaffected since a bloom hit
	// only gates an authoritative kv lookup.
	expectedChunks = 1 << 16
	bloomBitsPerKey = 15
)

// VerificationError describes one chunk that failed VerifyAll.
type VerificationError struct {
	ChunkHash hashid.Hash32
	Kind      string // "hash_mismatch" or "read_error"
	Detail    string
}

// Store is the chunk store (C4).
type Store struct {
	engine *kv.Engine
	log    *zap.Logger

	bloomMu sync.RWMutex
	filter  *bloom.Filter
	count   int

	compressMu sync.Mutex
}

// New constructs a Store over engine.
func New(engine *kv.Engine, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		engine: engine,
		log:    log,
		filter: bloom.NewFromBitsPerKey(expectedChunks, bloomBitsPerKey),
	}
}

func (s *Store) noteInserted(h hashid.Hash32) {
	s.bloomMu.Lock()
	defer s.bloomMu.Unlock()
	s.filter.Add(h[:])
	s.count++
}

func (s *Store) mightContain(h hashid.Hash32) bool {
	s.bloomMu.RLock()
	defer s.bloomMu.RUnlock()
	return s.filter.MightContain(h[:])
}

func (s *Store) compress(data []byte) []byte {
	s.compressMu.Lock()
	out := gozstd.CompressLevel(nil, data, 3)
	s.compressMu.Unlock()
	return out
}

func frame(data []byte, compressed bool) []byte {
	flag := flagRaw
	payload := data
	if compressed {
		flag = flagCompressed
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, flag)
	out = append(out, payload...)
	return out
}

func unframe(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("chunkstore: empty stored chunk")
	}
	flag, payload := raw[0], raw[1:]
	switch flag {
	case flagRaw:
		return payload, nil
	case flagCompressed:
		out, err := gozstd.Decompress(nil, payload)
		if err != nil {
			return nil, errors.Wrap(err, "chunkstore: decompress chunk")
		}
		return out, nil
	default:
		return nil, errors.Errorf("chunkstore: unknown frame flag %d", flag)
	}
}

func chunkKey(h hashid.Hash32) string { return h.String() }

// Store computes hash = Hash32.of(data) and persists it if novel. The
// three-tier existence check (bloom, then kv) short-circuits the common
// dedup case without ever writing.
func (s *Store) Store(data []byte, compress bool) (hashid.Hash32, error) {
	h := hashid.Of(data)

	if exists, err := s.Has(h); err != nil {
		return h, err
	} else if exists {
		return h, nil
	}

	payload := data
	if compress {
		payload = s.compress(data)
	}
	if err := s.engine.Put(kv.Manifests, chunkKey(h), frame(payload, compress)); err != nil {
		return h, errors.Wrap(err, "chunkstore: store chunk")
	}
	s.noteInserted(h)
	return h, nil
}

// StoreBatch computes hashes for every chunk in parallel, then in normal
// mode screens novelty via bloom+multi-exists before writing only new
// entries in one batch; in bulk mode it skips all existence checks and
// writes everything (the caller asserts the inputs are net-new).
func (s *Store) StoreBatch(chunks [][]byte, compress bool, bulk bool) ([]hashid.Hash32, error) {
	hashes := make([]hashid.Hash32, len(chunks))
	g := new(errgroup.Group)
	g.SetLimit(8)
	for i := range chunks {
		i := i
		g.Go(func() error {
			hashes[i] = hashid.Of(chunks[i])
			return nil
		})
	}
	_ = g.Wait() // hash computation cannot fail

	novel := make([]bool, len(chunks))
	if bulk {
		for i := range novel {
			novel[i] = true
		}
	} else {
		for i, h := range hashes {
			exists, err := s.Has(h)
			if err != nil {
				return nil, err
			}
			novel[i] = !exists
		}
	}

	toWrite := map[string][]byte{}
	for i, data := range chunks {
		if !novel[i] {
			continue
		}
		payload := data
		if compress {
			payload = s.compress(data)
		}
		toWrite[chunkKey(hashes[i])] = frame(payload, compress)
	}
	if err := s.engine.BatchPut(kv.Manifests, toWrite); err != nil {
		return nil, errors.Wrap(err, "chunkstore: store batch")
	}
	for i, h := range hashes {
		if novel[i] {
			s.noteInserted(h)
		}
	}
	return hashes, nil
}

// Get loads and decompresses (if framed as compressed) the chunk at hash.
func (s *Store) Get(h hashid.Hash32) ([]byte, error) {
	raw, err := s.engine.Get(kv.Manifests, chunkKey(h))
	if errors.Cause(err) == kv.ErrNotFound {
		return nil, errors.Wrapf(kv.ErrNotFound, "chunkstore: chunk %s", h)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "chunkstore: get chunk %s", h)
	}
	return unframe(raw)
}

// Has performs the three-tier existence check: bloom (tier 1), then the kv
// engine's own filter+lookup (tiers 2/3).
func (s *Store) Has(h hashid.Hash32) (bool, error) {
	if !s.mightContain(h) {
		return false, nil
	}
	return s.engine.Exists(kv.Manifests, chunkKey(h))
}

// ListAll returns every stored chunk hash.
func (s *Store) ListAll() ([]hashid.Hash32, error) {
	keys, err := s.engine.ListKeys(kv.Manifests, "")
	if err != nil {
		return nil, errors.Wrap(err, "chunkstore: list all chunks")
	}
	out := make([]hashid.Hash32, 0, len(keys))
	for _, k := range keys {
		h, err := hashid.Parse(k)
		if err != nil {
			continue // non-chunk key sharing the manifests family namespace
		}
		out = append(out, h)
	}
	return out, nil
}

// SizeOf returns the logical (decompressed) byte size of a stored chunk.
func (s *Store) SizeOf(h hashid.Hash32) (int, bool, error) {
	data, err := s.Get(h)
	if errors.Cause(err) == kv.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return len(data), true, nil
}

// StoredSize returns the on-disk (framed, possibly compressed) byte size of
// a stored chunk, for callers reporting real storage footprint rather than
// logical payload size.
func (s *Store) StoredSize(h hashid.Hash32) (int, bool, error) {
	raw, err := s.engine.Get(kv.Manifests, chunkKey(h))
	if errors.Cause(err) == kv.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return len(raw), true, nil
}

// Remove deletes one chunk.
func (s *Store) Remove(h hashid.Hash32) error {
	return s.engine.Delete(kv.Manifests, chunkKey(h))
}

// RemoveBatch deletes every hash in hashes.
func (s *Store) RemoveBatch(hashes []hashid.Hash32) error {
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = chunkKey(h)
	}
	return s.engine.DeleteBatch(kv.Manifests, keys)
}

// VerifyAll reloads every stored chunk and recomputes its hash, reporting
// any mismatch or read failure.
func (s *Store) VerifyAll() ([]VerificationError, error) {
	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	var errs []VerificationError
	for _, h := range all {
		data, err := s.Get(h)
		if err != nil {
			errs = append(errs, VerificationError{ChunkHash: h, Kind: "read_error", Detail: err.Error()})
			continue
		}
		if actual := hashid.Of(data); actual != h {
			errs = append(errs, VerificationError{
				ChunkHash: h,
				Kind:      "hash_mismatch",
				Detail:    "expected " + h.String() + " got " + actual.String(),
			})
		}
	}
	return errs, nil
}

// GCResult summarizes one GC pass.
type GCResult struct {
	RemovedCount int
	FreedBytes   int64
}

// GC removes every stored chunk not present in referenced. Because the
// underlying kv store cannot reclaim page space for deleted keys in place,
// callers must follow GC with engine.Compact() to reclaim disk space.
func (s *Store) GC(referenced map[hashid.Hash32]bool) (GCResult, error) {
	all, err := s.ListAll()
	if err != nil {
		return GCResult{}, err
	}
	var toRemove []hashid.Hash32
	var freed int64
	for _, h := range all {
		if referenced[h] {
			continue
		}
		if size, ok, err := s.SizeOf(h); err == nil && ok {
			freed += int64(size)
		}
		toRemove = append(toRemove, h)
	}
	if err := s.RemoveBatch(toRemove); err != nil {
		return GCResult{}, errors.Wrap(err, "chunkstore: gc remove batch")
	}
	return GCResult{RemovedCount: len(toRemove), FreedBytes: freed}, nil
}
