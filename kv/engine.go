package kv

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/talaria-db/sequoia/bloom"
)

// ErrNotFound is returned by Get when the key is absent from the family.
var ErrNotFound = errors.New("kv: key not found")

// Engine is the embedded LSM-style key-value backend (C2). It owns one
// bbolt database with one bucket per column family, a shared LRU read
// cache, and a per-family bloom filter for the existence fast path.
type Engine struct {
	db     *bolt.DB
	path   string
	log    *zap.Logger
	opts   map[string]FamilyOptions
	cache  *lru.Cache[string, []byte]
	bloomMu sync.RWMutex
	blooms map[string]*bloom.Filter

	mu       sync.Mutex
	bulkMode bool
}

// Open creates or opens the engine's data file at cfg.Path, ensuring every
// well-known family bucket exists.
func Open(cfg Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, errors.Wrap(err, "kv: create data directory")
	}
	dbPath := filepath.Join(cfg.Path, "storage.db")
	db, err := bolt.Open(dbPath, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "kv: open database")
	}
	db.NoSync = cfg.BulkImportMode

	err = db.Update(func(tx *bolt.Tx) error {
		for _, fam := range AllFamilies {
			if _, err := tx.CreateBucketIfNotExists([]byte(fam)); err != nil {
				return errors.Wrapf(err, "kv: create bucket %q", fam)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	cacheSize := cfg.BlockCacheMB
	if cacheSize <= 0 {
		cacheSize = 2048
	}
	// Approximate "megabytes" as eight cached entries per MB; a precise byte
	// budget would require per-entry size accounting the LRU library
	// doesn't provide.
	entries := cacheSize * 8
	if entries < 256 {
		entries = 256
	}
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "kv: create read cache")
	}

	e := &Engine{
		db:       db,
		path:     cfg.Path,
		log:      log,
		opts:     DefaultFamilyOptions(),
		cache:    cache,
		blooms:   map[string]*bloom.Filter{},
		bulkMode: cfg.BulkImportMode,
	}
	return e, nil
}

// Close releases the underlying database file.
func (e *Engine) Close() error {
	return e.db.Close()
}

func cacheKey(family, key string) string {
	return family + "\x00" + key
}

func (e *Engine) familyOpts(family string) FamilyOptions {
	if o, ok := e.opts[family]; ok {
		return o
	}
	return FamilyOptions{}
}

func (e *Engine) filterFor(family string) *bloom.Filter {
	e.bloomMu.RLock()
	f := e.blooms[family]
	e.bloomMu.RUnlock()
	if f != nil {
		return f
	}
	opts := e.familyOpts(family)
	if opts.FilterBitsPerKey <= 0 {
		return nil
	}
	e.bloomMu.Lock()
	defer e.bloomMu.Unlock()
	if f = e.blooms[family]; f != nil {
		return f
	}
	f = bloom.NewFromBitsPerKey(1<<20, opts.FilterBitsPerKey)
	e.blooms[family] = f
	return f
}

// Put writes one key/value into family, compressing per FamilyOptions.
func (e *Engine) Put(family, key string, value []byte) error {
	encoded, err := e.encode(family, value)
	if err != nil {
		return err
	}
	err = e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return errors.Errorf("kv: unknown family %q", family)
		}
		return b.Put([]byte(key), encoded)
	})
	if err != nil {
		return errors.Wrapf(err, "kv: put %s/%s", family, key)
	}
	if f := e.filterFor(family); f != nil {
		f.Add([]byte(key))
	}
	e.cache.Add(cacheKey(family, key), value)
	return nil
}

// BatchPut writes every key/value pair in items atomically: either all
// entries are visible to subsequent readers, or (on error) none are.
func (e *Engine) BatchPut(family string, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}
	encoded := make(map[string][]byte, len(items))
	for k, v := range items {
		enc, err := e.encode(family, v)
		if err != nil {
			return err
		}
		encoded[k] = enc
	}
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return errors.Errorf("kv: unknown family %q", family)
		}
		for k, v := range encoded {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "kv: batch put into %s", family)
	}
	filter := e.filterFor(family)
	for k, v := range items {
		if filter != nil {
			filter.Add([]byte(k))
		}
		e.cache.Add(cacheKey(family, k), v)
	}
	return nil
}

// Get reads one value from family, returning ErrNotFound if absent.
func (e *Engine) Get(family, key string) ([]byte, error) {
	if v, ok := e.cache.Get(cacheKey(family, key)); ok {
		return v, nil
	}
	var raw []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return errors.Errorf("kv: unknown family %q", family)
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "kv: get %s/%s", family, key)
	}
	decoded, err := e.decode(family, raw)
	if err != nil {
		return nil, err
	}
	e.cache.Add(cacheKey(family, key), decoded)
	return decoded, nil
}

// Exists performs the three-tier existence check the spec requires for the
// chunk-store hot path: bloom filter, then a direct point lookup (bbolt has
// no separate block-level filter tier to interpose, so tier two and three
// collapse into one authoritative lookup — see DESIGN.md).
func (e *Engine) Exists(family, key string) (bool, error) {
	if f := e.filterFor(family); f != nil && !f.MightContain([]byte(key)) {
		return false, nil
	}
	if _, ok := e.cache.Get(cacheKey(family, key)); ok {
		return true, nil
	}
	found := false
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return errors.Errorf("kv: unknown family %q", family)
		}
		found = b.Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

// Delete removes one key. It is not an error to delete an absent key.
func (e *Engine) Delete(family, key string) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return errors.Errorf("kv: unknown family %q", family)
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrapf(err, "kv: delete %s/%s", family, key)
	}
	e.cache.Remove(cacheKey(family, key))
	return nil
}

// DeleteBatch removes every key in keys atomically.
func (e *Engine) DeleteBatch(family string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return errors.Errorf("kv: unknown family %q", family)
		}
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "kv: batch delete from %s", family)
	}
	for _, k := range keys {
		e.cache.Remove(cacheKey(family, k))
	}
	return nil
}

// ListKeys returns every key in family whose name has the given prefix (use
// "" for all keys), in lexicographic order.
func (e *Engine) ListKeys(family, prefix string) ([]string, error) {
	var keys []string
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return errors.Errorf("kv: unknown family %q", family)
		}
		c := b.Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && hasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

func hasPrefix(k, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Count returns the approximate number of keys in family.
func (e *Engine) Count(family string) (int, error) {
	n := 0
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(family))
		if b == nil {
			return errors.Errorf("kv: unknown family %q", family)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// SetBulkMode toggles the write durability tradeoff described in spec
// §4.2: bulk mode trades fsync-per-commit for throughput. bbolt has no
// separate write-ahead log to disable (its mmap'd page commit IS the
// durability mechanism), so "bulk mode" here maps onto DB.NoSync — the
// closest real knob bbolt exposes, and the deviation is documented in
// DESIGN.md. Callers in bulk mode must still Flush+Compact at quiescent
// points.
func (e *Engine) SetBulkMode(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bulkMode = on
	e.db.NoSync = on
}

// Flush forces a synced commit, ensuring every prior write (including ones
// made under bulk mode) is durable on disk.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.db.NoSync
	e.db.NoSync = false
	err := e.db.Update(func(tx *bolt.Tx) error { return nil })
	e.db.NoSync = prev
	if err != nil {
		return errors.Wrap(err, "kv: flush")
	}
	return nil
}

// Compact rewrites the data file into a fresh file to reclaim space freed
// by deletes and tombstones, approximating the LSM's bottommost-level
// compaction. It blocks all other operations on the engine while running.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tmpPath := filepath.Join(e.path, "storage.compact.db")
	dst, err := bolt.Open(tmpPath, 0o644, nil)
	if err != nil {
		return errors.Wrap(err, "kv: open compaction target")
	}
	if err := bolt.Compact(dst, e.db, 0); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "kv: compact")
	}
	if err := dst.Close(); err != nil {
		return errors.Wrap(err, "kv: close compaction target")
	}
	srcPath := e.db.Path()
	if err := e.db.Close(); err != nil {
		return errors.Wrap(err, "kv: close source before swap")
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		return errors.Wrap(err, "kv: swap compacted file into place")
	}
	reopened, err := bolt.Open(srcPath, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return errors.Wrap(err, "kv: reopen after compaction")
	}
	reopened.NoSync = e.bulkMode
	e.db = reopened
	e.cache.Purge()
	return nil
}
