// Package workspace implements the per-operation scratch directory and
// cross-process exclusive lock (C13). Grounded on the workspace/lock
// lifecycle in original_source/talaria-herald/src/download/workspace.rs and the
// dolthub/fslock usage pattern in
// _examples/dolthub-dolt/go/cmd/dolt/commands/engine/lock_release_test.go.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dolthub/fslock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/procstate"
)

// ErrWorkspaceLocked is returned when a live owner already holds the lock.
var ErrWorkspaceLocked = errors.New("workspace: locked by a live owner")

const staleAge = 24 * time.Hour

const lockAcquireTimeout = 50 * time.Millisecond

// LockInfo is the JSON content of a workspace's .lock file.
type LockInfo struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Workspace is one command's scratch directory plus its held lock.
type Workspace struct {
	ID      string
	Dir     string
	DBID    string
	Version string
	Session string

	lockPath string
	osLock   *fslock.Lock
	Status   Status
	Error    string
}

// Status is a workspace's terminal lifecycle marker.
type Status int

const (
	StatusActive Status = iota
	StatusCompleted
	StatusErrored
)

// New allocates (but does not create on disk) a workspace descriptor named
// <db_id>_<version>_<session8hex> under root.
func New(root, dbID, version string) *Workspace {
	session := uuid.New().String()[:8]
	id := fmt.Sprintf("%s_%s_%s", dbID, version, session)
	return &Workspace{
		ID:      id,
		Dir:     filepath.Join(root, id),
		DBID:    dbID,
		Version: version,
		Session: session,
	}
}

// Open creates the workspace directory (if absent) and acquires its lock.
// It returns ErrWorkspaceLocked if a live owner already holds it.
func Open(root, dbID, version string) (*Workspace, error) {
	ws := New(root, dbID, version)
	if err := os.MkdirAll(ws.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "workspace: create directory")
	}
	ws.lockPath = filepath.Join(ws.Dir, ".lock")
	if err := ws.acquireLock(); err != nil {
		return nil, err
	}
	return ws, nil
}

// acquireLock implements the exclusive-create + staleness-takeover contract
// from spec.md §4.11: the recorded owner's PID/hostname/timestamp, not raw
// file presence, decides whether a pre-existing lock may be displaced — a
// lock file with no real holder left behind by a crash carries content the
// OS-level flock alone can't see (e.g. a stale entry from a different
// host). Content says no: fail outright. Content says stale, or the file
// is simply absent: (re)create it and take the OS-level flock as the
// actual cross-process exclusion primitive.
func (w *Workspace) acquireLock() error {
	if info, err := readLockInfo(w.lockPath); err == nil {
		if !isStale(info) {
			return ErrWorkspaceLocked
		}
		if err := os.Remove(w.lockPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "workspace: remove stale lock file")
		}
	}

	lck := fslock.New(w.lockPath)
	if err := lck.LockWithTimeout(lockAcquireTimeout); err != nil {
		return ErrWorkspaceLocked
	}
	w.osLock = lck
	return w.writeLockInfo()
}

func (w *Workspace) writeLockInfo() error {
	info := LockInfo{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	info.Hostname, _ = os.Hostname()
	data, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "workspace: marshal lock info")
	}
	if err := os.WriteFile(w.lockPath, data, 0o644); err != nil {
		return errors.Wrap(err, "workspace: write lock info")
	}
	return nil
}

func readLockInfo(path string) (LockInfo, error) {
	var info LockInfo
	data, err := os.ReadFile(path)
	if err != nil {
		return info, errors.Wrap(err, "workspace: read lock file")
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, errors.Wrap(err, "workspace: unmarshal lock file")
	}
	return info, nil
}

// isStale reports whether a recorded lock owner may be displaced: it is
// dead and on this host, or it is older than staleAge and on a different
// host (cross-host liveness cannot be probed directly).
func isStale(info LockInfo) bool {
	owner := procstate.Owner{PID: info.PID, Hostname: info.Hostname}
	if owner.SameHost() {
		return owner.IsDead()
	}
	return time.Since(info.AcquiredAt) > staleAge
}

// Release deletes the lock file and drops the OS-level lock. It is
// idempotent and safe to call multiple times (e.g. via a deferred drop).
func (w *Workspace) Release() error {
	if w.osLock != nil {
		if err := w.osLock.Unlock(); err != nil {
			return errors.Wrap(err, "workspace: unlock")
		}
		w.osLock = nil
	}
	if err := os.Remove(w.lockPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "workspace: remove lock file")
	}
	return nil
}

// MarkCompleted sets the terminal success status.
func (w *Workspace) MarkCompleted() {
	w.Status = StatusCompleted
}

// MarkError sets the terminal failure status and retains the workspace
// directory for debugging (callers must not delete Dir after this).
func (w *Workspace) MarkError(err error) {
	w.Status = StatusErrored
	w.Error = err.Error()
}

// Cleanup removes the workspace directory. Callers must not call this after
// MarkError — failed workspaces are retained per spec.md's error-handling
// propagation policy.
func (w *Workspace) Cleanup() error {
	if w.Status == StatusErrored {
		return errors.New("workspace: refusing to clean up an errored workspace")
	}
	if err := w.Release(); err != nil {
		return err
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		return errors.Wrap(err, "workspace: remove directory")
	}
	return nil
}
