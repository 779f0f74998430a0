package procstate

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// writeAtomic writes data to path via a temp file in the same directory
// followed by rename, so a crash mid-write never leaves a corrupt
// state.json behind — readers either see the old content or the new
// content, never a partial write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "procstate: create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "procstate: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "procstate: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "procstate: close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "procstate: rename temp file into place")
	}
	return nil
}
