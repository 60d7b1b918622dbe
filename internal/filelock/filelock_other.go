//go:build !unix

package filelock

import (
	"errors"
	"fmt"
	"os"

	"github.com/hydralog/hydralog/errs"
)

// Lock represents a held write lock, implemented as an exclusive sidecar
// lockfile next to the log file.
type Lock struct {
	path string
}

// Acquire creates "<name>.lock" with O_EXCL. An existing lockfile surfaces
// as errs.ErrFileLocked.
func Acquire(f *os.File) (*Lock, error) {
	path := f.Name() + ".lock"
	lf, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", errs.ErrFileLocked, f.Name())
		}

		return nil, fmt.Errorf("locking %s: %w", f.Name(), err)
	}
	lf.Close()

	return &Lock{path: path}, nil
}

// Release removes the sidecar lockfile.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""

	return err
}
