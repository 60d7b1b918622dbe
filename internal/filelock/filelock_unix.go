//go:build unix

// Package filelock guarantees at-most-one active writer per log file.
//
// On unix it takes a POSIX record lock over the whole file; elsewhere it
// falls back to an exclusive sidecar lockfile. Either way the lock is
// advisory: readers never take it and are unaffected.
package filelock

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hydralog/hydralog/errs"
)

// Lock represents a held write lock on a file.
type Lock struct {
	f *os.File
}

// Acquire write-locks the entire file without blocking. A lock held by
// another process surfaces as errs.ErrFileLocked.
func Acquire(f *os.File) (*Lock, error) {
	flock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: io.SeekStart,
		Start:  0,
		Len:    0, // whole file
	}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &flock); err != nil {
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EAGAIN) {
			return nil, fmt.Errorf("%w: %s", errs.ErrFileLocked, f.Name())
		}

		return nil, fmt.Errorf("locking %s: %w", f.Name(), err)
	}

	return &Lock{f: f}, nil
}

// Release drops the lock. The file itself stays open.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	flock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: io.SeekStart,
	}
	err := unix.FcntlFlock(l.f.Fd(), unix.F_SETLK, &flock)
	l.f = nil

	return err
}
