package stream

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/hydralog/hydralog/errs"
)

// chunkBase returns the aligned start of the chunk containing addr.
func (it *LineIter) chunkBase(addr int64) int64 {
	return addr &^ (it.chunkSize - 1)
}

// rangeAt returns at least one byte of loaded data starting at addr, limited
// to the containing chunk. io.EOF means addr is at or past the end of the
// currently available input; on seekable sources a later call may succeed.
func (it *LineIter) rangeAt(addr int64) ([]byte, error) {
	if it.static != nil || (it.ra == nil && it.r == nil) {
		if addr >= int64(len(it.static)) {
			return nil, io.EOF
		}

		return it.static[addr:], nil
	}

	if it.r != nil {
		if err := it.ensureStream(addr); err != nil {
			return nil, err
		}
		if addr >= it.streamPos {
			return nil, io.EOF
		}
		base := it.chunkBase(addr)
		c := it.chunks[base]

		return c[addr-base:], nil
	}

	return it.seekableRange(addr)
}

func (it *LineIter) seekableRange(addr int64) ([]byte, error) {
	base := it.chunkBase(addr)
	c, ok := it.chunks[base]
	if ok && addr < base+int64(len(c)) {
		return c[addr-base:], nil
	}

	if !ok {
		// A required chunk not in the map is filled by one aligned read.
		buf := make([]byte, it.chunkSize)
		n, err := it.ra.ReadAt(buf, base)
		if n > 0 {
			it.chunks[base] = buf[:n]
		}
		if n > 0 && addr < base+int64(n) {
			return buf[addr-base : n], nil
		}
		if err == nil || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, mapReadErr(err)
	}

	// Partial tail chunk: extend in place.
	off := base + int64(len(c))
	buf := make([]byte, it.chunkSize-int64(len(c)))
	n, err := it.ra.ReadAt(buf, off)
	if n > 0 {
		c = append(c, buf[:n]...)
		it.chunks[base] = c
	}
	if addr < base+int64(len(c)) {
		return c[addr-base:], nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, io.EOF
	}

	return nil, mapReadErr(err)
}

// chunkContaining returns the loaded chunk covering addr together with its
// base address. Used by backward scans; on seekable sources a missing chunk
// is loaded with a full aligned read so the map never holds holes.
func (it *LineIter) chunkContaining(addr int64) ([]byte, int64, error) {
	if it.static != nil || (it.ra == nil && it.r == nil) {
		if addr >= int64(len(it.static)) {
			return nil, 0, io.EOF
		}

		return it.static, 0, nil
	}

	base := it.chunkBase(addr)
	c, ok := it.chunks[base]
	if ok && addr < base+int64(len(c)) {
		return c, base, nil
	}

	if it.r != nil {
		// Stream chunks are retained from the first read on, so a hole means
		// the address was never part of the input.
		return nil, 0, fmt.Errorf("stream chunk at %d not loaded", base)
	}

	buf := make([]byte, it.chunkSize)
	n, err := it.ra.ReadAt(buf, base)
	if n > 0 {
		it.chunks[base] = buf[:n]
	}
	if n > 0 && addr < base+int64(n) {
		return buf[:n], base, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, 0, io.EOF
	}

	return nil, 0, mapReadErr(err)
}

// ensureStream reads the stream forward until addr is loaded, the input
// ends, or a transient condition interrupts. Partial progress is kept.
func (it *LineIter) ensureStream(addr int64) error {
	for !it.streamEOF && addr >= it.streamPos {
		base := it.chunkBase(it.streamPos)
		c := it.chunks[base]
		want := base + it.chunkSize - it.streamPos
		buf := make([]byte, want)
		n, err := it.r.Read(buf)
		if n > 0 {
			c = append(c, buf[:n]...)
			it.chunks[base] = c
			it.streamPos += int64(n)
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			it.streamEOF = true
		default:
			return mapReadErr(err)
		}
	}

	return nil
}

// endAddr determines the current end of input.
func (it *LineIter) endAddr() (int64, error) {
	if it.static != nil || (it.ra == nil && it.r == nil) {
		return int64(len(it.static)), nil
	}

	if it.r != nil {
		for !it.streamEOF {
			if err := it.ensureStream(it.streamPos); err != nil {
				return 0, err
			}
		}

		return it.streamPos, nil
	}

	if it.f != nil {
		info, err := it.f.Stat()
		if err != nil {
			return 0, mapReadErr(err)
		}

		return info.Size(), nil
	}

	// Generic seekable source: probe forward from the highest loaded chunk.
	addr := int64(0)
	for base, c := range it.chunks {
		if end := base + int64(len(c)); end > addr {
			addr = end
		}
	}
	for {
		data, err := it.rangeAt(addr)
		if errors.Is(err, io.EOF) {
			return addr, nil
		}
		if err != nil {
			return 0, err
		}
		addr += int64(len(data))
	}
}

// mapReadErr converts interrupted and would-block conditions to the
// transient errs.ErrAgain; everything else propagates unchanged.
func mapReadErr(err error) error {
	if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) {
		return fmt.Errorf("%w: %v", errs.ErrAgain, err)
	}

	return err
}
