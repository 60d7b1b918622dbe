package stream

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/hydralog/hydralog/errs"
	"github.com/hydralog/hydralog/internal/slide"
)

// DefaultChunkSize is the aligned read unit for chunk loads.
const DefaultChunkSize = 65536

// DefaultLineCache is the default capacity of the line-address window.
const DefaultLineCache = 128

// LineIter iterates lines of a byte source in both directions.
//
// Exactly one of static, ra, or r is the backing source. The iterator is
// single-owner and not synchronized.
type LineIter struct {
	chunkSize int64
	chunks    map[int64][]byte

	// lines caches line-start addresses. Relative index 0 is the start of
	// the last returned line, 1 the next line, -1 the previous one.
	lines   *slide.Array[int64]
	started bool

	// firstLineAddr is the byte offset where records begin; addresses below
	// it are never visited.
	firstLineAddr int64

	static []byte      // static buffer source
	ra     io.ReaderAt // seekable source
	f      *os.File    // optional, enables fast SeekEnd via Stat
	r      io.Reader   // non-seekable stream source

	streamPos int64 // stream mode: offset of the next unread byte
	streamEOF bool  // stream mode: permanent end of input
}

// Option configures a LineIter.
type Option func(*LineIter)

// WithChunkSize sets the chunk load size, rounded up to a power of two.
func WithChunkSize(n int) Option {
	return func(it *LineIter) {
		size := int64(1)
		for size < int64(n) {
			size <<= 1
		}
		it.chunkSize = size
	}
}

// WithLineCache sets the capacity of the line-address window.
func WithLineCache(n int) Option {
	return func(it *LineIter) {
		it.lines = slide.New[int64](n)
	}
}

func newIter(opts ...Option) *LineIter {
	it := &LineIter{
		chunkSize: DefaultChunkSize,
		chunks:    make(map[int64][]byte),
	}
	for _, opt := range opts {
		opt(it)
	}
	if it.lines == nil {
		it.lines = slide.New[int64](DefaultLineCache)
	}

	return it
}

// NewBytes creates an iterator over a static in-memory buffer. The buffer is
// held as a single pre-seeded chunk and never copied.
func NewBytes(data []byte, opts ...Option) *LineIter {
	it := newIter(opts...)
	it.static = data
	it.reposition(0)

	return it
}

// NewReaderAt creates an iterator over a seekable source. Records begin at
// start, which lets a caller skip a header it already consumed.
func NewReaderAt(ra io.ReaderAt, start int64, opts ...Option) *LineIter {
	it := newIter(opts...)
	it.ra = ra
	it.firstLineAddr = start
	it.reposition(start)

	return it
}

// NewFile creates an iterator over an open file. Records begin at the file's
// current offset.
func NewFile(f *os.File, opts ...Option) (*LineIter, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("reading file position: %w", err)
	}
	it := NewReaderAt(f, pos, opts...)
	it.f = f

	return it, nil
}

// NewStream creates an iterator over a non-seekable stream. All loaded
// chunks are retained so backward iteration over already-read data works;
// end of input is permanent.
func NewStream(r io.Reader, opts ...Option) *LineIter {
	it := newIter(opts...)
	it.r = r
	it.reposition(0)

	return it
}

// FirstLineAddr returns the byte offset where records begin.
func (it *LineIter) FirstLineAddr() int64 { return it.firstLineAddr }

// MarkFirstHere declares that records begin at the next unread line. Callers
// use it after consuming a header through the iterator.
func (it *LineIter) MarkFirstHere() {
	if addr, ok := it.lines.Get(1); ok && it.started {
		it.firstLineAddr = addr
		return
	}
	if addr, ok := it.lines.Get(0); ok && !it.started {
		it.firstLineAddr = addr
	}
}

// CurrentAddr returns the start address of the last returned line. Before
// the first Next it is the address of the first unread line.
func (it *LineIter) CurrentAddr() int64 {
	addr, ok := it.lines.Get(0)
	if !ok {
		return it.firstLineAddr
	}

	return addr
}

// NextAddr returns the start address of the next unread line, when known.
func (it *LineIter) NextAddr() (int64, bool) {
	if !it.started {
		if addr, ok := it.lines.Get(0); ok {
			return addr, true
		}

		return it.firstLineAddr, true
	}

	return it.lines.Get(1)
}

// reposition clears the line cache and makes addr the next line to return.
func (it *LineIter) reposition(addr int64) {
	it.lines.ClearAll()
	_ = it.lines.Put(0, addr)
	it.started = false
}

// Next returns the next line. io.EOF means no complete line is available;
// on seekable sources the call may succeed later once the file has grown.
// errs.ErrAgain is transient; no state advances on any error.
func (it *LineIter) Next() ([]byte, error) {
	start, err := it.nextStart()
	if err != nil {
		return nil, err
	}

	nl, err := it.findNL(start)
	if err != nil {
		return nil, err
	}

	line, err := it.sliceRange(start, nl)
	if err != nil {
		return nil, err
	}

	if it.started {
		it.lines.Slide(1)
	} else {
		it.started = true
	}
	_ = it.lines.Put(0, start)
	_ = it.lines.Put(1, nl+1)

	return trimCR(line), nil
}

// nextStart resolves the start address of the line Next should return.
func (it *LineIter) nextStart() (int64, error) {
	if !it.started {
		if addr, ok := it.lines.Get(0); ok {
			return addr, nil
		}

		return it.firstLineAddr, nil
	}

	if addr, ok := it.lines.Get(1); ok {
		return addr, nil
	}

	cur, ok := it.lines.Get(0)
	if !ok {
		return 0, fmt.Errorf("line cache lost current position")
	}
	nl, err := it.findNL(cur)
	if err != nil {
		return 0, err
	}
	_ = it.lines.Put(1, nl+1)

	return nl + 1, nil
}

// Prev returns the line preceding the current one and makes it current.
// errs.ErrAtStart is returned at the beginning of records.
func (it *LineIter) Prev() ([]byte, error) {
	base, ok := it.lines.Get(0)
	if !ok {
		base = it.firstLineAddr
	}
	if base <= it.firstLineAddr {
		return nil, errs.ErrAtStart
	}

	start, ok := it.lines.Get(-1)
	if !ok {
		var err error
		start, err = it.prevLineStart(base)
		if err != nil {
			return nil, err
		}
	}

	line, err := it.sliceRange(start, base-1)
	if err != nil {
		return nil, err
	}

	_ = it.lines.Put(-1, start)
	it.lines.Slide(-1)
	it.started = true

	return trimCR(line), nil
}

// prevLineStart finds the start of the line ending at base-1 ('\n' at
// base-1 is implied by base being a line start).
func (it *LineIter) prevLineStart(base int64) (int64, error) {
	nl, err := it.backNL(base - 2)
	if err != nil {
		return 0, err
	}
	if nl < 0 {
		return it.firstLineAddr, nil
	}

	return nl + 1, nil
}

// SeekAddr positions the iterator on the line containing addr; the next
// Next call returns that line. Addresses before the first record yield
// errs.ErrAtStart, addresses past the end io.EOF.
func (it *LineIter) SeekAddr(addr int64) error {
	if addr < it.firstLineAddr {
		return errs.ErrAtStart
	}

	if start, ok := it.searchCached(addr); ok {
		it.slideTo(start)
		return nil
	}

	// Not in the cache: locate the enclosing line from scratch. The closing
	// newline must exist for the line to exist at all.
	if _, err := it.findNL(addr); err != nil {
		return err
	}

	nl, err := it.backNL(addr - 1)
	if err != nil {
		return err
	}
	start := it.firstLineAddr
	if nl >= it.firstLineAddr {
		start = nl + 1
	}
	it.reposition(start)

	return nil
}

// searchCached binary-searches the cached boundaries for the line start
// covering addr. It succeeds only when addr provably falls inside a cached
// line, i.e. a later boundary bounds it.
func (it *LineIter) searchCached(addr int64) (int64, bool) {
	if it.lines.Len() == 0 {
		return 0, false
	}
	lo, hi := it.lines.Min(), it.lines.Lim()-1
	first, ok := it.lines.Get(lo)
	if !ok {
		return 0, false
	}
	last, ok := it.lines.Get(hi)
	if !ok || addr < first || addr >= last {
		return 0, false
	}

	for lo < hi {
		mid := (lo + hi + 1) / 2
		v, ok := it.lines.Get(mid)
		if !ok {
			return 0, false
		}
		if v <= addr {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	start, ok := it.lines.Get(lo)
	if !ok {
		return 0, false
	}

	return start, true
}

// slideTo makes the cached boundary at address start the current line
// without discarding neighbors.
func (it *LineIter) slideTo(start int64) {
	for i := it.lines.Min(); i < it.lines.Lim(); i++ {
		if v, ok := it.lines.Get(i); ok && v == start {
			it.lines.Slide(i)
			it.started = false
			return
		}
	}
	it.reposition(start)
}

// SeekEnd positions the iterator after the last complete line, so that Prev
// returns it and Next reports io.EOF until the source grows.
func (it *LineIter) SeekEnd() error {
	end, err := it.endAddr()
	if err != nil {
		return err
	}
	if end <= it.firstLineAddr {
		it.reposition(it.firstLineAddr)
		return nil
	}

	nl, err := it.backNL(end - 1)
	if err != nil {
		return err
	}
	if nl < it.firstLineAddr {
		it.reposition(it.firstLineAddr)
		return nil
	}
	it.reposition(nl + 1)

	return nil
}

// Exhausted reports whether a non-seekable stream has permanently ended.
func (it *LineIter) Exhausted() bool { return it.streamEOF }

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}

	return line
}

// findNL scans forward from addr for the next newline and returns its
// address.
func (it *LineIter) findNL(addr int64) (int64, error) {
	for {
		data, err := it.rangeAt(addr)
		if err != nil {
			return 0, err
		}
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			return addr + int64(i), nil
		}
		addr += int64(len(data))
	}
}

// backNL scans backward from addr (inclusive) for a newline, never below
// firstLineAddr. It returns -1 when none exists in that range.
func (it *LineIter) backNL(addr int64) (int64, error) {
	for addr >= it.firstLineAddr {
		data, base, err := it.chunkContaining(addr)
		if err != nil {
			return 0, err
		}
		lowest := max(it.firstLineAddr, base)
		hi := min(addr-base+1, int64(len(data)))
		if hi <= lowest-base {
			addr = base - 1
			continue
		}
		window := data[lowest-base : hi]
		if i := bytes.LastIndexByte(window, '\n'); i >= 0 {
			return lowest + int64(i), nil
		}
		addr = base - 1
	}

	return -1, nil
}

// sliceRange returns the bytes of [start, end). The result may alias chunk
// storage and is only valid until the next call on the iterator.
func (it *LineIter) sliceRange(start, end int64) ([]byte, error) {
	if end <= start {
		return nil, nil
	}

	data, err := it.rangeAt(start)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) >= end-start {
		return data[:end-start], nil
	}

	// Crosses a chunk boundary: assemble a copy.
	out := make([]byte, 0, end-start)
	addr := start
	for addr < end {
		data, err := it.rangeAt(addr)
		if err != nil {
			return nil, err
		}
		n := min(int64(len(data)), end-addr)
		out = append(out, data[:n]...)
		addr += n
	}

	return out, nil
}
