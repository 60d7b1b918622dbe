package logfile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/hydralog/hydralog/compress"
	"github.com/hydralog/hydralog/errs"
	"github.com/hydralog/hydralog/format"
	"github.com/hydralog/hydralog/internal/options"
	"github.com/hydralog/hydralog/section"
	"github.com/hydralog/hydralog/stream"
)

const (
	// DefaultAutoIndexPeriod is how many records pass between auto-index
	// entries before any compaction.
	DefaultAutoIndexPeriod = 256

	// DefaultAutoIndexSize bounds the auto-index; reaching it compacts the
	// index to half and doubles the period.
	DefaultAutoIndexSize = 256
)

// indexEntry pairs a tick counter value with the byte address where decoding
// resumes from it: the line following the record that reached that value (or
// an anchor comment announcing it).
type indexEntry struct {
	ticks uint64
	addr  int64
}

// Reader decodes records from one log file.
//
// It keeps a one-record look-ahead (Peek), a running tick counter, and a
// sparse auto-index of (ticks, address) pairs grown during sequential
// reading and consulted by Seek.
type Reader struct {
	it    *stream.LineIter
	hdr   *section.Header
	codec recordCodec

	ticks       uint64
	pending     *Record
	pendingAddr int64
	curAddr     int64

	index        []indexEntry
	idxPeriod    int
	idxSize      int
	idxCountdown int

	// Boundary candidate: the most recently decoded record. It is indexed
	// once the following record's primary line is seen (only then is the
	// record's extent, continuations included, known) or at end of input.
	// The index entry pairs the counter value after the candidate with the
	// address of whatever follows it, so decoding from an entry reproduces
	// the stream exactly.
	haveLast     bool
	lastTicks    uint64
	lastAdvanced bool

	cache *decodeCache

	closer io.Closer
}

// ReaderOption configures a Reader at open time.
type ReaderOption = options.Option[*Reader]

// WithAutoIndexPeriod sets how many records pass between auto-index
// entries. Zero or negative disables auto-indexing.
func WithAutoIndexPeriod(n int) ReaderOption {
	return options.NoError(func(r *Reader) { r.idxPeriod = n })
}

// WithAutoIndexSize sets the auto-index capacity that triggers compaction.
func WithAutoIndexSize(n int) ReaderOption {
	return options.New(func(r *Reader) error {
		if n < 2 {
			return fmt.Errorf("auto-index size %d too small", n)
		}
		r.idxSize = n

		return nil
	})
}

// WithDecodeCache enables an LRU cache of up to n decoded records, keyed by
// the raw record bytes and decode position. Useful when the same region is
// re-scanned repeatedly through Seek.
func WithDecodeCache(n int) ReaderOption {
	return options.New(func(r *Reader) error {
		if n <= 0 {
			return fmt.Errorf("decode cache size %d too small", n)
		}
		r.cache = newDecodeCache(n)

		return nil
	})
}

// Open opens a log file by path. Compressed files (gzip, zstd, lz4, s2) are
// detected by magic bytes and read through the streaming path; plain files
// are read seekably.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var sniff [16]byte
	n, rerr := f.ReadAt(sniff[:], 0)
	if rerr != nil && !errors.Is(rerr, io.EOF) {
		f.Close()
		return nil, rerr
	}

	var it *stream.LineIter
	if compress.Detect(sniff[:n]) != compress.TypeNone {
		cr, _, cerr := compress.NewReader(f)
		if cerr != nil {
			f.Close()
			return nil, cerr
		}
		it = stream.NewStream(cr)
	} else {
		it, err = stream.NewFile(f)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	r, err := newReader(it, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f

	return r, nil
}

// NewFileReader attaches a Reader to an already-open file, starting at its
// current offset. The caller keeps ownership of the file.
func NewFileReader(f *os.File, opts ...ReaderOption) (*Reader, error) {
	it, err := stream.NewFile(f)
	if err != nil {
		return nil, err
	}

	return newReader(it, opts...)
}

// NewStreamReader attaches a Reader to a non-seekable stream.
func NewStreamReader(src io.Reader, opts ...ReaderOption) (*Reader, error) {
	return newReader(stream.NewStream(src), opts...)
}

// NewBytesReader attaches a Reader to an in-memory buffer.
func NewBytesReader(data []byte, opts ...ReaderOption) (*Reader, error) {
	return newReader(stream.NewBytes(data), opts...)
}

func newReader(it *stream.LineIter, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{
		it:        it,
		idxPeriod: DefaultAutoIndexPeriod,
		idxSize:   DefaultAutoIndexSize,
	}
	if err := options.Apply(r, opts...); err != nil {
		return nil, err
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}

	return r, nil
}

// readHeader consumes the magic line, metadata lines and the field
// declaration, leaving the iterator at the first record line.
func (r *Reader) readHeader() error {
	line, err := r.it.Next()
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrMissingMagic, err)
	}
	fmtv, legacy, err := section.ParseMagic(line)
	if err != nil {
		return err
	}

	hdr := &section.Header{Format: fmtv, LegacyMagic: legacy}
	var anchorTicks uint64
	var sawAnchor bool
	for {
		line, err := r.it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if !section.IsComment(line) {
			if _, perr := r.it.Prev(); perr != nil {
				return perr
			}
			break
		}
		switch {
		case section.IsMeta(line):
			if err := hdr.ApplyMeta(line); err != nil {
				return err
			}
		case section.IsFieldDecl(line):
			if err := hdr.ApplyFieldDecl(line); err != nil {
				return err
			}
		default:
			if t, ok := section.ParseAnchor(line); ok {
				anchorTicks, sawAnchor = t, true
			}
		}
	}

	if err := hdr.Finalize(); err != nil {
		return err
	}

	r.hdr = hdr
	r.codec = recordCodec{hdr: hdr}
	r.it.MarkFirstHere()
	if sawAnchor {
		r.ticks = anchorTicks
	}
	r.index = append(r.index[:0], indexEntry{ticks: r.ticks, addr: r.it.FirstLineAddr()})
	r.idxCountdown = r.idxPeriod

	return nil
}

// Header returns the decoded file header. Treat it as read-only.
func (r *Reader) Header() *section.Header { return r.hdr }

// Format returns the file's on-disk format.
func (r *Reader) Format() format.Format { return r.hdr.Format }

// Ticks returns the current tick counter value.
func (r *Reader) Ticks() uint64 { return r.ticks }

// Close releases the underlying file when the Reader owns one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil

	return err
}

// Peek returns the next record without consuming it. io.EOF means no
// complete record is available; on plain files the call may succeed later
// once the file has grown. errs.ErrAgain is transient.
func (r *Reader) Peek() (*Record, error) {
	if err := r.fill(); err != nil {
		return nil, err
	}

	return r.pending, nil
}

// Next returns the next record and consumes it.
func (r *Reader) Next() (*Record, error) {
	if err := r.fill(); err != nil {
		return nil, err
	}
	rec := r.pending
	r.pending = nil
	r.curAddr = r.pendingAddr

	return rec, nil
}

// fill decodes one record into the look-ahead slot. On a transient error the
// iterator is rewound so the next call restarts the record cleanly.
func (r *Reader) fill() error {
	if r.pending != nil {
		return nil
	}

	for {
		line, err := r.it.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if endAddr, ok := r.it.NextAddr(); ok {
					r.noteBoundary(endAddr)
				}
			}

			return err
		}

		if len(line) == 0 {
			continue
		}
		if section.IsComment(line) {
			if t, ok := section.ParseAnchor(line); ok {
				if t < r.ticks {
					return fmt.Errorf("%w: anchor %d below %d", errs.ErrTickRegression, t, r.ticks)
				}
				r.ticks = t
				r.noteAnchor(t, r.it.CurrentAddr())
			}

			continue
		}
		if r.hdr.Format.SupportsContinuation() && line[0] == '\t' {
			// A continuation with no record in flight: stale data after a
			// mid-record landing. Skip to the next primary line.
			continue
		}

		return r.decodeRecord(line)
	}
}

// decodeRecord decodes the record whose primary line was just read.
func (r *Reader) decodeRecord(line []byte) error {
	addr := r.it.CurrentAddr()
	startTicks := r.ticks

	// The previous record's extent is now known; run its index bookkeeping
	// with this record's address as the entry target.
	r.noteBoundary(addr)

	consumed := 1
	rewind := func() {
		for i := 0; i < consumed; i++ {
			_, _ = r.it.Prev()
		}
	}

	if r.cache != nil {
		if cd, ok := r.cache.get(cacheKey(line, addr, startTicks)); ok {
			for i := 1; i < cd.nlines; i++ {
				if _, err := r.it.Next(); err != nil {
					if errors.Is(err, errs.ErrAgain) {
						rewind()
					}

					return err
				}
				consumed++
			}
			r.ticks = cd.endTicks
			r.pending = cd.rec
			r.pendingAddr = addr
			r.setCandidate(cd.endTicks, cd.endTicks > startTicks)

			return nil
		}
	}

	fields, err := r.codec.splitFields(line)
	if err != nil {
		return err
	}
	raw := make([]string, len(fields))
	for i, f := range fields {
		raw[i] = string(f)
	}

	if r.hdr.Format.SupportsContinuation() {
		for {
			cl, cerr := r.it.Next()
			if errors.Is(cerr, io.EOF) {
				break
			}
			if cerr != nil {
				if errors.Is(cerr, errs.ErrAgain) {
					rewind()
				}

				return cerr
			}
			if len(cl) == 0 || cl[0] != '\t' {
				if _, perr := r.it.Prev(); perr != nil {
					return perr
				}
				break
			}
			consumed++
			k := countTabs(cl)
			if k >= len(r.hdr.Fields) {
				return fmt.Errorf("%w: column %d, %d fields declared",
					errs.ErrContinuationColumn, k, len(r.hdr.Fields))
			}
			for len(raw) <= k {
				raw = append(raw, "")
			}
			raw[k] += "\n" + string(cl[k:])
		}
	}

	tf, err := r.codec.decodeTicks([]byte(raw[0]))
	if err != nil {
		return err
	}
	newTicks, err := r.codec.applyTicks(startTicks, tf)
	if err != nil {
		return err
	}
	rec, err := r.codec.finishRecord(newTicks, raw)
	if err != nil {
		return err
	}

	r.ticks = newTicks
	r.pending = rec
	r.pendingAddr = addr
	r.setCandidate(newTicks, newTicks > startTicks)

	if r.cache != nil {
		r.cache.put(cacheKey(line, addr, startTicks), cachedDecode{
			rec:      rec,
			endTicks: newTicks,
			nlines:   consumed,
		})
	}

	return nil
}

func (r *Reader) setCandidate(ticks uint64, advanced bool) {
	r.haveLast = true
	r.lastTicks = ticks
	r.lastAdvanced = advanced
}

// noteBoundary runs the auto-index countdown for the record whose extent
// just became known; nextAddr is the address of whatever follows it.
func (r *Reader) noteBoundary(nextAddr int64) {
	if !r.haveLast {
		return
	}
	r.haveLast = false
	if r.idxPeriod <= 0 {
		return
	}

	r.idxCountdown--
	if r.idxCountdown <= 0 {
		if r.lastAdvanced {
			r.appendIndex(r.lastTicks, nextAddr)
			r.idxCountdown = r.idxPeriod
		} else if r.idxCountdown < 0 {
			r.idxCountdown = 0
		}
	}
}

// noteAnchor records a durable anchor comment as an index entry.
func (r *Reader) noteAnchor(ticks uint64, addr int64) {
	if len(r.index) > 0 && ticks <= r.index[len(r.index)-1].ticks {
		return
	}
	r.appendIndex(ticks, addr)
}

func (r *Reader) appendIndex(ticks uint64, addr int64) {
	if len(r.index) > 0 && ticks <= r.index[len(r.index)-1].ticks {
		return
	}
	r.index = append(r.index, indexEntry{ticks: ticks, addr: addr})

	if r.idxSize > 0 && len(r.index) >= r.idxSize {
		// Compact: keep every second entry and double the period.
		kept := r.index[:0]
		for i := 0; i < len(r.index); i += 2 {
			kept = append(kept, r.index[i])
		}
		r.index = kept
		r.idxPeriod *= 2
		r.idxCountdown = r.idxPeriod
	}
}

// searchIndex returns the greatest index entry whose counter value is
// strictly below target. Strictness matters: an entry equal to the target
// points past the record that reaches the target exactly, and that record
// must still be produced.
func (r *Reader) searchIndex(target uint64) indexEntry {
	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].ticks >= target
	}) - 1
	if i < 0 {
		i = 0
	}

	return r.index[i]
}

// Seek positions the reader so the next Peek returns the first record with
// timestamp >= epoch, or io.EOF when no such record exists. Targets at or
// before the start of the file restart from the first record.
func (r *Reader) Seek(epoch float64) error {
	t := math.Ceil((epoch - r.hdr.StartEpoch) * float64(r.hdr.Scale))

	var target uint64
	switch {
	case t <= 0:
		if err := r.restartAt(r.index[0]); err != nil {
			return err
		}

		return nil
	default:
		target = uint64(t)
	}

	if target <= r.ticks {
		if err := r.restartAt(r.searchIndex(target)); err != nil {
			return err
		}
	}

	for {
		rec, err := r.Peek()
		if errors.Is(err, io.EOF) {
			return nil // past end: next Peek stays absent
		}
		if err != nil {
			return err
		}
		if rec.ticks >= target {
			return nil
		}
		if _, err := r.Next(); err != nil {
			return err
		}
	}
}

// SeekTime is Seek for a time.Time argument.
func (r *Reader) SeekTime(t time.Time) error {
	return r.Seek(float64(t.UnixNano()) / 1e9)
}

func (r *Reader) restartAt(e indexEntry) error {
	if err := r.it.SeekAddr(e.addr); err != nil {
		if errors.Is(err, io.EOF) {
			// The entry points at end of input (it was recorded there).
			// Park after the last line so Peek reports absent.
			if serr := r.it.SeekEnd(); serr != nil {
				return serr
			}
		} else {
			return err
		}
	}
	r.ticks = e.ticks
	r.pending = nil
	r.haveLast = false
	r.idxCountdown = r.idxPeriod

	return nil
}

// SeekLast positions the reader at the end of the file and returns the final
// record, or io.EOF when the file has none. Afterwards Peek reports io.EOF
// until the file grows.
func (r *Reader) SeekLast() (*Record, error) {
	if err := r.it.SeekEnd(); err != nil {
		return nil, err
	}
	r.pending = nil
	r.haveLast = false

	// Walk backward to the final record's primary line.
	var primaryAddr int64
	var isAbsolute bool
	for {
		line, err := r.it.Prev()
		if errors.Is(err, errs.ErrAtStart) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if len(line) == 0 || section.IsComment(line) {
			continue
		}
		if r.hdr.Format.SupportsContinuation() && line[0] == '\t' {
			continue
		}
		primaryAddr = r.it.CurrentAddr()
		isAbsolute = line[0] == '=' && r.hdr.Format.SupportsAbsolute()
		break
	}

	// Pick the restart point: the record itself when it is absolute,
	// otherwise the closest preceding anchor, otherwise the first record.
	startTicks := uint64(0)
	startAddr := r.it.FirstLineAddr()
	if isAbsolute {
		startAddr = primaryAddr
	} else {
		for {
			line, err := r.it.Prev()
			if errors.Is(err, errs.ErrAtStart) {
				break
			}
			if err != nil {
				return nil, err
			}
			if t, ok := section.ParseAnchor(line); ok {
				startTicks = t
				startAddr = r.it.CurrentAddr()
				break
			}
		}
	}

	if err := r.it.SeekAddr(startAddr); err != nil {
		return nil, err
	}
	r.ticks = startTicks
	r.idxCountdown = r.idxPeriod

	var last *Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		last = rec
		if r.curAddr == primaryAddr {
			break
		}
	}
	if last == nil {
		return nil, io.EOF
	}

	return last, nil
}
