package logfile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hydralog/hydralog/format"
	"github.com/hydralog/hydralog/internal/filelock"
	"github.com/hydralog/hydralog/internal/options"
	"github.com/hydralog/hydralog/internal/pool"
	"github.com/hydralog/hydralog/section"
)

// HeaderSource supplies a header to inherit; both Reader and Writer satisfy
// it, so a rotated file can be created from either.
type HeaderSource interface {
	Header() *section.Header
}

// Writer appends records to a log file under an exclusive advisory lock.
//
// Tick counters derive from the monotonic clock sampled at construction, so
// emitted timestamps keep advancing through wall-clock jumps. A record is
// fully encoded into a buffer before a single write call; a failed write
// can never leave a half record behind.
type Writer struct {
	f    *os.File
	lock *filelock.Lock
	hdr  *section.Header

	prevTicks uint64
	s0        time.Time
	frac      float64
	clock     func() time.Time

	bytesWritten int64
	indexSpacing int64
	nextAnchor   int64

	codec  recordCodec
	closed bool
	needNL bool

	// Staging configuration, consumed by Create before the header exists.
	cfgFormat format.Format
	cfgScale  int64
	cfgFields []section.FieldSpec
	cfgMeta   []section.MetaPair
}

// WriterOption configures a Writer at construction time.
type WriterOption = options.Option[*Writer]

// WithFormat selects the on-disk format for a fresh file. Default is tsv1.
func WithFormat(f format.Format) WriterOption {
	return options.NoError(func(w *Writer) { w.cfgFormat = f })
}

// WithScale sets the tick scale: raw ticks per second. Default is 1.
func WithScale(n int64) WriterOption {
	return options.New(func(w *Writer) error {
		if n <= 0 {
			return fmt.Errorf("tick scale %d must be positive", n)
		}
		w.cfgScale = n

		return nil
	})
}

// WithFields declares the value fields of a fresh file, in column order.
// The tick counter field is implicit and must not be included. Without this
// option the file carries level (defaulting to INFO) and message.
func WithFields(fields ...section.FieldSpec) WriterOption {
	return options.NoError(func(w *Writer) { w.cfgFields = fields })
}

// WithMeta adds a file metadata pair to a fresh file's header.
func WithMeta(key, value string) WriterOption {
	return options.NoError(func(w *Writer) {
		w.cfgMeta = append(w.cfgMeta, section.MetaPair{Key: key, Value: value})
	})
}

// WithIndexSpacing makes the writer emit a "#\tt=" anchor comment each time
// the written byte count crosses a multiple of n. Zero (the default)
// disables anchors.
func WithIndexSpacing(n int64) WriterOption {
	return options.NoError(func(w *Writer) { w.indexSpacing = n })
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) WriterOption {
	return options.NoError(func(w *Writer) { w.clock = now })
}

func defaultValueFields() []section.FieldSpec {
	return []section.FieldSpec{
		{Name: FieldLevel, Default: "I", HasDefault: true},
		{Name: FieldMessage},
	}
}

func newWriterShell(opts []WriterOption) (*Writer, error) {
	w := &Writer{
		clock:     time.Now,
		cfgFormat: format.FormatTSV1,
		cfgScale:  1,
	}
	if err := options.Apply(w, opts...); err != nil {
		return nil, err
	}

	return w, nil
}

// Create creates a fresh log file. The file must not already exist; the
// header is emitted immediately and the exclusive write lock is held until
// Close.
func Create(path string, opts ...WriterOption) (*Writer, error) {
	w, err := newWriterShell(opts)
	if err != nil {
		return nil, err
	}

	hdr := &section.Header{Format: w.cfgFormat, Scale: w.cfgScale}
	fields := w.cfgFields
	if fields == nil {
		fields = defaultValueFields()
	}
	first := section.FieldSpec{Name: hdr.Format.FirstField()}
	if hdr.Format == format.FormatTSV0 {
		// A zero step suppresses to empty; tsv0 has no continuation syntax
		// to collide with.
		first.Default = "0"
		first.HasDefault = true
	}
	hdr.Fields = append([]section.FieldSpec{first}, fields...)
	hdr.Meta = append(hdr.Meta, w.cfgMeta...)

	return w.create(path, hdr)
}

// CreateFrom creates a fresh log file inheriting fields, defaults, scale and
// metadata from a template Reader or Writer. Used for rotation; the new file
// gets its own start_epoch.
func CreateFrom(path string, tpl HeaderSource, opts ...WriterOption) (*Writer, error) {
	w, err := newWriterShell(opts)
	if err != nil {
		return nil, err
	}

	return w.create(path, tpl.Header().Clone())
}

func (w *Writer) create(path string, hdr *section.Header) (*Writer, error) {
	w.hdr = hdr
	w.codec = recordCodec{hdr: hdr}

	w.initFreshClock()
	hdr.SetMeta("start_epoch", section.FormatEpoch(hdr.StartEpoch))
	if hdr.Scale != 1 {
		hdr.SetMeta("timestamp_scale", strconv.FormatInt(hdr.Scale, 10))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	lock, err := filelock.Acquire(f)
	if err != nil {
		f.Close()
		os.Remove(path)

		return nil, err
	}
	w.f = f
	w.lock = lock

	headerBytes := hdr.AppendTo(nil)
	n, err := f.Write(headerBytes)
	w.bytesWritten = int64(n)
	if err != nil {
		w.Close()
		return nil, err
	}
	if w.indexSpacing > 0 {
		w.nextAnchor = (w.bytesWritten/w.indexSpacing + 1) * w.indexSpacing
	}

	return w, nil
}

// initFreshClock samples the clocks for a fresh file: start_epoch is the
// wall time (truncated to whole seconds when the scale is 1), and the
// fractional remainder carries into the tick computation so ticks derive
// from monotonic elapsed time from here on.
func (w *Writer) initFreshClock() {
	w.s0 = w.clock()
	epoch := float64(w.s0.UnixNano()) / 1e9
	start := epoch
	if w.hdr.Scale == 1 {
		start = math.Trunc(epoch)
	}
	w.hdr.StartEpoch = start
	w.frac = epoch - start
	w.prevTicks = 0
}

// Append opens an existing log file for appending. The header is read back
// to recover the field vector, defaults, scale and metadata, and the tick
// counter continues from the file's final record.
func Append(path string, opts ...WriterOption) (*Writer, error) {
	rd, err := Open(path)
	if err != nil {
		return nil, err
	}
	hdr := rd.Header().Clone()
	if _, err := rd.SeekLast(); err != nil && !errors.Is(err, io.EOF) {
		rd.Close()
		return nil, err
	}
	lastTicks := rd.Ticks()
	// POSIX record locks are per process and dropped when any descriptor of
	// the file closes: the reader must be fully closed before locking.
	if err := rd.Close(); err != nil {
		return nil, err
	}

	// A crashed writer can leave an unterminated final line; the first
	// appended record must not glue onto it.
	needNL, err := endsWithoutNewline(path)
	if err != nil {
		return nil, err
	}

	w, err := newWriterShell(opts)
	if err != nil {
		return nil, err
	}
	w.hdr = hdr
	w.codec = recordCodec{hdr: hdr}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return nil, err
	}
	lock, err := filelock.Acquire(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.f = f
	w.lock = lock

	info, err := f.Stat()
	if err != nil {
		w.Close()
		return nil, err
	}
	w.bytesWritten = info.Size()
	if w.indexSpacing > 0 {
		w.nextAnchor = (w.bytesWritten/w.indexSpacing + 1) * w.indexSpacing
	}

	w.s0 = w.clock()
	w.frac = float64(w.s0.UnixNano())/1e9 - hdr.StartEpoch
	w.prevTicks = lastTicks
	w.needNL = needNL

	return w, nil
}

// endsWithoutNewline reports whether the file is non-empty and its final
// byte is not a newline.
func endsWithoutNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}

	var tail [1]byte
	if _, err := f.ReadAt(tail[:], info.Size()-1); err != nil {
		return false, err
	}

	return tail[0] != '\n', nil
}

// Header returns the file header. Treat it as read-only.
func (w *Writer) Header() *section.Header { return w.hdr }

// Ticks returns the tick counter of the most recently emitted record.
func (w *Writer) Ticks() uint64 { return w.prevTicks }

// Close completes any in-progress record, releases the write lock and
// closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if w.lock != nil {
		firstErr = w.lock.Release()
		w.lock = nil
	}
	if w.f != nil {
		if err := w.f.Close(); firstErr == nil {
			firstErr = err
		}
		w.f = nil
	}

	return firstErr
}

// currentTicks derives the tick counter from elapsed monotonic time.
func (w *Writer) currentTicks() uint64 {
	elapsed := w.clock().Sub(w.s0).Seconds()
	t := math.Floor((elapsed + w.frac) * float64(w.hdr.Scale))
	if t < 0 {
		return 0
	}

	return uint64(t)
}

// Emit writes one record with the given field values. Every key must be a
// declared field; missing fields fall back to their declared defaults on
// read. The record bytes are fully assembled before a single write call.
func (w *Writer) Emit(values map[string]string) error {
	if w.closed {
		return os.ErrClosed
	}

	t := w.currentTicks()
	var delta uint64
	abs := false
	switch {
	case t < w.prevTicks:
		// Wall clock moved backward relative to the tick base (append after
		// a jump). Clamp to keep the on-disk counter non-decreasing; tsv1
		// records the clamp as an absolute value.
		t = w.prevTicks
		if w.hdr.Format.SupportsAbsolute() {
			abs = true
			delta = t
		}
	default:
		delta = t - w.prevTicks
	}

	buf := pool.GetRecordBuffer()
	out := buf.Bytes()
	defer func() {
		buf.B = out
		pool.PutRecordBuffer(buf)
	}()

	if w.needNL {
		out = append(out, '\n')
	}
	if w.indexSpacing > 0 && w.bytesWritten >= w.nextAnchor {
		out = section.AppendAnchor(out, w.prevTicks)
		w.nextAnchor = (w.bytesWritten/w.indexSpacing + 1) * w.indexSpacing
	}

	var err error
	out, err = w.codec.encodeRecord(out, delta, abs, values)
	if err != nil {
		return err
	}

	n, werr := w.f.Write(out)
	w.bytesWritten += int64(n)
	if werr != nil {
		return werr
	}
	w.needNL = false
	w.prevTicks = t

	return nil
}

// Trace emits a TRACE record; see Emit. The argument convention is shared
// by all level helpers: positional arguments
// joined by single spaces form the message, and an optional trailing
// map[string]string supplies additional field values.
func (w *Writer) Trace(args ...any) error { return w.log(format.LevelTrace, args) }

// Debug emits a DEBUG record.
func (w *Writer) Debug(args ...any) error { return w.log(format.LevelDebug, args) }

// Info emits an INFO record.
func (w *Writer) Info(args ...any) error { return w.log(format.LevelInfo, args) }

// Warn emits a WARNING record.
func (w *Writer) Warn(args ...any) error { return w.log(format.LevelWarning, args) }

// Error emits an ERROR record.
func (w *Writer) Error(args ...any) error { return w.log(format.LevelError, args) }

// Crit emits a CRITICAL record.
func (w *Writer) Crit(args ...any) error { return w.log(format.LevelCritical, args) }

// Alert emits an ALERT record.
func (w *Writer) Alert(args ...any) error { return w.log(format.LevelAlert, args) }

// Emerg emits an EMERGENCY record.
func (w *Writer) Emerg(args ...any) error { return w.log(format.LevelEmergency, args) }

func (w *Writer) log(level string, args []any) error {
	values := make(map[string]string, 4)
	if n := len(args); n > 0 {
		if m, ok := args[n-1].(map[string]string); ok {
			for k, v := range m {
				values[k] = v
			}
			args = args[:n-1]
		}
	}
	if len(args) > 0 {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		values[FieldMessage] = strings.Join(parts, " ")
	}
	if w.hdr.FieldIndex(FieldLevel) > 0 {
		values[FieldLevel] = level
	}

	return w.Emit(values)
}
