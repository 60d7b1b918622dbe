package logfile

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hydralog/hydralog/errs"
	"github.com/hydralog/hydralog/format"
	"github.com/hydralog/hydralog/section"
)

// fakeClock is a settable time source for deterministic tick tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var clockBase = time.Unix(1577836800, 0)

func TestWriter_WriteThenAppendTSV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	clk := &fakeClock{now: clockBase}

	w, err := Create(path,
		WithFormat(format.FormatTSV0),
		WithScale(256),
		WithClock(clk.Now),
	)
	require.NoError(t, err)

	clk.Advance(time.Second)
	require.NoError(t, w.Debug("debug"))
	require.NoError(t, w.Info("info"))
	clk.Advance(time.Second)
	require.NoError(t, w.Error("error"))
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(content), "#!hydralog-dump --format=tsv0\n"))
	require.Contains(t, string(content), "start_epoch=1577836800")
	require.Contains(t, string(content), "timestamp_scale=256")
	// Zero step and default level suppress to empty fields.
	require.Contains(t, string(content), "100\tD\tdebug\n\t\tinfo\n100\tE\terror\n")

	// Re-open for append; the tick counter continues monotonically.
	clk.Advance(time.Second)
	w2, err := Append(path, WithClock(clk.Now))
	require.NoError(t, err)
	clk.Advance(time.Second)
	require.NoError(t, w2.Warn("more"))
	require.NoError(t, w2.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var timestamps []float64
	var levels []string
	for {
		rec, err := r.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		timestamps = append(timestamps, rec.Timestamp())
		levels = append(levels, rec.Level())
	}

	require.Equal(t, []float64{1577836801, 1577836801, 1577836802, 1577836804}, timestamps)
	require.Equal(t, []string{"DEBUG", "INFO", "ERROR", "WARNING"}, levels)
}

func TestWriter_RoundTripTSV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	clk := &fakeClock{now: clockBase}

	w, err := Create(path, WithClock(clk.Now))
	require.NoError(t, err)
	require.NoError(t, w.Info("hello", "world"))
	clk.Advance(3 * time.Second)
	require.NoError(t, w.Error("boom"))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, 1577836800.0, rec.Timestamp())
	require.Equal(t, "INFO", rec.Level())
	require.Equal(t, "hello world", rec.Message())

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, 1577836803.0, rec.Timestamp())
	require.Equal(t, "ERROR", rec.Level())
}

func TestWriter_MultiLineRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	clk := &fakeClock{now: clockBase}

	w, err := Create(path, WithClock(clk.Now))
	require.NoError(t, err)
	require.NoError(t, w.Error("line1\nline2\nline3"))
	require.NoError(t, w.Info("after"))
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	// The message sits at column 2, so continuations carry two TABs.
	require.Contains(t, string(content), "\tE\tline1\n\t\tline2\n\t\tline3\n")

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "line1\nline2\nline3", rec.Message())

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, "after", rec.Message())
}

func TestWriter_ControlBytesSanitized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Info("bad\x01byte\tand tab"))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "bad byte and tab", rec.Message())
}

func TestWriter_ExtraFieldsViaMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	w, err := Create(path, WithFields(
		section.FieldSpec{Name: FieldLevel, Default: "I", HasDefault: true},
		section.FieldSpec{Name: FieldFacility},
		section.FieldSpec{Name: FieldMessage},
	))
	require.NoError(t, err)
	require.NoError(t, w.Warn("disk full", map[string]string{FieldFacility: "storage"}))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "WARNING", rec.Level())
	require.Equal(t, "storage", rec.Facility())
	require.Equal(t, "disk full", rec.Message())
}

func TestWriter_UndeclaredFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	err = w.Emit(map[string]string{"nosuch": "x"})
	require.ErrorIs(t, err, errs.ErrUnknownField)
}

func TestWriter_CreateRequiresFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0o644))

	_, err := Create(path)
	require.ErrorIs(t, err, os.ErrExist)
}

func TestWriter_AnchorsEmitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	clk := &fakeClock{now: clockBase}

	w, err := Create(path, WithClock(clk.Now), WithIndexSpacing(32))
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		clk.Advance(time.Second)
		require.NoError(t, w.Info("message number", i))
	}
	require.NoError(t, w.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "#\tt=")

	// Anchors are transparent to sequential reading and feed SeekLast.
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		count++
	}
	require.Equal(t, 8, count)

	last, err := r.SeekLast()
	require.NoError(t, err)
	require.Equal(t, "message number 7", last.Message())
}

func TestWriter_CreateFromTemplate(t *testing.T) {
	dir := t.TempDir()
	clk := &fakeClock{now: clockBase}

	w, err := Create(filepath.Join(dir, "a.log"),
		WithScale(16),
		WithClock(clk.Now),
		WithFields(
			section.FieldSpec{Name: FieldLevel, Default: "I", HasDefault: true},
			section.FieldSpec{Name: "user", HasDefault: true},
			section.FieldSpec{Name: FieldMessage},
		),
		WithMeta("host", "web1"),
	)
	require.NoError(t, err)
	require.NoError(t, w.Info("one"))

	clk.Advance(time.Hour)
	rotated, err := CreateFrom(filepath.Join(dir, "b.log"), w, WithClock(clk.Now))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, rotated.Info("two"))
	require.NoError(t, rotated.Close())

	r, err := Open(filepath.Join(dir, "b.log"))
	require.NoError(t, err)
	defer r.Close()

	// Fields, defaults, scale and metadata carry over; start_epoch is new.
	require.Equal(t, int64(16), r.Header().Scale)
	require.Equal(t, 3, r.Header().FieldIndex(FieldMessage))
	host, ok := r.Header().MetaValue("host")
	require.True(t, ok)
	require.Equal(t, "web1", host)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, clockBase.Add(time.Hour).Unix(), int64(rec.Timestamp()))
}

func TestWriter_AppendAfterPartialTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	clk := &fakeClock{now: clockBase}

	w, err := Create(path, WithClock(clk.Now))
	require.NoError(t, err)
	require.NoError(t, w.Info("complete"))
	require.NoError(t, w.Close())

	// Simulate a crashed writer that left an unterminated final line.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("1\t\ttrunc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	clk.Advance(2 * time.Second)
	w, err = Append(path, WithClock(clk.Now))
	require.NoError(t, err)
	require.NoError(t, w.Info("appended"))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "complete", rec.Message())

	// The completed stray line decodes as a record; the appended one follows
	// on its own line.
	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, "trunc", rec.Message())

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, "appended", rec.Message())
}

func TestWriter_GrowingFileVisibleToReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	clk := &fakeClock{now: clockBase}

	w, err := Create(path, WithClock(clk.Now))
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Info("first"))

	// A concurrent reader needs no coordination with the writer.
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "first", rec.Message())

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)

	clk.Advance(time.Second)
	require.NoError(t, w.Info("second"))

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, "second", rec.Message())
}
