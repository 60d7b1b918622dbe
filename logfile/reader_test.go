package logfile

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydralog/hydralog/errs"
)

const basicTSV1 = "#!hydralog-dump --in-format=tsv1\n" +
	"#% start_epoch=1577836800\n" +
	"#: dT\tlevel\tmessage\n" +
	"0\tINFO\tTesting 1\n" +
	"10\tWARN\tTesting 2\n"

// seekTSV1 holds records at raw ticks 0, 16, 32, 40, 44, 48 with a *16
// scale, so record timestamps are 1577836800 + 0, 1, 2, 2.5, 2.75, 3.
const seekTSV1 = "#!hydralog-dump --in-format=tsv1\n" +
	"#% start_epoch=1577836800\n" +
	"#: dT:*16\tlevel\tmessage\n" +
	"0\tI\tMsg1\n" +
	"G\tI\tMsg2\n" +
	"G\tI\tMsg3\n" +
	"8\tI\tMsg4\n" +
	"4\tI\tMsg5\n" +
	"4\tI\tMsg6\n"

func mustMessages(t *testing.T, r *Reader, n int) []string {
	t.Helper()
	msgs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rec, err := r.Next()
		require.NoError(t, err)
		msgs = append(msgs, rec.Message())
	}

	return msgs
}

func TestReader_BasicRead(t *testing.T) {
	r, err := NewBytesReader([]byte(basicTSV1))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, 1577836800.0, rec.Timestamp())
	require.Equal(t, "INFO", rec.Level())
	require.Equal(t, "Testing 1", rec.Message())

	// "10" is base-64 for 64.
	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, 1577836864.0, rec.Timestamp())
	require.Equal(t, "WARNING", rec.Level())
	require.Equal(t, "Testing 2", rec.Message())

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_PeekDoesNotConsume(t *testing.T) {
	r, err := NewBytesReader([]byte(basicTSV1))
	require.NoError(t, err)

	p1, err := r.Peek()
	require.NoError(t, err)
	p2, err := r.Peek()
	require.NoError(t, err)
	require.Same(t, p1, p2)

	n1, err := r.Next()
	require.NoError(t, err)
	require.Same(t, p1, n1)
}

func TestReader_SeekWithoutIndex(t *testing.T) {
	r, err := NewBytesReader([]byte(seekTSV1), WithAutoIndexPeriod(-1))
	require.NoError(t, err)

	require.NoError(t, r.Seek(1577836801))
	rec, err := r.Peek()
	require.NoError(t, err)
	require.Equal(t, "Msg2", rec.Message())

	require.NoError(t, r.Seek(0))
	rec, err = r.Peek()
	require.NoError(t, err)
	require.Equal(t, "Msg1", rec.Message())

	require.NoError(t, r.Seek(1577836803))
	rec, err = r.Peek()
	require.NoError(t, err)
	require.Equal(t, "Msg6", rec.Message())

	require.NoError(t, r.Seek(1577836803.1))
	_, err = r.Peek()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_AutoIndexGrowth(t *testing.T) {
	r, err := NewBytesReader([]byte(seekTSV1), WithAutoIndexPeriod(1))
	require.NoError(t, err)

	require.Equal(t, []string{"Msg1", "Msg2", "Msg3", "Msg4"}, mustMessages(t, r, 4))
	require.Equal(t, []uint64{0, 16, 32}, indexTicks(r))

	// Finish the linear scan; the final boundary lands at end of input.
	mustMessages(t, r, 2)
	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, []uint64{0, 16, 32, 40, 44, 48}, indexTicks(r))

	require.NoError(t, r.Seek(1577836802))
	rec, err := r.Peek()
	require.NoError(t, err)
	require.Equal(t, "Msg3", rec.Message())
}

func TestReader_AutoIndexCompaction(t *testing.T) {
	r, err := NewBytesReader([]byte(seekTSV1), WithAutoIndexPeriod(1), WithAutoIndexSize(4))
	require.NoError(t, err)

	for {
		_, err := r.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
	}

	// Reaching four entries compacts to every second one and doubles the
	// period, so only every other boundary is recorded afterwards.
	require.Equal(t, []uint64{0, 32, 48}, indexTicks(r))
	require.Equal(t, 2, r.idxPeriod)

	require.NoError(t, r.Seek(1577836802.5))
	rec, err := r.Peek()
	require.NoError(t, err)
	require.Equal(t, "Msg4", rec.Message())
}

func indexTicks(r *Reader) []uint64 {
	ticks := make([]uint64, len(r.index))
	for i, e := range r.index {
		ticks[i] = e.ticks
	}

	return ticks
}

func TestReader_Continuation(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tlevel\tmessage\n" +
		"0\tI\tline1\n" +
		"\t\tline2\n" +
		"\t\tline3\n" +
		"5\tW\tnext\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "line1\nline2\nline3", rec.Message())

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, "next", rec.Message())
	require.Equal(t, 105.0, rec.Timestamp())
}

func TestReader_ContinuationColumnOutOfRange(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tlevel\tmessage\n" +
		"0\tI\tok\n" +
		"\t\t\t\toops\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	_, err = r.Next()
	require.ErrorIs(t, err, errs.ErrContinuationColumn)
}

func TestReader_Defaults(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tlevel=I\tuser=\tmessage\n" +
		"0\t\t\thello\n" +
		"1\tE\tbob\tboom\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "INFO", rec.Level())
	// A declared-but-empty default makes empty a legal value.
	require.True(t, rec.Has("user"))
	user, err := rec.Field("user")
	require.NoError(t, err)
	require.Equal(t, "", user)

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, "ERROR", rec.Level())
	user, err = rec.Field("user")
	require.NoError(t, err)
	require.Equal(t, "bob", user)
}

func TestReader_EmptyFieldWithoutDefaultAbsent(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tlevel\tmessage\n" +
		"0\t\thello\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	// level has no default and was empty on disk.
	require.False(t, rec.Has(FieldLevel))
	_, err = rec.Field(FieldLevel)
	require.ErrorIs(t, err, errs.ErrUnknownField)
	require.Equal(t, "", rec.Level())
}

func TestReader_TSV0(t *testing.T) {
	content := "#!hydralog-dump --format=tsv0\n" +
		"#% start_epoch=100\tts_scale=2\n" +
		"#: timestamp_step_hex\tlevel\tmessage\n" +
		"A\tI\tfirst\n" +
		"\tW\tsecond\n" +
		"a\tE\tthird\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, 105.0, rec.Timestamp())
	require.Equal(t, "first", rec.Message())

	// An empty step leaves the counter unchanged; a TAB-leading line is a
	// plain record in tsv0.
	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, 105.0, rec.Timestamp())
	require.Equal(t, "WARNING", rec.Level())

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, 110.0, rec.Timestamp())
}

func TestReader_TSV0RejectsAbsolute(t *testing.T) {
	content := "#!hydralog-dump --format=tsv0\n" +
		"#% start_epoch=100\n" +
		"#: timestamp_step_hex\tmessage\n" +
		"=A\tnope\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	_, err = r.Next()
	require.ErrorIs(t, err, errs.ErrMalformedTicks)
}

func TestReader_AbsoluteCounter(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tmessage\n" +
		"5\tfirst\n" +
		"=A\tsecond\n" +
		"1\tthird\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(5), rec.Ticks())

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(10), rec.Ticks())

	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(11), rec.Ticks())
}

func TestReader_DecreasingAbsoluteIsFatal(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tmessage\n" +
		"=A\tfirst\n" +
		"=5\tsecond\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.ErrorIs(t, err, errs.ErrTickRegression)
}

func TestReader_ControlCharIsFatal(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tmessage\n" +
		"0\tbad\x01value\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	_, err = r.Next()
	require.ErrorIs(t, err, errs.ErrControlChar)
}

func TestReader_AnchorResetsCounter(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tmessage\n" +
		"5\tfirst\n" +
		"#\tt=20\n" +
		"0\tsecond\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(5), rec.Ticks())

	// The anchor carries hex 0x20 = 32 ticks.
	rec, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(32), rec.Ticks())
}

func TestReader_RegressiveAnchorIsFatal(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tmessage\n" +
		"A\tfirst\n" +
		"#\tt=1\n" +
		"0\tsecond\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.ErrorIs(t, err, errs.ErrTickRegression)
}

func TestReader_SkipsBlankAndCommentLines(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tmessage\n" +
		"# a stray comment\n" +
		"\n" +
		"0\thello\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "hello", rec.Message())
}

func TestReader_SeekLast(t *testing.T) {
	r, err := NewBytesReader([]byte(seekTSV1))
	require.NoError(t, err)

	rec, err := r.SeekLast()
	require.NoError(t, err)
	require.Equal(t, "Msg6", rec.Message())
	require.Equal(t, uint64(48), r.Ticks())

	_, err = r.Peek()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_SeekLastAbsoluteRecord(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tmessage\n" +
		"5\tfirst\n" +
		"=A\tlast\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	rec, err := r.SeekLast()
	require.NoError(t, err)
	require.Equal(t, "last", rec.Message())
	require.Equal(t, uint64(10), r.Ticks())
}

func TestReader_SeekLastUsesAnchor(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tmessage\n" +
		"5\tfirst\n" +
		"#\tt=10\n" +
		"2\tlast\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	rec, err := r.SeekLast()
	require.NoError(t, err)
	require.Equal(t, "last", rec.Message())
	require.Equal(t, uint64(18), r.Ticks())
}

func TestReader_SeekLastEmptyFile(t *testing.T) {
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=100\n" +
		"#: dT\tmessage\n"

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	_, err = r.SeekLast()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_HeaderErrors(t *testing.T) {
	cases := map[string]struct {
		content string
		want    error
	}{
		"missing magic": {
			content: "not a log file\n",
			want:    errs.ErrMissingMagic,
		},
		"unknown format": {
			content: "#!hydralog-dump --in-format=xml\n",
			want:    errs.ErrUnknownFormat,
		},
		"missing start_epoch": {
			content: "#!hydralog-dump --in-format=tsv1\n#: dT\tmessage\n",
			want:    errs.ErrMissingStartEpoch,
		},
		"first field mismatch": {
			content: "#!hydralog-dump --in-format=tsv1\n#% start_epoch=1\n#: timestamp_step_hex\tmessage\n",
			want:    errs.ErrFirstFieldMismatch,
		},
		"no field declaration": {
			content: "#!hydralog-dump --in-format=tsv1\n#% start_epoch=1\n",
			want:    errs.ErrMalformedHeader,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewBytesReader([]byte(tc.content))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestReader_DecodeCacheRescan(t *testing.T) {
	r, err := NewBytesReader([]byte(seekTSV1), WithDecodeCache(16))
	require.NoError(t, err)

	first := mustMessages(t, r, 6)

	require.NoError(t, r.Seek(0))
	second := mustMessages(t, r, 6)
	require.Equal(t, first, second)

	// Seek back once more; re-decode is served from the cache but the
	// stream must be identical either way.
	require.NoError(t, r.Seek(1577836802))
	rec, err := r.Peek()
	require.NoError(t, err)
	require.Equal(t, "Msg3", rec.Message())
}
