package logfile

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func mergeSource(t *testing.T, startEpoch string, scale string, deltas ...string) *Reader {
	t.Helper()
	content := "#!hydralog-dump --in-format=tsv1\n" +
		"#% start_epoch=" + startEpoch + "\n" +
		"#: dT" + scale + "\tmessage\n"
	for i, d := range deltas {
		content += fmt.Sprintf("%s\tm%d\n", d, i)
	}

	r, err := NewBytesReader([]byte(content))
	require.NoError(t, err)

	return r
}

func drainMerge(t *testing.T, m *MergeReader) ([]float64, []string) {
	t.Helper()
	var timestamps []float64
	var msgs []string
	for {
		rec, err := m.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		timestamps = append(timestamps, rec.Timestamp())
		msgs = append(msgs, rec.Message())
	}

	return timestamps, msgs
}

func TestMergeReader_OrdersByTimestamp(t *testing.T) {
	// Three sources with differing start epochs and scales.
	a := mergeSource(t, "100", "", "0", "2")    // 100, 102
	b := mergeSource(t, "101", ":*2", "0", "1") // 101, 101.5
	c := mergeSource(t, "100", "", "0", "2")    // 100, 102 (ties with a)

	m, err := NewMergeReader(a, b, c)
	require.NoError(t, err)

	timestamps, msgs := drainMerge(t, m)
	require.Equal(t, []float64{100, 100, 101, 101.5, 102, 102}, timestamps)
	// Equal timestamps resolve by source position: a before c.
	require.Equal(t, []string{"m0", "m0", "m0", "m1", "m1", "m1"}, msgs)

	for i := 1; i < len(timestamps); i++ {
		require.GreaterOrEqual(t, timestamps[i], timestamps[i-1])
	}
}

func TestMergeReader_PeekMatchesNext(t *testing.T) {
	a := mergeSource(t, "100", "", "0", "4")
	b := mergeSource(t, "102", "", "0")

	m, err := NewMergeReader(a, b)
	require.NoError(t, err)

	p, err := m.Peek()
	require.NoError(t, err)
	n, err := m.Next()
	require.NoError(t, err)
	require.Same(t, p, n)
	require.Equal(t, 100.0, n.Timestamp())

	n, err = m.Next()
	require.NoError(t, err)
	require.Equal(t, 102.0, n.Timestamp())

	n, err = m.Next()
	require.NoError(t, err)
	require.Equal(t, 104.0, n.Timestamp())

	_, err = m.Next()
	require.ErrorIs(t, err, io.EOF)
	_, err = m.Peek()
	require.ErrorIs(t, err, io.EOF)
}

func TestMergeReader_Seek(t *testing.T) {
	a := mergeSource(t, "100", "", "0", "2")
	b := mergeSource(t, "101", "", "0", "2")

	m, err := NewMergeReader(a, b)
	require.NoError(t, err)

	require.NoError(t, m.Seek(101))
	timestamps, _ := drainMerge(t, m)
	require.Equal(t, []float64{101, 102, 103}, timestamps)

	// Seeking back is possible on seekable sources.
	require.NoError(t, m.Seek(0))
	timestamps, _ = drainMerge(t, m)
	require.Equal(t, []float64{100, 101, 102, 103}, timestamps)
}

func TestMergeReader_EmptySources(t *testing.T) {
	a := mergeSource(t, "100", "")

	m, err := NewMergeReader(a)
	require.NoError(t, err)

	_, err = m.Next()
	require.ErrorIs(t, err, io.EOF)
}
