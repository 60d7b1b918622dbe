package logfile

import (
	"errors"
	"io"
)

// mergeEntry is one heap slot: the cached look-ahead timestamp of a source
// and its index. Keeping the epoch beside the index avoids re-peeking the
// source during heap repairs.
type mergeEntry struct {
	epoch float64
	src   int
}

// MergeReader multiplexes several Readers into one stream ordered by
// timestamp. Ties resolve by source position, so the merge is stable.
//
// The MergeReader borrows its sources; it does not close them.
type MergeReader struct {
	srcs []*Reader
	heap []mergeEntry
}

// NewMergeReader builds a merge over the given sources. Sources that are
// already exhausted simply contribute nothing.
func NewMergeReader(srcs ...*Reader) (*MergeReader, error) {
	m := &MergeReader{srcs: srcs}
	if err := m.rebuild(); err != nil {
		return nil, err
	}

	return m, nil
}

// rebuild re-peeks every source and reconstructs the heap.
func (m *MergeReader) rebuild() error {
	m.heap = m.heap[:0]
	for i, src := range m.srcs {
		rec, err := src.Peek()
		if errors.Is(err, io.EOF) {
			continue
		}
		if err != nil {
			return err
		}
		m.push(mergeEntry{epoch: rec.Timestamp(), src: i})
	}

	return nil
}

// Peek returns the earliest pending record without consuming it, or io.EOF
// when every source is exhausted.
func (m *MergeReader) Peek() (*Record, error) {
	if len(m.heap) == 0 {
		return nil, io.EOF
	}

	return m.srcs[m.heap[0].src].Peek()
}

// Next returns the earliest pending record and advances its source.
func (m *MergeReader) Next() (*Record, error) {
	if len(m.heap) == 0 {
		return nil, io.EOF
	}

	head := m.heap[0]
	rec, err := m.srcs[head.src].Next()
	if err != nil {
		return nil, err
	}

	next, perr := m.srcs[head.src].Peek()
	switch {
	case errors.Is(perr, io.EOF):
		m.popHead()
	case perr != nil:
		return nil, perr
	default:
		m.heap[0].epoch = next.Timestamp()
		m.siftDown(0)
	}

	return rec, nil
}

// Seek forwards the target epoch to every source and rebuilds the heap.
// Afterwards Peek returns the earliest record with timestamp >= epoch.
func (m *MergeReader) Seek(epoch float64) error {
	for _, src := range m.srcs {
		if err := src.Seek(epoch); err != nil {
			return err
		}
	}

	return m.rebuild()
}

// less orders entries by epoch, breaking ties by source index.
func (m *MergeReader) less(a, b mergeEntry) bool {
	if a.epoch != b.epoch {
		return a.epoch < b.epoch
	}

	return a.src < b.src
}

func (m *MergeReader) push(e mergeEntry) {
	m.heap = append(m.heap, e)
	m.siftUp(len(m.heap) - 1)
}

func (m *MergeReader) popHead() {
	last := len(m.heap) - 1
	m.heap[0] = m.heap[last]
	m.heap = m.heap[:last]
	if last > 0 {
		m.siftDown(0)
	}
}

func (m *MergeReader) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !m.less(m.heap[i], m.heap[parent]) {
			return
		}
		m.heap[i], m.heap[parent] = m.heap[parent], m.heap[i]
		i = parent
	}
}

func (m *MergeReader) siftDown(i int) {
	n := len(m.heap)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && m.less(m.heap[left], m.heap[smallest]) {
			smallest = left
		}
		if right < n && m.less(m.heap[right], m.heap[smallest]) {
			smallest = right
		}
		if smallest == i {
			return
		}
		m.heap[i], m.heap[smallest] = m.heap[smallest], m.heap[i]
		i = smallest
	}
}
