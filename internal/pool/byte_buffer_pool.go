package pool

import (
	"io"
	"sync"
)

const (
	// RecordBufferDefaultSize covers a typical encoded record with headroom
	// for multi-line values.
	RecordBufferDefaultSize  = 1024 * 4
	RecordBufferMaxThreshold = 1024 * 64

	// LineBufferDefaultSize covers chunk staging and continuation assembly.
	LineBufferDefaultSize  = 1024 * 64
	LineBufferMaxThreshold = 1024 * 512
)

// ByteBuffer is a reusable byte slice wrapper handed out by the pools below.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a new ByteBuffer with the specified initial capacity.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, defaultSize)}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte { return bb.B }

// Reset empties the buffer while retaining its allocation.
func (bb *ByteBuffer) Reset() { bb.B = bb.B[:0] }

// Len returns the length of the buffer.
func (bb *ByteBuffer) Len() int { return len(bb.B) }

// Cap returns the capacity of the buffer.
func (bb *ByteBuffer) Cap() int { return cap(bb.B) }

// MustWrite appends data, growing as needed.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

// WriteByte appends a single byte.
func (bb *ByteBuffer) WriteByte(c byte) error {
	bb.B = append(bb.B, c)
	return nil
}

// WriteString appends a string, growing as needed.
func (bb *ByteBuffer) WriteString(s string) {
	bb.B = append(bb.B, s...)
}

// Write implements io.Writer.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.B = append(bb.B, data...)
	return len(data), nil
}

// WriteTo writes the contents of the buffer to w.
func (bb *ByteBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(bb.B)
	return int64(n), err
}

// ByteBufferPool hands out ByteBuffers backed by a sync.Pool. Buffers that
// grew past the threshold are discarded on Put instead of being retained.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool producing buffers of the given initial
// capacity, discarding returned buffers larger than maxThreshold.
func NewByteBufferPool(defaultSize int, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any {
				return NewByteBuffer(defaultSize)
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves a ByteBuffer from the pool.
func (bbp *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := bbp.pool.Get().(*ByteBuffer)
	return bb
}

// Put returns a ByteBuffer to the pool for reuse.
func (bbp *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}
	if bbp.maxThreshold > 0 && cap(bb.B) > bbp.maxThreshold {
		return
	}
	bb.Reset()
	bbp.pool.Put(bb)
}

var (
	recordPool = NewByteBufferPool(RecordBufferDefaultSize, RecordBufferMaxThreshold)
	linePool   = NewByteBufferPool(LineBufferDefaultSize, LineBufferMaxThreshold)
)

// GetRecordBuffer retrieves a buffer sized for encoding a single record.
func GetRecordBuffer() *ByteBuffer { return recordPool.Get() }

// PutRecordBuffer returns a record buffer to its pool.
func PutRecordBuffer(bb *ByteBuffer) { recordPool.Put(bb) }

// GetLineBuffer retrieves a buffer sized for line and chunk staging.
func GetLineBuffer() *ByteBuffer { return linePool.Get() }

// PutLineBuffer returns a line buffer to its pool.
func PutLineBuffer(bb *ByteBuffer) { linePool.Put(bb) }
