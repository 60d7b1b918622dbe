package compress

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a recognized input compression framing.
type Type uint8

const (
	// TypeNone marks plain, uncompressed input.
	TypeNone Type = iota
	TypeGzip
	TypeZstd
	TypeLZ4
	TypeS2
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	case TypeLZ4:
		return "lz4"
	case TypeS2:
		return "s2"
	default:
		return "unknown"
	}
}

var magics = []struct {
	prefix []byte
	typ    Type
}{
	{[]byte{0x1f, 0x8b}, TypeGzip},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, TypeZstd},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, TypeLZ4},
	{[]byte{0xff, 0x06, 0x00, 0x00, 'S', '2', 's', 'T', 'w', 'O'}, TypeS2},
	{[]byte{0xff, 0x06, 0x00, 0x00, 's', 'N', 'a', 'P', 'p', 'Y'}, TypeS2},
}

// sniffLen is the longest magic prefix Detect needs.
const sniffLen = 10

// Detect recognizes the compression framing from the first bytes of input.
func Detect(prefix []byte) Type {
	for _, m := range magics {
		if bytes.HasPrefix(prefix, m.prefix) {
			return m.typ
		}
	}

	return TypeNone
}

// NewReader sniffs r and returns a reader yielding decompressed bytes, along
// with the detected framing. Plain input is passed through unchanged (via
// the sniff buffer).
func NewReader(r io.Reader) (io.Reader, Type, error) {
	br := bufio.NewReader(r)
	prefix, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF {
		return nil, TypeNone, err
	}

	typ := Detect(prefix)
	switch typ {
	case TypeNone:
		return br, TypeNone, nil
	case TypeGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, typ, fmt.Errorf("opening gzip input: %w", err)
		}

		return zr, typ, nil
	case TypeZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, typ, fmt.Errorf("opening zstd input: %w", err)
		}

		return zr.IOReadCloser(), typ, nil
	case TypeLZ4:
		return lz4.NewReader(br), typ, nil
	case TypeS2:
		return s2.NewReader(br), typ, nil
	default:
		return br, TypeNone, nil
	}
}
