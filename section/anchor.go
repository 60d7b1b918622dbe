package section

import (
	"bytes"

	"github.com/hydralog/hydralog/encoding"
)

// ParseAnchor recognizes a "#\tt=<hex>" anchor comment and returns the tick
// value it carries. Lines that are not anchors report ok=false; an anchor
// with a malformed tick value is treated as an ordinary comment.
func ParseAnchor(line []byte) (ticks uint64, ok bool) {
	if !bytes.HasPrefix(line, []byte(anchorPrefix)) {
		return 0, false
	}

	v, err := encoding.ParseHex(line[len(anchorPrefix):])
	if err != nil {
		return 0, false
	}

	return v, true
}

// AppendAnchor emits an anchor comment line for the given tick value.
func AppendAnchor(dst []byte, ticks uint64) []byte {
	dst = append(dst, anchorPrefix...)
	dst = encoding.AppendHex(dst, ticks)

	return append(dst, '\n')
}
