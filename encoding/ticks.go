package encoding

import (
	"fmt"

	"github.com/hydralog/hydralog/errs"
)

// base64Alphabet is the tsv1 counter alphabet, most significant digit first.
// Digit values run 0-9, A-Z, a-z, then '_' (62) and '-' (63).
const base64Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"

// base64Values maps a byte to its digit value, or -1.
var base64Values = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base64Alphabet); i++ {
		t[base64Alphabet[i]] = int8(i)
	}

	return t
}()

// AppendBase64 appends the base-64 representation of v to dst and returns
// the extended slice. Zero encodes as a single "0".
func AppendBase64(dst []byte, v uint64) []byte {
	if v == 0 {
		return append(dst, '0')
	}

	var tmp [11]byte // 64 bits / 6 bits per digit, rounded up
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = base64Alphabet[v&0x3f]
		v >>= 6
	}

	return append(dst, tmp[i:]...)
}

// ParseBase64 decodes a base-64 counter. The input must be non-empty and
// consist solely of alphabet digits.
func ParseBase64(s []byte) (uint64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("%w: empty base-64 integer", errs.ErrMalformedTicks)
	}

	var v uint64
	for _, c := range s {
		d := base64Values[c]
		if d < 0 {
			return 0, fmt.Errorf("%w: invalid base-64 digit %q", errs.ErrMalformedTicks, c)
		}
		if v > (^uint64(0))>>6 {
			return 0, fmt.Errorf("%w: base-64 integer overflow", errs.ErrMalformedTicks)
		}
		v = v<<6 | uint64(d)
	}

	return v, nil
}

const hexDigits = "0123456789ABCDEF"

// AppendHex appends the uppercase hexadecimal representation of v to dst.
// Zero encodes as a single "0".
func AppendHex(dst []byte, v uint64) []byte {
	if v == 0 {
		return append(dst, '0')
	}

	var tmp [16]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = hexDigits[v&0xf]
		v >>= 4
	}

	return append(dst, tmp[i:]...)
}

// ParseHex decodes a hexadecimal counter, accepting both digit cases.
func ParseHex(s []byte) (uint64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("%w: empty hex integer", errs.ErrMalformedTicks)
	}

	var v uint64
	for _, c := range s {
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'A' && c <= 'F':
			d = uint64(c-'A') + 10
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		default:
			return 0, fmt.Errorf("%w: invalid hex digit %q", errs.ErrMalformedTicks, c)
		}
		if v > (^uint64(0))>>4 {
			return 0, fmt.Errorf("%w: hex integer overflow", errs.ErrMalformedTicks)
		}
		v = v<<4 | d
	}

	return v, nil
}
