package encoding

import (
	"fmt"

	"github.com/hydralog/hydralog/errs"
)

// IndexControlChar returns the index of the first control character
// (0x00-0x1F) in s other than '\n', or -1.
//
// The record separator '\n' is tolerated because decoded multi-line field
// values legitimately contain it; every other control byte is forbidden in
// stored values.
func IndexControlChar(s []byte) int {
	for i, c := range s {
		if c < 0x20 && c != '\n' {
			return i
		}
	}

	return -1
}

// ValidateValue reports an error if s contains a forbidden control byte.
func ValidateValue(s []byte) error {
	if i := IndexControlChar(s); i >= 0 {
		return fmt.Errorf("%w: byte 0x%02x at offset %d", errs.ErrControlChar, s[i], i)
	}

	return nil
}

// SanitizeValue replaces every control byte other than '\n' with a space,
// returning s unchanged when it is already clean. The writer applies this to
// outgoing field values so a stored record can never violate the character
// set invariant.
func SanitizeValue(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 && s[i] != '\n' {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	b := []byte(s)
	for i, c := range b {
		if c < 0x20 && c != '\n' {
			b[i] = ' '
		}
	}

	return string(b)
}
