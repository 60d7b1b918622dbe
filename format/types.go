package format

import "fmt"

// Format identifies one of the on-disk log file formats.
type Format uint8

const (
	// FormatTSV0 is the historical format: hexadecimal timestamp steps,
	// no absolute counter resets, no continuation lines.
	FormatTSV0 Format = 0x1

	// FormatTSV1 is the current format: base-64 differential counters with
	// optional absolute resets and multi-line field continuations.
	FormatTSV1 Format = 0x2
)

func (f Format) String() string {
	switch f {
	case FormatTSV0:
		return "tsv0"
	case FormatTSV1:
		return "tsv1"
	default:
		return "unknown"
	}
}

// FirstField returns the mandatory name of the first declared field for the
// format.
func (f Format) FirstField() string {
	if f == FormatTSV0 {
		return "timestamp_step_hex"
	}

	return "dT"
}

// SupportsContinuation reports whether record field values may span multiple
// physical lines in this format.
func (f Format) SupportsContinuation() bool {
	return f == FormatTSV1
}

// SupportsAbsolute reports whether the format's counter field accepts an
// absolute ("=" prefixed) value.
func (f Format) SupportsAbsolute() bool {
	return f == FormatTSV1
}

// Parse maps a format name from a magic line to its Format value.
func Parse(name string) (Format, error) {
	switch name {
	case "tsv0":
		return FormatTSV0, nil
	case "tsv1":
		return FormatTSV1, nil
	default:
		return 0, fmt.Errorf("unknown log format %q", name)
	}
}
