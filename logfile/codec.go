package logfile

import (
	"fmt"

	"github.com/hydralog/hydralog/encoding"
	"github.com/hydralog/hydralog/errs"
	"github.com/hydralog/hydralog/format"
	"github.com/hydralog/hydralog/section"
)

// recordCodec holds the per-file state shared by decode and encode: the
// header's field vector, defaults, start epoch and tick scale.
type recordCodec struct {
	hdr *section.Header
}

// tickField is the decoded form of a record's first field.
type tickField struct {
	value    uint64
	absolute bool
	update   bool
}

// decodeTicks parses the first field of a record line.
//
// tsv1 uses base-64 with an optional '=' prefix for absolute values; an
// empty field means no counter update. tsv0 uses hexadecimal differentials
// only; an empty field likewise leaves the counter unchanged.
func (c *recordCodec) decodeTicks(raw []byte) (tickField, error) {
	if len(raw) == 0 {
		return tickField{}, nil
	}

	if raw[0] == '=' {
		if !c.hdr.Format.SupportsAbsolute() {
			return tickField{}, fmt.Errorf("%w: absolute counter in %s", errs.ErrMalformedTicks, c.hdr.Format)
		}
		v, err := encoding.ParseBase64(raw[1:])
		if err != nil {
			return tickField{}, err
		}

		return tickField{value: v, absolute: true, update: true}, nil
	}

	var (
		v   uint64
		err error
	)
	if c.hdr.Format == format.FormatTSV0 {
		v, err = encoding.ParseHex(raw)
	} else {
		v, err = encoding.ParseBase64(raw)
	}
	if err != nil {
		return tickField{}, err
	}

	return tickField{value: v, update: true}, nil
}

// applyTicks advances the running counter by the decoded first field.
// A decreasing counter, differential overflow included, is a decode error.
func (c *recordCodec) applyTicks(cur uint64, tf tickField) (uint64, error) {
	if !tf.update {
		return cur, nil
	}
	if tf.absolute {
		if tf.value < cur {
			return 0, fmt.Errorf("%w: absolute %d below %d", errs.ErrTickRegression, tf.value, cur)
		}

		return tf.value, nil
	}

	next := cur + tf.value
	if next < cur {
		return 0, fmt.Errorf("%w: differential overflow", errs.ErrTickRegression)
	}

	return next, nil
}

// epochOf converts a counter value to an absolute timestamp.
func (c *recordCodec) epochOf(ticks uint64) float64 {
	return c.hdr.StartEpoch + float64(ticks)/float64(c.hdr.Scale)
}

// finishRecord turns the assembled raw field values (continuations already
// joined) into a Record: defaults applied, level canonicalized, content
// validated.
func (c *recordCodec) finishRecord(ticks uint64, raw []string) (*Record, error) {
	fields := make(map[string]string, len(c.hdr.Fields)-1)
	for i, spec := range c.hdr.Fields {
		if i == 0 {
			continue // tick counter, not a value field
		}
		var value string
		if i < len(raw) {
			value = raw[i]
		}
		if value == "" {
			if !spec.HasDefault {
				continue
			}
			value = spec.Default
		}
		if err := encoding.ValidateValue([]byte(value)); err != nil {
			return nil, fmt.Errorf("field %q: %w", spec.Name, err)
		}
		if spec.Name == FieldLevel {
			value = format.CanonicalLevel(value)
		}
		fields[spec.Name] = value
	}

	return &Record{
		epoch:  c.epochOf(ticks),
		ticks:  ticks,
		fields: fields,
	}, nil
}

// splitFields splits a record line on TAB without copying. A line with more
// fields than declared is malformed.
func (c *recordCodec) splitFields(line []byte) ([][]byte, error) {
	fields := make([][]byte, 0, len(c.hdr.Fields))
	start := 0
	for i := 0; i <= len(line); i++ {
		if i == len(line) || line[i] == '\t' {
			fields = append(fields, line[start:i])
			start = i + 1
		}
	}
	if len(fields) > len(c.hdr.Fields) {
		return nil, fmt.Errorf("%w: %d fields declared, %d present",
			errs.ErrFieldCount, len(c.hdr.Fields), len(fields))
	}

	return fields, nil
}

// encodeRecord appends one encoded record (primary line plus any
// continuation lines) to dst.
//
// The tick field carries the differential, or the absolute value when abs is
// set. Values equal to their declared default (after level aliasing) are
// suppressed to empty. In tsv1, values containing '\n' become continuation
// lines prefixed with the field's column index in TABs.
func (c *recordCodec) encodeRecord(dst []byte, delta uint64, abs bool, values map[string]string) ([]byte, error) {
	for name := range values {
		if c.hdr.FieldIndex(name) <= 0 {
			return nil, fmt.Errorf("%w: %q is not a declared field", errs.ErrUnknownField, name)
		}
	}

	type continuation struct {
		column int
		text   string
	}
	var continuations []continuation

	for i, spec := range c.hdr.Fields {
		if i > 0 {
			dst = append(dst, '\t')
		}

		if i == 0 {
			var encoded []byte
			if abs {
				encoded = append(encoded, '=')
				encoded = encoding.AppendBase64(encoded, delta)
			} else if c.hdr.Format == format.FormatTSV0 {
				encoded = encoding.AppendHex(nil, delta)
			} else {
				encoded = encoding.AppendBase64(nil, delta)
			}
			if spec.HasDefault && string(encoded) == spec.Default {
				continue // suppressed to empty
			}
			dst = append(dst, encoded...)

			continue
		}

		value := values[spec.Name]
		if spec.Name == FieldLevel && value != "" {
			value = format.WriterLevel(value)
		}
		value = sanitizeFor(c.hdr.Format, value)

		if spec.HasDefault && value == spec.Default {
			continue // suppressed to empty
		}

		if c.hdr.Format.SupportsContinuation() {
			if head, rest, multi := cutLine(value); multi {
				dst = append(dst, head...)
				continuations = append(continuations, continuation{column: i, text: rest})

				continue
			}
		}
		dst = append(dst, value...)
	}
	dst = append(dst, '\n')

	for _, cont := range continuations {
		rest := cont.text
		for {
			head, more, multi := cutLine(rest)
			for j := 0; j < cont.column; j++ {
				dst = append(dst, '\t')
			}
			dst = append(dst, head...)
			dst = append(dst, '\n')
			if !multi {
				break
			}
			rest = more
		}
	}

	return dst, nil
}

// sanitizeFor replaces forbidden control bytes with spaces. tsv0 has no
// continuation lines, so embedded newlines are replaced as well.
func sanitizeFor(f format.Format, value string) string {
	value = encoding.SanitizeValue(value)
	if !f.SupportsContinuation() {
		for i := 0; i < len(value); i++ {
			if value[i] == '\n' {
				b := []byte(value)
				for j, ch := range b {
					if ch == '\n' {
						b[j] = ' '
					}
				}
				value = string(b)
				break
			}
		}
	}

	return value
}

// cutLine splits value at its first newline.
func cutLine(value string) (head, rest string, multi bool) {
	for i := 0; i < len(value); i++ {
		if value[i] == '\n' {
			return value[:i], value[i+1:], true
		}
	}

	return value, "", false
}

// countTabs returns the number of leading TABs of a continuation line.
func countTabs(line []byte) int {
	n := 0
	for n < len(line) && line[n] == '\t' {
		n++
	}

	return n
}
