package section

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hydralog/hydralog/errs"
	"github.com/hydralog/hydralog/format"
)

const (
	magicPrefix   = "#!hydralog-dump"
	metaPrefix    = "#%"
	fieldPrefix   = "#:"
	anchorPrefix  = "#\tt="
	formatArg     = "--in-format="
	legacyArg     = "--format="
	scaleKey      = "timestamp_scale"
	scaleKeyTSV0  = "ts_scale"
	startEpochKey = "start_epoch"
)

var fieldNameRe = regexp.MustCompile(`^\w+$`)

// FieldSpec describes one declared record field.
type FieldSpec struct {
	// Name is the field name, matching \w+.
	Name string

	// Encoding is the raw attribute after ':' in the declaration. It is
	// informational ("UTF-8") except on the first field, where "*N" declares
	// the tick scale. It is preserved on round-trip and never validated.
	Encoding string

	// Default is the value an empty field decodes to. Meaningful only when
	// HasDefault is set; a present-but-empty default makes empty a legal
	// stored value.
	Default    string
	HasDefault bool
}

// MetaPair is one K=V entry from a "#%" metadata line. Order is preserved.
type MetaPair struct {
	Key   string
	Value string
}

// Header is the decoded leading section of a log file.
type Header struct {
	Format format.Format

	// LegacyMagic records whether the magic line used the historical
	// --format= argument instead of --in-format=.
	LegacyMagic bool

	Meta   []MetaPair
	Fields []FieldSpec

	// StartEpoch and Scale are resolved by Finalize and immutable afterwards.
	StartEpoch float64
	Scale      int64
}

// ParseMagic parses the mandatory first line of a file.
// It returns the declared format and whether the legacy --format= spelling
// was used.
func ParseMagic(line []byte) (format.Format, bool, error) {
	s := string(line)
	if !strings.HasPrefix(s, magicPrefix) {
		return 0, false, fmt.Errorf("%w: got %q", errs.ErrMissingMagic, truncateForError(s))
	}

	rest := s[len(magicPrefix):]
	for _, arg := range strings.Fields(rest) {
		if name, ok := strings.CutPrefix(arg, formatArg); ok {
			f, err := format.Parse(name)
			if err != nil {
				return 0, false, fmt.Errorf("%w: %q", errs.ErrUnknownFormat, name)
			}

			return f, false, nil
		}
		if name, ok := strings.CutPrefix(arg, legacyArg); ok {
			f, err := format.Parse(name)
			if err != nil {
				return 0, false, fmt.Errorf("%w: %q", errs.ErrUnknownFormat, name)
			}

			return f, true, nil
		}
	}

	return 0, false, fmt.Errorf("%w: no format argument in magic line", errs.ErrUnknownFormat)
}

// IsMeta reports whether line is a "#%" metadata line.
func IsMeta(line []byte) bool {
	return bytes.HasPrefix(line, []byte(metaPrefix))
}

// IsFieldDecl reports whether line is a "#:" field declaration line.
func IsFieldDecl(line []byte) bool {
	return bytes.HasPrefix(line, []byte(fieldPrefix))
}

// IsComment reports whether line is any comment line.
func IsComment(line []byte) bool {
	return len(line) > 0 && line[0] == '#'
}

// ApplyMeta merges one "#%" line into the header metadata.
func (h *Header) ApplyMeta(line []byte) error {
	body := strings.TrimPrefix(string(line), metaPrefix)
	body = strings.TrimLeft(body, " ")
	if body == "" {
		return nil
	}

	for _, item := range strings.Split(body, "\t") {
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok || key == "" {
			return fmt.Errorf("%w: metadata item %q is not K=V", errs.ErrMalformedHeader, item)
		}
		h.Meta = append(h.Meta, MetaPair{Key: key, Value: value})
	}

	return nil
}

// ApplyFieldDecl parses the single "#:" field declaration line.
// A second declaration line is an error.
func (h *Header) ApplyFieldDecl(line []byte) error {
	if h.Fields != nil {
		return fmt.Errorf("%w: second field declaration line", errs.ErrDuplicateField)
	}

	body := strings.TrimPrefix(string(line), fieldPrefix)
	body = strings.TrimLeft(body, " ")
	items := strings.Split(body, "\t")
	if len(items) == 0 || items[0] == "" {
		return fmt.Errorf("%w: empty field declaration", errs.ErrMalformedHeader)
	}

	seen := make(map[string]struct{}, len(items))
	fields := make([]FieldSpec, 0, len(items))
	for _, item := range items {
		spec, err := parseFieldSpec(item)
		if err != nil {
			return err
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("%w: field %q", errs.ErrDuplicateField, spec.Name)
		}
		seen[spec.Name] = struct{}{}
		fields = append(fields, spec)
	}

	if fields[0].Name != h.Format.FirstField() {
		return fmt.Errorf("%w: first field %q, want %q for %s",
			errs.ErrFirstFieldMismatch, fields[0].Name, h.Format.FirstField(), h.Format)
	}

	h.Fields = fields

	return nil
}

func parseFieldSpec(item string) (FieldSpec, error) {
	var spec FieldSpec

	nameEnc, def, hasDefault := strings.Cut(item, "=")
	name, enc, _ := strings.Cut(nameEnc, ":")
	if !fieldNameRe.MatchString(name) {
		return spec, fmt.Errorf("%w: %q", errs.ErrInvalidFieldName, name)
	}

	spec.Name = name
	spec.Encoding = enc
	spec.Default = def
	spec.HasDefault = hasDefault

	return spec, nil
}

// Finalize resolves start_epoch and the timestamp scale and validates the
// header is complete. It must be called once after the last header line.
func (h *Header) Finalize() error {
	if h.Fields == nil {
		return fmt.Errorf("%w: missing field declaration line", errs.ErrMalformedHeader)
	}

	epoch, ok := h.MetaValue(startEpochKey)
	if !ok {
		return errs.ErrMissingStartEpoch
	}
	parsed, err := strconv.ParseFloat(epoch, 64)
	if err != nil {
		return fmt.Errorf("%w: start_epoch %q: %v", errs.ErrMalformedHeader, epoch, err)
	}
	h.StartEpoch = parsed

	h.Scale = 1
	if enc := h.Fields[0].Encoding; strings.HasPrefix(enc, "*") {
		n, err := strconv.ParseInt(enc[1:], 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: tick scale %q", errs.ErrMalformedHeader, enc)
		}
		h.Scale = n
	} else if v, ok := h.scaleMeta(); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: timestamp scale %q", errs.ErrMalformedHeader, v)
		}
		h.Scale = n
	}

	return nil
}

func (h *Header) scaleMeta() (string, bool) {
	if v, ok := h.MetaValue(scaleKey); ok {
		return v, true
	}

	return h.MetaValue(scaleKeyTSV0)
}

// MetaValue returns the first metadata value for key.
func (h *Header) MetaValue(key string) (string, bool) {
	for _, p := range h.Meta {
		if p.Key == key {
			return p.Value, true
		}
	}

	return "", false
}

// SetMeta replaces the first metadata entry for key, or appends one.
func (h *Header) SetMeta(key, value string) {
	for i, p := range h.Meta {
		if p.Key == key {
			h.Meta[i].Value = value
			return
		}
	}
	h.Meta = append(h.Meta, MetaPair{Key: key, Value: value})
}

// FieldIndex returns the column of the named field, or -1.
func (h *Header) FieldIndex(name string) int {
	for i, f := range h.Fields {
		if f.Name == name {
			return i
		}
	}

	return -1
}

// Clone returns a deep copy. Writers constructed from a template use this so
// the template's header stays immutable.
func (h *Header) Clone() *Header {
	cloned := *h
	cloned.Meta = append([]MetaPair(nil), h.Meta...)
	cloned.Fields = append([]FieldSpec(nil), h.Fields...)

	return &cloned
}

// AppendTo emits the complete header: magic line, one metadata line when any
// metadata is present, and the field declaration line.
func (h *Header) AppendTo(dst []byte) []byte {
	dst = append(dst, magicPrefix...)
	if h.Format == format.FormatTSV0 || h.LegacyMagic {
		dst = append(dst, ' ')
		dst = append(dst, legacyArg...)
	} else {
		dst = append(dst, ' ')
		dst = append(dst, formatArg...)
	}
	dst = append(dst, h.Format.String()...)
	dst = append(dst, '\n')

	if len(h.Meta) > 0 {
		dst = append(dst, metaPrefix...)
		dst = append(dst, ' ')
		for i, p := range h.Meta {
			if i > 0 {
				dst = append(dst, '\t')
			}
			dst = append(dst, p.Key...)
			dst = append(dst, '=')
			dst = append(dst, p.Value...)
		}
		dst = append(dst, '\n')
	}

	dst = append(dst, fieldPrefix...)
	dst = append(dst, ' ')
	for i, f := range h.Fields {
		if i > 0 {
			dst = append(dst, '\t')
		}
		dst = append(dst, f.Name...)
		if f.Encoding != "" {
			dst = append(dst, ':')
			dst = append(dst, f.Encoding...)
		}
		if f.HasDefault {
			dst = append(dst, '=')
			dst = append(dst, f.Default...)
		}
	}
	dst = append(dst, '\n')

	return dst
}

// FormatEpoch renders an epoch value the way headers store it: integral
// values without a fraction, fractional values in full precision.
func FormatEpoch(epoch float64) string {
	if epoch == math.Trunc(epoch) {
		return strconv.FormatInt(int64(epoch), 10)
	}

	return strconv.FormatFloat(epoch, 'f', -1, 64)
}

func truncateForError(s string) string {
	const max = 40
	if len(s) > max {
		return s[:max] + "..."
	}

	return s
}
