package logfile

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hydralog/hydralog/errs"
)

// Reserved record field names.
const (
	FieldLevel    = "level"
	FieldFacility = "facility"
	FieldIdentity = "identity"
	FieldMessage  = "message"
)

// Record is one decoded log event: a timestamp plus named field values.
// Records returned by a Reader are read-only and may be shared; do not
// mutate the map returned by internal accessors.
type Record struct {
	epoch  float64
	ticks  uint64
	fields map[string]string
}

// Timestamp returns the absolute instant as (possibly fractional) seconds
// since the Unix epoch.
func (r *Record) Timestamp() float64 { return r.epoch }

// Ticks returns the raw tick counter value the record was decoded at.
func (r *Record) Ticks() uint64 { return r.ticks }

// Time returns the record instant as a time.Time in UTC.
func (r *Record) Time() time.Time { return r.TimeUTC() }

// TimeUTC returns the record instant in UTC.
func (r *Record) TimeUTC() time.Time {
	return epochToTime(r.epoch).UTC()
}

// TimeLocal returns the record instant in the local time zone.
func (r *Record) TimeLocal() time.Time {
	return epochToTime(r.epoch).Local()
}

// Level returns the canonicalized level, or "" when absent.
func (r *Record) Level() string { return r.fields[FieldLevel] }

// Message returns the message field, or "" when absent.
func (r *Record) Message() string { return r.fields[FieldMessage] }

// Facility returns the facility field, or "" when absent.
func (r *Record) Facility() string { return r.fields[FieldFacility] }

// Identity returns the identity field, or "" when absent.
func (r *Record) Identity() string { return r.fields[FieldIdentity] }

// Has reports whether the record carries the named field.
func (r *Record) Has(name string) bool {
	_, ok := r.fields[name]
	return ok
}

// Field returns the named field value. Accessing a field the record does not
// carry is an error; probe with Has first.
func (r *Record) Field(name string) (string, error) {
	v, ok := r.fields[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", errs.ErrUnknownField, name)
	}

	return v, nil
}

// FieldNames returns the names of the carried fields, sorted.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// String renders "<local-ts> <level> <facility> <identity>: <message>",
// omitting absent parts, without a trailing newline.
func (r *Record) String() string {
	var b strings.Builder
	b.WriteString(r.TimeLocal().Format("2006-01-02 15:04:05"))
	for _, name := range []string{FieldLevel, FieldFacility, FieldIdentity} {
		if v, ok := r.fields[name]; ok && v != "" {
			b.WriteByte(' ')
			b.WriteString(v)
		}
	}
	if msg, ok := r.fields[FieldMessage]; ok && msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}

	return b.String()
}

func epochToTime(epoch float64) time.Time {
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}
