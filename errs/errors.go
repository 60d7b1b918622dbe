// Package errs defines the sentinel errors shared across the hydralog
// packages.
//
// Callers should test error conditions with errors.Is; most call sites wrap
// these sentinels with additional context using fmt.Errorf("%w: ...").
package errs

import "errors"

// Header errors. All of these are fatal at open time.
var (
	// ErrMissingMagic indicates the first line of the file is not a
	// "#!hydralog-dump" magic line.
	ErrMissingMagic = errors.New("missing hydralog magic line")

	// ErrUnknownFormat indicates the magic line names a format this library
	// does not implement.
	ErrUnknownFormat = errors.New("unknown log format")

	// ErrMissingStartEpoch indicates the header metadata lacks the required
	// start_epoch key.
	ErrMissingStartEpoch = errors.New("missing start_epoch in header")

	// ErrMalformedHeader indicates a header comment line that does not parse.
	ErrMalformedHeader = errors.New("malformed header line")

	// ErrDuplicateField indicates the field declaration line names the same
	// field twice, or more than one field declaration line is present.
	ErrDuplicateField = errors.New("duplicate field declaration")

	// ErrInvalidFieldName indicates a declared field name that does not match
	// the \w+ grammar.
	ErrInvalidFieldName = errors.New("invalid field name")

	// ErrFirstFieldMismatch indicates the first declared field is not the
	// format's timestamp field.
	ErrFirstFieldMismatch = errors.New("first field does not match format")
)

// Record decode errors. Fatal for the record being decoded; the reader
// surfaces them rather than skipping.
var (
	// ErrMalformedTicks indicates an unparsable tick counter field.
	ErrMalformedTicks = errors.New("malformed tick counter")

	// ErrTickRegression indicates a record whose tick counter moved backward.
	ErrTickRegression = errors.New("tick counter decreased")

	// ErrControlChar indicates a control character (other than the record
	// separator) inside decoded content.
	ErrControlChar = errors.New("control character in field value")

	// ErrContinuationColumn indicates a continuation line addressing a field
	// column beyond the declared field count.
	ErrContinuationColumn = errors.New("continuation column out of range")

	// ErrFieldCount indicates a record line with more fields than declared.
	ErrFieldCount = errors.New("record field count exceeds declaration")
)

// I/O and position errors.
var (
	// ErrAgain reports a transient read condition (interrupted or
	// would-block). The operation can be retried without losing state.
	ErrAgain = errors.New("resource temporarily unavailable, try again")

	// ErrAtStart reports a backward movement attempted before the first
	// record line.
	ErrAtStart = errors.New("at start of records")
)

// Writer errors.
var (
	// ErrFileLocked indicates another process holds the write lock on the
	// log file.
	ErrFileLocked = errors.New("file is being written by another process")
)

// Container errors.
var (
	// ErrTooManyValues indicates a bulk put larger than a sliding array's
	// capacity.
	ErrTooManyValues = errors.New("more values than capacity")
)

// Record access errors.
var (
	// ErrUnknownField indicates access to a field the record does not carry.
	ErrUnknownField = errors.New("unknown record field")
)
