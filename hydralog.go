// Package hydralog reads, writes, seeks and merges the hydralog append-only
// log file formats: human-readable, tab-separated files with differential
// timestamp counters (designated tsv1, plus the historical tsv0).
//
// # Core Features
//
//   - Line-level access in both directions over files, buffers and streams
//   - Differential and absolute timestamp counters with configurable scale
//   - Field defaults with on-disk suppression (empty decodes to the default)
//   - Multi-line field values through TAB-indented continuation lines (tsv1)
//   - A self-building sparse index for fast time-based seeking
//   - Durable "#\tt=" anchor comments emitted at configurable byte spacing
//   - K-way timestamp-ordered merge over any number of files
//   - Exclusive advisory locking: at most one writer per file
//   - Transparent gzip/zstd/lz4/s2 input decompression for rotated files
//
// # Basic Usage
//
// Writing:
//
//	w, _ := hydralog.Create("app.log", logfile.WithScale(256),
//	    logfile.WithFields(
//	        section.FieldSpec{Name: "level", Default: "I", HasDefault: true},
//	        section.FieldSpec{Name: "facility"},
//	        section.FieldSpec{Name: "message"},
//	    ))
//	w.Info("service started")
//	w.Error("request failed", map[string]string{"facility": "api"})
//	w.Close()
//
// Reading:
//
//	r, _ := hydralog.Open("app.log")
//	defer r.Close()
//	for {
//	    rec, err := r.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    fmt.Println(rec)
//	}
//
// Seeking and merging:
//
//	r.Seek(epoch)                     // next record has timestamp >= epoch
//	m, _ := hydralog.Merge(r1, r2, r3) // one stream, ordered by timestamp
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the logfile
// package, which holds the Reader, Writer and MergeReader types. The stream
// package exposes the underlying bidirectional line iterator for callers
// that need raw line access.
package hydralog

import (
	"io"
	"os"

	"github.com/hydralog/hydralog/logfile"
)

// Open opens a log file for reading. Compressed files (gzip, zstd, lz4, s2)
// are detected by their magic bytes and read through the streaming path.
func Open(path string, opts ...logfile.ReaderOption) (*logfile.Reader, error) {
	return logfile.Open(path, opts...)
}

// OpenFile attaches a reader to an already-open file, starting at its
// current offset. The caller keeps ownership of the file.
func OpenFile(f *os.File, opts ...logfile.ReaderOption) (*logfile.Reader, error) {
	return logfile.NewFileReader(f, opts...)
}

// OpenStream attaches a reader to a non-seekable stream such as a pipe.
func OpenStream(r io.Reader, opts ...logfile.ReaderOption) (*logfile.Reader, error) {
	return logfile.NewStreamReader(r, opts...)
}

// OpenBytes attaches a reader to an in-memory buffer.
func OpenBytes(data []byte, opts ...logfile.ReaderOption) (*logfile.Reader, error) {
	return logfile.NewBytesReader(data, opts...)
}

// Create creates a fresh log file and returns a locked writer for it. The
// file must not already exist.
func Create(path string, opts ...logfile.WriterOption) (*logfile.Writer, error) {
	return logfile.Create(path, opts...)
}

// Append opens an existing log file for appending, continuing its tick
// counter from the final record.
func Append(path string, opts ...logfile.WriterOption) (*logfile.Writer, error) {
	return logfile.Append(path, opts...)
}

// CreateFrom creates a fresh log file inheriting its field vector, defaults,
// scale and metadata from a template reader or writer. Intended for
// rotation.
func CreateFrom(path string, tpl logfile.HeaderSource, opts ...logfile.WriterOption) (*logfile.Writer, error) {
	return logfile.CreateFrom(path, tpl, opts...)
}

// Merge multiplexes several readers into one stream ordered by timestamp,
// stable by argument position on ties.
func Merge(srcs ...*logfile.Reader) (*logfile.MergeReader, error) {
	return logfile.NewMergeReader(srcs...)
}
