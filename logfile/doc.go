// Package logfile implements reading, writing, seeking and merging of the
// hydralog tsv0 and tsv1 on-disk formats.
//
// A Reader decodes records sequentially with a one-record look-ahead
// (Peek/Next), maintains a sparse in-memory index of (ticks, byte address)
// pairs as it goes, and uses it to serve time-based Seek calls. A Writer
// appends records with monotonic-derived tick counters under an exclusive
// advisory lock. A MergeReader multiplexes several Readers into one stream
// ordered by timestamp.
//
// None of the types are synchronized; each instance has a single owner.
package logfile
