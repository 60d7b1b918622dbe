// Package section models the leading comment sections of a hydralog file:
// the magic line, the "#%" metadata lines, the "#:" field declaration line,
// and the "#\tt=" anchor comments that may appear between records.
//
// A Header is assembled line by line while reading and emitted as a whole
// when writing; start_epoch and the timestamp scale are resolved once in
// Finalize and are immutable afterwards.
package section
