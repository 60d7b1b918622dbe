// Package compress provides transparent decompression of log file input.
//
// Rotated log files are commonly compressed in place; Detect recognizes the
// gzip, zstd, lz4 and s2/snappy framings by their magic bytes and NewReader
// wraps the input accordingly. Decompressed input is inherently
// non-seekable, so readers consume it through the streaming path.
package compress
