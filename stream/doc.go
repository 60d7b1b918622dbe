// Package stream provides a bidirectional, line-addressed iterator over a
// byte source: a static buffer, a seekable file, or a non-seekable stream.
//
// The iterator loads the source in fixed power-of-two chunks kept in a map
// keyed by chunk start address, and caches discovered line-start addresses
// in a sliding window centered on the current line. Next and Prev either
// slide that window by one or discover one more boundary by scanning for
// '\n' across chunk boundaries.
//
// Lines are returned without their terminating newline and with a trailing
// '\r' stripped. A trailing partial line (no closing newline yet) is not a
// line: Next reports io.EOF for it, and on seekable sources the condition is
// retriable, so a growing file can be followed.
//
// Transient read conditions (EINTR, EAGAIN) surface as errs.ErrAgain without
// advancing any state.
package stream
