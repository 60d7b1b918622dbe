// Package encoding implements the integer tick codecs used by the hydralog
// record formats: the base-64 counter encoding of tsv1 and the hexadecimal
// step encoding of tsv0, plus the control-character scan shared by the
// record layer.
//
// Both codecs follow the append style: encoders append to a caller-provided
// byte slice, decoders parse a byte slice without copying.
package encoding
