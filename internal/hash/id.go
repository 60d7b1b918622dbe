// Package hash provides the xxHash64 helpers used for cache keys.
package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// ID64 computes the xxHash64 of the given byte slice without copying.
func ID64(data []byte) uint64 {
	return xxhash.Sum64(data)
}
