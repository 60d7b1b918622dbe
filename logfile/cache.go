package logfile

import (
	"github.com/hydralog/hydralog/internal/hash"
	"github.com/hydralog/hydralog/internal/recent"
)

// cachedDecode is one decode-cache entry: the decoded record, the counter
// value after it, and how many physical lines it spans.
type cachedDecode struct {
	rec      *Record
	endTicks uint64
	nlines   int
}

// decodeCache remembers recently decoded records so a re-scan over the same
// region (repeated Seek calls backing up over the same records) skips the
// parse. Keys combine the raw primary line, its address, and the counter
// value the decode started from, so a hit is only possible when the decode
// context is identical.
type decodeCache struct {
	max  int
	seen *recent.Set[uint64]
	recs map[uint64]cachedDecode
}

func newDecodeCache(max int) *decodeCache {
	return &decodeCache{
		max:  max,
		seen: recent.New[uint64](),
		recs: make(map[uint64]cachedDecode, max),
	}
}

func (c *decodeCache) get(key uint64) (cachedDecode, bool) {
	cd, ok := c.recs[key]
	if ok {
		c.seen.Touch(key)
	}

	return cd, ok
}

func (c *decodeCache) put(key uint64, cd cachedDecode) {
	c.recs[key] = cd
	c.seen.Touch(key)
	for _, evicted := range c.seen.Truncate(c.max) {
		delete(c.recs, evicted)
	}
}

func cacheKey(line []byte, addr int64, startTicks uint64) uint64 {
	const mix1 = 0x9e3779b97f4a7c15
	const mix2 = 0xff51afd7ed558ccd

	return hash.ID64(line) ^ uint64(addr)*mix1 ^ startTicks*mix2
}
