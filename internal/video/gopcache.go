package video

import (
	"bytes"

	"github.com/vectrastream/transmux/internal/media"
)

const gopCacheCapacity = 6

type gopCacheEntry struct {
	sps, pps []byte
	gop      media.Gop
}

// gopCache is a bounded LRU of recent GOPs keyed by (SPS, PPS), used for
// GOP fusion. On eviction the evicted GOP's buffers are simply dropped
// (Go's GC reclaims them; there is no pooled-buffer recycling contract
// here).
type gopCache struct {
	entries []gopCacheEntry // most-recently-used at the end
}

func newGopCache() *gopCache { return &gopCache{} }

func (c *gopCache) add(gop media.Gop) {
	entry := gopCacheEntry{sps: gop.SPS, pps: gop.PPS, gop: gop}
	c.entries = append(c.entries, entry)
	if len(c.entries) > gopCacheCapacity {
		c.entries = c.entries[len(c.entries)-gopCacheCapacity:]
	}
}

// bestFusionCandidate finds the GOP with matching SPS/PPS whose distance
// from nalDts is within [-10000, 45000] (90 kHz units) and closest to
// zero. timelineStartDts excludes GOPs that precede the track's timeline
// start.
func (c *gopCache) bestFusionCandidate(sps, pps []byte, nalDts uint64, timelineStartDts uint64, timelineStartSet bool) (media.Gop, bool) {
	var (
		best      media.Gop
		bestDist  int64
		found     bool
	)
	for _, e := range c.entries {
		if !bytes.Equal(e.sps, sps) || !bytes.Equal(e.pps, pps) {
			continue
		}
		if timelineStartSet && e.gop.DTS < timelineStartDts {
			continue
		}
		dist := int64(nalDts-e.gop.DTS) - int64(e.gop.Duration)
		if dist < -10000 || dist > 45000 {
			continue
		}
		if !found || abs64(dist) < abs64(bestDist) {
			best, bestDist, found = e.gop, dist, true
		}
	}
	return best, found
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
