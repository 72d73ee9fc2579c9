package calib

import (
	"fmt"
	"math"
	"sync"
)

// LUT sizes the firmware accepts.
const (
	Size12 = 4096
	Size16 = 65536
)

// LUT is a dense table mapping every input index in [0, Size) to a drive
// level. Derived data: rebuild it from the curve, never edit it.
type LUT struct {
	Channel Channel
	Size    int
	Table   []uint16
	// NonMonotonic counts adjacent index pairs where the table decreases.
	// Non-zero means the user entered non-monotonic control points; the
	// table is emitted as-is and the count surfaced as a warning.
	NonMonotonic int
}

// Materialize samples the curve at every index of a size-entry table.
// When size differs from the curve's native resolution the index is
// resampled into the native domain with round-half-up, so a 16-bit
// calibration can be exported at 12-bit resolution and vice versa.
func Materialize(c Curve, depth BitDepth, ch Channel, size int) (*LUT, error) {
	if size != Size12 && size != Size16 {
		return nil, fmt.Errorf("unsupported LUT size %d", size)
	}
	inMax := float64(depth.Max())
	outMax := depth.Max()
	scale := inMax / float64(size-1)

	l := &LUT{Channel: ch, Size: size, Table: make([]uint16, size)}
	prev := 0
	for i := 0; i < size; i++ {
		x := int(math.Floor(float64(i)*scale + 0.5))
		v := clampInt(Evaluate(c, depth, x), 0, outMax)
		l.Table[i] = uint16(v)
		if i > 0 && v < prev {
			l.NonMonotonic++
		}
		prev = v
	}
	return l, nil
}

type cacheKey struct {
	ch   Channel
	size int
}

type cacheEntry struct {
	rev uint64
	lut *LUT
}

// Cache memoizes one materialized LUT per (channel, size), keyed off the
// profile's per-channel revision so any edit invalidates lazily on the
// next read.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]cacheEntry)}
}

// Get returns the cached LUT for (channel, size), materializing it when
// missing or stale.
func (cc *Cache) Get(p *Profile, ch Channel, size int) (*LUT, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	key := cacheKey{ch: ch, size: size}
	rev := p.Revision(ch)
	if e, ok := cc.entries[key]; ok && e.rev == rev {
		return e.lut, nil
	}
	l, err := Materialize(p.Curve(ch), p.Depth(), ch, size)
	if err != nil {
		return nil, err
	}
	cc.entries[key] = cacheEntry{rev: rev, lut: l}
	return l, nil
}
