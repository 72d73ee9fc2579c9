package calib

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrDuplicateInput is returned when a mutation would leave two points
	// with the same input on one channel.
	ErrDuplicateInput = errors.New("duplicate input")
	// ErrOutOfRange is returned when a point falls outside [0, depth max].
	ErrOutOfRange = errors.New("value out of range")
	// ErrMinimumPoints is returned when a removal would leave fewer than
	// two points on a channel.
	ErrMinimumPoints = errors.New("curve needs at least 2 points")
	// ErrUnknownPoint is returned when no point with the given input exists.
	ErrUnknownPoint = errors.New("no point at that input")
)

// Profile owns the three editable channel curves for one session. All
// mutations go through it so the sorted-unique invariant always holds and
// cached LUTs can be invalidated per channel.
type Profile struct {
	depth  BitDepth
	curves [3]Curve
	revs   [3]uint64
}

// NewProfile builds the default profile for the given bit depth: per channel
// the identity endpoints plus a near-zero point and the midpoint, matching
// the shape a fresh calibration session starts from.
func NewProfile(depth BitDepth) *Profile {
	max := depth.Max()
	nearZero := int(math.Floor(float64(max)*0.01 + 0.5))
	mid := int(math.Floor(float64(max)*0.5 + 0.5))
	p := &Profile{depth: depth}
	for ch := range p.curves {
		p.curves[ch] = Curve{
			Mode: ModeSmooth,
			Points: []Point{
				{Input: 0, Output: 0},
				{Input: nearZero, Output: 0},
				{Input: mid, Output: max / 2},
				{Input: max, Output: max},
			},
		}
	}
	return p
}

// BuildProfile assembles a profile from fully specified curves, validating
// every invariant. Used by the profile codec; interactive editing starts
// from NewProfile instead.
func BuildProfile(depth BitDepth, red, green, blue Curve) (*Profile, error) {
	if !depth.Valid() {
		return nil, fmt.Errorf("bit depth %d: %w", int(depth), ErrOutOfRange)
	}
	p := &Profile{depth: depth}
	for ch, c := range []Curve{red, green, blue} {
		c = c.Clone()
		sort.Slice(c.Points, func(i, j int) bool { return c.Points[i].Input < c.Points[j].Input })
		if len(c.Points) < 2 {
			return nil, fmt.Errorf("%s: %w", Channel(ch), ErrMinimumPoints)
		}
		for i, pt := range c.Points {
			if err := p.checkRange(pt); err != nil {
				return nil, fmt.Errorf("%s point (%d,%d): %w", Channel(ch), pt.Input, pt.Output, err)
			}
			if i > 0 && c.Points[i-1].Input == pt.Input {
				return nil, fmt.Errorf("%s input %d: %w", Channel(ch), pt.Input, ErrDuplicateInput)
			}
		}
		if c.Threshold < 0 || c.Threshold > p.depth.Max() {
			return nil, fmt.Errorf("%s threshold %d: %w", Channel(ch), c.Threshold, ErrOutOfRange)
		}
		p.curves[ch] = c
	}
	return p, nil
}

// Depth returns the profile's bit depth.
func (p *Profile) Depth() BitDepth { return p.depth }

// Curve returns a copy of the channel's curve. Callers never get a handle
// into the store's own slices.
func (p *Profile) Curve(ch Channel) Curve { return p.curves[ch].Clone() }

// Revision returns a counter bumped on every mutation of the channel.
// Cached derived data (materialized LUTs) keys off it.
func (p *Profile) Revision(ch Channel) uint64 { return p.revs[ch] }

func (p *Profile) checkRange(pt Point) error {
	max := p.depth.Max()
	if pt.Input < 0 || pt.Input > max || pt.Output < 0 || pt.Output > max {
		return ErrOutOfRange
	}
	return nil
}

// Add inserts a new control point, keeping the slice sorted by input.
// The store is unchanged on failure.
func (p *Profile) Add(ch Channel, pt Point) error {
	if err := p.checkRange(pt); err != nil {
		return err
	}
	c := &p.curves[ch]
	i := sort.Search(len(c.Points), func(i int) bool { return c.Points[i].Input >= pt.Input })
	if i < len(c.Points) && c.Points[i].Input == pt.Input {
		return fmt.Errorf("%s input %d: %w", ch, pt.Input, ErrDuplicateInput)
	}
	c.Points = append(c.Points, Point{})
	copy(c.Points[i+1:], c.Points[i:])
	c.Points[i] = pt
	p.revs[ch]++
	return nil
}

// Update replaces the point currently at input with pt. Changing the input
// re-sorts; moving onto another point's input is rejected.
func (p *Profile) Update(ch Channel, input int, pt Point) error {
	if err := p.checkRange(pt); err != nil {
		return err
	}
	c := &p.curves[ch]
	at := p.indexOf(ch, input)
	if at < 0 {
		return fmt.Errorf("%s input %d: %w", ch, input, ErrUnknownPoint)
	}
	if pt.Input != input {
		if j := p.indexOf(ch, pt.Input); j >= 0 {
			return fmt.Errorf("%s input %d: %w", ch, pt.Input, ErrDuplicateInput)
		}
	}
	c.Points[at] = pt
	sort.Slice(c.Points, func(i, j int) bool { return c.Points[i].Input < c.Points[j].Input })
	p.revs[ch]++
	return nil
}

// Remove deletes the point at input. A channel always keeps at least two
// points.
func (p *Profile) Remove(ch Channel, input int) error {
	c := &p.curves[ch]
	at := p.indexOf(ch, input)
	if at < 0 {
		return fmt.Errorf("%s input %d: %w", ch, input, ErrUnknownPoint)
	}
	if len(c.Points) <= 2 {
		return fmt.Errorf("%s: %w", ch, ErrMinimumPoints)
	}
	c.Points = append(c.Points[:at], c.Points[at+1:]...)
	p.revs[ch]++
	return nil
}

// AddBetween inserts a point halfway between two existing inputs, seeded
// with the average of their outputs. Fails with ErrDuplicateInput when the
// gap is too narrow to hold a new input level.
func (p *Profile) AddBetween(ch Channel, lower, upper int) (Point, error) {
	li, ui := p.indexOf(ch, lower), p.indexOf(ch, upper)
	if li < 0 || ui < 0 {
		return Point{}, fmt.Errorf("%s between %d and %d: %w", ch, lower, upper, ErrUnknownPoint)
	}
	c := p.curves[ch]
	pt := Point{
		Input:  (lower + upper) / 2,
		Output: (c.Points[li].Output + c.Points[ui].Output) / 2,
	}
	if err := p.Add(ch, pt); err != nil {
		return Point{}, err
	}
	return pt, nil
}

// SetMode switches the channel's interpolation discipline.
func (p *Profile) SetMode(ch Channel, m Mode) {
	if p.curves[ch].Mode == m {
		return
	}
	p.curves[ch].Mode = m
	p.revs[ch]++
}

// SetThreshold sets the channel's lasing threshold.
func (p *Profile) SetThreshold(ch Channel, t int) error {
	if t < 0 || t > p.depth.Max() {
		return fmt.Errorf("%s threshold %d: %w", ch, t, ErrOutOfRange)
	}
	if p.curves[ch].Threshold == t {
		return nil
	}
	p.curves[ch].Threshold = t
	p.revs[ch]++
	return nil
}

func (p *Profile) indexOf(ch Channel, input int) int {
	pts := p.curves[ch].Points
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Input >= input })
	if i < len(pts) && pts[i].Input == input {
		return i
	}
	return -1
}
