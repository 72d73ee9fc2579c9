package calib

import (
	"math"
	"sort"
)

// Evaluate maps input level x through the curve. Outside the control-point
// range it clamps to the first/last point's output; it never extrapolates.
// The curve's threshold, when set, is folded in afterwards so the usable
// drive range starts where the diode actually lases.
//
// A curve with fewer than two points violates the store invariant and
// panics.
func Evaluate(c Curve, depth BitDepth, x int) int {
	raw := evaluateRaw(c, x)
	if c.Threshold > 0 && x > 0 {
		max := depth.Max()
		usable := float64(max - c.Threshold)
		raw = int(math.Floor(float64(c.Threshold) + float64(raw)/float64(max)*usable + 0.5))
	}
	return clampInt(raw, 0, depth.Max())
}

func evaluateRaw(c Curve, x int) int {
	n := len(c.Points)
	if n < 2 {
		panic("calib: evaluate on curve with fewer than 2 points")
	}
	if x <= c.Points[0].Input {
		return c.Points[0].Output
	}
	if x >= c.Points[n-1].Input {
		return c.Points[n-1].Output
	}
	// Smooth needs at least 3 points to differ from a straight segment.
	if c.Mode == ModeSmooth && n >= 3 {
		return evalMonotoneCubic(c.Points, x)
	}
	return evalLinear(c.Points, x)
}

// bracket returns i such that pts[i].Input <= x <= pts[i+1].Input.
// Caller guarantees x is inside the point range.
func bracket(pts []Point, x int) int {
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Input >= x })
	if i < len(pts) && pts[i].Input == x {
		return i
	}
	return i - 1
}

func evalLinear(pts []Point, x int) int {
	i := bracket(pts, x)
	p0, p1 := pts[i], pts[i+1]
	if p0.Input == x {
		return p0.Output
	}
	t := float64(x-p0.Input) / float64(p1.Input-p0.Input)
	return int(math.Round(float64(p0.Output) + t*float64(p1.Output-p0.Output)))
}

// evalMonotoneCubic is a shape-preserving cubic Hermite (Fritsch-Carlson).
// Tangents are harmonic means of the adjacent secants, zeroed on any sign
// change, then limited to the circle alpha^2+beta^2 <= 9 so the piecewise
// cubic stays monotone wherever the control points are. Plain cubic splines
// would overshoot near sparse regions, and the output drives physical laser
// current, so overshoot is not acceptable.
func evalMonotoneCubic(pts []Point, x int) int {
	n := len(pts)
	seg := bracket(pts, x)

	deltas := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		dx := float64(pts[i+1].Input - pts[i].Input)
		deltas[i] = float64(pts[i+1].Output-pts[i].Output) / dx
	}

	tangents := make([]float64, n)
	tangents[0] = deltas[0]
	tangents[n-1] = deltas[n-2]
	for i := 1; i < n-1; i++ {
		if deltas[i-1]*deltas[i] <= 0 {
			tangents[i] = 0
		} else {
			tangents[i] = 2 / (1/deltas[i-1] + 1/deltas[i])
		}
	}

	for i := 0; i < n-1; i++ {
		if deltas[i] == 0 {
			tangents[i] = 0
			tangents[i+1] = 0
			continue
		}
		alpha := tangents[i] / deltas[i]
		beta := tangents[i+1] / deltas[i]
		if alpha*alpha+beta*beta > 9 {
			tau := 3.0 / math.Sqrt(alpha*alpha+beta*beta)
			tangents[i] = tau * alpha * deltas[i]
			tangents[i+1] = tau * beta * deltas[i]
		}
	}

	p0, p1 := pts[seg], pts[seg+1]
	h := float64(p1.Input - p0.Input)
	t := float64(x-p0.Input) / h
	t2 := t * t
	t3 := t2 * t

	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2

	y := h00*float64(p0.Output) + h10*h*tangents[seg] +
		h01*float64(p1.Output) + h11*h*tangents[seg+1]

	// The interpolant must stay inside the segment's output bounds.
	lo := math.Min(float64(p0.Output), float64(p1.Output))
	hi := math.Max(float64(p0.Output), float64(p1.Output))
	return int(math.Round(math.Max(lo, math.Min(hi, y))))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
