// Package calib holds the calibration model: per-channel control points,
// the curve interpolators and the dense LUT materializer.
package calib

import "fmt"

// Channel identifies one of the three laser diodes.
type Channel int

const (
	Red Channel = iota
	Green
	Blue
)

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// ParseChannel maps a channel name ("red", "green", "blue") to a Channel.
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "red":
		return Red, nil
	case "green":
		return Green, nil
	case "blue":
		return Blue, nil
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// BitDepth is the PWM resolution of the input domain and output range.
type BitDepth int

const (
	Depth12 BitDepth = 12
	Depth16 BitDepth = 16
)

// Max returns the highest representable level (4095 or 65535).
func (d BitDepth) Max() int {
	if d == Depth12 {
		return 4095
	}
	return 65535
}

// Size returns the number of levels (Max+1).
func (d BitDepth) Size() int { return d.Max() + 1 }

// Valid reports whether d is one of the supported depths.
func (d BitDepth) Valid() bool { return d == Depth12 || d == Depth16 }

// Mode selects the interpolation discipline for a curve.
type Mode int

const (
	// ModeLinear interpolates straight segments between control points.
	ModeLinear Mode = iota
	// ModeSmooth is a shape-preserving cubic Hermite (Fritsch-Carlson):
	// smooth through the control points, never overshooting them.
	ModeSmooth
)

func (m Mode) String() string {
	if m == ModeSmooth {
		return "smooth"
	}
	return "linear"
}

// ParseMode maps a persisted mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "linear":
		return ModeLinear, nil
	case "smooth":
		return ModeSmooth, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Point is a single calibration control point: at input level Input the
// diode should be driven with PWM level Output.
type Point struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Curve is the editable calibration of one channel. Points are kept sorted
// by Input with unique inputs; mutate it only through Profile.
type Curve struct {
	Points    []Point
	Mode      Mode
	Threshold int // lasing threshold, applied on top of the interpolated value
}

// Clone returns a deep copy of the curve.
func (c Curve) Clone() Curve {
	out := c
	out.Points = append([]Point(nil), c.Points...)
	return out
}
