package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/calib"
)

// DefaultSweepInterval paces sweep frames at roughly 50 Hz, matching what
// the serial link comfortably sustains.
const DefaultSweepInterval = 20 * time.Millisecond

// SweepConfig describes one sweep over a channel's curve.
type SweepConfig struct {
	Channel  calib.Channel
	From, To int           // input levels, inclusive; From > To sweeps downward
	Step     int           // input increment per frame, > 0
	Interval time.Duration // delay between frames; DefaultSweepInterval when zero
	Bounce   bool          // reverse at the ends and keep going until stopped
	Repeat   bool          // wrap to the start and keep going until stopped
}

// RampConfig describes a threshold-finding ramp: drive one channel up in
// raw PWM steps until the operator sees the diode start to lase.
type RampConfig struct {
	Channel  calib.Channel
	Step     int           // raw PWM increment per frame, > 0
	Ceiling  int           // stop level
	Interval time.Duration
	OnLevel  func(level int) // called after each frame goes out; may be nil
}

// StartSweep runs a sweep in the background, evaluating the curve at each
// swept input and holding the other channels at their last test levels. Any
// running sweep or ramp is preempted. The returned channel delivers the
// terminal error (nil on a completed single pass, the context error on
// cancellation) and is then closed. On every non-preempted exit the swept
// output is blacked out.
func (p *Preview) StartSweep(ctx context.Context, curve calib.Curve, cfg SweepConfig) (<-chan error, error) {
	if !p.Connected() {
		return nil, ErrNotConnected
	}
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("sweep step %d: must be positive", cfg.Step)
	}
	max := p.depth.Max()
	if cfg.From < 0 || cfg.From > max || cfg.To < 0 || cfg.To > max {
		return nil, fmt.Errorf("sweep range [%d,%d] outside [0,%d]", cfg.From, cfg.To, max)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	gen := p.preempt(cancel)
	done := make(chan error, 1)
	log.Debug().Str("channel", cfg.Channel.String()).
		Int("from", cfg.From).Int("to", cfg.To).Int("step", cfg.Step).
		Msg("sweep started")

	go func() {
		defer close(done)
		done <- p.runSweep(ctx, gen, curve, cfg)
	}()
	return done, nil
}

func (p *Preview) runSweep(ctx context.Context, gen uint64, curve calib.Curve, cfg SweepConfig) error {
	lo, hi := cfg.From, cfg.To
	dir := 1
	if lo > hi {
		lo, hi = hi, lo
		dir = -1
	}
	pos := cfg.From

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	finish := func(err error) error {
		// Skip the blackout only when a newer task owns the wire.
		if werr := p.writeSwept(gen, cfg.Channel, 0); errors.Is(werr, ErrPreempted) {
			return err
		}
		log.Debug().Str("channel", cfg.Channel.String()).Msg("sweep finished")
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return finish(ctx.Err())
		case <-ticker.C:
			v := calib.Evaluate(curve, p.depth, pos)
			if err := p.writeSwept(gen, cfg.Channel, v); err != nil {
				if errors.Is(err, ErrPreempted) {
					return err
				}
				return finish(err)
			}

			atEnd := (dir > 0 && pos >= hi) || (dir < 0 && pos <= lo)
			switch {
			case !atEnd:
				pos += dir * cfg.Step
				if pos > hi {
					pos = hi
				}
				if pos < lo {
					pos = lo
				}
			case cfg.Bounce:
				dir = -dir
				pos += dir * cfg.Step
			case cfg.Repeat:
				pos = cfg.From
			default:
				return finish(nil)
			}
		}
	}
}

// StartRamp runs a threshold-finding ramp in the background: the channel
// steps up from zero in raw PWM levels, all other channels dark. Preempts
// like StartSweep; ends with the channel blacked out.
func (p *Preview) StartRamp(ctx context.Context, cfg RampConfig) (<-chan error, error) {
	if !p.Connected() {
		return nil, ErrNotConnected
	}
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("ramp step %d: must be positive", cfg.Step)
	}
	if cfg.Ceiling <= 0 || cfg.Ceiling > p.depth.Max() {
		return nil, fmt.Errorf("ramp ceiling %d outside (0,%d]", cfg.Ceiling, p.depth.Max())
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(ctx)
	gen := p.preempt(cancel)
	done := make(chan error, 1)

	go func() {
		defer close(done)
		done <- p.runRamp(ctx, gen, cfg)
	}()
	return done, nil
}

func (p *Preview) runRamp(ctx context.Context, gen uint64, cfg RampConfig) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	finish := func(err error) error {
		if werr := p.rampFrame(gen, cfg.Channel, 0); errors.Is(werr, ErrPreempted) {
			return err
		}
		return err
	}

	level := 0
	for {
		select {
		case <-ctx.Done():
			return finish(ctx.Err())
		case <-ticker.C:
			level += cfg.Step
			if level > cfg.Ceiling {
				return finish(nil)
			}
			if err := p.rampFrame(gen, cfg.Channel, level); err != nil {
				if errors.Is(err, ErrPreempted) {
					return err
				}
				return finish(err)
			}
			if cfg.OnLevel != nil {
				cfg.OnLevel(level)
			}
		}
	}
}

// rampFrame drives ch at a raw level with the other channels dark.
func (p *Preview) rampFrame(gen uint64, ch calib.Channel, level int) error {
	var rgb [3]int
	rgb[ch] = level
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(gen, rgb[0], rgb[1], rgb[2])
}
