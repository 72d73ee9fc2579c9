package link

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/calib"
)

// ErrPreempted is delivered on a sweep's or ramp's result channel when a
// newer background task took over the wire. Writes by the preempted task
// are dropped whole, never half-sent.
var ErrPreempted = errors.New("preempted by newer task")

// Preview is the live verification path: spot tests, sweeps and threshold
// ramps over one transport. It is the transport's single writer; the
// editing surface and any background task go through the same mutex, so
// frames never interleave.
type Preview struct {
	mu    sync.Mutex
	tr    Transport
	depth calib.BitDepth
	last  [3]int

	// at most one background task (sweep or ramp); a new one preempts the
	// old via the generation counter, a plain stop lets it black out first
	gen    uint64
	cancel context.CancelFunc
}

func NewPreview(tr Transport, depth calib.BitDepth) *Preview {
	return &Preview{tr: tr, depth: depth}
}

// Depth returns the bit depth the preview clamps against.
func (p *Preview) Depth() calib.BitDepth { return p.depth }

// SendRGB writes one test frame and records the values as the channels'
// last test levels.
func (p *Preview) SendRGB(r, g, b int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writeLocked(0, r, g, b); err != nil {
		return err
	}
	p.last = [3]int{r, g, b}
	return nil
}

// SendChannel lights a single channel, holding the other two dark.
func (p *Preview) SendChannel(ch calib.Channel, v int) error {
	var rgb [3]int
	rgb[ch] = v
	return p.SendRGB(rgb[0], rgb[1], rgb[2])
}

// Blackout drives all channels to zero.
func (p *Preview) Blackout() error { return p.SendRGB(0, 0, 0) }

// Connected reports whether the transport is up.
func (p *Preview) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tr != nil && p.tr.Connected()
}

// Last returns the last spot-test levels.
func (p *Preview) Last() (r, g, b int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last[0], p.last[1], p.last[2]
}

// writeLocked sends one frame. gen 0 means a foreground write; a non-zero
// gen must still be the current background generation or the write is
// dropped as stale. Caller holds p.mu.
func (p *Preview) writeLocked(gen uint64, r, g, b int) error {
	if gen != 0 && gen != p.gen {
		return ErrPreempted
	}
	if p.tr == nil || !p.tr.Connected() {
		return ErrNotConnected
	}
	pkt := Packet(r, g, b)
	if err := p.tr.Write(pkt[:]); err != nil {
		return fmt.Errorf("preview write: %w", err)
	}
	return nil
}

// writeSwept sends a frame with ch at v and the other channels at their
// last test levels.
func (p *Preview) writeSwept(gen uint64, ch calib.Channel, v int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rgb := p.last
	rgb[ch] = v
	return p.writeLocked(gen, rgb[0], rgb[1], rgb[2])
}

// preempt cancels any running background task so it exits without its
// final blackout, and registers cancel for the new one.
func (p *Preview) preempt(cancel context.CancelFunc) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	p.cancel = cancel
	return p.gen
}

// Stop cancels the running background task, if any. The task blacks out
// its swept channel on the way down.
func (p *Preview) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Close stops any background task, blacks the laser out and closes the
// transport. Safe on every shutdown path.
func (p *Preview) Close() error {
	p.Stop()
	_ = p.Blackout()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tr == nil {
		return nil
	}
	err := p.tr.Close()
	p.tr = nil
	return err
}
