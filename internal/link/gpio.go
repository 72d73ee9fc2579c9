package link

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// pwmFreq is well above the diode driver's bandwidth and flicker range.
const pwmFreq = 20 * physic.KiloHertz

// pwmPin is the slice of gpio.PinOut the transport needs. Tests substitute
// a recording fake.
type pwmPin interface {
	PWM(duty gpio.Duty, f physic.Frequency) error
	Halt() error
}

// GPIO drives the three diodes straight from host PWM pins, for bench rigs
// where the laser head hangs off this machine instead of an external MCU.
// It consumes the same 6-byte frames as the serial transport.
type GPIO struct {
	mu   sync.Mutex
	pins [3]pwmPin
	open bool
}

// OpenGPIO initializes the host and resolves the three pin names
// (e.g. "GPIO18", "GPIO13", "GPIO19").
func OpenGPIO(redPin, greenPin, bluePin string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}
	g := &GPIO{open: true}
	for i, name := range []string{redPin, greenPin, bluePin} {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("no gpio pin %q", name)
		}
		g.pins[i] = p
	}
	log.Info().Strs("pins", []string{redPin, greenPin, bluePin}).Msg("gpio bench transport up")
	return g, nil
}

func newGPIOWithPins(r, g, b pwmPin) *GPIO {
	return &GPIO{pins: [3]pwmPin{r, g, b}, open: true}
}

func (g *GPIO) Write(p []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return ErrNotConnected
	}
	if len(p) != PacketSize {
		return fmt.Errorf("gpio write: packet length %d, want %d", len(p), PacketSize)
	}
	for i := 0; i < 3; i++ {
		v := binary.LittleEndian.Uint16(p[2*i:])
		duty := gpio.Duty(uint64(v) * uint64(gpio.DutyMax) / ValueMax)
		if err := g.pins[i].PWM(duty, pwmFreq); err != nil {
			return fmt.Errorf("gpio pwm channel %d: %w", i, err)
		}
	}
	return nil
}

func (g *GPIO) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Close parks every pin at zero duty before halting it, so the diodes
// cannot be left lit.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return nil
	}
	g.open = false
	var first error
	for i, p := range g.pins {
		if err := p.PWM(0, pwmFreq); err != nil && first == nil {
			first = fmt.Errorf("gpio park channel %d: %w", i, err)
		}
		if err := p.Halt(); err != nil && first == nil {
			first = fmt.Errorf("gpio halt channel %d: %w", i, err)
		}
	}
	return first
}
