package link

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Sim is a transport for headless runs and demos: it decodes each frame and
// logs it instead of driving hardware.
type Sim struct {
	mu     sync.Mutex
	open   bool
	frames int
	last   [PacketSize]byte
}

func NewSim() *Sim { return &Sim{open: true} }

func (s *Sim) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotConnected
	}
	if len(p) != PacketSize {
		return fmt.Errorf("sim write: packet length %d, want %d", len(p), PacketSize)
	}
	copy(s.last[:], p)
	s.frames++
	log.Debug().
		Int("frame", s.frames).
		Uint16("r", binary.LittleEndian.Uint16(p[0:2])).
		Uint16("g", binary.LittleEndian.Uint16(p[2:4])).
		Uint16("b", binary.LittleEndian.Uint16(p[4:6])).
		Msg("sim frame")
	return nil
}

func (s *Sim) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// Frames reports how many packets were written so far.
func (s *Sim) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Last returns the most recent packet.
func (s *Sim) Last() [PacketSize]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
