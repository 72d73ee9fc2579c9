package link

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// DefaultBaud is the laser driver's fixed line rate.
const DefaultBaud = 250000

// Serial is the normal transport: a USB serial link to the MCU driving
// the diodes.
type Serial struct {
	mu   sync.Mutex
	port serial.Port
	name string
}

// ListPorts returns candidate serial devices, filtered to the USB bridge
// names the laser driver shows up under.
func ListPorts() ([]string, error) {
	all, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	var out []string
	for _, p := range all {
		l := strings.ToLower(p)
		if strings.Contains(l, "usbmodem") || strings.Contains(l, "usbserial") ||
			strings.Contains(l, "ttyusb") || strings.Contains(l, "ttyacm") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// OpenSerial opens the named port. Opening toggles DTR on most USB bridges,
// which resets the MCU, so we wait for it to come back before returning.
func OpenSerial(name string, baud int) (*Serial, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	time.Sleep(500 * time.Millisecond)
	log.Info().Str("port", name).Int("baud", baud).Msg("serial link up")
	return &Serial{port: port, name: name}, nil
}

func (s *Serial) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return ErrNotConnected
	}
	if _, err := s.port.Write(p); err != nil {
		return fmt.Errorf("serial write %s: %w", s.name, err)
	}
	return nil
}

func (s *Serial) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	log.Info().Str("port", s.name).Msg("serial link closed")
	return err
}
