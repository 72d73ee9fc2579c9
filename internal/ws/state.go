// Package ws is the control surface boundary: the graphical point editor
// connects here and issues store mutations, spot tests and sweeps as JSON
// commands, receiving curve snapshots back after every change. The editor
// itself lives outside this repository.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/calib"
	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/export"
	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/link"
	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/profile"
)

// previewSamples is the resolution of the curve preview pushed to editors;
// enough for pixel-accurate drawing without shipping a full LUT per edit.
const previewSamples = 256

// Defaults fill in pacing fields that sweep/ramp commands omit. Zero
// values fall back to built-in pacing.
type Defaults struct {
	SweepStep     int
	SweepInterval time.Duration
	RampStep      int
	RampCeiling   int
	RampInterval  time.Duration
}

type State struct {
	mu        sync.Mutex
	wmu       sync.Mutex // gorilla allows one concurrent writer per conn
	profile   *calib.Profile
	cache     *calib.Cache
	preview   *link.Preview
	clients   map[*websocket.Conn]bool
	startTime time.Time

	// Defaults is set once at startup, before any handler runs.
	Defaults Defaults
}

func NewState(p *calib.Profile, cache *calib.Cache, pv *link.Preview) *State {
	return &State{
		profile:   p,
		cache:     cache,
		preview:   pv,
		clients:   map[*websocket.Conn]bool{},
		startTime: time.Now(),
	}
}

// Profile returns the active profile. The store is replaced wholesale on a
// successful load, never mutated partially.
func (s *State) Profile() *calib.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

type command struct {
	Op        string `json:"op"`
	Channel   string `json:"channel,omitempty"`
	Input     int    `json:"input,omitempty"`
	Output    int    `json:"output,omitempty"`
	NewInput  int    `json:"newInput,omitempty"`
	Lower     int    `json:"lower,omitempty"`
	Upper     int    `json:"upper,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Threshold int    `json:"threshold,omitempty"`

	R     int `json:"r,omitempty"`
	G     int `json:"g,omitempty"`
	B     int `json:"b,omitempty"`
	Value int `json:"value,omitempty"`

	From       int  `json:"from,omitempty"`
	To         int  `json:"to,omitempty"`
	Step       int  `json:"step,omitempty"`
	IntervalMs int  `json:"intervalMs,omitempty"`
	Bounce     bool `json:"bounce,omitempty"`
	Repeat     bool `json:"repeat,omitempty"`
	Ceiling    int  `json:"ceiling,omitempty"`

	Size int    `json:"size,omitempty"`
	Path string `json:"path,omitempty"`
}

type reply struct {
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type channelSnapshot struct {
	Mode      string        `json:"mode"`
	Threshold int           `json:"threshold"`
	Points    []calib.Point `json:"points"`
	Preview   []int         `json:"preview"`
}

type snapshot struct {
	Event    string                     `json:"event"`
	BitDepth int                        `json:"bitDepth"`
	Channels map[string]channelSnapshot `json:"channels"`
}

// HandleCurveWS streams curve snapshots: one on connect, one after every
// mutation.
func (s *State) HandleCurveWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.wmu.Lock()
	_ = conn.WriteJSON(snap)
	s.wmu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleControlWS accepts JSON commands from the editor and answers each
// with an ok/error reply. Mutations additionally fan a snapshot out to all
// curve clients.
func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			_ = conn.WriteJSON(reply{Op: "?", Error: err.Error()})
			continue
		}
		mutated, err := s.apply(cmd)
		rep := reply{Op: cmd.Op, OK: err == nil}
		if err != nil {
			rep.Error = err.Error()
			log.Warn().Str("op", cmd.Op).Err(err).Msg("control command rejected")
		}
		_ = conn.WriteJSON(rep)
		if mutated {
			s.broadcast()
		}
	}
}

// HandleLUT serves the materialized table for one channel, for editors
// that render the dense mapping. Recomputed lazily through the cache, so
// bursts of edits cost one materialization at most.
func (s *State) HandleLUT(w http.ResponseWriter, r *http.Request) {
	ch, err := calib.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	size := calib.Size12
	if v := r.URL.Query().Get("size"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &size); err != nil {
			http.Error(w, "bad size", http.StatusBadRequest)
			return
		}
	}
	s.mu.Lock()
	p, cache := s.profile, s.cache
	s.mu.Unlock()
	l, err := cache.Get(p, ch, size)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"channel":      ch.String(),
		"size":         l.Size,
		"nonMonotonic": l.NonMonotonic,
		"table":        l.Table,
	})
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := map[string]any{
		"uptime_s":  time.Since(s.startTime).Seconds(),
		"bit_depth": int(s.profile.Depth()),
		"connected": s.preview.Connected(),
	}
	s.mu.Unlock()
	_ = json.NewEncoder(w).Encode(resp)
}

// apply executes one command. It reports whether the curve state changed.
func (s *State) apply(cmd command) (bool, error) {
	switch cmd.Op {
	case "addPoint", "updatePoint", "removePoint", "addBetween", "setMode", "setThreshold":
		return s.applyEdit(cmd)
	case "test":
		return false, s.preview.SendRGB(cmd.R, cmd.G, cmd.B)
	case "testChannel":
		ch, err := calib.ParseChannel(cmd.Channel)
		if err != nil {
			return false, err
		}
		return false, s.preview.SendChannel(ch, cmd.Value)
	case "blackout":
		return false, s.preview.Blackout()
	case "sweepStart":
		return false, s.startSweep(cmd)
	case "sweepStop", "rampStop":
		s.preview.Stop()
		return false, nil
	case "rampStart":
		return false, s.startRamp(cmd)
	case "export":
		return false, s.exportHeader(cmd)
	case "saveProfile":
		s.mu.Lock()
		p := s.profile
		s.mu.Unlock()
		return false, profile.SaveFile(cmd.Path, p)
	case "loadProfile":
		return s.loadProfile(cmd.Path)
	}
	return false, fmt.Errorf("unknown op %q", cmd.Op)
}

func (s *State) applyEdit(cmd command) (bool, error) {
	ch, err := calib.ParseChannel(cmd.Channel)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd.Op {
	case "addPoint":
		err = s.profile.Add(ch, calib.Point{Input: cmd.Input, Output: cmd.Output})
	case "updatePoint":
		err = s.profile.Update(ch, cmd.Input, calib.Point{Input: cmd.NewInput, Output: cmd.Output})
	case "removePoint":
		err = s.profile.Remove(ch, cmd.Input)
	case "addBetween":
		_, err = s.profile.AddBetween(ch, cmd.Lower, cmd.Upper)
	case "setMode":
		var m calib.Mode
		if m, err = calib.ParseMode(cmd.Mode); err == nil {
			s.profile.SetMode(ch, m)
		}
	case "setThreshold":
		err = s.profile.SetThreshold(ch, cmd.Threshold)
	}
	return err == nil, err
}

func (s *State) startSweep(cmd command) error {
	ch, err := calib.ParseChannel(cmd.Channel)
	if err != nil {
		return err
	}
	s.mu.Lock()
	curve := s.profile.Curve(ch)
	max := s.profile.Depth().Max()
	s.mu.Unlock()

	to := cmd.To
	if to == 0 && cmd.From == 0 {
		to = max
	}
	cfg := link.SweepConfig{
		Channel:  ch,
		From:     cmd.From,
		To:       to,
		Step:     cmd.Step,
		Interval: time.Duration(cmd.IntervalMs) * time.Millisecond,
		Bounce:   cmd.Bounce,
		Repeat:   cmd.Repeat,
	}
	if cfg.Step <= 0 {
		cfg.Step = s.Defaults.SweepStep
	}
	if cfg.Step <= 0 {
		cfg.Step = max / 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = s.Defaults.SweepInterval
	}
	done, err := s.preview.StartSweep(context.Background(), curve, cfg)
	if err != nil {
		return err
	}
	go func() {
		if err := <-done; err != nil {
			log.Debug().Err(err).Str("channel", ch.String()).Msg("sweep ended")
		}
	}()
	return nil
}

func (s *State) startRamp(cmd command) error {
	ch, err := calib.ParseChannel(cmd.Channel)
	if err != nil {
		return err
	}
	s.mu.Lock()
	max := s.profile.Depth().Max()
	s.mu.Unlock()
	cfg := link.RampConfig{
		Channel:  ch,
		Step:     cmd.Step,
		Ceiling:  cmd.Ceiling,
		Interval: time.Duration(cmd.IntervalMs) * time.Millisecond,
		OnLevel: func(level int) {
			s.broadcastJSON(map[string]any{"event": "rampLevel", "channel": ch.String(), "level": level})
		},
	}
	if cfg.Step <= 0 {
		cfg.Step = s.Defaults.RampStep
	}
	if cfg.Step <= 0 {
		cfg.Step = 10
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = s.Defaults.RampCeiling
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = max / 32
	}
	if cfg.Interval <= 0 {
		cfg.Interval = s.Defaults.RampInterval
	}
	done, err := s.preview.StartRamp(context.Background(), cfg)
	if err != nil {
		return err
	}
	go func() {
		<-done
		s.broadcastJSON(map[string]any{"event": "rampDone", "channel": ch.String()})
	}()
	return nil
}

func (s *State) exportHeader(cmd command) error {
	s.mu.Lock()
	p := s.profile
	s.mu.Unlock()
	size := cmd.Size
	if size == 0 {
		size = calib.Size12
	}
	return export.WriteFile(cmd.Path, p, size)
}

func (s *State) loadProfile(path string) (bool, error) {
	p, err := profile.LoadFile(path)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Depth() != s.profile.Depth() {
		return false, fmt.Errorf("profile bit depth %d does not match session depth %d",
			int(p.Depth()), int(s.profile.Depth()))
	}
	s.profile = p
	s.cache = calib.NewCache()
	return true, nil
}

func (s *State) snapshotLocked() snapshot {
	snap := snapshot{
		Event:    "curves",
		BitDepth: int(s.profile.Depth()),
		Channels: map[string]channelSnapshot{},
	}
	depth := s.profile.Depth()
	for _, ch := range []calib.Channel{calib.Red, calib.Green, calib.Blue} {
		c := s.profile.Curve(ch)
		cs := channelSnapshot{
			Mode:      c.Mode.String(),
			Threshold: c.Threshold,
			Points:    c.Points,
			Preview:   make([]int, previewSamples),
		}
		for i := 0; i < previewSamples; i++ {
			x := i * depth.Max() / (previewSamples - 1)
			cs.Preview[i] = calib.Evaluate(c, depth, x)
		}
		snap.Channels[ch.String()] = cs
	}
	return snap
}

func (s *State) broadcast() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.broadcastJSON(snap)
}

func (s *State) broadcastJSON(v any) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for _, c := range conns {
		if err := c.WriteJSON(v); err != nil {
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
			c.Close()
		}
	}
}
