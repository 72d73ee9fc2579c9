package ws

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/calib"
	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/link"
	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/profile"
)

func newTestState() (*State, *link.Sim) {
	sim := link.NewSim()
	p := calib.NewProfile(calib.Depth16)
	return NewState(p, calib.NewCache(), link.NewPreview(sim, calib.Depth16)), sim
}

func TestApplyEditCommands(t *testing.T) {
	s, _ := newTestState()

	mutated, err := s.apply(command{Op: "addPoint", Channel: "red", Input: 1000, Output: 50})
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.Len(t, s.Profile().Curve(calib.Red).Points, 5)

	// Duplicate rejected, nothing mutated.
	mutated, err = s.apply(command{Op: "addPoint", Channel: "red", Input: 1000, Output: 99})
	require.ErrorIs(t, err, calib.ErrDuplicateInput)
	assert.False(t, mutated)

	mutated, err = s.apply(command{Op: "setMode", Channel: "green", Mode: "linear"})
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.Equal(t, calib.ModeLinear, s.Profile().Curve(calib.Green).Mode)

	_, err = s.apply(command{Op: "setMode", Channel: "green", Mode: "bezier"})
	assert.Error(t, err)

	_, err = s.apply(command{Op: "addPoint", Channel: "cyan", Input: 1, Output: 1})
	assert.Error(t, err)

	_, err = s.apply(command{Op: "frobnicate"})
	assert.Error(t, err)
}

func TestApplyTestCommandWritesFrame(t *testing.T) {
	s, sim := newTestState()
	_, err := s.apply(command{Op: "test", R: 10, G: 20, B: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, sim.Frames())
	pkt := sim.Last()
	assert.Equal(t, link.Packet(10, 20, 30), pkt)

	_, err = s.apply(command{Op: "testChannel", Channel: "blue", Value: 4000})
	require.NoError(t, err)
	assert.Equal(t, link.Packet(0, 0, 4000), sim.Last())
}

func TestLoadProfileDepthMismatch(t *testing.T) {
	s, _ := newTestState()
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, profile.SaveFile(path, calib.NewProfile(calib.Depth12)))

	mutated, err := s.apply(command{Op: "loadProfile", Path: path})
	assert.Error(t, err)
	assert.False(t, mutated)
	assert.Equal(t, calib.Depth16, s.Profile().Depth())
}

func TestLoadProfileReplacesStore(t *testing.T) {
	s, _ := newTestState()
	donor := calib.NewProfile(calib.Depth16)
	require.NoError(t, donor.SetThreshold(calib.Red, 777))
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, profile.SaveFile(path, donor))

	mutated, err := s.apply(command{Op: "loadProfile", Path: path})
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.Equal(t, 777, s.Profile().Curve(calib.Red).Threshold)
}

func TestExportCommand(t *testing.T) {
	s, _ := newTestState()
	path := filepath.Join(t.TempDir(), "laser_lut.h")
	_, err := s.apply(command{Op: "export", Path: path, Size: calib.Size12})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "RED_LUT[4096]")
}

func TestHandleLUT(t *testing.T) {
	s, _ := newTestState()

	rec := httptest.NewRecorder()
	s.HandleLUT(rec, httptest.NewRequest("GET", "/lut?channel=red&size=4096", nil))
	require.Equal(t, 200, rec.Code)

	var resp struct {
		Channel string   `json:"channel"`
		Size    int      `json:"size"`
		Table   []uint16 `json:"table"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "red", resp.Channel)
	assert.Equal(t, 4096, resp.Size)
	assert.Len(t, resp.Table, 4096)

	rec = httptest.NewRecorder()
	s.HandleLUT(rec, httptest.NewRequest("GET", "/lut?channel=mauve", nil))
	assert.Equal(t, 400, rec.Code)

	rec = httptest.NewRecorder()
	s.HandleLUT(rec, httptest.NewRequest("GET", "/lut?channel=red&size=999", nil))
	assert.Equal(t, 400, rec.Code)
}

func TestSnapshotShape(t *testing.T) {
	s, _ := newTestState()
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	require.Len(t, snap.Channels, 3)
	red := snap.Channels["red"]
	assert.Len(t, red.Preview, previewSamples)
	assert.Equal(t, 0, red.Preview[0])
	assert.Equal(t, 65535, red.Preview[previewSamples-1])
}
