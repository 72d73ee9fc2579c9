package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/calib"
)

func sampleProfile(t *testing.T) *calib.Profile {
	t.Helper()
	p := calib.NewProfile(calib.Depth16)
	require.NoError(t, p.Add(calib.Red, calib.Point{Input: 10000, Output: 4000}))
	require.NoError(t, p.SetThreshold(calib.Green, 1200))
	p.SetMode(calib.Blue, calib.ModeLinear)
	return p
}

func TestRoundTrip(t *testing.T) {
	p := sampleProfile(t)
	data, err := Save(p)
	require.NoError(t, err)

	q, err := Load(data)
	require.NoError(t, err)

	assert.Equal(t, p.Depth(), q.Depth())
	for _, ch := range []calib.Channel{calib.Red, calib.Green, calib.Blue} {
		assert.Equal(t, p.Curve(ch), q.Curve(ch), ch.String())
	}
}

func TestSaveOmitsMaterializedTables(t *testing.T) {
	data, err := Save(calib.NewProfile(calib.Depth12))
	require.NoError(t, err)
	s := string(data)
	assert.NotContains(t, s, "table")
	assert.NotContains(t, s, "lut")
	// Only the handful of control points, not thousands of entries.
	assert.Less(t, strings.Count(s, "input"), 20)
}

func TestLoadRejectsDuplicateInputs(t *testing.T) {
	data := []byte(`{
		"bitDepth": 12,
		"red":   {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":5,"output":1},{"input":5,"output":2}]},
		"green": {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":4095,"output":4095}]},
		"blue":  {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":4095,"output":4095}]}
	}`)
	_, err := Load(data)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	data := []byte(`{
		"bitDepth": 12,
		"red":   {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":9999,"output":1}]},
		"green": {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":4095,"output":4095}]},
		"blue":  {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":4095,"output":4095}]}
	}`)
	_, err := Load(data)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestLoadRejectsBadModeDepthAndJSON(t *testing.T) {
	_, err := Load([]byte(`{`))
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = Load([]byte(`{"bitDepth": 8}`))
	assert.ErrorIs(t, err, ErrInvalidProfile)

	data := []byte(`{
		"bitDepth": 16,
		"red":   {"mode":"catmull-rom","threshold":0,"points":[{"input":0,"output":0},{"input":65535,"output":65535}]},
		"green": {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":65535,"output":65535}]},
		"blue":  {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":65535,"output":65535}]}
	}`)
	_, err = Load(data)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestLoadRejectsTooFewPoints(t *testing.T) {
	data := []byte(`{
		"bitDepth": 16,
		"red":   {"mode":"linear","threshold":0,"points":[{"input":0,"output":0}]},
		"green": {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":65535,"output":65535}]},
		"blue":  {"mode":"linear","threshold":0,"points":[{"input":0,"output":0},{"input":65535,"output":65535}]}
	}`)
	_, err := Load(data)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestSaveFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")
	p := sampleProfile(t)

	require.NoError(t, SaveFile(path, p))
	q, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, p.Curve(calib.Red), q.Curve(calib.Red))

	// No temp droppings left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "calibration.json", entries[0].Name())
}
