package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/calib"
)

func TestHeaderDeterministic(t *testing.T) {
	p := calib.NewProfile(calib.Depth12)
	a, err := Header(p, calib.Size12)
	require.NoError(t, err)
	b, err := Header(p, calib.Size12)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHeaderLayout(t *testing.T) {
	p := calib.NewProfile(calib.Depth12)
	require.NoError(t, p.SetThreshold(calib.Red, 150))
	text, err := Header(p, calib.Size12)
	require.NoError(t, err)

	lines := strings.Split(text, "\n")
	assert.Equal(t, "// Laser Calibration LUTs (4096 entries each)", lines[0])

	assert.Contains(t, text, "// RED: Threshold=150, Points=4")
	assert.Contains(t, text, "const uint16_t RED_LUT[4096] PROGMEM = {")
	assert.Contains(t, text, "const uint16_t GREEN_LUT[4096] PROGMEM = {")
	assert.Contains(t, text, "const uint16_t BLUE_LUT[4096] PROGMEM = {")

	// Channel order is fixed red, green, blue.
	ri := strings.Index(text, "RED_LUT")
	gi := strings.Index(text, "GREEN_LUT")
	bi := strings.Index(text, "BLUE_LUT")
	assert.Less(t, ri, gi)
	assert.Less(t, gi, bi)

	// Eight 5-wide values per full row, comma-continued.
	for _, l := range lines {
		if !strings.HasPrefix(l, "    ") {
			continue
		}
		vals := strings.Split(strings.TrimSuffix(strings.TrimPrefix(l, "    "), ","), ", ")
		assert.LessOrEqual(t, len(vals), 8)
		for _, v := range vals {
			assert.Len(t, v, 5, "line %q", l)
		}
	}

	// 4096 values / 8 per row = 512 rows per channel.
	rows := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "    ") {
			rows++
		}
	}
	assert.Equal(t, 3*512, rows)
}

func TestHeaderRejectsBadSize(t *testing.T) {
	p := calib.NewProfile(calib.Depth12)
	_, err := Header(p, 1000)
	assert.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "laser_lut.h")
	p := calib.NewProfile(calib.Depth12)

	require.NoError(t, WriteFile(path, p, calib.Size12))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := Header(p, calib.Size12)
	require.NoError(t, err)
	assert.Equal(t, want, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteFileBadSizeWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "laser_lut.h")
	p := calib.NewProfile(calib.Depth16)

	require.Error(t, WriteFile(path, p, 123))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
