// Package profile persists the editable calibration state: bit depth and,
// per channel, mode, threshold and the control points. Materialized LUTs
// are never stored here; they are derived data and only ever leave the
// program through the firmware exporter.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/calib"
)

// ErrInvalidProfile rejects a profile file wholesale: duplicate inputs,
// out-of-range values, unknown modes or malformed JSON. Nothing is loaded
// partially.
var ErrInvalidProfile = errors.New("invalid profile")

type pointJSON struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

type channelJSON struct {
	Mode      string      `json:"mode"`
	Threshold int         `json:"threshold"`
	Points    []pointJSON `json:"points"`
}

type fileJSON struct {
	BitDepth int         `json:"bitDepth"`
	Red      channelJSON `json:"red"`
	Green    channelJSON `json:"green"`
	Blue     channelJSON `json:"blue"`
}

func encodeChannel(c calib.Curve) channelJSON {
	out := channelJSON{
		Mode:      c.Mode.String(),
		Threshold: c.Threshold,
		Points:    make([]pointJSON, len(c.Points)),
	}
	for i, p := range c.Points {
		out.Points[i] = pointJSON{Input: p.Input, Output: p.Output}
	}
	return out
}

func decodeChannel(c channelJSON) (calib.Curve, error) {
	mode, err := calib.ParseMode(c.Mode)
	if err != nil {
		return calib.Curve{}, err
	}
	curve := calib.Curve{Mode: mode, Threshold: c.Threshold, Points: make([]calib.Point, len(c.Points))}
	for i, p := range c.Points {
		curve.Points[i] = calib.Point{Input: p.Input, Output: p.Output}
	}
	return curve, nil
}

// Save serializes the profile as indented JSON.
func Save(p *calib.Profile) ([]byte, error) {
	f := fileJSON{
		BitDepth: int(p.Depth()),
		Red:      encodeChannel(p.Curve(calib.Red)),
		Green:    encodeChannel(p.Curve(calib.Green)),
		Blue:     encodeChannel(p.Curve(calib.Blue)),
	}
	return json.MarshalIndent(f, "", "  ")
}

// Load parses and validates a saved profile. Every store invariant is
// re-checked; any violation fails the whole load.
func Load(data []byte) (*calib.Profile, error) {
	var f fileJSON
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	depth := calib.BitDepth(f.BitDepth)
	if !depth.Valid() {
		return nil, fmt.Errorf("%w: bit depth %d", ErrInvalidProfile, f.BitDepth)
	}
	var curves [3]calib.Curve
	for i, cj := range []channelJSON{f.Red, f.Green, f.Blue} {
		c, err := decodeChannel(cj)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, calib.Channel(i), err)
		}
		curves[i] = c
	}
	p, err := calib.BuildProfile(depth, curves[0], curves[1], curves[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return p, nil
}

// SaveFile writes the profile atomically: to a temp file in the target
// directory, renamed into place only after a successful write.
func SaveFile(path string, p *calib.Profile) error {
	data, err := Save(p)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// LoadFile reads and validates a profile file.
func LoadFile(path string) (*calib.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
