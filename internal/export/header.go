// Package export renders materialized LUTs as a firmware-embeddable C
// header. Output is deterministic: the same profile and size always yield
// byte-identical text, so firmware builds stay reproducible.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/calib"
)

const valuesPerRow = 8

// Header emits the three channel LUTs, red first, as read-only uint16
// arrays placed in program memory. size must be one of the supported LUT
// sizes; nothing is emitted on error.
func Header(p *calib.Profile, size int) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "// Laser Calibration LUTs (%d entries each)\n", size)
	b.WriteString("// Generated by calwizard\n\n")

	for _, ch := range []calib.Channel{calib.Red, calib.Green, calib.Blue} {
		c := p.Curve(ch)
		l, err := calib.Materialize(c, p.Depth(), ch, size)
		if err != nil {
			return "", err
		}
		name := strings.ToUpper(ch.String())
		fmt.Fprintf(&b, "// %s: Threshold=%d, Points=%d\n", name, c.Threshold, len(c.Points))
		fmt.Fprintf(&b, "const uint16_t %s_LUT[%d] PROGMEM = {\n", name, size)
		writeRows(&b, l.Table)
		b.WriteString("};\n\n")
	}
	return b.String(), nil
}

func writeRows(b *strings.Builder, table []uint16) {
	row := make([]string, 0, valuesPerRow)
	for i, v := range table {
		row = append(row, fmt.Sprintf("%5d", v))
		if len(row) == valuesPerRow || i == len(table)-1 {
			b.WriteString("    " + strings.Join(row, ", "))
			if i < len(table)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
			row = row[:0]
		}
	}
}

// WriteFile renders the header and writes it all-or-nothing: a temp file
// in the destination directory, renamed into place only on success. A
// failed materialization leaves no file behind.
func WriteFile(path string, p *calib.Profile, size int) error {
	text, err := Header(p, size)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(text); err != nil {
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
