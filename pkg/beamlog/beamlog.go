// Package beamlog reads and writes the ASCII beam tables that travel with
// image cubes: the per-channel input beam log produced by the imaging
// pipeline, and the convolution log this tool writes so a later run can
// replay its decisions exactly.
//
// Both formats are whitespace-separated tables with a commented header
// line whose column names carry a bracketed unit suffix, e.g.
// BMAJ[arcsec]. Axes are normalized to arcseconds and position angles to
// degrees on read.
package beamlog

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"beamconv/pkg/beam"
)

// Path returns the beam log co-located with an image file:
// dir/beamlog.<name>.txt for dir/<name>.fits.
func Path(imagePath string) string {
	dir := filepath.Dir(imagePath)
	base := filepath.Base(imagePath)
	base = strings.TrimSuffix(base, ".fits") + ".txt"
	return filepath.Join(dir, "beamlog."+base)
}

// ConvLogPath returns the convolution log path for an image's beam log,
// keyed by the smoothing mode so natural and total runs do not clobber
// each other.
func ConvLogPath(beamlogPath, mode string) string {
	dir := filepath.Dir(beamlogPath)
	base := filepath.Base(beamlogPath)
	base = strings.Replace(base, "beamlog.", "beamlogConvolve-"+mode+".", 1)
	return filepath.Join(dir, base)
}

// column is a parsed header column: bare name plus unit.
type column struct {
	name string
	unit string
}

// parseHeader splits a commented header line into named, unit-tagged
// columns. "BMAJ[arcsec]" and the legacy suffix form "BMAJarcsec" are
// both accepted.
func parseHeader(line string) []column {
	fields := strings.Fields(strings.TrimLeft(line, "# "))
	cols := make([]column, 0, len(fields))
	for _, f := range fields {
		if idx := strings.IndexByte(f, '['); idx >= 0 && strings.HasSuffix(f, "]") {
			cols = append(cols, column{name: f[:idx], unit: f[idx+1 : len(f)-1]})
			continue
		}
		switch {
		case strings.HasSuffix(f, "arcsec"):
			cols = append(cols, column{name: strings.TrimSuffix(f, "arcsec"), unit: "arcsec"})
		case strings.HasSuffix(f, "deg"):
			cols = append(cols, column{name: strings.TrimSuffix(f, "deg"), unit: "deg"})
		default:
			cols = append(cols, column{name: f})
		}
	}
	return cols
}

// toArcsec converts an axis value in the given unit to arcseconds.
func toArcsec(v float64, unit string) (float64, error) {
	switch unit {
	case "", "arcsec":
		return v, nil
	case "deg":
		return v * 3600, nil
	case "rad":
		return v * 180 / math.Pi * 3600, nil
	default:
		return 0, fmt.Errorf("unsupported axis unit %q", unit)
	}
}

// toDeg converts an angle value in the given unit to degrees.
func toDeg(v float64, unit string) (float64, error) {
	switch unit {
	case "", "deg":
		return v, nil
	case "rad":
		return v * 180 / math.Pi, nil
	default:
		return 0, fmt.Errorf("unsupported angle unit %q", unit)
	}
}

// readTable reads a commented-header table, returning the columns and
// data rows. The first comment line is the header.
func readTable(path string) ([]column, [][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var cols []column
	var rows [][]float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if cols == nil {
				cols = parseHeader(line)
			}
			continue
		}
		fields := strings.Fields(line)
		row := make([]float64, len(fields))
		for i, fv := range fields {
			v, err := strconv.ParseFloat(fv, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing %s: bad value %q: %w", path, fv, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if cols == nil {
		return nil, nil, fmt.Errorf("reading %s: no header line found", path)
	}
	return cols, rows, nil
}

// colIndex locates a column by bare name.
func colIndex(cols []column, name string) (int, error) {
	for i, c := range cols {
		if c.name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("missing column %q", name)
}

// Read loads a per-channel input beam log. Rows are in channel order; the
// returned slice has one beam per channel with axes in arcseconds.
func Read(path string) ([]beam.Beam, error) {
	cols, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}

	imaj, err := colIndex(cols, "BMAJ")
	if err != nil {
		return nil, fmt.Errorf("beamlog %s: %w", path, err)
	}
	imin, err := colIndex(cols, "BMIN")
	if err != nil {
		return nil, fmt.Errorf("beamlog %s: %w", path, err)
	}
	ipa, err := colIndex(cols, "BPA")
	if err != nil {
		return nil, fmt.Errorf("beamlog %s: %w", path, err)
	}

	beams := make([]beam.Beam, 0, len(rows))
	for n, row := range rows {
		if len(row) <= imaj || len(row) <= imin || len(row) <= ipa {
			return nil, fmt.Errorf("beamlog %s: row %d is short", path, n)
		}
		maj, err := toArcsec(row[imaj], cols[imaj].unit)
		if err != nil {
			return nil, fmt.Errorf("beamlog %s: %w", path, err)
		}
		min, err := toArcsec(row[imin], cols[imin].unit)
		if err != nil {
			return nil, fmt.Errorf("beamlog %s: %w", path, err)
		}
		pa, err := toDeg(row[ipa], cols[ipa].unit)
		if err != nil {
			return nil, fmt.Errorf("beamlog %s: %w", path, err)
		}
		beams = append(beams, beam.Beam{Major: maj, Minor: min, PA: pa})
	}
	return beams, nil
}
