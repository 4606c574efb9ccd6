// Package fits implements the narrow FITS subset beamconv needs: opening
// spectral image cubes, reading and writing individual channel planes in
// place, and emitting smoothed copies with updated beam headers. It is a
// collaborator of the resolution engine, not a general FITS library:
// only IEEE-float images (BITPIX -32/-64) with 2 to 4 axes are handled.
package fits

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	blockSize = 2880
	cardSize  = 80
)

// card is one raw 80-byte header record.
type card struct {
	key string
	raw string
}

// Header is an ordered FITS header with keyed lookup.
type Header struct {
	cards []card
}

func (h *Header) find(key string) (string, bool) {
	for _, c := range h.cards {
		if c.key == key {
			return c.raw, true
		}
	}
	return "", false
}

// value extracts the raw value field of a keyword card.
func value(raw string) string {
	if len(raw) < 10 || raw[8] != '=' {
		return ""
	}
	v := raw[10:]
	if idx := strings.IndexByte(v, '/'); idx >= 0 && !strings.HasPrefix(strings.TrimSpace(v), "'") {
		v = v[:idx]
	}
	return strings.TrimSpace(v)
}

// Float returns the keyword's value as a float64.
func (h *Header) Float(key string) (float64, error) {
	raw, ok := h.find(key)
	if !ok {
		return 0, fmt.Errorf("fits: missing header keyword %s", key)
	}
	v, err := strconv.ParseFloat(value(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("fits: keyword %s is not numeric: %w", key, err)
	}
	return v, nil
}

// Int returns the keyword's value as an int.
func (h *Header) Int(key string) (int, error) {
	f, err := h.Float(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Cube is an open FITS image cube. Planes are addressed by channel; the
// degenerate polarization axis of 4-axis cubes is collapsed away, which
// matches how the upstream imaging pipeline lays out its products.
type Cube struct {
	f          *os.File
	hdr        Header
	dataOffset int64
	bitpix     int
	nx, ny     int
	nchan      int
}

// Open opens a cube read-only and parses its primary header.
func Open(path string) (*Cube, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	c := &Cube{f: f}
	if err := c.parseHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("fits: %s: %w", path, err)
	}
	return c, nil
}

func (c *Cube) parseHeader() error {
	buf := make([]byte, blockSize)
	offset := int64(0)
	done := false
	for !done {
		if _, err := c.f.ReadAt(buf, offset); err != nil {
			return fmt.Errorf("reading header block: %w", err)
		}
		offset += blockSize
		for i := 0; i < blockSize; i += cardSize {
			raw := string(buf[i : i+cardSize])
			key := strings.TrimSpace(raw[:8])
			if key == "END" {
				done = true
				break
			}
			c.hdr.cards = append(c.hdr.cards, card{key: key, raw: raw})
		}
	}
	c.dataOffset = offset

	bitpix, err := c.hdr.Int("BITPIX")
	if err != nil {
		return err
	}
	if bitpix != -32 && bitpix != -64 {
		return fmt.Errorf("unsupported BITPIX %d, only IEEE float images are handled", bitpix)
	}
	c.bitpix = bitpix

	naxis, err := c.hdr.Int("NAXIS")
	if err != nil {
		return err
	}
	if naxis < 2 || naxis > 4 {
		return fmt.Errorf("unsupported NAXIS %d", naxis)
	}
	axes := make([]int, naxis)
	for i := range axes {
		if axes[i], err = c.hdr.Int(fmt.Sprintf("NAXIS%d", i+1)); err != nil {
			return err
		}
	}
	c.nx, c.ny = axes[0], axes[1]

	switch naxis {
	case 2:
		c.nchan = 1
	case 3:
		c.nchan = axes[2]
	case 4:
		// Spectral cubes carry (x, y, pol, chan) or (x, y, chan, pol);
		// either way one of the trailing axes must be degenerate.
		switch {
		case axes[2] == 1:
			c.nchan = axes[3]
		case axes[3] == 1:
			c.nchan = axes[2]
		default:
			return fmt.Errorf("cube has %dx%d trailing axes; need a degenerate polarization axis", axes[2], axes[3])
		}
	}
	return nil
}

// Close closes the underlying file.
func (c *Cube) Close() error { return c.f.Close() }

// Header exposes the parsed primary header.
func (c *Cube) Header() *Header { return &c.hdr }

// NX returns the x extent in pixels.
func (c *Cube) NX() int { return c.nx }

// NY returns the y extent in pixels.
func (c *Cube) NY() int { return c.ny }

// NChan returns the number of spectral channels.
func (c *Cube) NChan() int { return c.nchan }

// PixelScale returns the pixel grid spacing (dx, dy) in arcseconds.
// CDELT1 is negated, matching the RA axis convention.
func (c *Cube) PixelScale() (dx, dy float64, err error) {
	cd1, err := c.hdr.Float("CDELT1")
	if err != nil {
		return 0, 0, err
	}
	cd2, err := c.hdr.Float("CDELT2")
	if err != nil {
		return 0, 0, err
	}
	return -cd1 * 3600, cd2 * 3600, nil
}

func (c *Cube) bytesPerPixel() int64 {
	if c.bitpix == -64 {
		return 8
	}
	return 4
}

func (c *Cube) planeOffset(channel int) int64 {
	return c.dataOffset + int64(channel)*int64(c.nx)*int64(c.ny)*c.bytesPerPixel()
}

// ReadPlane reads channel's image plane as float64, row-major.
func (c *Cube) ReadPlane(channel int) ([]float64, error) {
	if channel < 0 || channel >= c.nchan {
		return nil, fmt.Errorf("fits: channel %d out of range [0,%d)", channel, c.nchan)
	}
	n := c.nx * c.ny
	raw := make([]byte, int64(n)*c.bytesPerPixel())
	if _, err := c.f.ReadAt(raw, c.planeOffset(channel)); err != nil {
		return nil, fmt.Errorf("fits: reading channel %d: %w", channel, err)
	}

	out := make([]float64, n)
	if c.bitpix == -64 {
		for i := 0; i < n; i++ {
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))
		}
	} else {
		for i := 0; i < n; i++ {
			out[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:])))
		}
	}
	return out, nil
}
