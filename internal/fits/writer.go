package fits

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
)

// BeamInfo is an elliptical beam destined for FITS headers or beam
// tables. Units are whatever the destination calls for; callers convert.
type BeamInfo struct {
	BMaj float64
	BMin float64
	BPA  float64
}

// Writer produces a smoothed copy of an input cube: the source header
// with the common beam stamped in, float32 planes written one channel at
// a time, and optionally a per-channel beam table extension.
type Writer struct {
	f          *os.File
	nx, ny     int
	nchan      int
	dataOffset int64
	table      []BeamInfo
	closed     bool
}

func endCard() string {
	return "END" + strings.Repeat(" ", cardSize-3)
}

func formatCard(key, val, comment string) string {
	s := fmt.Sprintf("%-8s= %20s", key, val)
	if comment != "" {
		s += " / " + comment
	}
	if len(s) > cardSize {
		s = s[:cardSize]
	}
	return s + strings.Repeat(" ", cardSize-len(s))
}

func commentCard(text string) string {
	s := "COMMENT " + text
	if len(s) > cardSize {
		s = s[:cardSize]
	}
	return s + strings.Repeat(" ", cardSize-len(s))
}

func floatVal(v float64) string {
	return fmt.Sprintf("%.12E", v)
}

func padBlock(b []byte, fill byte) []byte {
	if rem := len(b) % blockSize; rem != 0 {
		pad := make([]byte, blockSize-rem)
		for i := range pad {
			pad[i] = fill
		}
		b = append(b, pad...)
	}
	return b
}

// Create opens path for writing and lays down the header: src's cards
// with BITPIX forced to -32 and the beam keywords replaced by primary
// (degrees). Extra comments are appended before END. If table is
// non-nil it is written as a binary-table extension when the writer is
// closed, recording each channel's beam in arcseconds.
func Create(path string, src *Cube, primary BeamInfo, comments []string, table []BeamInfo) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	beamCards := map[string]string{
		"BMAJ": formatCard("BMAJ", floatVal(primary.BMaj), ""),
		"BMIN": formatCard("BMIN", floatVal(primary.BMin), ""),
		"BPA":  formatCard("BPA", floatVal(primary.BPA), ""),
	}

	var hdr []byte
	seen := map[string]bool{}
	for _, c := range src.hdr.cards {
		raw := c.raw
		if c.key == "BITPIX" {
			raw = formatCard("BITPIX", "-32", "IEEE single precision")
		} else if repl, ok := beamCards[c.key]; ok {
			raw = repl
			seen[c.key] = true
		}
		hdr = append(hdr, raw...)
	}
	for _, key := range []string{"BMAJ", "BMIN", "BPA"} {
		if !seen[key] {
			hdr = append(hdr, beamCards[key]...)
		}
	}
	for _, text := range comments {
		hdr = append(hdr, commentCard(text)...)
	}
	hdr = append(hdr, endCard()...)
	hdr = padBlock(hdr, ' ')
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("fits: writing header: %w", err)
	}

	w := &Writer{
		f:          f,
		nx:         src.nx,
		ny:         src.ny,
		nchan:      src.nchan,
		dataOffset: int64(len(hdr)),
		table:      table,
	}
	return w, nil
}

// WritePlane stores one channel's plane as big-endian float32.
func (w *Writer) WritePlane(channel int, plane []float64) error {
	if channel < 0 || channel >= w.nchan {
		return fmt.Errorf("fits: channel %d out of range [0,%d)", channel, w.nchan)
	}
	if len(plane) != w.nx*w.ny {
		return fmt.Errorf("fits: plane has %d pixels, want %d", len(plane), w.nx*w.ny)
	}
	raw := make([]byte, len(plane)*4)
	for i, v := range plane {
		binary.BigEndian.PutUint32(raw[i*4:], math.Float32bits(float32(v)))
	}
	offset := w.dataOffset + int64(channel)*int64(len(raw))
	if _, err := w.f.WriteAt(raw, offset); err != nil {
		return fmt.Errorf("fits: writing channel %d: %w", channel, err)
	}
	return nil
}

// Close pads the data segment, appends the beam table extension if one
// was requested, and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	dataLen := int64(w.nx) * int64(w.ny) * int64(w.nchan) * 4
	end := w.dataOffset + dataLen
	if rem := end % blockSize; rem != 0 {
		if _, err := w.f.WriteAt(make([]byte, blockSize-rem), end); err != nil {
			w.f.Close()
			return err
		}
		end += blockSize - rem
	}

	if w.table != nil {
		ext := beamTableBytes(w.table)
		if _, err := w.f.WriteAt(ext, end); err != nil {
			w.f.Close()
			return err
		}
	}
	return w.f.Close()
}

// beamTableBytes renders a BEAMS binary-table extension: one row per
// channel, three float64 columns in arcsec, arcsec, deg.
func beamTableBytes(table []BeamInfo) []byte {
	cards := []string{
		formatCard("XTENSION", "'BINTABLE'", "binary table extension"),
		formatCard("BITPIX", "8", ""),
		formatCard("NAXIS", "2", ""),
		formatCard("NAXIS1", "24", "bytes per row"),
		formatCard("NAXIS2", fmt.Sprint(len(table)), ""),
		formatCard("PCOUNT", "0", ""),
		formatCard("GCOUNT", "1", ""),
		formatCard("TFIELDS", "3", ""),
		formatCard("TTYPE1", "'BMAJ    '", ""),
		formatCard("TFORM1", "'D       '", ""),
		formatCard("TUNIT1", "'arcsec  '", ""),
		formatCard("TTYPE2", "'BMIN    '", ""),
		formatCard("TFORM2", "'D       '", ""),
		formatCard("TUNIT2", "'arcsec  '", ""),
		formatCard("TTYPE3", "'BPA     '", ""),
		formatCard("TFORM3", "'D       '", ""),
		formatCard("TUNIT3", "'deg     '", ""),
		formatCard("EXTNAME", "'BEAMS   '", ""),
	}
	var hdr []byte
	for _, c := range cards {
		hdr = append(hdr, c...)
	}
	hdr = append(hdr, endCard()...)
	hdr = padBlock(hdr, ' ')

	data := make([]byte, 0, len(table)*24)
	row := make([]byte, 24)
	for _, b := range table {
		binary.BigEndian.PutUint64(row[0:], math.Float64bits(b.BMaj))
		binary.BigEndian.PutUint64(row[8:], math.Float64bits(b.BMin))
		binary.BigEndian.PutUint64(row[16:], math.Float64bits(b.BPA))
		data = append(data, row...)
	}
	data = padBlock(data, 0)
	return append(hdr, data...)
}

// WriteSimple writes a minimal 3-axis float64 cube. It exists for test
// fixtures and for synthesizing small diagnostic images; production
// pipelines hand us cubes made elsewhere.
func WriteSimple(path string, nx, ny int, cdelt1, cdelt2 float64, b BeamInfo, planes [][]float64) error {
	cards := []string{
		formatCard("SIMPLE", "T", "conforms to FITS standard"),
		formatCard("BITPIX", "-64", "IEEE double precision"),
		formatCard("NAXIS", "3", ""),
		formatCard("NAXIS1", fmt.Sprint(nx), ""),
		formatCard("NAXIS2", fmt.Sprint(ny), ""),
		formatCard("NAXIS3", fmt.Sprint(len(planes)), ""),
		formatCard("CDELT1", floatVal(cdelt1), "deg"),
		formatCard("CDELT2", floatVal(cdelt2), "deg"),
		formatCard("BMAJ", floatVal(b.BMaj), "deg"),
		formatCard("BMIN", floatVal(b.BMin), "deg"),
		formatCard("BPA", floatVal(b.BPA), "deg"),
		formatCard("BUNIT", "'Jy/beam '", ""),
	}
	var out []byte
	for _, c := range cards {
		out = append(out, c...)
	}
	out = append(out, endCard()...)
	out = padBlock(out, ' ')

	for _, plane := range planes {
		if len(plane) != nx*ny {
			return fmt.Errorf("fits: plane has %d pixels, want %d", len(plane), nx*ny)
		}
		raw := make([]byte, len(plane)*8)
		for i, v := range plane {
			binary.BigEndian.PutUint64(raw[i*8:], math.Float64bits(v))
		}
		out = append(out, raw...)
	}
	out = padBlock(out, 0)
	return os.WriteFile(path, out, 0o644)
}
