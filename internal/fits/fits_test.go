package fits

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir string, nx, ny int, planes [][]float64) string {
	t.Helper()
	path := filepath.Join(dir, "cube.fits")
	b := BeamInfo{BMaj: 10.0 / 3600, BMin: 8.0 / 3600, BPA: 45}
	if err := WriteSimple(path, nx, ny, -2.5/3600, 2.5/3600, b, planes); err != nil {
		t.Fatalf("WriteSimple: %v", err)
	}
	return path
}

func TestOpenRoundTrip(t *testing.T) {
	planes := [][]float64{
		make([]float64, 16*12),
		make([]float64, 16*12),
	}
	planes[0][5] = 3.5
	planes[1][7] = math.NaN()
	path := writeFixture(t, t.TempDir(), 16, 12, planes)

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if c.NX() != 16 || c.NY() != 12 || c.NChan() != 2 {
		t.Fatalf("dimensions = %dx%dx%d, want 16x12x2", c.NX(), c.NY(), c.NChan())
	}

	dx, dy, err := c.PixelScale()
	if err != nil {
		t.Fatalf("PixelScale: %v", err)
	}
	if math.Abs(dx-2.5) > 1e-9 || math.Abs(dy-2.5) > 1e-9 {
		t.Fatalf("pixel scale = (%g, %g) arcsec, want (2.5, 2.5)", dx, dy)
	}

	p0, err := c.ReadPlane(0)
	if err != nil {
		t.Fatalf("ReadPlane(0): %v", err)
	}
	if p0[5] != 3.5 {
		t.Errorf("plane 0 pixel 5 = %g, want 3.5", p0[5])
	}
	p1, err := c.ReadPlane(1)
	if err != nil {
		t.Fatalf("ReadPlane(1): %v", err)
	}
	if !math.IsNaN(p1[7]) {
		t.Errorf("plane 1 pixel 7 = %g, want NaN", p1[7])
	}
	if _, err := c.ReadPlane(2); err == nil {
		t.Error("ReadPlane(2) succeeded for a 2-channel cube")
	}
}

func TestHeaderKeywords(t *testing.T) {
	path := writeFixture(t, t.TempDir(), 8, 8, [][]float64{make([]float64, 64)})
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	bmaj, err := c.Header().Float("BMAJ")
	if err != nil {
		t.Fatalf("Float(BMAJ): %v", err)
	}
	if math.Abs(bmaj*3600-10) > 1e-9 {
		t.Errorf("BMAJ = %g deg, want 10 arcsec", bmaj)
	}
	if _, err := c.Header().Float("NOPE"); err == nil {
		t.Error("Float(NOPE) succeeded for a missing keyword")
	}
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	plane := make([]float64, 10*10)
	plane[42] = 1.25
	plane[3] = math.NaN()
	src, err := Open(writeFixture(t, dir, 10, 10, [][]float64{plane, plane}))
	if err != nil {
		t.Fatalf("Open source: %v", err)
	}
	defer src.Close()

	outPath := filepath.Join(dir, "out.fits")
	common := BeamInfo{BMaj: 12.0 / 3600, BMin: 12.0 / 3600, BPA: 0}
	table := []BeamInfo{
		{BMaj: 11, BMin: 9, BPA: 10},
		{BMaj: 12, BMin: 10, BPA: 20},
	}
	w, err := Create(outPath, src, common, []string{"smoothed to a common resolution"}, table)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for ch := 0; ch < 2; ch++ {
		if err := w.WritePlane(ch, plane); err != nil {
			t.Fatalf("WritePlane(%d): %v", ch, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out, err := Open(outPath)
	if err != nil {
		t.Fatalf("Open output: %v", err)
	}
	defer out.Close()

	if out.NChan() != 2 {
		t.Fatalf("output channels = %d, want 2", out.NChan())
	}
	bmaj, err := out.Header().Float("BMAJ")
	if err != nil {
		t.Fatalf("Float(BMAJ): %v", err)
	}
	if math.Abs(bmaj-common.BMaj) > 1e-12 {
		t.Errorf("output BMAJ = %g, want %g", bmaj, common.BMaj)
	}

	got, err := out.ReadPlane(1)
	if err != nil {
		t.Fatalf("ReadPlane: %v", err)
	}
	// Output is float32; compare at single precision.
	if math.Abs(got[42]-1.25) > 1e-6 {
		t.Errorf("pixel 42 = %g, want 1.25", got[42])
	}
	if !math.IsNaN(got[3]) {
		t.Errorf("pixel 3 = %g, want NaN", got[3])
	}

	// File sizes stay block aligned even with the table appended.
	info, err := os.Stat(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size()%2880 != 0 {
		t.Errorf("output size %d is not a multiple of 2880", info.Size())
	}
}

func TestOpenRejectsUnsupported(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.fits")); err == nil {
		t.Error("Open succeeded for a missing file")
	}
}
