package beamlog

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"beamconv/pkg/beam"
)

// TestPathDerivation covers the co-location rules for both log files.
func TestPathDerivation(t *testing.T) {
	p := Path("/data/image.restored.fits")
	if p != "/data/beamlog.image.restored.txt" {
		t.Errorf("Unexpected beamlog path: %s", p)
	}

	c := ConvLogPath(p, "natural")
	if c != "/data/beamlogConvolve-natural.image.restored.txt" {
		t.Errorf("Unexpected convolution log path: %s", c)
	}
}

// TestReadBracketUnits parses the bracketed-unit header form.
func TestReadBracketUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beamlog.test.txt")
	content := `# Channel BMAJ[arcsec] BMIN[arcsec] BPA[deg]
0 10.5 8.25 45.0
1 11.0 8.5 -30.0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	beams, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(beams) != 2 {
		t.Fatalf("Expected 2 beams, got %d", len(beams))
	}
	if beams[0].Major != 10.5 || beams[0].Minor != 8.25 || beams[0].PA != 45 {
		t.Errorf("Unexpected beam 0: %v", beams[0])
	}
	if beams[1].PA != -30 {
		t.Errorf("Unexpected beam 1: %v", beams[1])
	}
}

// TestReadSuffixUnitsAndDegrees parses the legacy suffix header form and
// converts degree axes to arcseconds.
func TestReadSuffixUnitsAndDegrees(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beamlog.legacy.txt")
	content := `# Channel BMAJdeg BMINdeg BPAdeg
0 0.0025 0.002 10
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	beams, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if math.Abs(beams[0].Major-9) > 1e-9 || math.Abs(beams[0].Minor-7.2) > 1e-9 {
		t.Errorf("Degree axes not converted to arcsec: %v", beams[0])
	}
	if beams[0].PA != 10 {
		t.Errorf("Unexpected PA: %v", beams[0])
	}
}

// TestReadMissingColumn verifies a useful error for malformed logs.
func TestReadMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beamlog.bad.txt")
	content := "# Channel BMAJ[arcsec] BPA[deg]\n0 1 2\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Read(path); err == nil {
		t.Error("Expected error for missing BMIN column")
	}
}

// TestConvLogRoundTrip verifies the replay invariant: writing then
// reading reproduces identical entries, NaN rows included.
func TestConvLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beamlogConvolve-natural.test.txt")
	entries := []Entry{
		{
			Channel: 0,
			Target:  beam.Beam{Major: 12.3, Minor: 9.700000000000001, PA: 42.11},
			Conv:    beam.Beam{Major: 5.123456789012345, Minor: 2.1, PA: -88.88},
			Factor:  0.034812345678901234,
		},
		{
			Channel: 1,
			Target:  beam.Undefined(),
			Conv:    beam.Undefined(),
			Factor:  math.NaN(),
		},
	}

	if err := WriteConvLog(path, entries); err != nil {
		t.Fatalf("WriteConvLog failed: %v", err)
	}
	got, err := ReadConvLog(path)
	if err != nil {
		t.Fatalf("ReadConvLog failed: %v", err)
	}

	if len(got) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(got))
	}

	// Channel 0: every float must survive byte-for-byte.
	if got[0] != entries[0] {
		t.Errorf("Entry 0 not reproduced exactly:\nwrote %+v\nread  %+v", entries[0], got[0])
	}

	// Channel 1: NaNs must come back as NaNs.
	if got[1].Channel != 1 {
		t.Errorf("Unexpected channel: %d", got[1].Channel)
	}
	if !got[1].Target.IsUndefined() || !got[1].Conv.IsUndefined() || !math.IsNaN(got[1].Factor) {
		t.Errorf("Blanked entry not reproduced: %+v", got[1])
	}
}

// TestReadConvLogMissing verifies the caller sees the file-not-found.
func TestReadConvLogMissing(t *testing.T) {
	_, err := ReadConvLog(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Error("Expected error for missing log")
	}
	if !os.IsNotExist(err) {
		t.Errorf("Expected a not-exist error, got %v", err)
	}
}
