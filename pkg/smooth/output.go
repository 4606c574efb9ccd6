package smooth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"beamconv/internal/fits"
	"beamconv/pkg/config"
	"beamconv/pkg/plan"
)

// OutputPath derives the smoothed cube's path from the input path and
// the output options. The default suffix is the smoothing mode, so
// image.fits becomes image.total.fits or image.natural.fits.
func OutputPath(in string, cfg *config.Config) string {
	dir := filepath.Dir(in)
	if cfg.Output.OutDir != "" {
		dir = cfg.Output.OutDir
	}
	suffix := cfg.Output.Suffix
	if suffix == "" {
		suffix = cfg.Smoothing.Mode
	}
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	return filepath.Join(dir, cfg.Output.Prefix+base+"."+suffix+".fits")
}

// initOutputs creates one writer per cube: the input header with the
// adopted beam stamped in degrees, and in natural mode a beam table
// extension recording each channel's adopted beam in arcseconds.
func (s *Smoother) initOutputs() ([]*fits.Writer, error) {
	if s.cfg.Output.OutDir != "" {
		if err := os.MkdirAll(s.cfg.Output.OutDir, 0o755); err != nil {
			return nil, fmt.Errorf("smooth: creating output directory: %w", err)
		}
	}

	primary := primaryBeam(s.plan)
	comments := []string{
		fmt.Sprintf("Smoothed to a common resolution with the %s backend", s.cfg.Smoothing.ConvMode),
		fmt.Sprintf("Smoothing mode: %s", s.plan.Mode),
	}

	var table []fits.BeamInfo
	if s.plan.Mode == config.ModeNatural {
		table = make([]fits.BeamInfo, len(s.plan.Common))
		for ch, b := range s.plan.Common {
			table[ch] = fits.BeamInfo{BMaj: b.Major, BMin: b.Minor, BPA: b.PA}
		}
	}

	writers := make([]*fits.Writer, len(s.cubes))
	for i, cube := range s.cubes {
		path := OutputPath(s.descs[i].Path, s.cfg)
		w, err := fits.Create(path, cube, primary, comments, table)
		if err != nil {
			for _, prev := range writers[:i] {
				prev.Close()
			}
			return nil, fmt.Errorf("smooth: creating %s: %w", path, err)
		}
		writers[i] = w
	}
	return writers, nil
}

// primaryBeam picks the beam written to the primary header, in degrees:
// the first channel's adopted beam, skipping blanked channels. Total
// mode has one adopted beam anyway; in natural mode the full run is in
// the beam table and the header carries the leading channel, which is
// the convention readers of multi-beam cubes expect.
func primaryBeam(p *plan.Plan) fits.BeamInfo {
	for _, b := range p.Common {
		if b.IsUndefined() {
			continue
		}
		return fits.BeamInfo{BMaj: b.Major / 3600, BMin: b.Minor / 3600, BPA: b.PA}
	}
	return fits.BeamInfo{}
}
