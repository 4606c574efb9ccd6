package plan

import (
	"beamconv/pkg/beam"
	"beamconv/pkg/convolve"
)

// NyquistGuard enforces the sampling limit on adopted beams: what must
// be representable on the pixel grid is not the adopted beam itself but
// every convolving kernel derived from it, so the guard deconvolves the
// candidate by each input beam and checks that the narrowest kernel
// minor axis spans at least two pixels. The analytic Fourier backend
// divides beams out in frequency space and never realizes a kernel on
// the grid, so the guard stands down for it.
type NyquistGuard struct {
	grid   float64
	active bool
}

// NewNyquistGuard builds a guard for the coarsest pixel spacing (in
// arcseconds) among the inputs and the configured convolution backend.
func NewNyquistGuard(grid float64, convMode string) NyquistGuard {
	return NyquistGuard{grid: grid, active: convMode != convolve.ModeRobust}
}

// Beam returns the guard beam, circular at twice the pixel spacing.
func (g NyquistGuard) Beam() beam.Beam {
	return beam.Beam{Major: 2 * g.grid, Minor: 2 * g.grid, PA: 0}
}

// Undersampled reports whether convolving any of beams up to candidate
// needs a kernel whose minor axis is sampled by fewer than two pixels.
// An identity kernel counts as undersampled: a null convolving beam
// cannot be realized on the grid either. An inactive guard never flags.
func (g NyquistGuard) Undersampled(candidate beam.Beam, beams []beam.Beam) bool {
	if !g.active || candidate.IsUndefined() {
		return false
	}
	for _, b := range beams {
		if b.IsUndefined() {
			continue
		}
		conv := candidate.Deconvolve(b)
		if conv.IsUndefined() {
			continue
		}
		if conv.Minor/g.grid < 2 {
			return true
		}
	}
	return false
}

// Widen grows a beam so every kernel derived from it is sampled:
// convolution with the guard beam adds at least two pixels in
// quadrature to each kernel's minor axis. The result is rounded up to
// the reporting grid, which only grows it further.
func (g NyquistGuard) Widen(b beam.Beam) beam.Beam {
	return b.Convolve(g.Beam()).RoundUp()
}

// Apply widens candidate when one of its kernels against beams is
// undersampled. The second return reports whether widening happened.
func (g NyquistGuard) Apply(candidate beam.Beam, beams []beam.Beam) (beam.Beam, bool) {
	if !g.Undersampled(candidate, beams) {
		return candidate, false
	}
	return g.Widen(candidate), true
}
