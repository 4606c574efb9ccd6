// Package convolve provides the per-plane smoothing backends and the
// Jy/beam flux rescaling used when convolving image planes from one beam
// to another.
//
// Four backends sit behind one strategy interface. The "robust" backend
// applies the convolution analytically in the Fourier domain and derives
// its own flux factor; the kernel-based backends ("scipy", "astropy",
// "astropy_fft") convolve with a unit-peak Gaussian kernel and reuse the
// externally computed factor carried in the PlaneJob.
package convolve

import (
	"fmt"
	"math"

	"beamconv/pkg/beam"
)

// Backend names accepted by the configuration surface.
const (
	ModeRobust     = "robust"
	ModeScipy      = "scipy"
	ModeAstropy    = "astropy"
	ModeAstropyFFT = "astropy_fft"
)

// PlaneJob carries everything a backend needs to smooth one image plane.
type PlaneJob struct {
	// OldBeam is the plane's original PSF.
	OldBeam beam.Beam

	// NewBeam is the target common beam.
	NewBeam beam.Beam

	// ConvBeam is the convolving beam (NewBeam deconvolved by OldBeam).
	ConvBeam beam.Beam

	// DX, DY are the pixel grid spacings in arcseconds.
	DX, DY float64

	// Factor is the flux-rescaling factor computed by the planner.
	// Kernel-based backends apply it verbatim; the robust backend
	// computes its own.
	Factor float64
}

// Backend smooths a single image plane. Implementations return the
// rescaled plane and the flux factor they applied.
type Backend interface {
	// Name returns the configuration name of the backend.
	Name() string

	// Convolve smooths one nx-by-ny plane (row-major, ny rows of nx).
	Convolve(plane []float64, nx, ny int, job PlaneJob) ([]float64, float64, error)
}

// New returns the backend for the given configuration name.
func New(name string) (Backend, error) {
	switch name {
	case ModeRobust:
		return &robustBackend{}, nil
	case ModeScipy:
		return &directBackend{nanAware: false}, nil
	case ModeAstropy:
		return &directBackend{nanAware: true}, nil
	case ModeAstropyFFT:
		return &fftBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown convolution mode %q", name)
	}
}

// IsValidMode reports whether name names a known backend.
func IsValidMode(name string) bool {
	_, err := New(name)
	return err == nil
}

// Smooth applies the blanked-channel sentinels before dispatching to the
// backend: an undefined convolving beam blanks the whole plane, and a
// fully blank plane passes through untouched.
func Smooth(b Backend, plane []float64, nx, ny int, job PlaneJob) ([]float64, float64, error) {
	if job.ConvBeam.IsUndefined() {
		out := make([]float64, len(plane))
		for i := range out {
			out[i] = math.NaN()
		}
		return out, math.NaN(), nil
	}
	if allNaN(plane) {
		out := make([]float64, len(plane))
		copy(out, plane)
		return out, job.Factor, nil
	}
	return b.Convolve(plane, nx, ny, job)
}

func allNaN(plane []float64) bool {
	for _, v := range plane {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// fwhmToSigma converts a Gaussian FWHM to its standard deviation.
func fwhmToSigma(fwhm float64) float64 {
	return fwhm / (2 * math.Sqrt(2*math.Ln2))
}
