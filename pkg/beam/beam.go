// Package beam implements elliptical-Gaussian beam descriptors and the
// geometry needed to smooth radio image cubes to a common resolution:
// beam convolution and deconvolution, masked beam collections, and the
// smallest-enclosing common beam search.
//
// Axes are FWHM values in arcseconds and position angles are in degrees
// throughout. An all-NaN beam is the sentinel for "undefined" (blanked
// channel, impossible deconvolution); a beam with all three parameters
// zero is the sentinel used by upstream pipelines for "no measured beam".
package beam

import (
	"fmt"
	"math"
)

// Beam describes an elliptical-Gaussian point-spread function.
// It is an immutable value: arithmetic returns new beams.
type Beam struct {
	// Major is the FWHM major axis in arcseconds.
	Major float64

	// Minor is the FWHM minor axis in arcseconds. Invariant: Minor <= Major
	// unless the beam is undefined.
	Minor float64

	// PA is the position angle of the major axis in degrees.
	PA float64
}

// New constructs a beam, enforcing the major >= minor invariant.
func New(major, minor, pa float64) (Beam, error) {
	if minor > major {
		return Beam{}, fmt.Errorf("beam minor axis %g exceeds major axis %g", minor, major)
	}
	return Beam{Major: major, Minor: minor, PA: pa}, nil
}

// Undefined returns the all-NaN beam used to mark blanked channels and
// failed deconvolutions.
func Undefined() Beam {
	nan := math.NaN()
	return Beam{Major: nan, Minor: nan, PA: nan}
}

// Null is the zero-size sentinel beam written by upstream pipelines for
// channels with no measured beam.
var Null = Beam{Major: 0, Minor: 0, PA: 0}

// IsUndefined reports whether any beam parameter is NaN.
func (b Beam) IsUndefined() bool {
	return math.IsNaN(b.Major) || math.IsNaN(b.Minor) || math.IsNaN(b.PA)
}

// IsNull reports whether the beam is the null-beam sentinel.
func (b Beam) IsNull() bool {
	return b.Equal(Null)
}

// Equal compares all three parameters exactly. Undefined beams are never
// equal to anything, NaN semantics included.
func (b Beam) Equal(other Beam) bool {
	return b.Major == other.Major && b.Minor == other.Minor && b.PA == other.PA
}

// Area returns the beam solid angle in arcsec^2.
func (b Beam) Area() float64 {
	return math.Pi * b.Major * b.Minor / (4 * math.Ln2)
}

func (b Beam) String() string {
	return fmt.Sprintf("Beam(major=%.4g arcsec, minor=%.4g arcsec, pa=%.4g deg)", b.Major, b.Minor, b.PA)
}

// paRad returns the position angle in radians.
func (b Beam) paRad() float64 {
	return b.PA * math.Pi / 180
}

// normalizePA folds a position angle in degrees into (-90, 90].
func normalizePA(pa float64) float64 {
	for pa > 90 {
		pa -= 180
	}
	for pa <= -90 {
		pa += 180
	}
	return pa
}

// Convolve returns the beam resulting from convolving b with other, using
// the second-moment identities for elliptical Gaussians (Wild 1970).
// An undefined operand propagates: NaN op X = NaN.
func (b Beam) Convolve(other Beam) Beam {
	if b.IsUndefined() || other.IsUndefined() {
		return Undefined()
	}

	maj1, min1, pa1 := b.Major, b.Minor, b.paRad()
	maj2, min2, pa2 := other.Major, other.Minor, other.paRad()

	alpha := sq(maj1*math.Cos(pa1)) + sq(min1*math.Sin(pa1)) +
		sq(maj2*math.Cos(pa2)) + sq(min2*math.Sin(pa2))
	beta := sq(maj1*math.Sin(pa1)) + sq(min1*math.Cos(pa1)) +
		sq(maj2*math.Sin(pa2)) + sq(min2*math.Cos(pa2))
	gamma := 2 * ((min1*min1-maj1*maj1)*math.Sin(pa1)*math.Cos(pa1) +
		(min2*min2-maj2*maj2)*math.Sin(pa2)*math.Cos(pa2))

	s := alpha + beta
	t := math.Sqrt(sq(alpha-beta) + sq(gamma))

	major := math.Sqrt(0.5 * (s + t))
	minor := math.Sqrt(0.5 * (s - t))
	var pa float64
	if math.Abs(gamma)+math.Abs(alpha-beta) != 0 {
		pa = 0.5 * math.Atan2(-gamma, alpha-beta) * 180 / math.Pi
	}
	return Beam{Major: major, Minor: minor, PA: normalizePA(pa)}
}

// Deconvolve returns the beam that, convolved with source, reproduces the
// target beam b. When source does not fit inside b the deconvolution is
// impossible and the undefined beam is returned; this function never
// panics. An exact match deconvolves to the null beam.
func (b Beam) Deconvolve(source Beam) Beam {
	if b.IsUndefined() || source.IsUndefined() {
		return Undefined()
	}

	maj1, min1, pa1 := b.Major, b.Minor, b.paRad()
	maj2, min2, pa2 := source.Major, source.Minor, source.paRad()

	alpha := sq(maj1*math.Cos(pa1)) + sq(min1*math.Sin(pa1)) -
		sq(maj2*math.Cos(pa2)) - sq(min2*math.Sin(pa2))
	beta := sq(maj1*math.Sin(pa1)) + sq(min1*math.Cos(pa1)) -
		sq(maj2*math.Sin(pa2)) - sq(min2*math.Cos(pa2))
	gamma := 2 * ((min1*min1-maj1*maj1)*math.Sin(pa1)*math.Cos(pa1) -
		(min2*min2-maj2*maj2)*math.Sin(pa2)*math.Cos(pa2))

	s := alpha + beta
	t := math.Sqrt(sq(alpha-beta) + sq(gamma))

	// Tolerance against floating-point noise when the beams are (near)
	// identical, in which case the result is pointlike.
	limit := 1e-12 * (sq(maj1) + sq(maj2))
	if alpha < -limit || beta < -limit || s < t-limit {
		return Undefined()
	}
	if s <= t || alpha <= 0 || beta <= 0 {
		return Null
	}

	major := math.Sqrt(0.5 * (s + t))
	minor := math.Sqrt(0.5 * (s - t))
	var pa float64
	if math.Abs(gamma)+math.Abs(alpha-beta) != 0 {
		pa = 0.5 * math.Atan2(-gamma, alpha-beta) * 180 / math.Pi
	}
	return Beam{Major: major, Minor: minor, PA: normalizePA(pa)}
}

// RoundUp rounds the beam axes up to 0.1 arcsec and the position angle up
// to 0.01 deg. Ceiling rather than nearest, so the rounded beam never
// under-covers the beam it was derived from. Idempotent.
func (b Beam) RoundUp() Beam {
	return Beam{
		Major: ceilTo(b.Major, 1),
		Minor: ceilTo(b.Minor, 1),
		PA:    ceilTo(b.PA, 2),
	}
}

// ceilTo rounds x up at the given number of decimal places. NaN stays NaN.
func ceilTo(x float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	scaled := x * scale
	// Snap to the nearest integer when representation noise is all that
	// separates them, so already-rounded values stay fixed.
	if r := math.Round(scaled); math.Abs(scaled-r) < 1e-9 {
		scaled = r
	}
	return math.Ceil(scaled) / scale
}

func sq(x float64) float64 { return x * x }
