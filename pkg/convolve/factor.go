package convolve

import (
	"math"

	"beamconv/pkg/beam"
)

// GaussFactor computes the multiplicative factor that restores Jy/beam
// normalization after convolving an image with the unit-peak kernel of
// conv. orig is the image's original beam; dx and dy are the pixel grid
// spacings. All axes and spacings are in arcseconds.
//
// The factor is the closed-form Gaussian area ratio
//
//	dx*dy * 4 ln 2 / pi * (majN*minN) / (majO*minO * majC*minC)
//
// with N the beam obtained by convolving orig with conv. It also returns
// that convolved beam. Any NaN input propagates to a NaN factor, so a
// blanked channel's factor marks the channel as "skip" downstream.
func GaussFactor(conv, orig beam.Beam, dx, dy float64) (float64, beam.Beam) {
	out := orig.Convolve(conv)
	if out.IsUndefined() {
		return math.NaN(), out
	}
	fac := dx * dy * 4 * math.Ln2 / math.Pi *
		(out.Major * out.Minor) / (orig.Major * orig.Minor * conv.Major * conv.Minor)
	return fac, out
}
