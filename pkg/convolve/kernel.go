package convolve

import (
	"math"

	"beamconv/pkg/beam"
)

// Kernel samples the unit-peak Gaussian kernel of b on the pixel grid.
// The kernel is square with odd side length, sized to hold four standard
// deviations of the major axis. The null beam yields the 1x1 identity
// kernel.
func Kernel(b beam.Beam, dx, dy float64) ([]float64, int) {
	if b.IsNull() {
		return []float64{1}, 1
	}

	sigMaj := fwhmToSigma(b.Major)
	sigMin := fwhmToSigma(b.Minor)
	phi := b.PA * math.Pi / 180
	cosPhi, sinPhi := math.Cos(phi), math.Sin(phi)

	scale := math.Min(math.Abs(dx), math.Abs(dy))
	radius := int(math.Ceil(4 * sigMaj / scale))
	if radius < 1 {
		radius = 1
	}
	size := 2*radius + 1

	k := make([]float64, size*size)
	for iy := 0; iy < size; iy++ {
		y := float64(iy-radius) * dy
		for ix := 0; ix < size; ix++ {
			x := float64(ix-radius) * dx
			// Rotate into the beam frame: xr along the major axis.
			xr := x*cosPhi + y*sinPhi
			yr := -x*sinPhi + y*cosPhi
			k[iy*size+ix] = math.Exp(-0.5 * (xr*xr/(sigMaj*sigMaj) + yr*yr/(sigMin*sigMin)))
		}
	}
	return k, size
}

// kernelSum returns the sum of all kernel samples.
func kernelSum(k []float64) float64 {
	var s float64
	for _, v := range k {
		s += v
	}
	return s
}
