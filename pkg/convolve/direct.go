package convolve

import "math"

// directBackend convolves a plane with the sampled convolving-beam kernel
// in the spatial domain, with zero padding at the plane edges.
//
// With nanAware unset this is the "scipy" mode: fast, but any blank pixel
// poisons every output pixel whose kernel window touches it. With
// nanAware set it is the "astropy" mode: blank pixels are excluded from
// each window and the window is renormalized over the finite samples.
type directBackend struct {
	nanAware bool
}

func (d *directBackend) Name() string {
	if d.nanAware {
		return ModeAstropy
	}
	return ModeScipy
}

func (d *directBackend) Convolve(plane []float64, nx, ny int, job PlaneJob) ([]float64, float64, error) {
	k, size := Kernel(job.ConvBeam, job.DX, job.DY)
	radius := size / 2
	ksum := kernelSum(k)

	out := make([]float64, len(plane))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			if d.nanAware {
				out[y*nx+x] = d.windowInterp(plane, nx, ny, x, y, k, size, radius, ksum)
			} else {
				out[y*nx+x] = d.window(plane, nx, ny, x, y, k, size, radius)
			}
		}
	}
	for i := range out {
		out[i] *= job.Factor
	}
	return out, job.Factor, nil
}

// window is a plain zero-padded correlation; the Gaussian kernel is
// point-symmetric, so correlation equals convolution.
func (d *directBackend) window(plane []float64, nx, ny, x, y int, k []float64, size, radius int) float64 {
	var acc float64
	for ky := 0; ky < size; ky++ {
		sy := y + ky - radius
		if sy < 0 || sy >= ny {
			continue
		}
		for kx := 0; kx < size; kx++ {
			sx := x + kx - radius
			if sx < 0 || sx >= nx {
				continue
			}
			acc += plane[sy*nx+sx] * k[ky*size+kx]
		}
	}
	return acc
}

// windowInterp excludes blank pixels and renormalizes over the finite
// samples, scaling back by the full kernel sum so the flux factor stays
// valid. A window with no finite samples stays blank.
func (d *directBackend) windowInterp(plane []float64, nx, ny, x, y int, k []float64, size, radius int, ksum float64) float64 {
	var acc, wsum float64
	for ky := 0; ky < size; ky++ {
		sy := y + ky - radius
		if sy < 0 || sy >= ny {
			continue
		}
		for kx := 0; kx < size; kx++ {
			sx := x + kx - radius
			if sx < 0 || sx >= nx {
				continue
			}
			v := plane[sy*nx+sx]
			if math.IsNaN(v) {
				continue
			}
			w := k[ky*size+kx]
			acc += v * w
			wsum += w
		}
	}
	if wsum == 0 {
		return math.NaN()
	}
	return acc / wsum * ksum
}
