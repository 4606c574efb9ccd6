package beam

import (
	"fmt"
	"math"
)

// Set is an ordered collection of beams, one per spectral channel of a
// single image (or one per image when flattened for a global solve), with
// a parallel mask marking entries excluded from aggregate computations.
type Set struct {
	beams []Beam
	mask  []bool
}

// NewSet creates a set over the given beams with an all-false mask.
// The beams are copied; the set owns its storage.
func NewSet(beams []Beam) *Set {
	s := &Set{
		beams: make([]Beam, len(beams)),
		mask:  make([]bool, len(beams)),
	}
	copy(s.beams, beams)
	return s
}

// Len returns the number of entries in the set.
func (s *Set) Len() int { return len(s.beams) }

// At returns the beam at index i.
func (s *Set) At(i int) Beam { return s.beams[i] }

// Masked reports whether the entry at index i is masked.
func (s *Set) Masked(i int) bool { return s.mask[i] }

// Beams returns a copy of the beams in order.
func (s *Set) Beams() []Beam {
	out := make([]Beam, len(s.beams))
	copy(out, s.beams)
	return out
}

// Mask returns a copy of the mask.
func (s *Set) Mask() []bool {
	out := make([]bool, len(s.mask))
	copy(out, s.mask)
	return out
}

// ApplyMask ORs mask into the set's mask and overwrites every masked
// entry with the undefined beam. Applying the same mask twice, or two
// masks in either order, yields the same set.
func (s *Set) ApplyMask(mask []bool) error {
	if len(mask) != len(s.beams) {
		return fmt.Errorf("mask length %d does not match set length %d", len(mask), len(s.beams))
	}
	for i, m := range mask {
		if m {
			s.mask[i] = true
			s.beams[i] = Undefined()
		}
	}
	return nil
}

// CutoffMask flags beams whose major axis exceeds cutoff (arcsec).
// Channels with excessively large beams are blanked rather than forcing
// the common beam to grow to cover them.
func CutoffMask(beams []Beam, cutoff float64) []bool {
	mask := make([]bool, len(beams))
	for i, b := range beams {
		mask[i] = b.Major > cutoff
	}
	return mask
}

// NullMask flags entries exactly equal to the null-beam sentinel, which
// upstream pipelines write for channels with no data.
func NullMask(beams []Beam) []bool {
	mask := make([]bool, len(beams))
	for i, b := range beams {
		mask[i] = b.IsNull()
	}
	return mask
}

// Defined returns the beams that are not undefined, in order.
func (s *Set) Defined() []Beam {
	var out []Beam
	for _, b := range s.beams {
		if !b.IsUndefined() {
			out = append(out, b)
		}
	}
	return out
}

// AllUndefined reports whether every entry in the set is undefined.
func (s *Set) AllUndefined() bool {
	for _, b := range s.beams {
		if !b.IsUndefined() {
			return false
		}
	}
	return true
}

// MaxMajor returns the largest defined major axis in the set, or NaN when
// the set is fully undefined.
func (s *Set) MaxMajor() float64 {
	max := math.NaN()
	for _, b := range s.beams {
		if b.IsUndefined() {
			continue
		}
		if math.IsNaN(max) || b.Major > max {
			max = b.Major
		}
	}
	return max
}
