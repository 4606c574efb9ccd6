package beam

import (
	"math"
	"testing"
)

const tol = 1e-9

func approx(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// TestConvolveCircular verifies that circular beams add in quadrature.
func TestConvolveCircular(t *testing.T) {
	a := Beam{Major: 3, Minor: 3, PA: 0}
	b := Beam{Major: 4, Minor: 4, PA: 0}

	c := a.Convolve(b)

	if !approx(c.Major, 5, tol) || !approx(c.Minor, 5, tol) {
		t.Errorf("Expected 5x5 beam, got %v", c)
	}
}

// TestConvolveWithNull verifies the null beam is the identity element.
func TestConvolveWithNull(t *testing.T) {
	a := Beam{Major: 10, Minor: 4, PA: 30}

	c := a.Convolve(Null)

	if !approx(c.Major, a.Major, tol) || !approx(c.Minor, a.Minor, tol) || !approx(c.PA, a.PA, 1e-6) {
		t.Errorf("Convolving with the null beam changed the beam: %v", c)
	}
}

// TestDeconvolveRoundTrip verifies that deconvolving a convolution
// recovers the convolving beam.
func TestDeconvolveRoundTrip(t *testing.T) {
	source := Beam{Major: 8, Minor: 5, PA: 20}
	kernel := Beam{Major: 6, Minor: 3, PA: -40}

	target := source.Convolve(kernel)
	recovered := target.Deconvolve(source)

	if recovered.IsUndefined() {
		t.Fatalf("Round-trip deconvolution failed for %v", target)
	}
	if !approx(recovered.Major, kernel.Major, 1e-6) ||
		!approx(recovered.Minor, kernel.Minor, 1e-6) ||
		!approx(recovered.PA, kernel.PA, 1e-4) {
		t.Errorf("Expected %v, got %v", kernel, recovered)
	}
}

// TestDeconvolveImpossible verifies that an impossible deconvolution
// returns the undefined beam instead of panicking.
func TestDeconvolveImpossible(t *testing.T) {
	small := Beam{Major: 4, Minor: 2, PA: 0}
	big := Beam{Major: 10, Minor: 8, PA: 0}

	conv := small.Deconvolve(big)

	if !conv.IsUndefined() {
		t.Errorf("Expected undefined beam, got %v", conv)
	}
}

// TestDeconvolveSelf verifies that deconvolving a beam from itself yields
// the pointlike null beam.
func TestDeconvolveSelf(t *testing.T) {
	b := Beam{Major: 7.5, Minor: 3.25, PA: 62}

	conv := b.Deconvolve(b)

	if conv.IsUndefined() {
		t.Fatalf("Self-deconvolution should succeed, got undefined")
	}
	if !conv.IsNull() {
		t.Errorf("Expected null beam, got %v", conv)
	}
}

// TestNaNPropagation verifies NaN op X = NaN in both directions.
func TestNaNPropagation(t *testing.T) {
	b := Beam{Major: 5, Minor: 4, PA: 10}

	if !Undefined().Convolve(b).IsUndefined() {
		t.Error("NaN.Convolve(x) should be undefined")
	}
	if !b.Convolve(Undefined()).IsUndefined() {
		t.Error("x.Convolve(NaN) should be undefined")
	}
	if !Undefined().Deconvolve(b).IsUndefined() {
		t.Error("NaN.Deconvolve(x) should be undefined")
	}
	if !b.Deconvolve(Undefined()).IsUndefined() {
		t.Error("x.Deconvolve(NaN) should be undefined")
	}
}

// TestEquality covers exact-match semantics including the null sentinel.
func TestEquality(t *testing.T) {
	a := Beam{Major: 1, Minor: 1, PA: 0}
	if !a.Equal(Beam{Major: 1, Minor: 1, PA: 0}) {
		t.Error("Identical beams should be equal")
	}
	if a.Equal(Beam{Major: 1, Minor: 1, PA: 1}) {
		t.Error("Beams differing in PA should not be equal")
	}
	if !Null.IsNull() {
		t.Error("Null sentinel should report IsNull")
	}
	if Undefined().Equal(Undefined()) {
		t.Error("Undefined beams must not compare equal (NaN semantics)")
	}
}

// TestNewInvariant verifies the major >= minor constructor invariant.
func TestNewInvariant(t *testing.T) {
	if _, err := New(2, 5, 0); err == nil {
		t.Error("Expected error for minor > major")
	}
	if _, err := New(5, 2, 0); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

// TestRoundUp verifies the ceiling policy and its idempotence.
func TestRoundUp(t *testing.T) {
	b := Beam{Major: 4.3201, Minor: 2.0001, PA: 12.34567}

	r := b.RoundUp()

	if !approx(r.Major, 4.4, tol) || !approx(r.Minor, 2.1, tol) || !approx(r.PA, 12.35, tol) {
		t.Errorf("Unexpected rounding result: %v", r)
	}
	if r.Major < b.Major || r.Minor < b.Minor || r.PA < b.PA {
		t.Error("Rounding must never round down")
	}

	again := r.RoundUp()
	if !again.Equal(r) {
		t.Errorf("Rounding is not idempotent: %v != %v", again, r)
	}

	if !Undefined().RoundUp().IsUndefined() {
		t.Error("Rounding an undefined beam should stay undefined")
	}
}

// TestApplyMask verifies mask union, idempotence and commutativity across
// the cutoff and null-beam sources.
func TestApplyMask(t *testing.T) {
	beams := []Beam{
		{Major: 10, Minor: 2, PA: 0},
		{Major: 12, Minor: 2, PA: 0},
		Null,
		{Major: 15, Minor: 2, PA: 0},
	}

	cutoff := CutoffMask(beams, 14)
	null := NullMask(beams)

	forward := NewSet(beams)
	if err := forward.ApplyMask(cutoff); err != nil {
		t.Fatalf("ApplyMask failed: %v", err)
	}
	if err := forward.ApplyMask(null); err != nil {
		t.Fatalf("ApplyMask failed: %v", err)
	}

	reverse := NewSet(beams)
	if err := reverse.ApplyMask(null); err != nil {
		t.Fatalf("ApplyMask failed: %v", err)
	}
	if err := reverse.ApplyMask(cutoff); err != nil {
		t.Fatalf("ApplyMask failed: %v", err)
	}

	wantMasked := []bool{false, false, true, true}
	for i, want := range wantMasked {
		if forward.Masked(i) != want {
			t.Errorf("Entry %d: expected masked=%v, got %v", i, want, forward.Masked(i))
		}
		if forward.Masked(i) != reverse.Masked(i) {
			t.Errorf("Entry %d: mask order changed the outcome", i)
		}
		if want && !forward.At(i).IsUndefined() {
			t.Errorf("Entry %d: masked beam should be undefined, got %v", i, forward.At(i))
		}
	}

	// Idempotence: applying the same masks again changes nothing.
	if err := forward.ApplyMask(cutoff); err != nil {
		t.Fatalf("ApplyMask failed: %v", err)
	}
	for i := range wantMasked {
		if forward.Masked(i) != wantMasked[i] {
			t.Errorf("Entry %d: re-applying mask changed the outcome", i)
		}
	}
}

// TestApplyMaskLengthMismatch verifies the length invariant is enforced.
func TestApplyMaskLengthMismatch(t *testing.T) {
	s := NewSet([]Beam{{Major: 1, Minor: 1, PA: 0}})
	if err := s.ApplyMask([]bool{true, false}); err == nil {
		t.Error("Expected error for mismatched mask length")
	}
}
