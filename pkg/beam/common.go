package beam

import (
	"fmt"
	"log/slog"
	"math"
)

// SolverConfig holds the tuning parameters of the common beam search.
type SolverConfig struct {
	// Tolerance is the convergence criterion of the enclosing-ellipse
	// search.
	Tolerance float64

	// NSamps is the number of boundary points sampled per input beam.
	NSamps int

	// Epsilon is the fractional inflation applied to the fitted ellipse
	// to cover the gaps between boundary samples.
	Epsilon float64
}

// DefaultSolverConfig returns the solver defaults used by the CLI.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{Tolerance: 1e-4, NSamps: 200, Epsilon: 5e-4}
}

// CommonBeamSolver finds the smallest beam every beam in a set can be
// convolved up to.
type CommonBeamSolver struct {
	cfg SolverConfig
}

// NewCommonBeamSolver creates a solver with the given configuration.
func NewCommonBeamSolver(cfg SolverConfig) *CommonBeamSolver {
	return &CommonBeamSolver{cfg: cfg}
}

// Solve returns the smallest enclosing beam of the set's defined entries,
// rounded up to the fixed decimal policy (0.1 arcsec axes, 0.01 deg PA).
//
// A fully undefined set solves to the undefined beam with no error. A
// search that fails at the configured tolerance is retried once at a 10x
// tighter tolerance; a second failure is returned to the caller.
func (s *CommonBeamSolver) Solve(set *Set) (Beam, error) {
	defined := set.Defined()
	if len(defined) == 0 {
		return Undefined(), nil
	}

	common, err := commonBeam(defined, s.cfg)
	if err != nil {
		slog.Warn("common beam search failed, retrying with smaller tolerance",
			"tolerance", s.cfg.Tolerance*0.1)
		retry := s.cfg
		retry.Tolerance *= 0.1
		common, err = commonBeam(defined, retry)
		if err != nil {
			return Undefined(), fmt.Errorf("solving common beam for %d beams: %w", len(defined), err)
		}
	}
	return common.RoundUp(), nil
}

// maxInflateAttempts bounds the epsilon growth applied when the fitted
// ellipse fails the deconvolvability check against an input beam.
const maxInflateAttempts = 10

// commonBeam runs one smallest-enclosing-beam search over defined beams.
func commonBeam(beams []Beam, cfg SolverConfig) (Beam, error) {
	if len(beams) == 1 {
		return beams[0], nil
	}
	if allEqual(beams) {
		return beams[0], nil
	}

	xs, ys := boundaryPoints(beams, cfg.NSamps)
	fit, err := minVolEllipse(xs, ys, cfg.Tolerance)
	if err != nil {
		return Undefined(), err
	}

	// Inflate by epsilon and verify the candidate actually dominates every
	// input; between-sample gaps can leave a sliver uncovered, in which
	// case the inflation is doubled and the check repeated.
	eps := cfg.Epsilon
	for attempt := 0; attempt < maxInflateAttempts; attempt++ {
		candidate := Beam{
			Major: 2 * fit.semiMajor * (1 + eps),
			Minor: 2 * fit.semiMinor * (1 + eps),
			PA:    normalizePA(fit.angle * 180 / math.Pi),
		}
		if covers(candidate, beams) {
			return candidate, nil
		}
		eps *= 2
	}
	return Undefined(), ErrNoConvergence
}

// covers reports whether every beam deconvolves from candidate.
func covers(candidate Beam, beams []Beam) bool {
	for _, b := range beams {
		if candidate.Deconvolve(b).IsUndefined() {
			return false
		}
	}
	return true
}

func allEqual(beams []Beam) bool {
	for _, b := range beams[1:] {
		if !b.Equal(beams[0]) {
			return false
		}
	}
	return true
}
