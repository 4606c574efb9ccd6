// Package plan turns the per-channel beams of a set of image cubes into
// a convolution plan: the common beam adopted for every channel, the
// convolving beam that takes each cube's channel there, and the flux
// rescaling factor for each smoothed plane. Plans are persisted to
// convolution logs so a later run can replay them without re-solving.
package plan

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"beamconv/pkg/beam"
	"beamconv/pkg/beamlog"
	"beamconv/pkg/config"
	"beamconv/pkg/convolve"
)

// ErrUndersampled reports a requested target beam too small for the
// pixel grid to sample.
var ErrUndersampled = errors.New("target beam is undersampled for the pixel grid")

// ErrLogMissing reports a replay run whose convolution log is absent.
// The log must be co-located with the image it was produced from.
var ErrLogMissing = errors.New("convolution log not found")

// CubeDescriptor is what the planner needs to know about one input
// cube: where it lives, its per-channel beams after masking, and its
// pixel grid spacing in arcseconds.
type CubeDescriptor struct {
	Path  string
	Beams *beam.Set
	DX    float64
	DY    float64
}

// ChannelPlan is the planned smoothing of one channel of one cube. A
// blanked channel has Blank set and undefined beams; its output plane
// is all NaN.
type ChannelPlan struct {
	Channel int
	Target  beam.Beam
	Conv    beam.Beam
	Factor  float64
	Blank   bool
}

// CubePlan groups the channel plans for one input cube.
type CubePlan struct {
	Desc     *CubeDescriptor
	Channels []ChannelPlan
}

// Plan is the full result of planning a run.
type Plan struct {
	Mode string

	// Common holds the adopted beam per channel. In total mode every
	// entry is the same beam.
	Common []beam.Beam

	Cubes []CubePlan
}

// Planner resolves common beams and derives convolution plans according
// to the configured smoothing mode.
type Planner struct {
	mode     string
	convMode string
	solver   *beam.CommonBeamSolver
	target   beam.Beam
	hasTgt   bool
}

// NewPlanner builds a planner from a validated configuration.
func NewPlanner(cfg *config.Config) *Planner {
	p := &Planner{
		mode:     cfg.Smoothing.Mode,
		convMode: cfg.Smoothing.ConvMode,
		solver:   beam.NewCommonBeamSolver(cfg.SolverConfig()),
	}
	p.target, p.hasTgt = cfg.TargetBeam()
	return p
}

// Plan computes the convolution plan for the given cubes. All cubes
// must have the same channel count; natural mode solves a common beam
// per channel, total mode solves one beam over every channel of every
// cube, optionally overridden by an explicit target.
func (p *Planner) Plan(descs []*CubeDescriptor) (*Plan, error) {
	if len(descs) == 0 {
		return nil, errors.New("plan: no input cubes")
	}
	nchan := descs[0].Beams.Len()
	for _, d := range descs[1:] {
		if d.Beams.Len() != nchan {
			return nil, fmt.Errorf("plan: %s has %d channels, %s has %d; channel counts must match",
				descs[0].Path, nchan, d.Path, d.Beams.Len())
		}
	}

	guard := NewNyquistGuard(coarsestGrid(descs), p.convMode)

	var common []beam.Beam
	var err error
	switch p.mode {
	case config.ModeNatural:
		common, err = p.planNatural(descs, nchan, guard)
	case config.ModeTotal:
		common, err = p.planTotal(descs, nchan, guard)
	default:
		err = fmt.Errorf("plan: unknown smoothing mode %q", p.mode)
	}
	if err != nil {
		return nil, err
	}

	out := &Plan{Mode: p.mode, Common: common}
	for _, d := range descs {
		cp, err := channelPlans(d, common)
		if err != nil {
			return nil, err
		}
		out.Cubes = append(out.Cubes, CubePlan{Desc: d, Channels: cp})
	}
	return out, nil
}

func (p *Planner) planNatural(descs []*CubeDescriptor, nchan int, guard NyquistGuard) ([]beam.Beam, error) {
	common := make([]beam.Beam, nchan)
	for ch := 0; ch < nchan; ch++ {
		beams := make([]beam.Beam, len(descs))
		for i, d := range descs {
			if d.Beams.Masked(ch) {
				beams[i] = beam.Undefined()
			} else {
				beams[i] = d.Beams.At(ch)
			}
		}
		set := beam.NewSet(beams)
		cmn, err := p.solver.Solve(set)
		if err != nil {
			return nil, fmt.Errorf("plan: channel %d: %w", ch, err)
		}
		if adopted, widened := guard.Apply(cmn, set.Defined()); widened {
			slog.Warn("convolving kernel below the sampling limit, widening the common beam",
				"channel", ch, "common", cmn, "adopted", adopted)
			cmn = adopted
		}
		common[ch] = cmn
	}
	return common, nil
}

func (p *Planner) planTotal(descs []*CubeDescriptor, nchan int, guard NyquistGuard) ([]beam.Beam, error) {
	var all []beam.Beam
	for _, d := range descs {
		for ch := 0; ch < nchan; ch++ {
			if !d.Beams.Masked(ch) {
				all = append(all, d.Beams.At(ch))
			}
		}
	}
	big, err := p.solver.Solve(beam.NewSet(all))
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	adopted := big
	if p.hasTgt {
		slog.Info("smallest common beam", "beam", big)
		// An explicit target may not be widened on the operator's
		// behalf. If one of its kernels is undersampled and the target
		// is smaller than the widened solve would have been, refuse.
		if guard.Undersampled(p.target, all) {
			if guarded := guard.Widen(big); p.target.Area() < guarded.Area() {
				return nil, fmt.Errorf("plan: target %v needs a kernel below the sampling limit (want at least %v): %w",
					p.target, guarded, ErrUndersampled)
			}
			slog.Warn("target beam needs a marginally sampled kernel", "target", p.target)
		}
		adopted = p.target
	} else if g, widened := guard.Apply(big, all); widened {
		slog.Warn("convolving kernel below the sampling limit, widening the common beam",
			"common", big, "adopted", g)
		adopted = g
	}

	common := make([]beam.Beam, nchan)
	for ch := range common {
		common[ch] = adopted
	}
	return common, nil
}

// channelPlans derives the convolving beam and flux factor for each
// channel of one cube against the adopted per-channel beams.
func channelPlans(d *CubeDescriptor, common []beam.Beam) ([]ChannelPlan, error) {
	plans := make([]ChannelPlan, len(common))
	for ch, target := range common {
		old := d.Beams.At(ch)
		if d.Beams.Masked(ch) || old.IsUndefined() || target.IsUndefined() {
			plans[ch] = ChannelPlan{
				Channel: ch,
				Target:  beam.Undefined(),
				Conv:    beam.Undefined(),
				Factor:  math.NaN(),
				Blank:   true,
			}
			continue
		}
		conv := target.Deconvolve(old)
		if conv.IsUndefined() {
			return nil, fmt.Errorf("plan: %s channel %d: beam %v cannot be convolved to %v",
				d.Path, ch, old, target)
		}
		factor := 1.0
		if !conv.IsNull() {
			factor, _ = convolve.GaussFactor(conv, old, d.DX, d.DY)
		}
		plans[ch] = ChannelPlan{Channel: ch, Target: target, Conv: conv, Factor: factor}
	}
	return plans, nil
}

// coarsestGrid returns the largest pixel spacing across the inputs.
func coarsestGrid(descs []*CubeDescriptor) float64 {
	grid := 0.0
	for _, d := range descs {
		grid = math.Max(grid, math.Max(math.Abs(d.DX), math.Abs(d.DY)))
	}
	return grid
}

// WriteLogs persists each cube's channel plans to its convolution log,
// next to the image.
func (p *Plan) WriteLogs() error {
	for _, cube := range p.Cubes {
		entries := make([]beamlog.Entry, len(cube.Channels))
		for i, cp := range cube.Channels {
			entries[i] = beamlog.Entry{
				Channel: cp.Channel,
				Target:  cp.Target,
				Conv:    cp.Conv,
				Factor:  cp.Factor,
			}
		}
		path := beamlog.ConvLogPath(beamlog.Path(cube.Desc.Path), p.Mode)
		if err := beamlog.WriteConvLog(path, entries); err != nil {
			return fmt.Errorf("plan: writing %s: %w", path, err)
		}
	}
	return nil
}
