// Package smooth runs the full smoothing pipeline: load cubes and their
// beam logs, mask unusable channels, resolve or replay the convolution
// plan, and convolve every plane of every cube to the adopted beams in
// parallel.
package smooth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"beamconv/internal/fits"
	"beamconv/pkg/beam"
	"beamconv/pkg/beamlog"
	"beamconv/pkg/config"
	"beamconv/pkg/convolve"
	"beamconv/pkg/plan"
	"beamconv/pkg/tui"
	"beamconv/pkg/worker"
)

// Smoother drives one smoothing run over a set of input cubes.
//
// The pipeline has five stages:
//  1. Open cubes, read beam logs, validate grids and channel counts
//  2. Mask channels above the beam cutoff or flagged null
//  3. Resolve the convolution plan, or replay a previous run's logs
//  4. Initialize output files with updated beam headers
//  5. Smooth every (cube, channel) plane in parallel
type Smoother struct {
	cfg     *config.Config
	infiles []string

	cubes []*fits.Cube
	descs []*plan.CubeDescriptor
	plan  *plan.Plan
}

// New creates a smoother for the given validated configuration and
// input cube paths.
func New(cfg *config.Config, infiles []string) *Smoother {
	return &Smoother{cfg: cfg, infiles: infiles}
}

// Process runs the pipeline. In dry-run mode it stops after printing
// the adopted beams; otherwise it writes one smoothed cube and one
// convolution log per input.
func (s *Smoother) Process(ctx context.Context) error {
	if len(s.infiles) == 0 {
		return fmt.Errorf("smooth: no input cubes")
	}
	start := time.Now()

	slog.Info("stage 1: loading cubes and beam logs", "cubes", len(s.infiles))
	if err := s.load(); err != nil {
		return err
	}
	defer s.closeCubes()

	slog.Info("stage 2: masking channels")
	if err := s.mask(); err != nil {
		return err
	}

	slog.Info("stage 3: resolving convolution plan", "mode", s.cfg.Smoothing.Mode)
	if err := s.resolvePlan(); err != nil {
		return err
	}

	tui.Section("ADOPTED BEAMS")
	s.printCommon()

	if s.cfg.Runtime.DryRun {
		slog.Info("dry run, stopping before convolution")
		return nil
	}

	slog.Info("stage 4: initializing output cubes")
	writers, err := s.initOutputs()
	if err != nil {
		return err
	}

	slog.Info("stage 5: smoothing planes", "workers", s.cfg.Runtime.Workers)
	blanked, err := s.smoothAll(ctx, writers)
	for _, w := range writers {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("smooth: closing output: %w", cerr)
		}
	}
	if err != nil {
		return err
	}

	tui.PrintSummary(tui.Summary{
		Cubes:    len(s.cubes),
		Channels: s.nchan() * len(s.cubes),
		Blanked:  blanked,
		Duration: time.Since(start),
	})
	return nil
}

func (s *Smoother) nchan() int {
	if len(s.cubes) == 0 {
		return 0
	}
	return s.cubes[0].NChan()
}

// load opens every cube, pairs it with its beam log, and validates
// that the inputs can share a plan.
func (s *Smoother) load() error {
	for _, path := range s.infiles {
		cube, err := fits.Open(path)
		if err != nil {
			return fmt.Errorf("smooth: %w", err)
		}
		s.cubes = append(s.cubes, cube)

		dx, dy, err := cube.PixelScale()
		if err != nil {
			return fmt.Errorf("smooth: %s: %w", path, err)
		}
		if math.Abs(math.Abs(dx)-math.Abs(dy)) > 1e-9*math.Abs(dx) {
			return fmt.Errorf("smooth: %s: pixel grid is %gx%g arcsec, x and y spacing must match", path, dx, dy)
		}

		beams, err := s.readBeams(cube, path)
		if err != nil {
			return err
		}
		s.descs = append(s.descs, &plan.CubeDescriptor{
			Path:  path,
			Beams: beam.NewSet(beams),
			DX:    dx,
			DY:    dy,
		})
	}

	nchan := s.cubes[0].NChan()
	for i, cube := range s.cubes[1:] {
		if cube.NChan() != nchan {
			return fmt.Errorf("smooth: %s has %d channels, %s has %d; channel counts must match",
				s.infiles[0], nchan, s.infiles[i+1], cube.NChan())
		}
	}
	return nil
}

// readBeams reads the cube's per-channel beams from its beam log. A
// cube without a log falls back to the single header beam for every
// channel, which is how flat-resolution continuum cubes arrive.
func (s *Smoother) readBeams(cube *fits.Cube, path string) ([]beam.Beam, error) {
	logPath := beamlog.Path(path)
	beams, err := beamlog.Read(logPath)
	if err == nil {
		if len(beams) != cube.NChan() {
			return nil, fmt.Errorf("smooth: %s has %d rows, %s has %d channels", logPath, len(beams), path, cube.NChan())
		}
		return beams, nil
	}
	// Only an absent log falls back to the header; a log that exists
	// but cannot be parsed is a broken input, not a missing one.
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("smooth: reading %s: %w", logPath, err)
	}

	slog.Warn("no beam log, using the header beam for every channel", "image", path)
	hdr, err := headerBeam(cube)
	if err != nil {
		return nil, fmt.Errorf("smooth: %s has no beam log and no beam header: %w", path, err)
	}
	beams = make([]beam.Beam, cube.NChan())
	for i := range beams {
		beams[i] = hdr
	}
	return beams, nil
}

func headerBeam(cube *fits.Cube) (beam.Beam, error) {
	maj, err := cube.Header().Float("BMAJ")
	if err != nil {
		return beam.Undefined(), err
	}
	min, err := cube.Header().Float("BMIN")
	if err != nil {
		return beam.Undefined(), err
	}
	pa, err := cube.Header().Float("BPA")
	if err != nil {
		return beam.Undefined(), err
	}
	return beam.New(maj*3600, min*3600, pa)
}

// mask blanks channels flagged null upstream plus, when a cutoff is
// configured, channels whose beams exceed it.
func (s *Smoother) mask() error {
	for _, d := range s.descs {
		beams := d.Beams.Beams()
		if err := d.Beams.ApplyMask(beam.NullMask(beams)); err != nil {
			return fmt.Errorf("smooth: %s: %w", d.Path, err)
		}
		if s.cfg.Smoothing.Cutoff != nil {
			if err := d.Beams.ApplyMask(beam.CutoffMask(beams, *s.cfg.Smoothing.Cutoff)); err != nil {
				return fmt.Errorf("smooth: %s: %w", d.Path, err)
			}
		}
		if d.Beams.AllUndefined() {
			return fmt.Errorf("smooth: %s: every channel is masked", d.Path)
		}
	}
	return nil
}

func (s *Smoother) resolvePlan() error {
	if s.cfg.Runtime.UseLogs {
		p, err := plan.Replay(s.descs, s.cfg.Smoothing.Mode)
		if err != nil {
			return fmt.Errorf("smooth: %w", err)
		}
		s.plan = p
		return nil
	}

	p, err := plan.NewPlanner(s.cfg).Plan(s.descs)
	if err != nil {
		return fmt.Errorf("smooth: %w", err)
	}
	if err := p.WriteLogs(); err != nil {
		return fmt.Errorf("smooth: %w", err)
	}
	s.plan = p
	return nil
}

func (s *Smoother) printCommon() {
	if s.plan.Mode == config.ModeTotal && len(s.plan.Common) > 0 {
		b := s.plan.Common[0]
		tui.Info("beam", fmt.Sprintf("%.1f\" x %.1f\" @ %.2f deg", b.Major, b.Minor, b.PA))
		return
	}
	for ch, b := range s.plan.Common {
		if b.IsUndefined() {
			continue
		}
		tui.BeamLine(ch, b.Major, b.Minor, b.PA)
	}
}

// planeJob is one unit of parallel work.
type planeJob struct {
	cube    int
	channel int
}

// smoothAll convolves every plane, farming contiguous job ranges out to
// the configured worker count. It returns the number of blanked planes.
func (s *Smoother) smoothAll(ctx context.Context, writers []*fits.Writer) (int, error) {
	backend, err := convolve.New(s.cfg.Smoothing.ConvMode)
	if err != nil {
		return 0, fmt.Errorf("smooth: %w", err)
	}

	var jobs []planeJob
	for c := range s.cubes {
		for ch := 0; ch < s.nchan(); ch++ {
			jobs = append(jobs, planeJob{cube: c, channel: ch})
		}
	}

	bar := tui.NewProgress(len(jobs), "smoothing")
	var blanked atomic.Int64

	err = worker.Run(ctx, s.cfg.Runtime.Workers, func(runCtx context.Context, wc worker.Context) error {
		lo, hi := wc.Partition(len(jobs))
		for _, job := range jobs[lo:hi] {
			if err := runCtx.Err(); err != nil {
				return err
			}
			if err := s.smoothPlane(backend, writers, job, &blanked); err != nil {
				return err
			}
			bar.Add(1)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(blanked.Load()), nil
}

func (s *Smoother) smoothPlane(backend convolve.Backend, writers []*fits.Writer, job planeJob, blanked *atomic.Int64) error {
	cube := s.cubes[job.cube]
	desc := s.descs[job.cube]
	cp := s.plan.Cubes[job.cube].Channels[job.channel]

	plane, err := cube.ReadPlane(job.channel)
	if err != nil {
		return fmt.Errorf("smooth: %w", err)
	}

	if cp.Blank {
		blanked.Add(1)
	}
	out, _, err := convolve.Smooth(backend, plane, cube.NX(), cube.NY(), convolve.PlaneJob{
		OldBeam:  desc.Beams.At(job.channel),
		NewBeam:  cp.Target,
		ConvBeam: cp.Conv,
		DX:       desc.DX,
		DY:       desc.DY,
		Factor:   cp.Factor,
	})
	if err != nil {
		return fmt.Errorf("smooth: %s channel %d: %w", desc.Path, job.channel, err)
	}
	if err := writers[job.cube].WritePlane(job.channel, out); err != nil {
		return fmt.Errorf("smooth: %w", err)
	}
	return nil
}

func (s *Smoother) closeCubes() {
	for _, c := range s.cubes {
		c.Close()
	}
}
