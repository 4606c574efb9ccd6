// Beamconv smooths sets of FITS spectral image cubes to a common
// angular resolution, per channel or across the whole set.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"beamconv/internal/logging"
	"beamconv/pkg/config"
	"beamconv/pkg/smooth"
	"beamconv/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configPath string
	mode       string
	convMode   string
	cutoff     float64
	tolerance  float64
	epsilon    float64
	nsamps     int
	bmaj       float64
	bmin       float64
	bpa        float64
	useLogs    bool
	dryRun     bool
	prefix     string
	suffix     string
	outDir     string
	workers    int
	verbose    bool
	logFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beamconv [flags] image.fits [image.fits ...]",
	Short: "Smooth FITS cubes to a common angular resolution",
	Long: `Beamconv finds the smallest elliptical beam that every input channel
can be convolved up to, then smooths each plane to it and rescales the
flux. Natural mode adopts one beam per channel across the inputs, total
mode a single beam for everything. Per-channel beams are read from the
beamlog file next to each image; results and convolving beams are
written back to a convolution log so runs can be replayed.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
	Args:    cobra.MinimumNArgs(1),
	RunE:    run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.StringVar(&mode, "mode", "", "smoothing mode: natural or total")
	f.StringVar(&convMode, "conv-mode", "", "convolution backend: robust, scipy, astropy or astropy_fft")
	f.Float64Var(&cutoff, "cutoff", 0, "blank channels with a major axis above this many arcsec")
	f.Float64Var(&tolerance, "tolerance", 0, "common-beam search convergence tolerance")
	f.Float64Var(&epsilon, "epsilon", 0, "fractional inflation applied to the fitted common beam")
	f.IntVar(&nsamps, "nsamps", 0, "boundary samples per beam in the common-beam search")
	f.Float64Var(&bmaj, "bmaj", 0, "target beam major axis in arcsec (total mode)")
	f.Float64Var(&bmin, "bmin", 0, "target beam minor axis in arcsec (total mode)")
	f.Float64Var(&bpa, "bpa", 0, "target beam position angle in deg (total mode)")
	f.BoolVar(&useLogs, "uselogs", false, "replay beams and factors from a previous run's convolution logs")
	f.BoolVar(&dryRun, "dryrun", false, "compute the common beams and stop")
	f.StringVar(&prefix, "prefix", "", "output file name prefix")
	f.StringVar(&suffix, "suffix", "", "output file name suffix (default: the smoothing mode)")
	f.StringVar(&outDir, "outdir", "", "output directory (default: alongside each input)")
	f.IntVar(&workers, "workers", 0, "parallel plane convolutions")
	f.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	f.StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Setup(cfg.Output.Verbose, logFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tui.Header("v" + version)
	return smooth.New(cfg, args).Process(ctx)
}

// applyFlags overlays explicitly set flags onto the loaded
// configuration. Unset flags leave the file (or default) values alone.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Smoothing.Mode = mode
	}
	if f.Changed("conv-mode") {
		cfg.Smoothing.ConvMode = convMode
	}
	if f.Changed("cutoff") {
		cfg.Smoothing.Cutoff = &cutoff
	}
	if f.Changed("tolerance") {
		cfg.Solver.Tolerance = tolerance
	}
	if f.Changed("epsilon") {
		cfg.Solver.Epsilon = epsilon
	}
	if f.Changed("nsamps") {
		cfg.Solver.NSamps = nsamps
	}
	if f.Changed("bmaj") {
		cfg.Smoothing.TargetBMaj = &bmaj
	}
	if f.Changed("bmin") {
		cfg.Smoothing.TargetBMin = &bmin
	}
	if f.Changed("bpa") {
		cfg.Smoothing.TargetBPA = &bpa
	}
	if f.Changed("uselogs") {
		cfg.Runtime.UseLogs = useLogs
	}
	if f.Changed("dryrun") {
		cfg.Runtime.DryRun = dryRun
	}
	if f.Changed("prefix") {
		cfg.Output.Prefix = prefix
	}
	if f.Changed("suffix") {
		cfg.Output.Suffix = suffix
	}
	if f.Changed("outdir") {
		cfg.Output.OutDir = outDir
	}
	if f.Changed("workers") {
		cfg.Runtime.Workers = workers
	}
	if f.Changed("verbose") {
		cfg.Output.Verbose = verbose
	}
}
