package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mute/internal/artifact"
	"mute/internal/blob"
	"mute/internal/cache"
	"mute/internal/catalog"
	"mute/internal/config"
	"mute/internal/engine"
	"mute/internal/engine/proc"
	"mute/internal/metrics"
	"mute/internal/platform/logging"
	"mute/internal/platform/otel"
	"mute/internal/prompt"
	"mute/internal/propagation"
)

var errNoEngine = errors.New("no propagation engine configured (set --engine or MUTE_ENGINE_COMMAND)")

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	medium      string
	density     float64
	nMuon       int
	directory   string
	output      bool
	workers     int
	verbose     int
	force       bool
	engineCmd   string
	metricsFile string
}

// app holds everything a command needs. setup fills it from flags and
// configuration; close releases it.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// factory and logger may be preset by tests.
	factory engine.Factory
	logger  *zap.Logger

	flags globalFlags

	cfg       config.Config
	metrics   *metrics.Metrics
	artifacts *artifact.Store
	runs      catalog.Store
	pool      *propagation.Pool
	coord     *cache.Coordinator
	shutdown  func(context.Context) error
}

// run executes args and releases every resource afterwards.
func (a *app) run(ctx context.Context, args []string) error {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "mute",
		Short: "Muon survival probabilities through rock, water and ice",
		Long: `mute sweeps a grid of surface energies and slant depths through an external
propagation engine, stores the underground energies of surviving muons as
shards, and turns them into survival probability tensors. Results are cached
in the output directory and reused while the medium, density and muon count
stay the same.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	f := root.PersistentFlags()
	f.StringVar(&a.flags.configPath, "config", "", "YAML configuration file")
	f.StringVar(&a.flags.medium, "medium", "", "medium: rock, water or ice")
	f.Float64Var(&a.flags.density, "density", 0, "medium density in g/cm^3 (default: the medium's reference density)")
	f.IntVar(&a.flags.nMuon, "n-muon", 0, "muons propagated per grid cell")
	f.StringVar(&a.flags.directory, "directory", "", "base directory of shards and tensors")
	f.BoolVar(&a.flags.output, "output", true, "write shards and tensors")
	f.IntVar(&a.flags.workers, "workers", 0, "engines run in parallel")
	f.CountVarP(&a.flags.verbose, "verbose", "v", "verbosity, repeat for more")
	f.BoolVar(&a.flags.force, "force", false, "recompute without consulting the cache and create missing directories")
	f.StringVar(&a.flags.engineCmd, "engine", "", "engine worker command line")
	f.StringVar(&a.flags.metricsFile, "metrics-file", "", "write prometheus metrics to this file on exit")

	root.AddCommand(
		newPropagateCmd(a),
		newLoadCmd(a),
		newCalcCmd(a),
		newTensorCmd(a),
		newGridsCmd(a),
		newRunsCmd(a),
	)
	return root
}

// loadConfig layers flags over the file and environment.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	changed := cmd.Flags().Changed
	if changed("medium") {
		m, err := config.ParseMedium(a.flags.medium)
		if err != nil {
			return config.Config{}, err
		}
		if m != cfg.Medium && !changed("density") {
			cfg.Density = config.DefaultDensity(m)
		}
		cfg.Medium = m
	}
	if changed("density") {
		cfg.Density = a.flags.density
	}
	if changed("n-muon") {
		cfg.MuonCount = a.flags.nMuon
	}
	if changed("directory") {
		cfg.Directory = a.flags.directory
	}
	if changed("output") {
		cfg.Output = a.flags.output
	}
	if changed("workers") {
		cfg.Workers = a.flags.workers
	}
	if changed("verbose") {
		cfg.Verbose = a.flags.verbose
	}
	if changed("engine") {
		cfg.Engine.Command = strings.Fields(a.flags.engineCmd)
	}
	return cfg, cfg.Validate()
}

func (a *app) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.logger == nil {
		if a.logger, err = logging.New(cfg.Verbose); err != nil {
			return err
		}
	}
	if a.shutdown, err = otel.Setup(ctx, "mute"); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	a.metrics = metrics.New()

	blobs, err := blob.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	a.artifacts = artifact.New(blobs, a.logger)
	if a.runs, err = catalog.Open(ctx, cfg); err != nil {
		return fmt.Errorf("open run catalog: %w", err)
	}

	factory := a.factory
	if factory == nil {
		factory = func(context.Context, engine.Settings) (engine.Engine, error) { return nil, errNoEngine }
		if len(cfg.Engine.Command) > 0 {
			factory = proc.Factory(cfg.Engine.Command, a.logger, proc.WithStderr(cmd.ErrOrStderr()))
		}
	}
	a.pool = propagation.NewPool(factory, a.logger)
	sweeper := propagation.NewSweeper(a.pool, propagation.WithLogger(a.logger), propagation.WithMetrics(a.metrics))
	a.coord, err = cache.New(cfg, a.artifacts, sweeper,
		cache.WithCatalog(a.runs),
		cache.WithConfirmer(prompt.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())),
		cache.WithLogger(a.logger),
		cache.WithMetrics(a.metrics),
	)
	return err
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	if a.runs != nil {
		errs = append(errs, a.runs.Close())
	}
	if a.metrics != nil && a.flags.metricsFile != "" {
		errs = append(errs, a.metrics.WriteFile(a.flags.metricsFile))
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
