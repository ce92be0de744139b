package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"telesim/internal/collector"
	"telesim/internal/logging"
	"telesim/internal/progress"
	"telesim/internal/scenario"
	"telesim/internal/server"
	"telesim/internal/simulation"
	"telesim/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

type runOptions struct {
	scenario  string
	duration  string
	quiet     bool
	once      bool
	logFormat string
	logLevel  string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulator and serve its metrics",
		Long: `Run loads a scenario, drives the simulation and serves /metrics,
/health, /config and /scenario until interrupted. With --once the process
exits when the first run completes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulator(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.scenario, "scenario", "s", "baseline", "scenario to start")
	f.StringVarP(&opts.duration, "duration", "d", "", "override the scenario duration (e.g. 90s, 10m, 2h)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress the progress line")
	f.BoolVar(&opts.once, "once", false, "exit when the first run completes")
	f.StringVar(&opts.logFormat, "log-format", "json", "log format: json or text")
	f.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	return cmd
}

func runSimulator(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != string(logging.FormatJSON) && opts.logFormat != string(logging.FormatText) {
		return fmt.Errorf("--log-format must be 'json' or 'text', got %q", opts.logFormat)
	}

	var duration float64
	if opts.duration != "" {
		duration, err = scenario.ParseTime(opts.duration)
		if err != nil {
			return fmt.Errorf("--duration: %w", err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel, logging.Format(opts.logFormat), os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coll := collector.NewCollector()
	sim, err := simulation.New(cfg, simulation.Options{
		Logger:   logger,
		Reporter: coll,
	})
	if err != nil {
		coll.Close()
		return err
	}
	if err := sim.Load(opts.scenario, duration); err != nil {
		coll.Close()
		if simulation.IsUnknownScenario(err) {
			return fmt.Errorf("%w (available: %s)", err, strings.Join(sim.Scenarios(), ", "))
		}
		return err
	}

	pusher, err := telemetry.Init(ctx, cfg.Telemetry, sim.Gatherer(), "telesim", version, sim.RunID())
	if err != nil {
		coll.Close()
		return err
	}

	srv := server.New(sim, logger)
	prog := progress.NewProgress(sim, opts.quiet)
	prog.Printf("telesim starting: %d users, scenario %q, seed %d, listening on %s",
		cfg.Users.Total, opts.scenario, sim.Seed(), cfg.Server.Addr())
	prog.Start()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancelRun()
		if opts.once {
			return sim.Run(gctx)
		}
		return sim.Serve(gctx)
	})
	g.Go(func() error {
		return srv.Start(cfg.Server.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		sim.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		if err := pusher.Shutdown(shutdownCtx); err != nil {
			logger.Error("otlp shutdown", "error", err)
		}
		return nil
	})

	runErr := g.Wait()
	prog.Stop()
	coll.Close()

	if ctx.Err() != nil {
		prog.Print("Received interrupt signal, shutting down...")
	}

	summary := coll.Compute()
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		if err := collector.FormatJSON(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
	} else {
		collector.FormatText(cmd.OutOrStdout(), summary)
	}
	if dropped := coll.DroppedOutcomes(); dropped > 0 {
		logger.Warn("summary is partial", "dropped_outcomes", dropped)
	}
	return runErr
}
