package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/clockwork/internal/compiler"
	"github.com/roach88/clockwork/internal/engine"
	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
	"github.com/roach88/clockwork/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	CycleDelay  time.Duration
	MaxPasses   int
	MetricsAddr string
	Mailbox     int
	Console     bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <specs-dir>",
		Short: "Run the machines declared in a specs directory",
		Long: `Load classes and machines from the specified directory, open the
SQLite database (creating it if it doesn't exist), restore persistent
properties and start the polling loop.

With --console, registry commands are read from stdin, one per line:
  GET pump1
  SET pump1 TO running
  SET tank.level TO 40
  DISABLE pump1

Example:
  clockwork run --db ./plant.db ./specs
  clockwork run --db /tmp/plant.db --metrics-addr :9090 ./specs --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "clockwork.db", "path to SQLite database")
	cmd.Flags().DurationVar(&opts.CycleDelay, "cycle", engine.DefaultCycleDelay, "delay between poll cycles")
	cmd.Flags().IntVar(&opts.MaxPasses, "max-passes", engine.DefaultMaxPasses, "evaluation passes allowed per cycle")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "listen address for Prometheus metrics (empty disables)")
	cmd.Flags().IntVar(&opts.Mailbox, "mailbox", 256, "mailbox capacity of every machine")
	cmd.Flags().BoolVar(&opts.Console, "console", false, "read registry commands from stdin")

	return cmd
}

func runEngine(opts *RunOptions, specsDir string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	logger.Info("loading specs", "dir", specsDir)
	prog, err := loadValidProgram(specsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load specs", err)
	}
	for _, w := range compiler.AnalyzeCycles(prog) {
		logger.Warn("dependency cycle", "path", strings.Join(w.Path, " -> "))
	}
	logger.Info("specs loaded", "classes", len(prog.Classes), "machines", len(prog.Instances))

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	sched := engine.NewTimerScheduler()
	defer sched.Stop()

	reg := machine.NewRegistry(
		machine.WithScheduler(sched),
		machine.WithPersistence(store.NewRecorder(st, store.WithRecorderLogger(logger))),
		machine.WithExporter(logExporter{log: logger}),
		machine.WithLogger(logger),
		machine.WithMailboxCapacity(opts.Mailbox),
	)
	if err := prog.Load(reg); err != nil {
		return WrapExitError(ExitCommandError, "failed to load machines", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	restored, err := st.RestorePersistent(ctx, reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to restore properties", err)
	}
	logger.Info("database ready", "restored", restored)

	rt := engine.New(reg,
		engine.WithCycleDelay(opts.CycleDelay),
		engine.WithMaxPasses(opts.MaxPasses),
		engine.WithLogger(logger),
	)
	if n := rt.Start(); n > 0 {
		for _, e := range reg.ConfigErrors() {
			logger.Warn("configuration error", "error", e)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Runtime started. Press Ctrl-C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Run(gctx)
	})

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", opts.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if opts.Console {
		g.Go(func() error {
			return runConsole(gctx, rt, cmd.InOrStdin(), cmd.OutOrStdout())
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "runtime error", err)
	}

	logger.Info("runtime stopped gracefully", "cycles", rt.Cycles())
	return nil
}

// runConsole submits one command per input line until ctx ends or the
// input is exhausted.
func runConsole(ctx context.Context, rt *engine.Runtime, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			reply, err := rt.Submit(ctx, line)
			if errors.Is(err, engine.ErrStopped) || errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, reply)
		}
	}
}

// logExporter publishes exported values to the log. A fieldbus writer
// takes its place in a deployment with real I/O.
type logExporter struct {
	log *slog.Logger
}

func (e logExporter) ExportedValueChanged(address string, value ir.Value) {
	e.log.Debug("export", "address", address, "value", value.String())
}
