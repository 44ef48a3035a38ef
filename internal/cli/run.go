package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/config"
	"github.com/roach88/kiln/internal/engine"
	"github.com/roach88/kiln/internal/headless"
	"github.com/roach88/kiln/internal/module"
	"github.com/roach88/kiln/internal/modules"
	"github.com/roach88/kiln/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	Frames     uint64
	Database   string
	VSync      int

	// SessionGenerator allows overriding the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionGenerator engine.SessionIDGenerator
}

// RunSummary is the result reported once the engine stops.
type RunSummary struct {
	Session  string   `json:"session"`
	Title    string   `json:"title"`
	Frames   uint64   `json:"frames"`
	FPS      int      `json:"fps"`
	Presents int      `json:"presents"`
	Modules  []string `json:"modules"`
	Layers   int      `json:"layers"`
	Database string   `json:"database,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the application headlessly",
		Long: `Run the application on the headless platform.

Modules are constructed in dependency order, then frames run until the
frame limit is reached, the window is closed, or the process receives
SIGINT/SIGTERM. Modules and layers are always torn down in shutdown order.

With --db, the session, its lifecycle log and per-second frame statistics
are written to a SQLite database (created if it doesn't exist).

Example:
  kiln run --frames 600
  kiln run --config kiln.yaml --db ./kiln.db
  kiln run --frames 120 --vsync 0 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (defaults apply without one)")
	cmd.Flags().Uint64Var(&opts.Frames, "frames", 0, "stop after N frames (overrides frame_limit)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite stats database (overrides stats_db)")
	cmd.Flags().IntVar(&opts.VSync, "vsync", 60, "emulated present rate in frames per second (0 disables pacing)")

	return cmd
}

func runApp(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return reportConfigError(formatter, err)
	}
	if opts.Frames > 0 {
		cfg.FrameLimit = opts.Frames
	}
	if opts.Database != "" {
		cfg.StatsDB = opts.Database
	}

	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel(opts.RootOptions, cfg.SlogLevel()),
	})
	logger := slog.New(handler)

	window := headless.NewWindow(cfg.Width, cfg.Height)
	renderer := newPacedRenderer(opts.VSync)

	reg, err := buildRegistry(cfg, window, renderer)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register modules", err)
	}

	sessions := opts.SessionGenerator
	if sessions == nil {
		sessions = engine.UUIDv7Generator{}
	}
	session := sessions.Generate()

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	engineOpts := []engine.Option{
		engine.WithWindow(window),
		engine.WithRenderer(renderer),
		engine.WithLogger(logger),
		engine.WithMaxDelta(cfg.MaxDelta),
		engine.WithFrameLimit(cfg.FrameLimit),
		engine.WithSessionIDGenerator(engine.NewFixedGenerator(session)),
	}

	var (
		st  *store.Store
		rec *store.Recorder
	)
	if cfg.StatsDB != "" {
		logger.Info("opening database", "path", cfg.StatsDB)
		st, err = store.Open(cfg.StatsDB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		if err := st.BeginSession(ctx, session, cfg.Title, time.Now()); err != nil {
			return WrapExitError(ExitCommandError, "failed to record session", err)
		}
		// Writes outlive cancellation: shutdown still records destroy events.
		rec = st.Recorder(context.WithoutCancel(ctx), session)
		engineOpts = append(engineOpts,
			engine.WithStatsSink(rec),
			engine.WithLifecycleHook(rec.OnLifecycle),
		)
	}

	eng := engine.New(reg, engineOpts...)
	for _, l := range cfg.Layers {
		dl := newDemoLayer(l, logger)
		if l.Overlay {
			eng.PushOverlay(dl)
		} else {
			eng.PushLayer(dl)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	formatter.VerboseLog("Session %s: %d module(s), %d layer(s)", session, reg.Len(), len(cfg.Layers))

	runErr := eng.Run(ctx)

	if st != nil {
		if err := finishSession(st, rec, eng, runErr); err != nil {
			logger.Error("error recording session end", "error", err)
		}
	}

	summary := RunSummary{
		Session:  session,
		Title:    cfg.Title,
		Frames:   eng.Frames(),
		FPS:      eng.FPS(),
		Presents: renderer.Presents(),
		Modules:  idStrings(eng.Orchestrator().Constructed()),
		Layers:   len(cfg.Layers),
		Database: cfg.StatsDB,
	}

	if runErr != nil {
		_ = formatter.Error(ErrCodeRunFailed, runErr.Error(), summary)
		return WrapExitError(ExitFailure, "engine error", runErr)
	}
	return outputRunSummary(formatter, summary)
}

// finishSession stamps the session row with the final frame count and
// error. The recorder's own write errors are reported too.
func finishSession(st *store.Store, rec *store.Recorder, eng *engine.Engine, runErr error) error {
	return errors.Join(
		st.EndSession(context.Background(), rec.Session(), eng.Frames(), time.Now(), runErr),
		rec.Err(),
	)
}

// buildRegistry registers the enabled built-in modules.
func buildRegistry(cfg *config.Config, w engine.Window, r engine.Renderer) (*module.Registry, error) {
	registrants, err := modules.Select(cfg.Modules, w, r)
	if err != nil {
		return nil, err
	}
	reg := module.NewRegistry()
	if err := reg.RegisterAll(registrants...); err != nil {
		return nil, err
	}
	for _, id := range slices.Sorted(maps.Keys(cfg.Requires)) {
		reqs := make([]module.ID, len(cfg.Requires[id]))
		for i, req := range cfg.Requires[id] {
			reqs[i] = module.ID(req)
		}
		if err := reg.Require(module.ID(id), reqs...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// loadConfig loads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// reportConfigError maps a config load failure to an exit error: a missing
// file is a command error, an invalid one a validation failure.
func reportConfigError(formatter *OutputFormatter, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "config not found", err)
	}
	_ = formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
	return WrapExitError(ExitFailure, "invalid config", err)
}

func outputRunSummary(formatter *OutputFormatter, s RunSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(s)
	}

	p := formatter.Printer()
	w := formatter.Writer
	fmt.Fprintf(w, "✓ %s stopped\n", s.Title)
	fmt.Fprintf(w, "  Session:  %s\n", s.Session)
	p.Fprintf(w, "  Frames:   %d\n", s.Frames)
	p.Fprintf(w, "  FPS:      %d\n", s.FPS)
	p.Fprintf(w, "  Presents: %d\n", s.Presents)
	fmt.Fprintf(w, "  Modules:  %v\n", s.Modules)
	if s.Database != "" {
		fmt.Fprintf(w, "  Stats:    %s\n", s.Database)
	}
	return nil
}

func idStrings(ids []module.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
