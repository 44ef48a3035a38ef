package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/engine"
	"github.com/roach88/kiln/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
	Session  string
}

// SessionStats is one session with its per-second samples and lifecycle log.
type SessionStats struct {
	Session   store.Session          `json:"session"`
	Samples   []engine.Stats         `json:"samples"`
	Lifecycle []store.LifecycleEntry `json:"lifecycle"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recorded sessions and frame statistics",
		Long: `Read a stats database written by 'kiln run --db'.

Without --session, every recorded session is listed. With --session, the
per-second frame samples and the module lifecycle log of that session
are shown.

Example:
  kiln stats --db ./kiln.db
  kiln stats --db ./kiln.db --session 0192c3e4-...
  kiln stats --db ./kiln.db --session 0192c3e4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite stats database (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to show in detail")

	if err := cmd.MarkFlagRequired("db"); err != nil {
		panic(fmt.Sprintf("failed to mark db flag as required: %v", err))
	}

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Open would create an empty database
	if _, err := os.Stat(opts.Database); errors.Is(err, fs.ErrNotExist) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Session == "" {
		sessions, err := st.ReadSessions(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read sessions", err)
		}
		return outputSessions(formatter, sessions)
	}

	detail, err := readSessionStats(ctx, st, opts.Session)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "session not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	return outputSessionStats(formatter, detail)
}

func readSessionStats(ctx context.Context, st *store.Store, id string) (SessionStats, error) {
	sess, err := st.ReadSession(ctx, id)
	if err != nil {
		return SessionStats{}, err
	}
	samples, err := st.ReadFrameStats(ctx, id)
	if err != nil {
		return SessionStats{}, err
	}
	lifecycle, err := st.ReadLifecycle(ctx, id)
	if err != nil {
		return SessionStats{}, err
	}
	return SessionStats{Session: sess, Samples: samples, Lifecycle: lifecycle}, nil
}

func outputSessions(formatter *OutputFormatter, sessions []store.Session) error {
	if formatter.Format == "json" {
		return formatter.Success(sessions)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(formatter.Writer, "No sessions recorded.")
		return nil
	}

	p := formatter.Printer()
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTITLE\tSTARTED\tFRAMES\tSTATUS")
	for _, s := range sessions {
		p.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Title, s.StartedAt.Local().Format(time.DateTime), s.Frames, sessionStatus(s))
	}
	return tw.Flush()
}

func sessionStatus(s store.Session) string {
	switch {
	case s.Running():
		return "running"
	case s.ExitError != "":
		return "failed"
	default:
		return "ok"
	}
}

func outputSessionStats(formatter *OutputFormatter, d SessionStats) error {
	if formatter.Format == "json" {
		return formatter.Success(d)
	}

	p := formatter.Printer()
	w := formatter.Writer
	fmt.Fprintf(w, "Session %s (%s)\n", d.Session.ID, d.Session.Title)
	p.Fprintf(w, "  Frames: %d\n", d.Session.Frames)
	fmt.Fprintf(w, "  Status: %s\n", sessionStatus(d.Session))
	if d.Session.ExitError != "" {
		fmt.Fprintf(w, "  Error:  %s\n", d.Session.ExitError)
	}

	fmt.Fprintln(w)
	if len(d.Samples) == 0 {
		fmt.Fprintln(w, "No frame samples (run shorter than one second).")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FRAME\tFPS\tFRAME TIME\tDRAIN\tPRE\tNORMAL\tLAYERS\tPOST\tRENDER\t")
		for _, s := range d.Samples {
			ph := s.Phases
			p.Fprintf(tw, "%d\t%d\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%s\n",
				s.Frame, s.FPS, s.FrameTime, ph.Drain, ph.Pre, ph.Normal, ph.Layers, ph.Post, ph.Render, minimizedMark(s))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Lifecycle:")
	for _, e := range d.Lifecycle {
		fmt.Fprintf(w, "  %3d  %-11s %-10s update=%s destroy=%s\n", e.Seq, e.Kind, e.Module, e.UpdatePhase, e.DestroyPhase)
	}
	return nil
}

func minimizedMark(s engine.Stats) string {
	if s.Minimized {
		return "minimized"
	}
	return ""
}
