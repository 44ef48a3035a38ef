package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/kiln/internal/engine"
	"github.com/roach88/kiln/internal/module"
)

// BeginSession inserts the row for a new engine run.
// Uses ON CONFLICT(id) DO NOTHING so re-running with a fixed session ID is
// idempotent.
func (s *Store) BeginSession(ctx context.Context, id, title string, started time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, title, started.UnixNano())
	if err != nil {
		return fmt.Errorf("begin session %s: %w", id, err)
	}
	return nil
}

// EndSession records how a run finished. runErr may be nil.
func (s *Store) EndSession(ctx context.Context, id string, frames uint64, ended time.Time, runErr error) error {
	exitError := ""
	if runErr != nil {
		exitError = runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET ended_at = ?, frames = ?, exit_error = ?
		WHERE id = ?
	`, ended.UnixNano(), int64(frames), exitError, id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// WriteFrameStats inserts one Stats snapshot. The session must exist
// (foreign key constraint). A snapshot for the same frame is ignored.
func (s *Store) WriteFrameStats(ctx context.Context, st engine.Stats) error {
	p := st.Phases
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frame_stats
		(session_id, frame, fps, frame_time_ns, drain_ns, pre_ns, normal_ns, layers_ns, post_ns, render_ns, minimized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, frame) DO NOTHING
	`,
		st.Session,
		int64(st.Frame),
		st.FPS,
		int64(st.FrameTime),
		int64(p.Drain),
		int64(p.Pre),
		int64(p.Normal),
		int64(p.Layers),
		int64(p.Post),
		int64(p.Render),
		st.Minimized,
	)
	if err != nil {
		return fmt.Errorf("write frame stats %s/%d: %w", st.Session, st.Frame, err)
	}
	return nil
}

// WriteLifecycle appends one lifecycle entry at position seq.
func (s *Store) WriteLifecycle(ctx context.Context, session string, seq int64, ev module.LifecycleEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lifecycle
		(session_id, seq, kind, module, update_phase, destroy_phase)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		session,
		seq,
		string(ev.Kind),
		string(ev.Module),
		ev.Update.String(),
		ev.Stage.String(),
	)
	if err != nil {
		return fmt.Errorf("write lifecycle %s/%d: %w", session, seq, err)
	}
	return nil
}
