package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/kiln/internal/engine"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Session is one recorded engine run.
type Session struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    uint64     `json:"frames"`
	ExitError string     `json:"exit_error,omitempty"`
}

// Running reports whether the session has not ended.
func (s Session) Running() bool {
	return s.EndedAt == nil
}

// LifecycleEntry is one recorded construction or destruction.
type LifecycleEntry struct {
	Seq          int64  `json:"seq"`
	Kind         string `json:"kind"`
	Module       string `json:"module"`
	UpdatePhase  string `json:"update_phase"`
	DestroyPhase string `json:"destroy_phase"`
}

// ReadSession returns one session, or ErrNotFound.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, started_at, ended_at, frames, exit_error
		FROM sessions
		WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// ReadSessions returns every session in start order.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, started_at, ended_at, frames, exit_error
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadFrameStats returns a session's snapshots ordered by frame.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadFrameStats(ctx context.Context, session string) ([]engine.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, fps, frame_time_ns, drain_ns, pre_ns, normal_ns, layers_ns, post_ns, render_ns, minimized
		FROM frame_stats
		WHERE session_id = ?
		ORDER BY frame ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query frame stats: %w", err)
	}
	defer rows.Close()

	stats := []engine.Stats{}
	for rows.Next() {
		var st engine.Stats
		var frame, frameTime, drain, pre, normal, layers, post, rd int64
		if err := rows.Scan(&frame, &st.FPS, &frameTime, &drain, &pre, &normal, &layers, &post, &rd, &st.Minimized); err != nil {
			return nil, fmt.Errorf("scan frame stats: %w", err)
		}
		st.Session = session
		st.Frame = uint64(frame)
		st.FrameTime = time.Duration(frameTime)
		st.Phases = engine.PhaseDurations{
			Drain:  time.Duration(drain),
			Pre:    time.Duration(pre),
			Normal: time.Duration(normal),
			Layers: time.Duration(layers),
			Post:   time.Duration(post),
			Render: time.Duration(rd),
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frame stats: %w", err)
	}
	return stats, nil
}

// ReadLifecycle returns a session's lifecycle log ordered by seq.
//
// Returns an empty slice (not nil) if there is none.
func (s *Store) ReadLifecycle(ctx context.Context, session string) ([]LifecycleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, module, update_phase, destroy_phase
		FROM lifecycle
		WHERE session_id = ?
		ORDER BY seq ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query lifecycle: %w", err)
	}
	defer rows.Close()

	entries := []LifecycleEntry{}
	for rows.Next() {
		var e LifecycleEntry
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Module, &e.UpdatePhase, &e.DestroyPhase); err != nil {
			return nil, fmt.Errorf("scan lifecycle: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lifecycle: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
		frames  int64
	)
	if err := row.Scan(&sess.ID, &sess.Title, &started, &ended, &frames, &sess.ExitError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		sess.EndedAt = &t
	}
	sess.Frames = uint64(frames)
	return sess, nil
}
