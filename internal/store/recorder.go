package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/kiln/internal/engine"
	"github.com/roach88/kiln/internal/module"
)

// Recorder persists one session's engine output. It implements
// engine.StatsSink, and OnLifecycle is an orchestrator lifecycle hook.
//
// Lifecycle hooks cannot fail, so the first write error is kept and
// reported by Err; later writes still run.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Recorder struct {
	store   *Store
	ctx     context.Context
	session string

	mu  sync.Mutex
	seq int64
	err error
}

var _ engine.StatsSink = (*Recorder)(nil)

// Recorder returns a recorder writing under session. ctx bounds every
// write the recorder performs.
func (s *Store) Recorder(ctx context.Context, session string) *Recorder {
	return &Recorder{store: s, ctx: ctx, session: session}
}

// Session returns the session the recorder writes under.
func (r *Recorder) Session() string {
	return r.session
}

// RecordStats writes one snapshot.
func (r *Recorder) RecordStats(st engine.Stats) error {
	if st.Session == "" {
		st.Session = r.session
	}
	err := r.store.WriteFrameStats(r.ctx, st)
	r.keep(err)
	return err
}

// OnLifecycle appends ev to the lifecycle log.
func (r *Recorder) OnLifecycle(ev module.LifecycleEvent) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	if err := r.store.WriteLifecycle(r.ctx, r.session, seq, ev); err != nil {
		slog.Warn("lifecycle write failed",
			"session", r.session,
			"module", ev.Module,
			"kind", ev.Kind,
			"error", err,
		)
		r.keep(err)
	}
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) keep(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}
