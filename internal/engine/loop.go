package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/kiln/internal/module"
)

// Start constructs every registered module in dependency order and marks
// the engine running. A construction failure (unknown requirement, cycle,
// factory error) is returned and the engine stays stopped.
func (e *Engine) Start() error {
	if e.started {
		return nil
	}
	e.started = true

	e.logger.Info("engine starting", "session", e.session, "modules", e.orch.Registry().Len())
	if err := e.orch.ConstructAll(); err != nil {
		e.logger.Error("module construction failed", "error", err)
		return fmt.Errorf("construct modules: %w", err)
	}
	e.running.Store(true)
	return nil
}

// Running reports whether the loop should keep iterating.
// Thread-safe.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Close asks the loop to stop after the current frame. Cooperative: the
// frame in progress always completes.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Close() {
	if e.running.Swap(false) {
		e.logger.Info("engine close requested")
	}
}

// Step runs one frame. See the package documentation for the sequence.
func (e *Engine) Step() error {
	delta, boundary := e.timer.tick(e.clock.Now())
	f := module.Frame{Index: e.frame, Delta: delta, Elapsed: e.timer.elapsed}
	e.frame++

	var phases PhaseDurations
	e.watch.start(e.clock, boundary)

	e.queue.Drain()
	e.watch.lap(&phases.Drain)

	if err := e.orch.RunPhase(module.UpdatePre, f); err != nil {
		return err
	}
	e.watch.lap(&phases.Pre)

	if err := e.orch.RunPhase(module.UpdateNormal, f); err != nil {
		return err
	}
	e.watch.lap(&phases.Normal)

	if err := e.layers.Update(f); err != nil {
		return err
	}
	e.watch.lap(&phases.Layers)

	if err := e.orch.RunPhase(module.UpdatePost, f); err != nil {
		return err
	}
	e.watch.lap(&phases.Post)

	if !e.minimized {
		if err := e.resolveResize(); err != nil {
			return fmt.Errorf("resize surface: %w", err)
		}
		if err := e.orch.RunPhase(module.UpdateRender, f); err != nil {
			return err
		}
		if err := e.layers.Render(f); err != nil {
			return err
		}
	}
	e.watch.lap(&phases.Render)

	if boundary {
		e.recordStats(f, phases)
	}
	return nil
}

func (e *Engine) recordStats(f module.Frame, phases PhaseDurations) {
	s := Stats{
		Session:   e.session,
		Frame:     f.Index,
		FPS:       e.timer.fps,
		FrameTime: e.timer.frameTime,
		Phases:    phases,
		Minimized: e.minimized,
	}
	e.lastStats = s
	e.statsCount++

	e.logger.Debug("frame stats",
		"frame", s.Frame,
		"fps", s.FPS,
		"frame_time", s.FrameTime,
	)

	if e.sink == nil {
		return
	}
	// Log and continue: statistics never fail a frame.
	if err := e.sink.RecordStats(s); err != nil {
		e.logger.Warn("stats sink failed", "frame", s.Frame, "error", err)
	}
}

// Run starts the engine if needed and steps frames until the engine is
// closed, ctx is cancelled or the frame limit is reached, then shuts down.
//
// A frame error stops the loop immediately; it is returned joined with any
// shutdown error. Cancellation is a normal stop and returns nil.
//
// CRITICAL: Must be called from exactly ONE goroutine, which becomes the
// main goroutine for every module and layer callback.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(); err != nil {
		return errors.Join(err, e.Shutdown())
	}

	var loopErr error
	for e.running.Load() {
		if err := ctx.Err(); err != nil {
			e.logger.Info("engine stopping: context cancelled")
			break
		}
		if e.frameLimit > 0 && e.frame >= e.frameLimit {
			e.logger.Info("engine stopping: frame limit reached", "frames", e.frame)
			break
		}
		if err := e.Step(); err != nil {
			e.logger.Error("frame failed", "frame", e.frame-1, "error", err)
			loopErr = fmt.Errorf("frame %d: %w", e.frame-1, err)
			break
		}
	}
	e.running.Store(false)

	return errors.Join(loopErr, e.Shutdown())
}

// Shutdown tears the application down in the fixed order: renderer idle,
// DestroyPre, layer detach, DestroyNormal, layer release, DestroyPost.
// Every step runs; errors are joined. Calling Shutdown twice is a no-op.
func (e *Engine) Shutdown() error {
	if e.stopped {
		return nil
	}
	e.stopped = true
	e.running.Store(false)
	e.queue.Close()
	if n := e.queue.Len(); n > 0 {
		e.logger.Warn("discarding pending main-thread tasks", "count", n)
	}

	var errs []error
	if e.renderer != nil {
		if err := e.renderer.WaitIdle(); err != nil {
			errs = append(errs, fmt.Errorf("renderer wait idle: %w", err))
		}
	}

	if err := e.orch.Destroy(module.DestroyPre); err != nil {
		errs = append(errs, err)
	}
	e.layers.Detach()
	if err := e.orch.Destroy(module.DestroyNormal); err != nil {
		errs = append(errs, err)
	}
	if err := e.layers.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := e.orch.Destroy(module.DestroyPost); err != nil {
		errs = append(errs, err)
	}

	e.logger.Info("engine stopped", "session", e.session, "frames", e.frame)
	return errors.Join(errs...)
}
