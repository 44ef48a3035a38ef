package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/kiln/internal/engine"
	"github.com/roach88/kiln/internal/headless"
	"github.com/roach88/kiln/internal/module"
	"github.com/roach88/kiln/internal/modules"
	"github.com/roach88/kiln/internal/store"
	"github.com/roach88/kiln/internal/testutil"
)

const (
	defaultFrameTime = 16 * time.Millisecond
	defaultWidth     = 1280
	defaultHeight    = 720
)

// Harness drives one scenario through a headless engine.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	engine   *engine.Engine
	window   *headless.Window
	clock    *testutil.ManualClock
	journal  *testutil.Journal
	polls    bool // a window module polls; otherwise the harness does
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, with a
// manual clock and a fixed session ID so traces are reproducible.
//
// Execution flow:
//  1. Register built-in and scripted modules, push layers
//  2. Start the engine (construct every module)
//  3. Per frame: mark the trace, inject the frame's events, Step, advance the clock
//  4. Shut down and collect the lifecycle log from the store
//  5. Evaluate assertions
//
// The returned error covers scenario setup only. Engine failures land in
// Result.RunError and are checked by assertions.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    testutil.NewManualClock(),
		journal:  &testutil.Journal{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	if err := h.build(ctx); err != nil {
		return nil, err
	}
	session := h.engine.Session()

	result := NewResult()
	result.Session = session

	runErr := h.drive()
	result.Frames = h.engine.Frames()
	if runErr != nil {
		result.RunError = runErr.Error()
	}
	if err := st.EndSession(ctx, session, result.Frames, h.clock.Now(), runErr); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	for i, entry := range h.journal.Entries() {
		result.Trace = append(result.Trace, TraceEvent{Seq: i + 1, Entry: entry})
	}
	lifecycle, err := st.ReadLifecycle(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to read lifecycle: %w", err)
	}
	for _, e := range lifecycle {
		result.Lifecycle = append(result.Lifecycle, e.Kind+" "+e.Module)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// build registers modules, creates the engine and pushes layers.
func (h *Harness) build(ctx context.Context) error {
	s := h.scenario

	width, height := defaultWidth, defaultHeight
	if s.Window != nil {
		width, height = s.Window.Width, s.Window.Height
	}
	h.window = headless.NewWindow(width, height)
	renderer := &traceRenderer{Renderer: headless.NewRenderer(), journal: h.journal}

	reg := module.NewRegistry()
	builtins, err := modules.Select(s.Builtins, h.window, renderer)
	if err != nil {
		return fmt.Errorf("builtins: %w", err)
	}
	if err := reg.RegisterAll(builtins...); err != nil {
		return err
	}
	for _, id := range reg.IDs() {
		if id == modules.WindowID {
			h.polls = true
		}
	}

	for i, spec := range s.Modules {
		update, destroy, err := spec.phases()
		if err != nil {
			return fmt.Errorf("modules[%d]: %w", i, err)
		}
		requires := make([]module.ID, len(spec.Requires))
		for j, r := range spec.Requires {
			requires[j] = module.ID(r)
		}
		if err := reg.Register(module.ID(spec.ID), h.scriptedFactory(spec), requires, update, destroy); err != nil {
			return fmt.Errorf("modules[%d]: %w", i, err)
		}
	}

	sessions := testutil.NewFixedSessionGenerator(s.Session)
	session := sessions.Generate()
	if err := h.store.BeginSession(ctx, session, s.Name, h.clock.Now()); err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}
	rec := h.store.Recorder(ctx, session)

	opts := []engine.Option{
		engine.WithWindow(h.window),
		engine.WithRenderer(renderer),
		engine.WithClock(h.clock),
		engine.WithLogger(h.logger),
		engine.WithSessionIDGenerator(sessions),
		engine.WithLifecycleHook(rec.OnLifecycle),
		engine.WithStatsSink(rec),
	}
	if s.MaxDelta > 0 {
		opts = append(opts, engine.WithMaxDelta(s.MaxDelta))
	}
	h.engine = engine.New(reg, opts...)

	for _, spec := range s.Layers {
		kinds, err := spec.handledKinds()
		if err != nil {
			return fmt.Errorf("layer %s: %w", spec.Name, err)
		}
		l := testutil.NewRecordingLayer(h.journal, spec.Name, kinds...)
		if spec.Overlay {
			h.engine.PushOverlay(l)
		} else {
			h.engine.PushLayer(l)
		}
	}
	return nil
}

// drive steps the engine the way Engine.Run does, with events injected and
// the clock advanced between frames.
func (h *Harness) drive() error {
	s := h.scenario
	frameTime := s.FrameTime
	if frameTime == 0 {
		frameTime = defaultFrameTime
	}

	if err := h.engine.Start(); err != nil {
		h.journal.Add("shutdown")
		return errors.Join(err, h.engine.Shutdown())
	}

	var loopErr error
	for i := 0; i < s.Frames && h.engine.Running(); i++ {
		h.journal.Add("frame %d", i)
		for _, step := range s.Events {
			if step.Frame != i {
				continue
			}
			ev, err := step.build()
			if err != nil {
				return errors.Join(err, h.engine.Shutdown())
			}
			h.window.Inject(ev)
		}
		if !h.polls {
			h.window.PollEvents()
		}

		if err := h.engine.Step(); err != nil {
			loopErr = fmt.Errorf("frame %d: %w", i, err)
			break
		}
		h.clock.Advance(frameTime)
	}

	h.journal.Add("shutdown")
	return errors.Join(loopErr, h.engine.Shutdown())
}

// scriptedFactory builds a recording module that fails on cue.
func (h *Harness) scriptedFactory(spec ModuleSpec) module.Factory {
	id := module.ID(spec.ID)
	build := testutil.RecordingFactory(h.journal, id)
	return func(r module.Resolver) (module.Module, error) {
		inner, err := build(r)
		if err != nil {
			return nil, err
		}
		rec := inner.(*testutil.RecordingModule)
		if spec.FailDestroy {
			rec.DestroyErr = fmt.Errorf("scripted destroy failure")
		}
		return &scriptedModule{RecordingModule: rec, failAt: spec.FailUpdateAt}, nil
	}
}

type scriptedModule struct {
	*testutil.RecordingModule
	failAt *uint64
}

func (m *scriptedModule) Update(f module.Frame) error {
	if m.failAt != nil && f.Index == *m.failAt {
		m.UpdateErr = fmt.Errorf("scripted failure at frame %d", f.Index)
	}
	return m.RecordingModule.Update(f)
}

// traceRenderer journals the surface operations the engine performs.
type traceRenderer struct {
	*headless.Renderer
	journal *testutil.Journal
}

func (r *traceRenderer) ResizeSurface(width, height int) error {
	r.journal.Add("resize surface %dx%d", width, height)
	return r.Renderer.ResizeSurface(width, height)
}

func (r *traceRenderer) WaitIdle() error {
	r.journal.Add("wait idle")
	return r.Renderer.WaitIdle()
}
