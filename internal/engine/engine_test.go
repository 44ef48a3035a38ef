package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/event"
	"github.com/roach88/kiln/internal/headless"
	"github.com/roach88/kiln/internal/module"
	"github.com/roach88/kiln/internal/testutil"
)

type fixture struct {
	j     *testutil.Journal
	reg   *module.Registry
	clock *testutil.ManualClock
	win   *headless.Window
	rend  *headless.Renderer
}

func newFixture() *fixture {
	return &fixture{
		j:     &testutil.Journal{},
		reg:   module.NewRegistry(),
		clock: testutil.NewManualClock(),
		win:   headless.NewWindow(800, 600),
		rend:  headless.NewRenderer(),
	}
}

func (fx *fixture) add(t *testing.T, id module.ID, update module.UpdatePhase, destroy module.DestroyPhase, requires ...module.ID) {
	t.Helper()
	require.NoError(t, fx.reg.Register(id, testutil.RecordingFactory(fx.j, id), requires, update, destroy))
}

func (fx *fixture) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithClock(fx.clock),
		WithWindow(fx.win),
		WithRenderer(fx.rend),
		WithSessionIDGenerator(testutil.NewFixedSessionGenerator("")),
	}
	return New(fx.reg, append(base, opts...)...)
}

func recording(t *testing.T, e *Engine, id module.ID) *testutil.RecordingModule {
	t.Helper()
	m, err := module.Get[*testutil.RecordingModule](e.Orchestrator(), id)
	require.NoError(t, err)
	return m
}

type statsRecorder struct {
	got []Stats
	err error
}

func (s *statsRecorder) RecordStats(st Stats) error {
	s.got = append(s.got, st)
	return s.err
}

// journalRenderer journals renderer calls next to module and layer entries.
type journalRenderer struct {
	j *testutil.Journal
}

func (r journalRenderer) ResizeSurface(w, h int) error {
	r.j.Add("resize surface %dx%d", w, h)
	return nil
}

func (r journalRenderer) WaitIdle() error {
	r.j.Add("wait idle")
	return nil
}

func TestStep_PhaseOrder(t *testing.T) {
	fx := newFixture()
	// registered out of phase order on purpose
	fx.add(t, "draw", module.UpdateRender, module.DestroyNormal)
	fx.add(t, "late", module.UpdatePost, module.DestroyNormal)
	fx.add(t, "sim", module.UpdateNormal, module.DestroyNormal)
	fx.add(t, "early", module.UpdatePre, module.DestroyNormal)
	e := fx.engine(t)
	require.NoError(t, e.Start())
	e.PushLayer(testutil.NewRecordingLayer(fx.j, "L"))
	fx.j.Reset()

	require.NoError(t, e.Step())

	assert.Equal(t, []string{
		"update early",
		"update sim",
		"layer update L",
		"update late",
		"update draw",
		"layer render L",
	}, fx.j.Entries())
}

func TestStep_OrderStableAcrossFrames(t *testing.T) {
	fx := newFixture()
	fx.add(t, "b", module.UpdateNormal, module.DestroyNormal)
	fx.add(t, "a", module.UpdateNormal, module.DestroyNormal)
	e := fx.engine(t)
	require.NoError(t, e.Start())
	fx.j.Reset()

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Step())
	}

	assert.Equal(t, []string{"update b", "update a", "update b", "update a", "update b", "update a"}, fx.j.Entries())
	assert.Equal(t, uint64(3), e.Frames())
}

func TestStep_MinimizedSkipsRender(t *testing.T) {
	fx := newFixture()
	fx.add(t, "sim", module.UpdateNormal, module.DestroyNormal)
	fx.add(t, "draw", module.UpdateRender, module.DestroyNormal)
	e := fx.engine(t)
	require.NoError(t, e.Start())
	fx.j.Reset()

	e.OnEvent(event.WindowResize(0, 0))
	require.True(t, e.Minimized())
	require.NoError(t, e.Step())
	assert.Equal(t, []string{"update sim"}, fx.j.Entries())

	fx.j.Reset()
	e.OnEvent(event.WindowResize(1024, 768))
	assert.False(t, e.Minimized())
	require.NoError(t, e.Step())
	assert.Equal(t, []string{"update sim", "update draw"}, fx.j.Entries())
}

func TestStep_IconifySuppressesRender(t *testing.T) {
	fx := newFixture()
	fx.add(t, "draw", module.UpdateRender, module.DestroyNormal)
	e := fx.engine(t)
	require.NoError(t, e.Start())
	fx.j.Reset()

	e.OnEvent(event.WindowIconify(true))
	require.NoError(t, e.Step())
	assert.Empty(t, fx.j.Entries())

	e.OnEvent(event.WindowIconify(false))
	require.NoError(t, e.Step())
	assert.Equal(t, []string{"update draw"}, fx.j.Entries())
}

func TestOnEvent_ZeroResizeNeverReachesLayers(t *testing.T) {
	fx := newFixture()
	e := fx.engine(t)
	e.PushLayer(testutil.NewRecordingLayer(fx.j, "L1"))
	e.PushOverlay(testutil.NewRecordingLayer(fx.j, "O1"))
	fx.j.Reset()

	ev := event.WindowResize(0, 0)
	e.OnEvent(ev)

	assert.True(t, ev.Handled)
	assert.Empty(t, fx.j.Entries())
}

func TestOnEvent_ResizeReachesLayersInReverseOrder(t *testing.T) {
	fx := newFixture()
	e := fx.engine(t)
	e.PushLayer(testutil.NewRecordingLayer(fx.j, "L1"))
	e.PushOverlay(testutil.NewRecordingLayer(fx.j, "O1"))
	e.PushLayer(testutil.NewRecordingLayer(fx.j, "L2"))
	fx.j.Reset()

	ev := event.WindowResize(800, 600)
	e.OnEvent(ev)

	assert.False(t, ev.Handled, "a non-zero resize is left for layers")
	assert.Equal(t, []string{
		"event O1 WindowResize: 800, 600",
		"event L2 WindowResize: 800, 600",
		"event L1 WindowResize: 800, 600",
	}, fx.j.Entries())
}

func TestOnEvent_LayerHandlingStopsPropagation(t *testing.T) {
	fx := newFixture()
	e := fx.engine(t)
	e.PushLayer(testutil.NewRecordingLayer(fx.j, "L1"))
	e.PushLayer(testutil.NewRecordingLayer(fx.j, "L2", event.KindKeyPressed))
	e.PushOverlay(testutil.NewRecordingLayer(fx.j, "O1"))
	fx.j.Reset()

	ev := event.KeyPressed(65, false)
	e.OnEvent(ev)

	assert.True(t, ev.Handled)
	assert.Equal(t, []string{
		"event O1 KeyPressed: 65 (repeat=false)",
		"event L2 KeyPressed: 65 (repeat=false)",
	}, fx.j.Entries())
}

func TestResize_DeferredUntilPrimaryButtonReleased(t *testing.T) {
	fx := newFixture()
	e := fx.engine(t)
	require.NoError(t, e.Start())

	// drag starts: button down, then a stream of resizes
	fx.win.Inject(event.MouseButtonPressed(event.MouseButtonPrimary), event.WindowResize(810, 610))
	fx.win.PollEvents()
	require.NoError(t, e.Step())
	fx.win.Inject(event.WindowResize(900, 700))
	fx.win.PollEvents()
	require.NoError(t, e.Step())
	assert.Empty(t, fx.rend.Resizes(), "no rebuild while the button is held")

	fx.win.Inject(event.MouseButtonReleased(event.MouseButtonPrimary))
	fx.win.PollEvents()
	require.NoError(t, e.Step())
	require.NoError(t, e.Step())

	assert.Equal(t, []headless.Size{{Width: 900, Height: 700}}, fx.rend.Resizes(), "rebuilt once, at the final size")
}

func TestResize_ErrorTerminatesFrame(t *testing.T) {
	fx := newFixture()
	fx.rend.ResizeErr = errors.New("swapchain out of date")
	e := fx.engine(t)
	require.NoError(t, e.Start())

	e.OnEvent(event.WindowResize(640, 480))
	err := e.Step()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "swapchain out of date")
}

func TestStep_DeltaNeverExceedsClamp(t *testing.T) {
	fx := newFixture()
	fx.add(t, "sim", module.UpdateNormal, module.DestroyNormal)
	e := fx.engine(t)
	require.NoError(t, e.Start())

	require.NoError(t, e.Step())
	fx.clock.Advance(5 * time.Second)
	require.NoError(t, e.Step())
	fx.clock.Advance(16 * time.Millisecond)
	require.NoError(t, e.Step())

	frames := recording(t, e, "sim").Frames
	require.Len(t, frames, 3)
	assert.Equal(t, time.Duration(0), frames[0].Delta)
	assert.Equal(t, DefaultMaxDelta, frames[1].Delta)
	assert.Equal(t, 16*time.Millisecond, frames[2].Delta)
	assert.Equal(t, 116*time.Millisecond, frames[2].Elapsed)
	for i, f := range frames {
		assert.Equal(t, uint64(i), f.Index)
		assert.LessOrEqual(t, f.Delta, DefaultMaxDelta)
	}
}

func TestStep_CustomMaxDelta(t *testing.T) {
	fx := newFixture()
	fx.add(t, "sim", module.UpdateNormal, module.DestroyNormal)
	e := fx.engine(t, WithMaxDelta(50*time.Millisecond))
	require.NoError(t, e.Start())

	require.NoError(t, e.Step())
	fx.clock.Advance(time.Second)
	require.NoError(t, e.Step())

	assert.Equal(t, 50*time.Millisecond, recording(t, e, "sim").Frames[1].Delta)
}

func TestStep_FPSSnapshotAfterOneSecond(t *testing.T) {
	fx := newFixture()
	sink := &statsRecorder{}
	e := fx.engine(t, WithStatsSink(sink))
	require.NoError(t, e.Start())

	// 30 frames inside the first second
	for i := 0; i < 30; i++ {
		fx.clock.Set(time.Duration(i) * time.Second / 30)
		require.NoError(t, e.Step())
	}
	assert.Equal(t, 0, e.FPS())
	assert.Empty(t, sink.got, "stats are recorded only on the boundary frame")

	fx.clock.Set(time.Second)
	require.NoError(t, e.Step())

	assert.Equal(t, 30, e.FPS())
	require.Len(t, sink.got, 1)
	st := sink.got[0]
	assert.Equal(t, 30, st.FPS)
	assert.Equal(t, uint64(30), st.Frame)
	assert.Equal(t, time.Second/30, st.FrameTime)
	assert.Equal(t, "test-session", st.Session)

	last, ok := e.LastStats()
	require.True(t, ok)
	assert.Equal(t, st, last)
}

func TestStep_StatsSinkErrorDoesNotFailFrame(t *testing.T) {
	fx := newFixture()
	sink := &statsRecorder{err: errors.New("disk full")}
	e := fx.engine(t, WithStatsSink(sink))
	require.NoError(t, e.Start())

	require.NoError(t, e.Step())
	fx.clock.Advance(time.Second)
	require.NoError(t, e.Step())
	assert.Len(t, sink.got, 1)
}

func TestStep_DrainsTasksBeforeUpdates(t *testing.T) {
	fx := newFixture()
	fx.add(t, "early", module.UpdatePre, module.DestroyNormal)
	e := fx.engine(t)
	require.NoError(t, e.Start())
	fx.j.Reset()

	require.True(t, e.Submit(func() {
		fx.j.Add("task 1")
		e.Submit(func() { fx.j.Add("task 2") })
	}))

	require.NoError(t, e.Step())
	require.NoError(t, e.Step())

	assert.Equal(t, []string{"task 1", "update early", "task 2", "update early"}, fx.j.Entries())
}

func TestRun_StopsOnWindowClose(t *testing.T) {
	fx := newFixture()
	// polls like the window module would
	require.NoError(t, fx.reg.Register("pump", func(module.Resolver) (module.Module, error) {
		return pumpModule{fx.win}, nil
	}, nil, module.UpdatePre, module.DestroyPost))
	fx.add(t, "sim", module.UpdateNormal, module.DestroyNormal)
	e := fx.engine(t)

	fx.win.Inject(event.WindowClose())
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, uint64(1), e.Frames(), "the closing frame completes, no further frame runs")
	assert.Contains(t, fx.j.Entries(), "update sim")
	assert.Equal(t, 1, fx.rend.WaitIdles())
	assert.False(t, e.Running())
}

type pumpModule struct {
	w *headless.Window
}

func (p pumpModule) Update(module.Frame) error {
	p.w.PollEvents()
	return nil
}

func TestRun_FrameLimit(t *testing.T) {
	fx := newFixture()
	e := fx.engine(t, WithFrameLimit(5))

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(5), e.Frames())
}

func TestRun_ContextCancelled(t *testing.T) {
	fx := newFixture()
	fx.add(t, "sim", module.UpdateNormal, module.DestroyNormal)
	e := fx.engine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, e.Run(ctx))
	assert.Equal(t, uint64(0), e.Frames())
	assert.Equal(t, []string{"construct sim", "destroy sim"}, fx.j.Entries())
}

func TestRun_CloseFromAnotherGoroutine(t *testing.T) {
	fx := newFixture()
	ticked := make(chan struct{}, 1)
	require.NoError(t, fx.reg.Register("ticker", func(module.Resolver) (module.Module, error) {
		return tickModule{ticked}, nil
	}, nil, module.UpdateNormal, module.DestroyNormal))
	e := fx.engine(t)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	select {
	case <-ticked:
	case <-time.After(5 * time.Second):
		t.Fatal("loop never ran a frame")
	}
	e.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.GreaterOrEqual(t, e.Frames(), uint64(1))
}

type tickModule struct {
	ticked chan<- struct{}
}

func (m tickModule) Update(module.Frame) error {
	select {
	case m.ticked <- struct{}{}:
	default:
	}
	return nil
}

func TestRun_ModuleErrorTerminatesLoop(t *testing.T) {
	fx := newFixture()
	fx.add(t, "sim", module.UpdateNormal, module.DestroyNormal)
	fx.add(t, "after", module.UpdatePost, module.DestroyNormal)
	e := fx.engine(t, WithFrameLimit(10))
	require.NoError(t, e.Start())
	recording(t, e, "sim").UpdateErr = errors.New("nan in solver")

	err := e.Run(context.Background())

	require.Error(t, err)
	assert.True(t, module.HasCode(err, module.ErrCodeUpdateFailed))
	assert.Contains(t, err.Error(), "nan in solver")
	assert.Equal(t, uint64(1), e.Frames())
	assert.NotContains(t, fx.j.Entries(), "update after", "the failing phase aborts the frame")
	assert.Contains(t, fx.j.Entries(), "destroy sim", "shutdown still runs")
}

func TestRun_LayerErrorTerminatesLoop(t *testing.T) {
	fx := newFixture()
	e := fx.engine(t, WithFrameLimit(10))
	l := testutil.NewRecordingLayer(fx.j, "hud")
	l.UpdateErr = errors.New("font missing")
	e.PushOverlay(l)

	err := e.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer hud")
	assert.Equal(t, uint64(1), e.Frames())
}

func TestRun_CycleFailsStartup(t *testing.T) {
	fx := newFixture()
	fx.add(t, "a", module.UpdateNormal, module.DestroyNormal, "b")
	fx.add(t, "b", module.UpdateNormal, module.DestroyNormal, "a")
	e := fx.engine(t)

	err := e.Run(context.Background())

	require.Error(t, err)
	assert.True(t, module.IsCycleError(err))
	assert.Equal(t, uint64(0), e.Frames())
	assert.False(t, e.Running())
}

func TestShutdown_Order(t *testing.T) {
	fx := newFixture()
	fx.add(t, "assets", module.UpdateNormal, module.DestroyPost)
	fx.add(t, "scene", module.UpdateNormal, module.DestroyNormal, "assets")
	fx.add(t, "editor", module.UpdateNormal, module.DestroyPre)
	e := fx.engine(t, WithRenderer(journalRenderer{fx.j}))
	require.NoError(t, e.Start())
	e.PushLayer(testutil.NewRecordingLayer(fx.j, "game"))
	e.PushOverlay(testutil.NewRecordingLayer(fx.j, "imgui"))
	fx.j.Reset()

	require.NoError(t, e.Shutdown())

	assert.Equal(t, []string{
		"wait idle",
		"destroy editor",
		"detach game",
		"detach imgui",
		"destroy scene",
		"release game",
		"release imgui",
		"destroy assets",
	}, fx.j.Entries())
	assert.Equal(t, 0, e.Orchestrator().LiveCount())
	assert.Equal(t, 0, e.Layers().Len())

	require.NoError(t, e.Shutdown(), "second shutdown is a no-op")
	assert.Len(t, fx.j.Entries(), 8)
	assert.False(t, e.Submit(func() {}), "no tasks accepted after shutdown")
}

func TestShutdown_DiscardsPendingTasks(t *testing.T) {
	fx := newFixture()
	fx.add(t, "sim", module.UpdateNormal, module.DestroyNormal)
	var logs bytes.Buffer
	e := fx.engine(t, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, e.Start())

	ran := 0
	require.True(t, e.Submit(func() { ran++ }))
	require.True(t, e.Submit(func() { ran++ }))

	require.NoError(t, e.Shutdown())
	assert.Zero(t, ran, "pending tasks never run after shutdown")
	assert.Contains(t, logs.String(), "discarding pending main-thread tasks")
	assert.Contains(t, logs.String(), "count=2")
}

func TestShutdown_JoinsErrors(t *testing.T) {
	fx := newFixture()
	fx.add(t, "a", module.UpdateNormal, module.DestroyPre)
	fx.add(t, "b", module.UpdateNormal, module.DestroyPost)
	e := fx.engine(t)
	require.NoError(t, e.Start())
	recording(t, e, "a").DestroyErr = errors.New("leak a")
	recording(t, e, "b").DestroyErr = errors.New("leak b")
	l := testutil.NewRecordingLayer(fx.j, "L")
	l.CloseErr = errors.New("leak layer")
	e.PushLayer(l)

	err := e.Shutdown()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "leak a")
	assert.Contains(t, err.Error(), "leak layer")
	assert.Contains(t, err.Error(), "leak b")
	assert.True(t, module.HasCode(err, module.ErrCodeDestroyFailed))
}

func TestLifecycleHook(t *testing.T) {
	fx := newFixture()
	fx.add(t, "core", module.UpdatePre, module.DestroyPost)
	var got []string
	e := fx.engine(t, WithLifecycleHook(func(ev module.LifecycleEvent) {
		got = append(got, string(ev.Kind)+" "+string(ev.Module)+" "+ev.Stage.String())
	}))

	require.NoError(t, e.Start())
	require.NoError(t, e.Shutdown())

	assert.Equal(t, []string{"constructed core post", "destroyed core post"}, got)
}

func TestNew_InstallsEventCallback(t *testing.T) {
	fx := newFixture()
	e := fx.engine(t)
	require.NoError(t, e.Start())

	fx.win.Inject(event.WindowClose())
	fx.win.PollEvents()

	assert.False(t, e.Running(), "window events reach the engine")
	assert.Equal(t, "test-session", e.Session())
}
