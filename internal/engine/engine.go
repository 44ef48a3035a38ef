package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/kiln/internal/event"
	"github.com/roach88/kiln/internal/layer"
	"github.com/roach88/kiln/internal/module"
)

// Window is the platform window the engine receives events from.
//
// PollEvents is not called by the engine; the window module calls it from
// its own UpdatePre, which in turn fires the event callback.
type Window interface {
	SetEventCallback(fn func(e *event.Event))
	PollEvents()
	IsMouseButtonPressed(b event.MouseButton) bool
	Size() (width, height int)
}

// Renderer is the render backend the engine coordinates with.
type Renderer interface {
	// ResizeSurface rebuilds the presentation surface. Called once per
	// completed drag-resize, never while the primary button is held.
	ResizeSurface(width, height int) error
	// WaitIdle blocks until the GPU is idle. Called once at shutdown, before
	// any module is destroyed.
	WaitIdle() error
}

// Engine is the application context: it owns the orchestrator, the layer
// stack, the task queue and the frame timer.
//
// Thread-safety model:
//   - Submit(), Close(), Running(): safe from any goroutine
//   - everything else: the main goroutine only
type Engine struct {
	orch   *module.Orchestrator
	layers *layer.Stack
	queue  *TaskQueue
	timer  *frameTimer
	watch  stopwatch

	window   Window
	renderer Renderer
	clock    Clock
	sink     StatsSink
	logger   *slog.Logger
	session  string
	sessions SessionIDGenerator

	maxDelta   time.Duration
	frameLimit uint64
	hooks      []func(module.LifecycleEvent)

	running atomic.Bool
	started bool
	stopped bool

	frame      uint64 // index of the next frame
	minimized  bool
	resizing   bool
	resizeW    int
	resizeH    int
	lastStats  Stats
	statsCount int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWindow attaches the platform window. The engine installs itself as
// the window's event callback.
func WithWindow(w Window) Option {
	return func(e *Engine) {
		e.window = w
	}
}

// WithRenderer attaches the render backend.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) {
		e.renderer = r
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithMaxDelta sets the per-frame delta clamp.
//
// Default: 100ms (DefaultMaxDelta). Non-positive values keep the default.
func WithMaxDelta(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.maxDelta = d
		}
	}
}

// WithFrameLimit makes Run return after n frames. Zero means no limit.
func WithFrameLimit(n uint64) Option {
	return func(e *Engine) {
		e.frameLimit = n
	}
}

// WithStatsSink sets the receiver of once-per-second Stats snapshots.
func WithStatsSink(s StatsSink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithLogger sets the logger used by the engine, its orchestrator and its
// layer stack. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithLifecycleHook observes every module construction and destruction.
func WithLifecycleHook(fn func(module.LifecycleEvent)) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, fn)
	}
}

// WithSessionIDGenerator replaces the UUIDv7 session ID generator.
func WithSessionIDGenerator(g SessionIDGenerator) Option {
	return func(e *Engine) {
		e.sessions = g
	}
}

// New creates an Engine over reg. The registry is sealed: every module must
// be registered before this call. No module is constructed until Start.
func New(reg *module.Registry, opts ...Option) *Engine {
	e := &Engine{
		queue:    NewTaskQueue(),
		clock:    SystemClock{},
		logger:   slog.Default(),
		sessions: UUIDv7Generator{},
		maxDelta: DefaultMaxDelta,
	}
	for _, opt := range opts {
		opt(e)
	}

	orchOpts := []module.Option{module.WithLogger(e.logger)}
	for _, h := range e.hooks {
		orchOpts = append(orchOpts, module.WithLifecycleHook(h))
	}
	e.orch = module.NewOrchestrator(reg, orchOpts...)
	e.layers = layer.NewStack(layer.WithLogger(e.logger))
	e.timer = newFrameTimer(e.maxDelta)
	e.session = e.sessions.Generate()

	if e.window != nil {
		e.window.SetEventCallback(e.OnEvent)
	}
	return e
}

// Session returns the ID naming this engine run.
func (e *Engine) Session() string {
	return e.session
}

// Orchestrator returns the module orchestrator.
func (e *Engine) Orchestrator() *module.Orchestrator {
	return e.orch
}

// Layers returns the layer stack.
func (e *Engine) Layers() *layer.Stack {
	return e.layers
}

// PushLayer pushes l onto the normal partition of the layer stack.
func (e *Engine) PushLayer(l layer.Layer) {
	e.layers.PushLayer(l)
}

// PushOverlay pushes l onto the overlay partition of the layer stack.
func (e *Engine) PushOverlay(l layer.Layer) {
	e.layers.PushOverlay(l)
}

// Submit queues t to run on the main goroutine at the start of a later
// frame. Thread-safe. Returns false after shutdown.
func (e *Engine) Submit(t Task) bool {
	return e.queue.Submit(t)
}

// Queue returns the main-thread task queue.
func (e *Engine) Queue() *TaskQueue {
	return e.queue
}

// Minimized reports whether the surface currently has zero area or the
// window is iconified.
func (e *Engine) Minimized() bool {
	return e.minimized
}

// FPS returns the most recent frames-per-second snapshot. Zero until the
// first second has elapsed.
func (e *Engine) FPS() int {
	return e.timer.fps
}

// LastStats returns the most recent Stats snapshot and whether one exists.
func (e *Engine) LastStats() (Stats, bool) {
	return e.lastStats, e.statsCount > 0
}

// Frames returns how many frames have run.
func (e *Engine) Frames() uint64 {
	return e.frame
}

// OnEvent routes an event: built-in handlers first (close, iconify,
// resize), then the layer stack back-to-front until handled.
//
// Main goroutine only; normally invoked by the window's event callback
// while the window module polls.
func (e *Engine) OnEvent(ev *event.Event) {
	d := event.NewDispatcher(ev)
	d.Dispatch(event.KindWindowClose, e.onWindowClose)
	d.Dispatch(event.KindWindowIconify, e.onWindowIconify)
	d.Dispatch(event.KindWindowResize, e.onWindowResize)

	e.layers.Propagate(ev)
}

func (e *Engine) onWindowClose(*event.Event) bool {
	e.logger.Info("window close requested")
	e.running.Store(false)
	return true
}

func (e *Engine) onWindowIconify(ev *event.Event) bool {
	e.minimized = ev.Iconified()
	e.logger.Debug("window iconify", "iconified", e.minimized)
	return false
}

// onWindowResize treats zero area as minimized and swallows the event.
// Otherwise the resize is recorded and left for layers; the surface is
// rebuilt once the drag ends.
func (e *Engine) onWindowResize(ev *event.Event) bool {
	if ev.Minimized() {
		e.minimized = true
		e.logger.Debug("window minimized")
		return true
	}
	e.minimized = false
	e.resizing = true
	e.resizeW, e.resizeH = ev.Size()
	e.logger.Debug("window resize pending", "width", e.resizeW, "height", e.resizeH)
	return false
}

// resolveResize rebuilds the surface once the primary button is released.
// Without a window there is no drag to wait for.
func (e *Engine) resolveResize() error {
	if !e.resizing {
		return nil
	}
	if e.window != nil && e.window.IsMouseButtonPressed(event.MouseButtonPrimary) {
		return nil
	}
	e.resizing = false
	if e.renderer == nil {
		return nil
	}
	e.logger.Debug("resizing surface", "width", e.resizeW, "height", e.resizeH)
	return e.renderer.ResizeSurface(e.resizeW, e.resizeH)
}
