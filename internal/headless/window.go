// Package headless provides window and renderer collaborators that need no
// display or GPU. Events are scripted instead of read from an OS queue.
package headless

import (
	"sync"

	"github.com/roach88/kiln/internal/event"
)

// Window is a scripted window.
//
// Inject queues events from any goroutine; PollEvents delivers them, in
// order, to the event callback. Delivery also applies each event to the
// window's own state (size, button state), so IsMouseButtonPressed reflects
// exactly the events delivered so far.
type Window struct {
	mu       sync.Mutex
	width    int
	height   int
	pending  []*event.Event
	buttons  map[event.MouseButton]bool
	keys     map[event.KeyCode]bool
	callback func(e *event.Event)
	polls    int
	closed   bool
}

// NewWindow creates a window with the given framebuffer size.
func NewWindow(width, height int) *Window {
	return &Window{
		width:   width,
		height:  height,
		buttons: make(map[event.MouseButton]bool),
		keys:    make(map[event.KeyCode]bool),
	}
}

// SetEventCallback installs the single event callback slot.
func (w *Window) SetEventCallback(fn func(e *event.Event)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = fn
}

// Inject queues events for the next PollEvents.
// Thread-safe.
func (w *Window) Inject(events ...*event.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, events...)
}

// PollEvents delivers every queued event to the callback. The callback runs
// without the window lock held, so it may call back into the window.
func (w *Window) PollEvents() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.polls++
	cb := w.callback
	w.mu.Unlock()

	for _, e := range batch {
		w.apply(e)
		if cb != nil {
			cb(e)
		}
	}
}

func (w *Window) apply(e *event.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch e.Kind() {
	case event.KindWindowResize:
		w.width, w.height = e.Size()
	case event.KindMouseButtonPressed:
		w.buttons[e.Button()] = true
	case event.KindMouseButtonReleased:
		w.buttons[e.Button()] = false
	case event.KindKeyPressed:
		w.keys[e.Key()] = true
	case event.KindKeyReleased:
		w.keys[e.Key()] = false
	case event.KindWindowClose:
		w.closed = true
	}
}

// IsMouseButtonPressed reports the button state as of the last delivered
// event.
func (w *Window) IsMouseButtonPressed(b event.MouseButton) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buttons[b]
}

// IsKeyPressed reports the key state as of the last delivered event.
func (w *Window) IsKeyPressed(k event.KeyCode) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keys[k]
}

// Size returns the framebuffer size.
func (w *Window) Size() (width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// Polls returns how many times PollEvents has run.
func (w *Window) Polls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polls
}

// Pending returns the number of injected, undelivered events.
func (w *Window) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// CloseRequested reports whether a WindowClose event has been delivered.
func (w *Window) CloseRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
