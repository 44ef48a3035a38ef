package headless

import (
	"sync"

	"github.com/roach88/kiln/internal/module"
)

// Size is a surface size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Renderer counts what a real backend would do.
type Renderer struct {
	mu        sync.Mutex
	resizes   []Size
	presents  int
	waitIdles int
	closed    bool

	// ResizeErr, when set, is returned by ResizeSurface.
	ResizeErr error
}

// NewRenderer creates an idle renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// ResizeSurface records a surface rebuild.
func (r *Renderer) ResizeSurface(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ResizeErr != nil {
		return r.ResizeErr
	}
	r.resizes = append(r.resizes, Size{Width: width, Height: height})
	return nil
}

// WaitIdle records a shutdown barrier.
func (r *Renderer) WaitIdle() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waitIdles++
	return nil
}

// Present records one presented frame.
func (r *Renderer) Present(module.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presents++
	return nil
}

// Close releases the renderer.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Resizes returns every surface rebuild in order.
func (r *Renderer) Resizes() []Size {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Size, len(r.resizes))
	copy(out, r.resizes)
	return out
}

// Presents returns the number of presented frames.
func (r *Renderer) Presents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presents
}

// WaitIdles returns how many times WaitIdle ran.
func (r *Renderer) WaitIdles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitIdles
}

// Closed reports whether Close has run.
func (r *Renderer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
