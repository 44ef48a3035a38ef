package layer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"slices"

	"github.com/roach88/kiln/internal/event"
	"github.com/roach88/kiln/internal/module"
)

// Stack owns the pushed layers.
//
// Thread-safety: none. Only the main goroutine touches the stack.
type Stack struct {
	layers      []Layer
	insertIndex int // first overlay; normal layers are layers[:insertIndex]
	detached    bool
	logger      *slog.Logger
}

// StackOption configures a Stack.
type StackOption func(*Stack)

// WithLogger sets the stack's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) StackOption {
	return func(s *Stack) {
		s.logger = l
	}
}

// NewStack creates an empty stack.
func NewStack(opts ...StackOption) *Stack {
	s := &Stack{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PushLayer inserts l after the existing normal layers and before any
// overlay, then attaches it.
func (s *Stack) PushLayer(l Layer) {
	s.layers = slices.Insert(s.layers, s.insertIndex, l)
	s.insertIndex++
	s.logger.Debug("layer pushed", "layer", l.Name(), "index", s.insertIndex-1)
	l.OnAttach()
}

// PushOverlay appends l after every layer, then attaches it.
func (s *Stack) PushOverlay(l Layer) {
	s.layers = append(s.layers, l)
	s.logger.Debug("overlay pushed", "layer", l.Name(), "index", len(s.layers)-1)
	l.OnAttach()
}

// PopLayer detaches and releases a normal layer. Reports false if l is not
// in the normal partition. See indexOf for how l is matched.
func (s *Stack) PopLayer(l Layer) (bool, error) {
	i := indexOf(s.layers[:s.insertIndex], l)
	if i < 0 {
		return false, nil
	}
	s.layers = slices.Delete(s.layers, i, i+1)
	s.insertIndex--
	return true, s.release(l)
}

// PopOverlay detaches and releases an overlay. Reports false if l is not an
// overlay in this stack.
func (s *Stack) PopOverlay(l Layer) (bool, error) {
	i := indexOf(s.layers[s.insertIndex:], l)
	if i < 0 {
		return false, nil
	}
	i += s.insertIndex
	s.layers = slices.Delete(s.layers, i, i+1)
	return true, s.release(l)
}

// indexOf finds l by identity. A layer whose dynamic type is not comparable
// (a value struct holding a slice or map) cannot be compared with ==, so it
// matches the first layer of the same type and name.
func indexOf(layers []Layer, l Layer) int {
	t := reflect.TypeOf(l)
	if t == nil {
		return -1
	}
	return slices.IndexFunc(layers, func(x Layer) bool {
		if reflect.TypeOf(x) != t {
			return false
		}
		if t.Comparable() {
			return x == l
		}
		return x.Name() == l.Name()
	})
}

func (s *Stack) release(l Layer) error {
	l.OnDetach()
	s.logger.Debug("layer popped", "layer", l.Name())
	if c, ok := l.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("release layer %s: %w", l.Name(), err)
		}
	}
	return nil
}

// Update calls OnUpdate front-to-back. The first error stops the pass.
func (s *Stack) Update(f module.Frame) error {
	for _, l := range s.layers {
		if err := l.OnUpdate(f); err != nil {
			return fmt.Errorf("layer %s: update: %w", l.Name(), err)
		}
	}
	return nil
}

// Render calls OnRender front-to-back on layers that implement Renderer.
func (s *Stack) Render(f module.Frame) error {
	for _, l := range s.layers {
		r, ok := l.(Renderer)
		if !ok {
			continue
		}
		if err := r.OnRender(f); err != nil {
			return fmt.Errorf("layer %s: render: %w", l.Name(), err)
		}
	}
	return nil
}

// Propagate offers e to every layer back-to-front, stopping once handled.
// Reports whether the event ended up handled.
func (s *Stack) Propagate(e *event.Event) bool {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if e.Handled {
			break
		}
		s.layers[i].OnEvent(e)
	}
	return e.Handled
}

// Detach calls OnDetach on every layer in stack order. Ownership is kept
// until Destroy. Calling Detach twice is a no-op.
func (s *Stack) Detach() {
	if s.detached {
		return
	}
	s.detached = true
	for _, l := range s.layers {
		l.OnDetach()
	}
	s.logger.Debug("layers detached", "count", len(s.layers))
}

// Destroy releases every layer in stack order: layers implementing
// io.Closer are closed. The stack is empty afterwards. Close errors are
// joined; every layer is released regardless.
func (s *Stack) Destroy() error {
	var errs []error
	for _, l := range s.layers {
		if c, ok := l.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("release layer %s: %w", l.Name(), err))
			}
		}
	}
	s.logger.Debug("layers destroyed", "count", len(s.layers))
	s.layers = nil
	s.insertIndex = 0
	s.detached = false
	return errors.Join(errs...)
}

// Layers returns the layers in stack order.
func (s *Stack) Layers() []Layer {
	return slices.Clone(s.layers)
}

// Len returns the number of layers (normal + overlay).
func (s *Stack) Len() int {
	return len(s.layers)
}

// NormalLen returns the number of normal (non-overlay) layers.
func (s *Stack) NormalLen() int {
	return s.insertIndex
}
