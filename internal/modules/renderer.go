package modules

import (
	"io"

	"github.com/roach88/kiln/internal/engine"
	"github.com/roach88/kiln/internal/module"
)

// Presenter is implemented by render backends that present once per frame.
type Presenter interface {
	Present(f module.Frame) error
}

// RendererRegistrant registers the renderer module.
type RendererRegistrant struct {
	Backend engine.Renderer
}

func (rr RendererRegistrant) Register(r *module.Registry) error {
	return r.Register(RendererID, func(res module.Resolver) (module.Module, error) {
		// the surface belongs to the window; it must exist first
		if _, err := module.Get[*Window](res, WindowID); err != nil {
			return nil, err
		}
		return &Renderer{backend: rr.Backend}, nil
	}, []module.ID{WindowID}, module.UpdateRender, module.DestroyPost)
}

// Renderer presents a frame during UpdateRender, which the engine skips
// while minimized.
type Renderer struct {
	backend  engine.Renderer
	frames   uint64
	released bool
}

func (m *Renderer) Update(f module.Frame) error {
	m.frames++
	if p, ok := m.backend.(Presenter); ok {
		return p.Present(f)
	}
	return nil
}

// Frames returns how many frames were rendered.
func (m *Renderer) Frames() uint64 { return m.frames }

// Destroy releases the backend if it can be closed.
func (m *Renderer) Destroy() error {
	if m.released {
		return nil
	}
	m.released = true
	if c, ok := m.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
