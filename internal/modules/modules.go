// Package modules provides the built-in engine modules and their
// registrants.
//
//	window    pre     destroy post    polls platform events
//	input     pre     destroy normal  requires window; button/key edges
//	time      normal  destroy normal  simulation clock
//	renderer  render  destroy post    requires window; presents frames
//
// Collaborators (window, renderer backend) are captured by the registrant,
// never looked up globally.
package modules

import (
	"fmt"
	"io"
	"slices"

	"github.com/roach88/kiln/internal/engine"
	"github.com/roach88/kiln/internal/module"
)

// Built-in module IDs.
const (
	WindowID   module.ID = "window"
	InputID    module.ID = "input"
	TimeID     module.ID = "time"
	RendererID module.ID = "renderer"
)

// Names lists the built-in module IDs in registration order.
var Names = []module.ID{WindowID, InputID, TimeID, RendererID}

// Core returns the registrants for every built-in module.
func Core(w engine.Window, r engine.Renderer) []module.Registrant {
	return []module.Registrant{
		WindowRegistrant{Window: w},
		InputRegistrant{},
		TimeRegistrant{},
		RendererRegistrant{Backend: r},
	}
}

// Select returns the registrants for the named built-in modules, in the
// built-in registration order. Unknown names are an error.
func Select(names []string, w engine.Window, r engine.Renderer) ([]module.Registrant, error) {
	for _, n := range names {
		if !slices.Contains(Names, module.ID(n)) {
			return nil, fmt.Errorf("unknown built-in module %q", n)
		}
	}
	var out []module.Registrant
	for i, reg := range Core(w, r) {
		if slices.Contains(names, string(Names[i])) {
			out = append(out, reg)
		}
	}
	return out, nil
}

// WindowRegistrant registers the window module.
type WindowRegistrant struct {
	Window engine.Window
}

func (wr WindowRegistrant) Register(r *module.Registry) error {
	return r.Register(WindowID, func(module.Resolver) (module.Module, error) {
		if wr.Window == nil {
			return nil, fmt.Errorf("window module needs a window")
		}
		return &Window{window: wr.Window}, nil
	}, nil, module.UpdatePre, module.DestroyPost)
}

// Window pumps platform events once per frame. Polling fires the engine's
// event callback, so events are handled inside UpdatePre.
type Window struct {
	window engine.Window
}

func (m *Window) Update(module.Frame) error {
	m.window.PollEvents()
	return nil
}

// Platform returns the wrapped window.
func (m *Window) Platform() engine.Window {
	return m.window
}

// Destroy closes the platform window if it can be closed.
func (m *Window) Destroy() error {
	if c, ok := m.window.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
