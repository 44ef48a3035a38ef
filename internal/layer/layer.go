// Package layer implements the ordered stack of application layers.
//
// Layers are split into two partitions: normal layers, and overlays that
// always sit after every normal layer. PushLayer inserts at the boundary
// (after existing normal layers, before any overlay); PushOverlay appends.
//
// Update and render callbacks run front-to-back (push order). Events run
// back-to-front, so the most recently pushed overlay sees them first, and
// propagation stops once a layer marks the event handled.
//
// Teardown is two passes, interleaved by the engine with module destroy
// stages: Detach notifies every layer while the stack still owns them;
// Destroy releases them.
package layer

import (
	"github.com/roach88/kiln/internal/event"
	"github.com/roach88/kiln/internal/module"
)

// Layer is the capability set every layer implements.
type Layer interface {
	Name() string
	OnAttach()
	OnDetach()
	OnUpdate(f module.Frame) error
	OnEvent(e *event.Event)
}

// Renderer is the optional render-phase hook. It runs after the Render
// update phase, only while the surface is not minimized.
type Renderer interface {
	OnRender(f module.Frame) error
}

// Base is an embeddable no-op Layer.
type Base struct {
	LayerName string
}

func (b Base) Name() string { return b.LayerName }

func (Base) OnAttach() {}

func (Base) OnDetach() {}

func (Base) OnUpdate(module.Frame) error { return nil }

func (Base) OnEvent(*event.Event) {}
