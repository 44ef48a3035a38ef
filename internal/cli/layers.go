package cli

import (
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/kiln/internal/config"
	"github.com/roach88/kiln/internal/event"
	"github.com/roach88/kiln/internal/headless"
	"github.com/roach88/kiln/internal/layer"
	"github.com/roach88/kiln/internal/module"
)

// demoLayer is the layer `kiln run` pushes for each configured layer. It
// counts callbacks, logs events and consumes the kinds it is configured to
// handle.
type demoLayer struct {
	layer.Base
	handles []event.Kind
	logger  *slog.Logger

	updates int
	events  int
}

var _ layer.Renderer = (*demoLayer)(nil)

func newDemoLayer(cfg config.Layer, logger *slog.Logger) *demoLayer {
	return &demoLayer{
		Base:    layer.Base{LayerName: cfg.Name},
		handles: cfg.HandledKinds(),
		logger:  logger,
	}
}

func (l *demoLayer) OnAttach() {
	l.logger.Debug("layer attached", "layer", l.LayerName)
}

func (l *demoLayer) OnDetach() {
	l.logger.Debug("layer detached", "layer", l.LayerName, "updates", l.updates, "events", l.events)
}

func (l *demoLayer) OnUpdate(module.Frame) error {
	l.updates++
	return nil
}

func (l *demoLayer) OnRender(module.Frame) error {
	return nil
}

func (l *demoLayer) OnEvent(e *event.Event) {
	l.events++
	if slices.Contains(l.handles, e.Kind()) {
		e.Handled = true
		l.logger.Debug("event handled", "layer", l.LayerName, "event", e)
	}
}

// pacedRenderer emulates vsync on the headless renderer: Present sleeps
// until the next frame slot. A zero interval presents immediately.
type pacedRenderer struct {
	*headless.Renderer
	interval time.Duration
	next     time.Time
}

func newPacedRenderer(fps int) *pacedRenderer {
	r := &pacedRenderer{Renderer: headless.NewRenderer()}
	if fps > 0 {
		r.interval = time.Second / time.Duration(fps)
	}
	return r
}

func (r *pacedRenderer) Present(f module.Frame) error {
	if r.interval > 0 {
		now := time.Now()
		if r.next.IsZero() || now.After(r.next.Add(r.interval)) {
			// First frame, or fell behind by a whole slot: resynchronize.
			r.next = now
		}
		r.next = r.next.Add(r.interval)
		time.Sleep(time.Until(r.next))
	}
	return r.Renderer.Present(f)
}
