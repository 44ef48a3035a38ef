package modules

import (
	"github.com/roach88/kiln/internal/event"
	"github.com/roach88/kiln/internal/module"
)

// KeyPoller is implemented by windows that expose keyboard state.
type KeyPoller interface {
	IsKeyPressed(k event.KeyCode) bool
}

// InputRegistrant registers the input module. Watch lists the keys whose
// state is sampled each frame.
type InputRegistrant struct {
	Watch []event.KeyCode
}

func (ir InputRegistrant) Register(r *module.Registry) error {
	return r.Register(InputID, func(res module.Resolver) (module.Module, error) {
		win, err := module.Get[*Window](res, WindowID)
		if err != nil {
			return nil, err
		}
		in := &Input{
			window: win,
			keys:   make(map[event.KeyCode][2]bool, len(ir.Watch)),
		}
		for _, k := range ir.Watch {
			in.keys[k] = [2]bool{}
		}
		return in, nil
	}, []module.ID{WindowID}, module.UpdatePre, module.DestroyNormal)
}

var mouseButtons = []event.MouseButton{
	event.MouseButtonLeft,
	event.MouseButtonRight,
	event.MouseButtonMiddle,
}

// Input samples button and key state once per frame so callers can ask for
// edges (pressed this frame) as well as levels.
//
// It runs in UpdatePre after the window module, so samples include the
// events polled this frame.
type Input struct {
	window  *Window
	buttons [3][2]bool // [button][previous, current]
	keys    map[event.KeyCode][2]bool
}

func (m *Input) Update(module.Frame) error {
	w := m.window.Platform()
	for i, b := range mouseButtons {
		m.buttons[i] = [2]bool{m.buttons[i][1], w.IsMouseButtonPressed(b)}
	}
	if kp, ok := w.(KeyPoller); ok {
		for k, s := range m.keys {
			m.keys[k] = [2]bool{s[1], kp.IsKeyPressed(k)}
		}
	}
	return nil
}

// ButtonDown reports whether b was held at the last sample.
func (m *Input) ButtonDown(b event.MouseButton) bool {
	if int(b) >= len(m.buttons) {
		return false
	}
	return m.buttons[b][1]
}

// ButtonPressed reports whether b went down between the last two samples.
func (m *Input) ButtonPressed(b event.MouseButton) bool {
	if int(b) >= len(m.buttons) {
		return false
	}
	return !m.buttons[b][0] && m.buttons[b][1]
}

// ButtonReleased reports whether b went up between the last two samples.
func (m *Input) ButtonReleased(b event.MouseButton) bool {
	if int(b) >= len(m.buttons) {
		return false
	}
	return m.buttons[b][0] && !m.buttons[b][1]
}

// KeyDown reports whether a watched key was held at the last sample.
func (m *Input) KeyDown(k event.KeyCode) bool {
	return m.keys[k][1]
}

// KeyPressed reports whether a watched key went down between the last two
// samples.
func (m *Input) KeyPressed(k event.KeyCode) bool {
	s := m.keys[k]
	return !s[0] && s[1]
}
