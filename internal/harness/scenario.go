package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kiln/internal/event"
	"github.com/roach88/kiln/internal/module"
)

// Scenario describes one headless engine run and the assertions checked
// against its trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is a fixed session ID. Defaults to "test-session".
	Session string `yaml:"session,omitempty"`

	// Window is the initial headless window size. Defaults to 1280x720.
	Window *WindowSize `yaml:"window,omitempty"`

	// Builtins names built-in modules to register ahead of Modules.
	// Without "window" the harness polls the window itself before each frame.
	Builtins []string `yaml:"builtins,omitempty"`

	// Modules are scripted modules journaling their callbacks.
	Modules []ModuleSpec `yaml:"modules"`

	// Layers are pushed in order; overlays go above every normal layer.
	Layers []LayerSpec `yaml:"layers,omitempty"`

	// Frames is the maximum number of frames to step.
	Frames int `yaml:"frames"`

	// FrameTime is how far the clock advances between frames. Defaults to 16ms.
	FrameTime time.Duration `yaml:"frame_time,omitempty"`

	// MaxDelta overrides the delta clamp.
	MaxDelta time.Duration `yaml:"max_delta,omitempty"`

	// Events are injected into the window before their frame runs.
	Events []EventStep `yaml:"events,omitempty"`

	// Assertions validate the trace, lifecycle log and run error.
	Assertions []Assertion `yaml:"assertions"`
}

// WindowSize is a width/height pair.
type WindowSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ModuleSpec declares one scripted module.
type ModuleSpec struct {
	ID       string   `yaml:"id"`
	Requires []string `yaml:"requires,omitempty"`

	// Update and Destroy are phase names. Both default to "normal".
	Update  string `yaml:"update,omitempty"`
	Destroy string `yaml:"destroy,omitempty"`

	// FailUpdateAt makes Update fail on the frame with this index.
	FailUpdateAt *uint64 `yaml:"fail_update_at,omitempty"`

	// FailDestroy makes Destroy return an error.
	FailDestroy bool `yaml:"fail_destroy,omitempty"`
}

// LayerSpec declares one recording layer.
type LayerSpec struct {
	Name    string   `yaml:"name"`
	Overlay bool     `yaml:"overlay,omitempty"`
	Handles []string `yaml:"handles,omitempty"`
}

// EventStep is one event delivered before frame Frame runs. Payload fields
// not used by Kind are ignored.
type EventStep struct {
	Frame     int     `yaml:"frame"`
	Kind      string  `yaml:"kind"`
	Width     int     `yaml:"width,omitempty"`
	Height    int     `yaml:"height,omitempty"`
	Iconified bool    `yaml:"iconified,omitempty"`
	Focused   bool    `yaml:"focused,omitempty"`
	Key       int     `yaml:"key,omitempty"`
	Repeat    bool    `yaml:"repeat,omitempty"`
	Button    int     `yaml:"button,omitempty"`
	X         float64 `yaml:"x,omitempty"`
	Y         float64 `yaml:"y,omitempty"`
}

// Assertion validates the run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Entry is the trace line matched by trace_contains, trace_absent and
	// trace_count.
	Entry string `yaml:"entry,omitempty"`

	// Entries is the expected order for trace_order and lifecycle_order.
	Entries []string `yaml:"entries,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Contains is a substring of the expected run error (run_error).
	// Empty accepts any error.
	Contains string `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains  = "trace_contains"
	AssertTraceAbsent    = "trace_absent"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertLifecycleOrder = "lifecycle_order"
	AssertRunError       = "run_error"
)

// LoadScenario reads the scenario file at path. See ParseScenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes scenario YAML and validates it. Unknown keys are
// rejected, so "assertion:" for "assertions:" fails loudly.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	s := new(Scenario)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Frames <= 0 {
		return fmt.Errorf("frames must be positive")
	}
	if s.FrameTime < 0 {
		return fmt.Errorf("frame_time must not be negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Window != nil && (s.Window.Width < 0 || s.Window.Height < 0) {
		return fmt.Errorf("window size must not be negative")
	}

	for i, m := range s.Modules {
		if m.ID == "" {
			return fmt.Errorf("modules[%d]: id is required", i)
		}
		if _, _, err := m.phases(); err != nil {
			return fmt.Errorf("modules[%d]: %w", i, err)
		}
	}

	for i, l := range s.Layers {
		if l.Name == "" {
			return fmt.Errorf("layers[%d]: name is required", i)
		}
		if _, err := l.handledKinds(); err != nil {
			return fmt.Errorf("layers[%d]: %w", i, err)
		}
	}

	for i, ev := range s.Events {
		if ev.Frame < 0 || ev.Frame >= s.Frames {
			return fmt.Errorf("events[%d]: frame %d outside [0, %d)", i, ev.Frame, s.Frames)
		}
		if _, err := ev.build(); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceAbsent:
		if a.Entry == "" {
			return fmt.Errorf("assertions[%d]: entry is required for %s", index, a.Type)
		}
	case AssertTraceOrder, AssertLifecycleOrder:
		if len(a.Entries) == 0 {
			return fmt.Errorf("assertions[%d]: entries list is required for %s", index, a.Type)
		}
	case AssertTraceCount:
		if a.Entry == "" {
			return fmt.Errorf("assertions[%d]: entry is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertRunError:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (m ModuleSpec) phases() (module.UpdatePhase, module.DestroyPhase, error) {
	update, destroy := module.UpdateNormal, module.DestroyNormal
	var err error
	if m.Update != "" {
		if update, err = module.ParseUpdatePhase(m.Update); err != nil {
			return 0, 0, err
		}
	}
	if m.Destroy != "" {
		if destroy, err = module.ParseDestroyPhase(m.Destroy); err != nil {
			return 0, 0, err
		}
	}
	return update, destroy, nil
}

func (l LayerSpec) handledKinds() ([]event.Kind, error) {
	kinds := make([]event.Kind, 0, len(l.Handles))
	for _, h := range l.Handles {
		k, err := event.ParseKind(h)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// build converts the step into an event.
func (ev EventStep) build() (*event.Event, error) {
	kind, err := event.ParseKind(ev.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case event.KindWindowClose:
		return event.WindowClose(), nil
	case event.KindWindowResize:
		return event.WindowResize(ev.Width, ev.Height), nil
	case event.KindWindowIconify:
		return event.WindowIconify(ev.Iconified), nil
	case event.KindWindowFocus:
		return event.WindowFocus(ev.Focused), nil
	case event.KindWindowMoved:
		return event.WindowMoved(int(ev.X), int(ev.Y)), nil
	case event.KindKeyPressed:
		return event.KeyPressed(event.KeyCode(ev.Key), ev.Repeat), nil
	case event.KindKeyReleased:
		return event.KeyReleased(event.KeyCode(ev.Key)), nil
	case event.KindKeyTyped:
		return event.KeyTyped(event.KeyCode(ev.Key)), nil
	case event.KindMouseButtonPressed:
		return event.MouseButtonPressed(event.MouseButton(ev.Button)), nil
	case event.KindMouseButtonReleased:
		return event.MouseButtonReleased(event.MouseButton(ev.Button)), nil
	case event.KindMouseMoved:
		return event.MouseMoved(ev.X, ev.Y), nil
	case event.KindMouseScrolled:
		return event.MouseScrolled(ev.X, ev.Y), nil
	default:
		return nil, fmt.Errorf("event kind %s cannot be injected", kind)
	}
}
