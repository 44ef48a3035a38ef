// Package event defines application and input events as a closed tagged
// variant, and the single-dispatch helper used to route them.
//
// An Event carries a Kind tag, category flags derived from the kind, an
// immutable payload and a mutable Handled flag. Once Handled is set no later
// target may consume the event, but dispatch is still offered: Dispatch simply
// refuses to invoke the handler.
package event

import "fmt"

// Kind is the event tag. The set is closed.
type Kind int

const (
	KindNone Kind = iota
	KindWindowClose
	KindWindowResize
	KindWindowIconify
	KindWindowFocus
	KindWindowMoved
	KindKeyPressed
	KindKeyReleased
	KindKeyTyped
	KindMouseButtonPressed
	KindMouseButtonReleased
	KindMouseMoved
	KindMouseScrolled
)

var kindNames = map[Kind]string{
	KindNone:                "None",
	KindWindowClose:         "WindowClose",
	KindWindowResize:        "WindowResize",
	KindWindowIconify:       "WindowIconify",
	KindWindowFocus:         "WindowFocus",
	KindWindowMoved:         "WindowMoved",
	KindKeyPressed:          "KeyPressed",
	KindKeyReleased:         "KeyReleased",
	KindKeyTyped:            "KeyTyped",
	KindMouseButtonPressed:  "MouseButtonPressed",
	KindMouseButtonReleased: "MouseButtonReleased",
	KindMouseMoved:          "MouseMoved",
	KindMouseScrolled:       "MouseScrolled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a kind name ("WindowResize", ...) to its tag.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && k != KindNone {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("unknown event kind %q", s)
}

// Category is a bit set of coarse event groups.
type Category uint8

const (
	CategoryApplication Category = 1 << iota
	CategoryInput
	CategoryKeyboard
	CategoryMouse
	CategoryMouseButton
)

func categoryOf(k Kind) Category {
	switch k {
	case KindWindowClose, KindWindowResize, KindWindowIconify, KindWindowFocus, KindWindowMoved:
		return CategoryApplication
	case KindKeyPressed, KindKeyReleased, KindKeyTyped:
		return CategoryInput | CategoryKeyboard
	case KindMouseButtonPressed, KindMouseButtonReleased:
		return CategoryInput | CategoryMouse | CategoryMouseButton
	case KindMouseMoved, KindMouseScrolled:
		return CategoryInput | CategoryMouse
	default:
		return 0
	}
}

// KeyCode identifies a keyboard key. Values are platform key codes.
type KeyCode int

// MouseButton identifies a mouse button.
type MouseButton int

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonRight
	MouseButtonMiddle

	// MouseButtonPrimary is the button whose release completes a drag-resize.
	MouseButtonPrimary = MouseButtonLeft
)

// Event is a single-use application or input event.
type Event struct {
	kind Kind

	// payload; which fields are meaningful depends on kind
	width, height int
	x, y          float64
	key           KeyCode
	button        MouseButton
	flag          bool // iconified, focused, key repeat

	Handled bool
}

func WindowClose() *Event { return &Event{kind: KindWindowClose} }

// WindowResize reports a new framebuffer size. Zero width or height means
// the window was minimized.
func WindowResize(width, height int) *Event {
	return &Event{kind: KindWindowResize, width: width, height: height}
}

func WindowIconify(iconified bool) *Event {
	return &Event{kind: KindWindowIconify, flag: iconified}
}

func WindowFocus(focused bool) *Event {
	return &Event{kind: KindWindowFocus, flag: focused}
}

func WindowMoved(x, y int) *Event {
	return &Event{kind: KindWindowMoved, x: float64(x), y: float64(y)}
}

func KeyPressed(key KeyCode, repeat bool) *Event {
	return &Event{kind: KindKeyPressed, key: key, flag: repeat}
}

func KeyReleased(key KeyCode) *Event {
	return &Event{kind: KindKeyReleased, key: key}
}

func KeyTyped(key KeyCode) *Event {
	return &Event{kind: KindKeyTyped, key: key}
}

func MouseButtonPressed(b MouseButton) *Event {
	return &Event{kind: KindMouseButtonPressed, button: b}
}

func MouseButtonReleased(b MouseButton) *Event {
	return &Event{kind: KindMouseButtonReleased, button: b}
}

func MouseMoved(x, y float64) *Event {
	return &Event{kind: KindMouseMoved, x: x, y: y}
}

func MouseScrolled(xOffset, yOffset float64) *Event {
	return &Event{kind: KindMouseScrolled, x: xOffset, y: yOffset}
}

// Kind returns the event tag.
func (e *Event) Kind() Kind { return e.kind }

// Category returns the category flags for the event's kind.
func (e *Event) Category() Category { return categoryOf(e.kind) }

// InCategory reports whether the event belongs to every group in c.
func (e *Event) InCategory(c Category) bool {
	return c != 0 && e.Category()&c == c
}

// Size returns the WindowResize payload.
func (e *Event) Size() (width, height int) { return e.width, e.height }

// Minimized reports whether a WindowResize has zero area.
func (e *Event) Minimized() bool {
	return e.kind == KindWindowResize && (e.width == 0 || e.height == 0)
}

// Iconified returns the WindowIconify payload.
func (e *Event) Iconified() bool { return e.kind == KindWindowIconify && e.flag }

// Focused returns the WindowFocus payload.
func (e *Event) Focused() bool { return e.kind == KindWindowFocus && e.flag }

// Position returns the WindowMoved / MouseMoved position, or the
// MouseScrolled offsets.
func (e *Event) Position() (x, y float64) { return e.x, e.y }

// Key returns the key of a keyboard event.
func (e *Event) Key() KeyCode { return e.key }

// Repeat reports whether a KeyPressed event is an auto-repeat.
func (e *Event) Repeat() bool { return e.kind == KindKeyPressed && e.flag }

// Button returns the button of a mouse button event.
func (e *Event) Button() MouseButton { return e.button }

// String renders the event for logs and traces.
func (e *Event) String() string {
	switch e.kind {
	case KindWindowResize:
		return fmt.Sprintf("%s: %d, %d", e.kind, e.width, e.height)
	case KindWindowIconify, KindWindowFocus:
		return fmt.Sprintf("%s: %t", e.kind, e.flag)
	case KindWindowMoved:
		return fmt.Sprintf("%s: %d, %d", e.kind, int(e.x), int(e.y))
	case KindKeyPressed:
		return fmt.Sprintf("%s: %d (repeat=%t)", e.kind, e.key, e.flag)
	case KindKeyReleased, KindKeyTyped:
		return fmt.Sprintf("%s: %d", e.kind, e.key)
	case KindMouseButtonPressed, KindMouseButtonReleased:
		return fmt.Sprintf("%s: %d", e.kind, e.button)
	case KindMouseMoved, KindMouseScrolled:
		return fmt.Sprintf("%s: %g, %g", e.kind, e.x, e.y)
	default:
		return e.kind.String()
	}
}
