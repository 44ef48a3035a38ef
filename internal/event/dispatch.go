package event

// Handler consumes an event and reports whether it handled it.
type Handler func(e *Event) bool

// Dispatcher offers one event to a sequence of kind-specific handlers.
//
//	d := event.NewDispatcher(e)
//	d.Dispatch(event.KindWindowClose, onClose)
//	d.Dispatch(event.KindWindowResize, onResize)
type Dispatcher struct {
	event *Event
}

// NewDispatcher wraps e for dispatch.
func NewDispatcher(e *Event) Dispatcher {
	return Dispatcher{event: e}
}

// Dispatch invokes fn if the event is not yet handled and its tag is kind.
//
// fn's result is ORed into Handled. The return value reports whether the
// kind matched (and fn ran), independent of what fn decided.
func (d Dispatcher) Dispatch(kind Kind, fn Handler) bool {
	if d.event.Handled {
		return false
	}
	if d.event.kind != kind {
		return false
	}
	handled := fn(d.event)
	d.event.Handled = d.event.Handled || handled
	return true
}

// Event returns the event being dispatched.
func (d Dispatcher) Event() *Event {
	return d.event
}
