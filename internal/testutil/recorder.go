package testutil

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/kiln/internal/event"
	"github.com/roach88/kiln/internal/layer"
	"github.com/roach88/kiln/internal/module"
)

// Journal is an append-only log of callback names, shared by the recording
// modules and layers of one test so their relative order can be asserted.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Add appends one formatted entry.
func (j *Journal) Add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

// Entries returns a copy of every entry in append order.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

// Reset clears the journal.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

// RecordingModule journals every Update and Destroy.
type RecordingModule struct {
	ID         module.ID
	Journal    *Journal
	Frames     []module.Frame
	UpdateErr  error
	DestroyErr error
}

// Update records "update <id>" and the frame, then returns UpdateErr.
func (m *RecordingModule) Update(f module.Frame) error {
	m.Journal.Add("update %s", m.ID)
	m.Frames = append(m.Frames, f)
	return m.UpdateErr
}

// Destroy records "destroy <id>" and returns DestroyErr.
func (m *RecordingModule) Destroy() error {
	m.Journal.Add("destroy %s", m.ID)
	return m.DestroyErr
}

// RecordingFactory returns a factory that records "construct <id>" and
// builds a RecordingModule.
func RecordingFactory(j *Journal, id module.ID) module.Factory {
	return func(module.Resolver) (module.Module, error) {
		j.Add("construct %s", id)
		return &RecordingModule{ID: id, Journal: j}, nil
	}
}

// RecordingLayer journals every layer callback.
//
// Handles lists the event kinds the layer marks handled.
type RecordingLayer struct {
	LayerName string
	Journal   *Journal
	Handles   []event.Kind
	UpdateErr error
	CloseErr  error
}

var (
	_ layer.Layer    = (*RecordingLayer)(nil)
	_ layer.Renderer = (*RecordingLayer)(nil)
)

// NewRecordingLayer creates a layer journaling into j.
func NewRecordingLayer(j *Journal, name string, handles ...event.Kind) *RecordingLayer {
	return &RecordingLayer{LayerName: name, Journal: j, Handles: handles}
}

func (l *RecordingLayer) Name() string { return l.LayerName }

func (l *RecordingLayer) OnAttach() { l.Journal.Add("attach %s", l.LayerName) }

func (l *RecordingLayer) OnDetach() { l.Journal.Add("detach %s", l.LayerName) }

func (l *RecordingLayer) OnUpdate(module.Frame) error {
	l.Journal.Add("layer update %s", l.LayerName)
	return l.UpdateErr
}

func (l *RecordingLayer) OnRender(module.Frame) error {
	l.Journal.Add("layer render %s", l.LayerName)
	return nil
}

func (l *RecordingLayer) OnEvent(e *event.Event) {
	l.Journal.Add("event %s %s", l.LayerName, e)
	if slices.Contains(l.Handles, e.Kind()) {
		e.Handled = true
	}
}

// Close records "release <name>" and returns CloseErr.
func (l *RecordingLayer) Close() error {
	l.Journal.Add("release %s", l.LayerName)
	return l.CloseErr
}
