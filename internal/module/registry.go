package module

import (
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/text/unicode/norm"
)

// Registrant is implemented by packages that contribute modules.
// Each registrant adds its descriptors to the registry during startup.
type Registrant interface {
	Register(r *Registry) error
}

// Registry maps module IDs to their descriptors.
//
// Thread-safety: none. The registry is populated during single-threaded
// startup and sealed when an Orchestrator is built from it; after that it is
// read-only.
type Registry struct {
	descriptors map[ID]*Descriptor
	order       []ID // registration order (sibling construction order)
	sealed      bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[ID]*Descriptor),
	}
}

// Register adds one module descriptor.
//
// Fails with ErrCodeDuplicateModule if id already exists, ErrCodeRegistrySealed
// after orchestration began, and ErrCodeInvalidDescriptor for a nil factory or
// an undeclared phase. Required IDs are not checked here: they may be
// registered later, and Lookup reports the ones that never are.
func (r *Registry) Register(id ID, factory Factory, requires []ID, update UpdatePhase, destroy DestroyPhase) error {
	id = normalizeID(id)
	if r.sealed {
		return newError(ErrCodeRegistrySealed, id, "registry is sealed once construction begins")
	}
	if id == "" {
		return newError(ErrCodeInvalidDescriptor, id, "module id is empty")
	}
	if _, exists := r.descriptors[id]; exists {
		return newError(ErrCodeDuplicateModule, id, "module already registered")
	}
	if factory == nil {
		return newError(ErrCodeInvalidDescriptor, id, "factory is nil")
	}
	if !update.Valid() {
		return newError(ErrCodeInvalidDescriptor, id, fmt.Sprintf("invalid update phase %s", update))
	}
	if !destroy.Valid() {
		return newError(ErrCodeInvalidDescriptor, id, fmt.Sprintf("invalid destroy phase %s", destroy))
	}

	reqs := make([]ID, len(requires))
	for i, req := range requires {
		reqs[i] = normalizeID(req)
	}

	r.descriptors[id] = &Descriptor{
		ID:       id,
		Factory:  factory,
		Requires: reqs,
		Update:   update,
		Destroy:  destroy,
	}
	r.order = append(r.order, id)

	slog.Debug("module registered",
		"module", id,
		"requires", reqs,
		"update_phase", update,
		"destroy_phase", destroy,
	)
	return nil
}

// MustRegister is Register for static registration tables; it panics on error.
func (r *Registry) MustRegister(id ID, factory Factory, requires []ID, update UpdatePhase, destroy DestroyPhase) {
	if err := r.Register(id, factory, requires, update, destroy); err != nil {
		panic(err)
	}
}

// RegisterAll runs every registrant against r, stopping at the first error.
func (r *Registry) RegisterAll(registrants ...Registrant) error {
	for _, reg := range registrants {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("register %T: %w", reg, err)
		}
	}
	return nil
}

// Require adds requirements to an already registered module, skipping ones
// it already has. Like Register, the required IDs need not exist yet.
func (r *Registry) Require(id ID, requires ...ID) error {
	id = normalizeID(id)
	if r.sealed {
		return newError(ErrCodeRegistrySealed, id, "registry is sealed once construction begins")
	}
	d, ok := r.descriptors[id]
	if !ok {
		return newError(ErrCodeUnknownModule, id, "cannot add requirements to an unregistered module")
	}
	for _, req := range requires {
		req = normalizeID(req)
		if !slices.Contains(d.Requires, req) {
			d.Requires = append(d.Requires, req)
		}
	}
	slog.Debug("module requirements extended", "module", id, "requires", d.Requires)
	return nil
}

// Lookup returns the descriptor for id, or ErrCodeUnknownModule.
func (r *Registry) Lookup(id ID) (*Descriptor, error) {
	id = normalizeID(id)
	d, ok := r.descriptors[id]
	if !ok {
		return nil, newError(ErrCodeUnknownModule, id, "unknown module")
	}
	return d, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id ID) bool {
	_, ok := r.descriptors[normalizeID(id)]
	return ok
}

// IDs returns the registered IDs in registration order.
func (r *Registry) IDs() []ID {
	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.order)
}

// Seal makes the registry read-only. Idempotent.
func (r *Registry) Seal() {
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// normalizeID applies NFC so visually identical IDs collide.
func normalizeID(id ID) ID {
	return ID(norm.NFC.String(string(id)))
}
