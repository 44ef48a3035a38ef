package module

import (
	"fmt"
	"slices"
	"time"
)

// ID identifies a module type. IDs are unique within a Registry.
type ID string

// UpdatePhase is the per-frame slot a module's Update runs in.
// The set is closed; phases run in declaration order.
type UpdatePhase int

const (
	UpdatePre UpdatePhase = iota
	UpdateNormal
	// UpdateRender only runs while the surface is not minimized.
	UpdateRender
	UpdatePost
)

// UpdatePhases lists every update phase in execution order.
var UpdatePhases = []UpdatePhase{UpdatePre, UpdateNormal, UpdateRender, UpdatePost}

func (p UpdatePhase) String() string {
	switch p {
	case UpdatePre:
		return "pre"
	case UpdateNormal:
		return "normal"
	case UpdateRender:
		return "render"
	case UpdatePost:
		return "post"
	default:
		return fmt.Sprintf("update_phase(%d)", int(p))
	}
}

// Valid reports whether p is one of the declared update phases.
func (p UpdatePhase) Valid() bool {
	return p >= UpdatePre && p <= UpdatePost
}

// ParseUpdatePhase maps a phase name ("pre", "normal", "render", "post") to its value.
func ParseUpdatePhase(s string) (UpdatePhase, error) {
	for _, p := range UpdatePhases {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown update phase %q", s)
}

// DestroyPhase is the shutdown slot a module is torn down in.
// Independent from UpdatePhase.
type DestroyPhase int

const (
	DestroyPre DestroyPhase = iota
	DestroyNormal
	DestroyPost
)

// DestroyPhases lists every destroy phase in shutdown order.
var DestroyPhases = []DestroyPhase{DestroyPre, DestroyNormal, DestroyPost}

func (p DestroyPhase) String() string {
	switch p {
	case DestroyPre:
		return "pre"
	case DestroyNormal:
		return "normal"
	case DestroyPost:
		return "post"
	default:
		return fmt.Sprintf("destroy_phase(%d)", int(p))
	}
}

// Valid reports whether p is one of the declared destroy phases.
func (p DestroyPhase) Valid() bool {
	return p >= DestroyPre && p <= DestroyPost
}

// ParseDestroyPhase maps a phase name ("pre", "normal", "post") to its value.
func ParseDestroyPhase(s string) (DestroyPhase, error) {
	for _, p := range DestroyPhases {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown destroy phase %q", s)
}

// Frame carries per-frame timing into Update.
type Frame struct {
	// Index counts frames from 0.
	Index uint64
	// Delta is the clamped time step since the previous frame.
	Delta time.Duration
	// Elapsed is the sum of every Delta so far (simulated time).
	Elapsed time.Duration
}

// Module is the capability every live module instance provides.
//
// Update must not block beyond the frame budget. A returned error is fatal to
// the frame: it propagates out of the frame loop and stops the application.
type Module interface {
	Update(f Frame) error
}

// Destroyer is implemented by modules that hold resources to release when
// their destroy phase runs.
type Destroyer interface {
	Destroy() error
}

// Resolver gives factories access to already-constructed modules.
type Resolver interface {
	Resolve(id ID) (Module, bool)
}

// Factory builds a module instance. Every module named in the descriptor's
// required set is live and resolvable when the factory runs.
type Factory func(r Resolver) (Module, error)

// Descriptor is the construction metadata registered for one module type.
type Descriptor struct {
	ID       ID
	Factory  Factory
	Requires []ID
	Update   UpdatePhase
	Destroy  DestroyPhase
}

// DependsOn reports whether id is in the descriptor's required set.
func (d *Descriptor) DependsOn(id ID) bool {
	return slices.Contains(d.Requires, id)
}

// Get resolves id and asserts it to T.
//
// Factories use it to fetch their dependencies:
//
//	win, err := module.Get[*WindowModule](r, "window")
func Get[T Module](r Resolver, id ID) (T, error) {
	var zero T
	m, ok := r.Resolve(id)
	if !ok {
		return zero, newError(ErrCodeUnknownModule, id, "module is not live")
	}
	t, ok := m.(T)
	if !ok {
		return zero, newError(ErrCodeUnknownModule, id, fmt.Sprintf("module has type %T, want %T", m, zero))
	}
	return t, nil
}
