package module

import (
	"errors"
	"log/slog"
	"slices"
)

// visitState tracks a module through the construction walk.
type visitState int

const (
	stateUnvisited visitState = iota
	stateInProgress
	stateLive
	stateDestroying
	stateDestroyed
)

// LifecycleKind distinguishes lifecycle notifications.
type LifecycleKind string

const (
	LifecycleConstructed LifecycleKind = "constructed"
	LifecycleDestroyed   LifecycleKind = "destroyed"
)

// LifecycleEvent is emitted after a module is constructed or destroyed.
type LifecycleEvent struct {
	Kind   LifecycleKind
	Module ID
	Update UpdatePhase
	Stage  DestroyPhase
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithLifecycleHook registers a callback invoked after every construction and
// destruction. Hooks run on the main goroutine, in registration order.
func WithLifecycleHook(fn func(LifecycleEvent)) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, fn)
	}
}

// Orchestrator owns every live module instance.
//
// Thread-safety model: none. All methods must be called from the main
// goroutine.
type Orchestrator struct {
	registry  *Registry
	instances map[ID]Module
	state     map[ID]visitState
	path      []ID // in-progress chain of the current construction walk

	constructed []ID // construction order
	updates     map[UpdatePhase][]ID
	destroys    map[DestroyPhase][]ID

	logger *slog.Logger
	hooks  []func(LifecycleEvent)
}

// NewOrchestrator creates an orchestrator over reg and seals the registry.
func NewOrchestrator(reg *Registry, opts ...Option) *Orchestrator {
	reg.Seal()
	o := &Orchestrator{
		registry:  reg,
		instances: make(map[ID]Module),
		state:     make(map[ID]visitState),
		updates:   make(map[UpdatePhase][]ID),
		destroys:  make(map[DestroyPhase][]ID),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the sealed registry the orchestrator was built from.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// ConstructAll constructs every registered module, in registration order,
// dependencies first. Stops at the first error.
func (o *Orchestrator) ConstructAll() error {
	for _, id := range o.registry.IDs() {
		if err := o.EnsureConstructed(id); err != nil {
			return err
		}
	}
	o.logger.Info("modules constructed", "count", len(o.constructed), "order", o.constructed)
	return nil
}

// EnsureConstructed constructs id and, first, everything it requires.
//
// Idempotent: a live (or already destroyed) module is not constructed again.
// Revisiting a module that is still in progress means the required sets form
// a cycle; the walk fails with ErrCodeCircularDependency and the cycle path.
func (o *Orchestrator) EnsureConstructed(id ID) error {
	id = normalizeID(id)

	switch o.state[id] {
	case stateLive, stateDestroying, stateDestroyed:
		return nil
	case stateInProgress:
		return newCycleError(o.cyclePath(id))
	}

	desc, err := o.registry.Lookup(id)
	if err != nil {
		if len(o.path) > 0 {
			var me *Error
			if errors.As(err, &me) {
				me.Message = "required by " + string(o.path[len(o.path)-1]) + " but never registered"
			}
		}
		return err
	}

	o.state[id] = stateInProgress
	o.path = append(o.path, id)
	defer func() {
		o.path = o.path[:len(o.path)-1]
	}()

	for _, req := range desc.Requires {
		if err := o.EnsureConstructed(req); err != nil {
			o.state[id] = stateUnvisited
			return err
		}
	}

	inst, err := desc.Factory(o)
	if err != nil {
		o.state[id] = stateUnvisited
		return wrapError(ErrCodeFactoryFailed, id, "factory failed", err)
	}
	if inst == nil {
		o.state[id] = stateUnvisited
		return newError(ErrCodeFactoryFailed, id, "factory returned nil module")
	}

	o.instances[id] = inst
	o.state[id] = stateLive
	o.constructed = append(o.constructed, id)
	o.updates[desc.Update] = append(o.updates[desc.Update], id)
	o.destroys[desc.Destroy] = append(o.destroys[desc.Destroy], id)

	o.logger.Debug("module constructed",
		"module", id,
		"update_phase", desc.Update,
		"destroy_phase", desc.Destroy,
	)
	o.emit(LifecycleEvent{Kind: LifecycleConstructed, Module: id, Update: desc.Update, Stage: desc.Destroy})
	return nil
}

// cyclePath returns the in-progress chain starting at id, closed with id.
func (o *Orchestrator) cyclePath(id ID) []ID {
	start := slices.Index(o.path, id)
	if start < 0 {
		return []ID{id, id}
	}
	cycle := make([]ID, 0, len(o.path)-start+1)
	cycle = append(cycle, o.path[start:]...)
	return append(cycle, id)
}

// Resolve returns the live instance for id. Implements Resolver.
func (o *Orchestrator) Resolve(id ID) (Module, bool) {
	id = normalizeID(id)
	if o.state[id] != stateLive {
		return nil, false
	}
	m, ok := o.instances[id]
	return m, ok
}

// Live reports whether id has been constructed and not yet destroyed.
func (o *Orchestrator) Live(id ID) bool {
	return o.state[normalizeID(id)] == stateLive
}

// LiveCount returns the number of live modules.
func (o *Orchestrator) LiveCount() int {
	return len(o.instances)
}

// Constructed returns IDs in construction order, including destroyed ones.
func (o *Orchestrator) Constructed() []ID {
	return slices.Clone(o.constructed)
}

// PhaseModules returns the IDs recorded for an update phase, in run order.
func (o *Orchestrator) PhaseModules(phase UpdatePhase) []ID {
	return slices.Clone(o.updates[phase])
}

// StageModules returns the IDs recorded for a destroy phase.
func (o *Orchestrator) StageModules(stage DestroyPhase) []ID {
	return slices.Clone(o.destroys[stage])
}

// RunPhase calls Update on every live module recorded for phase, in
// construction order. The first error aborts the phase and is returned
// wrapped with ErrCodeUpdateFailed; there is no per-module isolation.
func (o *Orchestrator) RunPhase(phase UpdatePhase, f Frame) error {
	for _, id := range o.updates[phase] {
		inst, ok := o.Resolve(id)
		if !ok {
			continue
		}
		if err := inst.Update(f); err != nil {
			return wrapError(ErrCodeUpdateFailed, id, "update failed in phase "+phase.String(), err)
		}
	}
	return nil
}

// Destroy tears down every module recorded under stage.
//
// Before destroying a module, every other registered module that requires it
// and is declared in the same stage is destroyed first. Dependents declared
// in other stages are left alone. Destroying a module twice is a no-op.
//
// Destroy errors do not stop the walk; they are joined and returned.
func (o *Orchestrator) Destroy(stage DestroyPhase) error {
	var errs []error
	for _, id := range o.destroys[stage] {
		errs = append(errs, o.destroy(id, stage)...)
	}
	if len(errs) > 0 {
		o.logger.Warn("destroy stage finished with errors", "stage", stage, "errors", len(errs))
	}
	return errors.Join(errs...)
}

// DestroyAll runs every destroy stage in order.
func (o *Orchestrator) DestroyAll() error {
	var errs []error
	for _, stage := range DestroyPhases {
		if err := o.Destroy(stage); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) destroy(id ID, stage DestroyPhase) []error {
	if o.state[id] != stateLive {
		return nil
	}
	o.state[id] = stateDestroying

	var errs []error
	for _, other := range o.registry.IDs() {
		if other == id {
			continue
		}
		desc, err := o.registry.Lookup(other)
		if err != nil {
			continue
		}
		if desc.Destroy == stage && desc.DependsOn(id) {
			errs = append(errs, o.destroy(other, stage)...)
		}
	}

	inst := o.instances[id]
	delete(o.instances, id)
	o.state[id] = stateDestroyed

	if d, ok := inst.(Destroyer); ok {
		if err := d.Destroy(); err != nil {
			o.logger.Error("module destroy failed", "module", id, "stage", stage, "error", err)
			errs = append(errs, wrapError(ErrCodeDestroyFailed, id, "destroy failed", err))
		}
	}

	o.logger.Debug("module destroyed", "module", id, "stage", stage)
	desc, _ := o.registry.Lookup(id)
	ev := LifecycleEvent{Kind: LifecycleDestroyed, Module: id, Stage: stage}
	if desc != nil {
		ev.Update = desc.Update
	}
	o.emit(ev)
	return errs
}

func (o *Orchestrator) emit(ev LifecycleEvent) {
	for _, h := range o.hooks {
		h(ev)
	}
}
