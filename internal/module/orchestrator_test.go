package module

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records lifecycle calls across modules in one shared order.
type journal struct {
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

type recordingModule struct {
	id         ID
	j          *journal
	updateErr  error
	destroyErr error
}

func (m *recordingModule) Update(f Frame) error {
	m.j.add("update:%s", m.id)
	return m.updateErr
}

func (m *recordingModule) Destroy() error {
	m.j.add("destroy:%s", m.id)
	return m.destroyErr
}

// spec is a compact registration used by the table-driven tests.
type spec struct {
	id       ID
	requires []ID
	update   UpdatePhase
	destroy  DestroyPhase
}

func newTestOrchestrator(t *testing.T, j *journal, specs ...spec) *Orchestrator {
	t.Helper()
	reg := NewRegistry()
	for _, s := range specs {
		s := s
		err := reg.Register(s.id, func(r Resolver) (Module, error) {
			for _, req := range s.requires {
				if _, ok := r.Resolve(req); !ok {
					return nil, fmt.Errorf("%s: dependency %s not live", s.id, req)
				}
			}
			j.add("construct:%s", s.id)
			return &recordingModule{id: s.id, j: j}, nil
		}, s.requires, s.update, s.destroy)
		require.NoError(t, err)
	}
	return NewOrchestrator(reg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func indexOf(entries []string, entry string) int {
	for i, e := range entries {
		if e == entry {
			return i
		}
	}
	return -1
}

func TestEnsureConstructed_DependenciesFirst(t *testing.T) {
	j := &journal{}
	o := newTestOrchestrator(t, j,
		spec{id: "renderer", requires: []ID{"window", "device"}, update: UpdateRender, destroy: DestroyPost},
		spec{id: "window", update: UpdatePre, destroy: DestroyPost},
		spec{id: "device", requires: []ID{"window"}, update: UpdateNormal, destroy: DestroyPost},
		spec{id: "editor", requires: []ID{"renderer"}, update: UpdateNormal, destroy: DestroyPre},
	)

	require.NoError(t, o.ConstructAll())

	assert.Equal(t, []ID{"window", "device", "renderer", "editor"}, o.Constructed())
	assert.Equal(t, []string{
		"construct:window",
		"construct:device",
		"construct:renderer",
		"construct:editor",
	}, j.entries)
}

// Every module appears strictly after all of its required modules.
func TestEnsureConstructed_TopologicalProperty(t *testing.T) {
	specs := []spec{
		{id: "a", requires: []ID{"d", "b"}},
		{id: "b", requires: []ID{"c"}},
		{id: "c"},
		{id: "d", requires: []ID{"c", "e"}},
		{id: "e"},
		{id: "f", requires: []ID{"a", "e"}},
	}
	o := newTestOrchestrator(t, &journal{}, specs...)
	require.NoError(t, o.ConstructAll())

	order := o.Constructed()
	pos := make(map[ID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	require.Len(t, order, len(specs))
	for _, s := range specs {
		for _, req := range s.requires {
			assert.Less(t, pos[req], pos[s.id], "%s must be constructed before %s", req, s.id)
		}
	}
}

func TestEnsureConstructed_SiblingsFollowRegistrationOrder(t *testing.T) {
	o := newTestOrchestrator(t, &journal{},
		spec{id: "zeta"},
		spec{id: "alpha"},
		spec{id: "mid"},
	)
	require.NoError(t, o.ConstructAll())
	assert.Equal(t, []ID{"zeta", "alpha", "mid"}, o.Constructed())
}

func TestEnsureConstructed_Idempotent(t *testing.T) {
	j := &journal{}
	o := newTestOrchestrator(t, j,
		spec{id: "window"},
		spec{id: "input", requires: []ID{"window"}},
	)

	for i := 0; i < 3; i++ {
		require.NoError(t, o.EnsureConstructed("input"))
		require.NoError(t, o.EnsureConstructed("window"))
	}
	require.NoError(t, o.ConstructAll())

	assert.Equal(t, []string{"construct:window", "construct:input"}, j.entries)
	assert.Equal(t, 2, o.LiveCount())
}

func TestEnsureConstructed_TwoNodeCycle(t *testing.T) {
	o := newTestOrchestrator(t, &journal{},
		spec{id: "a", requires: []ID{"b"}},
		spec{id: "b", requires: []ID{"a"}},
	)

	err := o.ConstructAll()
	require.Error(t, err)
	assert.True(t, IsCycleError(err))

	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, []ID{"a", "b", "a"}, me.Path)
	assert.Contains(t, err.Error(), "a → b → a")
	assert.Equal(t, 0, o.LiveCount())

	// Deterministic: a second attempt fails the same way.
	err2 := o.ConstructAll()
	require.Error(t, err2)
	assert.Equal(t, err.Error(), err2.Error())
}

func TestEnsureConstructed_SelfCycle(t *testing.T) {
	o := newTestOrchestrator(t, &journal{}, spec{id: "loop", requires: []ID{"loop"}})

	err := o.EnsureConstructed("loop")
	require.Error(t, err)
	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, []ID{"loop", "loop"}, me.Path)
}

func TestEnsureConstructed_LongCycleReportsOnlyCycle(t *testing.T) {
	o := newTestOrchestrator(t, &journal{},
		spec{id: "root", requires: []ID{"x"}},
		spec{id: "x", requires: []ID{"y"}},
		spec{id: "y", requires: []ID{"z"}},
		spec{id: "z", requires: []ID{"x"}},
	)

	err := o.ConstructAll()
	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, ErrCodeCircularDependency, me.Code)
	assert.Equal(t, []ID{"x", "y", "z", "x"}, me.Path)
}

func TestEnsureConstructed_UnknownRequirement(t *testing.T) {
	o := newTestOrchestrator(t, &journal{}, spec{id: "renderer", requires: []ID{"window"}})

	err := o.ConstructAll()
	require.Error(t, err)
	assert.True(t, IsUnknownModuleError(err))
	assert.Contains(t, err.Error(), "required by renderer")
}

func TestEnsureConstructed_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("no gpu")
	require.NoError(t, reg.Register("device", func(Resolver) (Module, error) {
		return nil, boom
	}, nil, UpdateNormal, DestroyNormal))

	o := NewOrchestrator(reg)
	err := o.ConstructAll()
	require.Error(t, err)
	assert.Equal(t, ErrCodeFactoryFailed, CodeOf(err))
	assert.ErrorIs(t, err, boom)
	assert.False(t, o.Live("device"))
}

func TestEnsureConstructed_FactoryResolvesDependency(t *testing.T) {
	j := &journal{}
	reg := NewRegistry()
	require.NoError(t, reg.Register("window", func(Resolver) (Module, error) {
		return &recordingModule{id: "window", j: j}, nil
	}, nil, UpdatePre, DestroyPost))

	var got *recordingModule
	require.NoError(t, reg.Register("input", func(r Resolver) (Module, error) {
		w, err := Get[*recordingModule](r, "window")
		if err != nil {
			return nil, err
		}
		got = w
		return &recordingModule{id: "input", j: j}, nil
	}, []ID{"window"}, UpdatePre, DestroyNormal))

	o := NewOrchestrator(reg)
	require.NoError(t, o.ConstructAll())
	require.NotNil(t, got)
	assert.Equal(t, ID("window"), got.id)
}

func TestGet_WrongType(t *testing.T) {
	o := newTestOrchestrator(t, &journal{}, spec{id: "window"})
	require.NoError(t, o.ConstructAll())

	type other struct{ Module }
	_, err := Get[*other](o, "window")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want")

	_, err = Get[*recordingModule](o, "missing")
	assert.True(t, IsUnknownModuleError(err))
}

// Pre-phase modules update before Normal-phase modules regardless of
// registration order across phases.
func TestRunPhase_PhaseOrder(t *testing.T) {
	j := &journal{}
	o := newTestOrchestrator(t, j,
		spec{id: "post1", update: UpdatePost},
		spec{id: "normal1", update: UpdateNormal},
		spec{id: "pre1", update: UpdatePre},
		spec{id: "normal2", update: UpdateNormal},
		spec{id: "pre2", update: UpdatePre},
	)
	require.NoError(t, o.ConstructAll())
	j.entries = nil

	f := Frame{Index: 1}
	require.NoError(t, o.RunPhase(UpdatePre, f))
	require.NoError(t, o.RunPhase(UpdateNormal, f))
	require.NoError(t, o.RunPhase(UpdatePost, f))

	assert.Equal(t, []string{
		"update:pre1",
		"update:pre2",
		"update:normal1",
		"update:normal2",
		"update:post1",
	}, j.entries)
}

func TestRunPhase_StableAcrossFrames(t *testing.T) {
	j := &journal{}
	o := newTestOrchestrator(t, j,
		spec{id: "b", update: UpdateNormal},
		spec{id: "a", update: UpdateNormal},
	)
	require.NoError(t, o.ConstructAll())
	j.entries = nil

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, o.RunPhase(UpdateNormal, Frame{Index: i}))
	}
	assert.Equal(t, []string{
		"update:b", "update:a",
		"update:b", "update:a",
		"update:b", "update:a",
	}, j.entries)
}

func TestRunPhase_ErrorAbortsPhase(t *testing.T) {
	j := &journal{}
	boom := errors.New("physics exploded")
	reg := NewRegistry()
	for _, id := range []ID{"first", "broken", "never"} {
		id := id
		require.NoError(t, reg.Register(id, func(Resolver) (Module, error) {
			m := &recordingModule{id: id, j: j}
			if id == "broken" {
				m.updateErr = boom
			}
			return m, nil
		}, nil, UpdateNormal, DestroyNormal))
	}
	o := NewOrchestrator(reg)
	require.NoError(t, o.ConstructAll())

	err := o.RunPhase(UpdateNormal, Frame{Index: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ErrCodeUpdateFailed, CodeOf(err))
	assert.Equal(t, []string{"update:first", "update:broken"}, j.entries)
}

// Given A requires B, both destroy-phase Normal, destroying Normal destroys A before B.
func TestDestroy_DependentBeforeDependency(t *testing.T) {
	j := &journal{}
	o := newTestOrchestrator(t, j,
		spec{id: "b", destroy: DestroyNormal},
		spec{id: "a", requires: []ID{"b"}, destroy: DestroyNormal},
	)
	require.NoError(t, o.ConstructAll())
	j.entries = nil

	require.NoError(t, o.Destroy(DestroyNormal))
	assert.Equal(t, []string{"destroy:a", "destroy:b"}, j.entries)
	assert.False(t, o.Live("a"))
	assert.False(t, o.Live("b"))
}

func TestDestroy_TransitiveDependentsInSameStage(t *testing.T) {
	j := &journal{}
	o := newTestOrchestrator(t, j,
		spec{id: "core", destroy: DestroyNormal},
		spec{id: "mid", requires: []ID{"core"}, destroy: DestroyNormal},
		spec{id: "leaf", requires: []ID{"mid"}, destroy: DestroyNormal},
	)
	require.NoError(t, o.ConstructAll())
	j.entries = nil

	require.NoError(t, o.Destroy(DestroyNormal))
	assert.Equal(t, []string{"destroy:leaf", "destroy:mid", "destroy:core"}, j.entries)
}

// A dependent in a later stage is not forced to die with its dependency.
func TestDestroy_PhaseScopedRelaxation(t *testing.T) {
	j := &journal{}
	o := newTestOrchestrator(t, j,
		spec{id: "device", destroy: DestroyNormal},
		spec{id: "swapchain", requires: []ID{"device"}, destroy: DestroyPost},
	)
	require.NoError(t, o.ConstructAll())
	j.entries = nil

	require.NoError(t, o.Destroy(DestroyNormal))
	assert.Equal(t, []string{"destroy:device"}, j.entries)
	assert.True(t, o.Live("swapchain"))

	require.NoError(t, o.Destroy(DestroyPost))
	assert.Equal(t, []string{"destroy:device", "destroy:swapchain"}, j.entries)
}

func TestDestroy_TwiceIsNoop(t *testing.T) {
	j := &journal{}
	o := newTestOrchestrator(t, j, spec{id: "a", destroy: DestroyPre})
	require.NoError(t, o.ConstructAll())
	j.entries = nil

	require.NoError(t, o.Destroy(DestroyPre))
	require.NoError(t, o.Destroy(DestroyPre))
	assert.Equal(t, []string{"destroy:a"}, j.entries)

	// A destroyed module is not reconstructed and no longer updates.
	require.NoError(t, o.EnsureConstructed("a"))
	require.NoError(t, o.RunPhase(UpdatePre, Frame{Index: 1}))
	assert.Equal(t, []string{"destroy:a"}, j.entries)
}

func TestDestroy_StagesInOrder(t *testing.T) {
	j := &journal{}
	o := newTestOrchestrator(t, j,
		spec{id: "late", destroy: DestroyPost},
		spec{id: "early", destroy: DestroyPre},
		spec{id: "middle", destroy: DestroyNormal},
	)
	require.NoError(t, o.ConstructAll())
	j.entries = nil

	require.NoError(t, o.DestroyAll())
	assert.Equal(t, []string{"destroy:early", "destroy:middle", "destroy:late"}, j.entries)
	assert.Equal(t, 0, o.LiveCount())
}

func TestDestroy_ErrorsAreJoinedAndWalkContinues(t *testing.T) {
	j := &journal{}
	boom := errors.New("leak")
	reg := NewRegistry()
	for _, id := range []ID{"a", "b"} {
		id := id
		require.NoError(t, reg.Register(id, func(Resolver) (Module, error) {
			return &recordingModule{id: id, j: j, destroyErr: boom}, nil
		}, nil, UpdateNormal, DestroyNormal))
	}
	o := NewOrchestrator(reg)
	require.NoError(t, o.ConstructAll())

	err := o.Destroy(DestroyNormal)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"destroy:a", "destroy:b"}, j.entries)
}

func TestLifecycleHook(t *testing.T) {
	var events []LifecycleEvent
	reg := NewRegistry()
	reg.MustRegister("w", func(Resolver) (Module, error) {
		return &recordingModule{id: "w", j: &journal{}}, nil
	}, nil, UpdatePre, DestroyPost)

	o := NewOrchestrator(reg, WithLifecycleHook(func(ev LifecycleEvent) {
		events = append(events, ev)
	}))
	require.NoError(t, o.ConstructAll())
	require.NoError(t, o.DestroyAll())

	require.Len(t, events, 2)
	assert.Equal(t, LifecycleEvent{Kind: LifecycleConstructed, Module: "w", Update: UpdatePre, Stage: DestroyPost}, events[0])
	assert.Equal(t, LifecycleEvent{Kind: LifecycleDestroyed, Module: "w", Update: UpdatePre, Stage: DestroyPost}, events[1])
}
