package module

import (
	"errors"
	"fmt"
)

// CycleReport describes one dependency cycle found by static analysis.
type CycleReport struct {
	Path    []ID   `json:"path"`    // [a b a]
	Message string `json:"message"` // human-readable description
}

// AnalyzeCycles reports every dependency cycle in the registry.
//
// EnsureConstructed stops at the first cycle it walks into; this runs Tarjan's
// strongly connected components over the whole required-set graph so that
// all cycles are reported at once. Self-requiring modules are reported as
// single-node cycles. An acyclic registry returns an empty slice.
//
// Node visiting follows registration order, so the output is deterministic.
func AnalyzeCycles(r *Registry) []CycleReport {
	graph := buildRequireGraph(r)
	sccs := tarjanSCC(r.IDs(), graph)

	reports := []CycleReport{}
	for _, scc := range sccs {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		path := reconstructCyclePath(scc, graph)
		reports = append(reports, CycleReport{
			Path:    path,
			Message: fmt.Sprintf("circular module dependency: %s", joinPath(path)),
		})
	}
	return reports
}

// MissingRequirements returns, per module, the required IDs that are not registered.
func MissingRequirements(r *Registry) map[ID][]ID {
	missing := make(map[ID][]ID)
	for _, id := range r.IDs() {
		desc, _ := r.Lookup(id)
		for _, req := range desc.Requires {
			if !r.Has(req) {
				missing[id] = append(missing[id], req)
			}
		}
	}
	return missing
}

// Validate checks that every requirement is registered and that the graph is
// acyclic. All problems are joined into one error.
func Validate(r *Registry) error {
	var errs []error
	for _, id := range r.IDs() {
		desc, _ := r.Lookup(id)
		for _, req := range desc.Requires {
			if !r.Has(req) {
				errs = append(errs, newError(ErrCodeUnknownModule, req, "required by "+string(id)+" but never registered"))
			}
		}
	}
	for _, c := range AnalyzeCycles(r) {
		errs = append(errs, newCycleError(c.Path))
	}
	return errors.Join(errs...)
}

// Order returns the construction order ConstructAll would produce, without
// running any factory.
func Order(r *Registry) ([]ID, error) {
	state := make(map[ID]visitState)
	var (
		order []ID
		path  []ID
	)

	var visit func(id ID) error
	visit = func(id ID) error {
		switch state[id] {
		case stateLive:
			return nil
		case stateInProgress:
			for i, p := range path {
				if p == id {
					cycle := append(append([]ID{}, path[i:]...), id)
					return newCycleError(cycle)
				}
			}
		}
		desc, err := r.Lookup(id)
		if err != nil {
			return err
		}
		state[id] = stateInProgress
		path = append(path, id)
		for _, req := range desc.Requires {
			if err := visit(req); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = stateLive
		order = append(order, id)
		return nil
	}

	for _, id := range r.IDs() {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// requireGraph maps module → modules it requires (registered ones only).
type requireGraph map[ID][]ID

func buildRequireGraph(r *Registry) requireGraph {
	graph := make(requireGraph, r.Len())
	for _, id := range r.IDs() {
		desc, _ := r.Lookup(id)
		edges := []ID{}
		for _, req := range desc.Requires {
			if r.Has(req) {
				edges = append(edges, req)
			}
		}
		graph[id] = edges
	}
	return graph
}

func hasSelfLoop(node ID, graph requireGraph) bool {
	for _, n := range graph[node] {
		if n == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components, visiting roots in the given order.
func tarjanSCC(nodes []ID, graph requireGraph) [][]ID {
	var (
		index   = 0
		stack   []ID
		indices = make(map[ID]int)
		lowlink = make(map[ID]int)
		onStack = make(map[ID]bool)
		sccs    [][]ID
	)

	var strongConnect func(ID)
	strongConnect = func(v ID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath returns a closed walk [start ... start] through the
// SCC, starting from its last-popped root. The DFS backtracks out of dead
// ends; every member is reachable and reaches start, so some expanded node
// has an edge back to start. Dead ends stay marked, keeping it linear.
func reconstructCyclePath(scc []ID, graph requireGraph) []ID {
	start := scc[len(scc)-1]

	members := make(map[ID]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	seen := map[ID]bool{start: true}
	path := []ID{start}
	var walk func(ID) bool
	walk = func(n ID) bool {
		for _, next := range graph[n] {
			if next == start {
				path = append(path, start)
				return true
			}
			if !members[next] || seen[next] {
				continue
			}
			seen[next] = true
			path = append(path, next)
			if walk(next) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	walk(start)
	return path
}
