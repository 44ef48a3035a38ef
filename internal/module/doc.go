// Package module implements the module registry and the lifecycle orchestrator.
//
// A module is a long-lived subsystem (window, input, renderer, ...) declared
// once at startup with a Descriptor: a factory, the modules it requires, the
// update phase it runs in every frame, and the destroy phase it is torn down in.
//
// ARCHITECTURE:
//
// Registry:
// Populated during single-threaded startup, then sealed. Registration order is
// significant: it decides the construction order of siblings, and therefore
// the order of modules within each update phase.
//
// Orchestrator:
// Owns every live instance. Construction is a depth-first walk over the
// required set with tri-state visitation (unvisited / in-progress / done), so
// a dependency cycle fails fast with the offending path instead of recursing
// forever. Each constructed module is appended to the list of its update phase
// and the list of its destroy phase.
//
// Destruction is staged: Destroy(stage) walks the modules recorded under that
// stage and destroys, before each module, every other module that requires it
// AND is declared in the same destroy stage. Dependents declared in a later
// stage are not forced to die early.
//
// INVARIANTS:
//   - Every module is constructed at most once.
//   - A module is constructed strictly after all of its required modules.
//   - Within an update phase, modules run in construction order, every frame.
//   - The orchestrator and its instances are only touched by the main goroutine.
package module
