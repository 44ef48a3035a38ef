package testutil

// FixedSessionGenerator returns the same session ID every time.
//
// Golden traces embed the session ID, so every run of a scenario must get
// the same one. Unlike engine.FixedGenerator, which hands out IDs in
// sequence and panics when exhausted, this never runs out.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator returning id.
//
// If id is empty, Generate returns "test-session".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed session ID.
//
// Implements engine.SessionIDGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
