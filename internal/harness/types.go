package harness

// TraceEvent is one journal line from a scenario run.
type TraceEvent struct {
	Seq   int    `json:"seq"`
	Entry string `json:"entry"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held and no unexpected error occurred.
	Pass bool `json:"pass"`

	// Session is the session ID the engine ran under.
	Session string `json:"session"`

	// Frames is the number of frames that ran.
	Frames uint64 `json:"frames"`

	// Trace holds module, layer, renderer and frame-marker entries in order.
	Trace []TraceEvent `json:"trace"`

	// Lifecycle is the orchestrator's lifecycle log as persisted to the
	// session store: "<kind> <module>".
	Lifecycle []string `json:"lifecycle"`

	// RunError is the error the run ended with, if any.
	RunError string `json:"run_error,omitempty"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Lifecycle: []string{},
		Errors:    []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Entries returns the trace lines without sequence numbers.
func (r *Result) Entries() []string {
	out := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.Entry
	}
	return out
}
