package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceOf(entries ...string) []TraceEvent {
	trace := make([]TraceEvent, len(entries))
	for i, e := range entries {
		trace[i] = TraceEvent{Seq: i + 1, Entry: e}
	}
	return trace
}

func TestAssertTraceContains(t *testing.T) {
	trace := traceOf("frame 0", "update sim")

	assert.NoError(t, assertTraceContains(trace, Assertion{Entry: "update sim"}))

	err := assertTraceContains(trace, Assertion{Entry: "update physics"})
	require.Error(t, err)
	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertTraceContains, assertErr.Type)
	assert.Contains(t, assertErr.Expected, "update physics")
	assert.Equal(t, "not found in trace", assertErr.Actual)
}

func TestAssertTraceAbsent(t *testing.T) {
	trace := traceOf("frame 0", "layer render game")

	assert.NoError(t, assertTraceAbsent(trace, Assertion{Entry: "layer render hud"}))

	err := assertTraceAbsent(trace, Assertion{Entry: "layer render game"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found at seq 2")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := traceOf("frame 0", "update a", "update b", "frame 1", "update a", "update b")

	tests := []struct {
		name    string
		entries []string
		wantErr string
	}{
		{"in order", []string{"update a", "update b"}, ""},
		{"gaps allowed", []string{"frame 0", "update b", "frame 1"}, ""},
		{"repeat matches later occurrence", []string{"update a", "frame 1", "update a"}, ""},
		{"missing", []string{"update a", "update c"}, `"update c" not found`},
		{"out of order", []string{"frame 1", "frame 0"}, `"frame 0" not found`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(trace, Assertion{Entries: tt.entries})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertTraceCount(t *testing.T) {
	trace := traceOf("update sim", "frame 1", "update sim")

	assert.NoError(t, assertTraceCount(trace, Assertion{Entry: "update sim", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Entry: "update gpu", Count: 0}))

	err := assertTraceCount(trace, Assertion{Entry: "update sim", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func TestAssertLifecycleOrder(t *testing.T) {
	lifecycle := []string{"constructed a", "constructed b", "destroyed b", "destroyed a"}

	assert.NoError(t, assertLifecycleOrder(lifecycle, Assertion{Entries: []string{"constructed a", "destroyed a"}}))

	err := assertLifecycleOrder(lifecycle, Assertion{Entries: []string{"destroyed a", "destroyed b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"destroyed b" not found`)
}

func TestAssertRunError(t *testing.T) {
	failed := &Result{RunError: "frame 3: UPDATE_FAILED: module \"sim\""}

	assert.NoError(t, assertRunError(failed, Assertion{}))
	assert.NoError(t, assertRunError(failed, Assertion{Contains: "UPDATE_FAILED"}))
	assert.Error(t, assertRunError(failed, Assertion{Contains: "DESTROY_FAILED"}))

	err := assertRunError(&Result{}, Assertion{Contains: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run succeeded")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: `1 occurrences of "x"`,
		Actual:   "0 occurrences",
		Trace:    traceOf("frame 0", "update a"),
	}

	want := "trace_count: want 1 occurrences of \"x\", got 0 occurrences\n" +
		"trace:\n" +
		"    1  frame 0\n" +
		"    2  update a\n"
	assert.Equal(t, want, err.Error())

	err.Trace = nil
	assert.Equal(t, "trace_count: want 1 occurrences of \"x\", got 0 occurrences\n", err.Error())
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = traceOf("frame 0", "update sim")

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Entry: "update sim"},
		{Type: AssertTraceCount, Entry: "update sim", Count: 1},
		{Type: "bogus"},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `assertion[2]: unknown assertion type "bogus"`)

	result.RunError = "boom"
	errs = EvaluateAssertions(result, []Assertion{{Type: AssertTraceContains, Entry: "frame 0"}})
	assert.Equal(t, []string{"unexpected run error: boom"}, errs)

	errs = EvaluateAssertions(result, []Assertion{{Type: AssertRunError}})
	assert.Empty(t, errs)
}
