package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError describes one failed assertion. Trace, when set, is
// printed after the summary line.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s: want %s, got %s\n", e.Type, e.Expected, e.Actual)
	if len(e.Trace) == 0 {
		return buf.String()
	}
	buf.WriteString("trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  %3d  %s\n", ev.Seq, ev.Entry)
	}
	return buf.String()
}

// assertTraceContains checks that some trace entry equals the expected one.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, ev := range trace {
		if ev.Entry == assertion.Entry {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("entry %q", assertion.Entry),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceAbsent checks that no trace entry equals the given one.
func assertTraceAbsent(trace []TraceEvent, assertion Assertion) error {
	for _, ev := range trace {
		if ev.Entry == assertion.Entry {
			return &AssertionError{
				Type:     AssertTraceAbsent,
				Expected: fmt.Sprintf("no entry %q", assertion.Entry),
				Actual:   fmt.Sprintf("found at seq %d", ev.Seq),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceOrder checks that the entries appear in the given order.
// Entries don't need to be consecutive (intervening entries are allowed),
// and a repeated entry matches a later occurrence.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	entries := make([]string, len(trace))
	for i, ev := range trace {
		entries[i] = ev.Entry
	}
	if missing, ok := subsequence(entries, assertion.Entries); !ok {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("entries in order: %q", assertion.Entries),
			Actual:   fmt.Sprintf("%q not found after the preceding entries", missing),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks if the entry appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Entry == assertion.Entry {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %q", assertion.Count, assertion.Entry),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertLifecycleOrder checks the persisted lifecycle log the same way
// trace_order checks the trace.
func assertLifecycleOrder(lifecycle []string, assertion Assertion) error {
	if missing, ok := subsequence(lifecycle, assertion.Entries); !ok {
		return &AssertionError{
			Type:     AssertLifecycleOrder,
			Expected: fmt.Sprintf("lifecycle in order: %q", assertion.Entries),
			Actual:   fmt.Sprintf("%q not found in %q", missing, lifecycle),
		}
	}
	return nil
}

// assertRunError checks that the run failed, with Contains in the message
// when given.
func assertRunError(result *Result, assertion Assertion) error {
	if result.RunError == "" {
		return &AssertionError{
			Type:     AssertRunError,
			Expected: fmt.Sprintf("run error containing %q", assertion.Contains),
			Actual:   "run succeeded",
			Trace:    result.Trace,
		}
	}
	if !strings.Contains(result.RunError, assertion.Contains) {
		return &AssertionError{
			Type:     AssertRunError,
			Expected: fmt.Sprintf("run error containing %q", assertion.Contains),
			Actual:   result.RunError,
			Trace:    result.Trace,
		}
	}
	return nil
}

// subsequence reports whether want appears in have in order. On failure it
// returns the first entry that could not be matched.
func subsequence(have, want []string) (string, bool) {
	pos := 0
	for _, w := range want {
		i := slices.Index(have[pos:], w)
		if i < 0 {
			return w, false
		}
		pos += i + 1
	}
	return "", true
}

func onTrace(check func([]TraceEvent, Assertion) error) func(*Result, Assertion) error {
	return func(r *Result, a Assertion) error { return check(r.Trace, a) }
}

var checks = map[string]func(*Result, Assertion) error{
	AssertTraceContains: onTrace(assertTraceContains),
	AssertTraceAbsent:   onTrace(assertTraceAbsent),
	AssertTraceOrder:    onTrace(assertTraceOrder),
	AssertTraceCount:    onTrace(assertTraceCount),
	AssertRunError:      assertRunError,
	AssertLifecycleOrder: func(r *Result, a Assertion) error {
		return assertLifecycleOrder(r.Lifecycle, a)
	},
}

// EvaluateAssertions runs every assertion against result and returns one
// message per failure. A run error is a failure unless some run_error
// assertion expects it.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	expectsError := false

	for i, a := range assertions {
		check, ok := checks[a.Type]
		if !ok {
			failures = append(failures, fmt.Sprintf("assertion[%d]: unknown assertion type %q", i, a.Type))
			continue
		}
		expectsError = expectsError || a.Type == AssertRunError
		if err := check(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}

	if result.RunError != "" && !expectsError {
		failures = append(failures, "unexpected run error: "+result.RunError)
	}
	return failures
}
