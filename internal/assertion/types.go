// Package assertion implements the core of the harness: test
// specifications, deterministic prompt rendering, verdict parsing,
// run-scoped deduplication, and the session state machine that ties the
// automation bridge and the reasoning service together.
package assertion

import "fmt"

// TestSpecification describes one web expectation to evaluate. It is an
// immutable value created by the caller before a session opens.
type TestSpecification struct {
	TargetURL      string `json:"target_url"`
	Instructions   string `json:"instructions"`
	ExpectedResult string `json:"expected_result"`
}

// Verdict is the typed outcome of one evaluated specification. Message
// carries the reasoning service's full explanation, including failure
// reasons and suggestions when Passed is false.
//
// A Verdict is only ever constructed by parsing a completed reasoning
// response; no code path fabricates one from partial or absent data.
type Verdict struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// UnparseableVerdictError reports that a reasoning response carried no
// recognizable conclusion marker. This is a protocol violation distinct
// from a failed assertion; it never degrades into a default verdict.
type UnparseableVerdictError struct {
	Response string
}

func (e *UnparseableVerdictError) Error() string {
	return fmt.Sprintf("no conclusion marker in reasoning response (%d bytes)", len(e.Response))
}

// InvalidStateError reports a session operation attempted outside the
// state that permits it. It indicates misuse of the orchestrator, not a
// runtime fault.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is not allowed in session state %s", e.Op, e.State)
}
