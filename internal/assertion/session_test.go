package assertion

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"agentassert/internal/bridge"
)

type fakeHandle struct {
	closes atomic.Int32
}

func (f *fakeHandle) Tools() []bridge.ToolDescriptor { return nil }

func (f *fakeHandle) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeHandle) Close() error {
	f.closes.Add(1)
	return nil
}

type fakeInvoker struct {
	response string
	err      error
}

func (f *fakeInvoker) Invoke(ctx context.Context, prompt string, handle bridge.Handle) (string, error) {
	return f.response, f.err
}

func acquirerFor(h bridge.Handle, err error) BridgeAcquirer {
	return func(ctx context.Context) (bridge.Handle, error) {
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

var testSpec = TestSpecification{
	TargetURL:      "https://example.com",
	Instructions:   "Check the page loads",
	ExpectedResult: "HTTP 200",
}

func TestSessionHappyPath(t *testing.T) {
	handle := &fakeHandle{}
	inv := &fakeInvoker{response: "ANALYSIS: fine\nCONCLUSION: TEST PASSED"}

	sess, err := Open(context.Background(), acquirerFor(handle, nil), inv)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.State() != StateReady {
		t.Fatalf("state after open = %v, want READY", sess.State())
	}
	if sess.ID() == "" {
		t.Error("session should have an id")
	}

	v, err := sess.AssertCase(context.Background(), testSpec)
	if err != nil {
		t.Fatalf("AssertCase: %v", err)
	}
	if !v.Passed {
		t.Error("verdict should be passed")
	}
	if sess.State() != StateDone {
		t.Errorf("state after assert = %v, want DONE", sess.State())
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := handle.closes.Load(); got != 1 {
		t.Errorf("bridge released %d times, want 1", got)
	}
}

func TestSessionOpenFailure(t *testing.T) {
	unavailable := &bridge.UnavailableError{Reason: "spawn bridge subprocess", Err: errors.New("no such file")}

	_, err := Open(context.Background(), acquirerFor(nil, unavailable), &fakeInvoker{})
	if err == nil {
		t.Fatal("expected acquire error")
	}
	var got *bridge.UnavailableError
	if !errors.As(err, &got) {
		t.Fatalf("error type = %T, want *bridge.UnavailableError", err)
	}
}

func TestSessionInvokerErrorFails(t *testing.T) {
	handle := &fakeHandle{}
	boom := errors.New("service exploded")
	sess, err := Open(context.Background(), acquirerFor(handle, nil), &fakeInvoker{err: boom})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	if _, err := sess.AssertCase(context.Background(), testSpec); !errors.Is(err, boom) {
		t.Fatalf("AssertCase error = %v, want wrapped %v", err, boom)
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %v, want FAILED", sess.State())
	}
}

func TestSessionUnparseableResponseFails(t *testing.T) {
	handle := &fakeHandle{}
	sess, err := Open(context.Background(), acquirerFor(handle, nil), &fakeInvoker{response: "no verdict here"})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	_, err = sess.AssertCase(context.Background(), testSpec)
	var unparseable *UnparseableVerdictError
	if !errors.As(err, &unparseable) {
		t.Fatalf("error type = %T, want *UnparseableVerdictError", err)
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %v, want FAILED", sess.State())
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	handle := &fakeHandle{}
	sess, err := Open(context.Background(), acquirerFor(handle, nil), &fakeInvoker{})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := sess.Close(); err != nil {
			t.Fatalf("Close %d: %v", i, err)
		}
	}
	if got := handle.closes.Load(); got != 1 {
		t.Errorf("bridge released %d times, want exactly 1", got)
	}
}

func TestSessionStateGuards(t *testing.T) {
	handle := &fakeHandle{}
	inv := &fakeInvoker{response: "CONCLUSION: TEST PASSED"}
	sess, err := Open(context.Background(), acquirerFor(handle, nil), inv)
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	if _, err := sess.AssertCase(context.Background(), testSpec); err != nil {
		t.Fatal(err)
	}

	// A second assertion on a DONE session is rejected.
	_, err = sess.AssertCase(context.Background(), testSpec)
	var invalid *InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("error type = %T, want *InvalidStateError", err)
	}
	if invalid.State != StateDone {
		t.Errorf("rejected in state %v, want DONE", invalid.State)
	}
}

func TestSessionClosedRejectsAssert(t *testing.T) {
	handle := &fakeHandle{}
	sess, err := Open(context.Background(), acquirerFor(handle, nil), &fakeInvoker{response: "TEST PASSED"})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}

	var invalid *InvalidStateError
	if _, err := sess.AssertCase(context.Background(), testSpec); !errors.As(err, &invalid) {
		t.Fatalf("closed session must reject assertions, got %v", err)
	}
}

func TestEvaluateOnceReleasesOnError(t *testing.T) {
	handle := &fakeHandle{}
	boom := errors.New("timeout")

	_, err := EvaluateOnce(context.Background(), acquirerFor(handle, nil), &fakeInvoker{err: boom}, testSpec)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if got := handle.closes.Load(); got != 1 {
		t.Errorf("bridge released %d times, want 1", got)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateAcquiring, "BRIDGE_ACQUIRING"},
		{StateReady, "READY"},
		{StateEvaluating, "EVALUATING"},
		{StateDone, "DONE"},
		{StateFailed, "FAILED"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
