package assertion

import (
	"context"
	"fmt"
	"log"
	"sync"

	"agentassert/internal/bridge"

	"github.com/google/uuid"
)

// State tracks where a session is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateReady
	StateEvaluating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiring:
		return "BRIDGE_ACQUIRING"
	case StateReady:
		return "READY"
	case StateEvaluating:
		return "EVALUATING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Invoker submits a rendered prompt to the reasoning service with the
// bridge's tools granted, and returns the raw textual response.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, handle bridge.Handle) (string, error)
}

// BridgeAcquirer acquires a fresh automation bridge handle for a session.
type BridgeAcquirer func(ctx context.Context) (bridge.Handle, error)

// Session pairs one automation bridge handle with one reasoning
// invoker for the scope of a single evaluation. It is never shared
// across concurrent callers; Close releases the bridge exactly once on
// every exit path.
type Session struct {
	id      string
	invoker Invoker

	mu     sync.Mutex
	state  State
	closed bool

	handle      bridge.Handle
	releaseOnce sync.Once
	releaseErr  error
}

// Open acquires the bridge and returns a session in READY. On acquire
// failure the returned error is the bridge's *UnavailableError and no
// resource is left behind.
func Open(ctx context.Context, acquire BridgeAcquirer, invoker Invoker) (*Session, error) {
	s := &Session{
		id:      uuid.NewString(),
		invoker: invoker,
		state:   StateAcquiring,
	}

	handle, err := acquire(ctx)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	s.handle = handle
	s.state = StateReady
	log.Printf("[session:%s] bridge acquired", s.id)
	return s, nil
}

// ID returns the session's correlation id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AssertCase evaluates one specification: build prompt, invoke the
// reasoning service, parse the verdict. Legal only in READY; any
// invoker or parser error moves the session to FAILED and propagates
// typed; a timeout or unparseable response is never converted into a
// failed verdict.
func (s *Session) AssertCase(ctx context.Context, spec TestSpecification) (Verdict, error) {
	s.mu.Lock()
	if s.closed || s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return Verdict{}, &InvalidStateError{Op: "assert_case", State: state}
	}
	s.state = StateEvaluating
	s.mu.Unlock()

	prompt := BuildPrompt(spec)

	raw, err := s.invoker.Invoke(ctx, prompt, s.handle)
	if err != nil {
		s.fail()
		return Verdict{}, fmt.Errorf("reasoning invocation: %w", err)
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		s.fail()
		return Verdict{}, err
	}

	s.mu.Lock()
	s.state = StateDone
	s.mu.Unlock()
	log.Printf("[session:%s] verdict passed=%v", s.id, verdict.Passed)
	return verdict, nil
}

// Close releases the bridge handle. Idempotent; the release itself runs
// exactly once regardless of which state the session reached.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.releaseOnce.Do(func() {
		if s.handle != nil {
			s.releaseErr = s.handle.Close()
			log.Printf("[session:%s] bridge released", s.id)
		}
	})
	return s.releaseErr
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
}

// EvaluateOnce runs the full session flow for a single specification:
// open, assert, close. It is the EvaluateFunc the cache and the runner
// use; the deferred Close guarantees bridge release on every path,
// caller cancellation included.
func EvaluateOnce(ctx context.Context, acquire BridgeAcquirer, invoker Invoker, spec TestSpecification) (Verdict, error) {
	sess, err := Open(ctx, acquire, invoker)
	if err != nil {
		return Verdict{}, err
	}
	defer sess.Close()

	return sess.AssertCase(ctx, spec)
}
