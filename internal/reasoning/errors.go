package reasoning

import "fmt"

// ErrorKind classifies reasoning-service failures so callers can report
// them distinctly.
type ErrorKind string

const (
	KindAuth     ErrorKind = "auth"
	KindQuota    ErrorKind = "quota"
	KindNetwork  ErrorKind = "network"
	KindProtocol ErrorKind = "protocol"
)

// ServiceError is any non-timeout failure while talking to the
// reasoning service: rejected credentials, exhausted quota, transport
// faults, or a malformed response.
type ServiceError struct {
	Kind   ErrorKind
	Status int
	Msg    string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("reasoning service %s error (HTTP %d): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("reasoning service %s error: %s", e.Kind, e.Msg)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// TimeoutError reports that an invocation exceeded its time budget. It
// is distinct from a failed verdict: the assertion was never judged.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("reasoning %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
