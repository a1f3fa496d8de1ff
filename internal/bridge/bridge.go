// Package bridge owns the lifecycle of a browser-automation channel and
// exposes its operations as tools the reasoning service may invoke.
//
// Two backends exist: an MCP server subprocess reached over stdio (the
// default, e.g. chrome-devtools-mcp), and an in-process Chrome bridge
// driven by Rod. Both present the same narrow Handle surface; callers
// never see which backend is active.
package bridge

import (
	"context"
	"fmt"

	"agentassert/internal/config"
)

// ToolDescriptor describes one automation operation offered to the
// reasoning service.
type ToolDescriptor struct {
	Name        string
	Description string
	// JSON Schema for the tool arguments ({"type":"object",...}).
	InputSchema map[string]interface{}
}

// Handle is one live browser-automation channel. A Handle is owned by
// exactly one session and must be released with Close; Close is
// idempotent and safe after a failed acquire.
type Handle interface {
	Tools() []ToolDescriptor
	Call(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Close() error
}

// UnavailableError reports that the bridge subprocess or channel could
// not be set up. It is fatal to the session and never retried here.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("automation bridge unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("automation bridge unavailable: %s", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Acquire launches the configured bridge backend and performs its
// startup handshake. The returned Handle owns the underlying resource
// exclusively until Close.
func Acquire(ctx context.Context, cfg config.BridgeConfig) (Handle, error) {
	switch cfg.Kind {
	case config.BridgeKindLocal:
		return acquireLocal(ctx, cfg)
	case config.BridgeKindMCP, "":
		return acquireMCP(ctx, cfg)
	default:
		return nil, &UnavailableError{Reason: fmt.Sprintf("unknown bridge kind %q", cfg.Kind)}
	}
}
