package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"agentassert/internal/config"
)

func TestAcquireUnknownKind(t *testing.T) {
	cfg := config.BridgeConfig{Kind: "carrier-pigeon"}

	_, err := Acquire(context.Background(), cfg)
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error type = %T, want *UnavailableError", err)
	}
	if !strings.Contains(unavailable.Reason, "carrier-pigeon") {
		t.Errorf("reason %q should name the unknown kind", unavailable.Reason)
	}
}

func TestAcquireSpawnFailure(t *testing.T) {
	cfg := config.BridgeConfig{
		Kind:             config.BridgeKindMCP,
		Command:          "/nonexistent/bridge-server",
		HandshakeTimeout: "2s",
	}

	_, err := Acquire(context.Background(), cfg)
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error type = %T, want *UnavailableError", err)
	}
}

func TestUnavailableErrorUnwrap(t *testing.T) {
	inner := errors.New("exec: not found")
	err := &UnavailableError{Reason: "spawn bridge subprocess", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("UnavailableError must unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "spawn bridge subprocess") {
		t.Errorf("message %q should carry the reason", err.Error())
	}
}

func TestFlattenContent(t *testing.T) {
	blocks := []mcp.Content{
		mcp.TextContent{Type: "text", Text: "first"},
		&mcp.TextContent{Type: "text", Text: "second"},
		mcp.ImageContent{Type: "image", MIMEType: "image/png", Data: "aGVsbG8="},
	}

	got := flattenContent(blocks)
	if !strings.Contains(got, "first") || !strings.Contains(got, "second") {
		t.Errorf("text blocks missing: %q", got)
	}
	if !strings.Contains(got, "image/png") {
		t.Errorf("image block should be summarized, got %q", got)
	}
	if strings.Contains(got, "aGVsbG8=") {
		t.Error("base64 payload must not reach the transcript")
	}
}

func TestSchemaAsMap(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"url": map[string]interface{}{"type": "string"},
		},
	}

	out := schemaAsMap(schema)
	if out["type"] != "object" {
		t.Errorf("type = %v", out["type"])
	}
	props, ok := out["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("properties = %T", out["properties"])
	}
	if _, ok := props["url"]; !ok {
		t.Error("url property missing after round trip")
	}
}
