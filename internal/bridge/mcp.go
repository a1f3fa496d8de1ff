package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"agentassert/internal/config"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpHandle wraps a stdio MCP client whose server subprocess provides
// the browser tools (navigate, DOM, performance, screenshot, network).
type mcpHandle struct {
	client *client.Client
	tools  []ToolDescriptor

	closeOnce sync.Once
	closeErr  error
}

func acquireMCP(ctx context.Context, cfg config.BridgeConfig) (Handle, error) {
	cli, err := client.NewStdioMCPClient(cfg.Command, cfg.EnvList(), cfg.Args...)
	if err != nil {
		return nil, &UnavailableError{Reason: "spawn bridge subprocess", Err: err}
	}

	h := &mcpHandle{client: cli}

	hctx, cancel := context.WithTimeout(ctx, cfg.GetHandshakeTimeout())
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentassert", Version: "0.1.0"}

	if _, err := cli.Initialize(hctx, initReq); err != nil {
		_ = h.Close()
		return nil, &UnavailableError{Reason: "initialize handshake", Err: err}
	}

	toolsRes, err := cli.ListTools(hctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = h.Close()
		return nil, &UnavailableError{Reason: "tool discovery", Err: err}
	}

	h.tools = make([]ToolDescriptor, 0, len(toolsRes.Tools))
	for _, t := range toolsRes.Tools {
		h.tools = append(h.tools, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaAsMap(t.InputSchema),
		})
	}

	log.Printf("bridge connected: %s (%d tools)", cfg.Command, len(h.tools))
	return h, nil
}

func (h *mcpHandle) Tools() []ToolDescriptor {
	return h.tools
}

func (h *mcpHandle) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := h.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}

	text := flattenContent(res.Content)
	if res.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

// Close terminates the subprocess. Exactly-once semantics; later calls
// return the first result.
func (h *mcpHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.client.Close()
	})
	return h.closeErr
}

// flattenContent joins the text blocks of a tool result; non-text blocks
// are summarized so binary payloads never reach the reasoning transcript.
func flattenContent(blocks []mcp.Content) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch c := block.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes base64]", c.MIMEType, len(c.Data)))
		default:
			parts = append(parts, fmt.Sprintf("[%T content]", block))
		}
	}
	return strings.Join(parts, "\n")
}

func schemaAsMap(schema mcp.ToolInputSchema) map[string]interface{} {
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]interface{}{"type": "object"}
	}
	return out
}
