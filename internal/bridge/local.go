package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"agentassert/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// eventBufferLimit bounds the network/console buffers so a chatty page
// cannot grow the transcript without bound.
const eventBufferLimit = 256

type networkEvent struct {
	URL     string `json:"url"`
	Method  string `json:"method,omitempty"`
	Status  int    `json:"status,omitempty"`
	Elapsed int64  `json:"elapsed_ms,omitempty"`
}

type consoleEvent struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// localBridge drives Chrome in-process through Rod and exposes the same
// tool surface an external MCP bridge would provide. It lets the harness
// run without a Node toolchain.
type localBridge struct {
	cfg     config.BridgeConfig
	browser *rod.Browser
	page    *rod.Page
	cancel  context.CancelFunc

	mu       sync.Mutex
	network  []networkEvent
	console  []consoleEvent
	requests map[proto.NetworkRequestID]networkEvent

	tools []localTool

	closeOnce sync.Once
	closeErr  error
}

type localTool struct {
	desc ToolDescriptor
	run  func(ctx context.Context, args map[string]interface{}) (string, error)
}

func acquireLocal(ctx context.Context, cfg config.BridgeConfig) (Handle, error) {
	launch := launcher.New().Headless(cfg.IsHeadless())
	if cfg.ChromeBin != "" {
		launch = launch.Bin(cfg.ChromeBin)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return nil, &UnavailableError{Reason: "launch chrome", Err: err}
	}

	// Event capture must outlive the caller's acquire context but stop at Close.
	streamCtx, cancel := context.WithCancel(context.Background())

	browser := rod.New().ControlURL(controlURL).Context(streamCtx)
	if err := browser.Connect(); err != nil {
		cancel()
		return nil, &UnavailableError{Reason: "connect to chrome", Err: err}
	}

	b := &localBridge{
		cfg:      cfg,
		browser:  browser,
		cancel:   cancel,
		requests: make(map[proto.NetworkRequestID]networkEvent),
	}

	incognito, err := browser.Incognito()
	if err != nil {
		_ = b.Close()
		return nil, &UnavailableError{Reason: "incognito context", Err: err}
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		return nil, &UnavailableError{Reason: "create page", Err: err}
	}
	b.page = page

	_ = proto.PerformanceEnable{}.Call(page)
	b.startEventStream(streamCtx)
	b.registerTools()

	log.Printf("local bridge connected at %s", controlURL)
	return b, nil
}

func (b *localBridge) Tools() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(b.tools))
	for _, t := range b.tools {
		out = append(out, t.desc)
	}
	return out
}

func (b *localBridge) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	for _, t := range b.tools {
		if t.desc.Name == name {
			return t.run(ctx, args)
		}
	}
	return "", fmt.Errorf("unknown tool: %s", name)
}

func (b *localBridge) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		if b.page != nil {
			_ = b.page.Close()
			b.page = nil
		}
		if b.browser != nil {
			b.closeErr = b.browser.Close()
			b.browser = nil
		}
	})
	return b.closeErr
}

// startEventStream records network responses and console output so the
// reasoning service can inspect them via the network/console tools.
func (b *localBridge) startEventStream(ctx context.Context) {
	wait := b.page.Context(ctx).EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.requests[ev.RequestID] = networkEvent{
				URL:    ev.Request.URL,
				Method: ev.Request.Method,
			}
		},
		func(ev *proto.NetworkResponseReceived) {
			b.mu.Lock()
			defer b.mu.Unlock()
			rec := b.requests[ev.RequestID]
			rec.Status = ev.Response.Status
			if rec.URL == "" && ev.Response != nil {
				rec.URL = ev.Response.URL
			}
			if ev.Response != nil && ev.Response.Timing != nil {
				rec.Elapsed = int64(ev.Response.Timing.ReceiveHeadersEnd)
			}
			delete(b.requests, ev.RequestID)
			b.network = appendBounded(b.network, rec)
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.console = appendBounded(b.console, consoleEvent{
				Level:   string(ev.Type),
				Message: stringifyConsoleArgs(ev.Args),
			})
		},
	)
	go wait()
}

func appendBounded[T any](buf []T, item T) []T {
	if len(buf) >= eventBufferLimit {
		buf = buf[1:]
	}
	return append(buf, item)
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := ""
	for _, a := range args {
		if a == nil {
			continue
		}
		if parts != "" {
			parts += " "
		}
		if !a.Value.Nil() {
			parts += a.Value.String()
		} else if a.Description != "" {
			parts += a.Description
		}
	}
	return parts
}

func (b *localBridge) registerTools() {
	b.tools = []localTool{
		{
			desc: ToolDescriptor{
				Name:        "navigate_page",
				Description: "Navigate the browser to a URL and wait for the page to load. Returns the final URL, title, and load time.",
				InputSchema: objectSchema(map[string]interface{}{
					"url": map[string]interface{}{"type": "string", "description": "Absolute URL to open"},
				}, []string{"url"}),
			},
			run: b.runNavigate,
		},
		{
			desc: ToolDescriptor{
				Name:        "snapshot_dom",
				Description: "Capture a lightweight snapshot of the visible DOM (tag, id, text, visibility) as JSON.",
				InputSchema: objectSchema(map[string]interface{}{
					"max_nodes": map[string]interface{}{"type": "integer", "description": "Maximum nodes to include (default 200)"},
				}, nil),
			},
			run: b.runSnapshotDOM,
		},
		{
			desc: ToolDescriptor{
				Name:        "take_screenshot",
				Description: "Capture a PNG screenshot of the current page and return the file path it was saved to.",
				InputSchema: objectSchema(map[string]interface{}{
					"full_page": map[string]interface{}{"type": "boolean", "description": "Capture the full scrollable page"},
				}, nil),
			},
			run: b.runScreenshot,
		},
		{
			desc: ToolDescriptor{
				Name:        "performance_metrics",
				Description: "Return Chrome performance metrics (task duration, layout counts, heap usage) for the current page.",
				InputSchema: objectSchema(nil, nil),
			},
			run: b.runPerformanceMetrics,
		},
		{
			desc: ToolDescriptor{
				Name:        "network_requests",
				Description: "Return the network requests observed since the last call, with method, status, and timing.",
				InputSchema: objectSchema(nil, nil),
			},
			run: b.runNetworkRequests,
		},
		{
			desc: ToolDescriptor{
				Name:        "console_messages",
				Description: "Return the console messages observed since the last call.",
				InputSchema: objectSchema(nil, nil),
			},
			run: b.runConsoleMessages,
		},
	}
}

func objectSchema(props map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{"type": "object"}
	if len(props) > 0 {
		schema["properties"] = props
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (b *localBridge) runNavigate(ctx context.Context, args map[string]interface{}) (string, error) {
	url := stringArg(args, "url")
	if url == "" {
		return "", fmt.Errorf("navigate_page: url is required")
	}

	page := b.page.Context(ctx).Timeout(b.cfg.GetNavigationTimeout())
	started := time.Now()
	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for load of %s: %w", url, err)
	}
	elapsed := time.Since(started)

	info, err := b.page.Info()
	title := ""
	finalURL := url
	if err == nil {
		title = info.Title
		finalURL = info.URL
	}

	return marshalToolPayload(map[string]interface{}{
		"url":     finalURL,
		"title":   title,
		"load_ms": elapsed.Milliseconds(),
	}), nil
}

func (b *localBridge) runSnapshotDOM(ctx context.Context, args map[string]interface{}) (string, error) {
	maxNodes := intArg(args, "max_nodes", 200)
	script := fmt.Sprintf(`
	() => {
		const nodes = Array.from(document.querySelectorAll('*')).slice(0, %d);
		return nodes.map((el, idx) => {
			const rect = el.getBoundingClientRect();
			const style = window.getComputedStyle(el);
			const visible = style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0;
			return {
				id: el.id || ('node_' + idx),
				tag: el.tagName,
				text: (el.innerText || '').slice(0, 256),
				visible
			};
		});
	}
	`, maxNodes)

	res, err := b.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           script,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return "", fmt.Errorf("snapshot dom: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal dom snapshot: %w", err)
	}
	return string(raw), nil
}

func (b *localBridge) runScreenshot(ctx context.Context, args map[string]interface{}) (string, error) {
	fullPage := boolArg(args, "full_page")

	data, err := b.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}

	dir := b.cfg.ScreenshotDir
	if dir == "" {
		dir = "data/screenshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("screenshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("shot_%s.png", uuid.NewString()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}

	return marshalToolPayload(map[string]interface{}{
		"path":  path,
		"bytes": len(data),
	}), nil
}

func (b *localBridge) runPerformanceMetrics(ctx context.Context, _ map[string]interface{}) (string, error) {
	res, err := proto.PerformanceGetMetrics{}.Call(b.page.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("performance metrics: %w", err)
	}
	metrics := make(map[string]float64, len(res.Metrics))
	for _, m := range res.Metrics {
		metrics[m.Name] = m.Value
	}
	return marshalToolPayload(metrics), nil
}

func (b *localBridge) runNetworkRequests(_ context.Context, _ map[string]interface{}) (string, error) {
	b.mu.Lock()
	events := b.network
	b.network = nil
	b.mu.Unlock()
	if events == nil {
		events = []networkEvent{}
	}
	return marshalToolPayload(events), nil
}

func (b *localBridge) runConsoleMessages(_ context.Context, _ map[string]interface{}) (string, error) {
	b.mu.Lock()
	events := b.console
	b.console = nil
	b.mu.Unlock()
	if events == nil {
		events = []consoleEvent{}
	}
	return marshalToolPayload(events), nil
}

func marshalToolPayload(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":"non-serializable payload: %v"}`, err)
	}
	return string(raw)
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}
