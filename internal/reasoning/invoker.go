package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"agentassert/internal/bridge"
	"agentassert/internal/config"
	"agentassert/internal/telemetry"
)

const tracerName = "agentassert/reasoning"

// Invoker runs the reasoning loop for one prompt: submit, execute any
// requested automation tools through the bridge, feed results back, and
// repeat until the service answers in prose or the round budget runs
// out. It is the only place in a session that suspends on the service.
type Invoker struct {
	client   *Client
	cfg      config.ReasoningConfig
	recorder *telemetry.Recorder
}

// NewInvoker builds an invoker. recorder may be nil.
func NewInvoker(client *Client, cfg config.ReasoningConfig, recorder *telemetry.Recorder) *Invoker {
	return &Invoker{client: client, cfg: cfg, recorder: recorder}
}

// Invoke submits the prompt with the bridge's tools granted and returns
// the service's final textual response. The whole loop runs under the
// configured invocation timeout; expiry surfaces as *TimeoutError, never
// as a verdict.
func (iv *Invoker) Invoke(ctx context.Context, prompt string, handle bridge.Handle) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, iv.cfg.GetInvokeTimeout())
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, tracerName, "reasoning.invoke")
	defer span.End()

	tools := toolSpecsFor(handle.Tools())
	messages := []Message{{Role: "user", Content: prompt}}

	iv.recorder.Log("invoke", "", map[string]interface{}{
		"prompt_bytes": len(prompt),
		"tools":        len(tools),
	})

	for round := 0; round < iv.cfg.MaxToolRounds; round++ {
		reply, err := iv.client.Chat(ctx, messages, tools)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = &TimeoutError{Op: "invocation", Err: ctx.Err()}
			}
			telemetry.RecordError(span, err)
			return "", err
		}

		if len(reply.ToolCalls) == 0 {
			span.SetAttributes(attribute.Int("assert.tool_rounds", round))
			return reply.Content, nil
		}

		messages = append(messages, reply)

		for _, call := range reply.ToolCalls {
			result := iv.executeTool(ctx, round, call, handle)
			messages = append(messages, Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    result,
			})
		}
	}

	err := &ServiceError{
		Kind: KindProtocol,
		Msg:  fmt.Sprintf("no final answer after %d tool rounds", iv.cfg.MaxToolRounds),
	}
	telemetry.RecordError(span, err)
	return "", err
}

// executeTool runs one bridge call and renders its result for the
// conversation. Tool failures are reported back to the service as text
// so it can adapt; they never abort the loop.
func (iv *Invoker) executeTool(ctx context.Context, round int, call ToolCall, handle bridge.Handle) string {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "reasoning.tool",
		telemetry.AttrToolName.String(call.Function.Name),
		telemetry.AttrToolRound.Int(round),
	)
	defer span.End()

	args, err := decodeArguments(call.Function.Arguments)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Sprintf("Error: invalid tool arguments: %v", err)
	}

	iv.recorder.Log("tool_call", "", map[string]interface{}{
		"tool":  call.Function.Name,
		"round": round,
	})

	out, err := handle.Call(ctx, call.Function.Name, args)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Printf("[reasoning] tool %s failed: %v", call.Function.Name, err)
		return fmt.Sprintf("Error: %v", err)
	}
	return out
}

// decodeArguments parses the JSON arguments string the protocol carries
// for each tool call. An empty string means no arguments.
func decodeArguments(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// toolSpecsFor converts bridge tool descriptors into the function-tool
// shape the chat protocol expects.
func toolSpecsFor(descriptors []bridge.ToolDescriptor) []map[string]interface{} {
	if len(descriptors) == 0 {
		return nil
	}
	specs := make([]map[string]interface{}, 0, len(descriptors))
	for _, d := range descriptors {
		params := d.InputSchema
		if params == nil {
			params = map[string]interface{}{"type": "object"}
		}
		specs = append(specs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  params,
			},
		})
	}
	return specs
}
