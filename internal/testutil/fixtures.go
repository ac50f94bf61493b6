package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/allaspectsdev/genrelay/internal/orchestrator"
)

// ScriptedCaller is an orchestrator.Caller whose per-provider behaviour is
// set by the test. Providers without a script fail.
type ScriptedCaller struct {
	mu      sync.Mutex
	scripts map[string]func(n int) (string, error)
	calls   map[string]int
}

// NewScriptedCaller returns an empty ScriptedCaller.
func NewScriptedCaller() *ScriptedCaller {
	return &ScriptedCaller{
		scripts: make(map[string]func(int) (string, error)),
		calls:   make(map[string]int),
	}
}

// Succeed makes provider always answer content.
func (c *ScriptedCaller) Succeed(provider, content string) *ScriptedCaller {
	return c.Script(provider, func(int) (string, error) { return content, nil })
}

// Fail makes provider always fail with err.
func (c *ScriptedCaller) Fail(provider string, err error) *ScriptedCaller {
	return c.Script(provider, func(int) (string, error) { return "", err })
}

// Script installs fn for provider; n is the 1-based call count.
func (c *ScriptedCaller) Script(provider string, fn func(n int) (string, error)) *ScriptedCaller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[provider] = fn
	return c
}

// Calls returns how many times provider was called.
func (c *ScriptedCaller) Calls(provider string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[provider]
}

// CallProvider implements orchestrator.Caller.
func (c *ScriptedCaller) CallProvider(ctx context.Context, req orchestrator.CallRequest) (string, error) {
	c.mu.Lock()
	c.calls[req.Provider]++
	n := c.calls[req.Provider]
	fn := c.scripts[req.Provider]
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fn == nil {
		return "", fmt.Errorf("no script for provider %q", req.Provider)
	}
	return fn(n)
}

// SampleOpenAIResponse returns a Chat Completions response body carrying
// content.
func SampleOpenAIResponse(content string) []byte {
	resp := map[string]any{
		"id":      "chatcmpl-test123",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
	data, _ := json.Marshal(resp)
	return data
}

// SampleAnthropicResponse returns a Messages API response body carrying
// content.
func SampleAnthropicResponse(content string) []byte {
	resp := map[string]any{
		"id":          "msg_test123",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-sonnet-4-20250514",
		"content":     []map[string]any{{"type": "text", "text": content}},
		"stop_reason": "end_turn",
	}
	data, _ := json.Marshal(resp)
	return data
}
