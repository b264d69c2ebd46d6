package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/config"
	"taskforge/internal/types"
)

// mockClient lets tests script provider behavior per call.
type mockClient struct {
	completeFunc func(ctx context.Context, req CompletionRequest) (string, error)
	calls        atomic.Int32
}

func (m *mockClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.calls.Add(1)
	return m.completeFunc(ctx, req)
}

func fastCfg() config.LLMConfig {
	cfg := config.DefaultLLMConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = 2 * time.Millisecond
	return cfg
}

func TestModelSelection(t *testing.T) {
	cfg := fastCfg()
	var gotModel string
	client := &mockClient{completeFunc: func(ctx context.Context, req CompletionRequest) (string, error) {
		gotModel = req.Model
		return "ok", nil
	}}
	g := New(cfg, client)

	_, err := g.Call(context.Background(), Request{TaskName: "task_decomposition", UserPrompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gotModel)

	_, err = g.Call(context.Background(), Request{TaskName: "unmapped_task", UserPrompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, cfg.DefaultModel, gotModel)
}

func TestRetryOnTransportError(t *testing.T) {
	client := &mockClient{}
	client.completeFunc = func(ctx context.Context, req CompletionRequest) (string, error) {
		if client.calls.Load() < 3 {
			return "", fmt.Errorf("connection refused")
		}
		return "recovered", nil
	}
	g := New(fastCfg(), client)

	got, err := g.Call(context.Background(), Request{TaskName: "intent_analysis", UserPrompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(3), client.calls.Load())
}

func TestExhaustedRetriesReturnProviderUnavailable(t *testing.T) {
	client := &mockClient{completeFunc: func(ctx context.Context, req CompletionRequest) (string, error) {
		return "", fmt.Errorf("boom")
	}}
	g := New(fastCfg(), client)

	_, err := g.Call(context.Background(), Request{TaskName: "intent_analysis", UserPrompt: "p"})
	require.Error(t, err)
	assert.Equal(t, types.ErrProviderUnavailable, types.KindOf(err))
	assert.Equal(t, int32(3), client.calls.Load())
}

func TestJSONFormatStripsFences(t *testing.T) {
	client := &mockClient{completeFunc: func(ctx context.Context, req CompletionRequest) (string, error) {
		return "```json\n{\"intent\": \"decompose\"}\n```", nil
	}}
	g := New(fastCfg(), client)

	got, err := g.Call(context.Background(), Request{
		TaskName:   "intent_fallback",
		UserPrompt: "p",
		Format:     FormatJSON,
	})
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &payload))
	assert.Equal(t, "decompose", payload["intent"])
}

func TestJSONFormatRetriesMalformedOutput(t *testing.T) {
	client := &mockClient{}
	client.completeFunc = func(ctx context.Context, req CompletionRequest) (string, error) {
		if client.calls.Load() == 1 {
			return "this is not json", nil
		}
		return `{"ok": true}`, nil
	}
	g := New(fastCfg(), client)

	got, err := g.Call(context.Background(), Request{TaskName: "x", UserPrompt: "p", Format: FormatJSON})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, got)
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestSchemaViolationSurfaced(t *testing.T) {
	client := &mockClient{completeFunc: func(ctx context.Context, req CompletionRequest) (string, error) {
		return `{"intent": "bogus"}`, nil
	}}
	g := New(fastCfg(), client)

	schema := SchemaFunc(func(raw json.RawMessage) error {
		return types.NewError(types.ErrSchemaViolation, "unknown intent")
	})

	_, err := g.Call(context.Background(), Request{
		TaskName:   "x",
		UserPrompt: "p",
		Format:     FormatJSON,
		Schema:     schema,
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrSchemaViolation, types.KindOf(err))
}

func TestCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockClient{completeFunc: func(ctx context.Context, req CompletionRequest) (string, error) {
		cancel()
		return "", fmt.Errorf("transport down")
	}}
	g := New(fastCfg(), client)

	_, err := g.Call(ctx, Request{TaskName: "x", UserPrompt: "p"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCancelled, types.KindOf(err))
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestGlobalConcurrencyCap(t *testing.T) {
	cfg := fastCfg()
	cfg.MaxConcurrent = 2
	cfg.TaskConcurrency = nil

	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	client := &mockClient{completeFunc: func(ctx context.Context, req CompletionRequest) (string, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return "ok", nil
	}}
	g := New(cfg, client)

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = g.Call(context.Background(), Request{TaskName: "x", UserPrompt: "p"})
			done <- struct{}{}
		}()
	}

	// Let goroutines reach the semaphore, then drain.
	time.Sleep(50 * time.Millisecond)
	close(release)
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestInvalidRequest(t *testing.T) {
	g := New(fastCfg(), &mockClient{})

	_, err := g.Call(context.Background(), Request{UserPrompt: "p"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidInput, types.KindOf(err))

	_, err = g.Call(context.Background(), Request{TaskName: "x"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidInput, types.KindOf(err))
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"prose prefix", "Here is the result: {\"a\":1}", `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.input))
		})
	}
}
