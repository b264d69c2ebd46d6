package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"taskforge/internal/config"
	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// ResponseFormat selects how the gateway treats model output.
type ResponseFormat int

const (
	// FormatText returns the raw completion text.
	FormatText ResponseFormat = iota
	// FormatJSON strips code fences, parses the payload, and optionally
	// validates it against a schema before returning the normalized JSON.
	FormatJSON
)

// Schema validates a parsed JSON payload from the model.
type Schema interface {
	Validate(raw json.RawMessage) error
}

// SchemaFunc adapts a function to the Schema interface.
type SchemaFunc func(raw json.RawMessage) error

// Validate implements Schema.
func (f SchemaFunc) Validate(raw json.RawMessage) error { return f(raw) }

// Request is a gateway call. TaskName selects the model and concurrency lane;
// everything else is passed to the provider.
type Request struct {
	TaskName     string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	Format       ResponseFormat
	Schema       Schema
	// Timeout overrides the configured per-call timeout when > 0.
	Timeout time.Duration
	// MaxRetries overrides the configured retry count when > 0.
	MaxRetries int
}

// Gateway routes all model calls through one place: model selection, timeout,
// retry with backoff, concurrency limiting, and output validation.
type Gateway struct {
	cfg    config.LLMConfig
	client Client

	global  *semaphore.Weighted
	perTask map[string]*semaphore.Weighted
	mu      sync.Mutex
}

// New creates a gateway over the given wire client.
func New(cfg config.LLMConfig, client Client) *Gateway {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 8
	}
	g := &Gateway{
		cfg:     cfg,
		client:  client,
		global:  semaphore.NewWeighted(int64(maxConc)),
		perTask: make(map[string]*semaphore.Weighted),
	}
	for task, n := range cfg.TaskConcurrency {
		if n > 0 {
			g.perTask[task] = semaphore.NewWeighted(int64(n))
		}
	}
	return g
}

// ModelFor returns the model configured for a task, falling back to the
// default model.
func (g *Gateway) ModelFor(taskName string) string {
	if m, ok := g.cfg.TaskModels[taskName]; ok && m != "" {
		return m
	}
	return g.cfg.DefaultModel
}

// Call executes a model call for the named task. JSON-format calls return the
// normalized (re-marshaled) payload so callers never see fences or prose
// wrappers.
func (g *Gateway) Call(ctx context.Context, req Request) (string, error) {
	if req.TaskName == "" {
		return "", types.NewError(types.ErrInvalidInput, "gateway request requires a task name")
	}
	if req.UserPrompt == "" {
		return "", types.NewError(types.ErrInvalidInput, "gateway request requires a prompt")
	}

	if err := g.acquire(ctx, req.TaskName); err != nil {
		return "", classifyCtxErr(err, req.TaskName)
	}
	defer g.release(req.TaskName)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.cfg.CallTimeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := req.MaxRetries
	if retries <= 0 {
		retries = g.cfg.MaxRetries
	}
	if retries <= 0 {
		retries = 3
	}

	model := g.ModelFor(req.TaskName)
	completion := CompletionRequest{
		Model:        model,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Temperature:  req.Temperature,
		JSONMode:     req.Format == FormatJSON,
	}

	timer := logging.StartTimer(logging.CategoryGateway, fmt.Sprintf("call %s (%s)", req.TaskName, model))
	defer timer.StopWithThreshold(timeout)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			delay := g.backoff(attempt)
			logging.GatewayDebug("retry %d/%d for %s after %v: %v", attempt, retries, req.TaskName, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", classifyCtxErr(ctx.Err(), req.TaskName)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		raw, err := g.client.Complete(callCtx, completion)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				// The parent was cancelled; do not retry.
				return "", classifyCtxErr(ctx.Err(), req.TaskName)
			}
			lastErr = err
			continue
		}

		if req.Format != FormatJSON {
			return raw, nil
		}

		normalized, err := g.normalizeJSON(raw, req.Schema)
		if err != nil {
			// Malformed or schema-violating output is worth one more attempt.
			lastErr = err
			continue
		}
		return normalized, nil
	}

	kind := types.ErrProviderUnavailable
	if types.KindOf(lastErr) == types.ErrInvalidModelOutput || types.KindOf(lastErr) == types.ErrSchemaViolation {
		kind = types.KindOf(lastErr)
	} else if errors.Is(lastErr, context.DeadlineExceeded) {
		kind = types.ErrTimeout
	}
	return "", types.WrapError(kind, lastErr, "task %s failed after %d attempts", req.TaskName, retries)
}

// backoff returns the delay before the given attempt (attempt >= 2),
// doubling from the base and capped.
func (g *Gateway) backoff(attempt int) time.Duration {
	base := g.cfg.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	cap := g.cfg.BackoffCap
	if cap <= 0 {
		cap = 4 * time.Second
	}
	delay := base * time.Duration(1<<uint(attempt-2))
	if delay > cap {
		delay = cap
	}
	return delay
}

func (g *Gateway) acquire(ctx context.Context, taskName string) error {
	if err := g.global.Acquire(ctx, 1); err != nil {
		return err
	}
	g.mu.Lock()
	sem := g.perTask[taskName]
	g.mu.Unlock()
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			g.global.Release(1)
			return err
		}
	}
	return nil
}

func (g *Gateway) release(taskName string) {
	g.mu.Lock()
	sem := g.perTask[taskName]
	g.mu.Unlock()
	if sem != nil {
		sem.Release(1)
	}
	g.global.Release(1)
}

// normalizeJSON strips fences, parses, validates, and re-marshals the payload.
func (g *Gateway) normalizeJSON(raw string, schema Schema) (string, error) {
	cleaned := StripFences(raw)

	var payload json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return "", types.WrapError(types.ErrInvalidModelOutput, err, "model returned malformed JSON")
	}
	if schema != nil {
		if err := schema.Validate(payload); err != nil {
			if types.KindOf(err) == types.ErrSchemaViolation {
				return "", err
			}
			return "", types.WrapError(types.ErrSchemaViolation, err, "model output failed schema validation")
		}
	}

	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", types.WrapError(types.ErrInternal, err, "failed to re-marshal payload")
	}
	return string(normalized), nil
}

// StripFences removes markdown code fences around a JSON payload. Models often
// wrap structured output in ```json blocks even when told not to.
func StripFences(s string) string {
	cleaned := strings.TrimSpace(s)

	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		} else {
			cleaned = strings.TrimPrefix(cleaned, "```json")
			cleaned = strings.TrimPrefix(cleaned, "```")
		}
	}
	if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	cleaned = strings.TrimSpace(cleaned)

	// Some models prepend prose before the payload. Cut to the first brace or
	// bracket when the string does not already start with one.
	if len(cleaned) > 0 && cleaned[0] != '{' && cleaned[0] != '[' {
		objIdx := strings.IndexByte(cleaned, '{')
		arrIdx := strings.IndexByte(cleaned, '[')
		start := -1
		switch {
		case objIdx >= 0 && (arrIdx < 0 || objIdx < arrIdx):
			start = objIdx
		case arrIdx >= 0:
			start = arrIdx
		}
		if start >= 0 {
			cleaned = cleaned[start:]
		}
	}
	return cleaned
}

func classifyCtxErr(err error, taskName string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.WrapError(types.ErrTimeout, err, "task %s timed out", taskName)
	}
	return types.WrapError(types.ErrCancelled, err, "task %s cancelled", taskName)
}
