// Package dispatch routes recognized intents to their handlers. The handler
// table is populated at composition time; dispatch over the closed intent set
// is total, with unknown and unregistered intents producing an informative
// result instead of an error.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"taskforge/internal/config"
	"taskforge/internal/intent"
	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// ExecutionContext carries the per-session environment a handler runs in.
type ExecutionContext struct {
	SessionID string
	Project   *types.ProjectContext
	Config    *config.Config
}

// ContentItem is one block of handler output.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// HandlerResult is the uniform outcome of a dispatched command.
type HandlerResult struct {
	Success             bool          `json:"success"`
	Content             []ContentItem `json:"content"`
	IsError             bool          `json:"isError,omitempty"`
	FollowUpSuggestions []string      `json:"followUpSuggestions,omitempty"`
}

// TextResult builds a successful single-text result.
func TextResult(format string, args ...interface{}) *HandlerResult {
	return &HandlerResult{
		Success: true,
		Content: []ContentItem{{Type: "text", Text: fmt.Sprintf(format, args...)}},
	}
}

// ErrorResult renders an error as a failed result with the standard marker.
func ErrorResult(err error) *HandlerResult {
	return &HandlerResult{
		Success: false,
		IsError: true,
		Content: []ContentItem{{Type: "text", Text: types.UserMessage(err)}},
	}
}

// Handler executes one intent. Handlers must be idempotent with respect to
// their inputs and mutate state only through the other components' contracts.
type Handler func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec ExecutionContext) (*HandlerResult, error)

// Dispatcher holds the intent→handler table.
type Dispatcher struct {
	handlers map[intent.Intent]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[intent.Intent]Handler)}
}

// Register installs a handler for an intent. Registering outside the closed
// intent set is a programming error and panics at composition time.
func (d *Dispatcher) Register(in intent.Intent, h Handler) {
	if !in.Valid() {
		panic(fmt.Sprintf("dispatch: intent %q is not in the closed set", in))
	}
	d.handlers[in] = h
}

// Registered returns the sorted list of intents with handlers.
func (d *Dispatcher) Registered() []intent.Intent {
	out := make([]intent.Intent, 0, len(d.handlers))
	for in := range d.handlers {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch invokes the handler for a recognition result. Unknown intents and
// intents without a handler yield an informative result; handler errors are
// rendered as error results, so the return error is reserved for context
// cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec ExecutionContext) (*HandlerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.ErrCancelled, err, "dispatch cancelled")
	}
	if rec == nil || rec.Intent == intent.IntentUnknown {
		return &HandlerResult{
			Success: false,
			Content: []ContentItem{{
				Type: "text",
				Text: types.MarkInfo + " I could not determine what you want. Try rephrasing, or say \"help\".",
			}},
			FollowUpSuggestions: []string{"help"},
		}, nil
	}

	handler, ok := d.handlers[rec.Intent]
	if !ok {
		return &HandlerResult{
			Success: false,
			Content: []ContentItem{{
				Type: "text",
				Text: fmt.Sprintf("%s No handler is available for %q.", types.MarkInfo, rec.Intent),
			}},
			FollowUpSuggestions: []string{"help"},
		}, nil
	}

	start := time.Now()
	logging.Dispatch("dispatching %s (session %s)", rec.Intent, ec.SessionID)
	result, err := handler(ctx, rec, params, ec)
	if err != nil {
		logging.Dispatch("handler %s failed after %v: %v", rec.Intent, time.Since(start), err)
		return ErrorResult(err), nil
	}
	logging.Dispatch("handler %s completed in %v", rec.Intent, time.Since(start))
	return result, nil
}
