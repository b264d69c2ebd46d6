package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/intent"
	"taskforge/internal/types"
)

func recognized(in intent.Intent) *intent.RecognitionResult {
	return &intent.RecognitionResult{Intent: in, Confidence: 0.9}
}

func TestDispatchInvokesHandler(t *testing.T) {
	d := NewDispatcher()
	var gotSession string
	d.Register(intent.IntentListTasks, func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec ExecutionContext) (*HandlerResult, error) {
		gotSession = ec.SessionID
		return TextResult("3 tasks"), nil
	})

	result, err := d.Dispatch(context.Background(), recognized(intent.IntentListTasks), nil, ExecutionContext{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "s1", gotSession)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Equal(t, "3 tasks", result.Content[0].Text)
}

func TestDispatchUnknownIntent(t *testing.T) {
	d := NewDispatcher()
	result, err := d.Dispatch(context.Background(), recognized(intent.IntentUnknown), nil, ExecutionContext{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.FollowUpSuggestions, "help")
}

func TestDispatchUnregisteredIntent(t *testing.T) {
	d := NewDispatcher()
	result, err := d.Dispatch(context.Background(), recognized(intent.IntentRunTask), nil, ExecutionContext{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Content[0].Text, "run_task")
}

func TestDispatchHandlerErrorBecomesErrorResult(t *testing.T) {
	d := NewDispatcher()
	d.Register(intent.IntentParsePRD, func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec ExecutionContext) (*HandlerResult, error) {
		return nil, types.NewError(types.ErrResourceNotFound, "no PRD found")
	})

	result, err := d.Dispatch(context.Background(), recognized(intent.IntentParsePRD), nil, ExecutionContext{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, types.MarkFailure)
	assert.Contains(t, result.Content[0].Text, "no PRD found")
}

func TestDispatchCancelledContext(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, recognized(intent.IntentListTasks), nil, ExecutionContext{})
	require.Error(t, err)
	assert.Equal(t, types.ErrCancelled, types.KindOf(err))
}

func TestRegisterRejectsUnknownIntentValue(t *testing.T) {
	d := NewDispatcher()
	assert.Panics(t, func() {
		d.Register(intent.Intent("not_a_real_intent"), func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec ExecutionContext) (*HandlerResult, error) {
			return nil, fmt.Errorf("unreachable")
		})
	})
}
