package intent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/gateway"
)

func TestRecognizerPatternWins(t *testing.T) {
	client := &scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		t.Fatal("fallback should not be consulted for a confident pattern")
		return "", nil
	}}
	r := NewRecognizer(NewEngine(), NewFallback(newTestGateway(client)))

	result := r.Recognize(context.Background(), `create a new project called "Web App"`, nil)
	assert.Equal(t, IntentCreateProject, result.Intent)
	assert.GreaterOrEqual(t, result.Confidence, 0.7)
	assert.Equal(t, MethodPattern, result.Metadata.Method)
	assert.Equal(t, int32(0), client.calls.Load())
}

func TestRecognizerFallsBackOnLowConfidence(t *testing.T) {
	client := &scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		return `{"intent": "decompose_project", "confidence": 0.75,
			"alternatives": [{"intent": "refine_task", "confidence": 0.3}]}`, nil
	}}
	r := NewRecognizer(NewEngine(), NewFallback(newTestGateway(client)))

	input := "could you maybe, like, look at the code and give me ideas for speeding it up"
	result := r.Recognize(context.Background(), input, nil)

	assert.Equal(t, IntentDecomposeProject, result.Intent)
	assert.GreaterOrEqual(t, result.Confidence, 0.6)
	assert.NotEmpty(t, result.Alternatives)
	assert.Contains(t, []Method{MethodLLM, MethodHybrid}, result.Metadata.Method)
}

func TestRecognizerFallbackFailureYieldsUnknown(t *testing.T) {
	client := &scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		return "", fmt.Errorf("provider down")
	}}
	r := NewRecognizer(NewEngine(), NewFallback(newTestGateway(client)))

	result := r.Recognize(context.Background(), "mumble mumble nothing matches here", nil)
	require.NotNil(t, result)
	assert.Equal(t, IntentUnknown, result.Intent)
	assert.Equal(t, ConfidenceVeryLow, result.ConfidenceLevel)
}

func TestRecognizerNilFallback(t *testing.T) {
	r := NewRecognizer(NewEngine(), nil)

	result := r.Recognize(context.Background(), "mumble mumble nothing matches here", nil)
	assert.Equal(t, IntentUnknown, result.Intent)

	result = r.Recognize(context.Background(), "list all projects", nil)
	assert.Equal(t, IntentListProjects, result.Intent)
}
