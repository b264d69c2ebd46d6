package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/config"
	"taskforge/internal/gateway"
	"taskforge/internal/types"
)

type scriptedClient struct {
	completeFunc func(ctx context.Context, req gateway.CompletionRequest) (string, error)
	calls        atomic.Int32
}

func (s *scriptedClient) Complete(ctx context.Context, req gateway.CompletionRequest) (string, error) {
	s.calls.Add(1)
	return s.completeFunc(ctx, req)
}

func newTestEngine(client gateway.Client) *Engine {
	llmCfg := config.DefaultLLMConfig()
	llmCfg.BackoffBase = time.Millisecond
	llmCfg.BackoffCap = time.Millisecond
	return NewEngine(gateway.New(llmCfg, client), config.DefaultDecomposeConfig(), nil)
}

func subTasksJSON(specs ...map[string]interface{}) string {
	data, _ := json.Marshal(map[string]interface{}{"subTasks": specs})
	return string(data)
}

func spec(title string, hours float64, extra map[string]interface{}) map[string]interface{} {
	m := map[string]interface{}{
		"title":              title,
		"description":        "Implement " + title + " end to end with tests",
		"estimatedHours":     hours,
		"acceptanceCriteria": []string{title + " works"},
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func waitForSession(t *testing.T, e *Engine, id string) *Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := e.GetSession(id)
		require.NoError(t, err)
		if snap.Status == SessionCompleted || snap.Status == SessionFailed {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session did not finish in time")
	return nil
}

func baseTask() types.AtomicTask {
	return types.AtomicTask{
		ID:                 "T1",
		Title:              "Add login button",
		Description:        "Add a login button to the nav",
		Status:             types.StatusPending,
		Priority:           types.PriorityMedium,
		Type:               types.TypeDevelopment,
		EstimatedHours:     2,
		ProjectID:          "proj1",
		EpicID:             "epic1",
		AcceptanceCriteria: []string{"visible on mobile"},
		CreatedBy:          "tester",
	}
}

func TestAtomicTaskYieldsSingleLeaf(t *testing.T) {
	client := &scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		t.Error("atomic task must not reach the model")
		return "", fmt.Errorf("unreachable")
	}}
	e := newTestEngine(client)

	snap, err := e.StartDecomposition(context.Background(), Request{Task: baseTask()})
	require.NoError(t, err)

	final := waitForSession(t, e, snap.ID)
	assert.Equal(t, SessionCompleted, final.Status)
	require.Len(t, final.Results, 1)
	assert.Equal(t, "T1", final.Results[0].Parent.ID)
	require.Len(t, final.Results[0].SubTasks, 1)
	assert.Equal(t, final.Results[0].Parent, final.Results[0].SubTasks[0])
	assert.Equal(t, 0, final.Results[0].Depth)
	assert.NotNil(t, final.FinishedAt)
}

func TestRecursiveDecomposition(t *testing.T) {
	// 20h task splits into three 8h chunks; each 8h chunk splits into two 4h
	// leaves.
	client := &scriptedClient{}
	client.completeFunc = func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		if strings.Contains(req.UserPrompt, "Estimated hours: 20") {
			return subTasksJSON(
				spec("Auth backend", 8, nil),
				spec("Auth frontend", 8, nil),
				spec("Session handling", 8, nil),
			), nil
		}
		return subTasksJSON(
			spec("First half", 4, nil),
			spec("Second half", 4, map[string]interface{}{"dependencies": []string{"First half"}}),
		), nil
	}
	e := newTestEngine(client)

	task := baseTask()
	task.ID = "T2"
	task.Title = "Implement full auth"
	task.Description = "implement full authentication flow"
	task.EstimatedHours = 20

	snap, err := e.StartDecomposition(context.Background(), Request{Task: task})
	require.NoError(t, err)
	final := waitForSession(t, e, snap.ID)
	require.Equal(t, SessionCompleted, final.Status, "error: %s", final.Error)

	leaves := 0
	for _, r := range final.Results {
		assert.LessOrEqual(t, r.Depth, 3)
		if len(r.SubTasks) == 1 && r.SubTasks[0].ID == r.Parent.ID {
			leaves++
			assert.LessOrEqual(t, r.Parent.EstimatedHours, 4.0)
		}
	}
	assert.GreaterOrEqual(t, leaves, 3)

	// Child ids extend the parent id.
	assert.Equal(t, "T2.1", final.Results[0].SubTasks[0].ID)
	assert.Equal(t, "T2.1.1", final.Results[1].SubTasks[0].ID)

	// Title-based dependencies were remapped to assigned ids.
	secondHalf := final.Results[1].SubTasks[1]
	assert.Equal(t, []string{"T2.1.1"}, secondHalf.Dependencies)
}

func TestSubTaskHoursClampedToParent(t *testing.T) {
	client := &scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		return subTasksJSON(
			spec("Oversized piece", 12, nil),
			spec("Normal piece", 3, nil),
		), nil
	}}
	e := newTestEngine(client)

	task := baseTask()
	task.EstimatedHours = 6

	snap, err := e.StartDecomposition(context.Background(), Request{Task: task})
	require.NoError(t, err)
	final := waitForSession(t, e, snap.ID)
	require.Equal(t, SessionCompleted, final.Status, "error: %s", final.Error)

	// min(parent 6, maxHours 4) = 4.
	assert.Equal(t, 4.0, final.Results[0].SubTasks[0].EstimatedHours)
	assert.Equal(t, 3.0, final.Results[0].SubTasks[1].EstimatedHours)
	require.NotEmpty(t, final.Warnings)
	assert.Contains(t, final.Warnings[0], "clamped")
}

func TestEmptySubTasksTreatedAsAtomic(t *testing.T) {
	client := &scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		return `{"subTasks": []}`, nil
	}}
	e := newTestEngine(client)

	task := baseTask()
	task.EstimatedHours = 10

	snap, err := e.StartDecomposition(context.Background(), Request{Task: task})
	require.NoError(t, err)
	final := waitForSession(t, e, snap.ID)
	require.Equal(t, SessionCompleted, final.Status)
	require.Len(t, final.Results, 1)
	assert.Equal(t, task.ID, final.Results[0].SubTasks[0].ID)
}

func TestCycleRetriedOnceThenLeafFallback(t *testing.T) {
	cyclic := subTasksJSON(
		spec("Part A", 4, map[string]interface{}{"dependencies": []string{"Part B"}}),
		spec("Part B", 4, map[string]interface{}{"dependencies": []string{"Part A"}}),
	)

	t.Run("strict retry succeeds", func(t *testing.T) {
		client := &scriptedClient{}
		client.completeFunc = func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
			if strings.Contains(req.SystemPrompt, "STRICT MODE") {
				return subTasksJSON(spec("Part A", 4, nil), spec("Part B", 4, nil)), nil
			}
			return cyclic, nil
		}
		e := newTestEngine(client)

		task := baseTask()
		task.EstimatedHours = 10
		snap, err := e.StartDecomposition(context.Background(), Request{Task: task})
		require.NoError(t, err)
		final := waitForSession(t, e, snap.ID)
		require.Equal(t, SessionCompleted, final.Status, "error: %s", final.Error)
		require.Len(t, final.Results[0].SubTasks, 2)
		assert.Empty(t, final.Results[0].SubTasks[0].Dependencies)
	})

	t.Run("second cycle falls back to leaf", func(t *testing.T) {
		client := &scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
			return cyclic, nil
		}}
		e := newTestEngine(client)

		task := baseTask()
		task.EstimatedHours = 10
		snap, err := e.StartDecomposition(context.Background(), Request{Task: task})
		require.NoError(t, err)
		final := waitForSession(t, e, snap.ID)
		require.Equal(t, SessionCompleted, final.Status)
		require.Len(t, final.Results, 1)
		assert.Equal(t, task.ID, final.Results[0].SubTasks[0].ID)
		require.NotEmpty(t, final.Warnings)
		assert.Contains(t, final.Warnings[0], "cyclic")
	})
}

func TestGatewayFailureFailsSession(t *testing.T) {
	client := &scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		return "", fmt.Errorf("provider down")
	}}
	e := newTestEngine(client)

	task := baseTask()
	task.EstimatedHours = 10

	snap, err := e.StartDecomposition(context.Background(), Request{Task: task})
	require.NoError(t, err)
	final := waitForSession(t, e, snap.ID)
	assert.Equal(t, SessionFailed, final.Status)
	assert.Contains(t, final.Error, "provider_unavailable")
}

func TestCancellation(t *testing.T) {
	release := make(chan struct{})
	client := &scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		<-release
		return subTasksJSON(spec("Piece", 4, nil)), nil
	}}
	e := newTestEngine(client)

	task := baseTask()
	task.EstimatedHours = 10

	snap, err := e.StartDecomposition(context.Background(), Request{Task: task})
	require.NoError(t, err)
	require.NoError(t, e.Cancel(snap.ID))
	close(release)

	final := waitForSession(t, e, snap.ID)
	assert.Equal(t, SessionFailed, final.Status)
	assert.Contains(t, final.Error, "cancelled")
}

func TestSnapshotIsolation(t *testing.T) {
	e := newTestEngine(&scriptedClient{completeFunc: func(ctx context.Context, req gateway.CompletionRequest) (string, error) {
		return `{"subTasks": []}`, nil
	}})

	snap, err := e.StartDecomposition(context.Background(), Request{Task: baseTask()})
	require.NoError(t, err)
	final := waitForSession(t, e, snap.ID)

	// Mutating a snapshot must not affect the engine's state.
	final.Results[0].SubTasks[0].Title = "mutated"
	again, err := e.GetSession(snap.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Results[0].SubTasks[0].Title)
}

func TestGetSessionNotFound(t *testing.T) {
	e := newTestEngine(&scriptedClient{})
	_, err := e.GetSession("nope")
	require.Error(t, err)
	assert.Equal(t, types.ErrResourceNotFound, types.KindOf(err))
}

func TestInvalidTaskRejected(t *testing.T) {
	e := newTestEngine(&scriptedClient{})
	_, err := e.StartDecomposition(context.Background(), Request{Task: types.AtomicTask{}})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidInput, types.KindOf(err))
}

func TestEventsEmitted(t *testing.T) {
	e := newTestEngine(&scriptedClient{})
	events := e.Events()

	snap, err := e.StartDecomposition(context.Background(), Request{Task: baseTask()})
	require.NoError(t, err)
	waitForSession(t, e, snap.ID)

	var seen []EventType
	timeout := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-events:
			if ev.SessionID == snap.ID {
				seen = append(seen, ev.Type)
			}
		case <-timeout:
			t.Fatalf("expected start+complete events, got %v", seen)
		}
	}
	assert.Equal(t, EventSessionStarted, seen[0])
	assert.Equal(t, EventSessionCompleted, seen[1])
}
