package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusBlocked, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusBlocked, StatusInProgress, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusBlocked, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		got := CanTransition(tt.from, tt.to)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.from, tt.to)
	}
}

func TestTransitionTimestamps(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	task := AtomicTask{ID: "T1", Title: "x", Status: StatusPending, EstimatedHours: 2}

	require.NoError(t, task.Transition(StatusInProgress, now))
	require.NotNil(t, task.StartedAt)
	assert.Equal(t, now, *task.StartedAt)

	later := now.Add(time.Hour)
	require.NoError(t, task.Transition(StatusCompleted, later))
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, later, *task.CompletedAt)

	err := task.Transition(StatusInProgress, later)
	assert.Error(t, err)
}

func TestValidateHourBounds(t *testing.T) {
	task := AtomicTask{ID: "T1", Title: "x", EstimatedHours: 2}
	assert.NoError(t, task.Validate())

	task.EstimatedHours = 0.05
	assert.Error(t, task.Validate())

	task.EstimatedHours = 25
	assert.Error(t, task.Validate())

	// Bounds are inclusive.
	task.EstimatedHours = MaxEstimatedHours
	assert.NoError(t, task.Validate())
	task.EstimatedHours = MinEstimatedHours
	assert.NoError(t, task.Validate())
}

func TestDetectCycle(t *testing.T) {
	acyclic := []AtomicTask{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"c"}},
		{ID: "c"},
	}
	assert.Nil(t, DetectCycle(acyclic))

	cyclic := []AtomicTask{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"c"}},
		{ID: "c", Dependencies: []string{"a"}},
	}
	cycle := DetectCycle(cyclic)
	require.NotNil(t, cycle)
	assert.Len(t, cycle, 3)

	// External dependencies are ignored.
	external := []AtomicTask{
		{ID: "a", Dependencies: []string{"outside"}},
	}
	assert.Nil(t, DetectCycle(external))
}

func TestPopulateDependents(t *testing.T) {
	tasks := []AtomicTask{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"a", "b"}},
	}
	PopulateDependents(tasks)
	assert.ElementsMatch(t, []string{"b", "c"}, tasks[0].Dependents)
	assert.ElementsMatch(t, []string{"c"}, tasks[1].Dependents)
	assert.Empty(t, tasks[2].Dependents)
}

func TestLikelihoodRank(t *testing.T) {
	assert.Greater(t, LikelihoodRank(LikelihoodVeryHigh), LikelihoodRank(LikelihoodHigh))
	assert.Greater(t, LikelihoodRank(LikelihoodHigh), LikelihoodRank(LikelihoodMedium))
	assert.Greater(t, LikelihoodRank(LikelihoodMedium), LikelihoodRank(LikelihoodLow))
	assert.Greater(t, LikelihoodRank(LikelihoodLow), LikelihoodRank(LikelihoodVeryLow))
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, ErrInvalidInput.Recoverable())
	assert.True(t, ErrTimeout.Recoverable())
	assert.True(t, ErrResourceNotFound.Recoverable())
	assert.False(t, ErrInternal.Recoverable())
	assert.False(t, ErrSchemaViolation.Recoverable())

	err := WrapError(ErrTimeout, assert.AnError, "phase stalled")
	err.Phase = "relevance_scoring"
	assert.Equal(t, ErrTimeout, KindOf(err))
	assert.Contains(t, err.Error(), "relevance_scoring")
}

func TestCodeMapStaleness(t *testing.T) {
	now := time.Now()
	info := CodeMapInfo{GeneratedAt: now.Add(-30 * time.Minute)}
	assert.False(t, info.IsStale(now, 60*time.Minute))
	assert.True(t, info.IsStale(now, 20*time.Minute))
}
