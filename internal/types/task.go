// Package types holds the shared data model for taskforge: atomic tasks,
// project context snapshots, context packages, relevance scores, and the
// cross-component error kinds. It is dependency-free by design so every other
// package can import it.
package types

import (
	"fmt"
	"time"
)

// TaskStatus enumerates the lifecycle states of an atomic task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
	StatusCancelled  TaskStatus = "cancelled"
)

// TaskPriority enumerates task priorities.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// TaskType enumerates the kinds of work a task represents.
type TaskType string

const (
	TypeDevelopment   TaskType = "development"
	TypeTesting       TaskType = "testing"
	TypeDocumentation TaskType = "documentation"
	TypeResearch      TaskType = "research"
	TypeDeployment    TaskType = "deployment"
	TypeReview        TaskType = "review"
)

// Estimated-hour bounds for any task.
const (
	MinEstimatedHours = 0.1
	MaxEstimatedHours = 24.0
)

// legalTransitions encodes the allowed status transitions:
// pending→in_progress, in_progress→{completed,blocked,cancelled},
// blocked→in_progress.
var legalTransitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusBlocked, StatusCancelled},
	StatusBlocked:    {StatusInProgress},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TestingCriteria captures the testing expectations attached to a task.
type TestingCriteria struct {
	UnitTests        []string `json:"unitTests,omitempty"`
	IntegrationTests []string `json:"integrationTests,omitempty"`
	CoverageTarget   float64  `json:"coverageTarget,omitempty"`
}

// QualityCriteria captures quality gates for a task.
type QualityCriteria struct {
	CodeReview    bool     `json:"codeReview"`
	Linting       []string `json:"linting,omitempty"`
	TypeChecking  []string `json:"typeChecking,omitempty"`
	Documentation []string `json:"documentation,omitempty"`
}

// IntegrationCriteria captures integration expectations for a task.
type IntegrationCriteria struct {
	DeploymentReady bool     `json:"deploymentReady"`
	APICompatible   bool     `json:"apiCompatible"`
	Dependencies    []string `json:"dependencies,omitempty"`
}

// AtomicTask is the unit of work produced by decomposition. A task is atomic
// when it fits the predicate in the decompose package; the hard invariant here
// is EstimatedHours <= 8 for atomicity and the [0.1,24] bound overall.
type AtomicTask struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	Type        TaskType     `json:"type"`

	EstimatedHours float64  `json:"estimatedHours"`
	ActualHours    *float64 `json:"actualHours,omitempty"`

	ProjectID string `json:"projectId"`
	EpicID    string `json:"epicId"`

	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`

	FilePaths          []string            `json:"filePaths,omitempty"`
	AcceptanceCriteria []string            `json:"acceptanceCriteria,omitempty"`
	Testing            TestingCriteria     `json:"testingRequirements"`
	Quality            QualityCriteria     `json:"qualityCriteria"`
	Integration        IntegrationCriteria `json:"integrationCriteria"`
	ValidationMethods  []string            `json:"validationMethods,omitempty"`

	AssignedAgent string `json:"assignedAgent,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedBy   string     `json:"createdBy"`

	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks the structural invariants of a task.
func (t *AtomicTask) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task has no id")
	}
	if t.Title == "" {
		return fmt.Errorf("task %s has no title", t.ID)
	}
	if t.EstimatedHours < MinEstimatedHours || t.EstimatedHours > MaxEstimatedHours {
		return fmt.Errorf("task %s: estimatedHours %.2f outside [%.1f, %.1f]",
			t.ID, t.EstimatedHours, MinEstimatedHours, MaxEstimatedHours)
	}
	return nil
}

// Transition moves the task to a new status, enforcing the transition table
// and maintaining the started/completed timestamps.
func (t *AtomicTask) Transition(to TaskStatus, now time.Time) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("task %s: illegal status transition %s -> %s", t.ID, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = now
	switch to {
	case StatusInProgress:
		if t.StartedAt == nil {
			started := now
			t.StartedAt = &started
		}
	case StatusCompleted:
		completed := now
		t.CompletedAt = &completed
	}
	return nil
}

// DetectCycle walks the dependency edges of the given tasks and returns the
// ids of a cycle if one exists. Dependencies that point outside the task set
// are ignored (they refer to pre-existing tasks).
func DetectCycle(tasks []AtomicTask) []string {
	byID := make(map[string]*AtomicTask, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(tasks))
	var cycle []string

	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		state[id] = visiting
		path = append(path, id)
		task := byID[id]
		for _, dep := range task.Dependencies {
			if _, ok := byID[dep]; !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				// Found a back edge; record the cycle slice.
				for i, p := range path {
					if p == dep {
						cycle = append([]string(nil), path[i:]...)
						return true
					}
				}
				cycle = append([]string(nil), path...)
				return true
			case unvisited:
				if visit(dep, path) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for i := range tasks {
		if state[tasks[i].ID] == unvisited {
			if visit(tasks[i].ID, nil) {
				return cycle
			}
		}
	}
	return nil
}

// PopulateDependents fills the derived Dependents lists from the Dependencies
// edges within the task set.
func PopulateDependents(tasks []AtomicTask) {
	index := make(map[string]int, len(tasks))
	for i := range tasks {
		index[tasks[i].ID] = i
		tasks[i].Dependents = nil
	}
	for i := range tasks {
		for _, dep := range tasks[i].Dependencies {
			if j, ok := index[dep]; ok {
				tasks[j].Dependents = append(tasks[j].Dependents, tasks[i].ID)
			}
		}
	}
}
