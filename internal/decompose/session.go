// Package decompose splits tasks recursively until every leaf is atomic.
// Each invocation runs inside a session whose lifecycle is
// pending -> in_progress -> {completed | failed}; sessions are process-scoped
// and observable through snapshots.
package decompose

import (
	"sync"
	"time"

	"taskforge/internal/types"
)

// SessionStatus is the lifecycle state of a decomposition session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// Options bounds one decomposition run.
type Options struct {
	MaxDepth           int     `json:"maxDepth"`
	MinHours           float64 `json:"minHours"`
	MaxHours           float64 `json:"maxHours"`
	ForceDecomposition bool    `json:"forceDecomposition"`
}

// Result is one level of the decomposition tree, recorded in pre-order.
type Result struct {
	Parent   types.AtomicTask   `json:"parent"`
	SubTasks []types.AtomicTask `json:"subTasks"`
	Depth    int                `json:"depth"`
}

// Snapshot is the caller-visible view of a session. The engine never mutates
// a returned snapshot.
type Snapshot struct {
	ID         string             `json:"id"`
	Task       types.AtomicTask   `json:"task"`
	Options    Options            `json:"options"`
	Status     SessionStatus      `json:"status"`
	Results    []Result           `json:"results,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
}

// session is the engine-internal mutable state.
type session struct {
	mu         sync.Mutex
	id         string
	task       types.AtomicTask
	project    *types.ProjectContext
	options    Options
	status     SessionStatus
	results    []Result
	warnings   []string
	err        string
	startedAt  time.Time
	finishedAt *time.Time
	cancelled  bool
}

func (s *session) snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		ID:        s.id,
		Task:      s.task,
		Options:   s.options,
		Status:    s.status,
		Error:     s.err,
		StartedAt: s.startedAt,
	}
	if s.finishedAt != nil {
		t := *s.finishedAt
		snap.FinishedAt = &t
	}
	snap.Results = make([]Result, len(s.results))
	for i, r := range s.results {
		snap.Results[i] = Result{
			Parent:   r.Parent,
			SubTasks: append([]types.AtomicTask(nil), r.SubTasks...),
			Depth:    r.Depth,
		}
	}
	snap.Warnings = append([]string(nil), s.warnings...)
	return snap
}

func (s *session) setStatus(status SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if status == SessionCompleted || status == SessionFailed {
		now := time.Now()
		s.finishedAt = &now
	}
}

func (s *session) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = SessionFailed
	s.err = msg
	now := time.Now()
	s.finishedAt = &now
}

func (s *session) appendResult(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *session) warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

func (s *session) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// IsAtomic is the atomicity predicate: bounded hours, stated acceptance
// criteria, a real description, and a manageable dependency count.
func IsAtomic(task types.AtomicTask, opts Options) bool {
	return task.EstimatedHours >= opts.MinHours &&
		task.EstimatedHours <= opts.MaxHours &&
		len(task.AcceptanceCriteria) > 0 &&
		len(task.Description) >= 20 &&
		len(task.Dependencies) <= 5
}
