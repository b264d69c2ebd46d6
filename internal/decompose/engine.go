package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskforge/internal/config"
	"taskforge/internal/gateway"
	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// EpicResolver maps a project to its epic. Sub-tasks re-resolve their epic
// through this interface and fall back to the parent's epic when resolution
// fails.
type EpicResolver interface {
	ResolveEpic(projectID string) (string, bool)
}

// MapEpicResolver is a fixed projectID -> epicID table.
type MapEpicResolver map[string]string

// ResolveEpic implements EpicResolver.
func (m MapEpicResolver) ResolveEpic(projectID string) (string, bool) {
	epic, ok := m[projectID]
	return epic, ok
}

// EventType classifies engine progress events.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventLevelDecomposed  EventType = "level_decomposed"
	EventSessionCompleted EventType = "session_completed"
	EventSessionFailed    EventType = "session_failed"
)

// Event is one progress notification. Slow consumers drop events.
type Event struct {
	Type      EventType
	SessionID string
	TaskID    string
	Depth     int
	Timestamp time.Time
}

// Request starts one decomposition.
type Request struct {
	Task    types.AtomicTask
	Project *types.ProjectContext
	Options *Options // nil uses configured defaults
}

// subTaskSpec mirrors the model's JSON for one sub-task.
type subTaskSpec struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Type               string   `json:"type"`
	Priority           string   `json:"priority"`
	EstimatedHours     float64  `json:"estimatedHours"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
	FilePaths          []string `json:"filePaths"`
	Dependencies       []string `json:"dependencies"`
}

type decomposeReply struct {
	SubTasks []subTaskSpec `json:"subTasks"`
}

// decomposeSchema rejects structurally unusable replies at the gateway
// boundary.
var decomposeSchema = gateway.SchemaFunc(func(raw json.RawMessage) error {
	var reply decomposeReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("reply is not a subTasks object: %w", err)
	}
	for i, st := range reply.SubTasks {
		if st.Title == "" {
			return fmt.Errorf("subTasks[%d] has no title", i)
		}
		if st.EstimatedHours < 0 {
			return fmt.Errorf("subTasks[%d] has negative estimatedHours", i)
		}
	}
	return nil
})

// Engine owns decomposition sessions.
type Engine struct {
	gw     *gateway.Gateway
	cfg    config.DecomposeConfig
	epics  EpicResolver
	events chan Event

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewEngine creates an engine. epics may be nil; sub-tasks then inherit the
// parent's epic.
func NewEngine(gw *gateway.Gateway, cfg config.DecomposeConfig, epics EpicResolver) *Engine {
	return &Engine{
		gw:       gw,
		cfg:      cfg,
		epics:    epics,
		events:   make(chan Event, 64),
		sessions: make(map[string]*session),
	}
}

// Events returns the engine's progress channel.
func (e *Engine) Events() <-chan Event { return e.events }

func (e *Engine) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case e.events <- ev:
	default:
	}
}

// defaultOptions derives run options from configuration.
func (e *Engine) defaultOptions() Options {
	return Options{
		MaxDepth: e.cfg.MaxDepth,
		MinHours: e.cfg.MinHours,
		MaxHours: e.cfg.MaxHours,
	}
}

// StartDecomposition creates a session and runs the recursive split
// asynchronously. The returned snapshot is the initial pending state.
func (e *Engine) StartDecomposition(ctx context.Context, req Request) (*Snapshot, error) {
	if err := req.Task.Validate(); err != nil {
		return nil, types.WrapError(types.ErrInvalidInput, err, "cannot decompose task")
	}
	opts := e.defaultOptions()
	if req.Options != nil {
		opts = *req.Options
		if opts.MaxDepth < 1 {
			opts.MaxDepth = 1
		}
		if opts.MaxDepth > 5 {
			opts.MaxDepth = 5
		}
	}
	if opts.MinHours <= 0 {
		opts.MinHours = e.cfg.MinHours
	}
	if opts.MaxHours <= 0 {
		opts.MaxHours = e.cfg.MaxHours
	}

	s := &session{
		id:        uuid.NewString(),
		task:      req.Task,
		project:   req.Project,
		options:   opts,
		status:    SessionPending,
		startedAt: time.Now(),
	}
	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	go e.run(ctx, s)
	return s.snapshot(), nil
}

// GetSession returns a snapshot of a session.
func (e *Engine) GetSession(id string) (*Snapshot, error) {
	e.mu.RLock()
	s := e.sessions[id]
	e.mu.RUnlock()
	if s == nil {
		return nil, types.NewError(types.ErrResourceNotFound, "session %q not found", id)
	}
	return s.snapshot(), nil
}

// Cancel marks a session cancelled. The engine observes the flag between
// recursion levels.
func (e *Engine) Cancel(id string) error {
	e.mu.RLock()
	s := e.sessions[id]
	e.mu.RUnlock()
	if s == nil {
		return types.NewError(types.ErrResourceNotFound, "session %q not found", id)
	}
	s.cancel()
	return nil
}

func (e *Engine) run(ctx context.Context, s *session) {
	timeout := e.cfg.SessionTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.setStatus(SessionInProgress)
	e.emit(Event{Type: EventSessionStarted, SessionID: s.id, TaskID: s.task.ID})
	logging.Decompose("session %s started for task %s", s.id, s.task.ID)

	if err := e.decompose(runCtx, s, s.task, 0); err != nil {
		kind := types.KindOf(err)
		s.fail(fmt.Sprintf("%s: %s", kind, err.Error()))
		e.emit(Event{Type: EventSessionFailed, SessionID: s.id, TaskID: s.task.ID})
		logging.Decompose("session %s failed: %v", s.id, err)
		return
	}

	s.setStatus(SessionCompleted)
	e.emit(Event{Type: EventSessionCompleted, SessionID: s.id, TaskID: s.task.ID})
	logging.Decompose("session %s completed", s.id)
}

// decompose is the recursive procedure. Results accumulate in pre-order.
func (e *Engine) decompose(ctx context.Context, s *session, task types.AtomicTask, depth int) error {
	if s.isCancelled() {
		return types.NewError(types.ErrCancelled, "cancelled")
	}
	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return types.WrapError(types.ErrTimeout, err, "session timed out")
		}
		return types.WrapError(types.ErrCancelled, err, "cancelled")
	}

	opts := s.options

	// Depth and effort gates come before the full atomicity check.
	if depth >= opts.MaxDepth || (task.EstimatedHours <= opts.MaxHours && !opts.ForceDecomposition) {
		s.appendResult(Result{Parent: task, SubTasks: []types.AtomicTask{task}, Depth: depth})
		return nil
	}
	if IsAtomic(task, opts) && !opts.ForceDecomposition {
		s.appendResult(Result{Parent: task, SubTasks: []types.AtomicTask{task}, Depth: depth})
		return nil
	}

	subTasks, err := e.split(ctx, s, task, false)
	if err != nil {
		return err
	}
	if subTasks == nil {
		// Cycle on the first attempt; retry once with a stricter prompt.
		subTasks, err = e.split(ctx, s, task, true)
		if err != nil {
			return err
		}
		if subTasks == nil {
			// Second cycle: fall back to treating the task as a leaf.
			s.warn(fmt.Sprintf("task %s: model produced cyclic dependencies twice, kept as leaf", task.ID))
			s.appendResult(Result{Parent: task, SubTasks: []types.AtomicTask{task}, Depth: depth})
			return nil
		}
	}
	if len(subTasks) == 0 {
		// The model considers the task indivisible.
		s.appendResult(Result{Parent: task, SubTasks: []types.AtomicTask{task}, Depth: depth})
		return nil
	}

	s.appendResult(Result{Parent: task, SubTasks: subTasks, Depth: depth})
	e.emit(Event{Type: EventLevelDecomposed, SessionID: s.id, TaskID: task.ID, Depth: depth})

	for _, sub := range subTasks {
		if err := e.decompose(ctx, s, sub, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// split performs one model call and materializes the sub-tasks. A nil slice
// with nil error signals a dependency cycle.
func (e *Engine) split(ctx context.Context, s *session, task types.AtomicTask, strict bool) ([]types.AtomicTask, error) {
	raw, err := e.gw.Call(ctx, gateway.Request{
		TaskName:     "task_decomposition",
		SystemPrompt: decompositionSystemPrompt(strict),
		UserPrompt:   decompositionUserPrompt(task, s.project, s.options),
		Temperature:  0.1,
		Format:       gateway.FormatJSON,
		Schema:       decomposeSchema,
	})
	if err != nil {
		return nil, err
	}

	var reply decomposeReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, types.WrapError(types.ErrInvalidModelOutput, err, "decomposition reply unparseable")
	}
	if len(reply.SubTasks) == 0 {
		return []types.AtomicTask{}, nil
	}

	subTasks := e.materialize(s, task, reply.SubTasks)

	if cycle := types.DetectCycle(subTasks); cycle != nil {
		logging.DecomposeDebug("task %s: dependency cycle %v (strict=%t)", task.ID, cycle, strict)
		return nil, nil
	}
	types.PopulateDependents(subTasks)
	return subTasks, nil
}

// materialize fills each sub-task spec into a full atomic task, inheriting
// defaults from the parent. Ids are <parentId>.<n> with n starting at 1.
func (e *Engine) materialize(s *session, parent types.AtomicTask, specs []subTaskSpec) []types.AtomicTask {
	now := time.Now()
	epicID := e.resolveEpic(parent)

	// Model dependencies reference sub-task titles or ordinals; remap both to
	// the assigned ids.
	idByTitle := make(map[string]string, len(specs))
	for i, spec := range specs {
		idByTitle[strings.ToLower(strings.TrimSpace(spec.Title))] = childID(parent.ID, i+1)
	}

	out := make([]types.AtomicTask, 0, len(specs))
	for i, spec := range specs {
		id := childID(parent.ID, i+1)
		hours := spec.EstimatedHours
		if hours <= 0 {
			hours = s.options.MinHours
		}
		if hours > parent.EstimatedHours {
			clamped := parent.EstimatedHours
			if s.options.MaxHours < clamped {
				clamped = s.options.MaxHours
			}
			s.warn(fmt.Sprintf("task %s: estimatedHours %.1f exceeds parent %.1f, clamped to %.1f",
				id, hours, parent.EstimatedHours, clamped))
			hours = clamped
		}

		description := spec.Description
		if description == "" {
			description = spec.Title
		}

		out = append(out, types.AtomicTask{
			ID:                 id,
			Title:              spec.Title,
			Description:        description,
			Status:             types.StatusPending,
			Priority:           parsePriority(spec.Priority, parent.Priority),
			Type:               parseTaskType(spec.Type, parent.Type),
			EstimatedHours:     hours,
			ProjectID:          parent.ProjectID,
			EpicID:             epicID,
			Dependencies:       remapDependencies(spec.Dependencies, idByTitle, parent.ID),
			FilePaths:          spec.FilePaths,
			AcceptanceCriteria: spec.AcceptanceCriteria,
			CreatedAt:          now,
			UpdatedAt:          now,
			CreatedBy:          parent.CreatedBy,
			Tags:               parent.Tags,
			Metadata:           map[string]string{"parentTask": parent.ID},
		})
	}
	return out
}

// resolveEpic re-resolves the epic for the parent's project, falling back to
// the parent's own epic.
func (e *Engine) resolveEpic(parent types.AtomicTask) string {
	if e.epics != nil {
		if epic, ok := e.epics.ResolveEpic(parent.ProjectID); ok && epic != "" {
			return epic
		}
	}
	return parent.EpicID
}

func childID(parentID string, n int) string {
	return fmt.Sprintf("%s.%d", parentID, n)
}

// remapDependencies resolves model-reported dependencies. Titles map to the
// assigned child ids; already-qualified child ids pass through; anything else
// is treated as a reference to a pre-existing task and kept as-is.
func remapDependencies(deps []string, idByTitle map[string]string, parentID string) []string {
	if len(deps) == 0 {
		return nil
	}
	out := make([]string, 0, len(deps))
	for _, dep := range deps {
		trimmed := strings.TrimSpace(dep)
		if trimmed == "" {
			continue
		}
		if id, ok := idByTitle[strings.ToLower(trimmed)]; ok {
			out = append(out, id)
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parsePriority(s string, fallback types.TaskPriority) types.TaskPriority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return types.PriorityLow
	case "medium":
		return types.PriorityMedium
	case "high":
		return types.PriorityHigh
	case "critical":
		return types.PriorityCritical
	default:
		if fallback != "" {
			return fallback
		}
		return types.PriorityMedium
	}
}

func parseTaskType(s string, fallback types.TaskType) types.TaskType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development":
		return types.TypeDevelopment
	case "testing":
		return types.TypeTesting
	case "documentation":
		return types.TypeDocumentation
	case "research":
		return types.TypeResearch
	case "deployment":
		return types.TypeDeployment
	case "review":
		return types.TypeReview
	default:
		if fallback != "" {
			return fallback
		}
		return types.TypeDevelopment
	}
}

func decompositionSystemPrompt(strict bool) string {
	base := `You split software tasks into smaller sub-tasks.
Respond with JSON only:
{"subTasks": [{"title", "description", "type", "priority", "estimatedHours",
 "acceptanceCriteria": [], "filePaths": [], "dependencies": []}]}
Dependencies reference other sub-task titles in this reply.
Return {"subTasks": []} when the task cannot be split further.`
	if strict {
		base += `
STRICT MODE: the previous reply contained a dependency cycle.
Dependencies must form a directed acyclic graph. Prefer an empty
dependencies list when ordering is unclear.`
	}
	return base
}

func decompositionUserPrompt(task types.AtomicTask, project *types.ProjectContext, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\n", task.ID, task.Title)
	fmt.Fprintf(&b, "Description: %s\n", task.Description)
	fmt.Fprintf(&b, "Estimated hours: %.1f\n", task.EstimatedHours)
	fmt.Fprintf(&b, "Each sub-task must take between %.1f and %.1f hours.\n", opts.MinHours, opts.MaxHours)
	if len(task.AcceptanceCriteria) > 0 {
		fmt.Fprintf(&b, "Acceptance criteria: %s\n", strings.Join(task.AcceptanceCriteria, "; "))
	}
	if project != nil {
		fmt.Fprintf(&b, "Project: %s (%s)\n", project.ProjectName, project.ProjectPath)
		if len(project.Languages) > 0 {
			fmt.Fprintf(&b, "Languages: %s\n", strings.Join(project.Languages, ", "))
		}
		if len(project.Frameworks) > 0 {
			fmt.Fprintf(&b, "Frameworks: %s\n", strings.Join(project.Frameworks, ", "))
		}
	}
	return b.String()
}
