package curator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"taskforge/internal/codemap"
	"taskforge/internal/config"
	"taskforge/internal/gateway"
	"taskforge/internal/logging"
	"taskforge/internal/security"
	"taskforge/internal/types"
)

// Phase names, in pipeline order. The failing phase name is carried on every
// surfaced error.
const (
	PhaseInitialization   = "initialization"
	PhaseIntentAnalysis   = "intent_analysis"
	PhasePromptRefinement = "prompt_refinement"
	PhaseFileDiscovery    = "file_discovery"
	PhaseRelevanceScoring = "relevance_scoring"
	PhaseMetaPrompt       = "meta_prompt_generation"
	PhaseAssembly         = "package_assembly"
	PhaseOutput           = "output_generation"
)

// Event reports phase progress for a job.
type Event struct {
	JobID     string
	Phase     string
	Status    JobStatus
	Timestamp time.Time
}

// Request is the inbound curation request. Zero values take the documented
// defaults during normalization.
type Request struct {
	Prompt      string
	ProjectPath string
	TaskType    string

	MaxFiles        int
	IncludePatterns []string
	ExcludePatterns []string
	FocusAreas      []string
	MaxTokenBudget  int

	// OutputFormat is "xml" or "json".
	OutputFormat string

	// UseCodeMapCache defaults to true when nil.
	UseCodeMapCache    *bool
	CacheMaxAgeMinutes int
}

// StartResult is the immediate response to a Start call.
type StartResult struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// Pipeline is the eight-phase context curation orchestrator. All collaborators
// are injected; the pipeline owns no process-global state beyond its job
// registry.
type Pipeline struct {
	gw        *gateway.Gateway
	maps      *codemap.Provider
	validator *security.Validator
	cfg       config.CuratorConfig
	out       config.OutputConfig
	jobs      *Jobs
	tokens    *TokenEstimator
	cache     *advisoryCache
	events    chan Event
}

// NewPipeline wires a pipeline over its collaborators.
func NewPipeline(gw *gateway.Gateway, maps *codemap.Provider, validator *security.Validator, cfg config.CuratorConfig, out config.OutputConfig) *Pipeline {
	return &Pipeline{
		gw:        gw,
		maps:      maps,
		validator: validator,
		cfg:       cfg,
		out:       out,
		jobs:      NewJobs(),
		tokens:    NewTokenEstimator(),
		cache:     newAdvisoryCache(out.Dir),
		events:    make(chan Event, 64),
	}
}

// Jobs exposes the job registry for status lookups.
func (p *Pipeline) Jobs() *Jobs { return p.jobs }

// Events returns the phase-progress channel. Events are dropped when no one
// is draining.
func (p *Pipeline) Events() <-chan Event { return p.events }

// normalize applies defaults and range checks to a request.
func (p *Pipeline) normalize(req Request) (Request, error) {
	if req.Prompt == "" {
		return req, types.NewError(types.ErrInvalidInput, "prompt is required")
	}
	if req.ProjectPath == "" {
		return req, types.NewError(types.ErrInvalidInput, "project_path is required")
	}
	if req.TaskType == "" {
		req.TaskType = string(types.TaskTypeGeneral)
	}
	if !types.ValidTaskType(req.TaskType) {
		return req, types.NewError(types.ErrInvalidInput, "unknown task_type %q", req.TaskType)
	}
	if req.MaxFiles == 0 {
		req.MaxFiles = p.cfg.MaxFiles
	}
	if req.MaxFiles < 1 || req.MaxFiles > 1000 {
		return req, types.NewError(types.ErrInvalidInput, "max_files %d out of range 1-1000", req.MaxFiles)
	}
	if req.MaxTokenBudget == 0 {
		req.MaxTokenBudget = p.cfg.MaxTokenBudget
	}
	if req.MaxTokenBudget < 1000 || req.MaxTokenBudget > 500000 {
		return req, types.NewError(types.ErrInvalidInput, "max_token_budget %d out of range 1000-500000", req.MaxTokenBudget)
	}
	if len(req.IncludePatterns) == 0 {
		req.IncludePatterns = p.cfg.IncludePatterns
	}
	if len(req.ExcludePatterns) == 0 {
		req.ExcludePatterns = p.cfg.ExcludePatterns
	}
	if req.OutputFormat == "" {
		req.OutputFormat = "xml"
	}
	if req.OutputFormat != "xml" && req.OutputFormat != "json" {
		return req, types.NewError(types.ErrInvalidInput, "output_format must be xml or json, got %q", req.OutputFormat)
	}
	if req.UseCodeMapCache == nil {
		v := p.cfg.UseCodeMapCache
		req.UseCodeMapCache = &v
	}
	if req.CacheMaxAgeMinutes == 0 {
		req.CacheMaxAgeMinutes = p.cfg.CacheMaxAgeMinutes
	}
	if req.CacheMaxAgeMinutes < 1 || req.CacheMaxAgeMinutes > 1440 {
		return req, types.NewError(types.ErrInvalidInput, "cacheMaxAgeMinutes %d out of range 1-1440", req.CacheMaxAgeMinutes)
	}
	return req, nil
}

// Start validates the request and launches the pipeline asynchronously. The
// terminal result is retrieved through the job registry.
func (p *Pipeline) Start(ctx context.Context, req Request) (*StartResult, error) {
	req, err := p.normalize(req)
	if err != nil {
		return nil, err
	}
	if _, err := p.validator.ValidateExisting(req.ProjectPath); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	p.jobs.create(jobID)
	logging.Curator("job %s started for %s", jobID, req.ProjectPath)

	go p.run(ctx, jobID, req)

	return &StartResult{
		JobID:   jobID,
		Message: fmt.Sprintf("%s Context curation started (job %s)", types.MarkInProgress, jobID),
	}, nil
}

// pipelineState accumulates phase outputs within a single job, in pipeline
// order.
type pipelineState struct {
	req       Request
	jobID     string
	startedAt time.Time
	warnings  []string

	cacheLookups int
	cacheHits    int

	codemapPath      string
	codemapContent   string
	codemapCacheUsed bool

	intent      IntentAnalysisResult
	projectType ProjectTypeAnalysisResult
	languages   LanguageAnalysisResult
	taskType    types.TaskTypeName

	refinedPrompt string

	candidates   []FileCandidate
	chunkingUsed bool
	scored       scoredFiles

	metaPrompt *types.MetaPrompt

	pkg     *types.ContextPackage
	summary *Summary
}

func (s *pipelineState) warn(format string, args ...interface{}) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

func (p *Pipeline) run(ctx context.Context, jobID string, req Request) {
	st := &pipelineState{
		req:       req,
		jobID:     jobID,
		startedAt: time.Now(),
		taskType:  types.TaskTypeName(req.TaskType),
	}

	phases := []struct {
		name string
		fn   func(context.Context, *pipelineState) error
	}{
		{PhaseInitialization, p.phaseInit},
		{PhaseIntentAnalysis, p.phaseIntentAnalysis},
		{PhasePromptRefinement, p.phasePromptRefinement},
		{PhaseFileDiscovery, p.phaseFileDiscovery},
		{PhaseRelevanceScoring, p.phaseRelevanceScoring},
		{PhaseMetaPrompt, p.phaseMetaPrompt},
		{PhaseAssembly, p.phaseAssembly},
		{PhaseOutput, p.phaseOutput},
	}

	for _, ph := range phases {
		p.jobs.setPhase(jobID, ph.name)
		p.emit(Event{JobID: jobID, Phase: ph.name, Status: JobRunning, Timestamp: time.Now()})

		pctx, cancel := context.WithTimeout(ctx, p.cfg.PhaseTimeout)
		err := ph.fn(pctx, st)
		cancel()

		if err != nil {
			err = phaseError(ph.name, err)
			logging.Curator("job %s failed in %s: %v", jobID, ph.name, err)
			p.jobs.fail(jobID, err.Error())
			p.emit(Event{JobID: jobID, Phase: ph.name, Status: JobFailed, Timestamp: time.Now()})
			return
		}
	}

	p.jobs.complete(jobID, st.summary)
	p.emit(Event{JobID: jobID, Phase: PhaseOutput, Status: JobCompleted, Timestamp: time.Now()})
	logging.Curator("job %s completed: %d files, %d tokens, output %s",
		jobID, st.summary.TotalFiles, st.summary.TotalTokens, st.summary.OutputPath)
}

func (p *Pipeline) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
	}
}

// phaseError stamps the failing phase onto the error, promoting deadline and
// cancellation errors to their structural kinds.
func phaseError(phase string, err error) error {
	var e *types.Error
	if errors.As(err, &e) {
		stamped := *e
		stamped.Phase = phase
		return &stamped
	}
	kind := types.ErrInternal
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = types.ErrTimeout
	case errors.Is(err, context.Canceled):
		kind = types.ErrCancelled
	}
	return &types.Error{Kind: kind, Phase: phase, Msg: err.Error(), Cause: err}
}

// phaseInit validates the project path and resolves the code map, reusing a
// fresh cached map when permitted.
func (p *Pipeline) phaseInit(ctx context.Context, st *pipelineState) error {
	projectPath, err := p.validator.ValidateExisting(st.req.ProjectPath)
	if err != nil {
		return err
	}
	st.req.ProjectPath = projectPath

	maxAge := time.Duration(st.req.CacheMaxAgeMinutes) * time.Minute

	var info *types.CodeMapInfo
	if *st.req.UseCodeMapCache {
		existing, derr := p.maps.DetectExisting(projectPath)
		if derr == nil && existing != nil && !existing.IsStale(time.Now(), maxAge) {
			info = existing
			st.codemapCacheUsed = true
			logging.Curator("job %s reusing code map %s", st.jobID, existing.FilePath)
		}
	}
	if info == nil {
		result, gerr := p.maps.Generate(ctx, projectPath)
		if gerr != nil {
			return gerr
		}
		info = &types.CodeMapInfo{
			FilePath:    result.FilePath,
			GeneratedAt: time.Now(),
			ProjectPath: projectPath,
		}
	}

	content, err := os.ReadFile(info.FilePath)
	if err != nil {
		return types.WrapError(types.ErrResourceNotFound, err, "code map unreadable at %s", info.FilePath)
	}
	st.codemapPath = info.FilePath
	st.codemapContent = string(content)
	return nil
}
