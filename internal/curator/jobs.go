package curator

import (
	"sync"
	"time"

	"taskforge/internal/types"
)

// JobStatus is the lifecycle state of a curation job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Summary is the terminal result of a completed job.
type Summary struct {
	JobID                 string  `json:"jobId"`
	TotalFiles            int     `json:"totalFiles"`
	TotalTokens           int     `json:"totalTokens"`
	AverageRelevanceScore float64 `json:"averageRelevanceScore"`
	CacheHitRate          float64 `json:"cacheHitRate"`
	ProcessingTimeMs      int64   `json:"processingTimeMs"`
	OutputPath            string  `json:"outputPath"`
}

// Job is the caller-visible state of one pipeline run.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase,omitempty"`
	Result    *Summary  `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Jobs is the in-memory, process-scoped job registry.
type Jobs struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobs creates an empty registry.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*Job)}
}

func (j *Jobs) create(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	j.jobs[id] = &Job{ID: id, Status: JobPending, CreatedAt: now, UpdatedAt: now}
}

// Get returns a snapshot of a job.
func (j *Jobs) Get(id string) (*Job, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	job, ok := j.jobs[id]
	if !ok {
		return nil, types.NewError(types.ErrResourceNotFound, "job %q not found", id)
	}
	snap := *job
	if job.Result != nil {
		r := *job.Result
		snap.Result = &r
	}
	return &snap, nil
}

func (j *Jobs) setPhase(id, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if job, ok := j.jobs[id]; ok {
		job.Status = JobRunning
		job.Phase = phase
		job.UpdatedAt = time.Now()
	}
}

func (j *Jobs) complete(id string, result *Summary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if job, ok := j.jobs[id]; ok {
		job.Status = JobCompleted
		job.Result = result
		job.UpdatedAt = time.Now()
	}
}

func (j *Jobs) fail(id, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if job, ok := j.jobs[id]; ok {
		job.Status = JobFailed
		job.Error = msg
		job.UpdatedAt = time.Now()
	}
}
