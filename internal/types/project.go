package types

import "time"

// CodebaseSize buckets a project by file count.
type CodebaseSize string

const (
	SizeSmall  CodebaseSize = "small"
	SizeMedium CodebaseSize = "medium"
	SizeLarge  CodebaseSize = "large"
)

// Complexity buckets overall project complexity.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// ContextSource records how a project context was produced.
type ContextSource string

const (
	SourceManual ContextSource = "manual"
	SourceAuto   ContextSource = "auto"
)

// ProjectStructure describes the directory layout of a project.
type ProjectStructure struct {
	SourceDirs []string `json:"sourceDirectories,omitempty"`
	TestDirs   []string `json:"testDirectories,omitempty"`
	DocDirs    []string `json:"docDirectories,omitempty"`
	BuildDirs  []string `json:"buildDirectories,omitempty"`
}

// ProjectDependencies splits dependencies by role.
type ProjectDependencies struct {
	Production  []string `json:"production,omitempty"`
	Development []string `json:"development,omitempty"`
	External    []string `json:"external,omitempty"`
}

// RelevantFile is a single file selected into a codebase context snapshot.
type RelevantFile struct {
	Path      string  `json:"path"`
	Relevance float64 `json:"relevance"`
	Reason    string  `json:"reason,omitempty"`
	Size      int64   `json:"size,omitempty"`
	Language  string  `json:"language,omitempty"`
}

// GatheringMetrics records how the codebase context was assembled.
type GatheringMetrics struct {
	FilesScanned  int           `json:"filesScanned"`
	FilesIncluded int           `json:"filesIncluded"`
	Duration      time.Duration `json:"duration"`
	CacheHit      bool          `json:"cacheHit"`
}

// CodebaseContext is a snapshot of relevant files and summary metrics.
type CodebaseContext struct {
	RelevantFiles    []RelevantFile   `json:"relevantFiles,omitempty"`
	ContextSummary   string           `json:"contextSummary,omitempty"`
	Metrics          GatheringMetrics `json:"gatheringMetrics"`
	TotalContextSize int64            `json:"totalContextSize"`
	AverageRelevance float64          `json:"averageRelevance"`
}

// ExistingTasksSummary summarizes tasks already attached to a project.
type ExistingTasksSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// ProjectContextMetadata records provenance of a project context.
type ProjectContextMetadata struct {
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Version   string        `json:"version"`
	Source    ContextSource `json:"source"`
}

// ProjectContext is the read-only project snapshot consumed by the
// decomposition engine and curation pipeline. It is created once per session
// and never mutated afterwards.
type ProjectContext struct {
	ProjectID   string `json:"projectId"`
	ProjectPath string `json:"projectPath"`
	ProjectName string `json:"projectName"`
	Description string `json:"description,omitempty"`

	Languages             []string `json:"languages,omitempty"`
	Frameworks            []string `json:"frameworks,omitempty"`
	BuildTools            []string `json:"buildTools,omitempty"`
	Tools                 []string `json:"tools,omitempty"`
	ConfigFiles           []string `json:"configFiles,omitempty"`
	EntryPoints           []string `json:"entryPoints,omitempty"`
	ArchitecturalPatterns []string `json:"architecturalPatterns,omitempty"`

	ExistingTasks ExistingTasksSummary `json:"existingTasks"`
	CodebaseSize  CodebaseSize         `json:"codebaseSize"`
	TeamSize      int                  `json:"teamSize"`
	Complexity    Complexity           `json:"complexity"`

	Structure    ProjectStructure    `json:"structure"`
	Dependencies ProjectDependencies `json:"dependencies"`

	CodebaseContext *CodebaseContext `json:"codebaseContext,omitempty"`

	Metadata ProjectContextMetadata `json:"metadata"`
}

// CodeMapInfo describes a generated code-map artifact on disk.
type CodeMapInfo struct {
	FilePath    string    `json:"filePath"`
	GeneratedAt time.Time `json:"generatedAt"`
	ProjectPath string    `json:"projectPath"`
	FileSize    int64     `json:"fileSize"`
}

// IsStale reports whether the map is older than maxAge at the given instant.
// Staleness is purely age-based.
func (c CodeMapInfo) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(c.GeneratedAt) > maxAge
}
