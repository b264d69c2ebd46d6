package types

import "time"

// TaskTypeName enumerates the curation task types used to specialize prompt
// refinement and meta-prompt generation.
type TaskTypeName string

const (
	TaskTypeFeatureAddition TaskTypeName = "feature_addition"
	TaskTypeRefactoring     TaskTypeName = "refactoring"
	TaskTypeBugFix          TaskTypeName = "bug_fix"
	TaskTypePerformance     TaskTypeName = "performance_optimization"
	TaskTypeGeneral         TaskTypeName = "general"
)

// ValidTaskType reports whether the string names a known curation task type.
func ValidTaskType(s string) bool {
	switch TaskTypeName(s) {
	case TaskTypeFeatureAddition, TaskTypeRefactoring, TaskTypeBugFix,
		TaskTypePerformance, TaskTypeGeneral:
		return true
	}
	return false
}

// ModificationLikelihood estimates how likely a file is to be modified.
type ModificationLikelihood string

const (
	LikelihoodVeryHigh ModificationLikelihood = "very_high"
	LikelihoodHigh     ModificationLikelihood = "high"
	LikelihoodMedium   ModificationLikelihood = "medium"
	LikelihoodLow      ModificationLikelihood = "low"
	LikelihoodVeryLow  ModificationLikelihood = "very_low"
)

// LikelihoodRank orders likelihoods for tie-breaking: very_high > high >
// medium > low > very_low.
func LikelihoodRank(m ModificationLikelihood) int {
	switch m {
	case LikelihoodVeryHigh:
		return 4
	case LikelihoodHigh:
		return 3
	case LikelihoodMedium:
		return 2
	case LikelihoodLow:
		return 1
	default:
		return 0
	}
}

// FunctionScore is a per-function relevance sub-score.
type FunctionScore struct {
	Name       string  `json:"name"`
	StartLine  int     `json:"startLine"`
	EndLine    int     `json:"endLine"`
	Relevance  float64 `json:"relevance"`
	Complexity string  `json:"complexity,omitempty"`
}

// ClassScore is a per-class relevance sub-score.
type ClassScore struct {
	Name       string  `json:"name"`
	StartLine  int     `json:"startLine"`
	EndLine    int     `json:"endLine"`
	Relevance  float64 `json:"relevance"`
	Complexity string  `json:"complexity,omitempty"`
}

// RelevanceScore is the bounded relevance estimate for a single file.
// Overall and Confidence are in [0,1]; Reasoning and Categories are non-empty
// for any score that passed gateway schema validation.
type RelevanceScore struct {
	Overall                float64                `json:"overall"`
	Confidence             float64                `json:"confidence"`
	ModificationLikelihood ModificationLikelihood `json:"modificationLikelihood"`
	Reasoning              []string               `json:"reasoning"`
	Categories             []string               `json:"categories"`
	Imports                []string               `json:"imports,omitempty"`
	Exports                []string               `json:"exports,omitempty"`
	Functions              []FunctionScore        `json:"functions,omitempty"`
	Classes                []ClassScore           `json:"classes,omitempty"`
}

// SectionType marks whether a content section carries the full file or an
// optimized slice.
type SectionType string

const (
	SectionFull      SectionType = "full"
	SectionOptimized SectionType = "optimized"
)

// ContentSection is a contiguous slice of a file's content. StartLine <=
// EndLine always holds.
type ContentSection struct {
	Type      SectionType `json:"type"`
	StartLine int         `json:"startLine"`
	EndLine   int         `json:"endLine"`
	Content   string      `json:"content"`
}

// PackageFile is a high- or medium-priority file carried with content.
type PackageFile struct {
	Path          string           `json:"path"`
	Content       string           `json:"content"`
	IsOptimized   bool             `json:"isOptimized"`
	TotalLines    int              `json:"totalLines"`
	TokenEstimate int              `json:"tokenEstimate"`
	Relevance     RelevanceScore   `json:"relevance"`
	Reasoning     string           `json:"reasoning,omitempty"`
	Language      string           `json:"language,omitempty"`
	LastModified  time.Time        `json:"lastModified"`
	Sections      []ContentSection `json:"contentSections,omitempty"`
}

// FileReference is a low-priority file carried without content.
type FileReference struct {
	Path          string    `json:"path"`
	Relevance     float64   `json:"relevance"`
	TokenEstimate int       `json:"tokenEstimate"`
	Size          int64     `json:"size"`
	Language      string    `json:"language,omitempty"`
	LastModified  time.Time `json:"lastModified"`
	Reasoning     string    `json:"reasoning,omitempty"`
}

// MetaPrompt is the task-type-specialized prompt pair for a downstream
// code-generation agent, with its hierarchical decomposition and guidelines.
type MetaPrompt struct {
	TaskType              TaskTypeName      `json:"taskType"`
	SystemPrompt          string            `json:"systemPrompt"`
	UserPrompt            string            `json:"userPrompt"`
	ContextSummary        string            `json:"contextSummary,omitempty"`
	TaskDecomposition     TaskDecomposition `json:"taskDecomposition"`
	Guidelines            []string          `json:"guidelines,omitempty"`
	EstimatedComplexity   string            `json:"estimatedComplexity,omitempty"`
	QualityScore          float64           `json:"qualityScore"`
	AIAgentResponseFormat string            `json:"aiAgentResponseFormat,omitempty"`
}

// TaskDecomposition is the epic/task/subtask hierarchy inside a meta-prompt.
type TaskDecomposition struct {
	Epics []Epic `json:"epics"`
}

// Epic groups tasks within a meta-prompt decomposition.
type Epic struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Tasks []EpicTask `json:"tasks"`
}

// EpicTask is a task within an epic.
type EpicTask struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Subtasks []string `json:"subtasks,omitempty"`
}

// QualityMetrics scores the assembled package.
type QualityMetrics struct {
	Overall              float64 `json:"overall"`
	SchemaCompliance     float64 `json:"schemaCompliance"`
	ContentCompleteness  float64 `json:"contentCompleteness"`
	MetaPromptQuality    float64 `json:"metaPromptQuality"`
	FileRelevance        float64 `json:"fileRelevance"`
	TokenEfficiency      float64 `json:"tokenEfficiency"`
	DecompositionQuality float64 `json:"taskDecompositionQuality"`
}

// PackageMetadata carries the package-level bookkeeping.
type PackageMetadata struct {
	JobID               string         `json:"jobId"`
	GeneratedAt         time.Time      `json:"generatedAt"`
	OriginalPrompt      string         `json:"originalPrompt"`
	RefinedPrompt       string         `json:"refinedPrompt"`
	TaskType            TaskTypeName   `json:"taskType"`
	TotalFiles          int            `json:"totalFiles"`
	TotalTokenEstimate  int            `json:"totalTokenEstimate"`
	MaxTokenBudget      int            `json:"maxTokenBudget"`
	HighPriorityCount   int            `json:"highPriorityCount"`
	MediumPriorityCount int            `json:"mediumPriorityCount"`
	LowPriorityCount    int            `json:"lowPriorityCount"`
	CodemapCacheUsed    bool           `json:"codemapCacheUsed"`
	ChunkingUsed        bool           `json:"chunkingUsed"`
	ProcessingTimeMs    int64          `json:"processingTimeMs"`
	Warnings            []string       `json:"warnings,omitempty"`
	Quality             QualityMetrics `json:"qualityMetrics"`
}

// ContextPackage is the final artifact of the curation pipeline.
// Sum of all token estimates never exceeds Metadata.MaxTokenBudget.
type ContextPackage struct {
	Metadata          PackageMetadata `json:"metadata"`
	RefinedPrompt     string          `json:"refinedPrompt"`
	CodemapPath       string          `json:"codemapPath"`
	HighPriorityFiles []PackageFile   `json:"highPriorityFiles"`
	MediumPriority    []PackageFile   `json:"mediumPriorityFiles"`
	LowPriorityFiles  []FileReference `json:"lowPriorityFiles"`
	MetaPrompt        *MetaPrompt     `json:"metaPrompt,omitempty"`
}

// TotalTokens returns the summed token estimate across all collections.
func (p *ContextPackage) TotalTokens() int {
	total := 0
	for _, f := range p.HighPriorityFiles {
		total += f.TokenEstimate
	}
	for _, f := range p.MediumPriority {
		total += f.TokenEstimate
	}
	for _, r := range p.LowPriorityFiles {
		total += r.TokenEstimate
	}
	return total
}
