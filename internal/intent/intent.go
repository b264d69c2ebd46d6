// Package intent recognizes what a user wants from free-form text. A
// deterministic pattern engine runs first; when its best confidence falls
// below a threshold, an LLM fallback is consulted and its results cached.
package intent

import (
	"time"
)

// Intent is one value of the closed intent set. The dispatcher matches over
// exactly this set.
type Intent string

const (
	IntentCreateProject       Intent = "create_project"
	IntentListProjects        Intent = "list_projects"
	IntentOpenProject         Intent = "open_project"
	IntentUpdateProject       Intent = "update_project"
	IntentArchiveProject      Intent = "archive_project"
	IntentCreateTask          Intent = "create_task"
	IntentListTasks           Intent = "list_tasks"
	IntentRunTask             Intent = "run_task"
	IntentCheckStatus         Intent = "check_status"
	IntentDecomposeTask       Intent = "decompose_task"
	IntentDecomposeProject    Intent = "decompose_project"
	IntentSearchFiles         Intent = "search_files"
	IntentSearchContent       Intent = "search_content"
	IntentRefineTask          Intent = "refine_task"
	IntentAssignTask          Intent = "assign_task"
	IntentGetHelp             Intent = "get_help"
	IntentParsePRD            Intent = "parse_prd"
	IntentParseTasks          Intent = "parse_tasks"
	IntentImportArtifact      Intent = "import_artifact"
	IntentClarificationNeeded Intent = "clarification_needed"
	IntentUnknown             Intent = "unknown"
)

// allIntents is the closed set in declaration order.
var allIntents = []Intent{
	IntentCreateProject, IntentListProjects, IntentOpenProject,
	IntentUpdateProject, IntentArchiveProject, IntentCreateTask,
	IntentListTasks, IntentRunTask, IntentCheckStatus, IntentDecomposeTask,
	IntentDecomposeProject, IntentSearchFiles, IntentSearchContent,
	IntentRefineTask, IntentAssignTask, IntentGetHelp, IntentParsePRD,
	IntentParseTasks, IntentImportArtifact, IntentClarificationNeeded,
	IntentUnknown,
}

var validIntents = func() map[Intent]bool {
	m := make(map[Intent]bool, len(allIntents))
	for _, i := range allIntents {
		m[i] = true
	}
	return m
}()

// Valid reports whether i belongs to the closed intent set.
func (i Intent) Valid() bool { return validIntents[i] }

// ConfidenceLevel bands a numeric confidence.
type ConfidenceLevel string

const (
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
)

// LevelFor maps a confidence value to its band.
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.9:
		return ConfidenceVeryHigh
	case confidence >= 0.7:
		return ConfidenceHigh
	case confidence >= 0.5:
		return ConfidenceMedium
	case confidence >= 0.3:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// Method records which recognizer produced a result.
type Method string

const (
	MethodPattern Method = "pattern"
	MethodLLM     Method = "llm"
	MethodHybrid  Method = "hybrid"
)

// Entity is one extracted parameter of a recognized intent.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Alternative is a lower-ranked candidate intent.
type Alternative struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// ResultMetadata records how a recognition was produced.
type ResultMetadata struct {
	ProcessingTime time.Duration `json:"processingTime"`
	Method         Method        `json:"method"`
	ModelUsed      string        `json:"modelUsed,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// RecognitionResult is the outcome of intent recognition for one input.
type RecognitionResult struct {
	Intent          Intent          `json:"intent"`
	Confidence      float64         `json:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidenceLevel"`
	Entities        []Entity        `json:"entities,omitempty"`
	OriginalInput   string          `json:"originalInput"`
	ProcessedInput  string          `json:"processedInput"`
	Alternatives    []Alternative   `json:"alternatives,omitempty"`
	Metadata        ResultMetadata  `json:"metadata"`
}
