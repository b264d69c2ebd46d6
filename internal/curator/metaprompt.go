package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"taskforge/internal/gateway"
	"taskforge/internal/types"
)

// taskTypeTemplate specializes meta-prompt generation per task type.
// Templates are data; they never contain per-request content.
type taskTypeTemplate struct {
	SystemGuidance          string
	DecompositionGuidelines string
}

var taskTypeTemplates = map[types.TaskTypeName]taskTypeTemplate{
	types.TaskTypeFeatureAddition: {
		SystemGuidance:          "Focus on extension points, public interfaces, and backwards compatibility.",
		DecompositionGuidelines: "Split by user-visible capability; each task must name the files it touches.",
	},
	types.TaskTypeRefactoring: {
		SystemGuidance:          "Preserve observable behavior. Call out every seam where behavior could drift.",
		DecompositionGuidelines: "Order tasks so the build stays green after each one; isolate mechanical renames.",
	},
	types.TaskTypeBugFix: {
		SystemGuidance:          "Identify the root cause before proposing changes. Prefer the smallest correct fix.",
		DecompositionGuidelines: "First task reproduces the defect with a failing test; later tasks fix and harden.",
	},
	types.TaskTypePerformance: {
		SystemGuidance:          "Demand measurements. Every optimization task must state its expected effect.",
		DecompositionGuidelines: "Baseline first, then targeted changes, then a verification task comparing numbers.",
	},
	types.TaskTypeGeneral: {
		SystemGuidance:          "Balance thoroughness with scope discipline.",
		DecompositionGuidelines: "Group tasks by component; keep each task independently reviewable.",
	},
}

func metaPromptSchema(raw json.RawMessage) error {
	var mp types.MetaPrompt
	if err := json.Unmarshal(raw, &mp); err != nil {
		return fmt.Errorf("meta prompt payload: %w", err)
	}
	if strings.TrimSpace(mp.SystemPrompt) == "" || strings.TrimSpace(mp.UserPrompt) == "" {
		return fmt.Errorf("systemPrompt and userPrompt must be non-empty")
	}
	if mp.QualityScore < 0 || mp.QualityScore > 1 {
		return fmt.Errorf("qualityScore %v out of [0,1]", mp.QualityScore)
	}
	return nil
}

// phaseMetaPrompt generates the downstream-agent prompt pair with its task
// decomposition, specialized by task type.
func (p *Pipeline) phaseMetaPrompt(ctx context.Context, st *pipelineState) error {
	tmpl, ok := taskTypeTemplates[st.taskType]
	if !ok {
		tmpl = taskTypeTemplates[types.TaskTypeGeneral]
	}

	systemPrompt := fmt.Sprintf(`You are a meta-prompt engineer preparing instructions for a code-generation agent.
%s

Decomposition guidelines: %s

Respond with JSON only:
{
  "systemPrompt": "...",
  "userPrompt": "...",
  "contextSummary": "...",
  "taskDecomposition": {"epics": [{"id": "...", "title": "...", "tasks": [{"id": "...", "title": "...", "subtasks": ["..."]}]}]},
  "guidelines": ["..."],
  "estimatedComplexity": "low"|"medium"|"high",
  "qualityScore": 0.0-1.0,
  "aiAgentResponseFormat": "..."
}`, tmpl.SystemGuidance, tmpl.DecompositionGuidelines)

	var fileList strings.Builder
	for _, sf := range st.scored.High {
		fmt.Fprintf(&fileList, "- %s (relevance %.2f)\n", sf.Candidate.Path, sf.Score.Overall)
	}
	for _, sf := range st.scored.Medium {
		fmt.Fprintf(&fileList, "- %s (relevance %.2f)\n", sf.Candidate.Path, sf.Score.Overall)
	}

	userPrompt := fmt.Sprintf("Task type: %s\n\nRefined task:\n%s\n\nRelevant files:\n%s",
		st.taskType, st.refinedPrompt, fileList.String())

	raw, err := p.gw.Call(ctx, gateway.Request{
		TaskName:     "meta_prompt_generation",
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		Format:       gateway.FormatJSON,
		Schema:       gateway.SchemaFunc(metaPromptSchema),
	})
	if err != nil {
		return err
	}

	var mp types.MetaPrompt
	if err := json.Unmarshal([]byte(raw), &mp); err != nil {
		return types.WrapError(types.ErrInvalidModelOutput, err, "meta prompt decode")
	}
	mp.TaskType = st.taskType
	st.metaPrompt = &mp
	return nil
}
