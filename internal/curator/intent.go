package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"taskforge/internal/gateway"
	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// IntentScope bounds the expected blast radius of the requested change.
type IntentScope struct {
	Complexity     string `json:"complexity"`
	EstimatedFiles int    `json:"estimatedFiles"`
	RiskLevel      string `json:"riskLevel"`
}

// IntentAnalysisResult is the model's reading of the user prompt, augmented
// with code-map-derived project analysis.
type IntentAnalysisResult struct {
	TaskType                types.TaskTypeName `json:"taskType"`
	Confidence              float64            `json:"confidence"`
	Reasoning               []string           `json:"reasoning"`
	ArchitecturalComponents []string           `json:"architecturalComponents,omitempty"`
	Scope                   IntentScope        `json:"scope"`
	SuggestedFocusAreas     []string           `json:"suggestedFocusAreas,omitempty"`
	EstimatedEffort         string             `json:"estimatedEffort,omitempty"`
}

// PromptRefinementResult is the model's sharpened restatement of the prompt.
type PromptRefinementResult struct {
	RefinedPrompt        string   `json:"refinedPrompt"`
	KeyRequirements      []string `json:"keyRequirements,omitempty"`
	TechnicalConstraints []string `json:"technicalConstraints,omitempty"`
}

const intentAnalysisSystemPrompt = `You are a software project analyst. Given a user's development request and a code map of their project, classify the request and assess its scope.

Respond with JSON only:
{
  "taskType": "feature_addition" | "refactoring" | "bug_fix" | "performance_optimization" | "general",
  "confidence": 0.0-1.0,
  "reasoning": ["..."],
  "architecturalComponents": ["..."],
  "scope": {"complexity": "low"|"medium"|"high", "estimatedFiles": <int>, "riskLevel": "low"|"medium"|"high"},
  "suggestedFocusAreas": ["..."],
  "estimatedEffort": "..."
}`

const promptRefinementSystemPrompt = `You are a prompt engineer. Rewrite the user's development request into a precise, self-contained instruction grounded in the project analysis provided. The refined prompt must preserve the original intent and add explicit technical constraints.

Respond with JSON only:
{
  "refinedPrompt": "...",
  "keyRequirements": ["..."],
  "technicalConstraints": ["..."]
}`

func intentAnalysisSchema(raw json.RawMessage) error {
	var r IntentAnalysisResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("intent analysis payload: %w", err)
	}
	if !types.ValidTaskType(string(r.TaskType)) {
		return fmt.Errorf("unknown taskType %q", r.TaskType)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", r.Confidence)
	}
	if len(r.Reasoning) == 0 {
		return fmt.Errorf("reasoning must be non-empty")
	}
	return nil
}

func promptRefinementSchema(raw json.RawMessage) error {
	var r PromptRefinementResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("prompt refinement payload: %w", err)
	}
	if strings.TrimSpace(r.RefinedPrompt) == "" {
		return fmt.Errorf("refinedPrompt must be non-empty")
	}
	return nil
}

// phaseIntentAnalysis classifies the request and augments the result with
// project and language analysis derived from the code map.
func (p *Pipeline) phaseIntentAnalysis(ctx context.Context, st *pipelineState) error {
	key := hashKey(st.req.Prompt, st.codemapPath, string(st.taskType))

	st.cacheLookups++
	var analysis IntentAnalysisResult
	if p.cache.get("intent-analysis", key, &analysis) {
		st.cacheHits++
	} else {
		userPrompt := fmt.Sprintf("Request:\n%s\n\nCode map excerpt:\n%s",
			st.req.Prompt, truncate(st.codemapContent, 12000))
		raw, err := p.gw.Call(ctx, gateway.Request{
			TaskName:     "intent_analysis",
			SystemPrompt: intentAnalysisSystemPrompt,
			UserPrompt:   userPrompt,
			Temperature:  0.1,
			Format:       gateway.FormatJSON,
			Schema:       gateway.SchemaFunc(intentAnalysisSchema),
		})
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
			return types.WrapError(types.ErrInvalidModelOutput, err, "intent analysis decode")
		}
		p.cache.put("intent-analysis", key, &analysis)
	}

	st.intent = analysis
	st.languages = AnalyzeLanguages(st.codemapContent)
	st.projectType = AnalyzeProjectType(st.codemapContent)

	// An explicit task_type in the request wins over the model's guess.
	if st.taskType == types.TaskTypeGeneral && analysis.TaskType != "" {
		st.taskType = analysis.TaskType
	}

	logging.Curator("job %s intent: %s (confidence %.2f), project type %s",
		st.jobID, st.taskType, analysis.Confidence, st.projectType.ProjectType)
	return nil
}

// phasePromptRefinement rewrites the prompt with the phase-2 analysis folded
// in. The result is never less specific than the original.
func (p *Pipeline) phasePromptRefinement(ctx context.Context, st *pipelineState) error {
	analysisJSON, _ := json.Marshal(struct {
		Intent      IntentAnalysisResult      `json:"intent"`
		ProjectType ProjectTypeAnalysisResult `json:"projectType"`
		Languages   LanguageAnalysisResult    `json:"languages"`
	}{st.intent, st.projectType, st.languages})

	userPrompt := fmt.Sprintf("Original request:\n%s\n\nFocus areas: %s\n\nProject analysis:\n%s",
		st.req.Prompt, strings.Join(st.req.FocusAreas, ", "), analysisJSON)

	raw, err := p.gw.Call(ctx, gateway.Request{
		TaskName:     "prompt_refinement",
		SystemPrompt: promptRefinementSystemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.2,
		Format:       gateway.FormatJSON,
		Schema:       gateway.SchemaFunc(promptRefinementSchema),
	})
	if err != nil {
		return err
	}
	var result PromptRefinementResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return types.WrapError(types.ErrInvalidModelOutput, err, "prompt refinement decode")
	}

	refined := strings.TrimSpace(result.RefinedPrompt)
	if len(refined) < len(st.req.Prompt) {
		refined = st.req.Prompt
	}
	if len(result.TechnicalConstraints) > 0 {
		refined += "\n\nTechnical constraints:\n- " + strings.Join(result.TechnicalConstraints, "\n- ")
	}
	st.refinedPrompt = refined
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
