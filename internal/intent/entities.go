package intent

import (
	"regexp"
	"strings"
)

// Entity extraction runs on the original case-preserving input so values like
// project names keep their capitalization.

const patternEntityConfidence = 0.9

var (
	quotedRe    = regexp.MustCompile(`["']([^"']+)["']`)
	calledRe    = regexp.MustCompile(`(?i)(?:called|named|titled)\s+["']?([\w][\w\s-]*?)["']?(?:\s*$|[,.])`)
	taskIDRe    = regexp.MustCompile(`(?i)task\s+#?([\w][\w.-]*)`)
	agentRe     = regexp.MustCompile(`(?i)(?:agent|to)\s+@?([A-Z][\w-]*)`)
	statusRe    = regexp.MustCompile(`(?i)\b(pending|in[\s_-]progress|completed|blocked|cancelled|done|open)\b`)
	filePathRe  = regexp.MustCompile(`[\w\-./\\]+\.[A-Za-z0-9]{1,8}`)
	searchForRe = regexp.MustCompile(`(?i)(?:search|look|find|grep)\s+(?:for\s+)?["']?([\w][\w\s.-]*?)["']?(?:\s+in\b|\s*$)`)
	tagRe       = regexp.MustCompile(`#([A-Za-z]\w*)`)
	integerRe   = regexp.MustCompile(`\b(\d+)\b`)
)

// extractEntities applies the intent-specific extractor plus the generic one.
func extractEntities(in Intent, original string) []Entity {
	var entities []Entity

	switch in {
	case IntentCreateProject, IntentOpenProject, IntentUpdateProject, IntentArchiveProject, IntentDecomposeProject:
		entities = append(entities, extractProjectName(original)...)
	case IntentCreateTask, IntentRunTask, IntentDecomposeTask, IntentRefineTask:
		entities = append(entities, extractTaskInfo(original)...)
	case IntentCheckStatus:
		entities = append(entities, extractStatusInfo(original)...)
	case IntentAssignTask:
		entities = append(entities, extractTaskInfo(original)...)
		entities = append(entities, extractAgentInfo(original)...)
	case IntentSearchFiles, IntentSearchContent:
		entities = append(entities, extractSearchInfo(original)...)
	case IntentParsePRD, IntentParseTasks, IntentImportArtifact:
		entities = append(entities, extractArtifactInfo(original)...)
	}

	entities = append(entities, extractGeneric(original)...)
	return dedupeEntities(entities)
}

func extractProjectName(text string) []Entity {
	if m := quotedRe.FindStringSubmatch(text); m != nil {
		return []Entity{{Type: "projectName", Value: m[1], Confidence: patternEntityConfidence}}
	}
	if m := calledRe.FindStringSubmatch(text); m != nil {
		return []Entity{{Type: "projectName", Value: strings.TrimSpace(m[1]), Confidence: 0.7}}
	}
	return nil
}

func extractTaskInfo(text string) []Entity {
	var out []Entity
	if m := taskIDRe.FindStringSubmatch(text); m != nil {
		out = append(out, Entity{Type: "taskId", Value: m[1], Confidence: patternEntityConfidence})
	}
	if m := quotedRe.FindStringSubmatch(text); m != nil {
		out = append(out, Entity{Type: "taskTitle", Value: m[1], Confidence: patternEntityConfidence})
	}
	return out
}

func extractStatusInfo(text string) []Entity {
	var out []Entity
	if m := statusRe.FindStringSubmatch(text); m != nil {
		value := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(m[1]))
		out = append(out, Entity{Type: "status", Value: value, Confidence: patternEntityConfidence})
	}
	if m := taskIDRe.FindStringSubmatch(text); m != nil {
		out = append(out, Entity{Type: "taskId", Value: m[1], Confidence: patternEntityConfidence})
	}
	return out
}

func extractAgentInfo(text string) []Entity {
	if m := agentRe.FindStringSubmatch(text); m != nil {
		return []Entity{{Type: "agent", Value: m[1], Confidence: 0.8}}
	}
	return nil
}

func extractSearchInfo(text string) []Entity {
	if m := quotedRe.FindStringSubmatch(text); m != nil {
		return []Entity{{Type: "query", Value: m[1], Confidence: patternEntityConfidence}}
	}
	if m := searchForRe.FindStringSubmatch(text); m != nil {
		return []Entity{{Type: "query", Value: strings.TrimSpace(m[1]), Confidence: 0.7}}
	}
	return nil
}

func extractArtifactInfo(text string) []Entity {
	if m := filePathRe.FindStringSubmatch(text); m != nil {
		return []Entity{{Type: "artifactPath", Value: m[0], Confidence: patternEntityConfidence}}
	}
	return nil
}

// extractGeneric pulls tags (#foo) and bare integers from any input.
func extractGeneric(text string) []Entity {
	var out []Entity
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		out = append(out, Entity{Type: "tag", Value: m[1], Confidence: patternEntityConfidence})
	}
	for _, m := range integerRe.FindAllStringSubmatch(text, -1) {
		out = append(out, Entity{Type: "number", Value: m[1], Confidence: patternEntityConfidence})
	}
	return out
}

func dedupeEntities(entities []Entity) []Entity {
	seen := map[string]bool{}
	out := entities[:0]
	for _, e := range entities {
		key := e.Type + "|" + e.Value
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
