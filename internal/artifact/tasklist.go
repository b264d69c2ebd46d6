package artifact

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

var (
	// taskLineRe matches "- [ ] **T1**: Title" and looser variants.
	taskLineRe = regexp.MustCompile(`^[-*]\s+(?:\[([ xX])\]\s+)?(?:\*\*([\w.\-]+)\*\*[:.]?\s*)?(.+)$`)
	hoursRe    = regexp.MustCompile(`\((\d+(?:\.\d+)?)\s*h(?:ours?|rs?)?\)`)
	phaseRe    = regexp.MustCompile(`^##\s+(.+)$`)
)

// ParseTaskList parses a task-list markdown file. Metadata comes from the
// filename convention when it matches.
func (p *Parser) ParseTaskList(path string) (*TaskListData, error) {
	content, err := p.readValidated(path)
	if err != nil {
		return nil, err
	}
	data := parseTaskListContent(content)
	data.FilePath = path
	data.Metadata = ParseTaskListMetadata(filepath.Base(path), time.Now())
	logging.Get(logging.CategoryArtifact).Info("parsed task list %s: %d phases, %d tasks",
		path, data.Statistics.PhaseCount, data.Statistics.TotalTasks)
	return data, nil
}

func parseTaskListContent(content string) *TaskListData {
	data := &TaskListData{}
	var phase *TaskPhase
	var overviewLines []string
	inOverview := false
	taskSeq := 0

	flushPhase := func() {
		if phase != nil {
			data.Phases = append(data.Phases, *phase)
			phase = nil
		}
	}

	lines := strings.Split(content, "\n")
	for _, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		indented := len(raw) > 0 && (raw[0] == ' ' || raw[0] == '\t')

		if m := phaseRe.FindStringSubmatch(trimmed); m != nil {
			flushPhase()
			name := strings.TrimSpace(m[1])
			if strings.Contains(strings.ToLower(name), "overview") {
				inOverview = true
				continue
			}
			inOverview = false
			phase = &TaskPhase{Name: name}
			continue
		}

		if inOverview {
			if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				overviewLines = append(overviewLines, trimmed)
			}
			continue
		}
		if phase == nil {
			continue
		}

		// Indented bullets annotate the previous task.
		if indented && len(phase.Tasks) > 0 {
			if detail, ok := cutBullet(trimmed); ok {
				annotateTask(&phase.Tasks[len(phase.Tasks)-1], detail)
				continue
			}
		}

		if m := taskLineRe.FindStringSubmatch(trimmed); m != nil {
			taskSeq++
			task := ParsedTask{
				ID:        m[2],
				Completed: m[1] == "x" || m[1] == "X",
			}
			if task.ID == "" {
				task.ID = "T" + strconv.Itoa(taskSeq)
			}
			title := strings.TrimSpace(m[3])
			if hm := hoursRe.FindStringSubmatch(title); hm != nil {
				task.EstimatedHours, _ = strconv.ParseFloat(hm[1], 64)
				title = strings.TrimSpace(strings.Replace(title, hm[0], "", 1))
			}
			task.Title = title
			phase.Tasks = append(phase.Tasks, task)
			continue
		}

		if trimmed != "" && phase.Description == "" && len(phase.Tasks) == 0 && !strings.HasPrefix(trimmed, "#") {
			phase.Description = trimmed
		}
	}
	flushPhase()

	data.Overview = strings.Join(overviewLines, " ")
	for i := range data.Phases {
		for j := range data.Phases[i].Tasks {
			t := &data.Phases[i].Tasks[j]
			data.Statistics.TotalTasks++
			data.Statistics.TotalHours += t.EstimatedHours
			if t.Completed {
				data.Statistics.CompletedTasks++
			}
		}
	}
	data.Statistics.PhaseCount = len(data.Phases)
	return data
}

// annotateTask applies an indented detail bullet to a task. Recognized
// prefixes carry structure; anything else extends the description.
func annotateTask(task *ParsedTask, detail string) {
	lower := strings.ToLower(detail)
	switch {
	case strings.HasPrefix(lower, "depends on:") || strings.HasPrefix(lower, "dependencies:"):
		task.Dependencies = append(task.Dependencies, splitList(afterColon(detail))...)
	case strings.HasPrefix(lower, "files:") || strings.HasPrefix(lower, "file paths:"):
		task.FilePaths = append(task.FilePaths, splitList(afterColon(detail))...)
	case strings.HasPrefix(lower, "priority:"):
		task.Priority = strings.ToLower(strings.TrimSpace(afterColon(detail)))
	case strings.HasPrefix(lower, "ac:") || strings.HasPrefix(lower, "acceptance:"):
		task.AcceptanceCriteria = append(task.AcceptanceCriteria, strings.TrimSpace(afterColon(detail)))
	default:
		if task.Description == "" {
			task.Description = detail
		} else {
			task.Description += " " + detail
		}
	}
}

func afterColon(s string) string {
	if idx := strings.Index(s, ":"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConvertToAtomicTasks materializes parsed tasks into atomic tasks seeded for
// decomposition. Defaults: status pending, type development, priority medium,
// two estimated hours when unstated.
func ConvertToAtomicTasks(data *TaskListData, projectID, epicID, createdBy string) []types.AtomicTask {
	now := time.Now()
	var tasks []types.AtomicTask
	for _, phase := range data.Phases {
		for _, pt := range phase.Tasks {
			hours := pt.EstimatedHours
			if hours == 0 {
				hours = 2
			}
			if hours < types.MinEstimatedHours {
				hours = types.MinEstimatedHours
			}
			if hours > types.MaxEstimatedHours {
				hours = types.MaxEstimatedHours
			}

			priority := types.PriorityMedium
			switch strings.ToLower(pt.Priority) {
			case "low":
				priority = types.PriorityLow
			case "high":
				priority = types.PriorityHigh
			case "critical":
				priority = types.PriorityCritical
			}

			status := types.StatusPending
			if pt.Completed {
				status = types.StatusCompleted
			}

			description := pt.Description
			if description == "" {
				description = pt.Title
			}

			tasks = append(tasks, types.AtomicTask{
				ID:                 projectID + "-" + pt.ID,
				Title:              pt.Title,
				Description:        description,
				Status:             status,
				Priority:           priority,
				Type:               inferTaskType(pt.Title),
				EstimatedHours:     hours,
				ProjectID:          projectID,
				EpicID:             epicID,
				Dependencies:       prefixIDs(projectID, pt.Dependencies),
				FilePaths:          pt.FilePaths,
				AcceptanceCriteria: pt.AcceptanceCriteria,
				CreatedAt:          now,
				UpdatedAt:          now,
				CreatedBy:          createdBy,
				Metadata:           map[string]string{"source": "task_list", "phase": phase.Name},
			})
		}
	}
	types.PopulateDependents(tasks)
	return tasks
}

// prefixIDs qualifies bare task ids with the project id so dependency edges
// stay inside the converted set.
func prefixIDs(projectID string, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if strings.HasPrefix(id, projectID+"-") {
			out[i] = id
		} else {
			out[i] = projectID + "-" + id
		}
	}
	return out
}

// inferTaskType guesses the task type from the title.
func inferTaskType(title string) types.TaskType {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "test"):
		return types.TypeTesting
	case strings.Contains(lower, "document") || strings.Contains(lower, "readme") || strings.Contains(lower, "docs"):
		return types.TypeDocumentation
	case strings.Contains(lower, "research") || strings.Contains(lower, "investigate") || strings.Contains(lower, "spike"):
		return types.TypeResearch
	case strings.Contains(lower, "deploy") || strings.Contains(lower, "release") || strings.Contains(lower, "ci"):
		return types.TypeDeployment
	case strings.Contains(lower, "review"):
		return types.TypeReview
	default:
		return types.TypeDevelopment
	}
}
