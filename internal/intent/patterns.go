package intent

import "regexp"

// Pattern is one recognizer rule for an intent. Regexes run against the
// normalized (lower-cased, trimmed) input; keywords feed the confidence
// formula.
type Pattern struct {
	ID               string
	Intent           Intent
	Regexes          []*regexp.Regexp
	Keywords         []string
	RequiredEntities []string
	OptionalEntities []string
	Priority         int
	Active           bool
}

func re(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// defaultPatterns returns the built-in pattern table. Order within an intent
// reflects priority.
func defaultPatterns() []Pattern {
	return []Pattern{
		{
			ID:     "create_project_explicit",
			Intent: IntentCreateProject,
			Regexes: re(
				`(?:create|start|make|new)\s+(?:a\s+)?(?:new\s+)?project`,
				`set\s+up\s+(?:a\s+)?project`,
			),
			Keywords:         []string{"create", "new", "project", "start"},
			RequiredEntities: []string{"projectName"},
			Priority:         10,
			Active:           true,
		},
		{
			ID:      "list_projects",
			Intent:  IntentListProjects,
			Regexes: re(`(?:list|show|display)\s+(?:all\s+|my\s+)?projects`, `what\s+projects`),
			Keywords: []string{
				"list", "show", "projects",
			},
			Priority: 10,
			Active:   true,
		},
		{
			ID:               "open_project",
			Intent:           IntentOpenProject,
			Regexes:          re(`(?:open|switch\s+to|load)\s+(?:the\s+)?project`),
			Keywords:         []string{"open", "switch", "project"},
			RequiredEntities: []string{"projectName"},
			Priority:         10,
			Active:           true,
		},
		{
			ID:       "update_project",
			Intent:   IntentUpdateProject,
			Regexes:  re(`(?:update|edit|modify|rename)\s+(?:the\s+)?project`),
			Keywords: []string{"update", "edit", "project"},
			Priority: 9,
			Active:   true,
		},
		{
			ID:       "archive_project",
			Intent:   IntentArchiveProject,
			Regexes:  re(`(?:archive|close|retire)\s+(?:the\s+)?project`),
			Keywords: []string{"archive", "close", "project"},
			Priority: 9,
			Active:   true,
		},
		{
			ID:     "create_task",
			Intent: IntentCreateTask,
			Regexes: re(
				`(?:create|add|make|new)\s+(?:a\s+)?(?:new\s+)?task`,
				`add\s+(?:a\s+)?todo`,
			),
			Keywords: []string{"create", "add", "task", "new"},
			Priority: 10,
			Active:   true,
		},
		{
			ID:       "list_tasks",
			Intent:   IntentListTasks,
			Regexes:  re(`(?:list|show|display)\s+(?:all\s+|my\s+|open\s+)?tasks`, `what\s+tasks`),
			Keywords: []string{"list", "show", "tasks"},
			Priority: 10,
			Active:   true,
		},
		{
			ID:       "run_task",
			Intent:   IntentRunTask,
			Regexes:  re(`(?:run|execute|start|launch)\s+(?:the\s+)?task`),
			Keywords: []string{"run", "execute", "task"},
			Priority: 10,
			Active:   true,
		},
		{
			ID:     "check_status",
			Intent: IntentCheckStatus,
			Regexes: re(
				`(?:check|show|what(?:'s|\s+is))\s+(?:the\s+)?status`,
				`how\s+is\s+.+\s+(?:going|progressing)`,
			),
			Keywords: []string{"check", "status", "progress"},
			Priority: 9,
			Active:   true,
		},
		{
			ID:     "decompose_task",
			Intent: IntentDecomposeTask,
			Regexes: re(
				`(?:decompose|break\s+down|split)\s+(?:the\s+|this\s+)?task`,
				`split\s+.+\s+into\s+(?:smaller|sub)`,
			),
			Keywords: []string{"decompose", "break", "split", "task"},
			Priority: 10,
			Active:   true,
		},
		{
			ID:     "decompose_project",
			Intent: IntentDecomposeProject,
			Regexes: re(
				`(?:decompose|break\s+down|plan\s+out)\s+(?:the\s+|this\s+)?project`,
				`(?:create|generate)\s+(?:a\s+)?(?:task\s+)?breakdown`,
			),
			Keywords: []string{"decompose", "break", "project", "plan"},
			Priority: 10,
			Active:   true,
		},
		{
			ID:       "search_files",
			Intent:   IntentSearchFiles,
			Regexes:  re(`(?:find|search\s+for|locate)\s+(?:the\s+)?files?`, `which\s+files?`),
			Keywords: []string{"find", "search", "file"},
			Priority: 9,
			Active:   true,
		},
		{
			ID:       "search_content",
			Intent:   IntentSearchContent,
			Regexes:  re(`(?:search|grep|look)\s+(?:for\s+)?.+\s+in\s+(?:the\s+)?(?:code|content|files)`),
			Keywords: []string{"search", "content", "code"},
			Priority: 8,
			Active:   true,
		},
		{
			ID:       "refine_task",
			Intent:   IntentRefineTask,
			Regexes:  re(`(?:refine|improve|clarify|reword)\s+(?:the\s+|this\s+)?task`),
			Keywords: []string{"refine", "improve", "task"},
			Priority: 9,
			Active:   true,
		},
		{
			ID:       "assign_task",
			Intent:   IntentAssignTask,
			Regexes:  re(`(?:assign|give|delegate)\s+(?:the\s+|this\s+)?task`),
			Keywords: []string{"assign", "task", "agent"},
			Priority: 9,
			Active:   true,
		},
		{
			ID:       "get_help",
			Intent:   IntentGetHelp,
			Regexes:  re(`^(?:help|\?)$`, `(?:what\s+can\s+you\s+do|show\s+(?:me\s+)?(?:the\s+)?help|how\s+do\s+i\s+use)`),
			Keywords: []string{"help"},
			Priority: 10,
			Active:   true,
		},
		{
			ID:       "parse_prd",
			Intent:   IntentParsePRD,
			Regexes:  re(`(?:parse|read|load|import)\s+(?:the\s+)?prd`, `product\s+requirements\s+document`),
			Keywords: []string{"parse", "prd", "requirements"},
			Priority: 10,
			Active:   true,
		},
		{
			ID:       "parse_tasks",
			Intent:   IntentParseTasks,
			Regexes:  re(`(?:parse|read|load)\s+(?:the\s+)?task\s+list`),
			Keywords: []string{"parse", "task", "list"},
			Priority: 10,
			Active:   true,
		},
		{
			ID:       "import_artifact",
			Intent:   IntentImportArtifact,
			Regexes:  re(`import\s+(?:the\s+)?(?:artifact|document|file)`),
			Keywords: []string{"import", "artifact"},
			Priority: 8,
			Active:   true,
		},
		{
			ID:       "clarification",
			Intent:   IntentClarificationNeeded,
			Regexes:  re(`^(?:what|huh|unclear)\??$`),
			Keywords: []string{"what"},
			Priority: 1,
			Active:   true,
		},
	}
}
