// Package artifact reads externally produced PRD and task-list markdown files
// and returns structured views of them. Parsing is tolerant: a section that
// fails to match yields an empty structure, never an error. All filesystem
// access goes through the secure-path validator.
package artifact

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"taskforge/internal/security"
	"taskforge/internal/types"
)

// PRDInfo identifies a detected PRD file.
type PRDInfo struct {
	FilePath    string    `json:"filePath"`
	FileName    string    `json:"fileName"`
	ProjectName string    `json:"projectName"`
	CreatedAt   time.Time `json:"createdAt"`
	FileSize    int64     `json:"fileSize"`
}

// TaskListInfo identifies a detected task-list file.
type TaskListInfo struct {
	FilePath    string    `json:"filePath"`
	FileName    string    `json:"fileName"`
	ProjectName string    `json:"projectName"`
	ListType    string    `json:"listType"`
	CreatedAt   time.Time `json:"createdAt"`
	FileSize    int64     `json:"fileSize"`
}

// PRDOverview summarizes the product description and goals.
type PRDOverview struct {
	Description    string   `json:"description,omitempty"`
	BusinessGoals  []string `json:"businessGoals,omitempty"`
	ProductGoals   []string `json:"productGoals,omitempty"`
	SuccessMetrics []string `json:"successMetrics,omitempty"`
}

// PRDFeature is one feature block of a PRD.
type PRDFeature struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	UserStories        []string `json:"userStories,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	Priority           string   `json:"priority,omitempty"`
}

// PRDTechnical captures the technical sections of a PRD.
type PRDTechnical struct {
	TechStack             []string `json:"techStack,omitempty"`
	ArchitecturalPatterns []string `json:"architecturalPatterns,omitempty"`
	Constraints           []string `json:"constraints,omitempty"`
}

// PRDData is the structured view of a parsed PRD.
type PRDData struct {
	FilePath  string       `json:"filePath"`
	Overview  PRDOverview  `json:"overview"`
	Features  []PRDFeature `json:"features"`
	Technical PRDTechnical `json:"technical"`
}

// TaskListMetadata is recovered from the task-list filename convention, or
// synthesized when the name does not match.
type TaskListMetadata struct {
	ProjectName string    `json:"projectName"`
	ListType    string    `json:"listType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ParsedTask is a single task read from a task-list phase.
type ParsedTask struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Priority           string   `json:"priority,omitempty"`
	EstimatedHours     float64  `json:"estimatedHours"`
	Dependencies       []string `json:"dependencies,omitempty"`
	FilePaths          []string `json:"filePaths,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	Completed          bool     `json:"completed"`
}

// TaskPhase groups tasks under a phase heading.
type TaskPhase struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Tasks       []ParsedTask `json:"tasks"`
}

// TaskListStatistics summarizes a parsed task list.
type TaskListStatistics struct {
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	TotalHours     float64 `json:"totalHours"`
	PhaseCount     int     `json:"phaseCount"`
}

// TaskListData is the structured view of a parsed task list.
type TaskListData struct {
	FilePath   string             `json:"filePath"`
	Metadata   TaskListMetadata   `json:"metadata"`
	Overview   string             `json:"overview,omitempty"`
	Phases     []TaskPhase        `json:"phases"`
	Statistics TaskListStatistics `json:"statistics"`
}

// taskListNameRe matches YYYY-MM-DDTHH-mm-ss-sssZ-<slug>-task-list-<type>.md.
var taskListNameRe = regexp.MustCompile(
	`^(\d{4})-(\d{2})-(\d{2})T(\d{2})-(\d{2})-(\d{2})-(\d{3})Z-(.+)-task-list-(\w+)\.md$`)

// prdNameRe matches <timestamp>-<slug>-prd.md.
var prdNameRe = regexp.MustCompile(
	`^(\d{4})-(\d{2})-(\d{2})T(\d{2})-(\d{2})-(\d{2})-(\d{3})Z-(.+)-prd\.md$`)

// Parser detects and parses PRD and task-list artifacts under the output
// root. It never writes; detection is purely advisory.
type Parser struct {
	outputRoot string
	validator  *security.Validator
}

// NewParser creates a parser over the given output root.
func NewParser(outputRoot string, validator *security.Validator) *Parser {
	return &Parser{outputRoot: outputRoot, validator: validator}
}

// DetectExistingPRD returns the most recent PRD under <out>/prd-generator
// whose slug contains projectName (any PRD when projectName is empty).
// Returns nil when none exists.
func (p *Parser) DetectExistingPRD(projectName string) (*PRDInfo, error) {
	dir := filepath.Join(p.outputRoot, "prd-generator")
	names, err := listMarkdown(dir)
	if err != nil {
		return nil, err
	}
	slugWant := slugify(projectName)
	for _, name := range names {
		m := prdNameRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		slug := m[8]
		if slugWant != "" && !strings.Contains(slug, slugWant) {
			continue
		}
		path := filepath.Join(dir, name)
		stat, err := os.Stat(path)
		if err != nil {
			continue
		}
		return &PRDInfo{
			FilePath:    path,
			FileName:    name,
			ProjectName: slug,
			CreatedAt:   timestampFrom(m),
			FileSize:    stat.Size(),
		}, nil
	}
	return nil, nil
}

// DetectExistingTaskList returns the most recent task list under
// <out>/generated_task_lists matching projectName. Returns nil when none
// exists.
func (p *Parser) DetectExistingTaskList(projectName string) (*TaskListInfo, error) {
	dir := filepath.Join(p.outputRoot, "generated_task_lists")
	names, err := listMarkdown(dir)
	if err != nil {
		return nil, err
	}
	slugWant := slugify(projectName)
	for _, name := range names {
		m := taskListNameRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		slug := m[8]
		if slugWant != "" && !strings.Contains(slug, slugWant) {
			continue
		}
		path := filepath.Join(dir, name)
		stat, err := os.Stat(path)
		if err != nil {
			continue
		}
		return &TaskListInfo{
			FilePath:    path,
			FileName:    name,
			ProjectName: slug,
			ListType:    m[9],
			CreatedAt:   timestampFrom(m),
			FileSize:    stat.Size(),
		}, nil
	}
	return nil, nil
}

// listMarkdown returns the .md filenames in dir, newest timestamps first
// (lexicographically descending works for the ISO-style prefixes).
func listMarkdown(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.WrapError(types.ErrInternal, err, "cannot read %q", dir)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// timestampFrom builds a UTC time from the seven numeric capture groups of
// the filename patterns.
func timestampFrom(m []string) time.Time {
	atoi := func(s string) int { n, _ := strconv.Atoi(s); return n }
	return time.Date(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]),
		atoi(m[4]), atoi(m[5]), atoi(m[6]), atoi(m[7])*int(time.Millisecond), time.UTC)
}

func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}

// ParseTaskListMetadata recovers metadata from a task-list filename, falling
// back to {basename minus suffix, now, detailed} when the convention does not
// match.
func ParseTaskListMetadata(fileName string, now time.Time) TaskListMetadata {
	if m := taskListNameRe.FindStringSubmatch(fileName); m != nil {
		return TaskListMetadata{
			ProjectName: m[8],
			ListType:    m[9],
			CreatedAt:   timestampFrom(m),
		}
	}
	name := strings.TrimSuffix(fileName, ".md")
	return TaskListMetadata{ProjectName: name, ListType: "detailed", CreatedAt: now}
}

// readValidated reads a file after secure-path validation.
func (p *Parser) readValidated(path string) (string, error) {
	canonical := path
	if p.validator != nil {
		var err error
		canonical, err = p.validator.ValidateExisting(path)
		if err != nil {
			return "", err
		}
	}
	data, err := os.ReadFile(canonical)
	if err != nil {
		return "", types.WrapError(types.ErrResourceNotFound, err, "cannot read %q", path)
	}
	return string(data), nil
}
