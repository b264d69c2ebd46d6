package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/security"
	"taskforge/internal/types"
)

const samplePRD = `# Product Requirements Document

## Overview
A shopping cart service for the storefront.
It must support guest checkout.

### Business Goals
- Increase conversion by 10%
- Reduce cart abandonment

### Success Metrics
- Checkout completion rate

## Features

### Guest Checkout
Allow purchases without an account.
**User Stories**
- As a visitor I can buy without signing up
**Acceptance Criteria**
- No login prompt before payment
Priority: high

### Saved Carts
**Acceptance Criteria**
- Cart persists for 30 days

## Tech Stack
- Go
- PostgreSQL

## Constraints
- PCI compliance required
`

const sampleTaskList = `# Task List

## Overview
Initial implementation plan.

## Phase 1: Foundation
Core plumbing.
- [ ] **T1**: Set up repository (2h)
  - Files: go.mod, main.go
- [x] **T2**: Configure CI (1.5h)
  - Depends on: T1
  - Priority: high

## Phase 2: Features
- [ ] Implement checkout flow (4h)
  - AC: guest checkout works
`

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestParser(t *testing.T, root string) *Parser {
	t.Helper()
	v, err := security.NewValidator(root)
	require.NoError(t, err)
	return NewParser(root, v)
}

func TestParsePRD(t *testing.T) {
	root := t.TempDir()
	path := writeArtifact(t, root, "sample-prd.md", samplePRD)
	p := newTestParser(t, root)

	data, err := p.ParsePRD(path)
	require.NoError(t, err)

	assert.Contains(t, data.Overview.Description, "shopping cart service")
	assert.Equal(t, []string{"Increase conversion by 10%", "Reduce cart abandonment"}, data.Overview.BusinessGoals)
	assert.Equal(t, []string{"Checkout completion rate"}, data.Overview.SuccessMetrics)

	require.Len(t, data.Features, 2)
	guest := data.Features[0]
	assert.Equal(t, "F1", guest.ID)
	assert.Equal(t, "Guest Checkout", guest.Title)
	assert.Contains(t, guest.Description, "without an account")
	assert.Equal(t, []string{"As a visitor I can buy without signing up"}, guest.UserStories)
	assert.Equal(t, []string{"No login prompt before payment"}, guest.AcceptanceCriteria)
	assert.Equal(t, "high", guest.Priority)

	assert.Equal(t, []string{"Go", "PostgreSQL"}, data.Technical.TechStack)
	assert.Equal(t, []string{"PCI compliance required"}, data.Technical.Constraints)
}

func TestParsePRDStableUnderReparse(t *testing.T) {
	first := parsePRDContent(samplePRD)
	second := parsePRDContent(samplePRD)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("reparse changed the structure (-first +second):\n%s", diff)
	}
}

func TestParsePRDMalformedYieldsEmpty(t *testing.T) {
	data := parsePRDContent("no headers here\njust prose")
	assert.Empty(t, data.Features)
	assert.Empty(t, data.Overview.BusinessGoals)
	assert.Empty(t, data.Technical.TechStack)
}

func TestParseTaskList(t *testing.T) {
	root := t.TempDir()
	path := writeArtifact(t, root, "2025-08-24T10-30-00-000Z-shop-task-list-detailed.md", sampleTaskList)
	p := newTestParser(t, root)

	data, err := p.ParseTaskList(path)
	require.NoError(t, err)

	assert.Equal(t, "shop", data.Metadata.ProjectName)
	assert.Equal(t, "detailed", data.Metadata.ListType)
	assert.Equal(t, 2025, data.Metadata.CreatedAt.Year())
	assert.Contains(t, data.Overview, "implementation plan")

	require.Len(t, data.Phases, 2)
	p1 := data.Phases[0]
	assert.Equal(t, "Phase 1: Foundation", p1.Name)
	assert.Equal(t, "Core plumbing.", p1.Description)
	require.Len(t, p1.Tasks, 2)

	t1 := p1.Tasks[0]
	assert.Equal(t, "T1", t1.ID)
	assert.Equal(t, "Set up repository", t1.Title)
	assert.Equal(t, 2.0, t1.EstimatedHours)
	assert.Equal(t, []string{"go.mod", "main.go"}, t1.FilePaths)
	assert.False(t, t1.Completed)

	t2 := p1.Tasks[1]
	assert.True(t, t2.Completed)
	assert.Equal(t, []string{"T1"}, t2.Dependencies)
	assert.Equal(t, "high", t2.Priority)
	assert.Equal(t, 1.5, t2.EstimatedHours)

	// Untagged tasks get sequential ids.
	require.Len(t, data.Phases[1].Tasks, 1)
	assert.Equal(t, "T3", data.Phases[1].Tasks[0].ID)
	assert.Equal(t, []string{"guest checkout works"}, data.Phases[1].Tasks[0].AcceptanceCriteria)

	assert.Equal(t, 3, data.Statistics.TotalTasks)
	assert.Equal(t, 1, data.Statistics.CompletedTasks)
	assert.InDelta(t, 7.5, data.Statistics.TotalHours, 0.001)
	assert.Equal(t, 2, data.Statistics.PhaseCount)
}

func TestParseTaskListMetadataFallback(t *testing.T) {
	now := time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)
	meta := ParseTaskListMetadata("random-notes.md", now)
	assert.Equal(t, "random-notes", meta.ProjectName)
	assert.Equal(t, "detailed", meta.ListType)
	assert.Equal(t, now, meta.CreatedAt)

	meta = ParseTaskListMetadata("2025-01-02T03-04-05-678Z-my-app-task-list-summary.md", now)
	assert.Equal(t, "my-app", meta.ProjectName)
	assert.Equal(t, "summary", meta.ListType)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 678*int(time.Millisecond), time.UTC), meta.CreatedAt)
}

func TestDetectExistingTaskList(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "generated_task_lists")
	writeArtifact(t, dir, "2025-01-01T00-00-00-000Z-shop-task-list-detailed.md", "# old")
	writeArtifact(t, dir, "2025-06-01T00-00-00-000Z-shop-task-list-detailed.md", "# new")
	writeArtifact(t, dir, "2025-07-01T00-00-00-000Z-blog-task-list-detailed.md", "# other")

	p := newTestParser(t, root)

	info, err := p.DetectExistingTaskList("shop")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "2025-06-01T00-00-00-000Z-shop-task-list-detailed.md", info.FileName)
	assert.Equal(t, "shop", info.ProjectName)

	info, err = p.DetectExistingTaskList("missing")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestDetectExistingPRD(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "prd-generator")
	writeArtifact(t, dir, "2025-05-01T00-00-00-000Z-shop-prd.md", samplePRD)

	p := newTestParser(t, root)
	info, err := p.DetectExistingPRD("")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "shop", info.ProjectName)
}

func TestParseRejectsPathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := writeArtifact(t, t.TempDir(), "escape.md", samplePRD)

	p := newTestParser(t, root)
	_, err := p.ParsePRD(outside)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidInput, types.KindOf(err))
}

func TestConvertToAtomicTasks(t *testing.T) {
	data := parseTaskListContent(sampleTaskList)
	tasks := ConvertToAtomicTasks(data, "proj1", "epic1", "importer")

	require.Len(t, tasks, 3)
	t1 := tasks[0]
	assert.Equal(t, "proj1-T1", t1.ID)
	assert.Equal(t, types.StatusPending, t1.Status)
	assert.Equal(t, "proj1", t1.ProjectID)
	assert.Equal(t, "epic1", t1.EpicID)
	assert.Equal(t, "importer", t1.CreatedBy)
	assert.Equal(t, 2.0, t1.EstimatedHours)

	t2 := tasks[1]
	assert.Equal(t, types.StatusCompleted, t2.Status)
	assert.Equal(t, types.PriorityHigh, t2.Priority)
	assert.Equal(t, []string{"proj1-T1"}, t2.Dependencies)

	// Dependents derived from dependencies.
	assert.Equal(t, []string{"proj1-T2"}, t1.Dependents)

	// Untimed tasks default to two hours.
	for _, task := range tasks {
		assert.GreaterOrEqual(t, task.EstimatedHours, types.MinEstimatedHours)
		require.NoError(t, task.Validate())
	}
}
