package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"taskforge/internal/decompose"
	"taskforge/internal/dispatch"
	"taskforge/internal/intent"
	"taskforge/internal/types"
)

var askProject string

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Recognize a request and dispatch it to the matching command",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		text := strings.Join(args, " ")
		rec := a.recognizer.Recognize(ctx, text, nil)

		params := map[string]string{}
		if askProject != "" {
			params["project"] = askProject
		}
		result, err := a.dispatcher.Dispatch(ctx, rec, params, dispatch.ExecutionContext{
			SessionID: uuid.NewString(),
			Config:    a.cfg,
		})
		if err != nil {
			return err
		}
		for _, item := range result.Content {
			fmt.Println(item.Text)
		}
		if len(result.FollowUpSuggestions) > 0 {
			fmt.Printf("Try: %s\n", strings.Join(result.FollowUpSuggestions, ", "))
		}
		return nil
	},
}

// newDispatcher installs the CLI's intent handlers.
func newDispatcher(a *app) *dispatch.Dispatcher {
	d := dispatch.NewDispatcher()

	d.Register(intent.IntentGetHelp, func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec dispatch.ExecutionContext) (*dispatch.HandlerResult, error) {
		var names []string
		for _, in := range d.Registered() {
			names = append(names, string(in))
		}
		return dispatch.TextResult("%s Available commands: %s", types.MarkInfo, strings.Join(names, ", ")), nil
	})

	d.Register(intent.IntentListTasks, func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec dispatch.ExecutionContext) (*dispatch.HandlerResult, error) {
		info, err := a.parser.DetectExistingTaskList(params["project"])
		if err != nil {
			return nil, err
		}
		if info == nil {
			return dispatch.TextResult("%s No task list found.", types.MarkInfo), nil
		}
		data, err := a.parser.ParseTaskList(info.FilePath)
		if err != nil {
			return nil, err
		}
		return dispatch.TextResult("%s %s: %d tasks in %d phases, %d done, %.1fh total",
			types.MarkSuccess, info.FileName, data.Statistics.TotalTasks,
			data.Statistics.PhaseCount, data.Statistics.CompletedTasks, data.Statistics.TotalHours), nil
	})

	d.Register(intent.IntentParsePRD, func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec dispatch.ExecutionContext) (*dispatch.HandlerResult, error) {
		info, err := a.parser.DetectExistingPRD(params["project"])
		if err != nil {
			return nil, err
		}
		if info == nil {
			return dispatch.TextResult("%s No PRD found.", types.MarkInfo), nil
		}
		data, err := a.parser.ParsePRD(info.FilePath)
		if err != nil {
			return nil, err
		}
		return dispatch.TextResult("%s %s: %d features, %d business goals, tech stack [%s]",
			types.MarkSuccess, info.FileName, len(data.Features),
			len(data.Overview.BusinessGoals), strings.Join(data.Technical.TechStack, ", ")), nil
	})

	d.Register(intent.IntentParseTasks, func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec dispatch.ExecutionContext) (*dispatch.HandlerResult, error) {
		info, err := a.parser.DetectExistingTaskList(params["project"])
		if err != nil {
			return nil, err
		}
		if info == nil {
			return dispatch.TextResult("%s No task list found.", types.MarkInfo), nil
		}
		data, err := a.parser.ParseTaskList(info.FilePath)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s Parsed %s\n", types.MarkSuccess, info.FileName)
		for _, phase := range data.Phases {
			fmt.Fprintf(&sb, "%s (%d tasks)\n", phase.Name, len(phase.Tasks))
		}
		return dispatch.TextResult("%s", strings.TrimRight(sb.String(), "\n")), nil
	})

	d.Register(intent.IntentDecomposeTask, func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec dispatch.ExecutionContext) (*dispatch.HandlerResult, error) {
		title := entityValue(rec, "taskTitle")
		if title == "" {
			title = rec.ProcessedInput
		}
		task := types.AtomicTask{
			ID:                 "T1",
			Title:              title,
			Description:        rec.OriginalInput,
			Status:             types.StatusPending,
			Priority:           types.PriorityMedium,
			Type:               types.TypeDevelopment,
			EstimatedHours:     8,
			ProjectID:          params["project"],
			AcceptanceCriteria: []string{"matches the request"},
			CreatedBy:          "taskforge-cli",
		}
		snap, err := a.decomposer.StartDecomposition(ctx, decompose.Request{Task: task})
		if err != nil {
			return nil, err
		}
		final, err := waitForSession(ctx, a, snap.ID)
		if err != nil {
			return nil, err
		}
		if final.Status == decompose.SessionFailed {
			return nil, fmt.Errorf("decomposition failed: %s", final.Error)
		}
		leaves := 0
		for _, r := range final.Results {
			if len(r.SubTasks) == 1 && r.SubTasks[0].ID == r.Parent.ID {
				leaves++
			}
		}
		return dispatch.TextResult("%s Decomposed %q into %d atomic tasks (session %s)",
			types.MarkSuccess, title, leaves, final.ID), nil
	})

	d.Register(intent.IntentCreateProject, func(ctx context.Context, rec *intent.RecognitionResult, params map[string]string, ec dispatch.ExecutionContext) (*dispatch.HandlerResult, error) {
		name := entityValue(rec, "projectName")
		if name == "" {
			return nil, types.NewError(types.ErrInvalidInput, "no project name found in the request")
		}
		return &dispatch.HandlerResult{
			Success: true,
			Content: []dispatch.ContentItem{{
				Type: "text",
				Text: fmt.Sprintf("%s Project %q registered. Generate a PRD next.", types.MarkSuccess, name),
			}},
			FollowUpSuggestions: []string{"parse prd", "decompose the project"},
		}, nil
	})

	return d
}

func entityValue(rec *intent.RecognitionResult, entityType string) string {
	for _, e := range rec.Entities {
		if e.Type == entityType {
			return e.Value
		}
	}
	return ""
}

func init() {
	askCmd.Flags().StringVar(&askProject, "project", "", "project name filter for artifact lookups")
	rootCmd.AddCommand(askCmd)
}
