package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskforge/internal/curator"
)

var (
	curatePrompt      string
	curateProject     string
	curateTaskType    string
	curateMaxFiles    int
	curateBudget      int
	curateFormat      string
	curateInclude     []string
	curateExclude     []string
	curateFocus       []string
	curateNoCache     bool
	curateCacheAge    int
	curateJSONSummary bool
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Curate a context package for a development request",
	Long: `Runs the eight-phase curation pipeline: code-map resolution, intent
analysis, prompt refinement, multi-strategy file discovery, relevance scoring,
meta-prompt generation, package assembly, and output generation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		req := curator.Request{
			Prompt:             curatePrompt,
			ProjectPath:        curateProject,
			TaskType:           curateTaskType,
			MaxFiles:           curateMaxFiles,
			MaxTokenBudget:     curateBudget,
			OutputFormat:       curateFormat,
			IncludePatterns:    curateInclude,
			ExcludePatterns:    curateExclude,
			FocusAreas:         curateFocus,
			CacheMaxAgeMinutes: curateCacheAge,
		}
		if curateNoCache {
			noCache := false
			req.UseCodeMapCache = &noCache
		}

		events := a.pipeline.Events()
		start, err := a.pipeline.Start(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println(start.Message)

		for {
			select {
			case ev := <-events:
				if ev.JobID == start.JobID && ev.Status == curator.JobRunning {
					fmt.Printf("  phase: %s\n", ev.Phase)
				}
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}

			job, err := a.pipeline.Jobs().Get(start.JobID)
			if err != nil {
				return err
			}
			switch job.Status {
			case curator.JobCompleted:
				return printSummary(job.Result)
			case curator.JobFailed:
				return fmt.Errorf("curation failed: %s", job.Error)
			}
		}
	},
}

func printSummary(s *curator.Summary) error {
	if curateJSONSummary {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("✅ Context package written to %s\n", s.OutputPath)
	fmt.Printf("   files: %d  tokens: %d  avg relevance: %.2f  cache hit rate: %.0f%%  took: %dms\n",
		s.TotalFiles, s.TotalTokens, s.AverageRelevanceScore, s.CacheHitRate*100, s.ProcessingTimeMs)
	return nil
}

func init() {
	curateCmd.Flags().StringVarP(&curatePrompt, "prompt", "p", "", "development request (required)")
	curateCmd.Flags().StringVar(&curateProject, "project", "", "absolute project path (required)")
	curateCmd.Flags().StringVar(&curateTaskType, "task-type", "", "feature_addition|refactoring|bug_fix|performance_optimization|general")
	curateCmd.Flags().IntVar(&curateMaxFiles, "max-files", 0, "maximum files in the package (1-1000)")
	curateCmd.Flags().IntVar(&curateBudget, "max-token-budget", 0, "token budget (1000-500000)")
	curateCmd.Flags().StringVar(&curateFormat, "format", "", "output format: xml or json")
	curateCmd.Flags().StringSliceVar(&curateInclude, "include", nil, "include glob patterns")
	curateCmd.Flags().StringSliceVar(&curateExclude, "exclude", nil, "exclude glob patterns")
	curateCmd.Flags().StringSliceVar(&curateFocus, "focus", nil, "focus areas")
	curateCmd.Flags().BoolVar(&curateNoCache, "no-cache", false, "always regenerate the code map")
	curateCmd.Flags().IntVar(&curateCacheAge, "cache-max-age", 0, "code map max age in minutes (1-1440)")
	curateCmd.Flags().BoolVar(&curateJSONSummary, "json", false, "print the summary as JSON")
	_ = curateCmd.MarkFlagRequired("prompt")
	_ = curateCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(curateCmd)
}
