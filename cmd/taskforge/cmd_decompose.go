package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskforge/internal/decompose"
	"taskforge/internal/types"
)

var (
	decomposeTaskFile string
	decomposeID       string
	decomposeTitle    string
	decomposeDesc     string
	decomposeHours    float64
	decomposeCriteria []string
	decomposeDepth    int
	decomposeMaxHours float64
	decomposeMinHours float64
	decomposeForce    bool
	decomposeJSON     bool
)

var decomposeCmd = &cobra.Command{
	Use:   "decompose",
	Short: "Recursively decompose a task into atomic sub-tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}

		task, err := decomposeInputTask()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		req := decompose.Request{Task: task}
		if cmd.Flags().Changed("max-depth") || cmd.Flags().Changed("max-hours") ||
			cmd.Flags().Changed("min-hours") || decomposeForce {
			req.Options = &decompose.Options{
				MaxDepth:           decomposeDepth,
				MinHours:           decomposeMinHours,
				MaxHours:           decomposeMaxHours,
				ForceDecomposition: decomposeForce,
			}
		}

		snap, err := a.decomposer.StartDecomposition(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("⏳ Decomposition session %s started\n", snap.ID)

		final, err := waitForSession(ctx, a, snap.ID)
		if err != nil {
			return err
		}
		if final.Status == decompose.SessionFailed {
			return fmt.Errorf("decomposition failed: %s", final.Error)
		}
		return printSession(final)
	},
}

func decomposeInputTask() (types.AtomicTask, error) {
	if decomposeTaskFile != "" {
		data, err := os.ReadFile(decomposeTaskFile)
		if err != nil {
			return types.AtomicTask{}, err
		}
		var task types.AtomicTask
		if err := json.Unmarshal(data, &task); err != nil {
			return types.AtomicTask{}, fmt.Errorf("invalid task file %s: %w", decomposeTaskFile, err)
		}
		return task, nil
	}

	return types.AtomicTask{
		ID:                 decomposeID,
		Title:              decomposeTitle,
		Description:        decomposeDesc,
		Status:             types.StatusPending,
		Priority:           types.PriorityMedium,
		Type:               types.TypeDevelopment,
		EstimatedHours:     decomposeHours,
		ProjectID:          "cli",
		AcceptanceCriteria: decomposeCriteria,
		CreatedBy:          "taskforge-cli",
	}, nil
}

func waitForSession(ctx context.Context, a *app, id string) (*decompose.Snapshot, error) {
	for {
		snap, err := a.decomposer.GetSession(id)
		if err != nil {
			return nil, err
		}
		if snap.Status == decompose.SessionCompleted || snap.Status == decompose.SessionFailed {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			_ = a.decomposer.Cancel(id)
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func printSession(snap *decompose.Snapshot) error {
	if decomposeJSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("✅ Session %s completed with %d result levels\n", snap.ID, len(snap.Results))
	for _, r := range snap.Results {
		indent := strings.Repeat("  ", r.Depth)
		fmt.Printf("%s%s (%s, %.1fh)\n", indent, r.Parent.Title, r.Parent.ID, r.Parent.EstimatedHours)
		for _, sub := range r.SubTasks {
			if sub.ID == r.Parent.ID {
				continue
			}
			deps := ""
			if len(sub.Dependencies) > 0 {
				deps = " deps: " + strings.Join(sub.Dependencies, ", ")
			}
			fmt.Printf("%s  - %s (%s, %.1fh)%s\n", indent, sub.Title, sub.ID, sub.EstimatedHours, deps)
		}
	}
	for _, w := range snap.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	return nil
}

func init() {
	decomposeCmd.Flags().StringVar(&decomposeTaskFile, "task-file", "", "JSON file holding the task")
	decomposeCmd.Flags().StringVar(&decomposeID, "id", "T1", "task id")
	decomposeCmd.Flags().StringVar(&decomposeTitle, "title", "", "task title")
	decomposeCmd.Flags().StringVar(&decomposeDesc, "description", "", "task description")
	decomposeCmd.Flags().Float64Var(&decomposeHours, "hours", 8, "estimated hours")
	decomposeCmd.Flags().StringSliceVar(&decomposeCriteria, "criteria", nil, "acceptance criteria")
	decomposeCmd.Flags().IntVar(&decomposeDepth, "max-depth", 3, "maximum recursion depth (1-5)")
	decomposeCmd.Flags().Float64Var(&decomposeMaxHours, "max-hours", 4, "atomic task upper bound")
	decomposeCmd.Flags().Float64Var(&decomposeMinHours, "min-hours", 1, "atomic task lower bound")
	decomposeCmd.Flags().BoolVar(&decomposeForce, "force", false, "decompose even already-atomic tasks")
	decomposeCmd.Flags().BoolVar(&decomposeJSON, "json", false, "print the session as JSON")
	rootCmd.AddCommand(decomposeCmd)
}
