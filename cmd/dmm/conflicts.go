package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmmcore/dmm/internal/conflict/resolver"
	"github.com/dmmcore/dmm/internal/dmmtypes"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List and resolve detected conflicts",
}

var conflictsListStatus string

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflicts, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := dmmtypes.ConflictStatus(conflictsListStatus)
		if status == "" {
			status = dmmtypes.ConflictUnresolved
		}
		conflicts, err := st.ListConflicts(rootCtx, status)
		if err != nil {
			return fmt.Errorf("list conflicts: %w", err)
		}
		if jsonOutput {
			outputJSON(conflicts)
			return nil
		}
		for _, c := range conflicts {
			fmt.Printf("%s  %-14s %-22s %.2f  %s <-> %s\n",
				c.ConflictID, c.ConflictType, c.DetectionMethod, c.Confidence,
				c.Memories[0].Path, c.Memories[1].Path)
		}
		return nil
	},
}

var (
	resolveAction         string
	resolveTargetMemoryID string
	resolveMergedPath     string
	resolveMergedBody     string
	resolveClarification  string
	resolveDismissReason  string
	resolveReason         string
	resolveBy             string
)

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Apply a resolution action to a detected conflict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := resolver.New(st, queue, commitEngine)
		now := time.Now().UTC()

		req := &resolver.Request{
			ConflictID:     args[0],
			Action:         resolver.Action(resolveAction),
			TargetMemoryID: resolveTargetMemoryID,
			MergedPath:     resolveMergedPath,
			Clarification:  resolveClarification,
			DismissReason:  resolveDismissReason,
			Reason:         resolveReason,
			ResolvedBy:     resolveBy,
		}
		if resolveMergedBody != "" {
			data, err := os.ReadFile(resolveMergedBody)
			if err != nil {
				return fmt.Errorf("read --merged-body-file: %w", err)
			}
			req.MergedContent = data
		}

		res, err := r.Resolve(rootCtx, req, now)
		if err != nil {
			return fmt.Errorf("resolve: %w", err)
		}

		if jsonOutput {
			outputJSON(res)
			return nil
		}
		if res.Success {
			fmt.Printf("Resolved %s via %s\n", res.ConflictID, res.ActionTaken)
		} else {
			fmt.Printf("Resolution failed for %s: %s\n", res.ConflictID, res.Error)
		}
		return nil
	},
}

func init() {
	conflictsListCmd.Flags().StringVar(&conflictsListStatus, "status", "", "unresolved (default), in_progress, resolved, dismissed")

	conflictsResolveCmd.Flags().StringVar(&resolveAction, "action", "", "deprecate, merge, clarify, dismiss, or defer (required)")
	conflictsResolveCmd.Flags().StringVar(&resolveTargetMemoryID, "target-memory-id", "", "deprecate: which memory in the pair to deprecate")
	conflictsResolveCmd.Flags().StringVar(&resolveMergedPath, "merged-path", "", "merge: path for the new merged memory")
	conflictsResolveCmd.Flags().StringVar(&resolveMergedBody, "merged-body-file", "", "merge: path to a file holding the full merged memory content")
	conflictsResolveCmd.Flags().StringVar(&resolveClarification, "clarification", "", "clarify: recorded clarification text")
	conflictsResolveCmd.Flags().StringVar(&resolveDismissReason, "dismiss-reason", "", "dismiss: why the conflict isn't real")
	conflictsResolveCmd.Flags().StringVar(&resolveReason, "reason", "", "free-text reason recorded with the resolution")
	conflictsResolveCmd.Flags().StringVar(&resolveBy, "resolved-by", "cli", "who/what is resolving this conflict")

	conflictsCmd.AddCommand(conflictsListCmd, conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}
