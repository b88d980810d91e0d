package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/review"
)

var reviewAutoCommit bool

var reviewCmd = &cobra.Command{
	Use:   "review <proposal-id>",
	Short: "Run a pending proposal through the reviewer and transition its status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proposalID := args[0]
		now := time.Now().UTC()

		p, err := queue.Get(rootCtx, proposalID)
		if err != nil {
			return fmt.Errorf("load proposal %s: %w", proposalID, err)
		}
		if p.Status == dmmtypes.StatusPending {
			if p, err = queue.UpdateStatus(rootCtx, proposalID, dmmtypes.StatusInReview, "review-start", "", now); err != nil {
				return fmt.Errorf("move to in_review: %w", err)
			}
		}

		res, err := reviewer.Review(rootCtx, p)
		if err != nil {
			return fmt.Errorf("review: %w", err)
		}

		var newStatus dmmtypes.ProposalStatus
		switch res.Decision {
		case review.DecisionApprove:
			newStatus = dmmtypes.StatusApproved
		case review.DecisionDefer:
			newStatus = dmmtypes.StatusDeferred
		default:
			newStatus = dmmtypes.StatusRejected
		}
		if _, err := queue.UpdateStatus(rootCtx, proposalID, newStatus, "review-decision", res.Notes, now); err != nil {
			return fmt.Errorf("apply review decision: %w", err)
		}

		if jsonOutput {
			outputJSON(res)
		} else {
			fmt.Printf("Proposal %s: %s (confidence %.2f)\n", proposalID, res.Decision, res.Confidence)
			for _, issue := range res.Issues {
				fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Field, issue.Message)
			}
			for _, dup := range res.Duplicates {
				fmt.Printf("  duplicate candidate: %s (score %.2f)\n", dup.Path, dup.Score)
			}
		}

		if reviewAutoCommit && res.Decision == review.DecisionApprove {
			cr, err := commitEngine.Commit(rootCtx, proposalID, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("auto-commit: %w", err)
			}
			if jsonOutput {
				outputJSON(cr)
			} else {
				fmt.Printf("Committed %s -> %s\n", proposalID, cr.NewPath)
			}
		}
		return nil
	},
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewAutoCommit, "commit", false, "immediately commit the proposal if it is approved")
	rootCmd.AddCommand(reviewCmd)
}
