package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var gcRetentionHours int

var commitCmd = &cobra.Command{
	Use:   "commit <proposal-id>",
	Short: "Commit an already-approved proposal to disk and the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := commitEngine.Commit(rootCtx, args[0], time.Now().UTC())
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if jsonOutput {
			outputJSON(res)
			return nil
		}
		if res.Success {
			fmt.Printf("Committed %s -> %s\n", res.ProposalID, res.NewPath)
		} else {
			fmt.Printf("Commit failed for %s: %s (rolled back: %v)\n", res.ProposalID, res.Error, res.RollbackPerformed)
		}
		return nil
	},
}

var gcBackupsCmd = &cobra.Command{
	Use:   "gc-backups",
	Short: "Remove byte-backup checkpoints older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		retention := time.Duration(gcRetentionHours) * time.Hour
		if gcRetentionHours == 0 {
			retention = time.Duration(cfg.BackupRetentionHours) * time.Hour
		}
		removed, err := commitEngine.GCBackups(rootCtx, retention)
		if err != nil {
			return fmt.Errorf("gc backups: %w", err)
		}
		fmt.Printf("Removed %d backup(s) older than %s\n", removed, retention)
		return nil
	},
}

func init() {
	gcBackupsCmd.Flags().IntVar(&gcRetentionHours, "retention-hours", 0, "override config's backup_retention_hours")
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(gcBackupsCmd)
}
