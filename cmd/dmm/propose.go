package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/idgen"
	"github.com/dmmcore/dmm/internal/memfile"
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Submit a write proposal (create, update, deprecate, promote)",
}

var (
	pTitle       string
	pPath        string
	pTags        []string
	pScope       string
	pPriority    float64
	pConfidence  string
	pBodyFile    string
	pBody        string
	pExpires     string
	pSupersedes  []string
	pRelated     []string
	pProposedBy  string
	pMemoryID    string
	pReason      string
	pNewScope    string
)

var proposeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Propose a new memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := resolveBody(pBodyFile, pBody)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		var expires *time.Time
		if pExpires != "" {
			t, err := parseNaturalDate(pExpires, now)
			if err != nil {
				return fmt.Errorf("parse --expires: %w", err)
			}
			expires = t
		}

		mem := &dmmtypes.Memory{
			ID:         idgen.NewMemoryID(now, int(now.UnixNano()%1000)),
			Path:       pPath,
			Title:      pTitle,
			Body:       body,
			Tags:       pTags,
			Scope:      dmmtypes.Scope(pScope),
			Priority:   pPriority,
			Confidence: dmmtypes.Confidence(pConfidence),
			Status:     dmmtypes.StatusActive,
			Created:    &now,
			Supersedes: pSupersedes,
			Related:    pRelated,
			Expires:    expires,
		}
		content, err := memfile.Serialize(mem)
		if err != nil {
			return fmt.Errorf("serialize memory: %w", err)
		}

		p, err := queue.Enqueue(rootCtx, &dmmtypes.WriteProposal{
			Type:       dmmtypes.ProposalCreate,
			TargetPath: pPath,
			Content:    content,
			ProposedBy: pProposedBy,
			Reason:     pReason,
		}, now)
		if err != nil {
			return err
		}
		return printProposal(p)
	},
}

var proposeUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Propose a replacement body for an existing memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pMemoryID == "" {
			return fmt.Errorf("--memory-id is required")
		}
		existing, err := st.GetMemory(rootCtx, pMemoryID)
		if err != nil {
			return fmt.Errorf("load %s: %w", pMemoryID, err)
		}
		body, err := resolveBody(pBodyFile, pBody)
		if err != nil {
			return err
		}

		updated := *existing
		updated.Body = body
		if len(pTags) > 0 {
			updated.Tags = pTags
		}
		content, err := memfile.Serialize(&updated)
		if err != nil {
			return fmt.Errorf("serialize memory: %w", err)
		}

		now := time.Now().UTC()
		p, err := queue.Enqueue(rootCtx, &dmmtypes.WriteProposal{
			Type:       dmmtypes.ProposalUpdate,
			TargetPath: existing.Path,
			MemoryID:   pMemoryID,
			Content:    content,
			ProposedBy: pProposedBy,
			Reason:     pReason,
		}, now)
		if err != nil {
			return err
		}
		return printProposal(p)
	},
}

var proposeDeprecateCmd = &cobra.Command{
	Use:   "deprecate",
	Short: "Propose deprecating an existing memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pMemoryID == "" {
			return fmt.Errorf("--memory-id is required")
		}
		now := time.Now().UTC()
		p, err := queue.Enqueue(rootCtx, &dmmtypes.WriteProposal{
			Type:              dmmtypes.ProposalDeprecate,
			MemoryID:          pMemoryID,
			DeprecationReason: pReason,
			ProposedBy:        pProposedBy,
			Reason:            pReason,
		}, now)
		if err != nil {
			return err
		}
		return printProposal(p)
	},
}

var proposePromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Propose promoting an existing memory to a more durable scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pMemoryID == "" || pNewScope == "" {
			return fmt.Errorf("--memory-id and --to-scope are required")
		}
		now := time.Now().UTC()
		p, err := queue.Enqueue(rootCtx, &dmmtypes.WriteProposal{
			Type:       dmmtypes.ProposalPromote,
			MemoryID:   pMemoryID,
			NewScope:   dmmtypes.Scope(pNewScope),
			ProposedBy: pProposedBy,
			Reason:     pReason,
		}, now)
		if err != nil {
			return err
		}
		return printProposal(p)
	},
}

func resolveBody(bodyFile, body string) (string, error) {
	if bodyFile != "" {
		data, err := os.ReadFile(bodyFile)
		if err != nil {
			return "", fmt.Errorf("read --body-file: %w", err)
		}
		return string(data), nil
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("--body or --body-file is required")
	}
	return body, nil
}

// parseNaturalDate turns an operator-facing phrase like "in 90 days" or
// "next Monday" into an absolute time, the way an agent proposing a memory
// would phrase an expiry without computing a timestamp itself.
func parseNaturalDate(text string, base time.Time) (*time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, base)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("could not parse %q as a date/time", text)
	}
	return &r.Time, nil
}

func printProposal(p *dmmtypes.WriteProposal) error {
	if jsonOutput {
		outputJSON(p)
		return nil
	}
	fmt.Printf("Enqueued proposal %s (%s, status=%s)\n", p.ProposalID, p.Type, p.Status)
	return nil
}

func init() {
	proposeCreateCmd.Flags().StringVar(&pPath, "path", "", "relative path under the memory root (required)")
	proposeCreateCmd.Flags().StringVar(&pTitle, "title", "", "memory title")
	proposeCreateCmd.Flags().StringSliceVar(&pTags, "tags", nil, "comma-separated tags")
	proposeCreateCmd.Flags().StringVar(&pScope, "scope", "project", "scope (baseline, global, agent, project, ephemeral)")
	proposeCreateCmd.Flags().Float64Var(&pPriority, "priority", 0.5, "priority 0-1")
	proposeCreateCmd.Flags().StringVar(&pConfidence, "confidence", "active", "confidence (stable, active, tentative, deprecated)")
	proposeCreateCmd.Flags().StringVar(&pBodyFile, "body-file", "", "read the body from a file")
	proposeCreateCmd.Flags().StringVar(&pBody, "body", "", "the body text directly")
	proposeCreateCmd.Flags().StringVar(&pExpires, "expires", "", "natural-language expiry, e.g. \"in 90 days\"")
	proposeCreateCmd.Flags().StringSliceVar(&pSupersedes, "supersedes", nil, "memory ids this one supersedes")
	proposeCreateCmd.Flags().StringSliceVar(&pRelated, "related", nil, "related memory ids")
	proposeCreateCmd.Flags().StringVar(&pProposedBy, "proposed-by", "cli", "agent id proposing this change")
	proposeCreateCmd.Flags().StringVar(&pReason, "reason", "", "why this memory is being proposed")

	proposeUpdateCmd.Flags().StringVar(&pMemoryID, "memory-id", "", "target memory id (required)")
	proposeUpdateCmd.Flags().StringVar(&pBodyFile, "body-file", "", "read the new body from a file")
	proposeUpdateCmd.Flags().StringVar(&pBody, "body", "", "the new body text directly")
	proposeUpdateCmd.Flags().StringSliceVar(&pTags, "tags", nil, "replacement tags (leave unset to keep existing)")
	proposeUpdateCmd.Flags().StringVar(&pProposedBy, "proposed-by", "cli", "agent id proposing this change")
	proposeUpdateCmd.Flags().StringVar(&pReason, "reason", "", "why this update is being proposed")

	proposeDeprecateCmd.Flags().StringVar(&pMemoryID, "memory-id", "", "target memory id (required)")
	proposeDeprecateCmd.Flags().StringVar(&pReason, "reason", "", "deprecation reason")
	proposeDeprecateCmd.Flags().StringVar(&pProposedBy, "proposed-by", "cli", "agent id proposing this change")

	proposePromoteCmd.Flags().StringVar(&pMemoryID, "memory-id", "", "target memory id (required)")
	proposePromoteCmd.Flags().StringVar(&pNewScope, "to-scope", "", "destination scope (required)")
	proposePromoteCmd.Flags().StringVar(&pProposedBy, "proposed-by", "cli", "agent id proposing this change")
	proposePromoteCmd.Flags().StringVar(&pReason, "reason", "", "why this promotion is being proposed")

	proposeCmd.AddCommand(proposeCreateCmd, proposeUpdateCmd, proposeDeprecateCmd, proposePromoteCmd)
	rootCmd.AddCommand(proposeCmd)
}
