package retrieval

import (
	"fmt"
	"strings"
	"time"
)

// Render turns a MemoryPack into the deterministic markdown document
// described in spec.md §4.5.2: same input produces the same bytes, so a
// pack can be diffed or hashed by callers that cache it.
func Render(pack *MemoryPack, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# DMM Memory Pack\n")
	fmt.Fprintf(&b, "_generated: %s_\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "_query: %q_\n\n", pack.QueryText)

	b.WriteString("## Baseline (Always Included)\n\n")
	for _, e := range pack.Baseline {
		fmt.Fprintf(&b, "### %s\n%s\n\n", e.Memory.Path, e.Memory.Body)
	}

	b.WriteString("## Retrieved\n\n")
	for _, e := range pack.Retrieved {
		fmt.Fprintf(&b, "### %s  (score: %.2f)\n%s\n\n", e.Memory.Path, e.Score, e.Memory.Body)
	}

	b.WriteString("## Pack Statistics\n")
	fmt.Fprintf(&b, "- baseline_tokens: %d\n", pack.Stats.BaselineTokens)
	fmt.Fprintf(&b, "- retrieved_tokens: %d\n", pack.Stats.RetrievedTokens)
	fmt.Fprintf(&b, "- total_tokens: %d\n", pack.Stats.TotalTokens)
	fmt.Fprintf(&b, "- budget: %d\n", pack.Stats.Budget)
	fmt.Fprintf(&b, "- included: %d, excluded: %d\n", pack.Stats.Included, pack.Stats.Excluded)

	return b.String()
}
