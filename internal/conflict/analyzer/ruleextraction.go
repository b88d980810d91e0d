package analyzer

import (
	"context"

	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
)

// RuleExtraction asks an Anthropic-backed client to judge whether two
// memories that already cleared the semantic-similarity threshold actually
// give opposing directives. It is optional: a nil Client (no Anthropic
// embedder configured) makes Refine a no-op rather than an error, so the
// other analyzers' output is unaffected by its absence (spec.md §9).
//
// Unlike the other analyzers it does not implement Analyzer directly — it
// refines SemanticSimilarity's output rather than scanning the whole
// corpus itself, since the LLM call is the expensive step here and running
// it over every pair would defeat the point of gating on prior similarity.
type RuleExtraction struct {
	Client *embed.AnthropicEmbedder
}

// NewRuleExtraction builds the analyzer. client may be nil.
func NewRuleExtraction(client *embed.AnthropicEmbedder) *RuleExtraction {
	return &RuleExtraction{Client: client}
}

func (a *RuleExtraction) Method() dmmtypes.DetectionMethod { return dmmtypes.MethodRuleExtraction }

// Refine takes SemanticSimilarity's candidates and asks the client to
// confirm or reject each one, returning only the confirmed pairs as
// rule_extraction candidates.
func (a *RuleExtraction) Refine(ctx context.Context, semanticCandidates []Candidate, byID map[string]*dmmtypes.Memory) ([]Candidate, error) {
	if a.Client == nil {
		return nil, nil
	}

	var out []Candidate
	for _, c := range semanticCandidates {
		m1, ok1 := byID[c.MemoryA]
		m2, ok2 := byID[c.MemoryB]
		if !ok1 || !ok2 {
			continue
		}
		judgment, err := a.Client.ClassifyOpposing(ctx, m1.Body, m2.Body)
		if err != nil {
			return out, err
		}
		if !judgment.Opposing {
			continue
		}
		out = append(out, Candidate{
			MemoryA:  m1.ID,
			MemoryB:  m2.ID,
			Method:   dmmtypes.MethodRuleExtraction,
			RawScore: clamp01(judgment.Confidence),
			Evidence: map[string]any{"rationale": judgment.Rationale},
		})
	}
	return out, nil
}
