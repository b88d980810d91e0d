package analyzer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcore/dmm/internal/conflict/analyzer"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/embed"
)

func mem(id string, scope dmmtypes.Scope, tags []string, body string) *dmmtypes.Memory {
	return &dmmtypes.Memory{
		ID: id, Title: id, Body: body, Tags: tags, Scope: scope,
		Status: dmmtypes.StatusActive, Priority: 0.5,
	}
}

func TestTagOverlapFlagsCrossScopeSimilarTags(t *testing.T) {
	m1 := mem("mem_a", dmmtypes.ScopeProject, []string{"go", "errors", "style"}, "Return errors explicitly from library code.")
	m2 := mem("mem_b", dmmtypes.ScopeGlobal, []string{"go", "errors", "style"}, "Always wrap errors with fmt.Errorf and %w.")

	a := analyzer.NewTagOverlap(0.70)
	candidates, err := a.Scan(context.Background(), []*dmmtypes.Memory{m1, m2}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, dmmtypes.MethodTagOverlap, candidates[0].Method)
	assert.Equal(t, "high", candidates[0].Evidence["severity"])
}

func TestTagOverlapSkipsSameScope(t *testing.T) {
	m1 := mem("mem_a", dmmtypes.ScopeProject, []string{"go", "errors"}, "Body one with distinct content here.")
	m2 := mem("mem_b", dmmtypes.ScopeProject, []string{"go", "errors"}, "Body two with different content here.")

	a := analyzer.NewTagOverlap(0.70)
	candidates, err := a.Scan(context.Background(), []*dmmtypes.Memory{m1, m2}, nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestTagOverlapSkipsIdenticalPrefix(t *testing.T) {
	body := "Identical opening text that matches for both memories here."
	m1 := mem("mem_a", dmmtypes.ScopeProject, []string{"go", "errors"}, body)
	m2 := mem("mem_b", dmmtypes.ScopeGlobal, []string{"go", "errors"}, body)

	a := analyzer.NewTagOverlap(0.70)
	candidates, err := a.Scan(context.Background(), []*dmmtypes.Memory{m1, m2}, nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSemanticSimilarityFlagsDivergentOpinions(t *testing.T) {
	m1 := mem("mem_a", dmmtypes.ScopeProject, nil, "You must always validate input at the API boundary before use.")
	m2 := mem("mem_b", dmmtypes.ScopeGlobal, nil, "You should never validate input twice; trust internal callers completely.")

	a := analyzer.NewSemanticSimilarity(embed.NewHashEmbedder(), 0, 0, 0.95, 0)
	candidates, err := a.Scan(context.Background(), []*dmmtypes.Memory{m1, m2}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, dmmtypes.MethodSemanticSimilarity, candidates[0].Method)
}

func TestSemanticSimilarityRespectsFocus(t *testing.T) {
	m1 := mem("mem_a", dmmtypes.ScopeProject, nil, "You must always validate input at the API boundary before use.")
	m2 := mem("mem_b", dmmtypes.ScopeGlobal, nil, "You should never validate input twice; trust internal callers completely.")
	m3 := mem("mem_c", dmmtypes.ScopeGlobal, nil, "Unrelated guidance about logging levels and verbosity settings.")

	a := analyzer.NewSemanticSimilarity(embed.NewHashEmbedder(), 0, 0, 0.95, 0)
	focus := map[string]bool{"mem_c": true}
	candidates, err := a.Scan(context.Background(), []*dmmtypes.Memory{m1, m2, m3}, focus)
	require.NoError(t, err)
	for _, c := range candidates {
		assert.True(t, c.MemoryA == "mem_c" || c.MemoryB == "mem_c")
	}
}

func TestSupersessionFlagsOrphanedPattern(t *testing.T) {
	old := mem("mem_old", dmmtypes.ScopeProject, nil, "old guidance")
	replacement := mem("mem_new", dmmtypes.ScopeProject, nil, "new guidance")
	replacement.Supersedes = []string{"mem_old"}

	a := analyzer.NewSupersession(10)
	candidates, err := a.Scan(context.Background(), []*dmmtypes.Memory{old, replacement}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "orphaned", candidates[0].Evidence["issue_type"])
}

func TestSupersessionFlagsIncompletePattern(t *testing.T) {
	old := mem("mem_old", dmmtypes.ScopeProject, nil, "old guidance")
	replacement := mem("mem_new", dmmtypes.ScopeProject, nil, "new guidance")
	replacement.Status = dmmtypes.StatusDeprecated
	replacement.Supersedes = []string{"mem_old"}

	a := analyzer.NewSupersession(10)
	candidates, err := a.Scan(context.Background(), []*dmmtypes.Memory{old, replacement}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "incomplete", candidates[0].Evidence["issue_type"])
}

func TestSupersessionFlagsContestedPattern(t *testing.T) {
	target := mem("mem_target", dmmtypes.ScopeProject, nil, "target guidance")
	claimantA := mem("mem_claim_a", dmmtypes.ScopeProject, nil, "claimant a")
	claimantA.Supersedes = []string{"mem_target"}
	claimantB := mem("mem_claim_b", dmmtypes.ScopeProject, nil, "claimant b")
	claimantB.Supersedes = []string{"mem_target"}

	a := analyzer.NewSupersession(10)
	candidates, err := a.Scan(context.Background(), []*dmmtypes.Memory{target, claimantA, claimantB}, nil)
	require.NoError(t, err)

	var contested int
	for _, c := range candidates {
		if c.Evidence["issue_type"] == "contested" {
			contested++
		}
	}
	assert.Equal(t, 1, contested)
}

func TestSupersessionFlagsCircularPattern(t *testing.T) {
	a1 := mem("mem_1", dmmtypes.ScopeProject, nil, "one")
	a2 := mem("mem_2", dmmtypes.ScopeProject, nil, "two")
	a1.Supersedes = []string{"mem_2"}
	a2.Supersedes = []string{"mem_1"}

	an := analyzer.NewSupersession(10)
	candidates, err := an.Scan(context.Background(), []*dmmtypes.Memory{a1, a2}, nil)
	require.NoError(t, err)

	var circular int
	for _, c := range candidates {
		if c.Evidence["issue_type"] == "circular" {
			circular++
		}
	}
	assert.Equal(t, 1, circular)
}

func TestRuleExtractionNoopWithoutClient(t *testing.T) {
	re := analyzer.NewRuleExtraction(nil)
	out, err := re.Refine(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
