package curator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/types"
)

func TestConsolidateUnionsByPath(t *testing.T) {
	results := map[string][]FileCandidate{
		"keyword_matching": {
			{Path: "src/a.ts", Priority: "medium", Confidence: 0.6, Strategies: []string{"keyword_matching"}},
			{Path: "src/b.ts", Priority: "low", Confidence: 0.3, Strategies: []string{"keyword_matching"}},
		},
		"semantic_similarity": {
			{Path: "src/a.ts", Priority: "high", Confidence: 0.8, Strategies: []string{"semantic_similarity"}},
		},
	}

	out := consolidate(results)
	require.Len(t, out, 2)

	// src/a.ts wins max confidence, highest priority, and a duplicate count.
	assert.Equal(t, "src/a.ts", out[0].Path)
	assert.Equal(t, 0.8, out[0].Confidence)
	assert.Equal(t, "high", out[0].Priority)
	assert.Equal(t, 1, out[0].Duplicates)
	assert.Len(t, out[0].Strategies, 2)

	assert.Equal(t, "src/b.ts", out[1].Path)
	assert.Zero(t, out[1].Duplicates)
}

func TestCosine(t *testing.T) {
	a := termVector("websocket memory leak")
	assert.InDelta(t, 1.0, cosine(a, a), 0.001)
	assert.Zero(t, cosine(a, termVector("completely unrelated words")))
	assert.Zero(t, cosine(a, map[string]float64{}))
}

func TestSemanticSimilarityRanksMatchingPaths(t *testing.T) {
	mapContent := "src/websocket/hub.ts - hub\nsrc/billing/invoice.ts - invoices\n"
	files := []string{"src/websocket/hub.ts", "src/billing/invoice.ts"}

	out := semanticSimilarity("fix the websocket hub leak", mapContent, files)
	require.NotEmpty(t, out)
	assert.Equal(t, "src/websocket/hub.ts", out[0].Path)
	for _, c := range out {
		assert.NotEqual(t, "src/billing/invoice.ts", c.Path)
	}
}

func TestNormalizeRel(t *testing.T) {
	assert.Equal(t, "src/a.ts", normalizeRel("./src/a.ts"))
	assert.Equal(t, "", normalizeRel("../escape.ts"))
	assert.Equal(t, "", normalizeRel("/abs/path.ts"))
}

func TestMatchesGlobs(t *testing.T) {
	assert.True(t, matchesGlobs("src/a.ts", []string{"**/*"}))
	assert.True(t, matchesGlobs("node_modules/x/y.js", []string{"node_modules/**"}))
	assert.False(t, matchesGlobs("src/a.ts", []string{"*.md"}))
}

func TestClassifyScoresThresholdAndOrder(t *testing.T) {
	st := &pipelineState{candidates: []FileCandidate{
		{Path: "a.ts"}, {Path: "b.ts"}, {Path: "c.ts"}, {Path: "d.ts"},
	}}
	scores := map[string]types.RelevanceScore{
		"a.ts": {Overall: 0.9, Confidence: 0.8, ModificationLikelihood: types.LikelihoodHigh, Reasoning: []string{"r"}, Categories: []string{"c"}},
		"b.ts": {Overall: 0.9, Confidence: 0.9, ModificationLikelihood: types.LikelihoodHigh, Reasoning: []string{"r"}, Categories: []string{"c"}},
		"c.ts": {Overall: 0.5, Confidence: 0.5, ModificationLikelihood: types.LikelihoodMedium, Reasoning: []string{"r"}, Categories: []string{"c"}},
		"d.ts": {Overall: 0.05, Confidence: 0.5, ModificationLikelihood: types.LikelihoodLow, Reasoning: []string{"r"}, Categories: []string{"c"}},
	}

	out := classifyScores(st, scores, 0.1)
	require.Len(t, out.High, 2)
	require.Len(t, out.Medium, 1)
	assert.Empty(t, out.Low)

	// Equal overall breaks on confidence.
	assert.Equal(t, "b.ts", out.High[0].Candidate.Path)
	assert.Equal(t, "a.ts", out.High[1].Candidate.Path)
}

func TestChunkCandidates(t *testing.T) {
	candidates := make([]FileCandidate, 120)
	chunks := chunkCandidates(candidates, 50)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 50)
	assert.Len(t, chunks[2], 20)
}
