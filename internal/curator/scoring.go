package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"taskforge/internal/gateway"
	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// scoredFile pairs a candidate with its model-assigned relevance.
type scoredFile struct {
	Candidate FileCandidate        `json:"candidate"`
	Score     types.RelevanceScore `json:"score"`
}

// scoredFiles holds the classified scoring output.
type scoredFiles struct {
	High   []scoredFile `json:"high"`
	Medium []scoredFile `json:"medium"`
	Low    []scoredFile `json:"low"`
}

const relevanceScoringSystemPrompt = `You are a code relevance analyst. For each file below, estimate how relevant it is to the stated task.

Respond with JSON only:
{
  "scores": [
    {
      "path": "<file path exactly as given>",
      "overall": 0.0-1.0,
      "confidence": 0.0-1.0,
      "modificationLikelihood": "very_high"|"high"|"medium"|"low"|"very_low",
      "reasoning": ["..."],
      "categories": ["..."]
    }
  ]
}
Score every file exactly once.`

type relevanceScoreEntry struct {
	Path string `json:"path"`
	types.RelevanceScore
}

type relevanceScoringReply struct {
	Scores []relevanceScoreEntry `json:"scores"`
}

func relevanceScoringSchema(raw json.RawMessage) error {
	var reply relevanceScoringReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("relevance scoring payload: %w", err)
	}
	if len(reply.Scores) == 0 {
		return fmt.Errorf("scores must be non-empty")
	}
	for i, s := range reply.Scores {
		if s.Path == "" {
			return fmt.Errorf("scores[%d]: path missing", i)
		}
		if s.Overall < 0 || s.Overall > 1 {
			return fmt.Errorf("scores[%d]: overall %v out of [0,1]", i, s.Overall)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			return fmt.Errorf("scores[%d]: confidence %v out of [0,1]", i, s.Confidence)
		}
		if len(s.Reasoning) == 0 || len(s.Categories) == 0 {
			return fmt.Errorf("scores[%d]: reasoning and categories must be non-empty", i)
		}
	}
	return nil
}

// phaseRelevanceScoring scores candidates through the gateway, chunked and
// fanned out over a bounded worker pool, then classifies by overall score.
func (p *Pipeline) phaseRelevanceScoring(ctx context.Context, st *pipelineState) error {
	if len(st.candidates) == 0 {
		st.warn("no candidate files survived discovery")
		return nil
	}

	key := hashKey(st.refinedPrompt, st.codemapPath, candidateFingerprint(st.candidates))
	st.cacheLookups++
	var scores map[string]types.RelevanceScore
	if p.cache.get("relevance-scores", key, &scores) {
		st.cacheHits++
	} else {
		var err error
		scores, err = p.scoreCandidates(ctx, st)
		if err != nil {
			return err
		}
		p.cache.put("relevance-scores", key, scores)
	}

	st.scored = classifyScores(st, scores, p.cfg.MinRelevanceThreshold)
	logging.Curator("job %s scored %d files: %d high, %d medium, %d low",
		st.jobID, len(st.candidates), len(st.scored.High), len(st.scored.Medium), len(st.scored.Low))
	return nil
}

func (p *Pipeline) scoreCandidates(ctx context.Context, st *pipelineState) (map[string]types.RelevanceScore, error) {
	chunks := chunkCandidates(st.candidates, p.cfg.ScoringChunkSize)
	if len(chunks) > 1 {
		st.chunkingUsed = true
	}

	var mu sync.Mutex
	scores := make(map[string]types.RelevanceScore, len(st.candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ScoringWorkers)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			reply, err := p.scoreChunk(gctx, st, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, entry := range reply.Scores {
				scores[entry.Path] = entry.RelevanceScore
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (p *Pipeline) scoreChunk(ctx context.Context, st *pipelineState, chunk []FileCandidate) (*relevanceScoringReply, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task:\n%s\n\nFiles:\n", st.refinedPrompt)
	for _, c := range chunk {
		fmt.Fprintf(&sb, "- %s (discovered via %s: %s)\n", c.Path, strings.Join(c.Strategies, "+"), c.Reasoning)
	}

	raw, err := p.gw.Call(ctx, gateway.Request{
		TaskName:     "relevance_scoring",
		SystemPrompt: relevanceScoringSystemPrompt,
		UserPrompt:   sb.String(),
		Temperature:  0.1,
		Format:       gateway.FormatJSON,
		Schema:       gateway.SchemaFunc(relevanceScoringSchema),
	})
	if err != nil {
		return nil, err
	}
	var reply relevanceScoringReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, types.WrapError(types.ErrInvalidModelOutput, err, "relevance scores decode")
	}
	return &reply, nil
}

// classifyScores applies the relevance threshold and splits candidates into
// high (>= 0.7), medium ([0.4, 0.7)), and low (< 0.4) classes, each sorted by
// overall, then confidence, then modification likelihood, then path.
func classifyScores(st *pipelineState, scores map[string]types.RelevanceScore, threshold float64) scoredFiles {
	var out scoredFiles
	for _, c := range st.candidates {
		score, ok := scores[c.Path]
		if !ok {
			st.warn("file %s was not scored", c.Path)
			continue
		}
		if score.Overall < threshold {
			continue
		}
		sf := scoredFile{Candidate: c, Score: score}
		switch {
		case score.Overall >= 0.7:
			out.High = append(out.High, sf)
		case score.Overall >= 0.4:
			out.Medium = append(out.Medium, sf)
		default:
			out.Low = append(out.Low, sf)
		}
	}
	sortScored(out.High)
	sortScored(out.Medium)
	sortScored(out.Low)
	return out
}

func sortScored(files []scoredFile) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i].Score, files[j].Score
		if a.Overall != b.Overall {
			return a.Overall > b.Overall
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		ra, rb := types.LikelihoodRank(a.ModificationLikelihood), types.LikelihoodRank(b.ModificationLikelihood)
		if ra != rb {
			return ra > rb
		}
		return files[i].Candidate.Path < files[j].Candidate.Path
	})
}

func chunkCandidates(candidates []FileCandidate, size int) [][]FileCandidate {
	if size <= 0 {
		size = 50
	}
	var chunks [][]FileCandidate
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		chunks = append(chunks, candidates[start:end])
	}
	return chunks
}

func candidateFingerprint(candidates []FileCandidate) string {
	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.Path
	}
	sort.Strings(paths)
	return strings.Join(paths, "\n")
}
