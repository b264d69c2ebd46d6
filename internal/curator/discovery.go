package curator

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"taskforge/internal/codemap"
	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// FileCandidate is one discovered file before relevance scoring.
type FileCandidate struct {
	Path                   string                       `json:"path"`
	Priority               string                       `json:"priority"`
	Reasoning              string                       `json:"reasoning"`
	Confidence             float64                      `json:"confidence"`
	EstimatedTokens        int                          `json:"estimatedTokens"`
	ModificationLikelihood types.ModificationLikelihood `json:"modificationLikelihood"`
	Strategies             []string                     `json:"strategies"`
	Duplicates             int                          `json:"duplicates"`
}

func priorityRank(p string) int {
	switch p {
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}

// phaseFileDiscovery runs the four discovery strategies concurrently and
// consolidates their candidates. A strategy failure degrades to a warning;
// the phase fails only when every strategy fails.
func (p *Pipeline) phaseFileDiscovery(ctx context.Context, st *pipelineState) error {
	key := hashKey(st.refinedPrompt, st.codemapPath,
		strings.Join(st.req.IncludePatterns, ","), strings.Join(st.req.ExcludePatterns, ","))

	st.cacheLookups++
	var cached []FileCandidate
	if p.cache.get("file-discovery", key, &cached) {
		st.cacheHits++
		st.candidates = p.filterCandidates(st, cached)
		return nil
	}

	mapFiles := collectMapFiles(st.codemapContent)

	strategies := []struct {
		name string
		fn   func(context.Context) ([]FileCandidate, error)
	}{
		{"semantic_similarity", func(ctx context.Context) ([]FileCandidate, error) {
			return semanticSimilarity(st.refinedPrompt, st.codemapContent, mapFiles), nil
		}},
		{"keyword_matching", func(ctx context.Context) ([]FileCandidate, error) {
			return keywordMatching(st.refinedPrompt, st.codemapContent), nil
		}},
		{"semantic_and_keyword", func(ctx context.Context) ([]FileCandidate, error) {
			return semanticAndKeyword(st.refinedPrompt, st.codemapContent, mapFiles), nil
		}},
		{"structural_analysis", func(ctx context.Context) ([]FileCandidate, error) {
			return structuralAnalysis(st.refinedPrompt, st.codemapContent, mapFiles), nil
		}},
	}

	var mu sync.Mutex
	results := make(map[string][]FileCandidate)
	var failures []string

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range strategies {
		s := s
		g.Go(func() error {
			found, err := s.fn(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.CuratorWarn("strategy %s failed: %v", s.name, err)
				failures = append(failures, s.name)
				return nil
			}
			for i := range found {
				found[i].Strategies = []string{s.name}
			}
			results[s.name] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(failures) == len(strategies) {
		return types.NewError(types.ErrInternal, "all discovery strategies failed")
	}
	for _, name := range failures {
		st.warn("discovery strategy %s failed", name)
	}

	consolidated := consolidate(results)
	p.cache.put("file-discovery", key, consolidated)

	st.candidates = p.filterCandidates(st, consolidated)
	logging.Curator("job %s discovered %d candidate files", st.jobID, len(st.candidates))
	return nil
}

// filterCandidates applies include/exclude globs, verifies existence under the
// project path, and caps the list at max_files by confidence.
func (p *Pipeline) filterCandidates(st *pipelineState, candidates []FileCandidate) []FileCandidate {
	var kept []FileCandidate
	for _, c := range candidates {
		rel := normalizeRel(c.Path)
		if rel == "" || !matchesGlobs(rel, st.req.IncludePatterns) || matchesGlobs(rel, st.req.ExcludePatterns) {
			continue
		}
		abs := filepath.Join(st.req.ProjectPath, filepath.FromSlash(rel))
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			st.warn("discovered file %s does not exist under project path", rel)
			continue
		}
		c.Path = rel
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		if pr := priorityRank(kept[i].Priority) - priorityRank(kept[j].Priority); pr != 0 {
			return pr > 0
		}
		return kept[i].Path < kept[j].Path
	})
	if len(kept) > st.req.MaxFiles {
		kept = kept[:st.req.MaxFiles]
	}
	return kept
}

func normalizeRel(path string) string {
	rel := filepath.ToSlash(filepath.Clean(path))
	rel = strings.TrimPrefix(rel, "./")
	if rel == "." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return ""
	}
	return rel
}

func matchesGlobs(rel string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// consolidate unions strategy outputs per path: max confidence, highest
// priority seen, duplicate count across strategies.
func consolidate(results map[string][]FileCandidate) []FileCandidate {
	byPath := make(map[string]*FileCandidate)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, c := range results[name] {
			existing, ok := byPath[c.Path]
			if !ok {
				copied := c
				byPath[c.Path] = &copied
				continue
			}
			existing.Duplicates++
			existing.Strategies = append(existing.Strategies, c.Strategies...)
			if c.Confidence > existing.Confidence {
				existing.Confidence = c.Confidence
				existing.Reasoning = c.Reasoning
				existing.ModificationLikelihood = c.ModificationLikelihood
			}
			if priorityRank(c.Priority) > priorityRank(existing.Priority) {
				existing.Priority = c.Priority
			}
		}
	}

	out := make([]FileCandidate, 0, len(byPath))
	for _, c := range byPath {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// collectMapFiles returns the unique source and config file paths mentioned in
// the code map.
func collectMapFiles(content string) []string {
	var files []string
	seen := map[string]bool{}
	for _, path := range analysisPathRe.FindAllString(content, -1) {
		if seen[path] {
			continue
		}
		seen[path] = true
		if languageForPath(path) != "" || isConfigLike(path) {
			files = append(files, path)
		}
	}
	return files
}

func isConfigLike(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml", ".toml", ".mod", ".lock":
		return true
	}
	return false
}

// semanticSimilarity ranks files by cosine similarity between the prompt's
// term vector and each file's path-and-context term vector. This is a lexical
// approximation of embedding distance.
func semanticSimilarity(prompt, mapContent string, files []string) []FileCandidate {
	promptVec := termVector(prompt)
	if len(promptVec) == 0 {
		return nil
	}

	contextLines := fileContextIndex(mapContent, files)

	var out []FileCandidate
	for _, path := range files {
		text := pathTerms(path) + " " + contextLines[path]
		score := cosine(promptVec, termVector(text))
		if score < 0.15 {
			continue
		}
		out = append(out, FileCandidate{
			Path:                   path,
			Priority:               confidencePriority(score),
			Reasoning:              "lexical similarity to the refined prompt",
			Confidence:             score,
			ModificationLikelihood: likelihoodFor(score),
		})
	}
	return out
}

// keywordMatching reuses the code-map keyword scan and boosts files whose
// name itself carries a prompt keyword.
func keywordMatching(prompt, mapContent string) []FileCandidate {
	relevant := codemap.ExtractRelevantFiles(mapContent, prompt)
	promptLower := strings.ToLower(prompt)

	var out []FileCandidate
	for _, path := range relevant {
		confidence := 0.55
		base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		for _, part := range strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' || r == '.' }) {
			if len(part) > 2 && strings.Contains(promptLower, part) {
				confidence = 0.75
				break
			}
		}
		out = append(out, FileCandidate{
			Path:                   path,
			Priority:               confidencePriority(confidence),
			Reasoning:              "keyword match against the code map",
			Confidence:             confidence,
			ModificationLikelihood: likelihoodFor(confidence),
		})
	}
	return out
}

// semanticAndKeyword takes the weighted union of the two base strategies.
func semanticAndKeyword(prompt, mapContent string, files []string) []FileCandidate {
	semantic := map[string]float64{}
	for _, c := range semanticSimilarity(prompt, mapContent, files) {
		semantic[c.Path] = c.Confidence
	}
	keyword := map[string]float64{}
	for _, c := range keywordMatching(prompt, mapContent) {
		keyword[c.Path] = c.Confidence
	}

	paths := map[string]bool{}
	for p := range semantic {
		paths[p] = true
	}
	for p := range keyword {
		paths[p] = true
	}

	var out []FileCandidate
	for path := range paths {
		score := 0.6*semantic[path] + 0.4*keyword[path]
		if score < 0.2 {
			continue
		}
		out = append(out, FileCandidate{
			Path:                   path,
			Priority:               confidencePriority(score),
			Reasoning:              "combined semantic and keyword evidence",
			Confidence:             score,
			ModificationLikelihood: likelihoodFor(score),
		})
	}
	return out
}

// structuralAnalysis follows import edges outward from high-confidence keyword
// seeds: files sharing a directory with a seed, or resolving an internal
// import target, ride along at reduced confidence.
func structuralAnalysis(prompt, mapContent string, files []string) []FileCandidate {
	seeds := map[string]bool{}
	seedDirs := map[string]bool{}
	for _, c := range keywordMatching(prompt, mapContent) {
		if c.Confidence >= 0.7 {
			seeds[c.Path] = true
			seedDirs[filepath.ToSlash(filepath.Dir(c.Path))] = true
		}
	}
	if len(seeds) == 0 {
		return nil
	}

	internalTargets := map[string]bool{}
	for _, ref := range codemap.ExtractDependencyInfo(mapContent) {
		if !ref.IsExternal {
			internalTargets[strings.TrimPrefix(filepath.ToSlash(filepath.Clean(ref.Target)), "./")] = true
		}
	}

	var out []FileCandidate
	for _, path := range files {
		if seeds[path] {
			continue
		}
		dir := filepath.ToSlash(filepath.Dir(path))
		bare := strings.TrimSuffix(path, filepath.Ext(path))
		linked := seedDirs[dir] || internalTargets[bare] || internalTargets[path]
		if !linked {
			continue
		}
		out = append(out, FileCandidate{
			Path:                   path,
			Priority:               "medium",
			Reasoning:              "structurally linked to a high-confidence file",
			Confidence:             0.5,
			ModificationLikelihood: types.LikelihoodMedium,
		})
	}
	return out
}

// fileContextIndex gathers, per file, the code-map lines that mention it.
func fileContextIndex(mapContent string, files []string) map[string]string {
	idx := make(map[string]string, len(files))
	fileSet := map[string]bool{}
	for _, f := range files {
		fileSet[f] = true
	}
	for _, line := range strings.Split(mapContent, "\n") {
		for _, path := range analysisPathRe.FindAllString(line, -1) {
			if fileSet[path] {
				idx[path] += " " + line
			}
		}
	}
	return idx
}

func pathTerms(path string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '_', '-', '.':
			return ' '
		}
		return r
	}, path)
}

func termVector(text string) map[string]float64 {
	vec := map[string]float64{}
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:()[]{}\"'`")
		if len(f) > 2 && !relevanceNoise[f] {
			vec[f]++
		}
	}
	return vec
}

var relevanceNoise = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "was": true, "will": true,
	"file": true, "files": true, "code": true,
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, v := range a {
		na += v * v
		dot += v * b[k]
	}
	for _, v := range b {
		nb += v * v
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func confidencePriority(score float64) string {
	switch {
	case score >= 0.6:
		return "high"
	case score >= 0.3:
		return "medium"
	default:
		return "low"
	}
}

func likelihoodFor(score float64) types.ModificationLikelihood {
	switch {
	case score >= 0.8:
		return types.LikelihoodVeryHigh
	case score >= 0.6:
		return types.LikelihoodHigh
	case score >= 0.4:
		return types.LikelihoodMedium
	case score >= 0.2:
		return types.LikelihoodLow
	default:
		return types.LikelihoodVeryLow
	}
}
