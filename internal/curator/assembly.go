package curator

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// phaseAssembly reads content for high and medium files, optimizes oversized
// content into sections, and fills the package greedily against the token
// budget. Low-relevance files are carried as references only.
func (p *Pipeline) phaseAssembly(ctx context.Context, st *pipelineState) error {
	budget := st.req.MaxTokenBudget
	pkg := &types.ContextPackage{
		RefinedPrompt: st.refinedPrompt,
		CodemapPath:   st.codemapPath,
		MetaPrompt:    st.metaPrompt,
	}

	var demoted []scoredFile

	fill := func(files []scoredFile, dest *[]types.PackageFile) {
		for _, sf := range files {
			if ctx.Err() != nil {
				return
			}
			pf, err := p.loadPackageFile(st, sf)
			if err != nil {
				st.warn("cannot read %s: %v", sf.Candidate.Path, err)
				continue
			}
			if pf.TokenEstimate > budget {
				demoted = append(demoted, sf)
				continue
			}
			budget -= pf.TokenEstimate
			*dest = append(*dest, *pf)
		}
	}

	fill(st.scored.High, &pkg.HighPriorityFiles)
	if err := ctx.Err(); err != nil {
		return err
	}
	fill(st.scored.Medium, &pkg.MediumPriority)
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, sf := range append(demoted, st.scored.Low...) {
		ref := p.fileReference(st, sf)
		if ref.TokenEstimate > budget {
			st.warn("budget exhausted before referencing %s", sf.Candidate.Path)
			continue
		}
		budget -= ref.TokenEstimate
		pkg.LowPriorityFiles = append(pkg.LowPriorityFiles, ref)
	}

	pkg.Metadata = types.PackageMetadata{
		JobID:               st.jobID,
		GeneratedAt:         time.Now(),
		OriginalPrompt:      st.req.Prompt,
		RefinedPrompt:       st.refinedPrompt,
		TaskType:            st.taskType,
		TotalFiles:          len(pkg.HighPriorityFiles) + len(pkg.MediumPriority) + len(pkg.LowPriorityFiles),
		TotalTokenEstimate:  pkg.TotalTokens(),
		MaxTokenBudget:      st.req.MaxTokenBudget,
		HighPriorityCount:   len(pkg.HighPriorityFiles),
		MediumPriorityCount: len(pkg.MediumPriority),
		LowPriorityCount:    len(pkg.LowPriorityFiles),
		CodemapCacheUsed:    st.codemapCacheUsed,
		ChunkingUsed:        st.chunkingUsed,
		Warnings:            st.warnings,
	}
	pkg.Metadata.Quality = p.qualityMetrics(st, pkg)

	st.pkg = pkg
	logging.Curator("job %s assembled package: %d files, %d of %d tokens",
		st.jobID, pkg.Metadata.TotalFiles, pkg.Metadata.TotalTokenEstimate, st.req.MaxTokenBudget)
	return nil
}

// loadPackageFile reads a file through the path validator and optimizes its
// content when it exceeds the configured thresholds.
func (p *Pipeline) loadPackageFile(st *pipelineState, sf scoredFile) (*types.PackageFile, error) {
	abs := filepath.Join(st.req.ProjectPath, filepath.FromSlash(sf.Candidate.Path))
	validated, err := p.validator.ValidateExisting(abs)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(validated)
	if err != nil {
		return nil, types.WrapError(types.ErrResourceNotFound, err, "read %s", sf.Candidate.Path)
	}
	info, _ := os.Stat(validated)

	content := string(data)
	totalLines := strings.Count(content, "\n") + 1
	optimized := false
	var sections []types.ContentSection

	if len(content) > p.cfg.MaxContentLength {
		content = content[:p.cfg.MaxContentLength]
		optimized = true
	}
	if len(content) > p.cfg.OptimizationThreshold {
		content, sections = optimizeContent(content)
		optimized = true
	}

	pf := &types.PackageFile{
		Path:          sf.Candidate.Path,
		Content:       content,
		IsOptimized:   optimized,
		TotalLines:    totalLines,
		TokenEstimate: p.tokens.Estimate(content),
		Relevance:     sf.Score,
		Reasoning:     strings.Join(sf.Score.Reasoning, "; "),
		Language:      languageForPath(sf.Candidate.Path),
		Sections:      sections,
	}
	if info != nil {
		pf.LastModified = info.ModTime()
	}
	return pf, nil
}

func (p *Pipeline) fileReference(st *pipelineState, sf scoredFile) types.FileReference {
	ref := types.FileReference{
		Path:          sf.Candidate.Path,
		Relevance:     sf.Score.Overall,
		TokenEstimate: p.tokens.Estimate(sf.Candidate.Path),
		Language:      languageForPath(sf.Candidate.Path),
		Reasoning:     strings.Join(sf.Score.Reasoning, "; "),
	}
	if info, err := os.Stat(filepath.Join(st.req.ProjectPath, filepath.FromSlash(sf.Candidate.Path))); err == nil {
		ref.Size = info.Size()
		ref.LastModified = info.ModTime()
	}
	return ref
}

// declarationRe keeps structurally significant lines during optimization.
var declarationRe = regexp.MustCompile(`^\s*(func |type |const |var |class |def |interface |export |import |package |from |public |private |protected |//|#|/\*|\*)`)

// optimizeContent reduces oversized content to a full head section plus
// optimized sections holding declarations and comments from the remainder.
func optimizeContent(content string) (string, []types.ContentSection) {
	lines := strings.Split(content, "\n")

	const headLines = 200
	head := headLines
	if head > len(lines) {
		head = len(lines)
	}

	sections := []types.ContentSection{{
		Type:      types.SectionFull,
		StartLine: 1,
		EndLine:   head,
		Content:   strings.Join(lines[:head], "\n"),
	}}

	start := -1
	var kept []string
	flush := func(end int) {
		if start < 0 {
			return
		}
		sections = append(sections, types.ContentSection{
			Type:      types.SectionOptimized,
			StartLine: start + 1,
			EndLine:   end,
			Content:   strings.Join(kept, "\n"),
		})
		start = -1
		kept = nil
	}

	for i := head; i < len(lines); i++ {
		if declarationRe.MatchString(lines[i]) {
			if start < 0 {
				start = i
			}
			kept = append(kept, lines[i])
		} else {
			flush(i)
		}
	}
	flush(len(lines))

	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(s.Content)
	}
	return sb.String(), sections
}

// qualityMetrics scores the assembled package with bounded heuristics.
func (p *Pipeline) qualityMetrics(st *pipelineState, pkg *types.ContextPackage) types.QualityMetrics {
	included := len(pkg.HighPriorityFiles) + len(pkg.MediumPriority)
	wanted := len(st.scored.High) + len(st.scored.Medium)

	completeness := 1.0
	if wanted > 0 {
		completeness = float64(included) / float64(wanted)
	}

	relevance := 0.0
	if included > 0 {
		for _, f := range pkg.HighPriorityFiles {
			relevance += f.Relevance.Overall
		}
		for _, f := range pkg.MediumPriority {
			relevance += f.Relevance.Overall
		}
		relevance /= float64(included)
	}

	efficiency := 0.0
	if st.req.MaxTokenBudget > 0 {
		efficiency = float64(pkg.TotalTokens()) / float64(st.req.MaxTokenBudget)
		if efficiency > 1 {
			efficiency = 1
		}
	}

	metaQuality := 0.0
	decompQuality := 0.0
	if pkg.MetaPrompt != nil {
		metaQuality = pkg.MetaPrompt.QualityScore
		tasks := 0
		for _, epic := range pkg.MetaPrompt.TaskDecomposition.Epics {
			tasks += len(epic.Tasks)
		}
		decompQuality = clamp01(0.4 + 0.1*float64(tasks))
	}

	m := types.QualityMetrics{
		SchemaCompliance:     1.0,
		ContentCompleteness:  clamp01(completeness),
		MetaPromptQuality:    clamp01(metaQuality),
		FileRelevance:        clamp01(relevance),
		TokenEfficiency:      clamp01(efficiency),
		DecompositionQuality: decompQuality,
	}
	m.Overall = (m.SchemaCompliance + m.ContentCompleteness + m.MetaPromptQuality +
		m.FileRelevance + m.TokenEfficiency + m.DecompositionQuality) / 6
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
