// Package xmlpkg serializes context packages to the stable, versioned XML
// schema and validates serialized documents.
package xmlpkg

import (
	"encoding/json"
	"fmt"
	"strings"

	"taskforge/internal/types"
)

const (
	// Version is the package schema version emitted on the root element.
	Version = "1.0"
	// FormatVersion tracks breaking changes to the XML layout.
	FormatVersion = "1.0"

	timestampFormat = "2006-01-02T15:04:05.000Z"
)

// Escape escapes a textual value for use as XML element or attribute content.
// The ampersand is replaced first so later replacements cannot double-escape.
// Control characters below 32 are dropped except tab, LF, and CR.
func Escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		switch r {
		case '&':
			sb.WriteString("&amp;")
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		case '"':
			sb.WriteString("&quot;")
		case '\'':
			sb.WriteString("&#39;")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Unescape reverses Escape. The ampersand entity is restored last.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&lt;", "<")
	return strings.ReplaceAll(s, "&amp;", "&")
}

// cdata wraps s in a CDATA section. A literal "]]>" inside s is split across
// two adjacent sections so the document stays well-formed.
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}

type writer struct {
	sb    strings.Builder
	depth int
}

func (w *writer) line(format string, args ...interface{}) {
	w.sb.WriteString(strings.Repeat("  ", w.depth))
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteByte('\n')
}

func (w *writer) open(tag string)  { w.line("<%s>", tag); w.depth++ }
func (w *writer) close(tag string) { w.depth--; w.line("</%s>", tag) }

func (w *writer) text(tag, value string) {
	w.line("<%s>%s</%s>", tag, Escape(value), tag)
}

func (w *writer) raw(tag, value string) {
	w.line("<%s>%s</%s>", tag, cdata(value), tag)
}

func (w *writer) boolean(tag string, v bool) {
	w.line("<%s>%t</%s>", tag, v, tag)
}

func (w *writer) number(tag string, v interface{}) {
	w.line("<%s>%v</%s>", tag, v, tag)
}

// jsonText serializes v to JSON and emits it as escaped element text.
func (w *writer) jsonText(tag string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte("{}")
	}
	w.text(tag, string(data))
}

// Serialize renders a context package as a versioned XML document.
func Serialize(pkg *types.ContextPackage) string {
	w := &writer{}
	w.sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	w.line(`<context_package version="%s" format_version="%s">`, Version, FormatVersion)
	w.depth++

	writeMetadata(w, pkg.Metadata)
	w.raw("refined_prompt", pkg.RefinedPrompt)
	w.text("codemap_path", pkg.CodemapPath)

	w.open("high_priority_files")
	for i := range pkg.HighPriorityFiles {
		writeFile(w, &pkg.HighPriorityFiles[i])
	}
	w.close("high_priority_files")

	w.open("medium_priority_files")
	for i := range pkg.MediumPriority {
		writeFile(w, &pkg.MediumPriority[i])
	}
	w.close("medium_priority_files")

	w.open("low_priority_files")
	for i := range pkg.LowPriorityFiles {
		writeFileReference(w, &pkg.LowPriorityFiles[i])
	}
	w.close("low_priority_files")

	if pkg.MetaPrompt != nil {
		writeMetaPrompt(w, pkg.MetaPrompt)
	}

	w.depth--
	w.line("</context_package>")
	return w.sb.String()
}

func writeMetadata(w *writer, md types.PackageMetadata) {
	w.open("package_metadata")
	w.text("job_id", md.JobID)
	w.text("generated_at", md.GeneratedAt.UTC().Format(timestampFormat))
	w.text("original_prompt", md.OriginalPrompt)
	w.text("task_type", string(md.TaskType))
	w.number("total_files", md.TotalFiles)
	w.number("total_token_estimate", md.TotalTokenEstimate)
	w.number("max_token_budget", md.MaxTokenBudget)
	w.number("high_priority_count", md.HighPriorityCount)
	w.number("medium_priority_count", md.MediumPriorityCount)
	w.number("low_priority_count", md.LowPriorityCount)
	w.boolean("codemap_cache_used", md.CodemapCacheUsed)
	w.boolean("chunking_used", md.ChunkingUsed)
	w.number("processing_time_ms", md.ProcessingTimeMs)
	if len(md.Warnings) > 0 {
		w.open("warnings")
		for _, warning := range md.Warnings {
			w.text("warning", warning)
		}
		w.close("warnings")
	}
	w.open("quality_metrics")
	w.number("overall", md.Quality.Overall)
	w.number("schema_compliance", md.Quality.SchemaCompliance)
	w.number("content_completeness", md.Quality.ContentCompleteness)
	w.number("meta_prompt_quality", md.Quality.MetaPromptQuality)
	w.number("file_relevance", md.Quality.FileRelevance)
	w.number("token_efficiency", md.Quality.TokenEfficiency)
	w.number("task_decomposition_quality", md.Quality.DecompositionQuality)
	w.close("quality_metrics")
	w.close("package_metadata")
}

func writeFile(w *writer, f *types.PackageFile) {
	w.open("file")
	w.text("path", f.Path)
	w.raw("content", f.Content)
	w.boolean("is_optimized", f.IsOptimized)
	w.number("total_lines", f.TotalLines)
	w.number("token_estimate", f.TokenEstimate)
	w.text("reasoning", f.Reasoning)
	if f.Language != "" {
		w.text("language", f.Language)
	}
	if len(f.Sections) > 0 {
		w.open("content_sections")
		for _, s := range f.Sections {
			w.line(`<section type="%s" start_line="%d" end_line="%d">%s</section>`,
				Escape(string(s.Type)), s.StartLine, s.EndLine, cdata(s.Content))
		}
		w.close("content_sections")
	}
	w.close("file")
}

func writeFileReference(w *writer, r *types.FileReference) {
	w.open("file_reference")
	w.text("path", r.Path)
	w.number("relevance", r.Relevance)
	w.number("token_estimate", r.TokenEstimate)
	w.number("size", r.Size)
	if r.Language != "" {
		w.text("language", r.Language)
	}
	if !r.LastModified.IsZero() {
		w.text("last_modified", r.LastModified.UTC().Format(timestampFormat))
	}
	if r.Reasoning != "" {
		w.text("reasoning", r.Reasoning)
	}
	w.close("file_reference")
}

func writeMetaPrompt(w *writer, mp *types.MetaPrompt) {
	w.line(`<meta_prompt task_type="%s">`, Escape(string(mp.TaskType)))
	w.depth++
	w.raw("system_prompt", mp.SystemPrompt)
	w.raw("user_prompt", mp.UserPrompt)
	if mp.ContextSummary != "" {
		w.text("context_summary", mp.ContextSummary)
	}
	w.jsonText("task_decomposition", mp.TaskDecomposition)
	if len(mp.Guidelines) > 0 {
		w.open("guidelines")
		for _, g := range mp.Guidelines {
			w.text("guideline", g)
		}
		w.close("guidelines")
	}
	if mp.EstimatedComplexity != "" {
		w.text("estimated_complexity", mp.EstimatedComplexity)
	}
	w.number("quality_score", mp.QualityScore)
	if mp.AIAgentResponseFormat != "" {
		w.text("ai_agent_response_format", mp.AIAgentResponseFormat)
	}
	w.depth--
	w.line("</meta_prompt>")
}
