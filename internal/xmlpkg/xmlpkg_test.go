package xmlpkg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/types"
)

func samplePackage() *types.ContextPackage {
	return &types.ContextPackage{
		Metadata: types.PackageMetadata{
			JobID:             "job-1",
			GeneratedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			OriginalPrompt:    `fix the "leak" in a & b`,
			TaskType:          types.TaskTypeBugFix,
			TotalFiles:        3,
			MaxTokenBudget:    150000,
			HighPriorityCount: 1,
			LowPriorityCount:  1,
			Warnings:          []string{"strategy semantic_similarity failed"},
		},
		RefinedPrompt: "fix the websocket memory leak in the hub",
		CodemapPath:   "/out/code-map-generator/map.md",
		HighPriorityFiles: []types.PackageFile{{
			Path:          "src/hub.ts",
			Content:       "export class Hub {}\n",
			TotalLines:    1,
			TokenEstimate: 6,
			Reasoning:     "owns connection lifecycle",
			Language:      "TypeScript",
			Relevance:     types.RelevanceScore{Overall: 0.9},
		}},
		MediumPriority: []types.PackageFile{{
			Path:          "src/conn.ts",
			Content:       "cdata edge: ]]> inside",
			IsOptimized:   true,
			TotalLines:    400,
			TokenEstimate: 8,
			Sections: []types.ContentSection{
				{Type: types.SectionFull, StartLine: 1, EndLine: 200, Content: "head"},
				{Type: types.SectionOptimized, StartLine: 201, EndLine: 400, Content: "tail ]]> tail"},
			},
		}},
		LowPriorityFiles: []types.FileReference{{
			Path:          "README.md",
			Relevance:     0.2,
			TokenEstimate: 3,
			Size:          1024,
			LastModified:  time.Date(2025, 5, 30, 8, 15, 0, 0, time.UTC),
		}},
		MetaPrompt: &types.MetaPrompt{
			TaskType:     types.TaskTypeBugFix,
			SystemPrompt: "You fix bugs.",
			UserPrompt:   "Fix the leak.",
			TaskDecomposition: types.TaskDecomposition{Epics: []types.Epic{{
				ID: "E1", Title: "Fix leak",
				Tasks: []types.EpicTask{{ID: "T1", Title: "Reproduce", Subtasks: []string{"write failing test"}}},
			}}},
			Guidelines:   []string{"smallest correct fix"},
			QualityScore: 0.8,
		},
	}
}

func TestEscapeOrder(t *testing.T) {
	assert.Equal(t, "&amp;lt;", Escape("&lt;"))
	assert.Equal(t, "&lt;a href=&quot;x&quot;&gt;", Escape(`<a href="x">`))
	assert.Equal(t, "it&#39;s", Escape("it's"))
}

func TestEscapeDropsControlChars(t *testing.T) {
	assert.Equal(t, "ab", Escape("a\x00\x07b"))
	assert.Equal(t, "a\tb\nc\rd", Escape("a\tb\nc\rd"))
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	inputs := []string{
		"plain",
		`<tag attr="v">&'quote'</tag>`,
		"&amp; already escaped",
		"line1\nline2\ttabbed",
		"",
	}
	for _, in := range inputs {
		assert.Equal(t, in, Unescape(Escape(in)), "input %q", in)
	}
}

func TestSerializeProducesValidXML(t *testing.T) {
	doc := Serialize(samplePackage())

	result := ValidateXML(doc)
	assert.True(t, result.IsValid, "errors: %v", result.Errors)
	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, doc, `<context_package version="1.0" format_version="1.0">`)
}

func TestCDATASplitOnEmbeddedTerminator(t *testing.T) {
	doc := Serialize(samplePackage())

	// The embedded "]]>" is split across two adjacent CDATA sections and the
	// document still validates.
	assert.Contains(t, doc, "]]]]><![CDATA[>")
	assert.True(t, ValidateXML(doc).IsValid)
}

func TestLowPriorityFilesAreReferencesOnly(t *testing.T) {
	doc := Serialize(samplePackage())

	start := strings.Index(doc, "<low_priority_files>")
	end := strings.Index(doc, "</low_priority_files>")
	require.True(t, start >= 0 && end > start)
	section := doc[start:end]

	assert.Contains(t, section, "<file_reference>")
	assert.NotContains(t, section, "<content>")
	assert.Contains(t, section, "<last_modified>2025-05-30T08:15:00.000Z</last_modified>")
}

func TestMetaPromptNestedObjectsAreEscapedJSON(t *testing.T) {
	doc := Serialize(samplePackage())

	assert.Contains(t, doc, `<meta_prompt task_type="bug_fix">`)
	assert.Contains(t, doc, "<task_decomposition>")
	// JSON quotes arrive escaped, never raw.
	assert.Contains(t, doc, "&quot;epics&quot;")
}

func TestValidateXMLFailures(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing declaration", "<root></root>"},
		{"mismatched tags", `<?xml version="1.0"?><a><b></a></b>`},
		{"unclosed tag", `<?xml version="1.0"?><a><b></b>`},
		{"stray closer", `<?xml version="1.0"?><a></a></b>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateXML(tt.doc)
			assert.False(t, result.IsValid)
			assert.NotEmpty(t, result.Errors)
		})
	}
}

func TestValidateXMLIgnoresCDATAContent(t *testing.T) {
	doc := `<?xml version="1.0"?><a><![CDATA[<not><a><tag>]]></a>`
	assert.True(t, ValidateXML(doc).IsValid)
}
