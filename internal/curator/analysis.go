package curator

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"taskforge/internal/codemap"
)

// LanguageAnalysisResult is the code-map-derived language view of a project.
type LanguageAnalysisResult struct {
	Distribution map[string]float64 `json:"distribution"`
	Primary      []string           `json:"primary"`
	TotalFiles   int                `json:"totalFiles"`
}

// ProjectTypeAnalysisResult is the code-map-derived project classification.
type ProjectTypeAnalysisResult struct {
	ProjectType       string   `json:"projectType"`
	PackageManagers   []string `json:"packageManagers,omitempty"`
	Frameworks        []string `json:"frameworks,omitempty"`
	StructurePatterns []string `json:"structurePatterns,omitempty"`
	ConfigFiles       []string `json:"configFiles,omitempty"`
}

var analysisPathRe = regexp.MustCompile(`[\w\-./\\]+\.[A-Za-z0-9]+`)

// extensionLanguages maps file extensions to language names.
var extensionLanguages = map[string]string{
	".go":   "Go",
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".py":   "Python",
	".rs":   "Rust",
	".java": "Java",
	".kt":   "Kotlin",
	".rb":   "Ruby",
	".php":  "PHP",
	".c":    "C",
	".h":    "C",
	".cpp":  "C++",
	".cs":   "C#",
	".swift": "Swift",
}

// packageManagerMarkers maps config-file markers to package managers.
var packageManagerMarkers = []struct {
	marker  string
	manager string
}{
	{"package-lock.json", "npm"},
	{"yarn.lock", "yarn"},
	{"pnpm-lock", "pnpm"},
	{"package.json", "npm"},
	{"go.mod", "go modules"},
	{"cargo.toml", "cargo"},
	{"pyproject.toml", "poetry"},
	{"requirements.txt", "pip"},
	{"pom.xml", "maven"},
	{"build.gradle", "gradle"},
	{"gemfile", "bundler"},
	{"composer.json", "composer"},
}

// AnalyzeLanguages computes the language distribution from the file
// extensions mentioned in the code map.
func AnalyzeLanguages(codemapContent string) LanguageAnalysisResult {
	counts := map[string]int{}
	total := 0
	seen := map[string]bool{}
	for _, path := range analysisPathRe.FindAllString(codemapContent, -1) {
		if seen[path] {
			continue
		}
		seen[path] = true
		lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
		if !ok {
			continue
		}
		counts[lang]++
		total++
	}

	result := LanguageAnalysisResult{
		Distribution: map[string]float64{},
		TotalFiles:   total,
	}
	if total == 0 {
		return result
	}

	type langCount struct {
		lang  string
		count int
	}
	ordered := make([]langCount, 0, len(counts))
	for lang, n := range counts {
		result.Distribution[lang] = float64(n) / float64(total)
		ordered = append(ordered, langCount{lang, n})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].lang < ordered[j].lang
	})
	for _, lc := range ordered {
		if result.Distribution[lc.lang] >= 0.1 {
			result.Primary = append(result.Primary, lc.lang)
		}
	}
	return result
}

// AnalyzeProjectType classifies the project from its code map: package
// managers from config files, frameworks with a false-positive filter, and
// structure patterns.
func AnalyzeProjectType(codemapContent string) ProjectTypeAnalysisResult {
	arch := codemap.ExtractArchitecturalInfo(codemapContent)
	lower := strings.ToLower(codemapContent)

	result := ProjectTypeAnalysisResult{
		ConfigFiles:       arch.ConfigFiles,
		StructurePatterns: arch.Patterns,
	}

	seenPM := map[string]bool{}
	for _, pm := range packageManagerMarkers {
		if strings.Contains(lower, pm.marker) && !seenPM[pm.manager] {
			seenPM[pm.manager] = true
			result.PackageManagers = append(result.PackageManagers, pm.manager)
		}
	}

	// A framework mention is kept only with a second corroborating signal:
	// repeated mentions or a matching config file.
	for _, fw := range arch.Frameworks {
		mentions := strings.Count(lower, strings.ToLower(fw))
		corroborated := mentions >= 2
		if !corroborated {
			for _, cf := range arch.ConfigFiles {
				if strings.Contains(strings.ToLower(cf), strings.ToLower(fw)) {
					corroborated = true
					break
				}
			}
		}
		if corroborated {
			result.Frameworks = append(result.Frameworks, fw)
		}
	}

	result.ProjectType = classifyProjectType(arch, result.PackageManagers)
	return result
}

func classifyProjectType(arch codemap.ArchitecturalInfo, managers []string) string {
	hasDir := func(name string) bool {
		for _, d := range arch.Directories {
			base := strings.Trim(strings.ToLower(d.Path), "./\\")
			if base == name || strings.HasSuffix(base, "/"+name) {
				return true
			}
		}
		return false
	}
	hasManager := func(name string) bool {
		for _, m := range managers {
			if m == name {
				return true
			}
		}
		return false
	}

	switch {
	case hasManager("go modules") && hasDir("cmd"):
		return "go_application"
	case hasManager("go modules"):
		return "go_library"
	case hasManager("npm") || hasManager("yarn") || hasManager("pnpm"):
		return "node_project"
	case hasManager("pip") || hasManager("poetry"):
		return "python_project"
	case hasManager("cargo"):
		return "rust_project"
	case hasManager("maven") || hasManager("gradle"):
		return "jvm_project"
	default:
		return "unknown"
	}
}

// languageForPath returns the language name for a file path, or "".
func languageForPath(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}
