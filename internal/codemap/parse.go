package codemap

import (
	"regexp"
	"strconv"
	"strings"
)

// DirectoryInfo is one directory entry from the code map.
type DirectoryInfo struct {
	Path      string `json:"path"`
	FileCount int    `json:"fileCount,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
}

// ArchitecturalInfo is the parsed architectural view of a code map.
type ArchitecturalInfo struct {
	Directories []DirectoryInfo `json:"directories,omitempty"`
	Frameworks  []string        `json:"frameworks,omitempty"`
	Languages   []string        `json:"languages,omitempty"`
	EntryPoints []string        `json:"entryPoints,omitempty"`
	ConfigFiles []string        `json:"configFiles,omitempty"`
	Patterns    []string        `json:"patterns,omitempty"`
}

// DependencyRef is one import/require/include edge found in the code map.
type DependencyRef struct {
	Target      string `json:"target"`
	Type        string `json:"type"`
	IsExternal  bool   `json:"isExternal"`
	PackageName string `json:"packageName,omitempty"`
}

type sectionMode int

const (
	modeNone sectionMode = iota
	modeDirectories
	modeFrameworks
	modeLanguages
	modeEntryPoints
	modeConfigFiles
	modePatterns
)

var (
	directoryLineRe = regexp.MustCompile(`^[-*]\s+([\w\-./\\]+)(?:\s*\((\d+)\s+files?\))?`)
	frameworkRe     = regexp.MustCompile(`(?i)\b(react|vue|angular|svelte|next\.?js|nuxt|express|fastify|nest\.?js|django|flask|fastapi|rails|spring|gin|echo|fiber|laravel)\b`)
	languageRe      = regexp.MustCompile(`(?i)\b(typescript|javascript|python|golang|go|rust|java|kotlin|swift|ruby|php|c\+\+|c#|scala|elixir)\b`)
	filePathRe      = regexp.MustCompile(`[\w\-./\\]+\.[A-Za-z0-9]+`)

	importFromRe = regexp.MustCompile(`import\s+.*?\s+from\s+['"]([^'"]+)['"]`)
	importBareRe = regexp.MustCompile(`import\s+['"]([^'"]+)['"]`)
	requireRe    = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	includeRe    = regexp.MustCompile(`#include\s*[<"]([^>"]+)[>"]`)
)

// directoryPurposes maps common directory names to a purpose description.
var directoryPurposes = map[string]string{
	"src":      "Source code",
	"source":   "Source code",
	"lib":      "Library code",
	"internal": "Internal packages",
	"pkg":      "Public packages",
	"cmd":      "Command entry points",
	"test":     "Test suites",
	"tests":    "Test suites",
	"spec":     "Test suites",
	"docs":     "Documentation",
	"doc":      "Documentation",
	"config":   "Configuration",
	"configs":  "Configuration",
	"scripts":  "Build and utility scripts",
	"tools":    "Build and utility scripts",
	"assets":   "Static assets",
	"public":   "Static assets",
	"static":   "Static assets",
	"build":    "Build output",
	"dist":     "Build output",
	"vendor":   "Vendored dependencies",
}

var entryPointExtensions = []string{
	".go", ".js", ".ts", ".jsx", ".tsx", ".py", ".rs", ".java", ".rb", ".php", ".c", ".cpp",
}

var configFileMarkers = []string{
	"package.json", "tsconfig", "webpack", "babel", "eslint", "prettier",
	".env", "config.", "go.mod", "cargo.toml", "pyproject", "requirements.txt",
	"makefile", "dockerfile", "docker-compose",
}

// ExtractArchitecturalInfo parses the markdown code map into an architectural
// view. Malformed input yields empty fields, never an error.
func ExtractArchitecturalInfo(content string) ArchitecturalInfo {
	var info ArchitecturalInfo
	mode := modeNone
	seenFrameworks := map[string]bool{}
	seenLanguages := map[string]bool{}
	seenEntries := map[string]bool{}
	seenConfigs := map[string]bool{}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "## ") {
			mode = classifySection(strings.ToLower(strings.TrimPrefix(trimmed, "## ")))
			continue
		}

		switch mode {
		case modeDirectories:
			if m := directoryLineRe.FindStringSubmatch(trimmed); m != nil {
				d := DirectoryInfo{Path: m[1]}
				if m[2] != "" {
					d.FileCount, _ = strconv.Atoi(m[2])
				}
				name := strings.ToLower(strings.Trim(strings.TrimSuffix(d.Path, "/"), "./\\"))
				if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
					name = name[idx+1:]
				}
				d.Purpose = directoryPurposes[name]
				info.Directories = append(info.Directories, d)
			}
		case modeFrameworks:
			for _, m := range frameworkRe.FindAllString(trimmed, -1) {
				key := strings.ToLower(m)
				if !seenFrameworks[key] {
					seenFrameworks[key] = true
					info.Frameworks = append(info.Frameworks, m)
				}
			}
		case modeLanguages:
			for _, m := range languageRe.FindAllString(trimmed, -1) {
				key := strings.ToLower(m)
				if !seenLanguages[key] {
					seenLanguages[key] = true
					info.Languages = append(info.Languages, m)
				}
			}
		case modeEntryPoints:
			for _, path := range filePathRe.FindAllString(trimmed, -1) {
				if isEntryPoint(path) && !seenEntries[path] {
					seenEntries[path] = true
					info.EntryPoints = append(info.EntryPoints, path)
				}
			}
		case modeConfigFiles:
			for _, path := range filePathRe.FindAllString(trimmed, -1) {
				if isConfigFile(path) && !seenConfigs[path] {
					seenConfigs[path] = true
					info.ConfigFiles = append(info.ConfigFiles, path)
				}
			}
		case modePatterns:
			if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
				pattern := strings.TrimSpace(strings.TrimLeft(trimmed, "-* "))
				if pattern != "" {
					info.Patterns = append(info.Patterns, pattern)
				}
			}
		}
	}
	return info
}

func classifySection(header string) sectionMode {
	switch {
	case strings.Contains(header, "director") || strings.Contains(header, "structure"):
		return modeDirectories
	case strings.Contains(header, "framework"):
		return modeFrameworks
	case strings.Contains(header, "language"):
		return modeLanguages
	case strings.Contains(header, "entry"):
		return modeEntryPoints
	case strings.Contains(header, "config"):
		return modeConfigFiles
	case strings.Contains(header, "pattern") || strings.Contains(header, "architect"):
		return modePatterns
	default:
		return modeNone
	}
}

func isEntryPoint(path string) bool {
	lower := strings.ToLower(path)
	if !strings.Contains(lower, "main") && !strings.Contains(lower, "index") && !strings.Contains(lower, "entry") {
		return false
	}
	for _, ext := range entryPointExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func isConfigFile(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range configFileMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ExtractDependencyInfo parses import/require/include lines from the code map.
func ExtractDependencyInfo(content string) []DependencyRef {
	var refs []DependencyRef
	seen := map[string]bool{}

	add := func(target, depType string) {
		if target == "" || seen[depType+"|"+target] {
			return
		}
		seen[depType+"|"+target] = true
		ref := DependencyRef{
			Target:     target,
			Type:       depType,
			IsExternal: !strings.HasPrefix(target, ".") && !strings.HasPrefix(target, "/"),
		}
		if ref.IsExternal {
			ref.PackageName = packageName(target)
		}
		refs = append(refs, ref)
	}

	for _, line := range strings.Split(content, "\n") {
		if m := importFromRe.FindStringSubmatch(line); m != nil {
			add(m[1], "import")
			continue
		}
		if m := importBareRe.FindStringSubmatch(line); m != nil {
			add(m[1], "import")
			continue
		}
		if m := requireRe.FindStringSubmatch(line); m != nil {
			add(m[1], "require")
			continue
		}
		if m := includeRe.FindStringSubmatch(line); m != nil {
			add(m[1], "include")
		}
	}
	return refs
}

// packageName returns the first path segment; scoped npm packages keep the
// scope plus name.
func packageName(target string) string {
	parts := strings.Split(target, "/")
	if strings.HasPrefix(target, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// relevanceStopWords are excluded from task-description keywords.
var relevanceStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "was": true, "will": true,
	"can": true, "has": true, "have": true, "not": true, "but": true,
	"all": true, "any": true, "its": true, "into": true, "when": true,
	"add": true, "new": true, "use": true,
}

// ExtractRelevantFiles returns the file paths in the code map whose lines
// contain any keyword from the task description. Results are deduplicated in
// first-seen order.
func ExtractRelevantFiles(content, taskDescription string) []string {
	keywords := extractKeywords(taskDescription)
	if len(keywords) == 0 {
		return nil
	}

	var files []string
	seen := map[string]bool{}
	for _, line := range strings.Split(content, "\n") {
		lower := strings.ToLower(line)
		matched := false
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for _, path := range filePathRe.FindAllString(line, -1) {
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}
	return files
}

// extractKeywords lower-cases the description and keeps words longer than two
// characters that are not stop words.
func extractKeywords(description string) []string {
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '_' && r != '-'
	})
	var keywords []string
	seen := map[string]bool{}
	for _, f := range fields {
		if len(f) <= 2 || relevanceStopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		keywords = append(keywords, f)
	}
	return keywords
}
