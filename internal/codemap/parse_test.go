package codemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMap = `# Code Map for /work/shop

## Directory Structure
- src/ (42 files)
- lib (10 files)
* tests/ (8 files)
- docs

## Frameworks
Built with React and Express.

## Languages
- TypeScript (60%)
- JavaScript (30%)
- Python (10%)

## Entry Points
- src/index.ts
- cmd/main.go
- src/helpers.ts

## Configuration Files
- package.json
- tsconfig.json
- src/app.ts

## Architectural Patterns
- Layered architecture
- Repository pattern

## Imports
import { Router } from "express"
import "./setup"
const db = require("pg")
#include <stdio.h>
import helpers from "@scope/utils/helpers"
`

func TestExtractArchitecturalInfo(t *testing.T) {
	info := ExtractArchitecturalInfo(sampleMap)

	require.Len(t, info.Directories, 4)
	assert.Equal(t, "src/", info.Directories[0].Path)
	assert.Equal(t, 42, info.Directories[0].FileCount)
	assert.Equal(t, "Source code", info.Directories[0].Purpose)
	assert.Equal(t, "Library code", info.Directories[1].Purpose)
	assert.Equal(t, "Test suites", info.Directories[2].Purpose)
	assert.Equal(t, 0, info.Directories[3].FileCount)

	assert.ElementsMatch(t, []string{"React", "Express"}, info.Frameworks)
	assert.ElementsMatch(t, []string{"TypeScript", "JavaScript", "Python"}, info.Languages)

	// helpers.ts has no main/index/entry marker.
	assert.ElementsMatch(t, []string{"src/index.ts", "cmd/main.go"}, info.EntryPoints)

	// app.ts is not a known config marker.
	assert.ElementsMatch(t, []string{"package.json", "tsconfig.json"}, info.ConfigFiles)

	assert.Equal(t, []string{"Layered architecture", "Repository pattern"}, info.Patterns)
}

func TestExtractArchitecturalInfoMalformed(t *testing.T) {
	info := ExtractArchitecturalInfo("just some text\nwith no headers at all")
	assert.Empty(t, info.Directories)
	assert.Empty(t, info.Frameworks)
	assert.Empty(t, info.Languages)
}

func TestExtractDependencyInfo(t *testing.T) {
	refs := ExtractDependencyInfo(sampleMap)

	byTarget := map[string]DependencyRef{}
	for _, r := range refs {
		byTarget[r.Target] = r
	}

	express := byTarget["express"]
	assert.Equal(t, "import", express.Type)
	assert.True(t, express.IsExternal)
	assert.Equal(t, "express", express.PackageName)

	local := byTarget["./setup"]
	assert.False(t, local.IsExternal)
	assert.Empty(t, local.PackageName)

	pg := byTarget["pg"]
	assert.Equal(t, "require", pg.Type)
	assert.True(t, pg.IsExternal)

	stdio := byTarget["stdio.h"]
	assert.Equal(t, "include", stdio.Type)

	scoped := byTarget["@scope/utils/helpers"]
	assert.Equal(t, "@scope/utils", scoped.PackageName)
}

func TestExtractRelevantFiles(t *testing.T) {
	content := `## Files
- src/auth/login.ts handles authentication
- src/cart/checkout.ts handles checkout
- README.md project overview
`
	files := ExtractRelevantFiles(content, "fix the authentication flow")
	assert.Equal(t, []string{"src/auth/login.ts"}, files)

	// Stop words and short words contribute no keywords.
	assert.Nil(t, ExtractRelevantFiles(content, "the and for a"))
}

func TestExtractRelevantFilesDeduplicates(t *testing.T) {
	content := "auth: src/auth.ts\nauth again: src/auth.ts\n"
	files := ExtractRelevantFiles(content, "auth improvements")
	assert.Equal(t, []string{"src/auth.ts"}, files)
}
