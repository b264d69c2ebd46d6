package intent

import (
	"sort"
	"strings"

	"taskforge/internal/logging"
)

// DefaultMinConfidence is the floor below which matches are discarded.
const DefaultMinConfidence = 0.3

// IntentMatch is one pattern-engine candidate.
type IntentMatch struct {
	Intent          Intent          `json:"intent"`
	PatternID       string          `json:"patternId"`
	Confidence      float64         `json:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidenceLevel"`
	Entities        []Entity        `json:"entities,omitempty"`
	MatchedText     string          `json:"matchedText"`
	priority        int
}

// Engine is the deterministic first-pass recognizer. It never errors;
// unrecognized input simply yields no matches.
type Engine struct {
	patterns      []Pattern
	minConfidence float64
}

// NewEngine creates an engine with the built-in pattern table.
func NewEngine() *Engine {
	return &Engine{patterns: defaultPatterns(), minConfidence: DefaultMinConfidence}
}

// NewEngineWithPatterns creates an engine over a custom pattern table.
func NewEngineWithPatterns(patterns []Pattern, minConfidence float64) *Engine {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Engine{patterns: patterns, minConfidence: minConfidence}
}

// Match runs every active pattern against the input and returns candidates
// sorted by confidence descending. Entities are extracted from the original
// case-preserving text.
func (e *Engine) Match(text string) []IntentMatch {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil
	}

	var matches []IntentMatch
	for _, p := range e.patterns {
		if !p.Active {
			continue
		}
		best := -1.0
		var bestText string
		for _, rx := range p.Regexes {
			loc := rx.FindStringIndex(normalized)
			if loc == nil {
				continue
			}
			conf := e.score(p, normalized, loc)
			if conf > best {
				best = conf
				bestText = normalized[loc[0]:loc[1]]
			}
		}
		if best < 0 {
			continue
		}
		matches = append(matches, IntentMatch{
			Intent:          p.Intent,
			PatternID:       p.ID,
			Confidence:      best,
			ConfidenceLevel: LevelFor(best),
			Entities:        extractEntities(p.Intent, text),
			MatchedText:     bestText,
			priority:        p.Priority,
		})
	}

	filtered := matches[:0]
	for _, m := range matches {
		if m.Confidence >= e.minConfidence {
			filtered = append(filtered, m)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Confidence != filtered[j].Confidence {
			return filtered[i].Confidence > filtered[j].Confidence
		}
		return filtered[i].priority > filtered[j].priority
	})

	if len(filtered) > 0 {
		logging.IntentDebug("pattern match: %s (%.2f) for %q",
			filtered[0].Intent, filtered[0].Confidence, text)
	}
	return filtered
}

// score computes candidate confidence:
// 0.5 base + 0.3 keyword coverage + up to 0.2 match-length share + 0.1 when
// the match anchors the start of the input, clamped to [0,1].
func (e *Engine) score(p Pattern, normalized string, loc []int) float64 {
	conf := 0.5

	if len(p.Keywords) > 0 {
		matched := 0
		for _, kw := range p.Keywords {
			if strings.Contains(normalized, kw) {
				matched++
			}
		}
		conf += 0.3 * float64(matched) / float64(len(p.Keywords))
	}

	matchLen := float64(loc[1] - loc[0])
	textLen := float64(len(normalized))
	lengthTerm := matchLen / textLen * 0.2
	if lengthTerm > 0.2 {
		lengthTerm = 0.2
	}
	conf += lengthTerm

	if loc[0] == 0 {
		conf += 0.1
	}

	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}
