package intent

import (
	"context"
	"strings"
	"time"

	"taskforge/internal/logging"
)

// Recognizer combines the pattern engine with the LLM fallback. Patterns win
// when confident; otherwise the fallback is consulted and candidates from
// both sides are merged into the alternatives list.
type Recognizer struct {
	engine               *Engine
	fallback             *Fallback
	minPatternConfidence float64
	clock                func() time.Time
}

// NewRecognizer wires an engine and an optional fallback. A nil fallback
// disables LLM classification; low-confidence input then resolves to unknown.
func NewRecognizer(engine *Engine, fallback *Fallback) *Recognizer {
	return &Recognizer{
		engine:               engine,
		fallback:             fallback,
		minPatternConfidence: DefaultMinPatternConfidence,
		clock:                time.Now,
	}
}

// Recognize classifies one input. It never returns an error: fallback
// failures degrade to unknown, per the propagation policy.
func (r *Recognizer) Recognize(ctx context.Context, text string, contextDict map[string]string) *RecognitionResult {
	start := r.clock()
	matches := r.engine.Match(text)

	if len(matches) > 0 && matches[0].Confidence >= r.minPatternConfidence {
		result := resultFromMatch(text, matches, MethodPattern)
		result.Metadata.ProcessingTime = r.clock().Sub(start)
		result.Metadata.Timestamp = r.clock()
		return result
	}

	if r.fallback != nil {
		llmResult, err := r.fallback.Recognize(ctx, text, contextDict)
		if err == nil && llmResult != nil {
			merged := *llmResult
			merged.Alternatives = mergeAlternatives(merged.Intent, merged.Alternatives, matches)
			if len(matches) > 0 {
				merged.Metadata.Method = MethodHybrid
			}
			merged.Metadata.ProcessingTime = r.clock().Sub(start)
			return &merged
		}
		if err != nil {
			logging.Intent("fallback failed, resolving to unknown: %v", err)
		}
	}

	// No confident pattern and no usable fallback.
	if len(matches) > 0 {
		result := resultFromMatch(text, matches, MethodPattern)
		result.Metadata.ProcessingTime = r.clock().Sub(start)
		result.Metadata.Timestamp = r.clock()
		return result
	}
	return &RecognitionResult{
		Intent:          IntentUnknown,
		Confidence:      0,
		ConfidenceLevel: ConfidenceVeryLow,
		OriginalInput:   text,
		ProcessedInput:  strings.ToLower(strings.TrimSpace(text)),
		Metadata: ResultMetadata{
			ProcessingTime: r.clock().Sub(start),
			Method:         MethodPattern,
			Timestamp:      r.clock(),
		},
	}
}

func resultFromMatch(text string, matches []IntentMatch, method Method) *RecognitionResult {
	best := matches[0]
	var alternatives []Alternative
	for _, m := range matches[1:] {
		if m.Intent != best.Intent {
			alternatives = append(alternatives, Alternative{Intent: m.Intent, Confidence: m.Confidence})
		}
	}
	return &RecognitionResult{
		Intent:          best.Intent,
		Confidence:      best.Confidence,
		ConfidenceLevel: best.ConfidenceLevel,
		Entities:        best.Entities,
		OriginalInput:   text,
		ProcessedInput:  strings.ToLower(strings.TrimSpace(text)),
		Alternatives:    alternatives,
		Metadata:        ResultMetadata{Method: method},
	}
}

// mergeAlternatives folds pattern candidates into the fallback's alternatives,
// skipping the chosen intent and duplicates.
func mergeAlternatives(chosen Intent, alts []Alternative, matches []IntentMatch) []Alternative {
	seen := map[Intent]bool{chosen: true}
	for _, a := range alts {
		seen[a.Intent] = true
	}
	merged := alts
	for _, m := range matches {
		if !seen[m.Intent] {
			seen[m.Intent] = true
			merged = append(merged, Alternative{Intent: m.Intent, Confidence: m.Confidence})
		}
	}
	return merged
}
