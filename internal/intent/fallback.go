package intent

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"taskforge/internal/gateway"
	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// Fallback defaults.
const (
	DefaultCacheTTL             = 300 * time.Second
	DefaultCacheSize            = 100
	DefaultMinPatternConfidence = 0.7
	defaultEntityConfidence     = 0.8
)

const fallbackSystemPrompt = `You are an intent classifier for a task orchestration system.
Classify the user's request into exactly one of these intents:
create_project, list_projects, open_project, update_project, archive_project,
create_task, list_tasks, run_task, check_status, decompose_task,
decompose_project, search_files, search_content, refine_task, assign_task,
get_help, parse_prd, parse_tasks, import_artifact, clarification_needed, unknown.

Respond with JSON only:
{"intent": "<intent>", "confidence": <0..1>, "parameters": {...},
 "alternatives": [{"intent": "<intent>", "confidence": <0..1>}],
 "clarifications_needed": ["..."]}`

// fallbackResponse mirrors the model's JSON reply.
type fallbackResponse struct {
	Intent               string                 `json:"intent"`
	Confidence           float64                `json:"confidence"`
	Parameters           map[string]interface{} `json:"parameters"`
	Context              map[string]interface{} `json:"context"`
	Alternatives         []Alternative          `json:"alternatives"`
	ClarificationsNeeded []string               `json:"clarifications_needed"`
}

// fallbackSchema checks the structural shape of the reply. Out-of-set intents
// are not schema errors; they are rewritten to unknown after parsing.
var fallbackSchema = gateway.SchemaFunc(func(raw json.RawMessage) error {
	var resp fallbackResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("fallback reply is not an object: %w", err)
	}
	if resp.Intent == "" {
		return fmt.Errorf("fallback reply missing intent")
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return fmt.Errorf("fallback confidence %.2f outside [0,1]", resp.Confidence)
	}
	return nil
})

type cacheEntry struct {
	key      string
	result   RecognitionResult
	storedAt time.Time
}

// Fallback asks the LLM for a structured intent when patterns are not
// confident enough. Results are cached by normalized input with TTL expiry
// and LRU eviction.
type Fallback struct {
	gw  *gateway.Gateway
	ttl time.Duration
	cap int

	mu    sync.Mutex
	cache map[string]*list.Element
	order *list.List // front = most recent
	clock func() time.Time
}

// NewFallback creates a fallback recognizer over the gateway.
func NewFallback(gw *gateway.Gateway) *Fallback {
	return &Fallback{
		gw:    gw,
		ttl:   DefaultCacheTTL,
		cap:   DefaultCacheSize,
		cache: make(map[string]*list.Element),
		order: list.New(),
		clock: time.Now,
	}
}

// Recognize classifies text via the LLM. On gateway failure it returns the
// error; callers treat that as unknown.
func (f *Fallback) Recognize(ctx context.Context, text string, contextDict map[string]string) (*RecognitionResult, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil, types.NewError(types.ErrInvalidInput, "empty input")
	}

	if cached := f.lookup(normalized); cached != nil {
		logging.IntentDebug("fallback cache hit for %q", normalized)
		return cached, nil
	}

	start := f.clock()
	userPrompt := buildFallbackPrompt(text, contextDict)

	raw, err := f.gw.Call(ctx, gateway.Request{
		TaskName:     "intent_fallback",
		SystemPrompt: fallbackSystemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.1,
		Format:       gateway.FormatJSON,
		Schema:       fallbackSchema,
	})
	if err != nil {
		return nil, err
	}

	var resp fallbackResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, types.WrapError(types.ErrInvalidModelOutput, err, "fallback reply unparseable")
	}

	result := f.buildResult(text, normalized, resp, f.clock().Sub(start))
	f.store(normalized, result)
	return &result, nil
}

// buildResult applies the rewrite rules and converts parameters to entities.
func (f *Fallback) buildResult(original, normalized string, resp fallbackResponse, elapsed time.Duration) RecognitionResult {
	in := Intent(resp.Intent)
	confidence := resp.Confidence

	// Out-of-set intents, and the model punting with unrecognized or
	// clarification replies, collapse to unknown with capped confidence.
	if !in.Valid() || in == IntentClarificationNeeded || resp.Intent == "unrecognized_intent" {
		in = IntentUnknown
		if confidence > 0.3 {
			confidence = 0.3
		}
	}

	var alternatives []Alternative
	for _, alt := range resp.Alternatives {
		if alt.Intent.Valid() && alt.Intent != in {
			alternatives = append(alternatives, alt)
		}
	}

	return RecognitionResult{
		Intent:          in,
		Confidence:      confidence,
		ConfidenceLevel: LevelFor(confidence),
		Entities:        parametersToEntities(resp.Parameters),
		OriginalInput:   original,
		ProcessedInput:  normalized,
		Alternatives:    alternatives,
		Metadata: ResultMetadata{
			ProcessingTime: elapsed,
			Method:         MethodLLM,
			ModelUsed:      f.gw.ModelFor("intent_fallback"),
			Timestamp:      f.clock(),
		},
	}
}

// parametersToEntities flattens the parameters object into entities with the
// default entity confidence. Keys are emitted in sorted order for
// determinism.
func parametersToEntities(params map[string]interface{}) []Entity {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var entities []Entity
	for _, k := range keys {
		switch v := params[k].(type) {
		case string:
			entities = append(entities, Entity{Type: k, Value: v, Confidence: defaultEntityConfidence})
		case float64:
			entities = append(entities, Entity{Type: k, Value: formatNumber(v), Confidence: defaultEntityConfidence})
		case bool:
			entities = append(entities, Entity{Type: k, Value: fmt.Sprintf("%t", v), Confidence: defaultEntityConfidence})
		case []interface{}:
			for _, item := range v {
				entities = append(entities, Entity{Type: k, Value: fmt.Sprintf("%v", item), Confidence: defaultEntityConfidence})
			}
		}
	}
	return entities
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

func buildFallbackPrompt(text string, contextDict map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %q\n", text)
	if len(contextDict) > 0 {
		b.WriteString("Context:\n")
		keys := make([]string, 0, len(contextDict))
		for k := range contextDict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, contextDict[k])
		}
	}
	return b.String()
}

// lookup returns a copy of the cached result when present and unexpired.
func (f *Fallback) lookup(key string) *RecognitionResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	elem, ok := f.cache[key]
	if !ok {
		return nil
	}
	entry := elem.Value.(*cacheEntry)
	if f.clock().Sub(entry.storedAt) > f.ttl {
		f.order.Remove(elem)
		delete(f.cache, key)
		return nil
	}
	f.order.MoveToFront(elem)
	result := entry.result
	return &result
}

func (f *Fallback) store(key string, result RecognitionResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if elem, ok := f.cache[key]; ok {
		elem.Value.(*cacheEntry).result = result
		elem.Value.(*cacheEntry).storedAt = f.clock()
		f.order.MoveToFront(elem)
		return
	}
	elem := f.order.PushFront(&cacheEntry{key: key, result: result, storedAt: f.clock()})
	f.cache[key] = elem

	for f.order.Len() > f.cap {
		oldest := f.order.Back()
		f.order.Remove(oldest)
		delete(f.cache, oldest.Value.(*cacheEntry).key)
	}
}
