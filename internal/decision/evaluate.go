package decision

import (
	"encoding/json"
	"log/slog"
	"math"
	"strings"

	"permitport/api/internal/store"
)

// Identity metadata stamped into every payload; never counts as content.
var ignoredKeys = map[string]bool{
	"id":      true,
	"process": true,
	"title":   true,
}

// Result reports slot-level completeness and the business completion verdict.
// The two differ: CompletedTitles reflects which slots hold meaningful
// content, while IsComplete is the ordered check chain, which stops at the
// first failure — so a false verdict says nothing about later checks.
type Result struct {
	Total           int
	CompletedTitles []string
	IsComplete      bool
	FailedCheck     string
}

// Evaluator applies the completion rules. The logger makes the check chain's
// reasoning inspectable without scraping stdout.
type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger}
}

type namedCheck struct {
	name string
	pass func(slots map[string]map[string]any) bool
}

// The chain order is product policy: earlier sections gate later ones, and
// evaluation stops at the first failure. Do not reorder and do not convert to
// an evaluate-all report; both change user-visible behavior.
var completionChecks = []namedCheck{
	{"hasProjectDetails", func(s map[string]map[string]any) bool {
		return hasMeaningfulContent(s[SlotProjectDetails])
	}},
	{"hasIPaCData", func(s map[string]map[string]any) bool {
		return hasScreeningValue(s[SlotIPaC])
	}},
	{"hasNEPAssistData", func(s map[string]map[string]any) bool {
		return hasScreeningValue(s[SlotNEPAssist])
	}},
	{"hasPermitNotes", func(s map[string]map[string]any) bool {
		data := s[SlotPermits]
		if nonEmptyString(data["notes"]) {
			return true
		}
		// The mere presence of a permit entry satisfies this, regardless of
		// its completion flag.
		return len(asSlice(data["permits"])) > 0
	}},
	{"hasExclusionRationale", func(s map[string]map[string]any) bool {
		data := s[SlotExclusion]
		if nonEmptyString(data["rationale"]) {
			return true
		}
		return anyNonEmptyString(data["candidates"])
	}},
	{"hasConditions", func(s map[string]map[string]any) bool {
		return anyNonEmptyString(s[SlotConditions]["conditions"])
	}},
	{"hasResourceNotesText", func(s map[string]map[string]any) bool {
		data := s[SlotResources]
		if nonEmptyString(data["summary"]) || nonEmptyString(data["notes"]) {
			return true
		}
		for _, r := range asSlice(data["resources"]) {
			if entry, ok := r.(map[string]any); ok && hasMeaningfulContent(entry) {
				return true
			}
		}
		return false
	}},
}

// Evaluate classifies each slot's stored payload and runs the completion
// chain over the set.
func (e *Evaluator) Evaluate(payloads []store.DecisionPayload) Result {
	slots := indexBySlot(payloads)

	result := Result{Total: len(SlotOrder)}
	for _, slot := range SlotOrder {
		if hasMeaningfulContent(slots[slot]) {
			result.CompletedTitles = append(result.CompletedTitles, SlotTitle(slot))
		}
	}

	result.IsComplete = true
	for _, check := range completionChecks {
		ok := check.pass(slots)
		e.logger.Debug("completion check", "check", check.name, "pass", ok)
		if !ok {
			result.IsComplete = false
			result.FailedCheck = check.name
			break
		}
	}
	return result
}

// indexBySlot maps stored payloads back to catalog slots via the embedded
// title, falling back to the element reference when the blob carries none.
func indexBySlot(payloads []store.DecisionPayload) map[string]map[string]any {
	titleToSlot := make(map[string]string, len(slotTitles))
	for slot, title := range slotTitles {
		titleToSlot[normalizeTitle(title)] = slot
	}

	slots := make(map[string]map[string]any, len(SlotOrder))
	for _, p := range payloads {
		data := ExtractData(p)
		if data == nil {
			continue
		}
		key := ""
		if title, ok := data["title"].(string); ok {
			key = titleToSlot[normalizeTitle(title)]
		}
		if key == "" {
			if title, ok := p.Element.(string); ok {
				key = titleToSlot[normalizeTitle(title)]
			}
		}
		if key == "" {
			continue
		}
		slots[key] = data
	}
	return slots
}

// ExtractData returns a payload's evaluation data as a map, accepting either
// a decoded object or a JSON-encoded string. Malformed blobs yield nil, not
// an error: unreadable optional data must not block evaluation.
func ExtractData(p store.DecisionPayload) map[string]any {
	switch data := p.EvaluationData.(type) {
	case map[string]any:
		return data
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			return nil
		}
		return parsed
	default:
		return nil
	}
}

// hasMeaningfulContent walks a value looking for any non-empty string, finite
// number, true boolean, non-empty array, or non-empty object, skipping the
// identity keys at object level.
func hasMeaningfulContent(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(value) != ""
	case bool:
		return value
	case float64:
		return !math.IsNaN(value) && !math.IsInf(value, 0)
	case json.Number:
		return true
	case int, int64:
		return true
	case []any:
		return len(value) > 0
	case []string:
		return len(value) > 0
	case []map[string]any:
		return len(value) > 0
	case map[string]any:
		for key, inner := range value {
			if ignoredKeys[key] {
				continue
			}
			if hasMeaningfulContent(inner) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func hasScreeningValue(data map[string]any) bool {
	if data == nil {
		return false
	}
	return data["raw"] != nil || data["summary"] != nil
}

func nonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

func anyNonEmptyString(v any) bool {
	for _, item := range asSlice(v) {
		if nonEmptyString(item) {
			return true
		}
	}
	return false
}

// asSlice unifies the slice shapes a payload can hold: []any after a JSON
// round trip, or the concrete types the builder emits in-process.
func asSlice(v any) []any {
	switch value := v.(type) {
	case []any:
		return value
	case []string:
		out := make([]any, len(value))
		for i, s := range value {
			out[i] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(value))
		for i, m := range value {
			out[i] = m
		}
		return out
	default:
		return nil
	}
}
