package decision

import (
	"fmt"
	"strings"
	"time"

	"permitport/api/internal/store"
)

// ScreeningResult is the cached outcome of one geospatial screening source.
type ScreeningResult struct {
	Status  string         `json:"status,omitempty"`
	Summary any            `json:"summary,omitempty"`
	Raw     any            `json:"raw,omitempty"`
	Error   string         `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// PermitItem is one row of the permitting checklist.
type PermitItem struct {
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
	Note      string `json:"note,omitempty"`
	Link      string `json:"link,omitempty"`
}

// BuildInput carries everything a save knows: current form data, cached
// screening results, and the permitting checklist.
type BuildInput struct {
	Project     store.Project
	IPaC        ScreeningResult
	NEPAssist   ScreeningResult
	Checklist   []PermitItem
	PermitNotes string

	// Categorical-exclusion section: a delimited candidate list plus two
	// free-text fields concatenated into the rationale.
	ExclusionCandidates string
	ExclusionBasis      string
	ExclusionNarrative  string

	Conditions    string // delimited list
	ResourceNotes string
}

// Build assembles one payload per catalog slot, in fixed order, for the given
// process instance. Every payload embeds its id/title identity.
func Build(processID int64, catalog *Catalog, in BuildInput) []store.DecisionPayload {
	now := time.Now().UTC()
	payloads := make([]store.DecisionPayload, 0, len(SlotOrder))
	for _, slot := range SlotOrder {
		id, title := catalog.Identity(slot)
		data := buildSlotData(slot, in)
		data["id"] = id
		data["title"] = title
		payloads = append(payloads, store.DecisionPayload{
			ProcessID:      processID,
			Element:        id,
			EvaluationData: data,
			DataSource:     store.DataSourcePortal,
			CreatedAt:      now,
		})
	}
	return payloads
}

func buildSlotData(slot string, in BuildInput) map[string]any {
	switch slot {
	case SlotProjectDetails:
		return projectDetailsData(in.Project)
	case SlotIPaC:
		return screeningData(in.IPaC)
	case SlotNEPAssist:
		return screeningData(in.NEPAssist)
	case SlotPermits:
		return permitsData(in.Checklist, in.PermitNotes)
	case SlotExclusion:
		return exclusionData(in)
	case SlotConditions:
		return map[string]any{"conditions": SplitList(in.Conditions)}
	case SlotResources:
		return resourcesData(in)
	}
	return map[string]any{}
}

// projectDetailsData keeps a curated subset of project fields. The free-form
// "other" bag never passes through; only its sanitized notes sub-field does.
func projectDetailsData(p store.Project) map[string]any {
	data := map[string]any{}
	setIfNotEmpty(data, "project_title", p.Title)
	setIfNotEmpty(data, "description", p.Description)
	setIfNotEmpty(data, "sector", p.Sector)
	setIfNotEmpty(data, "sponsor", p.Sponsor)
	setIfNotEmpty(data, "participants", p.Participants)
	setIfNotEmpty(data, "location", p.LocationText)
	if p.Latitude != nil && p.Longitude != nil {
		data["latitude"] = *p.Latitude
		data["longitude"] = *p.Longitude
	}
	if notes, ok := p.Other["notes"].(string); ok {
		setIfNotEmpty(data, "notes", strings.TrimSpace(notes))
	}
	return data
}

// screeningData passes the cached screening result through, normalized so an
// empty array or object collapses to nothing.
func screeningData(r ScreeningResult) map[string]any {
	data := map[string]any{}
	setIfNotEmpty(data, "status", r.Status)
	if v := normalizeValue(r.Summary); v != nil {
		data["summary"] = v
	}
	if v := normalizeValue(r.Raw); v != nil {
		data["raw"] = v
	}
	setIfNotEmpty(data, "error", r.Error)
	if len(r.Meta) > 0 {
		data["meta"] = r.Meta
	}
	return data
}

func permitsData(checklist []PermitItem, notes string) map[string]any {
	data := map[string]any{}
	if len(checklist) > 0 {
		permits := make([]map[string]any, 0, len(checklist))
		for _, item := range checklist {
			entry := map[string]any{
				"label":     item.Label,
				"completed": item.Completed,
			}
			setIfNotEmpty(entry, "note", item.Note)
			setIfNotEmpty(entry, "link", item.Link)
			permits = append(permits, entry)
		}
		data["permits"] = permits
	}
	setIfNotEmpty(data, "notes", strings.TrimSpace(notes))
	return data
}

func exclusionData(in BuildInput) map[string]any {
	data := map[string]any{}
	if candidates := SplitList(in.ExclusionCandidates); len(candidates) > 0 {
		data["candidates"] = candidates
	}
	rationale := joinNonEmpty(" ", strings.TrimSpace(in.ExclusionBasis), strings.TrimSpace(in.ExclusionNarrative))
	setIfNotEmpty(data, "rationale", rationale)
	return data
}

// resourcesData emits one structured entry per screening source that shows any
// signal, a synthesized per-source summary line, and free-text notes.
func resourcesData(in BuildInput) map[string]any {
	data := map[string]any{}
	sources := []struct {
		name   string
		result ScreeningResult
	}{
		{"IPaC", in.IPaC},
		{"NEPAssist", in.NEPAssist},
	}

	var resources []map[string]any
	var summaryLines []string
	for _, src := range sources {
		if !hasSignal(src.result) {
			continue
		}
		entry := map[string]any{"source": src.name}
		setIfNotEmpty(entry, "status", src.result.Status)
		if v := normalizeValue(src.result.Summary); v != nil {
			entry["summary"] = v
		}
		if v := normalizeValue(src.result.Raw); v != nil {
			entry["raw"] = v
		}
		setIfNotEmpty(entry, "error", src.result.Error)
		if len(src.result.Meta) > 0 {
			entry["meta"] = src.result.Meta
		}
		resources = append(resources, entry)
		summaryLines = append(summaryLines, summarizeSource(src.name, src.result))
	}
	if len(resources) > 0 {
		data["resources"] = resources
	}
	if len(summaryLines) > 0 {
		data["summary"] = strings.Join(summaryLines, "\n")
	}
	setIfNotEmpty(data, "notes", strings.TrimSpace(in.ResourceNotes))
	return data
}

// hasSignal reports whether a screening result carries anything beyond an
// idle default: a non-idle status, a summary, a raw payload, an error, or
// metadata.
func hasSignal(r ScreeningResult) bool {
	if r.Status != "" && r.Status != "idle" {
		return true
	}
	if normalizeValue(r.Summary) != nil || normalizeValue(r.Raw) != nil {
		return true
	}
	return r.Error != "" || len(r.Meta) > 0
}

func summarizeSource(name string, r ScreeningResult) string {
	switch {
	case r.Error != "":
		return fmt.Sprintf("%s: screening failed (%s)", name, r.Error)
	case r.Status != "" && r.Status != "idle":
		return fmt.Sprintf("%s: %s", name, r.Status)
	default:
		return fmt.Sprintf("%s: results available", name)
	}
}

// SplitList breaks a delimited-list field on newlines, semicolons, and
// commas, trimming whitespace and dropping empty entries.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ';' || r == ','
	})
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// normalizeValue collapses empty arrays, empty objects, and blank strings to
// nil so downstream checks see "no data" uniformly.
func normalizeValue(v any) any {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(value) == "" {
			return nil
		}
	case []any:
		if len(value) == 0 {
			return nil
		}
	case map[string]any:
		if len(value) == 0 {
			return nil
		}
	}
	return v
}

func setIfNotEmpty(data map[string]any, key, value string) {
	if value != "" {
		data[key] = value
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
