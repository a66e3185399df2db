// Package export renders a project's review record as a standalone HTML
// determination summary, suitable for download or printing.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"permitport/api/internal/decision"
	"permitport/api/internal/store"
)

// Input is everything the report needs, already loaded by the caller.
type Input struct {
	Project    store.Project
	Model      string
	Evaluation decision.Result
	Payloads   []store.DecisionPayload
	Generated  time.Time
}

// Result contains the rendered output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

type sectionData struct {
	Title  string
	Fields []fieldData
	Empty  bool
}

type fieldData struct {
	Label string
	Value string
}

type reportData struct {
	Title       string
	Model       string
	Status      string
	FailedCheck string
	Completed   []string
	Generated   time.Time
	Sections    []sectionData
}

// Render builds the determination summary for one project.
func Render(in Input) (*Result, error) {
	data := reportData{
		Title:     in.Project.Title,
		Model:     in.Model,
		Status:    "In progress",
		Completed: in.Evaluation.CompletedTitles,
		Generated: in.Generated,
		Sections:  buildSections(in.Payloads),
	}
	if in.Evaluation.IsComplete {
		data.Status = "Complete"
	} else {
		data.FailedCheck = in.Evaluation.FailedCheck
	}
	if data.Generated.IsZero() {
		data.Generated = time.Now().UTC()
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(in.Project.Title) + "-review.html",
		MimeType: "text/html; charset=utf-8",
	}, nil
}

// buildSections walks the fixed slot order and flattens each payload's data
// into label/value rows. Identity keys are embedded in every blob and carry no
// reader value, so they are dropped here too.
func buildSections(payloads []store.DecisionPayload) []sectionData {
	byTitle := make(map[string]map[string]any, len(payloads))
	for _, p := range payloads {
		data := decision.ExtractData(p)
		if data == nil {
			continue
		}
		if title, ok := data["title"].(string); ok && title != "" {
			byTitle[title] = data
		} else if ref, ok := p.Element.(string); ok {
			byTitle[ref] = data
		}
	}

	sections := make([]sectionData, 0, len(decision.SlotOrder))
	for _, slot := range decision.SlotOrder {
		title := decision.SlotTitle(slot)
		section := sectionData{Title: title}
		data, ok := byTitle[title]
		if !ok {
			section.Empty = true
			sections = append(sections, section)
			continue
		}
		section.Fields = flattenFields(data)
		section.Empty = len(section.Fields) == 0
		sections = append(sections, section)
	}
	return sections
}

func flattenFields(data map[string]any) []fieldData {
	skip := map[string]bool{"id": true, "process": true, "title": true}
	keys := make([]string, 0, len(data))
	for key := range data {
		if skip[key] {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var fields []fieldData
	for _, key := range keys {
		value := renderValue(data[key])
		if value == "" {
			continue
		}
		fields = append(fields, fieldData{Label: labelFor(key), Value: value})
	}
	return fields
}

func renderValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
	case []any:
		var parts []string
		for _, item := range v {
			if s := renderValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case []string:
		return strings.Join(v, "; ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var parts []string
		for _, key := range keys {
			if s := renderValue(v[key]); s != "" {
				parts = append(parts, labelFor(key)+": "+s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}

// labelFor turns a snake_case or camelCase data key into a display label.
func labelFor(key string) string {
	var out []rune
	prevLower := false
	for _, r := range key {
		switch {
		case r == '_' || r == '-':
			out = append(out, ' ')
			prevLower = false
		case r >= 'A' && r <= 'Z' && prevLower:
			out = append(out, ' ', r)
			prevLower = false
		default:
			out = append(out, r)
			prevLower = r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
		}
	}
	label := strings.TrimSpace(string(out))
	if label == "" {
		return key
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func sanitizeFilename(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, strings.TrimSpace(title))
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		return "project"
	}
	return strings.ToLower(cleaned)
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}} — Review Summary</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .section { margin: 1rem 0; padding: 1rem; background: #f5f5f5; border-left: 3px solid #333; }
    .section.empty { border-left-color: #c00; }
    dt { font-weight: bold; }
    dd { margin: 0 0 0.5rem 0; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    {{.Model}} review | {{.Status}}{{if .FailedCheck}} (stopped at {{.FailedCheck}}){{end}} | generated {{.Generated.Format "Jan 2, 2006"}}
  </div>
  {{range .Sections}}
  <div class="section{{if .Empty}} empty{{end}}">
    <h2>{{.Title}}</h2>
    {{if .Empty}}<p>No information recorded.</p>{{else}}
    <dl>
      {{range .Fields}}<dt>{{.Label}}</dt><dd>{{.Value}}</dd>
      {{end}}
    </dl>
    {{end}}
  </div>
  {{end}}
</body>
</html>`))
