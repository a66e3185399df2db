// Package decision builds the per-criterion payload set for a review process
// and evaluates whether a stored set satisfies every required criterion.
package decision

import (
	"strings"

	"permitport/api/internal/store"
)

// Slot keys in catalog order. The builder emits exactly one payload per slot
// on every save.
const (
	SlotProjectDetails = "project_details"
	SlotIPaC           = "ipac"
	SlotNEPAssist      = "nepassist"
	SlotPermits        = "permits"
	SlotExclusion      = "exclusion"
	SlotConditions     = "conditions"
	SlotResources      = "resources"
)

var slotTitles = map[string]string{
	SlotProjectDetails: "Project Details",
	SlotIPaC:           "IPaC Screening",
	SlotNEPAssist:      "NEPAssist Screening",
	SlotPermits:        "Permits and Approvals",
	SlotExclusion:      "Categorical Exclusion",
	SlotConditions:     "Conditions",
	SlotResources:      "Resource Considerations",
}

// SlotOrder is the fixed build and evaluation order.
var SlotOrder = []string{
	SlotProjectDetails,
	SlotIPaC,
	SlotNEPAssist,
	SlotPermits,
	SlotExclusion,
	SlotConditions,
	SlotResources,
}

// SlotTitle returns the display title of a slot key.
func SlotTitle(slot string) string {
	return slotTitles[slot]
}

// Catalog resolves slots to decision-element catalog rows for one process
// model. A slot whose element is not configured resolves to the slot title
// itself, so payloads remain self-describing against a stale catalog.
type Catalog struct {
	byTitle map[string]store.DecisionElement
}

// NewCatalog indexes the fetched catalog rows by normalized title.
func NewCatalog(elements []store.DecisionElement) *Catalog {
	byTitle := make(map[string]store.DecisionElement, len(elements))
	for _, el := range elements {
		byTitle[normalizeTitle(el.Title)] = el
	}
	return &Catalog{byTitle: byTitle}
}

// Identity returns the stable id/title pair stamped into a slot's payload.
// The id is the catalog element id, or the slot title string when the catalog
// has no row for the slot.
func (c *Catalog) Identity(slot string) (id any, title string) {
	title = slotTitles[slot]
	if c != nil {
		if el, ok := c.byTitle[normalizeTitle(title)]; ok {
			return el.ID, title
		}
	}
	return title, title
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
