package store

import "time"

// Table names shared by the portal and partner stores. The schemas are
// mirrored by value, so the same constants serve every backend.
const (
	TableProjects         = "projects"
	TableProcessInstances = "process_instances"
	TableDecisionElements = "decision_elements"
	TableDecisionPayloads = "decision_payloads"
	TableCaseEvents       = "case_events"
	TableGisUploads       = "gis_uploads"
)

// DataSourcePortal marks rows written by this system, so wholesale payload
// replacement never touches hand-entered rows from other tools.
const DataSourcePortal = "portal"

type Project struct {
	ID           int64          `json:"id,omitempty"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Sector       string         `json:"sector,omitempty"`
	Sponsor      string         `json:"sponsor,omitempty"`
	Participants string         `json:"participants,omitempty"`
	LocationText string         `json:"location_text,omitempty"`
	Latitude     *float64       `json:"latitude,omitempty"`
	Longitude    *float64       `json:"longitude,omitempty"`
	Geometry     any            `json:"geometry,omitempty"`
	Other        map[string]any `json:"other,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitzero"`
	UpdatedAt    time.Time      `json:"last_updated,omitzero"`
}

// ProjectRef is the minimal identity used for cross-system matching.
type ProjectRef struct {
	ID    int64
	Title string
}

type ProcessInstance struct {
	ID          int64     `json:"id,omitempty"`
	ProjectID   int64     `json:"project"`
	Model       string    `json:"process_model"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"last_updated,omitzero"`
}

// DecisionElement is read-only catalog data describing one review criterion.
type DecisionElement struct {
	ID               int64  `json:"id"`
	Model            string `json:"process_model"`
	Title            string `json:"title"`
	Category         string `json:"category,omitempty"`
	Measure          string `json:"measure,omitempty"`
	SpatialIntersect bool   `json:"spatial_intersect,omitempty"`
	Prompt           string `json:"prompt,omitempty"`
	Method           string `json:"evaluation_method,omitempty"`
}

// DecisionPayload holds the stored evidence for one element on one process
// instance. Element is the catalog id when the catalog has a row for the
// slot, or the slot title string when it does not; the payload stays
// self-describing either way because EvaluationData repeats the id/title pair.
// EvaluationData is `any` rather than a map: stored blobs arrive either as a
// JSON object or as a JSON-encoded string depending on which tool wrote them,
// and the evaluator accepts both.
type DecisionPayload struct {
	ID             int64     `json:"id,omitempty"`
	ProcessID      int64     `json:"process"`
	Element        any       `json:"decision_element"`
	EvaluationData any       `json:"evaluation_data"`
	DataSource     string    `json:"data_source"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}

type CaseEvent struct {
	ID          int64          `json:"id,omitempty"`
	ProcessID   int64          `json:"process"`
	Type        string         `json:"event_type"`
	Status      string         `json:"status,omitempty"`
	Other       map[string]any `json:"other,omitempty"`
	LastUpdated time.Time      `json:"last_updated,omitzero"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
}

// Idempotent case-event types: the orchestrator checks existence before
// inserting these. Everything else may repeat.
const (
	EventInitiated = "initiated"
	EventComplete  = "complete"
)

type GisUpload struct {
	ProjectID       int64      `json:"project"`
	GeoJSON         any        `json:"geojson,omitempty"`
	ArcGIS          any        `json:"arcgis_json,omitempty"`
	OriginalFile    string     `json:"original_file,omitempty"` // base64
	FileName        string     `json:"file_name,omitempty"`
	FileURL         string     `json:"file_url,omitempty"`
	GeometryType    string     `json:"geometry_type,omitempty"`
	Centroid        []float64  `json:"centroid,omitempty"`
	Extent          []float64  `json:"extent,omitempty"` // minX, minY, maxX, maxY
	CoordinateCount int        `json:"coordinate_count,omitempty"`
	UpdatedAt       time.Time  `json:"last_updated,omitzero"`
}
