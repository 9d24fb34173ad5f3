package model

// Method records how a category or classification was produced.
type Method string

const (
	MethodAI             Method = "ai"
	MethodHeuristic      Method = "heuristic"
	MethodManualOverride Method = "manual-override"
)

// OtherCategoryID is the catch-all category every taxonomy carries.
const OtherCategoryID = "other"

// Category is one bucket of the per-company reliability taxonomy.
type Category struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Method      Method   `json:"method"`
	Keywords    []string `json:"keywords,omitempty"`
	Exemplars   []string `json:"exemplars,omitempty"` // incident ids
	Seeded      bool     `json:"seeded,omitempty"`    // carried over from feedback
}

// OtherCategory returns the catch-all category for unmatched incidents.
func OtherCategory(method Method) Category {
	return Category{
		ID:          OtherCategoryID,
		Name:        "Other",
		Description: "Incidents that do not fit any other category",
		Method:      method,
	}
}

// ClassificationResult assigns one incident to one category.
type ClassificationResult struct {
	IncidentID string  `json:"incident_id"`
	CategoryID string  `json:"category_id"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
	Method     Method  `json:"method"`
	// RootCause and Components are only filled by the AI classifier.
	RootCause  string   `json:"root_cause,omitempty"`
	Components []string `json:"components,omitempty"`
}
