package panel

// Config is a named panel preset: an ordered set of 2-4 personas plus the
// metadata the frontend needs to present it. Immutable once loaded.
type Config struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PersonaIDs  []string `json:"persona_ids"`
	BestFor     string   `json:"best_for,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	Order       int      `json:"order,omitempty"`
	Default     bool     `json:"default,omitempty"`
}

// Panel composition bounds. A session keeps its composition for life, so the
// same bounds apply to presets and custom persona selections.
const (
	MinPanelSize = 2
	MaxPanelSize = 4
)
