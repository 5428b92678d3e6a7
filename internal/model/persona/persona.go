package persona

// Definition captures the immutable attributes of a panelist persona.
type Definition struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Title          string            `json:"title,omitempty"`
	SystemPrompt   string            `json:"systemPrompt"`
	WelcomeMessage string            `json:"welcomeMessage,omitempty"`
	AsciiArt       map[string]string `json:"asciiArt,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
}

// defaultAsciiFaces backs personas that do not define custom art.
var defaultAsciiFaces = map[string]string{
	"thinking":  "    .---.\n   / o o \\\n   |  ~  |\n   \\ === /\n    '---'\n  *thinking*",
	"amused":    "    .---.\n   / ^ ^ \\\n   |  v  |\n   \\ === /\n    '---'\n  *hehe*",
	"concerned": "    .---.\n   / o o \\\n   |  n  |\n   \\ === /\n    '---'\n  *hmm...*",
	"shocked":   "    .---.\n   / O O \\\n   |  O  |\n   \\ === /\n    '---'\n  *gasp!*",
	"neutral":   "    .---.\n   / - - \\\n   |  _  |\n   \\ === /\n    '---'\n  *listening*",
}

// ArtFor returns the ASCII face a persona shows for the given mood, falling
// back to the persona's neutral face and finally to the shared defaults.
func ArtFor(def Definition, mood string) string {
	if art, ok := def.AsciiArt[mood]; ok && art != "" {
		return art
	}
	if art, ok := def.AsciiArt["neutral"]; ok && art != "" {
		return art
	}
	if art, ok := defaultAsciiFaces[mood]; ok {
		return art
	}
	return defaultAsciiFaces["neutral"]
}
