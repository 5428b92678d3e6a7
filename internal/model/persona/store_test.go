package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePersonas(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "personas.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writePersonas(t, `{
		"defaultPersonaId": "dr-b",
		"personas": {
			"dr-b": {"id": "dr-b", "name": "Dr. Beta", "systemPrompt": "be beta"},
			"dr-a": {"id": "dr-a", "name": "Dr. Alpha", "systemPrompt": "be alpha", "tags": ["x"]}
		}
	}`)

	store, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	items := store.List()
	if len(items) != 2 {
		t.Fatalf("expected 2 personas, got %d", len(items))
	}
	if items[0].ID != "dr-a" || items[1].ID != "dr-b" {
		t.Fatalf("personas should come back sorted by id: %v", items)
	}
	if store.DefaultID() != "dr-b" {
		t.Fatalf("default id %q", store.DefaultID())
	}

	def, ok := store.FindByID("dr-a")
	if !ok || def.Name != "Dr. Alpha" {
		t.Fatalf("lookup failed: %+v ok=%v", def, ok)
	}
	if _, ok := store.FindByID("dr-z"); ok {
		t.Fatal("unknown id should miss")
	}
}

func TestLoadFileValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"mismatched id",
			`{"personas": {"dr-a": {"id": "dr-b", "name": "N", "systemPrompt": "p"}}}`,
			"mismatched id",
		},
		{
			"missing name",
			`{"personas": {"dr-a": {"id": "dr-a", "systemPrompt": "p"}}}`,
			"no display name",
		},
		{
			"missing system prompt",
			`{"personas": {"dr-a": {"id": "dr-a", "name": "N"}}}`,
			"no system prompt",
		},
		{
			"unknown default",
			`{"defaultPersonaId": "dr-z", "personas": {"dr-a": {"id": "dr-a", "name": "N", "systemPrompt": "p"}}}`,
			"not defined",
		},
		{
			"empty registry",
			`{"personas": {}}`,
			"no personas",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFile(writePersonas(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("missing file must fail startup")
	}
}

func TestArtFor(t *testing.T) {
	custom := Definition{AsciiArt: map[string]string{
		"neutral": "custom-neutral",
		"amused":  "custom-amused",
	}}

	if got := ArtFor(custom, "amused"); got != "custom-amused" {
		t.Fatalf("custom art ignored: %q", got)
	}
	// Moods without custom art fall back to the persona's neutral face.
	if got := ArtFor(custom, "shocked"); got != "custom-neutral" {
		t.Fatalf("expected neutral fallback, got %q", got)
	}

	plain := Definition{}
	if got := ArtFor(plain, "thinking"); !strings.Contains(got, "*thinking*") {
		t.Fatalf("expected default thinking face, got %q", got)
	}
	if got := ArtFor(plain, "not-a-mood"); !strings.Contains(got, "*listening*") {
		t.Fatalf("expected default neutral face, got %q", got)
	}
}
