package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Store exposes persona retrieval for services and HTTP handlers.
type Store interface {
	List() []Definition
	FindByID(id string) (Definition, bool)
	DefaultID() string
}

// MemoryStore implements Store with an in-memory slice loaded once at startup.
type MemoryStore struct {
	items     []Definition
	defaultID string
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Definition, defaultID string) *MemoryStore {
	return &MemoryStore{items: append([]Definition(nil), items...), defaultID: defaultID}
}

// registryFile mirrors the personas.json layout.
type registryFile struct {
	Personas         map[string]Definition `json:"personas"`
	DefaultPersonaID string                `json:"defaultPersonaId"`
}

// LoadFile reads and validates the persona registry from a JSON file. A
// missing or malformed file is a startup failure, not a runtime condition.
func LoadFile(path string) (*MemoryStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona config %s: %w", path, err)
	}

	var file registryFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse persona config %s: %w", path, err)
	}

	if len(file.Personas) == 0 {
		return nil, fmt.Errorf("persona config %s defines no personas", path)
	}

	items := make([]Definition, 0, len(file.Personas))
	for id, def := range file.Personas {
		if def.ID == "" {
			def.ID = id
		}
		if def.ID != id {
			return nil, fmt.Errorf("persona %q declares mismatched id %q", id, def.ID)
		}
		if def.Name == "" {
			return nil, fmt.Errorf("persona %q has no display name", id)
		}
		if def.SystemPrompt == "" {
			return nil, fmt.Errorf("persona %q has no system prompt", id)
		}
		items = append(items, def)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	defaultID := file.DefaultPersonaID
	if defaultID != "" {
		if _, ok := file.Personas[defaultID]; !ok {
			return nil, fmt.Errorf("default persona %q is not defined", defaultID)
		}
	}

	return NewMemoryStore(items, defaultID), nil
}

// List returns the loaded persona definitions.
func (s *MemoryStore) List() []Definition {
	return append([]Definition(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Definition, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Definition{}, false
}

// DefaultID returns the configured default persona id, possibly empty.
func (s *MemoryStore) DefaultID() string {
	return s.defaultID
}
