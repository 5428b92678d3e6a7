package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/calegria/mindpanel/backend/internal/model/persona"
)

var (
	ErrConfigNotFound         = errors.New("panel config not found")
	ErrModeratorNotConfigured = errors.New("moderator persona not configured")
)

// Registry holds the validated panel presets and the moderator persona.
// Read-only after load; safe for concurrent use without locking.
type Registry struct {
	configs   []Config
	byID      map[string]Config
	moderator *persona.Definition
}

// registryFile mirrors the panel_configs.json layout.
type registryFile struct {
	PanelConfigs map[string]Config `json:"panel_configs"`
	Moderator    *moderatorSection `json:"moderator"`
}

type moderatorSection struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	SystemPrompt string            `json:"systemPrompt"`
	AsciiArt     map[string]string `json:"asciiArt,omitempty"`
}

// LoadRegistry reads panel presets from a JSON file and validates every
// referenced persona against the store. Any malformed preset fails the load;
// startup must not proceed with a partially valid registry.
func LoadRegistry(path string, personas persona.Store) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read panel config %s: %w", path, err)
	}

	var file registryFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse panel config %s: %w", path, err)
	}
	if len(file.PanelConfigs) == 0 {
		return nil, fmt.Errorf("panel config %s defines no panels", path)
	}

	reg := &Registry{byID: make(map[string]Config, len(file.PanelConfigs))}
	for id, cfg := range file.PanelConfigs {
		if cfg.ID == "" {
			cfg.ID = id
		}
		if cfg.ID != id {
			return nil, fmt.Errorf("panel %q declares mismatched id %q", id, cfg.ID)
		}
		if cfg.Name == "" {
			return nil, fmt.Errorf("panel %q has no name", id)
		}
		if len(cfg.PersonaIDs) < MinPanelSize || len(cfg.PersonaIDs) > MaxPanelSize {
			return nil, fmt.Errorf("panel %q must list %d-%d personas, got %d",
				id, MinPanelSize, MaxPanelSize, len(cfg.PersonaIDs))
		}
		seen := make(map[string]struct{}, len(cfg.PersonaIDs))
		for _, pid := range cfg.PersonaIDs {
			if _, ok := personas.FindByID(pid); !ok {
				return nil, fmt.Errorf("panel %q references unknown persona %q", id, pid)
			}
			if _, dup := seen[pid]; dup {
				return nil, fmt.Errorf("panel %q lists persona %q twice", id, pid)
			}
			seen[pid] = struct{}{}
		}
		reg.byID[id] = cfg
		reg.configs = append(reg.configs, cfg)
	}

	sort.Slice(reg.configs, func(i, j int) bool {
		if reg.configs[i].Order != reg.configs[j].Order {
			return reg.configs[i].Order < reg.configs[j].Order
		}
		return reg.configs[i].ID < reg.configs[j].ID
	})

	if file.Moderator != nil {
		mod := persona.Definition{
			ID:           file.Moderator.ID,
			Name:         file.Moderator.Name,
			SystemPrompt: file.Moderator.SystemPrompt,
			AsciiArt:     file.Moderator.AsciiArt,
		}
		if mod.ID == "" {
			mod.ID = ModeratorPersonaID
		}
		if mod.Name == "" {
			return nil, fmt.Errorf("panel config %s: moderator has no name", path)
		}
		reg.moderator = &mod
	}

	return reg, nil
}

// NewRegistry builds a registry from already-validated values; used by tests.
func NewRegistry(configs []Config, moderator *persona.Definition) *Registry {
	reg := &Registry{byID: make(map[string]Config, len(configs)), moderator: moderator}
	for _, cfg := range configs {
		reg.byID[cfg.ID] = cfg
		reg.configs = append(reg.configs, cfg)
	}
	return reg
}

// List returns the presets ordered by their display order.
func (r *Registry) List() []Config {
	return append([]Config(nil), r.configs...)
}

// Get returns the preset with the given id.
func (r *Registry) Get(id string) (Config, error) {
	cfg, ok := r.byID[id]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, id)
	}
	return cfg, nil
}

// Moderator returns the moderator persona definition.
func (r *Registry) Moderator() (persona.Definition, error) {
	if r.moderator == nil {
		return persona.Definition{}, ErrModeratorNotConfigured
	}
	return *r.moderator, nil
}
