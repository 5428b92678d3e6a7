package panel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
	"github.com/calegria/mindpanel/backend/internal/model/persona"
)

// Shared fixtures for the panel service tests.

func testPersonas() *persona.MemoryStore {
	defs := []persona.Definition{
		{
			ID:           "dr-sigmund-2000",
			Name:         "Dr. Sigmund 2000",
			SystemPrompt: "You interpret problems through 90s computer metaphors.",
		},
		{
			ID:           "dr-ada-sterling",
			Name:         "Dr. Ada Sterling",
			SystemPrompt: "You are a rigorous cognitive-behavioral therapist.",
		},
		{
			ID:           "dr-rex-hardcastle",
			Name:         "Dr. Rex Hardcastle",
			SystemPrompt: "You deliver tough love through sports metaphors.",
		},
		{
			ID:           "captain-whiskers",
			Name:         "Captain Whiskers, PhD",
			SystemPrompt: "You dispense feline wisdom.",
		},
	}
	return persona.NewMemoryStore(defs, "dr-sigmund-2000")
}

func testRegistry() *panelmodel.Registry {
	moderator := &persona.Definition{
		ID:           panelmodel.ModeratorPersonaID,
		Name:         "Dr. Panel",
		SystemPrompt: "You are a neutral moderator.",
	}
	configs := []panelmodel.Config{
		{
			ID:         "balanced",
			Name:       "The Balanced Panel",
			PersonaIDs: []string{"dr-sigmund-2000", "dr-ada-sterling", "captain-whiskers"},
			Order:      1,
			Default:    true,
		},
		{
			ID:         "tough-love",
			Name:       "The Tough Love Panel",
			PersonaIDs: []string{"dr-rex-hardcastle", "dr-ada-sterling"},
			Order:      2,
		},
	}
	return panelmodel.NewRegistry(configs, moderator)
}

// fakeCompletion scripts model behavior per call. The reply function sees the
// assembled system and user prompts and decides what the "model" returns.
type fakeCompletion struct {
	mu    sync.Mutex
	calls int
	reply func(call int, system, query string) (string, error)
}

func (f *fakeCompletion) Complete(ctx context.Context, system, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()
	return f.reply(call, system, query)
}

func (f *fakeCompletion) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func constantReply(raw string) func(int, string, string) (string, error) {
	return func(int, string, string) (string, error) {
		return raw, nil
	}
}

func newTestStore() *SessionStore {
	return NewSessionStore(testPersonas(), 30*time.Minute, zap.NewNop())
}

func newTestEngine(completion CompletionService) (*Orchestrator, *SessionStore) {
	personas := testPersonas()
	store := NewSessionStore(personas, 30*time.Minute, zap.NewNop())
	builder := NewContextBuilder(personas, 3, 4096)
	generator := NewGenerator(completion, personas, builder, store, time.Second, zap.NewNop())
	moderator := NewModerator(completion, testRegistry(), personas, store, 3, time.Second, zap.NewNop())
	orchestrator := NewOrchestrator(store, testRegistry(), personas, generator, moderator, zap.NewNop())
	return orchestrator, store
}
