package panel

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/calegria/mindpanel/backend/internal/analysis/mood"
	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
	"github.com/calegria/mindpanel/backend/internal/model/persona"
)

// CompletionService is the narrow contract the engine needs from a language
// model. Calls may fail, time out, or return malformed output; the generator
// tolerates all three.
type CompletionService interface {
	Complete(ctx context.Context, system, query string) (string, error)
}

// Outcome classifies how a panelist's response came to be, so callers and
// tests can tell real generations from fallbacks without parsing text.
type Outcome string

const (
	// OutcomeGenerated is a well-formed structured model reply.
	OutcomeGenerated Outcome = "generated"
	// OutcomeMalformed means the model replied but not in the structured
	// format; the raw text was used as the response.
	OutcomeMalformed Outcome = "malformed"
	// OutcomeFallback means the call failed or returned nothing usable and a
	// canned line was substituted.
	OutcomeFallback Outcome = "fallback"
)

// TurnResult pairs a recorded response with its generation outcome.
type TurnResult struct {
	Response panelmodel.Response
	Outcome  Outcome
}

// Generator drives the completion service once per active persona per turn,
// strictly in session order. Each response is appended to the session before
// the next persona is queried, so panelists react to what was just said.
type Generator struct {
	completion  CompletionService
	personas    persona.Store
	builder     *ContextBuilder
	store       *SessionStore
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewGenerator wires the turn pipeline.
func NewGenerator(completion CompletionService, personas persona.Store, builder *ContextBuilder, store *SessionStore, callTimeout time.Duration, logger *zap.Logger) *Generator {
	return &Generator{
		completion:  completion,
		personas:    personas,
		builder:     builder,
		store:       store,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// GenerateTurn runs one full turn for the session. Personas listed in skip
// sit the turn out. When emit is non-nil it is invoked for each result as
// soon as the response is recorded, enabling persona-by-persona delivery.
// The caller must hold the session's turn slot (SessionStore.BeginTurn).
func (g *Generator) GenerateTurn(ctx context.Context, sessionID, userMessage string, skip []string, emit func(TurnResult)) ([]TurnResult, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyUserMessage
	}

	session, err := g.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != panelmodel.StatusActive {
		return nil, ErrSessionNotActive
	}

	skipSet := make(map[string]struct{}, len(skip))
	for _, id := range skip {
		skipSet[id] = struct{}{}
	}

	if err := g.store.BeginExchange(sessionID, userMessage); err != nil {
		return nil, err
	}

	panelists := g.panelDefinitions(session)
	results := make([]TurnResult, 0, len(session.PersonaIDs))
	for _, personaID := range session.PersonaIDs {
		if _, skipped := skipSet[personaID]; skipped {
			continue
		}
		def, ok := g.personas.FindByID(personaID)
		if !ok {
			// Compositions are validated at creation; a miss here means the
			// registry changed under us, which load-time immutability forbids.
			g.logger.Warn("persona missing from registry, skipping",
				zap.String("session_id", sessionID),
				zap.String("persona_id", personaID))
			continue
		}

		snapshot, err := g.store.Get(sessionID)
		if err != nil {
			return results, err
		}

		result := g.generateOne(ctx, snapshot, def, panelists, userMessage, len(results))
		if err := g.store.AppendResponse(sessionID, result.Response); err != nil {
			return results, err
		}
		results = append(results, result)
		if emit != nil {
			emit(result)
		}
	}

	if _, err := g.store.CompleteExchange(sessionID); err != nil {
		return results, err
	}
	return results, nil
}

// generateOne produces a single persona's response, absorbing every failure
// mode into a fallback so one persona cannot abort the panel.
func (g *Generator) generateOne(ctx context.Context, session panelmodel.Session, def persona.Definition, panelists []persona.Definition, userMessage string, sequence int) TurnResult {
	promptCtx, err := g.builder.Build(session, def, userMessage)
	if err != nil {
		// Only blank messages fail the builder, and those are rejected before
		// the turn starts; treat anything else as a generation failure.
		return g.fallbackResult(def, panelists, sequence)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	raw, err := g.completion.Complete(callCtx, promptCtx.System, promptCtx.User)
	cancel()
	if err != nil {
		g.logger.Warn("completion failed, using fallback response",
			zap.String("session_id", session.ID),
			zap.String("persona_id", def.ID),
			zap.Error(err))
		return g.fallbackResult(def, panelists, sequence)
	}

	text, parsedMood, outcome := parseReply(raw)
	if text == "" {
		text = "I need a moment to process this... Let's come back to it."
		parsedMood = panelmodel.MoodNeutral
		outcome = OutcomeFallback
	}

	resp := panelmodel.Response{
		PersonaID:   def.ID,
		PersonaName: def.Name,
		Text:        text,
		Mood:        parsedMood,
		References:  DetectReferences(text, panelists, def.ID),
		AsciiArt:    persona.ArtFor(def, string(parsedMood)),
		Sequence:    sequence,
		CreatedAt:   time.Now().UTC(),
	}

	g.logger.Info("generated panel response",
		zap.String("session_id", session.ID),
		zap.String("persona_id", def.ID),
		zap.String("mood", string(parsedMood)),
		zap.String("outcome", string(outcome)),
		zap.Int("references", len(resp.References)))

	return TurnResult{Response: resp, Outcome: outcome}
}

func (g *Generator) fallbackResult(def persona.Definition, panelists []persona.Definition, sequence int) TurnResult {
	text := "My apologies - I seem to have lost my train of thought. Please continue, and I will rejoin the discussion shortly."
	return TurnResult{
		Response: panelmodel.Response{
			PersonaID:   def.ID,
			PersonaName: def.Name,
			Text:        text,
			Mood:        panelmodel.MoodNeutral,
			References:  []string{},
			AsciiArt:    persona.ArtFor(def, string(panelmodel.MoodNeutral)),
			Sequence:    sequence,
			CreatedAt:   time.Now().UTC(),
		},
		Outcome: OutcomeFallback,
	}
}

func (g *Generator) panelDefinitions(session panelmodel.Session) []persona.Definition {
	defs := make([]persona.Definition, 0, len(session.PersonaIDs))
	for _, id := range session.PersonaIDs {
		if def, ok := g.personas.FindByID(id); ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// Models often wrap the JSON in markdown fences or prose; take the outermost
// braces and try those.
var jsonBlockPattern = regexp.MustCompile(`(?s)\{.*\}`)

type structuredReply struct {
	Response string `json:"response"`
	Mood     string `json:"mood"`
}

// parseReply extracts {response, mood} from raw model output. Malformed
// output degrades to the raw text with a mood inferred from the words
// themselves.
func parseReply(raw string) (string, panelmodel.Mood, Outcome) {
	trimmed := strings.TrimSpace(raw)

	block := jsonBlockPattern.FindString(trimmed)
	if block != "" {
		var reply structuredReply
		if err := json.Unmarshal([]byte(block), &reply); err == nil {
			text := strings.TrimSpace(reply.Response)
			if reply.Mood == "" {
				// Mood omitted entirely: infer one from the words rather
				// than defaulting a perfectly good response to neutral.
				return text, inferMood(text), OutcomeGenerated
			}
			return text, panelmodel.ParseMood(reply.Mood), OutcomeGenerated
		}
	}

	return trimmed, panelmodel.MoodNeutral, OutcomeMalformed
}

// inferMood consults the keyword analyzer, defaulting to neutral.
func inferMood(text string) panelmodel.Mood {
	decision := mood.Analyze(text)
	return panelmodel.ParseMood(string(decision.Mood))
}
