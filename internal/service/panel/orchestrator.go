package panel

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
	"github.com/calegria/mindpanel/backend/internal/model/persona"
)

// Orchestrator ties the registry, session store, generator, and moderator
// into the four externally visible panel operations.
type Orchestrator struct {
	store     *SessionStore
	registry  *panelmodel.Registry
	personas  persona.Store
	generator *Generator
	moderator *Moderator
	logger    *zap.Logger
}

// NewOrchestrator assembles the panel façade.
func NewOrchestrator(store *SessionStore, registry *panelmodel.Registry, personas persona.Store, generator *Generator, moderator *Moderator, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		registry:  registry,
		personas:  personas,
		generator: generator,
		moderator: moderator,
		logger:    logger,
	}
}

// StartRequest opens a session and runs its first turn. Composition comes
// from PersonaIDs when given; PanelConfigID otherwise. When both are set the
// explicit persona list wins and the config id is kept only as a label.
type StartRequest struct {
	PersonaIDs       []string
	PanelConfigID    string
	IncludeModerator bool
	Message          string
	SkipPersonaIDs   []string
	// Streaming hooks. Each fires as soon as the corresponding artifact is
	// recorded, enabling persona-by-persona delivery; all may be nil.
	OnSession        func(panelmodel.Session)
	OnModeratorIntro func(panelmodel.Response)
	OnResponse       func(TurnResult)
}

// StartResult is the full first-turn output.
type StartResult struct {
	SessionID          string
	ModeratorIntro     *panelmodel.Response
	Responses          []TurnResult
	ExchangeCount      int
	ActivePersonaCount int
}

// Start validates the composition, creates the session, optionally emits the
// moderator introduction, and runs one turn over all selected personas.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return StartResult{}, ErrEmptyUserMessage
	}

	personaIDs := req.PersonaIDs
	configID := req.PanelConfigID
	if len(personaIDs) == 0 {
		if configID == "" {
			return StartResult{}, fmt.Errorf("%w: persona ids or a panel config id is required", ErrInvalidComposition)
		}
		cfg, err := o.registry.Get(configID)
		if err != nil {
			return StartResult{}, err
		}
		personaIDs = cfg.PersonaIDs
	}

	session, err := o.store.Create(personaIDs, req.IncludeModerator, configID)
	if err != nil {
		return StartResult{}, err
	}
	if req.OnSession != nil {
		req.OnSession(session)
	}

	if err := o.store.BeginTurn(session.ID); err != nil {
		return StartResult{}, err
	}
	defer o.store.EndTurn(session.ID)

	result := StartResult{SessionID: session.ID, ActivePersonaCount: len(session.PersonaIDs)}

	if req.IncludeModerator {
		intro, err := o.moderator.Intro(ctx, session.ID)
		if err != nil {
			return StartResult{}, err
		}
		result.ModeratorIntro = &intro
		if req.OnModeratorIntro != nil {
			req.OnModeratorIntro(intro)
		}
	}

	responses, err := o.generator.GenerateTurn(ctx, session.ID, req.Message, req.SkipPersonaIDs, req.OnResponse)
	if err != nil {
		return StartResult{}, err
	}
	result.Responses = responses

	updated, err := o.store.Get(session.ID)
	if err != nil {
		return StartResult{}, err
	}
	result.ExchangeCount = updated.ExchangeCount
	return result, nil
}

// ContinueResult is one follow-up turn's output. ShouldSummarize informs the
// caller that a summary is due; the orchestrator never auto-summarizes, so
// turn latency stays bounded.
type ContinueResult struct {
	Responses       []TurnResult
	ExchangeCount   int
	ShouldSummarize bool
}

// Continue runs one more turn on an existing active session, optionally
// skipping listed personas for this turn only.
func (o *Orchestrator) Continue(ctx context.Context, sessionID, message string, skip []string, onResponse func(TurnResult)) (ContinueResult, error) {
	if strings.TrimSpace(message) == "" {
		return ContinueResult{}, ErrEmptyUserMessage
	}
	if _, err := o.store.Get(sessionID); err != nil {
		return ContinueResult{}, err
	}

	if err := o.store.BeginTurn(sessionID); err != nil {
		return ContinueResult{}, err
	}
	defer o.store.EndTurn(sessionID)

	responses, err := o.generator.GenerateTurn(ctx, sessionID, message, skip, onResponse)
	if err != nil {
		return ContinueResult{}, err
	}

	session, err := o.store.Get(sessionID)
	if err != nil {
		return ContinueResult{}, err
	}

	return ContinueResult{
		Responses:       responses,
		ExchangeCount:   session.ExchangeCount,
		ShouldSummarize: o.moderator.ShouldSummarize(session),
	}, nil
}

// SummaryResult carries the moderator's recap.
type SummaryResult struct {
	Summary     panelmodel.Response
	KeyInsights []string
}

// Summarize produces a moderator recap of the discussion so far. Explicitly
// caller-triggered; requires at least one completed exchange.
func (o *Orchestrator) Summarize(ctx context.Context, sessionID string) (SummaryResult, error) {
	if err := o.store.BeginTurn(sessionID); err != nil {
		return SummaryResult{}, err
	}
	defer o.store.EndTurn(sessionID)

	summary, insights, err := o.moderator.Summary(ctx, sessionID)
	if err != nil {
		return SummaryResult{}, err
	}
	return SummaryResult{Summary: summary, KeyInsights: insights}, nil
}

// EndResult reports the closing statistics of an ended session.
type EndResult struct {
	TotalExchanges  int
	ResponseCount   int
	FarewellMessage string
	ActivePersona   string
}

const farewellMessage = "Thank you for participating in this panel discussion. " +
	"The panel members hope their diverse perspectives were helpful!"

// End marks the session ended. Idempotent: ending twice succeeds and reports
// the same closing stats. returnToPersonaID selects the persona the client
// should hand the conversation back to; unknown ids fall back to the
// registry default.
func (o *Orchestrator) End(sessionID, returnToPersonaID string) (EndResult, error) {
	session, err := o.store.End(sessionID)
	if err != nil {
		return EndResult{}, err
	}

	active := o.personas.DefaultID()
	if _, ok := o.personas.FindByID(returnToPersonaID); ok {
		active = returnToPersonaID
	}

	return EndResult{
		TotalExchanges:  session.ExchangeCount,
		ResponseCount:   session.ResponseCount(),
		FarewellMessage: farewellMessage,
		ActivePersona:   active,
	}, nil
}

// ListConfigs returns the panel presets in display order.
func (o *Orchestrator) ListConfigs() []panelmodel.Config {
	return o.registry.List()
}

// Session exposes a read-only snapshot, mostly for handlers and tests.
func (o *Orchestrator) Session(sessionID string) (panelmodel.Session, error) {
	return o.store.Get(sessionID)
}

// SweepExpired delegates to the store's retention sweep.
func (o *Orchestrator) SweepExpired() int {
	return o.store.SweepExpired()
}
