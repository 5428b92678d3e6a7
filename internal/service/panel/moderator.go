package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
	"github.com/calegria/mindpanel/backend/internal/model/persona"
)

// Moderator produces the panel introduction at session start and discussion
// summaries once enough exchanges have accumulated. It never takes part in
// the turn-by-turn exchange itself.
type Moderator struct {
	completion  CompletionService
	registry    *panelmodel.Registry
	personas    persona.Store
	store       *SessionStore
	threshold   int
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewModerator wires the moderator against the shared stores. threshold is
// the exchange count at which summarization is suggested.
func NewModerator(completion CompletionService, registry *panelmodel.Registry, personas persona.Store, store *SessionStore, threshold int, callTimeout time.Duration, logger *zap.Logger) *Moderator {
	return &Moderator{
		completion:  completion,
		registry:    registry,
		personas:    personas,
		store:       store,
		threshold:   threshold,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

const introFallback = "Welcome! Today's panel is ready to discuss your concerns."

const summaryFallback = "The panel has provided diverse perspectives on your situation. " +
	"Key themes include understanding your feelings and finding practical solutions."

// Intro generates the moderator's opening for a fresh session and records it
// in the history. It refuses to run once the discussion has begun; the intro
// is produced at most once per session.
func (m *Moderator) Intro(ctx context.Context, sessionID string) (panelmodel.Response, error) {
	session, err := m.store.Get(sessionID)
	if err != nil {
		return panelmodel.Response{}, err
	}
	if session.Status != panelmodel.StatusActive {
		return panelmodel.Response{}, ErrSessionNotActive
	}
	if len(session.History) > 0 {
		return panelmodel.Response{}, fmt.Errorf("session %s already has an introduction or discussion", sessionID)
	}

	moderator, err := m.registry.Moderator()
	if err != nil {
		return panelmodel.Response{}, err
	}

	prompt := fmt.Sprintf(
		"The panel includes: %s\n\nGenerate a brief, warm welcome message (1-2 sentences) introducing these panelists to the user.\nKeep it professional but friendly.",
		joinNames(m.panelNames(session)))

	text := introFallback
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	raw, err := m.completion.Complete(callCtx, moderator.SystemPrompt, prompt)
	cancel()
	if err != nil {
		m.logger.Warn("moderator intro generation failed, using fallback",
			zap.String("session_id", sessionID), zap.Error(err))
	} else if cleaned := stripCodeFences(raw); cleaned != "" {
		text = cleaned
	}

	resp := m.moderatorResponse(moderator, text, nil)
	if err := m.store.AppendModeratorEntry(sessionID, resp); err != nil {
		return panelmodel.Response{}, err
	}

	m.logger.Info("generated moderator intro", zap.String("session_id", sessionID))
	return resp, nil
}

// ShouldSummarize is a pure predicate over session state: true once the
// exchange count reaches the configured threshold on an active session.
func (m *Moderator) ShouldSummarize(session panelmodel.Session) bool {
	return session.Status == panelmodel.StatusActive && session.ExchangeCount >= m.threshold
}

// Summary synthesizes a recap of the recent discussion, crediting panelists
// by name, and records it in the history. At least one completed exchange is
// required.
func (m *Moderator) Summary(ctx context.Context, sessionID string) (panelmodel.Response, []string, error) {
	session, err := m.store.Get(sessionID)
	if err != nil {
		return panelmodel.Response{}, nil, err
	}
	if session.Status != panelmodel.StatusActive {
		return panelmodel.Response{}, nil, ErrSessionNotActive
	}
	if session.ExchangeCount < 1 {
		return panelmodel.Response{}, nil, ErrInsufficientHistory
	}

	moderator, err := m.registry.Moderator()
	if err != nil {
		return panelmodel.Response{}, nil, err
	}

	exchanges := session.Exchanges()
	if len(exchanges) > m.threshold {
		exchanges = exchanges[len(exchanges)-m.threshold:]
	}

	var transcript strings.Builder
	for _, entry := range exchanges {
		fmt.Fprintf(&transcript, "User: %s\n", entry.UserMessage)
		for _, resp := range entry.Responses {
			fmt.Fprintf(&transcript, "%s: %s\n", resp.PersonaName, resp.Text)
		}
	}

	prompt := fmt.Sprintf(`Review the following discussion and provide a concise summary:

%s
Please respond in JSON format:
{
  "summary": "Brief summary of the discussion with key themes (3-5 sentences)",
  "key_insights": ["Insight 1", "Insight 2", "Insight 3"]
}

Credit specific panelists by name when mentioning their insights.`, transcript.String())

	text := summaryFallback
	var insights []string
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	raw, err := m.completion.Complete(callCtx, moderator.SystemPrompt, prompt)
	cancel()
	if err != nil {
		m.logger.Warn("moderator summary generation failed, using fallback",
			zap.String("session_id", sessionID), zap.Error(err))
	} else {
		text, insights = parseSummaryReply(raw)
	}

	refs := DetectReferences(text, m.contributors(session), moderator.ID)
	resp := m.moderatorResponse(moderator, text, refs)
	if err := m.store.AppendModeratorEntry(sessionID, resp); err != nil {
		return panelmodel.Response{}, nil, err
	}

	m.logger.Info("generated panel summary",
		zap.String("session_id", sessionID),
		zap.Int("credited_personas", len(refs)))
	return resp, insights, nil
}

func (m *Moderator) moderatorResponse(moderator persona.Definition, text string, refs []string) panelmodel.Response {
	if refs == nil {
		refs = []string{}
	}
	return panelmodel.Response{
		PersonaID:   moderator.ID,
		PersonaName: moderator.Name,
		Text:        text,
		Mood:        panelmodel.MoodNeutral,
		References:  refs,
		AsciiArt:    persona.ArtFor(moderator, string(panelmodel.MoodNeutral)),
		CreatedAt:   time.Now().UTC(),
	}
}

// contributors lists the definitions of personas that actually spoke, so
// summary reference detection only credits real participants.
func (m *Moderator) contributors(session panelmodel.Session) []persona.Definition {
	seen := make(map[string]struct{})
	var defs []persona.Definition
	for _, entry := range session.Exchanges() {
		for _, resp := range entry.Responses {
			if _, ok := seen[resp.PersonaID]; ok {
				continue
			}
			seen[resp.PersonaID] = struct{}{}
			if def, ok := m.personas.FindByID(resp.PersonaID); ok {
				defs = append(defs, def)
			}
		}
	}
	return defs
}

func (m *Moderator) panelNames(session panelmodel.Session) []string {
	names := make([]string, 0, len(session.PersonaIDs))
	for _, id := range session.PersonaIDs {
		if def, ok := m.personas.FindByID(id); ok {
			names = append(names, def.Name)
		}
	}
	return names
}

// joinNames renders "A, B, and C" for the intro prompt.
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

type summaryReply struct {
	Summary     string   `json:"summary"`
	KeyInsights []string `json:"key_insights"`
}

// parseSummaryReply extracts {summary, key_insights}, appending the insights
// to the summary body the way the panel UI expects them.
func parseSummaryReply(raw string) (string, []string) {
	trimmed := strings.TrimSpace(raw)

	block := jsonBlockPattern.FindString(trimmed)
	if block != "" {
		var reply summaryReply
		if err := json.Unmarshal([]byte(block), &reply); err == nil && strings.TrimSpace(reply.Summary) != "" {
			text := strings.TrimSpace(reply.Summary)
			if len(reply.KeyInsights) > 0 {
				var sb strings.Builder
				sb.WriteString(text)
				sb.WriteString("\n\nKey Insights:\n")
				for i, insight := range reply.KeyInsights {
					fmt.Fprintf(&sb, "%d. %s\n", i+1, insight)
				}
				text = sb.String()
			}
			return text, reply.KeyInsights
		}
	}

	return trimmed, nil
}

var codeFencePattern = regexp.MustCompile("(?s)```.*?```")

func stripCodeFences(raw string) string {
	return strings.TrimSpace(codeFencePattern.ReplaceAllString(raw, ""))
}
