package panel

import (
	"fmt"
	"strings"

	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
	"github.com/calegria/mindpanel/backend/internal/model/persona"
)

// PromptContext is the assembled prompt for one persona's completion call,
// split into the system and user slots of the completion chain.
type PromptContext struct {
	System string
	User   string
}

// ContextBuilder assembles bounded, deterministic prompt contexts from
// session history. Identical inputs always produce identical output.
type ContextBuilder struct {
	personas          persona.Store
	maxPriorExchanges int
	tokenBudget       int
	counter           tokenCounter
}

// NewContextBuilder caps context at maxPriorExchanges prior turns and
// tokenBudget tokens overall.
func NewContextBuilder(personas persona.Store, maxPriorExchanges, tokenBudget int) *ContextBuilder {
	return &ContextBuilder{
		personas:          personas,
		maxPriorExchanges: maxPriorExchanges,
		tokenBudget:       tokenBudget,
	}
}

// Build produces the prompt for target within the session's current turn.
// The session snapshot must already contain the open exchange for
// userMessage; responses recorded there are surfaced as same-turn context.
func (b *ContextBuilder) Build(session panelmodel.Session, target persona.Definition, userMessage string) (PromptContext, error) {
	if strings.TrimSpace(userMessage) == "" {
		return PromptContext{}, ErrEmptyUserMessage
	}

	system := b.buildSystem(session, target)

	exchanges := session.Exchanges()
	var current panelmodel.Entry
	prior := exchanges
	if n := len(exchanges); n > 0 && exchanges[n-1].UserMessage == userMessage {
		current = exchanges[n-1]
		prior = exchanges[:n-1]
	}
	if len(prior) > b.maxPriorExchanges {
		prior = prior[len(prior)-b.maxPriorExchanges:]
	}

	// Shed oldest prior exchanges until the prompt fits the token budget.
	// The user message and same-turn responses are never dropped.
	for {
		user := b.buildUser(userMessage, prior, current)
		if b.counter.Count(system)+b.counter.Count(user) <= b.tokenBudget || len(prior) == 0 {
			return PromptContext{System: system, User: user}, nil
		}
		prior = prior[1:]
	}
}

func (b *ContextBuilder) buildSystem(session panelmodel.Session, target persona.Definition) string {
	var sb strings.Builder
	sb.WriteString(target.SystemPrompt)
	sb.WriteString("\n\nPANEL DISCUSSION CONTEXT:\n")
	fmt.Fprintf(&sb, "You are participating in a panel discussion with %d personas.\n", len(session.PersonaIDs))
	sb.WriteString("Your goal is to provide your unique perspective while being aware of what others have said.\n")

	names := b.coPanelistNames(session, target.ID)
	if len(names) > 0 {
		fmt.Fprintf(&sb, "Your co-panelists are: %s.\n", strings.Join(names, ", "))
		sb.WriteString("When you agree or disagree with a co-panelist, reference them by name.\n")
	}

	sb.WriteString("\nIMPORTANT: You MUST respond in valid JSON format like this:\n")
	sb.WriteString(`{"response": "Your response here (2-4 sentences)", "mood": "thinking"}` + "\n")
	sb.WriteString(`The "mood" field must be one of: "thinking", "amused", "concerned", "shocked", "neutral".`)
	return sb.String()
}

func (b *ContextBuilder) buildUser(userMessage string, prior []panelmodel.Entry, current panelmodel.Entry) string {
	var sb strings.Builder

	if len(prior) > 0 {
		sb.WriteString("EARLIER IN THE DISCUSSION:\n")
		for _, entry := range prior {
			fmt.Fprintf(&sb, "The user said: %q\n", entry.UserMessage)
			for _, resp := range entry.Responses {
				fmt.Fprintf(&sb, "- %s said: %q\n", resp.PersonaName, resp.Text)
			}
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "USER'S MESSAGE:\n%s\n\n", userMessage)

	if len(current.Responses) > 0 {
		sb.WriteString("PREVIOUS PANELIST RESPONSES:\n")
		sb.WriteString("The following panel members have already responded to this message:\n")
		for _, resp := range current.Responses {
			fmt.Fprintf(&sb, "- %s said: %q\n", resp.PersonaName, resp.Text)
		}
		sb.WriteString("\nINSTRUCTIONS: You may reference, build upon, challenge, or complement ")
		sb.WriteString("the insights from other panelists by mentioning them by name. ")
		sb.WriteString("However, maintain your unique perspective and personality.")
	} else {
		sb.WriteString("PREVIOUS RESPONSES: None - you are the first panelist to respond.")
	}

	return sb.String()
}

// coPanelistNames resolves canonical display names from the registry in
// session order, never from free text.
func (b *ContextBuilder) coPanelistNames(session panelmodel.Session, selfID string) []string {
	names := make([]string, 0, len(session.PersonaIDs)-1)
	for _, id := range session.PersonaIDs {
		if id == selfID {
			continue
		}
		if def, ok := b.personas.FindByID(id); ok {
			names = append(names, def.Name)
		}
	}
	return names
}
