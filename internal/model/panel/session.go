package panel

import "time"

// ModeratorPersonaID tags history entries produced by the moderator rather
// than a panelist.
const ModeratorPersonaID = "moderator-dr-panel"

// Status describes the session lifecycle.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Response is a single panelist (or moderator) contribution. Immutable once
// appended to a session.
type Response struct {
	PersonaID   string    `json:"personaId"`
	PersonaName string    `json:"personaName"`
	Text        string    `json:"response"`
	Mood        Mood      `json:"mood"`
	References  []string  `json:"references"`
	AsciiArt    string    `json:"asciiArt,omitempty"`
	Sequence    int       `json:"sequence"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsModerator reports whether the response came from the moderator.
func (r Response) IsModerator() bool {
	return r.PersonaID == ModeratorPersonaID
}

// Entry groups the responses produced for one user message. Moderator
// intros and summaries are recorded as entries with an empty user message
// whose single response carries ModeratorPersonaID.
type Entry struct {
	UserMessage string     `json:"userMessage,omitempty"`
	Responses   []Response `json:"responses"`
}

// IsModerator reports whether the entry holds moderator output only.
func (e Entry) IsModerator() bool {
	return len(e.Responses) == 1 && e.Responses[0].IsModerator()
}

// Session captures one panel discussion. History is append-only; entries are
// never mutated or removed once recorded.
type Session struct {
	ID               string    `json:"sessionId"`
	PanelConfigID    string    `json:"panelConfigId"`
	PersonaIDs       []string  `json:"personaIds"`
	IncludeModerator bool      `json:"includeModerator"`
	ExchangeCount    int       `json:"exchangeCount"`
	History          []Entry   `json:"discussionHistory"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	LastUpdatedAt    time.Time `json:"lastUpdatedAt"`
}

// Exchanges returns the panelist entries in order, skipping moderator-only
// entries.
func (s *Session) Exchanges() []Entry {
	out := make([]Entry, 0, len(s.History))
	for _, e := range s.History {
		if !e.IsModerator() {
			out = append(out, e)
		}
	}
	return out
}

// ResponseCount totals the panelist responses recorded across all exchanges.
func (s *Session) ResponseCount() int {
	n := 0
	for _, e := range s.History {
		if e.IsModerator() {
			continue
		}
		n += len(e.Responses)
	}
	return n
}
