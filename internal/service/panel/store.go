package panel

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
	"github.com/calegria/mindpanel/backend/internal/model/persona"
)

// SessionStore owns all mutable panel session state. Sessions live in process
// memory only; callers get defensive copies and mutate through store methods.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*panelmodel.Session
	turns    map[string]*semaphore.Weighted
	personas persona.Store
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionStore builds an empty store validating compositions against the
// given persona registry. ttl bounds how long an idle session is retained.
func NewSessionStore(personas persona.Store, ttl time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*panelmodel.Session),
		turns:    make(map[string]*semaphore.Weighted),
		personas: personas,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create provisions a session for the given composition. The persona set is
// fixed for the session's lifetime.
func (s *SessionStore) Create(personaIDs []string, includeModerator bool, configID string) (panelmodel.Session, error) {
	if len(personaIDs) < panelmodel.MinPanelSize || len(personaIDs) > panelmodel.MaxPanelSize {
		return panelmodel.Session{}, fmt.Errorf("%w: got %d personas", ErrInvalidComposition, len(personaIDs))
	}

	seen := make(map[string]struct{}, len(personaIDs))
	for _, id := range personaIDs {
		if _, ok := s.personas.FindByID(id); !ok {
			return panelmodel.Session{}, fmt.Errorf("%w: unknown persona %q", ErrInvalidComposition, id)
		}
		if _, dup := seen[id]; dup {
			return panelmodel.Session{}, fmt.Errorf("%w: duplicate persona %q", ErrInvalidComposition, id)
		}
		seen[id] = struct{}{}
	}

	if configID == "" {
		configID = "custom"
	}

	now := s.now()
	session := &panelmodel.Session{
		ID:               "panel-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		PanelConfigID:    configID,
		PersonaIDs:       append([]string(nil), personaIDs...),
		IncludeModerator: includeModerator,
		Status:           panelmodel.StatusActive,
		CreatedAt:        now,
		LastUpdatedAt:    now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.turns[session.ID] = semaphore.NewWeighted(1)
	s.mu.Unlock()

	s.logger.Info("created panel session",
		zap.String("session_id", session.ID),
		zap.Int("personas", len(personaIDs)),
		zap.Bool("moderator", includeModerator))

	return copySession(session), nil
}

// Get returns a snapshot of the session.
func (s *SessionStore) Get(id string) (panelmodel.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return panelmodel.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return copySession(session), nil
}

// BeginTurn serializes turns per session: a second concurrent turn is
// rejected rather than queued. EndTurn must be called once the turn settles.
func (s *SessionStore) BeginTurn(id string) error {
	s.mu.RLock()
	sem, ok := s.turns[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if !sem.TryAcquire(1) {
		return fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	return nil
}

// EndTurn releases the per-session turn slot.
func (s *SessionStore) EndTurn(id string) {
	s.mu.RLock()
	sem, ok := s.turns[id]
	s.mu.RUnlock()
	if ok {
		sem.Release(1)
	}
}

// BeginExchange opens a history entry for one user message. Responses
// produced during the turn are appended to this entry.
func (s *SessionStore) BeginExchange(id, userMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.activeLocked(id)
	if err != nil {
		return err
	}

	session.History = append(session.History, panelmodel.Entry{UserMessage: userMessage})
	session.LastUpdatedAt = s.now()
	return nil
}

// AppendResponse records one panelist response into the open exchange
// immediately, so later panelists in the same turn can see it.
func (s *SessionStore) AppendResponse(id string, resp panelmodel.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.activeLocked(id)
	if err != nil {
		return err
	}
	if len(session.History) == 0 {
		return fmt.Errorf("session %s has no open exchange", id)
	}

	last := &session.History[len(session.History)-1]
	last.Responses = append(last.Responses, resp)
	session.LastUpdatedAt = s.now()
	return nil
}

// AppendModeratorEntry records a moderator intro or summary as its own
// history entry tagged with the reserved moderator persona id.
func (s *SessionStore) AppendModeratorEntry(id string, resp panelmodel.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.activeLocked(id)
	if err != nil {
		return err
	}

	session.History = append(session.History, panelmodel.Entry{Responses: []panelmodel.Response{resp}})
	session.LastUpdatedAt = s.now()
	return nil
}

// CompleteExchange bumps the exchange counter exactly once per finished turn,
// independent of how many personas responded.
func (s *SessionStore) CompleteExchange(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.activeLocked(id)
	if err != nil {
		return 0, err
	}

	session.ExchangeCount++
	session.LastUpdatedAt = s.now()
	return session.ExchangeCount, nil
}

// End marks the session ended. Ending an already-ended session is a no-op.
func (s *SessionStore) End(id string) (panelmodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return panelmodel.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if session.Status != panelmodel.StatusEnded {
		session.Status = panelmodel.StatusEnded
		session.LastUpdatedAt = s.now()
		s.logger.Info("ended panel session",
			zap.String("session_id", id),
			zap.Int("exchanges", session.ExchangeCount))
	}
	return copySession(session), nil
}

// ListActive returns the ids of sessions that have not ended.
func (s *SessionStore) ListActive() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id, session := range s.sessions {
		if session.Status == panelmodel.StatusActive {
			ids = append(ids, id)
		}
	}
	return ids
}

// SweepExpired evicts sessions idle past the TTL, ended or not, and returns
// how many were removed. Time-based expiry is a retention policy of the
// store's owner; the engine itself never expires sessions mid-operation.
func (s *SessionStore) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if now.Sub(session.LastUpdatedAt) > s.ttl {
			delete(s.sessions, id)
			delete(s.turns, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("swept expired panel sessions", zap.Int("removed", removed))
	}
	return removed
}

func (s *SessionStore) activeLocked(id string) (*panelmodel.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if session.Status != panelmodel.StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotActive, id)
	}
	return session, nil
}

func copySession(session *panelmodel.Session) panelmodel.Session {
	out := *session
	out.PersonaIDs = append([]string(nil), session.PersonaIDs...)
	out.History = make([]panelmodel.Entry, len(session.History))
	for i, entry := range session.History {
		out.History[i] = panelmodel.Entry{
			UserMessage: entry.UserMessage,
			Responses:   append([]panelmodel.Response(nil), entry.Responses...),
		}
	}
	return out
}
