package panel

import (
	"errors"
	"strings"
	"testing"
	"time"

	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
)

func TestCreateValidatesComposition(t *testing.T) {
	store := newTestStore()

	cases := []struct {
		name string
		ids  []string
	}{
		{"too few", []string{"dr-ada-sterling"}},
		{"too many", []string{"dr-sigmund-2000", "dr-ada-sterling", "dr-rex-hardcastle", "captain-whiskers", "dr-ada-sterling"}},
		{"unknown persona", []string{"dr-ada-sterling", "dr-nobody"}},
		{"duplicate persona", []string{"dr-ada-sterling", "dr-ada-sterling"}},
	}
	for _, tc := range cases {
		if _, err := store.Create(tc.ids, false, ""); !errors.Is(err, ErrInvalidComposition) {
			t.Fatalf("%s: expected ErrInvalidComposition, got %v", tc.name, err)
		}
	}
}

func TestCreateAssignsPanelID(t *testing.T) {
	store := newTestStore()

	session, err := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, true, "balanced")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.HasPrefix(session.ID, "panel-") {
		t.Fatalf("expected panel- prefix, got %q", session.ID)
	}
	if len(session.ID) != len("panel-")+12 {
		t.Fatalf("expected 12 hex chars after prefix, got %q", session.ID)
	}
	if session.Status != panelmodel.StatusActive {
		t.Fatalf("expected active status, got %q", session.Status)
	}
	if session.ExchangeCount != 0 {
		t.Fatalf("expected zero exchanges, got %d", session.ExchangeCount)
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	store := newTestStore()

	session, err := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, false, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	snap, err := store.Get(session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	snap.PersonaIDs[0] = "mutated"
	snap.Status = panelmodel.StatusEnded

	again, err := store.Get(session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if again.PersonaIDs[0] != "dr-ada-sterling" || again.Status != panelmodel.StatusActive {
		t.Fatal("mutating a snapshot leaked into the store")
	}
}

func TestGetUnknownSession(t *testing.T) {
	store := newTestStore()
	if _, err := store.Get("panel-missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestBeginTurnRejectsConcurrent(t *testing.T) {
	store := newTestStore()
	session, _ := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, false, "")

	if err := store.BeginTurn(session.ID); err != nil {
		t.Fatalf("first turn should acquire: %v", err)
	}
	if err := store.BeginTurn(session.ID); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	store.EndTurn(session.ID)
	if err := store.BeginTurn(session.ID); err != nil {
		t.Fatalf("turn slot should be free again: %v", err)
	}
}

func TestExchangeLifecycle(t *testing.T) {
	store := newTestStore()
	session, _ := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, false, "")

	if err := store.BeginExchange(session.ID, "hello panel"); err != nil {
		t.Fatalf("begin exchange: %v", err)
	}
	resp := panelmodel.Response{PersonaID: "dr-ada-sterling", PersonaName: "Dr. Ada Sterling", Text: "hi"}
	if err := store.AppendResponse(session.ID, resp); err != nil {
		t.Fatalf("append response: %v", err)
	}

	// Same-turn responses must be visible before the exchange completes.
	snap, _ := store.Get(session.ID)
	if snap.ExchangeCount != 0 {
		t.Fatalf("count must not move before CompleteExchange, got %d", snap.ExchangeCount)
	}
	if len(snap.History) != 1 || len(snap.History[0].Responses) != 1 {
		t.Fatalf("expected one open exchange with one response, got %+v", snap.History)
	}

	count, err := store.CompleteExchange(session.ID)
	if err != nil {
		t.Fatalf("complete exchange: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}

func TestAppendModeratorEntry(t *testing.T) {
	store := newTestStore()
	session, _ := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, true, "")

	intro := panelmodel.Response{PersonaID: panelmodel.ModeratorPersonaID, PersonaName: "Dr. Panel", Text: "welcome"}
	if err := store.AppendModeratorEntry(session.ID, intro); err != nil {
		t.Fatalf("append moderator entry: %v", err)
	}

	snap, _ := store.Get(session.ID)
	if len(snap.History) != 1 || !snap.History[0].IsModerator() {
		t.Fatalf("expected one moderator entry, got %+v", snap.History)
	}
	// Moderator entries never count as exchanges.
	if got := snap.Exchanges(); len(got) != 0 {
		t.Fatalf("moderator entry leaked into exchanges: %+v", got)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	store := newTestStore()
	session, _ := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, false, "")

	first, err := store.End(session.ID)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	second, err := store.End(session.ID)
	if err != nil {
		t.Fatalf("second end failed: %v", err)
	}
	if first.Status != panelmodel.StatusEnded || second.Status != panelmodel.StatusEnded {
		t.Fatal("both ends should report ended status")
	}

	if err := store.BeginExchange(session.ID, "more"); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive on ended session, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	store := newTestStore()
	session, _ := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, false, "")

	base := time.Now().UTC()
	store.now = func() time.Time { return base.Add(31 * time.Minute) }

	if removed := store.SweepExpired(); removed != 1 {
		t.Fatalf("expected one sweep, got %d", removed)
	}
	if _, err := store.Get(session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("swept session should be gone, got %v", err)
	}
}

func TestSweepKeepsFreshSessions(t *testing.T) {
	store := newTestStore()
	session, _ := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, false, "")

	if removed := store.SweepExpired(); removed != 0 {
		t.Fatalf("fresh session must survive the sweep, removed %d", removed)
	}
	if _, err := store.Get(session.ID); err != nil {
		t.Fatalf("session should still exist: %v", err)
	}
}

func TestListActive(t *testing.T) {
	store := newTestStore()
	a, _ := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, false, "")
	b, _ := store.Create([]string{"dr-rex-hardcastle", "dr-ada-sterling"}, false, "")
	store.End(b.ID)

	active := store.ListActive()
	if len(active) != 1 || active[0] != a.ID {
		t.Fatalf("expected only %s active, got %v", a.ID, active)
	}
}
