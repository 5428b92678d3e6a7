package panel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	panelmodel "github.com/calegria/mindpanel/backend/internal/model/panel"
)

func newTestModerator(completion CompletionService) (*Moderator, *SessionStore) {
	personas := testPersonas()
	store := NewSessionStore(personas, 30*time.Minute, zap.NewNop())
	return NewModerator(completion, testRegistry(), personas, store, 3, time.Second, zap.NewNop()), store
}

func TestIntroRecordsModeratorEntry(t *testing.T) {
	fake := &fakeCompletion{reply: constantReply("Welcome, today Dr. Sigmund 2000 and Dr. Ada Sterling join us.")}
	mod, store := newTestModerator(fake)

	session, _ := store.Create([]string{"dr-sigmund-2000", "dr-ada-sterling"}, true, "")
	intro, err := mod.Intro(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("intro failed: %v", err)
	}
	if intro.PersonaID != panelmodel.ModeratorPersonaID {
		t.Fatalf("intro tagged with %q", intro.PersonaID)
	}
	if intro.Mood != panelmodel.MoodNeutral {
		t.Fatalf("moderator mood must be neutral, got %q", intro.Mood)
	}

	snap, _ := store.Get(session.ID)
	if len(snap.History) != 1 || !snap.History[0].IsModerator() {
		t.Fatalf("intro not recorded as moderator entry: %+v", snap.History)
	}
	if snap.ExchangeCount != 0 {
		t.Fatalf("intro must not count as an exchange, got %d", snap.ExchangeCount)
	}
}

func TestIntroFallsBackWhenModelFails(t *testing.T) {
	fake := &fakeCompletion{reply: func(int, string, string) (string, error) {
		return "", errors.New("model down")
	}}
	mod, store := newTestModerator(fake)

	session, _ := store.Create([]string{"dr-sigmund-2000", "dr-ada-sterling"}, true, "")
	intro, err := mod.Intro(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("a failed model must not fail the intro: %v", err)
	}
	if intro.Text != introFallback {
		t.Fatalf("expected fallback text, got %q", intro.Text)
	}
}

func TestIntroRunsAtMostOnce(t *testing.T) {
	fake := &fakeCompletion{reply: constantReply("Welcome!")}
	mod, store := newTestModerator(fake)

	session, _ := store.Create([]string{"dr-sigmund-2000", "dr-ada-sterling"}, true, "")
	if _, err := mod.Intro(context.Background(), session.ID); err != nil {
		t.Fatalf("first intro: %v", err)
	}
	if _, err := mod.Intro(context.Background(), session.ID); err == nil {
		t.Fatal("second intro must be refused")
	}
}

func TestShouldSummarize(t *testing.T) {
	mod, _ := newTestModerator(&fakeCompletion{reply: constantReply("")})

	session := panelmodel.Session{Status: panelmodel.StatusActive, ExchangeCount: 2}
	if mod.ShouldSummarize(session) {
		t.Fatal("below threshold must not suggest a summary")
	}
	session.ExchangeCount = 3
	if !mod.ShouldSummarize(session) {
		t.Fatal("at threshold the summary is due")
	}
	session.ExchangeCount = 7
	if !mod.ShouldSummarize(session) {
		t.Fatal("past threshold the summary stays due")
	}
	session.Status = panelmodel.StatusEnded
	if mod.ShouldSummarize(session) {
		t.Fatal("ended sessions never suggest a summary")
	}
}

func TestSummaryRequiresHistory(t *testing.T) {
	fake := &fakeCompletion{reply: constantReply("{}")}
	mod, store := newTestModerator(fake)

	session, _ := store.Create([]string{"dr-sigmund-2000", "dr-ada-sterling"}, true, "")
	if _, _, err := mod.Summary(context.Background(), session.ID); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func seedExchange(t *testing.T, store *SessionStore, sessionID, message string, responses ...panelmodel.Response) {
	t.Helper()
	if err := store.BeginExchange(sessionID, message); err != nil {
		t.Fatalf("begin exchange: %v", err)
	}
	for _, resp := range responses {
		if err := store.AppendResponse(sessionID, resp); err != nil {
			t.Fatalf("append response: %v", err)
		}
	}
	if _, err := store.CompleteExchange(sessionID); err != nil {
		t.Fatalf("complete exchange: %v", err)
	}
}

func TestSummaryParsesInsightsAndCredits(t *testing.T) {
	raw := `{"summary": "Dr. Ada Sterling grounded the discussion in evidence.", "key_insights": ["Name the distortion", "Practice daily"]}`
	fake := &fakeCompletion{reply: constantReply(raw)}
	mod, store := newTestModerator(fake)

	session, _ := store.Create([]string{"dr-sigmund-2000", "dr-ada-sterling"}, true, "")
	seedExchange(t, store, session.ID, "I doubt myself",
		panelmodel.Response{PersonaID: "dr-sigmund-2000", PersonaName: "Dr. Sigmund 2000", Text: "Defrag your doubts."},
		panelmodel.Response{PersonaID: "dr-ada-sterling", PersonaName: "Dr. Ada Sterling", Text: "Test the thought."},
	)

	summary, insights, err := mod.Summary(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("expected 2 insights, got %v", insights)
	}
	if !strings.Contains(summary.Text, "Key Insights:") || !strings.Contains(summary.Text, "1. Name the distortion") {
		t.Fatalf("insights not folded into the summary text:\n%s", summary.Text)
	}
	if len(summary.References) != 1 || summary.References[0] != "dr-ada-sterling" {
		t.Fatalf("expected credit for dr-ada-sterling, got %v", summary.References)
	}

	snap, _ := store.Get(session.ID)
	last := snap.History[len(snap.History)-1]
	if !last.IsModerator() {
		t.Fatal("summary must be recorded as a moderator entry")
	}
	if snap.ExchangeCount != 1 {
		t.Fatalf("summary must not bump the count, got %d", snap.ExchangeCount)
	}
}

func TestSummaryFallsBackWhenModelFails(t *testing.T) {
	fake := &fakeCompletion{reply: func(int, string, string) (string, error) {
		return "", errors.New("model down")
	}}
	mod, store := newTestModerator(fake)

	session, _ := store.Create([]string{"dr-sigmund-2000", "dr-ada-sterling"}, true, "")
	seedExchange(t, store, session.ID, "help",
		panelmodel.Response{PersonaID: "dr-ada-sterling", PersonaName: "Dr. Ada Sterling", Text: "Start here."},
	)

	summary, insights, err := mod.Summary(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("a failed model must not fail the summary: %v", err)
	}
	if summary.Text != summaryFallback {
		t.Fatalf("expected fallback summary, got %q", summary.Text)
	}
	if len(insights) != 0 {
		t.Fatalf("fallback carries no insights, got %v", insights)
	}
}

func TestSummaryOnlyCreditsContributors(t *testing.T) {
	// The model names a panelist who never spoke; only actual speakers are
	// candidates for credit.
	raw := `{"summary": "Captain Whiskers and Dr. Ada Sterling both made points.", "key_insights": []}`
	fake := &fakeCompletion{reply: constantReply(raw)}
	mod, store := newTestModerator(fake)

	session, _ := store.Create([]string{"dr-ada-sterling", "captain-whiskers"}, true, "")
	seedExchange(t, store, session.ID, "help",
		panelmodel.Response{PersonaID: "dr-ada-sterling", PersonaName: "Dr. Ada Sterling", Text: "Start here."},
	)

	summary, _, err := mod.Summary(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if len(summary.References) != 1 || summary.References[0] != "dr-ada-sterling" {
		t.Fatalf("only speakers may be credited, got %v", summary.References)
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := stripCodeFences("Welcome aboard"); got != "Welcome aboard" {
		t.Fatalf("plain text mangled: %q", got)
	}
	if got := stripCodeFences("```json\n{}\n```\nWelcome aboard"); got != "Welcome aboard" {
		t.Fatalf("fence not stripped: %q", got)
	}
}
