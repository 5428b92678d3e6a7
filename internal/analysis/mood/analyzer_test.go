package mood

import "testing"

func TestAnalyzeConcernedResponse(t *testing.T) {
	decision := Analyze("I'm concerned about how long you have been struggling with this.")
	if decision.Mood != Concerned {
		t.Fatalf("expected concerned mood, got %s", decision.Mood)
	}
	if decision.Score == 0 {
		t.Fatal("expected a positive keyword score")
	}
}

func TestAnalyzeAmusedResponse(t *testing.T) {
	decision := Analyze("Haha, how charming! That's rich coming from a cat.")
	if decision.Mood != Amused {
		t.Fatalf("expected amused mood, got %s", decision.Mood)
	}
}

func TestAnalyzePlainResponseStaysNeutral(t *testing.T) {
	decision := Analyze("Thank you for sharing that with the panel today.")
	if decision.Mood != Neutral {
		t.Fatalf("expected neutral mood, got %s", decision.Mood)
	}
}
