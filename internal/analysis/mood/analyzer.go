package mood

import "strings"

// Label mirrors the mood vocabulary panel responses carry. Kept as its own
// type so the analyzer stays free of the panel model.
type Label string

const (
	Neutral   Label = "neutral"
	Thinking  Label = "thinking"
	Amused    Label = "amused"
	Concerned Label = "concerned"
	Shocked   Label = "shocked"
)

// Decision reports the inferred mood and the keyword score behind it.
type Decision struct {
	Mood  Label
	Score int
}

var keywordBuckets = map[Label][]string{
	Thinking: {
		"let me think", "i wonder", "consider", "reflect", "ponder", "hmm",
		"interesting question", "on one hand", "perhaps", "it seems", "suppose",
		"let's unpack", "worth exploring", "i suspect",
	},
	Amused: {
		"haha", "amusing", "funny", "ironic", "chuckle", "delightful", "lol",
		"how charming", "that's rich", "i must laugh", "tickles", "witty",
	},
	Concerned: {
		"worried", "concerning", "troubles me", "i'm concerned", "careful",
		"be gentle with yourself", "that sounds hard", "difficult", "painful",
		"struggling", "anxious", "warning sign", "take care",
	},
	Shocked: {
		"shocking", "can't believe", "cannot believe", "astonishing", "what?!",
		"unbelievable", "never heard", "alarming", "goodness", "oh my",
	},
}

// Punctuation-heavy replies lean toward the excitable moods.
var punctuationBoost = map[Label]int{
	Amused:  1,
	Shocked: 2,
}

// Analyze infers a display mood from response text. Used when the model's
// structured output omits or mangles the mood field.
func Analyze(text string) Decision {
	lowered := strings.ToLower(text)

	best := Decision{Mood: Neutral, Score: 0}
	for label, keywords := range keywordBuckets {
		score := 0
		for _, kw := range keywords {
			score += strings.Count(lowered, kw)
		}
		if boost, ok := punctuationBoost[label]; ok && strings.Contains(text, "!") {
			if score > 0 {
				score += boost
			}
		}
		if score > best.Score {
			best = Decision{Mood: label, Score: score}
		}
	}

	return best
}
