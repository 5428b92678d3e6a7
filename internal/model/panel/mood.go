package panel

// Mood is the small fixed vocabulary a panelist can express alongside a
// response. Anything outside the vocabulary is coerced to MoodNeutral.
type Mood string

const (
	MoodNeutral   Mood = "neutral"
	MoodThinking  Mood = "thinking"
	MoodAmused    Mood = "amused"
	MoodConcerned Mood = "concerned"
	MoodShocked   Mood = "shocked"
)

var validMoods = map[Mood]struct{}{
	MoodNeutral:   {},
	MoodThinking:  {},
	MoodAmused:    {},
	MoodConcerned: {},
	MoodShocked:   {},
}

// ParseMood maps free-form model output onto the mood vocabulary.
func ParseMood(raw string) Mood {
	if _, ok := validMoods[Mood(raw)]; ok {
		return Mood(raw)
	}
	return MoodNeutral
}

// Valid reports whether the mood belongs to the vocabulary.
func (m Mood) Valid() bool {
	_, ok := validMoods[m]
	return ok
}
