package panel

import (
	"regexp"
	"strings"

	"github.com/calegria/mindpanel/backend/internal/model/persona"
)

// Professional suffixes are stripped before matching so "Captain Whiskers,
// PhD" matches a plain "Captain Whiskers" mention.
var nameSuffixPattern = regexp.MustCompile(`,\s*(PhD|MD|PsyD|LCSW).*$`)

// Short surnames ("Rex", "Ada") are too easy to hit by accident, so a bare
// surname counts only at four characters or more. Full names and
// first-two-word forms ("Dr. Ada") match regardless.
const minSurnameLen = 4

// DetectReferences scans response text for mentions of the given personas and
// returns the matched ids in input order, deduplicated, excluding selfID.
func DetectReferences(text string, candidates []persona.Definition, selfID string) []string {
	lowered := strings.ToLower(text)
	refs := make([]string, 0, len(candidates))

	for _, def := range candidates {
		if def.ID == selfID || def.Name == "" {
			continue
		}

		clean := nameSuffixPattern.ReplaceAllString(def.Name, "")
		if strings.Contains(lowered, strings.ToLower(clean)) {
			refs = append(refs, def.ID)
			continue
		}

		parts := strings.Fields(clean)
		if len(parts) < 2 {
			continue
		}

		// First two words, e.g. "Dr. Ada" or "Captain Whiskers".
		partial := strings.ToLower(parts[0] + " " + parts[1])
		if strings.Contains(lowered, partial) {
			refs = append(refs, def.ID)
			continue
		}

		surname := parts[len(parts)-1]
		if len(surname) >= minSurnameLen && strings.Contains(lowered, strings.ToLower(surname)) {
			refs = append(refs, def.ID)
		}
	}

	return refs
}
