package engine

import (
	"cmp"
	"math/rand/v2"
	"slices"
)

const (
	defaultScanLimit = 2000
	defaultShortlist = 5
)

// Agent plays virtual seats.
type Agent struct {
	// ScanLimit caps the dictionary candidates looked at per turn.
	ScanLimit int
	// Shortlist is how many of the shortest legal words the pick is drawn from.
	Shortlist int

	rng *rand.Rand
}

func NewAgent(rng *rand.Rand) *Agent {
	return &Agent{ScanLimit: defaultScanLimit, Shortlist: defaultShortlist, rng: rng}
}

// ChooseWord returns a word the session's ruleset would accept right now, or
// false when none was found within the scan limit. With no chain letter to
// follow it tries the common letters in random order.
func (a *Agent) ChooseWord(s *Session) (string, bool) {
	prefixes := []string{chainLetter(s)}
	if prefixes[0] == "" {
		prefixes = drawDistinct(a.rng, commonLetters, len(commonLetters))
	}
	for _, prefix := range prefixes {
		if w, ok := a.pick(s, prefix); ok {
			return w, true
		}
	}
	return "", false
}

func (a *Agent) pick(s *Session, prefix string) (string, bool) {
	var legal []string
	for _, w := range s.dict.WordsWithPrefix(prefix, a.ScanLimit) {
		if s.rules.Validate(s, w) == nil {
			legal = append(legal, w)
		}
	}
	if len(legal) == 0 {
		return "", false
	}

	slices.SortStableFunc(legal, func(x, y string) int { return cmp.Compare(len(x), len(y)) })
	n := min(len(legal), max(a.Shortlist, 1))
	return legal[a.rng.IntN(n)], true
}
