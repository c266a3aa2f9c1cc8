package engine

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
)

const maxWordLen = 100

// Constraints are the letter rules in force for the current turn. They are
// written only by the session's Ruleset.
type Constraints struct {
	Rule           string   `json:"rule,omitempty"`
	FirstLetter    string   `json:"first_letter,omitempty"`
	RequiredLetter string   `json:"required_letter,omitempty"`
	BannedLetters  []string `json:"banned_letters,omitempty"`
	MinLength      int      `json:"min_length,omitempty"`
}

func (c Constraints) clone() Constraints {
	c.BannedLetters = slices.Clone(c.BannedLetters)
	return c
}

type VerdictKind string

const (
	VerdictContinue VerdictKind = "continue"
	VerdictWinner   VerdictKind = "winner"
	VerdictDraw     VerdictKind = "draw"
)

type Verdict struct {
	Kind   VerdictKind
	Winner *Player
	Reason EndReason
}

// Ruleset is the policy of one game variant. Sessions call it without
// knowing which variant they run.
type Ruleset interface {
	Mode() Mode
	Eliminates() bool
	SupportsVirtualPlayers() bool
	Initialize(s *Session) Constraints
	Validate(s *Session, word string) error
	OnAccept(s *Session, word string)
	OnMiss(s *Session, p *Player)
	CheckEnd(s *Session) Verdict
}

// variant supplies the constraint schedule of one mode; everything else is shared.
type variant interface {
	seed(r *ruleset, s *Session) Constraints
	next(r *ruleset, s *Session, newRound bool)
}

type ruleset struct {
	mode       Mode
	settings   Settings
	rng        *rand.Rand
	eliminates bool
	bots       bool
	v          variant
}

func NewRuleset(mode Mode, settings Settings, rng *rand.Rand) (Ruleset, error) {
	r := &ruleset{mode: mode, settings: settings, rng: rng, bots: true}
	switch mode {
	case ModeClassic, ModeHardMode:
		r.v = plain{}
	case ModeBannedLetters:
		r.v = bannedLetters{}
	case ModeChaos:
		r.v = chaos{}
	case ModeChosenFirstLetter:
		r.v = chosenFirstLetter{}
	case ModeRandomFirstLetter:
		r.v = randomFirstLetter{}
	case ModeRequiredLetter:
		r.v = requiredLetter{}
	case ModeElimination:
		r.v, r.eliminates, r.bots = plain{}, true, false
	case ModeMixedElimination:
		r.v, r.eliminates, r.bots = mixed{}, true, false
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return r, nil
}

func (r *ruleset) Mode() Mode                   { return r.mode }
func (r *ruleset) Eliminates() bool             { return r.eliminates }
func (r *ruleset) SupportsVirtualPlayers() bool { return r.bots }

func (r *ruleset) Initialize(s *Session) Constraints {
	return r.v.seed(r, s)
}

// Validate runs the checks in a fixed order and stops at the first failure.
func (r *ruleset) Validate(s *Session, word string) error {
	w := strings.ToLower(word)
	if !isAlpha(w) {
		return reject(word, ReasonNotAlphabetic)
	}
	if !s.dict.Contains(w) {
		return reject(w, ReasonNotInDict)
	}
	if _, used := s.usedWords[w]; used {
		return reject(w, ReasonAlreadyUsed)
	}

	c := s.constraints
	if c.FirstLetter != "" {
		if w[:1] != c.FirstLetter {
			return reject(w, ReasonWrongFirst)
		}
	} else if s.lastWord != "" && w[0] != s.lastWord[len(s.lastWord)-1] {
		return reject(w, ReasonWrongFirst)
	}

	for _, b := range c.BannedLetters {
		if strings.Contains(w, b) {
			return reject(w, ReasonBannedLetter)
		}
	}
	if c.RequiredLetter != "" && !strings.Contains(w, c.RequiredLetter) {
		return reject(w, ReasonMissingLetter)
	}
	if len(w) < c.MinLength {
		return reject(w, ReasonTooShort)
	}
	return nil
}

func (r *ruleset) OnAccept(s *Session, word string) {
	s.lastWord = word
	s.usedWords[word] = struct{}{}
	s.pass()
	r.advance(s, s.closeTurn())
}

// OnMiss skips p, or in eliminating modes removes p once it has missed
// MissLimit turns in a row.
func (r *ruleset) OnMiss(s *Session, p *Player) {
	if r.eliminates && p.Alive {
		p.Misses++
		if p.Misses >= max(r.settings.MissLimit, 1) {
			s.eliminate(p)
		}
	}
	if s.turnOrder.current() == p {
		s.pass()
	}
	r.advance(s, s.closeTurn())
}

func (r *ruleset) advance(s *Session, newRound bool) {
	if newRound && r.settings.ResetUsedWordsEachRound {
		clear(s.usedWords)
	}
	r.v.next(r, s, newRound)
}

func (r *ruleset) CheckEnd(s *Session) Verdict {
	alive := s.turnOrder
	switch {
	case len(alive) == 0:
		return Verdict{Kind: VerdictDraw, Reason: EndDraw}
	case len(alive) == 1:
		return Verdict{Kind: VerdictWinner, Winner: alive[0], Reason: EndWinner}
	case alive.humans() == 0:
		return Verdict{Kind: VerdictDraw, Reason: EndNoHumans}
	default:
		return Verdict{Kind: VerdictContinue}
	}
}

// chainLetter is the letter the next word must start with, if any.
func chainLetter(s *Session) string {
	if s.constraints.FirstLetter != "" {
		return s.constraints.FirstLetter
	}
	if s.lastWord == "" {
		return ""
	}
	return s.lastWord[len(s.lastWord)-1:]
}

func (r *ruleset) rampMinLength(s *Session, newRound bool) {
	if newRound {
		s.constraints.MinLength = r.settings.minLengthFor(s.round)
	}
}

type plain struct{}

func (plain) seed(r *ruleset, s *Session) Constraints {
	return Constraints{Rule: string(r.mode), MinLength: r.settings.minLengthFor(0)}
}

func (plain) next(r *ruleset, s *Session, newRound bool) { r.rampMinLength(s, newRound) }

type bannedLetters struct{}

// Banned letters are fixed for the game. Every accepted word avoids them, so
// the chain letter can never be banned.
func (bannedLetters) seed(r *ruleset, s *Session) Constraints {
	return Constraints{
		Rule:          "banned letters",
		BannedLetters: drawDistinct(r.rng, bannableLetters, 2+r.rng.IntN(3)),
		MinLength:     r.settings.minLengthFor(0),
	}
}

func (bannedLetters) next(r *ruleset, s *Session, newRound bool) { r.rampMinLength(s, newRound) }

type chosenFirstLetter struct{}

func (chosenFirstLetter) seed(r *ruleset, s *Session) Constraints {
	return Constraints{
		Rule:        "chosen first letter",
		FirstLetter: drawLetter(r.rng, commonLetters),
		MinLength:   r.settings.minLengthFor(0),
	}
}

func (chosenFirstLetter) next(r *ruleset, s *Session, newRound bool) { r.rampMinLength(s, newRound) }

type randomFirstLetter struct{}

func (randomFirstLetter) seed(r *ruleset, s *Session) Constraints {
	return Constraints{
		Rule:        "random first letter",
		FirstLetter: drawLetter(r.rng, commonLetters),
		MinLength:   r.settings.minLengthFor(0),
	}
}

func (randomFirstLetter) next(r *ruleset, s *Session, newRound bool) {
	r.rampMinLength(s, newRound)
	s.constraints.FirstLetter = drawLetter(r.rng, commonLetters)
}

type requiredLetter struct{}

func (requiredLetter) seed(r *ruleset, s *Session) Constraints {
	return Constraints{
		Rule:           "required letter",
		RequiredLetter: drawLetter(r.rng, commonLetters),
		MinLength:      r.settings.minLengthFor(0),
	}
}

func (requiredLetter) next(r *ruleset, s *Session, newRound bool) {
	r.rampMinLength(s, newRound)
	s.constraints.RequiredLetter = drawLetter(r.rng, commonLetters)
}

// chaos re-rolls one extra rule for every turn.
type chaos struct{}

func (chaos) seed(r *ruleset, s *Session) Constraints {
	return chaosRoll(r, s, r.settings.minLengthFor(0))
}

func (chaos) next(r *ruleset, s *Session, newRound bool) {
	s.constraints = chaosRoll(r, s, r.settings.minLengthFor(s.round))
}

func chaosRoll(r *ruleset, s *Session, base int) Constraints {
	c := Constraints{Rule: "chaos", MinLength: base}
	switch r.rng.IntN(4) {
	case 1:
		c.Rule = "chaos: required letter"
		c.RequiredLetter = drawLetter(r.rng, commonLetters)
	case 2:
		c.Rule = "chaos: banned letter"
		c.BannedLetters = drawDistinct(r.rng, poolWithout(bannableLetters, chainLetter(s)), 1)
	case 3:
		c.Rule = "chaos: long words"
		c.MinLength = base + 2
	}
	return c
}

// mixed rolls a new rule at every round boundary.
type mixed struct{}

func (mixed) seed(r *ruleset, s *Session) Constraints {
	return mixedRoll(r, s, r.settings.minLengthFor(0))
}

func (mixed) next(r *ruleset, s *Session, newRound bool) {
	if newRound {
		s.constraints = mixedRoll(r, s, r.settings.minLengthFor(s.round))
	}
}

func mixedRoll(r *ruleset, s *Session, base int) Constraints {
	c := Constraints{Rule: "mixed: classic", MinLength: base}
	switch r.rng.IntN(4) {
	case 1:
		c.Rule = "mixed: banned letters"
		c.BannedLetters = drawDistinct(r.rng, poolWithout(bannableLetters, chainLetter(s)), 2)
	case 2:
		c.Rule = "mixed: required letter"
		c.RequiredLetter = drawLetter(r.rng, commonLetters)
	case 3:
		c.Rule = "mixed: long words"
		c.MinLength = base + 3
	}
	return c
}

func poolWithout(pool, letter string) string {
	if letter == "" {
		return pool
	}
	return strings.ReplaceAll(pool, letter, "")
}

func isAlpha(s string) bool {
	if len(s) == 0 || len(s) > maxWordLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}
