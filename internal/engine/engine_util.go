package engine

import (
	"math/rand/v2"
	"time"
)

// Settings are the per-mode tunables of a session. Every timing and cap the
// state machine uses comes from here.
type Settings struct {
	MinPlayers int
	MaxPlayers int

	// RaisedMaxPlayers is the cap an admin can lift MaxPlayers to while joining.
	RaisedMaxPlayers int

	JoinWindow    time.Duration
	MaxJoinWindow time.Duration

	// Turn time starts at TurnTime and drops by TurnTimeStep each round down to MinTurnTime.
	TurnTime     time.Duration
	TurnTimeStep time.Duration
	MinTurnTime  time.Duration

	// Minimum word length starts at MinLength and grows by MinLengthStep each round up to MaxMinLength.
	MinLength     int
	MinLengthStep int
	MaxMinLength  int

	// VirtualDelay is how long a bot seat "thinks" before answering.
	VirtualDelay time.Duration

	// MissLimit is how many turns in a row a player may miss before an
	// eliminating mode removes it. Zero means one.
	MissLimit int

	// IdleLimit removes a player after this many consecutive timeouts in
	// modes that do not eliminate. Zero disables it.
	IdleLimit int

	// MaxDuration ends a running game after this long. Zero disables it.
	MaxDuration time.Duration

	ResetUsedWordsEachRound bool
}

func DefaultSettings(mode Mode) Settings {
	s := Settings{
		MinPlayers:       2,
		MaxPlayers:       50,
		RaisedMaxPlayers: 300,
		JoinWindow:       60 * time.Second,
		MaxJoinWindow:    300 * time.Second,
		TurnTime:         40 * time.Second,
		TurnTimeStep:     5 * time.Second,
		MinTurnTime:      20 * time.Second,
		MinLength:        3,
		MinLengthStep:    1,
		MaxMinLength:     10,
		VirtualDelay:     2 * time.Second,
		MissLimit:        1,
		IdleLimit:        3,
		MaxDuration:      time.Hour,
	}
	switch mode {
	case ModeHardMode:
		s.TurnTime, s.TurnTimeStep, s.MinTurnTime = 30*time.Second, 5*time.Second, 10*time.Second
		s.MinLength, s.MinLengthStep, s.MaxMinLength = 5, 2, 15
	case ModeBannedLetters, ModeChaos, ModeChosenFirstLetter, ModeRequiredLetter, ModeRandomFirstLetter:
		s.MinLengthStep = 0
	case ModeElimination:
		s.MaxPlayers, s.RaisedMaxPlayers = 300, 1000
		s.TurnTime, s.MinTurnTime = 30*time.Second, 15*time.Second
		s.MinLengthStep = 0
		s.IdleLimit = 0
	case ModeMixedElimination:
		s.MaxPlayers, s.RaisedMaxPlayers = 300, 1000
		s.TurnTime, s.MinTurnTime = 30*time.Second, 15*time.Second
		s.MinLengthStep = 0
		s.IdleLimit = 0
		s.ResetUsedWordsEachRound = true
	}
	return s
}

// turnTimeFor is the turn time for a zero-based round number.
func (s Settings) turnTimeFor(round int) time.Duration {
	d := s.TurnTime - time.Duration(round)*s.TurnTimeStep
	if d < s.MinTurnTime {
		d = s.MinTurnTime
	}
	return d
}

func (s Settings) minLengthFor(round int) int {
	n := s.MinLength + round*s.MinLengthStep
	if s.MaxMinLength > 0 && n > s.MaxMinLength {
		n = s.MaxMinLength
	}
	return n
}

// Letter pools for random draws. Rare letters are left out so a drawn
// constraint never makes a turn unanswerable with an ordinary word list.
const (
	commonLetters   = "abcdefghilmnoprstw"
	bannableLetters = "bcdfghklmnprstw"
)

func drawLetter(rng *rand.Rand, pool string) string {
	return string(pool[rng.IntN(len(pool))])
}

// drawDistinct picks n different letters from pool.
func drawDistinct(rng *rand.Rand, pool string, n int) []string {
	idx := rng.Perm(len(pool))
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]string, 0, n)
	for _, i := range idx[:n] {
		out = append(out, string(pool[i]))
	}
	return out
}
