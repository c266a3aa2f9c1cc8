package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgent_ChooseWord(t *testing.T) {
	s := newSession(t, ModeClassic, nil)
	startWith(t, s, "a", "b")
	s.lastWord = "apple"
	s.usedWords["egg"] = struct{}{}

	agent := NewAgent(rand.New(rand.NewPCG(5, 6)))
	agent.Shortlist = 1
	w, ok := agent.ChooseWord(s)
	require.True(t, ok)
	assert.Contains(t, []string{"eel", "ear", "end"}, w, "prefers the shortest legal words")
	assert.NoError(t, s.rules.Validate(s, w))
}

func TestAgent_GivesUp(t *testing.T) {
	s := newSession(t, ModeClassic, nil)
	startWith(t, s, "a", "b")
	agent := NewAgent(rand.New(rand.NewPCG(5, 6)))

	s.lastWord = "quiz"
	_, ok := agent.ChooseWord(s)
	assert.False(t, ok, "nothing starts with z")

	s.lastWord = "apple"
	for _, w := range []string{"eagle", "ear", "east"} {
		s.usedWords[w] = struct{}{}
	}
	agent.ScanLimit = 3
	_, ok = agent.ChooseWord(s)
	assert.False(t, ok, "the scan stops at its limit")
}

func TestAgent_OpeningMove(t *testing.T) {
	for seed := uint64(0); seed < 10; seed++ {
		s := newSession(t, ModeClassic, nil)
		startWith(t, s, "a", "b")
		agent := NewAgent(rand.New(rand.NewPCG(seed, 1)))

		w, ok := agent.ChooseWord(s)
		require.True(t, ok)
		assert.NoError(t, s.rules.Validate(s, w))
	}
}
