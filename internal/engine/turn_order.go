package engine

import "math/rand/v2"

// Player is one seat in a session.
type Player struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Virtual     bool   `json:"virtual"`
	Alive       bool   `json:"alive"`
	WordCount   int    `json:"word_count"`
	LetterCount int    `json:"letter_count"`
	LongestWord string `json:"longest_word,omitempty"`

	// Timeouts counts consecutive turns that ran out.
	Timeouts int `json:"-"`
	// Misses counts consecutive failed turns, timeouts and rejected words alike.
	Misses int `json:"-"`
}

func (p *Player) record(word string) {
	p.WordCount++
	p.LetterCount += len(word)
	if len(word) > len(p.LongestWord) {
		p.LongestWord = word
	}
	p.Timeouts = 0
	p.Misses = 0
}

// turnOrder is the rotating queue of players still taking turns; index 0
// holds the current turn.
type turnOrder []*Player

func shuffled(rng *rand.Rand, players []*Player) turnOrder {
	out := make(turnOrder, len(players))
	copy(out, players)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (t turnOrder) current() *Player {
	if len(t) == 0 {
		return nil
	}
	return t[0]
}

// rotate moves the current player to the back of the queue.
func (t turnOrder) rotate() {
	if len(t) < 2 {
		return
	}
	first := t[0]
	copy(t, t[1:])
	t[len(t)-1] = first
}

func (t turnOrder) indexOf(userID string) int {
	for i, p := range t {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

func (t turnOrder) without(userID string) turnOrder {
	i := t.indexOf(userID)
	if i < 0 {
		return t
	}
	return append(t[:i], t[i+1:]...)
}

func (t turnOrder) humans() int {
	n := 0
	for _, p := range t {
		if !p.Virtual {
			n++
		}
	}
	return n
}
