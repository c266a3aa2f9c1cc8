package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNoDictionary = errors.New("session needs a dictionary")

// Dictionary is the word lookup a session validates against.
type Dictionary interface {
	Contains(word string) bool
	WordsWithPrefix(prefix string, limit int) []string
}

type Config struct {
	RoomID     string
	Mode       Mode
	Dictionary Dictionary
	// Settings defaults to DefaultSettings(Mode).
	Settings *Settings
	Rand     *rand.Rand
	Now      time.Time
}

// Session is the state machine of one game in one room. It is not safe for
// concurrent use; a single owner goroutine must serialize every call.
type Session struct {
	roomID   string
	gameID   string
	mode     Mode
	state    State
	settings Settings
	rules    Ruleset
	dict     Dictionary
	rng      *rand.Rand
	agent    *Agent

	roster      []*Player
	turnOrder   turnOrder
	usedWords   map[string]struct{}
	lastWord    string
	constraints Constraints

	turn  int
	round int
	// owed counts the players at the front of turnOrder still due a turn this round.
	owed     int
	turnTime time.Duration

	// gen identifies the armed deadline; a timer carrying an older gen is stale.
	gen       uint64
	deadline  time.Time
	answered  bool
	accepting bool

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	endReason EndReason
	winner    *Player
	botSeq    int
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.Dictionary == nil {
		return nil, ErrNoDictionary
	}
	settings := DefaultSettings(cfg.Mode)
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(cfg.Now.UnixNano()), rand.Uint64()))
	}
	rules, err := NewRuleset(cfg.Mode, settings, rng)
	if err != nil {
		return nil, err
	}

	s := &Session{
		roomID:    cfg.RoomID,
		gameID:    uuid.NewString(),
		mode:      cfg.Mode,
		state:     StateJoining,
		settings:  settings,
		rules:     rules,
		dict:      cfg.Dictionary,
		rng:       rng,
		usedWords: make(map[string]struct{}),
		createdAt: cfg.Now,
	}
	s.agent = NewAgent(rng)
	s.arm(cfg.Now.Add(settings.JoinWindow))
	return s, nil
}

func (s *Session) GameID() string   { return s.gameID }
func (s *Session) Mode() Mode       { return s.mode }
func (s *Session) State() State     { return s.state }
func (s *Session) LastWord() string { return s.lastWord }

// Deadline returns the currently armed deadline and its generation. The zero
// time means nothing is armed.
func (s *Session) Deadline() (time.Time, uint64) {
	return s.deadline, s.gen
}

// TurnOrder lists user ids from the current player onwards.
func (s *Session) TurnOrder() []string {
	out := make([]string, len(s.turnOrder))
	for i, p := range s.turnOrder {
		out[i] = p.UserID
	}
	return out
}

func (s *Session) Player(userID string) (Player, bool) {
	if p := s.find(userID); p != nil {
		return *p, true
	}
	return Player{}, false
}

// JoinPrompt is the announcement of a newly opened session.
func (s *Session) JoinPrompt() Event {
	return Event{
		Type:     EvtPromptJoin,
		RoomID:   s.roomID,
		Deadline: s.deadline,
		Players:  len(s.roster),
	}
}

func (s *Session) Join(userID, name string, now time.Time) ([]Event, error) {
	if s.state != StateJoining {
		return nil, ErrWrongState
	}
	if s.find(userID) != nil {
		return nil, ErrAlreadyJoined
	}
	if len(s.roster) >= s.settings.MaxPlayers {
		return nil, ErrFull
	}
	p := &Player{UserID: userID, Name: name, Alive: true}
	s.roster = append(s.roster, p)
	return []Event{s.playerEvent(EvtPlayerJoined, p)}, nil
}

func (s *Session) AddVirtualPlayer(now time.Time) ([]Event, error) {
	if s.state != StateJoining {
		return nil, ErrWrongState
	}
	if !s.rules.SupportsVirtualPlayers() {
		return nil, ErrUnsupported
	}
	if len(s.roster) >= s.settings.MaxPlayers {
		return nil, ErrFull
	}
	s.botSeq++
	p := &Player{
		UserID:  "vp-" + uuid.NewString(),
		Name:    fmt.Sprintf("Bot %d", s.botSeq),
		Virtual: true,
		Alive:   true,
	}
	s.roster = append(s.roster, p)
	return []Event{s.playerEvent(EvtPlayerJoined, p)}, nil
}

func (s *Session) ExtendJoin(d time.Duration, now time.Time) ([]Event, error) {
	if s.state != StateJoining {
		return nil, ErrWrongState
	}
	if d <= 0 {
		return nil, ErrBadDuration
	}
	at := s.deadline.Add(d)
	if limit := now.Add(s.settings.MaxJoinWindow); at.After(limit) {
		at = limit
	}
	s.arm(at)
	return []Event{{Type: EvtJoinExtended, RoomID: s.roomID, Deadline: at, Players: len(s.roster)}}, nil
}

// RaiseCap lifts the player cap to RaisedMaxPlayers. It only works once, while joining.
func (s *Session) RaiseCap(now time.Time) ([]Event, error) {
	if s.state != StateJoining {
		return nil, ErrWrongState
	}
	if s.settings.MaxPlayers >= s.settings.RaisedMaxPlayers {
		return nil, ErrCapRaised
	}
	s.settings.MaxPlayers = s.settings.RaisedMaxPlayers
	return []Event{{Type: EvtCapRaised, RoomID: s.roomID, Players: len(s.roster), MaxPlayers: s.settings.MaxPlayers}}, nil
}

func (s *Session) Start(now time.Time) ([]Event, error) {
	if s.state != StateJoining {
		return nil, ErrWrongState
	}
	if len(s.roster) < s.settings.MinPlayers {
		return nil, ErrTooFewPlayers
	}
	return s.start(now), nil
}

func (s *Session) start(now time.Time) []Event {
	s.state = StateRunning
	s.startedAt = now
	s.turnOrder = shuffled(s.rng, s.roster)
	s.owed = len(s.turnOrder)
	s.constraints = s.rules.Initialize(s)

	events := []Event{{
		Type:        EvtGameStarted,
		RoomID:      s.roomID,
		Constraints: s.constraintsView(),
		Players:     len(s.turnOrder),
	}}
	return s.settle(events, now)
}

func (s *Session) Flee(userID string, now time.Time) ([]Event, error) {
	switch s.state {
	case StateJoining:
		return s.leaveRoster(userID)
	case StateRunning:
		return s.leaveGame(userID, now)
	default:
		return nil, ErrWrongState
	}
}

func (s *Session) ForceFlee(userID string, now time.Time) ([]Event, error) {
	if s.state != StateRunning {
		return nil, ErrWrongState
	}
	return s.leaveGame(userID, now)
}

func (s *Session) RemoveVirtualPlayer(userID string, now time.Time) ([]Event, error) {
	if s.state == StateEnded {
		return nil, ErrWrongState
	}
	p := s.find(userID)
	if p == nil {
		return nil, ErrNotInGame
	}
	if !p.Virtual {
		return nil, ErrNotVirtual
	}
	if s.state == StateJoining {
		return s.leaveRoster(userID)
	}
	return s.leaveGame(userID, now)
}

func (s *Session) leaveRoster(userID string) ([]Event, error) {
	for i, p := range s.roster {
		if p.UserID == userID {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			return []Event{s.playerEvent(EvtPlayerLeft, p)}, nil
		}
	}
	return nil, ErrNotInGame
}

// leaveGame takes a player out of turn order. The roster keeps it for the report.
func (s *Session) leaveGame(userID string, now time.Time) ([]Event, error) {
	i := s.turnOrder.indexOf(userID)
	if i < 0 {
		return nil, ErrNotInGame
	}
	p := s.turnOrder[i]
	holdsTurn := i == 0
	s.eliminate(p)
	if holdsTurn {
		// The leaver's turn is spent.
		s.rules.OnMiss(s, p)
	}
	events := []Event{s.playerEvent(EvtPlayerLeft, p)}

	if v := s.rules.CheckEnd(s); v.Kind != VerdictContinue {
		return append(events, s.end(v.Reason, v.Winner, now)...), nil
	}
	if holdsTurn {
		return append(events, s.beginTurn(now)...), nil
	}
	return events, nil
}

// Submit applies a human answer. An invalid word consumes the turn as a miss
// and the *InvalidWordError is returned together with the resulting events.
func (s *Session) Submit(userID, text string, now time.Time) ([]Event, error) {
	if s.state != StateRunning {
		return nil, ErrWrongState
	}
	p := s.turnOrder.current()
	if p == nil || p.UserID != userID {
		return nil, ErrNotYourTurn
	}
	if !s.accepting || s.answered {
		return nil, ErrNotAccepting
	}
	s.answered, s.accepting = true, false

	word := strings.ToLower(strings.TrimSpace(text))
	if err := s.rules.Validate(s, word); err != nil {
		var iwe *InvalidWordError
		var reason Reason
		if errors.As(err, &iwe) {
			reason = iwe.Reason
		}
		events := []Event{s.resultEvent(p, word, OutcomeRejected, reason)}
		events = append(events, s.miss(p, false)...)
		return s.settle(events, now), err
	}
	return s.settle(s.accept(p, word), now), nil
}

// Tick handles expiry of the deadline armed under gen. Stale generations and
// turns that were already answered are ignored.
func (s *Session) Tick(gen uint64, now time.Time) ([]Event, error) {
	if s.state == StateEnded || gen != s.gen {
		return nil, nil
	}
	if s.state == StateJoining {
		if len(s.roster) >= s.settings.MinPlayers {
			return s.start(now), nil
		}
		return s.end(EndNotEnough, nil, now), nil
	}
	if s.answered {
		return nil, nil
	}
	s.answered, s.accepting = true, false

	p := s.turnOrder.current()
	if p.Virtual {
		if word, ok := s.agent.ChooseWord(s); ok {
			return s.settle(s.accept(p, word), now), nil
		}
	}
	events := []Event{s.resultEvent(p, "", OutcomeTimeout, "")}
	events = append(events, s.miss(p, true)...)
	return s.settle(events, now), nil
}

// ForceSkip expires the current turn at once.
func (s *Session) ForceSkip(now time.Time) ([]Event, error) {
	if s.state != StateRunning {
		return nil, ErrWrongState
	}
	if s.answered {
		return nil, ErrNotAccepting
	}
	s.answered, s.accepting = true, false

	p := s.turnOrder.current()
	events := []Event{s.resultEvent(p, "", OutcomeSkipped, "")}
	events = append(events, s.miss(p, false)...)
	return s.settle(events, now), nil
}

func (s *Session) Kill(now time.Time) ([]Event, error) {
	if s.state == StateEnded {
		return nil, ErrWrongState
	}
	return s.end(EndKilled, nil, now), nil
}

func (s *Session) accept(p *Player, word string) []Event {
	p.record(word)
	s.rules.OnAccept(s, word)
	return []Event{s.resultEvent(p, word, OutcomeAccepted, "")}
}

func (s *Session) miss(p *Player, timedOut bool) []Event {
	s.rules.OnMiss(s, p)
	if !p.Alive {
		return []Event{s.playerEvent(EvtPlayerEliminated, p)}
	}
	if !timedOut || s.settings.IdleLimit <= 0 {
		return nil
	}
	p.Timeouts++
	if p.Timeouts < s.settings.IdleLimit {
		return nil
	}
	s.eliminate(p)
	return []Event{s.playerEvent(EvtPlayerLeft, p)}
}

// settle ends the game if the ruleset says so, otherwise opens the next turn.
func (s *Session) settle(events []Event, now time.Time) []Event {
	if v := s.rules.CheckEnd(s); v.Kind != VerdictContinue {
		return append(events, s.end(v.Reason, v.Winner, now)...)
	}
	return append(events, s.beginTurn(now)...)
}

func (s *Session) beginTurn(now time.Time) []Event {
	if s.settings.MaxDuration > 0 && now.Sub(s.startedAt) >= s.settings.MaxDuration {
		return s.end(EndTimeLimit, nil, now)
	}
	p := s.turnOrder.current()
	s.answered, s.accepting = false, true
	s.turnTime = s.settings.turnTimeFor(s.round)

	wait := s.turnTime
	if p.Virtual && s.settings.VirtualDelay < wait {
		wait = s.settings.VirtualDelay
	}
	deadline := now.Add(wait)
	s.arm(deadline)

	return []Event{{
		Type:        EvtTurnPrompt,
		RoomID:      s.roomID,
		UserID:      p.UserID,
		Name:        p.Name,
		Constraints: s.constraintsView(),
		LastWord:    s.lastWord,
		TurnTime:    s.turnTime,
		Deadline:    deadline,
		Players:     len(s.turnOrder),
	}}
}

func (s *Session) end(reason EndReason, winner *Player, now time.Time) []Event {
	s.state = StateEnded
	s.endedAt = now
	s.endReason = reason
	s.winner = winner
	s.answered, s.accepting = true, false
	s.gen++
	s.deadline = time.Time{}

	report := s.Report()
	return []Event{{
		Type:    EvtGameEnded,
		RoomID:  s.roomID,
		UserID:  report.Winner,
		Name:    report.WinnerName,
		Players: len(s.turnOrder),
		Report:  &report,
	}}
}

func (s *Session) arm(at time.Time) {
	s.gen++
	s.deadline = at
}

// closeTurn advances turn and round counters and reports whether a new round
// just began. A round is one pass over the players present when it started.
func (s *Session) closeTurn() bool {
	s.turn++
	if s.owed > 0 {
		return false
	}
	s.round++
	s.owed = len(s.turnOrder)
	return true
}

// pass sends the current player to the back of the queue.
func (s *Session) pass() {
	if len(s.turnOrder) == 0 {
		return
	}
	s.turnOrder.rotate()
	if s.owed > 0 {
		s.owed--
	}
}

// eliminate takes p out of turn order. If p was still due a turn this round
// the round shrinks with it.
func (s *Session) eliminate(p *Player) {
	p.Alive = false
	if i := s.turnOrder.indexOf(p.UserID); i >= 0 && i < s.owed {
		s.owed--
	}
	s.turnOrder = s.turnOrder.without(p.UserID)
}

func (s *Session) find(userID string) *Player {
	for _, p := range s.roster {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (s *Session) constraintsView() *Constraints {
	c := s.constraints.clone()
	return &c
}

func (s *Session) playerEvent(t EventType, p *Player) Event {
	n := len(s.roster)
	if s.state == StateRunning {
		n = len(s.turnOrder)
	}
	return Event{Type: t, RoomID: s.roomID, UserID: p.UserID, Name: p.Name, Players: n}
}

func (s *Session) resultEvent(p *Player, word string, o Outcome, r Reason) Event {
	return Event{
		Type:    EvtAnswerResult,
		RoomID:  s.roomID,
		UserID:  p.UserID,
		Name:    p.Name,
		Word:    word,
		Outcome: o,
		Reason:  r,
	}
}

// verify checks the structural invariants after a mutation.
func (s *Session) verify() error {
	switch s.state {
	case StateJoining, StateRunning, StateEnded:
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInvariant, s.state)
	}
	inRoster := make(map[*Player]bool, len(s.roster))
	for _, p := range s.roster {
		inRoster[p] = true
	}
	seen := make(map[string]bool, len(s.turnOrder))
	for _, p := range s.turnOrder {
		if !inRoster[p] {
			return fmt.Errorf("%w: %s in turn order but not in roster", ErrInvariant, p.UserID)
		}
		if seen[p.UserID] {
			return fmt.Errorf("%w: %s twice in turn order", ErrInvariant, p.UserID)
		}
		if !p.Alive {
			return fmt.Errorf("%w: %s in turn order but not alive", ErrInvariant, p.UserID)
		}
		seen[p.UserID] = true
	}
	if s.state == StateRunning && len(s.turnOrder) == 0 {
		return fmt.Errorf("%w: running with empty turn order", ErrInvariant)
	}
	return nil
}
