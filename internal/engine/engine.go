package engine

import (
	"errors"
	"fmt"
	"time"
)

var ErrWrongState = errors.New("wrong game state")
var ErrFull = errors.New("game is full")
var ErrAlreadyJoined = errors.New("already joined")
var ErrTooFewPlayers = errors.New("not enough players")
var ErrNotInGame = errors.New("not in game")
var ErrNotYourTurn = errors.New("not your turn")
var ErrNotAccepting = errors.New("not accepting answers")
var ErrInvalidWord = errors.New("invalid word")
var ErrUnsupported = errors.New("not supported in this mode")
var ErrNotVirtual = errors.New("not a virtual player")
var ErrBadDuration = errors.New("duration must be positive")
var ErrCapRaised = errors.New("player cap already raised")
var ErrUnknownMode = errors.New("unknown game mode")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrInvariant = errors.New("session invariant violated")

// IsUserError reports whether err is the submitting actor's fault. Those are
// reported back to the actor and are never treated as system faults.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrWrongState, ErrFull, ErrAlreadyJoined, ErrTooFewPlayers, ErrNotInGame,
		ErrNotYourTurn, ErrNotAccepting, ErrInvalidWord, ErrUnsupported,
		ErrNotVirtual, ErrBadDuration, ErrCapRaised,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type Reason string

const (
	ReasonNotAlphabetic Reason = "not_alphabetic"
	ReasonNotInDict     Reason = "not_in_dictionary"
	ReasonAlreadyUsed   Reason = "already_used"
	ReasonWrongFirst    Reason = "wrong_first_letter"
	ReasonBannedLetter  Reason = "banned_letter"
	ReasonMissingLetter Reason = "missing_required_letter"
	ReasonTooShort      Reason = "too_short"
)

// InvalidWordError carries the first failed check for a rejected answer.
type InvalidWordError struct {
	Word   string
	Reason Reason
}

func (e *InvalidWordError) Error() string {
	return fmt.Sprintf("invalid word %q: %s", e.Word, e.Reason)
}

func (e *InvalidWordError) Unwrap() error { return ErrInvalidWord }

func reject(word string, r Reason) error {
	return &InvalidWordError{Word: word, Reason: r}
}

type State string

const (
	StateJoining State = "joining"
	StateRunning State = "running"
	StateEnded   State = "ended"
)

type Mode string

const (
	ModeClassic           Mode = "classic"
	ModeBannedLetters     Mode = "banned"
	ModeChaos             Mode = "chaos"
	ModeChosenFirstLetter Mode = "chosen"
	ModeElimination       Mode = "elimination"
	ModeHardMode          Mode = "hard"
	ModeMixedElimination  Mode = "mixed"
	ModeRequiredLetter    Mode = "required"
	ModeRandomFirstLetter Mode = "random"
)

var Modes = []Mode{
	ModeClassic, ModeBannedLetters, ModeChaos, ModeChosenFirstLetter, ModeElimination,
	ModeHardMode, ModeMixedElimination, ModeRequiredLetter, ModeRandomFirstLetter,
}

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

type EndReason string

const (
	EndWinner        EndReason = "winner"
	EndDraw          EndReason = "draw"
	EndNoHumans      EndReason = "no_human_players"
	EndTimeLimit     EndReason = "time_limit"
	EndNotEnough     EndReason = "not_enough_players"
	EndKilled        EndReason = "killed"
	EndInternalError EndReason = "internal_error"
)

type CommandType string

const (
	CmdJoin          CommandType = "Join"
	CmdFlee          CommandType = "Flee"
	CmdStart         CommandType = "Start"
	CmdAnswer        CommandType = "Answer"
	CmdTimeout       CommandType = "Timeout"
	CmdForceSkip     CommandType = "ForceSkip"
	CmdForceFlee     CommandType = "ForceFlee"
	CmdAddVirtual    CommandType = "AddVirtual"
	CmdRemoveVirtual CommandType = "RemoveVirtual"
	CmdExtendJoin    CommandType = "ExtendJoin"
	CmdRaiseCap      CommandType = "RaiseCap"
	CmdKill          CommandType = "Kill"
)

/*
	CmdJoin     -> EvtPlayerJoined
	CmdStart    -> EvtGameStarted -> EvtTurnPrompt
	CmdAnswer   -> EvtAnswerResult -> (EvtPlayerEliminated) -> EvtTurnPrompt | EvtGameEnded
	CmdTimeout  -> joining: CmdStart path or EvtGameEnded
	               running: same as CmdAnswer (virtual seat) or a miss
	CmdFlee     -> EvtPlayerLeft -> (EvtTurnPrompt | EvtGameEnded)
	CmdRaiseCap -> EvtCapRaised
	CmdKill     -> EvtGameEnded
*/

// Command is one external event addressed to a session. UserID is the
// issuing identity for player commands and the target for admin commands.
type Command struct {
	Type     CommandType
	UserID   string
	Name     string
	Word     string
	Duration time.Duration
	Gen      uint64
}

type EventType string

const (
	EvtPromptJoin       EventType = "prompt_join"
	EvtPlayerJoined     EventType = "player_joined"
	EvtPlayerLeft       EventType = "player_left"
	EvtJoinExtended     EventType = "join_extended"
	EvtCapRaised        EventType = "cap_raised"
	EvtGameStarted      EventType = "game_started"
	EvtTurnPrompt       EventType = "turn_prompt"
	EvtAnswerResult     EventType = "answer_result"
	EvtPlayerEliminated EventType = "player_eliminated"
	EvtGameEnded        EventType = "game_ended"
)

type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeSkipped  Outcome = "skipped"
)

// Event is an outbound notification for the transport layer to render.
type Event struct {
	Type        EventType     `json:"type"`
	RoomID      string        `json:"room_id"`
	UserID      string        `json:"user_id,omitempty"`
	Name        string        `json:"name,omitempty"`
	Word        string        `json:"word,omitempty"`
	Outcome     Outcome       `json:"outcome,omitempty"`
	Reason      Reason        `json:"reason,omitempty"`
	Constraints *Constraints  `json:"constraints,omitempty"`
	LastWord    string        `json:"last_word,omitempty"`
	TurnTime    time.Duration `json:"turn_time,omitempty"`
	Deadline    time.Time     `json:"deadline,omitempty"`
	Players     int           `json:"players,omitempty"`
	MaxPlayers  int           `json:"max_players,omitempty"`
	Report      *Report       `json:"report,omitempty"`
}

// Apply routes cmd to the matching session operation. A session whose
// invariants break is ended with EndInternalError and ErrInvariant is returned.
func (s *Session) Apply(cmd Command, now time.Time) ([]Event, error) {
	events, err := s.dispatch(cmd, now)
	if verr := s.verify(); verr != nil {
		if s.state != StateEnded {
			events = append(events, s.end(EndInternalError, nil, now)...)
		}
		return events, verr
	}
	return events, err
}

func (s *Session) dispatch(cmd Command, now time.Time) ([]Event, error) {
	switch cmd.Type {
	case CmdJoin:
		return s.Join(cmd.UserID, cmd.Name, now)
	case CmdFlee:
		return s.Flee(cmd.UserID, now)
	case CmdStart:
		return s.Start(now)
	case CmdAnswer:
		return s.Submit(cmd.UserID, cmd.Word, now)
	case CmdTimeout:
		return s.Tick(cmd.Gen, now)
	case CmdForceSkip:
		return s.ForceSkip(now)
	case CmdForceFlee:
		return s.ForceFlee(cmd.UserID, now)
	case CmdAddVirtual:
		return s.AddVirtualPlayer(now)
	case CmdRemoveVirtual:
		return s.RemoveVirtualPlayer(cmd.UserID, now)
	case CmdExtendJoin:
		return s.ExtendJoin(cmd.Duration, now)
	case CmdRaiseCap:
		return s.RaiseCap(now)
	case CmdKill:
		return s.Kill(now)
	default:
		return nil, ErrUnsupportedCommand
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
