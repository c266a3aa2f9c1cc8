package engine

import "time"

// Report is the end-of-game summary handed to the score recorder.
type Report struct {
	GameID     string    `json:"game_id"`
	RoomID     string    `json:"room_id"`
	Mode       Mode      `json:"mode"`
	Winner     string    `json:"winner,omitempty"`
	WinnerName string    `json:"winner_name,omitempty"`
	Players    []Player  `json:"players"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	EndReason  EndReason `json:"end_reason"`
	Turns      int       `json:"turns"`
}

// Started reports whether the game ever left the joining phase.
func (r Report) Started() bool { return !r.StartedAt.IsZero() }

func (s *Session) Report() Report {
	r := Report{
		GameID:    s.gameID,
		RoomID:    s.roomID,
		Mode:      s.mode,
		Players:   make([]Player, len(s.roster)),
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		EndReason: s.endReason,
		Turns:     s.turn,
	}
	for i, p := range s.roster {
		r.Players[i] = *p
	}
	if s.winner != nil {
		r.Winner = s.winner.UserID
		r.WinnerName = s.winner.Name
	}
	return r
}

// Snapshot is a read-only copy of a session for clients.
type Snapshot struct {
	RoomID      string        `json:"room_id"`
	GameID      string        `json:"game_id"`
	Mode        Mode          `json:"mode"`
	State       State         `json:"state"`
	Players     []Player      `json:"players"`
	TurnOrder   []string      `json:"turn_order"`
	Current     string        `json:"current,omitempty"`
	LastWord    string        `json:"last_word,omitempty"`
	Constraints Constraints   `json:"constraints"`
	Round       int           `json:"round"`
	Turn        int           `json:"turn"`
	UsedWords   int           `json:"used_words"`
	TurnTime    time.Duration `json:"turn_time,omitempty"`
	Deadline    time.Time     `json:"deadline,omitempty"`
	EndReason   EndReason     `json:"end_reason,omitempty"`
	Winner      string        `json:"winner,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		RoomID:      s.roomID,
		GameID:      s.gameID,
		Mode:        s.mode,
		State:       s.state,
		Players:     make([]Player, len(s.roster)),
		TurnOrder:   s.TurnOrder(),
		LastWord:    s.lastWord,
		Constraints: s.constraints.clone(),
		Round:       s.round,
		Turn:        s.turn,
		UsedWords:   len(s.usedWords),
		TurnTime:    s.turnTime,
		Deadline:    s.deadline,
		EndReason:   s.endReason,
	}
	for i, p := range s.roster {
		snap.Players[i] = *p
	}
	if s.state == StateRunning {
		snap.Current = s.turnOrder.current().UserID
	}
	if s.winner != nil {
		snap.Winner = s.winner.UserID
	}
	return snap
}
