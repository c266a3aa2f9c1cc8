package types

import "github.com/coder1568/one9wordchain/internal/engine"

type ClientMessage struct {
	Type    string `json:"type"`
	Word    string `json:"word,omitempty"`
	UserID  string `json:"user_id,omitempty"` // target of forceflee, remvp and forcejoin
	Name    string `json:"name,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
}

type ServerMessage struct {
	Type    string           `json:"type"` // "Snapshot" | "Event" | "Error"
	Version int              `json:"version,omitempty"`
	State   *engine.Snapshot `json:"state,omitempty"`
	Events  []engine.Event   `json:"events,omitempty"`
	Error   string           `json:"error,omitempty"`
	Reason  engine.Reason    `json:"reason,omitempty"`
}
