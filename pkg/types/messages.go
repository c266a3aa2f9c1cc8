// Package types names the websocket protocol spoken on /ws.
//
// Client -> Server, one JSON object per frame:
//
//	join:      {}
//	flee:      {}
//	answer:    word: string
//	start:     {}                  admin
//	skip:      {}                  admin
//	forceflee: user_id: string     admin
//	addvp:     {}                  admin
//	remvp:     user_id: string     admin
//	extend:    seconds: number     admin
//	forcejoin: user_id, name       admin, joins someone else
//	incmaxp:   {}                  admin, raises the player cap
//	kill:      {}                  admin
//
// Server -> Client:
//
//	Snapshot: sent once on connect.
//	  version: number
//	  state:   room_id | game_id | mode | state | players[] | turn_order[] |
//	           current | last_word | constraints | round | turn | used_words |
//	           turn_time | deadline | end_reason | winner
//	  events:  present while the room is still joining
//	Event: sent after every change, same shape as Snapshot with the events
//	  that caused it.
//	Error:
//	  error:  string
//	  reason: string, set when an answer was rejected
package types

const (
	ClientJoin      = "join"
	ClientFlee      = "flee"
	ClientAnswer    = "answer"
	ClientStart     = "start"
	ClientSkip      = "skip"
	ClientForceFlee = "forceflee"
	ClientAddVP     = "addvp"
	ClientRemoveVP  = "remvp"
	ClientExtend    = "extend"
	ClientForceJoin = "forcejoin"
	ClientIncMaxP   = "incmaxp"
	ClientKill      = "kill"
)

const (
	ServerSnapshot = "Snapshot"
	ServerEvent    = "Event"
	ServerError    = "Error"
)
