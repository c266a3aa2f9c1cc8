package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/coder1568/one9wordchain/internal/engine"
)

var ErrNotFound = errors.New("player not found")

// ScoreRecorder receives one report per ended session.
type ScoreRecorder interface {
	RecordGame(ctx context.Context, r engine.Report) error
}

// Store is a ScoreRecorder that can also be queried.
type Store interface {
	ScoreRecorder
	Stats(ctx context.Context, userID string) (PlayerStats, error)
	Games(ctx context.Context, roomID string, limit int) ([]GameRecord, error)
	Totals(ctx context.Context, roomID string) (Totals, error)
	Close() error
}

// Nop discards reports and knows no players.
type Nop struct{}

func (Nop) RecordGame(context.Context, engine.Report) error { return nil }

func (Nop) Stats(context.Context, string) (PlayerStats, error) { return PlayerStats{}, ErrNotFound }

func (Nop) Games(context.Context, string, int) ([]GameRecord, error) { return nil, nil }

func (Nop) Totals(context.Context, string) (Totals, error) { return Totals{}, nil }

func (Nop) Close() error { return nil }

// PlayerStats are the lifetime totals of one player.
type PlayerStats struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	GamesPlayed int       `json:"games_played"`
	Wins        int       `json:"wins"`
	WordCount   int       `json:"word_count"`
	LetterCount int       `json:"letter_count"`
	LongestWord string    `json:"longest_word,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Totals sum every started game of one room, or of all rooms. Virtual seats
// are left out.
type Totals struct {
	Players int64 `json:"players"`
	Games   int64 `json:"games"`
	Words   int64 `json:"words"`
	Letters int64 `json:"letters"`
}
