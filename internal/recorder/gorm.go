package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coder1568/one9wordchain/internal/engine"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GameRecord struct {
	ID        string             `gorm:"primaryKey;size:36" json:"id"`
	RoomID    string             `gorm:"index;size:128" json:"room_id"`
	Mode      string             `gorm:"size:32" json:"mode"`
	WinnerID  string             `gorm:"size:128" json:"winner_id,omitempty"`
	EndReason string             `gorm:"size:32" json:"end_reason"`
	Turns     int                `json:"turns"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	EndedAt   time.Time          `json:"ended_at"`
	Players   []GamePlayerRecord `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE" json:"players"`
}

type GamePlayerRecord struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	GameID      string `gorm:"index;size:36" json:"-"`
	UserID      string `gorm:"index;size:128" json:"user_id"`
	Name        string `json:"name"`
	Virtual     bool   `json:"virtual"`
	Won         bool   `json:"won"`
	WordCount   int    `json:"word_count"`
	LetterCount int    `json:"letter_count"`
	LongestWord string `gorm:"size:100" json:"longest_word,omitempty"`
}

// PlayerRecord holds running totals; virtual seats never get one.
type PlayerRecord struct {
	UserID      string `gorm:"primaryKey;size:128"`
	Name        string
	GamesPlayed int
	Wins        int
	WordCount   int
	LetterCount int
	LongestWord string `gorm:"size:100"`
	UpdatedAt   time.Time
}

type GormRecorder struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects by DSN. postgres:// URLs and key=value DSNs with a host use
// the postgres driver; anything else is a sqlite path or file: URI.
func Open(dsn string, log *zap.Logger) (*GormRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialector, sqliteFile := dialectorFor(dsn)
	if sqliteFile != "" {
		if dir := filepath.Dir(sqliteFile); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&GameRecord{}, &GamePlayerRecord{}, &PlayerRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormRecorder{db: db, log: log}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), ""
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return sqlite.Open(dsn), ""
	default:
		return sqlite.Open(dsn + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"), dsn
	}
}

func (g *GormRecorder) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordGame stores the game and, for games that started, folds each human
// player's numbers into their totals. Recording the same game twice is a no-op.
func (g *GormRecorder) RecordGame(ctx context.Context, r engine.Report) error {
	game := GameRecord{
		ID:        r.GameID,
		RoomID:    r.RoomID,
		Mode:      string(r.Mode),
		WinnerID:  r.Winner,
		EndReason: string(r.EndReason),
		Turns:     r.Turns,
		EndedAt:   r.EndedAt,
	}
	if r.Started() {
		started := r.StartedAt
		game.StartedAt = &started
	}
	for _, p := range r.Players {
		game.Players = append(game.Players, GamePlayerRecord{
			UserID:      p.UserID,
			Name:        p.Name,
			Virtual:     p.Virtual,
			Won:         p.UserID == r.Winner,
			WordCount:   p.WordCount,
			LetterCount: p.LetterCount,
			LongestWord: p.LongestWord,
		})
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit("Players").Create(&game)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadyRecorded
		}
		if len(game.Players) > 0 {
			for i := range game.Players {
				game.Players[i].GameID = game.ID
			}
			if err := tx.Create(&game.Players).Error; err != nil {
				return err
			}
		}
		if !r.Started() {
			return nil
		}
		for _, p := range r.Players {
			if p.Virtual {
				continue
			}
			if err := addTotals(tx, p, p.UserID == r.Winner); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyRecorded) {
		g.log.Debug("game already recorded", zap.String("game", r.GameID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("record game %s: %w", r.GameID, err)
	}
	return nil
}

var errAlreadyRecorded = errors.New("already recorded")

// addTotals folds one game into p's running totals in a single upsert.
func addTotals(tx *gorm.DB, p engine.Player, won bool) error {
	row := PlayerRecord{
		UserID:      p.UserID,
		Name:        p.Name,
		GamesPlayed: 1,
		WordCount:   p.WordCount,
		LetterCount: p.LetterCount,
		LongestWord: p.LongestWord,
	}
	if won {
		row.Wins = 1
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "name"}, Value: gorm.Expr("excluded.name")},
			{Column: clause.Column{Name: "games_played"}, Value: gorm.Expr("player_records.games_played + excluded.games_played")},
			{Column: clause.Column{Name: "wins"}, Value: gorm.Expr("player_records.wins + excluded.wins")},
			{Column: clause.Column{Name: "word_count"}, Value: gorm.Expr("player_records.word_count + excluded.word_count")},
			{Column: clause.Column{Name: "letter_count"}, Value: gorm.Expr("player_records.letter_count + excluded.letter_count")},
			{Column: clause.Column{Name: "longest_word"}, Value: gorm.Expr(
				"CASE WHEN length(excluded.longest_word) > length(player_records.longest_word) " +
					"THEN excluded.longest_word ELSE player_records.longest_word END")},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}).Create(&row).Error
}

func (g *GormRecorder) Stats(ctx context.Context, userID string) (PlayerStats, error) {
	var rec PlayerRecord
	err := g.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PlayerStats{}, ErrNotFound
	}
	if err != nil {
		return PlayerStats{}, err
	}
	return PlayerStats{
		UserID:      rec.UserID,
		Name:        rec.Name,
		GamesPlayed: rec.GamesPlayed,
		Wins:        rec.Wins,
		WordCount:   rec.WordCount,
		LetterCount: rec.LetterCount,
		LongestWord: rec.LongestWord,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

// Games returns the most recent games of a room, newest first.
func (g *GormRecorder) Games(ctx context.Context, roomID string, limit int) ([]GameRecord, error) {
	var games []GameRecord
	err := g.db.WithContext(ctx).
		Preload("Players").
		Where("room_id = ?", roomID).
		Order("ended_at DESC").
		Limit(limit).
		Find(&games).Error
	return games, err
}

// Totals aggregates the started games of roomID. An empty roomID covers every room.
func (g *GormRecorder) Totals(ctx context.Context, roomID string) (Totals, error) {
	var t Totals
	q := g.db.WithContext(ctx).
		Model(&GamePlayerRecord{}).
		Joins("JOIN game_records ON game_records.id = game_player_records.game_id").
		Where("game_records.started_at IS NOT NULL AND game_player_records.virtual = ?", false)
	if roomID != "" {
		q = q.Where("game_records.room_id = ?", roomID)
	}
	err := q.Select(
		"COUNT(DISTINCT game_player_records.user_id) AS players, " +
			"COUNT(DISTINCT game_player_records.game_id) AS games, " +
			"COALESCE(SUM(game_player_records.word_count), 0) AS words, " +
			"COALESCE(SUM(game_player_records.letter_count), 0) AS letters").
		Scan(&t).Error
	return t, err
}
