package recorder

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder1568/one9wordchain/internal/engine"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openMemory(t *testing.T) *GormRecorder {
	t.Helper()
	rec, err := Open("file:"+uuid.NewString()+"?mode=memory&cache=shared", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	return rec
}

func report(winner string, started bool, players ...engine.Player) engine.Report {
	r := engine.Report{
		GameID:    uuid.NewString(),
		RoomID:    "room1",
		Mode:      engine.ModeClassic,
		Winner:    winner,
		Players:   players,
		EndedAt:   t0.Add(5 * time.Minute),
		EndReason: engine.EndWinner,
		Turns:     12,
	}
	if started {
		r.StartedAt = t0
	}
	return r
}

func TestRecordGame_UpdatesTotals(t *testing.T) {
	rec := openMemory(t)
	ctx := context.Background()

	r := report("a", true,
		engine.Player{UserID: "a", Name: "Ann", WordCount: 4, LetterCount: 20, LongestWord: "elephant"},
		engine.Player{UserID: "b", Name: "Ben", WordCount: 3, LetterCount: 12, LongestWord: "eagle"},
		engine.Player{UserID: "vp-1", Name: "Bot 1", Virtual: true, WordCount: 2},
	)
	require.NoError(t, rec.RecordGame(ctx, r))

	a, err := rec.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.GamesPlayed)
	assert.Equal(t, 1, a.Wins)
	assert.Equal(t, 20, a.LetterCount)
	assert.Equal(t, "elephant", a.LongestWord)

	b, err := rec.Stats(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Wins)

	_, err = rec.Stats(ctx, "vp-1")
	assert.ErrorIs(t, err, ErrNotFound)

	games, err := rec.Games(ctx, "room1", 10)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Len(t, games[0].Players, 3)
	assert.Equal(t, "a", games[0].WinnerID)
}

func TestRecordGame_SameGameTwiceCountsOnce(t *testing.T) {
	rec := openMemory(t)
	ctx := context.Background()
	r := report("a", true, engine.Player{UserID: "a", WordCount: 1, LetterCount: 5})

	require.NoError(t, rec.RecordGame(ctx, r))
	require.NoError(t, rec.RecordGame(ctx, r))

	a, err := rec.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.GamesPlayed)
	assert.Equal(t, 5, a.LetterCount)
}

func TestRecordGame_AccumulatesAcrossGames(t *testing.T) {
	rec := openMemory(t)
	ctx := context.Background()

	require.NoError(t, rec.RecordGame(ctx, report("a", true,
		engine.Player{UserID: "a", WordCount: 2, LetterCount: 9, LongestWord: "tiger"})))
	require.NoError(t, rec.RecordGame(ctx, report("b", true,
		engine.Player{UserID: "a", WordCount: 1, LetterCount: 3, LongestWord: "egg"})))

	a, err := rec.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, a.GamesPlayed)
	assert.Equal(t, 1, a.Wins)
	assert.Equal(t, 3, a.WordCount)
	assert.Equal(t, "tiger", a.LongestWord)
}

func TestRecordGame_ConcurrentGamesKeepEveryCount(t *testing.T) {
	rec := openMemory(t)
	ctx := context.Background()

	const games = 8
	var g errgroup.Group
	for i := 0; i < games; i++ {
		word := strings.Repeat("e", i+1)
		g.Go(func() error {
			return rec.RecordGame(ctx, report("a", true,
				engine.Player{UserID: "a", Name: "Ann", WordCount: 1, LetterCount: 2, LongestWord: word}))
		})
	}
	require.NoError(t, g.Wait())

	a, err := rec.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, games, a.GamesPlayed)
	assert.Equal(t, games, a.Wins)
	assert.Equal(t, games, a.WordCount)
	assert.Equal(t, 2*games, a.LetterCount)
	assert.Equal(t, strings.Repeat("e", games), a.LongestWord)
}

func TestRecordGame_UnstartedGameKeepsTotals(t *testing.T) {
	rec := openMemory(t)
	ctx := context.Background()

	r := report("", false, engine.Player{UserID: "a"})
	r.EndReason = engine.EndNotEnough
	require.NoError(t, rec.RecordGame(ctx, r))

	_, err := rec.Stats(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	games, err := rec.Games(ctx, "room1", 10)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Nil(t, games[0].StartedAt)
}

func TestTotals_PerRoomAndGlobal(t *testing.T) {
	rec := openMemory(t)
	ctx := context.Background()

	empty, err := rec.Totals(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, empty)

	require.NoError(t, rec.RecordGame(ctx, report("a", true,
		engine.Player{UserID: "a", WordCount: 3, LetterCount: 15},
		engine.Player{UserID: "b", WordCount: 2, LetterCount: 8},
		engine.Player{UserID: "vp-1", Virtual: true, WordCount: 9, LetterCount: 40},
	)))
	other := report("c", true,
		engine.Player{UserID: "a", WordCount: 1, LetterCount: 4},
		engine.Player{UserID: "c", WordCount: 2, LetterCount: 10},
	)
	other.RoomID = "room2"
	require.NoError(t, rec.RecordGame(ctx, other))
	unstarted := report("", false, engine.Player{UserID: "d", WordCount: 5, LetterCount: 5})
	require.NoError(t, rec.RecordGame(ctx, unstarted))

	room, err := rec.Totals(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, Totals{Players: 2, Games: 1, Words: 5, Letters: 23}, room)

	all, err := rec.Totals(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, Totals{Players: 3, Games: 2, Words: 8, Letters: 37}, all)
}

func TestOpen_CreatesDirectoryForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "scores.db")
	rec, err := Open(path, nil)
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.RecordGame(context.Background(), report("a", true, engine.Player{UserID: "a"})))
	assert.FileExists(t, path)
}

func TestNop(t *testing.T) {
	var r ScoreRecorder = Nop{}
	assert.NoError(t, r.RecordGame(context.Background(), engine.Report{}))
}
