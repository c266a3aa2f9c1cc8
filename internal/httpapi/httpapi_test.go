package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder1568/one9wordchain/internal/auth"
	"github.com/coder1568/one9wordchain/internal/dictionary"
	"github.com/coder1568/one9wordchain/internal/engine"
	"github.com/coder1568/one9wordchain/internal/hub"
	"github.com/coder1568/one9wordchain/internal/lobby"
	"github.com/coder1568/one9wordchain/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeArchive struct {
	stats map[string]recorder.PlayerStats
	games []recorder.GameRecord
}

func (f *fakeArchive) Stats(_ context.Context, id string) (recorder.PlayerStats, error) {
	st, ok := f.stats[id]
	if !ok {
		return recorder.PlayerStats{}, recorder.ErrNotFound
	}
	return st, nil
}

func (f *fakeArchive) Games(_ context.Context, room string, limit int) ([]recorder.GameRecord, error) {
	var out []recorder.GameRecord
	for _, g := range f.games {
		if g.RoomID == room && len(out) < limit {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeArchive) Totals(_ context.Context, room string) (recorder.Totals, error) {
	if room == "broken" {
		return recorder.Totals{}, errors.New("db gone")
	}
	var t recorder.Totals
	for _, g := range f.games {
		if room == "" || g.RoomID == room {
			t.Games++
			for _, p := range g.Players {
				t.Words += int64(p.WordCount)
			}
		}
	}
	return t, nil
}

type fixture struct {
	hub    *hub.Hub
	router http.Handler
	player string
	admin  string
}

func newFixture(t *testing.T, reload Reloader) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := hub.NewHub(context.Background(), lobby.Deps{Dictionary: dictionary.Default(), Logger: log})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	iss := auth.NewIssuer("secret", time.Hour)
	player, err := iss.Issue(auth.Identity{UserID: "u1", Name: "Ann"})
	require.NoError(t, err)
	admin, err := iss.Issue(auth.Identity{UserID: "boss", Admin: true})
	require.NoError(t, err)

	archive := &fakeArchive{
		stats: map[string]recorder.PlayerStats{"u1": {UserID: "u1", Name: "Ann", GamesPlayed: 3, Wins: 1}},
		games: []recorder.GameRecord{
			{ID: "g1", RoomID: "room1", Mode: "classic", Players: []recorder.GamePlayerRecord{{UserID: "u1", WordCount: 4}}},
			{ID: "g2", RoomID: "room2", Mode: "chaos", Players: []recorder.GamePlayerRecord{{UserID: "u1", WordCount: 1}}},
		},
	}
	return &fixture{
		hub:    h,
		router: SetupRoutes(Deps{Hub: h, Auth: iss, Archive: archive, Reload: reload, Logger: log}),
		player: player,
		admin:  admin,
	}
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCreateGame(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/rooms/room1/games", f.player, `{"mode":"chaos"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode[map[string]string](t, w)
	assert.Equal(t, "room1", body["room"])
	assert.Equal(t, "chaos", body["mode"])
	assert.NotEmpty(t, body["game_id"])

	cases := []struct {
		name  string
		path  string
		token string
		body  string
		want  int
	}{
		{name: "already running", path: "/rooms/room1/games", token: f.player, body: `{"mode":"classic"}`, want: http.StatusConflict},
		{name: "unknown mode", path: "/rooms/room2/games", token: f.player, body: `{"mode":"speedrun"}`, want: http.StatusBadRequest},
		{name: "bad json", path: "/rooms/room2/games", token: f.player, body: `{`, want: http.StatusBadRequest},
		{name: "anonymous", path: "/rooms/room2/games", body: `{}`, want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestCreateRoom_GeneratesCode(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/rooms", f.player, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode[map[string]string](t, w)
	assert.Len(t, body["room"], 6)
	assert.Equal(t, string(engine.ModeClassic), body["mode"])

	_, err := f.hub.Get(context.Background(), body["room"])
	assert.NoError(t, err)
}

func TestRooms_ListAndGet(t *testing.T) {
	f := newFixture(t, nil)
	for _, room := range []string{"b", "a"} {
		require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/rooms/"+room+"/games", f.player, "").Code)
	}

	list := decode[[]roomSummary](t, f.do(http.MethodGet, "/rooms", "", ""))
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Room)
	assert.Equal(t, engine.StateJoining, list[0].State)
	assert.Nil(t, list[0].Detail)

	w := f.do(http.MethodGet, "/rooms/b", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	one := decode[roomSummary](t, w)
	require.NotNil(t, one.Detail)
	assert.Equal(t, "b", one.Detail.RoomID)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/rooms/zzz", "", "").Code)
}

func TestKillRoom(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/rooms/room1/games", f.player, "").Code)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/rooms/room1", f.player, "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/rooms/room1", f.admin, "").Code)

	require.Eventually(t, func() bool {
		return f.do(http.MethodGet, "/rooms/room1", "", "").Code == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/rooms/room1", f.admin, "").Code)

	// The room is free again.
	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/rooms/room1/games", f.player, "").Code)
}

func TestPlayerStats(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/players/u1/stats", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[recorder.PlayerStats](t, w)
	assert.Equal(t, 3, st.GamesPlayed)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/players/ghost/stats", "", "").Code)
}

func TestRoomHistory(t *testing.T) {
	f := newFixture(t, nil)

	games := decode[[]recorder.GameRecord](t, f.do(http.MethodGet, "/rooms/room1/games", "", ""))
	require.Len(t, games, 1)
	assert.Equal(t, "g1", games[0].ID)

	w := f.do(http.MethodGet, "/rooms/other/games", "", "")
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/rooms/room1/games?limit=0", "", "").Code)
}

func TestStats_RoomAndGlobal(t *testing.T) {
	f := newFixture(t, nil)

	room := decode[recorder.Totals](t, f.do(http.MethodGet, "/rooms/room1/stats", "", ""))
	assert.Equal(t, recorder.Totals{Games: 1, Words: 4}, room)

	all := decode[recorder.Totals](t, f.do(http.MethodGet, "/stats", "", ""))
	assert.Equal(t, recorder.Totals{Games: 2, Words: 5}, all)

	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/rooms/broken/stats", "", "").Code)
}

func TestReloadDictionary(t *testing.T) {
	calls := 0
	f := newFixture(t, func(context.Context) (int, error) {
		calls++
		if calls > 1 {
			return 0, errors.New("disk on fire")
		}
		return 42, nil
	})

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/admin/dictionary/reload", "", "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/admin/dictionary/reload", f.player, "").Code)

	w := f.do(http.MethodPost, "/admin/dictionary/reload", f.admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 42, decode[map[string]int](t, w)["words"])

	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodPost, "/admin/dictionary/reload", f.admin, "").Code)
	assert.Equal(t, 2, calls)

	none := newFixture(t, nil)
	assert.Equal(t, http.StatusNotImplemented, none.do(http.MethodPost, "/admin/dictionary/reload", none.admin, "").Code)
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.NotContains(t, code, "0", "ambiguous characters are excluded")
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}
