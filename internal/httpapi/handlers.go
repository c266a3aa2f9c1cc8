package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/coder1568/one9wordchain/internal/engine"
	"github.com/coder1568/one9wordchain/internal/hub"
	"github.com/coder1568/one9wordchain/internal/lobby"
	"github.com/coder1568/one9wordchain/internal/recorder"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxCodeAttempts = 8

// Archive is the read side of the score store.
type Archive interface {
	Stats(ctx context.Context, userID string) (recorder.PlayerStats, error)
	Games(ctx context.Context, roomID string, limit int) ([]recorder.GameRecord, error)
	Totals(ctx context.Context, roomID string) (recorder.Totals, error)
}

// Reloader swaps in a fresh word list and reports its size.
type Reloader func(ctx context.Context) (int, error)

type api struct {
	hub     *hub.Hub
	archive Archive
	reload  Reloader
	log     *zap.Logger
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createRequest struct {
	Mode string `json:"mode"`
}

type roomSummary struct {
	Room    string           `json:"room"`
	GameID  string           `json:"game_id"`
	Mode    engine.Mode      `json:"mode"`
	State   engine.State     `json:"state"`
	Players int              `json:"players"`
	Clients int              `json:"clients"`
	Version int              `json:"version"`
	Detail  *engine.Snapshot `json:"detail,omitempty"`
}

func summarize(code string, v lobby.View) roomSummary {
	alive := 0
	for _, p := range v.State.Players {
		if p.Alive {
			alive++
		}
	}
	return roomSummary{
		Room:    code,
		GameID:  v.State.GameID,
		Mode:    v.State.Mode,
		State:   v.State.State,
		Players: alive,
		Clients: v.NumClients,
		Version: v.Version,
	}
}

func (a *api) parseMode(w http.ResponseWriter, r *http.Request) (engine.Mode, bool) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return "", false
		}
	}
	if req.Mode == "" {
		return engine.ModeClassic, true
	}
	mode, err := engine.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return mode, true
}

// CreateGame starts a game in the room named by the path.
func (a *api) CreateGame(w http.ResponseWriter, r *http.Request) {
	mode, ok := a.parseMode(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "room")
	lb, err := a.hub.Create(r.Context(), code, mode)
	if err != nil {
		a.createFailed(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"room": code, "game_id": lb.GameID(), "mode": string(mode)})
}

// CreateRoom starts a game in a freshly generated room.
func (a *api) CreateRoom(w http.ResponseWriter, r *http.Request) {
	mode, ok := a.parseMode(w, r)
	if !ok {
		return
	}
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := GenerateCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate code")
			return
		}
		lb, err := a.hub.Create(r.Context(), code, mode)
		if errors.Is(err, hub.ErrAlreadyRunning) {
			a.log.Debug("collision on code, regenerating", zap.String("room", code))
			continue
		}
		if err != nil {
			a.createFailed(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"room": code, "game_id": lb.GameID(), "mode": string(mode)})
		return
	}
	writeError(w, http.StatusServiceUnavailable, "no free room code")
}

func (a *api) createFailed(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hub.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrUnknownMode), errors.Is(err, engine.ErrNoDictionary):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, hub.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.log.Error("create game failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create game")
	}
}

func (a *api) ListRooms(w http.ResponseWriter, r *http.Request) {
	all, err := a.hub.List(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	out := make([]roomSummary, 0, len(all))
	for _, lb := range all {
		v, err := lb.State(r.Context())
		if err != nil {
			continue // ended since listing
		}
		out = append(out, summarize(lb.Code(), v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "room")
	lb, err := a.hub.Get(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusNotFound, hub.ErrNotFound.Error())
		return
	}
	v, err := lb.State(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, hub.ErrNotFound.Error())
		return
	}
	sum := summarize(code, v)
	sum.Detail = &v.State
	writeJSON(w, http.StatusOK, sum)
}

// KillRoom ends the room's game. The report is still recorded.
func (a *api) KillRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "room")
	lb, err := a.hub.Get(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusNotFound, hub.ErrNotFound.Error())
		return
	}
	if err := lb.Kill(r.Context()); err != nil && !errors.Is(err, lobby.ErrClosed) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.log.Info("game killed by admin", zap.String("room", code))
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) RoomHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be 1-100")
			return
		}
		limit = n
	}
	games, err := a.archive.Games(r.Context(), chi.URLParam(r, "room"), limit)
	if err != nil {
		a.log.Error("load history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if games == nil {
		games = []recorder.GameRecord{}
	}
	writeJSON(w, http.StatusOK, games)
}

func (a *api) PlayerStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.archive.Stats(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, recorder.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		a.log.Error("load stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
	default:
		writeJSON(w, http.StatusOK, st)
	}
}

// RoomStats sums the recorded games of one room.
func (a *api) RoomStats(w http.ResponseWriter, r *http.Request) {
	a.writeTotals(w, r, chi.URLParam(r, "room"))
}

// GlobalStats sums the recorded games of every room.
func (a *api) GlobalStats(w http.ResponseWriter, r *http.Request) {
	a.writeTotals(w, r, "")
}

func (a *api) writeTotals(w http.ResponseWriter, r *http.Request, room string) {
	t, err := a.archive.Totals(r.Context(), room)
	if err != nil {
		a.log.Error("load totals failed", zap.String("room", room), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *api) ReloadDictionary(w http.ResponseWriter, r *http.Request) {
	if a.reload == nil {
		writeError(w, http.StatusNotImplemented, "no dictionary source configured")
		return
	}
	start := time.Now()
	n, err := a.reload(r.Context())
	if err != nil {
		a.log.Error("dictionary reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.log.Info("dictionary reloaded", zap.Int("words", n), zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, map[string]int{"words": n})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
