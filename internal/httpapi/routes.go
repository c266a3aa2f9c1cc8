package httpapi

import (
	"net/http"
	"time"

	"github.com/coder1568/one9wordchain/internal/auth"
	"github.com/coder1568/one9wordchain/internal/hub"
	"github.com/coder1568/one9wordchain/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Hub     *hub.Hub
	Auth    *auth.Issuer
	Archive Archive
	Reload  Reloader
	Logger  *zap.Logger
	WS      ws.Options
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	a := &api{hub: d.Hub, archive: d.Archive, reload: d.Reload, log: d.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.Auth, d.Logger, d.WS))
	r.Get("/rooms", a.ListRooms)
	r.Get("/rooms/{room}", a.GetRoom)
	r.Get("/rooms/{room}/games", a.RoomHistory)
	r.Get("/rooms/{room}/stats", a.RoomStats)
	r.Get("/players/{id}/stats", a.PlayerStats)
	r.Get("/stats", a.GlobalStats)

	// Signed-in players
	r.Group(func(r chi.Router) {
		r.Use(d.Auth.RequireAuth)
		r.Post("/rooms", a.CreateRoom)
		r.Post("/rooms/{room}/games", a.CreateGame)
	})

	// Admins
	r.Group(func(r chi.Router) {
		r.Use(d.Auth.RequireAdmin)
		r.Delete("/rooms/{room}", a.KillRoom)
		r.Post("/admin/dictionary/reload", a.ReloadDictionary)
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
