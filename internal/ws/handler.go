package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder1568/one9wordchain/internal/auth"
	"github.com/coder1568/one9wordchain/internal/engine"
	"github.com/coder1568/one9wordchain/internal/hub"
	"github.com/coder1568/one9wordchain/internal/lobby"
	"github.com/coder1568/one9wordchain/internal/types"
	ptypes "github.com/coder1568/one9wordchain/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUnknownType = errors.New("unknown message type")
var ErrForbidden = errors.New("admin only")
var ErrMissingTarget = errors.New("user_id is required")

const (
	writeTimeout = 3 * time.Second
	readLimit    = 4096
)

type Options struct {
	// OriginPatterns are passed to websocket.Accept. Empty means same origin only.
	OriginPatterns []string
}

// Handler upgrades /ws?room=...&token=... and bridges the socket to the
// room's running session.
func Handler(h *hub.Hub, iss *auth.Issuer, log *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}
		id, err := iss.Parse(auth.TokenFrom(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		lb, err := h.Get(r.Context(), room)
		if err != nil {
			http.Error(w, "no game in this room", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(readLimit)

		clientID := uuid.NewString()
		log := log.With(zap.String("room", room), zap.String("client", clientID), zap.String("user", id.UserID))

		out := make(chan lobby.Snapshot, 16)
		if err := lb.Subscribe(r.Context(), clientID, out); err != nil {
			conn.Close(websocket.StatusNormalClosure, "game over")
			return
		}
		log.Debug("client connected")
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = lb.Unsubscribe(ctx, clientID)
			log.Debug("client disconnected")
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			first := true
			for {
				select {
				case <-ctx.Done():
					return
				case snap, ok := <-out:
					if !ok {
						// Outbox closed: the session ended or we fell behind.
						conn.Close(websocket.StatusNormalClosure, "game over")
						return
					}
					msg := types.ServerMessage{
						Type:    ptypes.ServerEvent,
						Version: snap.Version,
						State:   &snap.State,
						Events:  snap.Events,
					}
					if first {
						msg.Type = ptypes.ServerSnapshot
						first = false
					}
					if err := write(ctx, conn, msg); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(ctx, conn, types.ServerMessage{Type: ptypes.ServerError, Error: "bad json"})
				continue
			}

			cmd, err := ToCommand(cm, id)
			if err != nil {
				_ = write(ctx, conn, types.ServerMessage{Type: ptypes.ServerError, Error: err.Error()})
				continue
			}

			if _, err := lb.Do(ctx, cmd); err != nil {
				if ctx.Err() != nil {
					return
				}
				_ = write(ctx, conn, errorMessage(err))
			}
		}
	}
}

// ToCommand maps a client frame to a session command issued by id.
func ToCommand(m types.ClientMessage, id auth.Identity) (engine.Command, error) {
	cmd := engine.Command{UserID: id.UserID, Name: id.Name}
	admin := true
	switch m.Type {
	case ptypes.ClientJoin:
		cmd.Type, admin = engine.CmdJoin, false
	case ptypes.ClientFlee:
		cmd.Type, admin = engine.CmdFlee, false
	case ptypes.ClientAnswer:
		cmd.Type, admin = engine.CmdAnswer, false
		cmd.Word = m.Word
	case ptypes.ClientStart:
		cmd.Type = engine.CmdStart
	case ptypes.ClientSkip:
		cmd.Type = engine.CmdForceSkip
	case ptypes.ClientForceFlee:
		cmd = engine.Command{Type: engine.CmdForceFlee, UserID: m.UserID}
	case ptypes.ClientAddVP:
		cmd.Type = engine.CmdAddVirtual
	case ptypes.ClientRemoveVP:
		cmd = engine.Command{Type: engine.CmdRemoveVirtual, UserID: m.UserID}
	case ptypes.ClientExtend:
		cmd.Type = engine.CmdExtendJoin
		cmd.Duration = time.Duration(m.Seconds) * time.Second
	case ptypes.ClientForceJoin:
		cmd = engine.Command{Type: engine.CmdJoin, UserID: m.UserID, Name: m.Name}
	case ptypes.ClientIncMaxP:
		cmd.Type = engine.CmdRaiseCap
	case ptypes.ClientKill:
		cmd.Type = engine.CmdKill
	default:
		return engine.Command{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if admin && !id.Admin {
		return engine.Command{}, ErrForbidden
	}
	if cmd.UserID == "" {
		return engine.Command{}, ErrMissingTarget
	}
	return cmd, nil
}

func errorMessage(err error) types.ServerMessage {
	msg := types.ServerMessage{Type: ptypes.ServerError, Error: err.Error()}
	var inv *engine.InvalidWordError
	if errors.As(err, &inv) {
		msg.Reason = inv.Reason
	}
	if !engine.IsUserError(err) {
		msg.Error = "internal error"
	}
	return msg
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
