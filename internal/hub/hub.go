package hub

import (
	"context"
	"errors"
	"sort"

	"github.com/coder1568/one9wordchain/internal/engine"
	"github.com/coder1568/one9wordchain/internal/lobby"
	"go.uber.org/zap"
)

var ErrAlreadyRunning = errors.New("a game is already running in this room")
var ErrNotFound = errors.New("no game in this room")
var ErrShutdown = errors.New("hub is shut down")

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Code  string
	Mode  engine.Mode
	Reply chan CreateResult
}

type CreateResult struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type ListLobbies struct {
	Reply chan []*lobby.Lobby
}

// RemoveLobby only removes Lobby if it is still the one registered for Code.
type RemoveLobby struct {
	Code  string
	Lobby *lobby.Lobby
}

type ShutdownHub struct {
	Reply chan []*lobby.Lobby
}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (ListLobbies) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Hub is the room registry. Its loop serializes creation, so two concurrent
// requests for one room can never both succeed.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	deps    lobby.Deps
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, deps lobby.Deps) *Hub {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		deps:    deps,
		log:     deps.Logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if lb := h.lobbies[msg.Code]; lb != nil && !lb.Finished() {
					msg.Reply <- CreateResult{Lobby: lb, Err: ErrAlreadyRunning}
					break
				}
				lb, err := lobby.New(h.ctx, msg.Code, msg.Mode, h.deps, h.release)
				if err != nil {
					msg.Reply <- CreateResult{Err: err}
					break
				}
				h.lobbies[msg.Code] = lb
				h.log.Info("session created", zap.String("room", msg.Code), zap.String("game", lb.GameID()))
				msg.Reply <- CreateResult{Lobby: lb}

			case GetLobby:
				lb := h.lobbies[msg.Code]
				if lb != nil && lb.Finished() {
					lb = nil
				}
				msg.Reply <- lb // May be nil

			case ListLobbies:
				out := make([]*lobby.Lobby, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					if !lb.Finished() {
						out = append(out, lb)
					}
				}
				sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
				msg.Reply <- out

			case RemoveLobby:
				if h.lobbies[msg.Code] == msg.Lobby {
					delete(h.lobbies, msg.Code)
					h.log.Info("session removed", zap.String("room", msg.Code), zap.String("game", msg.Lobby.GameID()))
				}

			case ShutdownHub:
				all := make([]*lobby.Lobby, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					all = append(all, lb)
				}
				clear(h.lobbies)
				h.cancel()
				msg.Reply <- all
				return
			}
		}
	}
}

// release is every lobby's end hook.
func (h *Hub) release(lb *lobby.Lobby) {
	select {
	case h.inbox <- RemoveLobby{Code: lb.Code(), Lobby: lb}:
	case <-h.done:
	}
}

// Create opens a session for code. If a live one exists it is returned along
// with ErrAlreadyRunning.
func (h *Hub) Create(ctx context.Context, code string, mode engine.Mode) (*lobby.Lobby, error) {
	reply := make(chan CreateResult, 1)
	if err := h.post(ctx, CreateLobby{Code: code, Mode: mode, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.Lobby, r.Err
	case <-h.done:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Get(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.post(ctx, GetLobby{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		if lb == nil {
			return nil, ErrNotFound
		}
		return lb, nil
	case <-h.done:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) List(ctx context.Context) ([]*lobby.Lobby, error) {
	reply := make(chan []*lobby.Lobby, 1)
	if err := h.post(ctx, ListLobbies{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-h.done:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown kills every session and waits until each has handed its report
// to the recorder, or until ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	reply := make(chan []*lobby.Lobby, 1)
	if err := h.post(ctx, ShutdownHub{Reply: reply}); err != nil {
		if errors.Is(err, ErrShutdown) {
			return nil
		}
		return err
	}
	var all []*lobby.Lobby
	select {
	case all = <-reply:
	case <-h.done:
		select {
		case all = <-reply:
		default:
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	h.log.Info("hub shutting down", zap.Int("sessions", len(all)))

	waited := make(chan struct{})
	go func() {
		for _, lb := range all {
			lb.Wait()
		}
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) post(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}
