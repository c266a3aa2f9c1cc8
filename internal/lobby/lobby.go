package lobby

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder1568/one9wordchain/internal/engine"
	"github.com/coder1568/one9wordchain/internal/recorder"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("lobby closed")

const defaultRecordTimeout = 10 * time.Second

type Msg interface{ isLobbyMsg() }

// FromClient carries one command. Reply, if set, must be buffered.
type FromClient struct {
	Cmd   engine.Command
	Reply chan Result
}

func (FromClient) isLobbyMsg() {}

type Result struct {
	Events []engine.Event
	Err    error
}

// TimerFired is posted by the armed deadline timer.
type TimerFired struct{ Gen uint64 }

func (TimerFired) isLobbyMsg() {}

type Subscribe struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
	Ack      chan struct{} // closed once the loop owns Outbox
}

func (Subscribe) isLobbyMsg() {}

type Unsubscribe struct{ ClientID string }

func (Unsubscribe) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// Snapshot is what subscribers receive after every change.
type Snapshot struct {
	Version int
	Events  []engine.Event
	State   engine.Snapshot
}

type View struct {
	Version    int
	NumClients int
	State      engine.Snapshot
}

type Deps struct {
	Dictionary engine.Dictionary
	Recorder   recorder.ScoreRecorder
	Logger     *zap.Logger
	// Settings overrides engine.DefaultSettings per mode.
	Settings      func(engine.Mode) engine.Settings
	Now           func() time.Time
	RecordTimeout time.Duration
}

// Lobby owns one game session. All mutations run on its loop goroutine.
type Lobby struct {
	code    string
	inbox   chan Msg
	session *engine.Session
	version int
	clients map[string]chan Snapshot

	timer    *time.Timer
	armedGen uint64

	deps  Deps
	log   *zap.Logger
	onEnd func(*Lobby)

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	finished atomic.Bool
	wg       sync.WaitGroup
}

// New opens a session in the joining state and starts its loop. onEnd runs
// once, on the loop goroutine, after the session has ended.
func New(parent context.Context, code string, mode engine.Mode, deps Deps, onEnd func(*Lobby)) (*Lobby, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.Nop{}
	}
	if deps.RecordTimeout <= 0 {
		deps.RecordTimeout = defaultRecordTimeout
	}
	cfg := engine.Config{RoomID: code, Mode: mode, Dictionary: deps.Dictionary, Now: deps.Now()}
	if deps.Settings != nil {
		st := deps.Settings(mode)
		cfg.Settings = &st
	}
	session, err := engine.NewSession(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	l := &Lobby{
		code:    code,
		inbox:   make(chan Msg, 64), // Small buffer
		session: session,
		clients: make(map[string]chan Snapshot),
		deps:    deps,
		log: deps.Logger.With(
			zap.String("room", code),
			zap.String("game", session.GameID()),
			zap.String("mode", string(mode)),
		),
		onEnd:  onEnd,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.loop()
	return l, nil
}

func (l *Lobby) Code() string      { return l.code }
func (l *Lobby) GameID() string    { return l.session.GameID() }
func (l *Lobby) Mode() engine.Mode { return l.session.Mode() }

// Done is closed when the loop has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Finished reports whether the session has ended.
func (l *Lobby) Finished() bool { return l.finished.Load() }

// Wait blocks until the loop has exited and the final report was handed to
// the recorder.
func (l *Lobby) Wait() { l.wg.Wait() }

func (l *Lobby) loop() {
	defer l.wg.Done()
	defer close(l.done)
	l.log.Info("session opened")
	l.rearm()

	for {
		select {
		case <-l.ctx.Done():
			l.apply(engine.Command{Type: engine.CmdKill}, nil)
			l.finish()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Subscribe:
				l.clients[msg.ClientID] = msg.Outbox
				close(msg.Ack)
				l.send(msg.ClientID, msg.Outbox, l.greeting())

			case Unsubscribe:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case FromClient:
				l.apply(msg.Cmd, msg.Reply)

			case TimerFired:
				l.apply(engine.Command{Type: engine.CmdTimeout, Gen: msg.Gen}, nil)

			case GetState:
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					State:      l.session.Snapshot(),
				}

			case Shutdown:
				l.apply(engine.Command{Type: engine.CmdKill}, nil)
			}

			if l.session.State() == engine.StateEnded {
				l.finish()
				return
			}
		}
	}
}

func (l *Lobby) apply(cmd engine.Command, reply chan Result) {
	events, err := l.session.Apply(cmd, l.deps.Now())
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrInvariant):
		l.log.Error("session invariant violated", zap.String("cmd", string(cmd.Type)), zap.Error(err))
	case engine.IsUserError(err):
		if cmd.Type != engine.CmdKill {
			l.log.Debug("command rejected",
				zap.String("cmd", string(cmd.Type)),
				zap.String("user", cmd.UserID),
				zap.Error(err))
		}
	default:
		l.log.Warn("command failed", zap.String("cmd", string(cmd.Type)), zap.Error(err))
	}

	if reply != nil {
		select {
		case reply <- Result{Events: events, Err: err}:
		default:
		}
	}
	if len(events) > 0 {
		l.version++
		l.broadcast(Snapshot{Version: l.version, Events: events, State: l.session.Snapshot()})
	}
	l.rearm()
}

// rearm keeps exactly one timer pointed at the session's current deadline.
func (l *Lobby) rearm() {
	deadline, gen := l.session.Deadline()
	if gen == l.armedGen {
		return
	}
	l.armedGen = gen
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if deadline.IsZero() {
		return
	}
	wait := deadline.Sub(l.deps.Now())
	if wait < 0 {
		wait = 0
	}
	l.timer = time.AfterFunc(wait, func() {
		select {
		case l.inbox <- TimerFired{Gen: gen}:
		case <-l.done:
		}
	})
}

func (l *Lobby) finish() {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.finished.Store(true)

	report := l.session.Report()
	l.log.Info("game ended",
		zap.String("reason", string(report.EndReason)),
		zap.String("winner", report.Winner),
		zap.Int("turns", report.Turns))

	l.wg.Add(1)
	go l.record(report)

	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
	if l.onEnd != nil {
		l.onEnd(l)
	}
}

func (l *Lobby) record(report engine.Report) {
	defer l.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), l.deps.RecordTimeout)
	defer cancel()
	if err := l.deps.Recorder.RecordGame(ctx, report); err != nil {
		l.log.Error("record game failed", zap.Error(err))
	}
}

func (l *Lobby) greeting() Snapshot {
	snap := Snapshot{Version: l.version, State: l.session.Snapshot()}
	if l.session.State() == engine.StateJoining {
		snap.Events = []engine.Event{l.session.JoinPrompt()}
	}
	return snap
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		l.send(id, ch, snap)
	}
}

func (l *Lobby) send(id string, ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		//ok
	default:
		// Client is slow/full - drop them.
		close(ch)
		delete(l.clients, id)
		l.log.Debug("dropped slow client", zap.String("client", id))
	}
}

// Do applies cmd and returns the session's answer. Once the session has
// ended every command fails with engine.ErrWrongState.
func (l *Lobby) Do(ctx context.Context, cmd engine.Command) ([]engine.Event, error) {
	reply := make(chan Result, 1)
	select {
	case l.inbox <- FromClient{Cmd: cmd, Reply: reply}:
	case <-l.done:
		return nil, engine.ErrWrongState
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.Events, r.Err
	case <-l.done:
		select {
		case r := <-reply:
			return r.Events, r.Err
		default:
			return nil, engine.ErrWrongState
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Kill ends the session. Killing an ended session is not an error.
func (l *Lobby) Kill(ctx context.Context) error {
	_, err := l.Do(ctx, engine.Command{Type: engine.CmdKill})
	if errors.Is(err, engine.ErrWrongState) {
		return nil
	}
	return err
}

// Subscribe registers outbox for snapshots, starting with a greeting. Once it
// returns nil the lobby closes outbox when the client unsubscribes, falls
// behind, or the session ends. On ErrClosed outbox was never registered.
func (l *Lobby) Subscribe(ctx context.Context, clientID string, outbox chan Snapshot) error {
	ack := make(chan struct{})
	if err := l.post(ctx, Subscribe{ClientID: clientID, Outbox: outbox, Ack: ack}); err != nil {
		return err
	}
	select {
	case <-ack:
		return nil
	case <-l.done:
		select {
		case <-ack:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe closes the client's outbox.
func (l *Lobby) Unsubscribe(ctx context.Context, clientID string) error {
	return l.post(ctx, Unsubscribe{ClientID: clientID})
}

func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.post(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Lobby) post(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
