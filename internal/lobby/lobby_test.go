package lobby

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder1568/one9wordchain/internal/dictionary"
	"github.com/coder1568/one9wordchain/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type captureRecorder struct {
	reports chan engine.Report
	err     error
}

func newCapture(err error) *captureRecorder {
	return &captureRecorder{reports: make(chan engine.Report, 4), err: err}
}

func (c *captureRecorder) RecordGame(_ context.Context, r engine.Report) error {
	c.reports <- r
	return c.err
}

func fastSettings(turn time.Duration) func(engine.Mode) engine.Settings {
	return func(m engine.Mode) engine.Settings {
		s := engine.DefaultSettings(m)
		s.TurnTime, s.MinTurnTime, s.TurnTimeStep = turn, turn, 0
		s.VirtualDelay = 20 * time.Millisecond
		s.IdleLimit = 0
		return s
	}
}

func testDeps(t *testing.T, rec *captureRecorder, turn time.Duration) Deps {
	return Deps{
		Dictionary: dictionary.Default(),
		Recorder:   rec,
		Logger:     zaptest.NewLogger(t),
		Settings:   fastSettings(turn),
	}
}

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvReport(t *testing.T, rec *captureRecorder, within time.Duration) engine.Report {
	t.Helper()
	select {
	case r := <-rec.reports:
		return r
	case <-time.After(within):
		t.Fatalf("timed out waiting for report")
		return engine.Report{}
	}
}

func waitClosed(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox not closed within %v", within)
		}
	}
}

func newLobby(t *testing.T, mode engine.Mode, deps Deps, onEnd func(*Lobby)) *Lobby {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	l, err := New(ctx, "room1", mode, deps, onEnd)
	require.NoError(t, err)
	return l
}

func TestNew_UnknownMode(t *testing.T) {
	_, err := New(context.Background(), "room1", "speedrun", Deps{Dictionary: dictionary.Default()}, nil)
	assert.ErrorIs(t, err, engine.ErrUnknownMode)
}

func TestLobby_SubscribeGetsJoinPrompt(t *testing.T) {
	l := newLobby(t, engine.ModeClassic, testDeps(t, newCapture(nil), time.Minute), nil)

	out := make(chan Snapshot, 4)
	require.NoError(t, l.Subscribe(context.Background(), "c1", out))

	first := recvSnapshot(t, out, 200*time.Millisecond)
	assert.Equal(t, 0, first.Version)
	assert.Equal(t, engine.StateJoining, first.State.State)
	require.Len(t, first.Events, 1)
	assert.Equal(t, engine.EvtPromptJoin, first.Events[0].Type)
}

func TestLobby_Join_BroadcastsAndVersionIncrements(t *testing.T) {
	l := newLobby(t, engine.ModeClassic, testDeps(t, newCapture(nil), time.Minute), nil)
	ctx := context.Background()

	out := make(chan Snapshot, 4)
	require.NoError(t, l.Subscribe(ctx, "c1", out))
	_ = recvSnapshot(t, out, 200*time.Millisecond)

	events, err := l.Do(ctx, engine.Command{Type: engine.CmdJoin, UserID: "a", Name: "Ann"})
	require.NoError(t, err)
	assert.True(t, engine.ContainsEvent(events, engine.EvtPlayerJoined))

	next := recvSnapshot(t, out, 200*time.Millisecond)
	assert.Equal(t, 1, next.Version)
	require.Len(t, next.State.Players, 1)
	assert.Equal(t, "Ann", next.State.Players[0].Name)

	_, err = l.Do(ctx, engine.Command{Type: engine.CmdJoin, UserID: "a", Name: "Ann"})
	assert.ErrorIs(t, err, engine.ErrAlreadyJoined)

	view, err := l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Version, "rejected commands do not bump the version")
}

func TestLobby_UnsubscribeClosesOutbox(t *testing.T) {
	l := newLobby(t, engine.ModeClassic, testDeps(t, newCapture(nil), time.Minute), nil)
	ctx := context.Background()

	out := make(chan Snapshot, 4)
	require.NoError(t, l.Subscribe(ctx, "c1", out))
	recvSnapshot(t, out, 200*time.Millisecond)

	require.NoError(t, l.Unsubscribe(ctx, "c1"))
	view, err := l.State(ctx) // barrier: the loop has handled Unsubscribe
	require.NoError(t, err)
	assert.Zero(t, view.NumClients)
	waitClosed(t, out, 100*time.Millisecond)

	require.NoError(t, l.Unsubscribe(ctx, "c1"), "unknown client is a no-op")
}

func TestLobby_SubscribeAfterEnd(t *testing.T) {
	l := newLobby(t, engine.ModeClassic, testDeps(t, newCapture(nil), time.Minute), nil)
	ctx := context.Background()

	require.NoError(t, l.Kill(ctx))
	<-l.Done()

	out := make(chan Snapshot, 4)
	assert.ErrorIs(t, l.Subscribe(ctx, "late", out), ErrClosed)
}

func TestLobby_DropSlowClient(t *testing.T) {
	l := newLobby(t, engine.ModeClassic, testDeps(t, newCapture(nil), time.Minute), nil)
	ctx := context.Background()

	out := make(chan Snapshot, 1)
	require.NoError(t, l.Subscribe(ctx, "c1", out))
	_, err := l.Do(ctx, engine.Command{Type: engine.CmdJoin, UserID: "a", Name: "Ann"})
	require.NoError(t, err)

	view, err := l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, view.NumClients, "expected slow client to be dropped")
}

func TestLobby_TurnTimerFires(t *testing.T) {
	l := newLobby(t, engine.ModeClassic, testDeps(t, newCapture(nil), 80*time.Millisecond), nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := l.Do(ctx, engine.Command{Type: engine.CmdJoin, UserID: id, Name: id})
		require.NoError(t, err)
	}
	out := make(chan Snapshot, 16)
	require.NoError(t, l.Subscribe(ctx, "c1", out))
	_ = recvSnapshot(t, out, 200*time.Millisecond)

	events, err := l.Do(ctx, engine.Command{Type: engine.CmdStart})
	require.NoError(t, err)
	require.True(t, engine.ContainsEvent(events, engine.EvtTurnPrompt))
	started := recvSnapshot(t, out, 200*time.Millisecond)
	current := started.State.Current

	next := recvSnapshot(t, out, time.Second)
	require.NotEmpty(t, next.Events)
	assert.Equal(t, engine.OutcomeTimeout, next.Events[0].Outcome)
	assert.Equal(t, current, next.Events[0].UserID)
	assert.NotEqual(t, current, next.State.Current)

	require.NoError(t, l.Kill(ctx))
}

func TestLobby_AnswerBeatsTimer(t *testing.T) {
	l := newLobby(t, engine.ModeClassic, testDeps(t, newCapture(nil), 150*time.Millisecond), nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := l.Do(ctx, engine.Command{Type: engine.CmdJoin, UserID: id, Name: id})
		require.NoError(t, err)
	}
	_, err := l.Do(ctx, engine.Command{Type: engine.CmdStart})
	require.NoError(t, err)
	view, err := l.State(ctx)
	require.NoError(t, err)

	_, err = l.Do(ctx, engine.Command{Type: engine.CmdAnswer, UserID: view.State.Current, Word: "apple"})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	view, err = l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "apple", view.State.LastWord)
	assert.Equal(t, 1, view.State.Turn, "the first turn's timer must not fire again")

	require.NoError(t, l.Kill(ctx))
}

func TestLobby_JoinWindowExpiryEndsSession(t *testing.T) {
	rec := newCapture(nil)
	deps := testDeps(t, rec, time.Minute)
	deps.Settings = func(m engine.Mode) engine.Settings {
		s := engine.DefaultSettings(m)
		s.JoinWindow = 50 * time.Millisecond
		return s
	}
	var ended atomic.Int32
	l := newLobby(t, engine.ModeClassic, deps, func(*Lobby) { ended.Add(1) })

	out := make(chan Snapshot, 4)
	require.NoError(t, l.Subscribe(context.Background(), "c1", out))
	_, err := l.Do(context.Background(), engine.Command{Type: engine.CmdJoin, UserID: "a", Name: "Ann"})
	require.NoError(t, err)

	r := recvReport(t, rec, time.Second)
	assert.Equal(t, engine.EndNotEnough, r.EndReason)
	waitClosed(t, out, time.Second)
	<-l.Done()
	assert.True(t, l.Finished())
	assert.Equal(t, int32(1), ended.Load())
}

func TestLobby_KillMidTurn(t *testing.T) {
	rec := newCapture(nil)
	var ended atomic.Int32
	l := newLobby(t, engine.ModeClassic, testDeps(t, rec, time.Minute), func(*Lobby) { ended.Add(1) })
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := l.Do(ctx, engine.Command{Type: engine.CmdJoin, UserID: id, Name: id})
		require.NoError(t, err)
	}
	_, err := l.Do(ctx, engine.Command{Type: engine.CmdStart})
	require.NoError(t, err)
	view, err := l.State(ctx)
	require.NoError(t, err)

	require.NoError(t, l.Kill(ctx))
	_, err = l.Do(ctx, engine.Command{Type: engine.CmdAnswer, UserID: view.State.Current, Word: "apple"})
	assert.ErrorIs(t, err, engine.ErrWrongState)
	require.NoError(t, l.Kill(ctx), "kill is idempotent")

	assert.Equal(t, engine.EndKilled, recvReport(t, rec, time.Second).EndReason)
	l.Wait()
	assert.Equal(t, int32(1), ended.Load())

	_, err = l.State(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLobby_ParentCancelKillsSession(t *testing.T) {
	rec := newCapture(nil)
	ctx, cancel := context.WithCancel(context.Background())
	l, err := New(ctx, "room1", engine.ModeClassic, testDeps(t, rec, time.Minute), nil)
	require.NoError(t, err)

	cancel()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby did not stop")
	}
	assert.Equal(t, engine.EndKilled, recvReport(t, rec, time.Second).EndReason)
}

func TestLobby_RecorderFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	deps := testDeps(t, newCapture(errors.New("disk full")), time.Minute)
	deps.Logger = zap.New(core)
	l := newLobby(t, engine.ModeClassic, deps, nil)

	require.NoError(t, l.Kill(context.Background()))
	l.Wait()

	failed := logs.FilterMessage("record game failed")
	require.Equal(t, 1, failed.Len())
	assert.Equal(t, "room1", failed.All()[0].ContextMap()["room"])
	assert.Equal(t, 1, logs.FilterMessage("game ended").Len())
}

func TestLobby_VirtualPlayerAnswers(t *testing.T) {
	l := newLobby(t, engine.ModeClassic, testDeps(t, newCapture(nil), 80*time.Millisecond), nil)
	ctx := context.Background()

	_, err := l.Do(ctx, engine.Command{Type: engine.CmdJoin, UserID: "a", Name: "Ann"})
	require.NoError(t, err)
	events, err := l.Do(ctx, engine.Command{Type: engine.CmdAddVirtual})
	require.NoError(t, err)
	bot := events[0].UserID

	out := make(chan Snapshot, 32)
	require.NoError(t, l.Subscribe(ctx, "c1", out))
	_ = recvSnapshot(t, out, 200*time.Millisecond)
	_, err = l.Do(ctx, engine.Command{Type: engine.CmdStart})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-out:
			for _, e := range snap.Events {
				if e.Type == engine.EvtAnswerResult && e.UserID == bot {
					assert.Equal(t, engine.OutcomeAccepted, e.Outcome)
					require.NoError(t, l.Kill(ctx))
					return
				}
			}
		case <-deadline:
			t.Fatal("bot never answered")
		}
	}
}
