package room

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pong-match-system/game"
	"pong-match-system/protocol"
)

type fakeConn struct {
	sendCh chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{sendCh: make(chan []byte, 1024)}
}

func (f *fakeConn) Send(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case f.sendCh <- cp:
	default:
	}
	return nil
}

func (f *fakeConn) Close() error { return nil }

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Unix(0, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(step)
		return t
	}
}

func fastConfig() Config {
	return Config{
		TickInterval:      time.Millisecond,
		CountdownInterval: time.Millisecond,
		CountdownTicks:    3,
		WinningScore:      game.DefaultWinningScore,
		Now:               steppingClock(100 * time.Millisecond),
	}
}

type frame struct {
	event string
	env   protocol.Envelope
}

func next(t *testing.T, fc *fakeConn) frame {
	t.Helper()
	select {
	case b := <-fc.sendCh:
		env, err := protocol.DecodeOutbound(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return frame{event: env.Event, env: env}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a frame")
	}
	return frame{}
}

func text(t *testing.T, f frame) string {
	t.Helper()
	p, err := protocol.DecodePayload[protocol.Text](f.env)
	if err != nil {
		t.Fatalf("decode text: %v", err)
	}
	return p.Message
}

func announcement(t *testing.T, f frame) string {
	t.Helper()
	p, err := protocol.DecodePayload[protocol.Announcement](f.env)
	if err != nil {
		t.Fatalf("decode announcement: %v", err)
	}
	return p.Text
}

func waitFor(t *testing.T, fc *fakeConn, event protocol.Outbound) frame {
	t.Helper()
	for {
		f := next(t, fc)
		if f.event == string(event) {
			return f
		}
	}
}

func newTestSession(cfg Config, results chan Result) (*Session, *fakeConn, *fakeConn) {
	left, right := newFakeConn(), newFakeConn()
	players := [2]Participant{{UserID: 11, Conn: left}, {UserID: 22, Conn: right}}
	s := NewSession("s-1", players, cfg, rand.New(rand.NewPCG(5, 5)), nil, func(r Result) { results <- r })
	return s, left, right
}

func TestSessionStartSequence(t *testing.T) {
	results := make(chan Result, 1)
	s, left, right := newTestSession(fastConfig(), results)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for side, fc := range []*fakeConn{left, right} {
		f := next(t, fc)
		if f.event != string(protocol.OutGameInit) {
			t.Fatalf("first frame = %s, want game:init", f.event)
		}
		init, _ := protocol.DecodePayload[protocol.GameInit](f.env)
		if init.Side != game.Side(side).String() {
			t.Fatalf("side = %q, want %q", init.Side, game.Side(side))
		}
		if msg := announcement(t, next(t, fc)); msg != msgPlayersJoined {
			t.Fatalf("message = %q", msg)
		}
		for _, want := range []string{"3", "2", "1"} {
			f := next(t, fc)
			if f.event != string(protocol.OutGameMessage) || announcement(t, f) != want {
				t.Fatalf("countdown frame = %s %q, want %q", f.event, f.env.Data, want)
			}
		}
		if f := next(t, fc); f.event != string(protocol.OutGameUpdate) {
			t.Fatalf("frame after countdown = %s, want game:update", f.event)
		}
	}
}

func TestSessionEndsAtWinningScore(t *testing.T) {
	results := make(chan Result, 1)
	cfg := fastConfig()
	cfg.CountdownTicks = 0
	s, left, right := newTestSession(cfg, results)
	s.state.Score = game.Score{Left: 3, Right: 4}
	s.state.Paddles = [2]float64{150, 150}
	s.state.Ball = game.Ball{X: 595, Y: 300, DX: 1, Speed: game.BallRallySpeed}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	var res Result
	select {
	case res = <-results:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not finish")
	}
	if res.Score != (game.Score{Left: 3, Right: 5}) {
		t.Fatalf("score = %+v, want 3-5", res.Score)
	}
	if res.Loser != game.Right || res.WinnerID != 11 {
		t.Fatalf("loser/winner = %v/%d, want right/11", res.Loser, res.WinnerID)
	}
	if res.Forfeit {
		t.Fatalf("result marked as forfeit")
	}
	if got := text(t, waitFor(t, left, protocol.OutGameOver)); got != msgYouWin {
		t.Fatalf("left game:over = %q, want %q", got, msgYouWin)
	}
	if got := text(t, waitFor(t, right, protocol.OutGameOver)); got != msgYouLose {
		t.Fatalf("right game:over = %q, want %q", got, msgYouLose)
	}
}

func TestSessionForfeitDuringCountdown(t *testing.T) {
	results := make(chan Result, 1)
	cfg := fastConfig()
	cfg.CountdownInterval = time.Hour
	s, left, _ := newTestSession(cfg, results)
	s.Forfeit(game.Right)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case res := <-results:
		if !res.Forfeit || res.WinnerID != 11 || res.RivalOf(11) != 22 {
			t.Fatalf("result = %+v, want forfeit won by 11", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("forfeit did not end the session")
	}
	if got := text(t, waitFor(t, left, protocol.OutGameOver)); got != msgYouWin {
		t.Fatalf("left game:over = %q", got)
	}
}

func TestSessionAppliesLatestPaddleInput(t *testing.T) {
	results := make(chan Result, 1)
	cfg := fastConfig()
	cfg.CountdownTicks = 0
	s, left, _ := newTestSession(cfg, results)
	s.Input(game.Left, game.Input{Down: true})
	s.Input(game.Left, game.Input{Up: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 10; i++ {
		u, err := protocol.DecodePayload[protocol.GameUpdate](waitFor(t, left, protocol.OutGameUpdate).env)
		if err != nil {
			t.Fatalf("decode update: %v", err)
		}
		if u.Right != game.PaddleStart {
			t.Fatalf("right paddle = %v, want untouched", u.Right)
		}
		if u.Left < game.PaddleStart {
			return
		}
	}
	t.Fatalf("left paddle never moved up from %v", game.PaddleStart)
}

func TestSessionKeepsNewestInputAfterBurst(t *testing.T) {
	results := make(chan Result, 1)
	cfg := fastConfig()
	cfg.CountdownTicks = 0
	s, left, _ := newTestSession(cfg, results)
	for i := 0; i < 64; i++ {
		s.Input(game.Left, game.Input{Down: true})
	}
	s.Input(game.Left, game.Input{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 5; i++ {
		u, err := protocol.DecodePayload[protocol.GameUpdate](waitFor(t, left, protocol.OutGameUpdate).env)
		if err != nil {
			t.Fatalf("decode update: %v", err)
		}
		if u.Left != game.PaddleStart {
			t.Fatalf("left paddle = %v after release, want %v", u.Left, game.PaddleStart)
		}
	}
}

func TestSessionSurvivesFaultyTick(t *testing.T) {
	results := make(chan Result, 1)
	cfg := fastConfig()
	cfg.CountdownTicks = 0
	s, left, _ := newTestSession(cfg, results)
	var calls atomic.Int32
	s.step = func(st *game.State, in [2]game.Input, dt float64) (game.Side, bool) {
		if calls.Add(1) == 1 {
			panic("corrupt state")
		}
		return game.Step(st, in, dt)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// The failed tick broadcasts nothing, so any update comes from a later one.
	waitFor(t, left, protocol.OutGameUpdate)
	if n := calls.Load(); n < 2 {
		t.Fatalf("step called %d times, want the loop to continue past the fault", n)
	}
}

func TestSessionStopsOnCancel(t *testing.T) {
	results := make(chan Result, 1)
	s, _, _ := newTestSession(fastConfig(), results)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	select {
	case r := <-results:
		t.Fatalf("cancelled session produced a result: %+v", r)
	default:
	}
}
