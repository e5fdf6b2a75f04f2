package room

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"pong-match-system/game"
	"pong-match-system/protocol"
)

const (
	msgPlayersJoined = "2 Players Joined..."
	msgYouWin        = "You Win!!"
	msgYouLose       = "You lose"
)

// Config tunes a session's clock. Tests shorten the intervals.
type Config struct {
	TickInterval      time.Duration
	CountdownInterval time.Duration
	CountdownTicks    int
	WinningScore      int
	Now               func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TickInterval:      game.TickInterval,
		CountdownInterval: time.Second,
		CountdownTicks:    game.CountdownTicks,
		WinningScore:      game.DefaultWinningScore,
		Now:               time.Now,
	}
}

// Session is the worker that owns one active match. Game state is touched
// only by the goroutine running Run; forfeits reach it through a channel and
// paddle input through the latest-value slot.
type Session struct {
	ID string

	cfg      Config
	log      *zap.Logger
	players  [2]Participant
	state    game.State
	inputs   [2]game.Input
	step     func(*game.State, [2]game.Input, float64) (game.Side, bool)
	forfeit  chan game.Side
	onFinish func(Result)
	last     time.Time

	// latest holds the newest flags per side until the session goroutine
	// copies them into inputs. wake has room for one pending signal.
	inputMu sync.Mutex
	latest  [2]game.Input
	wake    chan struct{}
}

// NewSession builds a session for two seated participants. onFinish is called
// from the session goroutine once the match is over.
func NewSession(id string, players [2]Participant, cfg Config, rng *rand.Rand, log *zap.Logger, onFinish func(Result)) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.WinningScore <= 0 {
		cfg.WinningScore = game.DefaultWinningScore
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		ID:       id,
		cfg:      cfg,
		log:      log.With(zap.String("session_id", id)),
		players:  players,
		state:    game.NewState(rng),
		step:     game.Step,
		forfeit:  make(chan game.Side, 2),
		wake:     make(chan struct{}, 1),
		onFinish: onFinish,
	}
}

// Input replaces the paddle flags for a side. It never blocks. Flags not yet
// applied are overwritten, so the newest pair is always the one that counts.
func (s *Session) Input(side game.Side, in game.Input) {
	s.inputMu.Lock()
	s.latest[side] = in
	s.inputMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) applyInput() {
	s.inputMu.Lock()
	s.inputs = s.latest
	s.inputMu.Unlock()
}

// Forfeit ends the match with side as the loser.
func (s *Session) Forfeit(side game.Side) bool {
	select {
	case s.forfeit <- side:
		return true
	default:
		return false
	}
}

// Run drives the session: init, countdown, then the fixed tick loop until a
// side reaches the winning score, a forfeit arrives or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	s.log.Info("session starting",
		zap.Int64("left", s.players[game.Left].UserID),
		zap.Int64("right", s.players[game.Right].UserID))

	for side := game.Left; side <= game.Right; side++ {
		s.sendTo(side, protocol.MustEncode(protocol.OutGameInit, protocol.GameInit{Side: side.String()}))
	}
	s.broadcast(protocol.MustEncode(protocol.OutGameMessage, protocol.Announcement{Text: msgPlayersJoined}))

	for n := s.cfg.CountdownTicks; n > 0; n-- {
		if s.idle(ctx, s.cfg.CountdownInterval) {
			return
		}
		s.broadcast(protocol.MustEncode(protocol.OutGameMessage, protocol.Announcement{Text: strconv.Itoa(n)}))
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	s.last = s.cfg.Now()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session cancelled")
			return
		case <-s.wake:
			s.applyInput()
		case side := <-s.forfeit:
			s.finish(side, true)
			return
		case <-ticker.C:
			s.tick()
			if loser, over := s.state.Loser(s.cfg.WinningScore); over {
				s.finish(loser, false)
				return
			}
		}
	}
}

// idle waits for d while still accepting input. It returns true when the
// session must stop.
func (s *Session) idle(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return true
		case <-s.wake:
			s.applyInput()
		case side := <-s.forfeit:
			s.finish(side, true)
			return true
		case <-timer.C:
			return false
		}
	}
}

func (s *Session) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick failed, skipping", zap.Any("panic", r), zap.Int("tick", s.state.Tick))
		}
	}()
	s.applyInput()
	now := s.cfg.Now()
	dt := now.Sub(s.last).Seconds()
	s.last = now

	if conceded, scored := s.step(&s.state, s.inputs, dt); scored {
		s.log.Debug("point",
			zap.Stringer("conceded", conceded),
			zap.Int("left", s.state.Score.Left),
			zap.Int("right", s.state.Score.Right))
	}
	s.broadcast(protocol.MustEncode(protocol.OutGameUpdate, s.snapshot()))
}

func (s *Session) snapshot() protocol.GameUpdate {
	return protocol.GameUpdate{
		Left:  s.state.Paddles[game.Left],
		Right: s.state.Paddles[game.Right],
		Ball:  protocol.Point{X: s.state.Ball.X, Y: s.state.Ball.Y},
		Score: protocol.Score{Left: s.state.Score.Left, Right: s.state.Score.Right},
	}
}

func (s *Session) finish(loser game.Side, forfeit bool) {
	winner := loser.Opponent()
	s.sendTo(winner, protocol.MustEncode(protocol.OutGameOver, protocol.Text{Message: msgYouWin}))
	s.sendTo(loser, protocol.MustEncode(protocol.OutGameOver, protocol.Text{Message: msgYouLose}))

	res := Result{
		SessionID:  s.ID,
		Players:    [2]int64{s.players[game.Left].UserID, s.players[game.Right].UserID},
		WinnerID:   s.players[winner].UserID,
		Loser:      loser,
		Score:      s.state.Score,
		Forfeit:    forfeit,
		FinishedAt: s.cfg.Now(),
	}
	s.log.Info("session finished",
		zap.Int64("winner_id", res.WinnerID),
		zap.Bool("forfeit", forfeit),
		zap.Int("left", res.Score.Left),
		zap.Int("right", res.Score.Right))
	if s.onFinish != nil {
		s.onFinish(res)
	}
}

func (s *Session) sendTo(side game.Side, b []byte) {
	p := s.players[side]
	if p.Conn == nil {
		return
	}
	if err := p.Conn.Send(b); err != nil {
		s.log.Debug("send failed", zap.Int64("user_id", p.UserID), zap.Error(err))
	}
}

func (s *Session) broadcast(b []byte) {
	for side := game.Left; side <= game.Right; side++ {
		s.sendTo(side, b)
	}
}
