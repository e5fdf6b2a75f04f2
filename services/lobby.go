package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"pong-match-system/game"
	"pong-match-system/models"
	"pong-match-system/protocol"
	"pong-match-system/room"

	"go.uber.org/zap"
)

var (
	ErrAlreadyConnected = errors.New("user already connected")
	ErrLobbyClosed      = errors.New("lobby closed")
)

const (
	reasonBadQueueState  = "Bad state to queue"
	reasonBadCancelState = "Bad state to cancel queue"
	reasonInRoom         = "Already in a room"
	reasonRoomNotFound   = "Room not playable"
	reasonRoomFull       = "Room is full"
	reasonNotInvited     = "Not invited to this room"
	reasonBadJoinState   = "Bad state to join room"
	reasonStore          = "Service unavailable, try again"
	reasonOpponentLeft   = "opponent disconnected"
	reasonRoomExpired    = "room expired"
)

// PresenceStore is the durable presence slot per user.
type PresenceStore interface {
	GetState(ctx context.Context, userID int64) (models.PresenceState, error)
	SetState(ctx context.Context, userID int64, state models.PresenceState) error
	RecordUser(ctx context.Context, userID int64) error
}

type LobbyConfig struct {
	Session      room.Config
	StoreTimeout time.Duration
	Seed         [2]uint64
}

func DefaultLobbyConfig() LobbyConfig {
	return LobbyConfig{
		Session:      room.DefaultConfig(),
		StoreTimeout: 5 * time.Second,
		Seed:         [2]uint64{uint64(time.Now().UnixNano()), rand.Uint64()},
	}
}

// Lobby coordinates connections, the matchmaking queue and the session
// registry. All of that state belongs to the goroutine running Run; the
// exported methods only post commands to its inbox. Paddle input is the
// exception and goes straight to the running session.
type Lobby struct {
	Inbox chan any

	cfg      LobbyConfig
	log      *zap.Logger
	presence PresenceStore
	recorder MatchRecorder
	rng      *rand.Rand

	queue   *MatchmakingQueue
	rooms   *room.Registry
	clients map[int64]room.Conn
	seats   map[int64]string

	// controls maps a playing user id to its paddleControl. The lobby
	// goroutine writes it; Dispatch reads it so paddle input skips the inbox.
	controls sync.Map

	runCtx   context.Context
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

func NewLobby(cfg LobbyConfig, presence PresenceStore, recorder MatchRecorder, log *zap.Logger) *Lobby {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	rng := rand.New(rand.NewPCG(cfg.Seed[0], cfg.Seed[1]))
	return &Lobby{
		Inbox:    make(chan any, 256),
		cfg:      cfg,
		log:      log.With(zap.String("component", "lobby")),
		presence: presence,
		recorder: recorder,
		rng:      rng,
		queue:    NewMatchmakingQueue(),
		rooms:    room.NewRegistry(rng),
		clients:  make(map[int64]room.Conn),
		seats:    make(map[int64]string),
		quit:     make(chan struct{}),
	}
}

// Run processes commands until ctx is cancelled, then cancels every running
// session and waits for them and for pending history writes.
func (l *Lobby) Run(ctx context.Context) {
	sessCtx, cancel := context.WithCancel(ctx)
	l.runCtx = sessCtx
	defer func() {
		l.quitOnce.Do(func() { close(l.quit) })
		cancel()
		l.wg.Wait()
		l.log.Info("lobby stopped")
	}()

	l.log.Info("lobby started")
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-l.Inbox:
			l.handleCommand(cmd)
		}
	}
}

func (l *Lobby) post(cmd any) bool {
	select {
	case l.Inbox <- cmd:
		return true
	case <-l.quit:
		return false
	}
}

// Connect admits a new connection for userID. It fails with
// ErrAlreadyConnected when the user is not offline.
func (l *Lobby) Connect(ctx context.Context, userID int64, conn room.Conn) error {
	reply := make(chan error, 1)
	if !l.post(connectCmd{UserID: userID, Conn: conn, Reply: reply}) {
		return ErrLobbyClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.quit:
		return ErrLobbyClosed
	}
}

// Disconnect is a no-op unless conn is the user's current connection.
func (l *Lobby) Disconnect(userID int64, conn room.Conn) {
	l.post(disconnectCmd{UserID: userID, Conn: conn})
}

// Dispatch routes one decoded inbound frame.
func (l *Lobby) Dispatch(userID int64, f protocol.Frame) {
	switch f.Event {
	case protocol.InQueueJoin:
		l.post(queueJoinCmd{UserID: userID})
	case protocol.InQueueCancel:
		l.post(queueCancelCmd{UserID: userID})
	case protocol.InRoomJoin:
		l.post(roomJoinCmd{UserID: userID, RoomID: f.Room.RoomID})
	case protocol.InPaddle:
		if v, ok := l.controls.Load(userID); ok {
			pc := v.(paddleControl)
			pc.session.Input(pc.side, game.Input{Up: f.Paddle.Up, Down: f.Paddle.Down})
		}
	}
}

// CreateRoom opens a pending session anyone can join by id.
func (l *Lobby) CreateRoom(ctx context.Context) (string, error) {
	reply := make(chan string, 1)
	if !l.post(createRoomCmd{Reply: reply}) {
		return "", ErrLobbyClosed
	}
	select {
	case id := <-reply:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.quit:
		return "", ErrLobbyClosed
	}
}

// ReapPending disposes pending sessions older than ttl and returns how many.
func (l *Lobby) ReapPending(ctx context.Context, ttl time.Duration) (int, error) {
	reply := make(chan int, 1)
	if !l.post(reapPendingCmd{TTL: ttl, Reply: reply}) {
		return 0, ErrLobbyClosed
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.quit:
		return 0, ErrLobbyClosed
	}
}

func (l *Lobby) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if !l.post(statsCmd{Reply: reply}) {
		return Stats{}, ErrLobbyClosed
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-l.quit:
		return Stats{}, ErrLobbyClosed
	}
}

func (l *Lobby) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case connectCmd:
		c.Reply <- l.handleConnect(c.UserID, c.Conn)
	case disconnectCmd:
		l.handleDisconnect(c.UserID, c.Conn)
	case queueJoinCmd:
		l.handleQueueJoin(c.UserID)
	case queueCancelCmd:
		l.handleQueueCancel(c.UserID)
	case roomJoinCmd:
		l.handleRoomJoin(c.UserID, c.RoomID)
	case createRoomCmd:
		c.Reply <- l.rooms.CreatePending()
	case sessionFinished:
		l.handleSessionFinished(c.Result)
	case reapPendingCmd:
		c.Reply <- l.reapPending(c.TTL)
	case statsCmd:
		pending, active := l.rooms.Counts()
		c.Reply <- Stats{
			Queued:    l.queue.Size(),
			Pending:   pending,
			Active:    active,
			Connected: len(l.clients),
		}
	default:
		l.log.Warn("unknown lobby command", zap.String("type", fmt.Sprintf("%T", cmd)))
	}
}

func (l *Lobby) handleConnect(userID int64, conn room.Conn) error {
	log := l.log.With(zap.Int64("user_id", userID))
	if _, ok := l.clients[userID]; ok {
		log.Info("connection refused, already connected")
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.StoreTimeout)
	defer cancel()
	st, err := l.presence.GetState(ctx, userID)
	if err != nil {
		return fmt.Errorf("connect %d: %w", userID, err)
	}
	if st.Effective() != models.StateOffline {
		log.Info("connection refused", zap.String("state", string(st)))
		return ErrAlreadyConnected
	}
	if st == models.StateUnknown {
		if err := l.presence.RecordUser(ctx, userID); err != nil {
			return fmt.Errorf("connect %d: %w", userID, err)
		}
	}
	if err := l.presence.SetState(ctx, userID, models.StateInLobby); err != nil {
		return fmt.Errorf("connect %d: %w", userID, err)
	}

	l.clients[userID] = conn
	l.send(conn, protocol.OutWelcome, protocol.Text{Message: fmt.Sprintf("welcome to pong game: %d", userID)})
	log.Info("user connected")
	return nil
}

func (l *Lobby) handleDisconnect(userID int64, conn room.Conn) {
	if cur, ok := l.clients[userID]; !ok || cur != conn {
		return
	}
	log := l.log.With(zap.Int64("user_id", userID))
	delete(l.clients, userID)
	l.controls.Delete(userID)
	if l.queue.Cancel(userID) {
		log.Debug("removed from queue")
	}

	if sid, ok := l.seats[userID]; ok {
		if phase, _ := l.rooms.Phase(sid); phase == room.Active {
			if s, ok := l.rooms.Session(sid); ok {
				side, _ := l.rooms.SeatOf(sid, userID)
				s.Forfeit(side)
				log.Info("forfeit on disconnect", zap.String("session_id", sid))
			}
		}
	}
	for _, sid := range l.rooms.PendingInvolving(userID) {
		l.abandonPending(sid, userID, reasonOpponentLeft)
	}

	l.transition(userID, models.StateOffline)
	log.Info("user disconnected")
}

func (l *Lobby) handleQueueJoin(userID int64) {
	conn, ok := l.clients[userID]
	if !ok {
		return
	}
	if sid, seated := l.seats[userID]; seated {
		l.log.Debug("queue join refused, seated", zap.Int64("user_id", userID), zap.String("session_id", sid))
		l.send(conn, protocol.OutQueueError, protocol.ErrorMessage{Message: reasonInRoom})
		return
	}
	st, ok := l.state(userID)
	if !ok {
		l.send(conn, protocol.OutQueueError, protocol.ErrorMessage{Message: reasonStore})
		return
	}
	if st != models.StateInLobby || l.queue.Contains(userID) {
		l.log.Debug("queue join refused", zap.Int64("user_id", userID), zap.String("state", string(st)))
		l.send(conn, protocol.OutQueueError, protocol.ErrorMessage{Message: reasonBadQueueState})
		return
	}

	l.queue.Enqueue(QueueEntry{UserID: userID, Conn: conn, EnqueuedAt: time.Now()})
	if !l.transition(userID, models.StateQueued) {
		l.queue.Cancel(userID)
		l.send(conn, protocol.OutQueueError, protocol.ErrorMessage{Message: reasonStore})
		return
	}
	l.send(conn, protocol.OutQueueJoined, nil)
	l.log.Debug("queued", zap.Int64("user_id", userID), zap.Int("size", l.queue.Size()))
	l.pair()
}

// pair turns the two longest-waiting entries into a pending session reserved
// for them and tells both its id.
func (l *Lobby) pair() {
	for {
		pair, ok := l.queue.DequeuePair()
		if !ok {
			return
		}
		sid := l.rooms.CreatePending(pair[0].UserID, pair[1].UserID)
		for _, e := range pair {
			l.transition(e.UserID, models.StateInLobby)
			l.send(e.Conn, protocol.OutRoomID, protocol.RoomRef{RoomID: sid})
		}
		l.log.Info("paired",
			zap.String("session_id", sid),
			zap.Int64("first", pair[0].UserID),
			zap.Int64("second", pair[1].UserID))
	}
}

func (l *Lobby) handleQueueCancel(userID int64) {
	conn, ok := l.clients[userID]
	if !ok {
		return
	}
	st, ok := l.state(userID)
	if !ok {
		l.send(conn, protocol.OutQueueError, protocol.ErrorMessage{Message: reasonStore})
		return
	}
	if st != models.StateQueued {
		l.send(conn, protocol.OutQueueError, protocol.ErrorMessage{Message: reasonBadCancelState})
		return
	}
	l.queue.Cancel(userID)
	if !l.transition(userID, models.StateInLobby) {
		l.send(conn, protocol.OutQueueError, protocol.ErrorMessage{Message: reasonStore})
		return
	}
	l.send(conn, protocol.OutQueueCanceled, nil)
}

func (l *Lobby) handleRoomJoin(userID int64, sid string) {
	conn, ok := l.clients[userID]
	if !ok {
		return
	}
	log := l.log.With(zap.Int64("user_id", userID), zap.String("session_id", sid))
	if !l.rooms.Exists(sid) {
		log.Debug("room join refused, no such room")
		l.send(conn, protocol.OutRoomError, protocol.ErrorMessage{Message: reasonRoomNotFound})
		return
	}
	if l.rooms.IsSeated(sid, userID) {
		return
	}
	if other, seated := l.seats[userID]; seated {
		log.Debug("room join refused, seated elsewhere", zap.String("other", other))
		l.send(conn, protocol.OutRoomError, protocol.ErrorMessage{Message: reasonInRoom})
		return
	}
	st, ok := l.state(userID)
	if !ok {
		l.send(conn, protocol.OutRoomError, protocol.ErrorMessage{Message: reasonStore})
		return
	}
	if st != models.StateInLobby {
		log.Debug("room join refused", zap.String("state", string(st)))
		l.send(conn, protocol.OutRoomError, protocol.ErrorMessage{Message: reasonBadJoinState})
		return
	}

	outcome, err := l.rooms.Join(sid, room.Participant{UserID: userID, Conn: conn})
	switch {
	case errors.Is(err, room.ErrSessionFull):
		l.send(conn, protocol.OutRoomError, protocol.ErrorMessage{Message: reasonRoomFull})
		return
	case errors.Is(err, room.ErrNotInvited):
		l.send(conn, protocol.OutRoomError, protocol.ErrorMessage{Message: reasonNotInvited})
		return
	case err != nil:
		l.send(conn, protocol.OutRoomError, protocol.ErrorMessage{Message: reasonRoomNotFound})
		return
	}

	l.seats[userID] = sid
	l.send(conn, protocol.OutRoomJoined, nil)
	if outcome == room.Activated {
		l.startSession(sid)
	}
}

func (l *Lobby) startSession(sid string) {
	players, _ := l.rooms.Participants(sid)
	for _, p := range players {
		l.transition(p.UserID, models.StatePlaying)
	}
	s := room.NewSession(sid, players, l.cfg.Session, l.rng, l.log, func(res room.Result) {
		l.post(sessionFinished{Result: res})
	})
	l.rooms.Attach(sid, s)
	for side, p := range players {
		l.controls.Store(p.UserID, paddleControl{session: s, side: game.Side(side)})
	}

	ctx := l.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		s.Run(ctx)
	}()
}

type paddleControl struct {
	session *room.Session
	side    game.Side
}

func (l *Lobby) handleSessionFinished(res room.Result) {
	l.rooms.Dispose(res.SessionID)
	for _, uid := range res.Players {
		l.controls.Delete(uid)
		if l.seats[uid] == res.SessionID {
			delete(l.seats, uid)
		}
		if _, connected := l.clients[uid]; connected {
			l.transition(uid, models.StateInLobby)
		}
	}

	if l.recorder == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.StoreTimeout)
		defer cancel()
		if err := l.recorder.RecordMatch(ctx, res); err != nil {
			l.log.Error("failed to record match", zap.String("session_id", res.SessionID), zap.Error(err))
		}
	}()
}

// abandonPending disposes a pending session and tells every seated user
// other than leaver why.
func (l *Lobby) abandonPending(sid string, leaver int64, reason string) {
	players, ok := l.rooms.Participants(sid)
	if !ok {
		return
	}
	for _, p := range players {
		if p.UserID == 0 {
			continue
		}
		if l.seats[p.UserID] == sid {
			delete(l.seats, p.UserID)
		}
		if p.UserID != leaver && p.Conn != nil {
			l.send(p.Conn, protocol.OutRoomError, protocol.ErrorMessage{Message: reason})
		}
	}
	l.rooms.Dispose(sid)
	l.log.Info("pending session abandoned", zap.String("session_id", sid), zap.String("reason", reason))
}

func (l *Lobby) reapPending(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	ids := l.rooms.PendingOlderThan(ttl)
	for _, sid := range ids {
		l.abandonPending(sid, 0, reasonRoomExpired)
	}
	return len(ids)
}

// state reads the user's presence, folding unknown into offline.
func (l *Lobby) state(userID int64) (models.PresenceState, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.StoreTimeout)
	defer cancel()
	st, err := l.presence.GetState(ctx, userID)
	if err != nil {
		l.log.Warn("presence read failed", zap.Int64("user_id", userID), zap.Error(err))
		return models.StateUnknown, false
	}
	return st.Effective(), true
}

// transition moves the user to next if the move is legal from the current
// state. Same-state and illegal moves are skipped.
func (l *Lobby) transition(userID int64, next models.PresenceState) bool {
	cur, ok := l.state(userID)
	if !ok {
		return false
	}
	if cur == next {
		return true
	}
	log := l.log.With(zap.Int64("user_id", userID))
	if !cur.CanTransition(next) {
		log.Warn("illegal presence transition skipped", zap.String("from", string(cur)), zap.String("to", string(next)))
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.StoreTimeout)
	defer cancel()
	if err := l.presence.SetState(ctx, userID, next); err != nil {
		log.Warn("presence write failed", zap.String("to", string(next)), zap.Error(err))
		return false
	}
	return true
}

func (l *Lobby) send(conn room.Conn, e protocol.Outbound, payload any) {
	b, err := protocol.Encode(e, payload)
	if err != nil {
		l.log.Error("encode failed", zap.String("event", string(e)), zap.Error(err))
		return
	}
	if err := conn.Send(b); err != nil {
		l.log.Debug("send failed", zap.String("event", string(e)), zap.Error(err))
	}
}
