// handlers/socket.go
package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"pong-match-system/middleware"
	"pong-match-system/protocol"
	"pong-match-system/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	outboundBuffer = 256
	writeWait      = 5 * time.Second
	connectTimeout = 5 * time.Second
)

var (
	errClientClosed = errors.New("client closed")
	errSlowClient   = errors.New("client outbound queue full")
)

// wsClient is the lobby's handle on one websocket. Frames are queued and
// written by a single goroutine, so they reach the peer in Send order.
type wsClient struct {
	conn       *websocket.Conn
	out        chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:       conn,
		out:        make(chan []byte, outboundBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (c *wsClient) Send(b []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		// A peer this far behind is dropped; closing the socket ends its read loop.
		c.Close()
		_ = c.conn.Close()
		return errSlowClient
	}
}

func (c *wsClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *wsClient) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

type socketHandler struct {
	lobby *services.Lobby
	log   *zap.Logger
}

// SetupSocketRoutes mounts the game websocket at /api/game/socket. The
// credential is checked before the upgrade; a refused one gets a 401.
func SetupSocketRoutes(app *fiber.App, lobby *services.Lobby, verifier middleware.Verifier, log *zap.Logger) {
	h := &socketHandler{lobby: lobby, log: log.With(zap.String("component", "socket"))}

	app.Use("/api/game/socket", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/game/socket", middleware.BearerAuth(verifier, log), websocket.New(h.serve))
}

func (h *socketHandler) serve(conn *websocket.Conn) {
	userID, ok := conn.Locals(middleware.UserIDKey).(int64)
	if !ok {
		h.reject(conn, websocket.ClosePolicyViolation, "unauthenticated")
		return
	}
	log := h.log.With(zap.Int64("user_id", userID))

	client := newWSClient(conn)
	go client.writeLoop()
	defer func() {
		client.Close()
		<-client.writerDone
	}()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	err := h.lobby.Connect(ctx, userID, client)
	cancel()
	if err != nil {
		// The lobby may have registered the client before a timeout fired.
		h.lobby.Disconnect(userID, client)
		client.Close()
		<-client.writerDone
		log.Info("connection refused", zap.Error(err))
		code, reason := refusal(err)
		h.reject(conn, code, reason)
		return
	}
	defer h.lobby.Disconnect(userID, client)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		frame, err := protocol.DecodeInbound(msg)
		if err != nil {
			log.Debug("discarding malformed frame", zap.Error(err))
			continue
		}
		h.lobby.Dispatch(userID, frame)
	}
}

// refusal maps a failed Connect to a close code and reason.
func refusal(err error) (int, string) {
	if errors.Is(err, services.ErrAlreadyConnected) {
		return websocket.ClosePolicyViolation, "already connected"
	}
	return websocket.CloseTryAgainLater, "service unavailable"
}

func (h *socketHandler) reject(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
