// handlers/game.go
package handlers

import (
	"context"
	"strconv"
	"time"

	"pong-match-system/middleware"
	"pong-match-system/models"
	"pong-match-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// HistoryReader serves a user's own finished matches.
type HistoryReader interface {
	Recent(ctx context.Context, userID int64, limit int) ([]models.GameHistory, error)
}

// LobbyView is what the HTTP routes need from the lobby.
type LobbyView interface {
	Stats(ctx context.Context) (services.Stats, error)
	CreateRoom(ctx context.Context) (string, error)
}

// PresenceCounter reports how many known users sit in a presence state.
type PresenceCounter interface {
	CountByState(ctx context.Context, state models.PresenceState) (int64, error)
}

type statsResponse struct {
	services.Stats
	Presence map[models.PresenceState]int64 `json:"presence,omitempty"`
}

var countedStates = []models.PresenceState{
	models.StateOffline,
	models.StateInLobby,
	models.StateQueued,
	models.StatePlaying,
}

type historyItem struct {
	SessionID   string `json:"session_id"`
	PlayerID    int64  `json:"player_id"`
	RivalID     int64  `json:"rival_id"`
	WinnerID    int64  `json:"winner_id"`
	Won         bool   `json:"won"`
	PlayerScore int    `json:"player_score"`
	RivalScore  int    `json:"rival_score"`
	Forfeit     bool   `json:"forfeit"`
	FinishedAt  string `json:"finished_at"`
}

// SetupGameRoutes mounts the HTTP side of the game service:
//
//	GET  /api/game/history  caller's recent matches (?limit=, max 20)
//	POST /api/game/rooms    open a room anyone can join by id
//	GET  /api/game/stats    lobby counters and stored presence, gateway token only
func SetupGameRoutes(app *fiber.App, history HistoryReader, lobby LobbyView, presence PresenceCounter, verifier middleware.Verifier, gatewayToken string, log *zap.Logger) {
	log = log.With(zap.String("component", "http"))
	api := app.Group("/api/game")

	api.Get("/history", middleware.BearerAuth(verifier, log), func(c *fiber.Ctx) error {
		userID, _ := middleware.UserID(c)
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
			}
			limit = n
		}

		rows, err := history.Recent(c.UserContext(), userID, limit)
		if err != nil {
			log.Error("history query failed", zap.Int64("user_id", userID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load history"})
		}

		out := make([]historyItem, len(rows))
		for i, r := range rows {
			out[i] = historyItem{
				SessionID:   r.SessionID,
				PlayerID:    r.PlayerID,
				RivalID:     r.RivalID,
				WinnerID:    r.WinnerID,
				Won:         r.WinnerID == r.PlayerID,
				PlayerScore: r.PlayerScore,
				RivalScore:  r.RivalScore,
				Forfeit:     r.Forfeit,
				FinishedAt:  r.FinishedAt.UTC().Format(time.RFC3339),
			}
		}
		return c.JSON(out)
	})

	api.Post("/rooms", middleware.BearerAuth(verifier, log), func(c *fiber.Ctx) error {
		id, err := lobby.CreateRoom(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "lobby unavailable"})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"roomid": id})
	})

	api.Get("/stats", middleware.GatewayAuth(gatewayToken, log), func(c *fiber.Ctx) error {
		st, err := lobby.Stats(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "lobby unavailable"})
		}
		out := statsResponse{Stats: st}
		if presence == nil {
			return c.JSON(out)
		}
		out.Presence = make(map[models.PresenceState]int64, len(countedStates))
		for _, state := range countedStates {
			n, err := presence.CountByState(c.UserContext(), state)
			if err != nil {
				log.Warn("presence count failed", zap.String("state", string(state)), zap.Error(err))
				out.Presence = nil
				break
			}
			out.Presence[state] = n
		}
		return c.JSON(out)
	})
}
