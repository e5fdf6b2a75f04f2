package room

import (
	"time"

	"pong-match-system/game"
)

// Conn is the outbound half of a client connection. Send must not block:
// implementations queue the frame and deliver it in order.
type Conn interface {
	Send([]byte) error
	Close() error
}

// Participant is a user seated at a table.
type Participant struct {
	UserID int64
	Conn   Conn
}

// Result is produced exactly once when a session reaches its terminal phase.
type Result struct {
	SessionID  string
	Players    [2]int64 // indexed by game.Side
	WinnerID   int64
	Loser      game.Side
	Score      game.Score
	Forfeit    bool
	FinishedAt time.Time
}

// RivalOf returns the other participant's id.
func (r Result) RivalOf(userID int64) int64 {
	if r.Players[game.Left] == userID {
		return r.Players[game.Right]
	}
	return r.Players[game.Left]
}
