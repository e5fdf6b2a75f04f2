package services

import (
	"time"

	"pong-match-system/room"
)

// Commands posted to the lobby inbox. Reply channels are buffered so the
// lobby never blocks answering a caller that gave up.

type connectCmd struct {
	UserID int64
	Conn   room.Conn
	Reply  chan error
}

type disconnectCmd struct {
	UserID int64
	Conn   room.Conn
}

type queueJoinCmd struct {
	UserID int64
}

type queueCancelCmd struct {
	UserID int64
}

type roomJoinCmd struct {
	UserID int64
	RoomID string
}

type createRoomCmd struct {
	Reply chan string
}

type sessionFinished struct {
	Result room.Result
}

type reapPendingCmd struct {
	TTL   time.Duration
	Reply chan int
}

type statsCmd struct {
	Reply chan Stats
}

// Stats is a point-in-time view of the lobby.
type Stats struct {
	Queued    int `json:"queued"`
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Connected int `json:"connected"`
}
