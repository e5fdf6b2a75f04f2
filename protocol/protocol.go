package protocol

import "encoding/json"

// Inbound is the closed set of client → server events.
type Inbound string

const (
	InQueueJoin   Inbound = "queue:join"
	InQueueCancel Inbound = "queue:cancel"
	InRoomJoin    Inbound = "room:join"
	InPaddle      Inbound = "game:paddle"
)

// Outbound is the closed set of server → client events.
type Outbound string

const (
	OutWelcome       Outbound = "welcome"
	OutQueueJoined   Outbound = "queue:joined"
	OutQueueCanceled Outbound = "queue:canceled"
	OutQueueError    Outbound = "queue:error"
	OutRoomID        Outbound = "room:id"
	OutRoomJoined    Outbound = "room:joined"
	OutRoomError     Outbound = "room:error"
	OutGameInit      Outbound = "game:init"
	OutGameMessage   Outbound = "game:message"
	OutGameUpdate    Outbound = "game:update"
	OutGameOver      Outbound = "game:over"
)

// Envelope is the frame carried by every websocket text message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
