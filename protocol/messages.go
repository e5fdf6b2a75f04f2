package protocol

// Text is the payload of welcome and game:over.
type Text struct {
	Message string `json:"message"`
}

// Announcement is the payload of game:message (match start and countdown).
type Announcement struct {
	Text string `json:"text"`
}

// ErrorMessage is the payload of the *:error events.
type ErrorMessage struct {
	Message string `json:"message"`
}

type RoomRef struct {
	RoomID string `json:"roomid"`
}

type GameInit struct {
	Side string `json:"side"`
}

type Paddle struct {
	Up   bool `json:"up"`
	Down bool `json:"down"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Score struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// GameUpdate is broadcast once per tick. Left and Right are paddle y positions.
type GameUpdate struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
	Ball  Point   `json:"ball"`
	Score Score   `json:"score"`
}

// Empty is sent for acks that carry no data.
type Empty struct{}
