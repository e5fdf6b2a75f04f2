package game

import (
	"math"
	"time"
)

const (
	TableWidth  = 600.0
	TableHeight = 400.0

	PaddleWidth  = 10.0
	PaddleHeight = 90.0
	PaddleSpeed  = 600.0 // px per second
	PaddleStart  = 150.0

	BallRadius      = 10.0
	BallServeSpeed  = 200.0 // px per second until the first paddle hit after a serve
	BallRallySpeed  = 400.0
	MaxBounceAngle  = math.Pi / 3
	WallRepositionY = 2.0

	// paddlePlane is the x distance from a wall at which the ball touches a paddle.
	paddlePlane = PaddleWidth + BallRadius

	// MaxStep bounds deltaTime so a stalled tick cannot teleport the ball.
	MaxStep = 0.1

	FramesPerSecond     = 30
	DefaultWinningScore = 5
	CountdownTicks      = 3
)

// TickInterval is the fixed simulation period (1000/30 ms).
const TickInterval = time.Second / FramesPerSecond
