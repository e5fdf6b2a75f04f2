package game

import "math/rand/v2"

// Side identifies one half of the table.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

func (s Side) Opponent() Side {
	if s == Left {
		return Right
	}
	return Left
}

type Ball struct {
	X, Y   float64
	DX, DY float64
	Speed  float64
}

// Input is the latest level-triggered paddle command for a side.
type Input struct {
	Up   bool
	Down bool
}

// Score counts, per side, the balls that went out past that side's wall.
// The side whose counter reaches the winning score loses.
type Score struct {
	Left  int
	Right int
}

func (s Score) Of(side Side) int {
	if side == Left {
		return s.Left
	}
	return s.Right
}

type State struct {
	Tick    int
	Ball    Ball
	Paddles [2]float64
	Score   Score

	// nextServe is the direction of the next serve; it alternates every point.
	nextServe Side
}

// NewState returns a table with both paddles at their start height and the ball
// at the centre, served toward a random side.
func NewState(rng *rand.Rand) State {
	first := Left
	if rng.IntN(2) == 1 {
		first = Right
	}
	s := State{Paddles: [2]float64{PaddleStart, PaddleStart}, nextServe: first}
	s.serve()
	return s
}

// serve resets the ball to the centre and sends it toward nextServe.
func (s *State) serve() {
	dx := -1.0
	if s.nextServe == Right {
		dx = 1.0
	}
	s.Ball = Ball{X: TableWidth / 2, Y: TableHeight / 2, DX: dx, DY: 0, Speed: BallServeSpeed}
	s.nextServe = s.nextServe.Opponent()
}

// Loser returns the side whose counter reached winningScore.
func (s *State) Loser(winningScore int) (Side, bool) {
	switch {
	case s.Score.Left >= winningScore:
		return Left, true
	case s.Score.Right >= winningScore:
		return Right, true
	}
	return Left, false
}
