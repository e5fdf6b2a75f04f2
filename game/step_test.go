package game

import (
	"math"
	"math/rand/v2"
	"testing"
)

const frame = 1.0 / FramesPerSecond

func newTestState(seed uint64) State {
	return NewState(rand.New(rand.NewPCG(seed, seed)))
}

func TestNewStateCentresBall(t *testing.T) {
	s := newTestState(1)
	if s.Ball.X != TableWidth/2 || s.Ball.Y != TableHeight/2 {
		t.Fatalf("ball = (%v,%v), want centre", s.Ball.X, s.Ball.Y)
	}
	if s.Ball.Speed != BallServeSpeed || s.Ball.DY != 0 {
		t.Fatalf("ball speed/dy = %v/%v, want serve speed and flat", s.Ball.Speed, s.Ball.DY)
	}
	if math.Abs(s.Ball.DX) != 1 {
		t.Fatalf("ball dx = %v, want ±1", s.Ball.DX)
	}
	if s.Paddles != [2]float64{PaddleStart, PaddleStart} {
		t.Fatalf("paddles = %v", s.Paddles)
	}
}

func TestPaddleMidpointBounceIsFlat(t *testing.T) {
	s := newTestState(1)
	s.Paddles[Left] = 150
	s.Ball = Ball{X: PaddleWidth + BallRadius + 1, Y: 195, DX: -1, DY: 0, Speed: BallServeSpeed}

	if _, scored := Step(&s, [2]Input{}, frame); scored {
		t.Fatalf("unexpected point")
	}
	if s.Ball.DX <= 0 {
		t.Fatalf("dx = %v, want positive after left paddle hit", s.Ball.DX)
	}
	if s.Ball.DY != 0 {
		t.Fatalf("dy = %v, want 0 for a midpoint hit", s.Ball.DY)
	}
	if s.Ball.Speed != BallRallySpeed {
		t.Fatalf("speed = %v, want %v", s.Ball.Speed, BallRallySpeed)
	}
	if s.Ball.X != paddlePlane+1 {
		t.Fatalf("x = %v, want repositioned to %v", s.Ball.X, paddlePlane+1)
	}
}

func TestPaddleEdgeBounceReachesMaxAngle(t *testing.T) {
	s := newTestState(1)
	s.Paddles[Right] = 100
	top := 100.0
	s.Ball = Ball{X: TableWidth - paddlePlane - 1, Y: top, DX: 1, Speed: BallServeSpeed}

	Step(&s, [2]Input{}, frame)
	if s.Ball.DX != -1 {
		t.Fatalf("dx = %v, want -1", s.Ball.DX)
	}
	if math.Abs(s.Ball.DY+MaxBounceAngle) > 1e-9 {
		t.Fatalf("dy = %v, want %v for a top-edge hit", s.Ball.DY, -MaxBounceAngle)
	}
	if s.Ball.X != TableWidth-(paddlePlane+1) {
		t.Fatalf("x = %v", s.Ball.X)
	}
}

func TestFastBallDoesNotTunnelThroughPaddle(t *testing.T) {
	s := newTestState(1)
	s.Paddles[Left] = 150
	// Starts in front of the paddle and would end past the wall in one step.
	s.Ball = Ball{X: 30, Y: 195, DX: -1, Speed: 600}

	_, scored := Step(&s, [2]Input{}, MaxStep)
	if scored {
		t.Fatalf("ball tunnelled through the paddle")
	}
	if s.Ball.DX <= 0 {
		t.Fatalf("dx = %v, want reflected", s.Ball.DX)
	}
}

func TestWallBounce(t *testing.T) {
	s := newTestState(1)
	s.Ball = Ball{X: 300, Y: BallRadius + 1, DX: 1, DY: -0.5, Speed: BallRallySpeed}
	Step(&s, [2]Input{}, frame)
	if s.Ball.DY <= 0 {
		t.Fatalf("dy = %v, want positive after top wall", s.Ball.DY)
	}
	if s.Ball.Y != BallRadius+WallRepositionY {
		t.Fatalf("y = %v, want clamped inside", s.Ball.Y)
	}

	s.Ball = Ball{X: 300, Y: TableHeight - BallRadius - 1, DX: 1, DY: 0.5, Speed: BallRallySpeed}
	Step(&s, [2]Input{}, frame)
	if s.Ball.DY >= 0 {
		t.Fatalf("dy = %v, want negative after bottom wall", s.Ball.DY)
	}
}

func TestPaddleClamp(t *testing.T) {
	s := newTestState(1)
	for i := 0; i < 100; i++ {
		Step(&s, [2]Input{{Up: true}, {Down: true}}, frame)
	}
	if s.Paddles[Left] != 0 {
		t.Fatalf("left paddle = %v, want 0", s.Paddles[Left])
	}
	if s.Paddles[Right] != TableHeight-PaddleHeight {
		t.Fatalf("right paddle = %v, want %v", s.Paddles[Right], TableHeight-PaddleHeight)
	}

	before := s.Paddles[Left]
	Step(&s, [2]Input{{Up: true, Down: true}}, frame)
	if s.Paddles[Left] != before {
		t.Fatalf("up+down moved paddle from %v to %v", before, s.Paddles[Left])
	}
}

func TestScoringResetsAndAlternatesServe(t *testing.T) {
	s := newTestState(3)
	s.Paddles[Left] = 0
	s.Ball = Ball{X: 1, Y: 390, DX: -1, Speed: BallServeSpeed}

	conceded, scored := Step(&s, [2]Input{}, frame)
	if !scored || conceded != Left {
		t.Fatalf("Step = (%v,%v), want left conceded", conceded, scored)
	}
	if s.Score != (Score{Left: 1}) {
		t.Fatalf("score = %+v", s.Score)
	}
	if s.Ball.X != TableWidth/2 || s.Ball.Y != TableHeight/2 || s.Ball.DY != 0 || s.Ball.Speed != BallServeSpeed {
		t.Fatalf("ball not reset: %+v", s.Ball)
	}
	first := s.Ball.DX

	s.Ball.X = TableWidth + 5
	s.Ball.DX = 1
	s.Paddles[Right] = 0
	s.Ball.Y = 390
	Step(&s, [2]Input{}, frame)
	if s.Score != (Score{Left: 1, Right: 1}) {
		t.Fatalf("score = %+v", s.Score)
	}
	if s.Ball.DX != -first {
		t.Fatalf("serve dx = %v after %v, want alternation", s.Ball.DX, first)
	}
}

func TestLoser(t *testing.T) {
	s := State{Score: Score{Left: 3, Right: 5}}
	side, ok := s.Loser(DefaultWinningScore)
	if !ok || side != Right {
		t.Fatalf("Loser = (%v,%v), want right", side, ok)
	}
	s.Score = Score{Left: 4, Right: 4}
	if _, ok := s.Loser(DefaultWinningScore); ok {
		t.Fatalf("Loser reported at 4-4")
	}
}

func TestBallStaysOnTableAcrossRandomPlay(t *testing.T) {
	s := newTestState(7)
	rng := rand.New(rand.NewPCG(9, 9))
	prev := s.Score
	for i := 0; i < 20000; i++ {
		in := [2]Input{
			{Up: rng.IntN(2) == 0, Down: rng.IntN(3) == 0},
			{Up: rng.IntN(3) == 0, Down: rng.IntN(2) == 0},
		}
		_, scored := Step(&s, in, frame)
		if scored {
			if s.Ball.X != TableWidth/2 {
				t.Fatalf("tick %d: x after point = %v, want centre", i, s.Ball.X)
			}
			gained := (s.Score.Left - prev.Left) + (s.Score.Right - prev.Right)
			if gained != 1 {
				t.Fatalf("tick %d: score moved by %d, want 1", i, gained)
			}
		} else if s.Score != prev {
			t.Fatalf("tick %d: score changed without a point", i)
		}
		prev = s.Score
		if s.Ball.X < 0 || s.Ball.X > TableWidth {
			t.Fatalf("tick %d: ball x = %v outside table", i, s.Ball.X)
		}
		for side, y := range s.Paddles {
			if y < 0 || y > TableHeight-PaddleHeight {
				t.Fatalf("tick %d: paddle %d = %v out of range", i, side, y)
			}
		}
	}
}
