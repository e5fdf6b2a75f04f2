package game

import "math"

// Step advances the table by dt seconds using the latest inputs per side.
// It reports the side that conceded a point during this step, if any.
func Step(s *State, inputs [2]Input, dt float64) (conceded Side, scored bool) {
	if dt < 0 {
		dt = 0
	}
	if dt > MaxStep {
		dt = MaxStep
	}
	s.Tick++

	for side := Left; side <= Right; side++ {
		in := inputs[side]
		y := s.Paddles[side]
		if in.Up {
			y -= PaddleSpeed * dt
		}
		if in.Down {
			y += PaddleSpeed * dt
		}
		s.Paddles[side] = clamp(y, 0, TableHeight-PaddleHeight)
	}

	b := &s.Ball
	prevX, prevY := b.X, b.Y
	b.X += b.DX * b.Speed * dt
	b.Y += b.DY * b.Speed * dt

	switch {
	case b.DX < 0 && b.X <= paddlePlane:
		if y := crossingY(prevX, prevY, b.X, b.Y, paddlePlane); onPaddle(y, s.Paddles[Left]) {
			bounce(b, y, s.Paddles[Left], Left)
		}
	case b.DX > 0 && b.X >= TableWidth-paddlePlane:
		if y := crossingY(prevX, prevY, b.X, b.Y, TableWidth-paddlePlane); onPaddle(y, s.Paddles[Right]) {
			bounce(b, y, s.Paddles[Right], Right)
		}
	}

	if b.Y <= BallRadius {
		b.DY = math.Abs(b.DY)
		b.Y = BallRadius + WallRepositionY
	} else if b.Y >= TableHeight-BallRadius {
		b.DY = -math.Abs(b.DY)
		b.Y = TableHeight - BallRadius - WallRepositionY
	}

	if b.X < 0 || b.X > TableWidth {
		conceded = Left
		if b.X > TableWidth {
			conceded = Right
		}
		if conceded == Left {
			s.Score.Left++
		} else {
			s.Score.Right++
		}
		s.serve()
		return conceded, true
	}
	return Left, false
}

// crossingY returns the ball's y where its path crossed the vertical line x = plane.
// If the ball already started past the plane, its current y is used.
func crossingY(x0, y0, x1, y1, plane float64) float64 {
	if x1 == x0 {
		return y1
	}
	t := (plane - x0) / (x1 - x0)
	if t < 0 || t > 1 {
		return y1
	}
	return y0 + t*(y1-y0)
}

func onPaddle(y, paddleY float64) bool {
	return y >= paddleY && y <= paddleY+PaddleHeight
}

// bounce reflects the ball off a paddle. The vertical component depends on
// where along the paddle the contact happened: centre is flat, edges reach
// MaxBounceAngle.
func bounce(b *Ball, contactY, paddleY float64, side Side) {
	b.Speed = BallRallySpeed
	fraction := (contactY - paddleY) / PaddleHeight
	b.DY = (fraction*2 - 1) * MaxBounceAngle
	b.DX = -b.DX
	b.Y = contactY
	if side == Left {
		b.X = paddlePlane + 1
	} else {
		b.X = TableWidth - (paddlePlane + 1)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
