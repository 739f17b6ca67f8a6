package pose

// NeutralStance returns a full-body estimate of a person standing with both
// hands below the shoulders, in 640x480 pixel space.
func NeutralStance() Estimate {
	return Estimate{
		{Name: Nose, X: 320, Y: 100, Score: 0.92},
		{Name: LeftEye, X: 330, Y: 90, Score: 0.9},
		{Name: RightEye, X: 310, Y: 90, Score: 0.9},
		{Name: LeftEar, X: 345, Y: 95, Score: 0.8},
		{Name: RightEar, X: 295, Y: 95, Score: 0.8},
		{Name: LeftShoulder, X: 380, Y: 200, Score: 0.9},
		{Name: RightShoulder, X: 260, Y: 200, Score: 0.9},
		{Name: LeftElbow, X: 400, Y: 270, Score: 0.85},
		{Name: RightElbow, X: 240, Y: 270, Score: 0.85},
		{Name: LeftWrist, X: 405, Y: 330, Score: 0.8},
		{Name: RightWrist, X: 235, Y: 330, Score: 0.8},
		{Name: LeftHip, X: 360, Y: 340, Score: 0.85},
		{Name: RightHip, X: 280, Y: 340, Score: 0.85},
		{Name: LeftKnee, X: 365, Y: 410, Score: 0.7},
		{Name: RightKnee, X: 275, Y: 410, Score: 0.7},
		{Name: LeftAnkle, X: 368, Y: 470, Score: 0.6},
		{Name: RightAnkle, X: 272, Y: 470, Score: 0.6},
	}
}

// LeftPunch returns NeutralStance with the left wrist raised well above the
// left shoulder.
func LeftPunch() Estimate {
	e := NeutralStance()
	e.set(LeftElbow, 410, 160)
	e.set(LeftWrist, 420, 60)
	return e
}

// DoublePunch returns NeutralStance with both wrists raised well above the
// shoulders.
func DoublePunch() Estimate {
	e := LeftPunch()
	e.set(RightElbow, 230, 160)
	e.set(RightWrist, 220, 60)
	return e
}

// Without returns a copy of e with the named keypoints removed.
func (e Estimate) Without(names ...string) Estimate {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := make(Estimate, 0, len(e))
	for _, kp := range e {
		if !drop[kp.Name] {
			out = append(out, kp)
		}
	}
	return out
}

// Shifted returns a copy of e translated by (dx, dy).
func (e Estimate) Shifted(dx, dy float64) Estimate {
	out := e.Clone()
	for i := range out {
		out[i].X += dx
		out[i].Y += dy
	}
	return out
}

func (e Estimate) set(name string, x, y float64) {
	for i := range e {
		if e[i].Name == name {
			e[i].X = x
			e[i].Y = y
			return
		}
	}
}
