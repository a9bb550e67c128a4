package services

// Stepper moves through a fixed number of steps, never leaving [0, count-1]
type Stepper struct {
	step  int
	count int
}

// NewStepper starts at step, clamped to the valid range
func NewStepper(count, step int) *Stepper {
	if count < 1 {
		count = 1
	}
	s := &Stepper{count: count}
	s.set(step)
	return s
}

// Step returns the current index
func (s *Stepper) Step() int {
	return s.step
}

// Next advances one step, stopping at the last
func (s *Stepper) Next() int {
	s.set(s.step + 1)
	return s.step
}

// Back returns one step, stopping at the first
func (s *Stepper) Back() int {
	s.set(s.step - 1)
	return s.step
}

// IsFirst reports whether the stepper is on the first step
func (s *Stepper) IsFirst() bool {
	return s.step == 0
}

func (s *Stepper) set(step int) {
	switch {
	case step < 0:
		s.step = 0
	case step > s.count-1:
		s.step = s.count - 1
	default:
		s.step = step
	}
}
