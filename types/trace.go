package types

// Transition is a single (s, a, r, s', done, reset, info) tuple.
// Info is the info observed together with NextState.
type Transition struct {
	State     State
	Action    Action
	Reward    float64
	NextState State
	Done      bool
	Reset     bool
	Info      Info
}

// Trajectory of an episode segment as an ordered list of transitions
type Trajectory struct {
	transitions []Transition
}

func NewTrajectory() *Trajectory {
	return &Trajectory{
		transitions: make([]Transition, 0),
	}
}

func (t *Trajectory) Slice(from, to int) *Trajectory {
	sliced := NewTrajectory()
	for i := from; i < to; i++ {
		sliced.Append(t.transitions[i])
	}
	return sliced
}

func (t *Trajectory) Append(tr Transition) {
	t.transitions = append(t.transitions, tr)
}

func (t *Trajectory) Len() int {
	return len(t.transitions)
}

func (t *Trajectory) Get(i int) (Transition, bool) {
	if i < 0 || i >= len(t.transitions) {
		return Transition{}, false
	}
	return t.transitions[i], true
}

func (t *Trajectory) Last() (Transition, bool) {
	if len(t.transitions) < 1 {
		return Transition{}, false
	}
	return t.transitions[len(t.transitions)-1], true
}

func (t *Trajectory) GetPrefix(i int) (*Trajectory, bool) {
	if i > len(t.transitions) {
		return nil, false
	}
	return &Trajectory{
		transitions: t.transitions[0:i],
	}, true
}

// NextStates are the observations produced by the trajectory, one per transition
func (t *Trajectory) NextStates() []State {
	out := make([]State, len(t.transitions))
	for i, tr := range t.transitions {
		out[i] = tr.NextState
	}
	return out
}

func (t *Trajectory) Infos() []Info {
	out := make([]Info, len(t.transitions))
	for i, tr := range t.transitions {
		out[i] = tr.Info
	}
	return out
}

func (t *Trajectory) Rewards() []float64 {
	out := make([]float64, len(t.transitions))
	for i, tr := range t.transitions {
		out[i] = tr.Reward
	}
	return out
}

// Transitions returns a copy of the underlying transitions
func (t *Trajectory) Transitions() []Transition {
	return append([]Transition(nil), t.transitions...)
}
