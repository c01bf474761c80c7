package types

// Rollout is the result of one exploration rollout started from Init.
// Intrinsic holds the novelty reward of every transition, aligned with Trajectory.
type Rollout struct {
	Init       State
	InitInfo   Info
	Trajectory *Trajectory
	Intrinsic  []float64
}

// Len of the underlying trajectory
func (r *Rollout) Len() int {
	if r == nil || r.Trajectory == nil {
		return 0
	}
	return r.Trajectory.Len()
}

// ExplorationAgent drives exploration from the graph frontier.
// RewardFunction scores states by novelty, Rollout runs a fixed length
// exploration episode segment from the given state.
type ExplorationAgent interface {
	RewardFunction([]State) []float64
	Rollout(*EpisodeContext, Environment, State, Info) (*Rollout, error)
}

// GoalValueFunction estimates the value of reaching goal from each of the states.
// Higher is closer.
type GoalValueFunction interface {
	Values(states []State, goal State) []float64
}

// Policy picks actions, used by the options and agents
type Policy interface {
	NextAction(int, State, []Action) (Action, bool)
}
