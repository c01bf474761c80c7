package types

// Environment is the simulation the agents interact with.
// Both calls receive the episode context so the environment can observe
// cancellation and record into the episode report.
type Environment interface {
	// Reset called at the start of each episode
	Reset(*EpisodeContext) (State, Info, error)
	// Step applies the action to the current state
	Step(Action, *EpisodeContext) (StepResult, error)
}

// StepResult is what the environment returns for a single action
type StepResult struct {
	State  State
	Reward float64
	Done   bool
	Info   Info
}

// Reset reports whether the environment asked for a reset after this step
func (s StepResult) Reset() bool {
	return s.Info.Flag(FlagNeedsReset)
}

// State of the system that policies observe
type State interface {
	// Indexed by the Hash
	// Should be deterministic
	Hash() string
	// Actions possible from the state
	Actions() []Action
	// Features is the numeric representation used by classifiers
	Features() []float64
}

// Action that a policy can take
type Action interface {
	// Index of the action
	// Should be deterministic
	Hash() string
}
