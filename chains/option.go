package chains

import (
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/types"
)

// Outcome of executing an option
type Outcome struct {
	State      types.State
	Info       types.Info
	Trajectory *types.Trajectory
	Done       bool
	Reset      bool
	Reached    bool
}

// Terminated is true when the environment ended the rollout
func (o Outcome) Terminated() bool {
	return o.Done || o.Reset
}

// Option is a closed loop policy driving the environment towards a salient event
type Option interface {
	Name() string
	Execute(ectx *types.EpisodeContext, env types.Environment, state types.State, info types.Info, goal events.SalientEvent) (Outcome, error)
}

// GlobalOption is the goal conditioned option usable from anywhere.
// It can learn off policy from trajectories collected by other agents.
type GlobalOption interface {
	Option
	PositiveRelabel(*types.Trajectory) *types.Trajectory
	ExperienceReplay(trajectory *types.Trajectory, goal types.State)
}

// SkillLearner owns the option learning. It is asked for the options of
// every new chain.
type SkillLearner interface {
	NewOption(*Chain) Option
	GlobalOption() GlobalOption
}

// Criterion decides when a chain reliably reaches its target
type Criterion interface {
	Completed(*Chain) bool
}

// SuccessRate completes a chain once the success rate over the last Window
// attempts reaches MinRate.
type SuccessRate struct {
	Window  int
	MinRate float64
}

var _ Criterion = SuccessRate{}

func (s SuccessRate) Completed(c *Chain) bool {
	window := s.Window
	if window <= 0 {
		window = 1
	}
	if len(c.history) < window {
		return false
	}
	successes := 0
	for _, ok := range c.history[len(c.history)-window:] {
		if ok {
			successes++
		}
	}
	return float64(successes)/float64(window) >= s.MinRate
}
