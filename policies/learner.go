package policies

import (
	"fmt"

	"github.com/zeu5/skillgraph/chains"
)

// OptionLearner creates a goal policy per chain, warm started from what the
// global option learned about the chain target.
type OptionLearner struct {
	global   *GoalPolicy
	maxSteps int
	alpha    float64
	discount float64
	epsilon  float64
	seed     uint64
}

var _ chains.SkillLearner = &OptionLearner{}

func NewOptionLearner(global *GoalPolicy, maxSteps int, alpha, discount, epsilon float64, seed uint64) *OptionLearner {
	return &OptionLearner{
		global:   global,
		maxSteps: maxSteps,
		alpha:    alpha,
		discount: discount,
		epsilon:  epsilon,
		seed:     seed,
	}
}

func (l *OptionLearner) NewOption(c *chains.Chain) chains.Option {
	option := NewGoalPolicy(fmt.Sprintf("option-%d", c.ID), l.maxSteps, l.alpha, l.discount, l.epsilon, l.seed+uint64(c.ID)+1)
	if l.global != nil {
		option.warmStart(l.global, c.Target.Target().Hash())
	}
	return option
}

func (l *OptionLearner) GlobalOption() chains.GlobalOption {
	if l.global == nil {
		return nil
	}
	return l.global
}
