// Package chains tracks the skill chains being learnt between pairs of
// salient events.
package chains

import (
	"fmt"

	"github.com/zeu5/skillgraph/events"
)

// State of a chain. Chains move Created -> Training -> Completed, or end in
// Abandoned when a retirement limit is configured on the manager.
type State int

const (
	Created State = iota
	Training
	Completed
	Abandoned
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Training:
		return "training"
	case Completed:
		return "completed"
	case Abandoned:
		return "abandoned"
	}
	return "unknown"
}

// Chain is a sequence of options connecting Init to Target.
// The (Init, Target) pair is the identity of the chain and never changes.
type Chain struct {
	ID      int
	Init    events.SalientEvent
	Target  events.SalientEvent
	Options []Option

	state     State
	successes int
	history   []bool
}

func (c *Chain) State() State {
	return c.state
}

func (c *Chain) IsCompleted() bool {
	return c.state == Completed
}

// Unfinished chains are the ones still being trained
func (c *Chain) Unfinished() bool {
	return c.state == Created || c.state == Training
}

func (c *Chain) Attempts() int {
	return len(c.history)
}

func (c *Chain) Successes() int {
	return c.successes
}

// History of attempt outcomes, oldest first
func (c *Chain) History() []bool {
	return append([]bool(nil), c.history...)
}

func (c *Chain) Key() string {
	return pairKey(c.Init, c.Target)
}

func (c *Chain) String() string {
	return fmt.Sprintf("Chain#%d(%s -> %s, %s)", c.ID, c.Init, c.Target, c.state)
}

func pairKey(init, target events.SalientEvent) string {
	return init.ID() + "->" + target.ID()
}
