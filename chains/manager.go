package chains

import (
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/types"
)

// Manager owns the skill chains. At most one chain exists per (init, target) pair.
type Manager struct {
	learner     SkillLearner
	criterion   Criterion
	maxAttempts int

	chains      []*Chain
	index       map[string]*Chain
	subscribers []func(*Chain)
}

type ManagerOption func(*Manager)

// WithMaxAttempts abandons chains still unfinished after n attempts. 0 never abandons.
func WithMaxAttempts(n int) ManagerOption {
	return func(m *Manager) {
		m.maxAttempts = n
	}
}

func WithCriterion(c Criterion) ManagerOption {
	return func(m *Manager) {
		m.criterion = c
	}
}

// NewManager creates a manager. learner may be nil, in which case chains carry no options.
func NewManager(learner SkillLearner, opts ...ManagerOption) *Manager {
	m := &Manager{
		learner:     learner,
		criterion:   SuccessRate{Window: 5, MinRate: 0.8},
		chains:      make([]*Chain, 0),
		index:       make(map[string]*Chain),
		subscribers: make([]func(*Chain), 0),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// CreateChain appends a new chain from init to target.
// Returns the existing chain and false when the pair is already chained.
func (m *Manager) CreateChain(init, target events.SalientEvent) (*Chain, bool) {
	if init == nil || target == nil || events.Same(init, target) {
		return nil, false
	}
	if c, ok := m.index[pairKey(init, target)]; ok {
		return c, false
	}
	c := &Chain{
		ID:      len(m.chains),
		Init:    init,
		Target:  target,
		Options: make([]Option, 0),
		state:   Created,
		history: make([]bool, 0),
	}
	if m.learner != nil {
		if o := m.learner.NewOption(c); o != nil {
			c.Options = append(c.Options, o)
		}
	}
	m.chains = append(m.chains, c)
	m.index[c.Key()] = c
	m.notify(c)
	return c, true
}

// RecordAttempt records the outcome of executing the chain and moves it
// through its lifecycle. Returns the state after the attempt.
func (m *Manager) RecordAttempt(c *Chain, success bool) State {
	c.history = append(c.history, success)
	if success {
		c.successes++
	}
	if !c.Unfinished() {
		return c.state
	}
	if c.state == Created {
		c.state = Training
		m.notify(c)
	}
	if m.criterion.Completed(c) {
		c.state = Completed
		m.notify(c)
	} else if m.maxAttempts > 0 && len(c.history) >= m.maxAttempts {
		c.state = Abandoned
		m.notify(c)
	}
	return c.state
}

// Subscribe registers fn to be called on chain creation and every state change
func (m *Manager) Subscribe(fn func(*Chain)) {
	m.subscribers = append(m.subscribers, fn)
}

func (m *Manager) notify(c *Chain) {
	for _, s := range m.subscribers {
		s(c)
	}
}

func (m *Manager) Find(init, target events.SalientEvent) (*Chain, bool) {
	if init == nil || target == nil {
		return nil, false
	}
	c, ok := m.index[pairKey(init, target)]
	return c, ok
}

func (m *Manager) All() []*Chain {
	return append([]*Chain(nil), m.chains...)
}

func (m *Manager) Len() int {
	return len(m.chains)
}

func (m *Manager) Unfinished() []*Chain {
	return m.filter(func(c *Chain) bool { return c.Unfinished() })
}

func (m *Manager) Completed() []*Chain {
	return m.filter(func(c *Chain) bool { return c.IsCompleted() })
}

// StartingAt returns the unfinished chains whose init event is satisfied by info
func (m *Manager) StartingAt(info types.Info) []*Chain {
	return m.filter(func(c *Chain) bool { return c.Unfinished() && c.Init.Matches(info) })
}

// Counts returns the number of chains per state
func (m *Manager) Counts() map[State]int {
	out := make(map[State]int)
	for _, c := range m.chains {
		out[c.state]++
	}
	return out
}

func (m *Manager) filter(pred func(*Chain) bool) []*Chain {
	out := make([]*Chain, 0)
	for _, c := range m.chains {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// GlobalOption of the skill learner, nil without a learner
func (m *Manager) GlobalOption() GlobalOption {
	if m.learner == nil {
		return nil
	}
	return m.learner.GlobalOption()
}
