package dsg

import (
	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/planner"
	"github.com/zeu5/skillgraph/types"
)

// attempts of the random goal selection before giving up
const goalSelectionTries = 100

// SelectGoal picks the next consolidation goal with the configured criterion.
// The unconnected criteria fall back to random selection when they find no
// candidate. ErrNoGoal is returned when random selection comes back empty too.
func (t *Trainer) SelectGoal(info types.Info) (events.SalientEvent, error) {
	switch t.cfg.GoalSelection {
	case GoalClosest:
		if e := t.closestUnconnectedGoal(info); e != nil {
			return e, nil
		}
	case GoalRandomUnconnected:
		if e := t.randomUnconnectedGoal(info); e != nil {
			return e, nil
		}
	}
	if e := t.randomGoal(info); e != nil {
		return e, nil
	}
	return nil, ErrNoGoal
}

// randomGoal samples among all events, resampling the ones satisfied by info
func (t *Trainer) randomGoal(info types.Info) events.SalientEvent {
	all := t.Repository.All()
	for tries := 0; tries < goalSelectionTries && len(all) > 0; tries++ {
		e := all[t.rng.Intn(len(all))]
		if !e.Matches(info) {
			return e
		}
	}
	return nil
}

func (t *Trainer) unconnectedGoals(info types.Info) []events.SalientEvent {
	return t.Planner.UnconnectedNodes(info, t.Repository.NotMatching(info))
}

func (t *Trainer) randomUnconnectedGoal(info types.Info) events.SalientEvent {
	unconnected := t.unconnectedGoals(info)
	if len(unconnected) == 0 {
		return nil
	}
	return unconnected[t.rng.Intn(len(unconnected))]
}

func (t *Trainer) closestUnconnectedGoal(info types.Info) events.SalientEvent {
	_, target, ok := t.Planner.ClosestPairOfVertices(t.Repository.Matching(info), t.unconnectedGoals(info), t.valueMetric())
	if !ok {
		return nil
	}
	return target
}

// valueMetric turns the goal value function into a distance: the higher the
// value of reaching b from a, the closer the pair. Nil without a value
// function, leaving the planner default.
func (t *Trainer) valueMetric() planner.DistanceMetric {
	if t.values == nil {
		return nil
	}
	return func(a, b events.SalientEvent) float64 {
		v := t.values.Values([]types.State{a.Target()}, b.Target())
		if len(v) == 0 {
			return planner.EuclideanMetric(a, b)
		}
		return -v[0]
	}
}

// createSkillChainsIfNeeded creates a chain towards goal from the current
// events unless the goal is already reachable or a path to it is being built.
// The chain connects the closest pair between what is reachable from here and
// what reaches the goal.
func (t *Trainer) createSkillChainsIfNeeded(ectx *types.EpisodeContext, info types.Info, goal events.SalientEvent) {
	for _, init := range t.Repository.Matching(info) {
		if t.Planner.DoesPathExist(info, goal) || t.isPathUnderConstruction(info, init, goal) {
			continue
		}
		src, dst := init, goal
		if s, d, ok := t.Planner.ClosestSourceTargetPair(info, goal, t.valueMetric()); ok {
			src, dst = s, d
		}
		if t.isPathUnderConstruction(info, src, dst) {
			continue
		}
		if c, created := t.Chains.CreateChain(src, dst); created {
			ectx.Logger.Info("created chain", "chain", c.String())
		}
	}
}

// isPathUnderConstruction is true when a live chain for the exact pair exists,
// or when the optimistic graph already connects a current event to goal.
func (t *Trainer) isPathUnderConstruction(info types.Info, start, goal events.SalientEvent) bool {
	if c, ok := t.Chains.Find(start, goal); ok && c.State() != chains.Abandoned {
		return true
	}
	for _, e := range t.Repository.Matching(info) {
		if t.Planner.DoesPathExistInOptimisticGraph(e, goal) {
			return true
		}
	}
	return false
}
