// Package dsg implements the deep skill graph trainer: it alternates graph
// expansion, where exploration from the graph frontier discovers new salient
// events, with graph consolidation, where the agent practises reaching
// known events and spawns the skill chains that connect them.
package dsg

import (
	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/planner"
	"github.com/zeu5/skillgraph/store"
	"github.com/zeu5/skillgraph/types"
)

// Agent navigates between salient events using the plan graph when a
// validated path exists, the chains being trained otherwise, and the global
// option as a last resort.
type Agent struct {
	planner *planner.Planner
	chains  *chains.Manager
	maxHops int

	goalLog store.GoalLog
}

func NewAgent(p *planner.Planner, m *chains.Manager, maxHops int) *Agent {
	if maxHops <= 0 {
		maxHops = 20
	}
	return &Agent{
		planner: p,
		chains:  m,
		maxHops: maxHops,
		goalLog: make(store.GoalLog),
	}
}

// GoalLog returns a copy of the outcome of every navigation, per goal
func (a *Agent) GoalLog() store.GoalLog {
	out := make(store.GoalLog, len(a.goalLog))
	for k, v := range a.goalLog {
		out[k] = append([]bool(nil), v...)
	}
	return out
}

// Navigate executes options from state until the goal is reached, the
// environment terminates or no option applies. The outcome carries the
// concatenated trajectory.
func (a *Agent) Navigate(ectx *types.EpisodeContext, env types.Environment, state types.State, info types.Info, goal events.SalientEvent) (chains.Outcome, error) {
	cur := chains.Outcome{
		State:      state,
		Info:       info,
		Trajectory: types.NewTrajectory(),
	}
	for hop := 0; ; hop++ {
		if goal.Matches(cur.Info) {
			cur.Reached = true
			break
		}
		if cur.Terminated() || hop >= a.maxHops || ectx.Cancelled() {
			break
		}
		chain, option, subgoal := a.nextOption(cur.Info, goal)
		if option == nil {
			ectx.Logger.Debug("no option applies", "info", cur.Info.String(), "goal", goal.ID())
			break
		}
		out, err := option.Execute(ectx, env, cur.State, cur.Info, subgoal)
		if err != nil {
			return cur, err
		}
		ectx.Report.AddIntEntry(1, "option_executions", "Agent.Navigate")

		if out.Trajectory != nil {
			for _, tr := range out.Trajectory.Transitions() {
				cur.Trajectory.Append(tr)
			}
		}
		if chain != nil {
			state := a.chains.RecordAttempt(chain, subgoal.Matches(out.Info))
			ectx.Logger.Debug("chain attempt", "chain", chain.String(), "state", state.String())
		}
		cur.State, cur.Info, cur.Done, cur.Reset = out.State, out.Info, out.Done, out.Reset
	}
	a.goalLog[goal.ID()] = append(a.goalLog[goal.ID()], cur.Reached)
	return cur, nil
}

// nextOption picks the option to execute from info. chain is nil when the
// global option is used.
func (a *Agent) nextOption(info types.Info, goal events.SalientEvent) (*chains.Chain, chains.Option, events.SalientEvent) {
	for _, e := range a.planner.CurrentEvents(info) {
		path := a.planner.ShortestPath(e, goal)
		if len(path) < 2 {
			continue
		}
		if c, ok := a.chains.Find(e, path[1]); ok && c.IsCompleted() {
			return a.chainOption(c)
		}
		if g := a.chains.GlobalOption(); g != nil {
			return nil, g, path[1]
		}
	}

	var fallback *chains.Chain
	for _, c := range a.chains.StartingAt(info) {
		if events.Same(c.Target, goal) {
			return a.chainOption(c)
		}
		if fallback == nil && a.planner.DoesPathExistInOptimisticGraph(c.Target, goal) {
			fallback = c
		}
	}
	if fallback != nil {
		return a.chainOption(fallback)
	}

	if g := a.chains.GlobalOption(); g != nil {
		return nil, g, goal
	}
	return nil, nil, nil
}

// chainOption returns the first option of the chain, or the global option
// towards the chain target when the chain has none yet.
func (a *Agent) chainOption(c *chains.Chain) (*chains.Chain, chains.Option, events.SalientEvent) {
	if len(c.Options) > 0 {
		return c, c.Options[0], c.Target
	}
	if g := a.chains.GlobalOption(); g != nil {
		return c, g, c.Target
	}
	return nil, nil, nil
}
