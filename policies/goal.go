package policies

import (
	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/types"
	"golang.org/x/exp/rand"
)

// GoalPolicy is a goal conditioned tabular policy: one Q-table per goal state,
// rewarded with 1 on reaching the goal. It serves as the global option and as
// the value function of the closest goal selection.
type GoalPolicy struct {
	name     string
	tables   map[string]*QTable
	maxSteps int
	alpha    float64
	discount float64
	epsilon  float64
	rand     *rand.Rand
}

var _ chains.GlobalOption = &GoalPolicy{}
var _ types.GoalValueFunction = &GoalPolicy{}

func NewGoalPolicy(name string, maxSteps int, alpha, discount, epsilon float64, seed uint64) *GoalPolicy {
	return &GoalPolicy{
		name:     name,
		tables:   make(map[string]*QTable),
		maxSteps: maxSteps,
		alpha:    alpha,
		discount: discount,
		epsilon:  epsilon,
		rand:     rand.New(rand.NewSource(seed)),
	}
}

func (g *GoalPolicy) Name() string {
	return g.name
}

func (g *GoalPolicy) table(goal string) *QTable {
	t, ok := g.tables[goal]
	if !ok {
		t = NewQTable()
		g.tables[goal] = t
	}
	return t
}

func (g *GoalPolicy) nextAction(table *QTable, state types.State, actions []types.Action) (types.Action, bool) {
	if len(actions) == 0 {
		return nil, false
	}
	if g.rand.Float64() < g.epsilon {
		return actions[g.rand.Intn(len(actions))], true
	}
	actionsMap := make(map[string]types.Action)
	availableActions := make([]string, len(actions))
	for i, a := range actions {
		aHash := a.Hash()
		actionsMap[aHash] = a
		availableActions[i] = aHash
	}
	maxAction, _ := table.MaxAmong(state.Hash(), availableActions, 0, g.rand)
	if maxAction == "" {
		return nil, false
	}
	return actionsMap[maxAction], true
}

// Execute runs the policy towards goal for at most maxSteps steps and learns
// from the resulting trajectory.
func (g *GoalPolicy) Execute(ectx *types.EpisodeContext, env types.Environment, state types.State, info types.Info, goal events.SalientEvent) (chains.Outcome, error) {
	out := chains.Outcome{
		State:      state,
		Info:       info,
		Trajectory: types.NewTrajectory(),
	}
	key := goal.Target().Hash()
	table := g.table(key)
	for i := 0; i < g.maxSteps; i++ {
		if goal.Matches(out.Info) || out.Terminated() || ectx.Cancelled() {
			break
		}
		action, ok := g.nextAction(table, out.State, out.State.Actions())
		if !ok {
			break
		}
		res, err := env.Step(action, ectx)
		if err != nil {
			return out, err
		}
		out.Trajectory.Append(types.Transition{
			State:     out.State,
			Action:    action,
			Reward:    res.Reward,
			NextState: res.State,
			Done:      res.Done,
			Reset:     res.Reset(),
			Info:      res.Info,
		})
		out.State, out.Info, out.Done, out.Reset = res.State, res.Info, res.Done, res.Reset()
	}
	out.Reached = goal.Matches(out.Info)
	g.learn(table, out.Trajectory, func(tr types.Transition) bool { return goal.Matches(tr.Info) })
	return out, nil
}

// learn goes backwards over the trajectory with reward 1 on the goal transitions
func (g *GoalPolicy) learn(table *QTable, traj *types.Trajectory, isGoal func(types.Transition) bool) {
	for i := traj.Len() - 1; i > -1; i-- {
		tr, _ := traj.Get(i)
		reward := 0.0
		nextStateVal := 0.0
		if isGoal(tr) {
			reward = 1
		} else if !tr.Done {
			nextStateVal = table.Value(tr.NextState.Hash(), 0)
		}
		curVal := table.Get(tr.State.Hash(), tr.Action.Hash(), 0)
		table.Set(tr.State.Hash(), tr.Action.Hash(), (1-g.alpha)*curVal+g.alpha*(reward+g.discount*nextStateVal))
	}
}

// PositiveRelabel marks the last transition as a successful terminal one
func (g *GoalPolicy) PositiveRelabel(traj *types.Trajectory) *types.Trajectory {
	if traj == nil || traj.Len() == 0 {
		return traj
	}
	out := types.NewTrajectory()
	transitions := traj.Transitions()
	for i, tr := range transitions {
		if i == len(transitions)-1 {
			tr.Reward = 1
			tr.Done = true
		}
		out.Append(tr)
	}
	return out
}

// ExperienceReplay learns from traj as if goal had been the target
func (g *GoalPolicy) ExperienceReplay(traj *types.Trajectory, goal types.State) {
	if traj == nil || goal == nil {
		return
	}
	key := goal.Hash()
	g.learn(g.table(key), traj, func(tr types.Transition) bool { return tr.NextState.Hash() == key })
}

// Values of reaching goal from each state, 0 for unknown goals or states
func (g *GoalPolicy) Values(states []types.State, goal types.State) []float64 {
	out := make([]float64, len(states))
	table, ok := g.tables[goal.Hash()]
	if !ok {
		return out
	}
	for i, s := range states {
		out[i] = table.Value(s.Hash(), 0)
	}
	return out
}

// warmStart copies the table learned by other for goal
func (g *GoalPolicy) warmStart(other *GoalPolicy, goal string) {
	if t, ok := other.tables[goal]; ok {
		g.tables[goal] = t.Clone()
	}
}
