// Package policies provides tabular agents for the skill graph: a count
// based novelty explorer, a goal conditioned policy used as the global option
// and the learner creating chain options.
package policies

import (
	"math"

	"github.com/zeu5/skillgraph/types"
	"golang.org/x/exp/rand"
)

// NoveltyExplorer explores greedily over a Q-table trained on the count based
// novelty bonus 1/sqrt(n) of the states it visits.
type NoveltyExplorer struct {
	qTable   *QTable
	visits   map[string]int
	length   int
	alpha    float64
	discount float64
	epsilon  float64
	rand     *rand.Rand
}

var _ types.ExplorationAgent = &NoveltyExplorer{}
var _ types.Policy = &NoveltyExplorer{}

func NewNoveltyExplorer(length int, alpha, discount, epsilon float64, seed uint64) *NoveltyExplorer {
	return &NoveltyExplorer{
		qTable:   NewQTable(),
		visits:   make(map[string]int),
		length:   length,
		alpha:    alpha,
		discount: discount,
		epsilon:  epsilon,
		rand:     rand.New(rand.NewSource(seed)),
	}
}

func (n *NoveltyExplorer) bonus(state types.State) float64 {
	return 1 / math.Sqrt(float64(max(n.visits[state.Hash()], 1)))
}

// RewardFunction scores the states with the current visit counts
func (n *NoveltyExplorer) RewardFunction(states []types.State) []float64 {
	out := make([]float64, len(states))
	for i, s := range states {
		out[i] = n.bonus(s)
	}
	return out
}

// NextAction is epsilon greedy over the novelty Q-table
func (n *NoveltyExplorer) NextAction(_ int, state types.State, actions []types.Action) (types.Action, bool) {
	if len(actions) == 0 {
		return nil, false
	}
	if n.rand.Float64() < n.epsilon {
		return actions[n.rand.Intn(len(actions))], true
	}
	actionsMap := make(map[string]types.Action)
	availableActions := make([]string, len(actions))
	for i, a := range actions {
		aHash := a.Hash()
		actionsMap[aHash] = a
		availableActions[i] = aHash
	}
	maxAction, _ := n.qTable.MaxAmong(state.Hash(), availableActions, 1, n.rand)
	if maxAction == "" {
		return nil, false
	}
	return actionsMap[maxAction], true
}

// Rollout explores for at most length steps, stopping on termination
func (n *NoveltyExplorer) Rollout(ectx *types.EpisodeContext, env types.Environment, state types.State, info types.Info) (*types.Rollout, error) {
	rollout := &types.Rollout{
		Init:       state,
		InitInfo:   info,
		Trajectory: types.NewTrajectory(),
		Intrinsic:  make([]float64, 0, n.length),
	}
	for i := 0; i < n.length && !ectx.Cancelled(); i++ {
		action, ok := n.NextAction(i, state, state.Actions())
		if !ok {
			break
		}
		res, err := env.Step(action, ectx)
		if err != nil {
			return nil, err
		}
		n.visits[res.State.Hash()] += 1
		rollout.Trajectory.Append(types.Transition{
			State:     state,
			Action:    action,
			Reward:    res.Reward,
			NextState: res.State,
			Done:      res.Done,
			Reset:     res.Reset(),
			Info:      res.Info,
		})
		rollout.Intrinsic = append(rollout.Intrinsic, n.bonus(res.State))
		state = res.State
		if res.Done || res.Reset() {
			break
		}
	}
	n.update(rollout)
	return rollout, nil
}

// update goes backwards over the rollout. The value past the last transition is 0.
func (n *NoveltyExplorer) update(rollout *types.Rollout) {
	lastIndex := rollout.Len() - 1
	for i := lastIndex; i > -1; i-- {
		tr, _ := rollout.Trajectory.Get(i)
		stateHash := tr.State.Hash()
		actionHash := tr.Action.Hash()

		nextStateVal := 0.0
		if i != lastIndex && !tr.Done {
			_, nextStateVal = n.qTable.Max(tr.NextState.Hash(), 1)
		}
		curVal := n.qTable.Get(stateHash, actionHash, 1)
		newVal := (1-n.alpha)*curVal + n.alpha*(rollout.Intrinsic[i]+n.discount*nextStateVal)
		n.qTable.Set(stateHash, actionHash, newVal)
	}
}
