package dsg

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/explore"
	"github.com/zeu5/skillgraph/planner"
	"github.com/zeu5/skillgraph/types"
	"golang.org/x/exp/rand"
)

type cell int

func (c cell) Hash() string            { return strconv.Itoa(int(c)) }
func (c cell) Actions() []types.Action { return []types.Action{move(-1), move(1)} }
func (c cell) Features() []float64     { return []float64{float64(c)} }

type move int

func (m move) Hash() string { return strconv.Itoa(int(m)) }

func at(x float64) types.Info {
	return types.NewInfo([]float64{x})
}

func eventAt(x float64) events.SalientEvent {
	return events.NewPositionEvent(cell(int(x)), at(x), 2)
}

// corridor is a one dimensional environment with one shot rewards
type corridor struct {
	length  int
	horizon int
	rewards map[int]float64

	pos       int
	steps     int
	collected map[int]bool
	resets    int
}

var _ types.Environment = &corridor{}

func newCorridor(length, horizon int, rewards map[int]float64) *corridor {
	return &corridor{length: length, horizon: horizon, rewards: rewards, collected: make(map[int]bool)}
}

func (c *corridor) info() types.Info {
	info := at(float64(c.pos))
	if c.steps >= c.horizon {
		info.Flags[types.FlagNeedsReset] = true
	}
	return info
}

func (c *corridor) Reset(*types.EpisodeContext) (types.State, types.Info, error) {
	c.pos, c.steps = 0, 0
	c.collected = make(map[int]bool)
	c.resets++
	return cell(0), c.info(), nil
}

func (c *corridor) Step(a types.Action, ectx *types.EpisodeContext) (types.StepResult, error) {
	c.pos = min(max(c.pos+int(a.(move)), 0), c.length)
	c.steps++
	ectx.Tick()
	reward := 0.0
	if r, ok := c.rewards[c.pos]; ok && !c.collected[c.pos] {
		c.collected[c.pos] = true
		reward = r
	}
	return types.StepResult{State: cell(c.pos), Reward: reward, Info: c.info()}, nil
}

// walker moves one cell at a time towards the goal target
type walker struct {
	maxSteps  int
	relabeled int
	replayed  []types.State
}

var _ chains.GlobalOption = &walker{}

func (w *walker) Name() string { return "walker" }

func (w *walker) Execute(ectx *types.EpisodeContext, env types.Environment, state types.State, info types.Info, goal events.SalientEvent) (chains.Outcome, error) {
	out := chains.Outcome{State: state, Info: info, Trajectory: types.NewTrajectory()}
	target := goal.TargetInfo().Position[0]
	for i := 0; i < w.maxSteps && !goal.Matches(out.Info) && !out.Terminated(); i++ {
		dir := move(1)
		if out.Info.Position[0] > target {
			dir = move(-1)
		}
		res, err := env.Step(dir, ectx)
		if err != nil {
			return out, err
		}
		out.Trajectory.Append(types.Transition{
			State: out.State, Action: dir, Reward: res.Reward, NextState: res.State,
			Done: res.Done, Reset: res.Reset(), Info: res.Info,
		})
		out.State, out.Info, out.Done, out.Reset = res.State, res.Info, res.Done, res.Reset()
	}
	out.Reached = goal.Matches(out.Info)
	return out, nil
}

func (w *walker) PositiveRelabel(traj *types.Trajectory) *types.Trajectory {
	w.relabeled++
	return traj
}

func (w *walker) ExperienceReplay(_ *types.Trajectory, goal types.State) {
	w.replayed = append(w.replayed, goal)
}

type learner struct {
	global *walker
}

func (l *learner) NewOption(*chains.Chain) chains.Option { return &walker{maxSteps: 30} }
func (l *learner) GlobalOption() chains.GlobalOption     { return l.global }

// rightExplorer walks right for a fixed number of steps, every state equally novel
type rightExplorer struct {
	length int
}

var _ types.ExplorationAgent = &rightExplorer{}

func (e *rightExplorer) RewardFunction(states []types.State) []float64 {
	return make([]float64, len(states))
}

func (e *rightExplorer) Rollout(ectx *types.EpisodeContext, env types.Environment, state types.State, info types.Info) (*types.Rollout, error) {
	r := &types.Rollout{Init: state, InitInfo: info, Trajectory: types.NewTrajectory(), Intrinsic: make([]float64, 0)}
	for i := 0; i < e.length; i++ {
		res, err := env.Step(move(1), ectx)
		if err != nil {
			return nil, err
		}
		r.Trajectory.Append(types.Transition{
			State: state, Action: move(1), Reward: res.Reward, NextState: res.State,
			Done: res.Done, Reset: res.Reset(), Info: res.Info,
		})
		r.Intrinsic = append(r.Intrinsic, 0)
		state = res.State
		if res.Done || res.Reset() {
			break
		}
	}
	return r, nil
}

type harness struct {
	env      *corridor
	repo     *events.Repository
	manager  *chains.Manager
	planner  *planner.Planner
	learner  *learner
	init     events.SalientEvent
	trainer  *Trainer
	explorer *rightExplorer
}

func newHarness(t *testing.T, cfg Config, extractorCfg explore.Config, opts ...TrainerOption) *harness {
	t.Helper()
	h := &harness{
		env:      newCorridor(40, 200, map[int]float64{6: 1}),
		repo:     events.NewRepository(),
		learner:  &learner{global: &walker{maxSteps: 30}},
		init:     eventAt(0),
		explorer: &rightExplorer{length: 8},
	}
	h.manager = chains.NewManager(h.learner, chains.WithCriterion(chains.SuccessRate{Window: 1, MinRate: 1}))
	h.planner = planner.New(h.repo, h.manager)

	opts = append([]TrainerOption{WithRandSource(rand.NewSource(1))}, opts...)
	trainer, err := NewTrainer(cfg, Components{
		Env:        h.env,
		Explorer:   h.explorer,
		Repository: h.repo,
		Planner:    h.planner,
		Chains:     h.manager,
		Extractor:  explore.NewExtractor(h.repo, h.explorer, extractorCfg),
		Init:       h.init,
	}, opts...)
	require.NoError(t, err)
	h.trainer = trainer
	return h
}

func (h *harness) ectx() *types.EpisodeContext {
	return types.NewEpisodeContext(context.Background(), 0, "test", types.PhaseConsolidation)
}
