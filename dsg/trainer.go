package dsg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/ctxlog"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/explore"
	"github.com/zeu5/skillgraph/metrics"
	"github.com/zeu5/skillgraph/planner"
	"github.com/zeu5/skillgraph/store"
	"github.com/zeu5/skillgraph/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// Components the trainer orchestrates. The trainer is their single owner:
// graph, events and chains are only mutated between rollouts.
type Components struct {
	Env        types.Environment
	Explorer   types.ExplorationAgent
	Repository *events.Repository
	Planner    *planner.Planner
	Chains     *chains.Manager
	Extractor  *explore.Extractor
	// Init is the event of the start states
	Init events.SalientEvent
}

// Trainer runs the expansion / consolidation control loop
type Trainer struct {
	cfg Config
	Components
	agent *Agent

	store   store.Store
	metrics *metrics.Metrics
	values  types.GoalValueFunction
	rng     *rand.Rand

	rewards store.RewardHistory
}

type TrainerOption func(*Trainer)

// WithStore persists goal logs and telemetry to s
func WithStore(s store.Store) TrainerOption {
	return func(t *Trainer) {
		t.store = s
	}
}

func WithMetrics(m *metrics.Metrics) TrainerOption {
	return func(t *Trainer) {
		t.metrics = m
	}
}

// WithRandSource sets the source of every random choice of the trainer
func WithRandSource(src rand.Source) TrainerOption {
	return func(t *Trainer) {
		t.rng = rand.New(src)
	}
}

// WithValueFunction sets the value function the closest goal selection ranks pairs with
func WithValueFunction(v types.GoalValueFunction) TrainerOption {
	return func(t *Trainer) {
		t.values = v
	}
}

func NewTrainer(cfg Config, c Components, opts ...TrainerOption) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.Env == nil || c.Explorer == nil || c.Repository == nil || c.Planner == nil || c.Chains == nil || c.Extractor == nil {
		return nil, errors.New("trainer components are incomplete")
	}
	t := &Trainer{
		cfg:        cfg,
		Components: c,
		agent:      NewAgent(c.Planner, c.Chains, cfg.MaxHops),
		metrics:    metrics.New(),
		rng:        rand.New(rand.NewSource(uint64(cfg.Seed))),
		rewards: store.RewardHistory{
			Intrinsic: make([][]float64, 0),
			Extrinsic: make([][]float64, 0),
		},
	}
	for _, o := range opts {
		o(t)
	}
	if c.Init != nil {
		c.Repository.Add(c.Init)
	}
	return t, nil
}

func (t *Trainer) Agent() *Agent {
	return t.agent
}

func (t *Trainer) Metrics() *metrics.Metrics {
	return t.metrics
}

func (t *Trainer) key() store.Key {
	return store.Key{Experiment: t.cfg.Experiment, Seed: t.cfg.Seed}
}

// RunLoop runs n episodes starting at episode start. Episodes that are a
// multiple of the expansion frequency expand the graph, the others
// consolidate it. Invariant violations abort the offending episode only.
func (t *Trainer) RunLoop(ctx context.Context, start, n int) error {
	logger := ctxlog.FromContext(ctx)
	for episode := start; episode < start+n; episode++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("starting episode", "episode", episode, "events", t.Repository.Len(), "chains", t.Chains.Len())

		var err error
		if !t.cfg.DisableGraphExpansion && episode%t.cfg.ExpansionFreq == 0 {
			err = t.expansion(ctx, episode, t.cfg.ExpansionDuration)
		} else if t.Repository.Len() > 0 {
			err = t.consolidation(ctx, episode)
		}
		var ie *events.InvariantError
		if errors.As(err, &ie) {
			t.metrics.InvariantViolations.Inc()
			logger.Error("aborted episode", "episode", episode, "error", ie.Error(),
				"position", ie.Position, "regions", ie.Regions)
		} else if err != nil {
			return fmt.Errorf("episode %d: %w", episode, err)
		}

		t.metrics.SalientEvents.Set(float64(t.Repository.Len()))
		t.metrics.ObserveChains(t.Chains.Counts())

		if err := t.saveGoalLog(ctx, episode); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) saveGoalLog(ctx context.Context, episode int) error {
	if t.store == nil {
		return nil
	}
	start := time.Now()
	if err := t.store.SaveGoalLog(ctx, t.key(), t.agent.GoalLog()); err != nil {
		return fmt.Errorf("save goal log: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("saved goal log", "episode", episode, "seed", t.cfg.Seed, "took", time.Since(start))
	return nil
}

// expansion runs duration environment episodes, each navigating to a node of
// the graph and exploring from there, then extracts new events from the
// collected rollouts.
func (t *Trainer) expansion(ctx context.Context, episode, duration int) error {
	rollouts := make([]*types.Rollout, 0)
	for ep := episode; ep < episode+duration; ep++ {
		ectx := types.NewEpisodeContext(ctx, ep, t.cfg.Experiment, types.PhaseExpansion)
		r, err := t.expansionEpisode(ectx)
		if err != nil {
			return err
		}
		if r.Len() > 0 {
			rollouts = append(rollouts, r)
		}
	}
	if len(rollouts) == 0 {
		return nil
	}

	ectx := types.NewEpisodeContext(ctx, episode, t.cfg.Experiment, types.PhaseExpansion)
	res, err := t.Extractor.Extract(ectx, rollouts)
	if res != nil {
		t.metrics.ObserveRejections(res.Rejected)
	}
	if err != nil {
		return fmt.Errorf("extract subgoals: %w", err)
	}
	for _, e := range res.Accepted {
		t.metrics.AcceptedEvents.WithLabelValues(t.kindOf(res, e)).Inc()
	}
	if len(res.Candidates()) == 0 {
		return nil
	}

	if t.cfg.MakeOffPolicyUpdate && len(res.Accepted) > 0 {
		t.offPolicyUpdate(ectx, rollouts, res)
	}
	if t.cfg.EnableTelemetry {
		return t.persistTelemetry(ctx, episode, res)
	}
	return nil
}

func (t *Trainer) expansionEpisode(ectx *types.EpisodeContext) (*types.Rollout, error) {
	start := time.Now()
	defer func() {
		t.metrics.ObserveEpisode(ectx.Phase, time.Since(start))
		ectx.Logger.Debug("episode report\n" + ectx.Report.StringTimeline())
	}()

	state, info, err := t.Env.Reset(ectx)
	if err != nil {
		return nil, fmt.Errorf("reset environment: %w", err)
	}
	node, ok := t.Planner.NodeToExpand(t.rng)
	if !ok {
		return nil, nil
	}
	t.Planner.RecordExpansionAttempt(node)
	ectx.Logger.Info("attempting to expand", "event", node.ID())

	out, err := t.agent.Navigate(ectx, t.Env, state, info, node)
	if err != nil {
		return nil, err
	}
	t.metrics.ObserveGoal(out.Reached)
	if !out.Reached || out.Terminated() {
		return nil, nil
	}
	t.Planner.RecordExpansionCompleted(node)

	r, err := t.Explorer.Rollout(ectx, t.Env, out.State, out.Info)
	if err != nil {
		return nil, fmt.Errorf("exploration rollout: %w", err)
	}
	if r.Len() == 0 {
		return r, nil
	}
	intrinsic := append([]float64(nil), r.Intrinsic...)
	extrinsic := r.Trajectory.Rewards()
	t.rewards.Intrinsic = append(t.rewards.Intrinsic, intrinsic)
	t.rewards.Extrinsic = append(t.rewards.Extrinsic, extrinsic)
	ectx.Logger.Info("exploration rollout", "length", r.Len(), "reward", floats.Sum(extrinsic), "intrinsic", floats.Sum(intrinsic))
	return r, nil
}

func (t *Trainer) kindOf(res *explore.Result, e events.SalientEvent) string {
	for _, c := range res.Extrinsic {
		if e.Matches(c.Info) {
			return string(explore.KindExtrinsic)
		}
	}
	return string(explore.KindIntrinsic)
}

// offPolicyUpdate replays the exploration trajectories that led to new
// events into the global option, relabelled as successes. Trajectories whose
// candidates were all rejected are skipped.
func (t *Trainer) offPolicyUpdate(ectx *types.EpisodeContext, rollouts []*types.Rollout, res *explore.Result) {
	global := t.Chains.GlobalOption()
	if global == nil {
		return
	}
	for _, i := range res.AcceptedTrajectoryIndexes() {
		traj := explore.Truncate(rollouts[i].Trajectory, res.Accepted)
		last, ok := traj.Last()
		if !ok {
			continue
		}
		ectx.Logger.Debug("off policy update", "transitions", traj.Len(), "final", last.Info.String())
		global.ExperienceReplay(global.PositiveRelabel(traj), last.NextState)
	}
}

// consolidation runs one environment episode picking goals until the
// environment terminates or the goal budget is spent.
func (t *Trainer) consolidation(ctx context.Context, episode int) error {
	ectx := types.NewEpisodeContext(ctx, episode, t.cfg.Experiment, types.PhaseConsolidation)
	start := time.Now()
	defer func() {
		t.metrics.ObserveEpisode(ectx.Phase, time.Since(start))
	}()

	state, info, err := t.Env.Reset(ectx)
	if err != nil {
		return fmt.Errorf("reset environment: %w", err)
	}
	cur := chains.Outcome{State: state, Info: info}
	for goals := 0; !cur.Terminated(); goals++ {
		if t.cfg.ConsolidationBudget > 0 && goals >= t.cfg.ConsolidationBudget {
			break
		}
		if ectx.Cancelled() {
			return ctx.Err()
		}
		goal, err := t.SelectGoal(cur.Info)
		if err != nil {
			t.metrics.NoGoal.Inc()
			ectx.Logger.Warn("ending consolidation episode early", "error", err)
			break
		}

		t.createSkillChainsIfNeeded(ectx, cur.Info, goal)
		ectx.Logger.Info("consolidating", "from", cur.Info.String(), "goal", goal.ID())
		out, err := t.agent.Navigate(ectx, t.Env, cur.State, cur.Info, goal)
		if err != nil {
			return err
		}
		t.metrics.ObserveGoal(out.Reached)
		if out.Reached {
			ectx.Logger.Info("reached goal", "goal", goal.ID())
		}
		if !out.Reached && out.Trajectory.Len() == 0 {
			// nothing moved, the next goal would be picked from the same state
			t.metrics.StalledEpisodes.Inc()
			ectx.Logger.Warn("ending consolidation episode early, navigation took no step", "goal", goal.ID())
			break
		}
		cur = out
	}

	if episode > 0 && episode%t.cfg.PotentialEdgeFreq == 0 {
		t.addPotentialEdges(ectx)
	}
	return nil
}

func (t *Trainer) addPotentialEdges(ectx *types.EpisodeContext) {
	start := time.Now()
	added := 0
	for _, n := range t.Planner.Nodes() {
		added += t.Planner.AddPotentialEdges(n)
	}
	t.metrics.PotentialEdges.Add(float64(added))
	ectx.Report.AddTimeEntry(time.Since(start), "potential_edges", "Trainer.addPotentialEdges")
	ectx.Logger.Info("added potential edges", "added", added, "took", time.Since(start))
}
