package dsg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/explore"
	"github.com/zeu5/skillgraph/planner"
	"github.com/zeu5/skillgraph/store"
	"golang.org/x/exp/rand"
)

func scenarioConfig() Config {
	cfg := DefaultConfig()
	cfg.Experiment = "corridor"
	cfg.ExpansionFreq = 2
	cfg.ExpansionDuration = 1
	cfg.ConsolidationBudget = 1
	cfg.MakeOffPolicyUpdate = true
	cfg.EnableTelemetry = true
	return cfg
}

func TestEndToEndScenario(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	h := newHarness(t, scenarioConfig(), explore.DefaultConfig(), WithStore(s))
	ctx := context.Background()

	require.Equal(t, 1, h.repo.Len())

	// episode 0 expands from E0 and finds the rewarding cell
	require.NoError(t, h.trainer.RunLoop(ctx, 0, 1))
	require.Equal(t, 2, h.repo.Len())
	e1 := h.repo.All()[1]
	assert.Equal(t, []float64{6}, e1.TargetInfo().Position)
	assert.Len(t, h.planner.Nodes(), 2)
	assert.False(t, h.planner.DoesPathExistBetween(h.init, e1))
	assert.Equal(t, 1, h.learner.global.relabeled)
	require.Len(t, h.learner.global.replayed, 1)
	assert.Equal(t, cell(4), h.learner.global.replayed[0])

	// episode 1 consolidates towards E1 and completes the chain
	require.NoError(t, h.trainer.RunLoop(ctx, 1, 1))
	c, ok := h.manager.Find(h.init, e1)
	require.True(t, ok)
	assert.True(t, c.IsCompleted())
	assert.Equal(t, 1, h.manager.Len())
	assert.True(t, h.planner.DoesPathExist(at(0), e1))
	assert.True(t, h.planner.DoesPathExistBetween(h.init, e1))

	for _, n := range h.planner.Nodes() {
		h.planner.AddPotentialEdges(n)
	}
	assert.Len(t, h.planner.Edges(), 1)
	assert.False(t, h.planner.HasSpeculativeEdge(h.init, e1))
	assert.True(t, h.planner.HasSpeculativeEdge(e1, h.init))

	snap, err := s.Load(ctx, store.Key{Experiment: "corridor", Seed: 0})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, snap.GoalLog[e1.ID()])
	assert.Equal(t, []bool{true}, snap.GoalLog[h.init.ID()])
	require.Len(t, snap.Events, 1)
	assert.Equal(t, e1.ID(), snap.Events[0].EventID)
	require.Len(t, snap.Subgoals, 2)
	assert.Equal(t, string(explore.KindExtrinsic), snap.Subgoals[0].Kind)
	assert.Len(t, snap.Rewards.Extrinsic, 1)

	m := h.trainer.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AcceptedEvents.WithLabelValues("extrinsic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Chains.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SalientEvents))
}

func TestDisabledExpansionOnlyConsolidates(t *testing.T) {
	cfg := scenarioConfig()
	cfg.DisableGraphExpansion = true
	h := newHarness(t, cfg, explore.DefaultConfig())
	h.repo.Add(eventAt(6))

	require.NoError(t, h.trainer.RunLoop(context.Background(), 10, 1))
	assert.Equal(t, 2, h.repo.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.trainer.Metrics().Episodes.WithLabelValues("consolidation")))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.trainer.Metrics().Episodes.WithLabelValues("expansion")))

	// episode 10 also adds the speculative edge back to the start
	assert.Equal(t, 1.0, testutil.ToFloat64(h.trainer.Metrics().PotentialEdges))
	assert.True(t, h.planner.HasSpeculativeEdge(eventAt(6), h.init))
}

func TestInvariantViolationAbortsOnlyTheEpisode(t *testing.T) {
	extractorCfg := explore.DefaultConfig()
	extractorCfg.Regions = events.RegionSet{
		{Name: "a", Min: []float64{4}, Max: []float64{10}},
		{Name: "b", Min: []float64{5}, Max: []float64{20}},
	}
	h := newHarness(t, scenarioConfig(), extractorCfg)

	require.NoError(t, h.trainer.RunLoop(context.Background(), 0, 2))
	m := h.trainer.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvariantViolations))
	assert.Equal(t, 1, h.repo.Len())

	// the only event is the one the agent stands on
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NoGoal))
}

func TestConsolidationEndsWhenNavigationTakesNoStep(t *testing.T) {
	cfg := scenarioConfig()
	cfg.DisableGraphExpansion = true
	cfg.ConsolidationBudget = 0

	// without a learner no option can move the agent
	repo := events.NewRepository()
	manager := chains.NewManager(nil)
	env := newCorridor(40, 200, nil)
	explorer := &rightExplorer{length: 8}
	trainer, err := NewTrainer(cfg, Components{
		Env:        env,
		Explorer:   explorer,
		Repository: repo,
		Planner:    planner.New(repo, manager),
		Chains:     manager,
		Extractor:  explore.NewExtractor(repo, explorer, explore.DefaultConfig()),
		Init:       eventAt(0),
	}, WithRandSource(rand.NewSource(1)))
	require.NoError(t, err)
	repo.Add(eventAt(10))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, trainer.RunLoop(ctx, 1, 2))

	m := trainer.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StalledEpisodes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GoalAttempts.WithLabelValues("failed")))
	assert.Equal(t, 2, env.resets)
	assert.Equal(t, 0, env.steps)
}

func TestRunLoopStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t, scenarioConfig(), explore.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.trainer.RunLoop(ctx, 0, 3)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, h.env.resets)
}

func TestNewTrainerValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GoalSelection = "nearest"
	_, err := NewTrainer(cfg, Components{})
	assert.True(t, errors.Is(err, ErrUnknownGoalSelection))

	_, err = NewTrainer(DefaultConfig(), Components{})
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.ExpansionFreq = 0
	assert.Error(t, cfg.Validate())
}

func TestOffPolicyUpdateDisabled(t *testing.T) {
	cfg := scenarioConfig()
	cfg.MakeOffPolicyUpdate = false
	h := newHarness(t, cfg, explore.DefaultConfig())

	require.NoError(t, h.trainer.RunLoop(context.Background(), 0, 1))
	assert.Equal(t, 2, h.repo.Len())
	assert.Empty(t, h.learner.global.replayed)
}
