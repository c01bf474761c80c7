package grid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/types"
)

func ectx() *types.EpisodeContext {
	return types.NewEpisodeContext(context.Background(), 0, "grid", types.PhaseExpansion)
}

func step(t *testing.T, g *GridEnvironment, ctx *types.EpisodeContext, a types.Action) types.StepResult {
	t.Helper()
	res, err := g.Step(a, ctx)
	require.NoError(t, err)
	return res
}

func TestMovementIsClamped(t *testing.T) {
	l, err := ParseLayout("rooms")
	require.NoError(t, err)
	g := NewGridEnvironment(l, 0)
	ctx := ectx()

	s, info, err := g.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "(0, 0, 0)", s.Hash())
	assert.Equal(t, []float64{0, 0, 0}, info.Position)

	res := step(t, g, ctx, MovementDown)
	assert.Equal(t, "(0, 0, 0)", res.State.Hash())
	res = step(t, g, ctx, MovementUp)
	assert.Equal(t, "(1, 0, 0)", res.State.Hash())
	res = step(t, g, ctx, JumpMovement)
	assert.Equal(t, "(1, 2, 0)", res.State.Hash())
	assert.True(t, res.Info.Flag(types.FlagJumping))
	res = step(t, g, ctx, MovementRight)
	assert.False(t, res.Info.Flag(types.FlagJumping))
	assert.Equal(t, 4, ctx.Timesteps)
}

func TestDoorsAndRewards(t *testing.T) {
	l, _ := ParseLayout("rooms")
	g := NewGridEnvironment(l, 0)
	ctx := ectx()
	g.Reset(ctx)

	res := step(t, g, ctx, NextGridMovement)
	assert.Equal(t, "(0, 0, 0)", res.State.Hash())

	g.CurPos = &Position{I: 19, J: 19, K: 0}
	res = step(t, g, ctx, NextGridMovement)
	assert.Equal(t, "(0, 0, 1)", res.State.Hash())
	assert.Equal(t, []float64{0, 0, 100}, res.Info.Position)
	assert.False(t, StartEvent(2).Matches(res.Info))

	g.CurPos = &Position{I: 15, J: 14, K: 1}
	res = step(t, g, ctx, MovementRight)
	assert.Equal(t, 1.0, res.Reward)
	step(t, g, ctx, MovementLeft)
	res = step(t, g, ctx, MovementRight)
	assert.Equal(t, 0.0, res.Reward, "rewards pay once per episode")

	g.Reset(ctx)
	g.CurPos = &Position{I: 15, J: 14, K: 1}
	res = step(t, g, ctx, MovementRight)
	assert.Equal(t, 1.0, res.Reward)
}

func TestInfoCarriesFeatures(t *testing.T) {
	l, _ := ParseLayout("rooms")
	g := NewGridEnvironment(l, 0)
	ctx := ectx()
	_, info, err := g.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, info.Features)

	target := &Position{I: 5, J: 5, K: 0}
	e := events.NewClassifierEvent(target, types.NewInfo(target.Features()), nil,
		[][]float64{{5, 5, 0}, {5, 6, 0}, {5, 7, 0}, {5, 12, 0}},
		[]int{events.LabelPositive, events.LabelPositive, events.LabelPositive, events.LabelNegative}, 2)

	// (5, 8, 0) is outside the position tolerance but inside the classifier
	g.CurPos = &Position{I: 5, J: 7, K: 0}
	res := step(t, g, ctx, MovementRight)
	assert.Equal(t, []float64{5, 8, 0}, res.Info.Features)
	assert.False(t, e.PositionEvent.Matches(res.Info))
	assert.True(t, e.Matches(res.Info))

	res = step(t, g, ctx, MovementRight)
	res = step(t, g, ctx, MovementRight)
	assert.False(t, e.Matches(res.Info))
}

func TestTerminalCells(t *testing.T) {
	l, _ := ParseLayout("pits")
	g := NewGridEnvironment(l, 0)
	ctx := ectx()
	g.Reset(ctx)
	g.CurPos = &Position{I: 6, J: 3}
	res := step(t, g, ctx, MovementUp)
	assert.True(t, res.Done)
	assert.True(t, res.Info.Flag(types.FlagDead))
	assert.True(t, res.Info.Terminal())

	l, _ = ParseLayout("ledges")
	g = NewGridEnvironment(l, 0)
	g.Reset(ctx)
	g.CurPos = &Position{I: 2, J: 6}
	res = step(t, g, ctx, MovementRight)
	assert.True(t, res.Done)
	assert.True(t, res.Info.Flag(types.FlagFalling))

	g.Reset(ctx)
	g.CurPos = &Position{I: 2, J: 6}
	res = step(t, g, ctx, JumpMovement)
	assert.False(t, res.Done)
	assert.Equal(t, "(2, 8, 0)", res.State.Hash())
}

func TestHorizon(t *testing.T) {
	l, _ := ParseLayout("rooms")
	g := NewGridEnvironment(l, 3)
	ctx := ectx()
	g.Reset(ctx)
	for i := 0; i < 2; i++ {
		assert.False(t, step(t, g, ctx, MovementUp).Reset())
	}
	assert.True(t, step(t, g, ctx, MovementUp).Reset())

	g.Reset(ctx)
	assert.False(t, step(t, g, ctx, MovementUp).Reset())
}

func TestCoverage(t *testing.T) {
	l, _ := ParseLayout("pits")
	g := NewGridEnvironment(l, 0)
	ctx := ectx()
	g.Reset(ctx)
	step(t, g, ctx, MovementUp)
	step(t, g, ctx, MovementDown)
	assert.Equal(t, 2, g.VisitedCells())
	assert.Equal(t, 2, g.Visits(Position{}))
	assert.InDelta(t, 2.0/225, g.Coverage(), 1e-9)
}

func TestLayouts(t *testing.T) {
	assert.Equal(t, []string{"ledges", "pits", "rooms"}, Layouts())
	_, err := ParseLayout("maze")
	assert.ErrorIs(t, err, ErrUnknownLayout)

	s := StateFor([]float64{3, 4, 100})
	assert.Equal(t, "(3, 4, 1)", s.Hash())
	assert.True(t, InPosition(3, 4, 1, 1).Matches(types.NewInfo(s.Features())))
}

func TestUnknownAction(t *testing.T) {
	l, _ := ParseLayout("rooms")
	g := NewGridEnvironment(l, 0)
	_, err := g.Step(fakeAction{}, ectx())
	assert.Error(t, err)
}

type fakeAction struct{}

func (fakeAction) Hash() string { return "fake" }
