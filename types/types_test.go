package types

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cell int

func (c cell) Hash() string        { return string(rune('a' + int(c))) }
func (c cell) Actions() []Action   { return nil }
func (c cell) Features() []float64 { return []float64{float64(c)} }

func TestInfo(t *testing.T) {
	info := NewInfo([]float64{1, 2}, FlagFalling)
	assert.True(t, info.Flag(FlagFalling))
	assert.False(t, info.Flag(FlagDead))
	assert.True(t, info.Terminal())
	assert.False(t, Info{}.Flag(FlagDead))
	assert.Equal(t, "(1, 2)", info.String())

	cp := info.Copy()
	cp.Position[0] = 9
	cp.Flags[FlagDead] = true
	assert.Equal(t, 1.0, info.Position[0])
	assert.False(t, info.Flag(FlagDead))

	assert.True(t, StepResult{Info: NewInfo(nil, FlagNeedsReset)}.Reset())
}

func TestTrajectory(t *testing.T) {
	traj := NewTrajectory()
	_, ok := traj.Last()
	assert.False(t, ok)

	for i := 0; i < 4; i++ {
		traj.Append(Transition{State: cell(i), NextState: cell(i + 1), Reward: float64(i), Info: NewInfo([]float64{float64(i + 1)})})
	}
	assert.Equal(t, 4, traj.Len())
	last, ok := traj.Last()
	require.True(t, ok)
	assert.Equal(t, cell(4), last.NextState)
	_, ok = traj.Get(4)
	assert.False(t, ok)

	prefix, ok := traj.GetPrefix(2)
	require.True(t, ok)
	assert.Equal(t, 2, prefix.Len())
	_, ok = traj.GetPrefix(5)
	assert.False(t, ok)

	assert.Equal(t, 2, traj.Slice(1, 3).Len())
	assert.Equal(t, []State{cell(1), cell(2), cell(3), cell(4)}, traj.NextStates())
	assert.Equal(t, []float64{0, 1, 2, 3}, traj.Rewards())
	assert.Equal(t, []float64{3}, traj.Infos()[2].Position)

	trs := traj.Transitions()
	trs[0].Reward = 10
	first, _ := traj.Get(0)
	assert.Equal(t, 0.0, first.Reward)

	var r *Rollout
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 4, (&Rollout{Trajectory: traj}).Len())
}

func TestEpisodeContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ectx := NewEpisodeContext(ctx, 3, "exp", PhaseExpansion)
	assert.False(t, ectx.Cancelled())

	ectx.Tick()
	ectx.Tick()
	assert.Equal(t, 2, ectx.Timesteps)

	ectx.Report.AddIntEntry(2, "option_executions", "test")
	ectx.Report.AddIntEntry(3, "option_executions", "test")
	ectx.Report.AddTimeEntry(time.Millisecond, "potential_edges", "test")
	assert.Equal(t, 5, ectx.Report.IntTotal("option_executions"))
	assert.Len(t, ectx.Report.Timeline, 3)
	assert.Equal(t, 2, ectx.Report.Timeline[0].EpisodeStep)
	assert.Contains(t, ectx.Report.StringTimeline(), "Length: 3")

	cancel()
	assert.True(t, ectx.Cancelled())
}
