package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/types"
	"golang.org/x/exp/rand"
)

type cell float64

func (c cell) Hash() string            { return events.Key([]float64{float64(c)}, 0) }
func (c cell) Actions() []types.Action { return nil }
func (c cell) Features() []float64     { return []float64{float64(c)} }

func event(x float64) events.SalientEvent {
	return events.NewPositionEvent(cell(x), types.NewInfo([]float64{x}), 0)
}

func at(x float64) types.Info {
	return types.NewInfo([]float64{x})
}

type fixture struct {
	repo    *events.Repository
	manager *chains.Manager
	planner *Planner
}

func newFixture(xs ...float64) *fixture {
	repo := events.NewRepository()
	for _, x := range xs {
		repo.Add(event(x))
	}
	manager := chains.NewManager(nil, chains.WithCriterion(chains.SuccessRate{Window: 1, MinRate: 1}), chains.WithMaxAttempts(3))
	return &fixture{
		repo:    repo,
		manager: manager,
		planner: New(repo, manager, WithEdgeRadius(5)),
	}
}

func (f *fixture) complete(t *testing.T, a, b float64) {
	c, _ := f.manager.CreateChain(event(a), event(b))
	require.NotNil(t, c)
	require.Equal(t, chains.Completed, f.manager.RecordAttempt(c, true))
}

func TestNodesFollowRepository(t *testing.T) {
	f := newFixture(0, 5)
	assert.Len(t, f.planner.Nodes(), 2)

	f.repo.Add(event(9))
	f.repo.Add(event(9))
	nodes := f.planner.Nodes()
	require.Len(t, nodes, 3)
	assert.True(t, events.Same(event(9), nodes[2]))
	assert.False(t, f.planner.AddNode(event(5)))
}

func TestPathExistsOnlyAfterCompletion(t *testing.T) {
	f := newFixture(0, 5)
	c, created := f.manager.CreateChain(event(0), event(5))
	require.True(t, created)

	assert.False(t, f.planner.DoesPathExist(at(0), event(5)))
	f.manager.RecordAttempt(c, false)
	// still training after a failure
	assert.False(t, f.planner.DoesPathExistBetween(event(0), event(5)))

	f.manager.RecordAttempt(c, true)
	require.True(t, c.IsCompleted())
	assert.True(t, f.planner.DoesPathExist(at(0), event(5)))
	assert.True(t, f.planner.DoesPathExistBetween(event(0), event(5)))
	assert.False(t, f.planner.DoesPathExistBetween(event(5), event(0)))
	assert.False(t, f.planner.DoesPathExist(at(3), event(5)))
	assert.Len(t, f.planner.Edges(), 1)
}

func TestOptimisticGraph(t *testing.T) {
	f := newFixture(0, 5, 9)
	f.complete(t, 0, 5)
	_, created := f.manager.CreateChain(event(5), event(9))
	require.True(t, created)

	assert.True(t, f.planner.DoesPathExistInOptimisticGraph(event(0), event(9)))
	assert.False(t, f.planner.DoesPathExist(at(0), event(9)))
	assert.False(t, f.planner.DoesPathExistInOptimisticGraph(event(9), event(0)))

	// the optimistic copy never leaks into the plan graph
	assert.Len(t, f.planner.Edges(), 1)
	assert.False(t, f.planner.HasEdge(event(5), event(9)))
}

func TestAbandonedChainLeavesOptimisticGraph(t *testing.T) {
	f := newFixture(0, 5)
	c, _ := f.manager.CreateChain(event(0), event(5))
	f.planner.AddPotentialEdges(event(0))
	require.True(t, f.planner.HasSpeculativeEdge(event(0), event(5)))

	// a success rate of 1 over a window of 1 is never met by failures
	for i := 0; i < 3; i++ {
		f.manager.RecordAttempt(c, false)
	}
	require.Equal(t, chains.Abandoned, c.State())

	assert.False(t, f.planner.HasSpeculativeEdge(event(0), event(5)))
	assert.False(t, f.planner.DoesPathExistInOptimisticGraph(event(0), event(5)))
	assert.Equal(t, 0, f.planner.AddPotentialEdges(event(0)))
}

func TestUnconnectedNodes(t *testing.T) {
	f := newFixture(0, 5, 9)
	f.complete(t, 0, 5)

	unconnected := f.planner.UnconnectedNodes(at(0), []events.SalientEvent{event(5), event(9)})
	require.Len(t, unconnected, 1)
	assert.True(t, events.Same(event(9), unconnected[0]))
}

func TestClosestPairOfVertices(t *testing.T) {
	f := newFixture(0, 5, 9, 20)

	src, dst, ok := f.planner.ClosestPairOfVertices(
		[]events.SalientEvent{event(0), event(9)},
		[]events.SalientEvent{event(20), event(5), event(9)},
		nil,
	)
	require.True(t, ok)
	assert.True(t, events.Same(event(9), src))
	assert.True(t, events.Same(event(5), dst))

	_, _, ok = f.planner.ClosestPairOfVertices([]events.SalientEvent{event(5)}, []events.SalientEvent{event(5)}, nil)
	assert.False(t, ok)

	// custom metric
	far := func(a, b events.SalientEvent) float64 { return -EuclideanMetric(a, b) }
	src, dst, ok = f.planner.ClosestPairOfVertices([]events.SalientEvent{event(0)}, []events.SalientEvent{event(5), event(20)}, far)
	require.True(t, ok)
	assert.True(t, events.Same(event(0), src))
	assert.True(t, events.Same(event(20), dst))
}

func TestClosestSourceTargetPair(t *testing.T) {
	f := newFixture(0, 5, 12, 20)
	f.complete(t, 0, 5)
	f.complete(t, 12, 20)

	// sources {0, 5}, targets {20, 12}
	src, dst, ok := f.planner.ClosestSourceTargetPair(at(0), event(20), nil)
	require.True(t, ok)
	assert.True(t, events.Same(event(5), src))
	assert.True(t, events.Same(event(12), dst))

	_, _, ok = f.planner.ClosestSourceTargetPair(at(3), event(20), nil)
	assert.False(t, ok)
}

func TestAddPotentialEdges(t *testing.T) {
	f := newFixture(0, 4, 9, 30)

	assert.Equal(t, 1, f.planner.AddPotentialEdges(event(0)))
	assert.Equal(t, 0, f.planner.AddPotentialEdges(event(0)))
	assert.Equal(t, 2, f.planner.AddPotentialEdges(event(4)))
	assert.Equal(t, 0, f.planner.AddPotentialEdges(event(30)))
	assert.Len(t, f.planner.SpeculativeEdges(), 3)

	// speculative edges never count as validated reachability
	assert.False(t, f.planner.DoesPathExistBetween(event(0), event(4)))
	assert.True(t, f.planner.DoesPathExistInOptimisticGraph(event(0), event(9)))

	// completion promotes the speculative edge
	f.complete(t, 0, 4)
	assert.False(t, f.planner.HasSpeculativeEdge(event(0), event(4)))
	assert.True(t, f.planner.HasEdge(event(0), event(4)))
	assert.Equal(t, 0, f.planner.AddPotentialEdges(event(0)))
	assert.Len(t, f.planner.Edges(), 1)
	assert.Len(t, f.planner.SpeculativeEdges(), 2)
}

func TestShortestPath(t *testing.T) {
	f := newFixture(0, 5, 9, 12)
	f.complete(t, 0, 5)
	f.complete(t, 5, 9)
	f.complete(t, 9, 12)
	f.complete(t, 0, 9)

	p := f.planner.ShortestPath(event(0), event(12))
	require.Len(t, p, 3)
	assert.True(t, events.Same(event(0), p[0]))
	assert.True(t, events.Same(event(9), p[1]))
	assert.True(t, events.Same(event(12), p[2]))

	assert.Nil(t, f.planner.ShortestPath(event(12), event(0)))
}

func TestNodeToExpandFavoursFewAttempts(t *testing.T) {
	f := newFixture(0, 5)
	src := rand.NewSource(7)

	_, ok := New(events.NewRepository(), nil).NodeToExpand(src)
	assert.False(t, ok)

	for i := 0; i < 200; i++ {
		f.planner.RecordExpansionAttempt(event(0))
	}
	f.planner.RecordExpansionCompleted(event(0))
	attempts, completed := f.planner.ExpansionStats(event(0))
	assert.Equal(t, 200, attempts)
	assert.Equal(t, 1, completed)

	picked := 0
	for i := 0; i < 500; i++ {
		e, ok := f.planner.NodeToExpand(src)
		require.True(t, ok)
		if events.Same(e, event(5)) {
			picked++
		}
	}
	assert.Greater(t, picked, 450)
}
