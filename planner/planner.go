// Package planner maintains the plan graph over salient events.
//
// Real edges are added only when a chain between two events completes.
// Speculative edges, estimated from a distance metric, are kept apart and
// only ever feed the optimistic graph used to avoid redundant chains.
package planner

import (
	"math"

	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// weight of a validated edge
const realEdgeWeight = 1.0

// DistanceMetric estimates the cost of reaching b from a
type DistanceMetric func(a, b events.SalientEvent) float64

// EuclideanMetric is the distance between the two event targets
func EuclideanMetric(a, b events.SalientEvent) float64 {
	return a.Distance(b.TargetInfo())
}

type node struct {
	id    int64
	event events.SalientEvent

	expansionAttempts  int
	expansionsComplete int
}

func (n *node) ID() int64 {
	return n.id
}

type edgeKey struct {
	from, to int64
}

// Edge between two events of the plan graph
type Edge struct {
	From   events.SalientEvent
	To     events.SalientEvent
	Weight float64
}

// Planner answers reachability and planning queries over the plan graph
type Planner struct {
	graph  *simple.WeightedDirectedGraph
	nodes  []*node
	byID   map[string]*node
	chains *chains.Manager

	metric      DistanceMetric
	edgeRadius  float64
	speculative map[edgeKey]float64
}

type Option func(*Planner)

// WithMetric sets the default metric used by the planner
func WithMetric(m DistanceMetric) Option {
	return func(p *Planner) {
		p.metric = m
	}
}

// WithEdgeRadius sets the largest metric distance a speculative edge can span
func WithEdgeRadius(r float64) Option {
	return func(p *Planner) {
		p.edgeRadius = r
	}
}

// New creates a planner tracking the events of repo and the chains of manager.
// Events added to the repository become nodes, completed chains become edges.
// manager may be nil.
func New(repo *events.Repository, manager *chains.Manager, opts ...Option) *Planner {
	p := &Planner{
		graph:       simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		nodes:       make([]*node, 0),
		byID:        make(map[string]*node),
		chains:      manager,
		metric:      EuclideanMetric,
		edgeRadius:  10,
		speculative: make(map[edgeKey]float64),
	}
	for _, o := range opts {
		o(p)
	}
	if repo != nil {
		for _, e := range repo.All() {
			p.AddNode(e)
		}
		repo.Subscribe(func(e events.SalientEvent) { p.AddNode(e) })
	}
	if manager != nil {
		manager.Subscribe(p.onChainUpdate)
	}
	return p
}

func (p *Planner) onChainUpdate(c *chains.Chain) {
	switch c.State() {
	case chains.Completed:
		p.AddEdge(c.Init, c.Target)
	case chains.Abandoned:
		from, okFrom := p.byID[c.Init.ID()]
		to, okTo := p.byID[c.Target.ID()]
		if okFrom && okTo {
			delete(p.speculative, edgeKey{from.id, to.id})
		}
	}
}

// AddNode adds the event to the graph. Returns false if already present.
func (p *Planner) AddNode(e events.SalientEvent) bool {
	if _, ok := p.byID[e.ID()]; ok {
		return false
	}
	n := &node{id: int64(len(p.nodes)), event: e}
	p.graph.AddNode(n)
	p.nodes = append(p.nodes, n)
	p.byID[e.ID()] = n
	return true
}

func (p *Planner) Contains(e events.SalientEvent) bool {
	_, ok := p.byID[e.ID()]
	return ok
}

// Nodes in insertion order
func (p *Planner) Nodes() []events.SalientEvent {
	out := make([]events.SalientEvent, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.event
	}
	return out
}

// AddEdge adds a validated edge from a to b, promoting any speculative edge
// between the two. Missing nodes are added.
func (p *Planner) AddEdge(a, b events.SalientEvent) bool {
	if events.Same(a, b) {
		return false
	}
	p.AddNode(a)
	p.AddNode(b)
	from, to := p.byID[a.ID()], p.byID[b.ID()]
	delete(p.speculative, edgeKey{from.id, to.id})
	if p.graph.HasEdgeFromTo(from.id, to.id) {
		return false
	}
	p.graph.SetWeightedEdge(p.graph.NewWeightedEdge(from, to, realEdgeWeight))
	return true
}

// HasEdge reports whether a validated edge a -> b exists
func (p *Planner) HasEdge(a, b events.SalientEvent) bool {
	from, okFrom := p.byID[a.ID()]
	to, okTo := p.byID[b.ID()]
	return okFrom && okTo && p.graph.HasEdgeFromTo(from.id, to.id)
}

// Edges returns the validated edges, ordered by source then target insertion
func (p *Planner) Edges() []Edge {
	out := make([]Edge, 0)
	for _, from := range p.nodes {
		for _, to := range p.nodes {
			if w, ok := p.graph.Weight(from.id, to.id); ok && from.id != to.id {
				out = append(out, Edge{From: from.event, To: to.event, Weight: w})
			}
		}
	}
	return out
}

// SpeculativeEdges returns the edges that are estimated but not validated
func (p *Planner) SpeculativeEdges() []Edge {
	out := make([]Edge, 0, len(p.speculative))
	for _, from := range p.nodes {
		for _, to := range p.nodes {
			if w, ok := p.speculative[edgeKey{from.id, to.id}]; ok {
				out = append(out, Edge{From: from.event, To: to.event, Weight: w})
			}
		}
	}
	return out
}

func (p *Planner) HasSpeculativeEdge(a, b events.SalientEvent) bool {
	from, okFrom := p.byID[a.ID()]
	to, okTo := p.byID[b.ID()]
	if !okFrom || !okTo {
		return false
	}
	_, ok := p.speculative[edgeKey{from.id, to.id}]
	return ok
}

// CurrentEvents returns the nodes satisfied by info
func (p *Planner) CurrentEvents(info types.Info) []events.SalientEvent {
	out := make([]events.SalientEvent, 0)
	for _, n := range p.nodes {
		if n.event.Matches(info) {
			out = append(out, n.event)
		}
	}
	return out
}

// DoesPathExist reports whether goal is reachable over validated edges from
// any event satisfied by info.
func (p *Planner) DoesPathExist(info types.Info, goal events.SalientEvent) bool {
	for _, e := range p.CurrentEvents(info) {
		if p.DoesPathExistBetween(e, goal) {
			return true
		}
	}
	return false
}

// DoesPathExistBetween reports whether b is reachable from a over validated edges
func (p *Planner) DoesPathExistBetween(a, b events.SalientEvent) bool {
	from, okFrom := p.byID[a.ID()]
	to, okTo := p.byID[b.ID()]
	if !okFrom || !okTo {
		return false
	}
	return topo.PathExistsIn(p.graph, from, to)
}

// UnconnectedNodes filters candidates down to the ones with no validated path
// from the events satisfied by info.
func (p *Planner) UnconnectedNodes(info types.Info, candidates []events.SalientEvent) []events.SalientEvent {
	out := make([]events.SalientEvent, 0)
	for _, c := range candidates {
		if !p.DoesPathExist(info, c) {
			out = append(out, c)
		}
	}
	return out
}

// ClosestPairOfVertices returns the (source, target) pair with the smallest
// metric distance. Pairs of the same event are skipped. A nil metric uses the
// planner metric.
func (p *Planner) ClosestPairOfVertices(sources, targets []events.SalientEvent, metric DistanceMetric) (events.SalientEvent, events.SalientEvent, bool) {
	if metric == nil {
		metric = p.metric
	}
	var bestSrc, bestDst events.SalientEvent
	best := math.Inf(1)
	for _, s := range sources {
		for _, t := range targets {
			if events.Same(s, t) {
				continue
			}
			if d := metric(s, t); d < best || (bestSrc == nil && !math.IsNaN(d)) {
				best, bestSrc, bestDst = d, s, t
			}
		}
	}
	return bestSrc, bestDst, bestSrc != nil
}

// ClosestSourceTargetPair picks the closest pair among the events reachable
// from the current events and the events the goal is reachable from.
func (p *Planner) ClosestSourceTargetPair(info types.Info, goal events.SalientEvent, metric DistanceMetric) (events.SalientEvent, events.SalientEvent, bool) {
	current := p.CurrentEvents(info)
	sources := make([]events.SalientEvent, 0)
	targets := []events.SalientEvent{goal}
	for _, n := range p.nodes {
		for _, c := range current {
			if p.DoesPathExistBetween(c, n.event) {
				sources = append(sources, n.event)
				break
			}
		}
		if !events.Same(n.event, goal) && p.DoesPathExistBetween(n.event, goal) {
			targets = append(targets, n.event)
		}
	}
	return p.ClosestPairOfVertices(sources, targets, metric)
}

// AddPotentialEdges adds speculative edges from e to every node within the
// edge radius. Pairs that already have an edge, or whose chain was abandoned,
// are skipped. Returns the number of edges added.
func (p *Planner) AddPotentialEdges(e events.SalientEvent) int {
	from, ok := p.byID[e.ID()]
	if !ok {
		return 0
	}
	added := 0
	for _, to := range p.nodes {
		if to.id == from.id || p.graph.HasEdgeFromTo(from.id, to.id) {
			continue
		}
		key := edgeKey{from.id, to.id}
		if _, ok := p.speculative[key]; ok {
			continue
		}
		if p.chains != nil {
			if c, ok := p.chains.Find(from.event, to.event); ok && c.State() == chains.Abandoned {
				continue
			}
		}
		d := p.metric(from.event, to.event)
		if math.IsNaN(d) || d > p.edgeRadius {
			continue
		}
		p.speculative[key] = d
		added++
	}
	return added
}

// DoesPathExistInOptimisticGraph checks reachability in a throwaway graph made
// of the validated edges, the speculative edges and the edges of every
// unfinished chain.
func (p *Planner) DoesPathExistInOptimisticGraph(a, b events.SalientEvent) bool {
	g := simple.NewDirectedGraph()
	ids := make(map[string]graph.Node)
	nodeFor := func(e events.SalientEvent) graph.Node {
		if n, ok := ids[e.ID()]; ok {
			return n
		}
		n := g.NewNode()
		g.AddNode(n)
		ids[e.ID()] = n
		return n
	}
	addEdge := func(from, to events.SalientEvent) {
		if events.Same(from, to) {
			return
		}
		g.SetEdge(g.NewEdge(nodeFor(from), nodeFor(to)))
	}

	for _, e := range p.Edges() {
		addEdge(e.From, e.To)
	}
	for _, e := range p.SpeculativeEdges() {
		addEdge(e.From, e.To)
	}
	if p.chains != nil {
		for _, c := range p.chains.Unfinished() {
			addEdge(c.Init, c.Target)
		}
	}

	from, okFrom := ids[a.ID()]
	to, okTo := ids[b.ID()]
	if !okFrom || !okTo {
		return false
	}
	return topo.PathExistsIn(g, from, to)
}

// ShortestPath returns the events on the shortest validated path from a to b,
// both included. Nil when b is unreachable.
func (p *Planner) ShortestPath(a, b events.SalientEvent) []events.SalientEvent {
	from, okFrom := p.byID[a.ID()]
	to, okTo := p.byID[b.ID()]
	if !okFrom || !okTo {
		return nil
	}
	shortest := path.DijkstraFrom(from, p.graph)
	nodes, _ := shortest.To(to.id)
	if len(nodes) == 0 {
		return nil
	}
	out := make([]events.SalientEvent, len(nodes))
	for i, n := range nodes {
		out[i] = n.(*node).event
	}
	return out
}

// NodeToExpand samples a node, favouring the ones with fewer expansion attempts
func (p *Planner) NodeToExpand(src rand.Source) (events.SalientEvent, bool) {
	if len(p.nodes) == 0 {
		return nil, false
	}
	weights := make([]float64, len(p.nodes))
	for i, n := range p.nodes {
		weights[i] = 1 / float64(1+n.expansionAttempts)
	}
	i, ok := sampleuv.NewWeighted(weights, src).Take()
	if !ok {
		return nil, false
	}
	return p.nodes[i].event, true
}

func (p *Planner) RecordExpansionAttempt(e events.SalientEvent) {
	if n, ok := p.byID[e.ID()]; ok {
		n.expansionAttempts++
	}
}

func (p *Planner) RecordExpansionCompleted(e events.SalientEvent) {
	if n, ok := p.byID[e.ID()]; ok {
		n.expansionsComplete++
	}
}

// ExpansionStats returns the attempted and completed expansions of e
func (p *Planner) ExpansionStats(e events.SalientEvent) (int, int) {
	n, ok := p.byID[e.ID()]
	if !ok {
		return 0, 0
	}
	return n.expansionAttempts, n.expansionsComplete
}
