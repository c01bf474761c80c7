// Package explore turns exploration rollouts into new salient events.
package explore

import (
	"errors"
	"fmt"
	"math"

	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/types"
	"gonum.org/v1/gonum/floats"
)

// Reasons a candidate state is rejected
const (
	RejectTerminal       = "terminal"
	RejectInsideEvent    = "inside_event"
	RejectTooClose       = "too_close"
	RejectJumping        = "jumping"
	RejectOutsideRegions = "outside_regions"
	RejectRegionOccupied = "region_occupied"
)

// Config of the extractor
type Config struct {
	// Candidates closer than this to an existing event are rejected
	MinEventDistance float64
	RejectJumping    bool
	// Acceptable regions. Empty disables region filtering.
	Regions events.RegionSet
	// Tolerance of the created events
	Tolerance float64
	// Frames on each side of the candidate used as positive examples
	PositiveWindow int
	// Number of following trajectories used as background examples
	BackgroundTrajectories int
	// Trajectories with at most this many transitions are ignored
	MinTransitions int
	// Create classifier events instead of position events
	Classifier bool
	// Discovered events are returned but not added to the repository
	GoalConditioned bool
}

func DefaultConfig() Config {
	return Config{
		MinEventDistance:       5,
		Tolerance:              2,
		PositiveWindow:         6,
		BackgroundTrajectories: 3,
		MinTransitions:         3,
		Classifier:             true,
	}
}

// RewardModel scores states by novelty
type RewardModel interface {
	RewardFunction([]types.State) []float64
}

type Kind string

const (
	KindIntrinsic Kind = "intrinsic"
	KindExtrinsic Kind = "extrinsic"
)

// Candidate subgoal found in a rollout
type Candidate struct {
	Kind       Kind
	Trajectory int
	// index of the transition whose next state is the candidate
	Index     int
	State     types.State
	Info      types.Info
	Reward    float64
	Intrinsic float64
}

// Result of an extraction
type Result struct {
	Intrinsic []Candidate
	Extrinsic []Candidate
	Accepted  []events.SalientEvent
	// trajectory each accepted event was converted from, aligned with Accepted
	Sources  []int
	Rejected map[string]int
}

func newResult() *Result {
	return &Result{
		Intrinsic: make([]Candidate, 0),
		Extrinsic: make([]Candidate, 0),
		Accepted:  make([]events.SalientEvent, 0),
		Sources:   make([]int, 0),
		Rejected:  make(map[string]int),
	}
}

// Candidates in conversion order, extrinsic first
func (r *Result) Candidates() []Candidate {
	out := append([]Candidate(nil), r.Extrinsic...)
	return append(out, r.Intrinsic...)
}

// TrajectoryIndexes returns the trajectories holding a candidate, without repetition
func (r *Result) TrajectoryIndexes() []int {
	seen := make(map[int]bool)
	out := make([]int, 0)
	for _, c := range append(append([]Candidate(nil), r.Intrinsic...), r.Extrinsic...) {
		if !seen[c.Trajectory] {
			seen[c.Trajectory] = true
			out = append(out, c.Trajectory)
		}
	}
	return out
}

// AcceptedTrajectoryIndexes returns the trajectories an accepted event was
// converted from, without repetition
func (r *Result) AcceptedTrajectoryIndexes() []int {
	seen := make(map[int]bool)
	out := make([]int, 0)
	for _, i := range r.Sources {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

// Extractor filters and scores exploration rollouts and converts the
// surviving candidates into salient events.
type Extractor struct {
	cfg   Config
	repo  *events.Repository
	model RewardModel
}

// NewExtractor creates an extractor. With a nil model the intrinsic rewards
// recorded in the rollouts are used.
func NewExtractor(repo *events.Repository, model RewardModel, cfg Config) *Extractor {
	return &Extractor{
		cfg:   cfg,
		repo:  repo,
		model: model,
	}
}

func (x *Extractor) Config() Config {
	return x.cfg
}

// Extract runs filtering, scoring and conversion over a batch of rollouts.
// An empty batch, or one where every state is filtered, yields an empty result.
// A candidate found in more than one region fails with an *events.InvariantError.
func (x *Extractor) Extract(ectx *types.EpisodeContext, rollouts []*types.Rollout) (*Result, error) {
	res := newResult()
	occupancy := x.occupancy()

	bestScore := math.Inf(-1)
	var best *Candidate
	for i, r := range rollouts {
		if r.Len() <= x.cfg.MinTransitions {
			continue
		}
		accepted, err := x.filter(r.Trajectory, occupancy, res.Rejected)
		if err != nil {
			return res, x.annotate(ectx, err)
		}
		if len(accepted) == 0 {
			continue
		}
		scores, err := x.score(r, accepted)
		if err != nil {
			return res, err
		}
		k := floats.MaxIdx(scores)
		if scores[k] > bestScore {
			bestScore = scores[k]
			best = x.candidate(KindIntrinsic, i, accepted[k], r, scores[k])
		}
		for n, j := range accepted {
			tr, _ := r.Trajectory.Get(j)
			if tr.Reward > 0 {
				res.Extrinsic = append(res.Extrinsic, *x.candidate(KindExtrinsic, i, j, r, scores[n]))
			}
		}
	}
	if best != nil {
		res.Intrinsic = append(res.Intrinsic, *best)
	}

	for _, c := range res.Candidates() {
		reason, err := x.recheck(c.Info, res.Accepted, occupancy)
		if err != nil {
			return res, x.annotate(ectx, err)
		}
		if reason != "" {
			res.Rejected[reason]++
			ectx.Logger.Debug("rejected candidate", "kind", c.Kind, "info", c.Info.String(), "reason", reason)
			continue
		}
		e := x.convert(c, rollouts)
		occupancy.Occupy(e)
		res.Accepted = append(res.Accepted, e)
		res.Sources = append(res.Sources, c.Trajectory)
		if !x.cfg.GoalConditioned {
			x.repo.Add(e)
		}
		ectx.Logger.Info("accepted salient event", "event", e.ID(), "kind", c.Kind, "trajectory", c.Trajectory)
	}
	return res, nil
}

func (x *Extractor) annotate(ectx *types.EpisodeContext, err error) error {
	var ie *events.InvariantError
	if errors.As(err, &ie) {
		ie.Episode = ectx.Episode
	}
	return err
}

func (x *Extractor) occupancy() *events.Occupancy {
	o := events.NewOccupancy(x.cfg.Regions)
	for _, e := range x.repo.All() {
		o.Occupy(e)
	}
	return o
}

// filter returns the indexes of the transitions whose next state may become an event
func (x *Extractor) filter(traj *types.Trajectory, occupancy *events.Occupancy, rejected map[string]int) ([]int, error) {
	existing := x.repo.All()
	accepted := make([]int, 0)
	for i := 0; i < traj.Len(); i++ {
		tr, _ := traj.Get(i)
		reason, err := x.reject(tr.Info, existing, occupancy)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			rejected[reason]++
			continue
		}
		accepted = append(accepted, i)
	}
	return accepted, nil
}

func (x *Extractor) reject(info types.Info, existing []events.SalientEvent, occupancy *events.Occupancy) (string, error) {
	if info.Terminal() {
		return RejectTerminal, nil
	}
	for _, e := range existing {
		if e.Matches(info) {
			return RejectInsideEvent, nil
		}
	}
	for _, e := range existing {
		if e.Distance(info) < x.cfg.MinEventDistance {
			return RejectTooClose, nil
		}
	}
	if x.cfg.RejectJumping && info.Flag(types.FlagJumping) {
		return RejectJumping, nil
	}
	return x.rejectRegion(info, occupancy)
}

func (x *Extractor) rejectRegion(info types.Info, occupancy *events.Occupancy) (string, error) {
	if occupancy.Empty() {
		return "", nil
	}
	region, ok, err := occupancy.Region(info)
	if err != nil {
		return "", err
	}
	if !ok {
		return RejectOutsideRegions, nil
	}
	if _, taken := occupancy.Occupant(region); taken {
		return RejectRegionOccupied, nil
	}
	return "", nil
}

// recheck runs the proximity and region checks again against the events
// accepted earlier in the same batch, so the first discovered candidate wins.
func (x *Extractor) recheck(info types.Info, accepted []events.SalientEvent, occupancy *events.Occupancy) (string, error) {
	for _, e := range accepted {
		if e.Matches(info) {
			return RejectInsideEvent, nil
		}
		if e.Distance(info) < x.cfg.MinEventDistance {
			return RejectTooClose, nil
		}
	}
	return x.rejectRegion(info, occupancy)
}

func (x *Extractor) score(r *types.Rollout, accepted []int) ([]float64, error) {
	if x.model == nil {
		scores := make([]float64, len(accepted))
		for n, j := range accepted {
			if j < len(r.Intrinsic) {
				scores[n] = r.Intrinsic[j]
			}
		}
		return scores, nil
	}
	states := make([]types.State, len(accepted))
	for n, j := range accepted {
		tr, _ := r.Trajectory.Get(j)
		states[n] = tr.NextState
	}
	scores := x.model.RewardFunction(states)
	if len(scores) != len(states) {
		return nil, fmt.Errorf("reward model returned %d scores for %d states", len(scores), len(states))
	}
	return scores, nil
}

func (x *Extractor) candidate(kind Kind, traj, index int, r *types.Rollout, intrinsic float64) *Candidate {
	tr, _ := r.Trajectory.Get(index)
	return &Candidate{
		Kind:       kind,
		Trajectory: traj,
		Index:      index,
		State:      tr.NextState,
		Info:       tr.Info.Copy(),
		Reward:     tr.Reward,
		Intrinsic:  intrinsic,
	}
}

// convert builds the event for an accepted candidate. The frames within the
// positive window are positives, the rest of the trajectory negatives and the
// following trajectories background.
func (x *Extractor) convert(c Candidate, rollouts []*types.Rollout) events.SalientEvent {
	if !x.cfg.Classifier {
		return events.NewPositionEvent(c.State, c.Info, x.cfg.Tolerance)
	}
	traj := rollouts[c.Trajectory].Trajectory
	start := max(0, c.Index-x.cfg.PositiveWindow)
	end := min(traj.Len()-1, c.Index+x.cfg.PositiveWindow)

	data := make([][]float64, 0)
	labels := make([]int, 0)
	positiveInfos := make([]types.Info, 0)
	for i, tr := range traj.Transitions() {
		data = append(data, tr.NextState.Features())
		if i >= start && i <= end {
			labels = append(labels, events.LabelPositive)
			positiveInfos = append(positiveInfos, tr.Info)
		} else {
			labels = append(labels, events.LabelNegative)
		}
	}
	last := min(len(rollouts), c.Trajectory+1+x.cfg.BackgroundTrajectories)
	for _, r := range rollouts[c.Trajectory+1 : last] {
		if r.Len() == 0 {
			continue
		}
		for _, s := range r.Trajectory.NextStates() {
			data = append(data, s.Features())
			labels = append(labels, events.LabelBackground)
		}
	}
	return events.NewClassifierEvent(c.State, c.Info, positiveInfos, data, labels, x.cfg.Tolerance)
}

// Truncate returns the prefix of the trajectory up to the first transition
// reaching one of the events, with rewards and terminal flags cleared.
// The whole trajectory is returned when no event is reached.
func Truncate(traj *types.Trajectory, reached []events.SalientEvent) *types.Trajectory {
	out := types.NewTrajectory()
	for _, tr := range traj.Transitions() {
		tr.Reward = 0
		tr.Done = false
		tr.Reset = false
		out.Append(tr)
		for _, e := range reached {
			if e.Matches(tr.Info) {
				return out
			}
		}
	}
	return out
}
