// Package events holds the salient events the skill graph is built over:
// the event variants, the regions used to deduplicate candidate events and
// the repository that owns the list of known events.
package events

import (
	"fmt"
	"math"
	"strings"

	"github.com/zeu5/skillgraph/types"
	"gonum.org/v1/gonum/floats"
)

// SalientEvent is a recognisable region of state space used as a graph node
// and as a goal. Two events are the same event when their IDs match.
type SalientEvent interface {
	// ID is the identity key, derived from target position and tolerance
	ID() string
	// Matches reports whether the info is inside the event
	Matches(types.Info) bool
	// Distance from the info position to the event target
	Distance(types.Info) float64
	Target() types.State
	TargetInfo() types.Info
	Tolerance() float64
	String() string
}

// Same compares events by identity
func Same(a, b SalientEvent) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID() == b.ID()
}

// Key builds the identity key of an event at position with tolerance tol
func Key(position []float64, tol float64) string {
	parts := make([]string, len(position))
	for i, p := range position {
		parts[i] = fmt.Sprintf("%g", p)
	}
	return fmt.Sprintf("SalientEvent(pos=(%s), tol=%g)", strings.Join(parts, ", "), tol)
}

// PositionEvent matches infos whose position lies within tolerance of the
// target on every coordinate.
type PositionEvent struct {
	target     types.State
	targetInfo types.Info
	tol        float64
	id         string
}

var _ SalientEvent = &PositionEvent{}

func NewPositionEvent(target types.State, info types.Info, tol float64) *PositionEvent {
	targetInfo := info.Copy()
	return &PositionEvent{
		target:     target,
		targetInfo: targetInfo,
		tol:        tol,
		id:         Key(targetInfo.Position, tol),
	}
}

func (p *PositionEvent) ID() string {
	return p.id
}

func (p *PositionEvent) Matches(info types.Info) bool {
	target := p.targetInfo.Position
	if len(info.Position) != len(target) || len(target) == 0 {
		return false
	}
	for i := range target {
		if math.Abs(info.Position[i]-target[i]) > p.tol {
			return false
		}
	}
	return true
}

func (p *PositionEvent) Distance(info types.Info) float64 {
	target := p.targetInfo.Position
	if len(info.Position) != len(target) {
		return math.Inf(1)
	}
	return floats.Distance(info.Position, target, 2)
}

func (p *PositionEvent) Target() types.State {
	return p.target
}

func (p *PositionEvent) TargetInfo() types.Info {
	return p.targetInfo
}

func (p *PositionEvent) Tolerance() float64 {
	return p.tol
}

func (p *PositionEvent) String() string {
	return p.id
}
