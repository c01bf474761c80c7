package grid

import (
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/types"
)

// InPosition is a salient event around the cell (i, j) of grid k
func InPosition(i, j, k int, tol float64) events.SalientEvent {
	p := &Position{I: i, J: j, K: k}
	return events.NewPositionEvent(p, types.NewInfo(p.Features()), tol)
}

// StartEvent is the event around the reset position
func StartEvent(tol float64) events.SalientEvent {
	return InPosition(0, 0, 0, tol)
}
