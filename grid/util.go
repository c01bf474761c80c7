package grid

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownLayout = errors.New("unknown grid layout")

// Layout of the grid world
type Layout struct {
	Name   string
	Height int
	Width  int
	Grids  int
	Doors  []Door
	Pits   []Position
	Ledges []Position
	// one shot extrinsic rewards
	Rewards map[Position]float64
}

var layouts = map[string]func() Layout{
	"rooms":  roomsLayout,
	"pits":   pitsLayout,
	"ledges": ledgesLayout,
}

// ParseLayout returns the named layout
func ParseLayout(name string) (Layout, error) {
	l, ok := layouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownLayout, name)
	}
	return l(), nil
}

// Layouts lists the known layout names
func Layouts() []string {
	out := make([]string, 0, len(layouts))
	for name := range layouts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// two 20x20 rooms connected by a door in the far corner of the first
func roomsLayout() Layout {
	return Layout{
		Name:   "rooms",
		Height: 20,
		Width:  20,
		Grids:  2,
		Doors: []Door{
			{From: Position{I: 19, J: 19, K: 0}, To: Position{I: 0, J: 0, K: 1}},
		},
		Rewards: map[Position]float64{
			{I: 15, J: 15, K: 1}: 1,
		},
	}
}

// a row of pits with a gap on the right
func pitsLayout() Layout {
	pits := make([]Position, 0)
	for j := 0; j < 12; j++ {
		pits = append(pits, Position{I: 7, J: j})
	}
	return Layout{
		Name:   "pits",
		Height: 15,
		Width:  15,
		Grids:  1,
		Pits:   pits,
		Rewards: map[Position]float64{
			{I: 14, J: 0}: 1,
		},
	}
}

// a column of ledges that can only be crossed with a jump
func ledgesLayout() Layout {
	ledges := make([]Position, 0)
	for i := 0; i < 15; i++ {
		ledges = append(ledges, Position{I: i, J: 7})
	}
	return Layout{
		Name:   "ledges",
		Height: 15,
		Width:  15,
		Grids:  1,
		Ledges: ledges,
		Rewards: map[Position]float64{
			{I: 10, J: 12}: 1,
		},
	}
}

// VisitedCells is the number of distinct cells visited since creation
func (g *GridEnvironment) VisitedCells() int {
	return len(g.visits)
}

// Coverage is the fraction of cells visited across all grids
func (g *GridEnvironment) Coverage() float64 {
	total := g.Layout.Height * g.Layout.Width * g.Layout.Grids
	if total == 0 {
		return 0
	}
	return float64(len(g.visits)) / float64(total)
}

// Visits returns the number of times the position was visited
func (g *GridEnvironment) Visits(p Position) int {
	return g.visits[p]
}
