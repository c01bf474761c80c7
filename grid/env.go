package grid

import (
	"fmt"

	"github.com/zeu5/skillgraph/types"
)

// GridEnvironment is a stack of Height x Width grids connected by doors.
// Pits kill the agent, ledges make it fall, both end the episode. Reward
// cells pay once per episode.
type GridEnvironment struct {
	Layout  Layout
	Horizon int
	CurPos  *Position

	steps     int
	collected map[Position]bool
	visits    map[Position]int
	pits      map[Position]bool
	ledges    map[Position]bool
}

type Door struct {
	From Position
	To   Position
}

var _ types.Environment = &GridEnvironment{}

func NewGridEnvironment(layout Layout, horizon int) *GridEnvironment {
	g := &GridEnvironment{
		Layout:    layout,
		Horizon:   horizon,
		CurPos:    &Position{0, 0, 0},
		collected: make(map[Position]bool),
		visits:    make(map[Position]int),
		pits:      make(map[Position]bool),
		ledges:    make(map[Position]bool),
	}
	for _, p := range layout.Pits {
		g.pits[p] = true
	}
	for _, p := range layout.Ledges {
		g.ledges[p] = true
	}
	return g
}

func (g *GridEnvironment) Reset(_ *types.EpisodeContext) (types.State, types.Info, error) {
	g.CurPos = &Position{0, 0, 0}
	g.steps = 0
	g.collected = make(map[Position]bool)
	g.visits[*g.CurPos] += 1
	return g.CurPos, g.info(), nil
}

func (g *GridEnvironment) Step(a types.Action, ectx *types.EpisodeContext) (types.StepResult, error) {
	movement, ok := a.(*Movement)
	if !ok {
		return types.StepResult{}, fmt.Errorf("grid: unknown action %s", a.Hash())
	}
	g.steps += 1
	ectx.Tick()

	newPos := g.move(movement)
	g.CurPos = newPos
	g.visits[*newPos] += 1

	flags := make([]string, 0)
	if movement == JumpMovement {
		flags = append(flags, types.FlagJumping)
	}
	done := false
	if g.pits[*newPos] {
		flags = append(flags, types.FlagDead)
		done = true
	}
	if g.ledges[*newPos] {
		flags = append(flags, types.FlagFalling)
		done = true
	}
	if g.Horizon > 0 && g.steps >= g.Horizon {
		flags = append(flags, types.FlagNeedsReset)
	}

	reward := 0.0
	if r, ok := g.Layout.Rewards[*newPos]; ok && !g.collected[*newPos] {
		g.collected[*newPos] = true
		reward = r
	}
	return types.StepResult{
		State:  newPos,
		Reward: reward,
		Done:   done,
		Info:   g.info(flags...),
	}, nil
}

func (g *GridEnvironment) move(movement *Movement) *Position {
	height, width := g.Layout.Height, g.Layout.Width
	newPos := &Position{I: g.CurPos.I, J: g.CurPos.J, K: g.CurPos.K}
	switch movement.Direction {
	case "Nothing":
	case "Up":
		newPos.I = min(height-1, g.CurPos.I+1)
	case "Down":
		newPos.I = max(0, g.CurPos.I-1)
	case "Left":
		newPos.J = max(0, g.CurPos.J-1)
	case "Right":
		newPos.J = min(width-1, g.CurPos.J+1)
	case "Jump":
		newPos.J = min(width-1, g.CurPos.J+2)
	case "Next":
		for _, d := range g.Layout.Doors {
			if d.From.Eq(*g.CurPos) {
				to := d.To
				return &to
			}
		}
	}
	return newPos
}

func (g *GridEnvironment) info(flags ...string) types.Info {
	info := types.NewInfo(g.CurPos.Features(), flags...)
	info.Features = g.CurPos.Features()
	return info
}

type Position struct {
	I int
	J int
	K int
}

// grids are placed this far apart on the third axis so that event
// tolerances never span two grids
const gridSpacing = 100

var _ types.State = &Position{}

// StateFor maps an info position back to the grid state
func StateFor(position []float64) types.State {
	p := &Position{}
	if len(position) > 0 {
		p.I = int(position[0])
	}
	if len(position) > 1 {
		p.J = int(position[1])
	}
	if len(position) > 2 {
		p.K = int(position[2]) / gridSpacing
	}
	return p
}

func (p *Position) Hash() string {
	return fmt.Sprintf("(%d, %d, %d)", p.I, p.J, p.K)
}

func (p *Position) Eq(other Position) bool {
	return p.I == other.I && p.J == other.J && p.K == other.K
}

func (p *Position) Features() []float64 {
	return []float64{float64(p.I), float64(p.J), float64(p.K * gridSpacing)}
}

func (p *Position) Actions() []types.Action {
	if p.I == 0 && p.J == 0 {
		return []types.Action{NoMovement, NextGridMovement, MovementUp, MovementRight, JumpMovement}
	} else if p.I == 0 {
		return []types.Action{NoMovement, NextGridMovement, MovementUp, MovementRight, MovementLeft, JumpMovement}
	} else if p.J == 0 {
		return []types.Action{NoMovement, NextGridMovement, MovementUp, MovementRight, MovementDown, JumpMovement}
	}
	return AllMovements
}

type Movement struct {
	Direction string
}

var _ types.Action = &Movement{}

func (m *Movement) Hash() string {
	return m.Direction
}

var (
	MovementUp                      = &Movement{"Up"}
	MovementDown                    = &Movement{"Down"}
	MovementLeft                    = &Movement{"Left"}
	MovementRight                   = &Movement{"Right"}
	NoMovement                      = &Movement{"Nothing"}
	NextGridMovement                = &Movement{"Next"}
	JumpMovement                    = &Movement{"Jump"}
	AllMovements     []types.Action = []types.Action{
		MovementUp,
		MovementDown,
		MovementLeft,
		MovementRight,
		NoMovement,
		NextGridMovement,
		JumpMovement,
	}
)
