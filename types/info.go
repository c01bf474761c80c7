package types

import (
	"fmt"
	"strings"
)

// Flags carried by the environment info
const (
	FlagFalling    = "falling"
	FlagDead       = "dead"
	FlagJumping    = "jumping"
	FlagNeedsReset = "needs_reset"
)

// Info is the side information returned with every observation.
// Position is the descriptor salient events are defined over.
type Info struct {
	Position []float64
	Flags    map[string]bool
	// Features of the observation, used by classifier based events when present
	Features []float64
}

// NewInfo creates an info at the given position with the given flags set
func NewInfo(position []float64, flags ...string) Info {
	info := Info{
		Position: append([]float64(nil), position...),
		Flags:    make(map[string]bool),
	}
	for _, f := range flags {
		info.Flags[f] = true
	}
	return info
}

// Flag returns the value of the named flag, false when absent
func (i Info) Flag(name string) bool {
	if i.Flags == nil {
		return false
	}
	return i.Flags[name]
}

// Terminal is true for falling or dead infos
func (i Info) Terminal() bool {
	return i.Flag(FlagFalling) || i.Flag(FlagDead)
}

// Copy returns a deep copy of the info
func (i Info) Copy() Info {
	out := Info{
		Position: append([]float64(nil), i.Position...),
		Flags:    make(map[string]bool, len(i.Flags)),
	}
	if i.Features != nil {
		out.Features = append([]float64(nil), i.Features...)
	}
	for k, v := range i.Flags {
		out.Flags[k] = v
	}
	return out
}

func (i Info) String() string {
	parts := make([]string, len(i.Position))
	for j, p := range i.Position {
		parts[j] = fmt.Sprintf("%g", p)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
