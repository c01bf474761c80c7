package events

import (
	"fmt"
	"strings"

	"github.com/zeu5/skillgraph/types"
)

// Region is a labelled axis aligned box over info positions
type Region struct {
	Name string
	Min  []float64
	Max  []float64
}

// Contains is true when every coordinate of the info position is inside the box
func (r Region) Contains(info types.Info) bool {
	if len(info.Position) == 0 || len(r.Min) != len(r.Max) || len(info.Position) < len(r.Min) {
		return false
	}
	for i := range r.Min {
		p := info.Position[i]
		if p < r.Min[i] || p > r.Max[i] {
			return false
		}
	}
	return true
}

// RegionSet is the list of acceptable regions for new events
type RegionSet []Region

// Satisfied returns the names of the regions containing info, in declaration order
func (rs RegionSet) Satisfied(info types.Info) []string {
	out := make([]string, 0)
	for _, r := range rs {
		if r.Contains(info) {
			out = append(out, r.Name)
		}
	}
	return out
}

// InvariantError reports a structural invariant the graph relies on being broken.
// It carries the context needed to diagnose the offending candidate.
type InvariantError struct {
	Invariant string
	Position  []float64
	Regions   []string
	Episode   int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s (position=%v, regions=[%s], episode=%d)",
		e.Invariant, e.Position, strings.Join(e.Regions, ", "), e.Episode)
}

// Occupancy tracks which regions already hold an event
type Occupancy struct {
	regions  RegionSet
	occupied map[string]string
}

func NewOccupancy(regions RegionSet) *Occupancy {
	return &Occupancy{
		regions:  regions,
		occupied: make(map[string]string),
	}
}

// Region returns the single region containing info.
// ok is false when info is in no region. More than one region is an invariant violation.
func (o *Occupancy) Region(info types.Info) (string, bool, error) {
	satisfied := o.regions.Satisfied(info)
	if len(satisfied) > 1 {
		return "", false, &InvariantError{
			Invariant: "a salient event lies in a single region",
			Position:  append([]float64(nil), info.Position...),
			Regions:   satisfied,
		}
	}
	if len(satisfied) == 0 {
		return "", false, nil
	}
	return satisfied[0], true, nil
}

// Occupy marks the region of the event as taken. Events outside every region are ignored.
func (o *Occupancy) Occupy(e SalientEvent) {
	for _, name := range o.regions.Satisfied(e.TargetInfo()) {
		if _, ok := o.occupied[name]; !ok {
			o.occupied[name] = e.ID()
		}
	}
}

// Occupant returns the id of the event holding the region
func (o *Occupancy) Occupant(region string) (string, bool) {
	id, ok := o.occupied[region]
	return id, ok
}

func (o *Occupancy) Empty() bool {
	return len(o.regions) == 0
}
