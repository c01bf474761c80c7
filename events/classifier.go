package events

import (
	"math"

	"github.com/zeu5/skillgraph/types"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Labels of the training examples handed to a ClassifierEvent
const (
	LabelPositive   = 1
	LabelNegative   = 0
	LabelBackground = 2
)

// radiusMargin widens the positive radius past the farthest positive example
const radiusMargin = 1.1

// ClassifierEvent is a salient event whose membership is decided by a
// classifier over observation features. Identity is still the target
// position and tolerance. Infos without features fall back to the
// position tolerance check.
//
// The classifier accepts x when it lies within the positive radius of the
// positive centroid and its nearest training example is a positive one.
type ClassifierEvent struct {
	*PositionEvent

	positives     [][]float64
	negatives     [][]float64
	positiveInfos []types.Info

	centroid []float64
	radius   float64
}

var _ SalientEvent = &ClassifierEvent{}

// NewClassifierEvent builds the event and fits the classifier on the labelled data.
func NewClassifierEvent(target types.State, info types.Info, positiveInfos []types.Info, data [][]float64, labels []int, tol float64) *ClassifierEvent {
	c := &ClassifierEvent{
		PositionEvent: NewPositionEvent(target, info, tol),
		positives:     make([][]float64, 0),
		negatives:     make([][]float64, 0),
		positiveInfos: make([]types.Info, 0, len(positiveInfos)),
	}
	for _, i := range positiveInfos {
		c.positiveInfos = append(c.positiveInfos, i.Copy())
	}
	pos := make([][]float64, 0)
	neg := make([][]float64, 0)
	for i, x := range data {
		if i >= len(labels) {
			break
		}
		if labels[i] == LabelPositive {
			pos = append(pos, x)
		} else {
			neg = append(neg, x)
		}
	}
	c.Refine(pos, neg)
	return c
}

// Refine adds examples and refits the classifier. This is the only
// mutation a salient event allows after creation.
func (c *ClassifierEvent) Refine(positives, negatives [][]float64) {
	for _, p := range positives {
		if len(p) > 0 {
			c.positives = append(c.positives, append([]float64(nil), p...))
		}
	}
	for _, n := range negatives {
		if len(n) > 0 {
			c.negatives = append(c.negatives, append([]float64(nil), n...))
		}
	}
	c.fit()
}

func (c *ClassifierEvent) fit() {
	c.centroid = nil
	c.radius = 0
	if len(c.positives) == 0 {
		return
	}
	dim := len(c.positives[0])
	rows := make([]float64, 0, len(c.positives)*dim)
	n := 0
	for _, p := range c.positives {
		if len(p) != dim {
			continue
		}
		rows = append(rows, p...)
		n++
	}
	m := mat.NewDense(n, dim, rows)
	c.centroid = make([]float64, dim)
	col := make([]float64, n)
	for j := 0; j < dim; j++ {
		mat.Col(col, j, m)
		c.centroid[j] = stat.Mean(col, nil)
	}
	for i := 0; i < n; i++ {
		d := floats.Distance(m.RawRowView(i), c.centroid, 2)
		if d > c.radius {
			c.radius = d
		}
	}
	c.radius = math.Max(c.radius*radiusMargin, c.Tolerance())
}

// Classify runs the classifier over a feature vector
func (c *ClassifierEvent) Classify(x []float64) bool {
	if c.centroid == nil || len(x) != len(c.centroid) {
		return false
	}
	if floats.Distance(x, c.centroid, 2) > c.radius {
		return false
	}
	nearestPos := nearest(x, c.positives)
	nearestNeg := nearest(x, c.negatives)
	return nearestPos <= nearestNeg
}

func nearest(x []float64, examples [][]float64) float64 {
	best := math.Inf(1)
	for _, e := range examples {
		if len(e) != len(x) {
			continue
		}
		if d := floats.Distance(x, e, 2); d < best {
			best = d
		}
	}
	return best
}

func (c *ClassifierEvent) Matches(info types.Info) bool {
	if len(info.Features) > 0 && c.centroid != nil {
		return c.Classify(info.Features)
	}
	return c.PositionEvent.Matches(info)
}

func (c *ClassifierEvent) Positives() [][]float64 {
	return c.positives
}

func (c *ClassifierEvent) Negatives() [][]float64 {
	return c.negatives
}

func (c *ClassifierEvent) PositiveInfos() []types.Info {
	return c.positiveInfos
}
