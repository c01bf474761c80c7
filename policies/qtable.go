package policies

import (
	"math"

	"golang.org/x/exp/rand"
)

// QTable maps state and action hashes to values
type QTable struct {
	table map[string]map[string]float64
}

func NewQTable() *QTable {
	return &QTable{
		table: make(map[string]map[string]float64),
	}
}

func (q *QTable) Get(state, action string, def float64) float64 {
	if _, ok := q.table[state]; !ok {
		q.table[state] = make(map[string]float64)
	}
	if _, ok := q.table[state][action]; !ok {
		q.table[state][action] = def
	}
	return q.table[state][action]
}

func (q *QTable) Set(state, action string, val float64) {
	if _, ok := q.table[state]; !ok {
		q.table[state] = make(map[string]float64)
	}
	q.table[state][action] = val
}

func (q *QTable) HasState(state string) bool {
	_, ok := q.table[state]
	return ok
}

func (q *QTable) Len() int {
	return len(q.table)
}

// Max returns the best action of the state, def when the state is unknown
func (q *QTable) Max(state string, def float64) (string, float64) {
	if _, ok := q.table[state]; !ok {
		q.table[state] = make(map[string]float64)
		return "", def
	}
	maxAction := ""
	maxVal := math.Inf(-1)
	for a, val := range q.table[state] {
		if val > maxVal {
			maxAction = a
			maxVal = val
		}
	}
	if maxAction == "" {
		return "", def
	}
	return maxAction, maxVal
}

// Value is the best value of the state without adding it to the table
func (q *QTable) Value(state string, def float64) float64 {
	vals, ok := q.table[state]
	if !ok || len(vals) == 0 {
		return def
	}
	maxVal := math.Inf(-1)
	for _, val := range vals {
		maxVal = math.Max(maxVal, val)
	}
	return maxVal
}

// MaxAmong returns the best of the given actions. Ties are broken uniformly
// at random when rnd is not nil, in favour of the first action otherwise.
func (q *QTable) MaxAmong(state string, actions []string, def float64, rnd *rand.Rand) (string, float64) {
	if _, ok := q.table[state]; !ok {
		q.table[state] = make(map[string]float64)
	}
	ties := make([]string, 0, len(actions))
	maxVal := math.Inf(-1)
	for _, a := range actions {
		if _, ok := q.table[state][a]; !ok {
			q.table[state][a] = def
		}
		val := q.table[state][a]
		if val > maxVal {
			ties = ties[:0]
			maxVal = val
		}
		if val == maxVal {
			ties = append(ties, a)
		}
	}
	if len(ties) == 0 {
		return "", def
	}
	if rnd == nil || len(ties) == 1 {
		return ties[0], maxVal
	}
	return ties[rnd.Intn(len(ties))], maxVal
}

func (q *QTable) Clone() *QTable {
	out := NewQTable()
	for s, vals := range q.table {
		out.table[s] = make(map[string]float64, len(vals))
		for a, v := range vals {
			out.table[s][a] = v
		}
	}
	return out
}
