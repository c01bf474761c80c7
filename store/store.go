// Package store persists the trainer snapshots: goal conditioned success
// logs, exploration reward histories, subgoal records and accepted events.
// Snapshots are keyed by experiment name and run seed.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeu5/skillgraph/events"
)

var ErrNotFound = errors.New("snapshot not found")

// namespace of the event record identifiers
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("skillgraph/salient-event"))

// Key of a snapshot
type Key struct {
	Experiment string `json:"experiment"`
	Seed       int    `json:"seed"`
}

func (k Key) String() string {
	return k.Experiment + "/" + strconv.Itoa(k.Seed)
}

// ParseKey reads back a key produced by Key.String
func ParseKey(s string) (Key, error) {
	i := strings.LastIndex(s, "/")
	if i <= 0 {
		return Key{}, fmt.Errorf("invalid snapshot key %q", s)
	}
	seed, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Key{}, fmt.Errorf("invalid snapshot key %q: %w", s, err)
	}
	return Key{Experiment: s[:i], Seed: seed}, nil
}

// GoalLog maps a goal event identifier to the outcomes of the attempts to reach it
type GoalLog map[string][]bool

// RewardHistory holds the per rollout rewards of the exploration agent
type RewardHistory struct {
	Intrinsic [][]float64 `json:"intrinsic"`
	Extrinsic [][]float64 `json:"extrinsic"`
}

// SubgoalRecord is a candidate found by the extractor
type SubgoalRecord struct {
	Kind       string    `json:"kind"`
	Episode    int       `json:"episode"`
	Trajectory int       `json:"trajectory"`
	Index      int       `json:"index"`
	Position   []float64 `json:"position"`
	Reward     float64   `json:"reward"`
	Intrinsic  float64   `json:"intrinsic"`
}

// EventRecord describes an accepted salient event
type EventRecord struct {
	UUID      string          `json:"uuid"`
	EventID   string          `json:"event_id"`
	Episode   int             `json:"episode"`
	Position  []float64       `json:"position"`
	Tolerance float64         `json:"tolerance"`
	Features  []float64       `json:"features"`
	Flags     map[string]bool `json:"flags"`
}

// NewEventRecord describes e. The UUID is derived from the event identity so
// that saving the same event twice is idempotent.
func NewEventRecord(e events.SalientEvent, episode int) EventRecord {
	info := e.TargetInfo()
	var features []float64
	if e.Target() != nil {
		features = e.Target().Features()
	}
	return EventRecord{
		UUID:      uuid.NewSHA1(eventNamespace, []byte(e.ID())).String(),
		EventID:   e.ID(),
		Episode:   episode,
		Position:  append([]float64(nil), info.Position...),
		Tolerance: e.Tolerance(),
		Features:  features,
		Flags:     info.Copy().Flags,
	}
}

// Snapshot is everything stored under a key
type Snapshot struct {
	Key       Key             `json:"key"`
	GoalLog   GoalLog         `json:"goal_log"`
	Rewards   RewardHistory   `json:"rewards"`
	Subgoals  []SubgoalRecord `json:"subgoals"`
	Events    []EventRecord   `json:"events"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newSnapshot(key Key) *Snapshot {
	return &Snapshot{
		Key:      key,
		GoalLog:  make(GoalLog),
		Subgoals: make([]SubgoalRecord, 0),
		Events:   make([]EventRecord, 0),
	}
}

// Store is implemented by the snapshot backends
type Store interface {
	// SaveGoalLog replaces the goal log of the key
	SaveGoalLog(context.Context, Key, GoalLog) error
	// SaveRewards replaces the reward history of the key
	SaveRewards(context.Context, Key, RewardHistory) error
	AppendSubgoals(context.Context, Key, ...SubgoalRecord) error
	// SaveEvents inserts the records, replacing the ones with the same UUID
	SaveEvents(context.Context, Key, ...EventRecord) error
	// Load returns ErrNotFound when nothing was saved under the key
	Load(context.Context, Key) (*Snapshot, error)
	List(context.Context) ([]Key, error)
	Close() error
}

// sortEvents orders records by episode, then event identifier
func sortEvents(records []EventRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Episode != records[j].Episode {
			return records[i].Episode < records[j].Episode
		}
		return records[i].EventID < records[j].EventID
	})
}

// dedupEvents keeps the last record of every UUID
func dedupEvents(records []EventRecord) []EventRecord {
	index := make(map[string]int)
	out := make([]EventRecord, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.UUID]; ok {
			out[i] = r
			continue
		}
		index[r.UUID] = len(out)
		out = append(out, r)
	}
	sortEvents(out)
	return out
}
