package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/zeu5/skillgraph/util"
)

const (
	goalLogFile  = "goal_log.json"
	rewardsFile  = "rewards.json"
	subgoalsFile = "subgoals.jsonl"
	eventsFile   = "events.jsonl"
	metaFile     = "meta.json"
)

type fileMeta struct {
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps every snapshot in its own directory <root>/<experiment>/<seed>
type FileStore struct {
	root string
}

var _ Store = &FileStore{}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (f *FileStore) dir(key Key) string {
	return filepath.Join(f.root, key.Experiment, strconv.Itoa(key.Seed))
}

func (f *FileStore) touch(key Key) error {
	return util.WriteJSON(filepath.Join(f.dir(key), metaFile), fileMeta{UpdatedAt: time.Now().UTC()})
}

func (f *FileStore) SaveGoalLog(_ context.Context, key Key, log GoalLog) error {
	if err := util.WriteJSON(filepath.Join(f.dir(key), goalLogFile), log); err != nil {
		return fmt.Errorf("save goal log: %w", err)
	}
	return f.touch(key)
}

func (f *FileStore) SaveRewards(_ context.Context, key Key, rewards RewardHistory) error {
	if err := util.WriteJSON(filepath.Join(f.dir(key), rewardsFile), rewards); err != nil {
		return fmt.Errorf("save rewards: %w", err)
	}
	return f.touch(key)
}

func (f *FileStore) AppendSubgoals(_ context.Context, key Key, records ...SubgoalRecord) error {
	if err := util.AppendJSONLines(filepath.Join(f.dir(key), subgoalsFile), records...); err != nil {
		return fmt.Errorf("append subgoals: %w", err)
	}
	return f.touch(key)
}

func (f *FileStore) SaveEvents(_ context.Context, key Key, records ...EventRecord) error {
	if err := util.AppendJSONLines(filepath.Join(f.dir(key), eventsFile), records...); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	return f.touch(key)
}

func (f *FileStore) Load(_ context.Context, key Key) (*Snapshot, error) {
	var meta fileMeta
	if err := util.ReadJSON(filepath.Join(f.dir(key), metaFile), &meta); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	snap := newSnapshot(key)
	snap.UpdatedAt = meta.UpdatedAt
	if err := readOptional(filepath.Join(f.dir(key), goalLogFile), &snap.GoalLog); err != nil {
		return nil, err
	}
	if err := readOptional(filepath.Join(f.dir(key), rewardsFile), &snap.Rewards); err != nil {
		return nil, err
	}
	subgoals, err := util.ReadJSONLines[SubgoalRecord](filepath.Join(f.dir(key), subgoalsFile))
	if err != nil {
		return nil, err
	}
	snap.Subgoals = subgoals
	records, err := util.ReadJSONLines[EventRecord](filepath.Join(f.dir(key), eventsFile))
	if err != nil {
		return nil, err
	}
	snap.Events = dedupEvents(records)
	return snap, nil
}

func readOptional(path string, v interface{}) error {
	if err := util.ReadJSON(path, v); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func (f *FileStore) List(_ context.Context) ([]Key, error) {
	experiments, err := os.ReadDir(f.root)
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0)
	for _, exp := range experiments {
		if !exp.IsDir() {
			continue
		}
		seeds, err := os.ReadDir(filepath.Join(f.root, exp.Name()))
		if err != nil {
			return nil, err
		}
		for _, s := range seeds {
			seed, err := strconv.Atoi(s.Name())
			if err != nil || !s.IsDir() {
				continue
			}
			keys = append(keys, Key{Experiment: exp.Name(), Seed: seed})
		}
	}
	sortKeys(keys)
	return keys, nil
}

func (f *FileStore) Close() error {
	return nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Experiment != keys[j].Experiment {
			return keys[i].Experiment < keys[j].Experiment
		}
		return keys[i].Seed < keys[j].Seed
	})
}
