package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore keeps the snapshots in redis under <prefix><experiment>/<seed>:<field>
type RedisStore struct {
	client *backend.Client
	prefix string
}

var _ Store = &RedisStore{}

type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	return NewRedisStoreFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "skillgraph:",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) key(key Key, field string) string {
	return s.prefix + key.String() + ":" + field
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// set writes the field and records the key in the index in one pipeline
func (s *RedisStore) set(ctx context.Context, key Key, field string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", field, err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(key, field), data, 0)
	s.touch(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save %s to redis: %w", field, err)
	}
	return nil
}

func (s *RedisStore) touch(ctx context.Context, pipe backend.Pipeliner, key Key) {
	pipe.Set(ctx, s.key(key, "updated_at"), time.Now().UTC().Format(time.RFC3339Nano), 0)
	pipe.SAdd(ctx, s.indexKey(), key.String())
}

func (s *RedisStore) SaveGoalLog(ctx context.Context, key Key, log GoalLog) error {
	return s.set(ctx, key, "goal_log", log)
}

func (s *RedisStore) SaveRewards(ctx context.Context, key Key, rewards RewardHistory) error {
	return s.set(ctx, key, "rewards", rewards)
}

func (s *RedisStore) AppendSubgoals(ctx context.Context, key Key, records ...SubgoalRecord) error {
	pipe := s.client.Pipeline()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal subgoal: %w", err)
		}
		pipe.RPush(ctx, s.key(key, "subgoals"), data)
	}
	s.touch(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append subgoals to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveEvents(ctx context.Context, key Key, records ...EventRecord) error {
	pipe := s.client.Pipeline()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		pipe.HSet(ctx, s.key(key, "events"), r.UUID, data)
	}
	s.touch(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save events to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key Key) (*Snapshot, error) {
	updated, err := s.client.Get(ctx, s.key(key, "updated_at")).Result()
	if err == backend.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	snap := newSnapshot(key)
	snap.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

	if err := s.get(ctx, key, "goal_log", &snap.GoalLog); err != nil {
		return nil, err
	}
	if err := s.get(ctx, key, "rewards", &snap.Rewards); err != nil {
		return nil, err
	}

	subgoals, err := s.client.LRange(ctx, s.key(key, "subgoals"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list subgoals: %w", err)
	}
	for _, raw := range subgoals {
		var r SubgoalRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subgoal: %w", err)
		}
		snap.Subgoals = append(snap.Subgoals, r)
	}

	records, err := s.client.HGetAll(ctx, s.key(key, "events")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	for _, raw := range records {
		var r EventRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		snap.Events = append(snap.Events, r)
	}
	sortEvents(snap.Events)
	return snap, nil
}

func (s *RedisStore) get(ctx context.Context, key Key, field string, v interface{}) error {
	raw, err := s.client.Get(ctx, s.key(key, field)).Result()
	if err == backend.Nil {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to get %s from redis: %w", field, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", field, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Key, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	keys := make([]Key, 0, len(members))
	for _, m := range members {
		k, err := ParseKey(m)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
