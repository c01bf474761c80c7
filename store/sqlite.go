package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	experiment  TEXT NOT NULL,
	seed        INTEGER NOT NULL,
	goal_log    TEXT,
	rewards     TEXT,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (experiment, seed)
);

CREATE TABLE IF NOT EXISTS subgoals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment  TEXT NOT NULL,
	seed        INTEGER NOT NULL,
	record      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	uuid        TEXT NOT NULL,
	experiment  TEXT NOT NULL,
	seed        INTEGER NOT NULL,
	event_id    TEXT NOT NULL,
	episode     INTEGER NOT NULL,
	record      TEXT NOT NULL,
	PRIMARY KEY (experiment, seed, uuid)
);
`

// SQLiteStore keeps the snapshots in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

// NewSQLiteStore opens the database at path and runs migrations
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// touch creates the snapshot row if needed and bumps its update time
func touch(ctx context.Context, tx *sql.Tx, key Key) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (experiment, seed, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (experiment, seed) DO UPDATE SET updated_at = excluded.updated_at`,
		key.Experiment, key.Seed, now(),
	)
	return err
}

func (s *SQLiteStore) inTx(ctx context.Context, key Key, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := touch(ctx, tx, key); err != nil {
		return fmt.Errorf("touch %s: %w", key, err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) setColumn(ctx context.Context, key Key, column string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", column, err)
	}
	return s.inTx(ctx, key, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE snapshots SET "+column+" = ? WHERE experiment = ? AND seed = ?",
			string(data), key.Experiment, key.Seed,
		)
		if err != nil {
			return fmt.Errorf("update %s: %w", column, err)
		}
		return nil
	})
}

func (s *SQLiteStore) SaveGoalLog(ctx context.Context, key Key, log GoalLog) error {
	return s.setColumn(ctx, key, "goal_log", log)
}

func (s *SQLiteStore) SaveRewards(ctx context.Context, key Key, rewards RewardHistory) error {
	return s.setColumn(ctx, key, "rewards", rewards)
}

func (s *SQLiteStore) AppendSubgoals(ctx context.Context, key Key, records ...SubgoalRecord) error {
	return s.inTx(ctx, key, func(tx *sql.Tx) error {
		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal subgoal: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO subgoals (experiment, seed, record) VALUES (?, ?, ?)`,
				key.Experiment, key.Seed, string(data),
			); err != nil {
				return fmt.Errorf("insert subgoal: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SaveEvents(ctx context.Context, key Key, records ...EventRecord) error {
	return s.inTx(ctx, key, func(tx *sql.Tx) error {
		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO events (uuid, experiment, seed, event_id, episode, record)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				r.UUID, key.Experiment, key.Seed, r.EventID, r.Episode, string(data),
			); err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Load(ctx context.Context, key Key) (*Snapshot, error) {
	var goalLog, rewards sql.NullString
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT goal_log, rewards, updated_at FROM snapshots WHERE experiment = ? AND seed = ?`,
		key.Experiment, key.Seed,
	).Scan(&goalLog, &rewards, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	snap := newSnapshot(key)
	snap.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if goalLog.Valid {
		if err := json.Unmarshal([]byte(goalLog.String), &snap.GoalLog); err != nil {
			return nil, fmt.Errorf("decode goal log: %w", err)
		}
	}
	if rewards.Valid {
		if err := json.Unmarshal([]byte(rewards.String), &snap.Rewards); err != nil {
			return nil, fmt.Errorf("decode rewards: %w", err)
		}
	}

	subgoals, err := queryRecords[SubgoalRecord](ctx, s.db,
		`SELECT record FROM subgoals WHERE experiment = ? AND seed = ? ORDER BY id`, key)
	if err != nil {
		return nil, err
	}
	snap.Subgoals = subgoals

	evs, err := queryRecords[EventRecord](ctx, s.db,
		`SELECT record FROM events WHERE experiment = ? AND seed = ? ORDER BY episode, event_id`, key)
	if err != nil {
		return nil, err
	}
	snap.Events = evs
	return snap, nil
}

func queryRecords[T any](ctx context.Context, db *sql.DB, query string, key Key) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, key.Experiment, key.Seed)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var r T
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) List(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT experiment, seed FROM snapshots ORDER BY experiment, seed`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	keys := make([]Key, 0)
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Experiment, &k.Seed); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
