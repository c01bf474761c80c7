package dsg

import (
	"context"
	"fmt"
	"time"

	"github.com/zeu5/skillgraph/ctxlog"
	"github.com/zeu5/skillgraph/explore"
	"github.com/zeu5/skillgraph/store"
)

// persistTelemetry saves the exploration reward history, the candidates of
// the last extraction and the events it accepted.
func (t *Trainer) persistTelemetry(ctx context.Context, episode int, res *explore.Result) error {
	if t.store == nil {
		return nil
	}
	start := time.Now()
	key := t.key()

	if err := t.store.SaveRewards(ctx, key, t.rewards); err != nil {
		return fmt.Errorf("save rewards: %w", err)
	}

	subgoals := make([]store.SubgoalRecord, 0)
	for _, c := range res.Candidates() {
		subgoals = append(subgoals, store.SubgoalRecord{
			Kind:       string(c.Kind),
			Episode:    episode,
			Trajectory: c.Trajectory,
			Index:      c.Index,
			Position:   append([]float64(nil), c.Info.Position...),
			Reward:     c.Reward,
			Intrinsic:  c.Intrinsic,
		})
	}
	if len(subgoals) > 0 {
		if err := t.store.AppendSubgoals(ctx, key, subgoals...); err != nil {
			return fmt.Errorf("save subgoals: %w", err)
		}
	}

	records := make([]store.EventRecord, 0, len(res.Accepted))
	for _, e := range res.Accepted {
		records = append(records, store.NewEventRecord(e, episode))
	}
	if len(records) > 0 {
		if err := t.store.SaveEvents(ctx, key, records...); err != nil {
			return fmt.Errorf("save events: %w", err)
		}
	}
	ctxlog.FromContext(ctx).Debug("saved telemetry", "episode", episode, "subgoals", len(subgoals), "events", len(records), "took", time.Since(start))
	return nil
}
