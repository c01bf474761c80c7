// Package metrics holds the prometheus collectors of the trainer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeu5/skillgraph/chains"
)

const namespace = "skillgraph"

// Metrics registered on their own registry so that several trainers can
// live in the same process (and in tests).
type Metrics struct {
	Registry *prometheus.Registry

	Episodes            *prometheus.CounterVec
	EpisodeDuration     *prometheus.HistogramVec
	SalientEvents       prometheus.Gauge
	AcceptedEvents      *prometheus.CounterVec
	RejectedSubgoals    *prometheus.CounterVec
	Chains              *prometheus.GaugeVec
	GoalAttempts        *prometheus.CounterVec
	NoGoal              prometheus.Counter
	StalledEpisodes     prometheus.Counter
	InvariantViolations prometheus.Counter
	PotentialEdges      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Episodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "episodes_total",
				Help:      "Environment episodes run, by trainer phase",
			},
			[]string{"phase"},
		),
		EpisodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "episode_duration_seconds",
				Help:      "Wall time of a trainer episode, by phase",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"phase"},
		),
		SalientEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "salient_events",
			Help:      "Number of known salient events",
		}),
		AcceptedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "accepted_events_total",
				Help:      "Salient events accepted by the extractor, by candidate kind",
			},
			[]string{"kind"},
		),
		RejectedSubgoals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_subgoals_total",
				Help:      "Candidate states rejected by the extractor, by reason",
			},
			[]string{"reason"},
		),
		Chains: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chains",
				Help:      "Skill chains, by state",
			},
			[]string{"state"},
		),
		GoalAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "goal_attempts_total",
				Help:      "Navigation attempts towards a salient event, by outcome",
			},
			[]string{"outcome"},
		),
		NoGoal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_goal_total",
			Help:      "Consolidation episodes ended early because no goal could be selected",
		}),
		StalledEpisodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stalled_episodes_total",
			Help:      "Consolidation episodes ended early because navigation took no environment step",
		}),
		InvariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Units of work aborted by a graph invariant violation",
		}),
		PotentialEdges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "potential_edges_total",
			Help:      "Speculative edges added to the plan graph",
		}),
	}
	m.Registry.MustRegister(
		m.Episodes,
		m.EpisodeDuration,
		m.SalientEvents,
		m.AcceptedEvents,
		m.RejectedSubgoals,
		m.Chains,
		m.GoalAttempts,
		m.NoGoal,
		m.StalledEpisodes,
		m.InvariantViolations,
		m.PotentialEdges,
	)
	return m
}

// ObserveEpisode counts an episode of the phase and its duration
func (m *Metrics) ObserveEpisode(phase string, d time.Duration) {
	m.Episodes.WithLabelValues(phase).Inc()
	m.EpisodeDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveGoal counts a navigation attempt
func (m *Metrics) ObserveGoal(reached bool) {
	outcome := "failed"
	if reached {
		outcome = "reached"
	}
	m.GoalAttempts.WithLabelValues(outcome).Inc()
}

// ObserveChains sets the chain gauges from the per state counts
func (m *Metrics) ObserveChains(counts map[chains.State]int) {
	for _, s := range []chains.State{chains.Created, chains.Training, chains.Completed, chains.Abandoned} {
		m.Chains.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// ObserveRejections adds the extractor rejection counts
func (m *Metrics) ObserveRejections(rejected map[string]int) {
	for reason, n := range rejected {
		m.RejectedSubgoals.WithLabelValues(reason).Add(float64(n))
	}
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
