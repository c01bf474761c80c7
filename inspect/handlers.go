// Package inspect serves persisted trainer snapshots and live metrics over HTTP.
package inspect

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zeu5/skillgraph/metrics"
	"github.com/zeu5/skillgraph/store"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ExperimentsResponse struct {
	Experiments []store.Key `json:"experiments"`
}

type EventsResponse struct {
	Key    store.Key           `json:"key"`
	Events []store.EventRecord `json:"events"`
}

// GoalSummary aggregates the attempts to reach one goal
type GoalSummary struct {
	Goal      string  `json:"goal"`
	Attempts  int     `json:"attempts"`
	Successes int     `json:"successes"`
	Rate      float64 `json:"rate"`
}

type GoalsResponse struct {
	Key   store.Key     `json:"key"`
	Goals []GoalSummary `json:"goals"`
}

type Handlers struct {
	store   store.Store
	metrics *metrics.Metrics
}

// NewHandlers serves the snapshots of s. m may be nil, in which case
// /metrics is not registered.
func NewHandlers(s store.Store, m *metrics.Metrics) *Handlers {
	return &Handlers{store: s, metrics: m}
}

// RegisterRoutes registers
//
//	GET /health
//	GET /experiments
//	GET /experiments/:name/:seed
//	GET /experiments/:name/:seed/events
//	GET /experiments/:name/:seed/goals
//	GET /metrics
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/health", h.HandleHealth)
	rg.GET("/experiments", h.HandleExperiments)
	rg.GET("/experiments/:name/:seed", h.HandleSnapshot)
	rg.GET("/experiments/:name/:seed/events", h.HandleEvents)
	rg.GET("/experiments/:name/:seed/goals", h.HandleGoals)
	if h.metrics != nil {
		rg.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) HandleExperiments(c *gin.Context) {
	keys, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ExperimentsResponse{Experiments: keys})
}

// load writes the error response and returns nil when the snapshot cannot be read
func (h *Handlers) load(c *gin.Context) *store.Snapshot {
	seed, err := strconv.Atoi(c.Param("seed"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "seed must be an integer"})
		return nil
	}
	key := store.Key{Experiment: c.Param("name"), Seed: seed}
	snap, err := h.store.Load(c.Request.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no snapshot for " + key.String()})
		return nil
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return nil
	}
	return snap
}

func (h *Handlers) HandleSnapshot(c *gin.Context) {
	if snap := h.load(c); snap != nil {
		c.JSON(http.StatusOK, snap)
	}
}

func (h *Handlers) HandleEvents(c *gin.Context) {
	if snap := h.load(c); snap != nil {
		c.JSON(http.StatusOK, EventsResponse{Key: snap.Key, Events: snap.Events})
	}
}

func (h *Handlers) HandleGoals(c *gin.Context) {
	snap := h.load(c)
	if snap == nil {
		return
	}
	c.JSON(http.StatusOK, GoalsResponse{Key: snap.Key, Goals: Summarize(snap.GoalLog)})
}

// Summarize the goal log, sorted by goal
func Summarize(log store.GoalLog) []GoalSummary {
	out := make([]GoalSummary, 0, len(log))
	for goal, attempts := range log {
		s := GoalSummary{Goal: goal, Attempts: len(attempts)}
		for _, ok := range attempts {
			if ok {
				s.Successes++
			}
		}
		if s.Attempts > 0 {
			s.Rate = float64(s.Successes) / float64(s.Attempts)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Goal < out[j].Goal })
	return out
}
