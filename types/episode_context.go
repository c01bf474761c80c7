package types

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeu5/skillgraph/ctxlog"
)

// Phases of the trainer an episode can belong to
const (
	PhaseExpansion     = "expansion"
	PhaseConsolidation = "consolidation"
)

// EpisodeContext carries the information shared by every call made within an episode
type EpisodeContext struct {
	Context    context.Context
	Episode    int
	Experiment string
	Phase      string
	Logger     *slog.Logger

	// number of environment steps taken in the episode
	Timesteps int

	Report *EpisodeReport
}

func NewEpisodeContext(ctx context.Context, episode int, experiment, phase string) *EpisodeContext {
	logger := ctxlog.FromContext(ctx).With("episode", episode, "phase", phase)
	return &EpisodeContext{
		Context:    ctx,
		Episode:    episode,
		Experiment: experiment,
		Phase:      phase,
		Logger:     logger,
		Report:     NewEpisodeReport(episode, experiment),
	}
}

// Cancelled is true when the surrounding context is done
func (e *EpisodeContext) Cancelled() bool {
	select {
	case <-e.Context.Done():
		return true
	default:
		return false
	}
}

// Tick records an environment step
func (e *EpisodeContext) Tick() {
	e.Timesteps += 1
	e.Report.setEpisodeStep(e.Timesteps)
}

// EPISODE REPORT

// Report of an episode
type EpisodeReport struct {
	EpisodeNumber  int
	ExperimentName string
	episodeStep    int

	nextIndex int       // next available index for an entry
	startTime time.Time // start time to compute timestamp of an entry

	lock *sync.Mutex

	Timeline   []*EpisodeReportEntry // all the entries ordered by index
	TimeValues map[string][]*EpisodeReportEntry
	IntValues  map[string][]*EpisodeReportEntry
	Logs       map[string]string
}

func NewEpisodeReport(episodeNumber int, experimentName string) *EpisodeReport {
	return &EpisodeReport{
		EpisodeNumber:  episodeNumber,
		ExperimentName: experimentName,
		startTime:      time.Now(),
		lock:           &sync.Mutex{},
		Timeline:       make([]*EpisodeReportEntry, 0),
		TimeValues:     make(map[string][]*EpisodeReportEntry),
		IntValues:      make(map[string][]*EpisodeReportEntry),
		Logs:           make(map[string]string),
	}
}

func (e *EpisodeReport) setEpisodeStep(step int) {
	e.episodeStep = step
}

func (e *EpisodeReport) addEntry(value interface{}, entryType, caller string) *EpisodeReportEntry {
	entry := &EpisodeReportEntry{
		Index:       e.nextIndex,
		Timestamp:   time.Since(e.startTime),
		EpisodeStep: e.episodeStep,
		EntryType:   entryType,
		Caller:      caller,
		Value:       value,
	}
	e.nextIndex += 1
	e.Timeline = append(e.Timeline, entry)
	return entry
}

// add a new entry of type int to the report
func (e *EpisodeReport) AddIntEntry(value int, entryType string, caller string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	entry := e.addEntry(value, entryType, caller)
	e.IntValues[entryType] = append(e.IntValues[entryType], entry)
}

// add a new entry of type time.Duration to the report
func (e *EpisodeReport) AddTimeEntry(value time.Duration, entryType string, caller string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	entry := e.addEntry(value, entryType, caller)
	e.TimeValues[entryType] = append(e.TimeValues[entryType], entry)
}

func (e *EpisodeReport) AddLog(value string, key string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.Logs[key] = value
}

// IntTotal sums all the int entries of the given type
func (e *EpisodeReport) IntTotal(entryType string) int {
	e.lock.Lock()
	defer e.lock.Unlock()

	total := 0
	for _, entry := range e.IntValues[entryType] {
		total += entry.Value.(int)
	}
	return total
}

// return a string representation of the report timeline
func (e *EpisodeReport) StringTimeline() string {
	result := fmt.Sprintf("Length: %d\n", len(e.Timeline))
	for _, entry := range e.Timeline {
		result = fmt.Sprintf("%s%s\n", result, entry.String())
	}
	return result
}

// Entry of the Report
type EpisodeReportEntry struct {
	Index     int           // managed by the report
	Timestamp time.Duration // managed by the report

	EpisodeStep int
	EntryType   string
	Caller      string // the method adding the entry
	Value       interface{}
}

func (en *EpisodeReportEntry) String() string {
	switch v := en.Value.(type) {
	case time.Duration:
		return fmt.Sprintf("[ %6d | %5d | %3d ] %20s : %12s (%20s)", en.Index, en.Timestamp.Milliseconds(), en.EpisodeStep, en.EntryType, v.String(), en.Caller)
	case int:
		return fmt.Sprintf("[ %6d | %5d | %3d ] %20s : %5d (%20s)", en.Index, en.Timestamp.Milliseconds(), en.EpisodeStep, en.EntryType, v, en.Caller)
	default:
		return "wrong entry type"
	}
}
