// Package config loads the trainer configuration from HCL files.
package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/ctxlog"
	"github.com/zeu5/skillgraph/dsg"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/explore"
	"github.com/zeu5/skillgraph/types"
)

// ErrUnknownCriterion is returned by Validate for unknown goal selection criteria
var ErrUnknownCriterion = errors.New("unknown criterion")

// RegionBlock is a `region "name" { min = [...], max = [...] }` block
type RegionBlock struct {
	Name string    `hcl:"name,label"`
	Min  []float64 `hcl:"min"`
	Max  []float64 `hcl:"max"`
}

// EventBlock is an `event "name" { position = [...] }` block.
// A zero tolerance means the configured event tolerance.
type EventBlock struct {
	Name      string    `hcl:"name,label"`
	Position  []float64 `hcl:"position"`
	Tolerance float64   `hcl:"tolerance,optional"`
}

// Config of a training run. Every attribute is optional in the file.
type Config struct {
	Experiment string `hcl:"experiment,optional"`
	Seed       int    `hcl:"seed,optional"`
	Episodes   int    `hcl:"episodes,optional"`

	ExpansionFreq         int    `hcl:"expansion_freq,optional"`
	ExpansionDuration     int    `hcl:"expansion_duration,optional"`
	DisableGraphExpansion bool   `hcl:"disable_graph_expansion,optional"`
	GoalSelection         string `hcl:"goal_selection,optional"`
	ConsolidationBudget   int    `hcl:"consolidation_budget,optional"`
	PotentialEdgeFreq     int    `hcl:"potential_edge_freq,optional"`
	MaxHops               int    `hcl:"max_hops,optional"`
	MakeOffPolicyUpdate   bool   `hcl:"make_off_policy_update,optional"`
	EnableTelemetry       bool   `hcl:"enable_telemetry,optional"`

	RejectJumpingStates bool    `hcl:"reject_jumping_states,optional"`
	MinEventDistance    float64 `hcl:"min_event_distance,optional"`
	EventTolerance      float64 `hcl:"event_tolerance,optional"`
	ClassifierEvents    bool    `hcl:"classifier_events,optional"`

	MaxChainAttempts int     `hcl:"max_chain_attempts,optional"`
	ChainWindow      int     `hcl:"chain_window,optional"`
	ChainSuccessRate float64 `hcl:"chain_success_rate,optional"`
	EdgeRadius       float64 `hcl:"edge_radius,optional"`

	Layout        string `hcl:"layout,optional"`
	Horizon       int    `hcl:"horizon,optional"`
	RolloutLength int    `hcl:"rollout_length,optional"`

	Regions []*RegionBlock `hcl:"region,block"`
	Events  []*EventBlock  `hcl:"event,block"`
}

func Default() Config {
	return Config{
		Experiment:          "dsg",
		Episodes:            500,
		ExpansionFreq:       10,
		ExpansionDuration:   5,
		GoalSelection:       string(dsg.GoalRandom),
		ConsolidationBudget: 50,
		PotentialEdgeFreq:   10,
		MaxHops:             20,
		MinEventDistance:    5,
		EventTolerance:      2,
		ClassifierEvents:    true,
		MaxChainAttempts:    100,
		ChainWindow:         5,
		ChainSuccessRate:    0.8,
		EdgeRadius:          10,
		Layout:              "rooms",
		Horizon:             200,
		RolloutLength:       50,
	}
}

// LoadFile reads the HCL file at path on top of the defaults
func LoadFile(ctx context.Context, path string) (Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding config file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse HCL file %s: %s", path, diags.Error())
	}
	cfg, err := decode(file, path)
	if err != nil {
		return Config{}, err
	}
	logger.Debug("Decoded config file.", "path", path, "regions", len(cfg.Regions), "events", len(cfg.Events))
	return cfg, nil
}

// Parse decodes HCL source on top of the defaults. filename is used in diagnostics.
func Parse(src []byte, filename string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse HCL file %s: %s", filename, diags.Error())
	}
	return decode(file, filename)
}

func decode(file *hcl.File, filename string) (Config, error) {
	cfg := Default()
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode HCL file %s: %s", filename, diags.Error())
	}
	return cfg, nil
}

// Validate checks the criteria names, the frequencies and the blocks
func (c Config) Validate() error {
	if _, err := dsg.ParseGoalSelection(c.GoalSelection); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownCriterion, err)
	}
	if err := c.TrainerConfig().Validate(); err != nil {
		return err
	}
	if c.Episodes < 0 {
		return fmt.Errorf("episodes must not be negative, got %d", c.Episodes)
	}
	if c.EventTolerance <= 0 {
		return fmt.Errorf("event tolerance must be positive, got %g", c.EventTolerance)
	}
	if c.ChainWindow <= 0 {
		return fmt.Errorf("chain window must be positive, got %d", c.ChainWindow)
	}
	if c.ChainSuccessRate <= 0 || c.ChainSuccessRate > 1 {
		return fmt.Errorf("chain success rate must be in (0, 1], got %g", c.ChainSuccessRate)
	}
	if c.MaxChainAttempts < 0 {
		return fmt.Errorf("max chain attempts must not be negative, got %d", c.MaxChainAttempts)
	}
	if c.Horizon <= 0 || c.RolloutLength <= 0 {
		return fmt.Errorf("horizon and rollout length must be positive, got %d and %d", c.Horizon, c.RolloutLength)
	}

	names := make(map[string]bool)
	for _, r := range c.Regions {
		if names["region."+r.Name] {
			return fmt.Errorf("duplicate region %q", r.Name)
		}
		names["region."+r.Name] = true
		if len(r.Min) == 0 || len(r.Min) != len(r.Max) {
			return fmt.Errorf("region %q: min and max must have the same non zero dimension", r.Name)
		}
		for i := range r.Min {
			if r.Min[i] > r.Max[i] {
				return fmt.Errorf("region %q: min above max on axis %d", r.Name, i)
			}
		}
	}
	for _, e := range c.Events {
		if names["event."+e.Name] {
			return fmt.Errorf("duplicate event %q", e.Name)
		}
		names["event."+e.Name] = true
		if len(e.Position) == 0 {
			return fmt.Errorf("event %q: empty position", e.Name)
		}
		if e.Tolerance < 0 {
			return fmt.Errorf("event %q: negative tolerance", e.Name)
		}
	}
	return nil
}

// Regions in declaration order
func (c Config) RegionSet() events.RegionSet {
	out := make(events.RegionSet, 0, len(c.Regions))
	for _, r := range c.Regions {
		out = append(out, events.Region{
			Name: r.Name,
			Min:  append([]float64(nil), r.Min...),
			Max:  append([]float64(nil), r.Max...),
		})
	}
	return out
}

func (c Config) TrainerConfig() dsg.Config {
	return dsg.Config{
		Experiment:            c.Experiment,
		Seed:                  c.Seed,
		ExpansionFreq:         c.ExpansionFreq,
		ExpansionDuration:     c.ExpansionDuration,
		DisableGraphExpansion: c.DisableGraphExpansion,
		GoalSelection:         dsg.GoalSelection(c.GoalSelection),
		ConsolidationBudget:   c.ConsolidationBudget,
		PotentialEdgeFreq:     c.PotentialEdgeFreq,
		MaxHops:               c.MaxHops,
		MakeOffPolicyUpdate:   c.MakeOffPolicyUpdate,
		EnableTelemetry:       c.EnableTelemetry,
	}
}

// ExtractorConfig switches to goal conditioned extraction when events are predefined
func (c Config) ExtractorConfig() explore.Config {
	cfg := explore.DefaultConfig()
	cfg.MinEventDistance = c.MinEventDistance
	cfg.RejectJumping = c.RejectJumpingStates
	cfg.Regions = c.RegionSet()
	cfg.Tolerance = c.EventTolerance
	cfg.Classifier = c.ClassifierEvents
	cfg.GoalConditioned = len(c.Events) > 0
	return cfg
}

func (c Config) ChainOptions() []chains.ManagerOption {
	return []chains.ManagerOption{
		chains.WithMaxAttempts(c.MaxChainAttempts),
		chains.WithCriterion(chains.SuccessRate{Window: c.ChainWindow, MinRate: c.ChainSuccessRate}),
	}
}

// PredefinedEvents builds a position event per event block. stateFor maps a
// position to the environment state used as the event target.
func (c Config) PredefinedEvents(stateFor func([]float64) types.State) []events.SalientEvent {
	out := make([]events.SalientEvent, 0, len(c.Events))
	for _, e := range c.Events {
		tol := e.Tolerance
		if tol == 0 {
			tol = c.EventTolerance
		}
		out = append(out, events.NewPositionEvent(stateFor(e.Position), types.NewInfo(e.Position), tol))
	}
	return out
}
