package dsg

import (
	"errors"
	"fmt"
)

// GoalSelection is the criterion used to pick consolidation goals
type GoalSelection string

const (
	GoalRandom            GoalSelection = "random"
	GoalRandomUnconnected GoalSelection = "random_unconnected"
	GoalClosest           GoalSelection = "closest"
)

var (
	// ErrNoGoal is returned by goal selection when every policy came back empty
	ErrNoGoal = errors.New("no goal salient event available")

	ErrUnknownGoalSelection = errors.New("unknown goal selection criterion")
)

// ParseGoalSelection validates the criterion name
func ParseGoalSelection(s string) (GoalSelection, error) {
	switch g := GoalSelection(s); g {
	case GoalRandom, GoalRandomUnconnected, GoalClosest:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGoalSelection, s)
}

// Config of the trainer
type Config struct {
	Experiment string
	Seed       int

	// Every ExpansionFreq episodes an expansion phase runs ExpansionDuration environment episodes
	ExpansionFreq         int
	ExpansionDuration     int
	DisableGraphExpansion bool

	GoalSelection GoalSelection
	// Goals attempted per consolidation episode. 0 means until the environment terminates.
	ConsolidationBudget int
	// Speculative edges are added every PotentialEdgeFreq episodes
	PotentialEdgeFreq int
	// Options executed per navigation before giving up
	MaxHops int

	MakeOffPolicyUpdate bool
	EnableTelemetry     bool
}

func DefaultConfig() Config {
	return Config{
		Experiment:          "dsg",
		ExpansionFreq:       10,
		ExpansionDuration:   5,
		GoalSelection:       GoalRandom,
		ConsolidationBudget: 50,
		PotentialEdgeFreq:   10,
		MaxHops:             20,
	}
}

func (c Config) Validate() error {
	if _, err := ParseGoalSelection(string(c.GoalSelection)); err != nil {
		return err
	}
	if c.ExpansionFreq <= 0 {
		return fmt.Errorf("expansion frequency must be positive, got %d", c.ExpansionFreq)
	}
	if c.ExpansionDuration <= 0 {
		return fmt.Errorf("expansion duration must be positive, got %d", c.ExpansionDuration)
	}
	if c.PotentialEdgeFreq <= 0 {
		return fmt.Errorf("potential edge frequency must be positive, got %d", c.PotentialEdgeFreq)
	}
	if c.ConsolidationBudget < 0 {
		return fmt.Errorf("consolidation budget must not be negative, got %d", c.ConsolidationBudget)
	}
	return nil
}
