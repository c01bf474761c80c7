package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/skillgraph/dsg"
	"github.com/zeu5/skillgraph/types"
)

const sample = `
experiment = "grid-rooms"
seed       = 3
episodes   = 120
expansion_freq     = 4
goal_selection     = "closest"
reject_jumping_states  = true
make_off_policy_update = true
max_chain_attempts = 10

region "room_a" {
  min = [0, 0]
  max = [9, 9]
}

region "room_b" {
  min = [10, 0]
  max = [19, 9]
}

event "door" {
  position  = [9, 4]
  tolerance = 1
}

event "corner" {
  position = [19, 9]
}
`

type point []float64

func (p point) Hash() string            { return types.NewInfo(p).String() }
func (p point) Actions() []types.Action { return nil }
func (p point) Features() []float64     { return p }

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample), "sample.hcl")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "grid-rooms", cfg.Experiment)
	assert.Equal(t, 3, cfg.Seed)
	assert.Equal(t, 120, cfg.Episodes)
	assert.Equal(t, 4, cfg.ExpansionFreq)
	assert.Equal(t, "closest", cfg.GoalSelection)
	assert.True(t, cfg.RejectJumpingStates)
	assert.Equal(t, 10, cfg.MaxChainAttempts)

	// untouched attributes keep their defaults
	def := Default()
	assert.Equal(t, def.ExpansionDuration, cfg.ExpansionDuration)
	assert.Equal(t, def.EventTolerance, cfg.EventTolerance)
	assert.Equal(t, def.Layout, cfg.Layout)

	regions := cfg.RegionSet()
	require.Len(t, regions, 2)
	assert.Equal(t, []string{"room_a"}, regions.Satisfied(types.NewInfo([]float64{3, 3})))
	assert.Equal(t, []string{"room_b"}, regions.Satisfied(types.NewInfo([]float64{12, 3})))
}

func TestTrainerAndExtractorConfig(t *testing.T) {
	cfg, err := Parse([]byte(sample), "sample.hcl")
	require.NoError(t, err)

	tc := cfg.TrainerConfig()
	assert.Equal(t, dsg.GoalClosest, tc.GoalSelection)
	assert.Equal(t, 3, tc.Seed)
	assert.True(t, tc.MakeOffPolicyUpdate)
	require.NoError(t, tc.Validate())

	xc := cfg.ExtractorConfig()
	assert.True(t, xc.RejectJumping)
	assert.True(t, xc.GoalConditioned)
	assert.Len(t, xc.Regions, 2)
	assert.Equal(t, cfg.EventTolerance, xc.Tolerance)

	assert.False(t, Default().ExtractorConfig().GoalConditioned)
	assert.Len(t, cfg.ChainOptions(), 2)
}

func TestPredefinedEvents(t *testing.T) {
	cfg, err := Parse([]byte(sample), "sample.hcl")
	require.NoError(t, err)

	evs := cfg.PredefinedEvents(func(p []float64) types.State { return point(p) })
	require.Len(t, evs, 2)
	assert.Equal(t, 1.0, evs[0].Tolerance())
	assert.Equal(t, cfg.EventTolerance, evs[1].Tolerance())
	assert.True(t, evs[0].Matches(types.NewInfo([]float64{8, 5})))
	assert.False(t, evs[0].Matches(types.NewInfo([]float64{7, 4})))
	assert.Equal(t, []float64{19, 9}, evs[1].Target().Features())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "grid-rooms", cfg.Experiment)

	_, err = LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`experiment = `), "broken.hcl")
	assert.Error(t, err)

	_, err = Parse([]byte(`unknown_attribute = 1`), "unknown.hcl")
	assert.Error(t, err)

	_, err = Parse([]byte(`seed = "three"`), "type.hcl")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	cases := map[string]func(*Config){
		"criterion":   func(c *Config) { c.GoalSelection = "nearest" },
		"frequency":   func(c *Config) { c.ExpansionFreq = 0 },
		"edges":       func(c *Config) { c.PotentialEdgeFreq = -1 },
		"tolerance":   func(c *Config) { c.EventTolerance = 0 },
		"rate":        func(c *Config) { c.ChainSuccessRate = 1.5 },
		"window":      func(c *Config) { c.ChainWindow = 0 },
		"horizon":     func(c *Config) { c.Horizon = 0 },
		"region dims": func(c *Config) { c.Regions = []*RegionBlock{{Name: "a", Min: []float64{0}, Max: []float64{1, 1}}} },
		"region box":  func(c *Config) { c.Regions = []*RegionBlock{{Name: "a", Min: []float64{2}, Max: []float64{1}}} },
		"duplicate event": func(c *Config) {
			c.Events = []*EventBlock{{Name: "e", Position: []float64{1}}, {Name: "e", Position: []float64{2}}}
		},
		"empty event": func(c *Config) { c.Events = []*EventBlock{{Name: "e"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.GoalSelection = "nearest"
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrUnknownCriterion)
	assert.ErrorIs(t, err, dsg.ErrUnknownGoalSelection)
}
