package benchmarks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/zeu5/skillgraph/chains"
	"github.com/zeu5/skillgraph/config"
	"github.com/zeu5/skillgraph/ctxlog"
	"github.com/zeu5/skillgraph/dsg"
	"github.com/zeu5/skillgraph/events"
	"github.com/zeu5/skillgraph/explore"
	"github.com/zeu5/skillgraph/grid"
	"github.com/zeu5/skillgraph/inspect"
	"github.com/zeu5/skillgraph/metrics"
	"github.com/zeu5/skillgraph/planner"
	"github.com/zeu5/skillgraph/policies"
	"github.com/zeu5/skillgraph/store"
)

// learning parameters of the tabular agents
const (
	alpha    = 0.1
	discount = 0.99
	epsilon  = 0.1
)

// GridTraining runs the trainer on the grid world for cfg.Episodes episodes.
// When metricsAddr is set the inspection server runs alongside.
func GridTraining(ctx context.Context, cfg config.Config, st store.Store, metricsAddr string) error {
	logger := ctxlog.FromContext(ctx).With("experiment", cfg.Experiment, "seed", cfg.Seed)
	ctx = ctxlog.WithLogger(ctx, logger)

	layout, err := grid.ParseLayout(cfg.Layout)
	if err != nil {
		return err
	}
	env := grid.NewGridEnvironment(layout, cfg.Horizon)

	seed := uint64(cfg.Seed)
	explorer := policies.NewNoveltyExplorer(cfg.RolloutLength, alpha, discount, epsilon, seed)
	global := policies.NewGoalPolicy("global", cfg.Horizon, alpha, discount, epsilon, seed+1)
	learner := policies.NewOptionLearner(global, cfg.Horizon, alpha, discount, epsilon, seed+2)

	repo := events.NewRepository()
	for _, e := range cfg.PredefinedEvents(grid.StateFor) {
		repo.Add(e)
	}
	manager := chains.NewManager(learner, cfg.ChainOptions()...)
	p := planner.New(repo, manager, planner.WithEdgeRadius(cfg.EdgeRadius))
	extractor := explore.NewExtractor(repo, explorer, cfg.ExtractorConfig())
	m := metrics.New()

	trainer, err := dsg.NewTrainer(cfg.TrainerConfig(), dsg.Components{
		Env:        env,
		Explorer:   explorer,
		Repository: repo,
		Planner:    p,
		Chains:     manager,
		Extractor:  extractor,
		Init:       grid.StartEvent(cfg.EventTolerance),
	}, dsg.WithStore(st), dsg.WithMetrics(m), dsg.WithValueFunction(global))
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		serveCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := inspect.Serve(serveCtx, metricsAddr, inspect.NewRouter(st, m)); err != nil {
				logger.Error("Inspection server failed.", "error", err)
			}
		}()
	}

	logger.Info("Starting training.", "layout", layout.Name, "episodes", cfg.Episodes, "goal_selection", cfg.GoalSelection)
	err = trainer.RunLoop(ctx, 0, cfg.Episodes)
	logger.Info("Training finished.",
		"events", repo.Len(),
		"chains", manager.Len(),
		"edges", len(p.Edges()),
		"cells_visited", env.VisitedCells(),
		"coverage", env.Coverage(),
	)
	if errors.Is(err, context.Canceled) {
		logger.Warn("Training interrupted.")
		return nil
	}
	return err
}

func TrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a deep skill graph",
	}
	cmd.AddCommand(GridTrainCommand())
	return cmd
}

func GridTrainCommand() *cobra.Command {
	var experiment string
	var seed int
	var episodes int
	var horizon int
	var layout string
	var goalSelection string
	var metricsAddr string
	var cpuprofile string
	var memprofile string

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Train on the grid world",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("experiment") {
				cfg.Experiment = experiment
			}
			if flags.Changed("seed") {
				cfg.Seed = seed
			}
			if flags.Changed("episodes") {
				cfg.Episodes = episodes
			}
			if flags.Changed("horizon") {
				cfg.Horizon = horizon
			}
			if flags.Changed("layout") {
				cfg.Layout = layout
			}
			if flags.Changed("goal-selection") {
				cfg.GoalSelection = goalSelection
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if storeKind == "file" {
				if err := os.MkdirAll(storePath, 0755); err != nil {
					return err
				}
			}
			stopProfiling, err := startProfiling(storePath, cpuprofile, memprofile)
			if err != nil {
				return err
			}

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			err = GridTraining(ctx, cfg, st, metricsAddr)
			if perr := stopProfiling(); err == nil {
				err = perr
			}
			return err
		},
	}
	def := config.Default()
	cmd.Flags().StringVar(&experiment, "experiment", def.Experiment, "Experiment name the snapshots are stored under")
	cmd.Flags().IntVar(&seed, "seed", def.Seed, "Seed of the run")
	cmd.Flags().IntVarP(&episodes, "episodes", "e", def.Episodes, "Number of episodes to run")
	cmd.Flags().IntVar(&horizon, "horizon", def.Horizon, "Horizon of each episode")
	cmd.Flags().StringVar(&layout, "layout", def.Layout, "Grid layout, rooms, pits or ledges")
	cmd.Flags().StringVar(&goalSelection, "goal-selection", def.GoalSelection, "Goal selection criterion, random, random_unconnected or closest")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and the snapshots on this address while training")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "write cpu profile to `file`")
	cmd.Flags().StringVar(&memprofile, "memprofile", "", "write memory profile to `file`")
	return cmd
}
