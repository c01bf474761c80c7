package benchmarks

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/zeu5/skillgraph/inspect"
	"github.com/zeu5/skillgraph/store"
)

func InspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect persisted snapshots",
	}
	cmd.AddCommand(InspectServeCommand())
	cmd.AddCommand(InspectShowCommand())
	return cmd
}

func InspectServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the persisted snapshots over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			return inspect.Serve(ctx, addr, inspect.NewRouter(st, nil))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

func InspectShowCommand() *cobra.Command {
	var experiment string
	var seed int
	var summary bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a snapshot, or the stored keys when no experiment is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			var out interface{}
			if experiment == "" {
				keys, err := st.List(ctx)
				if err != nil {
					return err
				}
				out = keys
			} else {
				snap, err := st.Load(ctx, store.Key{Experiment: experiment, Seed: seed})
				if err != nil {
					return fmt.Errorf("load %s/%d: %w", experiment, seed, err)
				}
				out = snap
				if summary {
					out = inspect.Summarize(snap.GoalLog)
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&experiment, "experiment", "", "Experiment name")
	cmd.Flags().IntVar(&seed, "seed", 0, "Seed of the run")
	cmd.Flags().BoolVar(&summary, "goals", false, "Print the per goal success summary only")
	return cmd
}
