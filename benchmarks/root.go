package benchmarks

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/zeu5/skillgraph/config"
	"github.com/zeu5/skillgraph/ctxlog"
)

var (
	logFormat   string
	logLevel    string
	configFile  string
	storeKind   string
	storePath   string
	redisAddr   string
	redisPrefix string
)

func GetRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "skillgraph",
		Short:         "Deep skill graph training and inspection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger := newLogger(logLevel, logFormat, cmd.ErrOrStderr())
			cmd.SetContext(ctxlog.WithLogger(ctx, logger))
			return nil
		},
	}
	rootCommand.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format, text or json")
	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level, debug, info, warn or error")
	rootCommand.PersistentFlags().StringVarP(&configFile, "config", "c", "", "HCL configuration file")
	rootCommand.PersistentFlags().StringVar(&storeKind, "store", "file", "Snapshot store, file, redis or sqlite")
	rootCommand.PersistentFlags().StringVarP(&storePath, "save", "s", "results", "Directory of the file store or path of the sqlite database")
	rootCommand.PersistentFlags().StringVar(&redisAddr, "redis-addr", "127.0.0.1:6379", "Address of the redis store")
	rootCommand.PersistentFlags().StringVar(&redisPrefix, "redis-prefix", "skillgraph:", "Key prefix of the redis store")
	// adding the subcommands here
	rootCommand.AddCommand(TrainCommand())
	rootCommand.AddCommand(InspectCommand())
	return rootCommand
}

// newLogger creates the logger used by every command
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}

// loadConfig reads the configuration file when given, defaults otherwise
func loadConfig(ctx context.Context) (config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.LoadFile(ctx, configFile)
}
