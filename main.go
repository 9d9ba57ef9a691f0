package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"voice-dispatcher/config"
	"voice-dispatcher/speech_extraction"
)

var version = "dev"

type rootFlags struct {
	configFile string
	envFile    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Listen for the wake phrase and dispatch spoken commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			return run(cmd.Context(), cfg, logger)
		},
	}

	rootCmd := &cobra.Command{
		Use:           "voice-dispatcher",
		Short:         "Voice-activated command dispatcher",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runCmd.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (default: config.yaml in ~/.voice-dispatcher or .)")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "file with secrets such as NEWSAPI_KEY and OPENAI_API_KEY")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "overrides log.level")

	routeCmd := &cobra.Command{
		Use:   "route <text>",
		Short: "Print the intent a phrase is routed to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}

			router, err := newRouter(cfg, logger)
			if err != nil {
				return err
			}

			for _, text := range args {
				intent := router.Route(text)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%q\n", text, intent.Kind, intent.Payload)
			}

			return nil
		},
	}

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := speech_extraction.ListInputDevices()
			if err != nil {
				return err
			}

			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}

	rootCmd.AddCommand(runCmd, routeCmd, devicesCmd)

	return rootCmd
}

func (f *rootFlags) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(f.configFile, f.envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	return cfg, logger, nil
}

// newLogger writes human readable output on a terminal and JSON otherwise.
func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}

	console := cfg.Format == "console"
	if cfg.Format == "auto" || cfg.Format == "" {
		if fi, err := os.Stderr.Stat(); err == nil {
			console = fi.Mode()&os.ModeCharDevice != 0
		}
	}

	var logger zerolog.Logger
	if console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().Timestamp().Logger(), nil
}
