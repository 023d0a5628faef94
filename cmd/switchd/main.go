package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tmacey/switchd/internal/app"
	"github.com/tmacey/switchd/internal/config"
	"github.com/tmacey/switchd/internal/engine"
)

var (
	cfgPath      string
	clearHistory bool
)

var rootCmd = &cobra.Command{
	Use:          "switchd",
	Short:        "Schedule-driven controller for Shelly switch devices",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfgPath, clearHistory)
		if err != nil {
			return err
		}
		setupLogging(a.Files())

		ctx, cancel := app.SignalContext()
		defer cancel()
		return a.Run(ctx)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if _, err := engine.BuildRuntime(cfg); err != nil {
			return err
		}
		fmt.Printf("%s: configuration OK\n", cfgPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to the configuration file")
	rootCmd.Flags().BoolVar(&clearHistory, "clear-history", false, "delete the switch change history on startup")
	rootCmd.AddCommand(validateCmd)
}

// setupLogging maps the configured console verbosity onto zerolog levels.
func setupLogging(files config.FilesConfig) {
	level := zerolog.InfoLevel
	switch files.ConsoleVerbosity {
	case "error":
		level = zerolog.ErrorLevel
	case "warning":
		level = zerolog.WarnLevel
	case "summary":
		level = zerolog.InfoLevel
	case "detailed":
		level = zerolog.DebugLevel
	case "debug":
		level = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(level)

	if !files.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    !files.LogColors,
		})
	}
}

func main() {
	// Readable console output until the configuration says otherwise.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Exited with error")
		os.Exit(1)
	}
}
