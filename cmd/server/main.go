// candlelens serves candlestick chart analysis over HTTP.
//
// A vision model describes the uploaded chart, then a reasoning model
// matches the description against a fixed pattern taxonomy. Both stages
// are metered and the cost is returned with every analysis.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/candlelens/candlelens/internal/config"
)

var (
	cfg *config.Config

	flagEnvFiles []string
	flagPort     int
)

var rootCmd = &cobra.Command{
	Use:   "candlelens",
	Short: "Candlestick chart pattern analysis server",
	Long:  "Describes uploaded candlestick charts with a hosted vision model and matches them against a pattern taxonomy with a reasoning model.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(flagEnvFiles...); err != nil {
			return err
		}
		cfg = config.Load()
		setupLogging(cfg.LogLevel)
		return nil
	},
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&flagEnvFiles, "env-file", nil, "Env files to load (default .env)")
	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "Listen port (overrides PORT)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("candlelens failed")
		os.Exit(1)
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unknown LOG_LEVEL %q, using info\n", level)
	}
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
