package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"nexusdex/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "nexusd",
		Short:        "Two-asset constant-product liquidity pool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "configs/config.yaml", "path to configuration file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pool with its HTTP API, stream and metrics",
		RunE:  runServe,
	}
	root.AddCommand(serveCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote SIDE AMOUNT",
		Short: "Price a swap against the persisted or genesis reserves",
		Args:  cobra.ExactArgs(2),
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("max-impact", "0.01", "price impact used to size the largest trade")
	root.AddCommand(quoteCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate STEP...",
		Short: "Replay a sequence of swaps (e.g. A:100 B:25.5) without moving assets",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSimulate,
	}
	root.AddCommand(simulateCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow reserve updates of a running pool",
		RunE:  runWatch,
	}
	watchCmd.Flags().String("url", "http://localhost:8080", "API base URL")
	root.AddCommand(watchCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env and the config file named by --config, then sets up logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional
		log.Debug().Msg("No .env file found, using environment variables")
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}
