package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pair-trader/internal/config"
)

func Execute() error {
	var configPath string

	root := &cobra.Command{
		Use:   "pair-trader",
		Short: "Cross-asset pair allocation engine",
		Long: `pair-trader rebalances a two-asset portfolio from the swing structure
of the assets' price ratio. It ingests TradingView exports into a bar
catalog, replays them as a backtest, or trades live against a broker
over RabbitMQ.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(ingestCmd(&configPath))
	root.AddCommand(backtestCmd(&configPath))
	root.AddCommand(liveCmd(&configPath))
	return root.Execute()
}

// loadConfig reads the config file and applies its log level globally.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg, nil
}
