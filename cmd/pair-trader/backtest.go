package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pair-trader/internal/backtest"
	"pair-trader/internal/db"
	"pair-trader/internal/report"
)

func backtestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backtest",
		Short: "Replay the catalog through the strategy and write reports",
		Long: `Runs the pair ratio strategy over the catalog's bars between the
configured start and end dates against a simulated venue, then writes
the ledger history, pivot log and daily fill report as CSV.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			var journal *db.Journal
			if cfg.PostgresDSN != "" {
				journal, err = db.NewJournal(cfg.PostgresDSN)
				if err != nil {
					log.Warn().Err(err).Msg("decision journal unavailable, continuing without")
					journal = nil
				} else {
					defer journal.Close()
					journal.StartRun("backtest", cfg.AssetA, cfg.AssetB, map[string]any{
						"swingLeft":      cfg.SwingLeft,
						"swingRight":     cfg.SwingRight,
						"splitRatio":     cfg.SplitRatio,
						"ratioThreshold": cfg.RatioThreshold,
						"start":          cfg.Start,
						"end":            cfg.End,
					})
				}
			}

			res, err := backtest.Run(cfg, journal)
			if err != nil {
				if journal != nil {
					journal.StopRun("failed")
				}
				return err
			}
			if journal != nil {
				journal.StopRun("completed")
			}

			if err := report.Export(cfg.ReportDir, res); err != nil {
				return err
			}

			log.Info().
				Str("reports", cfg.ReportDir).
				Float64("finalEquity", res.FinalEquity).
				Float64("returnPct", res.ReturnPct).
				Msg("backtest reports written")
			return nil
		},
	}
}
