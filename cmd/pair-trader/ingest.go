package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pair-trader/internal/catalog"
	"pair-trader/internal/ingest"
)

func ingestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Load TradingView exports and build the ratio series",
		Long: `Parses every TR_<SYMBOL>_<INTERVAL>.csv export in the data directory
into the bar catalog, then derives the synthetic ratio series for the
configured pair on both intervals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			store, err := catalog.Open(cfg.CatalogPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ing := ingest.NewIngestor(store)
			if err := ing.IngestDir(cfg.DataDir); err != nil {
				return err
			}

			for _, interval := range []string{cfg.IntervalShort, cfg.IntervalLong} {
				if _, err := ing.BuildRatio(cfg.AssetA, cfg.AssetB, cfg.RatioSymbol, interval); err != nil {
					return err
				}
			}

			log.Info().Str("catalog", cfg.CatalogPath).Msg("ingestion finished")
			return nil
		},
	}
}
