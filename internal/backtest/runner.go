package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"pair-trader/internal/catalog"
	"pair-trader/internal/config"
	"pair-trader/internal/db"
	"pair-trader/internal/execution"
	"pair-trader/internal/indicator"
	"pair-trader/internal/ledger"
	"pair-trader/internal/market"
	"pair-trader/internal/portfolio"
	"pair-trader/internal/strategy"
	"pair-trader/internal/venue"
)

// Result carries everything the report exporter needs from one replay.
type Result struct {
	Bars         int
	StartingCash float64
	FinalEquity  float64
	ReturnPct    float64

	Account    portfolio.Snapshot
	Ledger     []ledger.Row
	DailyFills []execution.DailyFillRecord

	ShortHighs []indicator.PivotEvent
	ShortLows  []indicator.PivotEvent
	LongHighs  []indicator.PivotEvent
	LongLows   []indicator.PivotEvent
}

// Run opens the configured catalog and replays the backtest window.
// journal may be nil for offline runs.
func Run(cfg config.Config, journal *db.Journal) (*Result, error) {
	store, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()
	return RunWithStore(cfg, store, journal)
}

// RunWithStore replays all six configured series through a simulated venue.
// Bars feed the venue first so resting orders and marks settle before the
// strategy sees the bar, matching the live delivery order.
func RunWithStore(cfg config.Config, store *catalog.Store, journal *db.Journal) (*Result, error) {
	bars, err := loadBars(cfg, store)
	if err != nil {
		return nil, err
	}

	account := portfolio.NewAccount(cfg.StartingCash)
	sim := venue.NewSim(account, []string{cfg.AssetA, cfg.AssetB})
	seq := execution.NewSequencer(sim, account, journal)
	sim.SetHandler(seq)

	strat, err := strategy.NewPairRatio(strategy.Config{
		AssetA:         cfg.AssetA,
		AssetB:         cfg.AssetB,
		SwingLeft:      cfg.SwingLeft,
		SwingRight:     cfg.SwingRight,
		SplitRatio:     cfg.SplitRatio,
		RatioThreshold: cfg.RatioThreshold,
	}, account, seq, journal)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	for _, bar := range bars {
		sim.OnBar(bar)
		strat.HandleBar(bar)
	}

	snap := account.Snapshot()
	res := &Result{
		Bars:         len(bars),
		StartingCash: cfg.StartingCash,
		FinalEquity:  snap.Equity,
		ReturnPct:    (snap.Equity - cfg.StartingCash) / cfg.StartingCash * 100,
		Account:      snap,
		Ledger:       strat.Ledger().Rows(),
		DailyFills:   seq.DailyRecords(),
		ShortHighs:   strat.SwingShort().HighHistory(),
		ShortLows:    strat.SwingShort().LowHistory(),
		LongHighs:    strat.SwingLong().HighHistory(),
		LongLows:     strat.SwingLong().LowHistory(),
	}

	log.Info().
		Int("bars", res.Bars).
		Float64("finalEquity", res.FinalEquity).
		Float64("returnPct", res.ReturnPct).
		Dur("took", time.Since(start)).
		Msg("backtest complete")
	return res, nil
}

// loadBars pulls the six configured series out of the catalog and merges
// them into one replay feed. Every stream must have bars; an empty one
// means ingest has not run for this window.
func loadBars(cfg config.Config, store *catalog.Store) ([]market.Bar, error) {
	startNs, endNs := cfg.TimeRange()
	streams := []struct {
		symbol   string
		interval string
		series   market.Series
	}{
		{cfg.AssetA, cfg.IntervalShort, market.SeriesAssetAShort},
		{cfg.AssetB, cfg.IntervalShort, market.SeriesAssetBShort},
		{cfg.AssetA, cfg.IntervalLong, market.SeriesAssetALong},
		{cfg.AssetB, cfg.IntervalLong, market.SeriesAssetBLong},
		{cfg.RatioSymbol, cfg.IntervalShort, market.SeriesRatioShort},
		{cfg.RatioSymbol, cfg.IntervalLong, market.SeriesRatioLong},
	}

	var bars []market.Bar
	for _, st := range streams {
		recs, err := store.QueryBars(st.symbol, st.interval, startNs, endNs)
		if err != nil {
			return nil, fmt.Errorf("load %s %s: %w", st.symbol, st.interval, err)
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("no %s %s bars in the catalog, run ingest first", st.symbol, st.interval)
		}
		for _, r := range recs {
			bars = append(bars, market.Bar{
				Timestamp:  r.Ts,
				Instrument: st.symbol,
				Series:     st.series,
				OHLC:       market.OHLC{O: r.Open, H: r.High, L: r.Low, C: r.Close},
				Volume:     r.Volume,
			})
		}
	}
	sortBars(bars)
	return bars, nil
}

// sortBars orders the feed by timestamp, breaking ties by series priority so
// asset bars refresh marks before the ratio bar that trades on them.
func sortBars(bars []market.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		if bars[i].Timestamp != bars[j].Timestamp {
			return bars[i].Timestamp < bars[j].Timestamp
		}
		return bars[i].Series.Priority() < bars[j].Series.Priority()
	})
}
