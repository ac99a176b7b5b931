package strategy

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"pair-trader/internal/db"
	"pair-trader/internal/execution"
	"pair-trader/internal/indicator"
	"pair-trader/internal/ledger"
	"pair-trader/internal/market"
	"pair-trader/internal/metrics"
	"pair-trader/internal/portfolio"
)

// Config carries the pair ratio strategy parameters.
type Config struct {
	AssetA string
	AssetB string

	SwingLeft  int
	SwingRight int

	// SplitRatio is the equity share targeted at the favored instrument.
	SplitRatio float64
	// RatioThreshold widens the flip/adjust classification band.
	RatioThreshold float64
}

// PairRatio trades the relative-strength ratio of two instruments.
// What: rebalances a two-asset portfolio toward whichever side the ratio's
// swing structure favors. A confirmed ratio pivot low means asset A is
// regaining strength, a pivot high favors asset B.
// How: every ratio bar walks a trigger ladder. Bootstrap puts an empty
// account to work on the first confirmed long pivot. Breakout fires when the
// short-timeframe ratio range takes out the previous long swing level, once
// per (swing, direction). Confirmation fires on every newly confirmed long
// pivot. The first trigger that fires sizes a rebalance cycle; a breakout
// suppressed by its dedup marker falls through so a fresh pivot on the same
// bar still acts.
type PairRatio struct {
	cfg Config

	ledger  *ledger.BarLedger
	swingS  *indicator.SwingLevels
	swingL  *indicator.SwingLevels
	account *portfolio.Account
	seq     *execution.Sequencer
	journal *db.Journal

	lastBreakout *breakoutMark
}

// breakoutMark dedupes structural breakouts: one per previous swing
// timestamp and favored side.
type breakoutMark struct {
	swingTs int64
	favored string
}

// NewPairRatio validates the configuration and wires the strategy to its
// account and order sequencer. journal may be nil.
func NewPairRatio(cfg Config, account *portfolio.Account, seq *execution.Sequencer, journal *db.Journal) (*PairRatio, error) {
	if cfg.AssetA == "" || cfg.AssetB == "" {
		return nil, fmt.Errorf("both instruments must be configured")
	}
	if cfg.AssetA == cfg.AssetB {
		return nil, fmt.Errorf("instruments must differ, got %q twice", cfg.AssetA)
	}
	if cfg.SplitRatio <= 0 || cfg.SplitRatio >= 1 {
		return nil, fmt.Errorf("split ratio must be inside (0, 1), got %v", cfg.SplitRatio)
	}
	if cfg.RatioThreshold < 0 {
		return nil, fmt.Errorf("ratio threshold must not be negative, got %v", cfg.RatioThreshold)
	}
	swingS, err := indicator.NewSwingLevels(cfg.SwingLeft, cfg.SwingRight)
	if err != nil {
		return nil, fmt.Errorf("short swing detector: %w", err)
	}
	swingL, err := indicator.NewSwingLevels(cfg.SwingLeft, cfg.SwingRight)
	if err != nil {
		return nil, fmt.Errorf("long swing detector: %w", err)
	}
	return &PairRatio{
		cfg:     cfg,
		ledger:  ledger.NewBarLedger(),
		swingS:  swingS,
		swingL:  swingL,
		account: account,
		seq:     seq,
		journal: journal,
	}, nil
}

// Ledger exposes the consolidated bar history.
func (p *PairRatio) Ledger() *ledger.BarLedger { return p.ledger }

// SwingShort exposes the short-timeframe detector, for reporting.
func (p *PairRatio) SwingShort() *indicator.SwingLevels { return p.swingS }

// SwingLong exposes the long-timeframe detector, for reporting.
func (p *PairRatio) SwingLong() *indicator.SwingLevels { return p.swingL }

// HandleBar processes one completed bar from any of the six streams. Ratio
// bars run through their swing detector and then the trigger ladder; asset
// bars only refresh the ledger. Bars must arrive through a single
// goroutine; ordering between streams is the caller's responsibility.
func (p *PairRatio) HandleBar(bar market.Bar) {
	metrics.BarsRouted.WithLabelValues(string(bar.Series)).Inc()

	var pivotHigh, pivotLow *float64
	switch bar.Series {
	case market.SeriesRatioShort:
		pivotHigh, pivotLow = p.swingS.HandleBar(bar)
		countPivots("short", pivotHigh, pivotLow)
	case market.SeriesRatioLong:
		pivotHigh, pivotLow = p.swingL.HandleBar(bar)
		countPivots("long", pivotHigh, pivotLow)
	}
	p.ledger.Apply(bar, pivotHigh, pivotLow)

	if !bar.Series.Ratio() {
		return
	}
	p.evaluate(bar, pivotHigh, pivotLow)
}

// evaluate walks the trigger ladder for one ratio bar.
func (p *PairRatio) evaluate(bar market.Bar, pivotHigh, pivotLow *float64) {
	row, ok := p.ledger.Latest()
	if !ok {
		return
	}

	confirmed := bar.Series == market.SeriesRatioLong && (pivotHigh != nil || pivotLow != nil)

	// Bootstrap: an account with no invested equity enters on the first
	// confirmed long pivot. Cash does not count as invested.
	if confirmed && p.account.InvestedValue() == 0 {
		if pivotLow != nil {
			p.act(bar, "bootstrap", p.cfg.AssetA, p.cfg.AssetB)
		} else {
			p.act(bar, "bootstrap", p.cfg.AssetB, p.cfg.AssetA)
		}
		return
	}

	// Breakout: the short ratio range takes out the previous long swing.
	if prev, havePrev := p.ledger.PrevLongSwingRow(bar.Timestamp); havePrev && row.RatioShort != nil {
		if prev.SwingLongLow != nil && row.RatioShort.L < *prev.SwingLongLow {
			if p.markBreakout(prev.Timestamp, p.cfg.AssetB) {
				log.Info().
					Int64("swingTs", prev.Timestamp).
					Float64("swingLow", *prev.SwingLongLow).
					Float64("ratioLow", row.RatioShort.L).
					Msg("ratio broke below prior long swing low")
				p.act(bar, "breakout", p.cfg.AssetB, p.cfg.AssetA)
				return
			}
		} else if prev.SwingLongHigh != nil && row.RatioShort.H > *prev.SwingLongHigh {
			if p.markBreakout(prev.Timestamp, p.cfg.AssetA) {
				log.Info().
					Int64("swingTs", prev.Timestamp).
					Float64("swingHigh", *prev.SwingLongHigh).
					Float64("ratioHigh", row.RatioShort.H).
					Msg("ratio broke above prior long swing high")
				p.act(bar, "breakout", p.cfg.AssetA, p.cfg.AssetB)
				return
			}
		}
	}

	// Confirmation: every newly confirmed long pivot rebalances, with no
	// dedup and no further conditions.
	if confirmed {
		if pivotLow != nil {
			p.act(bar, "confirmation", p.cfg.AssetA, p.cfg.AssetB)
		} else {
			p.act(bar, "confirmation", p.cfg.AssetB, p.cfg.AssetA)
		}
	}
}

// markBreakout records the (swing, direction) pair and reports whether it
// was new. A repeat pair means this breakout already traded.
func (p *PairRatio) markBreakout(swingTs int64, favored string) bool {
	if p.lastBreakout != nil && p.lastBreakout.swingTs == swingTs && p.lastBreakout.favored == favored {
		return false
	}
	p.lastBreakout = &breakoutMark{swingTs: swingTs, favored: favored}
	return true
}

// act sizes and submits one rebalance cycle favoring high over low.
func (p *PairRatio) act(bar market.Bar, trigger, high, low string) {
	priceHigh, okHigh := p.account.MarkPrice(high)
	priceLow, okLow := p.account.MarkPrice(low)
	if !okHigh || !okLow || priceHigh <= 0 || priceLow <= 0 {
		log.Warn().
			Str("trigger", trigger).
			Str("favored", high).
			Msg("skipping rebalance, missing mark price")
		return
	}

	total := p.account.TotalEquity()
	qtyHigh := p.account.Position(high)
	qtyLow := p.account.Position(low)

	sells, buys := buildOrders(high, low, total, p.cfg.SplitRatio, priceHigh, priceLow, qtyHigh, qtyLow)
	if len(sells) == 0 && len(buys) == 0 {
		log.Debug().
			Str("trigger", trigger).
			Str("favored", high).
			Msg("already at target split")
		return
	}

	action := classifyAction(qtyLow, priceLow, total, p.cfg.SplitRatio, p.cfg.RatioThreshold)
	metrics.RebalanceCycles.WithLabelValues(trigger).Inc()
	log.Info().
		Str("trigger", trigger).
		Str("action", action).
		Str("favored", high).
		Float64("equity", total).
		Int("sells", len(sells)).
		Int("buys", len(buys)).
		Msg("rebalance cycle")
	if p.journal != nil {
		p.journal.LogDecision(bar.Timestamp, trigger, action, high, map[string]any{
			"equity":    total,
			"priceHigh": priceHigh,
			"priceLow":  priceLow,
			"qtyHigh":   qtyHigh,
			"qtyLow":    qtyLow,
		})
	}
	p.seq.SubmitCycle(sells, buys)
}

func countPivots(timeframe string, pivotHigh, pivotLow *float64) {
	if pivotHigh != nil {
		metrics.PivotsConfirmed.WithLabelValues(timeframe, "high").Inc()
	}
	if pivotLow != nil {
		metrics.PivotsConfirmed.WithLabelValues(timeframe, "low").Inc()
	}
}
