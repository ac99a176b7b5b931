package ingest

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pair-trader/internal/catalog"
)

// BuildRatio inner-joins two stored series on timestamp and writes the
// synthetic A/B series under ratioSymbol. The ratio high divides A's high by
// B's low and the ratio low divides A's low by B's high, the widest range the
// quotient could have covered inside the bar. All four legs round to four
// decimal places; volume is always zero for synthetic series.
func (in *Ingestor) BuildRatio(symbolA, symbolB, ratioSymbol, interval string) (int, error) {
	as, err := in.store.QueryBars(symbolA, interval, 0, math.MaxInt64)
	if err != nil {
		return 0, fmt.Errorf("query %s %s: %w", symbolA, interval, err)
	}
	bs, err := in.store.QueryBars(symbolB, interval, 0, math.MaxInt64)
	if err != nil {
		return 0, fmt.Errorf("query %s %s: %w", symbolB, interval, err)
	}

	ratio := joinRatio(as, bs)
	if len(ratio) == 0 {
		return 0, fmt.Errorf("no overlapping %s bars between %s and %s", interval, symbolA, symbolB)
	}
	if err := in.store.WriteBars(ratioSymbol, interval, ratio); err != nil {
		return 0, fmt.Errorf("write %s %s: %w", ratioSymbol, interval, err)
	}

	log.Info().
		Str("ratio", ratioSymbol).
		Str("interval", interval).
		Int("bars", len(ratio)).
		Int("aBars", len(as)).
		Int("bBars", len(bs)).
		Msg("built ratio series")
	return len(ratio), nil
}

// joinRatio walks both ascending series once, keeping only timestamps present
// in each. Bars where any divisor leg is zero are dropped rather than written
// as infinities.
func joinRatio(as, bs []catalog.BarRecord) []catalog.BarRecord {
	out := make([]catalog.BarRecord, 0, len(as))
	i, j := 0, 0
	for i < len(as) && j < len(bs) {
		switch {
		case as[i].Ts < bs[j].Ts:
			i++
		case as[i].Ts > bs[j].Ts:
			j++
		default:
			a, b := as[i], bs[j]
			i++
			j++
			if b.Open == 0 || b.High == 0 || b.Low == 0 || b.Close == 0 {
				log.Warn().Int64("ts", a.Ts).Msg("skipping ratio bar, zero divisor")
				continue
			}
			out = append(out, catalog.BarRecord{
				Ts:    a.Ts,
				Open:  divRound(a.Open, b.Open),
				High:  divRound(a.High, b.Low),
				Low:   divRound(a.Low, b.High),
				Close: divRound(a.Close, b.Close),
			})
		}
	}
	return out
}

func divRound(num, den float64) float64 {
	return decimal.NewFromFloat(num).Div(decimal.NewFromFloat(den)).Round(4).InexactFloat64()
}
