package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"pair-trader/internal/backtest"
	"pair-trader/internal/indicator"
	"pair-trader/internal/ledger"
	"pair-trader/internal/market"
)

// Export writes the replay artifacts as CSV files under dir and logs the
// run summary: the consolidated ledger history, every confirmed pivot and
// the per-day fill digest.
func Export(dir string, res *backtest.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := writeLedgerHistory(filepath.Join(dir, "ledger_history.csv"), res.Ledger); err != nil {
		return err
	}
	if err := writePivots(filepath.Join(dir, "pivots.csv"), res); err != nil {
		return err
	}
	if err := writeDailyFills(filepath.Join(dir, "daily_fills.csv"), res); err != nil {
		return err
	}

	log.Info().
		Str("dir", dir).
		Float64("startingCash", res.StartingCash).
		Float64("finalEquity", res.FinalEquity).
		Float64("returnPct", res.ReturnPct).
		Int("fillDays", len(res.DailyFills)).
		Int("pivots", len(res.ShortHighs)+len(res.ShortLows)+len(res.LongHighs)+len(res.LongLows)).
		Msg("report written")
	return nil
}

func writeLedgerHistory(path string, rows []ledger.Row) error {
	header := []string{"date", "weekday"}
	for _, stream := range []string{"a_short", "b_short", "a_long", "b_long", "ratio_short", "ratio_long"} {
		header = append(header, stream+"_o", stream+"_h", stream+"_l", stream+"_c")
	}
	header = append(header, "swing_short_high", "swing_short_low", "swing_long_high", "swing_long_low", "long_epoch")

	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		ts := time.Unix(0, r.Timestamp).UTC()
		rec := []string{ts.Format("2006-01-02"), ts.Weekday().String()}
		for _, o := range []*market.OHLC{r.AssetAShort, r.AssetBShort, r.AssetALong, r.AssetBLong, r.RatioShort, r.RatioLong} {
			rec = append(rec, ohlcCells(o)...)
		}
		rec = append(rec,
			fmtPtr(r.SwingShortHigh), fmtPtr(r.SwingShortLow),
			fmtPtr(r.SwingLongHigh), fmtPtr(r.SwingLongLow),
			strconv.FormatInt(r.LongEpoch, 10))
		records = append(records, rec)
	}
	return writeCSV(path, header, records)
}

func writePivots(path string, res *backtest.Result) error {
	type taggedPivot struct {
		timeframe string
		kind      string
		ts        int64
		value     float64
	}
	var pivots []taggedPivot
	add := func(timeframe, kind string, events []indicator.PivotEvent) {
		for _, e := range events {
			pivots = append(pivots, taggedPivot{timeframe: timeframe, kind: kind, ts: e.Bar.Timestamp, value: e.Value})
		}
	}
	add("short", "high", res.ShortHighs)
	add("short", "low", res.ShortLows)
	add("long", "high", res.LongHighs)
	add("long", "low", res.LongLows)

	sort.Slice(pivots, func(i, j int) bool { return pivots[i].ts < pivots[j].ts })

	records := make([][]string, 0, len(pivots))
	for _, p := range pivots {
		records = append(records, []string{
			time.Unix(0, p.ts).UTC().Format("2006-01-02"),
			p.timeframe,
			p.kind,
			fmtF(p.value),
		})
	}
	return writeCSV(path, []string{"date", "timeframe", "kind", "value"}, records)
}

func writeDailyFills(path string, res *backtest.Result) error {
	header := []string{"date", "instrument", "quantity", "avg_price", "notional", "position", "cash", "equity", "equity_pct"}
	var records [][]string
	for _, day := range res.DailyFills {
		instruments := make([]string, 0, len(day.Instruments))
		for name := range day.Instruments {
			instruments = append(instruments, name)
		}
		sort.Strings(instruments)
		for _, name := range instruments {
			f := day.Instruments[name]
			records = append(records, []string{
				day.Date, name,
				fmtF(f.Quantity), fmtF(f.AvgPrice), fmtF(f.Notional), fmtF(f.Position),
				fmtF(day.Cash), fmtF(day.Equity), fmtF(day.EquityPct),
			})
		}
	}
	return writeCSV(path, header, records)
}

func writeCSV(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

func ohlcCells(o *market.OHLC) []string {
	if o == nil {
		return []string{"", "", "", ""}
	}
	return []string{fmtF(o.O), fmtF(o.H), fmtF(o.L), fmtF(o.C)}
}

func fmtF(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func fmtPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fmtF(*v)
}
