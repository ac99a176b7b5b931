package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pair-trader/internal/backtest"
	"pair-trader/internal/execution"
	"pair-trader/internal/indicator"
	"pair-trader/internal/ledger"
	"pair-trader/internal/market"
)

func f(v float64) *float64 { return &v }

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestExportWritesAllArtifacts(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2008, 1, 2, 0, 0, 0, 0, time.UTC).UnixNano()
	tsNext := time.Date(2008, 1, 3, 0, 0, 0, 0, time.UTC).UnixNano()

	res := &backtest.Result{
		StartingCash: 100_000,
		FinalEquity:  101_000,
		ReturnPct:    1,
		Ledger: []ledger.Row{
			{
				Timestamp:    ts,
				AssetAShort:  &market.OHLC{O: 100, H: 101, L: 99, C: 100.5},
				RatioShort:   &market.OHLC{O: 2, H: 2.1, L: 1.9, C: 2},
				SwingLongLow: f(1.95),
				LongEpoch:    1,
			},
		},
		ShortHighs: []indicator.PivotEvent{{Value: 2.2, Bar: market.Bar{Timestamp: tsNext}}},
		LongLows:   []indicator.PivotEvent{{Value: 1.95, Bar: market.Bar{Timestamp: ts}}},
		DailyFills: []execution.DailyFillRecord{
			{
				Date: "2008-01-02",
				Instruments: map[string]*execution.InstrumentFills{
					"VTI": {Quantity: 800, Notional: 80_000, AvgPrice: 100, Position: 800},
					"GLD": {Quantity: 400, Notional: 20_000, AvgPrice: 50, Position: 400},
				},
				Cash:   0,
				Equity: 100_000,
			},
		},
	}

	if err := Export(dir, res); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	history := readCSV(t, filepath.Join(dir, "ledger_history.csv"))
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want header plus one", len(history))
	}
	if history[0][0] != "date" || history[0][1] != "weekday" || len(history[0]) != 31 {
		t.Errorf("history header = %v", history[0])
	}
	row := history[1]
	if row[0] != "2008-01-02" || row[1] != "Wednesday" {
		t.Errorf("date/weekday = %s/%s", row[0], row[1])
	}
	if row[2] != "100" || row[5] != "100.5" {
		t.Errorf("a_short cells = %v", row[2:6])
	}
	if row[6] != "" {
		t.Errorf("b_short open = %q, want empty for an unseen stream", row[6])
	}
	if row[18] != "2" || row[20] != "1.9" {
		t.Errorf("ratio_short cells = %v", row[18:22])
	}
	if row[28] != "" || row[29] != "1.95" {
		t.Errorf("long swing cells = %q/%q, want empty high and 1.95 low", row[28], row[29])
	}
	if row[30] != "1" {
		t.Errorf("long_epoch = %q", row[30])
	}

	pivots := readCSV(t, filepath.Join(dir, "pivots.csv"))
	if len(pivots) != 3 {
		t.Fatalf("pivot rows = %d, want header plus two", len(pivots))
	}
	if got := pivots[1]; got[0] != "2008-01-02" || got[1] != "long" || got[2] != "low" || got[3] != "1.95" {
		t.Errorf("first pivot = %v, rows should sort by date", got)
	}
	if got := pivots[2]; got[0] != "2008-01-03" || got[1] != "short" || got[2] != "high" || got[3] != "2.2" {
		t.Errorf("second pivot = %v", got)
	}

	fills := readCSV(t, filepath.Join(dir, "daily_fills.csv"))
	if len(fills) != 3 {
		t.Fatalf("fill rows = %d, want header plus one per instrument", len(fills))
	}
	if got := fills[1]; got[1] != "GLD" || got[2] != "400" || got[3] != "50" {
		t.Errorf("first fill row = %v, instruments should sort alphabetically", got)
	}
	if got := fills[2]; got[1] != "VTI" || got[4] != "80000" || got[7] != "100000" {
		t.Errorf("second fill row = %v", got)
	}
}

func TestExportEmptyResultStillWritesHeaders(t *testing.T) {
	dir := t.TempDir()
	if err := Export(dir, &backtest.Result{StartingCash: 1}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	for _, name := range []string{"ledger_history.csv", "pivots.csv", "daily_fills.csv"} {
		records := readCSV(t, filepath.Join(dir, name))
		if len(records) != 1 {
			t.Errorf("%s rows = %d, want header only", name, len(records))
		}
	}
}
