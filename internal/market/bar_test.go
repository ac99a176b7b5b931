package market

import (
	"sort"
	"testing"
)

func TestParseSeries(t *testing.T) {
	for _, s := range AllSeries() {
		got, err := ParseSeries(string(s))
		if err != nil {
			t.Fatalf("ParseSeries(%q) returned error: %v", s, err)
		}
		if got != s {
			t.Fatalf("ParseSeries(%q) = %q", s, got)
		}
	}
	if _, err := ParseSeries("A_DAILY"); err == nil {
		t.Fatal("expected error for unknown series code")
	}
}

func TestSeriesClassification(t *testing.T) {
	cases := []struct {
		series Series
		ratio  bool
		long   bool
	}{
		{SeriesAssetAShort, false, false},
		{SeriesAssetBShort, false, false},
		{SeriesAssetALong, false, true},
		{SeriesAssetBLong, false, true},
		{SeriesRatioShort, true, false},
		{SeriesRatioLong, true, true},
	}
	for _, c := range cases {
		if c.series.Ratio() != c.ratio {
			t.Errorf("%s: Ratio() = %v, want %v", c.series, c.series.Ratio(), c.ratio)
		}
		if c.series.Long() != c.long {
			t.Errorf("%s: Long() = %v, want %v", c.series, c.series.Long(), c.long)
		}
	}
}

func TestPriorityOrdersRatioLongLast(t *testing.T) {
	shuffled := []Series{
		SeriesRatioLong, SeriesAssetBLong, SeriesRatioShort,
		SeriesAssetAShort, SeriesAssetBShort, SeriesAssetALong,
	}
	sort.Slice(shuffled, func(i, j int) bool {
		return shuffled[i].Priority() < shuffled[j].Priority()
	})
	want := AllSeries()
	for i := range want {
		if shuffled[i] != want[i] {
			t.Fatalf("priority order at %d = %s, want %s", i, shuffled[i], want[i])
		}
	}
}

func TestUTCDate(t *testing.T) {
	// 2008-01-02 00:00:00 UTC in nanoseconds.
	const ts = int64(1199232000) * 1e9
	if got := UTCDate(ts); got != "2008-01-02" {
		t.Fatalf("UTCDate = %q, want 2008-01-02", got)
	}
	// One nanosecond before midnight still belongs to the prior date.
	if got := UTCDate(ts - 1); got != "2008-01-01" {
		t.Fatalf("UTCDate = %q, want 2008-01-01", got)
	}
}
