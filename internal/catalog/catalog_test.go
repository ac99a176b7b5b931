package catalog

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteAndQueryRange(t *testing.T) {
	s := openTestStore(t)
	bars := []BarRecord{
		{Ts: 1e9, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Ts: 2e9, Open: 1.5, High: 2.5, Low: 1, Close: 2},
		{Ts: 3e9, Open: 2, High: 3, Low: 1.5, Close: 2.5},
		{Ts: 4e9, Open: 2.5, High: 3.5, Low: 2, Close: 3},
		{Ts: 5e9, Open: 3, High: 4, Low: 2.5, Close: 3.5},
	}
	if err := s.WriteBars("VTI", "1-DAY", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.QueryBars("VTI", "1-DAY", 2e9, 5e9)
	if err != nil {
		t.Fatalf("QueryBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("rows = %d, want 3 (end exclusive)", len(got))
	}
	for i, want := range []int64{2e9, 3e9, 4e9} {
		if got[i].Ts != want {
			t.Fatalf("row %d ts = %d, want %d", i, got[i].Ts, want)
		}
	}
	if got[0].Close != 2 {
		t.Fatalf("row 0 close = %v, want 2", got[0].Close)
	}

	n, err := s.CountBars("VTI", "1-DAY")
	if err != nil {
		t.Fatalf("CountBars: %v", err)
	}
	if n != 5 {
		t.Fatalf("count = %d, want 5", n)
	}
}

func TestRewriteReplacesTimestamp(t *testing.T) {
	s := openTestStore(t)
	if err := s.WriteBars("GLD", "1-WEEK", []BarRecord{{Ts: 1e9, Close: 10}}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteBars("GLD", "1-WEEK", []BarRecord{{Ts: 1e9, Close: 11}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.QueryBars("GLD", "1-WEEK", 0, 2e9)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Close != 11 {
		t.Fatalf("rows = %+v, want single row with close 11", got)
	}
}

func TestSeriesAreKeyedBySymbolAndInterval(t *testing.T) {
	s := openTestStore(t)
	if err := s.WriteBars("VTI", "1-DAY", []BarRecord{{Ts: 1e9, Close: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteBars("VTI", "1-WEEK", []BarRecord{{Ts: 1e9, Close: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteBars("GLD", "1-DAY", []BarRecord{{Ts: 1e9, Close: 3}}); err != nil {
		t.Fatal(err)
	}

	for _, c := range []struct {
		symbol, interval string
		close            float64
	}{
		{"VTI", "1-DAY", 1},
		{"VTI", "1-WEEK", 2},
		{"GLD", "1-DAY", 3},
	} {
		got, err := s.QueryBars(c.symbol, c.interval, 0, 2e9)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Close != c.close {
			t.Fatalf("%s %s rows = %+v, want close %v", c.symbol, c.interval, got, c.close)
		}
	}
}
