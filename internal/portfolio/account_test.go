package portfolio

import (
	"testing"

	"pair-trader/internal/market"
)

func TestInvestedValueExcludesCash(t *testing.T) {
	a := NewAccount(1_000_000)
	if got := a.InvestedValue(); got != 0 {
		t.Fatalf("fresh account invested = %v, want 0", got)
	}
	if got := a.TotalEquity(); got != 1_000_000 {
		t.Fatalf("fresh account equity = %v, want 1000000", got)
	}

	a.SetMark("VTI", 100)
	a.ApplyFill("VTI", market.SideBuy, 500, 100)
	if got := a.Cash(); got != 950_000 {
		t.Fatalf("cash after buy = %v, want 950000", got)
	}
	if got := a.InvestedValue(); got != 50_000 {
		t.Fatalf("invested = %v, want 50000", got)
	}
	if got := a.TotalEquity(); got != 1_000_000 {
		t.Fatalf("equity = %v, want 1000000", got)
	}

	// Mark moves, equity follows.
	a.SetMark("VTI", 110)
	if got := a.TotalEquity(); got != 1_005_000 {
		t.Fatalf("equity after mark move = %v, want 1005000", got)
	}
}

func TestSellFillReleasesCash(t *testing.T) {
	a := NewAccount(0)
	a.SetMark("GLD", 50)
	a.ApplyFill("GLD", market.SideBuy, 10, 50)
	a.ApplyFill("GLD", market.SideSell, 4, 55)
	if got := a.Position("GLD"); got != 6 {
		t.Fatalf("position = %v, want 6", got)
	}
	if got := a.Cash(); got != -500+220 {
		t.Fatalf("cash = %v, want %v", got, -500+220)
	}
}

func TestPositionWithoutMarkContributesNothing(t *testing.T) {
	a := NewAccount(100)
	a.ApplyFill("VTI", market.SideBuy, 5, 10)
	// No mark set for VTI yet.
	if got := a.InvestedValue(); got != 0 {
		t.Fatalf("invested without mark = %v, want 0", got)
	}
	if got := a.TotalEquity(); got != 50 {
		t.Fatalf("equity = %v, want remaining cash 50", got)
	}
}

func TestSyncReplacesBalances(t *testing.T) {
	a := NewAccount(10)
	a.SetMark("VTI", 100)
	a.ApplyFill("VTI", market.SideBuy, 1, 100)
	a.Sync(5_000, map[string]float64{"GLD": 20})

	if got := a.Cash(); got != 5_000 {
		t.Fatalf("cash after sync = %v, want 5000", got)
	}
	if got := a.Position("VTI"); got != 0 {
		t.Fatalf("stale position survived sync: %v", got)
	}
	if got := a.Position("GLD"); got != 20 {
		t.Fatalf("synced position = %v, want 20", got)
	}
	// Marks survive a sync.
	if _, ok := a.MarkPrice("VTI"); !ok {
		t.Fatal("mark lost on sync")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	a := NewAccount(100)
	a.SetMark("VTI", 10)
	a.ApplyFill("VTI", market.SideBuy, 2, 10)

	s := a.Snapshot()
	s.Positions["VTI"] = 999
	s.Marks["VTI"] = 999

	if got := a.Position("VTI"); got != 2 {
		t.Fatalf("position mutated through snapshot: %v", got)
	}
	if mark, _ := a.MarkPrice("VTI"); mark != 10 {
		t.Fatalf("mark mutated through snapshot: %v", mark)
	}
	if s.Equity != 100 {
		t.Fatalf("snapshot equity = %v, want 100", s.Equity)
	}
}
