package venue

import (
	"testing"

	"pair-trader/internal/execution"
	"pair-trader/internal/market"
	"pair-trader/internal/portfolio"
)

type eventRecorder struct {
	fills   []execution.Fill
	rejects []execution.Reject
	denies  []execution.Deny

	sim          *Sim
	submitOnFill *execution.Order
}

func (e *eventRecorder) HandleFill(f execution.Fill) {
	e.fills = append(e.fills, f)
	if e.submitOnFill != nil {
		o := *e.submitOnFill
		e.submitOnFill = nil
		_ = e.sim.Submit(o)
	}
}
func (e *eventRecorder) HandleReject(r execution.Reject) { e.rejects = append(e.rejects, r) }
func (e *eventRecorder) HandleDeny(d execution.Deny)     { e.denies = append(e.denies, d) }

func newTestSim(cash float64) (*Sim, *eventRecorder, *portfolio.Account) {
	account := portfolio.NewAccount(cash)
	sim := NewSim(account, []string{"VTI", "GLD"})
	rec := &eventRecorder{sim: sim}
	sim.SetHandler(rec)
	return sim, rec, account
}

func assetBar(ts int64, instrument string, o, h, l, c float64) market.Bar {
	series := market.SeriesAssetAShort
	if instrument == "GLD" {
		series = market.SeriesAssetBShort
	}
	return market.Bar{
		Timestamp:  ts,
		Instrument: instrument,
		Series:     series,
		OHLC:       market.OHLC{O: o, H: h, L: l, C: c},
	}
}

func TestBuyFillsWhenLowTradesThroughLimit(t *testing.T) {
	sim, rec, account := newTestSim(10_000)
	_ = sim.Submit(execution.Order{
		ClientID: "c1", Instrument: "VTI", Side: market.SideBuy,
		Quantity: 10, LimitPrice: 100, TimeInForce: execution.TifGTC,
	})

	// Bar stays above the limit: the order keeps resting.
	sim.OnBar(assetBar(1e9, "VTI", 102, 103, 101, 102))
	if len(rec.fills) != 0 || sim.RestingCount() != 1 {
		t.Fatalf("fills = %d resting = %d, want 0 and 1", len(rec.fills), sim.RestingCount())
	}

	// Low trades through: fill at the limit, not at the bar low.
	sim.OnBar(assetBar(2e9, "VTI", 101, 102, 99, 101))
	if len(rec.fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(rec.fills))
	}
	f := rec.fills[0]
	if f.Price != 100 || f.Quantity != 10 || f.Side != market.SideBuy || f.Timestamp != 2e9 {
		t.Fatalf("fill = %+v", f)
	}
	if got := account.Cash(); got != 9_000 {
		t.Fatalf("cash = %v, want 9000", got)
	}
	if got := account.Position("VTI"); got != 10 {
		t.Fatalf("position = %v, want 10", got)
	}
	if sim.RestingCount() != 0 {
		t.Fatalf("resting = %d, want 0", sim.RestingCount())
	}
}

func TestSellFillsWhenHighTradesThroughLimit(t *testing.T) {
	sim, rec, account := newTestSim(0)
	account.Sync(0, map[string]float64{"VTI": 50})
	_ = sim.Submit(execution.Order{
		ClientID: "c1", Instrument: "VTI", Side: market.SideSell,
		Quantity: 50, LimitPrice: 105, ReduceOnly: true,
	})

	sim.OnBar(assetBar(1e9, "VTI", 103, 104, 102, 103))
	if len(rec.fills) != 0 {
		t.Fatalf("filled below limit: %+v", rec.fills)
	}
	sim.OnBar(assetBar(2e9, "VTI", 104, 106, 103, 105))
	if len(rec.fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(rec.fills))
	}
	if f := rec.fills[0]; f.Price != 105 || f.Side != market.SideSell {
		t.Fatalf("fill = %+v", f)
	}
	if got := account.Cash(); got != 50*105 {
		t.Fatalf("cash = %v, want %v", got, 50*105)
	}
	if got := account.Position("VTI"); got != 0 {
		t.Fatalf("position = %v, want 0", got)
	}
}

func TestUnknownInstrumentDenied(t *testing.T) {
	sim, rec, _ := newTestSim(1_000)
	_ = sim.Submit(execution.Order{ClientID: "c1", Instrument: "SPY", Side: market.SideBuy, Quantity: 1, LimitPrice: 10})
	if len(rec.denies) != 1 || rec.denies[0].Reason != "unknown instrument" {
		t.Fatalf("denies = %+v", rec.denies)
	}
	if sim.RestingCount() != 0 {
		t.Fatal("denied order should not rest")
	}
}

func TestNonPositiveOrdersDenied(t *testing.T) {
	sim, rec, _ := newTestSim(1_000)
	_ = sim.Submit(execution.Order{ClientID: "c1", Instrument: "VTI", Side: market.SideBuy, Quantity: 0, LimitPrice: 10})
	_ = sim.Submit(execution.Order{ClientID: "c2", Instrument: "VTI", Side: market.SideBuy, Quantity: 1, LimitPrice: -5})
	if len(rec.denies) != 2 {
		t.Fatalf("denies = %+v", rec.denies)
	}
}

func TestReduceOnlySellBeyondPositionRejected(t *testing.T) {
	sim, rec, account := newTestSim(0)
	account.Sync(0, map[string]float64{"VTI": 5})
	_ = sim.Submit(execution.Order{
		ClientID: "c1", Instrument: "VTI", Side: market.SideSell,
		Quantity: 10, LimitPrice: 100, ReduceOnly: true,
	})
	if len(rec.rejects) != 1 || rec.rejects[0].Reason != "reduce-only quantity exceeds position" {
		t.Fatalf("rejects = %+v", rec.rejects)
	}
	if sim.RestingCount() != 0 {
		t.Fatal("rejected order should not rest")
	}
}

func TestBuyWithoutCashRejectsAtCross(t *testing.T) {
	sim, rec, account := newTestSim(500)
	_ = sim.Submit(execution.Order{
		ClientID: "c1", Instrument: "VTI", Side: market.SideBuy,
		Quantity: 10, LimitPrice: 100,
	})
	sim.OnBar(assetBar(1e9, "VTI", 100, 101, 99, 100))

	if len(rec.fills) != 0 {
		t.Fatalf("unexpected fills: %+v", rec.fills)
	}
	if len(rec.rejects) != 1 || rec.rejects[0].Reason != "insufficient funds" {
		t.Fatalf("rejects = %+v", rec.rejects)
	}
	if sim.RestingCount() != 0 {
		t.Fatal("rejected order should be dropped")
	}
	if got := account.Cash(); got != 500 {
		t.Fatalf("cash changed on rejected fill: %v", got)
	}
}

func TestMarkRefreshesFromBarClose(t *testing.T) {
	sim, _, account := newTestSim(0)
	sim.OnBar(assetBar(1e9, "GLD", 50, 51, 49, 50.5))
	mark, ok := account.MarkPrice("GLD")
	if !ok || mark != 50.5 {
		t.Fatalf("mark = %v ok=%v, want 50.5", mark, ok)
	}

	// Ratio bars are not tradeable and never set marks.
	sim.OnBar(market.Bar{
		Timestamp: 2e9, Instrument: "VTI-GLD", Series: market.SeriesRatioShort,
		OHLC: market.OHLC{O: 2, H: 2.1, L: 1.9, C: 2},
	})
	if _, ok := account.MarkPrice("VTI-GLD"); ok {
		t.Fatal("ratio instrument acquired a mark")
	}
}

func TestOrderSubmittedDuringFillWaitsForNextBar(t *testing.T) {
	sim, rec, account := newTestSim(0)
	account.Sync(0, map[string]float64{"VTI": 10})

	// When the sell fills, the handler submits a buy that would cross the
	// same bar. It must rest until the next one.
	rec.submitOnFill = &execution.Order{
		ClientID: "c2", Instrument: "VTI", Side: market.SideBuy,
		Quantity: 5, LimitPrice: 100,
	}
	_ = sim.Submit(execution.Order{
		ClientID: "c1", Instrument: "VTI", Side: market.SideSell,
		Quantity: 10, LimitPrice: 100, ReduceOnly: true,
	})

	sim.OnBar(assetBar(1e9, "VTI", 100, 101, 99, 100))
	if len(rec.fills) != 1 {
		t.Fatalf("fills = %d, want only the sell", len(rec.fills))
	}
	if sim.RestingCount() != 1 {
		t.Fatalf("resting = %d, want deferred buy parked", sim.RestingCount())
	}

	sim.OnBar(assetBar(2e9, "VTI", 100, 101, 99, 100))
	if len(rec.fills) != 2 {
		t.Fatalf("fills = %d, want 2 after next bar", len(rec.fills))
	}
	if f := rec.fills[1]; f.Side != market.SideBuy || f.Timestamp != 2e9 {
		t.Fatalf("second fill = %+v", f)
	}
}
