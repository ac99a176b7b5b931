package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pair-trader/internal/market"
	"pair-trader/internal/portfolio"
)

type scriptedSubmitter struct {
	orders  []Order
	failAll bool
}

func (s *scriptedSubmitter) Submit(o Order) error {
	if s.failAll {
		return errors.New("transport down")
	}
	s.orders = append(s.orders, o)
	return nil
}

func nsAt(date string, hour int) int64 {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return t.Add(time.Duration(hour) * time.Hour).UnixNano()
}

func TestSellSubmitsFirstAndBuyDefers(t *testing.T) {
	sub := &scriptedSubmitter{}
	account := portfolio.NewAccount(100_000)
	seq := NewSequencer(sub, account, nil)

	seq.SubmitCycle(
		[]Intent{{Instrument: "GLD", Side: market.SideSell, Quantity: 1800, LimitPrice: 50, ReduceOnly: true}},
		[]Intent{{Instrument: "VTI", Side: market.SideBuy, Quantity: 900, LimitPrice: 100}},
	)

	require.Len(t, sub.orders, 1)
	sell := sub.orders[0]
	assert.Equal(t, market.SideSell, sell.Side)
	assert.Equal(t, "GLD", sell.Instrument)
	assert.Equal(t, 1800.0, sell.Quantity)
	assert.Equal(t, TifGTC, sell.TimeInForce)
	assert.True(t, sell.ReduceOnly)
	assert.NotEmpty(t, sell.ClientID)

	assert.Equal(t, StateAwaitingSellFill, seq.State())
	pending := seq.Pending()
	require.NotNil(t, pending)
	assert.Equal(t, "VTI", pending.Instrument)
	assert.Equal(t, 900.0, pending.Quantity)
	assert.Equal(t, 100.0, pending.LimitPrice)
}

func TestSellFillReleasesBuyAtOriginalTerms(t *testing.T) {
	sub := &scriptedSubmitter{}
	account := portfolio.NewAccount(100_000)
	seq := NewSequencer(sub, account, nil)

	seq.SubmitCycle(
		[]Intent{{Instrument: "GLD", Side: market.SideSell, Quantity: 1800, LimitPrice: 50, ReduceOnly: true}},
		[]Intent{{Instrument: "VTI", Side: market.SideBuy, Quantity: 900, LimitPrice: 100}},
	)
	require.Len(t, sub.orders, 1)

	account.ApplyFill("GLD", market.SideSell, 1800, 50)
	seq.HandleFill(Fill{Instrument: "GLD", Side: market.SideSell, Quantity: 1800, Price: 50, Timestamp: nsAt("2008-01-02", 15)})

	require.Len(t, sub.orders, 2)
	buy := sub.orders[1]
	assert.Equal(t, market.SideBuy, buy.Side)
	assert.Equal(t, "VTI", buy.Instrument)
	assert.Equal(t, 900.0, buy.Quantity)
	assert.Equal(t, 100.0, buy.LimitPrice)
	assert.Equal(t, StateIdle, seq.State())
	assert.Nil(t, seq.Pending())
}

func TestBuyOnlyCycleSubmitsImmediately(t *testing.T) {
	sub := &scriptedSubmitter{}
	seq := NewSequencer(sub, portfolio.NewAccount(50_000), nil)

	seq.SubmitCycle(nil, []Intent{
		{Instrument: "GLD", Side: market.SideBuy, Quantity: 400, LimitPrice: 50},
		{Instrument: "VTI", Side: market.SideBuy, Quantity: 800, LimitPrice: 100},
	})

	require.Len(t, sub.orders, 2)
	assert.Equal(t, StateIdle, seq.State())
	assert.Nil(t, seq.Pending())
}

func TestFailedSellSubmitCountsAsNoSell(t *testing.T) {
	sub := &scriptedSubmitter{failAll: true}
	seq := NewSequencer(sub, portfolio.NewAccount(50_000), nil)

	seq.SubmitCycle(
		[]Intent{{Instrument: "GLD", Side: market.SideSell, Quantity: 10, LimitPrice: 50, ReduceOnly: true}},
		[]Intent{{Instrument: "VTI", Side: market.SideBuy, Quantity: 5, LimitPrice: 100}},
	)

	// Nothing reached the venue, so nothing defers either.
	assert.Empty(t, sub.orders)
	assert.Equal(t, StateIdle, seq.State())
	assert.Nil(t, seq.Pending())
}

func TestNewCycleOverwritesPendingBuy(t *testing.T) {
	sub := &scriptedSubmitter{}
	account := portfolio.NewAccount(100_000)
	seq := NewSequencer(sub, account, nil)

	seq.SubmitCycle(
		[]Intent{{Instrument: "GLD", Side: market.SideSell, Quantity: 100, LimitPrice: 50, ReduceOnly: true}},
		[]Intent{{Instrument: "VTI", Side: market.SideBuy, Quantity: 100, LimitPrice: 100}},
	)
	seq.SubmitCycle(
		[]Intent{{Instrument: "GLD", Side: market.SideSell, Quantity: 50, LimitPrice: 52, ReduceOnly: true}},
		[]Intent{{Instrument: "VTI", Side: market.SideBuy, Quantity: 200, LimitPrice: 101}},
	)

	pending := seq.Pending()
	require.NotNil(t, pending)
	assert.Equal(t, 200.0, pending.Quantity)

	account.ApplyFill("GLD", market.SideSell, 100, 50)
	seq.HandleFill(Fill{Instrument: "GLD", Side: market.SideSell, Quantity: 100, Price: 50, Timestamp: nsAt("2008-01-02", 15)})

	// Two sells plus exactly one released buy, the overwriting one.
	require.Len(t, sub.orders, 3)
	assert.Equal(t, 200.0, sub.orders[2].Quantity)
	assert.Nil(t, seq.Pending())
}

func TestRejectAndDenyLeavePendingParked(t *testing.T) {
	sub := &scriptedSubmitter{}
	account := portfolio.NewAccount(100_000)
	seq := NewSequencer(sub, account, nil)

	seq.SubmitCycle(
		[]Intent{{Instrument: "GLD", Side: market.SideSell, Quantity: 100, LimitPrice: 50, ReduceOnly: true}},
		[]Intent{{Instrument: "VTI", Side: market.SideBuy, Quantity: 100, LimitPrice: 100}},
	)

	seq.HandleReject(Reject{ClientID: "x", Instrument: "GLD", Reason: "reduce-only quantity exceeds position"})
	seq.HandleDeny(Deny{ClientID: "y", Instrument: "SPY", Reason: "unknown instrument"})

	assert.Equal(t, StateAwaitingSellFill, seq.State())
	require.NotNil(t, seq.Pending())

	// A later sell fill still releases the parked buy.
	account.ApplyFill("GLD", market.SideSell, 100, 50)
	seq.HandleFill(Fill{Instrument: "GLD", Side: market.SideSell, Quantity: 100, Price: 50, Timestamp: nsAt("2008-01-03", 15)})
	require.Len(t, sub.orders, 2)
	assert.Nil(t, seq.Pending())
}

func TestSellOnlyCycleReturnsToIdleOnFill(t *testing.T) {
	sub := &scriptedSubmitter{}
	account := portfolio.NewAccount(0)
	account.Sync(0, map[string]float64{"GLD": 10})
	seq := NewSequencer(sub, account, nil)

	seq.SubmitCycle([]Intent{{Instrument: "GLD", Side: market.SideSell, Quantity: 10, LimitPrice: 50, ReduceOnly: true}}, nil)
	assert.Equal(t, StateAwaitingSellFill, seq.State())
	assert.Nil(t, seq.Pending())

	account.ApplyFill("GLD", market.SideSell, 10, 50)
	seq.HandleFill(Fill{Instrument: "GLD", Side: market.SideSell, Quantity: 10, Price: 50, Timestamp: nsAt("2008-01-02", 15)})
	assert.Equal(t, StateIdle, seq.State())
	require.Len(t, sub.orders, 1)
}

func TestDailyRecordsAggregatePerUTCDate(t *testing.T) {
	sub := &scriptedSubmitter{}
	account := portfolio.NewAccount(100_000)
	account.SetMark("VTI", 100)
	account.SetMark("GLD", 50)
	seq := NewSequencer(sub, account, nil)

	apply := func(date string, hour int, instrument string, side market.Side, qty, price float64) {
		account.ApplyFill(instrument, side, qty, price)
		seq.HandleFill(Fill{Instrument: instrument, Side: side, Quantity: qty, Price: price, Timestamp: nsAt(date, hour)})
	}

	// Day one: three fills across both instruments.
	apply("2008-01-02", 14, "VTI", market.SideBuy, 100, 100)
	apply("2008-01-02", 15, "GLD", market.SideBuy, 200, 50)
	apply("2008-01-02", 16, "VTI", market.SideBuy, 50, 102)

	records := seq.DailyRecords()
	require.Len(t, records, 1)
	day1 := records[0]
	assert.Equal(t, "2008-01-02", day1.Date)

	vti := day1.Instruments["VTI"]
	require.NotNil(t, vti)
	assert.Equal(t, 150.0, vti.Quantity)
	assert.Equal(t, 15_100.0, vti.Notional)
	assert.InDelta(t, 100.6667, vti.AvgPrice, 0.0001)
	assert.Equal(t, 150.0, vti.Position)

	gld := day1.Instruments["GLD"]
	require.NotNil(t, gld)
	assert.Equal(t, 200.0, gld.Quantity)
	assert.Equal(t, 50.0, gld.AvgPrice)

	// Cash: 100000 - 10000 - 10000 - 5100. Equity marks VTI at 100.
	assert.Equal(t, 74_900.0, day1.Cash)
	assert.Equal(t, 99_900.0, day1.Equity)
	assert.Equal(t, 0.0, day1.EquityPct, "first record has no prior date")

	// Day two: one sell. Equity recovers against day one's close.
	apply("2008-01-03", 15, "VTI", market.SideSell, 10, 110)

	records = seq.DailyRecords()
	require.Len(t, records, 2)
	day2 := records[1]
	assert.Equal(t, "2008-01-03", day2.Date)
	assert.Equal(t, 10.0, day2.Instruments["VTI"].Quantity)
	assert.Equal(t, 140.0, day2.Instruments["VTI"].Position)
	assert.Equal(t, 76_000.0, day2.Cash)
	assert.Equal(t, 100_000.0, day2.Equity)
	assert.InDelta(t, 0.1001, day2.EquityPct, 0.0001)

	// Day one stays untouched by later activity.
	assert.Equal(t, 99_900.0, records[0].Equity)
}

func TestEquityPctZeroWhenPriorEquityZero(t *testing.T) {
	sub := &scriptedSubmitter{}
	account := portfolio.NewAccount(0)
	seq := NewSequencer(sub, account, nil)

	// No marks, zero cash: equity is zero on day one.
	account.ApplyFill("VTI", market.SideBuy, 5, 0)
	seq.HandleFill(Fill{Instrument: "VTI", Side: market.SideBuy, Quantity: 5, Price: 0, Timestamp: nsAt("2008-01-02", 15)})

	account.SetMark("VTI", 10)
	account.ApplyFill("VTI", market.SideBuy, 5, 0)
	seq.HandleFill(Fill{Instrument: "VTI", Side: market.SideBuy, Quantity: 5, Price: 0, Timestamp: nsAt("2008-01-03", 15)})

	records := seq.DailyRecords()
	require.Len(t, records, 2)
	assert.Equal(t, 0.0, records[0].Equity)
	assert.Equal(t, 0.0, records[1].EquityPct, "zero prior equity must not divide")
}
