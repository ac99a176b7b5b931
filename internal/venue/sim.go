package venue

import (
	"github.com/rs/zerolog/log"

	"pair-trader/internal/execution"
	"pair-trader/internal/market"
	"pair-trader/internal/portfolio"
)

// ExecHandler receives execution events from the venue. The order
// sequencer satisfies this.
type ExecHandler interface {
	HandleFill(f execution.Fill)
	HandleReject(r execution.Reject)
	HandleDeny(d execution.Deny)
}

// Sim is an in-process execution venue for backtests.
// What: accepts GTC limit orders and fills them against replayed bars.
// How: an order rests until a bar's range crosses its limit; buys fill when
// the bar low trades through the limit, sells when the bar high does, both
// at the limit price. Fills settle into the account before the handler is
// told, so the handler always observes post-fill balances. After matching,
// the bar close becomes the instrument's mark price.
//
// Sim is driven by a single replay goroutine and is not safe for
// concurrent use.
type Sim struct {
	account     *portfolio.Account
	instruments map[string]bool
	handler     ExecHandler
	resting     []execution.Order
}

// NewSim builds a venue for the given tradeable instruments. The handler
// is attached separately since venue and sequencer reference each other.
func NewSim(account *portfolio.Account, instruments []string) *Sim {
	m := make(map[string]bool, len(instruments))
	for _, in := range instruments {
		m[in] = true
	}
	return &Sim{account: account, instruments: m}
}

// SetHandler attaches the receiver for fills, rejects and denials.
func (s *Sim) SetHandler(h ExecHandler) { s.handler = h }

// RestingCount returns the number of parked orders.
func (s *Sim) RestingCount() int { return len(s.resting) }

// Submit validates an order and parks it in the book. Business refusals
// surface as Deny or Reject events; the returned error is always nil since
// there is no transport to fail.
func (s *Sim) Submit(o execution.Order) error {
	if !s.instruments[o.Instrument] {
		s.handler.HandleDeny(execution.Deny{
			ClientID:   o.ClientID,
			Instrument: o.Instrument,
			Reason:     "unknown instrument",
		})
		return nil
	}
	if o.Quantity <= 0 {
		s.handler.HandleDeny(execution.Deny{
			ClientID:   o.ClientID,
			Instrument: o.Instrument,
			Reason:     "non-positive quantity",
		})
		return nil
	}
	if o.LimitPrice <= 0 {
		s.handler.HandleDeny(execution.Deny{
			ClientID:   o.ClientID,
			Instrument: o.Instrument,
			Reason:     "non-positive limit price",
		})
		return nil
	}
	if o.ReduceOnly && o.Side == market.SideSell && o.Quantity > s.account.Position(o.Instrument) {
		s.handler.HandleReject(execution.Reject{
			ClientID:   o.ClientID,
			Instrument: o.Instrument,
			Reason:     "reduce-only quantity exceeds position",
		})
		return nil
	}
	s.resting = append(s.resting, o)
	log.Debug().
		Str("clientId", o.ClientID).
		Str("instrument", o.Instrument).
		Str("side", string(o.Side)).
		Float64("limit", o.LimitPrice).
		Msg("order resting")
	return nil
}

// OnBar matches resting orders against one asset bar, then refreshes the
// instrument's mark from the bar close. Orders submitted by handler
// callbacks during matching rest until the next bar.
func (s *Sim) OnBar(bar market.Bar) {
	if !s.instruments[bar.Instrument] {
		return
	}

	parked := s.resting
	s.resting = nil
	var still []execution.Order
	for _, o := range parked {
		if o.Instrument != bar.Instrument || !crosses(o, bar) {
			still = append(still, o)
			continue
		}
		s.fill(o, bar)
	}
	s.resting = append(still, s.resting...)

	s.account.SetMark(bar.Instrument, bar.OHLC.C)
}

func (s *Sim) fill(o execution.Order, bar market.Bar) {
	if o.Side == market.SideBuy {
		if cost := o.Quantity * o.LimitPrice; cost > s.account.Cash() {
			s.handler.HandleReject(execution.Reject{
				ClientID:   o.ClientID,
				Instrument: o.Instrument,
				Reason:     "insufficient funds",
			})
			return
		}
	} else if o.ReduceOnly && o.Quantity > s.account.Position(o.Instrument) {
		// The position shrank while the order rested.
		s.handler.HandleReject(execution.Reject{
			ClientID:   o.ClientID,
			Instrument: o.Instrument,
			Reason:     "reduce-only quantity exceeds position",
		})
		return
	}

	s.account.ApplyFill(o.Instrument, o.Side, o.Quantity, o.LimitPrice)
	s.handler.HandleFill(execution.Fill{
		Instrument: o.Instrument,
		Side:       o.Side,
		Quantity:   o.Quantity,
		Price:      o.LimitPrice,
		Timestamp:  bar.Timestamp,
	})
}

func crosses(o execution.Order, bar market.Bar) bool {
	if o.Side == market.SideBuy {
		return bar.OHLC.L <= o.LimitPrice
	}
	return bar.OHLC.H >= o.LimitPrice
}
