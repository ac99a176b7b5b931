package execution

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pair-trader/internal/db"
	"pair-trader/internal/market"
	"pair-trader/internal/metrics"
	"pair-trader/internal/portfolio"
)

// State is the sequencer's order-cycle state.
type State string

const (
	StateIdle             State = "IDLE"
	StateAwaitingSellFill State = "AWAITING_SELL_FILL"
)

// PendingBuy is the single deferred buy leg of a rebalance cycle, held back
// until a sell fill frees the cash to pay for it.
type PendingBuy struct {
	Instrument string  `json:"instrument"`
	Quantity   float64 `json:"quantity"`
	LimitPrice float64 `json:"limitPrice"`
}

// Sequencer turns rebalance intents into venue orders, enforcing that sell
// legs go out first and the buy leg waits for a sell fill. It also folds
// every fill into per-day aggregates.
//
// What: order sequencing and fill accounting for rebalance cycles.
// How: sells submit immediately; when a cycle carries both legs the buy is
// parked in a one-slot mailbox and released by the first sell fill. Rejects
// and denials are logged but never clear the mailbox, so a stuck buy leg
// surfaces in the logs rather than silently vanishing.
type Sequencer struct {
	mu      sync.RWMutex
	sub     Submitter
	account *portfolio.Account
	journal *db.Journal

	state   State
	pending *PendingBuy

	days  map[string]*DailyFillRecord
	dates []string
}

// NewSequencer wires a sequencer to a venue and the account it reports
// against. journal may be nil.
func NewSequencer(sub Submitter, account *portfolio.Account, journal *db.Journal) *Sequencer {
	return &Sequencer{
		sub:     sub,
		account: account,
		journal: journal,
		state:   StateIdle,
		days:    make(map[string]*DailyFillRecord),
	}
}

// SubmitCycle submits the legs of one rebalance cycle. All sells go out
// immediately. If at least one sell was submitted, any buy leg is deferred
// as the pending instruction; otherwise buys submit immediately. A cycle
// that arrives while a previous buy is still pending overwrites the slot,
// which is logged loudly since the overwritten leg is lost.
func (s *Sequencer) SubmitCycle(sells, buys []Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	submitted := 0
	for _, in := range sells {
		if s.submitLocked(in) {
			submitted++
		}
	}

	if submitted > 0 {
		s.state = StateAwaitingSellFill
		for _, in := range buys {
			if s.pending != nil {
				log.Warn().
					Str("instrument", s.pending.Instrument).
					Float64("quantity", s.pending.Quantity).
					Msg("overwriting pending buy that never released")
			}
			s.pending = &PendingBuy{
				Instrument: in.Instrument,
				Quantity:   in.Quantity,
				LimitPrice: in.LimitPrice,
			}
			log.Info().
				Str("instrument", in.Instrument).
				Float64("quantity", in.Quantity).
				Float64("limit", in.LimitPrice).
				Msg("buy leg deferred until a sell fills")
		}
		return
	}

	for _, in := range buys {
		s.submitLocked(in)
	}
}

// HandleFill applies one fill event: records it into the daily aggregates
// and, on any sell fill, releases the pending buy instruction unchanged.
// The account must already reflect the fill when this is called.
func (s *Sequencer) HandleFill(f Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.FillsApplied.WithLabelValues(f.Instrument, string(f.Side)).Inc()
	metrics.AccountEquity.Set(s.account.TotalEquity())
	if s.journal != nil {
		s.journal.LogFill(f.Timestamp, f.Instrument, string(f.Side), f.Quantity, f.Price)
	}
	s.recordFillLocked(f)

	log.Info().
		Str("instrument", f.Instrument).
		Str("side", string(f.Side)).
		Float64("quantity", f.Quantity).
		Float64("price", f.Price).
		Msg("fill applied")

	if f.Side != market.SideSell {
		return
	}
	if s.pending != nil {
		pb := *s.pending
		s.pending = nil
		s.state = StateIdle
		log.Info().
			Str("instrument", pb.Instrument).
			Float64("quantity", pb.Quantity).
			Msg("sell filled, releasing deferred buy")
		s.submitLocked(Intent{
			Instrument: pb.Instrument,
			Side:       market.SideBuy,
			Quantity:   pb.Quantity,
			LimitPrice: pb.LimitPrice,
		})
		return
	}
	s.state = StateIdle
}

// HandleReject logs a venue rejection. The pending buy stays parked: a
// rejected sell means the cycle needs operator attention, not a silent
// cancel of the other leg.
func (s *Sequencer) HandleReject(r Reject) {
	metrics.ExecRejections.WithLabelValues("reject").Inc()
	log.Error().
		Str("clientId", r.ClientID).
		Str("instrument", r.Instrument).
		Str("reason", r.Reason).
		Msg("order rejected")
}

// HandleDeny logs a venue denial. As with rejects, no state changes.
func (s *Sequencer) HandleDeny(d Deny) {
	metrics.ExecRejections.WithLabelValues("deny").Inc()
	log.Error().
		Str("clientId", d.ClientID).
		Str("instrument", d.Instrument).
		Str("reason", d.Reason).
		Msg("order denied")
}

// State returns the current cycle state.
func (s *Sequencer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Pending returns a copy of the deferred buy instruction, nil when empty.
func (s *Sequencer) Pending() *PendingBuy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return nil
	}
	pb := *s.pending
	return &pb
}

func (s *Sequencer) submitLocked(in Intent) bool {
	o := Order{
		ClientID:    uuid.NewString(),
		Instrument:  in.Instrument,
		Side:        in.Side,
		Quantity:    in.Quantity,
		LimitPrice:  in.LimitPrice,
		TimeInForce: TifGTC,
		ReduceOnly:  in.ReduceOnly,
	}
	if err := s.sub.Submit(o); err != nil {
		log.Error().Err(err).
			Str("instrument", o.Instrument).
			Str("side", string(o.Side)).
			Float64("quantity", o.Quantity).
			Msg("order submit failed")
		return false
	}
	metrics.OrdersSubmitted.WithLabelValues(string(o.Side)).Inc()
	if s.journal != nil {
		s.journal.LogOrder(o.ClientID, o.Instrument, string(o.Side), o.Quantity, o.LimitPrice, o.TimeInForce, o.ReduceOnly)
	}
	log.Info().
		Str("clientId", o.ClientID).
		Str("instrument", o.Instrument).
		Str("side", string(o.Side)).
		Float64("quantity", o.Quantity).
		Float64("limit", o.LimitPrice).
		Bool("reduceOnly", o.ReduceOnly).
		Msg("order submitted")
	return true
}
