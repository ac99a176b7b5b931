package portfolio

import (
	"sync"

	"pair-trader/internal/market"
)

// Account tracks available cash, per-instrument positions and the latest
// mark price per instrument. All methods are safe for concurrent use;
// Snapshot returns copies so readers never observe partial updates.
type Account struct {
	mu        sync.RWMutex
	cash      float64
	positions map[string]float64
	marks     map[string]float64
}

// Snapshot is a point-in-time copy of the account.
type Snapshot struct {
	Cash      float64            `json:"cash"`
	Positions map[string]float64 `json:"positions"`
	Marks     map[string]float64 `json:"marks"`
	Invested  float64            `json:"invested"`
	Equity    float64            `json:"equity"`
}

// NewAccount returns an account holding only the given starting cash.
func NewAccount(startingCash float64) *Account {
	return &Account{
		cash:      startingCash,
		positions: make(map[string]float64),
		marks:     make(map[string]float64),
	}
}

// Cash returns the available cash balance.
func (a *Account) Cash() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash
}

// Position returns the held quantity for an instrument, zero when flat.
func (a *Account) Position(instrument string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.positions[instrument]
}

// MarkPrice returns the latest mark for an instrument and whether one exists.
func (a *Account) MarkPrice(instrument string) (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.marks[instrument]
	return p, ok
}

// SetMark records the latest mark price for an instrument.
func (a *Account) SetMark(instrument string, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.marks[instrument] = price
}

// ApplyFill adjusts cash and position for a fill. Buys consume cash,
// sells release it.
func (a *Account) ApplyFill(instrument string, side market.Side, qty, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	notional := qty * price
	if side == market.SideBuy {
		a.cash -= notional
		a.positions[instrument] += qty
	} else {
		a.cash += notional
		a.positions[instrument] -= qty
	}
}

// Sync replaces cash and positions wholesale, used when an external account
// snapshot arrives. Marks are kept since they come from the bar streams.
func (a *Account) Sync(cash float64, positions map[string]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = cash
	a.positions = make(map[string]float64, len(positions))
	for k, v := range positions {
		a.positions[k] = v
	}
}

// InvestedValue returns the mark value of all open positions, excluding
// cash. Positions without a mark contribute nothing.
func (a *Account) InvestedValue() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.investedLocked()
}

// TotalEquity returns cash plus the mark value of all open positions.
func (a *Account) TotalEquity() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash + a.investedLocked()
}

// Snapshot returns a deep copy of the account state.
func (a *Account) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := Snapshot{
		Cash:      a.cash,
		Positions: make(map[string]float64, len(a.positions)),
		Marks:     make(map[string]float64, len(a.marks)),
		Invested:  a.investedLocked(),
	}
	for k, v := range a.positions {
		s.Positions[k] = v
	}
	for k, v := range a.marks {
		s.Marks[k] = v
	}
	s.Equity = s.Cash + s.Invested
	return s
}

func (a *Account) investedLocked() float64 {
	total := 0.0
	for instrument, qty := range a.positions {
		if qty == 0 {
			continue
		}
		if mark, ok := a.marks[instrument]; ok {
			total += qty * mark
		}
	}
	return total
}
