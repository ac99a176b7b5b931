package execution

import (
	"sort"

	"pair-trader/internal/market"
)

// InstrumentFills aggregates one instrument's activity within a single day.
type InstrumentFills struct {
	Quantity float64 `json:"quantity"`
	Notional float64 `json:"notional"`
	AvgPrice float64 `json:"avgPrice"`
	Position float64 `json:"position"`
}

// DailyFillRecord summarizes all fills on one UTC calendar date: traded
// quantity, notional and volume-weighted price per instrument, plus the
// account state after the day's last fill. EquityPct is the percentage
// change against the prior date's record, zero when there is none.
type DailyFillRecord struct {
	Date        string                      `json:"date"`
	Instruments map[string]*InstrumentFills `json:"instruments"`
	Cash        float64                     `json:"cash"`
	Equity      float64                     `json:"equity"`
	EquityPct   float64                     `json:"equityPct"`
}

func (r *DailyFillRecord) clone() DailyFillRecord {
	out := *r
	out.Instruments = make(map[string]*InstrumentFills, len(r.Instruments))
	for k, v := range r.Instruments {
		c := *v
		out.Instruments[k] = &c
	}
	return out
}

// recordFillLocked folds one fill into its date's record. Dates derive from
// the fill timestamp's UTC calendar date, so a session crossing midnight
// naturally opens a new record.
func (s *Sequencer) recordFillLocked(f Fill) {
	date := market.UTCDate(f.Timestamp)
	rec, ok := s.days[date]
	if !ok {
		rec = &DailyFillRecord{
			Date:        date,
			Instruments: make(map[string]*InstrumentFills),
		}
		s.days[date] = rec
		s.dates = append(s.dates, date)
		sort.Strings(s.dates)
	}

	inst, ok := rec.Instruments[f.Instrument]
	if !ok {
		inst = &InstrumentFills{}
		rec.Instruments[f.Instrument] = inst
	}
	inst.Quantity += f.Quantity
	inst.Notional += f.Quantity * f.Price
	if inst.Quantity != 0 {
		inst.AvgPrice = inst.Notional / inst.Quantity
	}
	inst.Position = s.account.Position(f.Instrument)

	rec.Cash = s.account.Cash()
	rec.Equity = s.account.TotalEquity()
	rec.EquityPct = 0
	if prev := s.prevRecordLocked(date); prev != nil && prev.Equity != 0 {
		rec.EquityPct = (rec.Equity - prev.Equity) / prev.Equity * 100
	}
}

// prevRecordLocked finds the newest record strictly before the given date.
// ISO dates compare lexicographically, so string order is date order.
func (s *Sequencer) prevRecordLocked(date string) *DailyFillRecord {
	for i := len(s.dates) - 1; i >= 0; i-- {
		if s.dates[i] < date {
			return s.days[s.dates[i]]
		}
	}
	return nil
}

// DailyRecords returns deep copies of every daily record, oldest date first.
func (s *Sequencer) DailyRecords() []DailyFillRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DailyFillRecord, 0, len(s.dates))
	for _, d := range s.dates {
		out = append(out, s.days[d].clone())
	}
	return out
}
