package ledger

import (
	"sort"
	"sync"

	"pair-trader/internal/market"
)

// Row is one timestamp's consolidated view across all six bar streams:
// the most recent OHLC snapshot per stream, the swing pivots stamped by the
// two ratio streams, and the long-bar epoch counter.
type Row struct {
	Timestamp int64 `json:"timestamp"`

	AssetAShort *market.OHLC `json:"assetAShort,omitempty"`
	AssetBShort *market.OHLC `json:"assetBShort,omitempty"`
	AssetALong  *market.OHLC `json:"assetALong,omitempty"`
	AssetBLong  *market.OHLC `json:"assetBLong,omitempty"`
	RatioShort  *market.OHLC `json:"ratioShort,omitempty"`
	RatioLong   *market.OHLC `json:"ratioLong,omitempty"`

	SwingShortHigh *float64 `json:"swingShortHigh,omitempty"`
	SwingShortLow  *float64 `json:"swingShortLow,omitempty"`
	SwingLongHigh  *float64 `json:"swingLongHigh,omitempty"`
	SwingLongLow   *float64 `json:"swingLongLow,omitempty"`

	// LongEpoch increments whenever the ratio long snapshot changes between
	// a row and its predecessor, so consumers can tell which rows share the
	// same long bar.
	LongEpoch int64 `json:"longEpoch"`
}

// HasLongSwing reports whether the row carries a confirmed long-timeframe pivot.
func (r *Row) HasLongSwing() bool {
	return r.SwingLongHigh != nil || r.SwingLongLow != nil
}

func (r *Row) clone() Row {
	out := *r
	out.AssetAShort = cloneOHLC(r.AssetAShort)
	out.AssetBShort = cloneOHLC(r.AssetBShort)
	out.AssetALong = cloneOHLC(r.AssetALong)
	out.AssetBLong = cloneOHLC(r.AssetBLong)
	out.RatioShort = cloneOHLC(r.RatioShort)
	out.RatioLong = cloneOHLC(r.RatioLong)
	out.SwingShortHigh = cloneFloat(r.SwingShortHigh)
	out.SwingShortLow = cloneFloat(r.SwingShortLow)
	out.SwingLongHigh = cloneFloat(r.SwingLongHigh)
	out.SwingLongLow = cloneFloat(r.SwingLongLow)
	return out
}

// BarLedger maintains one Row per distinct bar timestamp, ordered by
// timestamp ascending. Several streams sharing a timestamp collapse into a
// single row that is updated in place as each of their bars arrives.
// All getters return deep copies so callers can never mutate ledger state.
type BarLedger struct {
	mu     sync.RWMutex
	latest map[market.Series]*market.OHLC
	rows   []Row
}

// NewBarLedger returns an empty ledger.
func NewBarLedger() *BarLedger {
	return &BarLedger{latest: make(map[market.Series]*market.OHLC)}
}

// Apply folds one bar into the ledger together with the swing detector
// outputs produced for that bar (nil for non-ratio streams). The bar's
// stream cache is refreshed, the row for its timestamp is created or updated
// with snapshots of all six caches, and the pivot outputs are stamped into
// the columns owned by the bar's own ratio stream. Swing columns owned by
// other streams are never touched by an update.
func (l *BarLedger) Apply(bar market.Bar, pivotHigh, pivotLow *float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o := bar.OHLC
	l.latest[bar.Series] = &o

	idx, found := l.find(bar.Timestamp)
	if found {
		row := &l.rows[idx]
		l.snapshotInto(row)
		stampSwings(row, bar.Series, pivotHigh, pivotLow)
		return
	}

	row := Row{Timestamp: bar.Timestamp}
	l.snapshotInto(&row)
	stampSwings(&row, bar.Series, pivotHigh, pivotLow)
	if idx > 0 {
		prev := &l.rows[idx-1]
		row.LongEpoch = prev.LongEpoch
		if !sameOHLC(prev.RatioLong, row.RatioLong) {
			row.LongEpoch++
		}
	}
	l.rows = append(l.rows, Row{})
	copy(l.rows[idx+1:], l.rows[idx:])
	l.rows[idx] = row
}

// Latest returns a copy of the newest row.
func (l *BarLedger) Latest() (Row, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.rows) == 0 {
		return Row{}, false
	}
	return l.rows[len(l.rows)-1].clone(), true
}

// PrevLongSwingRow returns a copy of the newest row that carries a confirmed
// long-timeframe pivot and whose timestamp differs from excludeTs. It scans
// backwards so the common case of a recent swing stays cheap.
func (l *BarLedger) PrevLongSwingRow(excludeTs int64) (Row, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.rows) - 1; i >= 0; i-- {
		r := &l.rows[i]
		if r.Timestamp == excludeTs {
			continue
		}
		if r.HasLongSwing() {
			return r.clone(), true
		}
	}
	return Row{}, false
}

// Rows returns a deep copy of every row, oldest first.
func (l *BarLedger) Rows() []Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Row, len(l.rows))
	for i := range l.rows {
		out[i] = l.rows[i].clone()
	}
	return out
}

// Len returns the number of rows.
func (l *BarLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows)
}

// find locates the row with the given timestamp. When absent it returns the
// index at which a new row would be inserted to keep rows sorted.
func (l *BarLedger) find(ts int64) (int, bool) {
	idx := sort.Search(len(l.rows), func(i int) bool {
		return l.rows[i].Timestamp >= ts
	})
	if idx < len(l.rows) && l.rows[idx].Timestamp == ts {
		return idx, true
	}
	return idx, false
}

func (l *BarLedger) snapshotInto(row *Row) {
	row.AssetAShort = cloneOHLC(l.latest[market.SeriesAssetAShort])
	row.AssetBShort = cloneOHLC(l.latest[market.SeriesAssetBShort])
	row.AssetALong = cloneOHLC(l.latest[market.SeriesAssetALong])
	row.AssetBLong = cloneOHLC(l.latest[market.SeriesAssetBLong])
	row.RatioShort = cloneOHLC(l.latest[market.SeriesRatioShort])
	row.RatioLong = cloneOHLC(l.latest[market.SeriesRatioLong])
}

func stampSwings(row *Row, series market.Series, pivotHigh, pivotLow *float64) {
	switch series {
	case market.SeriesRatioShort:
		row.SwingShortHigh = cloneFloat(pivotHigh)
		row.SwingShortLow = cloneFloat(pivotLow)
	case market.SeriesRatioLong:
		row.SwingLongHigh = cloneFloat(pivotHigh)
		row.SwingLongLow = cloneFloat(pivotLow)
	}
}

// sameOHLC compares two snapshots, counting presence changes as differences.
func sameOHLC(a, b *market.OHLC) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.O == b.O && a.H == b.H && a.L == b.L && a.C == b.C
}

func cloneOHLC(o *market.OHLC) *market.OHLC {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
