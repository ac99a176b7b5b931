package indicator

import (
	"fmt"
	"math"

	"pair-trader/internal/market"
)

// PivotEvent records one confirmed swing pivot: the extreme value and the
// bar on which the pivot itself formed (not the bar that confirmed it).
type PivotEvent struct {
	Value float64    `json:"value"`
	Bar   market.Bar `json:"bar"`
}

// SwingLevels detects confirmed swing highs and lows over a sliding window,
// matching Pine Script pivothigh/pivotlow semantics: a candidate bar is a
// pivot high when its high is the strict maximum of the surrounding
// left+right+1 bars, confirmed only once right further bars have closed.
//
// What: streaming pivot detection on one bar series.
// How:  keeps the last left+right+1 highs/lows; on every full window the
//       candidate sits left positions from the oldest end. Comparisons are
//       exact float equality so ties suppress a pivot the same way the
//       charting platform suppresses them.
type SwingLevels struct {
	left   int
	right  int
	window int

	highs []float64
	lows  []float64
	bars  []market.Bar

	highHistory []PivotEvent
	lowHistory  []PivotEvent
}

// NewSwingLevels builds a detector with the given left and right window arms.
// Both must be positive.
func NewSwingLevels(left, right int) (*SwingLevels, error) {
	if left <= 0 {
		return nil, fmt.Errorf("swing left size must be positive, got %d", left)
	}
	if right <= 0 {
		return nil, fmt.Errorf("swing right size must be positive, got %d", right)
	}
	w := left + right + 1
	return &SwingLevels{
		left:   left,
		right:  right,
		window: w,
		highs:  make([]float64, 0, w),
		lows:   make([]float64, 0, w),
		bars:   make([]market.Bar, 0, w),
	}, nil
}

// HandleBar feeds one completed bar and returns the pivot high and pivot low
// confirmed by that bar, or nil when none confirmed. Outputs are per call
// only: a pivot reported once is never reported again and never retracted.
// Panics if the bar carries a non-finite high or low.
func (s *SwingLevels) HandleBar(bar market.Bar) (pivotHigh, pivotLow *float64) {
	if !isFinite(bar.OHLC.H) || !isFinite(bar.OHLC.L) {
		panic(fmt.Sprintf("swing detector fed non-finite high/low at ts %d", bar.Timestamp))
	}

	s.highs = append(s.highs, bar.OHLC.H)
	s.lows = append(s.lows, bar.OHLC.L)
	s.bars = append(s.bars, bar)
	if len(s.bars) > s.window {
		s.highs = s.highs[len(s.highs)-s.window:]
		s.lows = s.lows[len(s.lows)-s.window:]
		s.bars = s.bars[len(s.bars)-s.window:]
	}
	if len(s.bars) < s.window {
		return nil, nil
	}

	// Candidate sits left positions from the oldest end, which is also
	// right+1 positions before the newest end.
	candidateBar := s.bars[len(s.bars)-s.right-1]

	candidateHigh := s.highs[s.left]
	if candidateHigh == maxOf(s.highs) && candidateHigh > minOf(s.highs) {
		v := candidateHigh
		pivotHigh = &v
		s.highHistory = append(s.highHistory, PivotEvent{Value: v, Bar: candidateBar})
	}

	candidateLow := s.lows[s.left]
	if candidateLow == minOf(s.lows) && candidateLow < maxOf(s.lows) {
		v := candidateLow
		pivotLow = &v
		s.lowHistory = append(s.lowHistory, PivotEvent{Value: v, Bar: candidateBar})
	}
	return pivotHigh, pivotLow
}

// Full reports whether the window has filled and pivots can confirm.
func (s *SwingLevels) Full() bool {
	return len(s.bars) >= s.window
}

// WindowSize returns left+right+1.
func (s *SwingLevels) WindowSize() int {
	return s.window
}

// HighHistory returns a copy of every confirmed pivot high, oldest first.
func (s *SwingLevels) HighHistory() []PivotEvent {
	out := make([]PivotEvent, len(s.highHistory))
	copy(out, s.highHistory)
	return out
}

// LowHistory returns a copy of every confirmed pivot low, oldest first.
func (s *SwingLevels) LowHistory() []PivotEvent {
	out := make([]PivotEvent, len(s.lowHistory))
	copy(out, s.lowHistory)
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
