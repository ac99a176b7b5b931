package market

import (
	"fmt"
	"time"
)

// Series identifies which of the six subscribed bar streams a bar belongs to.
// The constants are listed in delivery-priority order: when several streams
// share a timestamp, asset bars are replayed before ratio bars and the ratio
// long bar comes last, so a ratio evaluation always sees fully updated prices.
type Series string

const (
	SeriesAssetAShort Series = "A_SHORT"
	SeriesAssetBShort Series = "B_SHORT"
	SeriesAssetALong  Series = "A_LONG"
	SeriesAssetBLong  Series = "B_LONG"
	SeriesRatioShort  Series = "RATIO_SHORT"
	SeriesRatioLong   Series = "RATIO_LONG"
)

// AllSeries returns the six streams in delivery-priority order.
func AllSeries() []Series {
	return []Series{
		SeriesAssetAShort, SeriesAssetBShort,
		SeriesAssetALong, SeriesAssetBLong,
		SeriesRatioShort, SeriesRatioLong,
	}
}

// ParseSeries converts a wire code ("A_SHORT", "RATIO_LONG", ...) to a Series.
func ParseSeries(code string) (Series, error) {
	s := Series(code)
	switch s {
	case SeriesAssetAShort, SeriesAssetBShort, SeriesAssetALong,
		SeriesAssetBLong, SeriesRatioShort, SeriesRatioLong:
		return s, nil
	}
	return "", fmt.Errorf("unknown bar series %q", code)
}

// Ratio reports whether the series is one of the two synthetic ratio streams.
func (s Series) Ratio() bool {
	return s == SeriesRatioShort || s == SeriesRatioLong
}

// Long reports whether the series is on the long timeframe.
func (s Series) Long() bool {
	return s == SeriesAssetALong || s == SeriesAssetBLong || s == SeriesRatioLong
}

// Priority returns the replay rank of the series within a shared timestamp.
func (s Series) Priority() int {
	switch s {
	case SeriesAssetAShort:
		return 0
	case SeriesAssetBShort:
		return 1
	case SeriesAssetALong:
		return 2
	case SeriesAssetBLong:
		return 3
	case SeriesRatioShort:
		return 4
	case SeriesRatioLong:
		return 5
	}
	return 6
}

// Side is the direction of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OHLC holds one bar's open, high, low and close.
type OHLC struct {
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
}

// Bar is a single completed bar on one of the six streams.
// Timestamp is nanoseconds since the Unix epoch, UTC.
type Bar struct {
	Timestamp  int64   `json:"timestamp"`
	Instrument string  `json:"instrument"`
	Series     Series  `json:"series"`
	OHLC       OHLC    `json:"ohlc"`
	Volume     float64 `json:"volume"`
}

// UTCDate converts a nanosecond Unix timestamp to its UTC calendar date
// formatted as YYYY-MM-DD.
func UTCDate(tsNs int64) string {
	return time.Unix(0, tsNs).UTC().Format("2006-01-02")
}
