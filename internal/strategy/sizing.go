package strategy

import (
	"github.com/shopspring/decimal"

	"pair-trader/internal/execution"
	"pair-trader/internal/market"
)

// buildOrders computes the order legs that move the account to an
// h : (1-h) value split between the favored (high) and unfavored (low)
// instrument. Target quantities floor to whole units. Both legs limit at
// the instrument's current mark. Targets are computed in decimal so a
// split like 0.9 of a round equity floors to the exact unit count instead
// of one under it. The same inputs always produce the same legs, so
// re-running a cycle at unchanged state is a no-op at the venue.
func buildOrders(high, low string, total, h, priceHigh, priceLow, qtyHigh, qtyLow float64) (sells, buys []execution.Intent) {
	dTotal := decimal.NewFromFloat(total)
	dSplit := decimal.NewFromFloat(h)

	targetValueLow := dTotal.Mul(decimal.NewFromInt(1).Sub(dSplit))
	targetQtyLow, _ := targetValueLow.Div(decimal.NewFromFloat(priceLow)).Floor().Float64()
	deltaLow := qtyLow - targetQtyLow

	targetValueHigh := dTotal.Sub(targetValueLow)
	targetQtyHigh, _ := targetValueHigh.Div(decimal.NewFromFloat(priceHigh)).Floor().Float64()
	deltaHigh := targetQtyHigh - qtyHigh

	if deltaLow > 0 {
		sells = append(sells, execution.Intent{
			Instrument: low,
			Side:       market.SideSell,
			Quantity:   deltaLow,
			LimitPrice: priceLow,
			ReduceOnly: true,
		})
	} else if deltaLow < 0 {
		buys = append(buys, execution.Intent{
			Instrument: low,
			Side:       market.SideBuy,
			Quantity:   -deltaLow,
			LimitPrice: priceLow,
		})
	}

	if deltaHigh < 0 {
		sells = append(sells, execution.Intent{
			Instrument: high,
			Side:       market.SideSell,
			Quantity:   -deltaHigh,
			LimitPrice: priceHigh,
			ReduceOnly: true,
		})
	} else if deltaHigh > 0 {
		buys = append(buys, execution.Intent{
			Instrument: high,
			Side:       market.SideBuy,
			Quantity:   deltaHigh,
			LimitPrice: priceHigh,
		})
	}
	return sells, buys
}

// classifyAction labels a cycle as a side flip or a same-side adjustment.
// The label is informational only; sizing is identical either way. The low
// leg currently holding more than its target share (beyond the threshold)
// means the favored side changed.
func classifyAction(qtyLow, priceLow, total, h, threshold float64) string {
	if total <= 0 {
		return "adjust"
	}
	ratioLow := decimal.NewFromFloat(qtyLow).
		Mul(decimal.NewFromFloat(priceLow)).
		Div(decimal.NewFromFloat(total))
	band := decimal.NewFromFloat(h).Sub(decimal.NewFromFloat(threshold))
	if ratioLow.GreaterThan(band) {
		return "flip"
	}
	return "adjust"
}
