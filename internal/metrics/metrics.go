package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pair_trader_bars_total",
			Help: "Bars routed into the engine, labelled by series",
		},
		[]string{"series"},
	)

	PivotsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pair_trader_pivots_total",
			Help: "Swing pivots confirmed, labelled by timeframe and kind",
		},
		[]string{"timeframe", "kind"},
	)

	RebalanceCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pair_trader_rebalance_cycles_total",
			Help: "Rebalance cycles fired, labelled by trigger",
		},
		[]string{"trigger"},
	)

	OrdersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pair_trader_orders_total",
			Help: "Orders handed to the venue, labelled by side",
		},
		[]string{"side"},
	)

	FillsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pair_trader_fills_total",
			Help: "Fill events applied, labelled by instrument and side",
		},
		[]string{"instrument", "side"},
	)

	ExecRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pair_trader_exec_rejections_total",
			Help: "Order rejections and denials, labelled by kind",
		},
		[]string{"kind"},
	)

	AccountEquity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pair_trader_account_equity",
			Help: "Latest total account equity including cash",
		},
	)
)

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
