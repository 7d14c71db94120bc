// Package metrics exposes the engine's Prometheus metrics, served at
// /metrics in text exposition format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_signals_total",
			Help: "Signals by terminal outcome",
		},
		[]string{"outcome"}, // approved|rejected|executed
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders placed by role and execution mode",
		},
		[]string{"role", "mode"},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Currently open positions",
		},
	)

	dailyPnl = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_daily_realized_pnl",
			Help: "Realized P&L for the current trading day",
		},
	)

	exitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_exit_reasons_total",
			Help: "Position closures split by reason",
		},
		[]string{"reason"},
	)

	anomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_reconcile_anomalies_total",
			Help: "Positions closed through the anomaly path",
		},
	)
)

func init() {
	prometheus.MustRegister(
		signalsTotal,
		ordersTotal,
		openPositions,
		dailyPnl,
		exitReasons,
		anomaliesTotal,
	)
}

func IncSignal(outcome string) { signalsTotal.WithLabelValues(outcome).Inc() }

func IncOrder(role, mode string) { ordersTotal.WithLabelValues(role, mode).Inc() }

func SetOpenPositions(n int) { openPositions.Set(float64(n)) }

func SetDailyPnl(pnl float64) { dailyPnl.Set(pnl) }

func IncExitReason(reason string) { exitReasons.WithLabelValues(reason).Inc() }

func IncAnomaly() { anomaliesTotal.Inc() }

// Handler serves the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
