package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emabot",
			Name:      "cycles_total",
			Help:      "Evaluation cycles by outcome",
		},
		[]string{"outcome"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "emabot",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one watchlist evaluation cycle",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emabot",
			Name:      "signals_total",
			Help:      "Signals emitted by the EMA crossover generator",
		},
		[]string{"symbol", "action", "reason"},
	)

	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emabot",
			Name:      "orders_total",
			Help:      "Order submissions by side and result",
		},
		[]string{"symbol", "side", "result"},
	)

	RiskRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emabot",
			Subsystem: "risk",
			Name:      "rejections_total",
			Help:      "Entries refused by the risk gate",
		},
		[]string{"reason"},
	)

	OpenPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "emabot",
			Name:      "open_positions",
			Help:      "Positions currently held in the ledger",
		},
	)

	DailyPnL = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "emabot",
			Subsystem: "risk",
			Name:      "daily_pnl",
			Help:      "Realized P&L accumulated since the last daily reset",
		},
	)

	SchedulerJobErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emabot",
			Subsystem: "scheduler",
			Name:      "job_errors_total",
			Help:      "Scheduled jobs that returned an error or panicked",
		},
		[]string{"job"},
	)
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv
}
