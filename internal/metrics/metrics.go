// Package metrics exposes the prometheus collectors and the /metrics listener.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collectors groups every counter the services update. A nil *Collectors is
// valid and records nothing, which keeps unit tests free of registries.
type Collectors struct {
	BetsPlaced           *prometheus.CounterVec   // labels: kind, source
	StakeVolume          *prometheus.CounterVec   // labels: kind, source
	Settlements          *prometheus.CounterVec   // labels: kind, result
	PayoutVolume         *prometheus.CounterVec   // labels: kind, tx_type
	LedgerInconsistency  *prometheus.CounterVec   // labels: kind
	SettlementDuration   *prometheus.HistogramVec // labels: kind
	WSConnections        prometheus.Gauge
	EventPublishFailures *prometheus.CounterVec // labels: sink
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		BetsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_bets_placed_total", Help: "bets accepted",
		}, []string{"kind", "source"}),
		StakeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_stake_volume_total", Help: "sum of accepted stakes",
		}, []string{"kind", "source"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_settlements_total", Help: "settlement runs by result",
		}, []string{"kind", "result"}),
		PayoutVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_payout_volume_total", Help: "credited payouts and refunds",
		}, []string{"kind", "tx_type"}),
		LedgerInconsistency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_ledger_inconsistency_total", Help: "settlement runs aborted on ledger mismatch",
		}, []string{"kind"}),
		SettlementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "arena_settlement_duration_seconds", Help: "settlement transaction latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_ws_connections", Help: "connected websocket clients",
		}),
		EventPublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_event_publish_failures_total", Help: "kafka / redis publish errors",
		}, []string{"sink"}),
	}
	reg.MustRegister(
		c.BetsPlaced, c.StakeVolume, c.Settlements, c.PayoutVolume,
		c.LedgerInconsistency, c.SettlementDuration, c.WSConnections, c.EventPublishFailures,
	)
	return c
}

// BetPlaced counts one accepted bet.
func (c *Collectors) BetPlaced(kind, source string, stake float64) {
	if c == nil {
		return
	}
	c.BetsPlaced.WithLabelValues(kind, source).Inc()
	c.StakeVolume.WithLabelValues(kind, source).Add(stake)
}

// Settled records a finished settlement or cancellation run.
func (c *Collectors) Settled(kind, result string, started time.Time) {
	if c == nil {
		return
	}
	c.Settlements.WithLabelValues(kind, result).Inc()
	c.SettlementDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// Credited adds to the payout/refund volume.
func (c *Collectors) Credited(kind, txType string, amount float64) {
	if c == nil || amount <= 0 {
		return
	}
	c.PayoutVolume.WithLabelValues(kind, txType).Add(amount)
}

// Inconsistent counts an aborted run.
func (c *Collectors) Inconsistent(kind string) {
	if c == nil {
		return
	}
	c.LedgerInconsistency.WithLabelValues(kind).Inc()
}

// PublishFailed counts a failed event publish.
func (c *Collectors) PublishFailed(sink string) {
	if c == nil {
		return
	}
	c.EventPublishFailures.WithLabelValues(sink).Inc()
}

// ClientConnected moves the websocket gauge by delta.
func (c *Collectors) ClientConnected(delta float64) {
	if c == nil {
		return
	}
	c.WSConnections.Add(delta)
}

// ──────────────────────────────────────────────────────────────────────────────
// Server
// ──────────────────────────────────────────────────────────────────────────────

// HealthFunc reports dependency health for /healthz.
type HealthFunc func(ctx context.Context) error

// StartServer serves /metrics and /healthz on port in a goroutine. A listener
// failure is logged; the caller keeps running without metrics.
func StartServer(port string, healthFn HealthFunc, log *zap.Logger) *http.Server {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "unhealthy: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener stopped", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}()
	return srv
}
