package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config for the metrics endpoint
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

var (
	// PassesTotal counts finished polling passes by outcome
	PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowin_passes_total",
			Help: "Polling passes over the waiting list by outcome.",
		},
		[]string{"outcome"},
	)

	// PassDuration of a full pass
	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cowin_pass_duration_seconds",
			Help:    "Duration of a polling pass.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// WaitingUsers is the size of the last waiting list snapshot
	WaitingUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cowin_waiting_users",
			Help: "Users in the waiting list at the start of the last pass.",
		},
	)

	// NotificationsTotal counts notified users by the tier their slot was chosen from
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowin_notifications_total",
			Help: "Users notified of a slot, by preference tier.",
		},
		[]string{"tier"},
	)

	// FailuresTotal counts per user failures by the stage that failed
	FailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowin_failures_total",
			Help: "Per user failures by stage.",
		},
		[]string{"stage"},
	)

	// SlotRequestsTotal counts appointment queries, cached ones included
	SlotRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cowin_slot_requests_total",
			Help: "Appointment queries per district by cache result.",
		},
		[]string{"cache"},
	)
)

func init() {
	prometheus.MustRegister(PassesTotal, PassDuration, WaitingUsers, NotificationsTotal, FailuresTotal, SlotRequestsTotal)
}

// Listen serves /metrics until the context is done.
func Listen(ctx context.Context, cfg Config, logger zerolog.Logger) {
	if !cfg.Enabled || cfg.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info().Str("section", "monitoring").Str("listen", cfg.Listen).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("section", "monitoring").Msg("Metrics server stopped")
		}
	}()
}
