// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles          prometheus.Counter
	PollFetchFailures   prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed *prometheus.CounterVec // label: class
	LedgerPruned        prometheus.Counter
	MenuActions         *prometheus.CounterVec // label: action
	MenuFailures        *prometheus.CounterVec // label: action
	SubscriptionToggles *prometheus.CounterVec // label: state
	AlertsFired         prometheus.Counter
	AlertsFailed        prometheus.Counter

	// Histograms (seconds)
	CycleDuration     prometheus.Observer
	PollFetchDuration prometheus.Histogram

	// Gauges
	StreamsInWindow    prometheus.Gauge
	LastCycleTimestamp prometheus.Gauge // unix seconds of the last completed cycle
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "melatonin_poll_cycles_total", Help: "Number of poll cycles started"})
		PollFetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "melatonin_poll_fetch_failures_total", Help: "Poll cycles aborted because the stream listing failed"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "melatonin_notifications_sent_total", Help: "Stream notifications delivered"})
		NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "melatonin_notifications_failed_total", Help: "Stream notifications that failed, by error class"}, []string{"class"})
		LedgerPruned = promauto.NewCounter(prometheus.CounterOpts{Name: "melatonin_ledger_pruned_total", Help: "Ledger entries removed after their scheduled start passed"})
		MenuActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "melatonin_menu_actions_total", Help: "Chat interactions handled, by action"}, []string{"action"})
		MenuFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "melatonin_menu_failures_total", Help: "Chat interactions that rendered the failure screen, by action"}, []string{"action"})
		SubscriptionToggles = promauto.NewCounterVec(prometheus.CounterOpts{Name: "melatonin_subscription_toggles_total", Help: "Subscription toggles, by resulting state"}, []string{"state"})
		AlertsFired = promauto.NewCounter(prometheus.CounterOpts{Name: "melatonin_alerts_fired_total", Help: "Operator alerts delivered to the monitoring endpoint"})
		AlertsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "melatonin_alerts_failed_total", Help: "Operator alerts that could not be delivered"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "melatonin_poll_cycle_duration_seconds", Help: "Poll cycle duration seconds", Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}})
		PollFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "melatonin_poll_fetch_duration_seconds", Help: "Stream listing request latency seconds", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}})
		StreamsInWindow = promauto.NewGauge(prometheus.GaugeOpts{Name: "melatonin_streams_in_window", Help: "Streams inside the lead-time window in the last cycle"})
		LastCycleTimestamp = promauto.NewGauge(prometheus.GaugeOpts{Name: "melatonin_last_cycle_timestamp_seconds", Help: "Unix time of the last completed poll cycle"})
	})
}

// RecordNotificationFailure counts a failed delivery under its error class.
func RecordNotificationFailure(class string) {
	if NotificationsFailed != nil {
		NotificationsFailed.WithLabelValues(class).Inc()
	}
}

// RecordToggle counts a subscription toggle by the state it produced.
func RecordToggle(subscribed bool) {
	if SubscriptionToggles == nil {
		return
	}
	state := "unsubscribed"
	if subscribed {
		state = "subscribed"
	}
	SubscriptionToggles.WithLabelValues(state).Inc()
}

// RecordMenuAction counts one handled interaction and, if failed, the failure.
func RecordMenuAction(action string, failed bool) {
	if MenuActions != nil {
		MenuActions.WithLabelValues(action).Inc()
	}
	if failed && MenuFailures != nil {
		MenuFailures.WithLabelValues(action).Inc()
	}
}

// MarkCycle records the end of a poll cycle.
func MarkCycle(at time.Time, inWindow int) {
	if LastCycleTimestamp != nil {
		LastCycleTimestamp.Set(float64(at.Unix()))
	}
	if StreamsInWindow != nil {
		StreamsInWindow.Set(float64(inWindow))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
