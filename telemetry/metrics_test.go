package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init()

	if PollCycles == nil || NotificationsSent == nil || CycleDuration == nil || StreamsInWindow == nil {
		t.Fatal("metrics not initialized")
	}
}

func TestLabeledHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(NotificationsFailed.WithLabelValues("blocked"))
	RecordNotificationFailure("blocked")
	if got := testutil.ToFloat64(NotificationsFailed.WithLabelValues("blocked")); got != before+1 {
		t.Errorf("blocked failures = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(SubscriptionToggles.WithLabelValues("unsubscribed"))
	RecordToggle(false)
	if got := testutil.ToFloat64(SubscriptionToggles.WithLabelValues("unsubscribed")); got != before+1 {
		t.Errorf("unsubscribed toggles = %v, want %v", got, before+1)
	}

	actions := testutil.ToFloat64(MenuActions.WithLabelValues("start"))
	failures := testutil.ToFloat64(MenuFailures.WithLabelValues("start"))
	RecordMenuAction("start", true)
	if testutil.ToFloat64(MenuActions.WithLabelValues("start")) != actions+1 {
		t.Error("menu action not counted")
	}
	if testutil.ToFloat64(MenuFailures.WithLabelValues("start")) != failures+1 {
		t.Error("menu failure not counted")
	}
}

func TestMarkCycle(t *testing.T) {
	Init()
	at := time.Unix(1714564800, 0)
	MarkCycle(at, 3)
	if got := testutil.ToFloat64(LastCycleTimestamp); got != float64(at.Unix()) {
		t.Errorf("last cycle = %v", got)
	}
	if got := testutil.ToFloat64(StreamsInWindow); got != 3 {
		t.Errorf("streams in window = %v", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Error("expected empty correlation on bare context")
	}
	ctx = WithCorrelation(ctx, "abc")
	if GetCorrelation(ctx) != "abc" {
		t.Errorf("correlation = %q", GetCorrelation(ctx))
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("nil logger")
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing("melatonin-bot", "test", "")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing should be disabled without an endpoint")
	}
	_, span := StartSpan(WithCorrelation(context.Background(), "c1"), "test", "noop")
	span.End()
}
