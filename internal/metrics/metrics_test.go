package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scanflow/internal/metrics"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := metrics.New()
	m.ObserveLockWait(250 * time.Millisecond)
	m.StatementRetried("update session")
	m.JobObserved("validate", "success", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"scanflow_store_lock_acquisitions_total 1",
		`scanflow_store_statement_retries_total{operation="update session"} 1`,
		`scanflow_job_runs_total{job="validate",outcome="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveLockWait(time.Second)
	m.StatementRetried("x")
	m.StatementFailed("x")
	m.JobObserved("sync", "error", time.Second)
	m.NotificationObserved("validation", "sent")
}

func TestIndependentRegistries(t *testing.T) {
	a := metrics.New()
	b := metrics.New()
	a.StatementFailed("insert series")

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "insert series") {
		t.Fatal("registries must not share state")
	}
}
