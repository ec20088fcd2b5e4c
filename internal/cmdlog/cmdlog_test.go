package cmdlog

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"kolmeter/internal/metrics"
)

func TestRunCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(metrics.CommandErrors.WithLabelValues("cmdlog_test"))
	if err := Run("cmdlog_test", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	boom := errors.New("boom")
	if err := Run("cmdlog_test", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("error not passed through: %v", err)
	}
	if got := testutil.ToFloat64(metrics.CommandRuns.WithLabelValues("cmdlog_test")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.CommandErrors.WithLabelValues("cmdlog_test")); got != before+1 {
		t.Fatalf("expected one error, got %v", got-before)
	}
}
