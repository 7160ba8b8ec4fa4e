package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/rowflow/internal/testutil"
)

func TestRunMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RunStarted("orders")
	r.RunFinished("orders", "failed", 1.5)
	r.StageFailed("load", "deadlock")
	r.DeadlockDetected("join")
	r.Backpressure("a.0 - b.0")
	r.ActiveCopies("orders", 3)

	testutil.AssertEqual(t, value(r.RunsStarted.WithLabelValues("orders")), 1.0)
	testutil.AssertEqual(t, value(r.RunsFinished.WithLabelValues("orders", "failed")), 1.0)
	testutil.AssertEqual(t, value(r.StageErrors.WithLabelValues("load", "deadlock")), 1.0)
	testutil.AssertEqual(t, value(r.Deadlocks.WithLabelValues("join")), 1.0)
	testutil.AssertEqual(t, value(r.BackpressureEvents.WithLabelValues("a.0 - b.0")), 1.0)
	testutil.AssertEqual(t, value(r.CopiesActive.WithLabelValues("orders")), 3.0)

	families, err := reg.Gather()
	testutil.AssertNoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "rowflow_run_duration_seconds" {
			found = true
			testutil.AssertEqual(t, f.GetMetric()[0].GetHistogram().GetSampleCount(), uint64(1))
		}
	}
	testutil.AssertEqual(t, found, true)
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.RunStarted("x")
	r.RunFinished("x", "ok", 1)
	r.StageFailed("x", "unknown")
	r.DeadlockDetected("x")
	r.ObserveChannel("x", 1, 1)
	r.Backpressure("x")
	r.ActiveCopies("x", 1)

	cm := r.Copy("x", 0)
	cm.Read()
	cm.Written()
	cm.Rejected()
	if cm != nil {
		t.Fatal("expected nil copy metrics")
	}
}
