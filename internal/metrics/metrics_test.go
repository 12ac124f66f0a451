package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBundleLoad("Game", time.Now(), nil)
	m.ObserveTransfer("Game", "fetch", 10, nil)
	m.ObservePatch("Game", "ready", "Ready", 10)
	m.AddTrackedObjects("Game", 1)
	m.SetLoadedBundles("Game", 1)
	m.ObserveObjectLoad("Game", nil)
}

func TestTransferCounters(t *testing.T) {
	m := New()
	m.ObserveTransfer("Game", "fetch", 128, nil)
	m.ObserveTransfer("Game", "fetch", 64, errors.New("boom"))
	m.ObserveTransfer("Game", "probe", 0, nil)

	if got := testutil.ToFloat64(m.TransferBytes.WithLabelValues("Game")); got != 128 {
		t.Fatalf("transfer bytes = %v, want 128", got)
	}
	if got := testutil.ToFloat64(m.Transfers.WithLabelValues("Game", "fetch", "error")); got != 1 {
		t.Fatalf("fetch errors = %v, want 1", got)
	}
}

func TestTrackedObjectsGauge(t *testing.T) {
	m := New()
	m.AddTrackedObjects("Game", 3)
	m.AddTrackedObjects("Game", -1)
	if got := testutil.ToFloat64(m.TrackedObjects.WithLabelValues("Game")); got != 2 {
		t.Fatalf("tracked objects = %v, want 2", got)
	}
}

func TestRegistryGathers(t *testing.T) {
	m := New()
	m.ObservePatch("Game", "apply", "Success", 0)
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected at least one metric family")
	}
}
