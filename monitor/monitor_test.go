package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor("rps_test")

	m.IncRoundsResolved()
	m.IncRoundsResolved()
	m.IncDuplicateResolutions()
	m.IncPartialFailure("room_create")
	m.IncNotificationSent("player_available")
	m.IncRepair("stale_room_ref")
	m.SetOnlinePlayers(4)
	m.IncMessagesReceived()
	m.ObserveMessageLatency(5 * time.Millisecond)

	metrics := m.Metrics()
	if got := testutil.ToFloat64(metrics.RoundsResolved); got != 2 {
		t.Errorf("Expected 2 rounds resolved, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DuplicateResolutions); got != 1 {
		t.Errorf("Expected 1 duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.PartialFailures.WithLabelValues("room_create")); got != 1 {
		t.Errorf("Expected 1 partial failure, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.OnlinePlayers); got != 4 {
		t.Errorf("Expected 4 online players, got %v", got)
	}
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor
	m.IncRoundsResolved()
	m.IncPartialFailure("x")
	m.SetActiveRooms(1)
	if m.Metrics() != nil {
		t.Errorf("Expected nil metrics from a nil monitor")
	}
}

func TestMonitor_IndependentRegistries(t *testing.T) {
	// two monitors in one process must not collide
	a := NewMonitor("rps")
	b := NewMonitor("rps")
	a.IncRoundsResolved()
	if got := testutil.ToFloat64(b.Metrics().RoundsResolved); got != 0 {
		t.Errorf("Registries leaked between monitors: %v", got)
	}
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("rps_http")
	m.IncRoundsResolved()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "rps_http_rounds_resolved_total 1") {
		t.Errorf("Expected counter in exposition, got:\n%s", rec.Body.String())
	}
}
