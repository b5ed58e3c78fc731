package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/monitor"
	"github.com/wfunc/rpsarena/store"
)

func TestSweep(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()
	clock := clockwork.NewFakeClock()
	mon := monitor.NewMonitor("rps_test")
	sw := NewSweeper(s, clock, 2*time.Minute, time.Minute, mon)

	now := clock.Now()
	old := now.Add(-10 * time.Minute)
	put := func(p models.Player) {
		store.Put(ctx, s, store.PlayerPath(p.Username), &p)
	}

	// healthy game
	store.Put(ctx, s, store.RoomPath("r_live"), models.NewRoom("r_live", "ann", "ben", old))
	put(models.Player{Username: "ann", IsActive: true, LastSeen: now, RoomID: "r_live"})
	put(models.Player{Username: "ben", IsActive: true, LastSeen: now, RoomID: "r_live"})

	// room was removed but one player update failed
	put(models.Player{Username: "cid", IsActive: true, LastSeen: now, RoomID: "r_gone"})

	// room written, both player updates failed
	store.Put(ctx, s, store.RoomPath("r_orphan"), models.NewRoom("r_orphan", "dee", "eve", old))
	put(models.Player{Username: "dee", IsActive: true, LastSeen: now})

	// same, but still inside the grace period
	store.Put(ctx, s, store.RoomPath("r_fresh"), models.NewRoom("r_fresh", "dee", "fay", now))
	put(models.Player{Username: "fay", IsActive: true, LastSeen: now})

	// both players went away without leaving
	store.Put(ctx, s, store.RoomPath("r_dead"), models.NewRoom("r_dead", "gus", "hal", old))
	put(models.Player{Username: "gus", IsActive: true, LastSeen: old, RoomID: "r_dead"})
	put(models.Player{Username: "hal", IsActive: false, LastSeen: now, RoomID: "r_dead"})

	report, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(report.StaleRefs) != 1 || report.StaleRefs[0] != "cid" {
		t.Errorf("Unexpected stale refs %v", report.StaleRefs)
	}
	if len(report.OrphanRooms) != 1 || report.OrphanRooms[0] != "r_orphan" {
		t.Errorf("Unexpected orphan rooms %v", report.OrphanRooms)
	}
	if len(report.AbandonedRooms) != 1 || report.AbandonedRooms[0] != "r_dead" {
		t.Errorf("Unexpected abandoned rooms %v", report.AbandonedRooms)
	}
	if report.Rooms != 2 || report.Online != 5 {
		t.Errorf("Expected 2 rooms and 5 online, got %d and %d", report.Rooms, report.Online)
	}

	rooms, _ := store.List[models.Room](ctx, s, store.Rooms)
	if len(rooms) != 2 {
		t.Errorf("Expected r_live and r_fresh to remain, got %v", rooms)
	}
	for _, name := range []string{"cid", "gus", "hal"} {
		p, _, _ := store.Get[models.Player](ctx, s, store.PlayerPath(name))
		if p.RoomID != "" {
			t.Errorf("%s should be released, got %s", name, p.RoomID)
		}
	}
	if ann, _, _ := store.Get[models.Player](ctx, s, store.PlayerPath("ann")); ann.RoomID != "r_live" {
		t.Errorf("Healthy game must be untouched")
	}

	m := mon.Metrics()
	if got := testutil.ToFloat64(m.Repairs.WithLabelValues(RepairStaleRef)); got != 1 {
		t.Errorf("Expected 1 stale ref repair, got %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveRooms); got != 2 {
		t.Errorf("Expected active rooms gauge 2, got %v", got)
	}

	// a second pass finds nothing
	report, err = sw.Sweep(ctx)
	if err != nil || report.Repairs() != 0 {
		t.Errorf("Expected a clean second sweep, got %+v %v", report, err)
	}
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()
	clock := clockwork.NewRealClock()
	sw := NewSweeper(s, clock, 2*time.Minute, time.Minute, nil)

	store.Put(ctx, s, store.PlayerPath("cid"), &models.Player{Username: "cid", IsActive: true, LastSeen: clock.Now(), RoomID: "r_gone"})

	sched, err := Schedule(ctx, sw, 20*time.Millisecond, clock)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	defer sched.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for {
		p, _, _ := store.Get[models.Player](ctx, s, store.PlayerPath("cid"))
		if p != nil && p.RoomID == "" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduled sweep never released cid")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
