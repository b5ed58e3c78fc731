package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/store"
)

func newTracker(t *testing.T) (*Tracker, *store.MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	clock := clockwork.NewFakeClock()
	return NewTracker(s, clock, 2*time.Minute), s, clock
}

func TestIsOnline_Threshold(t *testing.T) {
	now := time.Now()
	stale := &models.Player{Username: "a", IsActive: true, LastSeen: now.Add(-3 * time.Minute)}
	fresh := &models.Player{Username: "b", IsActive: true, LastSeen: now.Add(-30 * time.Second)}
	inactive := &models.Player{Username: "c", IsActive: false, LastSeen: now}

	if IsOnline(stale, now, 2*time.Minute) {
		t.Errorf("A player last seen 3m ago must be offline")
	}
	if !IsOnline(fresh, now, 2*time.Minute) {
		t.Errorf("A player last seen 30s ago must be online")
	}
	if IsOnline(inactive, now, 2*time.Minute) {
		t.Errorf("An inactive player must be offline")
	}
}

func TestIsAvailable(t *testing.T) {
	now := time.Now()
	p := &models.Player{Username: "bob", IsActive: true, LastSeen: now}
	if !IsAvailable(p, "alice", now, time.Minute) {
		t.Errorf("Expected bob available to alice")
	}
	if IsAvailable(p, "bob", now, time.Minute) {
		t.Errorf("A player is never available to themselves")
	}
	p.RoomID = "room_1"
	if IsAvailable(p, "alice", now, time.Minute) {
		t.Errorf("A player in a room is not available")
	}
}

func TestTracker_LoginPreservesStats(t *testing.T) {
	ctx := context.Background()
	tr, s, _ := newTracker(t)

	p, err := tr.Login(ctx, "alice")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !p.IsActive || p.Wins != 0 {
		t.Errorf("Unexpected new player %+v", p)
	}

	store.Put(ctx, s, store.PlayerPath("alice"), &models.Player{Username: "alice", Wins: 4, Losses: 2})
	p, _ = tr.Login(ctx, "alice")
	if p.Wins != 4 || p.Losses != 2 || !p.IsActive {
		t.Errorf("Login must reactivate and keep stats, got %+v", p)
	}

	if _, err := tr.Login(ctx, "bad/name"); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("Expected ErrInvalidUsername, got %v", err)
	}
}

func TestTracker_HeartbeatAndMarkInactive(t *testing.T) {
	ctx := context.Background()
	tr, s, clock := newTracker(t)

	if err := tr.Heartbeat(ctx, "ghost"); err != nil {
		t.Fatalf("Heartbeat for unknown player should be a no-op: %v", err)
	}
	if p, _ := tr.Player(ctx, "ghost"); p != nil {
		t.Errorf("Heartbeat must not create a player")
	}

	tr.Login(ctx, "alice")
	clock.Advance(90 * time.Second)
	tr.Heartbeat(ctx, "alice")
	clock.Advance(90 * time.Second)

	p, _ := tr.Player(ctx, "alice")
	if !tr.IsOnline(p) {
		t.Errorf("Heartbeat should keep alice online")
	}

	store.Put(ctx, s, store.WaitingPath("alice"), &models.WaitingEntry{Username: "alice"})
	if err := tr.MarkInactive(ctx, "alice"); err != nil {
		t.Fatalf("MarkInactive failed: %v", err)
	}
	p, _ = tr.Player(ctx, "alice")
	if p.IsActive || tr.IsOnline(p) {
		t.Errorf("Expected alice inactive, got %+v", p)
	}
	if _, err := s.Read(ctx, store.WaitingPath("alice")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("MarkInactive must drop the waiting-list entry")
	}
}

func TestTracker_OnlineAndAvailable(t *testing.T) {
	ctx := context.Background()
	tr, s, clock := newTracker(t)

	tr.Login(ctx, "carol")
	clock.Advance(3 * time.Minute)
	tr.Login(ctx, "alice")
	tr.Login(ctx, "bob")
	store.Update(ctx, s, store.PlayerPath("bob"), func(p *models.Player) *models.Player {
		p.RoomID = "room_1"
		return p
	})

	roster, err := tr.Roster(ctx)
	if err != nil {
		t.Fatalf("Roster failed: %v", err)
	}
	online := tr.Online(roster)
	if len(online) != 2 || online[0].Username != "alice" || online[1].Username != "bob" {
		t.Errorf("Expected alice and bob online, got %+v", online)
	}
	if avail := tr.Available(roster, "dave"); len(avail) != 1 || avail[0].Username != "alice" {
		t.Errorf("Expected only alice available, got %+v", avail)
	}
	if avail := tr.Available(roster, "alice"); len(avail) != 0 {
		t.Errorf("Expected nobody available to alice, got %+v", avail)
	}
}
