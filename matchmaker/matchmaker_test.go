package matchmaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/store"
)

var errUnreachable = errors.New("unreachable")

// MockNotifier records every notification it is asked to send. Recipients
// in fail are refused.
type MockNotifier struct {
	mutex sync.Mutex
	sent  []*models.Notification
	fail  map[string]bool
}

func (m *MockNotifier) Send(ctx context.Context, n *models.Notification) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.fail[n.To] {
		return errUnreachable
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *MockNotifier) byRecipient() map[string]*models.Notification {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make(map[string]*models.Notification)
	for _, n := range m.sent {
		out[n.To] = n
	}
	return out
}

func newList(t *testing.T) (*WaitingList, *MockNotifier, *clockwork.FakeClock) {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	clock := clockwork.NewFakeClock()
	n := &MockNotifier{}
	return NewWaitingList(s, clock, n), n, clock
}

func TestWaitingList_JoinLeaveOrder(t *testing.T) {
	ctx := context.Background()
	w, _, clock := newList(t)

	w.Join(ctx, "carol")
	clock.Advance(time.Second)
	w.Join(ctx, "alice")
	clock.Advance(time.Second)
	w.Join(ctx, "bob")

	list, err := w.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 || list[0].Username != "carol" || list[2].Username != "bob" {
		t.Errorf("Expected oldest first, got %+v", list)
	}

	w.Leave(ctx, "alice")
	list, _ = w.List(ctx)
	if len(list) != 2 {
		t.Errorf("Expected 2 waiters after leave, got %d", len(list))
	}
}

func TestWaitingList_AutoMatch(t *testing.T) {
	ctx := context.Background()
	w, n, clock := newList(t)

	w.Join(ctx, "alice")
	clock.Advance(time.Second)
	w.Join(ctx, "bob")

	paired, err := w.AutoMatch(ctx)
	if err != nil {
		t.Fatalf("AutoMatch failed: %v", err)
	}
	if len(paired) != 2 {
		t.Fatalf("Expected a pair, got %v", paired)
	}

	sent := n.byRecipient()
	if sent["alice"] == nil || sent["alice"].AvailablePlayer != "bob" {
		t.Errorf("Expected alice to be told about bob, got %+v", sent["alice"])
	}
	if sent["bob"] == nil || sent["bob"].AvailablePlayer != "alice" {
		t.Errorf("Expected bob to be told about alice, got %+v", sent["bob"])
	}
	if sent["bob"].Type != models.PlayerAvailable {
		t.Errorf("Expected player_available, got %s", sent["bob"].Type)
	}

	list, _ := w.List(ctx)
	if len(list) != 0 {
		t.Errorf("Expected empty waiting list, got %+v", list)
	}
}

func TestWaitingList_AutoMatchPicksOldestTwo(t *testing.T) {
	ctx := context.Background()
	w, _, clock := newList(t)

	w.Join(ctx, "zed")
	clock.Advance(time.Second)
	w.Join(ctx, "amy")
	clock.Advance(time.Second)
	w.Join(ctx, "bea")

	paired, _ := w.AutoMatch(ctx)
	sort.Strings(paired)
	if len(paired) != 2 || paired[0] != "amy" || paired[1] != "zed" {
		t.Errorf("Expected zed and amy, got %v", paired)
	}
	list, _ := w.List(ctx)
	if len(list) != 1 || list[0].Username != "bea" {
		t.Errorf("Expected bea left waiting, got %+v", list)
	}
}

func TestWaitingList_AutoMatchNeedsTwo(t *testing.T) {
	ctx := context.Background()
	w, n, _ := newList(t)

	w.Join(ctx, "alice")
	paired, err := w.AutoMatch(ctx)
	if err != nil || paired != nil {
		t.Errorf("Expected no pairing, got %v %v", paired, err)
	}
	if len(n.byRecipient()) != 0 {
		t.Errorf("No notifications expected")
	}
}

func TestWaitingList_NotifyAvailable(t *testing.T) {
	ctx := context.Background()
	w, n, _ := newList(t)

	w.Join(ctx, "alice")
	w.Join(ctx, "bob")
	w.Join(ctx, "carol")

	told, err := w.NotifyAvailable(ctx, "carol")
	if err != nil {
		t.Fatalf("NotifyAvailable failed: %v", err)
	}
	if len(told) != 2 {
		t.Errorf("Expected two waiters told, got %v", told)
	}
	sent := n.byRecipient()
	if sent["alice"].AvailablePlayer != "carol" || sent["bob"].AvailablePlayer != "carol" {
		t.Errorf("Unexpected notifications %+v", sent)
	}
	if _, ok := sent["carol"]; ok {
		t.Errorf("The freed player must not be told about themselves")
	}

	list, _ := w.List(ctx)
	if len(list) != 1 || list[0].Username != "carol" {
		t.Errorf("Expected only carol left waiting, got %+v", list)
	}
}

func TestWaitingList_UntoldWaiterKeepsPlace(t *testing.T) {
	ctx := context.Background()
	w, n, clock := newList(t)
	n.fail = map[string]bool{"bob": true}

	w.Join(ctx, "bob")
	if _, err := w.NotifyAvailable(ctx, "carol"); !errors.Is(err, errUnreachable) {
		t.Errorf("Expected the send failure, got %v", err)
	}
	list, _ := w.List(ctx)
	if len(list) != 1 || list[0].Username != "bob" {
		t.Errorf("bob was never told and should still wait, got %+v", list)
	}

	clock.Advance(time.Second)
	w.Join(ctx, "alice")
	if _, err := w.AutoMatch(ctx); !errors.Is(err, errUnreachable) {
		t.Errorf("Expected the send failure, got %v", err)
	}
	if list, _ := w.List(ctx); len(list) == 0 || list[0].Username != "bob" {
		t.Errorf("bob should still be first in line, got %+v", list)
	}
}
