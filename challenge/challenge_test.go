package challenge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/store"
)

// MockRoomCreator records rooms it was asked to create.
type MockRoomCreator struct {
	mutex sync.Mutex
	pairs [][2]string
	err   error
}

func (m *MockRoomCreator) Create(ctx context.Context, p1, p2 string) (*models.Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.pairs = append(m.pairs, [2]string{p1, p2})
	return models.NewRoom("room_test", p1, p2, time.Now()), nil
}

// MockNotifier records notifications.
type MockNotifier struct {
	mutex sync.Mutex
	sent  []*models.Notification
}

func (m *MockNotifier) Send(ctx context.Context, n *models.Notification) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

type fixture struct {
	store *store.MemoryStore
	clock *clockwork.FakeClock
	rooms *MockRoomCreator
	notes *MockNotifier
	proto *Protocol
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemoryStore(),
		clock: clockwork.NewFakeClock(),
		rooms: &MockRoomCreator{},
		notes: &MockNotifier{},
	}
	t.Cleanup(func() { f.store.Close() })
	f.proto = NewProtocol(f.store, f.clock, f.rooms, f.notes, opts...)
	return f
}

func TestSend_OverwritesPendingChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.proto.Send(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := f.proto.Send(ctx, "carol", "bob"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	c, _ := f.proto.Pending(ctx, "bob")
	if c == nil || c.From != "carol" || c.Status != models.StatusPending {
		t.Errorf("Expected only carol's challenge, got %+v", c)
	}
	if len(f.notes.sent) != 0 {
		t.Errorf("The replaced challenger must not be notified by Send")
	}
}

func TestSend_RejectsSelfAndInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.proto.Send(ctx, "alice", "alice"); !errors.Is(err, ErrSelfChallenge) {
		t.Errorf("Expected ErrSelfChallenge, got %v", err)
	}
	if err := f.proto.Send(ctx, "alice", "b/ob"); !errors.Is(err, store.ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath, got %v", err)
	}
}

func TestSend_RateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithRateLimit(1, 2))

	f.proto.Send(ctx, "alice", "bob")
	f.proto.Send(ctx, "alice", "carol")
	if err := f.proto.Send(ctx, "alice", "dave"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if err := f.proto.Send(ctx, "erin", "dave"); err != nil {
		t.Errorf("Limits are per sender, got %v", err)
	}

	f.clock.Advance(time.Second)
	if err := f.proto.Send(ctx, "alice", "dave"); err != nil {
		t.Errorf("Expected a refilled token, got %v", err)
	}
}

func TestAccept_CreatesRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.proto.Send(ctx, "alice", "bob")
	roomID, err := f.proto.Accept(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if roomID != "room_test" {
		t.Errorf("Unexpected room id %s", roomID)
	}
	if len(f.rooms.pairs) != 1 || f.rooms.pairs[0] != [2]string{"alice", "bob"} {
		t.Errorf("Expected room for alice and bob, got %v", f.rooms.pairs)
	}
	if c, _ := f.proto.Pending(ctx, "bob"); c != nil {
		t.Errorf("Challenge should be consumed")
	}
	if len(f.notes.sent) != 0 {
		t.Errorf("No competing challenger to notify, got %d", len(f.notes.sent))
	}
}

func TestAccept_DeclinesReplacingChallenger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// carol's challenge replaced alice's before bob answered alice
	f.proto.Send(ctx, "carol", "bob")
	if _, err := f.proto.Accept(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if len(f.notes.sent) != 1 {
		t.Fatalf("Expected one decline, got %d", len(f.notes.sent))
	}
	n := f.notes.sent[0]
	if n.To != "carol" || n.Type != models.ChallengeDeclined || n.Message != "bob accepted another challenge" {
		t.Errorf("Unexpected notification %+v", n)
	}
}

func TestAccept_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.proto.Accept(ctx, "alice", "bob"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("Expected ErrNoChallenge, got %v", err)
	}

	store.Put(ctx, f.store, store.PlayerPath("alice"), &models.Player{Username: "alice", IsActive: true, RoomID: "room_other"})
	f.proto.Send(ctx, "alice", "bob")
	if _, err := f.proto.Accept(ctx, "alice", "bob"); !errors.Is(err, ErrPlayerBusy) {
		t.Errorf("Expected ErrPlayerBusy, got %v", err)
	}
	if len(f.rooms.pairs) != 0 {
		t.Errorf("No room may be created for a busy player")
	}
}

func TestDecline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.proto.Decline(ctx, "bob"); err != nil {
		t.Fatalf("Decline without challenge should be a no-op: %v", err)
	}
	if len(f.notes.sent) != 0 {
		t.Fatalf("No-op decline must not notify")
	}

	f.proto.Send(ctx, "alice", "bob")
	if err := f.proto.Decline(ctx, "bob"); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if c, _ := f.proto.Pending(ctx, "bob"); c != nil {
		t.Errorf("Challenge should be removed")
	}
	if len(f.notes.sent) != 1 || f.notes.sent[0].To != "alice" || f.notes.sent[0].From != "bob" {
		t.Errorf("Expected decline to alice, got %+v", f.notes.sent)
	}
}
