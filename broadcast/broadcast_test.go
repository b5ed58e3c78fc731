package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/arena"
	"github.com/wfunc/rpsarena/network"
	"github.com/wfunc/rpsarena/session"
	"github.com/wfunc/rpsarena/store"
)

type MockConnection struct {
	mutex sync.Mutex
	sent  []network.Packet
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sent = append(m.sent, network.Packet{MsgID: msgID, Data: data})
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

// waitFor polls until a frame with msgID satisfies match.
func (m *MockConnection) waitFor(t *testing.T, msgID uint16, match func([]byte) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mutex.Lock()
		for _, p := range m.sent {
			if p.MsgID == msgID && match(p.Data) {
				m.mutex.Unlock()
				return
			}
		}
		m.mutex.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for message %d", msgID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func onlineCount(n int) func([]byte) bool {
	return func(data []byte) bool {
		var ev arena.RosterEvent
		return json.Unmarshal(data, &ev) == nil && len(ev.Online) == n
	}
}

func TestFeedBroadcaster(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()
	opts := arena.DefaultOptions()
	opts.HeartbeatInterval = 0
	opts.SharedFeeds = true
	opts.Clock = clockwork.NewFakeClock()
	a := arena.New(s, opts)
	defer a.Close()

	manager := session.NewManager()
	b := NewFeedBroadcaster(a, manager)
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop()
	if err := b.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}

	conns := map[string]*MockConnection{}
	for _, name := range []string{"alice", "bob"} {
		conn := &MockConnection{}
		sess := session.NewSession("s_"+name, conn)
		sess.Client = a.NewClient(sess.Push)
		manager.Add(sess)
		if _, err := sess.Client.Login(ctx, name); err != nil {
			t.Fatalf("Login %s failed: %v", name, err)
		}
		defer sess.Client.Close()
		conns[name] = conn
	}

	conns["alice"].waitFor(t, network.MsgTypeRoster, onlineCount(2))
	conns["bob"].waitFor(t, network.MsgTypeRoster, onlineCount(2))

	if err := a.Waiting.Join(ctx, "alice"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	conns["bob"].waitFor(t, network.MsgTypeWaitingList, func(data []byte) bool {
		var ev arena.WaitingListEvent
		return json.Unmarshal(data, &ev) == nil && len(ev.Entries) == 1 && ev.Entries[0].Username == "alice"
	})

	// a late session gets the cached snapshots without any store change
	late := &MockConnection{}
	sess := session.NewSession("s_late", late)
	sess.Client = a.NewClient(sess.Push)
	if _, err := sess.Client.Login(ctx, "carol"); err != nil {
		t.Fatalf("Login carol failed: %v", err)
	}
	defer sess.Client.Close()
	b.Prime(sess.Client)
	late.waitFor(t, network.MsgTypeWaitingList, func(data []byte) bool {
		var ev arena.WaitingListEvent
		return json.Unmarshal(data, &ev) == nil && len(ev.Entries) == 1
	})
}
