package session

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/arena"
	"github.com/wfunc/rpsarena/network"
	"github.com/wfunc/rpsarena/store"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mutex sync.Mutex
	sent  []network.Packet
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sent = append(m.sent, network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))})
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func (m *MockConnection) Sent() []network.Packet {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]network.Packet(nil), m.sent...)
}

func newArena(t *testing.T) *arena.Arena {
	t.Helper()
	s := store.NewMemoryStore()
	opts := arena.DefaultOptions()
	opts.HeartbeatInterval = 0
	opts.Clock = clockwork.NewFakeClock()
	a := arena.New(s, opts)
	t.Cleanup(func() {
		a.Close()
		s.Close()
	})
	return a
}

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}
	if len(manager.All()) != 1 {
		t.Fatalf("All should return the added session")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_GetByUsername(t *testing.T) {
	ctx := context.Background()
	a := newArena(t)
	manager := NewManager()

	login := func(id, username string) *Session {
		sess := NewSession(id, &MockConnection{})
		sess.Client = a.NewClient(sess.Push)
		if username != "" {
			if _, err := sess.Client.Login(ctx, username); err != nil {
				t.Fatalf("Login %s failed: %v", username, err)
			}
			t.Cleanup(sess.Client.Close)
		}
		manager.Add(sess)
		return sess
	}
	login("session1", "alice")
	login("session2", "bob")
	login("session3", "")
	manager.Add(NewSession("session4", &MockConnection{}))

	if got := manager.GetByUsername("alice"); len(got) != 1 || got[0].ID != "session1" {
		t.Errorf("Expected session1 for alice, got %v", got)
	}
	if got := manager.GetByUsername("carol"); len(got) != 0 {
		t.Errorf("Expected no sessions for carol, got %d", len(got))
	}
	if got := manager.GetByUsername(""); len(got) != 2 {
		t.Errorf("Expected 2 anonymous sessions, got %d", len(got))
	}
}

func TestSession_PushEncodesEvent(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s", conn)
	before := sess.LastActive

	time.Sleep(time.Millisecond)
	sess.Push(arena.RoomClosedEvent{RoomID: "room_1"})

	sent := conn.Sent()
	if len(sent) != 1 || sent[0].MsgID != network.MsgTypeEvent {
		t.Fatalf("Expected one event frame, got %+v", sent)
	}
	var push struct {
		Type string                `json:"type"`
		Data arena.RoomClosedEvent `json:"data"`
	}
	if err := json.Unmarshal(sent[0].Data, &push); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if push.Type != "room_closed" || push.Data.RoomID != "room_1" {
		t.Errorf("Unexpected push %+v", push)
	}
	if !sess.LastActive.After(before) {
		t.Error("Send should update LastActive")
	}
}
