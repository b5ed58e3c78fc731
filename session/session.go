// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/rpsarena/arena"
	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/network"
	"github.com/wfunc/rpsarena/notify"
)

// Session is one websocket connection. Client is set once the gateway
// creates the arena client for it.
type Session struct {
	ID         string
	Conn       network.Connection
	Client     *arena.Client
	CreatedAt  time.Time
	LastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.touch()
	return s.Conn.Send(msgID, data)
}

func (s *Session) SendJSON(msgID uint16, v any) error {
	s.touch()
	return network.SendJSON(s.Conn, msgID, v)
}

// Push forwards a client event. It is the emit callback of the session's
// arena client, so it never blocks on errors. Roster and waiting list
// snapshots go out bare under their own message IDs.
func (s *Session) Push(e notify.Event) {
	var err error
	switch ev := e.(type) {
	case arena.RosterEvent:
		err = s.SendJSON(network.MsgTypeRoster, ev)
	case arena.WaitingListEvent:
		err = s.SendJSON(network.MsgTypeWaitingList, ev)
	default:
		err = s.SendJSON(network.MsgTypeEvent, network.EventPush{Type: e.EventName(), Data: e})
	}
	if err != nil {
		logger.Log.Debugf("session %s: push %s: %v", s.ID, e.EventName(), err)
	}
}

func (s *Session) touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) Idle() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.LastActive)
}

// Username is empty until the client logs in.
func (s *Session) Username() string {
	if s.Client == nil {
		return ""
	}
	return s.Client.Username()
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager tracks live sessions by ID.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByUsername(username string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Username() == username {
			result = append(result, session)
		}
	}
	return result
}

// All returns a snapshot safe to iterate without the manager lock.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
