package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

type Op int

const (
	OpRead Op = iota
	OpWrite
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	}
	return "unknown"
}

type MemoryOption func(*MemoryStore)

// WithLatency delays each operation by the returned duration before it is
// applied. Tests use it to interleave concurrent clients.
func WithLatency(fn func(op Op, path string) time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		m.latency = fn
	}
}

// WithFaults fails an operation whenever fn returns a non-nil error.
func WithFaults(fn func(op Op, path string) error) MemoryOption {
	return func(m *MemoryStore) {
		m.fault = fn
	}
}

// MemoryStore keeps every leaf document in process memory. It is the default
// backend for single-process deployments and for tests.
type MemoryStore struct {
	mutex  sync.RWMutex
	docs   map[string][]byte
	subs   map[uint64]*subscription
	nextID uint64
	closed bool

	latency func(op Op, path string) time.Duration
	fault   func(op Op, path string) error
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		docs: make(map[string][]byte),
		subs: make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) before(ctx context.Context, op Op, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if m.latency != nil {
		if d := m.latency(op, path); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.fault != nil {
		if err := m.fault(op, path); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) Write(ctx context.Context, path string, doc []byte) error {
	if err := m.before(ctx, OpWrite, path); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return ErrClosed
	}

	// a leaf replaces whatever subtree lived below or above it
	m.dropLocked(path)
	for p := range m.docs {
		if strings.HasPrefix(path, p+"/") {
			delete(m.docs, p)
		}
	}
	m.docs[path] = append([]byte(nil), doc...)
	m.notifyLocked(path)
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := m.before(ctx, OpRead, path); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if v := m.readLocked(path); v != nil {
		return v, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Remove(ctx context.Context, path string) error {
	if err := m.before(ctx, OpRemove, path); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.dropLocked(path) {
		m.notifyLocked(path)
	}
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, path string, fn Listener) (Unsubscribe, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	m.nextID++
	sub := newSubscription(m.nextID, path, fn)
	m.subs[sub.id] = sub
	sub.push(Snapshot{Path: path, Value: m.readLocked(path)})

	return func() {
		m.mutex.Lock()
		delete(m.subs, sub.id)
		m.mutex.Unlock()
		sub.stop()
	}, nil
}

func (m *MemoryStore) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for id, sub := range m.subs {
		sub.stop()
		delete(m.subs, id)
	}
	return nil
}

// Len reports how many leaf documents are stored.
func (m *MemoryStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.docs)
}

func (m *MemoryStore) readLocked(path string) []byte {
	if doc, ok := m.docs[path]; ok {
		return append([]byte(nil), doc...)
	}
	return assemble(path, m.docs)
}

func (m *MemoryStore) dropLocked(path string) bool {
	removed := false
	if _, ok := m.docs[path]; ok {
		delete(m.docs, path)
		removed = true
	}
	prefix := path + "/"
	for p := range m.docs {
		if strings.HasPrefix(p, prefix) {
			delete(m.docs, p)
			removed = true
		}
	}
	return removed
}

// notifyLocked queues a fresh snapshot for every affected subscriber while
// the write lock is held, so each subscriber sees changes in commit order.
func (m *MemoryStore) notifyLocked(changed string) {
	for _, sub := range m.subs {
		if affects(sub.path, changed) {
			sub.push(Snapshot{Path: sub.path, Value: m.readLocked(sub.path)})
		}
	}
}
