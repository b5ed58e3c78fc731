package store

import (
	"sync"

	"github.com/wfunc/rpsarena/logger"
)

// subscription delivers snapshots to one listener on its own goroutine, in
// the order they were queued. Writers never block on a slow listener.
type subscription struct {
	id   uint64
	path string
	fn   Listener

	mutex   sync.Mutex
	pending []Snapshot
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newSubscription(id uint64, path string, fn Listener) *subscription {
	s := &subscription{
		id:   id,
		path: path,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscription) push(snap Snapshot) {
	s.mutex.Lock()
	s.pending = append(s.pending, snap)
	s.mutex.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mutex.Lock()
			if len(s.pending) == 0 {
				s.mutex.Unlock()
				break
			}
			snap := s.pending[0]
			s.pending = s.pending[1:]
			s.mutex.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(snap)
		}
	}
}

// deliver shields the subscription from a panicking listener so one bad
// update never ends the stream.
func (s *subscription) deliver(snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("store: listener for %s panicked: %v", s.path, r)
		}
	}()
	s.fn(snap)
}

func (s *subscription) stop() {
	s.once.Do(func() {
		close(s.done)
	})
}
