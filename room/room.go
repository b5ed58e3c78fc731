// room/room.go
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/monitor"
	"github.com/wfunc/rpsarena/state"
	"github.com/wfunc/rpsarena/store"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotInRoom       = errors.New("player is not in this room")
	ErrSamePlayer      = errors.New("a room needs two different players")
	ErrAlreadyChose    = errors.New("choice already made this round")
	ErrRoundComplete   = errors.New("round already complete")
	ErrStaleRound      = errors.New("choice is for a different round")
	ErrRoundIncomplete = errors.New("both choices are required")
	ErrNotResolver     = errors.New("player does not resolve this room")
)

type Option func(*Engine)

func WithArchive(a Archive) Option {
	return func(e *Engine) {
		e.archive = a
	}
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(e *Engine) {
		e.monitor = m
	}
}

// WithIDGenerator replaces the room id source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

type roomLock struct {
	mutex sync.Mutex
	refs  int
}

// Engine runs rooms and rounds on top of the shared store. The store offers
// no isolation, so every mutation re-reads the room right before writing it.
// Within one process mutations of the same room are serialised.
type Engine struct {
	store     store.Store
	clock     clockwork.Clock
	notify    Notifier
	matcher   Matchmaker
	archive   Archive
	monitor   *monitor.Monitor
	lifecycle *state.RoomLifecycle
	newID     func() string

	mutex sync.Mutex
	locks map[string]*roomLock
}

func NewEngine(s store.Store, clock clockwork.Clock, n Notifier, m Matchmaker, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		clock:     clock,
		notify:    n,
		matcher:   m,
		lifecycle: state.NewRoomLifecycle(),
		newID: func() string {
			return "room_" + uuid.NewString()
		},
		locks: make(map[string]*roomLock),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lock serialises work on one room inside this process.
func (e *Engine) lock(roomID string) func() {
	e.mutex.Lock()
	l, ok := e.locks[roomID]
	if !ok {
		l = &roomLock{}
		e.locks[roomID] = l
	}
	l.refs++
	e.mutex.Unlock()

	l.mutex.Lock()
	return func() {
		l.mutex.Unlock()
		e.mutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, roomID)
		}
		e.mutex.Unlock()
	}
}

// Create writes a new waiting room for p1 and p2 and points both players at
// it. The three writes are not atomic; a failure part way is logged and
// counted but not rolled back.
func (e *Engine) Create(ctx context.Context, p1, p2 string) (*models.Room, error) {
	if err := store.ValidateKey(p1); err != nil {
		return nil, err
	}
	if err := store.ValidateKey(p2); err != nil {
		return nil, err
	}
	if p1 == p2 {
		return nil, ErrSamePlayer
	}

	now := e.clock.Now()
	room := models.NewRoom(e.newID(), p1, p2, now)
	if err := store.Put(ctx, e.store, store.RoomPath(room.ID), room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range room.Players {
		g.Go(func() error {
			_, err := store.Update(gctx, e.store, store.PlayerPath(name), func(cur *models.Player) *models.Player {
				if cur == nil {
					cur = models.NewPlayer(name, now)
				}
				cur.RoomID = room.ID
				cur.IsActive = true
				cur.LastSeen = now
				return cur
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		e.partialFailure("room_create", room.ID, err)
		return nil, fmt.Errorf("assign players to room %s: %w", room.ID, err)
	}

	logger.Log.Infof("room %s created for %s and %s", room.ID, p1, p2)
	return room, nil
}

// Get returns the room or ErrRoomNotFound.
func (e *Engine) Get(ctx context.Context, roomID string) (*models.Room, error) {
	room, ok, err := store.Get[models.Room](ctx, e.store, store.RoomPath(roomID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return room, nil
}

// List returns every room in the store.
func (e *Engine) List(ctx context.Context) (map[string]models.Room, error) {
	return store.List[models.Room](ctx, e.store, store.Rooms)
}

// Watch follows a room. fn receives nil once the room is removed.
func (e *Engine) Watch(ctx context.Context, roomID string, fn func(*models.Room)) (store.Unsubscribe, error) {
	return store.Watch(ctx, e.store, store.RoomPath(roomID), fn)
}

func (e *Engine) partialFailure(op, roomID string, err error) {
	logger.Log.Errorf("partial failure in %s for room %s: %v", op, roomID, err)
	e.monitor.IncPartialFailure(op)
}

// release clears a player's room reference if it still points at roomID.
func (e *Engine) release(ctx context.Context, username, roomID string) error {
	now := e.clock.Now()
	_, err := store.Update(ctx, e.store, store.PlayerPath(username), func(cur *models.Player) *models.Player {
		if cur == nil || cur.RoomID != roomID {
			return nil
		}
		cur.RoomID = ""
		cur.LastSeen = now
		return cur
	})
	if err != nil {
		return fmt.Errorf("release %s from %s: %w", username, roomID, err)
	}
	return nil
}
