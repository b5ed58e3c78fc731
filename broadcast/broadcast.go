// broadcast/broadcast.go
package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/wfunc/rpsarena/arena"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/session"
	"github.com/wfunc/rpsarena/store"
)

var ErrAlreadyStarted = errors.New("broadcaster already started")

// Broadcaster pushes shared state to every session.
type Broadcaster interface {
	Start(ctx context.Context) error
	Prime(c *arena.Client)
	Stop()
}

// FeedBroadcaster holds one roster subscription and one waiting list
// subscription for the whole process and hands each snapshot to every
// session's client. Clients must be created with arena Options.SharedFeeds.
type FeedBroadcaster struct {
	arena          *arena.Arena
	sessionManager *session.Manager

	mutex   sync.Mutex
	unsubs  []store.Unsubscribe
	roster  map[string]models.Player
	waiting []models.WaitingEntry
}

func NewFeedBroadcaster(a *arena.Arena, sessionManager *session.Manager) *FeedBroadcaster {
	return &FeedBroadcaster{
		arena:          a,
		sessionManager: sessionManager,
	}
}

func (b *FeedBroadcaster) Start(ctx context.Context) error {
	b.mutex.Lock()
	started := b.unsubs != nil
	b.mutex.Unlock()
	if started {
		return ErrAlreadyStarted
	}

	rosterUnsub, err := b.arena.Presence.WatchRoster(ctx, b.onRoster)
	if err != nil {
		return err
	}
	waitingUnsub, err := b.arena.Waiting.Watch(ctx, b.onWaitingList)
	if err != nil {
		rosterUnsub()
		return err
	}

	b.mutex.Lock()
	b.unsubs = []store.Unsubscribe{rosterUnsub, waitingUnsub}
	b.mutex.Unlock()
	return nil
}

func (b *FeedBroadcaster) Stop() {
	b.mutex.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mutex.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Prime replays the latest snapshots to a client that just logged in.
func (b *FeedBroadcaster) Prime(c *arena.Client) {
	b.mutex.Lock()
	roster, waiting := b.roster, b.waiting
	b.mutex.Unlock()
	if roster != nil {
		c.ObserveRoster(roster)
	}
	if waiting != nil {
		c.ObserveWaitingList(waiting)
	}
}

func (b *FeedBroadcaster) onRoster(roster map[string]models.Player) {
	if roster == nil {
		roster = map[string]models.Player{}
	}
	b.mutex.Lock()
	b.roster = roster
	b.mutex.Unlock()

	for _, s := range b.sessionManager.All() {
		if s.Client != nil {
			s.Client.ObserveRoster(roster)
		}
	}
}

func (b *FeedBroadcaster) onWaitingList(entries []models.WaitingEntry) {
	if entries == nil {
		entries = []models.WaitingEntry{}
	}
	b.mutex.Lock()
	b.waiting = entries
	b.mutex.Unlock()

	for _, s := range b.sessionManager.All() {
		if s.Client != nil {
			s.Client.ObserveWaitingList(entries)
		}
	}
}
