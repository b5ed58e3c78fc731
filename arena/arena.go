// Package arena is the front-end facing API of the game. An Arena wires the
// store-backed components once per process; each connected player gets a
// Client that holds their subscriptions, heartbeat and local state.
package arena

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/challenge"
	"github.com/wfunc/rpsarena/matchmaker"
	"github.com/wfunc/rpsarena/monitor"
	"github.com/wfunc/rpsarena/notify"
	"github.com/wfunc/rpsarena/presence"
	"github.com/wfunc/rpsarena/room"
	"github.com/wfunc/rpsarena/store"
	"github.com/wfunc/rpsarena/timer"
)

type Options struct {
	HeartbeatInterval time.Duration
	InactiveThreshold time.Duration
	LoginTimeout      time.Duration
	Expiry            notify.ExpiryPolicy

	// ChallengeRate is challenges per second per sender; 0 disables the limit.
	ChallengeRate  float64
	ChallengeBurst int

	// SharedFeeds skips the per-client roster and waiting list
	// subscriptions. The owner feeds clients through ObserveRoster instead.
	SharedFeeds bool

	Clock   clockwork.Clock
	Monitor *monitor.Monitor
	Archive room.Archive
}

func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 30 * time.Second,
		InactiveThreshold: 2 * time.Minute,
		LoginTimeout:      10 * time.Second,
		Expiry:            notify.DefaultExpiry(5*time.Second, 3*time.Second),
	}
}

type Arena struct {
	opts  Options
	store store.Store
	clock clockwork.Clock

	Presence   *presence.Tracker
	Mailbox    *notify.Mailbox
	Waiting    *matchmaker.WaitingList
	Rooms      *room.Engine
	Challenges *challenge.Protocol
	Timers     *timer.TimerManager
}

func New(s store.Store, opts Options) *Arena {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	a := &Arena{
		opts:   opts,
		store:  s,
		clock:  opts.Clock,
		Timers: timer.NewTimerManager(opts.Clock),
	}
	a.Presence = presence.NewTracker(s, a.clock, opts.InactiveThreshold)
	a.Mailbox = notify.NewMailbox(s, a.clock, opts.Monitor)
	a.Waiting = matchmaker.NewWaitingList(s, a.clock, a.Mailbox)

	roomOpts := []room.Option{room.WithMonitor(opts.Monitor)}
	if opts.Archive != nil {
		roomOpts = append(roomOpts, room.WithArchive(opts.Archive))
	}
	a.Rooms = room.NewEngine(s, a.clock, a.Mailbox, a.Waiting, roomOpts...)

	var challengeOpts []challenge.Option
	if opts.ChallengeRate > 0 {
		challengeOpts = append(challengeOpts, challenge.WithRateLimit(opts.ChallengeRate, opts.ChallengeBurst))
	}
	a.Challenges = challenge.NewProtocol(s, a.clock, a.Rooms, a.Mailbox, challengeOpts...)
	return a
}

func (a *Arena) Store() store.Store {
	return a.store
}

func (a *Arena) Clock() clockwork.Clock {
	return a.clock
}

// Close stops every timer owned by the arena's clients.
func (a *Arena) Close() {
	a.Timers.Stop()
}
