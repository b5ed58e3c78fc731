package notify

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/timer"
)

// ExpiryPolicy says how long each notification type stays visible and
// whether the inbox is cleared when it expires. Types without an entry stay
// until acted upon.
type ExpiryPolicy struct {
	After   map[models.NotificationType]time.Duration
	ClearOn map[models.NotificationType]bool
}

func DefaultExpiry(available, transient time.Duration) ExpiryPolicy {
	return ExpiryPolicy{
		After: map[models.NotificationType]time.Duration{
			models.ChallengeDeclined: available,
			models.PlayerAvailable:   available,
			models.PlayerLeftGame:    transient,
			models.RoundStarted:      transient,
			models.RematchAccepted:   transient,
			models.RematchDeclined:   transient,
		},
		ClearOn: map[models.NotificationType]bool{
			models.PlayerAvailable: true,
		},
	}
}

type seenKey struct {
	typ  models.NotificationType
	from string
	at   int64
}

// Dispatcher consumes one player's inbox snapshots and emits typed events.
type Dispatcher struct {
	username string
	mailbox  *Mailbox
	timers   *timer.TimerManager
	policy   ExpiryPolicy
	emit     func(Event)

	mutex   sync.Mutex
	last    seenKey
	pending map[models.NotificationType]int64
}

func NewDispatcher(username string, mailbox *Mailbox, timers *timer.TimerManager, policy ExpiryPolicy, emit func(Event)) *Dispatcher {
	return &Dispatcher{
		username: username,
		mailbox:  mailbox,
		timers:   timers,
		policy:   policy,
		emit:     emit,
		pending:  make(map[models.NotificationType]int64),
	}
}

// Handle processes the current inbox value. The same notification seen
// twice is only dispatched once.
func (d *Dispatcher) Handle(n *models.Notification) {
	if n == nil {
		return
	}
	if n.To != "" && n.To != d.username {
		logger.Log.Warnf("notify: %s received a notification addressed to %s", d.username, n.To)
		return
	}

	event := EventFor(n)
	if event == nil {
		logger.Log.Warnf("notify: unknown notification type %q for %s", n.Type, d.username)
		return
	}

	key := seenKey{typ: n.Type, from: n.From, at: n.Timestamp.UnixNano()}
	d.mutex.Lock()
	if key == d.last {
		d.mutex.Unlock()
		return
	}
	d.last = key
	d.mutex.Unlock()

	d.emit(event)
	d.scheduleExpiry(n)
}

func (d *Dispatcher) scheduleExpiry(n *models.Notification) {
	after, ok := d.policy.After[n.Type]
	if !ok || after <= 0 {
		return
	}
	clearInbox := d.policy.ClearOn[n.Type]
	stamp := n.Timestamp

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if id, ok := d.pending[n.Type]; ok {
		d.timers.RemoveTimer(id)
	}
	var id int64
	id = d.timers.AddTimer(after, 0, func() {
		d.mutex.Lock()
		if d.pending[n.Type] == id {
			delete(d.pending, n.Type)
		}
		d.mutex.Unlock()

		d.emit(ExpiredEvent{Type: n.Type})
		if clearInbox {
			d.clearIfUnchanged(n.Type, stamp)
		}
	})
	d.pending[n.Type] = id
}

// clearIfUnchanged removes the inbox only if it still holds the notification
// that expired, so a newer one is never consumed unseen.
func (d *Dispatcher) clearIfUnchanged(typ models.NotificationType, stamp time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cur, err := d.mailbox.Get(ctx, d.username)
	if err != nil {
		logger.Log.Warnf("notify: read inbox of %s on expiry: %v", d.username, err)
		return
	}
	if cur == nil || cur.Type != typ || !cur.Timestamp.Equal(stamp) {
		return
	}
	if err := d.mailbox.Clear(ctx, d.username); err != nil {
		logger.Log.Warnf("notify: %v", err)
	}
}

// Stop cancels all pending expiries.
func (d *Dispatcher) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for typ, id := range d.pending {
		d.timers.RemoveTimer(id)
		delete(d.pending, typ)
	}
}
