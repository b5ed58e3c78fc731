// Package notify implements the single-slot notification inbox each player
// has at notifications/{username}, and the consumer side that turns inbox
// contents into typed events.
package notify

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/monitor"
	"github.com/wfunc/rpsarena/store"
)

// Mailbox writes and clears notifications. A newer notification silently
// replaces an unconsumed one.
type Mailbox struct {
	store   store.Store
	clock   clockwork.Clock
	monitor *monitor.Monitor
}

func NewMailbox(s store.Store, clock clockwork.Clock, mon *monitor.Monitor) *Mailbox {
	return &Mailbox{store: s, clock: clock, monitor: mon}
}

// Send writes n into its recipient's inbox, stamping it if needed.
func (m *Mailbox) Send(ctx context.Context, n *models.Notification) error {
	if err := store.ValidateKey(n.To); err != nil {
		return err
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = m.clock.Now()
	}
	if err := store.Put(ctx, m.store, store.NotificationPath(n.To), n); err != nil {
		return fmt.Errorf("send %s to %s: %w", n.Type, n.To, err)
	}
	m.monitor.IncNotificationSent(string(n.Type))
	return nil
}

// Clear consumes the caller's own notification.
func (m *Mailbox) Clear(ctx context.Context, username string) error {
	if err := m.store.Remove(ctx, store.NotificationPath(username)); err != nil {
		return fmt.Errorf("clear notification for %s: %w", username, err)
	}
	return nil
}

// Get returns the pending notification, or nil.
func (m *Mailbox) Get(ctx context.Context, username string) (*models.Notification, error) {
	n, _, err := store.Get[models.Notification](ctx, m.store, store.NotificationPath(username))
	return n, err
}

func (m *Mailbox) Watch(ctx context.Context, username string, fn func(*models.Notification)) (store.Unsubscribe, error) {
	return store.Watch(ctx, m.store, store.NotificationPath(username), fn)
}

func ChallengeDeclined(from, to string) *models.Notification {
	return &models.Notification{
		Type:    models.ChallengeDeclined,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("%s declined your challenge", from),
	}
}

// AcceptedAnother tells a competing challenger that from took someone else's challenge.
func AcceptedAnother(from, to string) *models.Notification {
	return &models.Notification{
		Type:    models.ChallengeDeclined,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("%s accepted another challenge", from),
	}
}

func PlayerAvailable(to, available string) *models.Notification {
	return &models.Notification{
		Type:            models.PlayerAvailable,
		From:            models.SystemSender,
		To:              to,
		Message:         fmt.Sprintf("%s is now available to challenge!", available),
		AvailablePlayer: available,
	}
}

func PlayerLeft(from, to, roomID string) *models.Notification {
	return &models.Notification{
		Type:    models.PlayerLeftGame,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("%s left the game", from),
		RoomID:  roomID,
	}
}

func RoundStarted(from, to, roomID string, round int) *models.Notification {
	return &models.Notification{
		Type:        models.RoundStarted,
		From:        from,
		To:          to,
		Message:     fmt.Sprintf("%s started round %d", from, round),
		RoomID:      roomID,
		RoundNumber: round,
	}
}

func RematchRequest(from, to, roomID string) *models.Notification {
	return &models.Notification{
		Type:    models.RematchRequested,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("%s wants to play another round", from),
		RoomID:  roomID,
	}
}

// RematchAccepted is written by the accepting player, from, to the requester.
func RematchAccepted(from, to, roomID string, round int) *models.Notification {
	return &models.Notification{
		Type:        models.RematchAccepted,
		From:        from,
		To:          to,
		Message:     fmt.Sprintf("%s accepted your request to play another round", from),
		RoomID:      roomID,
		RoundNumber: round,
	}
}

func RematchDeclined(from, to string) *models.Notification {
	return &models.Notification{
		Type:    models.RematchDeclined,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("%s declined your request to play another round", from),
	}
}
