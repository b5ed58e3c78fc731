// Package challenge implements the challenge handshake. Each player has a
// single inbound slot at challenges/{username}; a newer challenge silently
// replaces an unanswered one.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/notify"
	"github.com/wfunc/rpsarena/store"
)

var (
	ErrSelfChallenge = errors.New("cannot challenge yourself")
	ErrRateLimited   = errors.New("too many challenges, slow down")
	ErrNoChallenge   = errors.New("no pending challenge")
	ErrPlayerBusy    = errors.New("player is already in a game")
)

type RoomCreator interface {
	Create(ctx context.Context, p1, p2 string) (*models.Room, error)
}

type Notifier interface {
	Send(ctx context.Context, n *models.Notification) error
}

type Option func(*Protocol)

// WithRateLimit caps how fast one sender may issue challenges.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Protocol) {
		p.limit = rate.Limit(perSecond)
		p.burst = burst
	}
}

type Protocol struct {
	store  store.Store
	clock  clockwork.Clock
	rooms  RoomCreator
	notify Notifier

	limit    rate.Limit
	burst    int
	mutex    sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewProtocol(s store.Store, clock clockwork.Clock, rooms RoomCreator, n Notifier, opts ...Option) *Protocol {
	p := &Protocol{
		store:    s,
		clock:    clock,
		rooms:    rooms,
		notify:   n,
		limit:    rate.Inf,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Protocol) allow(from string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	l, ok := p.limiters[from]
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[from] = l
	}
	return l.AllowN(p.clock.Now(), 1)
}

// Send writes a pending challenge into to's slot, replacing any existing
// one. The replaced challenger is not told.
func (p *Protocol) Send(ctx context.Context, from, to string) error {
	if err := store.ValidateKey(from); err != nil {
		return err
	}
	if err := store.ValidateKey(to); err != nil {
		return err
	}
	if from == to {
		return ErrSelfChallenge
	}
	if !p.allow(from) {
		return ErrRateLimited
	}

	c := &models.Challenge{
		From:      from,
		To:        to,
		Timestamp: p.clock.Now(),
		Status:    models.StatusPending,
	}
	if err := store.Put(ctx, p.store, store.ChallengePath(to), c); err != nil {
		return fmt.Errorf("send challenge to %s: %w", to, err)
	}
	logger.Log.Debugf("challenge %s -> %s", from, to)
	return nil
}

// Accept consumes challenged's pending challenge and creates a room for
// challenger and challenged. Any other sender found in the slot is told that
// challenged accepted someone else.
func (p *Protocol) Accept(ctx context.Context, challenger, challenged string) (string, error) {
	path := store.ChallengePath(challenged)
	cur, _, err := store.Get[models.Challenge](ctx, p.store, path)
	if err != nil {
		return "", fmt.Errorf("read challenge for %s: %w", challenged, err)
	}
	if cur == nil {
		return "", fmt.Errorf("%w from %s", ErrNoChallenge, challenger)
	}
	if err := p.store.Remove(ctx, path); err != nil {
		return "", fmt.Errorf("remove challenge for %s: %w", challenged, err)
	}

	// a newer challenge may have replaced the one challenged is answering
	competing := make(map[string]bool)
	if cur.From != challenger {
		competing[cur.From] = true
	}
	// a challenge can land in the slot between the read and the remove
	all, err := store.List[models.Challenge](ctx, p.store, store.Challenges)
	if err != nil {
		return "", fmt.Errorf("scan challenges: %w", err)
	}
	for key, c := range all {
		if key == challenged && c.From != challenger {
			if err := p.store.Remove(ctx, store.ChallengePath(key)); err != nil {
				return "", fmt.Errorf("remove competing challenge: %w", err)
			}
			competing[c.From] = true
		}
	}
	for from := range competing {
		if err := p.notify.Send(ctx, notify.AcceptedAnother(challenged, from)); err != nil {
			logger.Log.Warnf("challenge: tell %s that %s accepted another: %v", from, challenged, err)
		}
	}

	for _, name := range []string{challenger, challenged} {
		pl, _, err := store.Get[models.Player](ctx, p.store, store.PlayerPath(name))
		if err != nil {
			return "", fmt.Errorf("read player %s: %w", name, err)
		}
		if pl != nil && pl.RoomID != "" {
			return "", fmt.Errorf("%w: %s", ErrPlayerBusy, name)
		}
	}

	room, err := p.rooms.Create(ctx, challenger, challenged)
	if err != nil {
		return "", err
	}
	logger.Log.Infof("challenge %s -> %s accepted, room %s", challenger, challenged, room.ID)
	return room.ID, nil
}

// Decline consumes challenged's pending challenge and tells the sender.
// Without a pending challenge it does nothing.
func (p *Protocol) Decline(ctx context.Context, challenged string) error {
	path := store.ChallengePath(challenged)
	cur, _, err := store.Get[models.Challenge](ctx, p.store, path)
	if err != nil {
		return fmt.Errorf("read challenge for %s: %w", challenged, err)
	}
	if cur == nil {
		return nil
	}
	if err := p.store.Remove(ctx, path); err != nil {
		return fmt.Errorf("remove challenge for %s: %w", challenged, err)
	}
	return p.notify.Send(ctx, notify.ChallengeDeclined(challenged, cur.From))
}

// Pending returns the challenge waiting for username, or nil.
func (p *Protocol) Pending(ctx context.Context, username string) (*models.Challenge, error) {
	c, _, err := store.Get[models.Challenge](ctx, p.store, store.ChallengePath(username))
	return c, err
}

func (p *Protocol) Watch(ctx context.Context, username string, fn func(*models.Challenge)) (store.Unsubscribe, error) {
	return store.Watch(ctx, p.store, store.ChallengePath(username), fn)
}
