// Package matchmaker keeps the waiting list of players looking for an
// opponent and tells them when someone becomes free.
package matchmaker

import (
	"context"
	"fmt"
	"sort"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/notify"
	"github.com/wfunc/rpsarena/store"
)

// Notifier delivers matchmaking notifications.
type Notifier interface {
	Send(ctx context.Context, n *models.Notification) error
}

type WaitingList struct {
	store  store.Store
	clock  clockwork.Clock
	notify Notifier
}

func NewWaitingList(s store.Store, clock clockwork.Clock, n Notifier) *WaitingList {
	return &WaitingList{store: s, clock: clock, notify: n}
}

// Join adds or refreshes the player's entry.
func (w *WaitingList) Join(ctx context.Context, username string) error {
	if err := store.ValidateKey(username); err != nil {
		return err
	}
	entry := &models.WaitingEntry{
		Username: username,
		JoinedAt: w.clock.Now(),
		Status:   models.StatusWaiting,
	}
	if err := store.Put(ctx, w.store, store.WaitingPath(username), entry); err != nil {
		return fmt.Errorf("join waiting list: %w", err)
	}
	return nil
}

func (w *WaitingList) Leave(ctx context.Context, username string) error {
	if err := w.store.Remove(ctx, store.WaitingPath(username)); err != nil {
		return fmt.Errorf("leave waiting list: %w", err)
	}
	return nil
}

// List returns waiting entries oldest first.
func (w *WaitingList) List(ctx context.Context) ([]models.WaitingEntry, error) {
	all, err := store.List[models.WaitingEntry](ctx, w.store, store.WaitingList)
	if err != nil {
		return nil, err
	}
	return Waiting(all), nil
}

func (w *WaitingList) Watch(ctx context.Context, fn func([]models.WaitingEntry)) (store.Unsubscribe, error) {
	return store.WatchAll(ctx, w.store, store.WaitingList, func(all map[string]models.WaitingEntry) {
		fn(Waiting(all))
	})
}

// Waiting keeps entries in the waiting status, ordered by JoinedAt with
// username breaking ties.
func Waiting(all map[string]models.WaitingEntry) []models.WaitingEntry {
	out := make([]models.WaitingEntry, 0, len(all))
	for name, e := range all {
		if e.Status != models.StatusWaiting {
			continue
		}
		if e.Username == "" {
			e.Username = name
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].Username < out[j].Username
	})
	return out
}

// NotifyAvailable tells every waiter that freed can be challenged and drops
// them from the list. It returns the waiters that were told.
func (w *WaitingList) NotifyAvailable(ctx context.Context, freed string) ([]string, error) {
	waiters, err := w.List(ctx)
	if err != nil {
		return nil, err
	}

	var told []string
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range waiters {
		if e.Username == freed {
			continue
		}
		told = append(told, e.Username)
		g.Go(func() error {
			return w.hand(gctx, e.Username, freed)
		})
	}
	if err := g.Wait(); err != nil {
		return told, fmt.Errorf("notify waiters of %s: %w", freed, err)
	}
	if len(told) > 0 {
		logger.Log.Infof("matchmaker: told %d waiters that %s is available", len(told), freed)
	}
	return told, nil
}

// AutoMatch pairs the two oldest waiters by telling each about the other.
// No room is created; they still have to challenge each other.
func (w *WaitingList) AutoMatch(ctx context.Context) ([]string, error) {
	waiters, err := w.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(waiters) < 2 {
		return nil, nil
	}

	a, b := waiters[0].Username, waiters[1].Username
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.hand(gctx, a, b) })
	g.Go(func() error { return w.hand(gctx, b, a) })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("auto match %s and %s: %w", a, b, err)
	}
	logger.Log.Infof("matchmaker: paired %s and %s", a, b)
	return []string{a, b}, nil
}

// hand tells waiter about available, then removes them from the list. A
// waiter that could not be told keeps their place.
func (w *WaitingList) hand(ctx context.Context, waiter, available string) error {
	if err := w.notify.Send(ctx, notify.PlayerAvailable(waiter, available)); err != nil {
		return err
	}
	return w.store.Remove(ctx, store.WaitingPath(waiter))
}
