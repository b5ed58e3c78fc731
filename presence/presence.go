// Package presence tracks player liveness. Nothing is ever evicted: online
// status is a read-time filter over isActive and lastSeen.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/store"
)

var ErrInvalidUsername = errors.New("invalid username")

type Tracker struct {
	store     store.Store
	clock     clockwork.Clock
	threshold time.Duration
}

func NewTracker(s store.Store, clock clockwork.Clock, threshold time.Duration) *Tracker {
	return &Tracker{store: s, clock: clock, threshold: threshold}
}

func (t *Tracker) Threshold() time.Duration {
	return t.threshold
}

// Login creates the player on first sight or reactivates an existing record,
// keeping its stats and room reference.
func (t *Tracker) Login(ctx context.Context, username string) (*models.Player, error) {
	if err := store.ValidateKey(username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	now := t.clock.Now()
	p, err := store.Update(ctx, t.store, store.PlayerPath(username), func(cur *models.Player) *models.Player {
		if cur == nil {
			return models.NewPlayer(username, now)
		}
		cur.Username = username
		cur.IsActive = true
		cur.LastSeen = now
		return cur
	})
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", username, err)
	}
	logger.Log.Infof("player %s logged in", username)
	return p, nil
}

// Heartbeat refreshes lastSeen. A player without a record is left alone.
func (t *Tracker) Heartbeat(ctx context.Context, username string) error {
	now := t.clock.Now()
	_, err := store.Update(ctx, t.store, store.PlayerPath(username), func(cur *models.Player) *models.Player {
		if cur == nil {
			return nil
		}
		cur.LastSeen = now
		return cur
	})
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", username, err)
	}
	return nil
}

// MarkInactive deactivates the player and drops any waiting-list entry. It
// is not atomic with room cleanup.
func (t *Tracker) MarkInactive(ctx context.Context, username string) error {
	now := t.clock.Now()
	_, err := store.Update(ctx, t.store, store.PlayerPath(username), func(cur *models.Player) *models.Player {
		if cur == nil {
			return nil
		}
		cur.IsActive = false
		cur.RoomID = ""
		cur.LastSeen = now
		return cur
	})
	if err != nil {
		return fmt.Errorf("mark %s inactive: %w", username, err)
	}
	if err := t.store.Remove(ctx, store.WaitingPath(username)); err != nil {
		return fmt.Errorf("drop %s from waiting list: %w", username, err)
	}
	logger.Log.Infof("player %s marked inactive", username)
	return nil
}

// Player returns the record, or nil when the player never logged in.
func (t *Tracker) Player(ctx context.Context, username string) (*models.Player, error) {
	p, _, err := store.Get[models.Player](ctx, t.store, store.PlayerPath(username))
	return p, err
}

func (t *Tracker) Roster(ctx context.Context) (map[string]models.Player, error) {
	return store.List[models.Player](ctx, t.store, store.Players)
}

func (t *Tracker) WatchPlayer(ctx context.Context, username string, fn func(*models.Player)) (store.Unsubscribe, error) {
	return store.Watch(ctx, t.store, store.PlayerPath(username), fn)
}

func (t *Tracker) WatchRoster(ctx context.Context, fn func(map[string]models.Player)) (store.Unsubscribe, error) {
	return store.WatchAll(ctx, t.store, store.Players, fn)
}

func (t *Tracker) IsOnline(p *models.Player) bool {
	return IsOnline(p, t.clock.Now(), t.threshold)
}

func (t *Tracker) IsAvailable(p *models.Player, self string) bool {
	return IsAvailable(p, self, t.clock.Now(), t.threshold)
}

// Online lists online players sorted by username.
func (t *Tracker) Online(roster map[string]models.Player) []models.Player {
	now := t.clock.Now()
	return filter(roster, func(p *models.Player) bool {
		return IsOnline(p, now, t.threshold)
	})
}

// Available lists players self could challenge right now.
func (t *Tracker) Available(roster map[string]models.Player, self string) []models.Player {
	now := t.clock.Now()
	return filter(roster, func(p *models.Player) bool {
		return IsAvailable(p, self, now, t.threshold)
	})
}

func IsOnline(p *models.Player, now time.Time, threshold time.Duration) bool {
	return p != nil && p.IsActive && now.Sub(p.LastSeen) < threshold
}

func IsAvailable(p *models.Player, self string, now time.Time, threshold time.Duration) bool {
	return IsOnline(p, now, threshold) && p.RoomID == "" && p.Username != self
}

func filter(roster map[string]models.Player, keep func(*models.Player) bool) []models.Player {
	out := make([]models.Player, 0, len(roster))
	for name, p := range roster {
		if p.Username == "" {
			p.Username = name
		}
		if keep(&p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out
}
