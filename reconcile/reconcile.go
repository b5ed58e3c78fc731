// Package reconcile repairs the store after multi-document mutations that
// stopped part way. Every repair is an ordinary store write, so a sweep is
// as best-effort as the mutations it cleans up after.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/monitor"
	"github.com/wfunc/rpsarena/presence"
	"github.com/wfunc/rpsarena/store"
)

const (
	RepairStaleRef      = "stale_room_ref"
	RepairOrphanRoom    = "orphan_room"
	RepairAbandonedRoom = "abandoned_room"
)

// Report lists what one sweep changed.
type Report struct {
	StaleRefs      []string
	OrphanRooms    []string
	AbandonedRooms []string
	Rooms          int
	Online         int
}

func (r *Report) Repairs() int {
	return len(r.StaleRefs) + len(r.OrphanRooms) + len(r.AbandonedRooms)
}

type Sweeper struct {
	store       store.Store
	clock       clockwork.Clock
	threshold   time.Duration
	orphanGrace time.Duration
	monitor     *monitor.Monitor
}

func NewSweeper(s store.Store, clock clockwork.Clock, threshold, orphanGrace time.Duration, m *monitor.Monitor) *Sweeper {
	return &Sweeper{store: s, clock: clock, threshold: threshold, orphanGrace: orphanGrace, monitor: m}
}

// Sweep makes one pass:
//   - a player roomId naming an absent room is cleared
//   - a room past the grace period that no listed player points at is removed
//   - a room whose players are both offline is removed and both are released
//
// The roster is read before the rooms. Rooms are written before the player
// references to them, so a reference seen in the roster names a room that
// existed when the rooms are read unless it was removed since.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	roster, err := store.List[models.Player](ctx, s.store, store.Players)
	if err != nil {
		return nil, fmt.Errorf("read players: %w", err)
	}
	rooms, err := store.List[models.Room](ctx, s.store, store.Rooms)
	if err != nil {
		return nil, fmt.Errorf("read rooms: %w", err)
	}

	now := s.clock.Now()
	report := &Report{}
	var errs []error

	names := make([]string, 0, len(roster))
	for name := range roster {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := roster[name]
		if presence.IsOnline(&p, now, s.threshold) {
			report.Online++
		}
		if p.RoomID == "" {
			continue
		}
		if _, ok := rooms[p.RoomID]; ok {
			continue
		}
		if err := s.release(ctx, name, p.RoomID); err != nil {
			errs = append(errs, err)
			continue
		}
		report.StaleRefs = append(report.StaleRefs, name)
		s.repaired(RepairStaleRef, "cleared %s's reference to missing room %s", name, p.RoomID)
	}

	ids := make([]string, 0, len(rooms))
	for id := range rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		room := rooms[id]
		referenced := false
		online := 0
		for _, name := range room.Players {
			p, ok := roster[name]
			if !ok {
				continue
			}
			if p.RoomID == id {
				referenced = true
			}
			if presence.IsOnline(&p, now, s.threshold) {
				online++
			}
		}

		switch {
		case !referenced && now.Sub(room.CreatedAt) >= s.orphanGrace:
			if err := s.store.Remove(ctx, store.RoomPath(id)); err != nil {
				errs = append(errs, fmt.Errorf("remove orphan room %s: %w", id, err))
				continue
			}
			report.OrphanRooms = append(report.OrphanRooms, id)
			s.repaired(RepairOrphanRoom, "removed room %s, no player points at it", id)
		case online == 0:
			if err := s.store.Remove(ctx, store.RoomPath(id)); err != nil {
				errs = append(errs, fmt.Errorf("remove abandoned room %s: %w", id, err))
				continue
			}
			for _, name := range room.Players {
				if err := s.release(ctx, name, id); err != nil {
					errs = append(errs, err)
				}
			}
			report.AbandonedRooms = append(report.AbandonedRooms, id)
			s.repaired(RepairAbandonedRoom, "removed room %s, both players are offline", id)
		default:
			report.Rooms++
		}
	}

	s.monitor.SetActiveRooms(report.Rooms)
	s.monitor.SetOnlinePlayers(report.Online)
	return report, errors.Join(errs...)
}

// Run is the scheduled entry point. It logs instead of returning.
func (s *Sweeper) Run(ctx context.Context) {
	report, err := s.Sweep(ctx)
	if err != nil {
		logger.Log.Errorf("reconcile: %v", err)
	}
	if report != nil && report.Repairs() > 0 {
		logger.Log.Infof("reconcile: %d repairs, %d rooms, %d online", report.Repairs(), report.Rooms, report.Online)
	}
}

func (s *Sweeper) release(ctx context.Context, username, roomID string) error {
	_, err := store.Update(ctx, s.store, store.PlayerPath(username), func(cur *models.Player) *models.Player {
		if cur == nil || cur.RoomID != roomID {
			return nil
		}
		cur.RoomID = ""
		return cur
	})
	if err != nil {
		return fmt.Errorf("release %s from %s: %w", username, roomID, err)
	}
	return nil
}

func (s *Sweeper) repaired(kind, format string, args ...any) {
	logger.Log.Warnf("reconcile: "+format, args...)
	s.monitor.IncRepair(kind)
}
