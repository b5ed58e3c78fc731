package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/notify"
	"github.com/wfunc/rpsarena/store"
)

// RequestRematch asks to to play another round in roomID. The current round
// must have been resolved.
func (e *Engine) RequestRematch(ctx context.Context, from, to, roomID string) error {
	room, err := e.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Opponent(from) != to {
		return fmt.Errorf("%w: %s and %s in %s", ErrNotInRoom, from, to, roomID)
	}
	if err := e.lifecycle.Check(room, models.RoomWaiting); err != nil {
		return err
	}
	return e.notify.Send(ctx, notify.RematchRequest(from, to, roomID))
}

// AcceptRematch is called by to in answer to from's request. It resets the
// round, keeping the cumulative scores, and tells from.
func (e *Engine) AcceptRematch(ctx context.Context, from, to, roomID string) (*models.Room, error) {
	if err := e.notify.Clear(ctx, to); err != nil {
		logger.Log.Warnf("rematch: clear inbox of %s: %v", to, err)
	}

	unlock := e.lock(roomID)
	defer unlock()

	room, err := e.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Opponent(to) != from {
		return nil, fmt.Errorf("%w: %s and %s in %s", ErrNotInRoom, from, to, roomID)
	}
	if err := e.lifecycle.Rematch(room, e.clock.Now()); err != nil {
		return nil, err
	}
	if err := store.Put(ctx, e.store, store.RoomPath(roomID), room); err != nil {
		return nil, fmt.Errorf("reset round: %w", err)
	}
	logger.Log.Infof("room %s: round %d accepted by %s", roomID, room.Round(), to)

	if err := e.notify.Send(ctx, notify.RematchAccepted(to, from, roomID, room.Round())); err != nil {
		return room, err
	}
	return room, nil
}

// DeclineRematch is called by to in answer to from's request. The room from
// is in is removed, both players are released and waiters hear about each of
// them. from is told even when no room was found.
func (e *Engine) DeclineRematch(ctx context.Context, from, to string) error {
	if err := e.notify.Clear(ctx, to); err != nil {
		logger.Log.Warnf("rematch: clear inbox of %s: %v", to, err)
	}

	var errs []error
	requester, _, err := store.Get[models.Player](ctx, e.store, store.PlayerPath(from))
	if err != nil {
		errs = append(errs, fmt.Errorf("read %s: %w", from, err))
	} else if requester != nil && requester.RoomID != "" {
		roomID := requester.RoomID
		unlock := e.lock(roomID)
		if err := e.store.Remove(ctx, store.RoomPath(roomID)); err != nil {
			errs = append(errs, fmt.Errorf("remove room %s: %w", roomID, err))
		}
		for _, name := range []string{from, to} {
			if err := e.release(ctx, name, roomID); err != nil {
				errs = append(errs, err)
			}
		}
		unlock()
		if len(errs) > 0 {
			e.partialFailure("rematch_decline", roomID, errors.Join(errs...))
		}
		e.matchFreed(ctx, "rematch", from, to)
	}

	if err := e.notify.Send(ctx, notify.RematchDeclined(to, from)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LeaveGame takes player out of their room but keeps them in the arena. The
// opponent is told, the room is removed and the matchmaker runs again for
// both freed players. A player without a room is left alone.
func (e *Engine) LeaveGame(ctx context.Context, player string) error {
	p, _, err := store.Get[models.Player](ctx, e.store, store.PlayerPath(player))
	if err != nil {
		return fmt.Errorf("read %s: %w", player, err)
	}
	if p == nil || p.RoomID == "" {
		return nil
	}

	opponent, err := e.teardown(ctx, player, p.RoomID)
	freed := []string{player}
	if opponent != "" {
		freed = append(freed, opponent)
	}
	e.matchFreed(ctx, "leave game", freed...)
	return err
}

// LeaveArena is the logout half that concerns rooms. The room is torn down
// like LeaveGame but no matchmaking runs for the opponent. Marking the player
// inactive is up to presence.
func (e *Engine) LeaveArena(ctx context.Context, player string) error {
	p, _, err := store.Get[models.Player](ctx, e.store, store.PlayerPath(player))
	if err != nil {
		return fmt.Errorf("read %s: %w", player, err)
	}
	if p == nil || p.RoomID == "" {
		return nil
	}
	_, err = e.teardown(ctx, player, p.RoomID)
	return err
}

// matchFreed pairs waiters and tells the rest about each freed player.
func (e *Engine) matchFreed(ctx context.Context, op string, freed ...string) {
	if _, err := e.matcher.AutoMatch(ctx); err != nil {
		logger.Log.Warnf("%s: auto match: %v", op, err)
	}
	for _, name := range freed {
		if _, err := e.matcher.NotifyAvailable(ctx, name); err != nil {
			logger.Log.Warnf("%s: notify available for %s: %v", op, name, err)
		}
	}
}

// teardown removes roomID on behalf of player and releases both sides. It
// returns the opponent, or "" when the room is already gone and only player
// was released.
func (e *Engine) teardown(ctx context.Context, player, roomID string) (string, error) {
	unlock := e.lock(roomID)
	defer unlock()

	room, err := e.Get(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return "", e.release(ctx, player, roomID)
	}
	if err != nil {
		return "", err
	}

	var errs []error
	opponent := room.Opponent(player)
	if opponent != "" {
		if err := e.notify.Send(ctx, notify.PlayerLeft(player, opponent, roomID)); err != nil {
			logger.Log.Warnf("room %s: tell %s that %s left: %v", roomID, opponent, player, err)
		}
	}
	if err := e.store.Remove(ctx, store.RoomPath(roomID)); err != nil {
		errs = append(errs, fmt.Errorf("remove room %s: %w", roomID, err))
	}
	names := room.Players[:]
	if !room.Has(player) {
		names = append(names, player)
	}
	for _, name := range names {
		if err := e.release(ctx, name, roomID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		e.partialFailure("room_teardown", roomID, err)
		return opponent, err
	}
	logger.Log.Infof("room %s closed by %s", roomID, player)
	return opponent, nil
}
