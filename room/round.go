package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/rpsarena/logger"
	"github.com/wfunc/rpsarena/models"
	"github.com/wfunc/rpsarena/notify"
	"github.com/wfunc/rpsarena/rules"
	"github.com/wfunc/rpsarena/store"
)

// ChoiceRequest is one player's move. Round 0 means the room's current round.
type ChoiceRequest struct {
	RoomID string
	Player string
	Choice rules.Choice
	Round  int
}

// SubmitChoice records the player's choice for the current round and moves
// the room to playing. The opponent is told when this is the first choice
// of the round.
func (e *Engine) SubmitChoice(ctx context.Context, req ChoiceRequest) (*models.Room, error) {
	if !req.Choice.Valid() {
		return nil, fmt.Errorf("%w: %q", rules.ErrInvalidChoice, req.Choice)
	}

	unlock := e.lock(req.RoomID)
	defer unlock()

	room, err := e.Get(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	side := room.Side(req.Player)
	if side < 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotInRoom, req.Player, req.RoomID)
	}
	if room.Status == models.RoomCompleted || room.Resolved() {
		return nil, ErrRoundComplete
	}
	if req.Round != 0 && req.Round != room.Round() {
		return nil, fmt.Errorf("%w: got %d, room is on %d", ErrStaleRound, req.Round, room.Round())
	}
	if room.ChoiceOf(req.Player) != "" {
		return nil, ErrAlreadyChose
	}

	first := room.Status == models.RoomWaiting
	gd := room.Data()
	gd.Sides[side].Choice = req.Choice
	gd.RoundNumber = room.Round()
	gd.LastUpdated = e.clock.Now()
	if err := e.lifecycle.Start(room); err != nil {
		return nil, err
	}
	if err := store.Put(ctx, e.store, store.RoomPath(room.ID), room); err != nil {
		return nil, fmt.Errorf("submit choice: %w", err)
	}

	if first {
		opponent := room.Opponent(req.Player)
		if err := e.notify.Send(ctx, notify.RoundStarted(req.Player, opponent, room.ID, gd.RoundNumber)); err != nil {
			logger.Log.Warnf("room %s: round started notification: %v", room.ID, err)
		}
	}
	return room, nil
}

// Outcome describes a resolution attempt. Skipped is set when the round had
// already been resolved by an earlier attempt.
type Outcome struct {
	Room    *models.Room
	Results [2]rules.Result
	Skipped bool
}

// Resolve computes and writes the current round's results. Only the
// participant chosen by rules.Leader may call it, and it re-reads the room
// first so a round that already has results is never scored twice. The room
// is written before player stats, so stats are only touched by the attempt
// that set the results.
func (e *Engine) Resolve(ctx context.Context, roomID, resolver string) (*Outcome, error) {
	unlock := e.lock(roomID)
	defer unlock()

	room, err := e.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	opponent := room.Opponent(resolver)
	if opponent == "" {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotInRoom, resolver, roomID)
	}
	if !rules.IsResolver(resolver, opponent) {
		return nil, fmt.Errorf("%w: %s", ErrNotResolver, resolver)
	}
	if !room.BothChosen() {
		return nil, ErrRoundIncomplete
	}
	if room.Resolved() {
		e.monitor.IncDuplicateResolutions()
		logger.Log.Debugf("room %s round %d already resolved", roomID, room.Round())
		return &Outcome{Room: room, Skipped: true}, nil
	}

	now := e.clock.Now()
	gd := room.Data()
	r0 := rules.Decide(gd.Sides[0].Choice, gd.Sides[1].Choice)
	results := [2]rules.Result{r0, r0.Complement()}
	for i := range gd.Sides {
		gd.Sides[i].Result = results[i]
		if results[i] == rules.Win {
			gd.Sides[i].Score++
		}
	}
	gd.LastUpdated = now
	if err := e.lifecycle.Complete(room); err != nil {
		return nil, err
	}
	if err := store.Put(ctx, e.store, store.RoomPath(roomID), room); err != nil {
		return nil, fmt.Errorf("write results: %w", err)
	}

	var errs []error
	for i, name := range room.Players {
		result := results[i]
		_, err := store.Update(ctx, e.store, store.PlayerPath(name), func(cur *models.Player) *models.Player {
			if cur == nil {
				cur = &models.Player{Username: name}
			}
			cur.Record(result)
			cur.LastSeen = now
			return cur
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s for %s: %w", result, name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		e.partialFailure("round_stats", roomID, err)
		return nil, err
	}

	e.monitor.IncRoundsResolved()
	logger.Log.Infof("room %s round %d: %s %s, %s %s", roomID, gd.RoundNumber,
		room.Players[0], results[0], room.Players[1], results[1])

	if e.archive != nil {
		record := &models.RoundRecord{
			RoomID:      roomID,
			RoundNumber: gd.RoundNumber,
			Players:     room.Players,
			Choices:     [2]rules.Choice{gd.Sides[0].Choice, gd.Sides[1].Choice},
			Results:     results,
			ResolvedAt:  now,
		}
		if err := e.archive.SaveRound(ctx, record); err != nil {
			logger.Log.Warnf("room %s: archive round %d: %v", roomID, gd.RoundNumber, err)
		}
	}
	return &Outcome{Room: room, Results: results}, nil
}

// MaybeResolve is called by each participant whenever it observes its room.
// It resolves only when self is the leader, both choices are in and no
// result exists yet. Otherwise it returns nil.
func (e *Engine) MaybeResolve(ctx context.Context, room *models.Room, self string) (*Outcome, error) {
	if room == nil || room.Status != models.RoomPlaying {
		return nil, nil
	}
	opponent := room.Opponent(self)
	if opponent == "" || !rules.IsResolver(self, opponent) {
		return nil, nil
	}
	if !room.BothChosen() || room.Resolved() {
		return nil, nil
	}
	out, err := e.Resolve(ctx, room.ID, self)
	if errors.Is(err, ErrRoomNotFound) {
		return nil, nil
	}
	return out, err
}
