package state

import (
	"time"

	"github.com/wfunc/rpsarena/models"
)

// RoomLifecycle is waiting -> playing -> completed -> waiting. Removing the
// room document ends the lifecycle from any state and is not modelled here.
type RoomLifecycle struct {
	table *Table[models.RoomStatus, *models.Room]
}

func NewRoomLifecycle() *RoomLifecycle {
	t := NewTable[models.RoomStatus, *models.Room]()
	t.AddTransition(models.RoomWaiting, models.RoomPlaying, nil).
		// the second choice of a round keeps the room playing
		AddTransition(models.RoomPlaying, models.RoomPlaying, nil).
		AddTransition(models.RoomPlaying, models.RoomCompleted, func(r *models.Room) bool {
			return r.BothChosen()
		}).
		AddTransition(models.RoomCompleted, models.RoomWaiting, func(r *models.Room) bool {
			return r.Resolved()
		})
	return &RoomLifecycle{table: t}
}

// Check validates moving r to the given status without changing it.
func (l *RoomLifecycle) Check(r *models.Room, to models.RoomStatus) error {
	return l.table.Check(r, r.Status, to)
}

// Start moves r to playing for its first or second choice.
func (l *RoomLifecycle) Start(r *models.Room) error {
	if err := l.Check(r, models.RoomPlaying); err != nil {
		return err
	}
	r.Status = models.RoomPlaying
	return nil
}

// Complete moves r to completed once both choices are in.
func (l *RoomLifecycle) Complete(r *models.Room) error {
	if err := l.Check(r, models.RoomCompleted); err != nil {
		return err
	}
	r.Status = models.RoomCompleted
	return nil
}

// Rematch resets a completed round and moves r back to waiting.
func (l *RoomLifecycle) Rematch(r *models.Room, now time.Time) error {
	if err := l.Check(r, models.RoomWaiting); err != nil {
		return err
	}
	r.ResetRound(now)
	return nil
}
