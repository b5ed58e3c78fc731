package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/wfunc/rpsarena/models"
)

type roundKey struct {
	roomID string
	number int
}

// MemoryArchive keeps rounds for the life of the process. It backs the
// "none" database driver and tests.
type MemoryArchive struct {
	mutex  sync.RWMutex
	rounds map[roundKey]models.RoundRecord
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{rounds: make(map[roundKey]models.RoundRecord)}
}

func (a *MemoryArchive) SaveRound(ctx context.Context, r *models.RoundRecord) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	key := roundKey{r.RoomID, r.RoundNumber}
	if _, ok := a.rounds[key]; !ok {
		a.rounds[key] = *r
	}
	return nil
}

func (a *MemoryArchive) RecentRounds(ctx context.Context, username string, limit int) ([]models.RoundRecord, error) {
	a.mutex.RLock()
	var out []models.RoundRecord
	for _, r := range a.rounds {
		if r.Involves(username) {
			out = append(out, r)
		}
	}
	a.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ResolvedAt.After(out[j].ResolvedAt)
	})
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *MemoryArchive) Round(ctx context.Context, roomID string, number int) (*models.RoundRecord, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	r, ok := a.rounds[roundKey{roomID, number}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &r, nil
}

func (a *MemoryArchive) Close() error {
	return nil
}
