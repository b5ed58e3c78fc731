// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/rpsarena/models"
)

// Archive keeps resolved rounds outside the shared store, which only holds
// live state.
type Archive interface {
	SaveRound(ctx context.Context, r *models.RoundRecord) error
	RecentRounds(ctx context.Context, username string, limit int) ([]models.RoundRecord, error)
	Round(ctx context.Context, roomID string, number int) (*models.RoundRecord, error)
	Close() error
}

var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)

const defaultLimit = 20

// DSN builds a lib/pq style connection string.
func DSN(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}
