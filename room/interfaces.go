package room

import (
	"context"

	"github.com/wfunc/rpsarena/models"
)

// Notifier is the inbox the engine writes lifecycle events to. It is
// defined here to keep room independent of the notify package.
type Notifier interface {
	Send(ctx context.Context, n *models.Notification) error
	Clear(ctx context.Context, username string) error
}

// Matchmaker is re-checked whenever a game ends and players become free.
type Matchmaker interface {
	AutoMatch(ctx context.Context) ([]string, error)
	NotifyAvailable(ctx context.Context, freed string) ([]string, error)
}

// Archive keeps resolved rounds. It is optional.
type Archive interface {
	SaveRound(ctx context.Context, r *models.RoundRecord) error
}
