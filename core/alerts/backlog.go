package alerts

import (
	"context"
	"time"

	"github.com/transitio/fleetcoord/core/model"
)

// Backlog retains triggered alerts so a client reconnecting shortly after
// can fetch what the live channel did not deliver. This is the only
// compensation for the registry's best-effort delivery; there is no
// durable per-subscriber queue.
type Backlog interface {
	// Append records the alert. Alerts are immutable once stored.
	Append(ctx context.Context, ev model.AlertEvent) error
	// Since returns the bus's alerts created at or after the given
	// instant, oldest first.
	Since(ctx context.Context, busID string, since time.Time) ([]model.AlertEvent, error)
	// Prune drops alerts older than the cutoff.
	Prune(ctx context.Context, cutoff time.Time) error
}
