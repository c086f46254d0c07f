package cooldown

import (
	"context"
	"time"

	"restricted-promotion/models"
)

// Store keeps the last accepted advertisement per target server and per
// (target server, author) pair, together with the message of the author's
// advertisement.
//
// Get returns a nil record when the server was never advertised. Callers
// serialize Get followed by Upsert per server; implementations only need
// to make each call individually safe for concurrent use.
type Store interface {
	Get(ctx context.Context, serverID string) (*models.CooldownRecord, error)
	Upsert(ctx context.Context, serverID, authorID string, msg models.MessageRef, at time.Time) error
	Close() error
}

// Pruner is implemented by stores that can drop timestamps older than a
// cutoff. It returns the number of removed timestamps.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}
