package sessionstore

import (
	"context"
	"time"

	"taskadmin/admin-console/internal/console"
)

const DefaultTTL = 24 * time.Hour

// State is everything kept for one client context between requests.
type State struct {
	Session   *console.Session `json:"session"`
	Params    console.Params   `json:"params"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Store keeps client states by context id. Load returns nil, nil for unknown or
// expired ids.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, id string, st State) error
	Delete(ctx context.Context, id string) error
}

// Purger is implemented by stores that need expired states removed
// explicitly.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Add(ttl)
}
