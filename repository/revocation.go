package repository

import (
	"context"
	"time"
)

// RevocationList remembers refresh-token ids that must no longer be honoured,
// even when they still verify. Entries may be dropped once the token expires.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
