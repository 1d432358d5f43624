package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/courier-auth/repository"
)

type revocationRepository struct {
	client *redislib.Client
	prefix string
	now    func() time.Time
}

// NewRevocationRepository creates a Redis-backed refresh-token deny-list. Keys
// expire on their own once the revoked token could no longer verify.
func NewRevocationRepository(client *redislib.Client) repository.RevocationList {
	return &revocationRepository{
		client: client,
		prefix: "revoked_refresh:",
		now:    time.Now,
	}
}

func (r *revocationRepository) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(tokenID), until.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (r *revocationRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	err := r.client.Get(ctx, r.key(tokenID)).Err()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return true, nil
}

func (r *revocationRepository) key(id string) string {
	return fmt.Sprintf("%s%s", r.prefix, id)
}
