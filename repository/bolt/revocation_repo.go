package bolt

import (
	"context"
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/courier-auth/repository"
)

// Bucket is the bbolt bucket holding revoked refresh-token ids.
const Bucket = "revoked_refresh"

// RevocationRepository is a single-node refresh-token deny-list persisted in BoltDB,
// so revocations survive a process restart.
type RevocationRepository struct {
	db     *bolt.DB
	bucket []byte
	now    func() time.Time
}

var _ repository.RevocationList = (*RevocationRepository)(nil)

// NewRevocationRepository wraps an open database. The bucket must already exist.
func NewRevocationRepository(db *bolt.DB) *RevocationRepository {
	return &RevocationRepository{db: db, bucket: []byte(Bucket), now: time.Now}
}

func (r *RevocationRepository) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if r == nil || r.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if tokenID == "" || !until.After(r.now()) {
		return nil
	}
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(until.Unix()))
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(r.bucket).Put([]byte(tokenID), value)
	})
}

func (r *RevocationRepository) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, bolt.ErrDatabaseNotOpen
	}
	if tokenID == "" {
		return false, nil
	}
	var revoked bool
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(r.bucket).Get([]byte(tokenID))
		if len(v) != 8 {
			return nil
		}
		until := time.Unix(int64(binary.BigEndian.Uint64(v)), 0)
		revoked = until.After(r.now())
		return nil
	})
	return revoked, err
}

// Purge removes entries whose tokens have expired and returns how many were dropped.
func (r *RevocationRepository) Purge(_ context.Context) (int, error) {
	if r == nil || r.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	now := r.now()
	var removed int
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket)
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if len(v) != 8 || !time.Unix(int64(binary.BigEndian.Uint64(v)), 0).After(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Size returns the number of stored revocations.
func (r *RevocationRepository) Size() (int, error) {
	if r == nil || r.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := r.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(r.bucket).Stats().KeyN
		return nil
	})
	return count, err
}
