package redis

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the owner-scoped record store backed by Redis. Bookmark
// values live as JSON, one key per record, with a per-owner ZSET index
// ordered by creation timestamp. Mutations publish change events on the
// owner's pub/sub channel.
type Store struct {
	client *redis.Client
	now    func() time.Time // injectable for tests
}

// NewStore creates a new Redis-backed store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		now:    time.Now,
	}
}

// Client exposes the underlying connection for readiness checks.
func (s *Store) Client() *redis.Client {
	return s.client
}
