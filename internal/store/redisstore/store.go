// Package redisstore coordinates workers through redis. Its lock guarantees
// at-most-one active pipeline execution per conversation id.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func lockKey(conversationID uint64) string {
	return fmt.Sprintf("convo:lock:%d", conversationID)
}

// AcquireConversationLock takes a SETNX lock for one conversation. It returns
// false when another worker currently holds the job; the TTL bounds how long
// a crashed worker can pin it.
func (s *Store) AcquireConversationLock(ctx context.Context, conversationID uint64, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, lockKey(conversationID), "1", ttl).Result()
}

func (s *Store) ReleaseConversationLock(ctx context.Context, conversationID uint64) error {
	return s.rdb.Del(ctx, lockKey(conversationID)).Err()
}
