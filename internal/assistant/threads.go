package assistant

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ThreadStore maps users to their OpenAI thread IDs so a conversation
// keeps its context across messages. Get returns "" for unseen users.
type ThreadStore interface {
	Get(ctx context.Context, userID int64) (string, error)
	Set(ctx context.Context, userID int64, threadID string) error
	Delete(ctx context.Context, userID int64) error
}

// MemoryThreadStore keeps thread IDs in process memory.
type MemoryThreadStore struct {
	mu      sync.RWMutex
	threads map[int64]string
}

// NewMemoryThreadStore creates an empty in-memory thread store.
func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[int64]string)}
}

func (s *MemoryThreadStore) Get(_ context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threads[userID], nil
}

func (s *MemoryThreadStore) Set(_ context.Context, userID int64, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[userID] = threadID
	return nil
}

func (s *MemoryThreadStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, userID)
	return nil
}

// RedisThreadStore keeps thread IDs in Redis alongside Redis-backed sessions.
type RedisThreadStore struct {
	redis *redis.Client
}

// NewRedisThreadStore creates a Redis-backed thread store.
func NewRedisThreadStore(client *redis.Client) *RedisThreadStore {
	if client == nil {
		panic("assistant: redis client cannot be nil")
	}
	return &RedisThreadStore{redis: client}
}

func (s *RedisThreadStore) Get(ctx context.Context, userID int64) (string, error) {
	val, err := s.redis.Get(ctx, threadKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("assistant: failed to load thread id: %w", err)
	}
	return val, nil
}

func (s *RedisThreadStore) Set(ctx context.Context, userID int64, threadID string) error {
	if err := s.redis.Set(ctx, threadKey(userID), threadID, 0).Err(); err != nil {
		return fmt.Errorf("assistant: failed to persist thread id: %w", err)
	}
	return nil
}

func (s *RedisThreadStore) Delete(ctx context.Context, userID int64) error {
	if err := s.redis.Del(ctx, threadKey(userID)).Err(); err != nil {
		return fmt.Errorf("assistant: failed to delete thread id: %w", err)
	}
	return nil
}

func threadKey(userID int64) string {
	return fmt.Sprintf("thread:%d", userID)
}

var _ ThreadStore = (*MemoryThreadStore)(nil)
var _ ThreadStore = (*RedisThreadStore)(nil)
