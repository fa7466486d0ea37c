package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore persists sessions and intake records in Redis so several
// bot replicas can share conversation state. Keys carry no TTL: a
// session lives until the user restarts or the operator flushes the DB.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		tracer: otel.Tracer("leadbot.internal.session"),
	}
}

// Get returns the stored session or the default when the key is absent.
func (s *RedisStore) Get(ctx context.Context, userID int64) (Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(userID)).Bytes()
	if err == redis.Nil {
		return Default(), nil
	}
	if err != nil {
		span.RecordError(err)
		return Default(), fmt.Errorf("session: failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return Default(), fmt.Errorf("session: failed to decode session: %w", err)
	}
	return sess, nil
}

// Set replaces the stored session wholesale.
func (s *RedisStore) Set(ctx context.Context, userID int64, sess Session) error {
	ctx, span := s.tracer.Start(ctx, "session.set")
	defer span.End()

	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(userID), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

// GetIntake returns the stored intake record, all-empty when absent.
func (s *RedisStore) GetIntake(ctx context.Context, userID int64) (Intake, error) {
	ctx, span := s.tracer.Start(ctx, "session.get_intake")
	defer span.End()

	data, err := s.redis.Get(ctx, intakeKey(userID)).Bytes()
	if err == redis.Nil {
		return Intake{}, nil
	}
	if err != nil {
		span.RecordError(err)
		return Intake{}, fmt.Errorf("session: failed to load intake: %w", err)
	}

	var rec Intake
	if err := json.Unmarshal(data, &rec); err != nil {
		span.RecordError(err)
		return Intake{}, fmt.Errorf("session: failed to decode intake: %w", err)
	}
	return rec, nil
}

// SetIntake replaces the stored intake record wholesale.
func (s *RedisStore) SetIntake(ctx context.Context, userID int64, rec Intake) error {
	ctx, span := s.tracer.Start(ctx, "session.set_intake")
	defer span.End()

	data, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal intake: %w", err)
	}
	if err := s.redis.Set(ctx, intakeKey(userID), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist intake: %w", err)
	}
	return nil
}

// Reset removes the session and zeroes the intake record.
func (s *RedisStore) Reset(ctx context.Context, userID int64) error {
	ctx, span := s.tracer.Start(ctx, "session.reset")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(userID), intakeKey(userID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to reset: %w", err)
	}
	return nil
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

func intakeKey(userID int64) string {
	return fmt.Sprintf("intake:%d", userID)
}

var _ Store = (*RedisStore)(nil)
