// Package persist is the boundary to the session-persistence collaborator.
// The live room is always the source of truth; writes here are best effort
// durability, reads are on-demand seeds for freshly created rooms.
package persist

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"codesync/internal/models"
)

// ErrNotFound is returned when no metadata has been recorded for a session.
var ErrNotFound = errors.New("session not found")

type Store interface {
	GetSessionMetadata(ctx context.Context, roomID string) (models.SessionMetadata, error)
	SetSessionLanguage(ctx context.Context, roomID string, lang models.Language) error
}

// RedisStore keeps session metadata in a Redis hash per session.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func sessionKey(roomID string) string { return "session:" + roomID }

func (s *RedisStore) GetSessionMetadata(ctx context.Context, roomID string) (models.SessionMetadata, error) {
	fields, err := s.rdb.HGetAll(ctx, sessionKey(roomID)).Result()
	if err != nil {
		return models.SessionMetadata{}, err
	}
	if len(fields) == 0 {
		return models.SessionMetadata{}, ErrNotFound
	}
	return models.SessionMetadata{
		ID:       roomID,
		Language: models.Language(fields["language"]),
	}, nil
}

func (s *RedisStore) SetSessionLanguage(ctx context.Context, roomID string, lang models.Language) error {
	return s.rdb.HSet(ctx, sessionKey(roomID), "language", string(lang)).Err()
}
