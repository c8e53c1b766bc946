package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/student-tracker-api/internal/models"
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

const sessionKeyPrefix = "session:"

// SessionRepository stores login sessions in Redis with a sliding TTL.
type SessionRepository struct {
	client redis.Cmdable
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(client redis.Cmdable) *SessionRepository {
	return &SessionRepository{client: client}
}

// Save stores the session until ttl elapses.
func (r *SessionRepository) Save(ctx context.Context, session *models.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Find loads a session by id.
func (r *SessionRepository) Find(ctx context.Context, id string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Touch extends the session's lifetime.
func (r *SessionRepository) Touch(ctx context.Context, session *models.Session, ttl time.Duration) error {
	return r.Save(ctx, session, ttl)
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}
