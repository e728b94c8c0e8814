package cache

import (
	"context"
	"fmt"
	"time"

	"cashback-service/internal/ephemeral"
)

const sessionPrefix = "session:"

// SessionCache tracks live refresh tokens by jti.
type SessionCache struct {
	store ephemeral.Store
}

func NewSessionCache(store ephemeral.Store) *SessionCache {
	return &SessionCache{store: store}
}

func sessionKey(jti string) string {
	return sessionPrefix + jti
}

func (c *SessionCache) Create(ctx context.Context, jti, userID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.store.Put(ctx, sessionKey(jti), []byte(userID), ttl); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Consume ends the session if it belongs to userID. Two concurrent refreshes
// with the same token cannot both succeed.
func (c *SessionCache) Consume(ctx context.Context, jti, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	ok, err := c.store.CompareAndDelete(ctx, sessionKey(jti), []byte(userID))
	if err != nil {
		return false, fmt.Errorf("consume session: %w", err)
	}
	return ok, nil
}

func (c *SessionCache) Revoke(ctx context.Context, jti string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.store.Delete(ctx, sessionKey(jti))
}
