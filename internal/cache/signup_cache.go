package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cashback-service/internal/encryption"
	"cashback-service/internal/ephemeral"
	"cashback-service/internal/models"
	"cashback-service/internal/util"
)

const signupPrefix = "signup:"

// Sealer encrypts pending signups at rest when enabled.
type Sealer interface {
	Seal(ctx context.Context, plaintext, aad []byte) (*encryption.Envelope, error)
	Open(ctx context.Context, env *encryption.Envelope, aad []byte) ([]byte, error)
}

type SignupCache struct {
	store  ephemeral.Store
	sealer Sealer
	ttl    time.Duration
}

// NewSignupCache stores payloads as plain JSON when sealer is nil.
func NewSignupCache(store ephemeral.Store, sealer Sealer, ttl time.Duration) *SignupCache {
	return &SignupCache{store: store, sealer: sealer, ttl: ttl}
}

func signupKey(email string) string {
	return signupPrefix + email
}

func (c *SignupCache) Save(ctx context.Context, p *models.PendingSignup) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := signupKey(p.Email)
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending signup: %w", err)
	}
	if c.sealer != nil {
		env, err := c.sealer.Seal(ctx, raw, []byte(key))
		if err != nil {
			util.Error("failed to seal pending signup", zap.Error(err))
			return err
		}
		if raw, err = json.Marshal(env); err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
	}

	if err := c.store.Put(ctx, key, raw, c.ttl); err != nil {
		util.Error("failed to store pending signup", zap.Error(err))
		return fmt.Errorf("store pending signup: %w", err)
	}
	return nil
}

// Get returns nil when no pending signup exists (never created or expired).
func (c *SignupCache) Get(ctx context.Context, email string) (*models.PendingSignup, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := signupKey(email)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		util.Error("failed to load pending signup", zap.Error(err))
		return nil, fmt.Errorf("load pending signup: %w", err)
	}
	if !ok {
		return nil, nil
	}

	if c.sealer != nil {
		var env encryption.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}
		if raw, err = c.sealer.Open(ctx, &env, []byte(key)); err != nil {
			util.Error("failed to open pending signup", zap.Error(err))
			return nil, err
		}
	}

	var p models.PendingSignup
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending signup: %w", err)
	}
	return &p, nil
}

func (c *SignupCache) Delete(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.store.Delete(ctx, signupKey(email)); err != nil {
		util.Warn("failed to delete pending signup", zap.Error(err))
		return err
	}
	return nil
}
