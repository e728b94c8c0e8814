package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cashback-service/internal/ephemeral"
	"cashback-service/internal/hashing"
	"cashback-service/internal/util"
)

const otpPrefix = "otp:"

type OTPCache struct {
	store  ephemeral.Store
	hasher *hashing.Hasher
	ttl    time.Duration
}

func NewOTPCache(store ephemeral.Store, hasher *hashing.Hasher, ttl time.Duration) *OTPCache {
	return &OTPCache{store: store, hasher: hasher, ttl: ttl}
}

func otpKey(purpose, email string) string {
	return otpPrefix + purpose + ":" + email
}

func (c *OTPCache) TTL() time.Duration {
	return c.ttl
}

// Issue stores the digest of code, replacing any outstanding challenge for
// the same purpose and email.
func (c *OTPCache) Issue(ctx context.Context, purpose, email, code string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	digest := c.hasher.HashOTP(purpose, email, code)
	if err := c.store.Put(ctx, otpKey(purpose, email), digest, c.ttl); err != nil {
		util.Error("failed to store OTP challenge", zap.String("purpose", purpose), zap.Error(err))
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

// Consume deletes the challenge if code matches it. Only one caller can
// ever consume a given challenge.
func (c *OTPCache) Consume(ctx context.Context, purpose, email, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	digest := c.hasher.HashOTP(purpose, email, code)
	ok, err := c.store.CompareAndDelete(ctx, otpKey(purpose, email), digest)
	if err != nil {
		util.Error("failed to consume OTP challenge", zap.String("purpose", purpose), zap.Error(err))
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return ok, nil
}

func (c *OTPCache) Delete(ctx context.Context, purpose, email string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.store.Delete(ctx, otpKey(purpose, email))
}
