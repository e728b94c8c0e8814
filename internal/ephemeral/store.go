// Package ephemeral holds short-lived state: OTP challenges, pending
// signups, refresh sessions and rate-limit counters. Every key expires.
package ephemeral

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidTTL = errors.New("ephemeral: ttl must be positive")

type Store interface {
	// Put stores value under key for ttl, replacing any previous value.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	// IncrementWithExpiry increments the counter at key. The window starts
	// when the counter is created and is not extended by later increments.
	IncrementWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error)
	// CompareAndDelete removes key only if it currently holds expected and
	// reports whether it did.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
}
