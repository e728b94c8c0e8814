package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cashback-service/internal/encryption"
	"cashback-service/internal/ephemeral"
	"cashback-service/internal/hashing"
	"cashback-service/internal/models"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newStore() (*ephemeral.MemoryStore, *clock) {
	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return ephemeral.NewMemoryStoreWithClock(c.Now), c
}

func TestOTPCacheConsumeOnce(t *testing.T) {
	store, _ := newStore()
	h, _ := hashing.NewHasher("pepper")
	c := NewOTPCache(store, h, 10*time.Minute)
	ctx := context.Background()

	if err := c.Issue(ctx, models.OTPPurposeSignup, "a@example.com", "123456"); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	raw, ok, _ := store.Get(ctx, "otp:signup:a@example.com")
	if !ok || string(raw) == "123456" {
		t.Fatalf("stored challenge = %q, %v; want a digest", raw, ok)
	}

	if ok, _ := c.Consume(ctx, models.OTPPurposeSignup, "a@example.com", "000000"); ok {
		t.Fatal("wrong code consumed the challenge")
	}
	if ok, _ := c.Consume(ctx, models.OTPPurposeReset, "a@example.com", "123456"); ok {
		t.Fatal("code consumed under another purpose")
	}
	if ok, err := c.Consume(ctx, models.OTPPurposeSignup, "a@example.com", "123456"); err != nil || !ok {
		t.Fatalf("Consume = %v, %v; want true", ok, err)
	}
	if ok, _ := c.Consume(ctx, models.OTPPurposeSignup, "a@example.com", "123456"); ok {
		t.Fatal("replay consumed the challenge again")
	}
}

func TestOTPCacheExpiry(t *testing.T) {
	store, clk := newStore()
	h, _ := hashing.NewHasher("pepper")
	c := NewOTPCache(store, h, 10*time.Minute)
	ctx := context.Background()

	_ = c.Issue(ctx, models.OTPPurposeSignup, "a@example.com", "123456")
	clk.now = clk.now.Add(11 * time.Minute)
	if ok, _ := c.Consume(ctx, models.OTPPurposeSignup, "a@example.com", "123456"); ok {
		t.Fatal("expired challenge was consumed")
	}
}

func TestRateLimitCache(t *testing.T) {
	store, clk := newStore()
	c := NewRateLimitCache(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := c.Allow(ctx, "otp_send", "a@example.com", 5, 15*time.Minute)
		if err != nil || !ok {
			t.Fatalf("attempt %d denied: %v", i+1, err)
		}
	}
	if ok, _ := c.Allow(ctx, "otp_send", "a@example.com", 5, 15*time.Minute); ok {
		t.Fatal("sixth attempt allowed")
	}
	if ok, _ := c.Allow(ctx, "otp_send", "b@example.com", 5, 15*time.Minute); !ok {
		t.Fatal("other identifier denied")
	}

	clk.now = clk.now.Add(16 * time.Minute)
	if ok, _ := c.Allow(ctx, "otp_send", "a@example.com", 5, 15*time.Minute); !ok {
		t.Fatal("attempt after window denied")
	}
}

type failingStore struct{ ephemeral.Store }

func (failingStore) IncrementWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestRateLimitCacheDeniesOnStoreError(t *testing.T) {
	c := NewRateLimitCache(failingStore{})
	ok, err := c.Allow(context.Background(), "otp_send", "a@example.com", 5, time.Minute)
	if ok || err == nil {
		t.Fatalf("Allow = %v, %v; want false with error", ok, err)
	}
}

func TestSignupCacheRoundTrip(t *testing.T) {
	sealer, err := encryption.NewLocalManager("secret")
	if err != nil {
		t.Fatal(err)
	}
	for name, s := range map[string]Sealer{"plain": nil, "sealed": sealer} {
		t.Run(name, func(t *testing.T) {
			store, clk := newStore()
			c := NewSignupCache(store, s, 30*time.Minute)
			ctx := context.Background()

			in := &models.PendingSignup{Email: "a@example.com", Name: "Asha", Password: "hunter222"}
			if err := c.Save(ctx, in); err != nil {
				t.Fatalf("Save: %v", err)
			}
			raw, _, _ := store.Get(ctx, "signup:a@example.com")
			if s != nil && strings.Contains(string(raw), "hunter222") {
				t.Fatal("sealed payload contains the password")
			}

			got, err := c.Get(ctx, "a@example.com")
			if err != nil || got == nil {
				t.Fatalf("Get = %v, %v", got, err)
			}
			if got.Name != "Asha" || got.Password != "hunter222" {
				t.Errorf("Get = %+v", got)
			}

			clk.now = clk.now.Add(31 * time.Minute)
			if got, _ := c.Get(ctx, "a@example.com"); got != nil {
				t.Fatal("expired pending signup returned")
			}
		})
	}
}

func TestSessionCacheConsume(t *testing.T) {
	store, _ := newStore()
	c := NewSessionCache(store)
	ctx := context.Background()

	_ = c.Create(ctx, "jti-1", "user-1", time.Hour)
	if ok, _ := c.Consume(ctx, "jti-1", "user-2"); ok {
		t.Fatal("session consumed by another user")
	}
	if ok, _ := c.Consume(ctx, "jti-1", "user-1"); !ok {
		t.Fatal("session not consumed")
	}
	if ok, _ := c.Consume(ctx, "jti-1", "user-1"); ok {
		t.Fatal("session consumed twice")
	}
}
