package hashing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"go.uber.org/zap"

	"cashback-service/internal/config"
	"cashback-service/internal/util"
)

var ErrEmptyPepper = errors.New("hashing: pepper must not be empty")

// Hasher derives the stored form of one-time codes. The digest is keyed by a
// server-side pepper and bound to the purpose and email, so a code issued
// for one challenge never matches another.
type Hasher struct {
	pepper []byte
}

func NewHasher(pepper string) (*Hasher, error) {
	if pepper == "" {
		return nil, ErrEmptyPepper
	}
	return &Hasher{pepper: []byte(pepper)}, nil
}

// NewHasherFromConfig uses OTP_PEPPER. Outside production a missing pepper
// is replaced by a random one, which only works for a single replica.
func NewHasherFromConfig(cfg *config.Config) (*Hasher, error) {
	if cfg.Auth.OTPPepper != "" {
		return NewHasher(cfg.Auth.OTPPepper)
	}
	if cfg.IsProduction() {
		return nil, ErrEmptyPepper
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	util.Warn("OTP_PEPPER not set, using an ephemeral pepper", zap.String("environment", cfg.Environment))
	return &Hasher{pepper: buf}, nil
}

// HashOTP returns the hex HMAC-SHA256 of purpose|email|code.
func (h *Hasher) HashOTP(purpose, email, code string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(purpose))
	mac.Write([]byte{0})
	mac.Write([]byte(email))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	sum := mac.Sum(nil)

	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}

func (h *Hasher) VerifyOTP(purpose, email, code string, stored []byte) bool {
	return hmac.Equal(h.HashOTP(purpose, email, code), stored)
}
