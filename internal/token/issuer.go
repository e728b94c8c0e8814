// Package token issues and validates the access/refresh JWT pair handed out
// after signup, login and refresh.
package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cashback-service/internal/config"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
}

// Subject is the identity a token pair is issued for.
type Subject struct {
	UserID string
	Email  string
	Role   string
}

type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	ExpiresIn        int64     `json:"expiresIn"`
	RefreshJTI       string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

type Issuer struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer signs RS256 for RSA keys and ES256 for P-256 keys.
func NewIssuer(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	return &Issuer{
		privateKey: privateKey,
		publicKey:  publicKey,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

func NewIssuerFromConfig(cfg *config.Config) (*Issuer, error) {
	signer, err := ParsePrivateKey(cfg.Auth.JWTPrivateKey)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(cfg.Auth.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return NewIssuer(signer, pub, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
}

func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func (i *Issuer) IssuePair(sub Subject) (*Pair, error) {
	access, _, _, err := i.issue(sub, TypeAccess, i.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, jti, refreshExp, err := i.issue(sub, TypeRefresh, i.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(i.accessTTL.Seconds()),
		RefreshJTI:       jti,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) issue(sub Subject, typ string, ttl time.Duration) (string, string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := i.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sub.UserID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: sub.Email,
		Role:  sub.Role,
		Type:  typ,
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.privateKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

func (i *Issuer) ValidateAccess(tokenString string) (*Claims, error) {
	return i.validate(tokenString, TypeAccess)
}

func (i *Issuer) ValidateRefresh(tokenString string) (*Claims, error) {
	return i.validate(tokenString, TypeRefresh)
}

func (i *Issuer) validate(tokenString, typ string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return i.publicKey, nil },
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != typ || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
