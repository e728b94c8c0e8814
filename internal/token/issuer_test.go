package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	iss, err := NewIssuer(key, &key.PublicKey, "test-issuer", "test-audience", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

func TestIssuePairAndValidate(t *testing.T) {
	iss := newTestIssuer(t)
	sub := Subject{UserID: "u1", Email: "a@example.com", Role: "user"}

	pair, err := iss.IssuePair(sub)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.RefreshJTI == "" {
		t.Fatalf("incomplete pair %+v", pair)
	}
	if pair.ExpiresIn != 900 {
		t.Errorf("ExpiresIn = %d, want 900", pair.ExpiresIn)
	}

	claims, err := iss.ValidateAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "a@example.com" || claims.Role != "user" {
		t.Errorf("claims = %+v", claims)
	}

	rc, err := iss.ValidateRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ValidateRefresh: %v", err)
	}
	if rc.ID != pair.RefreshJTI {
		t.Errorf("refresh jti = %q, want %q", rc.ID, pair.RefreshJTI)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	iss := newTestIssuer(t)
	pair, _ := iss.IssuePair(Subject{UserID: "u1", Role: "user"})

	if _, err := iss.ValidateAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh accepted as access: %v", err)
	}
	if _, err := iss.ValidateRefresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access accepted as refresh: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	iss := newTestIssuer(t)
	pair, _ := iss.IssuePair(Subject{UserID: "u1", Role: "user"})

	if _, err := iss.ValidateAccess("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: %v", err)
	}

	other := newTestIssuer(t)
	if _, err := other.ValidateAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign signature: %v", err)
	}

	wrongAud := newTestIssuer(t)
	wrongAud.privateKey, wrongAud.publicKey = iss.privateKey, iss.publicKey
	wrongAud.audience = "someone-else"
	if _, err := wrongAud.ValidateAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong audience: %v", err)
	}

	iss.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := iss.ValidateAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired access token: %v", err)
	}
}

func TestParseKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	privDER, _ := x509.MarshalPKCS8PrivateKey(key)
	pubDER, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	signer, err := ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	iss, err := NewIssuer(signer, pub, "i", "a", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	if iss.method.Alg() != "RS256" {
		t.Errorf("alg = %s, want RS256", iss.method.Alg())
	}

	if _, err := ParsePrivateKey(""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty key: %v", err)
	}
}
