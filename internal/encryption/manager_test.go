package encryption

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"

	"cashback-service/internal/config"
)

func TestLocalSealOpen(t *testing.T) {
	m, err := NewLocalManager("secret")
	if err != nil {
		t.Fatalf("NewLocalManager: %v", err)
	}
	ctx := context.Background()

	env, err := m.Seal(ctx, []byte("hunter22"), []byte("signup:a@example.com"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if env.KeyID != "local" || env.Ciphertext == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	// a fresh manager with the same secret has no cache and must unwrap the DEK
	other, _ := NewLocalManager("secret")
	got, err := other.Open(ctx, env, []byte("signup:a@example.com"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "hunter22" {
		t.Errorf("Open = %q", got)
	}

	if _, err := other.Open(ctx, env, []byte("signup:b@example.com")); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong aad err = %v, want ErrDecryptionFailed", err)
	}

	wrong, _ := NewLocalManager("different")
	if _, err := wrong.Open(ctx, env, []byte("signup:a@example.com")); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong secret err = %v, want ErrDecryptionFailed", err)
	}
}

type fakeKMS struct {
	generated int
	decrypted int
}

func (f *fakeKMS) GenerateDataKey(_ context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	f.generated++
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	// "wrapped" form is the key reversed
	wrapped := make([]byte, 32)
	for i := range key {
		wrapped[i] = key[31-i]
	}
	return &kms.GenerateDataKeyOutput{Plaintext: key, CiphertextBlob: wrapped, KeyId: in.KeyId}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.decrypted++
	out := make([]byte, len(in.CiphertextBlob))
	for i := range in.CiphertextBlob {
		out[i] = in.CiphertextBlob[len(in.CiphertextBlob)-1-i]
	}
	return &kms.DecryptOutput{Plaintext: out}, nil
}

func TestKMSSealOpen(t *testing.T) {
	f := &fakeKMS{}
	cfg := &config.Config{KMS: config.KMSConfig{Enabled: true, KeyID: "arn:key"}}
	m, err := NewManager(cfg, f)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	env, err := m.Seal(ctx, []byte("payload"), nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	m.ClearCache()
	got, err := m.Open(ctx, env, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Open = %q", got)
	}
	if f.generated != 1 || f.decrypted != 1 {
		t.Errorf("generated=%d decrypted=%d, want 1/1", f.generated, f.decrypted)
	}

	// cached DEK: no second KMS round-trip
	if _, err := m.Open(ctx, env, nil); err != nil {
		t.Fatalf("Open cached: %v", err)
	}
	if f.decrypted != 1 {
		t.Errorf("decrypted=%d after cached open, want 1", f.decrypted)
	}
}

func TestNewManagerWithoutKeySource(t *testing.T) {
	if _, err := NewManager(&config.Config{}, nil); !errors.Is(err, ErrNoKeySource) {
		t.Fatalf("err = %v, want ErrNoKeySource", err)
	}
}
