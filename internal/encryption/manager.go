package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"golang.org/x/crypto/hkdf"

	"cashback-service/internal/config"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrNoKeySource      = errors.New("encryption: neither KMS nor a local secret is configured")
)

const (
	envelopeVersion = "v1"
	localKeyID      = "local"
)

// Envelope is a value sealed with a per-value data key. The data key is
// itself sealed, either by KMS or by the local key-encryption key.
type Envelope struct {
	Ciphertext   string    `json:"ciphertext"`
	EncryptedDEK string    `json:"encrypted_dek"`
	KeyID        string    `json:"key_id"`
	Version      string    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

// KMSAPI is the subset of the KMS client the manager calls.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, in *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type Manager struct {
	kms      KMSAPI
	kmsKeyID string
	localKEK []byte
	keyCache sync.Map // encrypted DEK -> plaintext DEK
}

// NewManager picks KMS when enabled, otherwise derives a local
// key-encryption key from LOCAL_DATA_KEY_SECRET.
func NewManager(cfg *config.Config, kmsClient KMSAPI) (*Manager, error) {
	if cfg.KMS.Enabled {
		if kmsClient == nil || cfg.KMS.KeyID == "" {
			return nil, fmt.Errorf("%w: KMS enabled without client or key id", ErrNoKeySource)
		}
		return &Manager{kms: kmsClient, kmsKeyID: cfg.KMS.KeyID}, nil
	}
	return NewLocalManager(cfg.Auth.LocalDataKeySecret)
}

func NewLocalManager(secret string) (*Manager, error) {
	if secret == "" {
		return nil, ErrNoKeySource
	}
	kek := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("cashback-service/pending-signup-kek"))
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, fmt.Errorf("derive local key: %w", err)
	}
	return &Manager{localKEK: kek}, nil
}

func (m *Manager) generateDataKey(ctx context.Context) (plain, sealed []byte, keyID string, err error) {
	if m.kms != nil {
		out, err := m.kms.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId:   aws.String(m.kmsKeyID),
			KeySpec: types.DataKeySpecAes256,
		})
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to generate data key: %w", err)
		}
		return out.Plaintext, out.CiphertextBlob, m.kmsKeyID, nil
	}

	plain = make([]byte, 32)
	if _, err := rand.Read(plain); err != nil {
		return nil, nil, "", err
	}
	sealed, err = seal(m.localKEK, plain, nil)
	if err != nil {
		return nil, nil, "", err
	}
	return plain, sealed, localKeyID, nil
}

func (m *Manager) openDataKey(ctx context.Context, sealed []byte) ([]byte, error) {
	if m.kms != nil {
		out, err := m.kms.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: sealed})
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt DEK: %w", err)
		}
		return out.Plaintext, nil
	}
	return open(m.localKEK, sealed, nil)
}

// Seal encrypts plaintext. aad binds the envelope to its context (for
// example the key it is stored under) and must be passed again to Open.
func (m *Manager) Seal(ctx context.Context, plaintext, aad []byte) (*Envelope, error) {
	dek, sealedDEK, keyID, err := m.generateDataKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	ciphertext, err := seal(dek, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	encDEK := base64.StdEncoding.EncodeToString(sealedDEK)
	m.keyCache.Store(encDEK, dek)

	return &Envelope{
		Ciphertext:   base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedDEK: encDEK,
		KeyID:        keyID,
		Version:      envelopeVersion,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (m *Manager) Open(ctx context.Context, env *Envelope, aad []byte) ([]byte, error) {
	if env == nil || env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope", ErrDecryptionFailed)
	}

	var dek []byte
	if cached, ok := m.keyCache.Load(env.EncryptedDEK); ok {
		dek = cached.([]byte)
	} else {
		sealedDEK, err := base64.StdEncoding.DecodeString(env.EncryptedDEK)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
		}
		dek, err = m.openDataKey(ctx, sealedDEK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		m.keyCache.Store(env.EncryptedDEK, dek)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}
	plaintext, err := open(dek, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// ClearCache forgets every cached data key.
func (m *Manager) ClearCache() {
	m.keyCache.Range(func(key, _ interface{}) bool {
		m.keyCache.Delete(key)
		return true
	})
}

func seal(key, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

func open(key, ciphertext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, aad)
}
