package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goliatone/go-appinstall/core"
)

// Sealed tokens look like appinstall.secret.v1:<kid>.<version>.<payload>
// where payload is base64url(nonce || ciphertext). The key id and version
// are bound to the ciphertext as additional data.
const envelopePrefix = "appinstall.secret.v1:"

type Option func(*AppKeySecretProvider)

// AppKeySecretProvider seals access tokens with AES-GCM under the
// application key.
type AppKeySecretProvider struct {
	key     []byte
	keyID   string
	version int
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" && !strings.Contains(trimmed, ".") {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		key:     normalizeKey(key),
		keyID:   "app-key",
		version: 1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := p.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, p.additionalData(p.keyID, p.version))

	var out strings.Builder
	out.WriteString(envelopePrefix)
	out.WriteString(p.keyID)
	out.WriteByte('.')
	out.WriteString(strconv.Itoa(p.version))
	out.WriteByte('.')
	out.WriteString(base64.RawURLEncoding.EncodeToString(sealed))
	return []byte(out.String()), nil
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	payload, ok := strings.CutPrefix(string(ciphertext), envelopePrefix)
	if !ok {
		return nil, fmt.Errorf("security: ciphertext is not a sealed token")
	}
	parts := strings.Split(payload, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("security: malformed sealed token")
	}
	keyID := parts[0]
	version, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("security: malformed key version: %w", err)
	}
	if keyID != p.keyID {
		return nil, fmt.Errorf("security: key id mismatch: got %q want %q", keyID, p.keyID)
	}
	if version != p.version {
		return nil, fmt.Errorf("security: key version mismatch: got %d want %d", version, p.version)
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("security: decode sealed payload: %w", err)
	}
	gcm, err := p.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("security: sealed payload too short")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, p.additionalData(keyID, version))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether value carries the sealed-token prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, envelopePrefix)
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

func (p *AppKeySecretProvider) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func (p *AppKeySecretProvider) additionalData(keyID string, version int) []byte {
	return []byte(keyID + "." + strconv.Itoa(version))
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
