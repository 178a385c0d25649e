package secret

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// XChaChaName is the registry name of the XChaCha20-Poly1305 decrypter.
const XChaChaName = "xchacha20poly1305"

// ErrKeyNotSet is returned when no key material is configured.
var ErrKeyNotSet = errors.New("encryption key not set")

func init() {
	RegisterDecrypter(XChaChaName, func(opts map[string]any) (Decrypter, error) {
		key, err := KeyFromOptions(opts)
		if err != nil {
			return nil, err
		}
		return NewXChaCha(key)
	})
}

// KeyOptions selects where the 32-byte key comes from. The first non-empty
// source wins: Key, KeyEnv, then PassphraseEnv (derived with Argon2id).
type KeyOptions struct {
	Key           string `mapstructure:"key"`
	KeyEnv        string `mapstructure:"key_env"`
	PassphraseEnv string `mapstructure:"passphrase_env"`
	Salt          string `mapstructure:"salt"`
}

// KeyFromOptions decodes provider options and returns the key bytes.
func KeyFromOptions(opts map[string]any) ([]byte, error) {
	var ko KeyOptions
	if err := mapstructure.Decode(opts, &ko); err != nil {
		return nil, fmt.Errorf("invalid %s options: %w", XChaChaName, err)
	}

	encoded := ko.Key
	if encoded == "" && ko.KeyEnv != "" {
		encoded = os.Getenv(ko.KeyEnv)
	}
	if encoded != "" {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("key is not valid base64: %w", err)
		}
		return key, nil
	}

	if ko.PassphraseEnv != "" {
		if pass := os.Getenv(ko.PassphraseEnv); pass != "" {
			return DeriveKey(pass, ko.Salt), nil
		}
	}
	return nil, ErrKeyNotSet
}

// DeriveKey derives a 32-byte key from a passphrase using Argon2id.
func DeriveKey(passphrase, salt string) []byte {
	if salt == "" {
		salt = "leapdata"
	}
	return argon2.IDKey([]byte(passphrase), []byte(salt), 1, 64*1024, 4, chacha20poly1305.KeySize)
}

// XChaCha decrypts base64(nonce || sealed) values with XChaCha20-Poly1305.
type XChaCha struct {
	key []byte
}

// NewXChaCha returns a decrypter for a 32-byte key.
func NewXChaCha(key []byte) (*XChaCha, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &XChaCha{key: k}, nil
}

// Name returns the registry name.
func (x *XChaCha) Name() string { return XChaChaName }

// DecryptString decrypts one base64-encoded value.
func (x *XChaCha) DecryptString(_ context.Context, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", fmt.Errorf("ciphertext is not valid base64: %w", err)
	}
	aead, err := chacha20poly1305.NewX(x.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

// Encrypt seals plaintext and returns base64(nonce || sealed).
func (x *XChaCha) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(x.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Encrypt seals plaintext with key using XChaCha20-Poly1305. The result is
// accepted by the xchacha20poly1305 decrypter.
func Encrypt(key []byte, plaintext string) (string, error) {
	x, err := NewXChaCha(key)
	if err != nil {
		return "", err
	}
	return x.Encrypt(plaintext)
}

// GenerateKey returns a new random key, base64-encoded for the key or
// key_env options.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
