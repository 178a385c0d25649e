// Package secret holds at-rest encrypted values (connection strings and
// credentials) and decrypts them lazily, at most once per value.
//
// A Secret starts encrypted. The first successful Store.Get runs the
// configured Decrypter and caches the plaintext; later reads return the cache.
// Secrets redact themselves in fmt, JSON and text output so a NamedDataSource
// can be logged without leaking credentials.
package secret

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

const redacted = "[SECRET]"

// Secret is an encrypted value with a decrypt-once plaintext cache.
// The zero value is an empty, already decrypted secret.
type Secret struct {
	mu         sync.Mutex
	ciphertext string
	plaintext  string
	encrypted  bool
}

// New returns a secret holding ciphertext that still needs decryption.
func New(ciphertext string) *Secret {
	return &Secret{ciphertext: ciphertext, encrypted: true}
}

// Plain returns a secret that is already decrypted.
func Plain(value string) *Secret {
	return &Secret{plaintext: value}
}

// StillEncrypted reports whether the secret has not been decrypted yet.
func (s *Secret) StillEncrypted() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encrypted
}

// Ciphertext returns the original encrypted value.
func (s *Secret) Ciphertext() string {
	if s == nil {
		return ""
	}
	return s.ciphertext
}

// IsZero reports whether the secret carries no value at all.
func (s *Secret) IsZero() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ciphertext == "" && s.plaintext == ""
}

// String redacts the secret for fmt.Print* convenience.
func (s *Secret) String() string { return redacted }

// Format implements fmt.Formatter so %v, %#v and %s are all redacted.
func (s *Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// MarshalJSON redacts secrets in JSON output.
func (s *Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// MarshalText redacts secrets for text encoders (yaml, toml, ...).
func (s *Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }
