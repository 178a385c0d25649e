package secret

import (
	"context"
	"fmt"
	"log/slog"
)

// FailurePolicy decides what Store.Get does when the decrypter fails.
type FailurePolicy int

const (
	// FailOpen returns the still-encrypted value and reports the failure on
	// the diagnostic channel. Nothing is cached, so the next read retries.
	FailOpen FailurePolicy = iota

	// FailClosed returns a *DecryptionError to the caller.
	FailClosed
)

// DecryptionError reports a decrypter failure for one secret.
type DecryptionError struct {
	Provider string
	Err      error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("failed to decrypt secret with provider %q: %v", e.Provider, e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Store decrypts secrets with one Decrypter. It is safe for concurrent use.
type Store struct {
	decrypter Decrypter
	policy    FailurePolicy
	logger    *slog.Logger
	onFailure func(err *DecryptionError)
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy sets the failure policy (FailOpen by default).
func WithPolicy(p FailurePolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger used as the diagnostic channel.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFailureHandler registers a callback invoked for every decrypt failure,
// regardless of the policy.
func WithFailureHandler(fn func(err *DecryptionError)) Option {
	return func(s *Store) { s.onFailure = fn }
}

// NewStore creates a Store. A nil decrypter means no decryption at all.
func NewStore(d Decrypter, opts ...Option) *Store {
	if d == nil {
		d = Noop{}
	}
	s := &Store{
		decrypter: d,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decrypter returns the decrypter backing the store.
func (st *Store) Decrypter() Decrypter {
	return st.decrypter
}

// Get returns the plaintext of s, decrypting it on first use.
// Concurrent first reads are serialized on the secret, so the decrypter runs
// at most once after a successful decrypt.
func (st *Store) Get(ctx context.Context, s *Secret) (string, error) {
	if s == nil {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.encrypted {
		return s.plaintext, nil
	}

	plaintext, err := st.decrypter.DecryptString(ctx, s.ciphertext)
	if err != nil {
		derr := &DecryptionError{Provider: st.decrypter.Name(), Err: err}
		if st.onFailure != nil {
			st.onFailure(derr)
		}
		if st.policy == FailClosed {
			return "", derr
		}
		st.logger.Warn("secret decryption failed, continuing with encrypted value",
			slog.String("provider", derr.Provider),
			slog.String("error", err.Error()))
		return s.ciphertext, nil
	}

	s.plaintext = plaintext
	s.encrypted = false
	return s.plaintext, nil
}
