package storage

import (
	"context"
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/zerovault/zerovault/internal/zverrors"
)

// kdfSalt is fixed rather than random-per-passphrase: spec's non-goals
// explicitly exclude key management beyond accepting an opaque
// passphrase, and every replica sharing a remote must derive the same
// key from the same passphrase without exchanging a salt out of band.
var kdfSalt = []byte("zerovault-static-kdf-salt-v1")

// Encrypted is a capability adapter (spec 9 "not an inheritance
// relation") composing any Backend: puts are sealed under a
// passphrase-derived key, gets are opened, and keys themselves pass
// through in plaintext.
type Encrypted struct {
	inner Backend
	key   []byte
}

// NewEncrypted derives a key from passphrase with argon2id (memory-hard
// KDF) and wraps inner so its payloads are sealed with
// ChaCha20-Poly1305 (AEAD stream cipher).
func NewEncrypted(inner Backend, passphrase string) *Encrypted {
	key := argon2.IDKey([]byte(passphrase), kdfSalt, 1, 64*1024, 4, chacha20poly1305.KeySize)
	return &Encrypted{inner: inner, key: key}
}

func (e *Encrypted) List(ctx context.Context, prefix string) ([]string, error) {
	return e.inner.List(ctx, prefix)
}

func (e *Encrypted) Put(ctx context.Context, key string, data []byte) error {
	aead, err := chacha20poly1305.New(e.key)
	if err != nil {
		return zverrors.New(zverrors.Cryptographic, "build aead", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return zverrors.New(zverrors.Cryptographic, "generate nonce", err)
	}

	sealed := aead.Seal(nil, nonce, data, nil)
	envelope := append(nonce, sealed...)
	return e.inner.Put(ctx, key, envelope)
}

func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, error) {
	envelope, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if len(envelope) < chacha20poly1305.NonceSize {
		return nil, zverrors.New(zverrors.Serialization, "get", errShortEnvelope)
	}

	aead, err := chacha20poly1305.New(e.key)
	if err != nil {
		return nil, zverrors.New(zverrors.Cryptographic, "build aead", err)
	}

	nonce, ciphertext := envelope[:chacha20poly1305.NonceSize], envelope[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, zverrors.New(zverrors.Cryptographic, "open", err)
	}
	return plaintext, nil
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

var errShortEnvelope = shortEnvelopeError{}

type shortEnvelopeError struct{}

func (shortEnvelopeError) Error() string { return "storage: encrypted envelope shorter than nonce" }
