package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/sirupsen/logrus"
)

// KeyStore is the slice of the conversation store the key manager needs.
// CreateIfAbsent must be atomic (conditional insert): when two first sends
// race, both callers end up holding the same persisted key.
type KeyStore interface {
	GetKey(ctx context.Context, pairKey string) ([]byte, error)
	// CreateIfAbsent persists key for pairKey unless a key already exists,
	// and returns whichever key is persisted afterwards.
	CreateIfAbsent(ctx context.Context, pairKey string, key []byte) ([]byte, error)
}

// KeyManager hands out the single symmetric key for each conversation,
// creating it lazily on first use.
type KeyManager struct {
	store KeyStore
	log   *logrus.Logger
}

func NewKeyManager(store KeyStore, log *logrus.Logger) *KeyManager {
	return &KeyManager{store: store, log: log}
}

// GetOrCreateKey returns the conversation's key, generating and persisting a
// fresh random one if none exists yet.
//
// If the store is unreachable the manager falls back to a key derived from a
// one-way hash of the pair key so that encryption never outright fails. The
// fallback weakens confidentiality for the affected messages and is always
// logged at warn level, never silently.
func (m *KeyManager) GetOrCreateKey(ctx context.Context, pairKey string) []byte {
	existing, err := m.store.GetKey(ctx, pairKey)
	if err != nil {
		m.log.WithError(err).WithField("conversation", pairKey).
			Warn("key lookup failed, using derived fallback key")
		return deriveFallbackKey(pairKey)
	}
	if existing != nil {
		return existing
	}

	fresh := make([]byte, KeySize)
	if _, err := rand.Read(fresh); err != nil {
		m.log.WithError(err).Warn("key generation failed, using derived fallback key")
		return deriveFallbackKey(pairKey)
	}

	persisted, err := m.store.CreateIfAbsent(ctx, pairKey, fresh)
	if err != nil {
		m.log.WithError(err).WithField("conversation", pairKey).
			Warn("key create failed, using derived fallback key")
		return deriveFallbackKey(pairKey)
	}
	return persisted
}

// deriveFallbackKey is deterministic per conversation so both participants
// degrade to the same key when the store is down.
func deriveFallbackKey(pairKey string) []byte {
	sum := sha256.Sum256([]byte(pairKey))
	return sum[:]
}

// EncodeKey/DecodeKey are the storage encoding for key material.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

func DecodeKey(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
