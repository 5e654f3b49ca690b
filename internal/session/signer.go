package session

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/Zorrojurro/project-aarna/internal/ledger"
)

// KeySigner signs with an in-memory ed25519 key.
type KeySigner struct {
	key     ed25519.PrivateKey
	address string
}

var _ ledger.Signer = (*KeySigner)(nil)

// NewKeySigner derives a signer from a 32-byte seed.
func NewKeySigner(seed []byte) (*KeySigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	address, err := ledger.EncodeAddress(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &KeySigner{key: key, address: address}, nil
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewKeySigner(seed)
}

// DemoSigner returns a deterministic identity for demo mode. Different labels
// give different identities.
func DemoSigner(label string) *KeySigner {
	seed := sha256.Sum256([]byte("aarna-demo:" + label))
	s, _ := NewKeySigner(seed[:])
	return s
}

// Address returns the account address.
func (s *KeySigner) Address() string {
	return s.address
}

// Sign signs payload.
func (s *KeySigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ed25519.Sign(s.key, payload), nil
}

// Seed returns the private seed.
func (s *KeySigner) Seed() []byte {
	return s.key.Seed()
}
