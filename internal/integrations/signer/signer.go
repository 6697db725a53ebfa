// Package signer holds the service wallet that signs every ledger write.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"mentorgraph/internal/integrations/paramstore"
	"mentorgraph/internal/ledger"
)

// DefaultParam is the parameter holding the hex-encoded signing seed.
const DefaultParam = "signing_key"

// Signer is an ed25519 wallet with an address derived like an account address:
// the last 20 bytes of keccak-256 over the public key.
type Signer struct {
	priv    ed25519.PrivateKey
	address string
}

var _ ledger.Signer = (*Signer)(nil)

// FromHex builds a Signer from a 32-byte hex seed, with or without 0x.
func FromHex(seedHex string) (*Signer, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("signer: decode seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return fromSeed(seed), nil
}

// Generate returns a Signer with a random seed. Local development only.
func Generate() (*Signer, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("signer: generate seed: %w", err)
	}
	return fromSeed(seed), nil
}

// Load resolves the signing seed: the override wins, otherwise the parameter is
// fetched through params. With neither available it returns an error.
func Load(ctx context.Context, params paramstore.Getter, param, override string) (*Signer, error) {
	if strings.TrimSpace(override) != "" {
		return FromHex(override)
	}
	if params == nil {
		return nil, errors.New("signer: no signing key configured")
	}
	if strings.TrimSpace(param) == "" {
		param = DefaultParam
	}
	seed, err := params.GetParameter(ctx, param)
	if err != nil {
		return nil, fmt.Errorf("signer: load signing key: %w", err)
	}
	return FromHex(seed)
}

func fromSeed(seed []byte) *Signer {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	sum := ledger.Keccak256(pub)
	return &Signer{
		priv:    priv,
		address: "0x" + hex.EncodeToString(sum[len(sum)-20:]),
	}
}

// Address returns the wallet address.
func (s *Signer) Address() string {
	return s.address
}

// Sign signs msg.
func (s *Signer) Sign(msg []byte) ([]byte, error) {
	if s == nil || len(s.priv) == 0 {
		return nil, errors.New("signer: not initialized")
	}
	return ed25519.Sign(s.priv, msg), nil
}

// Verify reports whether sig is this wallet's signature over msg.
func (s *Signer) Verify(msg, sig []byte) bool {
	if s == nil || len(s.priv) != ed25519.PrivateKeySize {
		return false
	}
	return ed25519.Verify(s.priv.Public().(ed25519.PublicKey), msg, sig)
}
