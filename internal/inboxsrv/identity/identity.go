// Package identity implements the actor identity rules for the inbox: owner
// ids that double as Ed25519 public keys, signature verification of inbound
// submissions, and minting of project ids.
//
// An owner id is the base58 encoding of a 32-byte Ed25519 public key. It is
// validated independently at every boundary that accepts one from an external
// source; helpers here are the canonical check.
package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/uuid"
)

// OwnerIDSize is the decoded length of an owner id in bytes. The owner id is
// the developer's Ed25519 public key.
const OwnerIDSize = ed25519.PublicKeySize

// ProjectIDSize is the decoded length of a project id in bytes.
const ProjectIDSize = 16

// DecodeOwnerID decodes a base58 owner id and checks that it is exactly
// 32 bytes. Returns the raw public key bytes.
func DecodeOwnerID(ownerB58 string) ([]byte, error) {
	raw, err := base58.Decode(ownerB58)
	if err != nil {
		return nil, fmt.Errorf("owner id is not valid base58: %w", err)
	}
	if len(raw) != OwnerIDSize {
		return nil, fmt.Errorf("invalid owner id size: got %d, want %d", len(raw), OwnerIDSize)
	}
	return raw, nil
}

// ValidateOwnerID reports whether the given string is a well-formed owner id.
func ValidateOwnerID(ownerB58 string) bool {
	_, err := DecodeOwnerID(ownerB58)
	return err == nil
}

// Verify checks the Ed25519 signature over the raw payload bytes. Both the
// signature and the owner public key arrive base58-encoded. Any decode or
// size failure rejects the payload; rejections are logged and final, there is
// nothing to retry.
func Verify(payload []byte, sigB58 string, ownerB58 string) bool {
	pubKey, err := DecodeOwnerID(ownerB58)
	if err != nil {
		log.Warn().Err(err).Str("owner_id", ownerB58).Msg("cannot decode owner public key")
		return false
	}

	sig, err := base58.Decode(sigB58)
	if err != nil {
		log.Warn().Err(err).Str("owner_id", ownerB58).Msg("cannot decode signature")
		return false
	}

	if !ed25519.Verify(ed25519.PublicKey(pubKey), payload, sig) {
		log.Warn().Str("owner_id", ownerB58).Msg("signature verification failed")
		return false
	}
	return true
}

// NewProjectID mints a project id: a random 16-byte value, base58-encoded.
// Ids are stable for the lifetime of a project once assigned.
func NewProjectID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate project id: %w", err)
	}
	return base58.Encode(u[:]), nil
}

// ValidateProjectID reports whether the given string decodes to a 16-byte
// project id.
func ValidateProjectID(projectB58 string) bool {
	raw, err := base58.Decode(projectB58)
	if err != nil {
		return false
	}
	return len(raw) == ProjectIDSize
}
