package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows the key algorithm to change without collisions.
const (
	DomainQueryShape = "relq/shape/v1"
	DomainCommand    = "relq/command/v1"
	DomainModel      = "relq/model/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator prevents ambiguity at the domain/data boundary.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash marshals v canonically and hashes it under domain.
func Hash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash (%s): %w", domain, err)
	}
	return HashWithDomain(domain, data), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when v is known to be serializable.
func MustHash(domain string, v any) string {
	h, err := Hash(domain, v)
	if err != nil {
		panic(err)
	}
	return h
}
