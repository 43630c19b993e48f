// Package types defines core primitive types for the chain: hashes,
// outpoints and lock/type scripts.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value.
type Hash [HashSize]byte

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// HexToHash converts a hex string to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// ProposalShortIDSize is the length of a proposal short ID in bytes.
const ProposalShortIDSize = 10

// ProposalShortID addresses a transaction inside the proposal table and the
// tx pool's pending queue without carrying its full hash. It is the first
// ProposalShortIDSize bytes of the transaction hash, so it is deterministic
// and needs no shared secret between peers — unlike the relay layer's keyed
// short transaction ID (see internal/relay), which trades determinism for
// resistance to short-ID collision attacks across the gossip network.
type ProposalShortID [ProposalShortIDSize]byte

// ProposalShortIDFromHash truncates a transaction hash into a proposal short ID.
func ProposalShortIDFromHash(h Hash) ProposalShortID {
	var id ProposalShortID
	copy(id[:], h[:ProposalShortIDSize])
	return id
}

// String returns the hex-encoded short ID.
func (id ProposalShortID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalJSON encodes the short ID as a hex string.
func (id ProposalShortID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes a hex string into a short ID.
func (id *ProposalShortID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid proposal short id hex: %w", err)
	}
	if len(decoded) != ProposalShortIDSize {
		return fmt.Errorf("proposal short id must be %d bytes, got %d", ProposalShortIDSize, len(decoded))
	}
	copy(id[:], decoded)
	return nil
}
