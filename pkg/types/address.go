package types

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// AddressSize is the length of an Address in bytes: a BLAKE3 digest of a
// public key (or, for ParseAddress, of the human-readable address string
// itself), truncated to 20 bytes.
const AddressSize = 20

// Address is an opaque 20-byte account handle used by lock scripts and the
// legacy UTXO index. Bech32 encoding/decoding of human-readable addresses
// (the "kgx1..."/"tkgx1..." strings genesis configs embed) is out of scope
// for this module — key and address primitives are an external
// collaborator — so ParseAddress below derives a stable internal handle
// from the string rather than decoding a real bech32 payload.
type Address [AddressSize]byte

// String returns the hex-encoded address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAddress derives an Address from a human-readable address string.
// It accepts any non-empty string of plausible address length and returns
// a deterministic handle (BLAKE3(s)[:20]) rather than decoding bech32 — the
// same string always maps to the same Address, which is all genesis
// allocation and coinbase resolution need from it.
func ParseAddress(s string) (Address, error) {
	if len(s) < 8 || len(s) > 128 {
		return Address{}, fmt.Errorf("address %q has implausible length %d", s, len(s))
	}
	h := blake3.Sum256([]byte(s))
	var addr Address
	copy(addr[:], h[:AddressSize])
	return addr, nil
}
