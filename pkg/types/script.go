package types

import (
	"encoding/hex"
	"encoding/json"
)

// HashType selects how a Script's CodeHash is interpreted when resolving
// which code governs the cell: as the hash of a data cell's contents, or
// as the hash of another script's serialized form (a "type ID").
type HashType uint8

const (
	HashTypeData HashType = iota // CodeHash is blake3(referenced cell data)
	HashTypeType                 // CodeHash is blake3(referenced type script)
)

// String returns a human-readable name for the hash type.
func (t HashType) String() string {
	switch t {
	case HashTypeData:
		return "data"
	case HashTypeType:
		return "type"
	default:
		return "unknown"
	}
}

// Script is a generic lock or type script: a reference to governing code
// (CodeHash, resolved according to HashType) plus opaque arguments that
// parameterize it. A cell's lock script controls who may spend it; an
// optional type script, if present, constrains how its data may evolve.
// Unlike a closed enum of script kinds, any code hash can serve as a lock
// or type script — script semantics are opaque to the chain-state core,
// which only ever compares or hashes Script values, never interprets them.
type Script struct {
	CodeHash Hash     `json:"code_hash"`
	HashType HashType `json:"hash_type"`
	Args     []byte   `json:"args"`
}

// scriptJSON is the JSON representation of a Script with hex-encoded args.
type scriptJSON struct {
	CodeHash Hash     `json:"code_hash"`
	HashType HashType `json:"hash_type"`
	Args     string   `json:"args"`
}

// MarshalJSON encodes the script with hex-encoded args.
func (s Script) MarshalJSON() ([]byte, error) {
	return json.Marshal(scriptJSON{
		CodeHash: s.CodeHash,
		HashType: s.HashType,
		Args:     hex.EncodeToString(s.Args),
	})
}

// UnmarshalJSON decodes a script with hex-encoded args.
func (s *Script) UnmarshalJSON(data []byte) error {
	var j scriptJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	s.CodeHash = j.CodeHash
	s.HashType = j.HashType
	if j.Args != "" {
		b, err := hex.DecodeString(j.Args)
		if err != nil {
			return err
		}
		s.Args = b
	}
	return nil
}

// Equal reports whether two scripts have identical code hash, hash type
// and args.
func (s Script) Equal(o Script) bool {
	if s.CodeHash != o.CodeHash || s.HashType != o.HashType {
		return false
	}
	if len(s.Args) != len(o.Args) {
		return false
	}
	for i := range s.Args {
		if s.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}
