// Package tx defines transaction types and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/crypto"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// Transaction represents a blockchain transaction. Deps lists cells the
// transaction reads but does not consume (e.g. referenced code cells);
// Inputs lists cells it consumes. Both are resolved the same way by a
// CellProvider, but only Inputs are marked dead on commit.
type Transaction struct {
	Version  uint32            `json:"version"`
	Deps     []types.Outpoint  `json:"deps"`
	Inputs   []Input           `json:"inputs"`
	Outputs  []cell.CellOutput `json:"outputs"`
	LockTime uint64            `json:"locktime"`
}

// Input references a cell being consumed.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature []byte         `json:"signature"`
	PubKey    []byte         `json:"pubkey"`
}

// inputJSON is the JSON representation of Input with hex-encoded byte fields.
type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature *string        `json:"signature"`
	PubKey    *string        `json:"pubkey"`
}

// MarshalJSON encodes the input with hex-encoded signature and pubkey.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevOut: in.PrevOut}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	if in.PubKey != nil {
		p := hex.EncodeToString(in.PubKey)
		j.PubKey = &p
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with hex-encoded signature and pubkey.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PubKey != nil {
		b, err := hex.DecodeString(*j.PubKey)
		if err != nil {
			return err
		}
		in.PubKey = b
	}
	return nil
}

// IsCellbase reports whether this transaction is a cellbase: its single
// input spends the null outpoint.
func (tx *Transaction) IsCellbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut.IsNull()
}

// Hash computes the transaction ID (BLAKE3 hash of the serialized signing data).
// This excludes signatures to avoid circular dependency.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// ProposalShortId truncates the transaction hash into the short ID used to
// address it in the proposal table and the pool's pending queue.
func (tx *Transaction) ProposalShortId() types.ProposalShortID {
	return types.ProposalShortIDFromHash(tx.Hash())
}

// SigningBytes returns the canonical byte representation used for signing.
// Format: version(4) | dep_count(4) | [outpoint(36)]... | input_count(4) |
// [prevout(36)]... | output_count(4) | [capacity(8) + data_len(4) + data +
// lock(script) + has_type(1) + type(script)?]... | locktime(8)
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Deps)))
	for _, dep := range tx.Deps {
		buf = append(buf, dep.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, dep.Index)
	}

	// Input count + prevouts (no signatures, except cellbase data).
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
		// Include cellbase data (height, encoded as the signature field) in
		// the hash so each cellbase tx has a unique ID. Regular inputs skip
		// their signature here to avoid a circular dependency during signing.
		if in.PrevOut.IsNull() && len(in.Signature) > 0 {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.Signature)))
			buf = append(buf, in.Signature...)
		}
	}

	// Output count + outputs.
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Capacity)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Data)))
		buf = append(buf, out.Data...)
		buf = appendScript(buf, out.Lock)
		if out.Type != nil {
			buf = append(buf, 1)
			buf = appendScript(buf, *out.Type)
		} else {
			buf = append(buf, 0)
		}
	}

	buf = binary.LittleEndian.AppendUint64(buf, tx.LockTime)

	return buf
}

func appendScript(buf []byte, s types.Script) []byte {
	buf = append(buf, s.CodeHash[:]...)
	buf = append(buf, byte(s.HashType))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.Args)))
	buf = append(buf, s.Args...)
	return buf
}

// TotalOutputCapacity returns the sum of all output capacities.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputCapacity() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Capacity {
			return 0, fmt.Errorf("output capacity overflow")
		}
		total += out.Capacity
	}
	return total, nil
}
