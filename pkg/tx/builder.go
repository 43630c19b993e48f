package tx

import (
	"fmt"

	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/crypto"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: 1},
	}
}

// AddDep adds a cell dependency (read but not consumed).
func (b *Builder) AddDep(dep types.Outpoint) *Builder {
	b.tx.Deps = append(b.tx.Deps, dep)
	return b
}

// AddInput adds an input referencing a previous output.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: prevOut})
	return b
}

// AddOutput adds an output cell with the given capacity and lock script.
func (b *Builder) AddOutput(capacity uint64, lock types.Script) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, cell.CellOutput{Capacity: capacity, Lock: lock})
	return b
}

// AddTypedOutput adds an output cell carrying data and a type script.
func (b *Builder) AddTypedOutput(capacity uint64, lock types.Script, typeScript types.Script, data []byte) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, cell.CellOutput{
		Capacity: capacity,
		Data:     data,
		Lock:     lock,
		Type:     &typeScript,
	})
	return b
}

// SetLockTime sets the transaction lock time.
func (b *Builder) SetLockTime(lockTime uint64) *Builder {
	b.tx.LockTime = lockTime
	return b
}

// Sign signs all inputs with the provided private key.
// Each input gets the same signature (single-key spending).
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	hash := b.tx.Hash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	pubKey := key.PublicKey()
	for i := range b.tx.Inputs {
		b.tx.Inputs[i].Signature = sig
		b.tx.Inputs[i].PubKey = pubKey
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate — call tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
