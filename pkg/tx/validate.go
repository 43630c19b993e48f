package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/nervosnetwork/ckb-go/config"
	"github.com/nervosnetwork/ckb-go/pkg/crypto"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// Validation errors. These cover structure only — resolving inputs against
// a cell set, checking cellbase maturity, script execution and fee policy
// are the job of internal/cellprov, internal/chainstate and the Verifier
// contract (internal/verify), not this package.
var (
	ErrNoInputs           = errors.New("transaction has no inputs")
	ErrNoOutputs          = errors.New("transaction has no outputs")
	ErrDuplicateInput     = errors.New("duplicate input")
	ErrDuplicateDep       = errors.New("duplicate dep")
	ErrCapacityOverflow   = errors.New("output capacities overflow")
	ErrZeroCapacity       = errors.New("output capacity is zero")
	ErrMissingSig         = errors.New("non-cellbase input missing signature")
	ErrInvalidSig         = errors.New("invalid signature")
	ErrTooManyInputs      = errors.New("too many inputs")
	ErrTooManyOutputs     = errors.New("too many outputs")
	ErrTooManyDeps        = errors.New("too many deps")
	ErrScriptDataTooLarge = errors.New("script data too large")
)

// Validate checks transaction structure and basic rules: input/output/dep
// counts, duplicate inputs and deps, output capacity bounds, and that
// non-cellbase inputs carry a signature. It does not resolve any outpoint
// against chain state — that's a CellProvider's job.
func (tx *Transaction) Validate() error {
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(tx.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(tx.Inputs), config.MaxTxInputs)
	}
	if len(tx.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(tx.Outputs), config.MaxTxOutputs)
	}
	if len(tx.Deps) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d deps, max %d", ErrTooManyDeps, len(tx.Deps), config.MaxTxInputs)
	}

	seenInputs := make(map[types.Outpoint]bool, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if seenInputs[in.PrevOut] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seenInputs[in.PrevOut] = true
	}

	seenDeps := make(map[types.Outpoint]bool, len(tx.Deps))
	for i, dep := range tx.Deps {
		if seenDeps[dep] {
			return fmt.Errorf("dep %d: %w", i, ErrDuplicateDep)
		}
		seenDeps[dep] = true
	}

	// Non-cellbase inputs must carry a signature; the signature's validity
	// against the spent cell's lock script is the Verifier contract's job.
	for i, in := range tx.Inputs {
		if in.PrevOut.IsNull() {
			continue
		}
		if len(in.Signature) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingSig)
		}
	}

	var totalOutput uint64
	for i, out := range tx.Outputs {
		if out.Capacity == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroCapacity)
		}
		if len(out.Data) > config.MaxScriptData {
			return fmt.Errorf("output %d: %w: %d bytes, max %d", i, ErrScriptDataTooLarge, len(out.Data), config.MaxScriptData)
		}
		if len(out.Lock.Args) > config.MaxScriptData {
			return fmt.Errorf("output %d: %w: %d bytes, max %d", i, ErrScriptDataTooLarge, len(out.Lock.Args), config.MaxScriptData)
		}
		if totalOutput > math.MaxUint64-out.Capacity {
			return fmt.Errorf("output %d: %w", i, ErrCapacityOverflow)
		}
		totalOutput += out.Capacity
	}

	return nil
}

// VerifySignatures checks that all non-cellbase input signatures are valid
// for this transaction. A real lock script can demand more than a single
// signature scheme; this is the reference check used by internal/verify's
// default Verifier implementation.
func (tx *Transaction) VerifySignatures() error {
	hash := tx.Hash()
	for i, in := range tx.Inputs {
		if in.PrevOut.IsNull() {
			continue
		}
		if !crypto.VerifySignature(hash[:], in.Signature, in.PubKey) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
