package txpool

import (
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// Entry wraps a pool-resident transaction with its verification result.
// Cycles is nil for an orphan entry that has never been resolved far enough
// to run the verifier.
type Entry struct {
	Transaction *tx.Transaction
	Cycles      *uint64
}

func newEntry(t *tx.Transaction, cycles *uint64) *Entry {
	return &Entry{Transaction: t, Cycles: cycles}
}

func (e *Entry) hash() types.Hash {
	return e.Transaction.Hash()
}

func (e *Entry) shortID() types.ProposalShortID {
	return types.ProposalShortIDFromHash(e.hash())
}

// NewEntry builds a pool Entry for a transaction verified with the given
// cycle cost.
func NewEntry(t *tx.Transaction, cycles uint64) *Entry {
	return newEntry(t, &cycles)
}

// NewUnverifiedEntry builds a pool Entry for a transaction that has not
// (yet) been run through the verifier — used for orphan pool admission.
func NewUnverifiedEntry(t *tx.Transaction) *Entry {
	return newEntry(t, nil)
}

// StagingResultKind distinguishes the two ways a transaction can land
// after being offered to staging.
type StagingResultKind uint8

const (
	// StagingNormal: the transaction resolved cleanly and is now staged.
	StagingNormal StagingResultKind = iota
	// StagingOrphan: at least one input or dep is still unresolved; the
	// transaction was parked in the orphan pool instead.
	StagingOrphan
)

// StagingResult reports the outcome of offering a transaction to staging.
type StagingResult struct {
	Kind   StagingResultKind
	Cycles uint64
}
