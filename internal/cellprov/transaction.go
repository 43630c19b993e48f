package cellprov

import (
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// TransactionCellProvider catches self-double-spend within a single
// transaction before any external lookup happens: an OutPoint spent more
// than once by the transaction's own inputs resolves to Dead, anything else
// is Unknown so overlaying providers get a chance to resolve it.
type TransactionCellProvider struct {
	inputCounts map[types.Outpoint]int
}

// NewTransactionCellProvider builds a TransactionCellProvider over t's inputs.
func NewTransactionCellProvider(t *tx.Transaction) *TransactionCellProvider {
	p := &TransactionCellProvider{inputCounts: make(map[types.Outpoint]int, len(t.Inputs))}
	for _, in := range t.Inputs {
		p.inputCounts[in.PrevOut]++
	}
	return p
}

func (p *TransactionCellProvider) Cell(op types.Outpoint) CellStatus {
	if p.inputCounts[op] > 1 {
		return Dead()
	}
	return Unknown()
}
