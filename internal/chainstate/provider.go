package chainstate

import (
	"github.com/nervosnetwork/ckb-go/internal/cellprov"
	"github.com/nervosnetwork/ckb-go/internal/txpool"
	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// Cell implements cellprov.CellProvider over committed chain state: the
// cell set's dead bit decides Dead, and a known-but-not-dead outpoint is
// resolved to its owning transaction's output via the store.
func (cs *ChainState) Cell(op types.Outpoint) cellprov.CellStatus {
	meta, ok := cs.cellSet.Get(op.TxID)
	if !ok {
		return cellprov.Unknown()
	}
	if int(op.Index) >= len(meta.dead) {
		return cellprov.Unknown()
	}
	if meta.IsDead(int(op.Index)) {
		return cellprov.Dead()
	}

	t, ok := cs.store.GetTransaction(op.TxID)
	if !ok || int(op.Index) >= len(t.Outputs) {
		return cellprov.Unknown()
	}

	return cellprov.LiveOutputCell(cell.CellMeta{
		Outpoint:    op,
		CellOutput:  t.Outputs[op.Index],
		BlockNumber: meta.BlockNumber,
		Cellbase:    meta.Cellbase,
	})
}

// pendingCellMeta builds a CellMeta for a pending (not yet staged or
// committed) transaction's output, for the RPC trace overlay only.
func pendingCellMeta(op types.Outpoint, e *txpool.Entry) cell.CellMeta {
	return cell.CellMeta{Outpoint: op, CellOutput: e.Transaction.Outputs[op.Index]}
}
