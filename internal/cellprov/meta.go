package cellprov

import (
	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// cellMetaFromOutput assembles a CellMeta for an output discovered by
// providers that only have the raw transaction output and its provenance
// at hand (BlockCellProvider, ChainState reconstruction).
func cellMetaFromOutput(op types.Outpoint, out cell.CellOutput, blockNumber uint64, cellbase bool) cell.CellMeta {
	return cell.CellMeta{
		Outpoint:    op,
		CellOutput:  out,
		BlockNumber: blockNumber,
		Cellbase:    cellbase,
	}
}
