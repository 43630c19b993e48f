// Package cell defines the cell model: a CellOutput is the fundamental
// unit of state (an amount of capacity, optional data, a lock script and
// an optional type script). CellMeta pairs a CellOutput with the
// provenance needed to decide spendability (which block created it,
// whether it's a cellbase output).
package cell

import "github.com/nervosnetwork/ckb-go/pkg/types"

// CellOutput is a single cell: capacity plus an optional lock/type script
// pair. It carries no outpoint of its own — that's supplied externally by
// whichever transaction input or output slot refers to it.
type CellOutput struct {
	Capacity uint64        `json:"capacity"`
	Data     []byte        `json:"data"`
	Lock     types.Script  `json:"lock"`
	Type     *types.Script `json:"type,omitempty"`
}

// DataSize returns the length of the cell's stored data in bytes.
func (o CellOutput) DataSize() int {
	return len(o.Data)
}

// CellMeta pairs a cell's output with the provenance the chain-state core
// needs to decide whether it is currently spendable: the block that
// created it and whether that block's cellbase produced it.
type CellMeta struct {
	Outpoint    types.Outpoint `json:"outpoint"`
	CellOutput  CellOutput     `json:"cell_output"`
	BlockNumber uint64         `json:"block_number"`
	Cellbase    bool           `json:"cellbase"`
}

// IsMature reports whether a cellbase-produced cell has aged past the
// maturity threshold as of currentNumber. Non-cellbase cells are always
// mature. CellbaseMaturity is a chain parameter (see internal/consensus).
func (m CellMeta) IsMature(currentNumber, cellbaseMaturity uint64) bool {
	if !m.Cellbase {
		return true
	}
	return currentNumber >= m.BlockNumber+cellbaseMaturity
}
