package cellprov

import (
	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// BlockCellProvider resolves OutPoints against the transactions of a single
// block, without reference to any committed or pending state. It is used to
// verify a block's internal consistency before the block is attached.
//
// Two indices are built at construction: outputIndices maps a transaction
// hash to its position in the block, and duplicateInputs counts how many
// times each OutPoint is spent as an input within the block. An entry is
// seeded at 1 on first sight and incremented thereafter, so "seen more than
// once" is checked with count > 1 — counting from 0 and checking > 0 would
// flag every spent OutPoint as a double-spend, not just duplicates.
type BlockCellProvider struct {
	blk             *block.Block
	outputIndices   map[types.Hash]int
	duplicateInputs map[types.Outpoint]int
}

// NewBlockCellProvider builds a BlockCellProvider over blk's transactions.
func NewBlockCellProvider(blk *block.Block) *BlockCellProvider {
	p := &BlockCellProvider{
		blk:             blk,
		outputIndices:   make(map[types.Hash]int, len(blk.Transactions)),
		duplicateInputs: make(map[types.Outpoint]int),
	}
	for i, t := range blk.Transactions {
		p.outputIndices[t.Hash()] = i
		for _, in := range t.Inputs {
			if in.PrevOut.IsNull() {
				continue
			}
			if _, ok := p.duplicateInputs[in.PrevOut]; ok {
				p.duplicateInputs[in.PrevOut]++
			} else {
				p.duplicateInputs[in.PrevOut] = 1
			}
		}
	}
	return p
}

func (p *BlockCellProvider) Cell(op types.Outpoint) CellStatus {
	if p.duplicateInputs[op] > 1 {
		return Dead()
	}

	pos, ok := p.outputIndices[op.TxID]
	if !ok {
		return Unknown()
	}
	t := p.blk.Transactions[pos]
	if int(op.Index) >= len(t.Outputs) {
		return Unknown()
	}

	var blockNumber uint64
	if p.blk.Header != nil {
		blockNumber = p.blk.Header.Height
	}
	return LiveOutputCell(cellMetaFromOutput(op, t.Outputs[op.Index], blockNumber, pos == 0))
}
