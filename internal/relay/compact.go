package relay

import (
	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// CompactBlock announces a new block without sending every transaction in
// full: most transactions are referenced by ShortIDs, on the assumption the
// receiving peer already has them (from its own mempool or an earlier
// relay). Prefilled carries transactions the sender knows the receiver is
// unlikely to already have — the coinbase, in practice — keyed by their
// index in the block.
type CompactBlock struct {
	Header    *block.Header
	Uncles    []*block.UncleBlock
	Proposals []types.ProposalShortID
	Nonce     uint64 // Unique per announcement; combines with Header.Nonce to key ShortIDs.
	ShortIDs  []ShortTxID
	Prefilled map[uint32]*tx.Transaction
}

// BuildCompactBlock constructs the compact representation of blk. nonce
// must be unique per announcement of this block (callers typically draw it
// from a counter or random source); reusing a nonce across different peers
// is harmless, reusing one across different blocks at the same header nonce
// is not, since it would let short IDs collide cross-block.
func BuildCompactBlock(blk *block.Block, nonce uint64, prefilledIndexes []int) *CompactBlock {
	key := shortTransactionIDKey(blk.Header.Nonce, nonce)

	prefilled := make(map[uint32]*tx.Transaction, len(prefilledIndexes))
	prefilledSet := make(map[int]struct{}, len(prefilledIndexes))
	for _, idx := range prefilledIndexes {
		if idx < 0 || idx >= len(blk.Transactions) {
			continue
		}
		prefilled[uint32(idx)] = blk.Transactions[idx]
		prefilledSet[idx] = struct{}{}
	}

	shortIDs := make([]ShortTxID, 0, len(blk.Transactions)-len(prefilledSet))
	for i, t := range blk.Transactions {
		if _, ok := prefilledSet[i]; ok {
			continue
		}
		shortIDs = append(shortIDs, shortTransactionID(key, t.Hash()))
	}

	return &CompactBlock{
		Header:    blk.Header,
		Uncles:    blk.Uncles,
		Proposals: blk.Proposals,
		Nonce:     nonce,
		ShortIDs:  shortIDs,
		Prefilled: prefilled,
	}
}

// Hash identifies the block this compact block announces.
func (cb *CompactBlock) Hash() types.Hash {
	return cb.Header.Hash()
}
