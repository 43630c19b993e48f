package relay

import (
	"fmt"

	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
)

// MissingIndexes reports which block positions a receiver needs fetched
// from the sender via GetBlockTransactions.
type MissingIndexes []int

// ReconstructBlock attempts to rebuild the full block a compact block
// announced, given the prefilled transactions carried in the compact
// block itself plus whatever full transactions the receiver already has on
// hand — typically its own mempool's potential transactions, extended with
// any it already received for this same round. Transactions are matched by
// short ID, computed under the same per-block key the sender used.
//
// On success returns the rebuilt block. If any short ID doesn't match a
// known transaction, returns the indexes that are missing so the caller can
// request them explicitly.
func ReconstructBlock(cb *CompactBlock, have []*tx.Transaction) (*block.Block, MissingIndexes, error) {
	key := shortTransactionIDKey(cb.Header.Nonce, cb.Nonce)

	byShortID := make(map[ShortTxID]*tx.Transaction, len(have))
	for _, t := range have {
		byShortID[shortTransactionID(key, t.Hash())] = t
	}

	total := len(cb.Prefilled) + len(cb.ShortIDs)
	txs := make([]*tx.Transaction, total)

	var missing MissingIndexes
	shortIDPos := 0
	for i := 0; i < total; i++ {
		if t, ok := cb.Prefilled[uint32(i)]; ok {
			txs[i] = t
			continue
		}
		if shortIDPos >= len(cb.ShortIDs) {
			return nil, nil, fmt.Errorf("relay: compact block short ID count inconsistent with prefilled map")
		}
		sid := cb.ShortIDs[shortIDPos]
		shortIDPos++
		if t, ok := byShortID[sid]; ok {
			txs[i] = t
		} else {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		return nil, missing, nil
	}
	blk := block.NewBlock(cb.Header, txs)
	blk.Uncles = cb.Uncles
	blk.Proposals = cb.Proposals
	return blk, nil, nil
}
