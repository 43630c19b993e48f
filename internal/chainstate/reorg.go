package chainstate

import (
	"fmt"

	"github.com/nervosnetwork/ckb-go/internal/log"
	"github.com/nervosnetwork/ckb-go/internal/txpool"
	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// ApplyReorg switches the tip from the chain ending in detached (ordered
// tip-first, i.e. highest block first) to the chain made of attached
// (ordered fork-point-first). Both slices are already persisted in store
// by the caller; ApplyReorg only updates ChainState's in-memory view: the
// cell set, the proposal window, and the transaction pool.
//
// newTipExt is the total difficulty of attached's last block, supplied by
// the caller rather than recomputed here — difficulty accounting is a
// consensus-engine concern, out of scope for this package.
func (cs *ChainState) ApplyReorg(detached, attached []*block.Block, newTipExt BlockExt) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if len(attached) == 0 {
		return fmt.Errorf("apply reorg: attached chain must not be empty")
	}

	for _, blk := range detached {
		cs.detachBlockLocked(blk)
	}
	for _, blk := range attached {
		cs.attachBlockLocked(blk)
	}

	newTip := attached[len(attached)-1].Header
	cs.tipHeader = newTip
	cs.totalDifficulty = newTipExt.TotalDifficulty

	expired := cs.proposals.Finalize(newTip.Height)
	cs.updateTxPoolForReorgLocked(detached, attached, expired)

	return nil
}

// detachBlockLocked undoes blk's contribution to the cell set: every
// output it created is gone, and every input it spent is live again.
func (cs *ChainState) detachBlockLocked(blk *block.Block) {
	cs.proposals.Remove(blk.Header.Height)
	for _, t := range blk.Transactions {
		cs.cellSet.Remove(t.Hash())
		for _, in := range t.Inputs {
			if in.PrevOut.IsNull() {
				continue
			}
			blockNumber, cellbase, ok := cs.store.GetCellOrigin(in.PrevOut.TxID)
			if !ok {
				log.ChainState.Warn().Str("outpoint", in.PrevOut.TxID.String()).Msg("cannot locate origin for revived cell")
				continue
			}
			origin, ok := cs.store.GetTransaction(in.PrevOut.TxID)
			outputCount := 0
			if ok {
				outputCount = len(origin.Outputs)
			}
			cs.cellSet.MarkLive(in.PrevOut, blockNumber, cellbase, outputCount)
		}
	}
}

// attachBlockLocked applies blk's contribution to the cell set: every
// input it spends goes dead, and its own outputs become live.
func (cs *ChainState) attachBlockLocked(blk *block.Block) {
	cs.proposals.Insert(blk.Header.Height, blk.UnionProposalIds())
	for _, t := range blk.Transactions {
		for _, in := range t.Inputs {
			if in.PrevOut.IsNull() {
				continue
			}
			cs.cellSet.MarkDead(in.PrevOut)
		}
		cs.cellSet.Insert(t.Hash(), blk.Header.Height, t.IsCellbase(), len(t.Outputs))
	}
}

// updateTxPoolForReorgLocked reconciles the pool with the new tip: expired
// pending proposals are dropped, detached-but-not-reattached transactions
// (skipping each block's cellbase) are re-verified and restaged, attached
// transactions unblock any orphans waiting on them and leave the pool
// entirely (they're permanently committed), and every proposal still in
// the window gets one more chance to move from pending to staging.
//
// When anything was detached, transactions parked in the conflict pool
// also get a fresh chance to stage: a double-spend loser only stops
// conflicting once the cell it lost the race for is freed, which is
// exactly what a detach can do. The drain runs before detached
// transactions are restaged, so a freed cell goes to the conflict-pool
// entry rather than straight back to the detached rival that beat it the
// first time.
func (cs *ChainState) updateTxPoolForReorgLocked(detached, attached []*block.Block, expiredProposals []types.ProposalShortID) {
	for _, id := range expiredProposals {
		cs.pool.Pending.RemoveByShortID(id)
	}

	detachedTxs := make(map[types.Hash]*tx.Transaction)
	for _, blk := range detached {
		for _, t := range skipCellbase(blk) {
			detachedTxs[t.Hash()] = t
		}
	}
	attachedTxs := make(map[types.Hash]*tx.Transaction)
	for _, blk := range attached {
		for _, t := range skipCellbase(blk) {
			attachedTxs[t.Hash()] = t
		}
	}

	if len(detached) > 0 {
		cs.verifyCache.Purge()
		for _, entry := range cs.pool.Conflict.Drain() {
			cs.stagingTxLocked(entry)
		}
	}

	for hash, t := range detachedTxs {
		if _, stillAttached := attachedTxs[hash]; stillAttached {
			continue
		}
		if cycles, err := cs.verifyTransactionLocked(t); err == nil {
			cs.pool.Staging.Add(txpool.NewEntry(t, cycles))
		}
	}

	for _, t := range attachedTxs {
		cs.updateOrphanFromTx(t)
	}
	for _, t := range attachedTxs {
		cs.pool.Committed(t)
	}

	for _, id := range cs.proposals.IDs() {
		entry, ok := cs.pool.Pending.RemoveByShortID(id)
		if !ok {
			continue
		}
		result, err := cs.stagingTxLocked(entry)
		if err != nil {
			log.TxPool.Debug().Err(err).Str("tx", entry.Transaction.Hash().String()).Msg("failed to stage proposed transaction after reorg")
			continue
		}
		if result.Kind == txpool.StagingNormal {
			cs.updateOrphanFromTx(entry.Transaction)
		}
	}
}

// skipCellbase returns blk's transactions excluding its cellbase (index
// 0) — a cellbase is never pool-resident, so reorg bookkeeping has nothing
// to reconsider for it.
func skipCellbase(blk *block.Block) []*tx.Transaction {
	if len(blk.Transactions) <= 1 {
		return nil
	}
	return blk.Transactions[1:]
}
