// Package chainstate implements the single-writer chain state core: the
// live cell set, the proposal window, the transaction pool state machine,
// and the verification cache that sit on top of the (out-of-scope) block
// store and script VM. Every mutating method runs under ChainState's own
// lock; there is exactly one writer, the chain's block-apply path.
package chainstate

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nervosnetwork/ckb-go/internal/cellprov"
	"github.com/nervosnetwork/ckb-go/internal/log"
	"github.com/nervosnetwork/ckb-go/internal/txpool"
	"github.com/nervosnetwork/ckb-go/internal/verify"
	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

const defaultTxsVerifyCacheSize = 4096

// ChainState is the mutable core of a node's view of the chain: the tip
// header, the live cell set, the proposal table, the transaction pool, and
// a verification cache, all guarded by a single mutex. Callers — the block
// processor and RPC layer — serialize through ChainState rather than it
// serializing internally per-field.
type ChainState struct {
	mu sync.Mutex

	store     ChainStore
	consensus *Consensus

	tipHeader       *block.Header
	totalDifficulty uint64

	cellSet   *CellSet
	proposals *ProposalTable
	pool      *txpool.TxPool

	verifyCache *lru.Cache[types.Hash, uint64]
}

// New builds a ChainState over store and consensus, initializing from the
// store's recorded tip if one exists, or from genesis otherwise. It
// replays every block from 0 to the tip to rebuild the in-memory cell set,
// and only the blocks within the proposal window of the tip to rebuild the
// proposal table.
func New(store ChainStore, consensus *Consensus) (*ChainState, error) {
	tipHeader, ok := store.GetTipHeader()
	if !ok {
		if err := store.Init(consensus.GenesisBlock); err != nil {
			return nil, fmt.Errorf("init genesis: %w", err)
		}
		tipHeader = consensus.GenesisBlock.Header
	}

	cacheSize := consensus.TxsVerifyCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultTxsVerifyCacheSize
	}
	verifyCache, err := lru.New[types.Hash, uint64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create verify cache: %w", err)
	}

	cs := &ChainState{
		store:       store,
		consensus:   consensus,
		tipHeader:   tipHeader,
		pool:        txpool.New(),
		verifyCache: verifyCache,
	}

	cellSet, err := buildCellSet(store, tipHeader.Height)
	if err != nil {
		return nil, fmt.Errorf("build cell set: %w", err)
	}
	cs.cellSet = cellSet

	proposals, err := buildProposalTable(store, consensus.ProposalWindow, tipHeader.Height)
	if err != nil {
		return nil, fmt.Errorf("build proposal table: %w", err)
	}
	cs.proposals = proposals

	ext, ok := store.GetBlockExt(tipHeader.Hash())
	if ok {
		cs.totalDifficulty = ext.TotalDifficulty
	}

	return cs, nil
}

func buildCellSet(store ChainStore, tipNumber uint64) (*CellSet, error) {
	cellSet := NewCellSet()
	for n := uint64(0); n <= tipNumber; n++ {
		hash, ok := store.GetBlockHash(n)
		if !ok {
			return nil, fmt.Errorf("missing block hash at height %d", n)
		}
		txs, ok := store.GetBlockBody(hash)
		if !ok {
			return nil, fmt.Errorf("missing block body at height %d", n)
		}
		for _, t := range txs {
			for _, in := range t.Inputs {
				if in.PrevOut.IsNull() {
					continue
				}
				cellSet.MarkDead(in.PrevOut)
			}
			cellSet.Insert(t.Hash(), n, t.IsCellbase(), len(t.Outputs))
		}
	}
	return cellSet, nil
}

// buildProposalTable replays every block the table would still retain —
// heights within window of the tip — unioning each block's own proposal
// IDs with its uncles'.
func buildProposalTable(store ChainStore, window, tipNumber uint64) (*ProposalTable, error) {
	table := NewProposalTable(window)

	windowStart := uint64(0)
	if tipNumber > window {
		windowStart = tipNumber - window
	}

	for bn := windowStart; bn <= tipNumber; bn++ {
		hash, ok := store.GetBlockHash(bn)
		if !ok {
			continue
		}
		var ids []types.ProposalShortID
		if blockIDs, ok := store.GetBlockProposalTxIDs(hash); ok {
			ids = append(ids, blockIDs...)
		}
		if uncles, ok := store.GetBlockUncles(hash); ok {
			for _, u := range uncles {
				ids = append(ids, u.Proposals...)
			}
		}
		table.Insert(bn, ids)
	}
	table.Finalize(tipNumber)
	return table, nil
}

// TipNumber returns the current tip's height.
func (cs *ChainState) TipNumber() uint64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.tipHeader.Height
}

// TipHash returns the current tip's header hash.
func (cs *ChainState) TipHash() types.Hash {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.tipHeader.Hash()
}

// TotalDifficulty returns the tip's cumulative difficulty.
func (cs *ChainState) TotalDifficulty() uint64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.totalDifficulty
}

// Pool returns the underlying transaction pool, for callers (the relayer,
// a future RPC layer) that need read access to pending/staging/orphan/
// conflict entries without going through ChainState's own lock.
func (cs *ChainState) Pool() *txpool.TxPool {
	return cs.pool
}

// IsDeadCell reports the cell set's dead bit for op, and whether it knows
// about op at all.
func (cs *ChainState) IsDeadCell(op types.Outpoint) (dead, known bool) {
	return cs.cellSet.IsDead(op)
}

// ContainsProposal reports whether id is inside the current proposal
// window.
func (cs *ChainState) ContainsProposal(id types.ProposalShortID) bool {
	return cs.proposals.Contains(id)
}

// MedianBlockCount implements verify.MedianTimeContext.
func (cs *ChainState) MedianBlockCount() uint64 {
	return cs.consensus.MedianTimeBlockCount
}

// Timestamp implements verify.MedianTimeContext by consulting the store.
func (cs *ChainState) Timestamp(blockNumber uint64) (uint64, bool) {
	hash, ok := cs.store.GetBlockHash(blockNumber)
	if !ok {
		return 0, false
	}
	h, ok := cs.store.GetHeader(hash)
	if !ok {
		return 0, false
	}
	return h.Timestamp, true
}

// resolveTransaction resolves tx against transaction-local double-spend
// checks overlaid on staging overlaid on committed chain state.
func (cs *ChainState) resolveTransaction(t *tx.Transaction) (*cellprov.ResolvedTransaction, error) {
	transactionCP := cellprov.NewTransactionCellProvider(t)
	stagingCP := cellprov.NewOverlay(cs.pool.CellProvider(), cs)
	provider := cellprov.NewOverlay(transactionCP, stagingCP)
	return cellprov.ResolveTransaction(provider, t)
}

// resolveTransactionWithPending additionally overlays the pending pool —
// used only by the RPC-facing trace/dry-run path, never by pool admission.
func (cs *ChainState) resolveTransactionWithPending(t *tx.Transaction) (*cellprov.ResolvedTransaction, error) {
	transactionCP := cellprov.NewTransactionCellProvider(t)
	stagingCP := cellprov.NewOverlay(cs.pool.CellProvider(), cs)
	pendingAndStagingCP := cellprov.NewOverlay(pendingCellProvider{cs.pool}, stagingCP)
	provider := cellprov.NewOverlay(transactionCP, pendingAndStagingCP)
	return cellprov.ResolveTransaction(provider, t)
}

// VerifyTransaction resolves and verifies t against the current staged
// view, without touching the pool.
func (cs *ChainState) VerifyTransaction(t *tx.Transaction) (uint64, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.verifyTransactionLocked(t)
}

func (cs *ChainState) verifyTransactionLocked(t *tx.Transaction) (uint64, error) {
	rtx, err := cs.resolveTransaction(t)
	if err != nil {
		return 0, err
	}
	return cs.verifyRTXLocked(rtx)
}

// VerifyTransactionWithPending is the RPC trace/dry-run entry point: it
// additionally treats pending-pool outputs as live, so a client can probe
// "would this be accepted once its ancestor proposal lands" without that
// ancestor needing to be staged yet.
func (cs *ChainState) VerifyTransactionWithPending(t *tx.Transaction) (uint64, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	rtx, err := cs.resolveTransactionWithPending(t)
	if err != nil {
		return 0, err
	}
	return cs.verifyRTXLocked(rtx)
}

func (cs *ChainState) verifyRTXLocked(rtx *cellprov.ResolvedTransaction) (uint64, error) {
	txHash := rtx.Transaction.Hash()
	if cycles, ok := cs.verifyCache.Get(txHash); ok {
		return cycles, nil
	}

	cycles, err := verify.NewTransactionVerifier(rtx, cs, cs.tipHeader.Height, cs.consensus.CellbaseMaturity).
		Verify(cs.consensus.MaxBlockCycles)
	if err != nil {
		return 0, err
	}
	cs.verifyCache.Add(txHash, cycles)
	return cycles, nil
}

// AddTxToPool resolves and verifies t, then routes it to staging (if its
// proposal is already inside the window) or to pending (otherwise). An
// unresolvable-unknown transaction is still enqueued to pending so a later
// arrival can complete it, but reported as an error to the caller.
func (cs *ChainState) AddTxToPool(t *tx.Transaction) (uint64, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	shortID := types.ProposalShortIDFromHash(t.Hash())
	cycles, verifyErr := cs.verifyTransactionLocked(t)

	if cs.proposals.Contains(shortID) {
		var entry *txpool.Entry
		if verifyErr == nil {
			entry = txpool.NewEntry(t, cycles)
		} else {
			entry = txpool.NewUnverifiedEntry(t)
		}
		result, err := cs.stagingTxLocked(entry)
		if err != nil {
			return 0, err
		}
		if result.Kind == txpool.StagingNormal {
			cs.updateOrphanFromTx(t)
		}
		if verifyErr != nil {
			return 0, &txpool.PoolError{Kind: txpool.ErrInvalidTx, Err: verifyErr}
		}
		return cycles, nil
	}

	if verifyErr == nil {
		if cs.pool.Contains(shortID) {
			return 0, &txpool.PoolError{Kind: txpool.ErrDuplicate}
		}
		cs.pool.Pending.Add(txpool.NewEntry(t, cycles))
		return cycles, nil
	}

	if cellprov.IsUnknown(verifyErr) {
		if cs.pool.Contains(shortID) {
			return 0, &txpool.PoolError{Kind: txpool.ErrDuplicate}
		}
		cs.pool.Pending.Add(txpool.NewUnverifiedEntry(t))
		return 0, &txpool.PoolError{Kind: txpool.ErrInvalidTx, Err: verifyErr}
	}

	return 0, &txpool.PoolError{Kind: txpool.ErrInvalidTx, Err: verifyErr}
}

// updateOrphanFromTx re-examines every orphan waiting on one of t's
// outputs now that t is resolvable, re-verifying each (unless it already
// carries a cycle count) and routing it to staging or conflict. It is the
// orphan's own transaction that gets verified — an orphan can carry
// unrelated inputs of its own that still need checking.
func (cs *ChainState) updateOrphanFromTx(t *tx.Transaction) {
	entries := cs.pool.ResolveOrphans(t)
	for _, entry := range entries {
		cycles := entry.Cycles
		var cyclesVal uint64
		var err error
		if cycles != nil {
			cyclesVal = *cycles
		} else {
			cyclesVal, err = cs.verifyTransactionLocked(entry.Transaction)
		}

		switch {
		case err == nil:
			cs.pool.Staging.Add(txpool.NewEntry(entry.Transaction, cyclesVal))
		case cellprov.IsDead(err):
			cs.pool.Conflict.Add(entry)
		default:
			// Terminal verification failure: drop silently. Nothing a
			// later arrival or reorg does can revive it.
		}
	}
}

// stagingTxLocked re-resolves entry's transaction; a Dead cell routes it to
// conflict, any Unknown cells route it to orphan, and otherwise (after
// verifying, if not already) it is added to staging.
func (cs *ChainState) stagingTxLocked(entry *txpool.Entry) (txpool.StagingResult, error) {
	t := entry.Transaction

	rtx, resolveErr := cs.resolveTransaction(t)
	if resolveErr != nil {
		if cellprov.IsDead(resolveErr) {
			cs.pool.Conflict.Add(entry)
			return txpool.StagingResult{}, &txpool.PoolError{Kind: txpool.ErrConflict}
		}
		// Unknown: park as an orphan waiting on every outpoint the
		// classifier couldn't resolve.
		unknowns := classifyUnresolved(cs, t)
		cs.pool.Orphan.Add(entry, unknowns)
		return txpool.StagingResult{Kind: txpool.StagingOrphan}, nil
	}

	if entry.Cycles == nil {
		cycles, err := cs.verifyRTXLocked(rtx)
		if err != nil {
			log.TxPool.Debug().Err(err).Str("tx", t.Hash().String()).Msg("failed to stage transaction")
			return txpool.StagingResult{}, &txpool.PoolError{Kind: txpool.ErrInvalidTx, Err: err}
		}
		entry = txpool.NewEntry(t, cycles)
	}

	cs.pool.Staging.Add(entry)
	return txpool.StagingResult{Kind: txpool.StagingNormal, Cycles: *entry.Cycles}, nil
}

// classifyUnresolved scans t's inputs and deps against the same provider
// stack stagingTxLocked resolves against, collecting every outpoint that
// came back Unknown. It's a non-fail-fast sibling to
// cellprov.ResolveTransaction: parking an orphan needs the full set of
// missing outpoints, not just the first one.
func classifyUnresolved(cs *ChainState, t *tx.Transaction) []types.Outpoint {
	transactionCP := cellprov.NewTransactionCellProvider(t)
	stagingCP := cellprov.NewOverlay(cs.pool.CellProvider(), cs)
	provider := cellprov.NewOverlay(transactionCP, stagingCP)

	var unknowns []types.Outpoint
	scan := func(op types.Outpoint) {
		if cellprov.GetCellStatus(provider, op).IsUnknown() {
			unknowns = append(unknowns, op)
		}
	}
	for _, in := range t.Inputs {
		scan(in.PrevOut)
	}
	for _, dep := range t.Deps {
		scan(dep)
	}
	return unknowns
}

// pendingCellProvider adapts the pending pool to cellprov.CellProvider for
// the RPC trace path; the pending pool itself doesn't implement this since
// nothing in ordinary pool admission treats pending outputs as spendable.
type pendingCellProvider struct {
	pool *txpool.TxPool
}

func (p pendingCellProvider) Cell(op types.Outpoint) cellprov.CellStatus {
	e, ok := p.pool.Pending.Get(op.TxID)
	if !ok || int(op.Index) >= len(e.Transaction.Outputs) {
		return cellprov.Unknown()
	}
	return cellprov.LiveOutputCell(pendingCellMeta(op, e))
}
