// Package txpool holds not-yet-committed transactions across the four
// states the pool state machine recognizes: pending (proposed but not yet
// inside the proposal window), staging (verified and immediately
// committable), orphan (missing at least one input or dep cell), and
// conflict (lost a double-spend race against a staged transaction).
//
// The package owns storage and the structural bookkeeping each sub-pool
// needs (spent-outpoint tracking for staging, a missing-outpoint index for
// orphans); verification and state-machine orchestration belong to
// internal/chainstate, which drives these pools under its own lock.
package txpool

import (
	"sync"

	"github.com/nervosnetwork/ckb-go/internal/cellprov"
	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// PendingPool holds transactions admitted to the pool but not yet inside
// the proposal window — known, but not yet eligible for staging.
type PendingPool struct {
	mu      sync.Mutex
	byHash  map[types.Hash]*Entry
	byShort map[types.ProposalShortID]types.Hash
}

func newPendingPool() *PendingPool {
	return &PendingPool{
		byHash:  make(map[types.Hash]*Entry),
		byShort: make(map[types.ProposalShortID]types.Hash),
	}
}

// Add inserts entry, keyed by both its hash and proposal short ID.
func (p *PendingPool) Add(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := e.hash()
	p.byHash[h] = e
	p.byShort[e.shortID()] = h
}

// Remove drops the entry for hash, if present.
func (p *PendingPool) Remove(hash types.Hash) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byHash[hash]
	if !ok {
		return nil, false
	}
	delete(p.byHash, hash)
	delete(p.byShort, e.shortID())
	return e, true
}

// RemoveByShortID pops the entry proposed under id, if present.
func (p *PendingPool) RemoveByShortID(id types.ProposalShortID) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hash, ok := p.byShort[id]
	if !ok {
		return nil, false
	}
	e := p.byHash[hash]
	delete(p.byHash, hash)
	delete(p.byShort, id)
	return e, true
}

// Get returns the entry for hash, if present.
func (p *PendingPool) Get(hash types.Hash) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byHash[hash]
	return e, ok
}

// GetByShortID returns the entry proposed under id, if present.
func (p *PendingPool) GetByShortID(id types.ProposalShortID) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hash, ok := p.byShort[id]
	if !ok {
		return nil, false
	}
	e := p.byHash[hash]
	return e, e != nil
}

// Contains reports whether id is currently pending.
func (p *PendingPool) Contains(id types.ProposalShortID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byShort[id]
	return ok
}

// Entries returns every pending entry, in no particular order.
func (p *PendingPool) Entries() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Entry, 0, len(p.byHash))
	for _, e := range p.byHash {
		out = append(out, e)
	}
	return out
}

// StagingPool holds verified transactions immediately eligible for
// inclusion in the next block. It doubles as a cellprov.CellProvider over
// the speculative state its own members create: outputs of a staged
// transaction are Live, outpoints any staged transaction consumes are
// Dead, everything else is Unknown and defers to committed chain state.
type StagingPool struct {
	mu    sync.Mutex
	byTx  map[types.Hash]*Entry
	spent map[types.Outpoint]types.Hash
}

func newStagingPool() *StagingPool {
	return &StagingPool{
		byTx:  make(map[types.Hash]*Entry),
		spent: make(map[types.Outpoint]types.Hash),
	}
}

// Add inserts entry and marks every outpoint it consumes as spent.
func (p *StagingPool) Add(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := e.hash()
	p.byTx[h] = e
	for _, in := range e.Transaction.Inputs {
		if in.PrevOut.IsNull() {
			continue
		}
		p.spent[in.PrevOut] = h
	}
}

// Remove drops hash's entry and frees the outpoints it had marked spent.
func (p *StagingPool) Remove(hash types.Hash) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byTx[hash]
	if !ok {
		return nil, false
	}
	delete(p.byTx, hash)
	for _, in := range e.Transaction.Inputs {
		if p.spent[in.PrevOut] == hash {
			delete(p.spent, in.PrevOut)
		}
	}
	return e, true
}

// Get returns the entry for hash, if present.
func (p *StagingPool) Get(hash types.Hash) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byTx[hash]
	return e, ok
}

// Contains reports whether id's transaction is currently staged.
func (p *StagingPool) Contains(id types.ProposalShortID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for h := range p.byTx {
		if types.ProposalShortIDFromHash(h) == id {
			return true
		}
	}
	return false
}

// GetByShortID returns the staged entry proposed under id, if present.
func (p *StagingPool) GetByShortID(id types.ProposalShortID) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for h, e := range p.byTx {
		if types.ProposalShortIDFromHash(h) == id {
			return e, true
		}
	}
	return nil, false
}

// Entries returns every staged entry, in no particular order.
func (p *StagingPool) Entries() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Entry, 0, len(p.byTx))
	for _, e := range p.byTx {
		out = append(out, e)
	}
	return out
}

// Cell implements cellprov.CellProvider: an outpoint consumed by a staged
// transaction is Dead, an output of one is Live, anything else is Unknown.
func (p *StagingPool) Cell(op types.Outpoint) cellprov.CellStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.spent[op]; ok {
		return cellprov.Dead()
	}
	e, ok := p.byTx[op.TxID]
	if !ok || int(op.Index) >= len(e.Transaction.Outputs) {
		return cellprov.Unknown()
	}
	return cellprov.LiveOutputCell(cellMetaFromStaged(op, e))
}

// cellMetaFromStaged builds a CellMeta for a staged (not yet committed)
// transaction's output. A staged transaction is by definition not a
// cellbase and has no block number yet.
func cellMetaFromStaged(op types.Outpoint, e *Entry) cell.CellMeta {
	return cell.CellMeta{Outpoint: op, CellOutput: e.Transaction.Outputs[op.Index]}
}

// orphanEntry pairs a parked transaction with the outpoints still blocking
// it from being resolved.
type orphanEntry struct {
	entry    *Entry
	unknowns map[types.Outpoint]struct{}
}

// OrphanPool holds transactions with at least one unresolved input or dep,
// indexed by the outpoints they're waiting on so a newly available cell can
// cheaply find every orphan it unblocks.
type OrphanPool struct {
	mu        sync.Mutex
	byHash    map[types.Hash]*orphanEntry
	byMissing map[types.Outpoint]map[types.Hash]struct{}
}

func newOrphanPool() *OrphanPool {
	return &OrphanPool{
		byHash:    make(map[types.Hash]*orphanEntry),
		byMissing: make(map[types.Outpoint]map[types.Hash]struct{}),
	}
}

// Add parks e, blocked on every outpoint in unknowns.
func (p *OrphanPool) Add(e *Entry, unknowns []types.Outpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := e.hash()
	set := make(map[types.Outpoint]struct{}, len(unknowns))
	for _, op := range unknowns {
		set[op] = struct{}{}
		if p.byMissing[op] == nil {
			p.byMissing[op] = make(map[types.Hash]struct{})
		}
		p.byMissing[op][h] = struct{}{}
	}
	p.byHash[h] = &orphanEntry{entry: e, unknowns: set}
}

// Remove drops hash's orphan entry outright, cleaning up its index
// references.
func (p *OrphanPool) Remove(hash types.Hash) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	oe, ok := p.byHash[hash]
	if !ok {
		return nil, false
	}
	p.unlinkLocked(hash, oe)
	delete(p.byHash, hash)
	return oe.entry, true
}

func (p *OrphanPool) unlinkLocked(hash types.Hash, oe *orphanEntry) {
	for op := range oe.unknowns {
		set := p.byMissing[op]
		delete(set, hash)
		if len(set) == 0 {
			delete(p.byMissing, op)
		}
	}
}

// Resolve marks op as no longer missing. Any orphan whose last unresolved
// outpoint was op is removed from the pool and returned, ready to be
// reconsidered for staging.
func (p *OrphanPool) Resolve(op types.Outpoint) []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	waiting, ok := p.byMissing[op]
	if !ok {
		return nil
	}
	var ready []*Entry
	for hash := range waiting {
		oe := p.byHash[hash]
		delete(oe.unknowns, op)
		if len(oe.unknowns) == 0 {
			ready = append(ready, oe.entry)
			delete(p.byHash, hash)
			for otherOp := range oe.unknowns {
				delete(p.byMissing[otherOp], hash)
			}
		}
	}
	delete(p.byMissing, op)
	return ready
}

// Contains reports whether hash is currently parked as an orphan.
func (p *OrphanPool) Contains(hash types.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byHash[hash]
	return ok
}

// Entries returns every orphan entry, in no particular order.
func (p *OrphanPool) Entries() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Entry, 0, len(p.byHash))
	for _, oe := range p.byHash {
		out = append(out, oe.entry)
	}
	return out
}

// ContainsShortID reports whether a parked orphan's transaction carries
// proposal short ID id.
func (p *OrphanPool) ContainsShortID(id types.ProposalShortID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for hash := range p.byHash {
		if types.ProposalShortIDFromHash(hash) == id {
			return true
		}
	}
	return false
}

// ConflictPool holds transactions that lost a double-spend race against a
// staged transaction, kept around so a later reorg can give them another
// chance once the winning transaction is detached.
type ConflictPool struct {
	mu      sync.Mutex
	byShort map[types.ProposalShortID]*Entry
}

func newConflictPool() *ConflictPool {
	return &ConflictPool{byShort: make(map[types.ProposalShortID]*Entry)}
}

// Add parks e in the conflict pool.
func (p *ConflictPool) Add(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byShort[e.shortID()] = e
}

// Contains reports whether id is currently parked in the conflict pool.
func (p *ConflictPool) Contains(id types.ProposalShortID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byShort[id]
	return ok
}

// Remove drops id's entry, if present.
func (p *ConflictPool) Remove(id types.ProposalShortID) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byShort[id]
	if ok {
		delete(p.byShort, id)
	}
	return e, ok
}

// Drain removes and returns every entry currently parked, in no particular
// order — used when a reorg frees up whatever they were conflicting over.
func (p *ConflictPool) Drain() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Entry, 0, len(p.byShort))
	for _, e := range p.byShort {
		out = append(out, e)
	}
	p.byShort = make(map[types.ProposalShortID]*Entry)
	return out
}

// TxPool aggregates the four sub-pools of the pending/staging/orphan/
// conflict state machine. It satisfies relay.TransactionSource so a
// Relayer can be built directly against it.
type TxPool struct {
	Pending  *PendingPool
	Staging  *StagingPool
	Orphan   *OrphanPool
	Conflict *ConflictPool
}

// New creates an empty TxPool.
func New() *TxPool {
	return &TxPool{
		Pending:  newPendingPool(),
		Staging:  newStagingPool(),
		Orphan:   newOrphanPool(),
		Conflict: newConflictPool(),
	}
}

// CellProvider returns the staging pool's speculative view, the provider a
// caller overlays on top of committed chain state when resolving a
// transaction still in the pool.
func (tp *TxPool) CellProvider() cellprov.CellProvider {
	return tp.Staging
}

// Contains reports whether id is known to the pool in any state.
func (tp *TxPool) Contains(id types.ProposalShortID) bool {
	return tp.Pending.Contains(id) || tp.Staging.Contains(id) ||
		tp.Conflict.Contains(id) || tp.Orphan.ContainsShortID(id)
}

// Get implements relay.TransactionSource: it looks the proposal up across
// staging, pending, and orphan, in that order of how likely a peer's
// request is to be satisfiable.
func (tp *TxPool) Get(id types.ProposalShortID) (*tx.Transaction, bool) {
	if e, ok := tp.Staging.GetByShortID(id); ok {
		return e.Transaction, true
	}
	if e, ok := tp.Pending.GetByShortID(id); ok {
		return e.Transaction, true
	}
	for _, e := range tp.Orphan.Entries() {
		if e.shortID() == id {
			return e.Transaction, true
		}
	}
	return nil, false
}

// PotentialTransactions implements relay.TransactionSource: every
// transaction the pool already has on hand, a candidate set for
// reconstructing an incoming compact block.
func (tp *TxPool) PotentialTransactions() []*tx.Transaction {
	out := make([]*tx.Transaction, 0)
	for _, e := range tp.Staging.Entries() {
		out = append(out, e.Transaction)
	}
	for _, e := range tp.Pending.Entries() {
		out = append(out, e.Transaction)
	}
	for _, e := range tp.Orphan.Entries() {
		out = append(out, e.Transaction)
	}
	return out
}

// Committed removes t from every sub-pool: it is now permanently part of
// the chain and no longer the pool's concern. A copy that had been parked
// in orphan or conflict is garbage the moment the chain carries the
// transaction itself.
func (tp *TxPool) Committed(t *tx.Transaction) {
	h := t.Hash()
	tp.Pending.Remove(h)
	tp.Staging.Remove(h)
	tp.Orphan.Remove(h)
	tp.Conflict.Remove(types.ProposalShortIDFromHash(h))
}

// ResolveOrphans notifies the orphan pool that every output of t is now
// available, returning the orphan entries that were waiting on nothing
// else and are ready to be reconsidered for staging.
func (tp *TxPool) ResolveOrphans(t *tx.Transaction) []*Entry {
	h := t.Hash()
	var ready []*Entry
	for i := range t.Outputs {
		op := types.Outpoint{TxID: h, Index: uint32(i)}
		ready = append(ready, tp.Orphan.Resolve(op)...)
	}
	return ready
}
