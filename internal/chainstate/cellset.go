package chainstate

import (
	"sync"

	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// TxMeta is the authoritative record of one transaction's outputs: which
// block produced them, whether they came from a cellbase, and which output
// indexes have been spent. A TxMeta is removed from the CellSet the moment
// every one of its outputs is dead — a transaction with nothing left to
// spend has no further business occupying the live set.
type TxMeta struct {
	BlockNumber uint64
	Cellbase    bool
	dead        []bool
}

// IsDead reports whether the output at index has been spent. index beyond
// the tracked output count is treated the same as "not yet known" by the
// caller (CellSet.IsDead returns ok=false in that case).
func (m *TxMeta) IsDead(index int) bool {
	return index < len(m.dead) && m.dead[index]
}

func (m *TxMeta) allDead() bool {
	for _, d := range m.dead {
		if !d {
			return false
		}
	}
	return true
}

// CellSet is the authoritative live-output set: exactly the outputs of
// transactions at or below the current tip that still have at least one
// unspent output. It is Chain State's private ledger — nothing outside
// internal/chainstate mutates it directly.
type CellSet struct {
	mu  sync.RWMutex
	txs map[types.Hash]*TxMeta
}

// NewCellSet creates an empty CellSet.
func NewCellSet() *CellSet {
	return &CellSet{txs: make(map[types.Hash]*TxMeta)}
}

// Insert records a freshly committed transaction's outputs as all-live.
func (cs *CellSet) Insert(txHash types.Hash, blockNumber uint64, cellbase bool, outputCount int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.txs[txHash] = &TxMeta{BlockNumber: blockNumber, Cellbase: cellbase, dead: make([]bool, outputCount)}
}

// Remove drops a transaction's entry outright — used when detaching the
// block that created it, since its outputs no longer exist at all.
func (cs *CellSet) Remove(txHash types.Hash) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.txs, txHash)
}

// MarkDead marks op's output as spent. If that was the transaction's last
// live output, the entry is dropped from the set entirely.
func (cs *CellSet) MarkDead(op types.Outpoint) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	meta, ok := cs.txs[op.TxID]
	if !ok || int(op.Index) >= len(meta.dead) {
		return
	}
	meta.dead[op.Index] = true
	if meta.allDead() {
		delete(cs.txs, op.TxID)
	}
}

// MarkLive undoes a MarkDead: it un-spends op, reinserting the owning
// transaction's entry (with every other output left dead) if the entry had
// previously been dropped for being fully spent. Used when detaching a
// block whose transactions spent op.
func (cs *CellSet) MarkLive(op types.Outpoint, blockNumber uint64, cellbase bool, outputCount int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	meta, ok := cs.txs[op.TxID]
	if !ok {
		meta = &TxMeta{BlockNumber: blockNumber, Cellbase: cellbase, dead: make([]bool, outputCount)}
		for i := range meta.dead {
			meta.dead[i] = true
		}
		cs.txs[op.TxID] = meta
	}
	if int(op.Index) < len(meta.dead) {
		meta.dead[op.Index] = false
	}
}

// Get returns the TxMeta for txHash, if the cell set still tracks it.
func (cs *CellSet) Get(txHash types.Hash) (*TxMeta, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	meta, ok := cs.txs[txHash]
	return meta, ok
}

// IsDead reports the dead bit for op. known is false if txHash is absent
// from the set entirely, or if index falls outside the tracked outputs —
// both cases the caller should treat as Unknown, not Live or Dead.
func (cs *CellSet) IsDead(op types.Outpoint) (dead, known bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	meta, ok := cs.txs[op.TxID]
	if !ok || int(op.Index) >= len(meta.dead) {
		return false, false
	}
	return meta.dead[op.Index], true
}
