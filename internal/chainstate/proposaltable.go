package chainstate

import (
	"sync"

	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// ProposalTable is the sliding window of proposal short IDs by block
// number: a proposal is retained — and its transaction committable — from
// the moment its proposing block lands until that block falls more than
// start heights behind the tip. Finalize evicts entries that have aged
// out as the tip advances and returns exactly the set that just exited.
type ProposalTable struct {
	mu       sync.Mutex
	start    uint64
	byHeight map[uint64]map[types.ProposalShortID]struct{}
}

// NewProposalTable creates an empty table retaining proposals from the
// most recent start heights.
func NewProposalTable(start uint64) *ProposalTable {
	return &ProposalTable{
		start:    start,
		byHeight: make(map[uint64]map[types.ProposalShortID]struct{}),
	}
}

// Insert records blockNumber's proposal IDs (deduplicated).
func (t *ProposalTable) Insert(blockNumber uint64, ids []types.ProposalShortID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.byHeight[blockNumber]
	if !ok {
		set = make(map[types.ProposalShortID]struct{}, len(ids))
		t.byHeight[blockNumber] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

// Remove drops blockNumber's entry outright (used when detaching a block).
func (t *ProposalTable) Remove(blockNumber uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byHeight, blockNumber)
}

// Contains reports whether id has been proposed by any block the table
// still retains (everything not yet evicted by the last Finalize).
func (t *ProposalTable) Contains(id types.ProposalShortID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, set := range t.byHeight {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// IDs returns every proposal ID currently tracked by the table, in no
// particular order.
func (t *ProposalTable) IDs() []types.ProposalShortID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.ProposalShortID, 0)
	for _, set := range t.byHeight {
		for id := range set {
			out = append(out, id)
		}
	}
	return out
}

// Finalize evicts every entry more than start heights behind tip and
// returns the union of IDs that just exited — the set a reorg or
// block-apply step must treat as expired.
func (t *ProposalTable) Finalize(tip uint64) []types.ProposalShortID {
	t.mu.Lock()
	defer t.mu.Unlock()

	floor := uint64(0)
	if tip > t.start {
		floor = tip - t.start
	}

	var expired []types.ProposalShortID
	for height, set := range t.byHeight {
		if height < floor {
			for id := range set {
				expired = append(expired, id)
			}
			delete(t.byHeight, height)
		}
	}
	return expired
}
