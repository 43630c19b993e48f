package chainstate

import (
	"testing"

	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// buildBlock assembles a block extending parent: a cellbase (salted so two
// blocks at the same height hash differently), followed by txs, proposing
// proposals. ApplyReorg doesn't run structural validation, so merkle root
// and canonical ordering are left as the builder produced them.
func buildBlock(t *testing.T, parent *block.Header, timestamp uint64, salt byte, proposals []types.ProposalShortID, txs ...*tx.Transaction) *block.Block {
	t.Helper()

	cellbase := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.NullOutPoint, Signature: []byte{byte(parent.Height + 1), salt}}},
		Outputs: []cell.CellOutput{{Capacity: 0}},
	}
	all := append([]*tx.Transaction{cellbase}, txs...)
	hashes := make([]types.Hash, len(all))
	for i, txn := range all {
		hashes[i] = txn.Hash()
	}
	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   parent.Hash(),
		MerkleRoot: block.ComputeMerkleRoot(hashes),
		Timestamp:  timestamp,
		Height:     parent.Height + 1,
	}
	blk := block.NewBlock(header, all)
	blk.Proposals = proposals
	return blk
}

// applyBlock persists blk and applies it to cs as a pure attach.
func applyBlock(t *testing.T, cs *ChainState, store *Store, blk *block.Block, totalDifficulty uint64) {
	t.Helper()
	if err := store.PutBlock(blk, totalDifficulty); err != nil {
		t.Fatalf("PutBlock() error: %v", err)
	}
	if err := store.SetTip(blk.Hash()); err != nil {
		t.Fatalf("SetTip() error: %v", err)
	}
	if err := cs.ApplyReorg(nil, []*block.Block{blk}, BlockExt{TotalDifficulty: totalDifficulty}); err != nil {
		t.Fatalf("ApplyReorg() error: %v", err)
	}
}

func TestReorg_ProposalFirstAcceptance(t *testing.T) {
	cs, store, genesisBlk := newTestState(t)
	genesisTx := genesisBlk.Transactions[0]

	t1 := signedSpend(t, types.Outpoint{TxID: genesisTx.Hash(), Index: 0}, genesisTx.Outputs[0].Lock)

	// Submitted before any block proposes it: lands in pending.
	if _, err := cs.AddTxToPool(t1); err != nil {
		t.Fatalf("AddTxToPool() error: %v", err)
	}
	if _, ok := cs.pool.Staging.Get(t1.Hash()); ok {
		t.Fatal("transaction should not stage before its proposal enters the window")
	}

	// A block proposing it arrives: the reorg step promotes it to staging.
	b1 := buildBlock(t, genesisBlk.Header, genesisBlk.Header.Timestamp+10, 0,
		[]types.ProposalShortID{t1.ProposalShortId()})
	applyBlock(t, cs, store, b1, 1)

	entry, ok := cs.pool.Staging.Get(t1.Hash())
	if !ok {
		t.Fatal("proposed transaction should have moved to staging")
	}
	if entry.Cycles == nil || *entry.Cycles == 0 {
		t.Errorf("staged entry should carry a positive cycle count, got %v", entry.Cycles)
	}
}

func TestAddTxToPool_OrphanThenStaging(t *testing.T) {
	cs, store, genesisBlk := newTestState(t)
	genesisTx := genesisBlk.Transactions[0]

	t1 := signedSpend(t, types.Outpoint{TxID: genesisTx.Hash(), Index: 0}, genesisTx.Outputs[0].Lock)
	t2 := signedSpend(t, types.Outpoint{TxID: t1.Hash(), Index: 0}, t1.Outputs[0].Lock)

	b1 := buildBlock(t, genesisBlk.Header, genesisBlk.Header.Timestamp+10, 0,
		[]types.ProposalShortID{t1.ProposalShortId(), t2.ProposalShortId()})
	applyBlock(t, cs, store, b1, 1)

	// Child first: its parent is unknown, so it parks as an orphan.
	if _, err := cs.AddTxToPool(t2); err == nil {
		t.Fatal("expected an error submitting a transaction with an unknown parent")
	}
	if !cs.pool.Orphan.Contains(t2.Hash()) {
		t.Fatal("child should be parked in the orphan pool")
	}

	// Parent arrives and stages; the orphaned child follows it in.
	if _, err := cs.AddTxToPool(t1); err != nil {
		t.Fatalf("AddTxToPool(parent) error: %v", err)
	}
	if _, ok := cs.pool.Staging.Get(t1.Hash()); !ok {
		t.Fatal("parent should be staged")
	}
	if _, ok := cs.pool.Staging.Get(t2.Hash()); !ok {
		t.Fatal("child should have been promoted from orphan to staging")
	}
	if cs.pool.Orphan.Contains(t2.Hash()) {
		t.Fatal("child should no longer be parked as an orphan")
	}
}

func TestReorg_ConflictGetsSecondChanceAfterDetach(t *testing.T) {
	cs, store, genesisBlk := newTestState(t)
	genesisTx := genesisBlk.Transactions[0]
	spent := types.Outpoint{TxID: genesisTx.Hash(), Index: 0}

	t3 := signedSpend(t, spent, genesisTx.Outputs[0].Lock)
	t4 := signedSpend(t, spent, genesisTx.Outputs[0].Lock)

	b1 := buildBlock(t, genesisBlk.Header, genesisBlk.Header.Timestamp+10, 0,
		[]types.ProposalShortID{t3.ProposalShortId(), t4.ProposalShortId()})
	applyBlock(t, cs, store, b1, 1)

	// First spender stages; the second loses the race and conflicts.
	if _, err := cs.AddTxToPool(t3); err != nil {
		t.Fatalf("AddTxToPool(t3) error: %v", err)
	}
	if _, err := cs.AddTxToPool(t4); err == nil {
		t.Fatal("expected a conflict error for the double-spender")
	}
	if !cs.pool.Conflict.Contains(t4.ProposalShortId()) {
		t.Fatal("losing double-spender should be parked in the conflict pool")
	}

	// The winner is committed on-chain, then its block is reorged out.
	b2 := buildBlock(t, b1.Header, b1.Header.Timestamp+10, 0, nil, t3)
	applyBlock(t, cs, store, b2, 2)
	if _, ok := cs.pool.Staging.Get(t3.Hash()); ok {
		t.Fatal("committed transaction should have left staging")
	}

	b2prime := buildBlock(t, b1.Header, b1.Header.Timestamp+20, 1, nil)
	if err := store.PutBlock(b2prime, 3); err != nil {
		t.Fatalf("PutBlock() error: %v", err)
	}
	if err := store.SetTip(b2prime.Hash()); err != nil {
		t.Fatalf("SetTip() error: %v", err)
	}
	if err := cs.ApplyReorg([]*block.Block{b2}, []*block.Block{b2prime}, BlockExt{TotalDifficulty: 3}); err != nil {
		t.Fatalf("ApplyReorg() error: %v", err)
	}

	// The detach freed the contested cell; the conflict entry claims it.
	if _, ok := cs.pool.Staging.Get(t4.Hash()); !ok {
		t.Fatal("conflicted transaction should stage once the detach frees its input")
	}
	if cs.pool.Conflict.Contains(t4.ProposalShortId()) {
		t.Fatal("conflict pool should no longer hold the restaged transaction")
	}
	if _, ok := cs.pool.Staging.Get(t3.Hash()); ok {
		t.Fatal("detached rival should not restage over the conflict entry's claim")
	}
}

func TestReorg_AttachedTransactionLeavesPool(t *testing.T) {
	cs, store, genesisBlk := newTestState(t)
	genesisTx := genesisBlk.Transactions[0]

	t1 := signedSpend(t, types.Outpoint{TxID: genesisTx.Hash(), Index: 0}, genesisTx.Outputs[0].Lock)
	if _, err := cs.AddTxToPool(t1); err != nil {
		t.Fatalf("AddTxToPool() error: %v", err)
	}

	b1 := buildBlock(t, genesisBlk.Header, genesisBlk.Header.Timestamp+10, 0, nil, t1)
	applyBlock(t, cs, store, b1, 1)

	shortID := t1.ProposalShortId()
	if cs.pool.Pending.Contains(shortID) {
		t.Error("committed transaction must not remain pending")
	}
	if _, ok := cs.pool.Staging.Get(t1.Hash()); ok {
		t.Error("committed transaction must not remain staged")
	}

	dead, known := cs.IsDeadCell(types.Outpoint{TxID: genesisTx.Hash(), Index: 0})
	if known || dead {
		t.Errorf("fully spent genesis transaction should leave the cell set, got dead=%v known=%v", dead, known)
	}
}

func TestVerifyTransaction_CyclesMemoized(t *testing.T) {
	cs, _, genesisBlk := newTestState(t)
	genesisTx := genesisBlk.Transactions[0]

	t1 := signedSpend(t, types.Outpoint{TxID: genesisTx.Hash(), Index: 0}, genesisTx.Outputs[0].Lock)

	first, err := cs.VerifyTransaction(t1)
	if err != nil {
		t.Fatalf("VerifyTransaction() error: %v", err)
	}
	if !cs.verifyCache.Contains(t1.Hash()) {
		t.Fatal("verification result should be cached")
	}
	second, err := cs.VerifyTransaction(t1)
	if err != nil {
		t.Fatalf("VerifyTransaction() (cached) error: %v", err)
	}
	if first != second {
		t.Errorf("cached cycles %d != first verification's %d", second, first)
	}
}

func TestReorg_DetachPurgesVerifyCache(t *testing.T) {
	cs, store, genesisBlk := newTestState(t)
	genesisTx := genesisBlk.Transactions[0]

	t1 := signedSpend(t, types.Outpoint{TxID: genesisTx.Hash(), Index: 0}, genesisTx.Outputs[0].Lock)
	if _, err := cs.VerifyTransaction(t1); err != nil {
		t.Fatalf("VerifyTransaction() error: %v", err)
	}

	b1 := buildBlock(t, genesisBlk.Header, genesisBlk.Header.Timestamp+10, 0, nil)
	applyBlock(t, cs, store, b1, 1)
	if !cs.verifyCache.Contains(t1.Hash()) {
		t.Fatal("a pure attach should not purge the verification cache")
	}

	b1prime := buildBlock(t, genesisBlk.Header, genesisBlk.Header.Timestamp+20, 1, nil)
	if err := store.PutBlock(b1prime, 2); err != nil {
		t.Fatalf("PutBlock() error: %v", err)
	}
	if err := store.SetTip(b1prime.Hash()); err != nil {
		t.Fatalf("SetTip() error: %v", err)
	}
	if err := cs.ApplyReorg([]*block.Block{b1}, []*block.Block{b1prime}, BlockExt{TotalDifficulty: 2}); err != nil {
		t.Fatalf("ApplyReorg() error: %v", err)
	}
	if cs.verifyCache.Contains(t1.Hash()) {
		t.Fatal("any detach must purge the verification cache")
	}
}

func TestNew_ProposalTableUnionsUncleProposals(t *testing.T) {
	cs, store, genesisBlk := newTestState(t)

	uncleID := types.ProposalShortID{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	b1 := buildBlock(t, genesisBlk.Header, genesisBlk.Header.Timestamp+10, 0, nil)
	b1.Uncles = []*block.UncleBlock{{
		Header:    &block.Header{Version: 1, Height: 1, Timestamp: genesisBlk.Header.Timestamp + 9},
		Proposals: []types.ProposalShortID{uncleID},
	}}
	applyBlock(t, cs, store, b1, 1)

	// Rebuild from the store: the uncle's proposal must survive the replay.
	reopened, err := New(store, cs.consensus)
	if err != nil {
		t.Fatalf("New() (reopen) error: %v", err)
	}
	if !reopened.ContainsProposal(uncleID) {
		t.Error("proposal table rebuilt from the store should include uncle proposals")
	}
}
