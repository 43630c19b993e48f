package chain

import (
	"testing"
	"time"

	"github.com/nervosnetwork/ckb-go/config"
	"github.com/nervosnetwork/ckb-go/internal/chainstate"
	"github.com/nervosnetwork/ckb-go/internal/consensus"
	"github.com/nervosnetwork/ckb-go/internal/storage"
	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/crypto"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

func newTestProcessor(t *testing.T) (*Processor, *chainstate.ChainState, *chainstate.Store, *consensus.PoA, *crypto.PrivateKey) {
	t.Helper()

	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	poa, err := consensus.NewPoA([][]byte{signer.PublicKey()})
	if err != nil {
		t.Fatalf("NewPoA() error: %v", err)
	}
	if err := poa.SetSigner(signer); err != nil {
		t.Fatalf("SetSigner() error: %v", err)
	}

	gen := &config.Genesis{
		Timestamp: uint64(time.Now().Add(-time.Hour).Unix()),
		Alloc:     map[string]uint64{"klingnet1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq": 1_000_000},
	}
	genesisBlk, err := CreateGenesisBlock(gen)
	if err != nil {
		t.Fatalf("CreateGenesisBlock() error: %v", err)
	}

	store := chainstate.NewStore(storage.NewMemory())
	cs, err := chainstate.New(store, &chainstate.Consensus{
		GenesisBlock:         genesisBlk,
		ProposalWindow:       10,
		MaxBlockCycles:       1 << 20,
		MedianTimeBlockCount: 11,
		CellbaseMaturity:     0,
		TxsVerifyCacheSize:   64,
	})
	if err != nil {
		t.Fatalf("chainstate.New() error: %v", err)
	}

	return NewProcessor(cs, store, poa), cs, store, poa, signer
}

// sealBlock fills in a cellbase-only block's header difficulty and
// signature via poa (whichever signer poa.SetSigner configured), the way a
// miner would before broadcasting.
func sealBlock(t *testing.T, poa *consensus.PoA, parent *block.Header, timestamp uint64) *block.Block {
	t.Helper()

	cellbase := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.NullOutPoint}},
		Outputs: []cell.CellOutput{{Capacity: 1000, Lock: lockForAddress(types.Address{})}},
	}
	merkle := block.ComputeMerkleRoot([]types.Hash{cellbase.Hash()})
	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   parent.Hash(),
		MerkleRoot: merkle,
		Timestamp:  timestamp,
		Height:     parent.Height + 1,
	}
	if err := poa.Prepare(header); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	blk := block.NewBlock(header, []*tx.Transaction{cellbase})
	if err := poa.Seal(blk); err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	return blk
}

func TestProcessor_ProcessBlock_ExtendsTip(t *testing.T) {
	proc, cs, _, poa, _ := newTestProcessor(t)

	genesisHeader, ok := proc.store.GetHeader(cs.TipHash())
	if !ok {
		t.Fatalf("genesis header not found in store")
	}

	blk := sealBlock(t, poa, genesisHeader, genesisHeader.Timestamp+10)
	if err := proc.ProcessBlock(blk); err != nil {
		t.Fatalf("ProcessBlock() error: %v", err)
	}

	if cs.TipNumber() != 1 {
		t.Errorf("TipNumber() = %d, want 1", cs.TipNumber())
	}
	if cs.TipHash() != blk.Hash() {
		t.Errorf("TipHash() = %s, want %s", cs.TipHash(), blk.Hash())
	}
}

func TestProcessor_ProcessBlock_RejectsDuplicate(t *testing.T) {
	proc, cs, _, poa, _ := newTestProcessor(t)
	genesisHeader, _ := proc.store.GetHeader(cs.TipHash())

	blk := sealBlock(t, poa, genesisHeader, genesisHeader.Timestamp+10)
	if err := proc.ProcessBlock(blk); err != nil {
		t.Fatalf("first ProcessBlock() error: %v", err)
	}
	if err := proc.ProcessBlock(blk); err == nil {
		t.Fatal("expected error re-processing a known block")
	}
}

func TestProcessor_ProcessBlock_RejectsWrongParent(t *testing.T) {
	proc, _, _, poa, _ := newTestProcessor(t)

	orphanParent := &block.Header{Height: 41, Timestamp: uint64(time.Now().Unix())}
	blk := sealBlock(t, poa, orphanParent, uint64(time.Now().Unix())+10)

	if err := proc.ProcessBlock(blk); err == nil {
		t.Fatal("expected error for a block that does not extend the tip")
	}
}

func TestProcessor_ProcessBlock_RejectsBadSignature(t *testing.T) {
	proc, cs, _, _, _ := newTestProcessor(t)
	genesisHeader, _ := proc.store.GetHeader(cs.TipHash())

	impostor, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	impostorEngine, err := consensus.NewPoA([][]byte{impostor.PublicKey()})
	if err != nil {
		t.Fatalf("NewPoA() error: %v", err)
	}
	if err := impostorEngine.SetSigner(impostor); err != nil {
		t.Fatalf("SetSigner() error: %v", err)
	}

	// Sealed by a key that is not in proc's validator set.
	blk := sealBlock(t, impostorEngine, genesisHeader, genesisHeader.Timestamp+10)
	if err := proc.ProcessBlock(blk); err == nil {
		t.Fatal("expected error for a block signed by a non-validator")
	}
}
