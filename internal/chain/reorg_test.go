package chain

import (
	"bytes"
	"testing"

	"github.com/nervosnetwork/ckb-go/internal/chainstate"
	"github.com/nervosnetwork/ckb-go/internal/consensus"
	"github.com/nervosnetwork/ckb-go/pkg/block"
)

// TestReorg_InTurnBeatsOutOfTurn builds two competing height-1 blocks at
// the same timestamp — one from the in-turn validator (difficulty
// DiffInTurn), one from the out-of-turn (DiffNoTurn) — processes the
// lighter one first, then switches to the heavier via ApplyExternalReorg,
// the way a sync component that has already fetched the competing branch
// would.
func TestReorg_InTurnBeatsOutOfTurn(t *testing.T) {
	proc, cs, engines, keys := newMultiValidatorProcessor(t)

	genesisHeader, ok := proc.store.GetHeader(cs.TipHash())
	if !ok {
		t.Fatalf("genesis header not found")
	}
	ts := genesisHeader.Timestamp + 10

	// Slot assignment is keyed by timestamp, so both forks agree on who
	// was in turn at ts.
	inTurnIdx := 1
	if bytes.Equal(engines[0].SlotValidator(ts), keys[0].PublicKey()) {
		inTurnIdx = 0
	}
	outOfTurnIdx := 1 - inTurnIdx

	inTurnBlk := sealBlock(t, engines[inTurnIdx], genesisHeader, ts)
	outOfTurnBlk := sealBlock(t, engines[outOfTurnIdx], genesisHeader, ts)

	if inTurnBlk.Header.Difficulty != consensus.DiffInTurn {
		t.Fatalf("in-turn block difficulty = %d, want %d", inTurnBlk.Header.Difficulty, consensus.DiffInTurn)
	}
	if outOfTurnBlk.Header.Difficulty != consensus.DiffNoTurn {
		t.Fatalf("out-of-turn block difficulty = %d, want %d", outOfTurnBlk.Header.Difficulty, consensus.DiffNoTurn)
	}

	// The out-of-turn block arrives first and extends the tip.
	if err := proc.ProcessBlock(outOfTurnBlk); err != nil {
		t.Fatalf("ProcessBlock(out-of-turn) error: %v", err)
	}
	if cs.TotalDifficulty() != consensus.DiffNoTurn {
		t.Fatalf("TotalDifficulty() = %d, want %d", cs.TotalDifficulty(), consensus.DiffNoTurn)
	}

	// The in-turn block is heavier; a sync component persists it and
	// switches branches explicitly.
	ext := chainstate.BlockExt{TotalDifficulty: consensus.DiffInTurn}
	if err := proc.store.PutBlock(inTurnBlk, ext.TotalDifficulty); err != nil {
		t.Fatalf("PutBlock() error: %v", err)
	}
	if err := proc.store.SetTip(inTurnBlk.Hash()); err != nil {
		t.Fatalf("SetTip() error: %v", err)
	}
	if err := proc.ApplyExternalReorg([]*block.Block{outOfTurnBlk}, []*block.Block{inTurnBlk}, ext); err != nil {
		t.Fatalf("ApplyExternalReorg() error: %v", err)
	}

	if cs.TipHash() != inTurnBlk.Hash() {
		t.Errorf("tip = %s, want the in-turn block %s", cs.TipHash(), inTurnBlk.Hash())
	}
	if cs.TotalDifficulty() != consensus.DiffInTurn {
		t.Errorf("TotalDifficulty() = %d, want %d", cs.TotalDifficulty(), consensus.DiffInTurn)
	}
}
