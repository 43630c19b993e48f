package consensus

import (
	"testing"

	"github.com/nervosnetwork/ckb-go/pkg/block"
)

func TestPoW_SealAndVerify(t *testing.T) {
	pow := NewPoW(10)
	header := &block.Header{Version: 1, Timestamp: 1000, Height: 1}
	if err := pow.Prepare(header); err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if header.Difficulty != MinDifficulty {
		t.Fatalf("Prepare() difficulty = %d, want floor %d", header.Difficulty, MinDifficulty)
	}

	blk := block.NewBlock(header, nil)
	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if err := pow.VerifyHeader(blk.Header); err != nil {
		t.Errorf("VerifyHeader() error after sealing: %v", err)
	}
}

func TestPoW_VerifyHeader_RejectsUnsealed(t *testing.T) {
	pow := NewPoW(10)
	header := &block.Header{Version: 1, Timestamp: 1000, Height: 1, Difficulty: 64}
	if err := pow.VerifyHeader(header); err == nil {
		t.Error("VerifyHeader() should reject a hash that does not meet difficulty 64")
	}
}

func TestPoW_VerifyDifficulty_Retarget(t *testing.T) {
	pow := NewPoW(10)

	timestamps := map[uint64]uint64{1: 1000}
	lookup := func(height uint64) (uint64, error) {
		return timestamps[height], nil
	}

	tests := []struct {
		name      string
		elapsed   uint64
		prev      uint64
		wantDiff  uint64
	}{
		{"fast blocks raise difficulty", 3, 20, 21},
		{"slow blocks lower difficulty", 25, 20, 19},
		{"on-target holds difficulty", 10, 20, 20},
		{"never below floor", 25, MinDifficulty, MinDifficulty},
	}
	for _, tt := range tests {
		header := &block.Header{
			Version:    1,
			Height:     2,
			Timestamp:  1000 + tt.elapsed,
			Difficulty: tt.wantDiff,
		}
		if err := pow.VerifyDifficulty(header, tt.prev, lookup); err != nil {
			t.Errorf("%s: VerifyDifficulty() error: %v", tt.name, err)
		}

		header.Difficulty = tt.wantDiff + 5
		if err := pow.VerifyDifficulty(header, tt.prev, lookup); err == nil {
			t.Errorf("%s: VerifyDifficulty() should reject a wrong retarget", tt.name)
		}
	}
}
