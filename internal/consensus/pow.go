package consensus

import (
	"fmt"
	"math/bits"

	"github.com/nervosnetwork/ckb-go/pkg/block"
)

// MinDifficulty is the floor difficulty PoW will never retarget below.
// Difficulty is expressed as a required count of leading zero bits in the
// header hash, so difficulty 20 is twice as hard to satisfy as 19.
const MinDifficulty uint64 = 16

// maxNonce bounds Seal's search; a real miner restarts with a new
// timestamp/extra-nonce once exhausted rather than searching forever.
const maxNonce = 1 << 32

// PoW is a simple proof-of-work engine with a Bitcoin-style difficulty
// retarget: difficulty rises when blocks arrive faster than targetBlockTime
// and falls when they arrive slower, adjusted one step per block rather
// than over a retarget window, which keeps the adjustment responsive for
// small test chains.
type PoW struct {
	targetBlockTime uint64
}

// NewPoW creates a PoW engine targeting the given block time in seconds.
func NewPoW(targetBlockTime uint64) *PoW {
	return &PoW{targetBlockTime: targetBlockTime}
}

func meetsDifficulty(hash [32]byte, difficulty uint64) bool {
	var leading int
	for _, b := range hash {
		if b == 0 {
			leading += 8
			continue
		}
		leading += bits.LeadingZeros8(b)
		break
	}
	return uint64(leading) >= difficulty
}

// Prepare assigns a starting difficulty if the header doesn't already carry
// one; VerifyDifficulty is the authority on whether it was the right one.
func (p *PoW) Prepare(header *block.Header) error {
	if header.Difficulty == 0 {
		header.Difficulty = MinDifficulty
	}
	return nil
}

// Seal searches for a nonce satisfying the header's difficulty.
func (p *PoW) Seal(blk *block.Block) error {
	for nonce := uint64(0); nonce < maxNonce; nonce++ {
		blk.Header.Nonce = nonce
		if meetsDifficulty(blk.Header.Hash(), blk.Header.Difficulty) {
			return nil
		}
	}
	return fmt.Errorf("PoW: exhausted nonce space without meeting difficulty %d", blk.Header.Difficulty)
}

// VerifyHeader checks that the header's hash actually satisfies its claimed
// difficulty. It does not check that the difficulty itself is the expected
// one for this point in the chain — that needs chain history and is
// VerifyDifficulty's job.
func (p *PoW) VerifyHeader(header *block.Header) error {
	if !meetsDifficulty(header.Hash(), header.Difficulty) {
		return fmt.Errorf("PoW: hash does not meet claimed difficulty %d", header.Difficulty)
	}
	return nil
}

// VerifyDifficulty checks that header.Difficulty is the value the retarget
// rule would have produced given the previous block's difficulty and the
// gap between this header's timestamp and its parent's. blockTimestamp
// fetches a historical block's timestamp by height, since the engine itself
// holds no chain state.
func (p *PoW) VerifyDifficulty(header *block.Header, prevDifficulty uint64, blockTimestamp func(height uint64) (uint64, error)) error {
	if header.Height <= 1 {
		if header.Difficulty < MinDifficulty {
			return fmt.Errorf("PoW: genesis child difficulty %d below floor %d", header.Difficulty, MinDifficulty)
		}
		return nil
	}

	parentTimestamp, err := blockTimestamp(header.Height - 1)
	if err != nil {
		return fmt.Errorf("PoW: load parent timestamp: %w", err)
	}

	var elapsed uint64
	if header.Timestamp > parentTimestamp {
		elapsed = header.Timestamp - parentTimestamp
	}

	want := prevDifficulty
	switch {
	case elapsed < p.targetBlockTime/2:
		want++
	case elapsed > p.targetBlockTime*2 && want > MinDifficulty:
		want--
	}
	if want < MinDifficulty {
		want = MinDifficulty
	}

	if header.Difficulty != want {
		return fmt.Errorf("PoW: difficulty %d does not match expected retarget %d", header.Difficulty, want)
	}
	return nil
}
