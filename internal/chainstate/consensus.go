package chainstate

import "github.com/nervosnetwork/ckb-go/pkg/block"

// Consensus is the set of static chain parameters Chain State needs: the
// genesis block to bootstrap from, the proposal window, and the limits
// TransactionVerifier enforces. It is plain data, not an interface —
// these values don't vary by implementation the way block validation
// (internal/consensus.Engine) does.
type Consensus struct {
	GenesisBlock *block.Block

	// ProposalWindow is how many blocks behind the tip a proposal
	// remains committable after the block carrying it lands.
	ProposalWindow uint64

	// MaxBlockCycles caps the total cycle cost TransactionVerifier may
	// charge a single transaction against.
	MaxBlockCycles uint64

	// MedianTimeBlockCount is how many trailing blocks a locktime check
	// samples to compute the median block time.
	MedianTimeBlockCount uint64

	// CellbaseMaturity is how many blocks a cellbase output must age
	// before it can be spent.
	CellbaseMaturity uint64

	// TxsVerifyCacheSize bounds the verification cache's LRU capacity.
	TxsVerifyCacheSize int
}
