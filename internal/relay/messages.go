package relay

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// GetBlockTransactions asks a peer for the transactions at specific
// positions in a compact block this node couldn't reconstruct locally.
type GetBlockTransactions struct {
	BlockHash types.Hash
	Indexes   []int
}

// BlockTransactions answers a GetBlockTransactions request.
type BlockTransactions struct {
	BlockHash    types.Hash
	Transactions []*tx.Transaction
}

// GetBlockProposal asks a peer for the full transactions behind a set of
// proposal short IDs referenced by a block this node is validating.
type GetBlockProposal struct {
	ProposalIDs []types.ProposalShortID
}

// BlockProposal answers a GetBlockProposal request with whichever of the
// requested transactions this node has.
type BlockProposal struct {
	Transactions []*tx.Transaction
}

// Sender dispatches relay wire messages to a specific peer. The transport
// (libp2p streams or pubsub, in the node's case) lives behind this
// interface so the relayer's logic doesn't depend on it directly.
type Sender interface {
	SendGetBlockTransactions(to peer.ID, msg GetBlockTransactions) error
	SendBlockProposal(to peer.ID, msg BlockProposal) error
}
