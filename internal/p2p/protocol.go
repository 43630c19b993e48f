package p2p

import (
	"github.com/libp2p/go-libp2p/core/protocol"
)

// Handshake protocol constants.
const (
	// HandshakeProtocol is the stream protocol ID for peer compatibility checking.
	HandshakeProtocol = protocol.ID("/klingnet/handshake/1.0.0")

	// ProtocolVersion is the current protocol version advertised during handshake.
	// v2: fixed sync/reorg bugs that caused nodes to get stuck with orphan blocks.
	ProtocolVersion uint32 = 2

	// MinProtocolVersion is the minimum protocol version we accept from peers.
	// v2 required: v1 peers may have corrupted block stores that return empty batches.
	MinProtocolVersion uint32 = 2
)

// Relay stream protocol IDs: the request/reply half of the relay protocol.
// Compact blocks and transactions are announced over gossip topics
// (internal/relay's TopicCompactBlocks/TopicTransactions); these direct
// streams carry the follow-ups a single peer owes another — missing block
// transactions and proposed-transaction bodies.
const (
	GetBlockTransactionsProtocol = protocol.ID("/klingnet/relay/get-block-transactions/1.0.0")
	BlockTransactionsProtocol    = protocol.ID("/klingnet/relay/block-transactions/1.0.0")
	GetBlockProposalProtocol     = protocol.ID("/klingnet/relay/get-block-proposal/1.0.0")
	BlockProposalProtocol        = protocol.ID("/klingnet/relay/block-proposal/1.0.0")
)

// MessageType identifies the type of relay stream message.
type MessageType uint8

const (
	MsgGetBlockTransactions MessageType = iota + 1
	MsgBlockTransactions
	MsgGetBlockProposal
	MsgBlockProposal
)

// Message is the envelope a transport wraps relay payloads in on a direct
// stream: a type tag plus the JSON-encoded payload from internal/relay's
// message types.
type Message struct {
	Type    MessageType `json:"type"`
	Payload []byte      `json:"payload"`
}
