package relay

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/nervosnetwork/ckb-go/internal/log"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
)

// Gossip topic names. Versioned so a future wire-format change can run
// alongside the old one during a rollout instead of breaking it outright.
const (
	TopicCompactBlocks = "/ckb-go/relay/compact-blocks/1"
	TopicTransactions  = "/ckb-go/relay/transactions/1"
)

// Gossip wraps a running pubsub.PubSub's compact-block and transaction
// topics — the broadcast half of the relay protocol. HandleCompactBlock,
// HandleGetBlockProposal and friends above cover the request/reply half,
// answered peer-to-peer over direct streams rather than broadcast; Gossip
// is how a newly built or accepted block/transaction first reaches the
// network. Built from an already-running *pubsub.PubSub, exactly like
// Sender and outbound.Dialer: the libp2p host that creates the PubSub
// instance is a transport concern this module doesn't build, only
// specifies the narrow seam for.
type Gossip struct {
	topicBlocks *pubsub.Topic
	topicTxs    *pubsub.Topic
	subBlocks   *pubsub.Subscription
	subTxs      *pubsub.Subscription
}

// NewGossip joins ps's compact-block and transaction topics and subscribes
// to both.
func NewGossip(ps *pubsub.PubSub) (*Gossip, error) {
	topicBlocks, err := ps.Join(TopicCompactBlocks)
	if err != nil {
		return nil, fmt.Errorf("join compact-block topic: %w", err)
	}
	topicTxs, err := ps.Join(TopicTransactions)
	if err != nil {
		topicBlocks.Close()
		return nil, fmt.Errorf("join transaction topic: %w", err)
	}
	subBlocks, err := topicBlocks.Subscribe()
	if err != nil {
		topicBlocks.Close()
		topicTxs.Close()
		return nil, fmt.Errorf("subscribe compact-block topic: %w", err)
	}
	subTxs, err := topicTxs.Subscribe()
	if err != nil {
		subBlocks.Cancel()
		topicBlocks.Close()
		topicTxs.Close()
		return nil, fmt.Errorf("subscribe transaction topic: %w", err)
	}
	return &Gossip{
		topicBlocks: topicBlocks,
		topicTxs:    topicTxs,
		subBlocks:   subBlocks,
		subTxs:      subTxs,
	}, nil
}

// PublishCompactBlock broadcasts cb to every subscriber of the compact-block
// topic — how this node announces a block it just accepted or produced.
func (g *Gossip) PublishCompactBlock(ctx context.Context, cb *CompactBlock) error {
	data, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("marshal compact block: %w", err)
	}
	return g.topicBlocks.Publish(ctx, data)
}

// PublishTransaction broadcasts t to every subscriber of the transaction
// topic, the gossip path a freshly submitted transaction takes to reach
// peers that haven't proposed it yet.
func (g *Gossip) PublishTransaction(ctx context.Context, t *tx.Transaction) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	return g.topicTxs.Publish(ctx, data)
}

// RunCompactBlocks reads incoming compact-block announcements until ctx is
// cancelled, skipping this node's own publications and handing every other
// message to handle. Pairs naturally with Relayer.HandleCompactBlock as the
// handler.
func (g *Gossip) RunCompactBlocks(ctx context.Context, selfID peer.ID, handle func(from peer.ID, cb *CompactBlock)) {
	for {
		msg, err := g.subBlocks.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == selfID {
			continue
		}
		var cb CompactBlock
		if err := json.Unmarshal(msg.Data, &cb); err != nil {
			log.Relay.Debug().Err(err).Msg("bad compact block gossip payload")
			continue
		}
		handle(msg.ReceivedFrom, &cb)
	}
}

// RunTransactions reads incoming gossiped transactions until ctx is
// cancelled, skipping this node's own publications.
func (g *Gossip) RunTransactions(ctx context.Context, selfID peer.ID, handle func(from peer.ID, t *tx.Transaction)) {
	for {
		msg, err := g.subTxs.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == selfID {
			continue
		}
		var t tx.Transaction
		if err := json.Unmarshal(msg.Data, &t); err != nil {
			log.Relay.Debug().Err(err).Msg("bad transaction gossip payload")
			continue
		}
		handle(msg.ReceivedFrom, &t)
	}
}

// Close cancels both subscriptions and leaves both topics.
func (g *Gossip) Close() {
	g.subBlocks.Cancel()
	g.subTxs.Cancel()
	_ = g.topicBlocks.Close()
	_ = g.topicTxs.Close()
}
