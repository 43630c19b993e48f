package relay

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/nervosnetwork/ckb-go/internal/log"
	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// proposalPruneInterval is how often outstanding proposal requests are
// re-checked against the pool: frequent enough that a satisfied request is
// answered almost immediately, cheap enough to run continuously.
const proposalPruneInterval = 100 * time.Millisecond

// TransactionSource is the transaction pool's view as seen by the relayer:
// candidates to try against an incoming compact block's short IDs, and a
// lookup for proposals this node can already answer.
type TransactionSource interface {
	PotentialTransactions() []*tx.Transaction
	Get(id types.ProposalShortID) (*tx.Transaction, bool)
}

// Relayer reconstructs blocks from compact announcements and answers peers'
// requests for proposed transactions, using State to avoid redundant work
// across peers.
type Relayer struct {
	State  *RelayState
	Pool   TransactionSource
	Sender Sender
}

// New creates a Relayer backed by the given transaction source and sender.
func New(pool TransactionSource, sender Sender) *Relayer {
	return &Relayer{
		State:  NewRelayState(),
		Pool:   pool,
		Sender: sender,
	}
}

// HandleCompactBlock attempts to reconstruct the block a peer announced.
// On success it returns the rebuilt block. If transactions are missing it
// records the compact block as pending and returns the indexes that must
// be fetched via GetBlockTransactions from the same peer.
func (r *Relayer) HandleCompactBlock(cb *CompactBlock) (*block.Block, MissingIndexes, error) {
	if r.State.HasReceivedBlock(cb.Hash()) {
		return nil, nil, nil
	}

	have := append([]*tx.Transaction(nil), r.Pool.PotentialTransactions()...)
	blk, missing, err := ReconstructBlock(cb, have)
	if err != nil {
		return nil, nil, err
	}
	if len(missing) > 0 {
		r.State.StorePendingCompactBlock(cb)
		log.Relay.Debug().
			Str("block", cb.Hash().String()[:16]+"...").
			Int("missing", len(missing)).
			Msg("compact block missing transactions")
		return nil, missing, nil
	}

	r.State.MarkBlockReceived(cb.Hash())
	return blk, nil, nil
}

// HandleBlockTransactions merges a peer's answer to an earlier
// GetBlockTransactions request back into the pending compact block,
// returning the rebuilt block once every index is filled.
func (r *Relayer) HandleBlockTransactions(msg BlockTransactions) (*block.Block, error) {
	cb, ok := r.State.TakePendingCompactBlock(msg.BlockHash)
	if !ok {
		return nil, nil
	}

	have := append([]*tx.Transaction(nil), r.Pool.PotentialTransactions()...)
	have = append(have, msg.Transactions...)

	blk, missing, err := ReconstructBlock(cb, have)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		// Still incomplete — keep waiting rather than discard the round.
		r.State.StorePendingCompactBlock(cb)
		return nil, nil
	}

	r.State.MarkBlockReceived(cb.Hash())
	return blk, nil
}

// HandleGetBlockProposal answers what it can immediately and queues the
// rest for the prune loop to satisfy once the pool catches up.
func (r *Relayer) HandleGetBlockProposal(from peer.ID, msg GetBlockProposal) error {
	var ready []*tx.Transaction
	for _, id := range msg.ProposalIDs {
		if t, ok := r.Pool.Get(id); ok {
			ready = append(ready, t)
			continue
		}
		r.State.RequestProposal(id, from)
	}
	if len(ready) == 0 {
		return nil
	}
	return r.Sender.SendBlockProposal(from, BlockProposal{Transactions: ready})
}

// RunProposalPruner periodically scans outstanding proposal requests and
// answers any that the pool can now satisfy, until stop is closed.
func (r *Relayer) RunProposalPruner(stop <-chan struct{}) {
	ticker := time.NewTicker(proposalPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.pruneProposalRequests()
		}
	}
}

func (r *Relayer) pruneProposalRequests() {
	ids := r.State.PendingProposalIDs()
	satisfied := 0
	for _, id := range ids {
		t, ok := r.Pool.Get(id)
		if !ok {
			continue
		}
		for _, req := range r.State.DrainProposalRequests(id) {
			if err := r.Sender.SendBlockProposal(req.peer, BlockProposal{Transactions: []*tx.Transaction{t}}); err != nil {
				log.Relay.Debug().Err(err).
					Str("peer", req.peer.String()).
					Str("request", string(req.tag)).
					Msg("send block proposal")
				continue
			}
			log.Relay.Debug().
				Str("peer", req.peer.String()).
				Str("request", string(req.tag)).
				Str("proposal", id.String()).
				Msg("answered proposal request")
		}
		satisfied++
	}
	if satisfied > 0 {
		log.Relay.Debug().
			Str("satisfied", humanize.Comma(int64(satisfied))).
			Str("outstanding", humanize.Comma(int64(len(ids)-satisfied))).
			Msg("pruned proposal requests")
	}
}
