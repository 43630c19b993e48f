package relay

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

const (
	// receivedCacheSize bounds how many recently seen block/tx hashes the
	// relayer remembers purely for duplicate-announcement suppression.
	receivedCacheSize = 4096
)

// RelayState holds the relayer's cross-peer bookkeeping: which blocks and
// transactions have already been seen (so the same announcement from two
// peers isn't processed twice), compact blocks still waiting on missing
// transactions, and proposals a peer has asked for but this node hasn't
// been able to answer yet.
type RelayState struct {
	receivedBlocks       *lru.Cache[types.Hash, struct{}]
	receivedTransactions *lru.Cache[types.Hash, struct{}]

	mu                     sync.Mutex
	pendingCompactBlocks   map[types.Hash]*CompactBlock
	inflightProposals      map[types.ProposalShortID]struct{}
	pendingProposalsRequest map[types.ProposalShortID]map[peer.ID]requestTag
}

// requestTag names a single GetBlockProposal request in the reply path's
// log fields, so a slow answer can be correlated with the request that
// asked for it. A peer that re-requests the same proposal before it's
// answered reuses its existing tag rather than growing the set.
type requestTag string

func newRequestTag() requestTag {
	return requestTag(uuid.NewString())
}

// proposalRequest pairs a waiting peer with the tag minted when its
// request was recorded.
type proposalRequest struct {
	peer peer.ID
	tag  requestTag
}

// NewRelayState creates an empty RelayState.
func NewRelayState() *RelayState {
	receivedBlocks, _ := lru.New[types.Hash, struct{}](receivedCacheSize)
	receivedTransactions, _ := lru.New[types.Hash, struct{}](receivedCacheSize)
	return &RelayState{
		receivedBlocks:          receivedBlocks,
		receivedTransactions:    receivedTransactions,
		pendingCompactBlocks:    make(map[types.Hash]*CompactBlock),
		inflightProposals:       make(map[types.ProposalShortID]struct{}),
		pendingProposalsRequest: make(map[types.ProposalShortID]map[peer.ID]requestTag),
	}
}

// MarkBlockReceived records that hash has been fully processed, so a
// duplicate announcement from another peer can be dropped early.
func (s *RelayState) MarkBlockReceived(hash types.Hash) {
	s.receivedBlocks.Add(hash, struct{}{})
}

// HasReceivedBlock reports whether hash was already processed.
func (s *RelayState) HasReceivedBlock(hash types.Hash) bool {
	return s.receivedBlocks.Contains(hash)
}

// MarkTransactionReceived records that a transaction hash has already been
// seen and handed to the pool.
func (s *RelayState) MarkTransactionReceived(hash types.Hash) {
	s.receivedTransactions.Add(hash, struct{}{})
}

// HasReceivedTransaction reports whether hash was already processed.
func (s *RelayState) HasReceivedTransaction(hash types.Hash) bool {
	return s.receivedTransactions.Contains(hash)
}

// StorePendingCompactBlock remembers a compact block that's missing
// transactions, so they can be merged in once GetBlockTransactions returns.
func (s *RelayState) StorePendingCompactBlock(cb *CompactBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCompactBlocks[cb.Hash()] = cb
}

// TakePendingCompactBlock removes and returns a pending compact block, if any.
func (s *RelayState) TakePendingCompactBlock(hash types.Hash) (*CompactBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.pendingCompactBlocks[hash]
	if ok {
		delete(s.pendingCompactBlocks, hash)
	}
	return cb, ok
}

// MarkProposalInflight records that this node has already requested a
// proposed transaction, so a second compact block referencing it doesn't
// trigger a redundant request.
func (s *RelayState) MarkProposalInflight(id types.ProposalShortID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflightProposals[id]; ok {
		return false
	}
	s.inflightProposals[id] = struct{}{}
	return true
}

// ClearProposalInflight releases a proposal's inflight marker once it's
// resolved (found or given up on).
func (s *RelayState) ClearProposalInflight(id types.ProposalShortID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflightProposals, id)
}

// RequestProposal records that peer asked for a proposed transaction this
// node doesn't yet have, to be answered once/if it arrives. Returns false
// if peer had already asked and the request is still outstanding.
func (s *RelayState) RequestProposal(id types.ProposalShortID, from peer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPeer, ok := s.pendingProposalsRequest[id]
	if !ok {
		byPeer = make(map[peer.ID]requestTag)
		s.pendingProposalsRequest[id] = byPeer
	}
	if _, exists := byPeer[from]; exists {
		return false
	}
	byPeer[from] = newRequestTag()
	return true
}

// DrainProposalRequests removes and returns the requests waiting on
// proposal id, each carrying the tag its arrival was recorded under.
func (s *RelayState) DrainProposalRequests(id types.ProposalShortID) []proposalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPeer, ok := s.pendingProposalsRequest[id]
	if !ok {
		return nil
	}
	delete(s.pendingProposalsRequest, id)
	reqs := make([]proposalRequest, 0, len(byPeer))
	for p, tag := range byPeer {
		reqs = append(reqs, proposalRequest{peer: p, tag: tag})
	}
	return reqs
}

// PendingProposalIDs returns every proposal ID with at least one
// outstanding requester, for the periodic pruning pass to scan.
func (s *RelayState) PendingProposalIDs() []types.ProposalShortID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]types.ProposalShortID, 0, len(s.pendingProposalsRequest))
	for id := range s.pendingProposalsRequest {
		ids = append(ids, id)
	}
	return ids
}
