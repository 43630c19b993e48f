// Package outbound drives a node's outbound connection count up to its
// target by periodically dialing peers drawn from the peer store, and
// occasionally "feeler" dials peers purely to confirm they're still
// reachable without keeping the connection.
package outbound

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/nervosnetwork/ckb-go/internal/log"
	"github.com/nervosnetwork/ckb-go/internal/p2p"
)

// FeelerConnectionCount is how many feeler probes are sent per tick once
// the node already has enough outbound connections.
const FeelerConnectionCount = 5

// FailedDialBackoff is how long a peer is skipped after a failed dial.
const FailedDialBackoff = 5 * time.Minute

// Dialer makes outbound connections. *p2p host implementations satisfy this;
// tests supply a fake.
type Dialer interface {
	Connect(ctx context.Context, id peer.ID, addrs []string) error
	Disconnect(id peer.ID) error
	IsConnected(id peer.ID) bool
	SelfID() peer.ID
}

// Status reports current outbound connection counts, supplied by the
// caller each tick since only it tracks live connections.
type Status struct {
	MaxOutbound        int
	UnreservedOutbound int // Outbound connections currently open to non-reserved peers.
}

// Service periodically attempts outbound dials and feeler probes.
type Service struct {
	dialer Dialer
	peers  *p2p.PeerStore
	status func() Status
	now    func() time.Time

	mu          sync.Mutex
	feelers     map[peer.ID]struct{}
	failedDials map[peer.ID]time.Time
}

// New creates an outbound connection service. status is called on every
// tick to learn the current outbound slot usage.
func New(dialer Dialer, peers *p2p.PeerStore, status func() Status) *Service {
	return &Service{
		dialer:      dialer,
		peers:       peers,
		status:      status,
		now:         time.Now,
		feelers:     make(map[peer.ID]struct{}),
		failedDials: make(map[peer.ID]time.Time),
	}
}

// Run ticks the service at the given interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll decides whether this tick should grow outbound connections or send
// feeler probes: feelers only run once the node isn't actively trying to
// fill outbound slots.
func (s *Service) poll(ctx context.Context) {
	s.pruneFailedDials()

	status := s.status()
	newOutbound := status.MaxOutbound - status.UnreservedOutbound
	if newOutbound > 0 {
		s.attemptDialPeers(ctx, newOutbound)
		return
	}
	s.feelerPeers(ctx, FeelerConnectionCount)
}

// attemptDialPeers dials up to count peers, skipping ourselves, peers
// currently marked as feeler targets, and peers whose last dial failed
// within FailedDialBackoff.
func (s *Service) attemptDialPeers(ctx context.Context, count int) {
	candidates, err := s.peers.PeersToAttempt(count+5, s.excludedForAttempt())
	if err != nil {
		log.Outbound.Warn().Err(err).Msg("load dial candidates")
		return
	}

	dialed := 0
	for _, rec := range candidates {
		if dialed >= count {
			break
		}
		id, err := peer.Decode(rec.ID)
		if err != nil {
			continue
		}
		if id == s.dialer.SelfID() || s.isFeeler(id) || s.backedOff(id) {
			continue
		}
		if err := s.dialer.Connect(ctx, id, rec.Addrs); err != nil {
			s.recordFailure(id)
			log.Outbound.Debug().Str("peer", rec.ID).Err(err).Msg("dial failed")
			continue
		}
		dialed++
	}
}

// feelerPeers dials count peers purely to probe reachability, marking each
// as a feeler for the duration of the probe so attemptDialPeers skips it.
func (s *Service) feelerPeers(ctx context.Context, count int) {
	candidates, err := s.peers.PeersToFeeler(count)
	if err != nil {
		log.Outbound.Warn().Err(err).Msg("load feeler candidates")
		return
	}

	for _, rec := range candidates {
		id, err := peer.Decode(rec.ID)
		if err != nil {
			continue
		}
		if id == s.dialer.SelfID() {
			continue
		}
		s.markFeeler(id)
		if err := s.dialer.Connect(ctx, id, rec.Addrs); err != nil {
			s.recordFailure(id)
			s.unmarkFeeler(id)
			continue
		}
		// A feeler dial's only purpose is the reachability check; drop the
		// connection immediately rather than holding an outbound slot.
		_ = s.dialer.Disconnect(id)
		s.unmarkFeeler(id)
	}
}

func (s *Service) excludedForAttempt() map[peer.ID]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	excluded := make(map[peer.ID]struct{}, len(s.feelers))
	for id := range s.feelers {
		excluded[id] = struct{}{}
	}
	return excluded
}

func (s *Service) isFeeler(id peer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.feelers[id]
	return ok
}

func (s *Service) markFeeler(id peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feelers[id] = struct{}{}
}

func (s *Service) unmarkFeeler(id peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.feelers, id)
}

func (s *Service) recordFailure(id peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedDials[id] = s.now()
}

func (s *Service) backedOff(id peer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.failedDials[id]
	if !ok {
		return false
	}
	return s.now().Sub(last) < FailedDialBackoff
}

// FailedDialCount returns the number of peers currently in back-off, for
// diagnostics.
func (s *Service) FailedDialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failedDials)
}

// pruneFailedDials drops back-off entries older than FailedDialBackoff so
// the map doesn't grow without bound across long-running nodes.
func (s *Service) pruneFailedDials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, t := range s.failedDials {
		if now.Sub(t) >= FailedDialBackoff {
			delete(s.failedDials, id)
		}
	}
}
