package p2p

import (
	"fmt"
	"math/rand"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/samber/lo"
)

// sourceSeed marks a record as a seed/bootnode address, supplied out of
// band (config or DNS) rather than learned from the network.
const sourceSeed = "seed"

// RandomPeers returns up to n persisted peer records chosen at random.
func (ps *PeerStore) RandomPeers(n int) ([]PeerRecord, error) {
	all, err := ps.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("random peers: %w", err)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// Bootnodes returns up to n records sourced from seed configuration, the
// addresses a node falls back to when it knows no other peers.
func (ps *PeerStore) Bootnodes(n int) ([]PeerRecord, error) {
	all, err := ps.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("bootnodes: %w", err)
	}
	seeds := lo.Filter(all, func(r PeerRecord, _ int) bool { return r.Source == sourceSeed })
	if n < len(seeds) {
		seeds = seeds[:n]
	}
	return seeds, nil
}

// PeersToAttempt returns up to n candidates for an outbound connection
// attempt, excluding any already in excluded (e.g. currently connected or
// recently failed, as tracked by the caller).
func (ps *PeerStore) PeersToAttempt(n int, excluded map[peer.ID]struct{}) ([]PeerRecord, error) {
	all, err := ps.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("peers to attempt: %w", err)
	}
	candidates := lo.Filter(all, func(r PeerRecord, _ int) bool {
		id, err := peer.Decode(r.ID)
		if err != nil {
			return false
		}
		_, excl := excluded[id]
		return !excl
	})
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// PeersToFeeler returns up to n candidates for a feeler connection: a short
// probe dial used only to check that a peer is reachable, never promoted
// to a persistent connection. A feeler dial does not update the peer's
// record (LastSeen is left unchanged).
func (ps *PeerStore) PeersToFeeler(n int) ([]PeerRecord, error) {
	all, err := ps.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("peers to feeler: %w", err)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// AddDiscoveredAddr records a newly learned address for a peer, merging it
// into any existing record rather than overwriting known addresses. addr
// must be a well-formed multiaddr — a malformed one (a corrupt gossip
// payload, a stale DHT record) is rejected rather than persisted for a
// later dial attempt to fail on.
func (ps *PeerStore) AddDiscoveredAddr(id peer.ID, addr string, source string) error {
	if _, err := ParseAddr(addr); err != nil {
		return fmt.Errorf("add discovered addr: %w", err)
	}
	rec, err := ps.Load(id)
	if err != nil {
		rec = &PeerRecord{ID: id.String(), Source: source}
	}
	if !lo.Contains(rec.Addrs, addr) {
		rec.Addrs = append(rec.Addrs, addr)
	}
	return ps.Save(*rec)
}
