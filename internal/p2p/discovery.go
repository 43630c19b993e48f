package p2p

import (
	"context"
	"fmt"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
)

// sourceDHT marks a record as learned from Kademlia peer routing rather
// than a seed, gossip, or feeler dial.
const sourceDHT = "dht"

// dhtDiscoveryInterval is how often FindDHTPeers is invoked by RunDiscovery.
const dhtDiscoveryInterval = 30 * time.Second

// DHTDiscovery refreshes a PeerStore from a running Kademlia DHT: it
// advertises this node under a rendezvous string and periodically looks up
// who else has, recording every address it learns. Built from an
// already-bootstrapped *dht.IpfsDHT — like outbound.Dialer, the libp2p host
// and DHT instance are transport concerns this module doesn't construct,
// only a narrow seam for feeding their output into the peer store.
type DHTDiscovery struct {
	dht        *dht.IpfsDHT
	host       host.Host
	peers      *PeerStore
	rendezvous string
}

// NewDHTDiscovery wraps d for peer discovery into store, advertising and
// searching under rendezvous (typically derived from the network ID, so
// mainnet and testnet nodes don't discover each other).
func NewDHTDiscovery(d *dht.IpfsDHT, h host.Host, store *PeerStore, rendezvous string) *DHTDiscovery {
	return &DHTDiscovery{dht: d, host: h, peers: store, rendezvous: rendezvous}
}

// RunDiscovery advertises this node under the configured rendezvous and
// polls for peers every dhtDiscoveryInterval until ctx is cancelled.
func (d *DHTDiscovery) RunDiscovery(ctx context.Context) {
	routingDiscovery := drouting.NewRoutingDiscovery(d.dht)
	dutil.Advertise(ctx, routingDiscovery, d.rendezvous)

	ticker := time.NewTicker(dhtDiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.findPeers(ctx, routingDiscovery)
		}
	}
}

func (d *DHTDiscovery) findPeers(ctx context.Context, routingDiscovery *drouting.RoutingDiscovery) {
	findCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	peerCh, err := routingDiscovery.FindPeers(findCtx, d.rendezvous)
	if err != nil {
		return
	}
	for info := range peerCh {
		if info.ID == d.host.ID() || len(info.Addrs) == 0 {
			continue
		}
		for _, addr := range info.Addrs {
			full := fmt.Sprintf("%s/p2p/%s", addr.String(), info.ID.String())
			_ = d.peers.AddDiscoveredAddr(info.ID, full, sourceDHT)
		}
	}
}

// RefreshOnce is a synchronous, single-shot version of the poll RunDiscovery
// ticks on — useful for a caller that wants to force an immediate lookup
// rather than wait for the next tick.
func (d *DHTDiscovery) RefreshOnce(ctx context.Context) error {
	routingDiscovery := drouting.NewRoutingDiscovery(d.dht)
	d.findPeers(ctx, routingDiscovery)
	return nil
}
