package p2p

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// ParseAddr validates s as a well-formed multiaddr. A malformed address
// reaching the peer store — from a gossiped record, a DHT FindPeers result,
// or a hand-edited seed list — is rejected here rather than surfacing later
// as an opaque dial failure inside the transport.
func ParseAddr(s string) (ma.Multiaddr, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return nil, fmt.Errorf("parse multiaddr %q: %w", s, err)
	}
	return addr, nil
}

// ValidAddr reports whether s parses as a multiaddr.
func ValidAddr(s string) bool {
	_, err := ParseAddr(s)
	return err == nil
}
