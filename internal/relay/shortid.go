package relay

import (
	"encoding/binary"

	"github.com/nervosnetwork/ckb-go/pkg/types"
	"github.com/zeebo/blake3"
)

// ShortTxID is a 6-byte transaction identifier, short enough that a compact
// block can list hundreds of transactions without re-sending full 32-byte
// hashes. It is derived with a key unique to each compact block so an
// attacker can't precompute collisions across the whole network — unlike
// types.ProposalShortID, which is a fixed truncation of the transaction
// hash used in the proposal window.
type ShortTxID [6]byte

// shortTransactionIDKey derives the 32-byte key used to key the short ID
// hash from the two nonces that make a compact block's short IDs unique:
// the block header's own nonce, and a nonce chosen fresh for this compact
// block announcement.
func shortTransactionIDKey(headerNonce, compactNonce uint64) [32]byte {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], headerNonce)
	binary.LittleEndian.PutUint64(buf[8:16], compactNonce)
	return blake3.Sum256(buf[:])
}

// shortTransactionID computes the short ID of a transaction hash under the
// given compact-block key.
func shortTransactionID(key [32]byte, txHash types.Hash) ShortTxID {
	h, _ := blake3.NewKeyed(key[:])
	h.Write(txHash[:])
	sum := h.Sum(nil)
	var out ShortTxID
	copy(out[:], sum[:6])
	return out
}
