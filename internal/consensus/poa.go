package consensus

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/crypto"
)

// Difficulty weights assigned to in-turn and out-of-turn signers, mirroring
// Clique's tie-break: an in-turn block always outweighs an out-of-turn one
// at the same height, so honest validators converge on the canonical slot
// signer without needing every block to come from them.
const (
	DiffInTurn uint64 = 2
	DiffNoTurn uint64 = 1
)

// PoA is a Clique-style proof-of-authority engine. A fixed validator set
// takes turns signing blocks round-robin by timestamp slot; any validator
// may sign out of turn but produces a lighter block, and checkSigningLimit
// (enforced by the chain, not here) keeps one validator from monopolizing
// a window of recent blocks.
type PoA struct {
	mu           sync.Mutex
	validators   [][]byte
	signingLimit int
	signer       *crypto.PrivateKey
}

// NewPoA creates a PoA engine over the given validator public keys.
// signingLimit optionally overrides the computed default (N/2+1 for N>1,
// 0 — no limit — for a single validator).
func NewPoA(pubkeys [][]byte, signingLimit ...int) (*PoA, error) {
	if len(pubkeys) == 0 {
		return nil, fmt.Errorf("PoA requires at least one validator")
	}
	validators := make([][]byte, len(pubkeys))
	copy(validators, pubkeys)
	sort.Slice(validators, func(i, j int) bool {
		return bytes.Compare(validators[i], validators[j]) < 0
	})

	limit := defaultSigningLimit(len(validators))
	if len(signingLimit) > 0 {
		limit = signingLimit[0]
	}

	return &PoA{
		validators:   validators,
		signingLimit: limit,
	}, nil
}

func defaultSigningLimit(n int) int {
	if n <= 1 {
		return 0
	}
	return n/2 + 1
}

// SigningLimit returns the maximum consecutive-window size within which a
// single validator may sign at most once. 0 means no limit.
func (p *PoA) SigningLimit() int {
	return p.signingLimit
}

// SetSigner sets the key this engine seals blocks with. The key must belong
// to the validator set.
func (p *PoA) SetSigner(key *crypto.PrivateKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pub := key.PublicKey()
	for _, v := range p.validators {
		if bytes.Equal(v, pub) {
			p.signer = key
			return nil
		}
	}
	return fmt.Errorf("signer is not a validator")
}

// GetSigner returns the key previously set with SetSigner, or nil.
func (p *PoA) GetSigner() *crypto.PrivateKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signer
}

// SlotValidator returns the public key of the validator in turn to sign at
// the given timestamp. Slot assignment is a plain round robin over the
// canonically ordered validator set, keyed on the timestamp rather than
// block height so forks at the same height agree on who was in turn.
func (p *PoA) SlotValidator(timestamp uint64) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := timestamp % uint64(len(p.validators))
	return p.validators[idx]
}

// Prepare fills in the difficulty field ahead of sealing, based on whether
// the current signer is in turn for the header's timestamp.
func (p *PoA) Prepare(header *block.Header) error {
	signer := p.GetSigner()
	if signer == nil {
		return fmt.Errorf("PoA: no signer configured")
	}
	inTurn := bytes.Equal(p.SlotValidator(header.Timestamp), signer.PublicKey())
	if inTurn {
		header.Difficulty = DiffInTurn
	} else {
		header.Difficulty = DiffNoTurn
	}
	return nil
}

// Seal signs the block header with the configured signer key.
func (p *PoA) Seal(blk *block.Block) error {
	signer := p.GetSigner()
	if signer == nil {
		return fmt.Errorf("PoA: no signer configured")
	}
	hash := blk.Header.Hash()
	sig, err := signer.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("PoA: seal: %w", err)
	}
	blk.Header.ValidatorSig = sig
	return nil
}

// IdentifySigner recovers the validator that signed header, by checking the
// signature against each member of the validator set. Schnorr signatures
// over secp256k1 do not support public-key recovery, so this is a linear
// scan rather than a single recover step; validator sets are small enough
// that this is cheap. Returns nil if no validator's key verifies.
func (p *PoA) IdentifySigner(header *block.Header) []byte {
	p.mu.Lock()
	validators := p.validators
	p.mu.Unlock()

	if len(header.ValidatorSig) == 0 {
		return nil
	}
	hash := header.Hash()
	for _, v := range validators {
		if crypto.VerifySignature(hash[:], header.ValidatorSig, v) {
			return v
		}
	}
	return nil
}

// VerifyHeader checks that header carries a signature from a registered
// validator and that its difficulty matches what Prepare would have
// assigned for that signer at that timestamp. It does not enforce the
// signing-limit rotation — that requires chain history and is handled by
// the chain package, which already holds the block store this engine does
// not.
func (p *PoA) VerifyHeader(header *block.Header) error {
	signer := p.IdentifySigner(header)
	if signer == nil {
		return fmt.Errorf("PoA: header not signed by a known validator")
	}

	want := DiffNoTurn
	if bytes.Equal(p.SlotValidator(header.Timestamp), signer) {
		want = DiffInTurn
	}
	if header.Difficulty != want {
		return fmt.Errorf("PoA: difficulty %d does not match expected %d for signer", header.Difficulty, want)
	}
	return nil
}
