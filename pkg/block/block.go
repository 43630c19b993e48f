// Package block defines block types and structural validation.
package block

import (
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// UncleBlock is a valid-but-not-canonical sibling a block acknowledges:
// its header plus the transaction short IDs it proposed. Uncle bodies are
// never carried — the canonical chain only cares about an uncle's
// proposals, which count toward the proposal window the same as the
// including block's own.
type UncleBlock struct {
	Header    *Header                 `json:"header"`
	Proposals []types.ProposalShortID `json:"proposals,omitempty"`
}

// Hash returns the uncle's header hash.
func (u *UncleBlock) Hash() types.Hash {
	if u.Header == nil {
		return types.Hash{}
	}
	return u.Header.Hash()
}

// Block represents a block in the chain. Proposals lists the transaction
// short IDs this block proposes for inclusion in a later block, once the
// proposal window matures; uncle proposals count the same way.
type Block struct {
	Header       *Header                 `json:"header"`
	Uncles       []*UncleBlock           `json:"uncles,omitempty"`
	Proposals    []types.ProposalShortID `json:"proposals,omitempty"`
	Transactions []*tx.Transaction       `json:"transactions"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// UnionProposalIds returns this block's proposal IDs together with every
// uncle's, deduplicated. The proposal table treats the result as "proposed
// at this block's height" when deciding whether a transaction may be
// committed.
func (b *Block) UnionProposalIds() []types.ProposalShortID {
	seen := make(map[types.ProposalShortID]struct{}, len(b.Proposals))
	out := make([]types.ProposalShortID, 0, len(b.Proposals))
	add := func(ids []types.ProposalShortID) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(b.Proposals)
	for _, u := range b.Uncles {
		add(u.Proposals)
	}
	return out
}
