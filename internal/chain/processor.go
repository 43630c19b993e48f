// Package chain implements block ingestion: taking a block received from a
// peer or produced locally, validating its structure and consensus rules,
// and committing it to the chain state core (internal/chainstate).
package chain

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nervosnetwork/ckb-go/internal/chainstate"
	"github.com/nervosnetwork/ckb-go/internal/consensus"
	"github.com/nervosnetwork/ckb-go/pkg/block"
)

// Block processing errors.
var (
	ErrBlockKnown            = errors.New("block already known")
	ErrBadHeight             = errors.New("block height does not follow parent")
	ErrUnknownParent         = errors.New("block does not extend the current tip")
	ErrTimestampTooFuture    = errors.New("block timestamp too far in the future")
	ErrTimestampBeforeParent = errors.New("block timestamp before parent")
	ErrSigningLimitReached   = errors.New("validator exceeded signing limit for recent blocks")
)

// maxFutureDrift bounds how far ahead of local wall-clock time a block's
// timestamp may sit before ProcessBlock rejects it outright.
const maxFutureDrift = 2 * time.Minute

// Processor validates and commits blocks that extend the current tip.
//
// A block whose PrevHash is not the current tip is rejected with
// ErrUnknownParent rather than silently accepted as a fork candidate:
// chainstate.Store persists exactly one block per height (PutBlock
// overwrites the height index unconditionally), so it cannot hold a
// non-canonical branch alongside the canonical one. Reconciling a
// competing branch — fetching it in full, deciding whether it outweighs
// the current tip, persisting its blocks under their own height slots —
// is therefore the caller's job: whatever component performs header-first
// sync already has both chains' blocks in hand and should call
// ApplyExternalReorg once it has decided to switch. See DESIGN.md.
type Processor struct {
	mu     sync.Mutex
	state  *chainstate.ChainState
	store  *chainstate.Store
	engine consensus.Engine
}

// NewProcessor creates a Processor over state, store and engine. engine
// verifies each block's header against the chain's consensus rules
// (internal/consensus.PoA or internal/consensus.PoW); store and state must
// be the same pair state was built from (chainstate.New(store, ...)).
func NewProcessor(state *chainstate.ChainState, store *chainstate.Store, engine consensus.Engine) *Processor {
	return &Processor{state: state, store: store, engine: engine}
}

// ProcessBlock validates blk and, if it extends the current tip, commits
// it: persists the block and its cumulative-difficulty bookkeeping to the
// store, then applies its cell-set, proposal-window and pool effects to
// Chain State via ApplyReorg with an empty detached side.
func (p *Processor) ProcessBlock(blk *block.Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}

	hash := blk.Hash()
	if _, ok := p.store.GetHeader(hash); ok {
		return ErrBlockKnown
	}

	if err := blk.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if err := p.engine.VerifyHeader(blk.Header); err != nil {
		return fmt.Errorf("consensus: %w", err)
	}
	if poa, ok := p.engine.(*consensus.PoA); ok {
		if err := p.checkSigningLimit(poa, blk.Header); err != nil {
			return err
		}
	}

	tipHash := p.state.TipHash()
	tipHeader, ok := p.store.GetHeader(tipHash)
	if !ok {
		return fmt.Errorf("tip header %s not found in store", tipHash)
	}

	if blk.Header.PrevHash != tipHash {
		return fmt.Errorf("%w: block %s has prev_hash %s, current tip is %s",
			ErrUnknownParent, hash, blk.Header.PrevHash, tipHash)
	}
	if blk.Header.Height != tipHeader.Height+1 {
		return fmt.Errorf("%w: want %d, got %d", ErrBadHeight, tipHeader.Height+1, blk.Header.Height)
	}

	maxTime := uint64(time.Now().Add(maxFutureDrift).Unix())
	if blk.Header.Timestamp > maxTime {
		return fmt.Errorf("%w: block timestamp %d exceeds max %d", ErrTimestampTooFuture, blk.Header.Timestamp, maxTime)
	}
	if blk.Header.Timestamp < tipHeader.Timestamp {
		return fmt.Errorf("%w: block timestamp %d < parent timestamp %d",
			ErrTimestampBeforeParent, blk.Header.Timestamp, tipHeader.Timestamp)
	}

	tipExt, _ := p.store.GetBlockExt(tipHash)
	newExt := chainstate.BlockExt{TotalDifficulty: tipExt.TotalDifficulty + blk.Header.Difficulty}

	if err := p.store.PutBlock(blk, newExt.TotalDifficulty); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	if err := p.store.SetTip(hash); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}

	if err := p.state.ApplyReorg(nil, []*block.Block{blk}, newExt); err != nil {
		return fmt.Errorf("apply block: %w", err)
	}
	return nil
}

// checkSigningLimit enforces PoA's rotation rule: within any window of
// SigningLimit consecutive blocks, a validator may sign at most once. The
// engine itself holds no chain history, so the walk over recent headers
// lives here, against the processor's store.
func (p *Processor) checkSigningLimit(poa *consensus.PoA, header *block.Header) error {
	limit := poa.SigningLimit()
	if limit <= 1 {
		return nil
	}
	signer := poa.IdentifySigner(header)
	if signer == nil {
		return fmt.Errorf("consensus: header not signed by a known validator")
	}

	prevHash := header.PrevHash
	for i := 0; i < limit-1; i++ {
		prev, ok := p.store.GetHeader(prevHash)
		if !ok {
			break
		}
		if bytes.Equal(poa.IdentifySigner(prev), signer) {
			return fmt.Errorf("%w: signed height %d within the last %d blocks",
				ErrSigningLimitReached, prev.Height, limit-1)
		}
		if prev.Height == 0 {
			break
		}
		prevHash = prev.PrevHash
	}
	return nil
}

// ApplyExternalReorg switches the tip from the branch ending in detached to
// the branch made of attached, for a caller that has already fetched and
// validated both branches, chosen attached as heavier, and persisted
// attached's blocks (and their BlockExt bookkeeping) to the store itself.
// ProcessBlock never calls this; it is the explicit entry point a sync
// component uses once it has made that decision.
func (p *Processor) ApplyExternalReorg(detached, attached []*block.Block, newTipExt chainstate.BlockExt) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.ApplyReorg(detached, attached, newTipExt)
}
