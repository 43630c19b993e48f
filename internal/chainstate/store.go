package chainstate

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/nervosnetwork/ckb-go/internal/storage"
	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// BlockExt is the per-block bookkeeping the store tracks alongside a block
// body: its cumulative (total) difficulty as of that block.
type BlockExt struct {
	TotalDifficulty uint64 `json:"total_difficulty"`
}

// ChainStore is the external, out-of-scope backing store Chain State reads
// and writes through. Implementations must guarantee: if the cell set
// contains tx_hash, GetTransaction(tx_hash) returns the transaction — Chain
// State's CellProvider implementation leans on that invariant rather than
// re-checking it.
type ChainStore interface {
	GetTipHeader() (*block.Header, bool)
	GetBlockHash(number uint64) (types.Hash, bool)
	GetBlockBody(hash types.Hash) ([]*tx.Transaction, bool)
	GetBlockUncles(hash types.Hash) ([]*block.UncleBlock, bool)
	GetBlockProposalTxIDs(hash types.Hash) ([]types.ProposalShortID, bool)
	GetHeader(hash types.Hash) (*block.Header, bool)
	GetTransaction(hash types.Hash) (*tx.Transaction, bool)
	GetBlockExt(hash types.Hash) (BlockExt, bool)
	// GetCellOrigin reports which block a still-committed transaction
	// belongs to and whether it is that block's cellbase, the provenance
	// CellSet.MarkLive needs to reconstruct a fully-spent entry that a
	// reorg is reviving.
	GetCellOrigin(txHash types.Hash) (blockNumber uint64, cellbase bool, ok bool)
	Init(genesis *block.Block) error
}

// Store is a ChainStore backed by a storage.DB key-value handle. It
// persists whole blocks keyed by hash, a height index, a transaction
// index (hash -> owning block), and per-block total difficulty, for the
// Cell/OutPoint transaction model.
type Store struct {
	db storage.DB
}

// NewStore creates a Store backed by db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

var (
	prefixBlockByHash = []byte("cs/b/")
	prefixHashByHeight = []byte("cs/h/")
	prefixTxIndex      = []byte("cs/x/")
	prefixBlockExt      = []byte("cs/e/")
	keyTip             = []byte("cs/tip")
)

func blockKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixBlockByHash...), hash[:]...)
}

func heightKey(h uint64) []byte {
	buf := make([]byte, len(prefixHashByHeight)+8)
	copy(buf, prefixHashByHeight)
	binary.BigEndian.PutUint64(buf[len(prefixHashByHeight):], h)
	return buf
}

func txIndexKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixTxIndex...), hash[:]...)
}

func blockExtKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixBlockExt...), hash[:]...)
}

// PutBlock persists blk, indexing it by hash, height, and each contained
// transaction hash, and records its cumulative difficulty.
func (s *Store) PutBlock(blk *block.Block, totalDifficulty uint64) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	hash := blk.Hash()
	if err := s.db.Put(blockKey(hash), data); err != nil {
		return fmt.Errorf("put block: %w", err)
	}
	if err := s.db.Put(heightKey(blk.Header.Height), hash[:]); err != nil {
		return fmt.Errorf("put height index: %w", err)
	}
	for _, t := range blk.Transactions {
		if err := s.db.Put(txIndexKey(t.Hash()), hash[:]); err != nil {
			return fmt.Errorf("put tx index: %w", err)
		}
	}
	ext, err := json.Marshal(BlockExt{TotalDifficulty: totalDifficulty})
	if err != nil {
		return fmt.Errorf("marshal block ext: %w", err)
	}
	if err := s.db.Put(blockExtKey(hash), ext); err != nil {
		return fmt.Errorf("put block ext: %w", err)
	}
	return nil
}

// SetTip records hash as the current chain tip.
func (s *Store) SetTip(hash types.Hash) error {
	return s.db.Put(keyTip, hash[:])
}

// DeleteTxIndex removes a transaction's hash -> block index entry, used
// when detaching the block that contained it during a reorg.
func (s *Store) DeleteTxIndex(txHash types.Hash) error {
	return s.db.Delete(txIndexKey(txHash))
}

// DeleteHeightIndex removes the height -> hash index entry, used when
// detaching the block at that height.
func (s *Store) DeleteHeightIndex(height uint64) error {
	return s.db.Delete(heightKey(height))
}

func (s *Store) getBlock(hash types.Hash) (*block.Block, bool) {
	data, err := s.db.Get(blockKey(hash))
	if err != nil {
		return nil, false
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, false
	}
	return &blk, true
}

// GetBlock retrieves a full block by hash.
func (s *Store) GetBlock(hash types.Hash) (*block.Block, bool) {
	return s.getBlock(hash)
}

// GetTipHeader returns the header of the current tip, or false on a fresh store.
func (s *Store) GetTipHeader() (*block.Header, bool) {
	data, err := s.db.Get(keyTip)
	if err != nil || len(data) != types.HashSize {
		return nil, false
	}
	var hash types.Hash
	copy(hash[:], data)
	blk, ok := s.getBlock(hash)
	if !ok {
		return nil, false
	}
	return blk.Header, true
}

// GetBlockHash returns the hash of the block at the given height.
func (s *Store) GetBlockHash(number uint64) (types.Hash, bool) {
	data, err := s.db.Get(heightKey(number))
	if err != nil || len(data) != types.HashSize {
		return types.Hash{}, false
	}
	var hash types.Hash
	copy(hash[:], data)
	return hash, true
}

// GetBlockBody returns the transactions of the block with the given hash.
func (s *Store) GetBlockBody(hash types.Hash) ([]*tx.Transaction, bool) {
	blk, ok := s.getBlock(hash)
	if !ok {
		return nil, false
	}
	return blk.Transactions, true
}

// GetBlockUncles returns the uncles of the block with the given hash.
func (s *Store) GetBlockUncles(hash types.Hash) ([]*block.UncleBlock, bool) {
	blk, ok := s.getBlock(hash)
	if !ok {
		return nil, false
	}
	return blk.Uncles, true
}

// GetBlockProposalTxIDs returns the proposal short IDs of the block with
// the given hash (its own, not its uncles').
func (s *Store) GetBlockProposalTxIDs(hash types.Hash) ([]types.ProposalShortID, bool) {
	blk, ok := s.getBlock(hash)
	if !ok {
		return nil, false
	}
	return blk.Proposals, true
}

// GetHeader returns the header of the block with the given hash.
func (s *Store) GetHeader(hash types.Hash) (*block.Header, bool) {
	blk, ok := s.getBlock(hash)
	if !ok {
		return nil, false
	}
	return blk.Header, true
}

// GetTransaction looks up a committed transaction by hash via the tx index.
func (s *Store) GetTransaction(hash types.Hash) (*tx.Transaction, bool) {
	data, err := s.db.Get(txIndexKey(hash))
	if err != nil || len(data) != types.HashSize {
		return nil, false
	}
	var blockHash types.Hash
	copy(blockHash[:], data)
	blk, ok := s.getBlock(blockHash)
	if !ok {
		return nil, false
	}
	for _, t := range blk.Transactions {
		if t.Hash() == hash {
			return t, true
		}
	}
	return nil, false
}

// GetCellOrigin looks up which block a committed transaction belongs to
// via the tx index, and whether it sits at position 0 (cellbase).
func (s *Store) GetCellOrigin(txHash types.Hash) (blockNumber uint64, cellbase bool, ok bool) {
	data, err := s.db.Get(txIndexKey(txHash))
	if err != nil || len(data) != types.HashSize {
		return 0, false, false
	}
	var blockHash types.Hash
	copy(blockHash[:], data)
	blk, found := s.getBlock(blockHash)
	if !found {
		return 0, false, false
	}
	for i, t := range blk.Transactions {
		if t.Hash() == txHash {
			return blk.Header.Height, i == 0, true
		}
	}
	return 0, false, false
}

// GetBlockExt returns the cumulative-difficulty bookkeeping for hash.
func (s *Store) GetBlockExt(hash types.Hash) (BlockExt, bool) {
	data, err := s.db.Get(blockExtKey(hash))
	if err != nil {
		return BlockExt{}, false
	}
	var ext BlockExt
	if err := json.Unmarshal(data, &ext); err != nil {
		return BlockExt{}, false
	}
	return ext, true
}

// Init persists genesis as block 0 and sets it as the tip, with a starting
// cumulative difficulty equal to its own.
func (s *Store) Init(genesis *block.Block) error {
	if err := s.PutBlock(genesis, genesis.Header.Difficulty); err != nil {
		return fmt.Errorf("init genesis: %w", err)
	}
	return s.SetTip(genesis.Hash())
}
