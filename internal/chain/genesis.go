package chain

import (
	"fmt"
	"sort"

	"github.com/nervosnetwork/ckb-go/config"
	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/cell"
	"github.com/nervosnetwork/ckb-go/pkg/crypto"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
)

// standardLockCodeHash names the one lock contract every node in this
// module is assumed to recognize. Script interpretation (the actual
// signature check a real lock script would run) is out of scope here —
// chain state only ever compares or hashes Script values — so a fixed
// stand-in hash is enough to give every genesis output a well-formed lock.
var standardLockCodeHash = crypto.Hash([]byte("klingnet-standard-lock-v1"))

// CreateGenesisBlock builds the genesis block from the genesis
// configuration. The genesis block has height 0, a zero PrevHash, and a
// single cellbase transaction whose outputs distribute the initial
// capacity allocations.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}

	cellbase, err := buildGenesisCellbase(gen.Alloc)
	if err != nil {
		return nil, fmt.Errorf("build cellbase: %w", err)
	}

	merkle := block.ComputeMerkleRoot([]types.Hash{cellbase.Hash()})

	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   types.Hash{},
		MerkleRoot: merkle,
		Timestamp:  gen.Timestamp,
		Height:     0,
	}

	return block.NewBlock(header, []*tx.Transaction{cellbase}), nil
}

// buildGenesisCellbase creates the genesis cellbase transaction: one input
// spending the null outpoint, and one output per allocation, each locked
// to the allocation address. Addresses are sorted first so the same
// genesis config always produces the same transaction hash.
func buildGenesisCellbase(alloc map[string]uint64) (*tx.Transaction, error) {
	addrs := make([]string, 0, len(alloc))
	for addr := range alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	outputs := make([]cell.CellOutput, 0, len(addrs))
	for _, addrStr := range addrs {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		outputs = append(outputs, cell.CellOutput{
			Capacity: alloc[addrStr],
			Lock:     lockForAddress(addr),
		})
	}

	// No allocations: still produce a single zero-capacity output so the
	// cellbase has an output. tx.Validate rejects zero-capacity outputs, so
	// this placeholder cellbase does not pass transaction validation.
	if len(outputs) == 0 {
		outputs = append(outputs, cell.CellOutput{Lock: lockForAddress(types.Address{})})
	}

	return &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.NullOutPoint}},
		Outputs: outputs,
	}, nil
}

// lockForAddress builds the standard lock script for addr.
func lockForAddress(addr types.Address) types.Script {
	return types.Script{
		CodeHash: standardLockCodeHash,
		HashType: types.HashTypeType,
		Args:     append([]byte{}, addr[:]...),
	}
}
