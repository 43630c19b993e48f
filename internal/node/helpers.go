package node

import (
	"encoding/hex"
	"fmt"

	"github.com/nervosnetwork/ckb-go/config"
	"github.com/nervosnetwork/ckb-go/internal/consensus"
)

// createEngine builds a consensus engine from the genesis configuration.
func createEngine(genesis *config.Genesis) (consensus.Engine, error) {
	switch genesis.Protocol.Consensus.Type {
	case config.ConsensusPoA:
		validators := make([][]byte, len(genesis.Protocol.Consensus.Validators))
		for i, v := range genesis.Protocol.Consensus.Validators {
			b, err := hex.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("decode validator %d: %w", i, err)
			}
			validators[i] = b
		}

		poa, err := consensus.NewPoA(validators)
		if err != nil {
			return nil, fmt.Errorf("create poa: %w", err)
		}

		return poa, nil

	case config.ConsensusPoW:
		return consensus.NewPoW(uint64(genesis.Protocol.Consensus.BlockTime)), nil

	default:
		return nil, fmt.Errorf("unsupported consensus type: %s", genesis.Protocol.Consensus.Type)
	}
}
