// Package node wires the chain-state core, block ingestion, the
// compact-block relayer and the outbound peer service into one runnable
// unit. The actual P2P transport — the libp2p host that dials peers and
// carries relay messages on the wire — is an external collaborator this
// module only specifies narrow contracts for (outbound.Dialer,
// relay.Sender); Node accepts them already built rather than constructing
// a host itself, matching this specification's scope (transport,
// discovery, RPC, wallet and mining are out of scope).
package node

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nervosnetwork/ckb-go/config"
	"github.com/nervosnetwork/ckb-go/internal/chain"
	"github.com/nervosnetwork/ckb-go/internal/chainstate"
	"github.com/nervosnetwork/ckb-go/internal/consensus"
	klog "github.com/nervosnetwork/ckb-go/internal/log"
	"github.com/nervosnetwork/ckb-go/internal/outbound"
	"github.com/nervosnetwork/ckb-go/internal/p2p"
	"github.com/nervosnetwork/ckb-go/internal/relay"
	"github.com/nervosnetwork/ckb-go/internal/storage"
	"github.com/nervosnetwork/ckb-go/pkg/block"
	"github.com/nervosnetwork/ckb-go/pkg/tx"
	"github.com/nervosnetwork/ckb-go/pkg/types"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

const (
	defaultVerifyCacheSize = 4096

	outboundTickInterval = 30 * time.Second
)

// Deps supplies the external collaborators Node needs but does not build:
// the P2P transport's outbound-dial capability, the relay message sender,
// and the pubsub-backed gossip topics. All may be nil — a Node with none
// of them still ingests and validates blocks and transactions end to end,
// it just never dials out, answers peer requests, or broadcasts over the
// wire. Gossip is only started alongside Dialer, since its receive loops
// need Dialer.SelfID() to filter out this node's own publications.
type Deps struct {
	Dialer outbound.Dialer
	Sender relay.Sender
	Gossip *relay.Gossip
}

// Node is a fully initialized chain-state core: storage, the consensus
// engine, chain state (cell set, proposal table, tx pool, verification
// cache), the block processor, and — when Deps supplies the transport
// seams — the compact-block relayer and outbound peer service.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	db        storage.DB
	store     *chainstate.Store
	state     *chainstate.ChainState
	engine    consensus.Engine
	processor *chain.Processor

	peers    *p2p.PeerStore
	bans     *p2p.BanManager
	relayer  *relay.Relayer
	outbound *outbound.Service
	gossip   *relay.Gossip
	dialer   outbound.Dialer
	sender   relay.Sender

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a Node: logger, genesis, storage, consensus
// engine, chain state, block processor, peer store and ban manager, and —
// when deps supplies them — the relay and outbound services. It performs
// all setup but does not start any background goroutine; call Start for
// that.
func New(cfg *config.Config, deps Deps) (*Node, error) {
	logger, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	genesis := config.GenesisFor(cfg.Network)
	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Str("consensus", genesis.Protocol.Consensus.Type).
		Int("block_time", genesis.Protocol.Consensus.BlockTime).
		Msg("starting node")

	db, err := storage.NewBadger(cfg.ChainDataDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.ChainDataDir(), err)
	}

	engine, err := createEngine(genesis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create consensus engine: %w", err)
	}

	genesisBlk, err := chain.CreateGenesisBlock(genesis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build genesis block: %w", err)
	}

	store := chainstate.NewStore(db)
	rules := genesis.Protocol.ChainState
	state, err := chainstate.New(store, &chainstate.Consensus{
		GenesisBlock:         genesisBlk,
		ProposalWindow:       rules.ProposalWindow,
		MaxBlockCycles:       rules.MaxBlockCycles,
		MedianTimeBlockCount: rules.MedianTimeBlockCount,
		CellbaseMaturity:     config.CoinbaseMaturity,
		TxsVerifyCacheSize:   defaultVerifyCacheSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init chain state: %w", err)
	}
	logger.Info().
		Uint64("height", state.TipNumber()).
		Str("tip", state.TipHash().String()[:16]+"...").
		Msg("chain state ready")

	processor := chain.NewProcessor(state, store, engine)

	peers := p2p.NewPeerStore(db)
	banStore := p2p.NewBanStore(db)
	var disconnector p2p.Disconnector
	if deps.Dialer != nil {
		disconnector = dialerDisconnector{deps.Dialer}
	}
	bans := p2p.NewBanManager(banStore, disconnector)
	bans.LoadBans()

	var relayer *relay.Relayer
	if deps.Sender != nil {
		relayer = relay.New(state.Pool(), deps.Sender)
	}

	var ob *outbound.Service
	if deps.Dialer != nil {
		maxOutbound := cfg.P2P.MaxPeers
		ob = outbound.New(deps.Dialer, peers, func() outbound.Status {
			return outbound.Status{MaxOutbound: maxOutbound}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())

	var gossip *relay.Gossip
	if deps.Gossip != nil && deps.Dialer != nil {
		gossip = deps.Gossip
	}

	return &Node{
		cfg:       cfg,
		genesis:   genesis,
		logger:    logger,
		db:        db,
		store:     store,
		state:     state,
		engine:    engine,
		processor: processor,
		peers:     peers,
		bans:      bans,
		relayer:   relayer,
		outbound:  ob,
		gossip:    gossip,
		dialer:    deps.Dialer,
		sender:    deps.Sender,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func initLogger(cfg *config.Config) (zerolog.Logger, error) {
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/klingnet.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return zerolog.Logger{}, fmt.Errorf("initializing logger: %w", err)
	}
	return klog.WithComponent("node"), nil
}

// dialerDisconnector adapts outbound.Dialer to p2p.Disconnector so the ban
// manager can drop a banned peer's connection through the same seam the
// outbound service dials through.
type dialerDisconnector struct {
	dialer outbound.Dialer
}

func (d dialerDisconnector) DisconnectPeer(id peer.ID) {
	_ = d.dialer.Disconnect(id)
}

// Start launches the background services Deps made available: the
// outbound peer service's dial/feeler ticker and the relayer's proposal
// pruner. A Node built with nil Dialer/Sender starts nothing and is only
// usable for direct ProcessBlock/SubmitTransaction calls (e.g. tests, or
// a sync component driving ingestion without live peers).
func (n *Node) Start() error {
	if n.outbound != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.outbound.Run(n.ctx, outboundTickInterval)
		}()
		n.logger.Info().Dur("interval", outboundTickInterval).Msg("outbound peer service started")
	}

	if n.relayer != nil {
		stop := make(chan struct{})
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			<-n.ctx.Done()
			close(stop)
		}()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.relayer.RunProposalPruner(stop)
		}()
		n.logger.Info().Msg("compact-block relayer proposal pruner started")
	}

	if n.gossip != nil {
		selfID := n.dialer.SelfID()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.gossip.RunCompactBlocks(n.ctx, selfID, n.handleGossipedCompactBlock)
		}()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.gossip.RunTransactions(n.ctx, selfID, n.handleGossipedTransaction)
		}()
		n.logger.Info().Msg("gossip topics subscribed")
	}

	n.logger.Info().
		Uint64("height", n.state.TipNumber()).
		Msg("node started")
	return nil
}

// handleGossipedCompactBlock reconstructs a block announced over the
// compact-block gossip topic and applies it if complete. If transactions
// are missing, it falls back to a direct GetBlockTransactions request to
// the announcing peer (when Deps.Sender is available) rather than waiting
// for another gossip round.
func (n *Node) handleGossipedCompactBlock(from peer.ID, cb *relay.CompactBlock) {
	blk, missing, err := n.relayer.HandleCompactBlock(cb)
	if err != nil {
		n.logger.Debug().Err(err).Str("peer", from.String()).Msg("reject gossiped compact block")
		return
	}
	if missing != nil {
		if n.sender != nil {
			if err := n.sender.SendGetBlockTransactions(from, relay.GetBlockTransactions{
				BlockHash: cb.Hash(),
				Indexes:   missing,
			}); err != nil {
				n.logger.Debug().Err(err).Str("peer", from.String()).Msg("request missing block transactions")
			}
		}
		return
	}
	if blk == nil {
		return // Already reconstructed by an earlier announcement.
	}
	if err := n.processor.ProcessBlock(blk); err != nil {
		n.logger.Warn().Err(err).Str("peer", from.String()).Msg("reject gossiped block")
	}
}

// handleGossipedTransaction submits a transaction announced over the
// transaction gossip topic to the pool, the same path a direct submission
// takes.
func (n *Node) handleGossipedTransaction(from peer.ID, t *tx.Transaction) {
	if _, err := n.state.AddTxToPool(t); err != nil {
		n.logger.Debug().Err(err).Str("peer", from.String()).Msg("reject gossiped transaction")
	}
}

// Stop performs graceful shutdown: cancels all background goroutines,
// waits for them, then closes storage.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()
	if n.db != nil {
		n.db.Close()
	}
	n.logger.Info().Msg("node stopped")
}

// Height returns the current chain tip's height.
func (n *Node) Height() uint64 {
	return n.state.TipNumber()
}

// TipHash returns the current chain tip's header hash.
func (n *Node) TipHash() types.Hash {
	return n.state.TipHash()
}

// ProcessBlock validates and commits blk if it extends the current tip,
// updating the cell set, proposal table and tx pool accordingly.
func (n *Node) ProcessBlock(blk *block.Block) error {
	return n.processor.ProcessBlock(blk)
}

// SubmitTransaction resolves and verifies t against the current chain
// state, routing it into the pending or staging sub-pool.
func (n *Node) SubmitTransaction(t *tx.Transaction) (uint64, error) {
	return n.state.AddTxToPool(t)
}

// Relayer exposes the compact-block relayer for a transport layer to wire
// incoming peer messages into. Nil if Deps.Sender was nil at New.
func (n *Node) Relayer() *relay.Relayer {
	return n.relayer
}

// PeerStore exposes the peer store for a transport layer to record
// discovered addresses into.
func (n *Node) PeerStore() *p2p.PeerStore {
	return n.peers
}

// BanManager exposes the ban manager for a transport layer to report peer
// offenses to.
func (n *Node) BanManager() *p2p.BanManager {
	return n.bans
}
