// Klingnet full node daemon.
//
// Usage:
//
//	klingnetd [--network=testnet|mainnet] [--datadir=path]
//	klingnetd --help
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nervosnetwork/ckb-go/config"
	"github.com/nervosnetwork/ckb-go/internal/node"
)

func main() {
	network := flag.String("network", string(config.Mainnet), "network to join (mainnet, testnet)")
	dataDir := flag.String("datadir", "", "data directory (default: platform-specific)")
	logLevel := flag.String("loglevel", "", "log level override (trace, debug, info, warn, error)")
	logJSON := flag.Bool("logjson", false, "emit structured JSON logs instead of console output")
	flag.Parse()

	cfg := config.Default(config.NetworkType(*network))
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}

	// The P2P transport (dialing, stream multiplexing, gossip) is out of
	// this daemon's scope: Node accepts it as an injected collaborator via
	// node.Deps and runs perfectly well — just without live peers — when
	// none is supplied. A transport binary built against this package
	// would construct a libp2p host here and pass it as Deps.Dialer,
	// Deps.Sender, and Deps.Gossip.
	n, err := node.New(cfg, node.Deps{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting node: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}
