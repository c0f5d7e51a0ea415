// povnoded is the full-node daemon: it loads configuration, constructs a
// node at genesis, starts the peer listener, dials any configured peers,
// and runs until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/povchain/povnoded/config"
	"github.com/povchain/povnoded/internal/logs"
	"github.com/povchain/povnoded/node"
)

var log = logs.Get(logs.SubsystemTags.NODE)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if err := logs.InitLogRotators(cfg.LogFile); err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Stop()

	if cfg.ListenAddress != "" {
		if err := n.Start(); err != nil {
			return err
		}
	}
	for _, addr := range cfg.ConnectPeers {
		if err := n.AddPeer(addr); err != nil {
			log.Warnf("connect to %s failed: %s", addr, err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	log.Infof("shutting down")
	return nil
}
