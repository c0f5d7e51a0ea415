// Package node is the composition root of povnoded: it owns the chain
// store, UTXO set, mempool, sync engine, miner handle, and wallet key,
// and exposes the operations the command shell calls. Every
// chain-mutating operation funnels through the sync engine's serialising
// queue.
package node

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/povchain/povnoded/chainstore"
	"github.com/povchain/povnoded/config"
	"github.com/povchain/povnoded/consensus"
	"github.com/povchain/povnoded/genesis"
	"github.com/povchain/povnoded/internal/ecc"
	"github.com/povchain/povnoded/internal/logs"
	"github.com/povchain/povnoded/mempool"
	"github.com/povchain/povnoded/miner"
	"github.com/povchain/povnoded/peer"
	"github.com/povchain/povnoded/syncengine"
	"github.com/povchain/povnoded/utxoset"
)

var log = logs.Get(logs.SubsystemTags.NODE)

// Node is a running full node.
type Node struct {
	cfg    *config.Config
	nodeID string

	store  *chainstore.Store
	utxos  *utxoset.Ref
	pool   *mempool.Pool
	peers  *peer.Table
	addrs  *peer.AddressBook
	engine *syncengine.Engine

	miners *minerHandle

	walletMtx sync.Mutex
	walletKey *ecc.PrivateKey

	loopMtx  sync.Mutex
	loopQuit chan struct{}
	loopWG   sync.WaitGroup

	srv *http.Server
}

// minerHandle tracks the currently running miner so the sync engine can
// cancel it on tip advance without importing the miner package's state
// machine.
type minerHandle struct {
	mtx sync.Mutex
	cur *miner.Miner
}

func (h *minerHandle) set(m *miner.Miner) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.cur = m
}

func (h *minerHandle) clear(m *miner.Miner) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.cur == m {
		h.cur = nil
	}
}

// Cancel implements syncengine.MinerControl.
func (h *minerHandle) Cancel() {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.cur != nil {
		h.cur.Cancel()
	}
}

// New constructs a node at genesis: the chain store holds the genesis
// block, the UTXO set holds its coinbase output, and the sync engine's
// consumer goroutine is running.
func New(cfg *config.Config) (*Node, error) {
	gen, err := genesis.Block()
	if err != nil {
		return nil, errors.Wrap(err, "node: build genesis")
	}
	store := chainstore.New(gen)

	set := utxoset.New()
	if _, err := consensus.ApplyTransactions(set, gen); err != nil {
		return nil, errors.Wrap(err, "node: apply genesis coinbase")
	}

	n := &Node{
		cfg:    cfg,
		nodeID: uuid.NewString(),
		store:  store,
		utxos:  utxoset.NewRef(set),
		pool:   mempool.New(),
		peers:  peer.NewTable(),
		addrs:  peer.NewAddressBook(),
		miners: &minerHandle{},
	}
	n.engine = syncengine.New(&syncengine.Context{
		Store:             store,
		UTXOs:             n.utxos,
		Mempool:           n.pool,
		MaxBlockBytes:     cfg.MaxDataBytes,
		Peers:             n.peers,
		Addrs:             n.addrs,
		SelfNodeID:        n.nodeID,
		SelfListenAddress: cfg.ListenAddress,
		Miner:             n.miners,
		Now:               nowMs,
	})
	return n, nil
}

// NodeID returns the per-process UUID advertised in every handshake.
func (n *Node) NodeID() string {
	return n.nodeID
}

// Start begins accepting inbound peer connections on the configured
// listen address and starts the peer-discovery refresh loop.
func (n *Node) Start() error {
	if n.cfg.ListenAddress == "" {
		return errors.New("node: no listen address configured")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", n.serveWS)
	ln, err := net.Listen("tcp", n.cfg.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "node: listen %s", n.cfg.ListenAddress)
	}
	n.srv = &http.Server{Handler: mux}
	go func() {
		if err := n.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("peer listener: %s", err)
		}
	}()
	n.engine.StartDiscovery()
	log.Infof("node %s listening on %s", n.nodeID, n.cfg.ListenAddress)
	return nil
}

func (n *Node) serveWS(w http.ResponseWriter, r *http.Request) {
	p, err := peer.Accept(w, r)
	if err != nil {
		log.Debugf("inbound upgrade from %s failed: %s", r.RemoteAddr, err)
		return
	}
	// The request context dies when this handler returns; the peer's
	// lifetime is the connection's, so it gets a background context.
	if err := n.engine.AttachPeer(context.Background(), p); err != nil {
		log.Debugf("attach inbound peer %s failed: %s", r.RemoteAddr, err)
	}
}

// Stop shuts the node down: the mine loop ends, the listener closes, and
// the engine tears down every peer and halts the queue.
func (n *Node) Stop() {
	n.StopLoop()
	if n.srv != nil {
		n.srv.Close()
	}
	n.engine.Stop()
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
