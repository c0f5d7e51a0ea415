package syncengine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/povchain/povnoded/peer"
)

// Connect dials addr and attaches the resulting peer. It refuses once
// Stop has begun, so the disconnect-recovery loop cannot reopen
// connections during shutdown.
func (e *Engine) Connect(ctx context.Context, addr string) error {
	if e.ShuttingDown() {
		return errors.New("syncengine: node is shutting down")
	}
	p, err := peer.Dial(ctx, addr)
	if err != nil {
		return err
	}
	return e.AttachPeer(ctx, p)
}

// AttachPeer completes the application-level handshake on p and hands
// the connection to the engine: nodeinfo is sent immediately, the read
// loop starts, and the initial exchange runs -- getpeers, then a
// blockinv of the tip and a txinv of the mempool.
func (e *Engine) AttachPeer(ctx context.Context, p *peer.Peer) error {
	info := peer.NodeInfo{
		NodeID:          e.ctx.SelfNodeID,
		ListenAddress:   e.ctx.SelfListenAddress,
		ProtocolVersion: peer.ProtocolVersion,
	}
	if err := p.Send(peer.TypeNodeInfo, info); err != nil {
		p.Close()
		return errors.Wrap(err, "syncengine: send nodeinfo")
	}
	e.ctx.Peers.Add(p)
	log.Infof("peer connected: %s (outbound=%v)", p.RemoteAddr(), p.Outbound())

	go func() {
		err := p.ReadLoop(context.Background(), e.HandleMessage)
		log.Debugf("peer %s read loop ended: %s", p.RemoteAddr(), err)
		e.detachPeer(p)
	}()
	go e.greetPeer(ctx, p)
	return nil
}

// greetPeer runs the on-connect exchange: learn the peer's known
// addresses, then announce our tip and pending transactions.
func (e *Engine) greetPeer(ctx context.Context, p *peer.Peer) {
	var resp peer.GetPeersResponse
	if err := p.Request(ctx, peer.TypeGetPeers, struct{}{}, &resp); err != nil {
		log.Debugf("getpeers to %s failed: %s", p.RemoteAddr(), err)
	} else {
		e.ctx.Addrs.AddMany(resp.Peers)
	}

	e.Submit(func() {
		tip := e.ctx.Store.TipBlock()
		inv := peer.BlockInv{Hash: e.ctx.Store.Tip().String(), Height: tip.Height}
		if err := p.Send(peer.TypeBlockInv, inv); err != nil {
			return
		}
		ids := e.ctx.Mempool.TxIDs()
		if len(ids) == 0 {
			return
		}
		hexIDs := make([]string, len(ids))
		for i, id := range ids {
			hexIDs[i] = id.String()
		}
		if err := p.Send(peer.TypeTxInv, peer.TxInv{TxIDs: hexIDs}); err != nil {
			log.Debugf("initial txinv to %s failed: %s", p.RemoteAddr(), err)
		}
	})
}

func (e *Engine) detachPeer(p *peer.Peer) {
	e.ctx.Peers.Remove(p)
	p.Close()
	if !e.ShuttingDown() {
		go e.recoverConnections()
	}
}

// recoverConnections dials known addresses until the live-peer floor is
// met or the address book runs dry.
func (e *Engine) recoverConnections() {
	for !e.ShuttingDown() && e.ctx.Peers.Len() < peer.MinLivePeers {
		addr, ok := e.ctx.Addrs.PopOne()
		if !ok {
			return
		}
		if addr == e.ctx.SelfListenAddress || e.ctx.Peers.HasAddress(addr) {
			continue
		}
		if err := e.Connect(context.Background(), addr); err != nil {
			log.Debugf("reconnect to %s failed: %s", addr, err)
		}
	}
}

// StartDiscovery begins the background peer-refresh loop: every
// RefreshInterval, ask two random live peers for their known addresses.
func (e *Engine) StartDiscovery() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(peer.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.refreshPeers(context.Background())
			case <-e.quit:
				return
			}
		}
	}()
}

func (e *Engine) refreshPeers(ctx context.Context) {
	for _, p := range e.ctx.Peers.RandomSample(2) {
		var resp peer.GetPeersResponse
		if err := p.Request(ctx, peer.TypeGetPeers, struct{}{}, &resp); err != nil {
			log.Debugf("peer refresh via %s failed: %s", p.RemoteAddr(), err)
			continue
		}
		e.ctx.Addrs.AddMany(resp.Peers)
	}
}

// HandleMessage is the peer.Handler dispatching every inbound
// non-response frame to the matching protocol flow.
func (e *Engine) HandleMessage(ctx context.Context, session *peer.Session, env peer.Envelope) {
	switch env.Type {
	case peer.TypeNodeInfo:
		e.handleNodeInfo(session, env.Data)
	case peer.TypeBlockInv:
		var inv peer.BlockInv
		if err := json.Unmarshal(env.Data, &inv); err != nil {
			e.dropPeer(session.Peer(), err)
			return
		}
		e.HandleBlockInv(ctx, session.Peer(), inv)
	case peer.TypeTxInv:
		var inv peer.TxInv
		if err := json.Unmarshal(env.Data, &inv); err != nil {
			e.dropPeer(session.Peer(), err)
			return
		}
		e.HandleTxInv(ctx, session.Peer(), inv)
	case peer.TypeGetBlock:
		e.handleGetBlock(session, env.Data)
	case peer.TypeGetTx:
		e.handleGetTx(session, env.Data)
	case peer.TypeGetPeers:
		e.handleGetPeers(session)
	default:
		log.Debugf("unknown message type %q from %s", env.Type, session.Peer().RemoteAddr())
	}
}

// handleNodeInfo applies the handshake rules: a missing or non-string
// nodeId closes the peer, a self-connection closes the peer, and a
// non-empty listenAddress is recorded for advertising.
func (e *Engine) handleNodeInfo(session *peer.Session, data json.RawMessage) {
	p := session.Peer()
	var info peer.NodeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		e.dropPeer(p, err)
		return
	}
	if info.NodeID == "" {
		e.dropPeer(p, errors.New("nodeinfo missing nodeId"))
		return
	}
	if info.NodeID == e.ctx.SelfNodeID {
		log.Infof("self-connection detected on %s, closing", p.RemoteAddr())
		p.Close()
		return
	}
	if info.ProtocolVersion != peer.ProtocolVersion {
		e.dropPeer(p, errors.Errorf("protocol version %q not supported", info.ProtocolVersion))
		return
	}
	p.SetNodeID(info.NodeID)
	if info.ListenAddress != "" {
		p.SetListenAddress(info.ListenAddress)
	}
}

func (e *Engine) dropPeer(p *peer.Peer, err error) {
	log.Infof("dropping peer %s: %s", p.RemoteAddr(), err)
	p.Close()
}
