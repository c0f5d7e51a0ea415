package node

import (
	"context"
	"time"

	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/wire"
)

// PeerInfo is the read-only view of a connected peer returned by Peers,
// for the CLI's peer list.
type PeerInfo struct {
	Addr          string
	NodeID        string
	ListenAddress string
	Outbound      bool
	ConnectedAt   time.Time
}

// AddPeer dials addr and attaches it as an outbound peer.
func (n *Node) AddPeer(addr string) error {
	return n.engine.Connect(context.Background(), addr)
}

// Peers returns a snapshot of every connected peer.
func (n *Node) Peers() []PeerInfo {
	peers := n.peers.List()
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerInfo{
			Addr:          p.RemoteAddr(),
			NodeID:        p.NodeID(),
			ListenAddress: p.ListenAddress(),
			Outbound:      p.Outbound(),
			ConnectedAt:   p.ConnectedAt(),
		})
	}
	return out
}

// TipHash returns the hash of the active chain's head.
func (n *Node) TipHash() chainhash.Hash {
	var tip chainhash.Hash
	n.engine.SubmitSync(func() error {
		tip = n.store.Tip()
		return nil
	})
	return tip
}

// Height returns the height of the active chain's head.
func (n *Node) Height() uint64 {
	var height uint64
	n.engine.SubmitSync(func() error {
		height = n.store.TipBlock().Height
		return nil
	})
	return height
}

// Block returns the block stored under hashHex, or the tip block when
// hashHex is empty. Lookups of unknown hashes report not-found rather
// than failing.
func (n *Node) Block(hashHex string) (*wire.Block, bool) {
	var block *wire.Block
	var found bool
	n.engine.SubmitSync(func() error {
		if hashHex == "" {
			block = n.store.TipBlock()
			found = block != nil
			return nil
		}
		hash, err := chainhash.NewFromStr(hashHex)
		if err != nil {
			return nil
		}
		block, found = n.store.Get(hash)
		return nil
	})
	return block, found
}

// BlockTxs returns the transactions of the block stored under hashHex.
func (n *Node) BlockTxs(hashHex string) ([]wire.Transaction, bool) {
	block, ok := n.Block(hashHex)
	if !ok {
		return nil, false
	}
	return block.Txs, true
}

// Tx looks txidHex up in the mempool first, then in the active chain.
func (n *Node) Tx(txidHex string) (*txn.Tx, bool) {
	txid, err := chainhash.NewFromStr(txidHex)
	if err != nil {
		return nil, false
	}

	var found *txn.Tx
	n.engine.SubmitSync(func() error {
		if entry, ok := n.pool.Get(txid); ok {
			found = entry.Tx
			return nil
		}
		cur := n.store.Tip()
		for {
			block, ok := n.store.Get(cur)
			if !ok {
				return nil
			}
			for i := range block.Txs {
				tx := txn.New(&block.Txs[i])
				if tx.ID() == txid {
					found = tx
					return nil
				}
			}
			if block.Height == 0 {
				return nil
			}
			cur = block.PrevHash
		}
	})
	return found, found != nil
}
