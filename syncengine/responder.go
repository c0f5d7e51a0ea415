package syncengine

import (
	"encoding/hex"
	"encoding/json"

	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/peer"
	"github.com/povchain/povnoded/wire"
)

// getBlockQuery accepts both shapes of a getblock request: a list of
// explicit hashes, or a frontier to walk backward from.
type getBlockQuery struct {
	Hash     []string `json:"hash"`
	Frontier string   `json:"frontier"`
	Batch    int      `json:"batch"`
}

func (e *Engine) handleGetBlock(session *peer.Session, data json.RawMessage) {
	var q getBlockQuery
	if err := json.Unmarshal(data, &q); err != nil {
		e.dropPeer(session.Peer(), err)
		return
	}
	e.Submit(func() {
		resp := make(peer.GetBlockResponse)
		switch {
		case len(q.Hash) > 0:
			for _, hs := range q.Hash {
				resp[hs] = ""
				h, err := chainhash.NewFromStr(hs)
				if err != nil {
					continue
				}
				if b, ok := e.ctx.Store.Get(h); ok {
					resp[hs] = hex.EncodeToString(b.Serialize())
				}
			}
		case q.Frontier != "":
			h, err := chainhash.NewFromStr(q.Frontier)
			if err != nil {
				break
			}
			cur, ok := e.ctx.Store.Get(h)
			for i := 0; i < q.Batch && ok && cur.Height > 0; i++ {
				var parent *wire.Block
				parent, ok = e.ctx.Store.Get(cur.PrevHash)
				if !ok {
					break
				}
				resp[cur.PrevHash.String()] = hex.EncodeToString(parent.Serialize())
				cur = parent
			}
		}
		if err := session.Respond(resp); err != nil {
			log.Debugf("getblock response to %s failed: %s", session.Peer().RemoteAddr(), err)
		}
	})
}

func (e *Engine) handleGetTx(session *peer.Session, data json.RawMessage) {
	var q peer.GetTx
	if err := json.Unmarshal(data, &q); err != nil {
		e.dropPeer(session.Peer(), err)
		return
	}
	e.Submit(func() {
		txs := []string{}
		if q.TxIDs == nil {
			// A missing txids field requests every pending transaction.
			for _, entry := range e.ctx.Mempool.OrderBySeq() {
				txs = append(txs, hex.EncodeToString(entry.Tx.Msg.Serialize()))
			}
		} else {
			for _, idHex := range q.TxIDs {
				id, err := chainhash.NewFromStr(idHex)
				if err != nil {
					continue
				}
				if entry, ok := e.ctx.Mempool.Get(id); ok {
					txs = append(txs, hex.EncodeToString(entry.Tx.Msg.Serialize()))
				}
			}
		}
		if err := session.Respond(peer.GetTxResponse{Txs: txs}); err != nil {
			log.Debugf("gettx response to %s failed: %s", session.Peer().RemoteAddr(), err)
		}
	})
}

func (e *Engine) handleGetPeers(session *peer.Session) {
	exclude := session.Peer().ListenAddress()
	resp := peer.GetPeersResponse{Peers: e.ctx.Peers.AdvertisedListenAddresses(exclude)}
	if resp.Peers == nil {
		resp.Peers = []string{}
	}
	if err := session.Respond(resp); err != nil {
		log.Debugf("getpeers response to %s failed: %s", session.Peer().RemoteAddr(), err)
	}
}
