// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import "encoding/json"

// Message type tags of the JSON envelope protocol.
const (
	TypeNodeInfo = "nodeinfo"
	TypeBlockInv = "blockinv"
	TypeGetBlock = "getblock"
	TypeTxInv    = "txinv"
	TypeGetTx    = "gettx"
	TypeGetPeers = "getpeers"
	TypeResponse = "response"
)

// ProtocolVersion is advertised in every handshake's nodeinfo message. A
// peer advertising a different value is rejected, guarding wire
// compatibility across future envelope revisions.
const ProtocolVersion = "pov/1"

// Envelope is the wire frame: {type, id?, data}.
type Envelope struct {
	Type string          `json:"type"`
	ID   *uint64         `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

// NodeInfo is the payload of a nodeinfo handshake message.
type NodeInfo struct {
	NodeID          string `json:"nodeId"`
	ListenAddress   string `json:"listenAddress,omitempty"`
	ProtocolVersion string `json:"protocolVersion"`
}

// BlockInv is the payload of a blockinv announcement.
type BlockInv struct {
	Hash   string `json:"hash"`
	Height uint64 `json:"height"`
}

// GetBlockByHashes is a getblock request naming specific block hashes.
type GetBlockByHashes struct {
	Hash []string `json:"hash"`
}

// GetBlockByFrontier is a getblock request walking backward from a
// frontier hash, used to fill gaps below a fetched block.
type GetBlockByFrontier struct {
	Frontier string `json:"frontier"`
	Batch    int    `json:"batch"`
}

// GetBlockResponse maps a requested hash to its hex-serialized block. A
// hash the responder does not have maps to "".
type GetBlockResponse map[string]string

// TxInv is the payload of a txinv announcement.
type TxInv struct {
	TxIDs []string `json:"txids"`
}

// GetTx is a gettx request naming specific txids. A nil/omitted TxIDs
// requests every pending transaction.
type GetTx struct {
	TxIDs []string `json:"txids,omitempty"`
}

// GetTxResponse is the reply to a gettx request: the hex-serialized
// transactions the responder has for the requested ids.
type GetTxResponse struct {
	Txs []string `json:"txs"`
}

// GetPeersResponse is the reply to a getpeers request: the advertised
// listenAddress of every currently connected peer, excluding the
// requester's own advertised address and any empty entries.
type GetPeersResponse struct {
	Peers []string `json:"peers"`
}
