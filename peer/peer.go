// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peer is the node's transport: one WebSocket connection per
// peer, UTF-8 JSON text frames carrying the {type, id?, data} envelope,
// with request/response correlation and a per-process handshake.
package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/povchain/povnoded/internal/logs"
)

var log = logs.Get(logs.SubsystemTags.PEER)

// RequestTimeout is the maximum time Request waits for a matching
// response frame before failing.
const RequestTimeout = 3 * time.Second

// ConnectTimeout is the maximum time an outbound Dial waits for the
// WebSocket handshake to complete.
const ConnectTimeout = 1 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Peer is a single WebSocket connection to another node, plus the fields
// recorded about it during the handshake and peer discovery.
type Peer struct {
	conn       *websocket.Conn
	remoteAddr string
	outbound   bool

	mtx           sync.RWMutex
	nodeID        string
	listenAddress string
	connectedAt   time.Time

	writeMtx sync.Mutex
	nextID   uint64 // atomic

	pendingMtx sync.Mutex
	pending    map[uint64]chan json.RawMessage

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeer(conn *websocket.Conn, remoteAddr string, outbound bool) *Peer {
	return &Peer{
		conn:        conn,
		remoteAddr:  remoteAddr,
		outbound:    outbound,
		connectedAt: time.Now(),
		pending:     make(map[uint64]chan json.RawMessage),
		closed:      make(chan struct{}),
	}
}

// Dial opens an outbound WebSocket connection to addr ("host:port"),
// failing if the handshake does not complete within ConnectTimeout.
func Dial(ctx context.Context, addr string) (*Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: addr}
	dialer := websocket.Dialer{HandshakeTimeout: ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "peer: dial %s", addr)
	}
	return newPeer(conn, addr, true), nil
}

// Accept upgrades an inbound HTTP request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Peer, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "peer: upgrade inbound connection")
	}
	return newPeer(conn, r.RemoteAddr, false), nil
}

// RemoteAddr returns the dialed or observed remote address.
func (p *Peer) RemoteAddr() string { return p.remoteAddr }

// Outbound reports whether this node initiated the connection.
func (p *Peer) Outbound() bool { return p.outbound }

// NodeID returns the peer's handshake-advertised node id.
func (p *Peer) NodeID() string {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return p.nodeID
}

// SetNodeID records the peer's handshake-advertised node id.
func (p *Peer) SetNodeID(id string) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.nodeID = id
}

// ListenAddress returns the peer's advertised listen address, if any.
func (p *Peer) ListenAddress() string {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return p.listenAddress
}

// SetListenAddress records the peer's advertised listen address.
func (p *Peer) SetListenAddress(addr string) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.listenAddress = addr
}

// ConnectedAt returns when this connection was established.
func (p *Peer) ConnectedAt() time.Time { return p.connectedAt }

func (p *Peer) writeEnvelope(env Envelope) error {
	p.writeMtx.Lock()
	defer p.writeMtx.Unlock()
	return p.conn.WriteJSON(env)
}

// Send transmits a fire-and-forget message with no request id.
func (p *Peer) Send(msgType string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "peer: marshal message data")
	}
	return p.writeEnvelope(Envelope{Type: msgType, Data: raw})
}

// Request sends msgType with a fresh monotonic id and blocks until the
// matching response frame arrives, the request times out after
// RequestTimeout, ctx is cancelled, or the connection closes.
func (p *Peer) Request(ctx context.Context, msgType string, data interface{}, result interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "peer: marshal request data")
	}

	id := atomic.AddUint64(&p.nextID, 1)
	ch := make(chan json.RawMessage, 1)
	p.pendingMtx.Lock()
	p.pending[id] = ch
	p.pendingMtx.Unlock()
	defer func() {
		p.pendingMtx.Lock()
		delete(p.pending, id)
		p.pendingMtx.Unlock()
	}()

	if err := p.writeEnvelope(Envelope{Type: msgType, ID: &id, Data: raw}); err != nil {
		return errors.Wrap(err, "peer: send request")
	}

	timer := time.NewTimer(RequestTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(resp, result); err != nil {
			return errors.Wrap(err, "peer: unmarshal response data")
		}
		return nil
	case <-timer.C:
		return errors.Errorf("peer: request %q to %s timed out after %s", msgType, p.remoteAddr, RequestTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return errors.New("peer: connection closed while awaiting response")
	}
}

func (p *Peer) deliverResponse(id uint64, data json.RawMessage) bool {
	p.pendingMtx.Lock()
	ch, ok := p.pending[id]
	p.pendingMtx.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- data:
	default:
	}
	return true
}

// Close terminates the connection. It is idempotent.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.conn.Close()
	})
	return err
}

// Done returns a channel closed when the peer is closed.
func (p *Peer) Done() <-chan struct{} { return p.closed }

// Handler processes an inbound non-response envelope and, via session,
// may Respond to it.
type Handler func(ctx context.Context, session *Session, env Envelope)

// ReadLoop blocks reading frames until the connection errors or closes,
// routing response frames to the matching Request call and every other
// frame to handle. It returns the error that ended the loop (including a
// normal close).
func (p *Peer) ReadLoop(ctx context.Context, handle Handler) error {
	for {
		var env Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			return err
		}
		if env.Type == TypeResponse {
			if env.ID == nil {
				continue
			}
			p.deliverResponse(*env.ID, env.Data)
			continue
		}
		handle(ctx, NewSession(p, env), env)
	}
}

// Session is a per-message context bound to an incoming envelope (if any)
// and the peer it arrived on: send, request, and
// respond-to-this-message-if-it-was-a-request.
type Session struct {
	peer      *Peer
	requestID *uint64
}

// NewSession binds a session to env's request id (nil for a fire-and-forget
// message) and peer.
func NewSession(p *Peer, env Envelope) *Session {
	return &Session{peer: p, requestID: env.ID}
}

// Peer returns the peer this session is bound to.
func (s *Session) Peer() *Peer { return s.peer }

// Send transmits a fire-and-forget message to the bound peer.
func (s *Session) Send(msgType string, data interface{}) error {
	return s.peer.Send(msgType, data)
}

// Request issues a correlated request to the bound peer.
func (s *Session) Request(ctx context.Context, msgType string, data interface{}, result interface{}) error {
	return s.peer.Request(ctx, msgType, data, result)
}

// Respond replies to the message this session is bound to. It is a no-op
// if the incoming message carried no request id.
func (s *Session) Respond(data interface{}) error {
	if s.requestID == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "peer: marshal response data")
	}
	return s.peer.writeEnvelope(Envelope{Type: TypeResponse, ID: s.requestID, Data: raw})
}
