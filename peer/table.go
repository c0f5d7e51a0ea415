// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"math/rand"
	"sync"
	"time"
)

// MaxBroadcastFanout is the maximum number of peers a single Broadcast
// reaches.
const MaxBroadcastFanout = 8

// MinLivePeers is the floor the disconnect-recovery loop tries to
// maintain.
const MinLivePeers = 8

// RefreshInterval is the period of the background peer-discovery timer.
const RefreshInterval = 60 * time.Second

// Table is the set of currently connected peers, keyed by remote address.
type Table struct {
	mtx    sync.RWMutex
	byAddr map[string]*Peer
}

// NewTable returns an empty peer table.
func NewTable() *Table {
	return &Table{byAddr: make(map[string]*Peer)}
}

// Add registers p under its remote address.
func (t *Table) Add(p *Peer) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.byAddr[p.RemoteAddr()] = p
}

// Remove unregisters p.
func (t *Table) Remove(p *Peer) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	delete(t.byAddr, p.RemoteAddr())
}

// Has reports whether addr already has a connected peer.
func (t *Table) Has(addr string) bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	_, ok := t.byAddr[addr]
	return ok
}

// HasAddress reports whether addr matches any connected peer's remote
// address or advertised listen address, so the disconnect-recovery loop
// skips addresses already connected.
func (t *Table) HasAddress(addr string) bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	if _, ok := t.byAddr[addr]; ok {
		return true
	}
	for _, p := range t.byAddr {
		if p.ListenAddress() == addr {
			return true
		}
	}
	return false
}

// Len returns the number of connected peers.
func (t *Table) Len() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return len(t.byAddr)
}

// List returns a snapshot of every connected peer.
func (t *Table) List() []*Peer {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	out := make([]*Peer, 0, len(t.byAddr))
	for _, p := range t.byAddr {
		out = append(out, p)
	}
	return out
}

// Broadcast sends msgType to min(len(peers), MaxBroadcastFanout) peers,
// selected uniformly without replacement.
func (t *Table) Broadcast(msgType string, data interface{}) {
	peers := t.List()
	if len(peers) > MaxBroadcastFanout {
		rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
		peers = peers[:MaxBroadcastFanout]
	}
	for _, p := range peers {
		if err := p.Send(msgType, data); err != nil {
			log.Debugf("broadcast %s to %s failed: %s", msgType, p.RemoteAddr(), err)
		}
	}
}

// AdvertisedListenAddresses returns the non-empty ListenAddress of every
// connected peer except the one whose address equals exclude, the
// responder side of getpeers.
func (t *Table) AdvertisedListenAddresses(exclude string) []string {
	var out []string
	for _, p := range t.List() {
		addr := p.ListenAddress()
		if addr == "" || addr == exclude {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// RandomSample returns up to n distinct peers chosen uniformly at random.
func (t *Table) RandomSample(n int) []*Peer {
	peers := t.List()
	if n >= len(peers) {
		return peers
	}
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	return peers[:n]
}
