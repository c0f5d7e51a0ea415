// Package utxoset implements the unspent-transaction-output set: a keyed
// collection of unspent outputs representing the active chain's state
// exactly, with add/remove/balance/filter/copy operations.
package utxoset

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/wire"
)

// Outpoint identifies a UTXO by the transaction that created it and the
// output index within that transaction.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

func (op Outpoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxID, op.Index)
}

// OutpointOf returns the Outpoint referenced by in.
func OutpointOf(in *wire.TxInput) Outpoint {
	return Outpoint{TxID: in.PrevTxID, Index: in.PrevIndex}
}

// UTxOut is an unspent output plus its provenance: which block's
// transaction created it.
type UTxOut struct {
	BlockHash chainhash.Hash
	TxID      chainhash.Hash
	Index     uint32
	Output    wire.TxOutput
}

// Outpoint returns the key under which u is stored.
func (u *UTxOut) Outpoint() Outpoint {
	return Outpoint{TxID: u.TxID, Index: u.Index}
}

// FromOutput builds the UTxOut for output index i of tx, accepted by
// blockHash.
func FromOutput(blockHash chainhash.Hash, tx *txn.Tx, i uint32) *UTxOut {
	return &UTxOut{
		BlockHash: blockHash,
		TxID:      tx.ID(),
		Index:     i,
		Output:    tx.Msg.Outputs[i],
	}
}

// Set is the UTXO state at the active tip, exactly.
type Set struct {
	mtx     sync.RWMutex
	entries map[Outpoint]*UTxOut
}

// New returns an empty set.
func New() *Set {
	return &Set{entries: make(map[Outpoint]*UTxOut)}
}

// Add records u, keyed by its outpoint.
func (s *Set) Add(u *UTxOut) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.entries[u.Outpoint()] = u
}

// Remove deletes the entry for op. It is a no-op if op is not present.
func (s *Set) Remove(op Outpoint) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.entries, op)
}

// RemoveInput removes the UTXO referenced by in, idempotent on a missing
// entry.
func (s *Set) RemoveInput(in *wire.TxInput) {
	s.Remove(OutpointOf(in))
}

// Get returns the entry referenced by in, if present.
func (s *Set) Get(in *wire.TxInput) (*UTxOut, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	u, ok := s.entries[OutpointOf(in)]
	return u, ok
}

// GetOutpoint returns the entry at op, if present.
func (s *Set) GetOutpoint(op Outpoint) (*UTxOut, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	u, ok := s.entries[op]
	return u, ok
}

// Balance sums the amount of every output locked to pubKey.
func (s *Set) Balance(pubKey [65]byte) uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	var total uint64
	for _, u := range s.entries {
		if u.Output.PublicKey == pubKey {
			total += u.Output.Amount
		}
	}
	return total
}

// Filter returns every entry for which pred holds.
func (s *Set) Filter(pred func(*UTxOut) bool) []*UTxOut {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	var out []*UTxOut
	for _, u := range s.entries {
		if pred(u) {
			out = append(out, u)
		}
	}
	return out
}

// Copy returns an independent snapshot of s, for speculative validation.
func (s *Set) Copy() *Set {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	clone := New()
	for op, u := range s.entries {
		cp := *u
		clone.entries[op] = &cp
	}
	return clone
}

// Len returns the number of entries in s.
func (s *Set) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.entries)
}

// String renders s deterministically, for debug logging.
func (s *Set) String() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	parts := make([]string, 0, len(s.entries))
	for op, u := range s.entries {
		parts = append(parts, fmt.Sprintf("(%s) => %d", op, u.Output.Amount))
	}
	sort.Strings(parts)
	return "[ " + strings.Join(parts, ", ") + " ]"
}

// Ref holds the UTXO set representing the active tip, exactly, as a
// swappable pointer: a successful reorg commit replaces the whole set
// atomically rather than mutating it entry by entry.
type Ref struct {
	mtx sync.RWMutex
	set *Set
}

// NewRef wraps an initial set.
func NewRef(initial *Set) *Ref {
	return &Ref{set: initial}
}

// Get returns the current active set. Callers must not retain it across a
// Replace; take a Copy if a stable snapshot is needed.
func (r *Ref) Get() *Set {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.set
}

// Replace atomically swaps in a new active set.
func (r *Ref) Replace(next *Set) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.set = next
}
