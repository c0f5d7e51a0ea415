// Package mempool is the pending-transaction pool: a map of transactions
// awaiting inclusion in a block, ordered by descending fee, plus a
// claims index used to detect conflicting spends. There is no orphan
// pool -- a transaction with an unresolved input is not held back to
// wait for its parent: a missing UTXO is a hard rejection, decided by
// the caller before Add is reached.
package mempool

import (
	"sort"
	"sync"

	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/utxoset"
)

// Entry is a pending transaction plus the fee it pays.
type Entry struct {
	Tx   *txn.Tx
	Fees uint64

	seq uint64
}

// Pool is the set of pending transactions, keyed by txid, along with the
// outpoints they claim.
type Pool struct {
	mtx   sync.RWMutex
	txs   map[chainhash.Hash]*Entry
	spent map[utxoset.Outpoint]chainhash.Hash

	nextSeq uint64
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{
		txs:   make(map[chainhash.Hash]*Entry),
		spent: make(map[utxoset.Outpoint]chainhash.Hash),
	}
}

// Add records entry and its input claims. No validation is performed
// here; the caller validates before calling Add.
func (p *Pool) Add(entry *Entry) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.nextSeq++
	entry.seq = p.nextSeq
	txid := entry.Tx.ID()
	p.txs[txid] = entry
	for i := range entry.Tx.Msg.Inputs {
		p.spent[utxoset.OutpointOf(&entry.Tx.Msg.Inputs[i])] = txid
	}
}

// Remove releases txid's claims. It is a no-op if txid is not pending.
func (p *Pool) Remove(txid chainhash.Hash) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.removeLocked(txid)
}

func (p *Pool) removeLocked(txid chainhash.Hash) {
	entry, ok := p.txs[txid]
	if !ok {
		return
	}
	delete(p.txs, txid)
	for i := range entry.Tx.Msg.Inputs {
		op := utxoset.OutpointOf(&entry.Tx.Msg.Inputs[i])
		if p.spent[op] == txid {
			delete(p.spent, op)
		}
	}
}

// Has reports whether txid is pending.
func (p *Pool) Has(txid chainhash.Hash) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, ok := p.txs[txid]
	return ok
}

// HasUTXO reports whether some pending transaction already claims op.
func (p *Pool) HasUTXO(op utxoset.Outpoint) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, ok := p.spent[op]
	return ok
}

// Get returns the pending entry for txid, if any.
func (p *Pool) Get(txid chainhash.Hash) (*Entry, bool) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	e, ok := p.txs[txid]
	return e, ok
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.txs)
}

// TxIDs returns every pending txid, in insertion order.
func (p *Pool) TxIDs() []chainhash.Hash {
	entries := p.OrderBySeq()
	ids := make([]chainhash.Hash, len(entries))
	for i, e := range entries {
		ids[i] = e.Tx.ID()
	}
	return ids
}

// OrderBySeq returns every pending entry in insertion order, the order
// new peers' initial txinv is announced in.
func (p *Pool) OrderBySeq() []*Entry {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	out := make([]*Entry, 0, len(p.txs))
	for _, e := range p.txs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// OrderByFeesDesc returns every pending entry ordered by descending fee;
// ties break by insertion order, making the order deterministic for a
// given run.
func (p *Pool) OrderByFeesDesc() []*Entry {
	entries := p.OrderBySeq()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Fees > entries[j].Fees })
	return entries
}

// ReconcileWithUTXOSet removes every pending transaction that has an
// input no longer present in utxos, run after every chain mutation. It
// returns the removed txids.
func (p *Pool) ReconcileWithUTXOSet(utxos *utxoset.Set) []chainhash.Hash {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	var stale []chainhash.Hash
	for txid, entry := range p.txs {
		for i := range entry.Tx.Msg.Inputs {
			if _, ok := utxos.Get(&entry.Tx.Msg.Inputs[i]); !ok {
				stale = append(stale, txid)
				break
			}
		}
	}
	for _, txid := range stale {
		p.removeLocked(txid)
	}
	return stale
}
