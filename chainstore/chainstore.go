// Package chainstore is the block graph: blocks keyed by hash, an active
// tip, and a forward "next" pointer per block giving a tree whose active
// chain is the path from genesis following next. Displacing the active
// suffix during a reorg is DisconnectSuffix walking next and deleting
// entries, so no block ever owns another cyclically.
package chainstore

import (
	"github.com/pkg/errors"

	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/wire"
)

type entry struct {
	block *wire.Block
	next  *chainhash.Hash
}

// Store owns every Block by hash.
type Store struct {
	blocks map[chainhash.Hash]*entry
	tip    chainhash.Hash
}

// New constructs a Store whose sole member is genesis, which becomes the
// initial tip.
func New(genesis *wire.Block) *Store {
	hash := genesis.Hash()
	s := &Store{blocks: make(map[chainhash.Hash]*entry)}
	s.blocks[hash] = &entry{block: genesis}
	s.tip = hash
	return s
}

// Tip returns the hash of the active chain's head.
func (s *Store) Tip() chainhash.Hash {
	return s.tip
}

// TipBlock returns the block at the active tip.
func (s *Store) TipBlock() *wire.Block {
	return s.blocks[s.tip].block
}

// SetTip moves the active tip to hash, which must already be stored.
func (s *Store) SetTip(hash chainhash.Hash) error {
	if _, ok := s.blocks[hash]; !ok {
		return errors.Errorf("chainstore: cannot set tip to unknown block %s", hash)
	}
	s.tip = hash
	return nil
}

// Has reports whether hash is known to the store.
func (s *Store) Has(hash chainhash.Hash) bool {
	_, ok := s.blocks[hash]
	return ok
}

// Get returns the block stored under hash.
func (s *Store) Get(hash chainhash.Hash) (*wire.Block, bool) {
	e, ok := s.blocks[hash]
	if !ok {
		return nil, false
	}
	return e.block, true
}

// Insert adds block to the store under its own hash, without linking it
// into the active chain. Used both for ordinary acceptance (followed by
// Connect) and for orphans gathered during gap-fill.
func (s *Store) Insert(block *wire.Block) {
	s.blocks[block.Hash()] = &entry{block: block}
}

// Remove deletes hash from the store.
func (s *Store) Remove(hash chainhash.Hash) {
	delete(s.blocks, hash)
}

// Next returns the active successor of hash, if any.
func (s *Store) Next(hash chainhash.Hash) (chainhash.Hash, bool) {
	e, ok := s.blocks[hash]
	if !ok || e.next == nil {
		return chainhash.Hash{}, false
	}
	return *e.next, true
}

// IsChainTip reports whether hash has no active successor recorded --
// i.e. whether connecting a child directly to it would be an extension of
// the current active chain rather than a reorg.
func (s *Store) IsChainTip(hash chainhash.Hash) bool {
	_, has := s.Next(hash)
	return !has
}

// Connect records child as the active successor of parent.
func (s *Store) Connect(parent, child chainhash.Hash) error {
	e, ok := s.blocks[parent]
	if !ok {
		return errors.Errorf("chainstore: cannot connect child to unknown parent %s", parent)
	}
	childHash := child
	e.next = &childHash
	return nil
}

// DisconnectSuffix walks the active chain forward from (and including)
// from, removing every block from the store, and clears the parent's next
// pointer. It returns the removed hashes in chain order. Used to discard
// the old active segment during a reorg commit.
func (s *Store) DisconnectSuffix(from chainhash.Hash) []chainhash.Hash {
	if e, ok := s.blocks[from]; ok {
		if pe, ok := s.blocks[e.block.PrevHash]; ok && pe.next != nil && *pe.next == from {
			pe.next = nil
		}
	}

	var removed []chainhash.Hash
	cur := from
	for {
		e, ok := s.blocks[cur]
		if !ok {
			break
		}
		var next *chainhash.Hash
		if e.next != nil {
			n := *e.next
			next = &n
		}
		removed = append(removed, cur)
		delete(s.blocks, cur)
		if next == nil {
			break
		}
		cur = *next
	}
	return removed
}

// Parent returns the hash of the block preceding hash in the chain (its
// prev_hash), if hash is known.
func (s *Store) Parent(hash chainhash.Hash) (chainhash.Hash, bool) {
	e, ok := s.blocks[hash]
	if !ok {
		return chainhash.Hash{}, false
	}
	return e.block.PrevHash, true
}

// Top walks n parents back from the tip via prev_hash.
func (s *Store) Top(n int) (*wire.Block, error) {
	return s.AncestorOf(s.tip, n)
}

// AncestorOf walks n parents back from hash via prev_hash.
func (s *Store) AncestorOf(hash chainhash.Hash, n int) (*wire.Block, error) {
	cur := hash
	for i := 0; i < n; i++ {
		e, ok := s.blocks[cur]
		if !ok {
			return nil, errors.Errorf("chainstore: ancestor walk fell off known chain at %s", cur)
		}
		if e.block.Height == 0 {
			return nil, errors.Errorf("chainstore: ancestor walk requested %d blocks past genesis", n)
		}
		cur = e.block.PrevHash
	}
	e, ok := s.blocks[cur]
	if !ok {
		return nil, errors.Errorf("chainstore: ancestor %s not known", cur)
	}
	return e.block, nil
}
