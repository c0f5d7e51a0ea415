// Package miner implements the cooperative nonce search: a three-state
// machine (searching, cancelled, found) driven in bounded chunks so
// other tasks -- chain ingestion, peer I/O -- still make progress while
// a candidate is mined.
package miner

import (
	"crypto/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/povchain/povnoded/chainstore"
	"github.com/povchain/povnoded/consensus"
	"github.com/povchain/povnoded/internal/ecc"
	"github.com/povchain/povnoded/mempool"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/wire"
)

// chunkSize is the number of nonce trials attempted between cooperative
// yields.
const chunkSize = 100

// Outcome is a miner's terminal state.
type Outcome int

const (
	// OutcomeNone indicates the miner has not yet reached a terminal
	// state.
	OutcomeNone Outcome = iota
	// OutcomeFound indicates a valid nonce was discovered.
	OutcomeFound
	// OutcomeCancelled indicates Cancel was observed before a nonce was
	// found.
	OutcomeCancelled
)

// Miner searches for a nonce satisfying a single candidate block's
// declared difficulty. It holds no shared state beyond the candidate it
// owns.
type Miner struct {
	candidate wire.Block
	cancelled int32 // atomic

	mtx     sync.Mutex
	outcome Outcome
	result  *wire.Block
}

// New returns a Miner targeting candidate, which must already have the
// correct height, prev_hash, difficulty, and transaction set, with a
// zeroed nonce.
func New(candidate *wire.Block) *Miner {
	return &Miner{candidate: *candidate}
}

// Cancel requests that the search terminate with OutcomeCancelled at the
// next cooperative yield. It is safe to call at any time, including after
// the miner has finished.
func (m *Miner) Cancel() {
	atomic.StoreInt32(&m.cancelled, 1)
}

// IsFinished reports whether a terminal state has been reached.
func (m *Miner) IsFinished() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.outcome != OutcomeNone
}

// Result returns the miner's terminal state and, if OutcomeFound, the
// mined block. It is idempotent: calling it repeatedly after completion
// always returns the same result.
func (m *Miner) Result() (Outcome, *wire.Block) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.outcome, m.result
}

func (m *Miner) finish(outcome Outcome, block *wire.Block) (Outcome, *wire.Block) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.outcome == OutcomeNone {
		m.outcome = outcome
		m.result = block
	}
	return m.outcome, m.result
}

// Run performs the cooperative nonce search to completion, assigning a
// fresh random 32-byte nonce per trial and testing proof validity, in
// chunks of chunkSize trials between yields where Cancel is observed.
// Run is idempotent: if the miner already reached a terminal state, it
// returns that state immediately without searching further. It may run
// on a dedicated goroutine; the search never holds the chain-mutation
// lock.
func (m *Miner) Run() (Outcome, *wire.Block) {
	if outcome, block := m.Result(); outcome != OutcomeNone {
		return outcome, block
	}

	candidate := m.candidate
	for {
		if atomic.LoadInt32(&m.cancelled) != 0 {
			return m.finish(OutcomeCancelled, nil)
		}
		for i := 0; i < chunkSize; i++ {
			if _, err := rand.Read(candidate.Nonce[:]); err != nil {
				continue
			}
			if consensus.CheckProofOfWork(&candidate) == nil {
				found := candidate
				return m.finish(OutcomeFound, &found)
			}
		}
		runtime.Gosched()
	}
}

// BuildCandidate assembles a candidate block: snapshot the tip and
// compute the required difficulty, greedily include mempool transactions
// in fee-descending order while they fit maxBlockBytes, and pay the
// coinbase the subsidy plus the collected fees.
func BuildCandidate(store *chainstore.Store, pool *mempool.Pool, toPubKey *ecc.PublicKey, message []byte, maxBlockBytes int, nowMs uint64) (*wire.Block, error) {
	tip := store.TipBlock()
	if tip == nil {
		return nil, errors.New("miner: chain store has no tip")
	}

	difficulty, err := consensus.ExpectedDifficulty(store, tip)
	if err != nil {
		return nil, errors.Wrap(err, "miner: compute expected difficulty")
	}
	height := tip.Height + 1

	// The coinbase's own bytes count against the block capacity too.
	const coinbaseBytes = 8 + wire.TxInputLen + wire.TxOutputLen

	var selected []wire.Transaction
	totalBytes := coinbaseBytes
	var totalFees uint64
	for _, entry := range pool.OrderByFeesDesc() {
		size := entry.Tx.BytesLength()
		if totalBytes+size > maxBlockBytes {
			continue
		}
		selected = append(selected, *entry.Tx.Msg)
		totalBytes += size
		totalFees += entry.Fees
	}

	coinbase, err := txn.BuildCoinbase(toPubKey, consensus.Subsidy(height)+totalFees, height, message)
	if err != nil {
		return nil, errors.Wrap(err, "miner: build coinbase")
	}

	txs := make([]wire.Transaction, 0, 1+len(selected))
	txs = append(txs, *coinbase.Msg)
	txs = append(txs, selected...)

	return &wire.Block{
		Height:     height,
		Timestamp:  nowMs,
		PrevHash:   tip.Hash(),
		Difficulty: difficulty,
		Txs:        txs,
	}, nil
}
