package consensus_test

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"

	"github.com/povchain/povnoded/chainstore"
	"github.com/povchain/povnoded/consensus"
	"github.com/povchain/povnoded/genesis"
	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/internal/ecc"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/utxoset"
	"github.com/povchain/povnoded/wire"
)

// mineBlock grinds a nonce for a block connecting to parent. Genesis
// difficulty is 1, so the search terminates after a couple of trials.
func mineBlock(t *testing.T, parent *wire.Block, txs []wire.Transaction, difficulty uint8, ts uint64) *wire.Block {
	t.Helper()
	blk := &wire.Block{
		Height:     parent.Height + 1,
		Timestamp:  ts,
		PrevHash:   parent.Hash(),
		Difficulty: difficulty,
		Txs:        txs,
	}
	for counter := uint64(0); ; counter++ {
		binary.BigEndian.PutUint64(blk.Nonce[wire.NonceLen-8:], counter)
		if consensus.CheckProofOfWork(blk) == nil {
			return blk
		}
	}
}

// chainAtGenesis builds a store and UTXO set holding exactly genesis.
func chainAtGenesis(t *testing.T) (*chainstore.Store, *utxoset.Set, *wire.Block) {
	t.Helper()
	gen, err := genesis.Block()
	if err != nil {
		t.Fatalf("genesis.Block: %v", err)
	}
	store := chainstore.New(gen)
	set := utxoset.New()
	if _, err := consensus.ApplyTransactions(set, gen); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	return store, set, gen
}

func coinbaseFor(t *testing.T, height uint64, fees uint64) wire.Transaction {
	t.Helper()
	key, err := genesis.PrivateKey()
	if err != nil {
		t.Fatalf("genesis.PrivateKey: %v", err)
	}
	cb, err := txn.BuildCoinbase(key.PubKey(), consensus.Subsidy(height)+fees, height, []byte("test"))
	if err != nil {
		t.Fatalf("BuildCoinbase: %v", err)
	}
	return *cb.Msg
}

// spendGenesis builds a signed transaction spending the genesis coinbase:
// amount to a second key, change minus fee back to the genesis key.
func spendGenesis(t *testing.T, gen *wire.Block, amount uint64) *txn.Tx {
	t.Helper()
	genKey, err := genesis.PrivateKey()
	if err != nil {
		t.Fatalf("genesis.PrivateKey: %v", err)
	}
	recvSeed := chainhash.Sum([]byte("validate test receiver"))
	recvKey, err := ecc.PrivateKeyFromBytes(recvSeed[:])
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}

	coinbase := txn.New(&gen.Txs[0])
	var in wire.TxInput
	in.PrevTxID = coinbase.ID()
	in.PrevIndex = 0

	fee := uint64(8 + wire.TxInputLen + 2*wire.TxOutputLen)
	var payOut, changeOut wire.TxOutput
	payOut.Amount = amount
	copy(payOut.PublicKey[:], recvKey.PubKey().SerializeUncompressed())
	changeOut.Amount = genesis.Reward - amount - fee
	copy(changeOut.PublicKey[:], genKey.PubKey().SerializeUncompressed())

	tx := txn.New(&wire.Transaction{
		Inputs:  []wire.TxInput{in},
		Outputs: []wire.TxOutput{payOut, changeOut},
	})
	if err := tx.SignInput(0, genKey); err != nil {
		t.Fatalf("SignInput: %v", err)
	}
	return tx
}

func ruleKind(t *testing.T, err error) consensus.ErrorKind {
	t.Helper()
	var re consensus.RuleError
	if !errors.As(err, &re) {
		t.Fatalf("error %v is not a RuleError", err)
	}
	return re.Kind
}

func TestValidateBlockConnectionAccepts(t *testing.T) {
	store, set, gen := chainAtGenesis(t)
	ts := gen.Timestamp + 10_000
	blk := mineBlock(t, gen, []wire.Transaction{coinbaseFor(t, 1, 0)}, 1, ts)

	if err := consensus.ValidateBlockConnection(store, gen, blk, ts, consensus.DefaultMaxBlockBytes); err != nil {
		t.Fatalf("valid extension rejected: %v", err)
	}
	if _, err := consensus.ApplyTransactions(set.Copy(), blk); err != nil {
		t.Fatalf("valid block's transactions rejected: %v", err)
	}
}

func TestValidateBlockConnectionRejects(t *testing.T) {
	store, _, gen := chainAtGenesis(t)
	ts := gen.Timestamp + 10_000
	coinbase := []wire.Transaction{coinbaseFor(t, 1, 0)}

	tests := []struct {
		name     string
		mutate   func(*wire.Block)
		now      uint64
		maxBytes int
		kind     consensus.ErrorKind
	}{
		{
			name:     "wrong height",
			mutate:   func(b *wire.Block) { b.Height = 5 },
			now:      ts,
			maxBytes: consensus.DefaultMaxBlockBytes,
			kind:     consensus.ErrContinuity,
		},
		{
			name:     "wrong prev hash",
			mutate:   func(b *wire.Block) { b.PrevHash = chainhash.Sum([]byte("elsewhere")) },
			now:      ts,
			maxBytes: consensus.DefaultMaxBlockBytes,
			kind:     consensus.ErrContinuity,
		},
		{
			name:     "timestamp before median time past",
			mutate:   func(b *wire.Block) { b.Timestamp = gen.Timestamp - 1 },
			now:      ts,
			maxBytes: consensus.DefaultMaxBlockBytes,
			kind:     consensus.ErrContinuity,
		},
		{
			name:     "timestamp too far in the future",
			mutate:   func(b *wire.Block) {},
			now:      ts - 130_000,
			maxBytes: consensus.DefaultMaxBlockBytes,
			kind:     consensus.ErrContinuity,
		},
		{
			name:     "wrong difficulty",
			mutate:   func(b *wire.Block) { b.Difficulty = 2 },
			now:      ts,
			maxBytes: consensus.DefaultMaxBlockBytes,
			kind:     consensus.ErrContinuity,
		},
		{
			name:     "transaction bytes exceed capacity",
			mutate:   func(b *wire.Block) {},
			now:      ts,
			maxBytes: 100,
			kind:     consensus.ErrCapacity,
		},
	}
	for _, test := range tests {
		blk := mineBlock(t, gen, coinbase, 1, ts)
		test.mutate(blk)
		err := consensus.ValidateBlockConnection(store, gen, blk, test.now, test.maxBytes)
		if err == nil {
			t.Errorf("%s: block accepted", test.name)
			continue
		}
		if got := ruleKind(t, err); got != test.kind {
			t.Errorf("%s: error kind = %s, want %s", test.name, got, test.kind)
		}
	}
}

func TestValidateBlockConnectionRejectsBadProof(t *testing.T) {
	store, _, gen := chainAtGenesis(t)
	ts := gen.Timestamp + 10_000

	// Grind for a nonce whose hash has NO leading zero bit, so the block
	// fails its declared difficulty of 1.
	blk := &wire.Block{
		Height:     1,
		Timestamp:  ts,
		PrevHash:   gen.Hash(),
		Difficulty: 1,
		Txs:        []wire.Transaction{coinbaseFor(t, 1, 0)},
	}
	for counter := uint64(0); ; counter++ {
		binary.BigEndian.PutUint64(blk.Nonce[wire.NonceLen-8:], counter)
		if blk.Hash().LeadingZeroBits() == 0 {
			break
		}
	}

	err := consensus.ValidateBlockConnection(store, gen, blk, ts, consensus.DefaultMaxBlockBytes)
	if err == nil {
		t.Fatalf("block with failing proof accepted")
	}
	if got := ruleKind(t, err); got != consensus.ErrProof {
		t.Fatalf("error kind = %s, want proof", got)
	}
}

func TestApplyTransactionsSpend(t *testing.T) {
	_, set, gen := chainAtGenesis(t)
	tx := spendGenesis(t, gen, 1_000_000_000)
	fee := uint64(tx.BytesLength())

	blk := mineBlock(t, gen, []wire.Transaction{coinbaseFor(t, 1, fee), *tx.Msg}, 1, gen.Timestamp+10_000)
	fees, err := consensus.ApplyTransactions(set, blk)
	if err != nil {
		t.Fatalf("ApplyTransactions: %v", err)
	}
	if len(fees) != 1 || fees[0] != fee {
		t.Fatalf("fees = %v, want [%d]", fees, fee)
	}

	// The spent coinbase is gone; the spend's outputs and the new
	// coinbase output are present.
	coinbase := txn.New(&gen.Txs[0])
	spent := wire.TxInput{PrevTxID: coinbase.ID(), PrevIndex: 0}
	if _, ok := set.Get(&spent); ok {
		t.Fatalf("spent genesis coinbase still in UTXO set")
	}
	for i := range tx.Msg.Outputs {
		op := utxoset.Outpoint{TxID: tx.ID(), Index: uint32(i)}
		if _, ok := set.GetOutpoint(op); !ok {
			t.Fatalf("output %d of spend missing from UTXO set", i)
		}
	}
}

func TestApplyTransactionsRejections(t *testing.T) {
	_, _, gen := chainAtGenesis(t)
	ts := gen.Timestamp + 10_000

	makeSet := func(t *testing.T) *utxoset.Set {
		set := utxoset.New()
		if _, err := consensus.ApplyTransactions(set, gen); err != nil {
			t.Fatalf("apply genesis: %v", err)
		}
		return set
	}

	t.Run("missing input", func(t *testing.T) {
		tx := spendGenesis(t, gen, 1_000)
		tx.Msg.Inputs[0].PrevIndex = 9 // no such output
		blk := mineBlock(t, gen, []wire.Transaction{coinbaseFor(t, 1, 0), *tx.Msg}, 1, ts)
		_, err := consensus.ApplyTransactions(makeSet(t), blk)
		if err == nil || ruleKind(t, err) != consensus.ErrTx {
			t.Fatalf("missing input not rejected as tx error: %v", err)
		}
	})

	t.Run("unsigned input", func(t *testing.T) {
		tx := spendGenesis(t, gen, 1_000)
		tx.Msg.Inputs[0].Signature = [wire.SignatureSlotLen]byte{}
		blk := mineBlock(t, gen, []wire.Transaction{coinbaseFor(t, 1, 0), *tx.Msg}, 1, ts)
		_, err := consensus.ApplyTransactions(makeSet(t), blk)
		if err == nil || ruleKind(t, err) != consensus.ErrTx {
			t.Fatalf("unsigned input not rejected as tx error: %v", err)
		}
	})

	t.Run("wrong key signature", func(t *testing.T) {
		tx := spendGenesis(t, gen, 1_000)
		otherSeed := chainhash.Sum([]byte("not the genesis key"))
		otherKey, err := ecc.PrivateKeyFromBytes(otherSeed[:])
		if err != nil {
			t.Fatalf("PrivateKeyFromBytes: %v", err)
		}
		if err := tx.SignInput(0, otherKey); err != nil {
			t.Fatalf("SignInput: %v", err)
		}
		blk := mineBlock(t, gen, []wire.Transaction{coinbaseFor(t, 1, 0), *tx.Msg}, 1, ts)
		_, err = consensus.ApplyTransactions(makeSet(t), blk)
		if err == nil || ruleKind(t, err) != consensus.ErrTx {
			t.Fatalf("wrong-key signature not rejected as tx error: %v", err)
		}
	})

	t.Run("zero fee", func(t *testing.T) {
		genKey, err := genesis.PrivateKey()
		if err != nil {
			t.Fatalf("genesis.PrivateKey: %v", err)
		}
		coinbase := txn.New(&gen.Txs[0])
		var in wire.TxInput
		in.PrevTxID = coinbase.ID()
		var out wire.TxOutput
		out.Amount = genesis.Reward // sum_in == sum_out, fee 0
		copy(out.PublicKey[:], genKey.PubKey().SerializeUncompressed())
		tx := txn.New(&wire.Transaction{Inputs: []wire.TxInput{in}, Outputs: []wire.TxOutput{out}})
		if err := tx.SignInput(0, genKey); err != nil {
			t.Fatalf("SignInput: %v", err)
		}
		blk := mineBlock(t, gen, []wire.Transaction{coinbaseFor(t, 1, 0), *tx.Msg}, 1, ts)
		_, err = consensus.ApplyTransactions(makeSet(t), blk)
		if err == nil || ruleKind(t, err) != consensus.ErrTx {
			t.Fatalf("zero-fee transaction not rejected as tx error: %v", err)
		}
	})

	t.Run("intra-block double spend", func(t *testing.T) {
		tx1 := spendGenesis(t, gen, 1_000)
		tx2 := spendGenesis(t, gen, 2_000)
		fees := uint64(tx1.BytesLength())
		blk := mineBlock(t, gen, []wire.Transaction{coinbaseFor(t, 1, fees), *tx1.Msg, *tx2.Msg}, 1, ts)
		_, err := consensus.ApplyTransactions(makeSet(t), blk)
		if err == nil || ruleKind(t, err) != consensus.ErrTx {
			t.Fatalf("intra-block double spend not rejected as tx error: %v", err)
		}
	})

	t.Run("coinbase overpays", func(t *testing.T) {
		blk := mineBlock(t, gen, []wire.Transaction{coinbaseFor(t, 1, 1)}, 1, ts)
		_, err := consensus.ApplyTransactions(makeSet(t), blk)
		if err == nil || ruleKind(t, err) != consensus.ErrCoinbase {
			t.Fatalf("overpaying coinbase not rejected: %v", err)
		}
	})

	t.Run("coinbase wrong shape", func(t *testing.T) {
		cb := coinbaseFor(t, 2, 0) // carries height 2 in a height-1 block
		blk := mineBlock(t, gen, []wire.Transaction{cb}, 1, ts)
		_, err := consensus.ApplyTransactions(makeSet(t), blk)
		if err == nil || ruleKind(t, err) != consensus.ErrCoinbase {
			t.Fatalf("mis-heighted coinbase not rejected: %v", err)
		}
	})
}
