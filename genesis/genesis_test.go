package genesis

import (
	"bytes"
	"testing"

	"github.com/povchain/povnoded/consensus"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/wire"
)

func TestBlockIsDeterministic(t *testing.T) {
	first, err := Block()
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	second, err := Block()
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if first.Hash() != second.Hash() {
		t.Fatalf("genesis hashes differ across constructions: %s vs %s", first.Hash(), second.Hash())
	}
}

func TestBlockShape(t *testing.T) {
	blk, err := Block()
	if err != nil {
		t.Fatalf("Block: %v", err)
	}

	if blk.Height != 0 {
		t.Fatalf("height = %d, want 0", blk.Height)
	}
	if blk.Timestamp != Timestamp {
		t.Fatalf("timestamp = %d, want %d", blk.Timestamp, Timestamp)
	}
	if !blk.PrevHash.IsZero() {
		t.Fatalf("prev hash = %s, want all zeros", blk.PrevHash)
	}
	if blk.Difficulty != Difficulty {
		t.Fatalf("difficulty = %d, want %d", blk.Difficulty, Difficulty)
	}
	if err := consensus.CheckProofOfWork(blk); err != nil {
		t.Fatalf("genesis fails its own proof: %v", err)
	}
}

func TestCoinbase(t *testing.T) {
	blk, err := Block()
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if len(blk.Txs) != 1 {
		t.Fatalf("genesis carries %d transactions, want 1", len(blk.Txs))
	}

	coinbase := txn.New(&blk.Txs[0])
	if !coinbase.IsCoinbaseShape(0) {
		t.Fatalf("genesis coinbase does not have coinbase shape at height 0")
	}
	if coinbase.OutputValue() != Reward {
		t.Fatalf("genesis pays %d, want %d", coinbase.OutputValue(), Reward)
	}
	if !bytes.Equal(coinbase.CoinbaseMessage(), CoinbaseMessage) {
		t.Fatalf("coinbase message = %q", coinbase.CoinbaseMessage())
	}

	priv, err := PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey: %v", err)
	}
	var want [65]byte
	copy(want[:], priv.PubKey().SerializeUncompressed())
	if blk.Txs[0].Outputs[0].PublicKey != want {
		t.Fatalf("genesis coinbase not locked to the genesis key")
	}
}

func TestRoundTripPreservesHash(t *testing.T) {
	blk, err := Block()
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	decoded, err := wire.DeserializeBlock(blk.Serialize())
	if err != nil {
		t.Fatalf("DeserializeBlock: %v", err)
	}
	if decoded.Hash() != blk.Hash() {
		t.Fatalf("genesis hash not preserved across serialization")
	}
}
