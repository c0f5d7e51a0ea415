package utxoset

import (
	"testing"

	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/wire"
)

func testUTXO(t *testing.T, seed string, amount uint64, pubKeyByte byte) *UTxOut {
	t.Helper()
	var out wire.TxOutput
	out.Amount = amount
	out.PublicKey[0] = 0x04
	out.PublicKey[1] = pubKeyByte

	// Distinct amount/pubkey combinations yield distinct txids, keeping
	// the map keys apart.
	tx := txn.New(&wire.Transaction{Outputs: []wire.TxOutput{out}})
	return FromOutput(chainhash.Sum([]byte(seed)), tx, 0)
}

func TestAddGetRemove(t *testing.T) {
	s := New()
	u := testUTXO(t, "block a", 100, 1)
	s.Add(u)

	in := wire.TxInput{PrevTxID: u.TxID, PrevIndex: u.Index}
	got, ok := s.Get(&in)
	if !ok || got.Output.Amount != 100 {
		t.Fatalf("Get after Add: got %+v, ok=%v", got, ok)
	}

	s.RemoveInput(&in)
	if _, ok := s.Get(&in); ok {
		t.Fatalf("entry still present after RemoveInput")
	}

	// Removal is idempotent on a missing entry.
	s.RemoveInput(&in)
	if s.Len() != 0 {
		t.Fatalf("Len = %d after removing everything", s.Len())
	}
}

func TestBalance(t *testing.T) {
	s := New()
	a := testUTXO(t, "a", 100, 1)
	b := testUTXO(t, "b", 250, 1)
	c := testUTXO(t, "c", 999, 2)
	s.Add(a)
	s.Add(b)
	s.Add(c)

	if got := s.Balance(a.Output.PublicKey); got != 350 {
		t.Fatalf("Balance = %d, want 350", got)
	}
	if got := s.Balance(c.Output.PublicKey); got != 999 {
		t.Fatalf("Balance = %d, want 999", got)
	}
	var unknown [65]byte
	if got := s.Balance(unknown); got != 0 {
		t.Fatalf("Balance of unknown key = %d, want 0", got)
	}
}

func TestFilter(t *testing.T) {
	s := New()
	s.Add(testUTXO(t, "small", 10, 1))
	s.Add(testUTXO(t, "large", 1000, 1))

	big := s.Filter(func(u *UTxOut) bool { return u.Output.Amount >= 100 })
	if len(big) != 1 || big[0].Output.Amount != 1000 {
		t.Fatalf("Filter returned %d entries, want the single large one", len(big))
	}
}

func TestCopyIsIndependent(t *testing.T) {
	s := New()
	u := testUTXO(t, "shared", 77, 1)
	s.Add(u)

	clone := s.Copy()
	clone.Remove(u.Outpoint())

	if _, ok := s.GetOutpoint(u.Outpoint()); !ok {
		t.Fatalf("removing from the copy mutated the original")
	}
	if clone.Len() != 0 {
		t.Fatalf("copy Len = %d after removal, want 0", clone.Len())
	}
}

func TestRefReplace(t *testing.T) {
	first := New()
	ref := NewRef(first)
	if ref.Get() != first {
		t.Fatalf("Ref does not return its initial set")
	}

	second := New()
	second.Add(testUTXO(t, "next tip", 5, 1))
	ref.Replace(second)
	if ref.Get() != second || ref.Get().Len() != 1 {
		t.Fatalf("Ref did not swap to the replacement set")
	}
}
