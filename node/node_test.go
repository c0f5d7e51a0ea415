package node

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/povchain/povnoded/config"
	"github.com/povchain/povnoded/consensus"
	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/internal/ecc"
	"github.com/povchain/povnoded/txn"
)

func newTestNode(t *testing.T, listenAddress string) *Node {
	t.Helper()
	cfg := config.Default()
	cfg.ListenAddress = listenAddress
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	t.Cleanup(n.Stop)
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func testKeyHex(seed string) string {
	sum := chainhash.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func TestAccountAndImportPrivateKey(t *testing.T) {
	n := newTestNode(t, "")

	first, err := n.Account()
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if len(first) != 2*ecc.UncompressedPubKeyLen {
		t.Fatalf("account pubkey hex length = %d", len(first))
	}

	if err := n.ImportPrivateKey(testKeyHex("imported wallet key")); err != nil {
		t.Fatalf("ImportPrivateKey: %v", err)
	}
	second, err := n.Account()
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if first == second {
		t.Fatalf("importing a key did not change the account")
	}

	if err := n.ImportPrivateKey("zz"); err == nil {
		t.Fatalf("expected an error importing a non-hex key")
	}
}

func TestMineAdvancesTipAndBalance(t *testing.T) {
	n := newTestNode(t, "")
	if err := n.ImportPrivateKey(testKeyHex("mining wallet")); err != nil {
		t.Fatalf("ImportPrivateKey: %v", err)
	}

	blk, err := n.Mine("test block 1")
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if blk == nil {
		t.Fatalf("Mine cancelled without a competing block")
	}

	if n.Height() != 1 || n.TipHash() != blk.Hash() {
		t.Fatalf("tip = %s at height %d, want the mined block", n.TipHash(), n.Height())
	}
	if string(txn.New(&blk.Txs[0]).CoinbaseMessage()) != "test block 1" {
		t.Fatalf("coinbase message = %q", txn.New(&blk.Txs[0]).CoinbaseMessage())
	}

	balance, err := n.Balance("")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != consensus.Subsidy(1) {
		t.Fatalf("balance = %d, want one subsidy", balance)
	}

	unspent, err := n.Unspent("")
	if err != nil {
		t.Fatalf("Unspent: %v", err)
	}
	if len(unspent) != 1 {
		t.Fatalf("unspent count = %d, want 1", len(unspent))
	}
}

func TestSendAndConfirm(t *testing.T) {
	n := newTestNode(t, "")
	if err := n.ImportPrivateKey(testKeyHex("sender wallet")); err != nil {
		t.Fatalf("ImportPrivateKey: %v", err)
	}
	if _, err := n.Mine("funding"); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	recvSum := chainhash.Sum([]byte("receiver wallet"))
	recvKey, err := ecc.PrivateKeyFromBytes(recvSum[:])
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	recvHex := hex.EncodeToString(recvKey.PubKey().SerializeUncompressed())

	const amount = 100_000_000
	txid, err := n.Send(recvHex, amount)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok := n.Tx(txid.String()); !ok {
		t.Fatalf("sent transaction not findable while pending")
	}

	// A second spend of the same funds is refused while the first is
	// pending.
	if _, err := n.Send(recvHex, consensus.Subsidy(1)-amount); err == nil {
		t.Fatalf("send exceeding unclaimed funds accepted")
	}

	if _, err := n.Mine("confirming"); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	got, err := n.Balance(recvHex)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if got != amount {
		t.Fatalf("receiver balance = %d, want %d", got, amount)
	}
	if _, ok := n.Tx(txid.String()); !ok {
		t.Fatalf("confirmed transaction not findable in the chain")
	}
}

func TestSendInsufficientFunds(t *testing.T) {
	n := newTestNode(t, "")
	recvSum := chainhash.Sum([]byte("poor receiver"))
	recvKey, err := ecc.PrivateKeyFromBytes(recvSum[:])
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}

	_, err = n.Send(hex.EncodeToString(recvKey.PubKey().SerializeUncompressed()), 1_000)
	if err == nil {
		t.Fatalf("send from an empty wallet accepted")
	}
	var insufficient InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("error %v is not InsufficientFundsError", err)
	}
}

func TestTwoNodeSync(t *testing.T) {
	a := newTestNode(t, "127.0.0.1:38801")
	b := newTestNode(t, "127.0.0.1:38802")
	if err := a.Start(); err != nil {
		t.Fatalf("start node a: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("start node b: %v", err)
	}

	if _, err := a.Mine("test block 1"); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	if err := b.AddPeer("127.0.0.1:38801"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if !waitFor(t, 3*time.Second, func() bool { return b.Height() == 1 }) {
		t.Fatalf("node b never synced the mined block")
	}
	if b.TipHash() != a.TipHash() {
		t.Fatalf("tips diverge after sync: %s vs %s", b.TipHash(), a.TipHash())
	}

	blk, ok := b.Block("")
	if !ok {
		t.Fatalf("node b has no tip block")
	}
	if string(txn.New(&blk.Txs[0]).CoinbaseMessage()) != "test block 1" {
		t.Fatalf("synced block data = %q", txn.New(&blk.Txs[0]).CoinbaseMessage())
	}

	// Bidirectional: a block mined by b reaches a.
	if _, err := b.Mine("test block 2"); err != nil {
		t.Fatalf("Mine on b: %v", err)
	}
	if !waitFor(t, 3*time.Second, func() bool { return a.Height() == 2 }) {
		t.Fatalf("node a never received node b's block")
	}
	if a.TipHash() != b.TipHash() {
		t.Fatalf("tips diverge after bidirectional sync")
	}
}

func TestMempoolSyncOnConnect(t *testing.T) {
	a := newTestNode(t, "127.0.0.1:38811")
	b := newTestNode(t, "127.0.0.1:38812")
	if err := a.Start(); err != nil {
		t.Fatalf("start node a: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("start node b: %v", err)
	}

	if err := a.ImportPrivateKey(testKeyHex("mempool sync wallet")); err != nil {
		t.Fatalf("ImportPrivateKey: %v", err)
	}
	if _, err := a.Mine("funding"); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	recvSum := chainhash.Sum([]byte("mempool sync receiver"))
	recvKey, err := ecc.PrivateKeyFromBytes(recvSum[:])
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes: %v", err)
	}
	txid, err := a.Send(hex.EncodeToString(recvKey.PubKey().SerializeUncompressed()), 100_000_000)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := b.AddPeer("127.0.0.1:38811"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if !waitFor(t, 3*time.Second, func() bool {
		_, ok := b.Tx(txid.String())
		return ok
	}) {
		t.Fatalf("node b never learned the pending transaction")
	}
}

func TestSelfConnect(t *testing.T) {
	n := newTestNode(t, "127.0.0.1:38821")
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Dialing our own advertised address must tear the socket down once
	// the handshake reveals the shared node id.
	if err := n.AddPeer("127.0.0.1:38821"); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if !waitFor(t, 3*time.Second, func() bool { return len(n.Peers()) == 0 }) {
		t.Fatalf("self-connection not torn down: %d peers", len(n.Peers()))
	}
	if n.Height() != 0 {
		t.Fatalf("self-connection mutated chain state")
	}
}
