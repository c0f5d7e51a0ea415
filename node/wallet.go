package node

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/internal/ecc"
	"github.com/povchain/povnoded/peer"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/utxoset"
	"github.com/povchain/povnoded/wire"
)

// InsufficientFundsError reports that the wallet balance cannot cover
// the requested amount plus fees.
type InsufficientFundsError struct {
	Need uint64
	Have uint64
}

func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d sats, have %d", e.Need, e.Have)
}

// key returns the wallet key, generating a fresh one on first use.
func (n *Node) key() (*ecc.PrivateKey, error) {
	n.walletMtx.Lock()
	defer n.walletMtx.Unlock()
	if n.walletKey == nil {
		k, err := ecc.GeneratePrivateKey()
		if err != nil {
			return nil, errors.Wrap(err, "node: generate wallet key")
		}
		n.walletKey = k
	}
	return n.walletKey, nil
}

// Account returns the hex uncompressed public key of the wallet.
func (n *Node) Account() (string, error) {
	k, err := n.key()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(k.PubKey().SerializeUncompressed()), nil
}

// ImportPrivateKey replaces the wallet key with the given 32-byte hex
// scalar.
func (n *Node) ImportPrivateKey(hexKey string) error {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return errors.Wrap(err, "node: private key is not hex")
	}
	k, err := ecc.PrivateKeyFromBytes(raw)
	if err != nil {
		return err
	}
	n.walletMtx.Lock()
	defer n.walletMtx.Unlock()
	n.walletKey = k
	return nil
}

// parsePubKey decodes and validates a 65-byte uncompressed public key.
func parsePubKey(hexStr string) ([ecc.UncompressedPubKeyLen]byte, error) {
	var out [ecc.UncompressedPubKeyLen]byte
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, errors.Wrap(err, "node: public key is not hex")
	}
	if _, err := ecc.PublicKeyFromUncompressed(raw); err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

// resolvePubKey returns the wire form of pubKeyHex, defaulting to the
// wallet key when empty.
func (n *Node) resolvePubKey(pubKeyHex string) ([ecc.UncompressedPubKeyLen]byte, error) {
	if pubKeyHex != "" {
		return parsePubKey(pubKeyHex)
	}
	var out [ecc.UncompressedPubKeyLen]byte
	k, err := n.key()
	if err != nil {
		return out, err
	}
	copy(out[:], k.PubKey().SerializeUncompressed())
	return out, nil
}

// Balance returns the confirmed balance of pubKeyHex, defaulting to the
// wallet key when empty.
func (n *Node) Balance(pubKeyHex string) (uint64, error) {
	pk, err := n.resolvePubKey(pubKeyHex)
	if err != nil {
		return 0, err
	}
	return n.utxos.Get().Balance(pk), nil
}

// Unspent returns every UTXO locked to pubKeyHex, defaulting to the
// wallet key when empty.
func (n *Node) Unspent(pubKeyHex string) ([]*utxoset.UTxOut, error) {
	pk, err := n.resolvePubKey(pubKeyHex)
	if err != nil {
		return nil, err
	}
	return n.utxos.Get().Filter(func(u *utxoset.UTxOut) bool {
		return u.Output.PublicKey == pk
	}), nil
}

// Send builds, signs, and broadcasts a payment of amount sats to
// toPubKeyHex, funded by the wallet key's unspent outputs. The whole
// operation -- input selection, validation, mempool admission, and the
// txinv broadcast -- runs as one serialised engine task.
func (n *Node) Send(toPubKeyHex string, amount uint64) (chainhash.Hash, error) {
	if amount == 0 {
		return chainhash.Hash{}, errors.New("node: send amount must be positive")
	}
	toPub, err := parsePubKey(toPubKeyHex)
	if err != nil {
		return chainhash.Hash{}, err
	}
	key, err := n.key()
	if err != nil {
		return chainhash.Hash{}, err
	}
	var fromPub [ecc.UncompressedPubKeyLen]byte
	copy(fromPub[:], key.PubKey().SerializeUncompressed())

	var txid chainhash.Hash
	err = n.engine.SubmitSync(func() error {
		tx, err := n.buildPayment(key, fromPub, toPub, amount)
		if err != nil {
			return err
		}
		if err := n.engine.AcceptTransaction(tx); err != nil {
			return err
		}
		txid = tx.ID()
		n.peers.Broadcast(peer.TypeTxInv, peer.TxInv{TxIDs: []string{txid.String()}})
		return nil
	})
	return txid, err
}

// buildPayment selects wallet UTXOs not already claimed by the mempool,
// greedily largest-first, until they cover amount plus the minimum fee
// for the resulting transaction size, then signs every input. It must
// run on the engine queue.
func (n *Node) buildPayment(key *ecc.PrivateKey, fromPub, toPub [ecc.UncompressedPubKeyLen]byte, amount uint64) (*txn.Tx, error) {
	spendable := n.utxos.Get().Filter(func(u *utxoset.UTxOut) bool {
		return u.Output.PublicKey == fromPub && !n.pool.HasUTXO(u.Outpoint())
	})
	sort.Slice(spendable, func(i, j int) bool {
		if spendable[i].Output.Amount != spendable[j].Output.Amount {
			return spendable[i].Output.Amount > spendable[j].Output.Amount
		}
		return spendable[i].Outpoint().String() < spendable[j].Outpoint().String()
	})

	feeFor := func(nIn, nOut int) uint64 {
		return uint64(8+wire.TxInputLen*nIn+wire.TxOutputLen*nOut) * txn.MinFeeRatePerByte
	}

	var selected []*utxoset.UTxOut
	var sumIn uint64
	next := 0
	for {
		fee := feeFor(len(selected), 2)
		if len(selected) > 0 && sumIn >= amount+fee {
			break
		}
		if next >= len(spendable) {
			return nil, errors.WithStack(InsufficientFundsError{Need: amount + fee, Have: sumIn})
		}
		selected = append(selected, spendable[next])
		sumIn += spendable[next].Output.Amount
		next++
	}

	fee := feeFor(len(selected), 2)
	change := sumIn - amount - fee

	inputs := make([]wire.TxInput, len(selected))
	for i, u := range selected {
		inputs[i].PrevTxID = u.TxID
		inputs[i].PrevIndex = u.Index
	}
	outputs := []wire.TxOutput{{Amount: amount, PublicKey: toPub}}
	if change > 0 {
		outputs = append(outputs, wire.TxOutput{Amount: change, PublicKey: fromPub})
	}

	tx := txn.New(&wire.Transaction{Inputs: inputs, Outputs: outputs})
	for i := range inputs {
		if err := tx.SignInput(i, key); err != nil {
			return nil, err
		}
	}
	return tx, nil
}
