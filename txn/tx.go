// Package txn is the transaction model: it gives the raw
// wire.Transaction an identity (txid), and the helpers needed to build a
// coinbase and reason about fees.
package txn

import (
	"github.com/pkg/errors"

	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/internal/ecc"
	"github.com/povchain/povnoded/wire"
)

// MinFeeRatePerByte is the minimum accepted fee, in sats per serialized
// byte.
const MinFeeRatePerByte = 1

// Tx pairs a wire.Transaction with its cached txid.
type Tx struct {
	Msg *wire.Transaction
	id  chainhash.Hash
}

// New wraps msg, computing and caching its txid.
func New(msg *wire.Transaction) *Tx {
	return &Tx{Msg: msg, id: msg.TxID()}
}

// ID returns the cached txid.
func (tx *Tx) ID() chainhash.Hash {
	return tx.id
}

// String returns the hex txid, for logging.
func (tx *Tx) String() string {
	return tx.id.String()
}

// BytesLength returns the serialized byte length of the transaction.
func (tx *Tx) BytesLength() int {
	return tx.Msg.BytesLength()
}

// OutputValue returns the sum of all output amounts.
func (tx *Tx) OutputValue() uint64 {
	var total uint64
	for i := range tx.Msg.Outputs {
		total += tx.Msg.Outputs[i].Amount
	}
	return total
}

// IsCoinbaseShape reports whether tx has the structural shape required of
// a coinbase at the given block height: exactly one input whose
// PrevIndex equals height, and exactly one output.
// It does not establish that tx actually is a block's coinbase -- that is
// a property of position (first transaction in the block), checked by the
// consensus package.
func (tx *Tx) IsCoinbaseShape(height uint64) bool {
	return len(tx.Msg.Inputs) == 1 &&
		len(tx.Msg.Outputs) == 1 &&
		tx.Msg.Inputs[0].PrevIndex == uint32(height)
}

// BuildCoinbase constructs the required shape of a coinbase transaction:
// one input carrying the block height and miner message, one output
// paying reward to toPubKey.
func BuildCoinbase(toPubKey *ecc.PublicKey, reward uint64, height uint64, message []byte) (*Tx, error) {
	if len(message) > wire.SignatureSlotLen {
		return nil, errors.Errorf("txn: coinbase message exceeds %d bytes", wire.SignatureSlotLen)
	}

	var in wire.TxInput
	in.PrevIndex = uint32(height)
	copy(in.Signature[:], message)

	var out wire.TxOutput
	out.Amount = reward
	copy(out.PublicKey[:], toPubKey.SerializeUncompressed())

	msg := &wire.Transaction{
		Inputs:  []wire.TxInput{in},
		Outputs: []wire.TxOutput{out},
	}
	return New(msg), nil
}

// CoinbaseMessage returns the miner-chosen data stored in a coinbase's
// sole input, trimmed of trailing zero padding.
func (tx *Tx) CoinbaseMessage() []byte {
	sig := tx.Msg.Inputs[0].Signature
	end := len(sig)
	for end > 0 && sig[end-1] == 0 {
		end--
	}
	return sig[:end]
}

// SignInput signs input i's txid-commitment with priv and stores the
// DER signature, zero-padded to wire.SignatureSlotLen, in that input's
// signature slot.
func (tx *Tx) SignInput(i int, priv *ecc.PrivateKey) error {
	if i < 0 || i >= len(tx.Msg.Inputs) {
		return errors.Errorf("txn: input index %d out of range", i)
	}
	sig, err := ecc.Sign(tx.id, priv)
	if err != nil {
		return errors.Wrap(err, "txn: sign input")
	}
	der := sig.Serialize()
	if len(der) > wire.SignatureSlotLen {
		return errors.Errorf("txn: DER signature of %d bytes exceeds signature slot", len(der))
	}
	var padded [wire.SignatureSlotLen]byte
	copy(padded[:], der)
	tx.Msg.Inputs[i].Signature = padded
	return nil
}

// Fee computes sumIn - sumOut, along with whether it meets
// MinFeeRatePerByte * BytesLength.
func (tx *Tx) Fee(sumIn uint64) (fee uint64, meetsMinimum bool) {
	sumOut := tx.OutputValue()
	if sumIn < sumOut {
		return 0, false
	}
	fee = sumIn - sumOut
	return fee, fee >= uint64(tx.BytesLength())*MinFeeRatePerByte
}
