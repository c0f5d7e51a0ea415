package consensus

import (
	"github.com/pkg/errors"

	"github.com/povchain/povnoded/chainstore"
	"github.com/povchain/povnoded/internal/ecc"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/utxoset"
	"github.com/povchain/povnoded/wire"
)

// CheckProofOfWork verifies that block's hash has at least block.Difficulty
// leading zero bits, MSB-first over the 32-byte digest.
func CheckProofOfWork(block *wire.Block) error {
	hash := block.Hash()
	if hash.LeadingZeroBits() < int(block.Difficulty) {
		return ruleError(ErrProof, "block hash does not satisfy its declared difficulty")
	}
	return nil
}

// ValidateBlockConnection checks every contextual rule for connecting
// block after parent: continuity, timestamps, difficulty, capacity, and
// proof of work. store must already contain parent and
// its recent ancestors (for MTP/retarget lookups). now is the validator's
// current time in milliseconds, taken as an explicit parameter so tests
// need not monkeypatch a clock.
func ValidateBlockConnection(store *chainstore.Store, parent, block *wire.Block, now uint64, maxBlockBytes int) error {
	if block.Height != parent.Height+1 {
		return ruleError(ErrContinuity, "block height does not follow parent")
	}

	mtp, err := MTP(store, parent)
	if err != nil {
		return err
	}
	if block.Timestamp < mtp {
		return ruleError(ErrContinuity, "block timestamp is before median time past")
	}
	if block.Timestamp > now+MaxFutureDriftMs {
		return ruleError(ErrContinuity, "block timestamp too far in the future")
	}

	expectedDifficulty, err := ExpectedDifficulty(store, parent)
	if err != nil {
		return err
	}
	if block.Difficulty != expectedDifficulty {
		return ruleError(ErrContinuity, "block difficulty does not match expected retarget")
	}

	if err := CheckProofOfWork(parent); err != nil {
		return errors.Wrap(err, "parent block's own proof of work is invalid")
	}

	if block.TxBytesLength() > maxBlockBytes {
		return ruleError(ErrCapacity, "block transaction bytes exceed maximum")
	}

	if block.PrevHash != parent.Hash() {
		return ruleError(ErrContinuity, "block prev_hash does not match parent hash")
	}

	if err := CheckProofOfWork(block); err != nil {
		return err
	}

	return nil
}

// ApplyTransactions validates and applies every transaction in block --
// the non-coinbase transactions in block order, then the coinbase, whose
// reward bound depends on their fees -- against utxos (mutated in place -- callers validating
// speculatively should pass utxos.Copy()). It returns
// the fee collected by each non-coinbase transaction.
func ApplyTransactions(utxos *utxoset.Set, block *wire.Block) ([]uint64, error) {
	if len(block.Txs) == 0 {
		return nil, ruleError(ErrCoinbase, "block has no transactions")
	}
	blockHash := block.Hash()

	fees := make([]uint64, 0, len(block.Txs)-1)
	var totalFees uint64
	for i := 1; i < len(block.Txs); i++ {
		tx := txn.New(&block.Txs[i])
		fee, err := applyTransaction(utxos, blockHash, tx)
		if err != nil {
			return nil, err
		}
		fees = append(fees, fee)
		totalFees += fee
	}

	if err := applyCoinbase(utxos, blockHash, block, totalFees); err != nil {
		return nil, err
	}

	return fees, nil
}

// CheckTransaction validates a single non-coinbase transaction against
// utxos without applying it: every input resolves, sum_in covers
// sum_out, every input signature verifies against the referenced
// output's public key over the txid, and the fee meets the minimum rate.
// It returns the fee tx pays. The mempool admission path shares these
// rules, so they live here rather than in the block-connection path
// alone.
func CheckTransaction(utxos *utxoset.Set, tx *txn.Tx) (uint64, error) {
	var sumIn uint64
	resolved := make([]*utxoset.UTxOut, len(tx.Msg.Inputs))
	for i := range tx.Msg.Inputs {
		in := &tx.Msg.Inputs[i]
		u, ok := utxos.Get(in)
		if !ok {
			return 0, ruleError(ErrTx, "transaction input references a missing UTXO")
		}
		resolved[i] = u
		sumIn += u.Output.Amount
	}

	fee, meetsMinimum := tx.Fee(sumIn)
	if sumIn < tx.OutputValue() {
		return 0, ruleError(ErrTx, "transaction outputs exceed inputs")
	}
	if !meetsMinimum {
		return 0, ruleError(ErrTx, "transaction fee below minimum rate")
	}

	for i := range tx.Msg.Inputs {
		in := &tx.Msg.Inputs[i]
		if !in.IsSignaturePresent() {
			return 0, ruleError(ErrTx, "transaction input is unsigned")
		}
		sigBytes, err := in.EffectiveSignature()
		if err != nil {
			return 0, ruleError(ErrTx, "transaction input signature is malformed")
		}
		sig, err := ecc.ParseDERSignature(sigBytes)
		if err != nil {
			return 0, ruleError(ErrTx, "transaction input signature does not parse")
		}
		pub, err := ecc.PublicKeyFromUncompressed(resolved[i].Output.PublicKey[:])
		if err != nil {
			return 0, ruleError(ErrTx, "referenced output public key is malformed")
		}
		if !ecc.Verify(tx.ID(), sig, pub) {
			return 0, ruleError(ErrTx, "transaction input signature does not verify")
		}
	}

	return fee, nil
}

// applyTransaction validates a single non-coinbase transaction against
// utxos and applies its effect.
func applyTransaction(utxos *utxoset.Set, blockHash [32]byte, tx *txn.Tx) (uint64, error) {
	fee, err := CheckTransaction(utxos, tx)
	if err != nil {
		return 0, err
	}

	for i := range tx.Msg.Inputs {
		utxos.RemoveInput(&tx.Msg.Inputs[i])
	}
	for i := range tx.Msg.Outputs {
		utxos.Add(utxoset.FromOutput(blockHash, tx, uint32(i)))
	}

	return fee, nil
}

// applyCoinbase validates block's coinbase transaction against its
// height and the fees collected from the rest of the block, and applies
// its output to utxos.
func applyCoinbase(utxos *utxoset.Set, blockHash [32]byte, block *wire.Block, totalFees uint64) error {
	coinbase := txn.New(&block.Txs[0])

	if !coinbase.IsCoinbaseShape(block.Height) {
		return ruleError(ErrCoinbase, "coinbase does not have the required shape")
	}

	maxReward := Subsidy(block.Height) + totalFees
	if coinbase.OutputValue() > maxReward {
		return ruleError(ErrCoinbase, "coinbase reward exceeds subsidy plus fees")
	}

	utxos.Add(utxoset.FromOutput(blockHash, coinbase, 0))
	return nil
}
