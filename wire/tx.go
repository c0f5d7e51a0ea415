// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"

	"github.com/povchain/povnoded/internal/chainhash"
)

// Transaction is the wire-level transaction:
// input_count:u32 | output_count:u32 | inputs[] | outputs[].
type Transaction struct {
	Inputs  []TxInput
	Outputs []TxOutput
}

// BytesLength returns the serialized byte length of tx: 8 fixed-width
// count bytes plus 108 bytes per input and 73 bytes per output.
func (tx *Transaction) BytesLength() int {
	return 8 + TxInputLen*len(tx.Inputs) + TxOutputLen*len(tx.Outputs)
}

// Serialize returns the full wire encoding of tx, including signatures.
func (tx *Transaction) Serialize() []byte {
	buf := make([]byte, 0, tx.BytesLength())
	buf = appendCounts(buf, len(tx.Inputs), len(tx.Outputs))
	for i := range tx.Inputs {
		buf = tx.Inputs[i].Serialize(buf)
	}
	for i := range tx.Outputs {
		buf = tx.Outputs[i].Serialize(buf)
	}
	return buf
}

// SerializeUnsigned returns the encoding over which the txid is computed:
// identical to Serialize except each input contributes only its
// prev_txid/prev_index, omitting the signature slot. Signatures are
// therefore never part of a txid, and signing is defined over the txid
// itself.
func (tx *Transaction) SerializeUnsigned() []byte {
	buf := make([]byte, 0, 8+txInputUnsignedLen*len(tx.Inputs)+TxOutputLen*len(tx.Outputs))
	buf = appendCounts(buf, len(tx.Inputs), len(tx.Outputs))
	for i := range tx.Inputs {
		buf = tx.Inputs[i].serializeUnsigned(buf)
	}
	for i := range tx.Outputs {
		buf = tx.Outputs[i].Serialize(buf)
	}
	return buf
}

// TxID hashes the unsigned serialization of tx.
func (tx *Transaction) TxID() chainhash.Hash {
	return chainhash.Sum(tx.SerializeUnsigned())
}

func appendCounts(buf []byte, inCount, outCount int) []byte {
	var counts [8]byte
	binary.BigEndian.PutUint32(counts[0:4], uint32(inCount))
	binary.BigEndian.PutUint32(counts[4:8], uint32(outCount))
	return append(buf, counts[:]...)
}

// DeserializeTransaction reads one Transaction from the front of b and
// returns the remaining bytes.
func DeserializeTransaction(b []byte) (Transaction, []byte, error) {
	if len(b) < 8 {
		return Transaction{}, nil, codecError(ErrTruncated, "wire: truncated transaction header")
	}
	inCount := binary.BigEndian.Uint32(b[0:4])
	outCount := binary.BigEndian.Uint32(b[4:8])
	rest := b[8:]

	needed := int(inCount)*TxInputLen + int(outCount)*TxOutputLen
	if needed < 0 || len(rest) < needed {
		return Transaction{}, nil, codecError(ErrTruncated, "wire: declared tx size exceeds remaining bytes")
	}

	tx := Transaction{
		Inputs:  make([]TxInput, inCount),
		Outputs: make([]TxOutput, outCount),
	}
	var err error
	for i := uint32(0); i < inCount; i++ {
		tx.Inputs[i], rest, err = DeserializeTxInput(rest)
		if err != nil {
			return Transaction{}, nil, err
		}
	}
	for i := uint32(0); i < outCount; i++ {
		tx.Outputs[i], rest, err = DeserializeTxOutput(rest)
		if err != nil {
			return Transaction{}, nil, err
		}
	}
	return tx, rest, nil
}

// DeserializeManyTransactions parses back-to-back transactions until b is
// exhausted, failing if any transaction's declared size would exceed the
// remaining bytes.
func DeserializeManyTransactions(b []byte) ([]Transaction, error) {
	var txs []Transaction
	for len(b) > 0 {
		tx, rest, err := DeserializeTransaction(b)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
		b = rest
	}
	return txs, nil
}
