// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"

	"github.com/povchain/povnoded/internal/ecc"
)

// TxOutputLen is the fixed on-wire width of a TxOutput.
const TxOutputLen = 8 + ecc.UncompressedPubKeyLen

// TxOutput is a 73-byte wire output: an amount locked to a single public
// key.
type TxOutput struct {
	Amount    uint64
	PublicKey [ecc.UncompressedPubKeyLen]byte
}

// Serialize appends the 73-byte wire encoding of out to buf.
func (out *TxOutput) Serialize(buf []byte) []byte {
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], out.Amount)
	buf = append(buf, amt[:]...)
	buf = append(buf, out.PublicKey[:]...)
	return buf
}

// DeserializeTxOutput reads a 73-byte TxOutput from the front of b, and
// returns the remaining bytes.
func DeserializeTxOutput(b []byte) (TxOutput, []byte, error) {
	if len(b) < TxOutputLen {
		return TxOutput{}, nil, codecError(ErrTruncated, "wire: truncated tx output")
	}
	var out TxOutput
	out.Amount = binary.BigEndian.Uint64(b[0:8])
	copy(out.PublicKey[:], b[8:TxOutputLen])
	return out, b[TxOutputLen:], nil
}
