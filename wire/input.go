// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"

	"github.com/povchain/povnoded/internal/chainhash"
)

const (
	// SignatureSlotLen is the fixed on-wire width of the signature/coinbase
	// message slot: a DER-encoded ECDSA signature right-zero-padded to this
	// length, or up to this many bytes of miner-chosen coinbase data.
	SignatureSlotLen = 72

	// TxInputLen is the fixed on-wire width of a TxInput.
	TxInputLen = chainhash.HashSize + 4 + SignatureSlotLen

	// txInputUnsignedLen is the width a TxInput contributes to the
	// unsigned serialization used to compute a txid: prev_txid and
	// prev_index only, the signature slot omitted entirely.
	txInputUnsignedLen = chainhash.HashSize + 4
)

// TxInput is a 108-byte wire input: a reference to a previous output plus a
// signature (or, for a coinbase, the block height and a miner message).
type TxInput struct {
	PrevTxID  chainhash.Hash
	PrevIndex uint32
	Signature [SignatureSlotLen]byte
}

// Serialize appends the 108-byte wire encoding of in to buf.
func (in *TxInput) Serialize(buf []byte) []byte {
	buf = append(buf, in.PrevTxID[:]...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], in.PrevIndex)
	buf = append(buf, idx[:]...)
	buf = append(buf, in.Signature[:]...)
	return buf
}

// serializeUnsigned appends the portion of in that participates in the
// txid hash: prev_txid and prev_index, omitting the signature slot.
func (in *TxInput) serializeUnsigned(buf []byte) []byte {
	buf = append(buf, in.PrevTxID[:]...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], in.PrevIndex)
	buf = append(buf, idx[:]...)
	return buf
}

// DeserializeTxInput reads a 108-byte TxInput from the front of b, and
// returns the remaining bytes.
func DeserializeTxInput(b []byte) (TxInput, []byte, error) {
	if len(b) < TxInputLen {
		return TxInput{}, nil, codecError(ErrTruncated, "wire: truncated tx input")
	}
	var in TxInput
	copy(in.PrevTxID[:], b[0:chainhash.HashSize])
	in.PrevIndex = binary.BigEndian.Uint32(b[chainhash.HashSize : chainhash.HashSize+4])
	copy(in.Signature[:], b[chainhash.HashSize+4:TxInputLen])
	return in, b[TxInputLen:], nil
}

// EffectiveSignature returns the declared-length prefix of the signature
// slot: byte 1 of a DER signature is its declared content length, so the
// effective signature is the first 2+len bytes. It returns an error if
// the slot does not hold a plausible DER header.
func (in *TxInput) EffectiveSignature() ([]byte, error) {
	if in.Signature[0] != 0x30 {
		return nil, codecError(ErrMalformedDER, "wire: signature slot missing DER sequence tag")
	}
	declaredLen := int(in.Signature[1])
	effectiveLen := 2 + declaredLen
	if effectiveLen > SignatureSlotLen {
		return nil, codecError(ErrMalformedDER, "wire: DER length exceeds signature slot")
	}
	return in.Signature[:effectiveLen], nil
}

// IsSignaturePresent reports whether the signature slot is non-empty
// (any non-zero byte), used by coinbase/plain-input checks that need
// to distinguish "unsigned" from "signed".
func (in *TxInput) IsSignaturePresent() bool {
	for _, b := range in.Signature {
		if b != 0 {
			return true
		}
	}
	return false
}
