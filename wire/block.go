// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"

	"github.com/povchain/povnoded/internal/chainhash"
)

// NonceLen is the wire width of a block's nonce field.
const NonceLen = 32

// BlockHeaderLen is the fixed-width prefix of a serialized block, before
// the variable-length transaction section: height(8) + timestamp(8) +
// prev_hash(32) + difficulty(1) + nonce(32).
const BlockHeaderLen = 8 + 8 + chainhash.HashSize + 1 + NonceLen

// Block is the wire-level block. Txs[0] is always the coinbase.
type Block struct {
	Height     uint64
	Timestamp  uint64 // milliseconds since epoch
	PrevHash   chainhash.Hash
	Difficulty uint8
	Nonce      [NonceLen]byte
	Txs        []Transaction
}

// TxBytesLength returns the total serialized byte length of Txs, the
// quantity bounded by the block capacity rule.
func (blk *Block) TxBytesLength() int {
	total := 0
	for i := range blk.Txs {
		total += blk.Txs[i].BytesLength()
	}
	return total
}

// Serialize returns the full wire encoding of blk.
func (blk *Block) Serialize() []byte {
	buf := make([]byte, 0, BlockHeaderLen+blk.TxBytesLength())
	var header [BlockHeaderLen]byte
	binary.BigEndian.PutUint64(header[0:8], blk.Height)
	binary.BigEndian.PutUint64(header[8:16], blk.Timestamp)
	copy(header[16:16+chainhash.HashSize], blk.PrevHash[:])
	header[16+chainhash.HashSize] = blk.Difficulty
	copy(header[16+chainhash.HashSize+1:], blk.Nonce[:])
	buf = append(buf, header[:]...)
	for i := range blk.Txs {
		buf = append(buf, blk.Txs[i].Serialize()...)
	}
	return buf
}

// Hash returns SHA-256 over the entire serialized block, including nonce
// and transactions.
func (blk *Block) Hash() chainhash.Hash {
	return chainhash.Sum(blk.Serialize())
}

// Coinbase returns the first transaction in blk, which is always the
// coinbase.
func (blk *Block) Coinbase() *Transaction {
	if len(blk.Txs) == 0 {
		return nil
	}
	return &blk.Txs[0]
}

// DeserializeBlock parses the full wire encoding of a block.
func DeserializeBlock(b []byte) (Block, error) {
	if len(b) < BlockHeaderLen {
		return Block{}, codecError(ErrTruncated, "wire: truncated block header")
	}
	var blk Block
	blk.Height = binary.BigEndian.Uint64(b[0:8])
	blk.Timestamp = binary.BigEndian.Uint64(b[8:16])
	copy(blk.PrevHash[:], b[16:16+chainhash.HashSize])
	blk.Difficulty = b[16+chainhash.HashSize]
	copy(blk.Nonce[:], b[16+chainhash.HashSize+1:BlockHeaderLen])

	txs, err := DeserializeManyTransactions(b[BlockHeaderLen:])
	if err != nil {
		return Block{}, err
	}
	blk.Txs = txs
	return blk, nil
}
