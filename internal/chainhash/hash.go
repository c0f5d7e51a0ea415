// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainhash defines the 32-byte hash type used throughout povnoded
// to identify blocks and transactions.
package chainhash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// HashSize is the size, in bytes, of the hash produced by SHA-256.
const HashSize = 32

// Hash is a 32-byte SHA-256 digest.
type Hash [HashSize]byte

// Sum returns the SHA-256 digest of b as a Hash.
func Sum(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// String returns the lowercase, unpadded 64-character hex encoding of the
// hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// NewFromStr parses a 64-character lowercase hex string into a Hash.
func NewFromStr(s string) (Hash, error) {
	var h Hash
	if len(s) != HashSize*2 {
		return h, errors.Errorf("chainhash: invalid hash string length %d", len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.Wrap(err, "chainhash: invalid hex")
	}
	copy(h[:], decoded)
	return h, nil
}

// LeadingZeroBits returns the number of leading zero bits in h, read
// most-significant-bit first over the 32 bytes.
func (h Hash) LeadingZeroBits() int {
	count := 0
	for _, b := range h {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}
