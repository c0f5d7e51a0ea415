// Package ecc is the node's crypto adapter: SHA-256 hashing is provided
// by internal/chainhash, this package covers secp256k1 keys and
// DER-encoded ECDSA signatures. It is consumed as a black box by the
// rest of povnoded: sign(msg, privkey) -> sig, verify(msg, sig, pubkey)
// -> bool.
package ecc

import (
	"crypto/rand"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"

	"github.com/povchain/povnoded/internal/chainhash"
)

// UncompressedPubKeyLen is the wire length of an uncompressed secp256k1
// public key: a leading 0x04 byte followed by the 32-byte X and Y
// coordinates.
const UncompressedPubKeyLen = 65

// PrivateKey wraps a secp256k1 scalar.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey wraps a secp256k1 curve point.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// Signature wraps a DER-encodable ECDSA signature.
type Signature struct {
	sig *ecdsa.Signature
}

// GeneratePrivateKey returns a fresh private key drawn from crypto/rand.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKeyFromRand(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "ecc: generate private key")
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32-byte scalar into a private key.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, errors.Errorf("ecc: private key must be 32 bytes, got %d", len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// PubKey returns the public key corresponding to priv.
func (priv *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{key: priv.key.PubKey()}
}

// Serialize returns the 32-byte scalar encoding of priv.
func (priv *PrivateKey) Serialize() []byte {
	return priv.key.Serialize()
}

// SerializeUncompressed returns the 65-byte 0x04-prefixed encoding of
// pub, the form outputs carry on the wire.
func (pub *PublicKey) SerializeUncompressed() []byte {
	return pub.key.SerializeUncompressed()
}

// PublicKeyFromUncompressed parses a 65-byte uncompressed public key.
func PublicKeyFromUncompressed(b []byte) (*PublicKey, error) {
	if len(b) != UncompressedPubKeyLen {
		return nil, errors.Errorf("ecc: public key must be %d bytes, got %d", UncompressedPubKeyLen, len(b))
	}
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, errors.Wrap(err, "ecc: parse public key")
	}
	return &PublicKey{key: key}, nil
}

// Equal reports whether two public keys are the same point.
func (pub *PublicKey) Equal(other *PublicKey) bool {
	if pub == nil || other == nil {
		return pub == other
	}
	return pub.key.IsEqual(other.key)
}

// Sign signs hash with priv and returns a DER-encodable signature.
func Sign(hash chainhash.Hash, priv *PrivateKey) (*Signature, error) {
	sig := ecdsa.Sign(priv.key, hash[:])
	return &Signature{sig: sig}, nil
}

// Verify reports whether sig is a valid signature over hash by pub.
func Verify(hash chainhash.Hash, sig *Signature, pub *PublicKey) bool {
	if sig == nil || pub == nil {
		return false
	}
	return sig.sig.Verify(hash[:], pub.key)
}

// Serialize returns the raw DER encoding of sig.
func (sig *Signature) Serialize() []byte {
	return sig.sig.Serialize()
}

// ParseDERSignature parses a DER-encoded ECDSA signature. It does not
// require canonical (BIP-66-strict) encoding beyond what the underlying
// library enforces.
func ParseDERSignature(b []byte) (*Signature, error) {
	sig, err := ecdsa.ParseDERSignature(b)
	if err != nil {
		return nil, errors.Wrap(err, "ecc: parse DER signature")
	}
	return &Signature{sig: sig}, nil
}
