// Package genesis builds the fixed genesis block: height 0, a fixed
// timestamp and coinbase message, minimum difficulty, and a coinbase
// paying the full initial subsidy to a fixed public key.
//
// The genesis keypair is derived deterministically from a fixed seed, so
// every node that builds genesis arrives at the same block without
// shipping a literal keypair, and the nonce is mined at construction
// time; difficulty 1 makes that search trivial.
package genesis

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/povchain/povnoded/consensus"
	"github.com/povchain/povnoded/internal/chainhash"
	"github.com/povchain/povnoded/internal/ecc"
	"github.com/povchain/povnoded/txn"
	"github.com/povchain/povnoded/wire"
)

// Timestamp is the genesis block's fixed wire timestamp, in milliseconds
// since epoch.
const Timestamp uint64 = 1_749_376_247_272

// Difficulty is the genesis block's required leading-zero-bit count.
const Difficulty uint8 = consensus.MinDifficulty

// Reward is the amount paid by the genesis coinbase: the full initial
// subsidy, with no prior fees to collect.
const Reward uint64 = consensus.InitialSubsidy

// CoinbaseMessage is the fixed miner-chosen data carried in the genesis
// coinbase's sole input.
var CoinbaseMessage = []byte("The Times 03/Jan/2009 Chancellor on brink of second bailout for banks")

// seed deterministically derives the genesis keypair so every node builds
// an identical genesis block without shipping a literal private key.
var seed = chainhash.Sum([]byte("povchain genesis coinbase key"))

// PrivateKey returns the private key whose output the genesis coinbase
// pays to. Block derives the coinbase's public key from it; it is
// exported so tests can spend the genesis coinbase.
func PrivateKey() (*ecc.PrivateKey, error) {
	priv, err := ecc.PrivateKeyFromBytes(seed[:])
	if err != nil {
		return nil, errors.Wrap(err, "genesis: derive private key")
	}
	return priv, nil
}

// Block constructs the canonical genesis block: the fixed header fields,
// a coinbase paying Reward to the genesis public key, and a nonce mined
// to satisfy Difficulty.
func Block() (*wire.Block, error) {
	priv, err := PrivateKey()
	if err != nil {
		return nil, err
	}

	coinbase, err := txn.BuildCoinbase(priv.PubKey(), Reward, 0, CoinbaseMessage)
	if err != nil {
		return nil, errors.Wrap(err, "genesis: build coinbase")
	}

	block := &wire.Block{
		Height:     0,
		Timestamp:  Timestamp,
		PrevHash:   chainhash.Hash{},
		Difficulty: Difficulty,
		Txs:        []wire.Transaction{*coinbase.Msg},
	}

	for counter := uint64(0); ; counter++ {
		binary.BigEndian.PutUint64(block.Nonce[wire.NonceLen-8:], counter)
		if consensus.CheckProofOfWork(block) == nil {
			return block, nil
		}
	}
}
