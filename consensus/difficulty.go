package consensus

import (
	"github.com/povchain/povnoded/chainstore"
	"github.com/povchain/povnoded/wire"
)

// ExpectedDifficulty computes the required difficulty for a child of
// parent. store must already contain parent and its recent ancestors.
func ExpectedDifficulty(store *chainstore.Store, parent *wire.Block) (uint8, error) {
	parentHash := parent.Hash()

	// Genesis has no AdjustEvery-deep history to retarget against; every
	// block up to the first retarget boundary inherits genesis's
	// declared difficulty unchanged.
	if parent.Height == 0 || parent.Height%AdjustEvery != 0 {
		return parent.Difficulty, nil
	}

	ancestor, err := store.AncestorOf(parentHash, AdjustEvery)
	if err != nil {
		return 0, err
	}

	duration := int64(parent.Timestamp) - int64(ancestor.Timestamp)
	const expected = int64(TargetBlockTimeMs) * AdjustEvery

	switch {
	case duration < expected/2:
		if parent.Difficulty >= MaxDifficulty {
			return MaxDifficulty, nil
		}
		return parent.Difficulty + 1, nil
	case duration > expected*2:
		if int(parent.Difficulty)-1 < MinDifficulty {
			return MinDifficulty, nil
		}
		return parent.Difficulty - 1, nil
	default:
		return parent.Difficulty, nil
	}
}

// MTP returns the median-time-past floor for a child of block: the
// timestamp of its mtpAncestorDistance-th ancestor, the middle of an
// 11-block window viewed inclusive of block.
// Near genesis, where fewer than mtpAncestorDistance ancestors exist, it
// walks back only as far as genesis.
func MTP(store *chainstore.Store, block *wire.Block) (uint64, error) {
	distance := mtpAncestorDistance
	if uint64(distance) > block.Height {
		distance = int(block.Height)
	}
	ancestor, err := store.AncestorOf(block.Hash(), distance)
	if err != nil {
		return 0, err
	}
	return ancestor.Timestamp, nil
}
