package consensus

import "math/big"

// Work returns the proof-of-work value of a block with the given
// difficulty: 2^difficulty.
func Work(difficulty uint8) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(difficulty))
}

// CumulativeWork sums Work(d) for each difficulty in a chain segment.
func CumulativeWork(difficulties []uint8) *big.Int {
	total := new(big.Int)
	for _, d := range difficulties {
		total.Add(total, Work(d))
	}
	return total
}

// IncomingBranchWins reports whether an incoming branch with cumulative
// work incoming should be adopted over the local branch's local:
// accept iff incoming >= local. Equality favors the incoming branch.
func IncomingBranchWins(incoming, local *big.Int) bool {
	return incoming.Cmp(local) >= 0
}
