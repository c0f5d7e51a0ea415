package consensus

// Chain parameters.
const (
	// TargetBlockTimeMs is the intended spacing between blocks.
	TargetBlockTimeMs = 10_000
	// AdjustEvery is the retarget period, in blocks.
	AdjustEvery = 10
	// MinDifficulty and MaxDifficulty bound the retarget algorithm. The
	// wire difficulty field is a single byte, so the upper bound is the
	// largest value it can carry.
	MinDifficulty = 1
	MaxDifficulty = 255
	// MTPWindow is the number of blocks (inclusive of the block itself)
	// whose median timestamp defines MTP; the ancestor distance used is
	// MTPWindow/2 (floor).
	MTPWindow = 11
	// MaxFutureDriftMs is the maximum allowed distance between a
	// block's timestamp and "now".
	MaxFutureDriftMs = 120_000
	// MinFeeRatePerByte is the minimum accepted transaction fee, in
	// sats per serialized byte.
	MinFeeRatePerByte = 1
	// InitialSubsidy is the coinbase reward at height 0.
	InitialSubsidy = 5_000_000_000
	// HalvingInterval is the number of blocks between subsidy halvings.
	HalvingInterval = 210_000
	// DefaultMaxBlockBytes is the default cap on total serialized
	// transaction bytes per block (config key maxDataBytes).
	DefaultMaxBlockBytes = 10_240
)

// mtpAncestorDistance is the number of blocks back from a block that its
// MTP ancestor sits at: floor(MTPWindow/2).
const mtpAncestorDistance = MTPWindow / 2

// Subsidy returns the coinbase reward at height, halving every
// HalvingInterval blocks.
func Subsidy(height uint64) uint64 {
	halvings := height / HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return InitialSubsidy >> halvings
}
