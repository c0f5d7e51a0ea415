package consensus

import "github.com/pkg/errors"

// ErrorKind classifies a validation failure.
type ErrorKind int

const (
	// ErrCodec covers length mismatches and malformed encodings
	// surfaced while validating (the wire package's own CodecError is
	// the primary source of these).
	ErrCodec ErrorKind = iota
	// ErrProof indicates a block hash fails its required leading-zero
	// bits.
	ErrProof
	// ErrContinuity covers bad height, wrong prev hash, bad difficulty,
	// and timestamp bounds.
	ErrContinuity
	// ErrCapacity indicates block transaction bytes exceed the maximum.
	ErrCapacity
	// ErrTx covers missing UTXOs, unsigned inputs, bad signatures,
	// sum_in < sum_out, and fees below minimum.
	ErrTx
	// ErrCoinbase covers wrong coinbase shape or reward exceeding
	// subsidy+fees.
	ErrCoinbase
	// ErrReorg indicates insufficient cumulative work to adopt a
	// competing branch.
	ErrReorg
)

func (k ErrorKind) String() string {
	switch k {
	case ErrCodec:
		return "codec"
	case ErrProof:
		return "proof"
	case ErrContinuity:
		return "continuity"
	case ErrCapacity:
		return "capacity"
	case ErrTx:
		return "tx"
	case ErrCoinbase:
		return "coinbase"
	case ErrReorg:
		return "reorg"
	default:
		return "unknown"
	}
}

// RuleError is the error type every validation rule in this package
// returns: a classified kind plus a human description.
type RuleError struct {
	Kind        ErrorKind
	Description string
}

func (e RuleError) Error() string {
	return e.Description
}

func ruleError(kind ErrorKind, desc string) error {
	return errors.WithStack(RuleError{Kind: kind, Description: desc})
}
