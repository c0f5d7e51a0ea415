// Copyright (c) 2024-2026 The povchain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "github.com/pkg/errors"

// ErrorCode identifies a class of codec failure.
type ErrorCode int

const (
	// ErrTruncated indicates fewer bytes were supplied than the declared
	// layout requires.
	ErrTruncated ErrorCode = iota
	// ErrLengthMismatch indicates a fixed-width field decoded to an
	// unexpected length.
	ErrLengthMismatch
	// ErrMalformedDER indicates a signature's DER length prefix does not
	// describe a plausible signature within the padded slot.
	ErrMalformedDER
)

func (c ErrorCode) String() string {
	switch c {
	case ErrTruncated:
		return "truncated"
	case ErrLengthMismatch:
		return "length mismatch"
	case ErrMalformedDER:
		return "malformed DER"
	default:
		return "unknown codec error"
	}
}

// CodecError is returned by every deserialize function in this package on
// malformed input.
type CodecError struct {
	Code        ErrorCode
	Description string
}

func (e CodecError) Error() string {
	return e.Description
}

func codecError(code ErrorCode, desc string) error {
	return errors.WithStack(CodecError{Code: code, Description: desc})
}
