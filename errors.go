// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package mediameta

import (
	"errors"
	"fmt"
)

// Error kinds. All errors returned for malformed input wrap one of these,
// so they can be checked with errors.Is.
var (
	// ErrTruncatedInput is returned when a read goes past the end of the buffer.
	ErrTruncatedInput = errors.New("truncated input")
	// ErrBadMagic is returned when the TIFF byte order mark or the magic number 42 is wrong.
	ErrBadMagic = errors.New("bad magic")
	// ErrUnexpectedMarker is returned when a JPEG marker does not start with 0xFF.
	ErrUnexpectedMarker = errors.New("unexpected marker")
	// ErrUnrecognizedValueType is returned for TIFF value types outside 1-12.
	ErrUnrecognizedValueType = errors.New("unrecognized value type")
	// ErrTypeMismatch is returned when a tag holds a value type its decoder does not accept.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrArityMismatch is returned when a tag holds a different number of values than expected.
	ErrArityMismatch = errors.New("arity mismatch")
	// ErrUnexpectedChildType is returned when a box contains a child box not valid in that context.
	ErrUnexpectedChildType = errors.New("unexpected child type")
	// ErrFieldWidthOutOfRange is returned for iloc field widths other than 0, 4 and 8.
	ErrFieldWidthOutOfRange = errors.New("field width out of range")
	// ErrInvalidSize is returned for box or segment sizes that cannot be honored.
	ErrInvalidSize = errors.New("invalid size")
	// ErrCyclicIFD is returned when an IFD offset chain points back to a visited directory.
	ErrCyclicIFD = errors.New("cyclic IFD chain")
)

// ErrUnsupportedFormat is returned by Decode for formats that are recognized but not decoded (PNG),
// and for data that could not be classified.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// InvalidFormatError is the error returned for malformed input.
type InvalidFormatError struct {
	// Kind is one of the Err* kinds above.
	Kind error
	// Offset is the absolute offset in the buffer being decoded.
	Offset int64
	// Context describes what was being decoded.
	Context string
}

func (e *InvalidFormatError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("invalid format: %s at offset %d", e.Kind, e.Offset)
	}
	return fmt.Sprintf("invalid format: %s at offset %d: %s", e.Kind, e.Offset, e.Context)
}

func (e *InvalidFormatError) Unwrap() error {
	return e.Kind
}

// IsInvalidFormat reports whether err, or any error in its chain, is an InvalidFormatError.
func IsInvalidFormat(err error) bool {
	var e *InvalidFormatError
	return errors.As(err, &e)
}

func newInvalidFormatErrorf(kind error, offset int64, format string, args ...any) error {
	return &InvalidFormatError{
		Kind:    kind,
		Offset:  offset,
		Context: fmt.Sprintf(format, args...),
	}
}
