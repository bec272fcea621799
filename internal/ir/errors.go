package ir

import "errors"

// Encoding errors. Callers match them with errors.Is; the wrapped message
// carries the offending path or value.
var (
	// ErrNonIntegerNumeric rejects floats, NaN, infinities and fractional or
	// exponent-form JSON numbers.
	ErrNonIntegerNumeric = errors.New("non-integer numeric value")

	// ErrNullValue rejects null where it cannot be elided: at the top level
	// and inside arrays. Null object members are dropped instead.
	ErrNullValue = errors.New("null value")

	// ErrDuplicateKey rejects objects whose keys collide after NFC
	// normalization.
	ErrDuplicateKey = errors.New("duplicate object key after normalization")

	// ErrInvalidUTF8 rejects strings that are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid UTF-8 string")

	// ErrUnsupportedType rejects Go values with no canonical form.
	ErrUnsupportedType = errors.New("unsupported type")
)
