package value_codec

import "errors"

var (
	// ErrPrecondition is returned when a filter needs state the scan does not have yet,
	// such as a previous value for Changed before any scan ran.
	ErrPrecondition = errors.New("scan precondition not met")

	// ErrUnsupportedFilter is returned when a filter has no meaning for the value type.
	ErrUnsupportedFilter = errors.New("filter not supported for value type")

	ErrUnknownValueType = errors.New("unknown value type")
	ErrEmptyPattern     = errors.New("empty search pattern")
	ErrShortBuffer      = errors.New("buffer shorter than value width")
)
