package rollup

import "errors"

var (
	// ErrInvalidRange is returned for an unsupported time range.
	ErrInvalidRange = errors.New("rollup: invalid time range")
)
