package alerts

import "errors"

var (
	// ErrNotFound indicates a missing alert.
	ErrNotFound = errors.New("alerts: not found")
	// ErrInvalidType is returned for an unsupported alert type.
	ErrInvalidType = errors.New("alerts: invalid alert type")
	// ErrInvalidFrequency is returned for an unsupported frequency.
	ErrInvalidFrequency = errors.New("alerts: invalid frequency")
	// ErrInvalidThreshold is returned when the threshold is not positive.
	ErrInvalidThreshold = errors.New("alerts: threshold must be positive")
	// ErrDeliveryFailed wraps notification delivery failures.
	ErrDeliveryFailed = errors.New("alerts: delivery failed")
)
