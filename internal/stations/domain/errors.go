package stations

import "errors"

var (
	// ErrStationNotFound indicates a missing catalog entry.
	ErrStationNotFound = errors.New("stations: station not found")
	// ErrFetchFailed wraps store failures surfaced to callers.
	ErrFetchFailed = errors.New("stations: fetch failed")
	// ErrAggregateUnsupported is returned when the pre-aggregated hourly query is unavailable.
	ErrAggregateUnsupported = errors.New("stations: hourly aggregate unsupported")
)
