package rollup

import (
	"fmt"
	"strings"
	"time"
)

// TimeRange is a sliding lookback window.
type TimeRange string

const (
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
)

// ParseTimeRange accepts 24h, 7d or 30d. An empty value defaults to 24h.
func ParseTimeRange(value string) (TimeRange, error) {
	switch TimeRange(strings.ToLower(strings.TrimSpace(value))) {
	case "", Range24h:
		return Range24h, nil
	case Range7d:
		return Range7d, nil
	case Range30d:
		return Range30d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRange, value)
	}
}

// Window returns the lookback duration.
func (r TimeRange) Window() time.Duration {
	switch r {
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Start returns now minus the window.
func (r TimeRange) Start(now time.Time) time.Time {
	return now.Add(-r.Window())
}

func (r TimeRange) String() string { return string(r) }
