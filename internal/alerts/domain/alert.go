package alerts

import (
	"errors"
	"strings"
	"time"

	stations "velib-cloud/internal/stations/domain"
)

// AlertType selects the gauge an alert watches.
type AlertType string

const (
	TypeBikesAvailable  AlertType = "bikes_available"
	TypeDocksAvailable  AlertType = "docks_available"
	TypeEbikesAvailable AlertType = "ebikes_available"
	TypeMechanicalBikes AlertType = "mechanical_bikes"
)

// Valid returns true when the type is supported.
func (t AlertType) Valid() bool {
	switch t {
	case TypeBikesAvailable, TypeDocksAvailable, TypeEbikesAvailable, TypeMechanicalBikes:
		return true
	default:
		return false
	}
}

// Gauge reads the watched value from a snapshot.
func (t AlertType) Gauge(snap stations.AvailabilitySnapshot) int {
	switch t {
	case TypeDocksAvailable:
		return snap.DocksAvailable
	case TypeEbikesAvailable:
		return snap.ElectricBikes
	case TypeMechanicalBikes:
		return snap.MechanicalBikes
	default:
		return snap.BikesAvailable
	}
}

// Label is the human readable gauge name.
func (t AlertType) Label() string {
	switch t {
	case TypeDocksAvailable:
		return "free docks"
	case TypeEbikesAvailable:
		return "e-bikes"
	case TypeMechanicalBikes:
		return "mechanical bikes"
	default:
		return "bikes"
	}
}

// Frequency throttles repeated notifications.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
)

// Valid returns true when the frequency is supported.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily:
		return true
	default:
		return false
	}
}

// Window is the minimum spacing between two notifications.
func (f Frequency) Window() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Alert is a user's threshold subscription on one station. Alerts never
// expire on their own.
type Alert struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	StationID           string    `json:"station_id"`
	Type                AlertType `json:"alert_type"`
	Threshold           int       `json:"threshold"`
	NotificationChannel string    `json:"notification_channel"`
	Frequency           Frequency `json:"frequency"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Validate checks alert invariants.
func (a Alert) Validate() error {
	if a.ID == "" {
		return errors.New("alert: empty id")
	}
	if a.UserID == "" {
		return errors.New("alert: empty user id")
	}
	if a.StationID == "" {
		return errors.New("alert: empty station id")
	}
	if !a.Type.Valid() {
		return ErrInvalidType
	}
	if a.Threshold <= 0 {
		return ErrInvalidThreshold
	}
	if strings.TrimSpace(a.NotificationChannel) == "" {
		return errors.New("alert: empty notification channel")
	}
	if !a.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	return nil
}

// Satisfied reports whether the value meets the threshold.
func (a Alert) Satisfied(value int) bool {
	return value >= a.Threshold
}
