package alerts

import "time"

// Phase is the evaluation phase of an (alert, station) pair.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseEligible Phase = "eligible"
	PhaseCooldown Phase = "cooldown"
)

// AlertState is the persisted evaluation state of an (alert, station) pair.
type AlertState struct {
	AlertID        string
	StationID      string
	Phase          Phase
	LastNotifiedAt time.Time
	LastValue      int
	LastObservedAt time.Time
	UpdatedAt      time.Time
}

// NewAlertState returns the initial idle state.
func NewAlertState(alertID, stationID string) AlertState {
	return AlertState{AlertID: alertID, StationID: stationID, Phase: PhaseIdle}
}

// Decision is the outcome of one evaluation.
type Decision string

const (
	// DecisionStale means the observation was not newer than the last one seen.
	DecisionStale Decision = "stale"
	// DecisionInactive means the alert is switched off.
	DecisionInactive Decision = "inactive"
	// DecisionBelow means the gauge is under threshold and nothing changed.
	DecisionBelow Decision = "below"
	// DecisionRearmed means the gauge dropped and the alert returned to idle.
	DecisionRearmed Decision = "rearmed"
	// DecisionFire means a notification should be sent.
	DecisionFire Decision = "fire"
	// DecisionSuppressed means the frequency window has not elapsed yet.
	DecisionSuppressed Decision = "suppressed"
	// DecisionHolding means the alert already fired and the gauge has not dropped.
	DecisionHolding Decision = "holding"
)

// Evaluate applies one observation to the state. Observations at or before
// the last observed time are ignored so duplicate and out-of-order delivery
// cannot fire twice. A DecisionFire leaves the state eligible; the caller
// moves it to cooldown with MarkNotified once delivery succeeds.
func Evaluate(alert Alert, state AlertState, value int, observedAt, now time.Time) (AlertState, Decision) {
	if state.Phase == "" {
		state.Phase = PhaseIdle
	}
	if !state.LastObservedAt.IsZero() && !observedAt.After(state.LastObservedAt) {
		return state, DecisionStale
	}

	next := state
	next.LastValue = value
	next.LastObservedAt = observedAt
	next.UpdatedAt = now

	if !alert.IsActive {
		return next, DecisionInactive
	}

	if !alert.Satisfied(value) {
		if next.Phase == PhaseIdle {
			return next, DecisionBelow
		}
		next.Phase = PhaseIdle
		return next, DecisionRearmed
	}

	if next.Phase == PhaseCooldown {
		return next, DecisionHolding
	}
	next.Phase = PhaseEligible
	window := alert.Frequency.Window()
	if window > 0 && !next.LastNotifiedAt.IsZero() && now.Sub(next.LastNotifiedAt) < window {
		return next, DecisionSuppressed
	}
	return next, DecisionFire
}

// MarkNotified moves the state to cooldown after a successful delivery.
func (s AlertState) MarkNotified(at time.Time) AlertState {
	s.Phase = PhaseCooldown
	s.LastNotifiedAt = at
	s.UpdatedAt = at
	return s
}
