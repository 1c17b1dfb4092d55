package rules

import (
	"fmt"
	"time"
)

// Phase represents the phases of one match turn.
type Phase int

const (
	PhaseActionSubmission Phase = iota
	PhaseResolution
	PhaseSynchronization
	PhaseComplete
)

var phaseNames = map[Phase]string{
	PhaseActionSubmission: "ACTION_SUBMISSION",
	PhaseResolution:       "RESOLUTION",
	PhaseSynchronization:  "SYNCHRONIZATION",
	PhaseComplete:         "COMPLETE",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// PhaseMachine tracks the turn phase and turn progression for one match.
// Transitions only ever move forward through the cycle
// ACTION_SUBMISSION -> RESOLUTION -> SYNCHRONIZATION -> (ACTION_SUBMISSION | COMPLETE),
// which is what guarantees a turn can never be resolved twice.
type PhaseMachine struct {
	phase         Phase
	turnNumber    int
	turnStartedAt time.Time
	timeLimit     time.Duration
}

// NewPhaseMachine creates a machine at turn 1 in ACTION_SUBMISSION.
func NewPhaseMachine(timeLimit time.Duration, now time.Time) *PhaseMachine {
	return &PhaseMachine{
		phase:         PhaseActionSubmission,
		turnNumber:    1,
		turnStartedAt: now,
		timeLimit:     timeLimit,
	}
}

// RestorePhaseMachine rebuilds a machine from persisted fields. Used when
// loading a match snapshot; no transition checks apply.
func RestorePhaseMachine(phase Phase, turnNumber int, turnStartedAt time.Time, timeLimit time.Duration) *PhaseMachine {
	return &PhaseMachine{
		phase:         phase,
		turnNumber:    turnNumber,
		turnStartedAt: turnStartedAt,
		timeLimit:     timeLimit,
	}
}

// Phase returns the phase currently in progress.
func (pm *PhaseMachine) Phase() Phase {
	return pm.phase
}

// TurnNumber returns the current turn number (1-based).
func (pm *PhaseMachine) TurnNumber() int {
	return pm.turnNumber
}

// TurnStartedAt returns when the current submission window opened.
func (pm *PhaseMachine) TurnStartedAt() time.Time {
	return pm.turnStartedAt
}

// TimeLimit returns the configured submission window length.
func (pm *PhaseMachine) TimeLimit() time.Duration {
	return pm.timeLimit
}

// Expired reports whether the submission window has run out.
func (pm *PhaseMachine) Expired(now time.Time) bool {
	return pm.phase == PhaseActionSubmission && now.Sub(pm.turnStartedAt) > pm.timeLimit
}

// BeginResolution moves the match from ACTION_SUBMISSION to RESOLUTION.
// This is the single entry point into resolving a turn; a second caller
// racing for the same turn gets an error instead of a double resolution.
func (pm *PhaseMachine) BeginResolution() error {
	if pm.phase != PhaseActionSubmission {
		return fmt.Errorf("cannot begin resolution from %s", pm.phase)
	}
	pm.phase = PhaseResolution
	return nil
}

// BeginSynchronization moves the match from RESOLUTION to SYNCHRONIZATION.
func (pm *PhaseMachine) BeginSynchronization() error {
	if pm.phase != PhaseResolution {
		return fmt.Errorf("cannot begin synchronization from %s", pm.phase)
	}
	pm.phase = PhaseSynchronization
	return nil
}

// NextTurn closes the synchronization phase, increments the turn number and
// reopens the submission window.
func (pm *PhaseMachine) NextTurn(now time.Time) error {
	if pm.phase != PhaseSynchronization {
		return fmt.Errorf("cannot advance turn from %s", pm.phase)
	}
	pm.phase = PhaseActionSubmission
	pm.turnNumber++
	pm.turnStartedAt = now
	return nil
}

// Complete terminates the match. Legal from any live phase; a match ends
// from RESOLUTION on elimination, and from ACTION_SUBMISSION on forfeit.
// A completed match accepts no further transitions.
func (pm *PhaseMachine) Complete() error {
	if pm.phase == PhaseComplete {
		return fmt.Errorf("match is already complete")
	}
	pm.phase = PhaseComplete
	return nil
}
