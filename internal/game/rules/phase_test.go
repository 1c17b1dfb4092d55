package rules

import (
	"testing"
	"time"
)

func TestPhaseMachineInitialState(t *testing.T) {
	now := time.Now()
	pm := NewPhaseMachine(60*time.Second, now)

	if pm.Phase() != PhaseActionSubmission {
		t.Errorf("expected ACTION_SUBMISSION, got %s", pm.Phase())
	}
	if pm.TurnNumber() != 1 {
		t.Errorf("expected turn 1, got %d", pm.TurnNumber())
	}
	if !pm.TurnStartedAt().Equal(now) {
		t.Errorf("expected turn start %v, got %v", now, pm.TurnStartedAt())
	}
}

func TestPhaseMachineFullCycle(t *testing.T) {
	now := time.Now()
	pm := NewPhaseMachine(60*time.Second, now)

	if err := pm.BeginResolution(); err != nil {
		t.Fatalf("BeginResolution: %v", err)
	}
	if pm.Phase() != PhaseResolution {
		t.Errorf("expected RESOLUTION, got %s", pm.Phase())
	}

	if err := pm.BeginSynchronization(); err != nil {
		t.Fatalf("BeginSynchronization: %v", err)
	}
	if pm.Phase() != PhaseSynchronization {
		t.Errorf("expected SYNCHRONIZATION, got %s", pm.Phase())
	}

	next := now.Add(30 * time.Second)
	if err := pm.NextTurn(next); err != nil {
		t.Fatalf("NextTurn: %v", err)
	}
	if pm.Phase() != PhaseActionSubmission {
		t.Errorf("expected ACTION_SUBMISSION, got %s", pm.Phase())
	}
	if pm.TurnNumber() != 2 {
		t.Errorf("expected turn 2, got %d", pm.TurnNumber())
	}
	if !pm.TurnStartedAt().Equal(next) {
		t.Errorf("turn start not updated")
	}
}

func TestPhaseMachineDoubleResolution(t *testing.T) {
	pm := NewPhaseMachine(60*time.Second, time.Now())

	if err := pm.BeginResolution(); err != nil {
		t.Fatalf("first BeginResolution: %v", err)
	}
	if err := pm.BeginResolution(); err == nil {
		t.Error("second BeginResolution should fail")
	}
}

func TestPhaseMachineIllegalTransitions(t *testing.T) {
	pm := NewPhaseMachine(60*time.Second, time.Now())

	if err := pm.BeginSynchronization(); err == nil {
		t.Error("BeginSynchronization from ACTION_SUBMISSION should fail")
	}
	if err := pm.NextTurn(time.Now()); err == nil {
		t.Error("NextTurn from ACTION_SUBMISSION should fail")
	}
}

func TestPhaseMachineCompleteFromSubmission(t *testing.T) {
	pm := NewPhaseMachine(60*time.Second, time.Now())

	// A forfeit ends the match while the submission window is open.
	if err := pm.Complete(); err != nil {
		t.Fatalf("Complete from ACTION_SUBMISSION: %v", err)
	}
	if pm.Phase() != PhaseComplete {
		t.Errorf("expected COMPLETE, got %s", pm.Phase())
	}
	if err := pm.Complete(); err == nil {
		t.Error("Complete after COMPLETE should fail")
	}
}

func TestPhaseMachineComplete(t *testing.T) {
	pm := NewPhaseMachine(60*time.Second, time.Now())

	if err := pm.BeginResolution(); err != nil {
		t.Fatal(err)
	}
	if err := pm.Complete(); err != nil {
		t.Fatalf("Complete from RESOLUTION: %v", err)
	}
	if pm.Phase() != PhaseComplete {
		t.Errorf("expected COMPLETE, got %s", pm.Phase())
	}

	// Completed matches accept no further transitions.
	if err := pm.BeginResolution(); err == nil {
		t.Error("BeginResolution after COMPLETE should fail")
	}
	if err := pm.NextTurn(time.Now()); err == nil {
		t.Error("NextTurn after COMPLETE should fail")
	}
}

func TestPhaseMachineExpired(t *testing.T) {
	now := time.Now()
	pm := NewPhaseMachine(60*time.Second, now)

	if pm.Expired(now.Add(59 * time.Second)) {
		t.Error("window should still be open at 59s")
	}
	if !pm.Expired(now.Add(61 * time.Second)) {
		t.Error("window should be expired at 61s")
	}

	// Only the submission phase expires.
	pm.BeginResolution()
	if pm.Expired(now.Add(61 * time.Second)) {
		t.Error("RESOLUTION phase should not report expiry")
	}
}

func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		PhaseActionSubmission: "ACTION_SUBMISSION",
		PhaseResolution:       "RESOLUTION",
		PhaseSynchronization:  "SYNCHRONIZATION",
		PhaseComplete:         "COMPLETE",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(phase), got, want)
		}
	}
	if got := Phase(99).String(); got != "PHASE_99" {
		t.Errorf("unknown phase String() = %q", got)
	}
}

func TestRestorePhaseMachine(t *testing.T) {
	start := time.Now().Add(-5 * time.Second)
	pm := RestorePhaseMachine(PhaseSynchronization, 7, start, 30*time.Second)

	if pm.Phase() != PhaseSynchronization {
		t.Errorf("expected SYNCHRONIZATION, got %s", pm.Phase())
	}
	if pm.TurnNumber() != 7 {
		t.Errorf("expected turn 7, got %d", pm.TurnNumber())
	}
	if err := pm.NextTurn(time.Now()); err != nil {
		t.Errorf("restored machine should transition normally: %v", err)
	}
	if pm.TurnNumber() != 8 {
		t.Errorf("expected turn 8 after advance, got %d", pm.TurnNumber())
	}
}
