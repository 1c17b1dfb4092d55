package rules

import (
	"fmt"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/abilities"
	"github.com/auragrid/arbiter-server-go/internal/game/board"
)

// ViolationKind classifies one anti-cheat finding. Kinds are logged
// server-side only; clients always see the generic SECURITY_VIOLATION.
type ViolationKind string

const (
	ViolationImpossibleAction ViolationKind = "IMPOSSIBLE_ACTION"
	ViolationRapidSubmission  ViolationKind = "RAPID_SUBMISSION"
	ViolationDuplicateAction  ViolationKind = "DUPLICATE_ACTION"
	ViolationVolume           ViolationKind = "ACTION_VOLUME"
	ViolationAnomaly          ViolationKind = "STATISTICAL_ANOMALY"
)

// Violation is one recorded anti-cheat finding.
type Violation struct {
	Kind       ViolationKind `json:"kind"`
	MatchID    string        `json:"matchId"`
	TurnNumber int           `json:"turnNumber"`
	Detail     string        `json:"detail"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// maxViolationHistory bounds the per-player violation ring buffer.
const maxViolationHistory = 10

// Record is the per-player anti-cheat ledger. It outlives any single match
// and is the only state shared across matches; persistence guards it with
// an optimistic version check.
type Record struct {
	PlayerID         string      `json:"playerId"`
	ViolationCount   int         `json:"violationCount"`
	ViolationHistory []Violation `json:"violationHistory"`
	LastPenaltyAt    time.Time   `json:"lastPenaltyAt"`
	Version          int64       `json:"version"`
}

// Append records a violation, trimming history to the bounded window.
// ViolationCount grows monotonically; only the history is trimmed.
func (r *Record) Append(v Violation) {
	r.ViolationCount++
	r.ViolationHistory = append(r.ViolationHistory, v)
	if len(r.ViolationHistory) > maxViolationHistory {
		r.ViolationHistory = r.ViolationHistory[len(r.ViolationHistory)-maxViolationHistory:]
	}
}

// Penalty describes the restriction a record's violation count has earned.
type Penalty struct {
	Restricted bool
	Permanent  bool
	Duration   time.Duration
}

// PenaltyFor consults the escalation table. Penalties are monotonic: a
// higher count never maps to a lighter restriction.
func PenaltyFor(violationCount int) Penalty {
	switch {
	case violationCount >= 10:
		return Penalty{Restricted: true, Permanent: true}
	case violationCount >= 5:
		return Penalty{Restricted: true, Duration: 24 * time.Hour}
	case violationCount >= 3:
		return Penalty{Restricted: true, Duration: time.Hour}
	default:
		return Penalty{}
	}
}

// PenaltyEnforcer is the external account-system collaborator that applies
// restrictions. Permanent restrictions pass a zero duration.
type PenaltyEnforcer interface {
	BanPlayer(playerID string, duration time.Duration, permanent bool, reason string) error
}

// Inspection is the outcome of inspecting one action. Multiple checks may
// fire on the same action.
type Inspection struct {
	Suspicious bool
	Violations []Violation
}

// AnomalyCheck is the statistical-anomaly extension point. A nil check is
// a no-op; implementations return a detail string when they fire.
type AnomalyCheck func(state StateAccessor, action Action, record *Record) (string, bool)

// Detector runs the anti-cheat heuristics over actions that already passed
// validation. It re-derives the physical checks independently of the
// validator so a validator bypass still gets caught.
type Detector struct {
	catalog      abilities.Catalog
	minInterval  time.Duration
	maxPerTurn   int
	AnomalyCheck AnomalyCheck
}

// NewDetector creates a detector. minInterval is the minimum time between
// submissions from one player; maxPerTurn caps buffered actions per turn.
func NewDetector(catalog abilities.Catalog, minInterval time.Duration, maxPerTurn int) *Detector {
	return &Detector{
		catalog:     catalog,
		minInterval: minInterval,
		maxPerTurn:  maxPerTurn,
	}
}

// Inspect evaluates every heuristic against one accepted-looking action.
// Unlike the validator the checks do not short-circuit: an action can rack
// up several violations at once.
func (d *Detector) Inspect(state StateAccessor, action Action, record *Record, priorActions []Action, matchID string, turnNumber int, now time.Time) Inspection {
	var violations []Violation

	note := func(kind ViolationKind, detail string) {
		violations = append(violations, Violation{
			Kind:       kind,
			MatchID:    matchID,
			TurnNumber: turnNumber,
			Detail:     detail,
			OccurredAt: now,
		})
	}

	if detail, impossible := d.checkImpossible(state, action); impossible {
		note(ViolationImpossibleAction, detail)
	}

	if player, found := state.FindPlayer(action.Player); found {
		if !player.LastSubmissionAt.IsZero() && now.Sub(player.LastSubmissionAt) < d.minInterval {
			note(ViolationRapidSubmission, fmt.Sprintf("submitted %v after previous action", now.Sub(player.LastSubmissionAt)))
		}
	}

	fingerprint := action.Fingerprint()
	for _, prior := range priorActions {
		if prior.Fingerprint() == fingerprint {
			note(ViolationDuplicateAction, fmt.Sprintf("duplicate of earlier submission %s", fingerprint))
			break
		}
	}

	if len(priorActions) >= d.maxPerTurn {
		note(ViolationVolume, fmt.Sprintf("%d actions already buffered this turn", len(priorActions)))
	}

	if d.AnomalyCheck != nil {
		if detail, anomalous := d.AnomalyCheck(state, action, record); anomalous {
			note(ViolationAnomaly, detail)
		}
	}

	return Inspection{
		Suspicious: len(violations) > 0,
		Violations: violations,
	}
}

// checkImpossible recomputes distance and range limits from scratch.
func (d *Detector) checkImpossible(state StateAccessor, action Action) (string, bool) {
	unit, found := state.FindUnit(action.UnitID)
	if !found {
		return "", false
	}

	switch action.Type {
	case ActionMove:
		if action.TargetPosition == nil {
			return "move without target position", true
		}
		if dist := board.Manhattan(unit.Position, *action.TargetPosition); dist > unit.MoveRange {
			return fmt.Sprintf("move distance %d exceeds allowance %d", dist, unit.MoveRange), true
		}
	case ActionAbility:
		ability, ok := d.catalog.Get(action.AbilityID)
		if !ok {
			return "", false
		}
		if action.TargetPosition != nil {
			if dist := board.Manhattan(unit.Position, *action.TargetPosition); dist > ability.Range {
				return fmt.Sprintf("ability target distance %d exceeds range %d", dist, ability.Range), true
			}
		}
		if action.TargetUnitID != nil {
			if target, ok := state.FindUnit(*action.TargetUnitID); ok {
				if dist := board.Manhattan(unit.Position, target.Position); dist > ability.Range {
					return fmt.Sprintf("ability target distance %d exceeds range %d", dist, ability.Range), true
				}
			}
		}
	}

	return "", false
}

// Escalate appends the violations to the record and applies the penalty
// the new count maps to. Already-permanent restrictions are never lifted;
// the enforcer is only invoked when the count crosses a threshold row.
func (d *Detector) Escalate(record *Record, inspection Inspection, enforcer PenaltyEnforcer, now time.Time) (Penalty, error) {
	before := PenaltyFor(record.ViolationCount)

	for _, v := range inspection.Violations {
		record.Append(v)
	}

	after := PenaltyFor(record.ViolationCount)
	if !after.Restricted {
		return after, nil
	}

	crossed := !before.Restricted ||
		(after.Permanent && !before.Permanent) ||
		(!after.Permanent && after.Duration > before.Duration)
	if !crossed {
		return after, nil
	}

	record.LastPenaltyAt = now
	if enforcer == nil {
		return after, nil
	}
	reason := fmt.Sprintf("anti-cheat escalation at %d violations", record.ViolationCount)
	if err := enforcer.BanPlayer(record.PlayerID, after.Duration, after.Permanent, reason); err != nil {
		return after, fmt.Errorf("failed to apply penalty: %w", err)
	}
	return after, nil
}
