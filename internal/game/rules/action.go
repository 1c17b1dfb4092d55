package rules

import (
	"fmt"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/game/board"
)

// ActionType identifies the kind of a proposed action.
type ActionType string

const (
	ActionMove    ActionType = "move"
	ActionAbility ActionType = "ability"
	ActionPass    ActionType = "pass"
)

// KnownActionType reports whether t is one of the three recognized kinds.
func KnownActionType(t ActionType) bool {
	return t == ActionMove || t == ActionAbility || t == ActionPass
}

// Action is one player-submitted intent for one unit. Actions are transient:
// they live in a player's submission buffer for at most one turn and are
// destroyed once resolved or rejected.
type Action struct {
	Type           ActionType      `json:"actionType"`
	Player         string          `json:"ownerPlayer"`
	UnitID         int             `json:"unitId,omitempty"`
	TargetPosition *board.Position `json:"targetPosition,omitempty"`
	TargetUnitID   *int            `json:"targetUnitId,omitempty"`
	AbilityID      string          `json:"abilityId,omitempty"`
	SubmittedAt    time.Time       `json:"submittedAt"`
}

// Fingerprint returns a canonical representation of the action's intent,
// used by the duplicate-submission check. SubmittedAt is deliberately
// excluded so a replayed payload with a fresh timestamp still matches.
func (a Action) Fingerprint() string {
	pos := "-"
	if a.TargetPosition != nil {
		pos = fmt.Sprintf("%d,%d", a.TargetPosition.X, a.TargetPosition.Z)
	}
	target := "-"
	if a.TargetUnitID != nil {
		target = fmt.Sprintf("%d", *a.TargetUnitID)
	}
	return fmt.Sprintf("%s|%s|%d|%s|%s|%s", a.Type, a.Player, a.UnitID, pos, target, a.AbilityID)
}
