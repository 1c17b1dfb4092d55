package rules

import (
	"fmt"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/abilities"
	"github.com/auragrid/arbiter-server-go/internal/game/board"
)

// StateAccessor provides the read-only view of match state needed for
// validation. The validator never mutates state through it.
type StateAccessor interface {
	// Phase returns the current turn phase
	Phase() Phase
	// TurnStartedAt returns when the current submission window opened
	TurnStartedAt() time.Time
	// TurnTimeLimit returns the submission window length
	TurnTimeLimit() time.Duration
	// Grid returns the match grid bounds
	Grid() board.Grid
	// FindUnit finds a unit by ID
	FindUnit(unitID int) (UnitInfo, bool)
	// FindPlayer finds player info by ID
	FindPlayer(playerID string) (PlayerInfo, bool)
	// PendingActions returns the actions the player has buffered this turn
	PendingActions(playerID string) []Action
	// LivingUnitAt returns the living unit occupying pos, if any
	LivingUnitAt(pos board.Position) (UnitInfo, bool)
	// OccupiedCells returns the set of cells occupied by living units
	OccupiedCells() map[board.Position]bool
}

// UnitInfo provides information about a unit for validation.
type UnitInfo struct {
	ID            int
	Owner         string
	Position      board.Position
	CurrentHealth int
	MaxHealth     int
	MoveRange     int
	HasActed      bool
	Abilities     []string
	Cooldowns     map[string]int
}

// HasAbility reports whether the unit possesses the given ability.
func (u UnitInfo) HasAbility(abilityID string) bool {
	for _, id := range u.Abilities {
		if id == abilityID {
			return true
		}
	}
	return false
}

// PlayerInfo provides information about a player for validation.
type PlayerInfo struct {
	ID               string
	CurrentAura      int
	MaxAura          int
	HasSubmitted     bool
	SubmittedCount   int
	LastSubmissionAt time.Time
}

// Validator runs the multi-stage acceptance pipeline for proposed actions.
// It is pure: a rejected action leaves match state untouched and the client
// is free to resubmit until the turn timer expires.
type Validator struct {
	catalog     abilities.Catalog
	requirePath bool
}

// NewValidator creates a validator backed by the given ability catalog.
// When requirePath is set, Move actions must also have a connecting path
// of unoccupied cells to their destination.
func NewValidator(catalog abilities.Catalog, requirePath bool) *Validator {
	return &Validator{
		catalog:     catalog,
		requirePath: requirePath,
	}
}

// Validate runs the ordered check stages against one proposed action,
// short-circuiting on the first failure.
func (v *Validator) Validate(state StateAccessor, action Action, player string, now time.Time) Verdict {
	if verdict := v.checkStructural(action, player); !verdict.Accepted {
		return verdict
	}
	if verdict := v.checkTurnState(state, player, now); !verdict.Accepted {
		return verdict
	}
	if action.Type == ActionPass {
		// Pass is always valid once phase and submission checks hold.
		return Accept()
	}
	unit, verdict := v.checkAuthorization(state, action, player)
	if !verdict.Accepted {
		return verdict
	}

	switch action.Type {
	case ActionMove:
		return v.checkMove(state, action, unit)
	case ActionAbility:
		return v.checkAbility(state, action, unit, player)
	}

	return Reject(ReasonInvalidActionType, fmt.Sprintf("unhandled action type %q", action.Type))
}

// checkStructural verifies the action shape: a recognized type with the
// fields that type requires.
func (v *Validator) checkStructural(action Action, player string) Verdict {
	if !KnownActionType(action.Type) {
		return Reject(ReasonInvalidActionType, fmt.Sprintf("unknown action type %q", action.Type))
	}
	if action.Player != "" && action.Player != player {
		return Reject(ReasonInvalidInput, "action owner does not match submitting player")
	}

	switch action.Type {
	case ActionMove:
		if action.UnitID <= 0 {
			return Reject(ReasonInvalidUnitID, "move requires a unit id")
		}
		if action.TargetPosition == nil {
			return Reject(ReasonInvalidPosition, "move requires a target position")
		}
	case ActionAbility:
		if action.UnitID <= 0 {
			return Reject(ReasonInvalidUnitID, "ability requires a unit id")
		}
		if action.AbilityID == "" {
			return Reject(ReasonInvalidAbilityID, "ability requires an ability id")
		}
	}

	return Accept()
}

// checkTurnState verifies the match is accepting submissions from this
// player right now.
func (v *Validator) checkTurnState(state StateAccessor, player string, now time.Time) Verdict {
	switch state.Phase() {
	case PhaseActionSubmission:
		// Submissions allowed.
	case PhaseComplete:
		return Reject(ReasonGameNotActive, "match is complete")
	default:
		return Reject(ReasonWrongPhase, fmt.Sprintf("cannot submit during %s", state.Phase()))
	}

	info, found := state.FindPlayer(player)
	if !found {
		return Reject(ReasonNotInMatch, fmt.Sprintf("player %s is not in this match", player))
	}
	if info.HasSubmitted {
		return Reject(ReasonAlreadySubmitted, "player already submitted this turn")
	}
	if now.Sub(state.TurnStartedAt()) > state.TurnTimeLimit() {
		return Reject(ReasonTimeExpired, "turn time limit exceeded")
	}

	return Accept()
}

// checkAuthorization verifies the acting unit exists, belongs to the
// submitting player, and is able to act.
func (v *Validator) checkAuthorization(state StateAccessor, action Action, player string) (UnitInfo, Verdict) {
	unit, found := state.FindUnit(action.UnitID)
	if !found {
		return UnitInfo{}, Reject(ReasonUnitNotFound, fmt.Sprintf("unit %d not found", action.UnitID))
	}
	if unit.Owner != player {
		return UnitInfo{}, Reject(ReasonUnitNotOwned, fmt.Sprintf("unit %d is not owned by %s", action.UnitID, player))
	}
	if unit.CurrentHealth <= 0 {
		return UnitInfo{}, Reject(ReasonUnitDestroyed, fmt.Sprintf("unit %d is destroyed", action.UnitID))
	}
	if unit.HasActed {
		return UnitInfo{}, Reject(ReasonUnitAlreadyActed, fmt.Sprintf("unit %d already acted this turn", action.UnitID))
	}
	return unit, Accept()
}

// checkMove validates a movement action against grid bounds, movement
// allowance and destination occupancy.
func (v *Validator) checkMove(state StateAccessor, action Action, unit UnitInfo) Verdict {
	dest := *action.TargetPosition

	if !state.Grid().Contains(dest) {
		return Reject(ReasonOutOfBounds, fmt.Sprintf("position (%d,%d) is outside the grid", dest.X, dest.Z))
	}
	if board.Manhattan(unit.Position, dest) > unit.MoveRange {
		return Reject(ReasonRangeExceeded, fmt.Sprintf("destination exceeds movement allowance %d", unit.MoveRange))
	}
	if occupant, occupied := state.LivingUnitAt(dest); occupied && occupant.ID != unit.ID {
		return Reject(ReasonPositionOccupied, fmt.Sprintf("position (%d,%d) is occupied by unit %d", dest.X, dest.Z, occupant.ID))
	}
	if v.requirePath {
		occupied := state.OccupiedCells()
		delete(occupied, unit.Position)
		if !state.Grid().PathExists(unit.Position, dest, unit.MoveRange, occupied) {
			return Reject(ReasonPathBlocked, fmt.Sprintf("no open path to (%d,%d)", dest.X, dest.Z))
		}
	}

	return Accept()
}

// checkAbility validates an ability action: possession, cooldown, aura
// cost, and the target demanded by the ability's declared targeting kind.
func (v *Validator) checkAbility(state StateAccessor, action Action, unit UnitInfo, player string) Verdict {
	ability, found := v.catalog.Get(action.AbilityID)
	if !found {
		return Reject(ReasonAbilityNotFound, fmt.Sprintf("ability %q not found", action.AbilityID))
	}
	if !unit.HasAbility(ability.ID) {
		return Reject(ReasonAbilityNotAvailable, fmt.Sprintf("unit %d does not know %q", unit.ID, ability.ID))
	}
	if remaining := unit.Cooldowns[ability.ID]; remaining > 0 {
		return Reject(ReasonAbilityNotAvailable, fmt.Sprintf("ability %q on cooldown for %d more turns", ability.ID, remaining))
	}

	owner, found := state.FindPlayer(player)
	if !found {
		return Reject(ReasonNotInMatch, fmt.Sprintf("player %s is not in this match", player))
	}
	// Aura is only deducted at resolution, so actions buffered earlier this
	// turn already claim part of the pool. Validating against the remainder
	// keeps aura non-negative without the resolver having to re-check.
	available := owner.CurrentAura - v.pendingAuraCost(state, player)
	if available < ability.AuraCost {
		return Reject(ReasonInsufficientAura, fmt.Sprintf("ability costs %d aura, player has %d unspent", ability.AuraCost, available))
	}

	switch ability.Targeting {
	case abilities.TargetingSelf:
		return Accept()

	case abilities.TargetingPosition:
		if action.TargetPosition == nil {
			return Reject(ReasonTargetPosRequired, fmt.Sprintf("ability %q requires a target position", ability.ID))
		}
		pos := *action.TargetPosition
		if !state.Grid().Contains(pos) {
			return Reject(ReasonOutOfBounds, fmt.Sprintf("position (%d,%d) is outside the grid", pos.X, pos.Z))
		}
		if board.Manhattan(unit.Position, pos) > ability.Range {
			return Reject(ReasonTargetOutOfRange, fmt.Sprintf("target exceeds ability range %d", ability.Range))
		}
		return Accept()

	case abilities.TargetingUnit:
		if action.TargetUnitID == nil {
			return Reject(ReasonTargetUnitRequired, fmt.Sprintf("ability %q requires a target unit", ability.ID))
		}
		target, found := state.FindUnit(*action.TargetUnitID)
		if !found {
			return Reject(ReasonUnitNotFound, fmt.Sprintf("target unit %d not found", *action.TargetUnitID))
		}
		if target.CurrentHealth <= 0 {
			return Reject(ReasonUnitDestroyed, fmt.Sprintf("target unit %d is destroyed", target.ID))
		}
		if board.Manhattan(unit.Position, target.Position) > ability.Range {
			return Reject(ReasonTargetOutOfRange, fmt.Sprintf("target exceeds ability range %d", ability.Range))
		}
		if target.Owner == player && !ability.CanTargetFriendly {
			return Reject(ReasonCannotTargetFriendly, fmt.Sprintf("ability %q cannot target friendly units", ability.ID))
		}
		if target.Owner != player && !ability.CanTargetEnemy {
			return Reject(ReasonCannotTargetEnemy, fmt.Sprintf("ability %q cannot target enemy units", ability.ID))
		}
		return Accept()
	}

	return Reject(ReasonInvalidAbilityID, fmt.Sprintf("ability %q has unknown targeting %q", ability.ID, ability.Targeting))
}

// pendingAuraCost sums the aura cost of ability actions the player has
// buffered this turn.
func (v *Validator) pendingAuraCost(state StateAccessor, player string) int {
	total := 0
	for _, buffered := range state.PendingActions(player) {
		if buffered.Type != ActionAbility {
			continue
		}
		if ability, found := v.catalog.Get(buffered.AbilityID); found {
			total += ability.AuraCost
		}
	}
	return total
}
