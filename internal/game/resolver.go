package game

import (
	"fmt"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/abilities"
	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"github.com/auragrid/arbiter-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// Resolver applies one frozen turn's worth of accepted actions to match
// state. Resolution is deterministic: the same state and the same two
// ordered action lists always produce an identical result, which is what
// makes replay-based dispute resolution possible.
type Resolver struct {
	catalog   abilities.Catalog
	turnCap   int
	auraRegen int
	logger    *zap.Logger
}

// NewResolver creates a resolver. turnCap is the turn number at which the
// match is decided on remaining health; auraRegen is the per-turn aura
// refund applied when a new submission window opens.
func NewResolver(catalog abilities.Catalog, turnCap, auraRegen int, logger *zap.Logger) *Resolver {
	return &Resolver{
		catalog:   catalog,
		turnCap:   turnCap,
		auraRegen: auraRegen,
		logger:    logger,
	}
}

// InterleaveActions builds the resolution order for two submission lists by
// alternating index by index, continuing with the longer list once the
// shorter is exhausted. This is the simultaneity tie-break: neither
// player's actions all resolve strictly before the other's.
func InterleaveActions(first, second []rules.Action) []rules.Action {
	merged := make([]rules.Action, 0, len(first)+len(second))
	for i := 0; i < len(first) || i < len(second); i++ {
		if i < len(first) {
			merged = append(merged, first[i])
		}
		if i < len(second) {
			merged = append(merged, second[i])
		}
	}
	return merged
}

// ResolveTurn runs one complete resolution cycle: freeze submissions,
// apply the interleaved actions, run end-of-turn zone effects, check for
// game end, and either advance to the next turn or complete the match.
// It is the single entry point for a turn; a concurrent second call fails
// on the phase transition and leaves state untouched.
func (r *Resolver) ResolveTurn(state *MatchState, now time.Time) error {
	if err := state.Machine.BeginResolution(); err != nil {
		return fmt.Errorf("resolution already in progress: %w", err)
	}

	first := state.Players[state.PlayerOrder[0]]
	second := state.Players[state.PlayerOrder[1]]

	// Freeze: the submission buffers are consumed exactly once per turn.
	firstActions := first.SubmittedActions
	secondActions := second.SubmittedActions
	first.SubmittedActions = nil
	second.SubmittedActions = nil

	for _, action := range InterleaveActions(firstActions, secondActions) {
		r.apply(state, action)
	}

	r.applyZoneEffects(state)

	if err := state.Machine.BeginSynchronization(); err != nil {
		return err
	}

	if winner, reason, ended := r.checkGameEnd(state); ended {
		state.Winner = winner
		state.EndReason = reason
		if err := state.Machine.Complete(); err != nil {
			return err
		}
		r.logger.Info("match complete",
			zap.String("match_id", state.MatchID),
			zap.String("winner", winner),
			zap.String("end_reason", string(reason)),
		)
		return nil
	}

	r.advanceTurn(state, now)
	return nil
}

// apply executes a single action. Preconditions that silently became false
// since validation (a target died or moved earlier in the interleaved
// sequence) cause a skip, never an error: a frozen turn always resolves.
func (r *Resolver) apply(state *MatchState, action rules.Action) {
	switch action.Type {
	case rules.ActionPass:
		// No-op marker.
		return
	case rules.ActionMove:
		r.applyMove(state, action)
	case rules.ActionAbility:
		r.applyAbility(state, action)
	}
}

func (r *Resolver) applyMove(state *MatchState, action rules.Action) {
	unit, ok := state.Units[action.UnitID]
	if !ok || !unit.Alive() || unit.HasActed || action.TargetPosition == nil {
		r.skip(state, action, "unit cannot act")
		return
	}
	dest := *action.TargetPosition
	if !state.Board.Contains(dest) {
		r.skip(state, action, "destination out of bounds")
		return
	}
	if occupant, occupied := state.LivingUnitAt(dest); occupied && occupant.ID != unit.ID {
		r.skip(state, action, "destination occupied")
		return
	}

	unit.Position = dest
	unit.HasActed = true
}

func (r *Resolver) applyAbility(state *MatchState, action rules.Action) {
	unit, ok := state.Units[action.UnitID]
	if !ok || !unit.Alive() || unit.HasActed {
		r.skip(state, action, "unit cannot act")
		return
	}
	ability, ok := r.catalog.Get(action.AbilityID)
	if !ok {
		r.skip(state, action, "ability not in catalog")
		return
	}
	owner, ok := state.Players[action.Player]
	if !ok || owner.CurrentAura < ability.AuraCost {
		r.skip(state, action, "insufficient aura")
		return
	}

	switch ability.Effect {
	case abilities.EffectDamage, abilities.EffectHeal:
		target := r.resolveTargetUnit(state, unit, action, ability)
		if target == nil {
			r.skip(state, action, "target no longer valid")
			return
		}
		if ability.Effect == abilities.EffectDamage {
			target.CurrentHealth -= ability.Magnitude
			if target.CurrentHealth < 0 {
				target.CurrentHealth = 0
			}
		} else {
			target.CurrentHealth += ability.Magnitude
			if target.CurrentHealth > target.MaxHealth {
				target.CurrentHealth = target.MaxHealth
			}
		}
	case abilities.EffectZone:
		if action.TargetPosition == nil || !state.Board.Contains(*action.TargetPosition) {
			r.skip(state, action, "zone position no longer valid")
			return
		}
		if board.Manhattan(unit.Position, *action.TargetPosition) > ability.Range {
			r.skip(state, action, "zone position out of range")
			return
		}
		state.AddZone(ZoneEffect{
			Position:          *action.TargetPosition,
			Kind:              ability.ZoneKind,
			Magnitude:         ability.Magnitude,
			RemainingDuration: ability.ZoneDuration,
			CreatedBy:         action.Player,
		})
	default:
		r.skip(state, action, "unknown effect type")
		return
	}

	owner.CurrentAura -= ability.AuraCost
	unit.HasActed = true
	if ability.Cooldown > 0 {
		// The end-of-turn tick runs before the next submission window, so
		// store one extra turn to leave the declared cooldown visible then.
		unit.Cooldowns[ability.ID] = ability.Cooldown + 1
	}
}

// resolveTargetUnit re-checks a unit target at application time. A target
// that died or was moved out of range earlier in the sequence yields nil.
func (r *Resolver) resolveTargetUnit(state *MatchState, actor *UnitState, action rules.Action, ability abilities.Ability) *UnitState {
	var target *UnitState
	switch {
	case ability.Targeting == abilities.TargetingSelf:
		target = actor
	case action.TargetUnitID != nil:
		target = state.Units[*action.TargetUnitID]
	default:
		return nil
	}
	if target == nil || !target.Alive() {
		return nil
	}
	if target.ID != actor.ID && board.Manhattan(actor.Position, target.Position) > ability.Range {
		return nil
	}
	return target
}

// applyZoneEffects damages every living unit standing in a zone, then
// decrements zone durations and drops expired zones.
func (r *Resolver) applyZoneEffects(state *MatchState) {
	for _, zone := range state.Zones {
		for _, unit := range state.Units {
			if unit.Alive() && unit.Position == zone.Position {
				unit.CurrentHealth -= zone.Magnitude
				if unit.CurrentHealth < 0 {
					unit.CurrentHealth = 0
				}
			}
		}
	}

	remaining := state.Zones[:0]
	for _, zone := range state.Zones {
		zone.RemainingDuration--
		if zone.RemainingDuration > 0 {
			remaining = append(remaining, zone)
		}
	}
	state.Zones = remaining
}

// checkGameEnd evaluates elimination and the turn cap.
func (r *Resolver) checkGameEnd(state *MatchState) (string, EndReason, bool) {
	firstAlive := state.LivingUnitCount(state.PlayerOrder[0])
	secondAlive := state.LivingUnitCount(state.PlayerOrder[1])

	switch {
	case firstAlive == 0 && secondAlive == 0:
		return "", EndReasonDraw, true
	case firstAlive == 0:
		return state.PlayerOrder[1], EndReasonElimination, true
	case secondAlive == 0:
		return state.PlayerOrder[0], EndReasonElimination, true
	}

	if r.turnCap > 0 && state.Machine.TurnNumber() >= r.turnCap {
		firstHealth := state.SummedHealth(state.PlayerOrder[0])
		secondHealth := state.SummedHealth(state.PlayerOrder[1])
		switch {
		case firstHealth > secondHealth:
			return state.PlayerOrder[0], EndReasonTurnLimit, true
		case secondHealth > firstHealth:
			return state.PlayerOrder[1], EndReasonTurnLimit, true
		default:
			return "", EndReasonDraw, true
		}
	}

	return "", "", false
}

// advanceTurn resets per-turn flags, ticks cooldowns, regenerates aura and
// reopens the submission window.
func (r *Resolver) advanceTurn(state *MatchState, now time.Time) {
	for _, unit := range state.Units {
		unit.HasActed = false
		for id, turns := range unit.Cooldowns {
			if turns <= 1 {
				delete(unit.Cooldowns, id)
			} else {
				unit.Cooldowns[id] = turns - 1
			}
		}
	}
	for _, player := range state.Players {
		player.HasSubmitted = false
		player.CurrentAura += r.auraRegen
		if player.CurrentAura > player.MaxAura {
			player.CurrentAura = player.MaxAura
		}
	}

	if err := state.Machine.NextTurn(now); err != nil {
		// Unreachable given the transitions above; log rather than corrupt.
		r.logger.Error("failed to advance turn",
			zap.String("match_id", state.MatchID),
			zap.Error(err),
		)
	}
}

func (r *Resolver) skip(state *MatchState, action rules.Action, why string) {
	r.logger.Debug("skipping stale action",
		zap.String("match_id", state.MatchID),
		zap.String("player", action.Player),
		zap.String("action_type", string(action.Type)),
		zap.Int("unit_id", action.UnitID),
		zap.String("reason", why),
	)
}
