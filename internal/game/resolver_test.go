package game

import (
	"testing"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/abilities"
	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"github.com/auragrid/arbiter-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestState() *MatchState {
	state := NewMatchState("m1", board.Grid{Width: 10, Height: 10}, [2]string{"p1", "p2"}, 10, 60*time.Second, testStart)
	state.AddUnit(&UnitState{
		ID: 1, Owner: "p1", Position: board.Position{X: 0, Z: 0},
		CurrentHealth: 20, MaxHealth: 20, MoveRange: 3,
		Abilities: []string{"strike", "aura_bolt", "mend", "scorch_field"},
	})
	state.AddUnit(&UnitState{
		ID: 2, Owner: "p2", Position: board.Position{X: 1, Z: 0},
		CurrentHealth: 20, MaxHealth: 20, MoveRange: 3,
		Abilities: []string{"strike", "aura_bolt"},
	})
	return state
}

func newTestResolver() *Resolver {
	return NewResolver(abilities.DefaultCatalog(), 30, 2, zap.NewNop())
}

func submit(state *MatchState, player string, actions ...rules.Action) {
	p := state.Players[player]
	for i := range actions {
		actions[i].Player = player
	}
	p.SubmittedActions = append(p.SubmittedActions, actions...)
	p.HasSubmitted = true
}

func targetUnit(id int) *int             { return &id }
func targetPos(x, z int) *board.Position { return &board.Position{X: x, Z: z} }

func TestInterleaveActions(t *testing.T) {
	a := func(id int) rules.Action { return rules.Action{Type: rules.ActionMove, UnitID: id} }

	merged := InterleaveActions(
		[]rules.Action{a(1), a(2), a(3)},
		[]rules.Action{a(10)},
	)
	require.Len(t, merged, 4)
	assert.Equal(t, 1, merged[0].UnitID)
	assert.Equal(t, 10, merged[1].UnitID)
	assert.Equal(t, 2, merged[2].UnitID)
	assert.Equal(t, 3, merged[3].UnitID)

	assert.Empty(t, InterleaveActions(nil, nil))
}

func TestResolveTurnMove(t *testing.T) {
	state := newTestState()
	r := newTestResolver()

	submit(state, "p1", rules.Action{Type: rules.ActionMove, UnitID: 1, TargetPosition: targetPos(2, 1)})
	submit(state, "p2", rules.Action{Type: rules.ActionPass})

	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	assert.Equal(t, board.Position{X: 2, Z: 1}, state.Units[1].Position)
	assert.Equal(t, rules.PhaseActionSubmission, state.Phase())
	assert.Equal(t, 2, state.Machine.TurnNumber())

	// Per-turn flags reset for the new submission window.
	assert.False(t, state.Units[1].HasActed)
	assert.False(t, state.Players["p1"].HasSubmitted)
	assert.Nil(t, state.Players["p1"].SubmittedActions)
}

func TestResolveTurnSimultaneousStrikes(t *testing.T) {
	state := newTestState()
	r := newTestResolver()

	submit(state, "p1", rules.Action{Type: rules.ActionAbility, UnitID: 1, AbilityID: "strike", TargetUnitID: targetUnit(2)})
	submit(state, "p2", rules.Action{Type: rules.ActionAbility, UnitID: 2, AbilityID: "strike", TargetUnitID: targetUnit(1)})

	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	// Both strikes land even though they are "simultaneous".
	assert.Equal(t, 15, state.Units[1].CurrentHealth)
	assert.Equal(t, 15, state.Units[2].CurrentHealth)

	// Aura spent, then 2 regenerated at turn advance: 10 - 2 + 2 = 10.
	assert.Equal(t, 10, state.Players["p1"].CurrentAura)
}

func TestResolveTurnSkipsStaleTarget(t *testing.T) {
	state := newTestState()
	state.Units[2].CurrentHealth = 5
	r := newTestResolver()

	// p1's strike kills unit 2 first; p2's counter-strike is then skipped
	// because its actor is dead, not errored.
	submit(state, "p1", rules.Action{Type: rules.ActionAbility, UnitID: 1, AbilityID: "strike", TargetUnitID: targetUnit(2)})
	submit(state, "p2", rules.Action{Type: rules.ActionAbility, UnitID: 2, AbilityID: "strike", TargetUnitID: targetUnit(1)})

	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	assert.Equal(t, 0, state.Units[2].CurrentHealth)
	assert.Equal(t, 20, state.Units[1].CurrentHealth)

	// p2 never paid for the skipped strike (plus regen clamped at max).
	assert.Equal(t, 10, state.Players["p2"].CurrentAura)

	// One side eliminated ends the match.
	assert.Equal(t, rules.PhaseComplete, state.Phase())
	assert.Equal(t, "p1", state.Winner)
	assert.Equal(t, EndReasonElimination, state.EndReason)
}

func TestResolveTurnSkipsMoveOntoOccupiedCell(t *testing.T) {
	state := newTestState()
	state.AddUnit(&UnitState{
		ID: 3, Owner: "p2", Position: board.Position{X: 3, Z: 0},
		CurrentHealth: 20, MaxHealth: 20, MoveRange: 3,
	})
	r := newTestResolver()

	// Both units race for (2,0). p1 resolves first and takes the cell;
	// p2's move is skipped at apply time.
	submit(state, "p1", rules.Action{Type: rules.ActionMove, UnitID: 1, TargetPosition: targetPos(2, 0)})
	submit(state, "p2", rules.Action{Type: rules.ActionMove, UnitID: 3, TargetPosition: targetPos(2, 0)})

	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	assert.Equal(t, board.Position{X: 2, Z: 0}, state.Units[1].Position)
	assert.Equal(t, board.Position{X: 3, Z: 0}, state.Units[3].Position)
}

func TestResolveTurnDraw(t *testing.T) {
	state := newTestState()
	state.Units[1].CurrentHealth = 5
	state.Units[2].CurrentHealth = 5
	r := newTestResolver()

	submit(state, "p1", rules.Action{Type: rules.ActionAbility, UnitID: 1, AbilityID: "strike", TargetUnitID: targetUnit(2)})
	submit(state, "p2", rules.Action{Type: rules.ActionAbility, UnitID: 2, AbilityID: "strike", TargetUnitID: targetUnit(1)})

	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	// p1's strike resolves first, kills unit 2, so unit 2's strike skips
	// and only one side dies. Mutual destruction needs both to land, so
	// craft it with zones instead: both standing in lethal fire.
	assert.Equal(t, rules.PhaseComplete, state.Phase())
	assert.Equal(t, "p1", state.Winner)

	state2 := newTestState()
	state2.Units[1].CurrentHealth = 1
	state2.Units[2].CurrentHealth = 1
	state2.AddZone(ZoneEffect{Position: board.Position{X: 0, Z: 0}, Kind: "fire", Magnitude: 2, RemainingDuration: 1, CreatedBy: "p2"})
	state2.AddZone(ZoneEffect{Position: board.Position{X: 1, Z: 0}, Kind: "fire", Magnitude: 2, RemainingDuration: 1, CreatedBy: "p1"})
	submit(state2, "p1", rules.Action{Type: rules.ActionPass})
	submit(state2, "p2", rules.Action{Type: rules.ActionPass})

	require.NoError(t, newTestResolver().ResolveTurn(state2, testStart.Add(time.Minute)))
	assert.Equal(t, rules.PhaseComplete, state2.Phase())
	assert.Equal(t, "", state2.Winner)
	assert.Equal(t, EndReasonDraw, state2.EndReason)
}

func TestResolveZoneLifecycle(t *testing.T) {
	state := newTestState()
	r := newTestResolver()

	// scorch_field at unit 2's cell: magnitude 2, duration 3.
	submit(state, "p1", rules.Action{Type: rules.ActionAbility, UnitID: 1, AbilityID: "scorch_field", TargetPosition: targetPos(1, 0)})
	submit(state, "p2", rules.Action{Type: rules.ActionPass})
	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	require.Len(t, state.Zones, 1)
	assert.Equal(t, 2, state.Zones[0].RemainingDuration)
	// The zone burns its occupant the turn it is created.
	assert.Equal(t, 18, state.Units[2].CurrentHealth)

	// Two more turns of standing in the fire; the zone expires after.
	for i := 0; i < 2; i++ {
		submit(state, "p1", rules.Action{Type: rules.ActionPass})
		submit(state, "p2", rules.Action{Type: rules.ActionPass})
		require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))
	}
	assert.Equal(t, 14, state.Units[2].CurrentHealth)
	assert.Empty(t, state.Zones)
}

func TestResolveCooldownTicks(t *testing.T) {
	state := newTestState()
	r := newTestResolver()

	// aura_bolt declares cooldown 1.
	submit(state, "p1", rules.Action{Type: rules.ActionAbility, UnitID: 1, AbilityID: "aura_bolt", TargetUnitID: targetUnit(2)})
	submit(state, "p2", rules.Action{Type: rules.ActionPass})
	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	// Turn 2: the cooldown is visible and blocks reuse.
	assert.Equal(t, 1, state.Units[1].Cooldowns["aura_bolt"])
	v := rules.NewValidator(abilities.DefaultCatalog(), false)
	verdict := v.Validate(state, rules.Action{Type: rules.ActionAbility, UnitID: 1, AbilityID: "aura_bolt", TargetUnitID: targetUnit(2)}, "p1", state.TurnStartedAt().Add(time.Second))
	assert.False(t, verdict.Accepted)
	assert.Equal(t, rules.ReasonAbilityNotAvailable, verdict.Reason)

	// Turn 3: expired.
	submit(state, "p1", rules.Action{Type: rules.ActionPass})
	submit(state, "p2", rules.Action{Type: rules.ActionPass})
	require.NoError(t, r.ResolveTurn(state, testStart.Add(2*time.Minute)))
	_, onCooldown := state.Units[1].Cooldowns["aura_bolt"]
	assert.False(t, onCooldown)
}

func TestResolveHealClampedAtMax(t *testing.T) {
	state := newTestState()
	state.Units[1].CurrentHealth = 18
	r := newTestResolver()

	// Self-owned unit 1 mends itself via a friendly target.
	state.AddUnit(&UnitState{
		ID: 3, Owner: "p1", Position: board.Position{X: 0, Z: 1},
		CurrentHealth: 20, MaxHealth: 20, MoveRange: 2, Abilities: []string{"mend"},
	})
	submit(state, "p1", rules.Action{Type: rules.ActionAbility, UnitID: 3, AbilityID: "mend", TargetUnitID: targetUnit(1)})
	submit(state, "p2", rules.Action{Type: rules.ActionPass})

	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))
	assert.Equal(t, 20, state.Units[1].CurrentHealth)
}

func TestResolveTurnCapDecidesOnHealth(t *testing.T) {
	state := newTestState()
	state.Units[2].CurrentHealth = 12
	// Turn cap 1: the first resolution already hits the cap.
	r := NewResolver(abilities.DefaultCatalog(), 1, 2, zap.NewNop())

	submit(state, "p1", rules.Action{Type: rules.ActionPass})
	submit(state, "p2", rules.Action{Type: rules.ActionPass})
	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	assert.Equal(t, rules.PhaseComplete, state.Phase())
	assert.Equal(t, "p1", state.Winner)
	assert.Equal(t, EndReasonTurnLimit, state.EndReason)
}

func TestResolveTurnCapEqualHealthDraws(t *testing.T) {
	state := newTestState()
	r := NewResolver(abilities.DefaultCatalog(), 1, 2, zap.NewNop())

	submit(state, "p1", rules.Action{Type: rules.ActionPass})
	submit(state, "p2", rules.Action{Type: rules.ActionPass})
	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	assert.Equal(t, EndReasonDraw, state.EndReason)
	assert.Equal(t, "", state.Winner)
}

func TestResolveAuraRegenClamped(t *testing.T) {
	state := newTestState()
	state.Players["p1"].CurrentAura = 3
	state.Players["p2"].CurrentAura = 10
	r := newTestResolver()

	submit(state, "p1", rules.Action{Type: rules.ActionPass})
	submit(state, "p2", rules.Action{Type: rules.ActionPass})
	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	assert.Equal(t, 5, state.Players["p1"].CurrentAura)
	assert.Equal(t, 10, state.Players["p2"].CurrentAura)
}

func TestResolveTurnOnlyOnce(t *testing.T) {
	state := newTestState()
	r := newTestResolver()

	submit(state, "p1", rules.Action{Type: rules.ActionPass})
	submit(state, "p2", rules.Action{Type: rules.ActionPass})
	require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))

	// The second call for the same turn must fail on the phase gate
	// before touching any state.
	state.Machine = rules.RestorePhaseMachine(rules.PhaseResolution, 2, testStart, time.Minute)
	err := r.ResolveTurn(state, testStart.Add(2*time.Minute))
	assert.Error(t, err)
}

func TestResolveDeterministic(t *testing.T) {
	run := func() Checksum {
		state := newTestState()
		r := newTestResolver()
		submit(state, "p1",
			rules.Action{Type: rules.ActionMove, UnitID: 1, TargetPosition: targetPos(1, 1)},
		)
		submit(state, "p2",
			rules.Action{Type: rules.ActionAbility, UnitID: 2, AbilityID: "strike", TargetUnitID: targetUnit(1)},
		)
		require.NoError(t, r.ResolveTurn(state, testStart.Add(time.Minute)))
		return TakeSnapshot(state).ComputeChecksum()
	}

	first := run()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first.Hash, run().Hash, "resolution must be deterministic")
	}
}
