package game

import (
	"testing"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"github.com/auragrid/arbiter-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsDeepCopy(t *testing.T) {
	state := newTestState()
	state.AddZone(ZoneEffect{Position: board.Position{X: 5, Z: 5}, Kind: "fire", Magnitude: 2, RemainingDuration: 3, CreatedBy: "p1"})
	state.Units[1].Cooldowns["aura_bolt"] = 2

	snapshot := TakeSnapshot(state)

	// Mutating live state must not leak into the snapshot.
	state.Units[1].CurrentHealth = 1
	state.Units[1].Position = board.Position{X: 9, Z: 9}
	state.Units[1].Cooldowns["aura_bolt"] = 99
	state.Players["p1"].CurrentAura = 0
	state.Zones[0].RemainingDuration = 1

	assert.Equal(t, 20, snapshot.Units[1].CurrentHealth)
	assert.Equal(t, board.Position{X: 0, Z: 0}, snapshot.Units[1].Position)
	assert.Equal(t, 2, snapshot.Units[1].Cooldowns["aura_bolt"])
	assert.Equal(t, 10, snapshot.Players["p1"].CurrentAura)
	assert.Equal(t, 3, snapshot.Zones[0].RemainingDuration)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	state := newTestState()
	state.AddZone(ZoneEffect{Position: board.Position{X: 5, Z: 5}, Kind: "fire", Magnitude: 2, RemainingDuration: 3, CreatedBy: "p1"})
	state.Units[2].CurrentHealth = 7
	state.Players["p2"].CurrentAura = 4

	restored := TakeSnapshot(state).Restore()

	assert.Equal(t, state.MatchID, restored.MatchID)
	assert.Equal(t, state.Machine.TurnNumber(), restored.Machine.TurnNumber())
	assert.Equal(t, state.Phase(), restored.Phase())
	assert.Equal(t, state.Board, restored.Board)
	assert.Equal(t, 7, restored.Units[2].CurrentHealth)
	assert.Equal(t, 4, restored.Players["p2"].CurrentAura)
	require.Len(t, restored.Zones, 1)
	assert.Equal(t, "fire", restored.Zones[0].Kind)

	// Checksums of original and restored state agree.
	assert.Equal(t,
		TakeSnapshot(state).ComputeChecksum().Hash,
		TakeSnapshot(restored).ComputeChecksum().Hash,
	)

	// The restored state is live: zone IDs continue where they left off.
	id := restored.AddZone(ZoneEffect{Position: board.Position{X: 1, Z: 1}, Kind: "fire", Magnitude: 1, RemainingDuration: 1})
	assert.Equal(t, 2, id)
}

func TestChecksumIgnoresTimestamps(t *testing.T) {
	state := newTestState()

	a := TakeSnapshot(state)
	time.Sleep(time.Millisecond)
	b := TakeSnapshot(state)

	assert.NotEqual(t, a.TakenAt, b.TakenAt)
	assert.Equal(t, a.ComputeChecksum().Hash, b.ComputeChecksum().Hash)
}

func TestChecksumSensitiveToState(t *testing.T) {
	state := newTestState()
	base := TakeSnapshot(state).ComputeChecksum()

	state.Units[1].CurrentHealth--
	afterDamage := TakeSnapshot(state).ComputeChecksum()
	assert.NotEqual(t, base.Hash, afterDamage.Hash)

	state.Units[1].CurrentHealth++
	backAgain := TakeSnapshot(state).ComputeChecksum()
	assert.Equal(t, base.Hash, backAgain.Hash)
}

func TestChecksumCoversSubmittedActions(t *testing.T) {
	state := newTestState()
	base := TakeSnapshot(state).ComputeChecksum()

	submit(state, "p1", rules.Action{Type: rules.ActionMove, UnitID: 1, TargetPosition: targetPos(1, 1)})
	withAction := TakeSnapshot(state).ComputeChecksum()
	assert.NotEqual(t, base.Hash, withAction.Hash)
}

func TestSnapshotSerializeRoundTrip(t *testing.T) {
	state := newTestState()
	state.AddZone(ZoneEffect{Position: board.Position{X: 2, Z: 3}, Kind: "fire", Magnitude: 2, RemainingDuration: 2, CreatedBy: "p1"})
	snapshot := TakeSnapshot(state)

	data, err := snapshot.SerializeToBytes()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	decoded, err := DeserializeFromBytes(data)
	require.NoError(t, err)

	assert.Equal(t, snapshot.MatchID, decoded.MatchID)
	assert.Equal(t, snapshot.ComputeChecksum().Hash, decoded.ComputeChecksum().Hash)
}

func TestDeserializeGarbage(t *testing.T) {
	_, err := DeserializeFromBytes([]byte("not a snapshot"))
	assert.Error(t, err)
}
