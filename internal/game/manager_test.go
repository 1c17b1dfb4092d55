package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/abilities"
	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"github.com/auragrid/arbiter-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedUpdate struct {
	matchID string
	update  StateUpdate
}

type fakePublisher struct {
	mu      sync.Mutex
	updates []capturedUpdate
}

func (f *fakePublisher) PublishUpdate(matchID string, update StateUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, capturedUpdate{matchID, update})
}

func (f *fakePublisher) last() (capturedUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return capturedUpdate{}, false
	}
	return f.updates[len(f.updates)-1], true
}

type fakeRecordStore struct {
	mu      sync.Mutex
	records map[string]*rules.Record
	saved   int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]*rules.Record)}
}

func (f *fakeRecordStore) LoadRecord(ctx context.Context, playerID string) (*rules.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[playerID]; ok {
		copied := *r
		return &copied, nil
	}
	return &rules.Record{PlayerID: playerID}, nil
}

func (f *fakeRecordStore) SaveRecord(ctx context.Context, record *rules.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *record
	f.records[record.PlayerID] = &copied
	f.saved++
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *fakePublisher, *fakeRecordStore, *testClock) {
	t.Helper()
	publisher := &fakePublisher{}
	records := newFakeRecordStore()
	clock := &testClock{now: testStart}

	m := NewManager(DefaultOptions(), abilities.DefaultCatalog(), nil, records, nil, publisher, nil, zap.NewNop())
	m.now = clock.Now
	return m, publisher, records, clock
}

func createTestMatch(m *Manager) *Match {
	return m.CreateMatch([2]string{"p1", "p2"}, []*UnitState{
		{ID: 1, Owner: "p1", Position: board.Position{X: 0, Z: 0}, CurrentHealth: 20, MaxHealth: 20, MoveRange: 3, Abilities: []string{"strike", "aura_bolt"}},
		{ID: 2, Owner: "p2", Position: board.Position{X: 1, Z: 0}, CurrentHealth: 20, MaxHealth: 20, MoveRange: 3, Abilities: []string{"strike"}},
	})
}

func TestManagerCreateAndGetMatch(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	match := createTestMatch(m)
	defer m.RemoveMatch(match.ID)

	got, ok := m.GetMatch(match.ID)
	require.True(t, ok)
	assert.Equal(t, match.ID, got.ID)

	_, ok = m.GetMatch("nope")
	assert.False(t, ok)
}

func TestManagerSubmitAction(t *testing.T) {
	m, _, _, clock := newTestManager(t)
	match := createTestMatch(m)
	defer m.RemoveMatch(match.ID)
	ctx := context.Background()

	result := m.SubmitAction(ctx, match.ID, "p1", rules.Action{
		Type: rules.ActionMove, UnitID: 1, TargetPosition: targetPos(2, 1),
	})
	require.True(t, result.Verdict.Accepted, "verdict: %s %s", result.Verdict.Reason, result.Verdict.Message)

	// Rejection reasons surface untouched.
	clock.Advance(time.Second)
	result = m.SubmitAction(ctx, match.ID, "p1", rules.Action{
		Type: rules.ActionMove, UnitID: 2, TargetPosition: targetPos(2, 0),
	})
	assert.False(t, result.Verdict.Accepted)
	assert.Equal(t, rules.ReasonUnitNotOwned, result.Verdict.Reason)

	result = m.SubmitAction(ctx, "missing-match", "p1", rules.Action{Type: rules.ActionPass})
	assert.Equal(t, rules.ReasonMatchNotFound, result.Verdict.Reason)

	result = m.SubmitAction(ctx, match.ID, "stranger", rules.Action{Type: rules.ActionPass})
	assert.Equal(t, rules.ReasonNotInMatch, result.Verdict.Reason)
}

func TestManagerCommitTurnResolvesWhenBothCommit(t *testing.T) {
	m, publisher, _, clock := newTestManager(t)
	match := createTestMatch(m)
	defer m.RemoveMatch(match.ID)
	ctx := context.Background()

	result := m.SubmitAction(ctx, match.ID, "p1", rules.Action{
		Type: rules.ActionMove, UnitID: 1, TargetPosition: targetPos(2, 1),
	})
	require.True(t, result.Verdict.Accepted)

	require.True(t, m.CommitTurn(match.ID, "p1").Verdict.Accepted)

	// One committed player does not resolve the turn.
	state, ok := m.StateFor(match.ID)
	require.True(t, ok)
	assert.Equal(t, 1, state.TurnNumber)

	// A second commit from the same player is rejected.
	second := m.CommitTurn(match.ID, "p1")
	assert.Equal(t, rules.ReasonAlreadySubmitted, second.Verdict.Reason)

	clock.Advance(time.Second)
	require.True(t, m.CommitTurn(match.ID, "p2").Verdict.Accepted)

	state, _ = m.StateFor(match.ID)
	assert.Equal(t, 2, state.TurnNumber)

	// The resolution pushed a diff to subscribers.
	last, ok := publisher.last()
	require.True(t, ok)
	assert.Equal(t, match.ID, last.matchID)
	assert.Equal(t, 2, last.update.TurnNumber)
	assert.False(t, last.update.Full)
}

func TestManagerExpireTurnCoercesPass(t *testing.T) {
	m, _, _, clock := newTestManager(t)
	match := createTestMatch(m)
	defer m.RemoveMatch(match.ID)

	// Nobody submits anything; the timeout path must still advance the
	// turn by treating both players as passing.
	clock.Advance(61 * time.Second)
	require.True(t, m.ExpireTurn(match.ID))

	state, _ := m.StateFor(match.ID)
	assert.Equal(t, 2, state.TurnNumber)
	assert.Equal(t, "ACTION_SUBMISSION", state.Phase)

	assert.False(t, m.ExpireTurn("missing-match"))
}

func TestManagerAntiCheatRejectionIsGeneric(t *testing.T) {
	m, _, records, _ := newTestManager(t)
	match := createTestMatch(m)
	defer m.RemoveMatch(match.ID)
	ctx := context.Background()

	// Two submissions with no time between them: the second trips the
	// rapid-submission heuristic. The client sees only the generic code.
	first := m.SubmitAction(ctx, match.ID, "p1", rules.Action{
		Type: rules.ActionMove, UnitID: 1, TargetPosition: targetPos(1, 1),
	})
	require.True(t, first.Verdict.Accepted)

	second := m.SubmitAction(ctx, match.ID, "p1", rules.Action{
		Type: rules.ActionMove, UnitID: 1, TargetPosition: targetPos(2, 0),
	})
	require.False(t, second.Verdict.Accepted)
	assert.Equal(t, rules.ReasonSecurityViolation, second.Verdict.Reason)
	assert.Equal(t, "action rejected", second.Verdict.Message)

	// The violation landed on the persistent record.
	record, err := records.LoadRecord(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, record.ViolationCount)
}

func TestManagerDuplicateSubmissionFlagged(t *testing.T) {
	m, _, records, clock := newTestManager(t)
	match := createTestMatch(m)
	defer m.RemoveMatch(match.ID)
	ctx := context.Background()

	action := rules.Action{Type: rules.ActionMove, UnitID: 1, TargetPosition: targetPos(1, 1)}
	require.True(t, m.SubmitAction(ctx, match.ID, "p1", action).Verdict.Accepted)

	clock.Advance(time.Second)
	result := m.SubmitAction(ctx, match.ID, "p1", action)
	assert.Equal(t, rules.ReasonSecurityViolation, result.Verdict.Reason)

	record, _ := records.LoadRecord(ctx, "p1")
	assert.Equal(t, 1, record.ViolationCount)
}

func TestManagerSubmitActionAuraBudgetAcrossTurn(t *testing.T) {
	m, _, _, clock := newTestManager(t)
	match := m.CreateMatch([2]string{"p1", "p2"}, []*UnitState{
		{ID: 1, Owner: "p1", Position: board.Position{X: 0, Z: 0}, CurrentHealth: 20, MaxHealth: 20, MoveRange: 3, Abilities: []string{"strike", "aura_bolt", "mend", "scorch_field"}},
		{ID: 2, Owner: "p2", Position: board.Position{X: 1, Z: 0}, CurrentHealth: 20, MaxHealth: 20, MoveRange: 3, Abilities: []string{"strike"}},
	})
	defer m.RemoveMatch(match.ID)
	ctx := context.Background()

	// Aura is deducted at resolution, so the validator has to count
	// buffered spend. scorch_field + aura_bolt + strike claim 9 of the 10
	// aura; mend at cost 2 no longer fits.
	buffered := []rules.Action{
		{Type: rules.ActionAbility, UnitID: 1, AbilityID: "scorch_field", TargetPosition: targetPos(1, 1)},
		{Type: rules.ActionAbility, UnitID: 1, AbilityID: "aura_bolt", TargetUnitID: targetUnit(2)},
		{Type: rules.ActionAbility, UnitID: 1, AbilityID: "strike", TargetUnitID: targetUnit(2)},
	}
	for i, action := range buffered {
		clock.Advance(time.Second)
		result := m.SubmitAction(ctx, match.ID, "p1", action)
		require.True(t, result.Verdict.Accepted, "action %d: %s %s", i+1, result.Verdict.Reason, result.Verdict.Message)
	}

	clock.Advance(time.Second)
	result := m.SubmitAction(ctx, match.ID, "p1", rules.Action{
		Type: rules.ActionAbility, UnitID: 1, AbilityID: "mend", TargetUnitID: targetUnit(1),
	})
	assert.False(t, result.Verdict.Accepted)
	assert.Equal(t, rules.ReasonInsufficientAura, result.Verdict.Reason)
}

func TestManagerForfeit(t *testing.T) {
	m, publisher, _, _ := newTestManager(t)
	match := createTestMatch(m)
	defer m.RemoveMatch(match.ID)

	verdict := m.Forfeit(match.ID, "p2")
	require.True(t, verdict.Accepted)

	state, _ := m.StateFor(match.ID)
	assert.Equal(t, "COMPLETE", state.Phase)

	last, ok := publisher.last()
	require.True(t, ok)
	require.NotNil(t, last.update.Winner)
	assert.Equal(t, "p1", *last.update.Winner)
	require.NotNil(t, last.update.EndReason)
	assert.Equal(t, string(EndReasonForfeit), *last.update.EndReason)

	// A finished match accepts nothing further.
	verdict = m.Forfeit(match.ID, "p1")
	assert.Equal(t, rules.ReasonGameNotActive, verdict.Reason)

	result := m.SubmitAction(context.Background(), match.ID, "p1", rules.Action{Type: rules.ActionPass})
	assert.Equal(t, rules.ReasonGameNotActive, result.Verdict.Reason)
}

func TestManagerStateForProducesFullUpdate(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	match := createTestMatch(m)
	defer m.RemoveMatch(match.ID)

	state, ok := m.StateFor(match.ID)
	require.True(t, ok)
	assert.True(t, state.Full)
	assert.Len(t, state.Players, 2)
	assert.Len(t, state.Units, 2)

	_, ok = m.StateFor("missing-match")
	assert.False(t, ok)
}
