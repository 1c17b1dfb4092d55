package game

import (
	"context"
	"sync"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/abilities"
	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"github.com/auragrid/arbiter-server-go/internal/game/rules"
	"github.com/auragrid/arbiter-server-go/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnapshotStore is the persistence collaborator: an opaque store keyed by
// match ID.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	LoadSnapshot(ctx context.Context, matchID string) (*Snapshot, error)
}

// RecordStore persists per-player anti-cheat records across matches.
type RecordStore interface {
	LoadRecord(ctx context.Context, playerID string) (*rules.Record, error)
	SaveRecord(ctx context.Context, record *rules.Record) error
}

// UpdatePublisher delivers state updates to connected clients. Publishing
// is fire-and-forget from the match's perspective; resolution never waits
// on client acknowledgment.
type UpdatePublisher interface {
	PublishUpdate(matchID string, update StateUpdate)
}

// Options groups the tunables for match processing.
type Options struct {
	Grid              board.Grid
	TurnTimeLimit     time.Duration
	TurnCap           int
	MaxAura           int
	AuraRegen         int
	MaxActionsPerTurn int
	MinSubmitInterval time.Duration
	RequirePath       bool
}

// DefaultOptions returns the stock match tunables.
func DefaultOptions() Options {
	return Options{
		Grid:              board.Grid{Width: 10, Height: 10},
		TurnTimeLimit:     60 * time.Second,
		TurnCap:           30,
		MaxAura:           10,
		AuraRegen:         2,
		MaxActionsPerTurn: 5,
		MinSubmitInterval: 100 * time.Millisecond,
	}
}

// Match is one running match: canonical state plus the lock that realizes
// the single-writer discipline. All validation, anti-cheat and resolution
// for the match happens under mu.
type Match struct {
	ID    string
	state *MatchState

	mu           sync.Mutex
	timer        *time.Timer
	prevSnapshot *Snapshot
}

// SubmitResult is what a submission attempt produces.
type SubmitResult struct {
	Verdict rules.Verdict
	Update  *StateUpdate
}

// Manager owns all running matches. Matches are fully independent; the
// only cross-match state is the per-player anti-cheat record behind
// RecordStore.
type Manager struct {
	opts      Options
	catalog   abilities.Catalog
	validator *rules.Validator
	detector  *rules.Detector
	enforcer  rules.PenaltyEnforcer
	records   RecordStore
	store     SnapshotStore
	recorder  *ReplayRecorder
	publisher UpdatePublisher
	resolver  *Resolver
	logger    *zap.Logger

	mu      sync.RWMutex
	matches map[string]*Match

	// now is the clock; tests swap it out.
	now func() time.Time
}

// NewManager creates a match manager. store, records, recorder, publisher
// and enforcer may be nil; the corresponding side effects are skipped.
func NewManager(opts Options, catalog abilities.Catalog, store SnapshotStore, records RecordStore, recorder *ReplayRecorder, publisher UpdatePublisher, enforcer rules.PenaltyEnforcer, logger *zap.Logger) *Manager {
	return &Manager{
		opts:      opts,
		catalog:   catalog,
		validator: rules.NewValidator(catalog, opts.RequirePath),
		detector:  rules.NewDetector(catalog, opts.MinSubmitInterval, opts.MaxActionsPerTurn),
		enforcer:  enforcer,
		records:   records,
		store:     store,
		recorder:  recorder,
		publisher: publisher,
		resolver:  NewResolver(catalog, opts.TurnCap, opts.AuraRegen, logger),
		logger:    logger,
		matches:   make(map[string]*Match),
		now:       time.Now,
	}
}

// CreateMatch starts a new match between two players with the given unit
// loadouts and arms the first turn timer.
func (m *Manager) CreateMatch(players [2]string, units []*UnitState) *Match {
	matchID := uuid.NewString()
	now := m.now()

	state := NewMatchState(matchID, m.opts.Grid, players, m.opts.MaxAura, m.opts.TurnTimeLimit, now)
	for _, u := range units {
		state.AddUnit(u)
	}

	match := &Match{
		ID:           matchID,
		state:        state,
		prevSnapshot: TakeSnapshot(state),
	}

	m.mu.Lock()
	m.matches[matchID] = match
	m.mu.Unlock()
	metrics.MatchesActive.Inc()

	if m.recorder != nil {
		m.recorder.StartRecording(matchID)
		m.recorder.RecordState(matchID, match.prevSnapshot)
	}

	m.armTimer(match, state.Machine.TurnNumber())

	m.logger.Info("match created",
		zap.String("match_id", matchID),
		zap.String("player1", players[0]),
		zap.String("player2", players[1]),
		zap.Int("units", len(units)),
	)

	return match
}

// Grid returns the grid bounds matches are created with.
func (m *Manager) Grid() board.Grid {
	return m.opts.Grid
}

// GetMatch returns a running match by ID.
func (m *Manager) GetMatch(matchID string) (*Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[matchID]
	return match, ok
}

// RemoveMatch drops a finished match from memory.
func (m *Manager) RemoveMatch(matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if match, ok := m.matches[matchID]; ok {
		match.mu.Lock()
		if match.timer != nil {
			match.timer.Stop()
		}
		match.mu.Unlock()
		delete(m.matches, matchID)
		metrics.MatchesActive.Dec()
	}
}

// SubmitAction validates one proposed action, runs anti-cheat inspection,
// and buffers it for resolution. A rejection leaves the match untouched;
// the client may resubmit until the turn timer expires.
func (m *Manager) SubmitAction(ctx context.Context, matchID, player string, action rules.Action) (result SubmitResult) {
	match, ok := m.GetMatch(matchID)
	if !ok {
		return SubmitResult{Verdict: rules.Reject(rules.ReasonMatchNotFound, "match not found")}
	}

	// The pipeline must never corrupt a match: an unexpected panic is
	// reported as INTERNAL_ERROR and the submission is discarded.
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("submission pipeline panic",
				zap.String("match_id", matchID),
				zap.String("player", player),
				zap.Any("panic", r),
			)
			result = SubmitResult{Verdict: rules.Reject(rules.ReasonInternalError, "internal error, please resubmit")}
		}
	}()

	match.mu.Lock()
	defer match.mu.Unlock()

	state := match.state
	now := m.now()
	action.Player = player
	action.SubmittedAt = now

	if !state.IsPlayer(player) {
		return SubmitResult{Verdict: rules.Reject(rules.ReasonNotInMatch, "player is not in this match")}
	}

	verdict := m.validator.Validate(state, action, player, now)
	metrics.ActionsValidated.WithLabelValues(string(verdict.Reason)).Inc()
	if !verdict.Accepted {
		m.logger.Debug("action rejected",
			zap.String("match_id", matchID),
			zap.String("player", player),
			zap.String("reason", string(verdict.Reason)),
		)
		return SubmitResult{Verdict: verdict}
	}

	playerState := state.Players[player]
	if suspicious := m.inspect(ctx, match, playerState, action, now); suspicious {
		// Same generic rejection as any invalid action; the real
		// consequences land on the account, not the response.
		playerState.LastSubmissionAt = now
		return SubmitResult{Verdict: rules.Reject(rules.ReasonSecurityViolation, "action rejected")}
	}

	playerState.SubmittedActions = append(playerState.SubmittedActions, action)
	playerState.LastSubmissionAt = now

	return SubmitResult{Verdict: rules.Accept()}
}

// CommitTurn marks a player as done submitting. When both players have
// committed, the turn resolves immediately.
func (m *Manager) CommitTurn(matchID, player string) SubmitResult {
	match, ok := m.GetMatch(matchID)
	if !ok {
		return SubmitResult{Verdict: rules.Reject(rules.ReasonMatchNotFound, "match not found")}
	}

	match.mu.Lock()
	defer match.mu.Unlock()

	state := match.state
	playerState, ok := state.Players[player]
	if !ok {
		return SubmitResult{Verdict: rules.Reject(rules.ReasonNotInMatch, "player is not in this match")}
	}
	switch state.Phase() {
	case rules.PhaseActionSubmission:
	case rules.PhaseComplete:
		return SubmitResult{Verdict: rules.Reject(rules.ReasonGameNotActive, "match is complete")}
	default:
		return SubmitResult{Verdict: rules.Reject(rules.ReasonWrongPhase, "cannot commit outside the submission phase")}
	}
	if playerState.HasSubmitted {
		return SubmitResult{Verdict: rules.Reject(rules.ReasonAlreadySubmitted, "player already submitted this turn")}
	}

	playerState.HasSubmitted = true

	bothSubmitted := true
	for _, p := range state.Players {
		if !p.HasSubmitted {
			bothSubmitted = false
		}
	}
	if bothSubmitted {
		m.resolveLocked(match)
	}

	return SubmitResult{Verdict: rules.Accept()}
}

// Forfeit ends the match immediately with the opponent as winner.
func (m *Manager) Forfeit(matchID, player string) rules.Verdict {
	match, ok := m.GetMatch(matchID)
	if !ok {
		return rules.Reject(rules.ReasonMatchNotFound, "match not found")
	}

	match.mu.Lock()
	defer match.mu.Unlock()

	state := match.state
	if !state.IsPlayer(player) {
		return rules.Reject(rules.ReasonNotInMatch, "player is not in this match")
	}
	if state.Phase() == rules.PhaseComplete {
		return rules.Reject(rules.ReasonGameNotActive, "match is complete")
	}

	if match.timer != nil {
		match.timer.Stop()
		match.timer = nil
	}

	state.Winner = state.Opponent(player)
	state.EndReason = EndReasonForfeit
	if err := state.Machine.Complete(); err != nil {
		return rules.Reject(rules.ReasonGameNotActive, "match is complete")
	}

	snapshot := TakeSnapshot(state)
	update := BuildDiff(match.prevSnapshot, snapshot)
	match.prevSnapshot = snapshot

	if m.recorder != nil {
		m.recorder.RecordState(match.ID, snapshot)
		if err := m.recorder.SaveReplay(match.ID); err != nil {
			m.logger.Warn("failed to save replay",
				zap.String("match_id", match.ID),
				zap.Error(err),
			)
		}
	}
	if m.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.store.SaveSnapshot(ctx, snapshot); err != nil {
				m.logger.Error("failed to persist match snapshot",
					zap.String("match_id", match.ID),
					zap.Error(err),
				)
			}
		}()
	}
	if m.publisher != nil {
		m.publisher.PublishUpdate(match.ID, update)
	}

	m.logger.Info("match forfeited",
		zap.String("match_id", match.ID),
		zap.String("player", player),
		zap.String("winner", state.Winner),
	)

	return rules.Accept()
}

// StateFor returns the full authoritative projection of a match.
func (m *Manager) StateFor(matchID string) (StateUpdate, bool) {
	match, ok := m.GetMatch(matchID)
	if !ok {
		return StateUpdate{}, false
	}
	match.mu.Lock()
	defer match.mu.Unlock()
	return BuildFullUpdate(TakeSnapshot(match.state)), true
}

// inspect runs the anti-cheat detector and, on violations, escalates the
// player's record. Failures to load or save the record fail open: the
// action still gets judged, the bookkeeping is logged and retried next
// submission.
func (m *Manager) inspect(ctx context.Context, match *Match, playerState *PlayerState, action rules.Action, now time.Time) bool {
	record := &rules.Record{PlayerID: playerState.ID}
	if m.records != nil {
		loaded, err := m.records.LoadRecord(ctx, playerState.ID)
		if err != nil {
			m.logger.Warn("failed to load anti-cheat record",
				zap.String("player", playerState.ID),
				zap.Error(err),
			)
		} else if loaded != nil {
			record = loaded
		}
	}

	inspection := m.detector.Inspect(
		match.state, action, record,
		playerState.SubmittedActions,
		match.ID, match.state.Machine.TurnNumber(), now,
	)
	if !inspection.Suspicious {
		return false
	}

	for _, v := range inspection.Violations {
		metrics.AntiCheatViolations.WithLabelValues(string(v.Kind)).Inc()
		m.logger.Warn("anti-cheat violation",
			zap.String("match_id", match.ID),
			zap.String("player", playerState.ID),
			zap.String("kind", string(v.Kind)),
			zap.String("detail", v.Detail),
			zap.Int("turn", v.TurnNumber),
		)
	}

	penalty, err := m.detector.Escalate(record, inspection, m.enforcer, now)
	if err != nil {
		m.logger.Error("penalty escalation failed",
			zap.String("player", playerState.ID),
			zap.Error(err),
		)
	}
	if penalty.Restricted {
		m.logger.Warn("player restricted",
			zap.String("player", playerState.ID),
			zap.Int("violation_count", record.ViolationCount),
			zap.Bool("permanent", penalty.Permanent),
			zap.Duration("duration", penalty.Duration),
		)
	}

	if m.records != nil {
		if err := m.records.SaveRecord(ctx, record); err != nil {
			m.logger.Error("failed to save anti-cheat record",
				zap.String("player", playerState.ID),
				zap.Error(err),
			)
		}
	}

	return true
}

// armTimer schedules the turn-expiry wake for the given turn. The turn
// number guards against a late fire racing a turn that already resolved.
func (m *Manager) armTimer(match *Match, turnNumber int) {
	if m.opts.TurnTimeLimit <= 0 {
		return
	}
	match.timer = time.AfterFunc(m.opts.TurnTimeLimit, func() {
		m.handleTimeout(match, turnNumber)
	})
}

// handleTimeout fires when the submission window closes. Players who never
// submitted are coerced to a single Pass so the turn cannot stall.
func (m *Manager) handleTimeout(match *Match, turnNumber int) {
	match.mu.Lock()
	defer match.mu.Unlock()

	state := match.state
	if state.Phase() != rules.PhaseActionSubmission || state.Machine.TurnNumber() != turnNumber {
		return
	}

	m.logger.Info("turn timer expired",
		zap.String("match_id", match.ID),
		zap.Int("turn", turnNumber),
	)

	m.resolveLocked(match)
}

// ExpireTurn forces the timeout path immediately. Exposed for tests and
// admin tooling; production flow relies on the armed timer.
func (m *Manager) ExpireTurn(matchID string) bool {
	match, ok := m.GetMatch(matchID)
	if !ok {
		return false
	}
	match.mu.Lock()
	defer match.mu.Unlock()
	if match.state.Phase() != rules.PhaseActionSubmission {
		return false
	}
	m.resolveLocked(match)
	return true
}

// resolveLocked runs one turn resolution. Caller holds match.mu.
func (m *Manager) resolveLocked(match *Match) {
	state := match.state
	now := m.now()

	if match.timer != nil {
		match.timer.Stop()
		match.timer = nil
	}

	// Coerce non-submitters to a single Pass.
	for _, p := range state.Players {
		if !p.HasSubmitted {
			p.SubmittedActions = append(p.SubmittedActions, rules.Action{
				Type:        rules.ActionPass,
				Player:      p.ID,
				SubmittedAt: now,
			})
			p.HasSubmitted = true
		}
	}

	resolvedTurn := state.Machine.TurnNumber()
	started := time.Now()
	if err := m.resolver.ResolveTurn(state, now); err != nil {
		m.logger.Error("turn resolution failed",
			zap.String("match_id", match.ID),
			zap.Int("turn", resolvedTurn),
			zap.Error(err),
		)
		return
	}
	metrics.TurnsResolved.Inc()
	metrics.ResolutionDuration.Observe(time.Since(started).Seconds())

	snapshot := TakeSnapshot(state)
	update := BuildDiff(match.prevSnapshot, snapshot)
	match.prevSnapshot = snapshot

	if m.recorder != nil {
		m.recorder.RecordState(match.ID, snapshot)
	}
	if m.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.store.SaveSnapshot(ctx, snapshot); err != nil {
				m.logger.Error("failed to persist match snapshot",
					zap.String("match_id", match.ID),
					zap.Error(err),
				)
			}
		}()
	}
	if m.publisher != nil {
		m.publisher.PublishUpdate(match.ID, update)
	}

	m.logger.Info("turn resolved",
		zap.String("match_id", match.ID),
		zap.Int("turn", resolvedTurn),
		zap.String("phase", state.Phase().String()),
	)

	if state.Phase() != rules.PhaseComplete {
		m.armTimer(match, state.Machine.TurnNumber())
	} else if m.recorder != nil {
		if err := m.recorder.SaveReplay(match.ID); err != nil {
			m.logger.Warn("failed to save replay",
				zap.String("match_id", match.ID),
				zap.Error(err),
			)
		}
	}
}
