package game

import (
	"time"

	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"github.com/auragrid/arbiter-server-go/internal/game/rules"
)

// EndReason explains how a completed match ended.
type EndReason string

const (
	EndReasonElimination EndReason = "ELIMINATION"
	EndReasonTurnLimit   EndReason = "TURN_LIMIT"
	EndReasonDraw        EndReason = "DRAW"
	EndReasonForfeit     EndReason = "FORFEIT"
)

// PlayerState is the per-player slice of match state.
type PlayerState struct {
	ID               string
	CurrentAura      int
	MaxAura          int
	HasSubmitted     bool
	SubmittedActions []rules.Action
	LastSubmissionAt time.Time
}

// UnitState is one unit on the grid.
type UnitState struct {
	ID            int
	Owner         string
	Position      board.Position
	CurrentHealth int
	MaxHealth     int
	MoveRange     int
	Abilities     []string
	HasActed      bool
	Cooldowns     map[string]int
}

// Alive reports whether the unit is still on the board.
func (u *UnitState) Alive() bool {
	return u.CurrentHealth > 0
}

// ZoneEffect is one active area effect. Magnitude is copied from the
// creating ability so zone resolution never needs a catalog lookup.
type ZoneEffect struct {
	ID                int
	Position          board.Position
	Kind              string
	Magnitude         int
	RemainingDuration int
	CreatedBy         string
}

// MatchState is the canonical, versioned state of one match. The server
// process is its single authoritative owner; clients only ever hold
// read-only projections of it.
type MatchState struct {
	MatchID     string
	Machine     *rules.PhaseMachine
	Board       board.Grid
	PlayerOrder [2]string
	Players     map[string]*PlayerState
	Units       map[int]*UnitState
	Zones       []*ZoneEffect
	Winner      string
	EndReason   EndReason

	nextZoneID int
}

// NewMatchState creates match state at turn 1 in the submission phase.
// playerOrder fixes the interleaving order for the whole match.
func NewMatchState(matchID string, grid board.Grid, playerOrder [2]string, maxAura int, timeLimit time.Duration, now time.Time) *MatchState {
	players := make(map[string]*PlayerState, 2)
	for _, id := range playerOrder {
		players[id] = &PlayerState{
			ID:          id,
			CurrentAura: maxAura,
			MaxAura:     maxAura,
		}
	}
	return &MatchState{
		MatchID:     matchID,
		Machine:     rules.NewPhaseMachine(timeLimit, now),
		Board:       grid,
		PlayerOrder: playerOrder,
		Players:     players,
		Units:       make(map[int]*UnitState),
		nextZoneID:  1,
	}
}

// AddUnit places a unit on the grid.
func (m *MatchState) AddUnit(u *UnitState) {
	if u.Cooldowns == nil {
		u.Cooldowns = make(map[string]int)
	}
	m.Units[u.ID] = u
}

// AddZone registers a new zone effect and returns its assigned ID.
func (m *MatchState) AddZone(z ZoneEffect) int {
	z.ID = m.nextZoneID
	m.nextZoneID++
	m.Zones = append(m.Zones, &z)
	return z.ID
}

// Opponent returns the other player's ID.
func (m *MatchState) Opponent(player string) string {
	if m.PlayerOrder[0] == player {
		return m.PlayerOrder[1]
	}
	return m.PlayerOrder[0]
}

// IsPlayer reports whether the given ID is one of the match's players.
func (m *MatchState) IsPlayer(player string) bool {
	_, ok := m.Players[player]
	return ok
}

// LivingUnitCount returns the number of living units owned by player.
func (m *MatchState) LivingUnitCount(player string) int {
	count := 0
	for _, u := range m.Units {
		if u.Owner == player && u.Alive() {
			count++
		}
	}
	return count
}

// SummedHealth returns the total remaining health of player's living units.
func (m *MatchState) SummedHealth(player string) int {
	total := 0
	for _, u := range m.Units {
		if u.Owner == player && u.Alive() {
			total += u.CurrentHealth
		}
	}
	return total
}

// ==================== rules.StateAccessor ====================

// Phase returns the current turn phase.
func (m *MatchState) Phase() rules.Phase {
	return m.Machine.Phase()
}

// TurnStartedAt returns when the current submission window opened.
func (m *MatchState) TurnStartedAt() time.Time {
	return m.Machine.TurnStartedAt()
}

// TurnTimeLimit returns the submission window length.
func (m *MatchState) TurnTimeLimit() time.Duration {
	return m.Machine.TimeLimit()
}

// Grid returns the match grid bounds.
func (m *MatchState) Grid() board.Grid {
	return m.Board
}

// FindUnit returns validation info for the given unit.
func (m *MatchState) FindUnit(unitID int) (rules.UnitInfo, bool) {
	u, ok := m.Units[unitID]
	if !ok {
		return rules.UnitInfo{}, false
	}
	return unitInfo(u), true
}

// FindPlayer returns validation info for the given player.
func (m *MatchState) FindPlayer(playerID string) (rules.PlayerInfo, bool) {
	p, ok := m.Players[playerID]
	if !ok {
		return rules.PlayerInfo{}, false
	}
	return rules.PlayerInfo{
		ID:               p.ID,
		CurrentAura:      p.CurrentAura,
		MaxAura:          p.MaxAura,
		HasSubmitted:     p.HasSubmitted,
		SubmittedCount:   len(p.SubmittedActions),
		LastSubmissionAt: p.LastSubmissionAt,
	}, true
}

// PendingActions returns the actions the player has buffered this turn.
func (m *MatchState) PendingActions(playerID string) []rules.Action {
	p, ok := m.Players[playerID]
	if !ok {
		return nil
	}
	return append([]rules.Action(nil), p.SubmittedActions...)
}

// LivingUnitAt returns the living unit occupying pos, if any.
func (m *MatchState) LivingUnitAt(pos board.Position) (rules.UnitInfo, bool) {
	for _, u := range m.Units {
		if u.Alive() && u.Position == pos {
			return unitInfo(u), true
		}
	}
	return rules.UnitInfo{}, false
}

// OccupiedCells returns a fresh set of cells occupied by living units.
// Callers may mutate the returned map.
func (m *MatchState) OccupiedCells() map[board.Position]bool {
	occupied := make(map[board.Position]bool, len(m.Units))
	for _, u := range m.Units {
		if u.Alive() {
			occupied[u.Position] = true
		}
	}
	return occupied
}

func unitInfo(u *UnitState) rules.UnitInfo {
	cooldowns := make(map[string]int, len(u.Cooldowns))
	for id, turns := range u.Cooldowns {
		cooldowns[id] = turns
	}
	return rules.UnitInfo{
		ID:            u.ID,
		Owner:         u.Owner,
		Position:      u.Position,
		CurrentHealth: u.CurrentHealth,
		MaxHealth:     u.MaxHealth,
		MoveRange:     u.MoveRange,
		HasActed:      u.HasActed,
		Abilities:     append([]string(nil), u.Abilities...),
		Cooldowns:     cooldowns,
	}
}
