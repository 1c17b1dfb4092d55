package game

import (
	"sort"

	"github.com/auragrid/arbiter-server-go/internal/game/board"
)

// StateUpdate is the authoritative projection pushed to clients after
// resolution. In a partial update an absent field means "unchanged",
// never "cleared"; clients merge field by field.
type StateUpdate struct {
	MatchID    string         `json:"matchId"`
	TurnNumber int            `json:"turnNumber"`
	Phase      string         `json:"phase"`
	Full       bool           `json:"full"`
	Players    []PlayerUpdate `json:"players,omitempty"`
	Units      []UnitUpdate   `json:"units,omitempty"`
	Zones      []ZoneUpdate   `json:"zones,omitempty"`
	Winner     *string        `json:"winner,omitempty"`
	EndReason  *string        `json:"endReason,omitempty"`
}

// PlayerUpdate carries the changed scalar fields for one player.
type PlayerUpdate struct {
	ID          string `json:"id"`
	CurrentAura *int   `json:"currentAura,omitempty"`
	MaxAura     *int   `json:"maxAura,omitempty"`
}

// UnitUpdate carries the changed fields for one unit. Cooldowns, when
// present, replace the client's copy wholesale.
type UnitUpdate struct {
	ID            int             `json:"id"`
	Owner         string          `json:"owner,omitempty"`
	Position      *board.Position `json:"position,omitempty"`
	CurrentHealth *int            `json:"currentHealth,omitempty"`
	MaxHealth     *int            `json:"maxHealth,omitempty"`
	MoveRange     *int            `json:"moveRange,omitempty"`
	HasActed      *bool           `json:"hasActed,omitempty"`
	Cooldowns     map[string]int  `json:"cooldowns,omitempty"`
}

// ZoneUpdate carries the changed fields for one zone, or its removal.
type ZoneUpdate struct {
	ID                int             `json:"id"`
	Position          *board.Position `json:"position,omitempty"`
	Kind              string          `json:"kind,omitempty"`
	Magnitude         *int            `json:"magnitude,omitempty"`
	RemainingDuration *int            `json:"remainingDuration,omitempty"`
	Removed           bool            `json:"removed,omitempty"`
}

// BuildFullUpdate projects the complete snapshot into a StateUpdate.
// Output ordering is deterministic: players in match order, units and
// zones sorted by ID.
func BuildFullUpdate(s *Snapshot) StateUpdate {
	update := StateUpdate{
		MatchID:    s.MatchID,
		TurnNumber: s.TurnNumber,
		Phase:      s.Phase.String(),
		Full:       true,
	}
	if s.Winner != "" {
		update.Winner = strPtr(s.Winner)
	}
	if s.EndReason != "" {
		update.EndReason = strPtr(string(s.EndReason))
	}

	for _, id := range s.PlayerOrder {
		p, ok := s.Players[id]
		if !ok {
			continue
		}
		update.Players = append(update.Players, PlayerUpdate{
			ID:          p.ID,
			CurrentAura: intPtr(p.CurrentAura),
			MaxAura:     intPtr(p.MaxAura),
		})
	}

	unitIDs := make([]int, 0, len(s.Units))
	for id := range s.Units {
		unitIDs = append(unitIDs, id)
	}
	sort.Ints(unitIDs)
	for _, id := range unitIDs {
		u := s.Units[id]
		pos := u.Position
		update.Units = append(update.Units, UnitUpdate{
			ID:            u.ID,
			Owner:         u.Owner,
			Position:      &pos,
			CurrentHealth: intPtr(u.CurrentHealth),
			MaxHealth:     intPtr(u.MaxHealth),
			MoveRange:     intPtr(u.MoveRange),
			HasActed:      boolPtr(u.HasActed),
			Cooldowns:     u.Cooldowns,
		})
	}

	for _, z := range s.Zones {
		pos := z.Position
		update.Zones = append(update.Zones, ZoneUpdate{
			ID:                z.ID,
			Position:          &pos,
			Kind:              z.Kind,
			Magnitude:         intPtr(z.Magnitude),
			RemainingDuration: intPtr(z.RemainingDuration),
		})
	}

	return update
}

// BuildDiff projects only what changed between two snapshots of the same
// match. Units and zones missing from curr but present in prev are emitted
// as removals (zones) or left to health-zero semantics (units never vanish
// from state, they die in place).
func BuildDiff(prev, curr *Snapshot) StateUpdate {
	update := StateUpdate{
		MatchID:    curr.MatchID,
		TurnNumber: curr.TurnNumber,
		Phase:      curr.Phase.String(),
	}
	if curr.Winner != "" && curr.Winner != prev.Winner {
		update.Winner = strPtr(curr.Winner)
	}
	if curr.EndReason != "" && curr.EndReason != prev.EndReason {
		update.EndReason = strPtr(string(curr.EndReason))
	}

	for _, id := range curr.PlayerOrder {
		currPlayer, ok := curr.Players[id]
		if !ok {
			continue
		}
		prevPlayer, existed := prev.Players[id]
		pu := PlayerUpdate{ID: id}
		changed := false
		if !existed || currPlayer.CurrentAura != prevPlayer.CurrentAura {
			pu.CurrentAura = intPtr(currPlayer.CurrentAura)
			changed = true
		}
		if !existed || currPlayer.MaxAura != prevPlayer.MaxAura {
			pu.MaxAura = intPtr(currPlayer.MaxAura)
			changed = true
		}
		if changed {
			update.Players = append(update.Players, pu)
		}
	}

	unitIDs := make([]int, 0, len(curr.Units))
	for id := range curr.Units {
		unitIDs = append(unitIDs, id)
	}
	sort.Ints(unitIDs)
	for _, id := range unitIDs {
		currUnit := curr.Units[id]
		prevUnit, existed := prev.Units[id]
		uu := UnitUpdate{ID: id}
		changed := false
		if !existed {
			uu.Owner = currUnit.Owner
			uu.MaxHealth = intPtr(currUnit.MaxHealth)
			uu.MoveRange = intPtr(currUnit.MoveRange)
			changed = true
		}
		if !existed || currUnit.Position != prevUnit.Position {
			pos := currUnit.Position
			uu.Position = &pos
			changed = true
		}
		if !existed || currUnit.CurrentHealth != prevUnit.CurrentHealth {
			uu.CurrentHealth = intPtr(currUnit.CurrentHealth)
			changed = true
		}
		if !existed || currUnit.HasActed != prevUnit.HasActed {
			uu.HasActed = boolPtr(currUnit.HasActed)
			changed = true
		}
		if !existed || !cooldownsEqual(currUnit.Cooldowns, prevUnit.Cooldowns) {
			uu.Cooldowns = currUnit.Cooldowns
			if uu.Cooldowns == nil {
				uu.Cooldowns = map[string]int{}
			}
			changed = true
		}
		if changed {
			update.Units = append(update.Units, uu)
		}
	}

	currZones := make(map[int]ZoneSnapshot, len(curr.Zones))
	for _, z := range curr.Zones {
		currZones[z.ID] = z
	}
	for _, prevZone := range prev.Zones {
		if _, still := currZones[prevZone.ID]; !still {
			update.Zones = append(update.Zones, ZoneUpdate{ID: prevZone.ID, Removed: true})
		}
	}
	prevZones := make(map[int]ZoneSnapshot, len(prev.Zones))
	for _, z := range prev.Zones {
		prevZones[z.ID] = z
	}
	for _, currZone := range curr.Zones {
		prevZone, existed := prevZones[currZone.ID]
		zu := ZoneUpdate{ID: currZone.ID}
		changed := false
		if !existed {
			pos := currZone.Position
			zu.Position = &pos
			zu.Kind = currZone.Kind
			zu.Magnitude = intPtr(currZone.Magnitude)
			changed = true
		}
		if !existed || currZone.RemainingDuration != prevZone.RemainingDuration {
			zu.RemainingDuration = intPtr(currZone.RemainingDuration)
			changed = true
		}
		if changed {
			update.Zones = append(update.Zones, zu)
		}
	}

	return update
}

func cooldownsEqual(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for id, turns := range a {
		if b[id] != turns {
			return false
		}
	}
	return true
}

func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
