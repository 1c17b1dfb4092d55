package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"github.com/auragrid/arbiter-server-go/internal/game/rules"
)

// Snapshot is a point-in-time copy of match state, safe to persist, replay
// and checksum. All fields are plain data; restoring one yields a live
// MatchState again.
type Snapshot struct {
	MatchID       string
	TurnNumber    int
	Phase         rules.Phase
	TurnStartedAt time.Time
	TimeLimit     time.Duration
	GridWidth     int
	GridHeight    int
	PlayerOrder   [2]string
	Players       map[string]PlayerSnapshot
	Units         map[int]UnitSnapshot
	Zones         []ZoneSnapshot
	NextZoneID    int
	Winner        string
	EndReason     EndReason
	TakenAt       time.Time
}

// PlayerSnapshot mirrors PlayerState.
type PlayerSnapshot struct {
	ID               string
	CurrentAura      int
	MaxAura          int
	HasSubmitted     bool
	SubmittedActions []rules.Action
	LastSubmissionAt time.Time
}

// UnitSnapshot mirrors UnitState.
type UnitSnapshot struct {
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

// ZoneSnapshot mirrors ZoneEffect.
type ZoneSnapshot struct {
	ID                int
	Position          board.Position
	Kind              string
	Magnitude         int
	RemainingDuration int
	CreatedBy         string
}

// TakeSnapshot deep-copies the current match state.
func TakeSnapshot(m *MatchState) *Snapshot {
	players := make(map[string]PlayerSnapshot, len(m.Players))
	for id, p := range m.Players {
		players[id] = PlayerSnapshot{
			ID:               p.ID,
			CurrentAura:      p.CurrentAura,
			MaxAura:          p.MaxAura,
			HasSubmitted:     p.HasSubmitted,
			SubmittedActions: append([]rules.Action(nil), p.SubmittedActions...),
			LastSubmissionAt: p.LastSubmissionAt,
		}
	}

	units := make(map[int]UnitSnapshot, len(m.Units))
	for id, u := range m.Units {
		cooldowns := make(map[string]int, len(u.Cooldowns))
		for ability, turns := range u.Cooldowns {
			cooldowns[ability] = turns
		}
		units[id] = UnitSnapshot{
			ID:            u.ID,
			Owner:         u.Owner,
			Position:      u.Position,
			CurrentHealth: u.CurrentHealth,
			MaxHealth:     u.MaxHealth,
			MoveRange:     u.MoveRange,
			Abilities:     append([]string(nil), u.Abilities...),
			HasActed:      u.HasActed,
			Cooldowns:     cooldowns,
		}
	}

	zones := make([]ZoneSnapshot, len(m.Zones))
	for i, z := range m.Zones {
		zones[i] = ZoneSnapshot(*z)
	}

	return &Snapshot{
		MatchID:       m.MatchID,
		TurnNumber:    m.Machine.TurnNumber(),
		Phase:         m.Machine.Phase(),
		TurnStartedAt: m.Machine.TurnStartedAt(),
		TimeLimit:     m.Machine.TimeLimit(),
		GridWidth:     m.Board.Width,
		GridHeight:    m.Board.Height,
		PlayerOrder:   m.PlayerOrder,
		Players:       players,
		Units:         units,
		Zones:         zones,
		NextZoneID:    m.nextZoneID,
		Winner:        m.Winner,
		EndReason:     m.EndReason,
		TakenAt:       time.Now().UTC(),
	}
}

// Restore rebuilds a live MatchState from the snapshot.
func (s *Snapshot) Restore() *MatchState {
	players := make(map[string]*PlayerState, len(s.Players))
	for id, p := range s.Players {
		players[id] = &PlayerState{
			ID:               p.ID,
			CurrentAura:      p.CurrentAura,
			MaxAura:          p.MaxAura,
			HasSubmitted:     p.HasSubmitted,
			SubmittedActions: append([]rules.Action(nil), p.SubmittedActions...),
			LastSubmissionAt: p.LastSubmissionAt,
		}
	}

	units := make(map[int]*UnitState, len(s.Units))
	for id, u := range s.Units {
		cooldowns := make(map[string]int, len(u.Cooldowns))
		for ability, turns := range u.Cooldowns {
			cooldowns[ability] = turns
		}
		units[id] = &UnitState{
			ID:            u.ID,
			Owner:         u.Owner,
			Position:      u.Position,
			CurrentHealth: u.CurrentHealth,
			MaxHealth:     u.MaxHealth,
			MoveRange:     u.MoveRange,
			Abilities:     append([]string(nil), u.Abilities...),
			HasActed:      u.HasActed,
			Cooldowns:     cooldowns,
		}
	}

	zones := make([]*ZoneEffect, len(s.Zones))
	for i, z := range s.Zones {
		zone := ZoneEffect(z)
		zones[i] = &zone
	}

	return &MatchState{
		MatchID:     s.MatchID,
		Machine:     rules.RestorePhaseMachine(s.Phase, s.TurnNumber, s.TurnStartedAt, s.TimeLimit),
		Board:       board.Grid{Width: s.GridWidth, Height: s.GridHeight},
		PlayerOrder: s.PlayerOrder,
		Players:     players,
		Units:       units,
		Zones:       zones,
		Winner:      s.Winner,
		EndReason:   s.EndReason,
		nextZoneID:  s.NextZoneID,
	}
}

// Checksum holds a deterministic digest of a snapshot.
type Checksum struct {
	Hash    string
	Version int
}

// ComputeChecksum generates a deterministic checksum of the snapshot,
// based on a sorted canonical representation that excludes wall-clock
// fields. Identical match states always hash identically, which is what
// the determinism tests and replay dispute checks rely on.
func (s *Snapshot) ComputeChecksum() Checksum {
	hash := sha256.Sum256([]byte(s.buildDeterministicRepresentation()))
	return Checksum{
		Hash:    hex.EncodeToString(hash[:]),
		Version: 1,
	}
}

// buildDeterministicRepresentation creates a canonical string form of the
// snapshot independent of map iteration order and timestamps.
func (s *Snapshot) buildDeterministicRepresentation() string {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("MATCH:%s|%d|%s|%s|%s|%dx%d\n",
		s.MatchID,
		s.TurnNumber,
		s.Phase,
		s.Winner,
		s.EndReason,
		s.GridWidth,
		s.GridHeight,
	))

	buf.WriteString(fmt.Sprintf("PLAYER_ORDER:%s,%s\n", s.PlayerOrder[0], s.PlayerOrder[1]))

	playerIDs := make([]string, 0, len(s.Players))
	for id := range s.Players {
		playerIDs = append(playerIDs, id)
	}
	sort.Strings(playerIDs)
	for _, id := range playerIDs {
		p := s.Players[id]
		buf.WriteString(fmt.Sprintf("PLAYER:%s|%d|%d|%t|%d\n",
			id,
			p.CurrentAura,
			p.MaxAura,
			p.HasSubmitted,
			len(p.SubmittedActions),
		))
		for i, action := range p.SubmittedActions {
			buf.WriteString(fmt.Sprintf("  ACTION:%d|%s\n", i, action.Fingerprint()))
		}
	}

	unitIDs := make([]int, 0, len(s.Units))
	for id := range s.Units {
		unitIDs = append(unitIDs, id)
	}
	sort.Ints(unitIDs)
	for _, id := range unitIDs {
		u := s.Units[id]
		buf.WriteString(fmt.Sprintf("UNIT:%d|%s|%d,%d|%d|%d|%d|%t\n",
			id,
			u.Owner,
			u.Position.X,
			u.Position.Z,
			u.CurrentHealth,
			u.MaxHealth,
			u.MoveRange,
			u.HasActed,
		))

		abilityIDs := make([]string, len(u.Abilities))
		copy(abilityIDs, u.Abilities)
		sort.Strings(abilityIDs)
		for _, abilityID := range abilityIDs {
			buf.WriteString(fmt.Sprintf("  ABILITY:%s\n", abilityID))
		}

		cooldownIDs := make([]string, 0, len(u.Cooldowns))
		for abilityID := range u.Cooldowns {
			cooldownIDs = append(cooldownIDs, abilityID)
		}
		sort.Strings(cooldownIDs)
		for _, abilityID := range cooldownIDs {
			buf.WriteString(fmt.Sprintf("  COOLDOWN:%s=%d\n", abilityID, u.Cooldowns[abilityID]))
		}
	}

	// Zone order matters: zones are applied in creation order.
	for _, z := range s.Zones {
		buf.WriteString(fmt.Sprintf("ZONE:%d|%d,%d|%s|%d|%d|%s\n",
			z.ID,
			z.Position.X,
			z.Position.Z,
			z.Kind,
			z.Magnitude,
			z.RemainingDuration,
			z.CreatedBy,
		))
	}

	return buf.String()
}

// SerializeToBytes encodes the snapshot with gob, the format used for
// replay files.
func (s *Snapshot) SerializeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeFromBytes decodes a gob-encoded snapshot.
func DeserializeFromBytes(data []byte) (*Snapshot, error) {
	var snapshot Snapshot
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}
