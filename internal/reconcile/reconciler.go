// Package reconcile merges authoritative state updates into a client's
// locally-rendered mirror of match state. The server is always right:
// conflicts between local prediction and an update resolve in the
// server's favor, with one exception for positions that local prediction
// already animated to.
package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"go.uber.org/zap"
)

// LocalUnit is the client's mirror of one unit. PredictedPosition is
// where local optimistic prediction believes the unit is; Position is the
// last authoritative value.
type LocalUnit struct {
	ID                int
	Owner             string
	Position          board.Position
	PredictedPosition board.Position
	CurrentHealth     int
	MaxHealth         int
	MoveRange         int
	HasActed          bool
	Cooldowns         map[string]int
}

// LocalZone is the client's mirror of one zone effect.
type LocalZone struct {
	ID                int
	Position          board.Position
	Kind              string
	Magnitude         int
	RemainingDuration int
}

// LocalPlayer is the client's mirror of one player's resources.
type LocalPlayer struct {
	ID          string
	CurrentAura int
	MaxAura     int
}

// LocalState is the full client-side mirror.
type LocalState struct {
	MatchID    string
	TurnNumber int
	Phase      string
	Players    map[string]*LocalPlayer
	Units      map[int]*LocalUnit
	Zones      map[int]*LocalZone
	Winner     string
	EndReason  string
}

// NewLocalState creates an empty mirror.
func NewLocalState() *LocalState {
	return &LocalState{
		Players: make(map[string]*LocalPlayer),
		Units:   make(map[int]*LocalUnit),
		Zones:   make(map[int]*LocalZone),
	}
}

// Reconciler applies authoritative updates to a LocalState.
type Reconciler struct {
	state  *LocalState
	logger *zap.Logger
}

// NewReconciler creates a reconciler over the given mirror.
func NewReconciler(state *LocalState, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		state:  state,
		logger: logger,
	}
}

// State returns the mirror being maintained.
func (r *Reconciler) State() *LocalState {
	return r.state
}

// PredictMove optimistically moves a unit before the authoritative
// confirmation arrives. The rendered position updates immediately; the
// next state update either confirms it silently or snaps it back.
func (r *Reconciler) PredictMove(unitID int, pos board.Position) {
	if unit, ok := r.state.Units[unitID]; ok {
		unit.Position = pos
		unit.PredictedPosition = pos
	}
}

// updateEnvelope defers per-entry decoding so one malformed unit or zone
// cannot take down the whole update.
type updateEnvelope struct {
	MatchID    string            `json:"matchId"`
	TurnNumber int               `json:"turnNumber"`
	Phase      string            `json:"phase"`
	Full       bool              `json:"full"`
	Players    []json.RawMessage `json:"players"`
	Units      []json.RawMessage `json:"units"`
	Zones      []json.RawMessage `json:"zones"`
	Winner     *string           `json:"winner"`
	EndReason  *string           `json:"endReason"`
}

type playerEntry struct {
	ID          string `json:"id"`
	CurrentAura *int   `json:"currentAura"`
	MaxAura     *int   `json:"maxAura"`
}

type unitEntry struct {
	ID            int             `json:"id"`
	Owner         string          `json:"owner"`
	Position      *board.Position `json:"position"`
	CurrentHealth *int            `json:"currentHealth"`
	MaxHealth     *int            `json:"maxHealth"`
	MoveRange     *int            `json:"moveRange"`
	HasActed      *bool           `json:"hasActed"`
	Cooldowns     map[string]int  `json:"cooldowns"`
}

type zoneEntry struct {
	ID                int             `json:"id"`
	Position          *board.Position `json:"position"`
	Kind              string          `json:"kind"`
	Magnitude         *int            `json:"magnitude"`
	RemainingDuration *int            `json:"remainingDuration"`
	Removed           bool            `json:"removed"`
}

// Apply merges one serialized StateUpdate into the mirror. A parse
// failure on a single entry is logged and skipped; the remaining valid
// entries still apply. Only a malformed envelope fails the whole update.
func (r *Reconciler) Apply(data []byte) error {
	var env updateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("malformed state update: %w", err)
	}

	r.state.MatchID = env.MatchID
	r.state.TurnNumber = env.TurnNumber
	if env.Phase != "" {
		r.state.Phase = env.Phase
	}
	if env.Winner != nil {
		r.state.Winner = *env.Winner
	}
	if env.EndReason != nil {
		r.state.EndReason = *env.EndReason
	}

	for i, raw := range env.Players {
		if err := r.applyPlayer(raw); err != nil {
			r.logger.Warn("skipping malformed player entry",
				zap.Int("index", i),
				zap.Error(err),
			)
		}
	}
	for i, raw := range env.Units {
		if err := r.applyUnit(raw); err != nil {
			r.logger.Warn("skipping malformed unit entry",
				zap.Int("index", i),
				zap.Error(err),
			)
		}
	}
	for i, raw := range env.Zones {
		if err := r.applyZone(raw); err != nil {
			r.logger.Warn("skipping malformed zone entry",
				zap.Int("index", i),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (r *Reconciler) applyPlayer(raw json.RawMessage) error {
	var entry playerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return err
	}
	if entry.ID == "" {
		return fmt.Errorf("player entry missing id")
	}

	player, ok := r.state.Players[entry.ID]
	if !ok {
		player = &LocalPlayer{ID: entry.ID}
		r.state.Players[entry.ID] = player
	}

	// Scalars are overwritten unconditionally; absence means unchanged.
	if entry.CurrentAura != nil {
		player.CurrentAura = *entry.CurrentAura
	}
	if entry.MaxAura != nil {
		player.MaxAura = *entry.MaxAura
	}
	return nil
}

func (r *Reconciler) applyUnit(raw json.RawMessage) error {
	var entry unitEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return err
	}
	if entry.ID == 0 {
		return fmt.Errorf("unit entry missing id")
	}

	unit, ok := r.state.Units[entry.ID]
	if !ok {
		unit = &LocalUnit{ID: entry.ID}
		r.state.Units[entry.ID] = unit
	}

	if entry.Owner != "" {
		unit.Owner = entry.Owner
	}
	if entry.Position != nil {
		// Positions apply only when they differ from the local prediction,
		// so a unit that already animated there does not visibly snap.
		if *entry.Position != unit.PredictedPosition {
			unit.Position = *entry.Position
		}
		unit.PredictedPosition = *entry.Position
	}
	if entry.CurrentHealth != nil {
		unit.CurrentHealth = *entry.CurrentHealth
	}
	if entry.MaxHealth != nil {
		unit.MaxHealth = *entry.MaxHealth
	}
	if entry.MoveRange != nil {
		unit.MoveRange = *entry.MoveRange
	}
	if entry.HasActed != nil {
		unit.HasActed = *entry.HasActed
	}
	if entry.Cooldowns != nil {
		unit.Cooldowns = entry.Cooldowns
	}
	return nil
}

func (r *Reconciler) applyZone(raw json.RawMessage) error {
	var entry zoneEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return err
	}
	if entry.ID == 0 {
		return fmt.Errorf("zone entry missing id")
	}

	if entry.Removed {
		delete(r.state.Zones, entry.ID)
		return nil
	}

	zone, ok := r.state.Zones[entry.ID]
	if !ok {
		zone = &LocalZone{ID: entry.ID}
		r.state.Zones[entry.ID] = zone
	}

	if entry.Position != nil {
		zone.Position = *entry.Position
	}
	if entry.Kind != "" {
		zone.Kind = entry.Kind
	}
	if entry.Magnitude != nil {
		zone.Magnitude = *entry.Magnitude
	}
	if entry.RemainingDuration != nil {
		zone.RemainingDuration = *entry.RemainingDuration
	}
	return nil
}
