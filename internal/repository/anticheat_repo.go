package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/auragrid/arbiter-server-go/internal/game/rules"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned when an optimistic save lost the race.
var ErrVersionConflict = errors.New("record version conflict")

// AntiCheatRepository persists per-player anti-cheat records. Records are
// the one resource shared across matches, so saves use an optimistic
// version check rather than trusting last-writer-wins.
type AntiCheatRepository struct {
	db *pgxpool.Pool
}

// NewAntiCheatRepository creates an anti-cheat repository.
func NewAntiCheatRepository(db *DB) *AntiCheatRepository {
	return &AntiCheatRepository{db: db.Pool()}
}

// LoadRecord returns the record for a player, or a fresh zero record when
// none exists yet.
func (r *AntiCheatRepository) LoadRecord(ctx context.Context, playerID string) (*rules.Record, error) {
	var (
		count         int
		historyData   []byte
		lastPenaltyAt *time.Time
		version       int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT violation_count, violation_history, last_penalty_at, version
		 FROM anticheat_records WHERE player_id = $1`,
		playerID,
	).Scan(&count, &historyData, &lastPenaltyAt, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return &rules.Record{PlayerID: playerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load anti-cheat record: %w", err)
	}

	var history []rules.Violation
	if len(historyData) > 0 {
		if err := json.Unmarshal(historyData, &history); err != nil {
			return nil, fmt.Errorf("failed to unmarshal violation history: %w", err)
		}
	}

	record := &rules.Record{
		PlayerID:         playerID,
		ViolationCount:   count,
		ViolationHistory: history,
		Version:          version,
	}
	if lastPenaltyAt != nil {
		record.LastPenaltyAt = *lastPenaltyAt
	}
	return record, nil
}

// SaveRecord upserts a record, failing with ErrVersionConflict when the
// stored version moved since the record was loaded.
func (r *AntiCheatRepository) SaveRecord(ctx context.Context, record *rules.Record) error {
	historyData, err := json.Marshal(record.ViolationHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal violation history: %w", err)
	}

	var lastPenaltyAt *time.Time
	if !record.LastPenaltyAt.IsZero() {
		lastPenaltyAt = &record.LastPenaltyAt
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO anticheat_records (player_id, violation_count, violation_history, last_penalty_at, version)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (player_id)
		 DO UPDATE SET violation_count = $2, violation_history = $3, last_penalty_at = $4,
		               version = anticheat_records.version + 1
		 WHERE anticheat_records.version = $5`,
		record.PlayerID,
		record.ViolationCount,
		historyData,
		lastPenaltyAt,
		record.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save anti-cheat record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	record.Version++
	return nil
}

// RestrictionRepository records account restrictions applied by the
// anti-cheat escalation step. It implements rules.PenaltyEnforcer.
type RestrictionRepository struct {
	db *pgxpool.Pool
}

// NewRestrictionRepository creates a restriction repository.
func NewRestrictionRepository(db *DB) *RestrictionRepository {
	return &RestrictionRepository{db: db.Pool()}
}

// BanPlayer records a restriction. A permanent restriction stores a null
// expiry; temporary restrictions expire after the given duration.
func (r *RestrictionRepository) BanPlayer(playerID string, duration time.Duration, permanent bool, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var expiresAt *time.Time
	if !permanent {
		t := time.Now().Add(duration)
		expiresAt = &t
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO player_restrictions (player_id, permanent, expires_at, reason, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		playerID,
		permanent,
		expiresAt,
		reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record restriction: %w", err)
	}
	return nil
}

// IsRestricted reports whether the player currently has an active
// restriction.
func (r *RestrictionRepository) IsRestricted(ctx context.Context, playerID string) (bool, error) {
	var restricted bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM player_restrictions
		   WHERE player_id = $1 AND (permanent OR expires_at > now())
		 )`,
		playerID,
	).Scan(&restricted)
	if err != nil {
		return false, fmt.Errorf("failed to check restriction: %w", err)
	}
	return restricted, nil
}
