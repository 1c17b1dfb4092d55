package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/auragrid/arbiter-server-go/internal/game"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// MatchRepository persists match snapshots as jsonb keyed by match ID.
// The core treats this as an opaque key-value store.
type MatchRepository struct {
	db *pgxpool.Pool
}

// NewMatchRepository creates a match repository.
func NewMatchRepository(db *DB) *MatchRepository {
	return &MatchRepository{db: db.Pool()}
}

// SaveSnapshot upserts the latest snapshot for a match.
func (r *MatchRepository) SaveSnapshot(ctx context.Context, snapshot *game.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO match_snapshots (match_id, turn_number, state, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (match_id)
		 DO UPDATE SET turn_number = $2, state = $3, updated_at = now()`,
		snapshot.MatchID,
		snapshot.TurnNumber,
		data,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the latest persisted snapshot for a match, or
// ErrNotFound.
func (r *MatchRepository) LoadSnapshot(ctx context.Context, matchID string) (*game.Snapshot, error) {
	var data []byte
	err := r.db.QueryRow(ctx,
		`SELECT state FROM match_snapshots WHERE match_id = $1`,
		matchID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot game.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteSnapshot removes a match's persisted state.
func (r *MatchRepository) DeleteSnapshot(ctx context.Context, matchID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM match_snapshots WHERE match_id = $1`,
		matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
