// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/stakesight/stakesight/internal/types"
)

// ErrNoSnapshots is returned when no snapshot has been persisted yet.
var ErrNoSnapshots = errors.New("no snapshots recorded")

// Sink adapts the package-level store to the engine's SnapshotSink interface.
type Sink struct{}

// SaveSnapshot implements engine.SnapshotSink.
func (Sink) SaveSnapshot(snapshot *types.PoolSnapshot) error {
	_, err := SaveSnapshot(snapshot)
	return err
}

// SaveSnapshot persists a computed pool snapshot and its per-validator rows in
// one transaction. Returns the new snapshot ID.
func SaveSnapshot(snapshot *types.PoolSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if snapshot == nil {
		return 0, fmt.Errorf("snapshot cannot be nil")
	}

	payloadJSON, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO pool_snapshots (
			run_id, pool_id, epoch, paused,
			total_principal, pending_stake, total_rewards, total_value,
			active_positions, pending_positions, estimated_positions, skipped_entries,
			reconcile_status, reconcile_delta, needs_update,
			payload, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING snapshot_id
	`

	var snapshotID int64
	err = tx.QueryRow(query,
		snapshot.RunID,
		string(snapshot.PoolID),
		snapshot.Epoch,
		snapshot.Paused,
		snapshot.TotalPrincipal.String(),
		snapshot.PendingStake.String(),
		snapshot.TotalRewards.String(),
		snapshot.TotalValue.String(),
		snapshot.ActivePositions,
		snapshot.PendingPositions,
		snapshot.EstimatedPositions,
		snapshot.SkippedEntries,
		string(snapshot.Reconciliation.Status),
		snapshot.Reconciliation.Delta.String(),
		snapshot.Reconciliation.NeedsUpdate,
		payloadJSON,
		snapshot.ComputedAt,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pool snapshot: %w", err)
	}

	summaryQuery := `
		INSERT INTO validator_summaries (
			snapshot_id, validator, principal, rewards, current_value,
			active_positions, pending_positions, estimated_positions,
			earliest_activation_epoch, synthetic
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, summary := range snapshot.Validators {
		_, err = tx.Exec(summaryQuery,
			snapshotID,
			string(summary.Validator),
			summary.Principal.String(),
			summary.Rewards.String(),
			summary.CurrentValue.String(),
			summary.ActivePositions,
			summary.PendingPositions,
			summary.EstimatedPositions,
			summary.EarliestActivationEpoch,
			summary.Synthetic,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert validator summary for %s: %w", summary.Validator, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	log.Debug().
		Int64("snapshotID", snapshotID).
		Str("runID", snapshot.RunID).
		Msg("Pool snapshot persisted")

	return snapshotID, nil
}

// LoadLatestSnapshot returns the most recently computed snapshot.
func LoadLatestSnapshot() (*types.PoolSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var payload []byte
	err := DB.QueryRow(`
		SELECT payload FROM pool_snapshots
		ORDER BY computed_at DESC
		LIMIT 1
	`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshots
		}
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	var snapshot types.PoolSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot payload: %w", err)
	}

	return &snapshot, nil
}

// LoadSnapshotHistory returns up to limit snapshots, newest first.
func LoadSnapshotHistory(limit int) ([]types.PoolSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := DB.Query(`
		SELECT payload FROM pool_snapshots
		ORDER BY computed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot history: %w", err)
	}
	defer rows.Close()

	var snapshots []types.PoolSnapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		var snapshot types.PoolSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			log.Warn().Err(err).Msg("Skipping snapshot row with unreadable payload")
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot history iteration failed: %w", err)
	}

	return snapshots, nil
}
