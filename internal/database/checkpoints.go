package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
)

// ErrBadTransition is returned when a checkpoint write would move a
// stage backwards. Progress is monotonic; the only rewind is the
// explicit ResetCheckpoint used by forced re-runs.
var ErrBadTransition = errors.New("invalid checkpoint transition")

const selectCheckpointSQL = `
	SELECT target_key, stage, status, cursor, updated_at
	FROM checkpoints WHERE target_key = $1 AND stage = $2`

func (d *DB) ReadCheckpoint(ctx context.Context, targetKey, stage string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	var status string
	err := d.pool.QueryRow(ctx, selectCheckpointSQL, targetKey, stage).
		Scan(&cp.TargetKey, &cp.Stage, &status, &cp.Cursor, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s/%s: %w", targetKey, stage, err)
	}
	// Unknown statuses pass through; the caller decides whether they
	// mean corruption.
	cp.Status = models.CheckpointStatus(status)
	return &cp, nil
}

const upsertCheckpointSQL = `
	INSERT INTO checkpoints (target_key, stage, status, cursor, updated_at)
	VALUES ($1,$2,$3,$4,NOW())
	ON CONFLICT (target_key, stage) DO UPDATE SET
		status     = EXCLUDED.status,
		cursor     = EXCLUDED.cursor,
		updated_at = NOW()`

// WriteCheckpoint persists a transition after validating it against the
// stored state under a row lock, so concurrent writers cannot rewind
// each other.
func (d *DB) WriteCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var prev models.Checkpoint
	var status string
	err = tx.QueryRow(ctx, selectCheckpointSQL+" FOR UPDATE", cp.TargetKey, cp.Stage).
		Scan(&prev.TargetKey, &prev.Stage, &status, &prev.Cursor, &prev.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First write for this stage.
	case err != nil:
		return fmt.Errorf("lock checkpoint %s/%s: %w", cp.TargetKey, cp.Stage, err)
	default:
		prev.Status = models.CheckpointStatus(status)
		if !prev.ValidTransition(cp.Status) {
			return fmt.Errorf("%w: %s -> %s for %s/%s",
				ErrBadTransition, prev.Status, cp.Status, cp.TargetKey, cp.Stage)
		}
	}

	if _, err := tx.Exec(ctx, upsertCheckpointSQL, cp.TargetKey, cp.Stage, string(cp.Status), cp.Cursor); err != nil {
		return fmt.Errorf("write checkpoint %s/%s: %w", cp.TargetKey, cp.Stage, err)
	}
	return tx.Commit(ctx)
}

const resetCheckpointSQL = `
	UPDATE checkpoints SET status = $3, cursor = '', updated_at = NOW()
	WHERE target_key = $1 AND stage = $2`

// ResetCheckpoint rewinds a stage to pending for a forced re-run.
func (d *DB) ResetCheckpoint(ctx context.Context, targetKey, stage string) error {
	if _, err := d.pool.Exec(ctx, resetCheckpointSQL, targetKey, stage, string(models.CheckpointPending)); err != nil {
		return fmt.Errorf("reset checkpoint %s/%s: %w", targetKey, stage, err)
	}
	return nil
}

const listCheckpointsSQL = `
	SELECT target_key, stage, status, cursor, updated_at
	FROM checkpoints ORDER BY target_key, stage`

// Checkpoints lists every checkpoint, for the status API and exports.
func (d *DB) Checkpoints(ctx context.Context) ([]models.Checkpoint, error) {
	rows, err := d.pool.Query(ctx, listCheckpointsSQL)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		var status string
		if err := rows.Scan(&cp.TargetKey, &cp.Stage, &status, &cp.Cursor, &cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Status = models.CheckpointStatus(status)
		out = append(out, cp)
	}
	return out, rows.Err()
}
