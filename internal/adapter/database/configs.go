package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/semmidev/cloudvault/internal/domain"
)

const configColumns = `
	id, user_id, name, source_directory, backup_type, frequency, retention_days,
	encryption_enabled, compression_enabled, status, last_run, next_run,
	cloud_service, cloud_bucket, cloud_path, size, created_at, updated_at`

func (d *DB) CreateConfig(ctx context.Context, cfg *domain.BackupConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Status == "" {
		cfg.Status = domain.ConfigPending
	}
	now := time.Now().UTC()
	cfg.CreatedAt, cfg.UpdatedAt = now, now

	_, err := d.db.ExecContext(ctx, `INSERT INTO backup_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.UserID, cfg.Name, cfg.SourceDirectory, cfg.Type, cfg.Frequency, cfg.RetentionDays,
		boolInt(cfg.EncryptionEnabled), boolInt(cfg.CompressionEnabled), cfg.Status,
		toMillis(cfg.LastRun), toMillis(cfg.NextRun),
		cfg.CloudLocation.Service, cfg.CloudLocation.BucketName, cfg.CloudLocation.Path,
		cfg.Size, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create backup config: %w", err)
	}
	return nil
}

func (d *DB) GetConfig(ctx context.Context, id string) (*domain.BackupConfig, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM backup_configs WHERE id = ?`, id)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backup config %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup config: %w", err)
	}
	return cfg, nil
}

func (d *DB) ListScheduled(ctx context.Context) ([]*domain.BackupConfig, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+configColumns+` FROM backup_configs WHERE frequency != ? ORDER BY created_at`,
		domain.FrequencyManual,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled configs: %w", err)
	}
	defer rows.Close()

	var configs []*domain.BackupConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (d *DB) ClaimForRun(ctx context.Context, id string, at time.Time) (*domain.BackupConfig, *time.Time, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cfg, err := scanConfig(tx.QueryRowContext(ctx, `SELECT `+configColumns+` FROM backup_configs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("backup config %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get backup config: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE backup_configs
		SET status = ?, last_run = ?, updated_at = ?
		WHERE id = ? AND status != ?
	`, domain.ConfigRunning, at.UnixMilli(), time.Now().UnixMilli(), id, domain.ConfigRunning)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to claim backup config: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil, fmt.Errorf("backup config %s: %w", id, domain.ErrAlreadyRunning)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	previous := cfg.LastRun
	stamped := time.UnixMilli(at.UnixMilli()).UTC()
	cfg.Status = domain.ConfigRunning
	cfg.LastRun = &stamped
	return cfg, previous, nil
}

// UpdateConfig persists the run state of a config: status, lastRun, nextRun
// and size. Definition fields are left untouched so edits made while a run is
// in flight survive it. nextRun follows the stored frequency: manual configs
// always get NULL, and a nil nextRun never clears a recurring one.
func (d *DB) UpdateConfig(ctx context.Context, cfg *domain.BackupConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	result, err := d.db.ExecContext(ctx, `
		UPDATE backup_configs
		SET status = ?, last_run = ?,
			next_run = CASE WHEN frequency = 'manual' THEN NULL ELSE COALESCE(?, next_run) END,
			size = ?, updated_at = ?
		WHERE id = ?
	`, cfg.Status, toMillis(cfg.LastRun), toMillis(cfg.NextRun), cfg.Size, cfg.UpdatedAt.UnixMilli(), cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to update backup config: %w", err)
	}
	return requireRow(result, "backup config", cfg.ID)
}

// SetFrequency changes how often a config runs together with its next run.
func (d *DB) SetFrequency(ctx context.Context, id string, freq domain.Frequency, nextRun *time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE backup_configs SET frequency = ?, next_run = ?, updated_at = ? WHERE id = ?`,
		freq, toMillis(nextRun), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update frequency: %w", err)
	}
	return requireRow(result, "backup config", id)
}

func (d *DB) SetNextRun(ctx context.Context, id string, nextRun *time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE backup_configs SET next_run = ?, updated_at = ? WHERE id = ?`,
		toMillis(nextRun), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update next run: %w", err)
	}
	return requireRow(result, "backup config", id)
}

func (d *DB) DeleteConfig(ctx context.Context, id string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM backup_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backup config: %w", err)
	}
	return requireRow(result, "backup config", id)
}

func scanConfig(s scanner) (*domain.BackupConfig, error) {
	var (
		cfg                  domain.BackupConfig
		encrypted, compress  int
		lastRun, nextRun     sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.Scan(
		&cfg.ID, &cfg.UserID, &cfg.Name, &cfg.SourceDirectory, &cfg.Type, &cfg.Frequency, &cfg.RetentionDays,
		&encrypted, &compress, &cfg.Status, &lastRun, &nextRun,
		&cfg.CloudLocation.Service, &cfg.CloudLocation.BucketName, &cfg.CloudLocation.Path,
		&cfg.Size, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.EncryptionEnabled = encrypted != 0
	cfg.CompressionEnabled = compress != 0
	cfg.LastRun = fromMillis(lastRun)
	cfg.NextRun = fromMillis(nextRun)
	cfg.CreatedAt = time.UnixMilli(createdAt).UTC()
	cfg.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &cfg, nil
}

func requireRow(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}
