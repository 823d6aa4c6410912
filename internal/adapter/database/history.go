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

const historyColumns = `
	id, config_id, user_id, backup_type, start_time, end_time, status, size, files_count,
	encrypted, cloud_service, cloud_bucket, cloud_path, error_message, error_stack`

func (d *DB) CreateHistory(ctx context.Context, h *domain.BackupHistory) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	_, err := d.db.ExecContext(ctx, `INSERT INTO backup_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		historyArgs(h)...,
	)
	if err != nil {
		return fmt.Errorf("failed to create backup history: %w", err)
	}
	return nil
}

func (d *DB) GetHistory(ctx context.Context, id string) (*domain.BackupHistory, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM backup_history WHERE id = ?`, id)
	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backup history %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backup history: %w", err)
	}
	return h, nil
}

func (d *DB) UpdateHistory(ctx context.Context, h *domain.BackupHistory) error {
	var msg, stack sql.NullString
	if h.Error != nil {
		msg = sql.NullString{String: h.Error.Message, Valid: true}
		stack = sql.NullString{String: h.Error.Stack, Valid: true}
	}

	result, err := d.db.ExecContext(ctx, `
		UPDATE backup_history
		SET end_time = ?, status = ?, size = ?, files_count = ?, encrypted = ?,
			error_message = ?, error_stack = ?
		WHERE id = ?
	`, toMillis(h.EndTime), h.Status, h.Size, h.FilesCount, boolInt(h.Encrypted), msg, stack, h.ID)
	if err != nil {
		return fmt.Errorf("failed to update backup history: %w", err)
	}
	return requireRow(result, "backup history", h.ID)
}

func (d *DB) FirstCompleted(ctx context.Context, configID string) (*domain.BackupHistory, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+historyColumns+` FROM backup_history
		WHERE config_id = ? AND status = ?
		ORDER BY start_time ASC LIMIT 1
	`, configID, domain.HistoryCompleted)
	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first completed history: %w", err)
	}
	return h, nil
}

func (d *DB) ListExpired(ctx context.Context, configID string, cutoff time.Time) ([]*domain.BackupHistory, error) {
	return d.queryHistory(ctx, `
		SELECT `+historyColumns+` FROM backup_history
		WHERE config_id = ? AND status = ? AND start_time < ?
		ORDER BY start_time ASC
	`, configID, domain.HistoryCompleted, cutoff.UnixMilli())
}

// ListHistory returns every entry of a config, newest first.
func (d *DB) ListHistory(ctx context.Context, configID string) ([]*domain.BackupHistory, error) {
	return d.queryHistory(ctx, `
		SELECT `+historyColumns+` FROM backup_history
		WHERE config_id = ?
		ORDER BY start_time DESC
	`, configID)
}

func (d *DB) queryHistory(ctx context.Context, query string, args ...any) ([]*domain.BackupHistory, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.BackupHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup history: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func historyArgs(h *domain.BackupHistory) []any {
	var msg, stack sql.NullString
	if h.Error != nil {
		msg = sql.NullString{String: h.Error.Message, Valid: true}
		stack = sql.NullString{String: h.Error.Stack, Valid: true}
	}
	return []any{
		h.ID, h.ConfigID, h.UserID, h.Type, h.StartTime.UnixMilli(), toMillis(h.EndTime), h.Status,
		h.Size, h.FilesCount, boolInt(h.Encrypted),
		h.CloudLocation.Service, h.CloudLocation.BucketName, h.CloudLocation.Path,
		msg, stack,
	}
}

func scanHistory(s scanner) (*domain.BackupHistory, error) {
	var (
		h          domain.BackupHistory
		startTime  int64
		endTime    sql.NullInt64
		encrypted  int
		msg, stack sql.NullString
	)
	err := s.Scan(
		&h.ID, &h.ConfigID, &h.UserID, &h.Type, &startTime, &endTime, &h.Status,
		&h.Size, &h.FilesCount, &encrypted,
		&h.CloudLocation.Service, &h.CloudLocation.BucketName, &h.CloudLocation.Path,
		&msg, &stack,
	)
	if err != nil {
		return nil, err
	}
	h.StartTime = time.UnixMilli(startTime).UTC()
	h.EndTime = fromMillis(endTime)
	h.Encrypted = encrypted != 0
	if msg.Valid {
		h.Error = &domain.RunError{Message: msg.String, Stack: stack.String}
	}
	return &h, nil
}
