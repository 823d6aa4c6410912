package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/semmidev/cloudvault/internal/domain"
)

func (d *DB) CreateUser(ctx context.Context, id, email string, subscriptionActive bool) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, email, subscription_active, created_at) VALUES (?, ?, ?, ?)`,
		id, email, boolInt(subscriptionActive), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (d *DB) SetSubscriptionActive(ctx context.Context, userID string, active bool) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE users SET subscription_active = ? WHERE id = ?`, boolInt(active), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return requireRow(result, "user", userID)
}

// DeleteUser removes a user together with its configs and history.
func (d *DB) DeleteUser(ctx context.Context, userID string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireRow(result, "user", userID)
}

// IsSubscriptionActive reports false for unknown users.
func (d *DB) IsSubscriptionActive(ctx context.Context, userID string) (bool, error) {
	var active int
	err := d.db.QueryRowContext(ctx,
		`SELECT subscription_active FROM users WHERE id = ?`, userID,
	).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return active != 0, nil
}

func (d *DB) RecordActivity(ctx context.Context, userID string, action domain.Activity, details string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO activity_log (user_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		userID, action, details, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

type ActivityEntry struct {
	UserID    string
	Action    domain.Activity
	Details   string
	CreatedAt time.Time
}

// ListActivity returns a user's audit trail, oldest first.
func (d *DB) ListActivity(ctx context.Context, userID string) ([]ActivityEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, action, details, created_at FROM activity_log WHERE user_id = ? ORDER BY id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var (
			e         ActivityEntry
			createdAt int64
		)
		if err := rows.Scan(&e.UserID, &e.Action, &e.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
