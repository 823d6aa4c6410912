package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/cloudvault/internal/domain"
	_ "modernc.org/sqlite"
)

// InterruptedMessage is recorded on runs that were cut short by a restart.
const InterruptedMessage = "interrupted by restart"

type DB struct {
	db *sql.DB
}

var pragmas = []string{
	"busy_timeout(10000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
}

// Open opens (creating if needed) the sqlite database at path. Pragmas are
// part of the DSN so every pooled connection gets them.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		subscription_active INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS backup_configs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		source_directory TEXT NOT NULL,
		backup_type TEXT NOT NULL,
		frequency TEXT NOT NULL,
		retention_days INTEGER NOT NULL DEFAULT 30,
		encryption_enabled INTEGER NOT NULL DEFAULT 0,
		compression_enabled INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL,
		last_run INTEGER,
		next_run INTEGER,
		cloud_service TEXT NOT NULL,
		cloud_bucket TEXT NOT NULL,
		cloud_path TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_backup_configs_user ON backup_configs(user_id);
	CREATE INDEX IF NOT EXISTS idx_backup_configs_frequency ON backup_configs(frequency);

	CREATE TABLE IF NOT EXISTS backup_history (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL REFERENCES backup_configs(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		backup_type TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		status TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		files_count INTEGER NOT NULL DEFAULT 0,
		encrypted INTEGER NOT NULL DEFAULT 0,
		cloud_service TEXT NOT NULL,
		cloud_bucket TEXT NOT NULL,
		cloud_path TEXT NOT NULL,
		error_message TEXT,
		error_stack TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_backup_history_config ON backup_history(config_id, status, start_time);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_log_user ON activity_log(user_id, created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// CleanupInterrupted fails every config and history entry left running by a
// previous process and returns how many history entries were touched.
func (d *DB) CleanupInterrupted(ctx context.Context) (int, error) {
	now := time.Now().UnixMilli()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE backup_history
		SET status = ?, end_time = ?, error_message = ?, error_stack = ''
		WHERE status = ?
	`, domain.HistoryFailed, now, InterruptedMessage, domain.HistoryInProgress)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup interrupted history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE backup_configs SET status = ?, updated_at = ? WHERE status = ?
	`, domain.ConfigFailed, now, domain.ConfigRunning); err != nil {
		return 0, fmt.Errorf("failed to cleanup interrupted configs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}
	return int(affected), nil
}

func toMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}
