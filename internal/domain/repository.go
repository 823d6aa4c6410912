package domain

import (
	"context"
	"time"
)

type ConfigRepository interface {
	GetConfig(ctx context.Context, id string) (*BackupConfig, error)
	// ListScheduled returns every config whose frequency is not manual.
	ListScheduled(ctx context.Context) ([]*BackupConfig, error)
	// ClaimForRun atomically moves the config to running and stamps lastRun,
	// failing with ErrAlreadyRunning when another execution holds it. It also
	// returns the lastRun value that was replaced.
	ClaimForRun(ctx context.Context, id string, at time.Time) (cfg *BackupConfig, previousRun *time.Time, err error)
	UpdateConfig(ctx context.Context, cfg *BackupConfig) error
	SetNextRun(ctx context.Context, id string, nextRun *time.Time) error
}

type HistoryRepository interface {
	CreateHistory(ctx context.Context, h *BackupHistory) error
	GetHistory(ctx context.Context, id string) (*BackupHistory, error)
	UpdateHistory(ctx context.Context, h *BackupHistory) error
	// FirstCompleted returns the earliest completed entry, or nil when the
	// config has never completed.
	FirstCompleted(ctx context.Context, configID string) (*BackupHistory, error)
	// ListExpired returns completed entries started before cutoff.
	ListExpired(ctx context.Context, configID string, cutoff time.Time) ([]*BackupHistory, error)
}

type SubscriptionChecker interface {
	IsSubscriptionActive(ctx context.Context, userID string) (bool, error)
}
