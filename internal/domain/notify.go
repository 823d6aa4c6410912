package domain

import "context"

type Activity string

const (
	ActivityBackupTriggered     Activity = "backup_triggered"
	ActivityBackupCompleted     Activity = "backup_completed"
	ActivityBackupFailed        Activity = "backup_failed"
	ActivityBackupStatusChanged Activity = "backup_status_changed"
)

// Notifier delivers run outcomes to the owning user.
type Notifier interface {
	NotifyBackupStatus(ctx context.Context, userID, configName string, status HistoryStatus, details string) error
}

type ActivityRecorder interface {
	RecordActivity(ctx context.Context, userID string, action Activity, details string) error
}
