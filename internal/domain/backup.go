package domain

import (
	"time"
)

type BackupType string

const (
	BackupFull         BackupType = "full"
	BackupIncremental  BackupType = "incremental"
	BackupDifferential BackupType = "differential"
)

type Frequency string

const (
	FrequencyManual  Frequency = "manual"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ConfigStatus is the lifecycle of a BackupConfig. Running is held by at most
// one execution at a time.
type ConfigStatus string

const (
	ConfigPending   ConfigStatus = "pending"
	ConfigRunning   ConfigStatus = "running"
	ConfigCompleted ConfigStatus = "completed"
	ConfigFailed    ConfigStatus = "failed"
)

type HistoryStatus string

const (
	HistoryInProgress HistoryStatus = "in-progress"
	HistoryCompleted  HistoryStatus = "completed"
	HistoryFailed     HistoryStatus = "failed"
	HistoryDeleted    HistoryStatus = "deleted"
)

const DefaultRetentionDays = 30

type CloudLocation struct {
	Service    string `validate:"required"`
	BucketName string `validate:"required"`
	Path       string
}

type BackupConfig struct {
	ID                 string
	UserID             string     `validate:"required"`
	Name               string     `validate:"required,max=200"`
	SourceDirectory    string     `validate:"required"`
	Type               BackupType `validate:"oneof=full incremental differential"`
	Frequency          Frequency  `validate:"oneof=manual daily weekly monthly"`
	RetentionDays      int        `validate:"min=0"`
	EncryptionEnabled  bool
	CompressionEnabled bool
	Status             ConfigStatus
	LastRun            *time.Time
	NextRun            *time.Time
	CloudLocation      CloudLocation
	Size               int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Scheduled reports whether the config is driven by the scheduler.
func (c *BackupConfig) Scheduled() bool {
	return c.Frequency != FrequencyManual
}

// EffectiveRetentionDays treats a zero retention as the default window.
func (c *BackupConfig) EffectiveRetentionDays() int {
	if c.RetentionDays <= 0 {
		return DefaultRetentionDays
	}
	return c.RetentionDays
}

type RunError struct {
	Message string
	Stack   string
}

type BackupHistory struct {
	ID            string
	ConfigID      string
	UserID        string
	Type          BackupType
	StartTime     time.Time
	EndTime       *time.Time
	Status        HistoryStatus
	Size          int64
	FilesCount    int
	Encrypted     bool
	CloudLocation CloudLocation
	Error         *RunError
}

// ArtifactName is the object name of the uploaded artifact inside the
// execution sub-path.
func ArtifactName(encrypted bool) string {
	if encrypted {
		return "backup.zip.enc"
	}
	return "backup.zip"
}

// ArtifactKey is the full remote key of the history entry's artifact.
func (h *BackupHistory) ArtifactKey() string {
	return h.CloudLocation.Path + "/" + ArtifactName(h.Encrypted)
}
