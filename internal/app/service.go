package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/semmidev/cloudvault/internal/adapter/database"
	"github.com/semmidev/cloudvault/internal/config"
	"github.com/semmidev/cloudvault/internal/domain"
	"github.com/semmidev/cloudvault/internal/infrastructure/logger"
	"github.com/semmidev/cloudvault/internal/usecase"
)

var validate = validator.New()

// Service is the surface the rest of the product calls into: trigger and
// restore runs, manage config schedules.
type Service struct {
	db       *database.DB
	backup   *usecase.Backup
	restore  *usecase.Restore
	schedule *usecase.Schedule
	storage  config.StorageConfig
	logger   *logger.Logger
	now      func() time.Time
}

// RunBackup starts a run in the background and returns its history id. A
// config that is already running is rejected with domain.ErrAlreadyRunning.
func (s *Service) RunBackup(ctx context.Context, configID string) (string, error) {
	return s.backup.Start(ctx, configID)
}

// RestoreBackup validates the request and restores in the background.
func (s *Service) RestoreBackup(ctx context.Context, historyID, targetDir string) error {
	return s.restore.Start(ctx, historyID, targetDir)
}

func (s *Service) ScheduleBackup(ctx context.Context, configID string) (bool, error) {
	return s.schedule.ScheduleBackup(ctx, configID)
}

func (s *Service) CancelScheduledBackup(configID string) bool {
	return s.schedule.CancelScheduledBackup(configID)
}

func (s *Service) RefreshSchedule(ctx context.Context) error {
	return s.schedule.Refresh(ctx)
}

func (s *Service) InitScheduler(ctx context.Context) error {
	return s.schedule.Init(ctx)
}

// CreateConfig stores a new config, filling in the cloud location and
// defaults, and arms its timer when it is recurring.
func (s *Service) CreateConfig(ctx context.Context, cfg *domain.BackupConfig) error {
	if cfg.Type == "" {
		cfg.Type = domain.BackupFull
	}
	if cfg.Frequency == "" {
		cfg.Frequency = domain.FrequencyManual
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = domain.DefaultRetentionDays
	}
	if cfg.CloudLocation.Service == "" {
		cfg.CloudLocation.Service = s.storage.DefaultService
	}
	if cfg.CloudLocation.BucketName == "" {
		cfg.CloudLocation.BucketName = s.storage.Bucket
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid backup config: %w", err)
	}
	cfg.CloudLocation.Path = usecase.CloudPathPrefix(cfg.UserID, cfg.Name)
	cfg.Status = domain.ConfigPending
	cfg.NextRun = nil

	if cfg.Scheduled() {
		next, err := usecase.NextRun(cfg.Frequency, s.now())
		if err != nil {
			return err
		}
		cfg.NextRun = &next
	}

	if err := s.db.CreateConfig(ctx, cfg); err != nil {
		return err
	}
	s.logger.Infof("Created backup config %s (%s, %s)", cfg.Name, cfg.Type, cfg.Frequency)

	if cfg.Scheduled() {
		if _, err := s.schedule.ScheduleBackup(ctx, cfg.ID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateFrequency changes how often a config runs and re-arms or cancels
// its timer to match.
func (s *Service) UpdateFrequency(ctx context.Context, configID string, freq domain.Frequency) error {
	if err := validate.Var(freq, "oneof=manual daily weekly monthly"); err != nil {
		return fmt.Errorf("invalid frequency %q: %w", freq, err)
	}

	cfg, err := s.db.GetConfig(ctx, configID)
	if err != nil {
		return err
	}

	var nextRun *time.Time
	if freq != domain.FrequencyManual {
		next, err := usecase.NextRun(freq, s.now())
		if err != nil {
			return err
		}
		nextRun = &next
	}

	if err := s.db.SetFrequency(ctx, configID, freq, nextRun); err != nil {
		return err
	}

	details := fmt.Sprintf("Frequency of %s changed from %s to %s", cfg.Name, cfg.Frequency, freq)
	if err := s.db.RecordActivity(ctx, cfg.UserID, domain.ActivityBackupStatusChanged, details); err != nil {
		s.logger.Warnf("Failed to record activity for %s: %v", cfg.Name, err)
	}

	if _, err := s.schedule.ScheduleBackup(ctx, configID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// DeleteConfig disarms the config's timer and removes it with its history.
func (s *Service) DeleteConfig(ctx context.Context, configID string) error {
	s.schedule.CancelScheduledBackup(configID)
	return s.db.DeleteConfig(ctx, configID)
}
