package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/semmidev/cloudvault/internal/domain"
)

// Backup executes backup runs. A run claims its config, records a history
// entry and then archives, optionally encrypts and uploads the selected
// files.
type Backup struct {
	configs  domain.ConfigRepository
	history  domain.HistoryRepository
	archiver domain.Archiver
	codec    domain.Codec
	stores   domain.StoreResolver
	cleanup  *Cleanup
	notifier domain.Notifier
	activity domain.ActivityRecorder
	metrics  Metrics
	logger   Logger
	tempDir  string
	now      func() time.Time

	wg sync.WaitGroup
}

type BackupDeps struct {
	Configs  domain.ConfigRepository
	History  domain.HistoryRepository
	Archiver domain.Archiver
	// Codec may be nil when no encryption key is configured; encrypted
	// configs then fail.
	Codec    domain.Codec
	Stores   domain.StoreResolver
	Cleanup  *Cleanup
	Notifier domain.Notifier
	Activity domain.ActivityRecorder
	Metrics  Metrics
	Logger   Logger
	TempDir  string
}

func NewBackup(deps BackupDeps) *Backup {
	uc := &Backup{
		configs:  deps.Configs,
		history:  deps.History,
		archiver: deps.Archiver,
		codec:    deps.Codec,
		stores:   deps.Stores,
		cleanup:  deps.Cleanup,
		notifier: deps.Notifier,
		activity: deps.Activity,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		tempDir:  deps.TempDir,
		now:      time.Now,
	}
	if uc.metrics == nil {
		uc.metrics = NopMetrics{}
	}
	if uc.tempDir == "" {
		uc.tempDir = os.TempDir()
	}
	return uc
}

// Start claims the config and runs the backup in the background. It returns
// the id of the new history entry as soon as the run is recorded.
func (uc *Backup) Start(ctx context.Context, configID string) (string, error) {
	cfg, h, since, err := uc.begin(ctx, configID)
	if err != nil {
		return "", err
	}

	runCtx := context.WithoutCancel(ctx)
	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		uc.execute(runCtx, cfg, h, since)
	}()

	return h.ID, nil
}

// Run performs a whole backup and returns the final history entry together
// with the run failure, if any.
func (uc *Backup) Run(ctx context.Context, configID string) (*domain.BackupHistory, error) {
	cfg, h, since, err := uc.begin(ctx, configID)
	if err != nil {
		return nil, err
	}
	return h, uc.execute(ctx, cfg, h, since)
}

// Wait blocks until every background run has finished.
func (uc *Backup) Wait() {
	uc.wg.Wait()
}

func (uc *Backup) begin(ctx context.Context, configID string) (*domain.BackupConfig, *domain.BackupHistory, *time.Time, error) {
	start := uc.now()

	cfg, previousRun, err := uc.configs.ClaimForRun(ctx, configID, start)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to claim config %s: %w", configID, err)
	}

	h := &domain.BackupHistory{
		ConfigID:  cfg.ID,
		UserID:    cfg.UserID,
		Type:      cfg.Type,
		StartTime: start,
		Status:    domain.HistoryInProgress,
		Encrypted: cfg.EncryptionEnabled,
		CloudLocation: domain.CloudLocation{
			Service:    cfg.CloudLocation.Service,
			BucketName: cfg.CloudLocation.BucketName,
			Path:       ExecutionPath(cfg.CloudLocation.Path, start),
		},
	}
	if err := uc.history.CreateHistory(ctx, h); err != nil {
		cfg.Status = domain.ConfigFailed
		if uerr := uc.configs.UpdateConfig(ctx, cfg); uerr != nil {
			uc.logger.Errorf("[%s] Failed to release config: %v", cfg.Name, uerr)
		}
		return nil, nil, nil, fmt.Errorf("failed to create history: %w", err)
	}

	uc.record(ctx, cfg.UserID, domain.ActivityBackupTriggered, cfg.Name)
	return cfg, h, previousRun, nil
}

func (uc *Backup) execute(ctx context.Context, cfg *domain.BackupConfig, h *domain.BackupHistory, previousRun *time.Time) error {
	started := uc.now()
	uc.logger.Infof("[%s] Starting %s backup...", cfg.Name, cfg.Type)

	tempDir := filepath.Join(uc.tempDir, fmt.Sprintf("backup-%s-%d", cfg.ID, started.UnixMilli()))
	stack, runErr := uc.perform(ctx, cfg, h, previousRun, tempDir)

	if err := os.RemoveAll(tempDir); err != nil {
		uc.logger.Warnf("[%s] Failed to clean up temp directory %s: %v", cfg.Name, tempDir, err)
	}

	end := uc.now()
	h.EndTime = &end

	if runErr != nil {
		uc.fail(ctx, cfg, h, runErr, stack)
		uc.metrics.BackupFinished(domain.HistoryFailed, end.Sub(started), h.Size)
		return runErr
	}

	h.Status = domain.HistoryCompleted
	if err := uc.history.UpdateHistory(ctx, h); err != nil {
		uc.logger.Errorf("[%s] Failed to update history: %v", cfg.Name, err)
	}

	cfg.Status = domain.ConfigCompleted
	cfg.Size = h.Size
	// The frequency may have changed while the run was in flight.
	if current, err := uc.configs.GetConfig(ctx, cfg.ID); err == nil {
		cfg.Frequency = current.Frequency
	}
	cfg.NextRun = nil
	if cfg.Scheduled() {
		if next, err := NextRun(cfg.Frequency, end); err == nil {
			cfg.NextRun = &next
		}
	}
	if err := uc.configs.UpdateConfig(ctx, cfg); err != nil {
		uc.logger.Errorf("[%s] Failed to update config: %v", cfg.Name, err)
	}

	uc.logger.Infof("[%s] Backup completed in %s: %d files, %.2f MB",
		cfg.Name, end.Sub(started).Round(time.Millisecond), h.FilesCount, float64(h.Size)/(1024*1024))
	uc.metrics.BackupFinished(domain.HistoryCompleted, end.Sub(started), h.Size)
	uc.record(ctx, cfg.UserID, domain.ActivityBackupCompleted, cfg.Name)
	uc.notify(ctx, cfg, domain.HistoryCompleted, fmt.Sprintf("%d files, %d bytes", h.FilesCount, h.Size))

	if uc.cleanup != nil {
		if _, err := uc.cleanup.Execute(ctx, cfg); err != nil {
			uc.logger.Errorf("[%s] Retention cleanup failed: %v", cfg.Name, err)
		}
	}

	return nil
}

// perform runs the pipeline steps, returning panics as errors.
func (uc *Backup) perform(ctx context.Context, cfg *domain.BackupConfig, h *domain.BackupHistory, previousRun *time.Time, tempDir string) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during backup: %v", r)
			stack = string(debug.Stack())
		}
	}()

	if err := uc.steps(ctx, cfg, h, previousRun, tempDir); err != nil {
		return string(debug.Stack()), err
	}
	return "", nil
}

func (uc *Backup) steps(ctx context.Context, cfg *domain.BackupConfig, h *domain.BackupHistory, previousRun *time.Time, tempDir string) error {
	store, err := uc.stores.Resolve(cfg.CloudLocation.Service)
	if err != nil {
		return err
	}

	policy, err := uc.policy(ctx, cfg, previousRun)
	if err != nil {
		return err
	}

	files, err := uc.archiver.SelectFiles(cfg.SourceDirectory, policy)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return domain.ErrNoFilesToBackup
	}
	uc.logger.Infof("[%s] Selected %d file(s)", cfg.Name, len(files))

	if err := os.MkdirAll(tempDir, 0700); err != nil {
		return fmt.Errorf("%w: failed to create temp directory: %w", domain.ErrArchiveFailure, err)
	}

	base := SanitizeName(cfg.Name)
	zipPath := filepath.Join(tempDir, base+".zip")
	if err := uc.archiver.Build(cfg.SourceDirectory, files, zipPath, cfg.CompressionEnabled); err != nil {
		return err
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return fmt.Errorf("%w: failed to stat archive: %w", domain.ErrArchiveFailure, err)
	}
	h.Size = info.Size()
	h.FilesCount = len(files)

	artifact := zipPath
	if cfg.EncryptionEnabled {
		if uc.codec == nil {
			return fmt.Errorf("%w: no encryption key configured", domain.ErrEncryptionFailure)
		}
		artifact = zipPath + ".enc"
		uc.logger.Infof("[%s] Encrypting archive...", cfg.Name)
		if err := uc.codec.Encrypt(zipPath, artifact); err != nil {
			return err
		}
	}

	key := h.ArtifactKey()
	uc.logger.Infof("[%s] Uploading to %s://%s/%s", cfg.Name, cfg.CloudLocation.Service, cfg.CloudLocation.BucketName, key)
	if err := store.Put(ctx, cfg.CloudLocation.BucketName, artifact, key); err != nil {
		return err
	}

	return nil
}

func (uc *Backup) policy(ctx context.Context, cfg *domain.BackupConfig, previousRun *time.Time) (domain.SelectionPolicy, error) {
	policy := domain.SelectionPolicy{Type: cfg.Type, Since: time.Unix(0, 0)}

	switch cfg.Type {
	case domain.BackupIncremental:
		if previousRun != nil {
			policy.Since = *previousRun
		}
	case domain.BackupDifferential:
		first, err := uc.history.FirstCompleted(ctx, cfg.ID)
		if err != nil {
			return policy, fmt.Errorf("failed to find first completed backup: %w", err)
		}
		if first != nil {
			policy.Since = first.StartTime
		}
	}

	return policy, nil
}

func (uc *Backup) fail(ctx context.Context, cfg *domain.BackupConfig, h *domain.BackupHistory, runErr error, stack string) {
	uc.logger.Errorf("[%s] Backup failed: %v", cfg.Name, runErr)

	h.Status = domain.HistoryFailed
	h.Error = &domain.RunError{Message: runErr.Error(), Stack: stack}
	if err := uc.history.UpdateHistory(ctx, h); err != nil {
		uc.logger.Errorf("[%s] Failed to update history: %v", cfg.Name, err)
	}

	cfg.Status = domain.ConfigFailed
	if err := uc.configs.UpdateConfig(ctx, cfg); err != nil {
		uc.logger.Errorf("[%s] Failed to update config: %v", cfg.Name, err)
	}

	uc.record(ctx, cfg.UserID, domain.ActivityBackupFailed, cfg.Name+": "+runErr.Error())
	uc.notify(ctx, cfg, domain.HistoryFailed, runErr.Error())
}

func (uc *Backup) record(ctx context.Context, userID string, action domain.Activity, details string) {
	if uc.activity == nil {
		return
	}
	if err := uc.activity.RecordActivity(ctx, userID, action, details); err != nil {
		uc.logger.Warnf("Failed to record activity %s: %v", action, err)
	}
}

func (uc *Backup) notify(ctx context.Context, cfg *domain.BackupConfig, status domain.HistoryStatus, details string) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.NotifyBackupStatus(ctx, cfg.UserID, cfg.Name, status, details); err != nil {
		uc.logger.Warnf("[%s] Failed to send notification: %v", cfg.Name, err)
	}
}
