package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/semmidev/cloudvault/internal/adapter/archive"
	"github.com/semmidev/cloudvault/internal/adapter/database"
	"github.com/semmidev/cloudvault/internal/adapter/encryption"
	"github.com/semmidev/cloudvault/internal/adapter/notifier"
	"github.com/semmidev/cloudvault/internal/adapter/storage"
	"github.com/semmidev/cloudvault/internal/config"
	"github.com/semmidev/cloudvault/internal/domain"
	"github.com/semmidev/cloudvault/internal/infrastructure/logger"
	"github.com/semmidev/cloudvault/internal/infrastructure/metrics"
	"github.com/semmidev/cloudvault/internal/infrastructure/scheduler"
	"github.com/semmidev/cloudvault/internal/usecase"
)

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *database.DB
	scheduler     *scheduler.Scheduler
	registry      *storage.Registry
	metrics       *metrics.Recorder
	metricsServer *http.Server

	backupUC  *usecase.Backup
	restoreUC *usecase.Restore

	Service *Service
}

func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	registry, err := initializeStorage(context.Background(), cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	codec, err := initializeCodec(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	recorder := metrics.New()
	sched := scheduler.New(log.Named("scheduler"))
	archiver := archive.NewZip()

	cleanupUC := usecase.NewCleanup(db, registry, recorder, log.Named("cleanup"))

	backupUC := usecase.NewBackup(usecase.BackupDeps{
		Configs:  db,
		History:  db,
		Archiver: archiver,
		Codec:    codec,
		Stores:   registry,
		Cleanup:  cleanupUC,
		Notifier: initializeNotifier(cfg, log),
		Activity: db,
		Metrics:  recorder,
		Logger:   log.Named("backup"),
		TempDir:  cfg.App.TempDir,
	})

	restoreUC := usecase.NewRestore(db, archiver, codec, registry, recorder, log.Named("restore"), cfg.App.TempDir)

	scheduleUC := usecase.NewSchedule(db, db, backupUC, sched, recorder, log.Named("schedule"))

	a := &App{
		config:    cfg,
		logger:    log,
		db:        db,
		scheduler: sched,
		registry:  registry,
		metrics:   recorder,
		backupUC:  backupUC,
		restoreUC: restoreUC,
		Service: &Service{
			db:       db,
			backup:   backupUC,
			restore:  restoreUC,
			schedule: scheduleUC,
			storage:  cfg.Storage,
			logger:   log.Named("service"),
			now:      time.Now,
		},
	}
	if cfg.Metrics.Enabled {
		a.metricsServer = metrics.NewServer(cfg.Metrics.Addr, recorder)
	}

	return a, nil
}

// initializeStorage always registers the local backend. Remote backends are
// registered when enabled or when they are the default service.
func initializeStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage.Registry, error) {
	registry := storage.NewRegistry()

	local, err := storage.NewLocal(cfg.Storage.Local.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}
	registry.Register(storage.ServiceLocal, local)
	log.Infof("✓ Local object store at %s", cfg.Storage.Local.Path)

	if cfg.Storage.S3.Enabled || cfg.Storage.DefaultService == storage.ServiceAWS {
		s3, err := storage.NewS3(ctx, &cfg.Storage.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3: %w", err)
		}
		registry.Register(storage.ServiceAWS, s3)
		log.Infof("✓ AWS S3 enabled (region: %s)", cfg.Storage.S3.Region)
	}

	if cfg.Storage.GCS.Enabled || cfg.Storage.DefaultService == storage.ServiceGCP {
		gcs, err := storage.NewGCS(ctx, &cfg.Storage.GCS)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Cloud Storage: %w", err)
		}
		registry.Register(storage.ServiceGCP, gcs)
		log.Infof("✓ Google Cloud Storage enabled")
	}

	return registry, nil
}

// initializeCodec returns nil when no key is configured.
func initializeCodec(cfg *config.Config, log *logger.Logger) (domain.Codec, error) {
	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if key == nil {
		log.Warnf("No encryption key configured, encrypted backups will fail")
		return nil, nil
	}

	codec, err := encryption.NewAESCBC(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	return codec, nil
}

// initializeNotifier returns nil when Telegram is disabled or unreachable.
func initializeNotifier(cfg *config.Config, log *logger.Logger) domain.Notifier {
	if !cfg.Notifications.Telegram.Enabled {
		return nil
	}
	tg, err := notifier.NewTelegram(&cfg.Notifications.Telegram)
	if err != nil {
		log.Errorf("Failed to initialize Telegram: %v", err)
		return nil
	}
	log.Infof("✓ Telegram notifications enabled")
	return tg
}

// Run recovers from a previous crash, arms the backup timers and serves until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	interrupted, err := a.db.CleanupInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up interrupted runs: %w", err)
	}
	if interrupted > 0 {
		a.logger.Warnf("Marked %d interrupted run(s) as failed", interrupted)
	}

	refresh := a.config.Scheduler.RefreshSchedule
	a.logger.Infof("Scheduling timer refresh: %s", refresh)
	if err := a.scheduler.AddJob(refresh, a.Service.RefreshSchedule); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	a.scheduler.Start()
	if err := a.Service.InitScheduler(ctx); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	a.logger.Infof("Scheduler started with %d armed backup(s)", a.scheduler.Len())
	a.logger.Infof("Object stores: %v", a.registry.Services())

	if a.metricsServer != nil {
		go func() {
			a.logger.Infof("Serving metrics on %s", a.metricsServer.Addr)
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	<-ctx.Done()
	return nil
}

// RunOnce executes a single backup in the foreground.
func (a *App) RunOnce(ctx context.Context, configID string) (*domain.BackupHistory, error) {
	return a.backupUC.Run(ctx, configID)
}

// RestoreOnce restores a single run in the foreground.
func (a *App) RestoreOnce(ctx context.Context, historyID, targetDir string) error {
	return a.restoreUC.Run(ctx, historyID, targetDir)
}

// Shutdown stops the timers and waits for in-flight runs before closing the
// database.
func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	a.scheduler.Stop()
	a.backupUC.Wait()
	a.restoreUC.Wait()

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Errorf("Failed to stop metrics server: %v", err)
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.Errorf("Failed to close database: %v", err)
	}
	a.logger.Close()
}
