package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/semmidev/cloudvault/internal/domain"
)

// Restore downloads a completed run's artifact and unpacks it into a target
// directory. Files extracted before a failure are not rolled back.
type Restore struct {
	history  domain.HistoryRepository
	archiver domain.Archiver
	codec    domain.Codec
	stores   domain.StoreResolver
	metrics  Metrics
	logger   Logger
	tempDir  string
	now      func() time.Time

	wg sync.WaitGroup
}

func NewRestore(
	history domain.HistoryRepository,
	archiver domain.Archiver,
	codec domain.Codec,
	stores domain.StoreResolver,
	metrics Metrics,
	logger Logger,
	tempDir string,
) *Restore {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Restore{
		history:  history,
		archiver: archiver,
		codec:    codec,
		stores:   stores,
		metrics:  metrics,
		logger:   logger,
		tempDir:  tempDir,
		now:      time.Now,
	}
}

// Start validates the request and restores in the background.
func (uc *Restore) Start(ctx context.Context, historyID, targetDir string) error {
	h, err := uc.load(ctx, historyID, targetDir)
	if err != nil {
		return err
	}

	runCtx := context.WithoutCancel(ctx)
	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		if err := uc.restore(runCtx, h, targetDir); err != nil {
			uc.logger.Errorf("Restore of %s failed: %v", h.ID, err)
		}
	}()
	return nil
}

// Run restores synchronously.
func (uc *Restore) Run(ctx context.Context, historyID, targetDir string) error {
	h, err := uc.load(ctx, historyID, targetDir)
	if err != nil {
		return err
	}
	return uc.restore(ctx, h, targetDir)
}

func (uc *Restore) Wait() {
	uc.wg.Wait()
}

func (uc *Restore) load(ctx context.Context, historyID, targetDir string) (*domain.BackupHistory, error) {
	if targetDir == "" {
		return nil, fmt.Errorf("target directory is required")
	}

	h, err := uc.history.GetHistory(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if h.Status != domain.HistoryCompleted {
		return nil, fmt.Errorf("%w: history %s is %s", domain.ErrNotRestorable, h.ID, h.Status)
	}
	return h, nil
}

func (uc *Restore) restore(ctx context.Context, h *domain.BackupHistory, targetDir string) (err error) {
	started := uc.now()
	defer func() { uc.metrics.RestoreFinished(err) }()

	tempDir := filepath.Join(uc.tempDir, fmt.Sprintf("restore-%s-%d", h.ID, started.UnixMilli()))
	if err := os.MkdirAll(tempDir, 0700); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() {
		if rerr := os.RemoveAll(tempDir); rerr != nil {
			uc.logger.Warnf("Failed to clean up temp directory %s: %v", tempDir, rerr)
		}
	}()

	store, err := uc.stores.Resolve(h.CloudLocation.Service)
	if err != nil {
		return err
	}

	artifact := filepath.Join(tempDir, domain.ArtifactName(h.Encrypted))
	uc.logger.Infof("Downloading %s://%s/%s", h.CloudLocation.Service, h.CloudLocation.BucketName, h.ArtifactKey())
	if err := store.Get(ctx, h.CloudLocation.BucketName, h.ArtifactKey(), artifact); err != nil {
		return err
	}

	zipPath := artifact
	if h.Encrypted {
		if uc.codec == nil {
			return fmt.Errorf("%w: no encryption key configured", domain.ErrDecryption)
		}
		zipPath = filepath.Join(tempDir, domain.ArtifactName(false))
		if err := uc.codec.Decrypt(artifact, zipPath); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	if err := uc.archiver.Extract(zipPath, targetDir); err != nil {
		return err
	}

	uc.logger.Infof("Restored backup %s into %s in %s", h.ID, targetDir, uc.now().Sub(started).Round(time.Millisecond))
	return nil
}
