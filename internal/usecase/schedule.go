package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/semmidev/cloudvault/internal/domain"
)

// Timers arms keyed one-shot callbacks. Arming an id replaces its previous
// timer.
type Timers interface {
	Arm(id string, at time.Time, fn func())
	Cancel(id string) bool
	CancelAll()
	ArmedAt(id string) (time.Time, bool)
	IDs() []string
	Len() int
}

type Runner interface {
	Run(ctx context.Context, configID string) (*domain.BackupHistory, error)
}

// Schedule keeps one armed timer per recurring config whose owner has an
// active subscription. Each fire runs the backup and arms the next run.
type Schedule struct {
	configs       domain.ConfigRepository
	subscriptions domain.SubscriptionChecker
	runner        Runner
	timers        Timers
	metrics       Metrics
	logger        Logger
	now           func() time.Time
}

func NewSchedule(
	configs domain.ConfigRepository,
	subscriptions domain.SubscriptionChecker,
	runner Runner,
	timers Timers,
	metrics Metrics,
	logger Logger,
) *Schedule {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Schedule{
		configs:       configs,
		subscriptions: subscriptions,
		runner:        runner,
		timers:        timers,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Init drops every armed timer and arms one per eligible config.
func (uc *Schedule) Init(ctx context.Context) error {
	uc.logger.Infof("Initializing backup scheduler...")
	uc.timers.CancelAll()

	configs, err := uc.configs.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("%w: list scheduled configs: %w", domain.ErrScheduling, err)
	}
	uc.logger.Infof("Found %d scheduled backup(s)", len(configs))

	for _, cfg := range configs {
		if !uc.eligible(ctx, cfg) {
			continue
		}
		if err := uc.arm(ctx, cfg); err != nil {
			uc.logger.Errorf("[%s] Failed to schedule: %v", cfg.Name, err)
		}
	}

	uc.metrics.TimersArmed(uc.timers.Len())
	return nil
}

// Refresh reconciles armed timers with the stored configs: new configs are
// armed, configs whose nextRun moved are re-armed, and timers of deleted,
// manual or unsubscribed configs are cancelled. Unchanged timers stay.
func (uc *Schedule) Refresh(ctx context.Context) error {
	uc.logger.Infof("Refreshing backup schedule...")

	configs, err := uc.configs.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("%w: list scheduled configs: %w", domain.ErrScheduling, err)
	}

	listed := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		listed[cfg.ID] = true
		armedAt, armed := uc.timers.ArmedAt(cfg.ID)

		if !uc.eligible(ctx, cfg) {
			if armed && uc.timers.Cancel(cfg.ID) {
				uc.logger.Infof("[%s] Cancelled timer, subscription inactive", cfg.Name)
			}
			continue
		}

		switch {
		case !armed:
			if err := uc.arm(ctx, cfg); err != nil {
				uc.logger.Errorf("[%s] Failed to schedule: %v", cfg.Name, err)
			}
		case cfg.NextRun != nil && !armedAt.Equal(*cfg.NextRun):
			uc.logger.Infof("[%s] Next run moved from %s to %s", cfg.Name, armedAt, *cfg.NextRun)
			if err := uc.arm(ctx, cfg); err != nil {
				uc.logger.Errorf("[%s] Failed to reschedule: %v", cfg.Name, err)
			}
		}
	}

	for _, id := range uc.timers.IDs() {
		if !listed[id] && uc.timers.Cancel(id) {
			uc.logger.Infof("Cancelled timer for removed backup %s", id)
		}
	}

	uc.metrics.TimersArmed(uc.timers.Len())
	return nil
}

// ScheduleBackup (re)arms the timer of one config and reports whether a timer
// is armed afterwards. Manual and unsubscribed configs are disarmed.
func (uc *Schedule) ScheduleBackup(ctx context.Context, configID string) (bool, error) {
	cfg, err := uc.configs.GetConfig(ctx, configID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.CancelScheduledBackup(configID)
		}
		return false, err
	}

	if !cfg.Scheduled() || !uc.eligible(ctx, cfg) {
		uc.CancelScheduledBackup(configID)
		return false, nil
	}

	if err := uc.arm(ctx, cfg); err != nil {
		return false, err
	}
	uc.metrics.TimersArmed(uc.timers.Len())
	return true, nil
}

// CancelScheduledBackup disarms the config's timer, reporting whether one
// was armed.
func (uc *Schedule) CancelScheduledBackup(configID string) bool {
	cancelled := uc.timers.Cancel(configID)
	uc.metrics.TimersArmed(uc.timers.Len())
	return cancelled
}

func (uc *Schedule) eligible(ctx context.Context, cfg *domain.BackupConfig) bool {
	active, err := uc.subscriptions.IsSubscriptionActive(ctx, cfg.UserID)
	if err != nil {
		uc.logger.Warnf("[%s] Failed to check subscription of %s: %v", cfg.Name, cfg.UserID, err)
		return false
	}
	return active
}

// arm sets the timer for cfg.NextRun, computing and storing a next run first
// when the config has none.
func (uc *Schedule) arm(ctx context.Context, cfg *domain.BackupConfig) error {
	if cfg.NextRun == nil {
		next, err := NextRun(cfg.Frequency, uc.now())
		if err != nil {
			return err
		}
		if err := uc.configs.SetNextRun(ctx, cfg.ID, &next); err != nil {
			return fmt.Errorf("%w: store next run: %w", domain.ErrScheduling, err)
		}
		cfg.NextRun = &next
	}

	id, name := cfg.ID, cfg.Name
	uc.timers.Arm(id, *cfg.NextRun, func() { uc.fire(id, name) })
	uc.logger.Infof("[%s] Scheduled backup %s for %s", name, id, cfg.NextRun.Format(time.RFC3339))
	return nil
}

func (uc *Schedule) fire(configID, name string) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Errorf("[%s] Scheduled backup panicked: %v", name, r)
		}
	}()

	uc.logger.Infof("[%s] Executing scheduled backup %s", name, configID)
	_, err := uc.runner.Run(ctx, configID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		uc.logger.Warnf("[%s] Backup %s no longer exists, not rescheduling", name, configID)
		return
	case errors.Is(err, domain.ErrAlreadyRunning):
		uc.logger.Warnf("[%s] Skipped, a run is already in progress", name)
	case err != nil:
		uc.logger.Errorf("[%s] Scheduled backup failed: %v", name, err)
	}

	cfg, err := uc.configs.GetConfig(ctx, configID)
	if err != nil {
		uc.logger.Errorf("[%s] Failed to reload config: %v", name, err)
		uc.metrics.TimersArmed(uc.timers.Len())
		return
	}
	if !cfg.Scheduled() || !uc.eligible(ctx, cfg) {
		uc.metrics.TimersArmed(uc.timers.Len())
		return
	}

	next, err := NextRun(cfg.Frequency, uc.now())
	if err != nil {
		uc.logger.Errorf("[%s] %v", name, err)
		return
	}
	if err := uc.configs.SetNextRun(ctx, cfg.ID, &next); err != nil {
		uc.logger.Errorf("[%s] Failed to store next run: %v", name, err)
	}
	cfg.NextRun = &next
	if err := uc.arm(ctx, cfg); err != nil {
		uc.logger.Errorf("[%s] Failed to reschedule: %v", name, err)
	}
	uc.metrics.TimersArmed(uc.timers.Len())
}
