package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/semmidev/cloudvault/internal/domain"
)

// memRepo is an in-memory ConfigRepository, HistoryRepository,
// SubscriptionChecker and ActivityRecorder.
type memRepo struct {
	mu       sync.Mutex
	seq      int
	configs  map[string]*domain.BackupConfig
	history  map[string]*domain.BackupHistory
	active   map[string]bool
	activity []domain.Activity
}

func newMemRepo() *memRepo {
	return &memRepo{
		configs: make(map[string]*domain.BackupConfig),
		history: make(map[string]*domain.BackupHistory),
		active:  make(map[string]bool),
	}
}

func (m *memRepo) addConfig(cfg *domain.BackupConfig) *domain.BackupConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.ID == "" {
		m.seq++
		cfg.ID = fmt.Sprintf("cfg-%d", m.seq)
	}
	if cfg.Status == "" {
		cfg.Status = domain.ConfigPending
	}
	c := *cfg
	m.configs[cfg.ID] = &c
	return cfg
}

func (m *memRepo) deleteConfig(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.configs, id)
}

func (m *memRepo) config(id string) *domain.BackupConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (m *memRepo) entries(configID string) []*domain.BackupHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.BackupHistory
	for _, h := range m.history {
		if h.ConfigID == configID {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *memRepo) actions() []domain.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Activity(nil), m.activity...)
}

func (m *memRepo) GetConfig(ctx context.Context, id string) (*domain.BackupConfig, error) {
	if c := m.config(id); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("backup config %s: %w", id, domain.ErrNotFound)
}

func (m *memRepo) ListScheduled(ctx context.Context) ([]*domain.BackupConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.BackupConfig
	for _, c := range m.configs {
		if c.Frequency != domain.FrequencyManual {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ClaimForRun(ctx context.Context, id string, at time.Time) (*domain.BackupConfig, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return nil, nil, fmt.Errorf("backup config %s: %w", id, domain.ErrNotFound)
	}
	if c.Status == domain.ConfigRunning {
		return nil, nil, fmt.Errorf("backup config %s: %w", id, domain.ErrAlreadyRunning)
	}
	previous := c.LastRun
	stamp := at
	c.LastRun = &stamp
	c.Status = domain.ConfigRunning
	cp := *c
	return &cp, previous, nil
}

func (m *memRepo) UpdateConfig(ctx context.Context, cfg *domain.BackupConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[cfg.ID]
	if !ok {
		return fmt.Errorf("backup config %s: %w", cfg.ID, domain.ErrNotFound)
	}
	c.Status = cfg.Status
	c.LastRun = cfg.LastRun
	c.Size = cfg.Size
	switch {
	case !c.Scheduled():
		c.NextRun = nil
	case cfg.NextRun != nil:
		c.NextRun = cfg.NextRun
	}
	return nil
}

func (m *memRepo) setFrequency(id string, freq domain.Frequency, nextRun *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[id].Frequency = freq
	m.configs[id].NextRun = nextRun
}

func (m *memRepo) SetNextRun(ctx context.Context, id string, nextRun *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return fmt.Errorf("backup config %s: %w", id, domain.ErrNotFound)
	}
	c.NextRun = nextRun
	return nil
}

func (m *memRepo) CreateHistory(ctx context.Context, h *domain.BackupHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.ID == "" {
		m.seq++
		h.ID = fmt.Sprintf("hist-%d", m.seq)
	}
	cp := *h
	m.history[h.ID] = &cp
	return nil
}

func (m *memRepo) GetHistory(ctx context.Context, id string) (*domain.BackupHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.history[id]
	if !ok {
		return nil, fmt.Errorf("backup history %s: %w", id, domain.ErrNotFound)
	}
	cp := *h
	return &cp, nil
}

func (m *memRepo) UpdateHistory(ctx context.Context, h *domain.BackupHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.history[h.ID]; !ok {
		return fmt.Errorf("backup history %s: %w", h.ID, domain.ErrNotFound)
	}
	cp := *h
	m.history[h.ID] = &cp
	return nil
}

func (m *memRepo) FirstCompleted(ctx context.Context, configID string) (*domain.BackupHistory, error) {
	for _, h := range m.entries(configID) {
		if h.Status == domain.HistoryCompleted {
			return h, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ListExpired(ctx context.Context, configID string, cutoff time.Time) ([]*domain.BackupHistory, error) {
	var out []*domain.BackupHistory
	for _, h := range m.entries(configID) {
		if h.Status == domain.HistoryCompleted && h.StartTime.Before(cutoff) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memRepo) IsSubscriptionActive(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[userID], nil
}

func (m *memRepo) setActive(userID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[userID] = active
}

func (m *memRepo) RecordActivity(ctx context.Context, userID string, action domain.Activity, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, action)
	return nil
}

// failingStore wraps a store and fails the selected operations.
type failingStore struct {
	domain.ObjectStore
	failPut    bool
	failDelete bool
	onPut      func()
}

func (f *failingStore) Put(ctx context.Context, bucket, localPath, remoteKey string) error {
	if f.onPut != nil {
		f.onPut()
	}
	if f.failPut {
		return fmt.Errorf("%w: connection reset by peer", domain.ErrStorage)
	}
	return f.ObjectStore.Put(ctx, bucket, localPath, remoteKey)
}

func (f *failingStore) Delete(ctx context.Context, bucket, key string) error {
	if f.failDelete {
		return fmt.Errorf("%w: access denied", domain.ErrStorage)
	}
	return f.ObjectStore.Delete(ctx, bucket, key)
}

type singleStore struct {
	service string
	store   domain.ObjectStore
}

func (s singleStore) Resolve(service string) (domain.ObjectStore, error) {
	if service != s.service {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedBackend, service)
	}
	return s.store, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []domain.HistoryStatus
	details  []string
}

func (n *recordingNotifier) NotifyBackupStatus(ctx context.Context, userID, configName string, status domain.HistoryStatus, details string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
	n.details = append(n.details, details)
	return nil
}

// fakeTimers records armed callbacks without firing them.
type fakeTimers struct {
	mu    sync.Mutex
	at    map[string]time.Time
	fns   map[string]func()
	armed int
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{at: make(map[string]time.Time), fns: make(map[string]func())}
}

func (f *fakeTimers) Arm(id string, at time.Time, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.at[id] = at
	f.fns[id] = fn
	f.armed++
}

func (f *fakeTimers) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.at[id]
	delete(f.at, id)
	delete(f.fns, id)
	return ok
}

func (f *fakeTimers) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.at = make(map[string]time.Time)
	f.fns = make(map[string]func())
}

func (f *fakeTimers) ArmedAt(id string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.at[id]
	return at, ok
}

func (f *fakeTimers) IDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.at))
	for id := range f.at {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeTimers) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.at)
}

func (f *fakeTimers) armCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

// fire runs and disarms the callback for id, like a timer going off.
func (f *fakeTimers) fire(id string) bool {
	f.mu.Lock()
	fn, ok := f.fns[id]
	delete(f.at, id)
	delete(f.fns, id)
	f.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *fakeRunner) Run(ctx context.Context, configID string) (*domain.BackupHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, configID)
	return nil, r.err
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
