package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// pastDueDelay is how soon a timer armed for a past instant fires.
const pastDueDelay = 200 * time.Millisecond

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

type timer struct {
	entry cron.EntryID
	at    time.Time
}

// Scheduler runs recurring cron jobs and keyed one-shot timers on a single
// cron instance. At most one timer is armed per key.
type Scheduler struct {
	cron   *cron.Cron
	logger Logger

	mu     sync.Mutex
	timers map[string]*timer
}

func New(logger Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
		)),
		logger: logger,
		timers: make(map[string]*timer),
	}
}

// AddJob registers a recurring job using a standard five field cron spec.
func (s *Scheduler) AddJob(spec string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := job(context.Background()); err != nil {
			s.logger.Errorf("Scheduled job failed: %v", err)
		}
	})
	return err
}

// Arm schedules fn to run once at the given time under id, replacing any
// timer already armed for id. Past instants fire almost immediately.
func (s *Scheduler) Arm(id string, at time.Time, fn func()) {
	fireAt := at
	if earliest := time.Now().Add(pastDueDelay); fireAt.Before(earliest) {
		fireAt = earliest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[id]; ok {
		s.cron.Remove(existing.entry)
	}

	// The job identifies itself by t, never by the entry id, which is only
	// known after Schedule returns and is read under mu.
	t := &timer{at: at}
	t.entry = s.cron.Schedule(once{at: fireAt}, cron.FuncJob(func() {
		if !s.release(id, t) {
			return
		}
		fn()
	}))
	s.timers[id] = t
}

// release drops the timer for id if it is still t, reporting whether the
// caller owns the fire.
func (s *Scheduler) release(id string, t *timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.timers[id]; !ok || current != t {
		return false
	}
	delete(s.timers, id)
	s.cron.Remove(t.entry)
	return true
}

// Cancel disarms the timer for id and reports whether one was armed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.timers[id]
	if !ok {
		return false
	}
	s.cron.Remove(existing.entry)
	delete(s.timers, id)
	return true
}

func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.timers {
		s.cron.Remove(existing.entry)
		delete(s.timers, id)
	}
}

// ArmedAt returns the time the timer for id was armed for.
func (s *Scheduler) ArmedAt(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.timers[id]
	if !ok {
		return time.Time{}, false
	}
	return existing.at, true
}

func (s *Scheduler) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// once fires a single time and never again.
type once struct {
	at time.Time
}

func (o once) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

type cronLogger struct {
	logger Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
