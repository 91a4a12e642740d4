package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"moodmeal/src/internal/recommend"
	"moodmeal/src/internal/storage"
	"moodmeal/src/internal/system"

	"github.com/robfig/cron/v3"
)

const (
	ReminderJobID = "reminders"
	stateName     = "reminder_scan"
)

// ScanState is written after each reminder scan.
type ScanState struct {
	LastRun   time.Time `json:"last_run"`
	Due       int       `json:"due"`
	Duration  string    `json:"duration"`
	Reminders []string  `json:"reminders,omitempty"`
}

// CronManager runs scheduled jobs: the periodic reminder scan and any
// extra functions registered by the caller.
type CronManager struct {
	st       *storage.Storage
	scanFn   func(ctx context.Context) []recommend.Reminder
	reportFn func(r recommend.Reminder)
	c        *cron.Cron
	jobs     map[string]cron.EntryID
	mu       sync.RWMutex
	scanMu   sync.Mutex
}

// NewCronManager creates a manager. st may be nil, in which case scan state
// is not persisted. A nil reportFn logs each due reminder.
func NewCronManager(st *storage.Storage, scanFn func(context.Context) []recommend.Reminder, reportFn func(recommend.Reminder)) *CronManager {
	if reportFn == nil {
		reportFn = logReminder
	}
	return &CronManager{
		st:       st,
		scanFn:   scanFn,
		reportFn: reportFn,
		c:        cron.New(cron.WithSeconds()),
		jobs:     make(map[string]cron.EntryID),
	}
}

func logReminder(r recommend.Reminder) {
	args := []any{"user_id", r.UserID, "hours_since_last_meal", fmt.Sprintf("%.1f", r.HoursSince), "message", r.Message}
	if r.SuggestedMeal != nil {
		args = append(args, "suggested_meal", r.SuggestedMeal.Meal.Name)
	}
	slog.Info("meal reminder", args...)
}

// ScheduleReminders registers the reminder scan under spec, replacing any
// earlier registration.
func (m *CronManager) ScheduleReminders(spec string) error {
	return m.AddJob(ReminderJobID, spec, func() {
		m.RunScan(context.Background())
	})
}

func (m *CronManager) Start() {
	go m.c.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (m *CronManager) Stop(ctx context.Context) {
	done := m.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("cron jobs still running at shutdown")
	}
}

func (m *CronManager) AddJob(id, spec string, f func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.jobs[id]; ok {
		m.c.Remove(entryID)
		delete(m.jobs, id)
	}

	entryID, err := m.c.AddFunc(spec, f)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", id, err)
	}
	m.jobs[id] = entryID
	return nil
}

func (m *CronManager) RemoveJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.jobs[id]; ok {
		m.c.Remove(entryID)
		delete(m.jobs, id)
	}
}

// Jobs returns the registered job IDs with their next run time.
func (m *CronManager) Jobs() map[string]time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]time.Time, len(m.jobs))
	for id, entryID := range m.jobs {
		out[id] = m.c.Entry(entryID).Next
	}
	return out
}

// RunScan checks every user once and reports due reminders. Overlapping
// scans are skipped.
func (m *CronManager) RunScan(ctx context.Context) ScanState {
	if !m.scanMu.TryLock() {
		slog.Debug("reminder scan already running, skipping")
		return ScanState{}
	}
	defer m.scanMu.Unlock()

	start := time.Now()
	due := m.scanFn(ctx)
	state := ScanState{LastRun: start, Due: len(due)}
	for _, r := range due {
		m.reportFn(r)
		state.Reminders = append(state.Reminders, r.UserID)
	}
	state.Duration = time.Since(start).String()

	slog.Info("reminder scan finished", "due", state.Due, "duration", state.Duration)
	system.LogMemoryUsage("reminder_scan")

	if m.st != nil {
		if err := m.st.SaveState(stateName, state); err != nil {
			slog.Warn("failed to save reminder scan state", "error", err)
		}
	}
	return state
}

// LastScan loads the state of the most recent scan, if any.
func (m *CronManager) LastScan() (ScanState, bool) {
	var s ScanState
	if m.st == nil {
		return s, false
	}
	if err := m.st.LoadState(stateName, &s); err != nil {
		return ScanState{}, false
	}
	return s, true
}
