package cron

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"moodmeal/src/internal/recommend"
	"moodmeal/src/internal/storage"
)

func TestRunScanReportsAndSaves(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "moodmeal-cron-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	st, err := storage.New(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	scan := func(context.Context) []recommend.Reminder {
		return []recommend.Reminder{
			{UserID: "u1", NeedsReminder: true, HoursSince: 4, Type: recommend.ReminderOverdue},
			{UserID: "u2", NeedsReminder: true, HoursSince: 7, Type: recommend.ReminderOverdue},
		}
	}
	var reported []string
	m := NewCronManager(st, scan, func(r recommend.Reminder) {
		reported = append(reported, r.UserID)
	})

	if _, ok := m.LastScan(); ok {
		t.Fatal("expected no scan state before the first scan")
	}

	state := m.RunScan(context.Background())
	if state.Due != 2 || len(reported) != 2 {
		t.Fatalf("expected 2 reminders, got state %+v reported %v", state, reported)
	}

	saved, ok := m.LastScan()
	if !ok {
		t.Fatal("expected saved scan state")
	}
	if saved.Due != 2 || len(saved.Reminders) != 2 || saved.Reminders[0] != "u1" {
		t.Errorf("unexpected saved state %+v", saved)
	}
}

func TestScheduleReminders(t *testing.T) {
	m := NewCronManager(nil, func(context.Context) []recommend.Reminder { return nil }, nil)

	if err := m.ScheduleReminders("not a cron spec"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := m.ScheduleReminders("0 */5 * * * *"); err != nil {
		t.Fatalf("ScheduleReminders failed: %v", err)
	}
	if err := m.ScheduleReminders("0 */10 * * * *"); err != nil {
		t.Fatalf("rescheduling failed: %v", err)
	}
	jobs := m.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %v", jobs)
	}
	if _, ok := jobs[ReminderJobID]; !ok {
		t.Errorf("expected %q job, got %v", ReminderJobID, jobs)
	}

	m.RemoveJob(ReminderJobID)
	if len(m.Jobs()) != 0 {
		t.Error("expected no jobs after removal")
	}
}

func TestScheduledScanRuns(t *testing.T) {
	var calls atomic.Int32
	m := NewCronManager(nil, func(context.Context) []recommend.Reminder {
		calls.Add(1)
		return nil
	}, nil)
	if err := m.ScheduleReminders("* * * * * *"); err != nil {
		t.Fatal(err)
	}
	m.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.Stop(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatal("expected the scheduled scan to run")
	}
}
