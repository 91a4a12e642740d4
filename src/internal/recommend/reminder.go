package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type ReminderType string

const (
	ReminderNone    ReminderType = "none"
	ReminderOverdue ReminderType = "overdue"
)

type Reminder struct {
	UserID        string       `json:"user_id"`
	NeedsReminder bool         `json:"needs_reminder"`
	HoursSince    float64      `json:"hours_since_last_meal,omitempty"`
	Message       string       `json:"message"`
	SuggestedMeal *Result      `json:"suggested_meal,omitempty"`
	Type          ReminderType `json:"reminder_type"`
}

// Query used to pick a meal for overdue users.
var reminderQuery = Query{Text: "need nourishment and energy", Mood1: "Tired", Mood2: "Hungry", K: 1}

// CheckReminder reports whether the user's last served meal is older than
// the reminder threshold. Users without a recorded meal never need one.
func (e *Engine) CheckReminder(ctx context.Context, userID string) (Reminder, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Reminder{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	r := Reminder{
		UserID:  userID,
		Message: "You're doing great with your meal timing!",
		Type:    ReminderNone,
	}

	p, ok := e.prefs.Get(userID)
	if !ok || p.LastMealAt.IsZero() {
		return r, nil
	}
	since := e.now().Sub(p.LastMealAt)
	if since <= e.opts.ReminderThreshold {
		return r, nil
	}

	hours := since.Hours()
	r.NeedsReminder = true
	r.HoursSince = hours
	r.Type = ReminderOverdue
	r.Message = fmt.Sprintf("It's been %d hours since your last meal. Time to nourish your body!", int(hours))

	q := reminderQuery
	q.UserID = userID
	results, err := e.suggest(ctx, q)
	if err != nil {
		slog.Warn("no meal suggestion for reminder", "user_id", userID, "error", err)
	} else if len(results) > 0 {
		r.SuggestedMeal = &results[0]
	}
	return r, nil
}

// suggest recommends without recording a served meal.
func (e *Engine) suggest(ctx context.Context, q Query) (results []Result, err error) {
	defer guard("suggest", &err)
	return e.recommend(ctx, q, false)
}

// LogMeal records that the user just ate.
func (e *Engine) LogMeal(ctx context.Context, userID string) (time.Time, error) {
	at := e.now()
	ok, err := e.prefs.TouchMeal(ctx, userID, at)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return at, err
}

// DueReminders checks every known user and returns the reminders that need
// sending.
func (e *Engine) DueReminders(ctx context.Context) []Reminder {
	var out []Reminder
	for _, id := range e.prefs.Users() {
		if ctx.Err() != nil {
			break
		}
		r, err := e.CheckReminder(ctx, id)
		if err != nil {
			slog.Warn("reminder check failed", "user_id", id, "error", err)
			continue
		}
		if r.NeedsReminder {
			out = append(out, r)
		}
	}
	return out
}
