package preference

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id      TEXT PRIMARY KEY,
	dietary      TEXT NOT NULL DEFAULT '[]',
	cultural     TEXT NOT NULL DEFAULT '[]',
	last_meal_at TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ratings (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	seq     INTEGER NOT NULL,
	mood1   TEXT NOT NULL,
	mood2   TEXT NOT NULL,
	meal_id TEXT NOT NULL,
	rating  INTEGER NOT NULL,
	at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ratings_user ON ratings(user_id, seq);

CREATE TABLE IF NOT EXISTS preferred (
	user_id  TEXT NOT NULL,
	mood1    TEXT NOT NULL,
	mood2    TEXT NOT NULL,
	meal_id  TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (user_id, mood1, mood2, meal_id)
);
`

// SQLitePersister stores profiles in a SQLite database. Rating events are
// append-only; the preferred sets of a user are rewritten on every save.
type SQLitePersister struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func (s *SQLitePersister) Save(ctx context.Context, p Profile) error {
	dietary, err := json.Marshal(p.DietaryRestrictions)
	if err != nil {
		return err
	}
	cultural, err := json.Marshal(p.CulturalPreferences)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, dietary, cultural, last_meal_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			dietary = excluded.dietary,
			cultural = excluded.cultural,
			last_meal_at = excluded.last_meal_at,
			updated_at = excluded.updated_at`,
		p.UserID, string(dietary), string(cultural), formatTime(p.LastMealAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	for i, ev := range p.History {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO ratings (id, user_id, seq, mood1, mood2, meal_id, rating, at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, p.UserID, i, ev.Moods.Primary, ev.Moods.Secondary, ev.MealID, ev.Rating, formatTime(ev.At))
		if err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM preferred WHERE user_id = ?`, p.UserID); err != nil {
		return fmt.Errorf("clear preferred: %w", err)
	}
	pos := 0
	for _, set := range p.Preferred {
		for _, mealID := range set.MealIDs {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO preferred (user_id, mood1, mood2, meal_id, position)
				VALUES (?, ?, ?, ?, ?)`,
				p.UserID, set.Moods.Primary, set.Moods.Secondary, mealID, pos)
			if err != nil {
				return fmt.Errorf("insert preferred: %w", err)
			}
			pos++
		}
	}

	return tx.Commit()
}

func (s *SQLitePersister) LoadAll(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, dietary, cultural, last_meal_at, updated_at FROM profiles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var order []string
	byUser := make(map[string]*Profile)
	for rows.Next() {
		var userID, dietary, cultural, lastMeal, updated string
		if err := rows.Scan(&userID, &dietary, &cultural, &lastMeal, &updated); err != nil {
			return nil, err
		}
		p := newProfile(userID)
		if err := json.Unmarshal([]byte(dietary), &p.DietaryRestrictions); err != nil {
			return nil, fmt.Errorf("profile %s dietary: %w", userID, err)
		}
		if err := json.Unmarshal([]byte(cultural), &p.CulturalPreferences); err != nil {
			return nil, fmt.Errorf("profile %s cultural: %w", userID, err)
		}
		if p.LastMealAt, err = parseTime(lastMeal); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		byUser[userID] = &p
		order = append(order, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadRatings(ctx, byUser); err != nil {
		return nil, err
	}
	if err := s.loadPreferred(ctx, byUser); err != nil {
		return nil, err
	}

	out := make([]Profile, 0, len(order))
	for _, id := range order {
		out = append(out, *byUser[id])
	}
	return out, nil
}

func (s *SQLitePersister) loadRatings(ctx context.Context, byUser map[string]*Profile) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, mood1, mood2, meal_id, rating, at FROM ratings ORDER BY user_id, seq`)
	if err != nil {
		return fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ev RatingEvent
		var userID, at string
		if err := rows.Scan(&ev.ID, &userID, &ev.Moods.Primary, &ev.Moods.Secondary, &ev.MealID, &ev.Rating, &at); err != nil {
			return err
		}
		if ev.At, err = parseTime(at); err != nil {
			return err
		}
		if p, ok := byUser[userID]; ok {
			p.History = append(p.History, ev)
		}
	}
	return rows.Err()
}

func (s *SQLitePersister) loadPreferred(ctx context.Context, byUser map[string]*Profile) error {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, mood1, mood2, meal_id FROM preferred ORDER BY user_id, position`)
	if err != nil {
		return fmt.Errorf("query preferred: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID, mealID string
		var pair MoodPair
		if err := rows.Scan(&userID, &pair.Primary, &pair.Secondary, &mealID); err != nil {
			return err
		}
		if p, ok := byUser[userID]; ok {
			p.addPreferred(pair, mealID)
		}
	}
	return rows.Err()
}

func (s *SQLitePersister) Close() error {
	return s.db.Close()
}
