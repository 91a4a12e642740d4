package preference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrInvalidUser   = errors.New("user id is required")
	ErrInvalidMeal   = errors.New("meal id is required")
	// ErrPersist wraps flush failures. The in-memory change has already
	// been applied when it is returned.
	ErrPersist = errors.New("failed to persist preferences")
)

const (
	MinRating = 1
	MaxRating = 5

	// PreferThreshold and DropThreshold bound the ratings that add a meal to
	// or remove it from a preferred set.
	PreferThreshold = 4
	DropThreshold   = 2
)

// Persister loads all profiles at startup and saves one profile after each
// mutation.
type Persister interface {
	LoadAll(ctx context.Context) ([]Profile, error)
	Save(ctx context.Context, p Profile) error
	Close() error
}

type entry struct {
	mu      sync.Mutex
	profile Profile
}

// Store holds user profiles in memory. Mutations of one user are serialized
// by that user's entry lock; different users never contend beyond the map
// lookup.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	persister Persister
	now       func() time.Time
}

// NewStore creates an empty store. A nil persister keeps profiles in memory
// only.
func NewStore(p Persister) *Store {
	return &Store{
		entries:   make(map[string]*entry),
		persister: p,
		now:       time.Now,
	}
}

// Load replaces the in-memory profiles with those from the persister.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	profiles, err := s.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	entries := make(map[string]*entry, len(profiles))
	for _, p := range profiles {
		if p.UserID == "" {
			continue
		}
		entries[p.UserID] = &entry{profile: p.clone()}
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	slog.Info("loaded user preferences", "users", len(entries))
	return nil
}

func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}

func (s *Store) lookup(userID string, create bool) *entry {
	s.mu.RLock()
	e := s.entries[userID]
	s.mu.RUnlock()
	if e != nil || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.entries[userID]; e == nil {
		e = &entry{profile: newProfile(userID)}
		s.entries[userID] = e
	}
	return e
}

// flush must be called with e.mu held.
func (s *Store) flush(ctx context.Context, e *entry) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, e.profile.clone()); err != nil {
		slog.Warn("failed to persist profile", "user_id", e.profile.UserID, "error", err)
		return fmt.Errorf("%w: user %s: %v", ErrPersist, e.profile.UserID, err)
	}
	return nil
}

// SetRestrictions replaces a user's dietary restrictions and cultural
// preferences, creating the profile if needed.
func (s *Store) SetRestrictions(ctx context.Context, userID string, dietary, cultural []string) (Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, ErrInvalidUser
	}
	e := s.lookup(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.profile.DietaryRestrictions = normalizeTerms(dietary)
	e.profile.CulturalPreferences = normalizeTerms(cultural)
	e.profile.UpdatedAt = s.now()

	err := s.flush(ctx, e)
	return e.profile.clone(), err
}

// Rate records a rating. Ratings of 4 or 5 add the meal to the pair's
// preferred set, 1 or 2 remove it, 3 leaves it alone.
func (s *Store) Rate(ctx context.Context, userID string, pair MoodPair, mealID string, rating int) (RatingEvent, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return RatingEvent{}, ErrInvalidUser
	}
	if mealID == "" {
		return RatingEvent{}, ErrInvalidMeal
	}
	if rating < MinRating || rating > MaxRating {
		return RatingEvent{}, fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}

	e := s.lookup(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	ev := RatingEvent{
		ID:     uuid.New().String(),
		Moods:  pair,
		MealID: mealID,
		Rating: rating,
		At:     now,
	}
	e.profile.History = append(e.profile.History, ev)
	switch {
	case rating >= PreferThreshold:
		e.profile.addPreferred(pair, mealID)
	case rating <= DropThreshold:
		e.profile.removePreferred(pair, mealID)
	}
	e.profile.UpdatedAt = now

	return ev, s.flush(ctx, e)
}

// TouchMeal records that a meal was served to an existing user. It reports
// false when the user has no profile.
func (s *Store) TouchMeal(ctx context.Context, userID string, at time.Time) (bool, error) {
	e := s.lookup(userID, false)
	if e == nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profile.LastMealAt = at
	return true, s.flush(ctx, e)
}

// Get returns a copy of the user's profile.
func (s *Store) Get(userID string) (Profile, bool) {
	e := s.lookup(userID, false)
	if e == nil {
		return Profile{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.clone(), true
}

// Users returns all known user IDs, sorted.
func (s *Store) Users() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
