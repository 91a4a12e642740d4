package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"moodmeal/src/internal/embedding"
	"moodmeal/src/internal/index"
	"moodmeal/src/internal/preference"
)

// Rating is a user's score for a meal served under a mood pair.
type Rating struct {
	UserID string   `json:"user_id"`
	Moods  []string `json:"moods"`
	MealID string   `json:"meal_id"`
	Rating int      `json:"rating"`
}

func (r Rating) pair() preference.MoodPair {
	var p preference.MoodPair
	if len(r.Moods) > 0 {
		p.Primary = r.Moods[0]
	}
	if len(r.Moods) > 1 {
		p.Secondary = r.Moods[1]
	} else {
		p.Secondary = p.Primary
	}
	return p
}

// Rate records the rating and, for ratings of 4 or more, pulls the meal's
// embedding toward the mood context it was rated in. Mood labels are mapped
// onto the taxonomy like query moods. Validation, the index check and the
// context embedding happen before anything is mutated. A persistence failure
// is returned wrapped in preference.ErrPersist after the in-memory changes
// and the embedding update have been applied.
func (e *Engine) Rate(ctx context.Context, r Rating) (ev preference.RatingEvent, err error) {
	defer guard("rate", &err)

	if r.Rating < preference.MinRating || r.Rating > preference.MaxRating {
		return preference.RatingEvent{}, fmt.Errorf("%w: got %d", ErrInvalidRating, r.Rating)
	}
	if strings.TrimSpace(r.UserID) == "" {
		return preference.RatingEvent{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	pos, ok := e.catalog.Lookup(r.MealID)
	if !ok {
		return preference.RatingEvent{}, fmt.Errorf("%w: %s", ErrUnknownMeal, r.MealID)
	}
	meal := e.catalog.At(pos)
	pair := r.pair()
	pair.Primary, pair.Secondary = e.canonicalMoods(ctx, pair.Primary, pair.Secondary)

	var target []float32
	if r.Rating >= preference.PreferThreshold {
		if e.index.Len() <= pos {
			return preference.RatingEvent{}, index.ErrEmptyIndex
		}
		raw, err := e.embed(ctx, feedbackContext(pair))
		if err != nil {
			return preference.RatingEvent{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		if target, err = embedding.Normalize(raw); err != nil {
			return preference.RatingEvent{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
	}

	ev, err = e.prefs.Rate(ctx, r.UserID, pair, meal.ID, r.Rating)
	var persistErr error
	if err != nil {
		if !errors.Is(err, preference.ErrPersist) {
			return preference.RatingEvent{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		persistErr = err
	}

	if target != nil {
		if err := e.reinforce(ctx, pos, target); err != nil {
			return ev, err
		}
	}
	slog.Info("rating recorded", "user_id", r.UserID, "meal_id", meal.ID, "rating", r.Rating, "mood1", pair.Primary, "mood2", pair.Secondary)
	return ev, persistErr
}

func feedbackContext(p preference.MoodPair) string {
	return strings.ToLower(fmt.Sprintf("feeling %s and %s", p.Primary, p.Secondary))
}

// reinforce blends the meal's current embedding toward target.
func (e *Engine) reinforce(ctx context.Context, pos int, target []float32) error {
	e.feedbackMu.Lock()
	defer e.feedbackMu.Unlock()

	old, err := e.index.Embedding(pos)
	if err != nil {
		return fmt.Errorf("meal embedding: %w", err)
	}
	next, err := embedding.Blend(old, target, e.opts.LearningRate)
	if err != nil {
		return fmt.Errorf("%w: blend: %w", ErrEmbedding, err)
	}
	if err := e.index.UpdateOne(ctx, pos, next); err != nil {
		return fmt.Errorf("update meal embedding: %w", err)
	}
	return nil
}
