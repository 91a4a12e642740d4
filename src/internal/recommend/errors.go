package recommend

import (
	"errors"

	"moodmeal/src/internal/index"
	"moodmeal/src/internal/preference"
)

var (
	// ErrEmptyIndex means the index was never built or holds no meals.
	ErrEmptyIndex = index.ErrEmptyIndex
	// ErrNoCandidates means the search ran but nothing usable came back.
	ErrNoCandidates = errors.New("no suitable meals found")
	ErrUnknownMeal  = errors.New("unknown meal")
	ErrUnknownUser  = errors.New("unknown user")
	// ErrEmbedding wraps failures of the embedding function.
	ErrEmbedding     = errors.New("embedding failed")
	ErrInvalidRating = preference.ErrInvalidRating
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternal      = errors.New("internal error")
)
