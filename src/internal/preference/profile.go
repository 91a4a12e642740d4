package preference

import (
	"strings"
	"time"
)

// MoodPair is the (primary, secondary) mood a rating was given under.
type MoodPair struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// Key identifies the pair regardless of letter case. Order matters.
func (p MoodPair) Key() string {
	return strings.ToLower(strings.TrimSpace(p.Primary)) + "_" + strings.ToLower(strings.TrimSpace(p.Secondary))
}

type RatingEvent struct {
	ID     string    `json:"id"`
	Moods  MoodPair  `json:"moods"`
	MealID string    `json:"meal_id"`
	Rating int       `json:"rating"`
	At     time.Time `json:"at"`
}

// PreferredSet lists meals rated highly under one mood pair, in the order
// they were first added.
type PreferredSet struct {
	Moods   MoodPair `json:"moods"`
	MealIDs []string `json:"meal_ids"`
}

type Profile struct {
	UserID              string         `json:"user_id"`
	DietaryRestrictions []string       `json:"dietary_restrictions"`
	CulturalPreferences []string       `json:"cultural_preferences"`
	History             []RatingEvent  `json:"history"`
	Preferred           []PreferredSet `json:"preferred"`
	LastMealAt          time.Time      `json:"last_meal_at,omitempty"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func newProfile(userID string) Profile {
	return Profile{
		UserID:              userID,
		DietaryRestrictions: []string{},
		CulturalPreferences: []string{},
		History:             []RatingEvent{},
		Preferred:           []PreferredSet{},
	}
}

// PreferredFor returns the meal IDs preferred under pair.
func (p *Profile) PreferredFor(pair MoodPair) []string {
	key := pair.Key()
	for _, s := range p.Preferred {
		if s.Moods.Key() == key {
			return s.MealIDs
		}
	}
	return nil
}

func (p *Profile) IsPreferred(pair MoodPair, mealID string) bool {
	for _, id := range p.PreferredFor(pair) {
		if id == mealID {
			return true
		}
	}
	return false
}

func (p *Profile) addPreferred(pair MoodPair, mealID string) {
	key := pair.Key()
	for i, s := range p.Preferred {
		if s.Moods.Key() != key {
			continue
		}
		for _, id := range s.MealIDs {
			if id == mealID {
				return
			}
		}
		p.Preferred[i].MealIDs = append(p.Preferred[i].MealIDs, mealID)
		return
	}
	p.Preferred = append(p.Preferred, PreferredSet{Moods: pair, MealIDs: []string{mealID}})
}

func (p *Profile) removePreferred(pair MoodPair, mealID string) {
	key := pair.Key()
	for i, s := range p.Preferred {
		if s.Moods.Key() != key {
			continue
		}
		kept := s.MealIDs[:0:0]
		for _, id := range s.MealIDs {
			if id != mealID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			p.Preferred = append(p.Preferred[:i:i], p.Preferred[i+1:]...)
		} else {
			p.Preferred[i].MealIDs = kept
		}
		return
	}
}

// clone deep-copies p so callers never share slices with the store.
func (p Profile) clone() Profile {
	out := p
	out.DietaryRestrictions = append([]string{}, p.DietaryRestrictions...)
	out.CulturalPreferences = append([]string{}, p.CulturalPreferences...)
	out.History = append([]RatingEvent{}, p.History...)
	out.Preferred = make([]PreferredSet, len(p.Preferred))
	for i, s := range p.Preferred {
		out.Preferred[i] = PreferredSet{Moods: s.Moods, MealIDs: append([]string{}, s.MealIDs...)}
	}
	return out
}

// normalizeTerms trims terms, drops empties and removes case-insensitive
// duplicates, keeping the first spelling.
func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
