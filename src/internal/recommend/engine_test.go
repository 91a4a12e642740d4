package recommend

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"moodmeal/src/internal/catalog"
	"moodmeal/src/internal/embedding"
	"moodmeal/src/internal/explain"
	"moodmeal/src/internal/index"
	"moodmeal/src/internal/mood"
	"moodmeal/src/internal/preference"
)

var testMeals = []catalog.Meal{
	{
		ID: "oatmeal", Name: "Comfort Oatmeal", PrimaryMood: "Sad", SecondaryMood: "Tired",
		Reason: "warm oats soothe low spirits", Benefit: "slow release energy",
		Calories: 320, CulturalTheme: "American", DietaryTheme: "Vegetarian",
	},
	{
		ID: "tacos", Name: "Party Tacos", PrimaryMood: "Happy", SecondaryMood: "Excited",
		Reason: "festive flavors to share", Benefit: "protein for celebration",
		Calories: 540, CulturalTheme: "Mexican", DietaryTheme: "Gluten-Free",
	},
	{
		ID: "miso", Name: "Miso Soup", PrimaryMood: "Calm", SecondaryMood: "Neutral",
		Reason: "gentle broth", Benefit: "probiotics",
		Calories: 120, CulturalTheme: "Japanese", DietaryTheme: "Dairy-Free Vegan",
	},
}

// switchEmbedder fails every call once broken is set.
type switchEmbedder struct {
	inner  *embedding.VocabEmbedder
	broken atomic.Bool
}

func (s *switchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.broken.Load() {
		return nil, errors.New("embedding backend down")
	}
	return s.inner.Embed(ctx, text)
}

type failingPersister struct{}

func (failingPersister) LoadAll(context.Context) ([]preference.Profile, error) { return nil, nil }
func (failingPersister) Save(context.Context, preference.Profile) error {
	return errors.New("disk full")
}
func (failingPersister) Close() error { return nil }

type testEnv struct {
	engine *Engine
	embed  *switchEmbedder
	index  *index.Index
	prefs  *preference.Store
}

func newTestEnv(t *testing.T, meals []catalog.Meal, p preference.Persister) *testEnv {
	t.Helper()
	ctx := context.Background()
	emb := &switchEmbedder{inner: embedding.NewVocabEmbedder(1024)}

	cat, err := catalog.New(meals)
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	enc, err := mood.NewEncoder(ctx, emb.Embed, mood.DefaultTaxonomy(), mood.DefaultThreshold)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	idx := index.New(emb.Embed, 2)
	if err := idx.Build(ctx, cat.All()); err != nil && cat.Len() > 0 {
		t.Fatalf("Build failed: %v", err)
	}
	prefs := preference.NewStore(p)

	eng, err := New(Deps{
		Catalog:     cat,
		Index:       idx,
		Encoder:     enc,
		Preferences: prefs,
		Embed:       emb.Embed,
		Explainer:   explain.Template{},
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &testEnv{engine: eng, embed: emb, index: idx, prefs: prefs}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Meal.ID
	}
	return out
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}, DefaultOptions()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRecommendMatchesMood(t *testing.T) {
	env := newTestEnv(t, testMeals, nil)

	results, err := env.engine.Recommend(context.Background(), Query{Mood1: "Sad", Mood2: "Tired", K: 1})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(results) != 1 || results[0].Meal.ID != "oatmeal" {
		t.Fatalf("expected [oatmeal], got %v", ids(results))
	}
	want := "When you're feeling sad and tired"
	if !strings.HasPrefix(results[0].Explanation, want) {
		t.Errorf("unexpected explanation %q", results[0].Explanation)
	}
}

func TestRecommendDefaultK(t *testing.T) {
	env := newTestEnv(t, testMeals, nil)
	results, err := env.engine.Recommend(context.Background(), Query{Text: "hungry", K: 0})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected default k of 3, got %d results", len(results))
	}
}

func TestRecommendDeterministic(t *testing.T) {
	env := newTestEnv(t, testMeals, nil)
	q := Query{Text: "long day at work", Mood1: "Tired", Mood2: "Sad", K: 3}

	first, err := env.engine.Recommend(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := env.engine.Recommend(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Join(ids(first), ",") != strings.Join(ids(again), ",") {
			t.Fatalf("order changed: %v vs %v", ids(first), ids(again))
		}
		for j := range first {
			if first[j].Score != again[j].Score {
				t.Fatalf("score changed for %s", first[j].Meal.ID)
			}
		}
	}
}

func TestRecommendErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty catalog", func(t *testing.T) {
		env := newTestEnv(t, nil, nil)
		if _, err := env.engine.Recommend(ctx, Query{Mood1: "Sad"}); !errors.Is(err, ErrNoCandidates) {
			t.Fatalf("expected ErrNoCandidates, got %v", err)
		}
	})

	t.Run("unbuilt index", func(t *testing.T) {
		env := newTestEnv(t, testMeals, nil)
		env.engine.index = index.New(env.embed.Embed, 1)
		if _, err := env.engine.Recommend(ctx, Query{Mood1: "Sad"}); !errors.Is(err, ErrEmptyIndex) {
			t.Fatalf("expected ErrEmptyIndex, got %v", err)
		}
	})

	t.Run("embedding failure", func(t *testing.T) {
		env := newTestEnv(t, testMeals, nil)
		env.embed.broken.Store(true)
		if _, err := env.engine.Recommend(ctx, Query{Mood1: "Sad"}); !errors.Is(err, ErrEmbedding) {
			t.Fatalf("expected ErrEmbedding, got %v", err)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		env := newTestEnv(t, testMeals, nil)
		if _, err := env.engine.Recommend(ctx, Query{}); !errors.Is(err, ErrEmbedding) {
			t.Fatalf("expected ErrEmbedding for empty query, got %v", err)
		}
	})
}

func TestDietaryFilter(t *testing.T) {
	ctx := context.Background()

	t.Run("excludes restricted meals", func(t *testing.T) {
		env := newTestEnv(t, testMeals, nil)
		if _, err := env.engine.SetRestrictions(ctx, "u1", []string{"vegan"}, nil); err != nil {
			t.Fatal(err)
		}
		results, err := env.engine.Recommend(ctx, Query{Mood1: "Calm", Mood2: "Neutral", UserID: "u1", K: 3})
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range results {
			if r.Meal.ID == "miso" {
				t.Fatalf("vegan meal should be filtered, got %v", ids(results))
			}
		}
		if len(results) != 2 {
			t.Errorf("expected 2 results, got %v", ids(results))
		}
	})

	t.Run("skipped when it would empty the list", func(t *testing.T) {
		env := newTestEnv(t, testMeals[2:], nil)
		if _, err := env.engine.SetRestrictions(ctx, "u1", []string{"Vegan"}, nil); err != nil {
			t.Fatal(err)
		}
		results, err := env.engine.Recommend(ctx, Query{Mood1: "Calm", Mood2: "Neutral", UserID: "u1", K: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].Meal.ID != "miso" {
			t.Fatalf("expected filter to be skipped, got %v", ids(results))
		}
	})
}

func TestCulturalBoost(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)
	if _, err := env.engine.SetRestrictions(ctx, "u1", nil, []string{"mexican"}); err != nil {
		t.Fatal(err)
	}

	scoreOf := func(results []Result, id string) float32 {
		for _, r := range results {
			if r.Meal.ID == id {
				return r.Score
			}
		}
		t.Fatalf("%s missing from %v", id, ids(results))
		return 0
	}

	plain, err := env.engine.Recommend(ctx, Query{Mood1: "Sad", Mood2: "Tired", K: 3})
	if err != nil {
		t.Fatal(err)
	}
	boosted, err := env.engine.Recommend(ctx, Query{Mood1: "Sad", Mood2: "Tired", UserID: "u1", K: 3})
	if err != nil {
		t.Fatal(err)
	}
	diff := scoreOf(boosted, "tacos") - scoreOf(plain, "tacos")
	if math.Abs(float64(diff-0.1)) > 1e-5 {
		t.Errorf("expected +0.1 cultural boost, got %v", diff)
	}
	if scoreOf(boosted, "oatmeal") != scoreOf(plain, "oatmeal") {
		t.Error("non-matching meal should not be boosted")
	}
}

func TestRatePreferredSet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)
	q := Query{Mood1: "Sad", Mood2: "Tired", UserID: "u1", K: 2}

	if _, err := env.engine.Rate(ctx, Rating{UserID: "u1", Moods: []string{"Sad", "Tired"}, MealID: "tacos", Rating: 5}); err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	results, err := env.engine.Recommend(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Meal.ID != "tacos" || !results[0].Preferred {
		t.Fatalf("expected preferred tacos first, got %+v", results[0])
	}

	if _, err := env.engine.Rate(ctx, Rating{UserID: "u1", Moods: []string{"Sad", "Tired"}, MealID: "tacos", Rating: 1}); err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	p, _ := env.engine.Profile("u1")
	if p.IsPreferred(preference.MoodPair{Primary: "Sad", Secondary: "Tired"}, "tacos") {
		t.Fatal("rating 1 should remove the meal from the preferred set")
	}
	if len(p.History) != 2 {
		t.Errorf("expected 2 history events, got %d", len(p.History))
	}
	results, err = env.engine.Recommend(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Meal.ID != "oatmeal" || results[0].Preferred {
		t.Fatalf("expected oatmeal first after removal, got %v", ids(results))
	}
}

func TestRateOtherPairNotPreferred(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)
	if _, err := env.engine.Rate(ctx, Rating{UserID: "u1", Moods: []string{"Happy", "Excited"}, MealID: "miso", Rating: 5}); err != nil {
		t.Fatal(err)
	}
	results, err := env.engine.Recommend(ctx, Query{Mood1: "Sad", Mood2: "Tired", UserID: "u1", K: 3})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Preferred {
			t.Fatalf("no meal is preferred for Sad/Tired, got %+v", r)
		}
	}
}

func TestFeedbackMovesEmbedding(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)

	raw, err := env.embed.Embed(ctx, "feeling sad and tired")
	if err != nil {
		t.Fatal(err)
	}
	target, err := embedding.Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}

	pos, _ := env.engine.Catalog().Lookup("tacos")
	before, _ := env.index.Embedding(pos)
	for i := 0; i < 3; i++ {
		if _, err := env.engine.Rate(ctx, Rating{UserID: "u1", Moods: []string{"Sad", "Tired"}, MealID: "tacos", Rating: 4}); err != nil {
			t.Fatal(err)
		}
		after, _ := env.index.Embedding(pos)
		if embedding.Dot(after, target) <= embedding.Dot(before, target) {
			t.Fatalf("round %d: similarity to context did not increase", i)
		}
		if !embedding.IsNormalized(after) {
			t.Fatalf("round %d: embedding not normalized", i)
		}
		before = after
	}

	other, _ := env.engine.Catalog().Lookup("oatmeal")
	unchanged, _ := env.index.Embedding(other)
	fresh, _ := env.embed.Embed(ctx, env.engine.Catalog().At(other).Text())
	if embedding.Dot(unchanged, fresh) < 0.9999 {
		t.Error("other meals must not move")
	}
}

func TestRateNeutralDoesNotMoveEmbedding(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)
	pos, _ := env.engine.Catalog().Lookup("tacos")
	before, _ := env.index.Embedding(pos)

	for _, rating := range []int{1, 2, 3} {
		if _, err := env.engine.Rate(ctx, Rating{UserID: "u1", Moods: []string{"Sad", "Tired"}, MealID: "tacos", Rating: rating}); err != nil {
			t.Fatal(err)
		}
	}
	after, _ := env.index.Embedding(pos)
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("ratings below 4 must not change the embedding")
		}
	}
}

func TestRateValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)

	cases := []struct {
		name string
		in   Rating
		want error
	}{
		{"rating too low", Rating{UserID: "u1", Moods: []string{"Sad"}, MealID: "tacos", Rating: 0}, ErrInvalidRating},
		{"rating too high", Rating{UserID: "u1", Moods: []string{"Sad"}, MealID: "tacos", Rating: 6}, ErrInvalidRating},
		{"unknown meal", Rating{UserID: "u1", Moods: []string{"Sad"}, MealID: "pizza", Rating: 5}, ErrUnknownMeal},
		{"missing user", Rating{Moods: []string{"Sad"}, MealID: "tacos", Rating: 5}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.engine.Rate(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, ok := env.engine.Profile("u1"); ok {
		t.Error("rejected ratings must not create a profile")
	}
}

func TestRateEmbeddingFailureMutatesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)
	pos, _ := env.engine.Catalog().Lookup("tacos")
	before, _ := env.index.Embedding(pos)

	env.embed.broken.Store(true)
	if _, err := env.engine.Rate(ctx, Rating{UserID: "u1", Moods: []string{"Sad", "Tired"}, MealID: "tacos", Rating: 5}); !errors.Is(err, ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if _, ok := env.engine.Profile("u1"); ok {
		t.Error("failed rating must not create a profile")
	}
	after, _ := env.index.Embedding(pos)
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("failed rating must not change the embedding")
		}
	}
}

func TestRatePersistFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, failingPersister{})

	_, err := env.engine.Rate(ctx, Rating{UserID: "u1", Moods: []string{"Sad", "Tired"}, MealID: "tacos", Rating: 5})
	if !errors.Is(err, preference.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	p, ok := env.engine.Profile("u1")
	if !ok || !p.IsPreferred(preference.MoodPair{Primary: "Sad", Secondary: "Tired"}, "tacos") {
		t.Error("in-memory mutation should stand after a persist failure")
	}
}

func TestRateUnbuiltIndexMutatesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)
	env.engine.index = index.New(env.embed.Embed, 1)

	if _, err := env.engine.Rate(ctx, Rating{UserID: "u1", Moods: []string{"Sad", "Tired"}, MealID: "tacos", Rating: 5}); !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}
	if _, ok := env.engine.Profile("u1"); ok {
		t.Error("rating against an unbuilt index must not create a profile")
	}
}

func TestRecommendResolvesMoodLabels(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)

	tests := []struct {
		name   string
		q      Query
		want   string
		prefix string
	}{
		{"synonym", Query{Mood1: "melancholy", K: 1}, "oatmeal", "When you're feeling sad,"},
		{"lower-case label", Query{Mood1: "sad", Mood2: "tired", K: 1}, "oatmeal", "When you're feeling sad and tired,"},
		{"unresolved", Query{Mood1: "Blah", K: 1}, "miso", "When you're feeling calm and neutral,"},
		{"unresolved with synonym", Query{Mood1: "Blah", Mood2: "Meh", K: 1}, "miso", "When you're feeling calm and neutral,"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := env.engine.Recommend(ctx, tt.q)
			if err != nil {
				t.Fatalf("Recommend failed: %v", err)
			}
			if len(results) != 1 || results[0].Meal.ID != tt.want {
				t.Fatalf("expected [%s], got %v", tt.want, ids(results))
			}
			if !strings.HasPrefix(results[0].Explanation, tt.prefix) {
				t.Errorf("unexpected explanation %q", results[0].Explanation)
			}
		})
	}
}

func TestPreferredSetMatchesSynonyms(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)

	if _, err := env.engine.Rate(ctx, Rating{UserID: "u1", Moods: []string{"Sad", "Tired"}, MealID: "tacos", Rating: 5}); err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	results, err := env.engine.Recommend(ctx, Query{Mood1: "melancholy", Mood2: "exhausted", UserID: "u1", K: 2})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if results[0].Meal.ID != "tacos" || !results[0].Preferred {
		t.Fatalf("expected preferred tacos first, got %v", ids(results))
	}

	// ratings given under synonyms land in the canonical pair
	if _, err := env.engine.Rate(ctx, Rating{UserID: "u2", Moods: []string{"Melancholy", "Weary"}, MealID: "miso", Rating: 5}); err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	p, _ := env.engine.Profile("u2")
	if !p.IsPreferred(preference.MoodPair{Primary: "Sad", Secondary: "Tired"}, "miso") {
		t.Errorf("expected miso preferred under Sad/Tired, got %+v", p.Preferred)
	}
}

type brokenExplainer struct{ panics bool }

func (b brokenExplainer) Explain(context.Context, explain.Request) (string, error) {
	if b.panics {
		panic("generator exploded")
	}
	return "", errors.New("rate limited")
}

func TestExplanationFallback(t *testing.T) {
	for _, ex := range []brokenExplainer{{}, {panics: true}} {
		env := newTestEnv(t, testMeals, nil)
		env.engine.explainer = ex

		results, err := env.engine.Recommend(context.Background(), Query{Mood1: "Sad", Mood2: "Tired", K: 2})
		if err != nil {
			t.Fatalf("Recommend failed: %v", err)
		}
		for _, r := range results {
			want := explain.Fallback(explain.Request{Meal: r.Meal, Mood1: "Sad", Mood2: "Tired"})
			if r.Explanation != want {
				t.Errorf("expected template explanation, got %q", r.Explanation)
			}
		}
	}
}

func TestFindSimilar(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)

	results, err := env.engine.FindSimilar(ctx, "oatmeal", 2)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %v", ids(results))
	}
	for _, r := range results {
		if r.Meal.ID == "oatmeal" {
			t.Fatal("source meal must be excluded")
		}
		if !strings.HasPrefix(r.Explanation, "When you're feeling sad and tired") {
			t.Errorf("explanation should use the source meal's moods, got %q", r.Explanation)
		}
	}

	byName, err := env.engine.FindSimilar(ctx, "party tacos", 1)
	if err != nil || len(byName) != 1 {
		t.Fatalf("lookup by name failed: %v %v", ids(byName), err)
	}

	if _, err := env.engine.FindSimilar(ctx, "pizza", 2); !errors.Is(err, ErrUnknownMeal) {
		t.Fatalf("expected ErrUnknownMeal, got %v", err)
	}
}

type fakeDetector struct {
	m1, m2 string
	err    error
}

func (f fakeDetector) Detect(context.Context, string) (string, string, error) {
	return f.m1, f.m2, f.err
}

func TestRecommendText(t *testing.T) {
	ctx := context.Background()

	t.Run("detector", func(t *testing.T) {
		env := newTestEnv(t, testMeals, nil)
		env.engine.detector = fakeDetector{m1: "melancholy", m2: "Tired"}
		out, err := env.engine.RecommendText(ctx, TextQuery{Text: "rough week", K: 1})
		if err != nil {
			t.Fatal(err)
		}
		if out.Moods.Mood1 != "Sad" || out.Moods.Mood2 != "Tired" || !out.Moods.Detector || out.Moods.Method != mood.MethodExact {
			t.Fatalf("unexpected moods %+v", out.Moods)
		}
		if len(out.Results) != 1 || out.Results[0].Meal.ID != "oatmeal" {
			t.Fatalf("expected oatmeal, got %v", ids(out.Results))
		}
	})

	t.Run("detector failure resolves text", func(t *testing.T) {
		env := newTestEnv(t, testMeals, nil)
		env.engine.detector = fakeDetector{err: errors.New("offline")}
		out, err := env.engine.RecommendText(ctx, TextQuery{Text: "melancholy", K: 1})
		if err != nil {
			t.Fatal(err)
		}
		if out.Moods.Mood1 != "Sad" || out.Moods.Mood2 != "Sad" || out.Moods.Detector {
			t.Fatalf("unexpected moods %+v", out.Moods)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		env := newTestEnv(t, testMeals, nil)
		if _, err := env.engine.RecommendText(ctx, TextQuery{Text: "  "}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestResolveAndSuggest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)

	r := env.engine.ResolveMood(ctx, "melancholy")
	if r.Primary != "Sad" || r.Secondary != "Sad" || r.Method != mood.MethodExact {
		t.Fatalf("unexpected resolution %+v", r)
	}
	r = env.engine.ResolveMood(ctx, "qwzx")
	if r.Primary != mood.FallbackPrimary || r.Secondary != mood.FallbackSecondary {
		t.Fatalf("expected fallback, got %+v", r)
	}

	out, err := env.engine.SuggestMoods(ctx, "exhausted weary drained", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 || out[0] != "Tired" {
		t.Errorf("expected Tired first, got %v", out)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, testMeals, nil)
	if _, err := env.engine.SetRestrictions(context.Background(), "u1", nil, nil); err != nil {
		t.Fatal(err)
	}
	s := env.engine.Stats()
	if s.CatalogSize != 3 || s.IndexSize != 3 || s.EmbeddingDimension != 1024 || s.Users != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if s.MoodCategories != mood.DefaultTaxonomy().Len() {
		t.Errorf("expected %d mood categories, got %d", mood.DefaultTaxonomy().Len(), s.MoodCategories)
	}
}

func TestReminders(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testMeals, nil)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env.engine.now = func() time.Time { return start }

	if _, err := env.engine.SetRestrictions(ctx, "u1", nil, nil); err != nil {
		t.Fatal(err)
	}

	r, err := env.engine.CheckReminder(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if r.NeedsReminder || r.Type != ReminderNone {
		t.Fatalf("user without a meal needs no reminder, got %+v", r)
	}

	if _, err := env.engine.Recommend(ctx, Query{Mood1: "Happy", UserID: "u1", K: 1}); err != nil {
		t.Fatal(err)
	}
	p, _ := env.engine.Profile("u1")
	if !p.LastMealAt.Equal(start) {
		t.Fatalf("expected last meal at %v, got %v", start, p.LastMealAt)
	}

	env.engine.now = func() time.Time { return start.Add(2 * time.Hour) }
	if r, _ = env.engine.CheckReminder(ctx, "u1"); r.NeedsReminder {
		t.Fatalf("2h is under the threshold, got %+v", r)
	}

	env.engine.now = func() time.Time { return start.Add(4*time.Hour + 30*time.Minute) }
	r, err = env.engine.CheckReminder(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !r.NeedsReminder || r.Type != ReminderOverdue {
		t.Fatalf("expected overdue reminder, got %+v", r)
	}
	if r.Message != "It's been 4 hours since your last meal. Time to nourish your body!" {
		t.Errorf("unexpected message %q", r.Message)
	}
	if math.Abs(r.HoursSince-4.5) > 1e-9 {
		t.Errorf("expected 4.5 hours, got %v", r.HoursSince)
	}
	if r.SuggestedMeal == nil {
		t.Fatal("expected a suggested meal")
	}
	p, _ = env.engine.Profile("u1")
	if !p.LastMealAt.Equal(start) {
		t.Error("suggesting a meal must not count as serving one")
	}

	due := env.engine.DueReminders(ctx)
	if len(due) != 1 || due[0].UserID != "u1" {
		t.Fatalf("expected one due reminder, got %+v", due)
	}

	if _, err := env.engine.LogMeal(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if r, _ = env.engine.CheckReminder(ctx, "u1"); r.NeedsReminder {
		t.Error("logging a meal should clear the reminder")
	}
	if _, err := env.engine.LogMeal(ctx, "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("expected ErrUnknownUser, got %v", err)
	}
	if r, _ := env.engine.CheckReminder(ctx, "ghost"); r.NeedsReminder {
		t.Error("unknown users never need reminders")
	}
}
