package gateway

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"moodmeal/src/internal/config"
	"moodmeal/src/internal/recommend"
)

func newTestConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Preferences.Backend = backend
	cfg.Embeddings.Dim = 256
	return cfg
}

func TestGatewayLifecycle(t *testing.T) {
	for _, backend := range []string{"sqlite", "json"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := newTestConfig(t, backend)

			gw, err := New(ctx, cfg)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if gw.Index.Len() != gw.Catalog.Len() {
				t.Fatalf("index has %d rows for %d meals", gw.Index.Len(), gw.Catalog.Len())
			}
			if gw.Index.Dim() != 256 {
				t.Errorf("expected dim 256, got %d", gw.Index.Dim())
			}
			if n := gw.VectorCacheSize(); n != gw.Catalog.Len() {
				t.Errorf("expected %d cached vectors, got %d", gw.Catalog.Len(), n)
			}
			if _, ok := gw.Jobs()["reminders"]; !ok {
				t.Errorf("expected reminder job, got %v", gw.Jobs())
			}

			results, err := gw.Engine.Recommend(ctx, recommend.Query{Text: "rough day", Mood1: "Sad", Mood2: "Tired", UserID: "u1"})
			if err != nil {
				t.Fatalf("Recommend failed: %v", err)
			}
			if len(results) != cfg.Engine.DefaultK {
				t.Fatalf("expected %d results, got %d", cfg.Engine.DefaultK, len(results))
			}
			if _, err := gw.Engine.Rate(ctx, recommend.Rating{UserID: "u1", Moods: []string{"Sad", "Tired"}, MealID: results[0].Meal.ID, Rating: 5}); err != nil {
				t.Fatalf("Rate failed: %v", err)
			}
			if err := gw.Reindex(ctx); err != nil {
				t.Fatalf("Reindex failed: %v", err)
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			gw.Shutdown(shutdownCtx)
			cancel()

			again, err := New(ctx, cfg)
			if err != nil {
				t.Fatalf("reopen failed: %v", err)
			}
			defer again.Shutdown(ctx)
			p, ok := again.Engine.Profile("u1")
			if !ok || len(p.History) != 1 {
				t.Fatalf("expected persisted profile with one rating, got %+v %v", p, ok)
			}
		})
	}
}

func TestGatewayErrors(t *testing.T) {
	ctx := context.Background()

	cfg := newTestConfig(t, "postgres")
	if _, err := New(ctx, cfg); err == nil {
		t.Error("expected error for unknown preferences backend")
	}

	cfg = newTestConfig(t, "sqlite")
	cfg.Embeddings.Provider = "carrier-pigeon"
	if _, err := New(ctx, cfg); err == nil {
		t.Error("expected error for unknown embedding provider")
	}

	cfg = newTestConfig(t, "sqlite")
	cfg.Catalog.Path = "/does/not/exist.json"
	if _, err := New(ctx, cfg); err == nil {
		t.Error("expected error for missing catalog")
	}

	cfg = newTestConfig(t, "sqlite")
	cfg.Reminders.Schedule = "whenever"
	if _, err := New(ctx, cfg); err == nil {
		t.Error("expected error for invalid reminder schedule")
	}
}

func TestGatewayCustomCatalog(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t, "json")
	cfg.Embeddings.Persist = false

	path := cfg.StorageDir + "/meals.yaml"
	content := `
- meal_name: Ginger Tea
  mood_1: Anxious
  mood_2: Tired
  reason: Ginger settles the stomach
  benefit: gingerol
  calories: 20
  cultural_theme: Asian
  dietary_theme: Vegan
- meal_name: Banana Bread
  mood_1: Sad
  mood_2: Happy
  reason: Comforting and sweet
  benefit: potassium
  calories: 300
  cultural_theme: American
  dietary_theme: Vegetarian
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Catalog.Path = path

	gw, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer gw.Shutdown(ctx)

	if gw.Catalog.Len() != 2 || gw.VectorCacheSize() != -1 {
		t.Fatalf("unexpected catalog %d / cache %d", gw.Catalog.Len(), gw.VectorCacheSize())
	}
	if _, ok := gw.Catalog.Lookup("ginger-tea"); !ok {
		t.Error("expected slug id for Ginger Tea")
	}
}

func TestGatewayEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t, "json")
	cfg.Embeddings.Persist = false

	path := cfg.StorageDir + "/meals.json"
	if err := os.WriteFile(path, []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Catalog.Path = path

	gw, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New failed on empty catalog: %v", err)
	}
	defer gw.Shutdown(ctx)

	if gw.Index.Len() != 0 {
		t.Errorf("expected empty index, got %d rows", gw.Index.Len())
	}
	if _, err := gw.Engine.Recommend(ctx, recommend.Query{Mood1: "Sad"}); !errors.Is(err, recommend.ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestCollectionName(t *testing.T) {
	got := CollectionName(config.EmbeddingsConfig{Provider: "openai", Model: "text-embedding-3-small", Dim: 1536})
	if got != "meals_openai_text-embedding-3-small_1536" {
		t.Errorf("unexpected collection name %q", got)
	}
	got = CollectionName(config.EmbeddingsConfig{Model: "nomic/embed:v1"})
	if got != "meals_hash_nomic_embed_v1_0" {
		t.Errorf("unexpected collection name %q", got)
	}
}
