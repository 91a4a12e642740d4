package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"moodmeal/src/internal/catalog"
	"moodmeal/src/internal/config"
	"moodmeal/src/internal/cron"
	"moodmeal/src/internal/embedding"
	"moodmeal/src/internal/explain"
	"moodmeal/src/internal/index"
	"moodmeal/src/internal/llm"
	"moodmeal/src/internal/mood"
	"moodmeal/src/internal/preference"
	"moodmeal/src/internal/recommend"
	"moodmeal/src/internal/storage"
)

// Gateway owns every long-lived component and wires them together.
type Gateway struct {
	Config      *config.Config
	Storage     *storage.Storage
	Catalog     *catalog.Catalog
	Taxonomy    *mood.Taxonomy
	Index       *index.Index
	Preferences *preference.Store
	Engine      *recommend.Engine

	vectors   *index.Store
	persister preference.Persister
	cronMgr   *cron.CronManager
	started   time.Time
}

// New loads the catalog and taxonomy, builds the vector index and opens the
// preference store. Optional LLM features degrade to their offline
// counterparts when they cannot be set up.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	st, err := storage.New(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage dir: %w", err)
	}
	gw := &Gateway{Config: cfg, Storage: st, started: time.Now()}

	if gw.Catalog, err = catalog.Load(cfg.Catalog.Path); err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if gw.Taxonomy, err = mood.LoadTaxonomy(cfg.Catalog.TaxonomyPath); err != nil {
		return nil, fmt.Errorf("failed to load mood taxonomy: %w", err)
	}
	slog.Info("catalog loaded", "meals", gw.Catalog.Len(), "moods", gw.Taxonomy.Len())

	embed, err := embedding.New(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding function: %w", err)
	}

	enc, err := mood.NewEncoder(ctx, embed, gw.Taxonomy, cfg.Engine.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create mood encoder: %w", err)
	}

	gw.Index = index.New(embed, cfg.Engine.BuildConcurrency)
	if cfg.Embeddings.Persist {
		vs, err := index.OpenStore(cfg.StorageDir, CollectionName(cfg.Embeddings), embed)
		if err != nil {
			slog.Warn("embedding cache unavailable, embedding catalog from scratch", "error", err)
		} else {
			gw.vectors = vs
			gw.Index.SetStore(vs)
		}
	}
	if err := gw.Index.Build(ctx, gw.Catalog.All()); err != nil {
		return nil, fmt.Errorf("failed to build vector index: %w", err)
	}

	if gw.persister, err = openPersister(cfg, st); err != nil {
		return nil, err
	}
	gw.Preferences = preference.NewStore(gw.persister)
	if err := gw.Preferences.Load(ctx); err != nil {
		_ = gw.persister.Close()
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	deps := recommend.Deps{
		Catalog:     gw.Catalog,
		Index:       gw.Index,
		Encoder:     enc,
		Preferences: gw.Preferences,
		Embed:       embed,
		Explainer:   explain.Template{},
	}
	if cfg.LLM.Explanations {
		l, err := explain.NewLLM(ctx, cfg.LLM)
		if err != nil {
			slog.Warn("llm explanations disabled", "error", err)
		} else {
			deps.Explainer = explain.WithFallback(l)
			slog.Info("llm explanations enabled", "model", cfg.LLM.Model)
		}
	}
	if cfg.LLM.MoodDetection {
		deps.Detector = llm.NewDetector(cfg.LLM, gw.Taxonomy.Labels())
		slog.Info("llm mood detection enabled", "model", cfg.LLM.Model)
	}

	gw.Engine, err = recommend.New(deps, recommend.OptionsFromConfig(cfg.Engine, cfg.Reminders))
	if err != nil {
		_ = gw.persister.Close()
		return nil, err
	}

	gw.cronMgr = cron.NewCronManager(st, gw.Engine.DueReminders, nil)
	if cfg.Reminders.Enabled {
		if err := gw.cronMgr.ScheduleReminders(cfg.Reminders.Schedule); err != nil {
			_ = gw.persister.Close()
			return nil, err
		}
	}

	return gw, nil
}

func openPersister(cfg *config.Config, st *storage.Storage) (preference.Persister, error) {
	switch strings.ToLower(cfg.Preferences.Backend) {
	case "", "sqlite":
		p, err := preference.OpenSQLite(filepath.Join(cfg.StorageDir, "preferences.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open preference database: %w", err)
		}
		return p, nil
	case "json":
		return preference.NewJSONPersister(st), nil
	default:
		return nil, fmt.Errorf("unknown preferences backend %q", cfg.Preferences.Backend)
	}
}

// CollectionName identifies the embedding model so cached vectors from
// different models never mix.
func CollectionName(cfg config.EmbeddingsConfig) string {
	provider := cfg.Provider
	if provider == "" {
		provider = "hash"
	}
	name := fmt.Sprintf("meals_%s_%s_%d", provider, cfg.Model, cfg.Dim)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}

// Start begins background jobs.
func (gw *Gateway) Start() {
	gw.cronMgr.Start()
}

// Reindex rebuilds the vector index from the catalog. Learned adjustments
// are kept for meals whose text did not change when embeddings are cached.
func (gw *Gateway) Reindex(ctx context.Context) error {
	return gw.Index.Build(ctx, gw.Catalog.All())
}

// Jobs returns scheduled job IDs and their next run.
func (gw *Gateway) Jobs() map[string]time.Time {
	return gw.cronMgr.Jobs()
}

func (gw *Gateway) LastReminderScan() (cron.ScanState, bool) {
	return gw.cronMgr.LastScan()
}

func (gw *Gateway) Uptime() time.Duration {
	return time.Since(gw.started)
}

// VectorCacheSize reports how many embeddings are cached on disk, or -1
// without a cache.
func (gw *Gateway) VectorCacheSize() int {
	if gw.vectors == nil {
		return -1
	}
	return gw.vectors.Count()
}

func (gw *Gateway) Shutdown(ctx context.Context) {
	slog.Info("shutting down gateway")
	gw.cronMgr.Stop(ctx)
	if err := gw.Preferences.Close(); err != nil {
		slog.Error("failed to close preference store", "error", err)
	}
}
