package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"moodmeal/src/internal/catalog"
	"moodmeal/src/internal/config"
	"moodmeal/src/internal/embedding"
	"moodmeal/src/internal/explain"
	"moodmeal/src/internal/index"
	"moodmeal/src/internal/mood"
	"moodmeal/src/internal/preference"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	CulturalBoost     float32
	LearningRate      float32
	DefaultK          int
	OverFetch         int
	ReminderThreshold time.Duration
}

func DefaultOptions() Options {
	return Options{
		CulturalBoost:     0.1,
		LearningRate:      0.1,
		DefaultK:          3,
		OverFetch:         2,
		ReminderThreshold: 3 * time.Hour,
	}
}

// OptionsFromConfig fills unset values with defaults.
func OptionsFromConfig(eng config.EngineConfig, rem config.RemindersConfig) Options {
	o := DefaultOptions()
	if eng.CulturalBoost > 0 {
		o.CulturalBoost = eng.CulturalBoost
	}
	if eng.LearningRate > 0 {
		o.LearningRate = eng.LearningRate
	}
	if eng.DefaultK > 0 {
		o.DefaultK = eng.DefaultK
	}
	if eng.OverFetch > 0 {
		o.OverFetch = eng.OverFetch
	}
	if rem.Threshold > 0 {
		o.ReminderThreshold = rem.Threshold
	}
	return o
}

// Detector extracts a mood pair from free text.
type Detector interface {
	Detect(ctx context.Context, text string) (string, string, error)
}

// Deps are the collaborators an Engine is built from. Explainer and
// Detector are optional.
type Deps struct {
	Catalog     *catalog.Catalog
	Index       *index.Index
	Encoder     *mood.Encoder
	Preferences *preference.Store
	Embed       embedding.Func
	Explainer   explain.Explainer
	Detector    Detector
}

// Engine answers recommendation queries and applies rating feedback.
type Engine struct {
	catalog   *catalog.Catalog
	index     *index.Index
	encoder   *mood.Encoder
	prefs     *preference.Store
	embed     embedding.Func
	explainer explain.Explainer
	detector  Detector
	opts      Options
	now       func() time.Time

	// feedbackMu serializes read-blend-write cycles on meal embeddings.
	feedbackMu sync.Mutex
}

func New(d Deps, opts Options) (*Engine, error) {
	if d.Catalog == nil || d.Index == nil || d.Encoder == nil || d.Preferences == nil || d.Embed == nil {
		return nil, fmt.Errorf("%w: engine requires catalog, index, encoder, preferences and embedding function", ErrInvalidInput)
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = DefaultOptions().DefaultK
	}
	if opts.OverFetch <= 0 {
		opts.OverFetch = DefaultOptions().OverFetch
	}
	if opts.ReminderThreshold <= 0 {
		opts.ReminderThreshold = DefaultOptions().ReminderThreshold
	}
	ex := d.Explainer
	if ex == nil {
		ex = explain.Template{}
	}
	return &Engine{
		catalog:   d.Catalog,
		index:     d.Index,
		encoder:   d.Encoder,
		prefs:     d.Preferences,
		embed:     d.Embed,
		explainer: ex,
		detector:  d.Detector,
		opts:      opts,
		now:       time.Now,
	}, nil
}

// Query is a recommendation request. Mood labels may be canonical labels,
// synonyms or free-form words; they are mapped onto the taxonomy first.
type Query struct {
	Text   string `json:"text"`
	Mood1  string `json:"mood1"`
	Mood2  string `json:"mood2"`
	UserID string `json:"user_id"`
	K      int    `json:"k"`
}

type Result struct {
	Meal        catalog.Meal `json:"meal"`
	Score       float32      `json:"score"`
	Explanation string       `json:"explanation"`
	Preferred   bool         `json:"preferred"`
}

type candidate struct {
	pos       int
	meal      catalog.Meal
	score     float32
	preferred bool
}

func guard(op string, err *error) {
	if r := recover(); r != nil {
		slog.Error("recovered panic", "op", op, "panic", r)
		*err = fmt.Errorf("%s: %w: %v", op, ErrInternal, r)
	}
}

// Recommend returns up to K meals for the query, best first.
func (e *Engine) Recommend(ctx context.Context, q Query) (results []Result, err error) {
	defer guard("recommend", &err)
	return e.recommend(ctx, q, true)
}

func (e *Engine) recommend(ctx context.Context, q Query, touch bool) ([]Result, error) {
	if e.catalog.Len() == 0 {
		return nil, ErrNoCandidates
	}
	k := q.K
	if k <= 0 {
		k = e.opts.DefaultK
	}

	mood1, mood2 := e.canonicalMoods(ctx, q.Mood1, q.Mood2)
	qv, err := e.encoder.Encode(ctx, q.Text, mood1, mood2)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	hits, err := e.index.Search(qv, k*e.opts.OverFetch)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	cands := e.candidates(hits)
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}

	var profile preference.Profile
	if q.UserID != "" {
		profile, _ = e.prefs.Get(q.UserID)
	}
	pair := preference.MoodPair{Primary: mood1, Secondary: mood2}
	cands = e.rank(cands, profile, pair)
	if len(cands) > k {
		cands = cands[:k]
	}

	results := e.explain(ctx, cands, mood1, mood2, q.Text)

	if touch && q.UserID != "" {
		if _, err := e.prefs.TouchMeal(ctx, q.UserID, e.now()); err != nil {
			slog.Warn("failed to record last meal time", "user_id", q.UserID, "error", err)
		}
	}
	slog.Debug("recommendation served", "user_id", q.UserID, "mood1", mood1, "mood2", mood2, "results", len(results))
	return results, nil
}

// canonicalMoods maps caller labels onto taxonomy labels. Empty labels stay
// empty. A label that cannot be resolved takes the fallback mood for its
// slot; a lone unresolved primary takes the whole fallback pair.
func (e *Engine) canonicalMoods(ctx context.Context, m1, m2 string) (string, string) {
	c1, fell := e.canonicalMood(ctx, m1, mood.FallbackPrimary)
	c2, _ := e.canonicalMood(ctx, m2, mood.FallbackSecondary)
	if fell && c2 == "" {
		c2 = mood.FallbackSecondary
	}
	return c1, c2
}

func (e *Engine) canonicalMood(ctx context.Context, label, fallback string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	if m, ok := e.encoder.Taxonomy().Get(label); ok {
		return m.Label, false
	}
	r := e.encoder.Resolve(ctx, label)
	if !r.Confident() {
		return fallback, true
	}
	return r.Primary, false
}

func (e *Engine) candidates(hits []index.Hit) []candidate {
	out := make([]candidate, 0, len(hits))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= e.catalog.Len() {
			continue
		}
		out = append(out, candidate{pos: h.Index, meal: e.catalog.At(h.Index), score: h.Score})
	}
	return out
}

// rank applies the dietary filter, cultural boost and historical boost,
// then orders candidates: preferred meals first, each group by score.
func (e *Engine) rank(cands []candidate, p preference.Profile, pair preference.MoodPair) []candidate {
	cands = filterDietary(cands, p.DietaryRestrictions)

	for i := range cands {
		if containsAny(cands[i].meal.CulturalTheme, p.CulturalPreferences) {
			cands[i].score += e.opts.CulturalBoost
		}
		cands[i].preferred = p.IsPreferred(pair, cands[i].meal.ID)
	}

	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].preferred != cands[b].preferred {
			return cands[a].preferred
		}
		return cands[a].score > cands[b].score
	})
	return cands
}

// filterDietary drops candidates whose dietary theme contains a restricted
// term. If that would drop everything, the input is returned unchanged.
func filterDietary(cands []candidate, restrictions []string) []candidate {
	if len(restrictions) == 0 {
		return cands
	}
	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if !containsAny(c.meal.DietaryTheme, restrictions) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		slog.Debug("dietary filter would remove every candidate, skipping it", "candidates", len(cands))
		return cands
	}
	return kept
}

func containsAny(s string, terms []string) bool {
	s = strings.ToLower(s)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// explain attaches explanations concurrently. Any failure degrades to the
// template for that meal only.
func (e *Engine) explain(ctx context.Context, cands []candidate, mood1, mood2, text string) []Result {
	results := make([]Result, len(cands))
	var g errgroup.Group
	g.SetLimit(4)
	for i, c := range cands {
		g.Go(func() error {
			req := explain.Request{Meal: c.meal, Mood1: mood1, Mood2: mood2, Text: text}
			out, err := e.safeExplain(ctx, req)
			if err != nil || strings.TrimSpace(out) == "" {
				if err != nil {
					slog.Warn("explanation failed, using template", "meal_id", c.meal.ID, "error", err)
				}
				out = explain.Fallback(req)
			}
			results[i] = Result{Meal: c.meal, Score: c.score, Explanation: out, Preferred: c.preferred}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) safeExplain(ctx context.Context, req explain.Request) (out string, err error) {
	defer guard("explain", &err)
	return e.explainer.Explain(ctx, req)
}

// FindSimilar returns up to k meals closest to the given meal's current
// embedding, excluding the meal itself.
func (e *Engine) FindSimilar(ctx context.Context, mealID string, k int) (results []Result, err error) {
	defer guard("find similar", &err)

	pos, ok := e.catalog.Lookup(mealID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMeal, mealID)
	}
	if k <= 0 {
		k = e.opts.DefaultK
	}
	vec, err := e.index.Embedding(pos)
	if err != nil {
		return nil, fmt.Errorf("meal embedding: %w", err)
	}
	hits, err := e.index.Search(vec, k+1)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	cands := make([]candidate, 0, k)
	for _, c := range e.candidates(hits) {
		if c.pos == pos {
			continue
		}
		cands = append(cands, c)
	}
	if len(cands) > k {
		cands = cands[:k]
	}
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}
	src := e.catalog.At(pos)
	return e.explain(ctx, cands, src.PrimaryMood, src.SecondaryMood, ""), nil
}

// ResolveMood maps a free-form label onto the taxonomy. It never fails.
func (e *Engine) ResolveMood(ctx context.Context, label string) mood.Resolution {
	return e.encoder.Resolve(ctx, label)
}

func (e *Engine) SuggestMoods(ctx context.Context, partial string, limit int) ([]string, error) {
	out, err := e.encoder.Suggest(ctx, partial, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return out, nil
}

// TextQuery asks for recommendations from free text alone.
type TextQuery struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
	K      int    `json:"k"`
}

type DetectedMoods struct {
	Mood1     string      `json:"mood1"`
	Mood2     string      `json:"mood2"`
	Method    mood.Method `json:"method"`
	Detector  bool        `json:"detector"`
	Confident bool        `json:"confident"`
}

type TextResult struct {
	Moods   DetectedMoods `json:"moods"`
	Results []Result      `json:"results"`
}

// RecommendText detects the mood pair in text, maps it onto the taxonomy and
// recommends for it. Without a working detector the text itself is resolved.
func (e *Engine) RecommendText(ctx context.Context, q TextQuery) (TextResult, error) {
	if strings.TrimSpace(q.Text) == "" {
		return TextResult{}, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	moods := e.detectMoods(ctx, q.Text)
	results, err := e.Recommend(ctx, Query{Text: q.Text, Mood1: moods.Mood1, Mood2: moods.Mood2, UserID: q.UserID, K: q.K})
	if err != nil {
		return TextResult{Moods: moods}, err
	}
	return TextResult{Moods: moods, Results: results}, nil
}

func (e *Engine) detectMoods(ctx context.Context, text string) DetectedMoods {
	if e.detector != nil {
		m1, m2, err := e.detector.Detect(ctx, text)
		if err == nil {
			r1 := e.encoder.Resolve(ctx, m1)
			r2 := e.encoder.Resolve(ctx, m2)
			method := mood.MethodExact
			switch {
			case !r1.Confident() || !r2.Confident():
				method = mood.MethodFallback
			case r1.Method == mood.MethodSimilar || r2.Method == mood.MethodSimilar:
				method = mood.MethodSimilar
			}
			return DetectedMoods{
				Mood1:     r1.Primary,
				Mood2:     r2.Primary,
				Method:    method,
				Detector:  true,
				Confident: r1.Confident() && r2.Confident(),
			}
		}
		slog.Warn("mood detector failed, resolving text directly", "error", err)
	}
	r := e.encoder.Resolve(ctx, text)
	return DetectedMoods{Mood1: r.Primary, Mood2: r.Secondary, Method: r.Method, Confident: r.Confident()}
}

func (e *Engine) SetRestrictions(ctx context.Context, userID string, dietary, cultural []string) (preference.Profile, error) {
	p, err := e.prefs.SetRestrictions(ctx, userID, dietary, cultural)
	if err != nil && !errors.Is(err, preference.ErrPersist) {
		return preference.Profile{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return p, err
}

func (e *Engine) Profile(userID string) (preference.Profile, bool) {
	return e.prefs.Get(userID)
}

// Catalog exposes the meals the engine recommends from.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

type Stats struct {
	CatalogSize        int `json:"catalog_size"`
	EmbeddingDimension int `json:"embedding_dimension"`
	IndexSize          int `json:"index_size"`
	MoodCategories     int `json:"mood_categories"`
	Users              int `json:"users"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		CatalogSize:        e.catalog.Len(),
		EmbeddingDimension: e.index.Dim(),
		IndexSize:          e.index.Len(),
		MoodCategories:     e.encoder.Taxonomy().Len(),
		Users:              e.prefs.Len(),
	}
}
