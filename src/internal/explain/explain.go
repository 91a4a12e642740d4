package explain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"moodmeal/src/internal/catalog"
)

// Request describes one meal recommended for a mood pair.
type Request struct {
	Meal  catalog.Meal
	Mood1 string
	Mood2 string
	Text  string
}

// Explainer writes a short justification for a recommendation.
type Explainer interface {
	Explain(ctx context.Context, req Request) (string, error)
}

// Template is the deterministic explainer used when no generator is
// configured or the generator fails.
type Template struct{}

func (Template) Explain(_ context.Context, req Request) (string, error) {
	return Fallback(req), nil
}

// Fallback builds a three-sentence explanation from the moods and the
// meal's stored reason and benefit. Identical input yields identical output.
func Fallback(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "When you're feeling %s, your body needs specific nutrients to help restore balance.", moodPhrase(req.Mood1, req.Mood2))
	fmt.Fprintf(&b, " %s is an excellent choice because %s.", req.Meal.Name, clause(req.Meal.Reason))
	fmt.Fprintf(&b, " The nutritional benefits include %s, which directly addresses your current emotional state.", clause(req.Meal.Benefit))
	return b.String()
}

func moodPhrase(m1, m2 string) string {
	m1 = strings.ToLower(strings.TrimSpace(m1))
	m2 = strings.ToLower(strings.TrimSpace(m2))
	switch {
	case m1 == "" && m2 == "":
		return "this way"
	case m2 == "":
		return m1
	case m1 == "":
		return m2
	}
	return m1 + " and " + m2
}

// clause lower-cases s and strips trailing sentence punctuation so it can
// be embedded mid-sentence.
func clause(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, ".!; ")
}

// Chain tries Primary and falls back to the template on error or empty
// output. It never returns an error.
type Chain struct {
	Primary Explainer
}

func WithFallback(primary Explainer) Explainer {
	if primary == nil {
		return Template{}
	}
	return Chain{Primary: primary}
}

func (c Chain) Explain(ctx context.Context, req Request) (string, error) {
	out, err := c.Primary.Explain(ctx, req)
	if err == nil && strings.TrimSpace(out) != "" {
		return out, nil
	}
	if err != nil {
		slog.Warn("explanation generator failed, using template", "meal_id", req.Meal.ID, "error", err)
	} else {
		slog.Warn("explanation generator returned nothing, using template", "meal_id", req.Meal.ID)
	}
	return Fallback(req), nil
}
