package mood

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"moodmeal/src/internal/embedding"
)

// DefaultThreshold is the minimum cosine similarity for a fuzzy match.
const DefaultThreshold = 0.3

type Method string

const (
	MethodExact    Method = "exact"
	MethodSimilar  Method = "similar"
	MethodFallback Method = "fallback"
)

// Resolution is the outcome of mapping a free-form label onto the taxonomy.
type Resolution struct {
	Primary   string  `json:"primary"`
	Secondary string  `json:"secondary"`
	Method    Method  `json:"method"`
	Score     float32 `json:"score"`
}

// Confident reports whether the labels came from a match rather than the
// fixed fallback pair.
func (r Resolution) Confident() bool { return r.Method != MethodFallback }

func fallback() Resolution {
	return Resolution{Primary: FallbackPrimary, Secondary: FallbackSecondary, Method: MethodFallback}
}

// Encoder turns mood text and labels into query vectors. Taxonomy vectors
// are computed once in NewEncoder; an Encoder is read-only afterwards and
// safe for concurrent use.
type Encoder struct {
	embed     embedding.Func
	tax       *Taxonomy
	threshold float32

	synonymVecs [][]float32
	descVecs    [][]float32
}

func NewEncoder(ctx context.Context, embed embedding.Func, tax *Taxonomy, threshold float32) (*Encoder, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	e := &Encoder{
		embed:       embed,
		tax:         tax,
		threshold:   threshold,
		synonymVecs: make([][]float32, tax.Len()),
		descVecs:    make([][]float32, tax.Len()),
	}
	for i, m := range tax.moods {
		syn, err := e.embedNormalized(ctx, strings.Join(m.Terms(), " "))
		if err != nil {
			return nil, fmt.Errorf("embed synonyms of %s: %w", m.Label, err)
		}
		desc, err := e.embedNormalized(ctx, m.Label+" "+m.Description)
		if err != nil {
			return nil, fmt.Errorf("embed description of %s: %w", m.Label, err)
		}
		e.synonymVecs[i] = syn
		e.descVecs[i] = desc
	}
	slog.Info("mood encoder ready", "moods", tax.Len(), "threshold", threshold)
	return e, nil
}

// embedNormalized returns nil without error when text embeds to the zero
// vector.
func (e *Encoder) embedNormalized(ctx context.Context, text string) ([]float32, error) {
	v, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	n, err := embedding.Normalize(v)
	if err != nil {
		return nil, nil
	}
	return n, nil
}

func (e *Encoder) Taxonomy() *Taxonomy { return e.tax }

// Encode embeds text together with the label and description of each known
// mood. Unknown or empty labels contribute nothing.
func (e *Encoder) Encode(ctx context.Context, text, mood1, mood2 string) ([]float32, error) {
	parts := make([]string, 0, 5)
	if s := strings.TrimSpace(text); s != "" {
		parts = append(parts, s)
	}
	for _, label := range []string{mood1, mood2} {
		if m, ok := e.tax.Get(label); ok {
			parts = append(parts, m.Label, m.Description)
		}
	}
	query := strings.Join(parts, " ")

	v, err := e.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed mood query: %w", err)
	}
	n, err := embedding.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("mood query %q: %w", query, err)
	}
	return n, nil
}

type scored struct {
	idx   int
	score float32
}

func (e *Encoder) rank(query []float32, vecs [][]float32) []scored {
	out := make([]scored, 0, len(vecs))
	for i, v := range vecs {
		if v == nil {
			continue
		}
		out = append(out, scored{idx: i, score: embedding.Dot(query, v)})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].score > out[b].score })
	return out
}

// Resolve maps a free-form label onto a pair of canonical moods. It never
// fails: exact synonym matches win, then the closest synonym sets above the
// threshold, then the Calm/Neutral fallback.
func (e *Encoder) Resolve(ctx context.Context, label string) Resolution {
	if m, ok := e.tax.Match(label); ok {
		return Resolution{Primary: m.Label, Secondary: m.Label, Method: MethodExact, Score: 1}
	}

	if strings.TrimSpace(label) != "" {
		q, err := e.embedNormalized(ctx, label)
		if err != nil {
			slog.Warn("mood embedding failed, using fallback", "label", label, "error", err)
		} else if q != nil {
			ranked := e.rank(q, e.synonymVecs)
			if len(ranked) > 0 && ranked[0].score > e.threshold {
				res := Resolution{
					Primary:   e.tax.moods[ranked[0].idx].Label,
					Secondary: e.tax.moods[ranked[0].idx].Label,
					Method:    MethodSimilar,
					Score:     ranked[0].score,
				}
				if len(ranked) > 1 {
					res.Secondary = e.tax.moods[ranked[1].idx].Label
				}
				return res
			}
		}
	}

	slog.Warn("unresolved mood, using fallback", "label", label,
		"primary", FallbackPrimary, "secondary", FallbackSecondary)
	return fallback()
}

// Suggest returns mood labels whose descriptions resemble partial, best
// first. Inputs shorter than two characters yield no suggestions.
func (e *Encoder) Suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	partial = strings.TrimSpace(partial)
	if utf8.RuneCountInString(partial) < 2 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	q, err := e.embedNormalized(ctx, partial)
	if err != nil {
		return nil, fmt.Errorf("embed suggestion query: %w", err)
	}
	if q == nil {
		return nil, nil
	}

	var out []string
	for _, s := range e.rank(q, e.descVecs) {
		if s.score <= e.threshold || len(out) == limit {
			break
		}
		out = append(out, e.tax.moods[s.idx].Label)
	}
	return out, nil
}
