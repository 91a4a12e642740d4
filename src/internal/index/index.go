package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"moodmeal/src/internal/catalog"
	"moodmeal/src/internal/embedding"
	"moodmeal/src/internal/system"

	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyIndex = errors.New("vector index is empty")
	ErrOutOfRange = errors.New("meal index out of range")
	ErrDimension  = errors.New("embedding dimension mismatch")
)

const defaultConcurrency = 4

// Hit is one search result: a catalog position and its inner product with
// the query.
type Hit struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// EmbeddingStore keeps meal embeddings across restarts. A stored vector is
// only reused when its fingerprint matches the meal's current text.
type EmbeddingStore interface {
	Load(ctx context.Context, id, fingerprint string) ([]float32, bool, error)
	Save(ctx context.Context, id, fingerprint string, vec []float32) error
}

// snapshot is immutable once published. Rows may be shared between
// snapshots because no row is ever written after publication.
type snapshot struct {
	ids          []string
	fingerprints []string
	rows         [][]float32
	dim          int
}

// Index holds one unit-length embedding per meal and answers top-k inner
// product queries. Readers load the current snapshot without locking;
// writers build a replacement and swap it in under mu.
type Index struct {
	embed       embedding.Func
	concurrency int
	store       EmbeddingStore

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

func New(embed embedding.Func, concurrency int) *Index {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Index{embed: embed, concurrency: concurrency}
}

// SetStore attaches a persistent embedding store. Call before Build.
func (x *Index) SetStore(s EmbeddingStore) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.store = s
}

// Fingerprint identifies the text a meal embedding was derived from.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// Build embeds every meal and publishes the result as the active snapshot.
// On any failure the previous snapshot stays active.
func (x *Index) Build(ctx context.Context, meals []catalog.Meal) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	next := &snapshot{
		ids:          make([]string, len(meals)),
		fingerprints: make([]string, len(meals)),
		rows:         make([][]float32, len(meals)),
	}
	fresh := make([]bool, len(meals))
	store := x.store

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for i, m := range meals {
		g.Go(func() error {
			text := m.Text()
			fp := Fingerprint(text)
			next.ids[i] = m.ID
			next.fingerprints[i] = fp

			if store != nil {
				vec, ok, err := store.Load(gctx, m.ID, fp)
				if err != nil {
					slog.Warn("failed to load stored embedding", "meal_id", m.ID, "error", err)
				} else if ok {
					if n, err := embedding.Normalize(vec); err == nil {
						next.rows[i] = n
						return nil
					}
				}
			}

			vec, err := x.embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed meal %s: %w", m.ID, err)
			}
			n, err := embedding.Normalize(vec)
			if err != nil {
				return fmt.Errorf("meal %s: %w", m.ID, err)
			}
			next.rows[i] = n
			fresh[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, row := range next.rows {
		if i == 0 {
			next.dim = len(row)
			continue
		}
		if len(row) != next.dim {
			return fmt.Errorf("meal %s has dim %d, want %d: %w", next.ids[i], len(row), next.dim, ErrDimension)
		}
	}

	x.snap.Store(next)

	reused := 0
	for i, f := range fresh {
		if !f {
			reused++
			continue
		}
		if store != nil {
			if err := store.Save(ctx, next.ids[i], next.fingerprints[i], next.rows[i]); err != nil {
				slog.Warn("failed to persist meal embedding", "meal_id", next.ids[i], "error", err)
			}
		}
	}

	slog.Info("vector index built", "meals", len(meals), "dim", next.dim, "reused", reused)
	system.LogMemoryUsage("index_build")
	return nil
}

// Search returns the k rows with the highest inner product against query,
// best first. Equal scores keep catalog order.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	s := x.snap.Load()
	if s == nil || len(s.rows) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("query has dim %d, index has %d: %w", len(query), s.dim, ErrDimension)
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, len(s.rows))
	for i, row := range s.rows {
		hits[i] = Hit{Index: i, Score: embedding.Dot(query, row)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	slog.Debug("vector search", "k", k, "hits", len(hits))
	return hits, nil
}

// UpdateOne replaces row i with the normalized vec and publishes a new
// snapshot. Validation failures leave the current snapshot untouched.
func (x *Index) UpdateOne(ctx context.Context, i int, vec []float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	s := x.snap.Load()
	if s == nil || len(s.rows) == 0 {
		return ErrEmptyIndex
	}
	if i < 0 || i >= len(s.rows) {
		return fmt.Errorf("update row %d of %d: %w", i, len(s.rows), ErrOutOfRange)
	}
	if len(vec) != s.dim {
		return fmt.Errorf("update row %d has dim %d, want %d: %w", i, len(vec), s.dim, ErrDimension)
	}
	n, err := embedding.Normalize(vec)
	if err != nil {
		return fmt.Errorf("update row %d: %w", i, err)
	}

	next := &snapshot{
		ids:          s.ids,
		fingerprints: s.fingerprints,
		rows:         make([][]float32, len(s.rows)),
		dim:          s.dim,
	}
	copy(next.rows, s.rows)
	next.rows[i] = n
	x.snap.Store(next)

	if x.store != nil {
		if err := x.store.Save(ctx, s.ids[i], s.fingerprints[i], n); err != nil {
			slog.Warn("failed to persist updated embedding", "meal_id", s.ids[i], "error", err)
		}
	}
	return nil
}

// Embedding returns a copy of row i.
func (x *Index) Embedding(i int) ([]float32, error) {
	s := x.snap.Load()
	if s == nil || len(s.rows) == 0 {
		return nil, ErrEmptyIndex
	}
	if i < 0 || i >= len(s.rows) {
		return nil, fmt.Errorf("row %d of %d: %w", i, len(s.rows), ErrOutOfRange)
	}
	out := make([]float32, len(s.rows[i]))
	copy(out, s.rows[i])
	return out, nil
}

func (x *Index) Len() int {
	s := x.snap.Load()
	if s == nil {
		return 0
	}
	return len(s.rows)
}

func (x *Index) Dim() int {
	s := x.snap.Load()
	if s == nil {
		return 0
	}
	return s.dim
}
