package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"moodmeal/src/internal/system"

	"github.com/vmihailenco/msgpack/v5"
)

// StaticEmbedder embeds text by averaging per-token vectors from a
// precomputed msgpack table.
type StaticEmbedder struct {
	embeddings map[string][]float32
	dim        int
}

type staticTable struct {
	Dim        int                  `msgpack:"dim"`
	Embeddings map[string][]float64 `msgpack:"embeddings"`
}

// LoadStaticEmbedderFromBytes decodes a msgpack token table.
func LoadStaticEmbedderFromBytes(data []byte) (*StaticEmbedder, error) {
	var loaded staticTable
	if err := msgpack.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("msgpack unmarshal failed: %w", err)
	}
	if loaded.Dim <= 0 {
		return nil, fmt.Errorf("static table has invalid dim %d", loaded.Dim)
	}

	// float32 halves the resident size of the table
	embeddings32 := make(map[string][]float32, len(loaded.Embeddings))
	for k, v := range loaded.Embeddings {
		if len(v) != loaded.Dim {
			return nil, fmt.Errorf("token %q has dim %d, want %d", k, len(v), loaded.Dim)
		}
		v32 := make([]float32, len(v))
		for i, f := range v {
			v32[i] = float32(f)
		}
		embeddings32[k] = v32
	}

	slog.Info("loaded static embedder", "tokens", len(embeddings32), "dim", loaded.Dim)
	system.LogMemoryUsage("static_embedder_load")

	return &StaticEmbedder{
		embeddings: embeddings32,
		dim:        loaded.Dim,
	}, nil
}

// LoadStaticEmbedderMsgPack loads the msgpack file at path.
func LoadStaticEmbedderMsgPack(path string) (*StaticEmbedder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return LoadStaticEmbedderFromBytes(data)
}

func (e *StaticEmbedder) Dim() int { return e.dim }

// Embed implements chromem.EmbeddingFunc. Unknown tokens count as zero
// vectors; the result is L2-normalized unless every token was unknown.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := strings.Fields(strings.ToLower(text))
	sum := make([]float32, e.dim)
	if len(tokens) == 0 {
		return sum, nil
	}

	for _, tok := range tokens {
		vec, ok := e.embeddings[tok]
		if !ok {
			continue
		}
		for j := range sum {
			sum[j] += vec[j]
		}
	}

	fc := float32(len(tokens))
	for j := range sum {
		sum[j] /= fc
	}

	if out, err := Normalize(sum); err == nil {
		return out, nil
	}
	return sum, nil
}
