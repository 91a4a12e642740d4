package embedding

import (
	"context"
	"hash/fnv"
	"sync"
)

// VocabEmbedder gives every distinct token its own dimension the first time
// it is seen, so inner products count shared words exactly. Once all
// dimensions are taken, new tokens are hashed onto existing ones.
type VocabEmbedder struct {
	mu    sync.Mutex
	dim   int
	vocab map[string]int
}

func NewVocabEmbedder(dim int) *VocabEmbedder {
	if dim <= 0 {
		dim = defaultDim
	}
	return &VocabEmbedder{dim: dim, vocab: make(map[string]int)}
}

func (v *VocabEmbedder) Dim() int { return v.dim }

// Size returns the number of tokens with a dedicated dimension.
func (v *VocabEmbedder) Size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.vocab)
}

func (v *VocabEmbedder) slot(tok string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i, ok := v.vocab[tok]; ok {
		return i
	}
	if len(v.vocab) < v.dim {
		i := len(v.vocab)
		v.vocab[tok] = i
		return i
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	return int(h.Sum64() % uint64(v.dim))
}

// Embed implements chromem.EmbeddingFunc.
func (v *VocabEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, v.dim)
	for _, tok := range Tokenize(text) {
		vec[v.slot(tok)]++
	}
	if out, err := Normalize(vec); err == nil {
		return out, nil
	}
	return vec, nil
}
