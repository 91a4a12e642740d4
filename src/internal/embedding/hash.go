package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "be": {}, "for": {},
	"i": {}, "im": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {},
	"of": {}, "on": {}, "or": {}, "the": {}, "this": {}, "to": {},
	"with": {}, "you": {}, "your": {},
}

// HashEmbedder is a deterministic feature-hashing bag-of-words embedder.
// Texts that share words get a positive inner product; it needs no model
// files or network access.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultDim
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dim() int { return h.dim }

// Embed implements chromem.EmbeddingFunc. Text without any content words
// yields the zero vector.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, tok := range Tokenize(text) {
		hs := fnv.New64a()
		_, _ = hs.Write([]byte(tok))
		vec[hs.Sum64()%uint64(h.dim)]++
	}
	if out, err := Normalize(vec); err == nil {
		return out, nil
	}
	return vec, nil
}

// Tokenize lower-cases text, splits on anything that is not a letter or a
// digit and drops stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		out = append(out, f)
	}
	return out
}
