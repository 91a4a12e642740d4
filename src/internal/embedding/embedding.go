package embedding

import (
	"fmt"
	"log/slog"
	"strings"

	"moodmeal/src/internal/config"

	"github.com/philippgille/chromem-go"
)

// Func turns text into a vector. It is chromem's EmbeddingFunc so the same
// function can back both the in-memory index and the persistent store.
type Func = chromem.EmbeddingFunc

const defaultDim = 384

// New selects an embedding function from config. The offline providers
// ("hash", "vocab", "static") are deterministic; the hosted ones go through
// chromem's HTTP clients.
func New(cfg config.EmbeddingsConfig) (Func, error) {
	dim := cfg.Dim
	if dim <= 0 {
		dim = defaultDim
	}
	apiKey := cfg.APIKey

	var fn Func
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		fn = NewHashEmbedder(dim).Embed
	case "vocab":
		fn = NewVocabEmbedder(dim).Embed
	case "static":
		if cfg.StaticPath == "" {
			return nil, fmt.Errorf("embeddings.static_path is required for the static provider")
		}
		embedder, err := LoadStaticEmbedderMsgPack(cfg.StaticPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load static embedder: %w", err)
		}
		fn = embedder.Embed
	case "openai":
		model := chromem.EmbeddingModelOpenAI(cfg.Model)
		if model == "" {
			model = chromem.EmbeddingModelOpenAI3Small
		}
		fn = chromem.NewEmbeddingFuncOpenAI(apiKey, model)
	case "mistral":
		fn = chromem.NewEmbeddingFuncMistral(apiKey)
	case "cohere":
		fn = chromem.NewEmbeddingFuncCohere(apiKey, chromem.EmbeddingModelCohereEnglishV3)
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		fn = chromem.NewEmbeddingFuncOllama(model, cfg.URL)
	case "jina":
		fn = chromem.NewEmbeddingFuncJina(apiKey, chromem.EmbeddingModelJina2BaseEN)
	case "mixedbread":
		fn = chromem.NewEmbeddingFuncMixedbread(apiKey, chromem.EmbeddingModelMixedbreadLargeV1)
	case "localai":
		model := cfg.Model
		if model == "" {
			model = "bert-cpp-minilm-v6"
		}
		fn = chromem.NewEmbeddingFuncLocalAI(model)
	case "openai-compatible":
		if cfg.URL == "" || cfg.Model == "" {
			return nil, fmt.Errorf("embeddings.url and embeddings.model are required for openai-compatible")
		}
		fn = chromem.NewEmbeddingFuncOpenAICompat(cfg.URL, apiKey, cfg.Model, nil)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	slog.Info("selected embedding provider", "provider", cfg.Provider, "model", cfg.Model)
	return fn, nil
}
