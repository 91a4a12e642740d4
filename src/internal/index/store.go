package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"moodmeal/src/internal/embedding"

	"github.com/philippgille/chromem-go"
)

const fingerprintKey = "fingerprint"

// Store persists meal embeddings in a chromem-go collection under
// <dir>/vector_db, one document per meal ID.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// OpenStore opens or creates the persistent collection. The collection name
// should change whenever the embedding model does, so vectors from
// different models never mix.
func OpenStore(dir, collection string, embed embedding.Func) (*Store, error) {
	dbPath := filepath.Join(dir, "vector_db")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector db directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistent db: %w", err)
	}
	slog.Info("initialized vector database", "path", dbPath)

	col, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection: %w", err)
	}
	slog.Info("using embedding collection", "name", collection, "count", col.Count())

	return &Store{db: db, collection: col}, nil
}

// Load returns the stored embedding for id when its fingerprint matches.
func (s *Store) Load(ctx context.Context, id, fingerprint string) ([]float32, bool, error) {
	if s.collection.Count() == 0 {
		return nil, false, nil
	}
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		// chromem reports a missing ID as an error
		return nil, false, nil
	}
	if doc.Metadata[fingerprintKey] != fingerprint || len(doc.Embedding) == 0 {
		return nil, false, nil
	}
	return doc.Embedding, true, nil
}

func (s *Store) Save(ctx context.Context, id, fingerprint string, vec []float32) error {
	doc := chromem.Document{
		ID:        id,
		Metadata:  map[string]string{fingerprintKey: fingerprint},
		Embedding: slices.Clone(vec),
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("store embedding %s: %w", id, err)
	}
	return nil
}

func (s *Store) Count() int {
	return s.collection.Count()
}
