package vectorstore

import "context"

// Store is the collection-per-session vector index used for documents.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dimensions int) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]SearchResult, error)
	Close() error
}

// Point is one stored vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

type Filter struct {
	// Metadata restricts results to payload fields equal to the given values.
	Metadata map[string]any

	// MinScore drops results below this similarity.
	MinScore float32
}

type SearchResult struct {
	ID       string
	Score    float32
	Metadata map[string]any
}
