package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/set-night/chatrelay/internal/config"
	"github.com/set-night/chatrelay/internal/domain"
	"github.com/set-night/chatrelay/internal/vectorstore"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	payloadContent     = "content"
	payloadChunkID     = "chunk_id"
	payloadChunkIndex  = "chunk_index"
	payloadTotalChunks = "total_chunks"
	payloadBaseDocID   = "base_document_id"
	payloadMetaPrefix  = "meta_"
)

// DocumentService indexes documents per chat session and retrieves them by
// similarity. Each session owns one collection.
type DocumentService struct {
	store      vectorstore.Store
	embedder   Embedder
	prefix     string
	dimensions int
}

func NewDocumentService(store vectorstore.Store, embedder Embedder, prefix string, dimensions int) *DocumentService {
	return &DocumentService{
		store:      store,
		embedder:   embedder,
		prefix:     prefix,
		dimensions: dimensions,
	}
}

var collectionUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func (s *DocumentService) collection(sessionID uuid.UUID) string {
	name := sessionID.String()
	if s.prefix != "" {
		name = s.prefix + "_" + name
	}
	return collectionUnsafe.ReplaceAllString(name, "_")
}

func (s *DocumentService) InitSession(ctx context.Context, sessionID uuid.UUID) (string, error) {
	name := s.collection(sessionID)
	if err := s.store.EnsureCollection(ctx, name, s.dimensions); err != nil {
		return "", fmt.Errorf("init session collection: %w", err)
	}
	slog.Info("vector_collection_ready", "session_id", sessionID, "collection", name)
	return name, nil
}

func (s *DocumentService) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	return s.store.DeleteCollection(ctx, s.collection(sessionID))
}

// AddDocument chunks, embeds and stores a document. Re-adding the same
// document ID overwrites its chunks.
func (s *DocumentService) AddDocument(ctx context.Context, sessionID uuid.UUID, doc domain.Document) (*domain.IngestResult, error) {
	text, err := documentText(doc.Content, doc.ContentType)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, domain.ErrEmptyDocument
	}

	docID := strings.TrimSpace(doc.ID)
	if docID == "" {
		docID = uuid.NewString()
	}

	chunks := splitIntoChunks(text, config.ChunkSize, config.ChunkOverlap)
	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: expected %d vectors, got %d", len(chunks), len(vectors))
	}

	name, err := s.InitSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, chunk := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, i)
		payload := map[string]any{
			payloadContent:     chunk,
			payloadChunkID:     chunkID,
			payloadChunkIndex:  i,
			payloadTotalChunks: len(chunks),
			payloadBaseDocID:   docID,
		}
		for k, v := range doc.Metadata {
			payload[payloadMetaPrefix+k] = v
		}
		points[i] = vectorstore.Point{
			ID:      pointID(name, chunkID),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	if err := s.store.Upsert(ctx, name, points); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	slog.Info("vector_document_added", "session_id", sessionID, "document_id", docID, "chunks", len(chunks))
	return &domain.IngestResult{DocumentID: docID, Chunks: len(chunks)}, nil
}

// pointID derives a stable point ID so upserts replace earlier chunks.
func pointID(collection, chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(collection+"/"+chunkID)).String()
}

// QuerySimilar returns the n chunks closest to the query, best first.
func (s *DocumentService) QuerySimilar(ctx context.Context, sessionID uuid.UUID, query string, n int) ([]domain.SimilarChunk, error) {
	if n <= 0 {
		n = config.DefaultQueryResults
	}
	return s.search(ctx, sessionID, query, n)
}

// Retrieve groups matching chunks by their base document and rebuilds each
// document from its chunks in order. Documents are ranked by the mean score
// of their matched chunks.
func (s *DocumentService) Retrieve(ctx context.Context, sessionID uuid.UUID, query string, chunksPerDoc, maxDocs int) ([]domain.ReconstructedDocument, error) {
	if chunksPerDoc <= 0 {
		chunksPerDoc = config.DefaultChunksPerDoc
	}
	if maxDocs <= 0 {
		maxDocs = config.DefaultMaxDocuments
	}

	chunks, err := s.search(ctx, sessionID, query, chunksPerDoc*maxDocs*2)
	if err != nil {
		return nil, err
	}
	return reconstructDocuments(chunks, chunksPerDoc, maxDocs), nil
}

func (s *DocumentService) search(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]domain.SimilarChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyMessage
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	results, err := s.store.Search(ctx, s.collection(sessionID), vectors[0], vectorstore.Filter{}, limit)
	if err != nil {
		return nil, fmt.Errorf("search session documents: %w", err)
	}

	chunks := make([]domain.SimilarChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, resultToChunk(r))
	}
	return chunks, nil
}

func resultToChunk(r vectorstore.SearchResult) domain.SimilarChunk {
	chunk := domain.SimilarChunk{
		ChunkID:  r.ID,
		Score:    r.Score,
		Metadata: make(map[string]string),
	}
	for k, v := range r.Metadata {
		switch k {
		case payloadContent:
			chunk.Content, _ = v.(string)
		case payloadChunkID:
			if id, ok := v.(string); ok && id != "" {
				chunk.ChunkID = id
			}
		case payloadBaseDocID:
			chunk.BaseDocumentID, _ = v.(string)
		case payloadChunkIndex:
			chunk.ChunkIndex = payloadInt(v)
		case payloadTotalChunks:
			chunk.TotalChunks = payloadInt(v)
		default:
			if name, ok := strings.CutPrefix(k, payloadMetaPrefix); ok {
				chunk.Metadata[name] = fmt.Sprint(v)
			}
		}
	}
	if chunk.BaseDocumentID == "" {
		chunk.BaseDocumentID = chunk.ChunkID
	}
	return chunk
}

func payloadInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func reconstructDocuments(chunks []domain.SimilarChunk, chunksPerDoc, maxDocs int) []domain.ReconstructedDocument {
	groups := make(map[string][]domain.SimilarChunk)
	var order []string
	for _, c := range chunks {
		if _, seen := groups[c.BaseDocumentID]; !seen {
			order = append(order, c.BaseDocumentID)
		}
		if len(groups[c.BaseDocumentID]) < chunksPerDoc {
			groups[c.BaseDocumentID] = append(groups[c.BaseDocumentID], c)
		}
	}

	docs := make([]domain.ReconstructedDocument, 0, len(order))
	for _, id := range order {
		group := groups[id]
		sort.SliceStable(group, func(i, j int) bool { return group[i].ChunkIndex < group[j].ChunkIndex })

		var total float32
		parts := make([]string, 0, len(group))
		for _, c := range group {
			total += c.Score
			parts = append(parts, c.Content)
		}

		docs = append(docs, domain.ReconstructedDocument{
			DocumentID: id,
			Content:    strings.Join(parts, "\n"),
			Relevance:  total / float32(len(group)),
			Chunks:     len(group),
		})
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Relevance > docs[j].Relevance })
	if len(docs) > maxDocs {
		docs = docs[:maxDocs]
	}
	return docs
}
