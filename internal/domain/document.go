package domain

// Document is raw text submitted for indexing in a session's vector collection.
type Document struct {
	ID          string
	Content     string
	ContentType string
	Metadata    map[string]string
}

type IngestResult struct {
	DocumentID string
	Chunks     int
}

type SimilarChunk struct {
	ChunkID        string
	BaseDocumentID string
	ChunkIndex     int
	TotalChunks    int
	Content        string
	Score          float32
	Metadata       map[string]string
}

// ReconstructedDocument joins the matched chunks of one base document in order.
type ReconstructedDocument struct {
	DocumentID string
	Content    string
	Relevance  float32
	Chunks     int
}
