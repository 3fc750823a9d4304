package config

import "time"

const (
	// Chat defaults
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
	DefaultProvider    = "openrouter"

	// Finalizing a turn runs detached from the request
	PersistTimeout = 5 * time.Second

	// History pagination
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	DefaultRecentLimit  = 10
	DefaultSearchLimit  = 20
	MaxSearchLimit      = 100

	// Rate limiting
	RateLimitWindow = time.Minute

	// Model cache duration
	ModelCacheDuration = 1 * time.Hour

	// Document chunking
	ChunkSize    = 1000
	ChunkOverlap = 200

	// Retrieval
	DefaultQueryResults   = 5
	DefaultChunksPerDoc   = 3
	DefaultMaxDocuments   = 3
	MaxEmbeddingBatchSize = 64

	// HTTP server
	ReadHeaderTimeout = 10 * time.Second
	ShutdownTimeout   = 15 * time.Second
	CORSMaxAge        = 600

	// Telegram limits
	MaxTelegramMessageLen = 4096
	AlertSendTimeout      = 10 * time.Second
)
