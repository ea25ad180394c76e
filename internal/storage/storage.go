package storage

import (
	"context"
	"time"
)

// DocumentStore defines collection and document persistence.
// Both Storage and Tx implement it.
type DocumentStore interface {
	// Collection operations
	CreateCollection(ctx context.Context, collection *Collection) error
	GetCollection(ctx context.Context, name string) (*Collection, error)
	GetCollectionByScope(ctx context.Context, root, glob string) (*Collection, error)
	ListCollections(ctx context.Context) ([]*Collection, error)
	TouchCollection(ctx context.Context, collectionID int64) error
	DeleteCollection(ctx context.Context, collectionID int64) (deactivated int, err error)

	// Document operations
	GetDocument(ctx context.Context, documentID int64) (*Document, error)
	GetActiveDocument(ctx context.Context, collectionID int64, path string) (*Document, error)
	GetDocumentByDisplayPath(ctx context.Context, displayPath string) (*Document, error)
	InsertDocument(ctx context.Context, doc *Document) error
	UpdateDocumentContent(ctx context.Context, doc *Document) error
	SetDisplayPath(ctx context.Context, documentID int64, displayPath string) error
	ListActiveDocuments(ctx context.Context, collectionID int64) ([]*Document, error)
	DeactivateDocument(ctx context.Context, documentID int64) error
}

// Storage defines the interface for persisting and querying the document index
type Storage interface {
	DocumentStore

	// Vector operations
	InsertVector(ctx context.Context, vector *Vector) error
	ListVectors(ctx context.Context, hash string) ([]*Vector, error)
	DeleteVectors(ctx context.Context, hash string) (int, error)
	HasVectors(ctx context.Context, hash string) (bool, error)
	ReplaceVectors(ctx context.Context, hash string, vectors []*Vector) error
	ClearVectors(ctx context.Context) (int, error)
	EnsureVectorTable(ctx context.Context, dimension int, model string) (rebuilt bool, err error)
	GetVectorInfo(ctx context.Context) (*VectorInfo, error)
	ListNeedsEmbedding(ctx context.Context) ([]*PendingDocument, error)
	CountNeedsEmbedding(ctx context.Context) (int, error)
	DeleteOrphanVectors(ctx context.Context) (int, error)

	// Search operations
	SearchText(ctx context.Context, query string, limit int, filter *SearchFilter) ([]TextHit, error)
	SearchVector(ctx context.Context, vector []float32, limit int, filter *SearchFilter) ([]VectorHit, error)

	// Path context operations
	SetPathContext(ctx context.Context, prefix, context string) error
	DeletePathContext(ctx context.Context, prefix string) error
	ListPathContexts(ctx context.Context) ([]*PathContext, error)
	FindPathContext(ctx context.Context, path string) (*PathContext, error)

	// Model response cache backed by the index database
	Cache() *LLMCache

	// Status and maintenance
	GetStatus(ctx context.Context) (*Status, error)
	Vacuum(ctx context.Context) error

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction over document operations
type Tx interface {
	DocumentStore
	Commit() error
	Rollback() error
}

// Collection is a (root directory, glob pattern) scope of documents
type Collection struct {
	ID        int64
	Name      string
	Root      string // Absolute directory
	Glob      string // Pattern relative to Root, e.g. "**/*.md"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is an indexed file. Documents are deactivated, never deleted, when
// their path disappears from the collection.
type Document struct {
	ID           int64
	CollectionID int64  // 0 once the owning collection has been removed
	Path         string // Relative to the collection root
	DisplayPath  string // <collection>/<path>
	Title        string
	Hash         string // Content fingerprint
	Body         string // Empty in listings and search hits; load with GetDocument
	Active       bool
	ModifiedAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Vector is one embedding for a (fingerprint, sequence) chunk
type Vector struct {
	Hash       string
	Seq        int
	Pos        int // Chunk start offset in characters
	Model      string
	Embedding  []float32
	EmbeddedAt time.Time
}

// VectorInfo describes the fixed-dimension vector table
type VectorInfo struct {
	Dimension int // 0 until the first vector is stored
	Model     string
	Count     int
}

// PendingDocument is a fingerprint without stored vectors, with one document carrying it
type PendingDocument struct {
	Hash        string
	Title       string
	Body        string
	DisplayPath string
}

// SearchFilter narrows search to a scope
type SearchFilter struct {
	CollectionID int64 // 0 searches all collections
}

// TextHit is a full-text match. Score is the raw bm25 value (negative, lower is better).
type TextHit struct {
	Document   Document
	Collection string
	Score      float64
	Snippet    string
}

// VectorHit is a nearest-neighbour match with its owning document
type VectorHit struct {
	Document   Document
	Collection string
	Seq        int
	Pos        int
	Distance   float64 // Cosine distance, 0 is identical
}

// PathContext annotates every document below a path prefix
type PathContext struct {
	Prefix    string
	Context   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status contains statistics about the index
type Status struct {
	Collections     []*CollectionStatus
	TotalDocuments  int
	ActiveDocuments int
	Vectors         int
	EmbeddedHashes  int
	NeedsEmbedding  int
	CacheEntries    int
	PathContexts    int
	VectorDimension int
	VectorModel     string
	IndexSizeMB     float64
	LastUpdatedAt   time.Time
	Health          HealthStatus
}

// CollectionStatus summarises one collection
type CollectionStatus struct {
	Collection        *Collection
	ActiveDocuments   int
	InactiveDocuments int
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexBuilt       bool
}
