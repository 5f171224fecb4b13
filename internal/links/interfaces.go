package links

import (
	"context"
	"io"
	"time"
)

// Store persists link rows keyed by article.
type Store interface {
	ListLinkURLs(ctx context.Context, articleID int64) ([]string, error)
	DeleteLink(ctx context.Context, articleID int64, url string) error
	InsertLink(ctx context.Context, articleID, userID int64, url string) error
	ListPendingLinks(ctx context.Context, articleID int64) ([]PendingLink, error)
	ListArticlesWithPendingLinks(ctx context.Context) ([]int64, error)
	PersistEnrichment(ctx context.Context, linkID string, enrichment Enrichment) error
	DeleteArticleLinks(ctx context.Context, articleID int64) error
	ListLinks(ctx context.Context, userID int64, offset, limit int) ([]Link, error)
}

// Browser drives one rendered page at a time. Implementations hold
// single-threaded state (the current tab) and must only be used by one
// goroutine.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Submitter accepts best-effort enrichment requests.
type Submitter interface {
	Submit(articleID int64)
}

// LanguageDetector names the language of a text as a Postgres regconfig.
type LanguageDetector interface {
	Detect(text string) string
}

// BlobStore writes archived artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes enrichment events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used to name archived artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces link IDs.
type IDGenerator interface {
	NewID() (string, error)
}
