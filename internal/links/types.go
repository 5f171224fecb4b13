package links

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a link row does not exist.
var ErrNotFound = errors.New("link not found")

// Link is one persisted (article, URL) pair.
type Link struct {
	ID         string     `json:"id"`
	ArticleID  int64      `json:"article_id"`
	UserID     int64      `json:"user_id"`
	URL        string     `json:"url"`
	Title      *string    `json:"title,omitempty"`
	Body       *string    `json:"body,omitempty"`
	Language   *string    `json:"language,omitempty"`
	Screenshot []byte     `json:"-"`
	ArchiveURI *string    `json:"archive_uri,omitempty"`
	Pending    bool       `json:"pending"`
	EnrichedAt *time.Time `json:"enriched_at,omitempty"`
}

// PendingLink is the slice of a link row the worker needs to fetch it.
type PendingLink struct {
	ID  string
	URL string
}

// Enrichment is the result of one successful fetch.
type Enrichment struct {
	Title      string
	Body       string
	Language   string
	Screenshot []byte
	ArchiveURI string
	EnrichedAt time.Time
}

// Message is a request consumed by the enrichment worker. It is either an
// EnrichRequest or a ShutdownRequest.
type Message interface {
	isMessage()
}

// EnrichRequest asks the worker to fetch the pending links of an article.
type EnrichRequest struct {
	ArticleID int64
}

// ShutdownRequest stops the worker loop. The worker sends exactly one value
// on Ack after it has stopped using the browser session.
type ShutdownRequest struct {
	Ack chan<- struct{}
}

func (EnrichRequest) isMessage()   {}
func (ShutdownRequest) isMessage() {}
