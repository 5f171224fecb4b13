package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/notes-service/internal/id/uuid"
	"github.com/JakeFAU/notes-service/internal/links"
)

// LinkStore provides an in-memory links table for development/testing.
type LinkStore struct {
	mu    sync.RWMutex
	rows  map[string]links.Link
	order []string
	ids   links.IDGenerator
}

// NewLinkStore constructs a LinkStore. A nil generator falls back to UUIDv7.
func NewLinkStore(ids links.IDGenerator) *LinkStore {
	if ids == nil {
		ids = uuid.New()
	}
	return &LinkStore{
		rows: make(map[string]links.Link),
		ids:  ids,
	}
}

// ListLinkURLs returns the URLs stored for an article.
func (s *LinkStore) ListLinkURLs(_ context.Context, articleID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range s.order {
		if row := s.rows[id]; row.ArticleID == articleID {
			out = append(out, row.URL)
		}
	}
	return out, nil
}

// DeleteLink removes the rows of an article matching url.
func (s *LinkStore) DeleteLink(_ context.Context, articleID int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeWhere(func(l links.Link) bool {
		return l.ArticleID == articleID && l.URL == url
	})
	return nil
}

// InsertLink stores a new pending row.
func (s *LinkStore) InsertLink(_ context.Context, articleID, userID int64, url string) error {
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate link id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = links.Link{
		ID:        id,
		ArticleID: articleID,
		UserID:    userID,
		URL:       url,
		Pending:   true,
	}
	s.order = append(s.order, id)
	return nil
}

// ListPendingLinks returns the pending rows of an article in insertion order.
func (s *LinkStore) ListPendingLinks(_ context.Context, articleID int64) ([]links.PendingLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []links.PendingLink
	for _, id := range s.order {
		if row := s.rows[id]; row.ArticleID == articleID && row.Pending {
			out = append(out, links.PendingLink{ID: row.ID, URL: row.URL})
		}
	}
	return out, nil
}

// ListArticlesWithPendingLinks returns the distinct article IDs having at
// least one pending row, in ascending order.
func (s *LinkStore) ListArticlesWithPendingLinks(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []int64
	for _, row := range s.rows {
		if !row.Pending {
			continue
		}
		if _, ok := seen[row.ArticleID]; ok {
			continue
		}
		seen[row.ArticleID] = struct{}{}
		out = append(out, row.ArticleID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// PersistEnrichment stores fetch results and clears the pending flag.
func (s *LinkStore) PersistEnrichment(_ context.Context, linkID string, e links.Enrichment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[linkID]
	if !ok {
		return links.ErrNotFound
	}
	row.Title = stringPtr(e.Title)
	row.Body = stringPtr(e.Body)
	row.Language = stringPtr(e.Language)
	row.Screenshot = append([]byte(nil), e.Screenshot...)
	if e.ArchiveURI != "" {
		row.ArchiveURI = stringPtr(e.ArchiveURI)
	}
	enrichedAt := e.EnrichedAt
	row.EnrichedAt = &enrichedAt
	row.Pending = false
	s.rows[linkID] = row
	return nil
}

// DeleteArticleLinks removes every row of an article.
func (s *LinkStore) DeleteArticleLinks(_ context.Context, articleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeWhere(func(l links.Link) bool { return l.ArticleID == articleID })
	return nil
}

// ListLinks returns a user's links, newest first.
func (s *LinkStore) ListLinks(_ context.Context, userID int64, offset, limit int) ([]links.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []links.Link
	skipped := 0
	for i := len(s.order) - 1; i >= 0; i-- {
		row := s.rows[s.order[i]]
		if row.UserID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneLink(row))
	}
	return out, nil
}

// Get returns a single row by ID.
func (s *LinkStore) Get(_ context.Context, linkID string) (links.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[linkID]
	if !ok {
		return links.Link{}, links.ErrNotFound
	}
	return cloneLink(row), nil
}

func (s *LinkStore) removeWhere(match func(links.Link) bool) {
	kept := s.order[:0]
	for _, id := range s.order {
		if match(s.rows[id]) {
			delete(s.rows, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func cloneLink(l links.Link) links.Link {
	cp := l
	if l.Screenshot != nil {
		cp.Screenshot = append([]byte(nil), l.Screenshot...)
	}
	return cp
}

func stringPtr(s string) *string {
	return &s
}
