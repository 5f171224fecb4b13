// Package postgres stores links in Postgres.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/notes-service/internal/id/uuid"
	"github.com/JakeFAU/notes-service/internal/links"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// LinkStore implements links.Store on a pgx pool.
type LinkStore struct {
	pool pool
	ids  links.IDGenerator
}

// NewLinkStore connects to Postgres using cfg.
func NewLinkStore(ctx context.Context, cfg Config) (*LinkStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LinkStore{pool: p, ids: uuid.New()}, nil
}

// NewLinkStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLinkStoreWithPool(p pool, ids links.IDGenerator) (*LinkStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if ids == nil {
		ids = uuid.New()
	}
	return &LinkStore{pool: p, ids: ids}, nil
}

// Close releases the underlying pool resources.
func (s *LinkStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *LinkStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the links table and its indexes if they do not exist.
func (s *LinkStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply links schema: %w", err)
	}
	return nil
}

// ListLinkURLs returns the stored URLs of an article.
func (s *LinkStore) ListLinkURLs(ctx context.Context, articleID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT url FROM links WHERE article_id = $1`, articleID)
	if err != nil {
		return nil, fmt.Errorf("query link urls: %w", err)
	}
	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan link urls: %w", err)
	}
	return urls, nil
}

// DeleteLink removes the row of url within an article.
func (s *LinkStore) DeleteLink(ctx context.Context, articleID int64, url string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM links WHERE article_id = $1 AND url = $2`, articleID, url); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// InsertLink adds a pending row with a fresh ID.
func (s *LinkStore) InsertLink(ctx context.Context, articleID, userID int64, url string) error {
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate link id: %w", err)
	}
	const query = `
INSERT INTO links (id, article_id, user_id, url, pending)
VALUES ($1, $2, $3, $4, TRUE)`
	if _, err := s.pool.Exec(ctx, query, id, articleID, userID, url); err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// ListPendingLinks returns the links of an article still awaiting enrichment.
func (s *LinkStore) ListPendingLinks(ctx context.Context, articleID int64) ([]links.PendingLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, url FROM links WHERE article_id = $1 AND pending ORDER BY id`, articleID)
	if err != nil {
		return nil, fmt.Errorf("query pending links: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (links.PendingLink, error) {
		var l links.PendingLink
		err := row.Scan(&l.ID, &l.URL)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending links: %w", err)
	}
	return out, nil
}

// ListArticlesWithPendingLinks returns every article ID with at least one
// pending link.
func (s *LinkStore) ListArticlesWithPendingLinks(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT article_id FROM links WHERE pending ORDER BY article_id`)
	if err != nil {
		return nil, fmt.Errorf("query pending articles: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan pending articles: %w", err)
	}
	return ids, nil
}

// PersistEnrichment writes fetch results, clears pending and rebuilds the
// search vector with the detected text search configuration.
func (s *LinkStore) PersistEnrichment(ctx context.Context, linkID string, e links.Enrichment) error {
	const query = `
UPDATE links SET
	pending = FALSE,
	title = $2,
	content = $3,
	language = CAST($4::text AS regconfig),
	search_vector = setweight(to_tsvector(CAST($4::text AS regconfig), coalesce($2, '')), 'A')
		|| setweight(to_tsvector(CAST($4::text AS regconfig), coalesce($3, '')), 'B'),
	screenshot = $5,
	archive_uri = NULLIF($6, ''),
	enriched_at = $7
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		linkID, e.Title, e.Body, e.Language, e.Screenshot, e.ArchiveURI, e.EnrichedAt)
	if err != nil {
		return fmt.Errorf("update link enrichment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link %s: %w", linkID, links.ErrNotFound)
	}
	return nil
}

// DeleteArticleLinks removes all links of an article.
func (s *LinkStore) DeleteArticleLinks(ctx context.Context, articleID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM links WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("delete article links: %w", err)
	}
	return nil
}

// ListLinks pages through a user's links, newest first. A non-positive limit
// returns every row after offset.
func (s *LinkStore) ListLinks(ctx context.Context, userID int64, offset, limit int) ([]links.Link, error) {
	const query = `
SELECT id::text, article_id, user_id, url, title, content, language::text,
	screenshot, archive_uri, pending, enriched_at
FROM links
WHERE user_id = $1
ORDER BY id DESC
LIMIT $2 OFFSET $3`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, query, userID, lim, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (links.Link, error) {
		var l links.Link
		err := row.Scan(&l.ID, &l.ArticleID, &l.UserID, &l.URL, &l.Title, &l.Body, &l.Language,
			&l.Screenshot, &l.ArchiveURI, &l.Pending, &l.EnrichedAt)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan links: %w", err)
	}
	return out, nil
}
