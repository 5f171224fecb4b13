package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/notes-service/internal/links"
)

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type failingIDs struct{ err error }

func (f failingIDs) NewID() (string, error) { return "", f.err }

func newMockStore(t *testing.T) (*LinkStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewLinkStoreWithPool(mock, fixedIDs{id: "0190b6f4-0000-7000-8000-000000000001"})
	require.NoError(t, err)
	return store, mock
}

func TestNewLinkStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewLinkStore(context.Background(), Config{})
	require.ErrorContains(t, err, "db.dsn is required")

	_, err = NewLinkStoreWithPool(nil, nil)
	require.Error(t, err)
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS links").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListLinkURLs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT url FROM links WHERE article_id").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"url"}).
			AddRow("https://a.example").
			AddRow("https://b.example"))

	urls, err := store.ListLinkURLs(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, urls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLinkStartsPending(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO links").
		WithArgs("0190b6f4-0000-7000-8000-000000000001", int64(5), int64(9), "https://a.example").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertLink(context.Background(), 5, 9, "https://a.example"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLinkWrapsIDError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	entropy := errors.New("entropy exhausted")
	store, err := NewLinkStoreWithPool(mock, failingIDs{err: entropy})
	require.NoError(t, err)

	err = store.InsertLink(context.Background(), 5, 9, "https://a.example")
	require.ErrorIs(t, err, entropy)
	require.ErrorContains(t, err, "generate link id")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteLink(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	boom := errors.New("conn reset")
	mock.ExpectExec("DELETE FROM links WHERE article_id = \\$1 AND url = \\$2").
		WithArgs(int64(5), "https://a.example").
		WillReturnError(boom)

	err := store.DeleteLink(context.Background(), 5, "https://a.example")
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingLinks(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id::text, url FROM links WHERE article_id = \\$1 AND pending").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).AddRow("l1", "https://a.example"))

	got, err := store.ListPendingLinks(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []links.PendingLink{{ID: "l1", URL: "https://a.example"}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListArticlesWithPendingLinks(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT DISTINCT article_id FROM links WHERE pending").
		WillReturnRows(pgxmock.NewRows([]string{"article_id"}).AddRow(int64(2)).AddRow(int64(9)))

	got, err := store.ListArticlesWithPendingLinks(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{2, 9}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistEnrichment(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	e := links.Enrichment{
		Title:      "Title",
		Body:       "Body text",
		Language:   "german",
		Screenshot: []byte{0x89, 'P', 'N', 'G'},
		ArchiveURI: "gs://bucket/5/abc.png",
		EnrichedAt: now,
	}
	mock.ExpectExec("UPDATE links SET").
		WithArgs("l1", e.Title, e.Body, e.Language, e.Screenshot, e.ArchiveURI, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.PersistEnrichment(context.Background(), "l1", e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistEnrichmentMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE links SET").
		WithArgs("gone", "", "", "english", []byte(nil), "", time.Time{}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.PersistEnrichment(context.Background(), "gone", links.Enrichment{Language: "english"})
	require.ErrorIs(t, err, links.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteArticleLinks(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM links WHERE article_id = \\$1$").
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, store.DeleteArticleLinks(context.Background(), 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListLinks(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	title, body, lang, uri := "T", "B", "english", "gs://b/o.png"
	enrichedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cols := []string{"id", "article_id", "user_id", "url", "title", "content", "language",
		"screenshot", "archive_uri", "pending", "enriched_at"}
	mock.ExpectQuery("SELECT id::text, article_id").
		WithArgs(int64(9), 20, 40).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("l2", int64(5), int64(9), "https://b.example", &title, &body, &lang,
				[]byte("png"), &uri, false, &enrichedAt).
			AddRow("l1", int64(5), int64(9), "https://a.example", nil, nil, nil,
				nil, nil, true, nil))

	got, err := store.ListLinks(context.Background(), 9, 40, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "l2", got[0].ID)
	require.Equal(t, "T", *got[0].Title)
	require.Equal(t, "english", *got[0].Language)
	require.Equal(t, []byte("png"), got[0].Screenshot)
	require.False(t, got[0].Pending)
	require.Equal(t, enrichedAt, *got[0].EnrichedAt)
	require.True(t, got[1].Pending)
	require.Nil(t, got[1].Title)
	require.Nil(t, got[1].EnrichedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListLinksWithoutLimit(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id::text, article_id").
		WithArgs(int64(9), nil, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := store.ListLinks(context.Background(), 9, -3, 0)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
