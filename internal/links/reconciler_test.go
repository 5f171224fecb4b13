package links

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReconcileAppliesDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		stored      []string
		desired     []string
		wantAdded   []string
		wantRemoved []string
		wantEnqueue int
	}{
		{
			name:        "swap one link",
			stored:      []string{"a", "b"},
			desired:     []string{"b", "c"},
			wantAdded:   []string{"c"},
			wantRemoved: []string{"a"},
			wantEnqueue: 1,
		},
		{
			name:        "pure removal never enqueues",
			stored:      []string{"a", "b"},
			desired:     []string{"b"},
			wantAdded:   []string{},
			wantRemoved: []string{"a"},
			wantEnqueue: 0,
		},
		{
			name:        "fresh article",
			stored:      nil,
			desired:     []string{"https://x", "https://y"},
			wantAdded:   []string{"https://x", "https://y"},
			wantRemoved: []string{},
			wantEnqueue: 1,
		},
		{
			name:        "duplicates collapse",
			stored:      nil,
			desired:     []string{"a", "a", "a"},
			wantAdded:   []string{"a"},
			wantRemoved: []string{},
			wantEnqueue: 1,
		},
		{
			name:        "no normalization",
			stored:      []string{"https://Example.com"},
			desired:     []string{"https://example.com"},
			wantAdded:   []string{"https://example.com"},
			wantRemoved: []string{"https://Example.com"},
			wantEnqueue: 1,
		},
		{
			name:        "clear everything",
			stored:      []string{"a", "b"},
			desired:     nil,
			wantAdded:   []string{},
			wantRemoved: []string{"a", "b"},
			wantEnqueue: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeLinkSetStore(7, tt.stored...)
			sub := &recordingSubmitter{}
			r := NewReconciler(store, sub, zap.NewNop())

			res, err := r.Reconcile(context.Background(), 7, 1, tt.desired)
			require.NoError(t, err)
			require.Equal(t, tt.wantAdded, res.Added)
			require.Equal(t, tt.wantRemoved, res.Removed)
			require.Len(t, store.deletes, len(tt.wantRemoved))
			require.Len(t, store.inserts, len(tt.wantAdded))
			require.Equal(t, tt.wantEnqueue, len(sub.ids))
			require.Equal(t, tt.wantEnqueue > 0, res.Enqueued)
			require.Equal(t, uniqueSorted(tt.desired), store.urls(7))
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeLinkSetStore(3, "a", "b")
	sub := &recordingSubmitter{}
	r := NewReconciler(store, sub, nil)

	desired := []string{"b", "c", "d"}
	_, err := r.Reconcile(context.Background(), 3, 9, desired)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, sub.ids)

	store.resetCounters()
	res, err := r.Reconcile(context.Background(), 3, 9, desired)
	require.NoError(t, err)
	require.Empty(t, res.Added)
	require.Empty(t, res.Removed)
	require.False(t, res.Enqueued)
	require.Empty(t, store.deletes)
	require.Empty(t, store.inserts)
	require.Equal(t, []int64{3}, sub.ids)
}

func TestReconcileInsertsPendingRowsForUser(t *testing.T) {
	t.Parallel()

	store := newFakeLinkSetStore(5)
	r := NewReconciler(store, &recordingSubmitter{}, nil)

	_, err := r.Reconcile(context.Background(), 5, 42, []string{"https://go.dev"})
	require.NoError(t, err)
	require.Equal(t, []insertCall{{articleID: 5, userID: 42, url: "https://go.dev"}}, store.inserts)
}

func TestReconcileStoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	t.Run("list", func(t *testing.T) {
		t.Parallel()
		store := newFakeLinkSetStore(1)
		store.listErr = boom
		sub := &recordingSubmitter{}
		_, err := NewReconciler(store, sub, nil).Reconcile(context.Background(), 1, 1, []string{"a"})
		require.ErrorIs(t, err, boom)
		require.Empty(t, sub.ids)
	})

	t.Run("insert", func(t *testing.T) {
		t.Parallel()
		store := newFakeLinkSetStore(1)
		store.insertErr = boom
		sub := &recordingSubmitter{}
		_, err := NewReconciler(store, sub, nil).Reconcile(context.Background(), 1, 1, []string{"a"})
		require.ErrorIs(t, err, boom)
		require.Empty(t, sub.ids)
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()
		store := newFakeLinkSetStore(1, "old")
		store.deleteErr = boom
		_, err := NewReconciler(store, nil, nil).Reconcile(context.Background(), 1, 1, nil)
		require.ErrorIs(t, err, boom)
	})
}

func TestForgetDeletesArticleLinks(t *testing.T) {
	t.Parallel()

	store := newFakeLinkSetStore(4, "a", "b")
	r := NewReconciler(store, &recordingSubmitter{}, nil)

	require.NoError(t, r.Forget(context.Background(), 4))
	require.Empty(t, store.urls(4))
}

type insertCall struct {
	articleID int64
	userID    int64
	url       string
}

type fakeLinkSetStore struct {
	mu        sync.Mutex
	rows      map[int64]map[string]struct{}
	deletes   []string
	inserts   []insertCall
	listErr   error
	deleteErr error
	insertErr error
}

func newFakeLinkSetStore(articleID int64, urls ...string) *fakeLinkSetStore {
	s := &fakeLinkSetStore{rows: map[int64]map[string]struct{}{}}
	s.rows[articleID] = map[string]struct{}{}
	for _, u := range urls {
		s.rows[articleID][u] = struct{}{}
	}
	return s
}

func (s *fakeLinkSetStore) ListLinkURLs(_ context.Context, articleID int64) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.urls(articleID), nil
}

func (s *fakeLinkSetStore) DeleteLink(_ context.Context, articleID int64, url string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows[articleID], url)
	s.deletes = append(s.deletes, url)
	return nil
}

func (s *fakeLinkSetStore) InsertLink(_ context.Context, articleID, userID int64, url string) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[articleID] == nil {
		s.rows[articleID] = map[string]struct{}{}
	}
	s.rows[articleID][url] = struct{}{}
	s.inserts = append(s.inserts, insertCall{articleID: articleID, userID: userID, url: url})
	return nil
}

func (s *fakeLinkSetStore) DeleteArticleLinks(_ context.Context, articleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, articleID)
	return nil
}

func (s *fakeLinkSetStore) urls(articleID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows[articleID]))
	for u := range s.rows[articleID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (s *fakeLinkSetStore) resetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = nil
	s.inserts = nil
}

type recordingSubmitter struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingSubmitter) Submit(articleID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, articleID)
}

func uniqueSorted(in []string) []string {
	return difference(toSet(in), map[string]struct{}{})
}
