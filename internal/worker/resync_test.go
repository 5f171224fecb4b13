package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPendingLister struct {
	ids []int64
	err error
}

func (s stubPendingLister) ListArticlesWithPendingLinks(context.Context) ([]int64, error) {
	return s.ids, s.err
}

type collectingSubmitter struct {
	ids []int64
}

func (c *collectingSubmitter) Submit(articleID int64) {
	c.ids = append(c.ids, articleID)
}

func TestResyncSubmitsEveryPendingArticle(t *testing.T) {
	t.Parallel()

	sub := &collectingSubmitter{}
	n, err := Resync(context.Background(), stubPendingLister{ids: []int64{3, 5, 8}}, sub, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []int64{3, 5, 8}, sub.ids)
}

func TestResyncNothingPending(t *testing.T) {
	t.Parallel()

	sub := &collectingSubmitter{}
	n, err := Resync(context.Background(), stubPendingLister{}, sub, nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, sub.ids)
}

func TestResyncReturnsStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("relation \"links\" does not exist")
	sub := &collectingSubmitter{}
	_, err := Resync(context.Background(), stubPendingLister{err: boom}, sub, zap.NewNop())
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "list articles with pending links")
	require.Empty(t, sub.ids)
}
