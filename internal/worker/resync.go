package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/notes-service/internal/links"
)

// PendingArticleLister finds articles with links left pending by a previous
// run.
type PendingArticleLister interface {
	ListArticlesWithPendingLinks(ctx context.Context) ([]int64, error)
}

// Resync submits every article that still has pending links. It is the only
// recovery path for work interrupted by a crash or shutdown and uses the same
// best-effort submission as reconciliation, so articles beyond the queue
// capacity are dropped until the next restart.
func Resync(ctx context.Context, store PendingArticleLister, submitter links.Submitter, logger *zap.Logger) (int, error) {
	ids, err := store.ListArticlesWithPendingLinks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list articles with pending links: %w", err)
	}
	if logger != nil {
		logger.Info("resubmitting articles with pending links", zap.Int("articles", len(ids)))
	}
	for _, id := range ids {
		submitter.Submit(id)
	}
	return len(ids), nil
}
