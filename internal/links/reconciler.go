package links

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// LinkSetStore is the part of Store the reconciler mutates.
type LinkSetStore interface {
	ListLinkURLs(ctx context.Context, articleID int64) ([]string, error)
	DeleteLink(ctx context.Context, articleID int64, url string) error
	InsertLink(ctx context.Context, articleID, userID int64, url string) error
	DeleteArticleLinks(ctx context.Context, articleID int64) error
}

// Result describes what one Reconcile call changed. Enqueued reports that a
// request was submitted, not that it was delivered.
type Result struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Enqueued bool     `json:"enqueued"`
}

// Reconciler keeps an article's stored link set equal to the URLs extracted
// from its latest content.
type Reconciler struct {
	store     LinkSetStore
	submitter Submitter
	logger    *zap.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(store LinkSetStore, submitter Submitter, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		submitter: submitter,
		logger:    logger,
	}
}

// Reconcile deletes stored URLs missing from desired and inserts pending rows
// for desired URLs not yet stored. URLs are compared by exact string. One
// enrichment request is submitted iff at least one row was inserted; removals
// alone never trigger a fetch. Submission is best effort and is never
// reported to the caller. Store errors are returned as-is (wrapped).
func (r *Reconciler) Reconcile(ctx context.Context, articleID, userID int64, desired []string) (Result, error) {
	stored, err := r.store.ListLinkURLs(ctx, articleID)
	if err != nil {
		return Result{}, fmt.Errorf("list link urls: %w", err)
	}

	want := toSet(desired)
	have := toSet(stored)
	result := Result{
		Added:   difference(want, have),
		Removed: difference(have, want),
	}

	for _, url := range result.Removed {
		if err := r.store.DeleteLink(ctx, articleID, url); err != nil {
			return result, fmt.Errorf("delete link %q: %w", url, err)
		}
	}
	for _, url := range result.Added {
		if err := r.store.InsertLink(ctx, articleID, userID, url); err != nil {
			return result, fmt.Errorf("insert link %q: %w", url, err)
		}
	}

	if len(result.Added) > 0 && r.submitter != nil {
		r.submitter.Submit(articleID)
		result.Enqueued = true
	}

	r.logger.Debug("links reconciled",
		zap.Int64("article_id", articleID),
		zap.Int("added", len(result.Added)),
		zap.Int("removed", len(result.Removed)),
		zap.Bool("enqueued", result.Enqueued),
	)
	return result, nil
}

// Forget removes every link of an article, e.g. when the article is deleted.
func (r *Reconciler) Forget(ctx context.Context, articleID int64) error {
	if err := r.store.DeleteArticleLinks(ctx, articleID); err != nil {
		return fmt.Errorf("delete article links: %w", err)
	}
	return nil
}

func toSet(urls []string) map[string]struct{} {
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set
}

// difference returns a \ b in lexical order.
func difference(a, b map[string]struct{}) []string {
	out := make([]string, 0)
	for u := range a {
		if _, ok := b[u]; !ok {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}
