// Package worker implements the link enrichment actor: the single goroutine
// that owns the browser session and drains the enrichment queue.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/notes-service/internal/clock/system"
	"github.com/JakeFAU/notes-service/internal/hash/sha256"
	"github.com/JakeFAU/notes-service/internal/links"
	"github.com/JakeFAU/notes-service/internal/metrics"
	"github.com/JakeFAU/notes-service/internal/queue/memory"
)

// Queue is the message channel between producers and the worker.
type Queue interface {
	TryEnqueue(msg links.Message) bool
	Enqueue(ctx context.Context, msg links.Message) error
	Dequeue(ctx context.Context) (links.Message, error)
	Len() int
	Close()
}

// Store is the part of the links table the worker reads and writes.
type Store interface {
	ListPendingLinks(ctx context.Context, articleID int64) ([]links.PendingLink, error)
	PersistEnrichment(ctx context.Context, linkID string, enrichment links.Enrichment) error
}

// State is the lifecycle phase of the worker.
type State int32

// Worker lifecycle states.
const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a link.enriched event per successful fetch when a
	// publisher is configured.
	Topic string
	// ArchivePrefix is the object path prefix for archived screenshots.
	ArchivePrefix string
}

// Worker consumes enrichment requests one at a time. It is the only user of
// the browser session for the lifetime of the process.
type Worker struct {
	queue     Queue
	store     Store
	browser   links.Browser
	detector  links.LanguageDetector
	archive   links.BlobStore
	publisher links.Publisher
	hasher    links.Hasher
	clock     links.Clock
	cfg       Config
	logger    *zap.Logger

	state     atomic.Int32
	startOnce sync.Once
	done      chan struct{}
}

// New constructs a Worker. archive and publisher are optional.
func New(
	queue Queue,
	store Store,
	browser links.Browser,
	detector links.LanguageDetector,
	archive links.BlobStore,
	publisher links.Publisher,
	hasher links.Hasher,
	clock links.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = sha256.New()
	}
	if clock == nil {
		clock = system.New()
	}
	cfg.ArchivePrefix = strings.Trim(cfg.ArchivePrefix, "/")
	return &Worker{
		queue:     queue,
		store:     store,
		browser:   browser,
		detector:  detector,
		archive:   archive,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start launches the worker loop. Calling Start more than once has no effect.
// The loop ends when a shutdown request is dequeued or ctx ends.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.logger.Info("enrichment worker started")
		go w.run(ctx)
	})
}

// Submit offers an enrichment request for articleID. It never blocks: when
// the queue is full or the worker has stopped the request is dropped and the
// caller is not told.
func (w *Worker) Submit(articleID int64) {
	accepted := w.queue.TryEnqueue(links.EnrichRequest{ArticleID: articleID})
	metrics.ObserveSubmission(accepted)
	if !accepted {
		w.logger.Debug("enrichment request dropped", zap.Int64("article_id", articleID))
		return
	}
	metrics.SetQueueDepth(w.queue.Len())
}

// Shutdown asks the worker to stop and waits for its acknowledgment. Requests
// queued behind the shutdown message are never processed. The caller must
// bound the wait with ctx; the browser session may be released only after
// Shutdown returns nil.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))

	ack := make(chan struct{}, 1)
	err := w.queue.Enqueue(ctx, links.ShutdownRequest{Ack: ack})
	switch {
	case err == nil:
	case errors.Is(err, memory.ErrClosed):
		// Already stopped or stopping; fall back to waiting for the loop.
		w.logger.Debug("shutdown request dropped by closed queue")
	default:
		return fmt.Errorf("send shutdown request: %w", err)
	}

	select {
	case <-ack:
		return nil
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("await shutdown acknowledgment: %w", ctx.Err())
	}
}

// State reports the current lifecycle phase.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Done is closed when the worker loop has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.state.Store(int32(StateStopped))

	for {
		msg, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				w.logger.Info("enrichment worker exiting", zap.Error(err))
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		metrics.SetQueueDepth(w.queue.Len())

		switch m := msg.(type) {
		case links.EnrichRequest:
			w.enrichArticle(ctx, m.ArticleID)
		case links.ShutdownRequest:
			w.stop(m)
			return
		default:
			w.logger.Warn("unknown queue message", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

func (w *Worker) stop(req links.ShutdownRequest) {
	w.queue.Close()
	w.state.Store(int32(StateStopped))
	w.logger.Info("enrichment worker stopped", zap.Int("discarded", w.queue.Len()))
	if req.Ack == nil {
		return
	}
	select {
	case req.Ack <- struct{}{}:
	default:
	}
}

// enrichArticle fetches the links of articleID that are pending at dequeue
// time. Each link is handled independently: a failure is logged and the loop
// moves on, leaving that link pending. Failed links are neither retried nor
// re-enqueued.
func (w *Worker) enrichArticle(ctx context.Context, articleID int64) {
	pending, err := w.store.ListPendingLinks(ctx, articleID)
	if err != nil {
		w.logger.Error("list pending links failed", zap.Int64("article_id", articleID), zap.Error(err))
		return
	}
	w.logger.Debug("enriching article", zap.Int64("article_id", articleID), zap.Int("pending", len(pending)))

	for _, link := range pending {
		start := time.Now()
		err := w.enrichLink(ctx, articleID, link)
		result := resultFor(err)
		metrics.ObserveEnrichment(link.URL, result, time.Since(start))
		if err != nil {
			w.logger.Warn("link enrichment skipped",
				zap.Int64("article_id", articleID),
				zap.String("link_id", link.ID),
				zap.String("url", link.URL),
				zap.String("stage", stageOf(err)),
				zap.Error(err),
			)
			continue
		}
		w.logger.Debug("link enriched",
			zap.Int64("article_id", articleID),
			zap.String("link_id", link.ID),
			zap.String("url", link.URL),
		)
	}
}

func (w *Worker) enrichLink(ctx context.Context, articleID int64, link links.PendingLink) error {
	enrichment, err := w.fetch(ctx, link.URL)
	if err != nil {
		return err
	}

	if w.archive != nil {
		uri, err := w.archiveScreenshot(ctx, articleID, enrichment.Screenshot)
		if err != nil {
			return &stageError{stage: stageArchive, err: err}
		}
		enrichment.ArchiveURI = uri
	}

	enrichment.EnrichedAt = w.clock.Now()
	if err := w.store.PersistEnrichment(ctx, link.ID, enrichment); err != nil {
		return &stageError{stage: stagePersist, err: err}
	}

	w.publishEnriched(ctx, articleID, link, enrichment)
	return nil
}

func (w *Worker) fetch(ctx context.Context, url string) (links.Enrichment, error) {
	if err := w.browser.Navigate(ctx, url); err != nil {
		return links.Enrichment{}, &stageError{stage: stageNavigate, err: err}
	}
	title, err := w.browser.Title(ctx)
	if err != nil {
		return links.Enrichment{}, &stageError{stage: stageTitle, err: err}
	}
	body, err := w.browser.BodyText(ctx)
	if err != nil {
		return links.Enrichment{}, &stageError{stage: stageBody, err: err}
	}
	screenshot, err := w.browser.Screenshot(ctx)
	if err != nil {
		return links.Enrichment{}, &stageError{stage: stageScreenshot, err: err}
	}
	return links.Enrichment{
		Title:      title,
		Body:       body,
		Language:   w.detector.Detect(body),
		Screenshot: screenshot,
	}, nil
}

func (w *Worker) archiveScreenshot(ctx context.Context, articleID int64, png []byte) (string, error) {
	hash, err := w.hasher.Hash(png)
	if err != nil {
		return "", fmt.Errorf("hash screenshot: %w", err)
	}
	path := fmt.Sprintf("%d/%s.png", articleID, hash)
	if w.cfg.ArchivePrefix != "" {
		path = w.cfg.ArchivePrefix + "/" + path
	}
	uri, err := w.archive.PutObject(ctx, path, "image/png", bytes.NewReader(png))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

// publishEnriched is best effort: the row is already persisted.
func (w *Worker) publishEnriched(ctx context.Context, articleID int64, link links.PendingLink, e links.Enrichment) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"link_id":     link.ID,
		"article_id":  articleID,
		"url":         link.URL,
		"title":       e.Title,
		"language":    e.Language,
		"archive_uri": e.ArchiveURI,
		"timestamp":   e.EnrichedAt.Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("publish link.enriched failed",
			zap.String("link_id", link.ID),
			zap.String("topic", w.cfg.Topic),
			zap.Error(err),
		)
	}
}
