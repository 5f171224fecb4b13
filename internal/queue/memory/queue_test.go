package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/notes-service/internal/links"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan links.Message, 1)
	errCh := make(chan error, 1)

	go func() {
		msg, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- msg
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	if err := q.Enqueue(context.Background(), links.EnrichRequest{ArticleID: 1}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got != (links.EnrichRequest{ArticleID: 1}) {
			t.Fatalf("expected article 1, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return message")
	}
}

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	for _, id := range []int64{1, 2, 3} {
		if !q.TryEnqueue(links.EnrichRequest{ArticleID: id}) {
			t.Fatalf("TryEnqueue(%d) dropped on a non-saturated queue", id)
		}
	}
	for _, want := range []int64{1, 2, 3} {
		msg, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if got := msg.(links.EnrichRequest).ArticleID; got != want {
			t.Fatalf("expected article %d, got %d", want, got)
		}
	}
}

func TestQueueTryEnqueueDropsWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	if !q.TryEnqueue(links.EnrichRequest{ArticleID: 1}) {
		t.Fatal("first TryEnqueue should succeed")
	}
	done := make(chan bool, 1)
	go func() { done <- q.TryEnqueue(links.EnrichRequest{ArticleID: 2}) }()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected TryEnqueue to drop on a full queue")
		}
	case <-time.After(time.Second):
		t.Fatal("TryEnqueue blocked on a full queue")
	}
	if q.Len() != 1 || q.Cap() != 1 {
		t.Fatalf("unexpected len/cap %d/%d", q.Len(), q.Cap())
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), links.EnrichRequest{ArticleID: 9}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, links.EnrichRequest{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	if q.TryEnqueue(links.EnrichRequest{ArticleID: 1}) {
		t.Fatal("expected TryEnqueue to drop after close")
	}
	if err := q.Enqueue(context.Background(), links.EnrichRequest{ArticleID: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected Enqueue to fail after close, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
