package hero

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeEnrichmentService struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeEnrichmentService) Enrich(ctx context.Context, contentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, contentID)
	return nil
}

func (f *fakeEnrichmentService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func TestDispatcherDeliversSubmissions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &fakeEnrichmentService{}
	d := NewDispatcher(ctx, svc, 2, 8)

	for i := 0; i < 5; i++ {
		d.Dispatch("content-id")
	}
	d.Close()

	if svc.count() != 5 {
		t.Errorf("expected 5 enrichments, got %d", svc.count())
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocking := make(chan struct{})
	svc := &blockingEnrichmentService{unblock: blocking}
	d := NewDispatcher(ctx, svc, 1, 1)

	d.Dispatch("first")  // picked up by the single worker, blocks
	time.Sleep(20 * time.Millisecond)
	d.Dispatch("second") // fills the queue of capacity 1
	d.Dispatch("third")  // must be dropped, not block this goroutine

	close(blocking)
	d.Close()
}

type blockingEnrichmentService struct {
	unblock chan struct{}
}

func (b *blockingEnrichmentService) Enrich(ctx context.Context, contentID string) error {
	<-b.unblock
	return nil
}
